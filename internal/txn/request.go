package txn

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine"
)

// ownership tags who owns the backing buffer of a Request or Response. The
// tag is selected once at construction and matched exhaustively at teardown,
// so a mode can never leak the buffer or free engine-owned memory.
type ownership int

const (
	ownershipUnset ownership = iota
	// ownershipBorrowed: buffer and header location belong to the engine.
	// Teardown releases derived locations against their real parent and
	// leaves the buffer alone.
	ownershipBorrowed
	// ownershipOwned: the wrapper created the buffer for a standalone
	// object. Teardown releases derived locations with no parent and then
	// destroys the buffer.
	ownershipOwned
)

// Request wraps one request header block. It is either fully attached
// (everything borrowed from the engine) or fully standalone (buffer created
// and destroyed by the Request itself); the two never mix.
type Request struct {
	eng     engine.Engine
	log     logrus.FieldLogger
	own     ownership
	buf     engine.Buffer
	hdr     engine.Loc
	urlLoc  engine.Loc
	url     URL
	headers Headers
	method  InitValue[Method]
	version InitValue[Version]
	closed  bool
}

// NewRequest returns an empty Request that must be completed with Init
// before header or URL access means anything.
func NewRequest(eng engine.Engine, logger logrus.FieldLogger) *Request {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Request{
		eng:     eng,
		log:     logger,
		url:     URL{log: logger},
		headers: Headers{log: logger},
	}
}

// NewAttachedRequest wraps a live header block borrowed from the engine.
func NewAttachedRequest(eng engine.Engine, logger logrus.FieldLogger, buf engine.Buffer, hdr engine.Loc) *Request {
	r := NewRequest(eng, logger)
	if err := r.Init(buf, hdr); err != nil {
		r.log.WithError(err).Error("attached request init failed")
	}
	return r
}

// NewStandaloneRequest builds a Request from a URL string, e.g. for an
// outbound request the engine has never seen. The Request exclusively owns a
// fresh buffer; method and version are pre-set since there is no header
// block to derive them from. A malformed URL is logged and leaves the URL
// uninitialized while the rest of the Request stays usable.
func NewStandaloneRequest(eng engine.Engine, logger logrus.FieldLogger, rawURL string, method Method, version Version) *Request {
	r := NewRequest(eng, logger)
	r.method.Set(method)
	r.version.Set(version)
	r.own = ownershipOwned
	r.buf = eng.BufferCreate()
	if err := r.headers.InitDetached(); err != nil {
		r.log.WithError(err).Error("detached headers init failed")
	}

	loc, err := eng.URLCreate(r.buf)
	if err != nil {
		r.log.WithError(err).WithField("buf", r.buf).Error("could not create url location")
		return r
	}
	r.urlLoc = loc
	if err := eng.URLParse(r.buf, loc, rawURL); err != nil {
		r.log.WithError(err).WithField("url", rawURL).Error("input does not represent a valid url")
		return r
	}
	if err := r.url.Init(eng, r.buf, loc); err != nil {
		r.log.WithError(err).Error("url init failed")
	}
	return r
}

// Init attaches the Request to an engine-owned header block. Calling it on a
// Request that already has a buffer or header location is rejected: logged,
// no state change, ErrReinitialized returned.
func (r *Request) Init(buf engine.Buffer, hdr engine.Loc) error {
	if r.buf != engine.NoBuffer || r.hdr != engine.NoLoc {
		r.log.WithFields(logrus.Fields{
			"action":        "request_init",
			"current_buf":   r.buf,
			"current_hdr":   r.hdr,
			"attempted_buf": buf,
			"attempted_hdr": hdr,
		}).Error("request reinitialization rejected")
		return ErrReinitialized
	}
	r.own = ownershipBorrowed
	r.buf = buf
	r.hdr = hdr
	if err := r.headers.Init(r.eng, buf, hdr); err != nil {
		r.log.WithError(err).Error("headers init failed")
	}

	urlLoc, err := r.eng.HdrURLGet(buf, hdr)
	if err != nil || urlLoc == engine.NoLoc {
		r.log.WithError(err).WithFields(logrus.Fields{
			"buf": buf,
			"hdr": hdr,
		}).Error("header block reports no url location")
		return nil
	}
	r.urlLoc = urlLoc
	if err := r.url.Init(r.eng, buf, urlLoc); err != nil {
		r.log.WithError(err).Error("url init failed")
	}
	return nil
}

// Method fetches the raw method token from the engine on first call, maps it
// onto the fixed token set and memoizes the result. Empty or unrecognized
// tokens are logged and leave the memo at MethodUnknown, uninitialized, so a
// later call may still succeed once the block carries a real method.
func (r *Request) Method() Method {
	if !r.method.IsInitialized() && r.buf != engine.NoBuffer && r.hdr != engine.NoLoc {
		token, err := r.eng.HdrMethodGet(r.buf, r.hdr)
		switch {
		case err != nil || token == "":
			r.log.WithError(err).WithFields(logrus.Fields{
				"buf": r.buf,
				"hdr": r.hdr,
			}).Error("engine returned no method token")
		default:
			if m, ok := MethodFromToken(token); ok {
				r.method.Set(m)
			} else {
				r.log.WithField("token", token).Error("unrecognized method token")
			}
		}
	}
	return r.method.Get()
}

// Version fetches and memoizes the protocol version on first call.
func (r *Request) Version() Version {
	if !r.version.IsInitialized() && r.buf != engine.NoBuffer && r.hdr != engine.NoLoc {
		major, minor, err := r.eng.HdrVersionGet(r.buf, r.hdr)
		if err != nil {
			r.log.WithError(err).Error("engine returned no version")
		} else {
			r.version.Set(DecodeVersion(major, minor))
		}
	}
	return r.version.Get()
}

// URL returns the owned URL wrapper. It is uninitialized when the header
// block carried no URL or standalone parsing failed.
func (r *Request) URL() *URL {
	return &r.url
}

// Headers returns the owned header view; its mode matches the Request's
// ownership.
func (r *Request) Headers() *Headers {
	return &r.headers
}

// Close tears the Request down according to the ownership recorded at
// construction. Borrowed: release the URL location against its real parent,
// never touch the shared buffer. Owned: release the URL location with no
// parent, then destroy the exclusively-owned buffer. Close is idempotent.
func (r *Request) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	switch r.own {
	case ownershipUnset:
		return nil
	case ownershipBorrowed:
		if r.urlLoc == engine.NoLoc {
			return nil
		}
		return r.eng.HandleRelease(r.buf, r.hdr, r.urlLoc)
	case ownershipOwned:
		var errs []error
		if r.urlLoc != engine.NoLoc {
			if err := r.eng.HandleRelease(r.buf, engine.NoLoc, r.urlLoc); err != nil {
				errs = append(errs, err)
			}
		}
		if err := r.eng.BufferDestroy(r.buf); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	}
	return nil
}
