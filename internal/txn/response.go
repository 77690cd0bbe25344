package txn

import (
	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine"
)

// Response wraps one response header block. It follows the same dual
// ownership regime as Request, minus the URL: there is no derived location
// to release, so teardown of a borrowed Response touches nothing and
// teardown of a standalone Response only destroys its own buffer.
type Response struct {
	eng     engine.Engine
	log     logrus.FieldLogger
	own     ownership
	buf     engine.Buffer
	hdr     engine.Loc
	headers Headers
	status  InitValue[int]
	reason  InitValue[string]
	version InitValue[Version]
	closed  bool
}

// NewResponse returns an empty Response to be completed with Init.
func NewResponse(eng engine.Engine, logger logrus.FieldLogger) *Response {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Response{
		eng:     eng,
		log:     logger,
		headers: Headers{log: logger},
	}
}

// NewAttachedResponse wraps a live response header block borrowed from the
// engine.
func NewAttachedResponse(eng engine.Engine, logger logrus.FieldLogger, buf engine.Buffer, hdr engine.Loc) *Response {
	r := NewResponse(eng, logger)
	if err := r.Init(buf, hdr); err != nil {
		r.log.WithError(err).Error("attached response init failed")
	}
	return r
}

// NewStandaloneResponse builds a Response never seen by the engine, with
// status, reason and version pre-set and detached headers.
func NewStandaloneResponse(eng engine.Engine, logger logrus.FieldLogger, status int, reason string, version Version) *Response {
	r := NewResponse(eng, logger)
	r.status.Set(status)
	r.reason.Set(reason)
	r.version.Set(version)
	r.own = ownershipOwned
	r.buf = eng.BufferCreate()
	if err := r.headers.InitDetached(); err != nil {
		r.log.WithError(err).Error("detached headers init failed")
	}
	return r
}

// Init attaches the Response to an engine-owned header block, with the same
// reinitialization guard as Request.Init.
func (r *Response) Init(buf engine.Buffer, hdr engine.Loc) error {
	if r.buf != engine.NoBuffer || r.hdr != engine.NoLoc {
		r.log.WithFields(logrus.Fields{
			"action":        "response_init",
			"current_buf":   r.buf,
			"current_hdr":   r.hdr,
			"attempted_buf": buf,
			"attempted_hdr": hdr,
		}).Error("response reinitialization rejected")
		return ErrReinitialized
	}
	r.own = ownershipBorrowed
	r.buf = buf
	r.hdr = hdr
	if err := r.headers.Init(r.eng, buf, hdr); err != nil {
		r.log.WithError(err).Error("headers init failed")
	}
	return nil
}

// Status fetches and memoizes the status code on first call.
func (r *Response) Status() int {
	if !r.status.IsInitialized() && r.buf != engine.NoBuffer && r.hdr != engine.NoLoc {
		status, err := r.eng.HdrStatusGet(r.buf, r.hdr)
		if err != nil {
			r.log.WithError(err).Error("engine returned no status")
		} else {
			r.status.Set(status)
		}
	}
	return r.status.Get()
}

// SetStatus writes the status through to the engine when attached and
// refreshes the memo either way.
func (r *Response) SetStatus(status int) error {
	if r.own == ownershipBorrowed {
		if err := r.eng.HdrStatusSet(r.buf, r.hdr, status); err != nil {
			return err
		}
	}
	r.status.Set(status)
	return nil
}

// Reason fetches and memoizes the reason phrase on first call.
func (r *Response) Reason() string {
	if !r.reason.IsInitialized() && r.buf != engine.NoBuffer && r.hdr != engine.NoLoc {
		reason, err := r.eng.HdrReasonGet(r.buf, r.hdr)
		if err != nil {
			r.log.WithError(err).Error("engine returned no reason phrase")
		} else {
			r.reason.Set(reason)
		}
	}
	return r.reason.Get()
}

// SetReason writes the reason phrase through to the engine when attached and
// refreshes the memo either way.
func (r *Response) SetReason(reason string) error {
	if r.own == ownershipBorrowed {
		if err := r.eng.HdrReasonSet(r.buf, r.hdr, reason); err != nil {
			return err
		}
	}
	r.reason.Set(reason)
	return nil
}

// Version fetches and memoizes the protocol version on first call.
func (r *Response) Version() Version {
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

// Headers returns the owned header view.
func (r *Response) Headers() *Headers {
	return &r.headers
}

// Close tears the Response down: only a standalone Response has anything to
// free. Idempotent.
func (r *Response) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	switch r.own {
	case ownershipOwned:
		return r.eng.BufferDestroy(r.buf)
	default:
		return nil
	}
}
