package txn

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/edgeshim/edgeshim/internal/engine"
)

// ErrUninitialized is returned by mutating accessors of an object that has
// no engine location yet.
var ErrUninitialized = errors.New("not initialized")

// URL wraps a single engine URL location. It never owns the buffer or the
// location; the Request or Response holding it manages that pair's lifetime.
// The zero value is uninitialized: getters return zero values, String
// returns "".
type URL struct {
	eng engine.Engine
	log logrus.FieldLogger
	buf engine.Buffer
	loc engine.Loc
}

func (u *URL) logger() logrus.FieldLogger {
	if u.log == nil {
		return logrus.StandardLogger()
	}
	return u.log
}

// Init points the wrapper at an engine location. Reinitialization is
// rejected the same way as for Headers.
func (u *URL) Init(eng engine.Engine, buf engine.Buffer, loc engine.Loc) error {
	if u.loc != engine.NoLoc {
		u.logger().WithFields(logrus.Fields{
			"action":        "url_init",
			"current_loc":   u.loc,
			"attempted_loc": loc,
		}).Error("url reinitialization rejected")
		return ErrReinitialized
	}
	u.eng = eng
	u.buf = buf
	u.loc = loc
	return nil
}

// Initialized reports whether the wrapper points at a live location.
func (u *URL) Initialized() bool {
	return u.loc != engine.NoLoc
}

// String renders the canonical form via the engine formatter, or "" for an
// uninitialized URL.
func (u *URL) String() string {
	if !u.Initialized() {
		return ""
	}
	s, err := u.eng.URLString(u.buf, u.loc)
	if err != nil {
		u.logger().WithError(err).Error("url format failed")
		return ""
	}
	return s
}

// Scheme returns the URL scheme, or "" when uninitialized.
func (u *URL) Scheme() string {
	return u.getString(func() (string, error) { return u.eng.URLSchemeGet(u.buf, u.loc) })
}

func (u *URL) SetScheme(scheme string) error {
	if !u.Initialized() {
		return ErrUninitialized
	}
	return u.eng.URLSchemeSet(u.buf, u.loc, scheme)
}

// Host returns the URL host, or "" when uninitialized.
func (u *URL) Host() string {
	return u.getString(func() (string, error) { return u.eng.URLHostGet(u.buf, u.loc) })
}

func (u *URL) SetHost(host string) error {
	if !u.Initialized() {
		return ErrUninitialized
	}
	return u.eng.URLHostSet(u.buf, u.loc, host)
}

// Port returns the explicit URL port, or 0 when none was given.
func (u *URL) Port() int {
	if !u.Initialized() {
		return 0
	}
	port, err := u.eng.URLPortGet(u.buf, u.loc)
	if err != nil {
		u.logger().WithError(err).Error("url port read failed")
		return 0
	}
	return port
}

func (u *URL) SetPort(port int) error {
	if !u.Initialized() {
		return ErrUninitialized
	}
	return u.eng.URLPortSet(u.buf, u.loc, port)
}

// Path returns the URL path, or "" when uninitialized.
func (u *URL) Path() string {
	return u.getString(func() (string, error) { return u.eng.URLPathGet(u.buf, u.loc) })
}

func (u *URL) SetPath(path string) error {
	if !u.Initialized() {
		return ErrUninitialized
	}
	return u.eng.URLPathSet(u.buf, u.loc, path)
}

// Query returns the raw query string, or "" when uninitialized.
func (u *URL) Query() string {
	return u.getString(func() (string, error) { return u.eng.URLQueryGet(u.buf, u.loc) })
}

func (u *URL) SetQuery(query string) error {
	if !u.Initialized() {
		return ErrUninitialized
	}
	return u.eng.URLQuerySet(u.buf, u.loc, query)
}

// Fragment returns the URL fragment, or "" when uninitialized.
func (u *URL) Fragment() string {
	return u.getString(func() (string, error) { return u.eng.URLFragmentGet(u.buf, u.loc) })
}

func (u *URL) SetFragment(fragment string) error {
	if !u.Initialized() {
		return ErrUninitialized
	}
	return u.eng.URLFragmentSet(u.buf, u.loc, fragment)
}

func (u *URL) getString(get func() (string, error)) string {
	if !u.Initialized() {
		return ""
	}
	s, err := get()
	if err != nil {
		u.logger().WithError(err).Error("url component read failed")
		return ""
	}
	return s
}
