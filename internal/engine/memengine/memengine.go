// Package memengine is an in-memory reference implementation of the engine
// boundary. It backs the demo host and the wrapper-layer tests: handles are
// numeric, parse state lives in ordinary maps, and release/destroy
// bookkeeping is strict so ownership mistakes surface as errors instead of
// silent corruption.
package memengine

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/edgeshim/edgeshim/internal/engine"
)

var (
	ErrUnknownBuffer = errors.New("unknown or destroyed buffer")
	ErrUnknownLoc    = errors.New("unknown or released location")
	ErrWrongParent   = errors.New("release with wrong parent location")
	ErrNotRequest    = errors.New("not a request header block")
	ErrNotResponse   = errors.New("not a response header block")
	ErrBadURL        = errors.New("malformed url")
)

type hdrKind int

const (
	hdrRequest hdrKind = iota
	hdrResponse
)

type hdrBlock struct {
	kind   hdrKind
	method string
	major  int
	minor  int
	status int
	reason string
	urlLoc engine.Loc
	fields []engine.Field
}

type urlRecord struct {
	scheme   string
	host     string
	port     int
	path     string
	query    string
	fragment string
	parent   engine.Loc // NoLoc when created directly in the buffer
	// grants counts the outstanding handles: one per URLCreate, one per
	// HdrURLGet. Releasing decrements; only a free-standing record dies when
	// its last grant is returned, a header-owned record lives with its block.
	grants int
}

type buffer struct {
	hdrs map[engine.Loc]*hdrBlock
	urls map[engine.Loc]*urlRecord
}

// Engine implements engine.Engine with in-memory handle tables.
type Engine struct {
	mu      sync.Mutex
	next    uint64
	buffers map[engine.Buffer]*buffer
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{buffers: make(map[engine.Buffer]*buffer)}
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) nextHandle() uint64 {
	e.next++
	return e.next
}

func (e *Engine) buffer(buf engine.Buffer) (*buffer, error) {
	b, ok := e.buffers[buf]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBuffer, buf)
	}
	return b, nil
}

func (e *Engine) hdr(buf engine.Buffer, loc engine.Loc) (*hdrBlock, error) {
	b, err := e.buffer(buf)
	if err != nil {
		return nil, err
	}
	h, ok := b.hdrs[loc]
	if !ok {
		return nil, fmt.Errorf("%w: hdr %d", ErrUnknownLoc, loc)
	}
	return h, nil
}

func (e *Engine) url(buf engine.Buffer, loc engine.Loc) (*urlRecord, error) {
	b, err := e.buffer(buf)
	if err != nil {
		return nil, err
	}
	u, ok := b.urls[loc]
	if !ok {
		return nil, fmt.Errorf("%w: url %d", ErrUnknownLoc, loc)
	}
	return u, nil
}

// BufferCreate allocates a fresh buffer.
func (e *Engine) BufferCreate() engine.Buffer {
	e.mu.Lock()
	defer e.mu.Unlock()

	buf := engine.Buffer(e.nextHandle())
	e.buffers[buf] = &buffer{
		hdrs: make(map[engine.Loc]*hdrBlock),
		urls: make(map[engine.Loc]*urlRecord),
	}
	return buf
}

// BufferDestroy frees a buffer and all locations inside it.
func (e *Engine) BufferDestroy(buf engine.Buffer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.buffers[buf]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBuffer, buf)
	}
	delete(e.buffers, buf)
	return nil
}

// HandleRelease returns one granted URL handle. The parent must match the
// location the handle was obtained under (the header block for HdrURLGet,
// NoLoc for URLCreate). Returning more handles than were granted is an
// error. A header-owned record stays alive for its block and for other
// holders; only a free-standing record is destroyed with its last grant.
func (e *Engine) HandleRelease(buf engine.Buffer, parent, loc engine.Loc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.buffer(buf)
	if err != nil {
		return err
	}
	u, ok := b.urls[loc]
	if !ok {
		return fmt.Errorf("%w: url %d", ErrUnknownLoc, loc)
	}
	if u.parent != parent {
		return fmt.Errorf("%w: have %d, want %d", ErrWrongParent, parent, u.parent)
	}
	if u.grants == 0 {
		return fmt.Errorf("%w: url %d released more times than granted", ErrUnknownLoc, loc)
	}
	u.grants--
	if u.grants == 0 && u.parent == engine.NoLoc {
		delete(b.urls, loc)
	}
	return nil
}

// RequestHdrCreate builds a request header block from already-parsed pieces.
// This is the engine-side constructor the host uses when it admits a client
// request; the wrapper layer never calls it.
func (e *Engine) RequestHdrCreate(buf engine.Buffer, method, rawURL string, major, minor int, fields []engine.Field) (engine.Loc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.buffer(buf)
	if err != nil {
		return engine.NoLoc, err
	}
	h := &hdrBlock{
		kind:   hdrRequest,
		method: method,
		major:  major,
		minor:  minor,
		fields: append([]engine.Field(nil), fields...),
	}
	if rawURL != "" {
		rec, err := parseURL(rawURL)
		if err != nil {
			return engine.NoLoc, err
		}
		hdrLoc := engine.Loc(e.nextHandle())
		urlLoc := engine.Loc(e.nextHandle())
		rec.parent = hdrLoc
		h.urlLoc = urlLoc
		b.urls[urlLoc] = rec
		b.hdrs[hdrLoc] = h
		return hdrLoc, nil
	}
	hdrLoc := engine.Loc(e.nextHandle())
	b.hdrs[hdrLoc] = h
	return hdrLoc, nil
}

// ResponseHdrCreate builds a response header block.
func (e *Engine) ResponseHdrCreate(buf engine.Buffer, status int, reason string, major, minor int, fields []engine.Field) (engine.Loc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.buffer(buf)
	if err != nil {
		return engine.NoLoc, err
	}
	hdrLoc := engine.Loc(e.nextHandle())
	b.hdrs[hdrLoc] = &hdrBlock{
		kind:   hdrResponse,
		status: status,
		reason: reason,
		major:  major,
		minor:  minor,
		fields: append([]engine.Field(nil), fields...),
	}
	return hdrLoc, nil
}

// HdrURLGet returns the URL location of a request header block. Every call
// grants a fresh handle on the record; release each against the header block
// parent. The record itself lives as long as the block does.
func (e *Engine) HdrURLGet(buf engine.Buffer, hdr engine.Loc) (engine.Loc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.buffer(buf)
	if err != nil {
		return engine.NoLoc, err
	}
	h, ok := b.hdrs[hdr]
	if !ok {
		return engine.NoLoc, fmt.Errorf("%w: hdr %d", ErrUnknownLoc, hdr)
	}
	if h.kind != hdrRequest {
		return engine.NoLoc, ErrNotRequest
	}
	if h.urlLoc == engine.NoLoc {
		return engine.NoLoc, nil
	}
	b.urls[h.urlLoc].grants++
	return h.urlLoc, nil
}

func (e *Engine) HdrMethodGet(buf engine.Buffer, hdr engine.Loc) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return "", err
	}
	if h.kind != hdrRequest {
		return "", ErrNotRequest
	}
	return h.method, nil
}

func (e *Engine) HdrVersionGet(buf engine.Buffer, hdr engine.Loc) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return 0, 0, err
	}
	return h.major, h.minor, nil
}

func (e *Engine) HdrStatusGet(buf engine.Buffer, hdr engine.Loc) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return 0, err
	}
	if h.kind != hdrResponse {
		return 0, ErrNotResponse
	}
	return h.status, nil
}

func (e *Engine) HdrStatusSet(buf engine.Buffer, hdr engine.Loc, status int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return err
	}
	if h.kind != hdrResponse {
		return ErrNotResponse
	}
	h.status = status
	return nil
}

func (e *Engine) HdrReasonGet(buf engine.Buffer, hdr engine.Loc) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return "", err
	}
	if h.kind != hdrResponse {
		return "", ErrNotResponse
	}
	return h.reason, nil
}

func (e *Engine) HdrReasonSet(buf engine.Buffer, hdr engine.Loc, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return err
	}
	if h.kind != hdrResponse {
		return ErrNotResponse
	}
	h.reason = reason
	return nil
}

func (e *Engine) FieldCount(buf engine.Buffer, hdr engine.Loc) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return 0, err
	}
	return len(h.fields), nil
}

func (e *Engine) FieldsAll(buf engine.Buffer, hdr engine.Loc) ([]engine.Field, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return nil, err
	}
	return append([]engine.Field(nil), h.fields...), nil
}

func (e *Engine) FieldValues(buf engine.Buffer, hdr engine.Loc, name string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values, nil
}

func (e *Engine) FieldSet(buf engine.Buffer, hdr engine.Loc, name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return err
	}
	h.fields = removeFields(h.fields, name)
	h.fields = append(h.fields, engine.Field{Name: name, Value: value})
	return nil
}

func (e *Engine) FieldAppend(buf engine.Buffer, hdr engine.Loc, name, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return err
	}
	h.fields = append(h.fields, engine.Field{Name: name, Value: value})
	return nil
}

func (e *Engine) FieldRemove(buf engine.Buffer, hdr engine.Loc, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.hdr(buf, hdr)
	if err != nil {
		return err
	}
	h.fields = removeFields(h.fields, name)
	return nil
}

func removeFields(fields []engine.Field, name string) []engine.Field {
	kept := fields[:0]
	for _, f := range fields {
		if !strings.EqualFold(f.Name, name) {
			kept = append(kept, f)
		}
	}
	return kept
}

// URLCreate allocates an empty URL record with no header-block parent.
func (e *Engine) URLCreate(buf engine.Buffer) (engine.Loc, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b, err := e.buffer(buf)
	if err != nil {
		return engine.NoLoc, err
	}
	loc := engine.Loc(e.nextHandle())
	b.urls[loc] = &urlRecord{parent: engine.NoLoc, grants: 1}
	return loc, nil
}

// URLParse fills a URL record from its string form. The record keeps its
// previous contents on failure.
func (e *Engine) URLParse(buf engine.Buffer, loc engine.Loc, raw string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.url(buf, loc)
	if err != nil {
		return err
	}
	rec, err := parseURL(raw)
	if err != nil {
		return err
	}
	rec.parent = u.parent
	*u = *rec
	return nil
}

func (e *Engine) URLString(buf engine.Buffer, loc engine.Loc) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.url(buf, loc)
	if err != nil {
		return "", err
	}
	return formatURL(u), nil
}

func (e *Engine) URLSchemeGet(buf engine.Buffer, loc engine.Loc) (string, error) {
	return e.urlGetString(buf, loc, func(u *urlRecord) string { return u.scheme })
}

func (e *Engine) URLSchemeSet(buf engine.Buffer, loc engine.Loc, scheme string) error {
	return e.urlSet(buf, loc, func(u *urlRecord) { u.scheme = scheme })
}

func (e *Engine) URLHostGet(buf engine.Buffer, loc engine.Loc) (string, error) {
	return e.urlGetString(buf, loc, func(u *urlRecord) string { return u.host })
}

func (e *Engine) URLHostSet(buf engine.Buffer, loc engine.Loc, host string) error {
	return e.urlSet(buf, loc, func(u *urlRecord) { u.host = host })
}

func (e *Engine) URLPortGet(buf engine.Buffer, loc engine.Loc) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.url(buf, loc)
	if err != nil {
		return 0, err
	}
	return u.port, nil
}

func (e *Engine) URLPortSet(buf engine.Buffer, loc engine.Loc, port int) error {
	return e.urlSet(buf, loc, func(u *urlRecord) { u.port = port })
}

func (e *Engine) URLPathGet(buf engine.Buffer, loc engine.Loc) (string, error) {
	return e.urlGetString(buf, loc, func(u *urlRecord) string { return u.path })
}

func (e *Engine) URLPathSet(buf engine.Buffer, loc engine.Loc, path string) error {
	return e.urlSet(buf, loc, func(u *urlRecord) { u.path = path })
}

func (e *Engine) URLQueryGet(buf engine.Buffer, loc engine.Loc) (string, error) {
	return e.urlGetString(buf, loc, func(u *urlRecord) string { return u.query })
}

func (e *Engine) URLQuerySet(buf engine.Buffer, loc engine.Loc, query string) error {
	return e.urlSet(buf, loc, func(u *urlRecord) { u.query = query })
}

func (e *Engine) URLFragmentGet(buf engine.Buffer, loc engine.Loc) (string, error) {
	return e.urlGetString(buf, loc, func(u *urlRecord) string { return u.fragment })
}

func (e *Engine) URLFragmentSet(buf engine.Buffer, loc engine.Loc, fragment string) error {
	return e.urlSet(buf, loc, func(u *urlRecord) { u.fragment = fragment })
}

func (e *Engine) urlGetString(buf engine.Buffer, loc engine.Loc, get func(*urlRecord) string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.url(buf, loc)
	if err != nil {
		return "", err
	}
	return get(u), nil
}

func (e *Engine) urlSet(buf engine.Buffer, loc engine.Loc, set func(*urlRecord)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := e.url(buf, loc)
	if err != nil {
		return err
	}
	set(u)
	return nil
}

// BufferCount reports live buffers; used by leak checks in tests.
func (e *Engine) BufferCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.buffers)
}

func parseURL(raw string) (*urlRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrBadURL)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadURL, err)
	}
	if parsed.Scheme == "" {
		return nil, fmt.Errorf("%w: missing scheme: %s", ErrBadURL, raw)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: missing host: %s", ErrBadURL, raw)
	}
	port := 0
	if p := parsed.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: bad port: %s", ErrBadURL, raw)
		}
	}
	return &urlRecord{
		scheme:   parsed.Scheme,
		host:     parsed.Hostname(),
		port:     port,
		path:     parsed.Path,
		query:    parsed.RawQuery,
		fragment: parsed.Fragment,
	}, nil
}

func formatURL(u *urlRecord) string {
	if u.scheme == "" && u.host == "" {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(u.scheme)
	sb.WriteString("://")
	sb.WriteString(u.host)
	if u.port != 0 && !isDefaultPort(u.scheme, u.port) {
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(u.port))
	}
	if u.path == "" {
		sb.WriteString("/")
	} else {
		sb.WriteString(u.path)
	}
	if u.query != "" {
		sb.WriteString("?")
		sb.WriteString(u.query)
	}
	if u.fragment != "" {
		sb.WriteString("#")
		sb.WriteString(u.fragment)
	}
	return sb.String()
}

func isDefaultPort(scheme string, port int) bool {
	switch scheme {
	case "http":
		return port == 80
	case "https":
		return port == 443
	}
	return false
}
