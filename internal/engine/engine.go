// Package engine defines the boundary between the wrapper layer and the
// proxy engine that owns all parsed HTTP state. The engine hands out opaque
// buffer and location handles; the wrapper layer never touches wire bytes
// directly, it only reads and mutates parse state through these primitives.
package engine

// Buffer identifies one marshal buffer owned by the engine. A buffer holds
// header blocks and URL records; its lifetime is managed by whoever created
// it (the engine for live transactions, the wrapper for standalone objects).
type Buffer uint64

// Loc identifies one location (a header block or a URL record) inside a
// buffer.
type Loc uint64

// Zero handles stand for "no buffer" / "no location".
const (
	NoBuffer Buffer = 0
	NoLoc    Loc    = 0
)

// Field is a single header field as stored by the engine. Repeated names are
// distinct fields; the engine preserves field order.
type Field struct {
	Name  string
	Value string
}

// Method tokens the engine reports for request header blocks.
const (
	TokenGet      = "GET"
	TokenPost     = "POST"
	TokenHead     = "HEAD"
	TokenConnect  = "CONNECT"
	TokenDelete   = "DELETE"
	TokenICPQuery = "ICP_QUERY"
	TokenOptions  = "OPTIONS"
	TokenPurge    = "PURGE"
	TokenPut      = "PUT"
	TokenTrace    = "TRACE"
)

// Engine is the set of primitives the wrapper layer consumes. Implementations
// must be safe for concurrent use: distinct transactions run on distinct
// worker threads, though a single handle is only ever driven by one callback
// at a time.
type Engine interface {
	// BufferCreate allocates a fresh buffer. The caller owns it and must
	// destroy it with BufferDestroy.
	BufferCreate() Buffer
	// BufferDestroy frees a buffer and everything inside it. Destroying an
	// unknown or already-destroyed buffer is an error.
	BufferDestroy(buf Buffer) error
	// HandleRelease returns one granted location handle to the engine. parent
	// must be the location the handle was obtained under, or NoLoc for
	// locations created directly in the buffer. Releasing more handles than
	// were granted, or against the wrong parent, is an error. Releasing never
	// destroys state another holder (or the owning header block) still uses.
	HandleRelease(buf Buffer, parent, loc Loc) error

	// HdrURLGet returns the URL location of a request header block, or NoLoc
	// when the block carries none. Each call grants a handle the caller must
	// release against the header block.
	HdrURLGet(buf Buffer, hdr Loc) (Loc, error)
	// HdrMethodGet returns the raw method token of a request header block.
	HdrMethodGet(buf Buffer, hdr Loc) (string, error)
	// HdrVersionGet reports the protocol version of a header block as
	// major/minor numbers; decoding into an enumerated version is the
	// caller's business.
	HdrVersionGet(buf Buffer, hdr Loc) (major, minor int, err error)
	// HdrStatusGet / HdrStatusSet access the status code of a response
	// header block.
	HdrStatusGet(buf Buffer, hdr Loc) (int, error)
	HdrStatusSet(buf Buffer, hdr Loc, status int) error
	// HdrReasonGet / HdrReasonSet access the reason phrase of a response
	// header block.
	HdrReasonGet(buf Buffer, hdr Loc) (string, error)
	HdrReasonSet(buf Buffer, hdr Loc, reason string) error

	// Field primitives. Name matching is ASCII case-insensitive everywhere.
	FieldCount(buf Buffer, hdr Loc) (int, error)
	FieldsAll(buf Buffer, hdr Loc) ([]Field, error)
	FieldValues(buf Buffer, hdr Loc, name string) ([]string, error)
	// FieldSet replaces every field of the given name with a single field.
	FieldSet(buf Buffer, hdr Loc, name, value string) error
	// FieldAppend adds a field after the existing ones.
	FieldAppend(buf Buffer, hdr Loc, name, value string) error
	// FieldRemove drops every field of the given name.
	FieldRemove(buf Buffer, hdr Loc, name string) error

	// URLCreate allocates an empty URL record directly in a buffer, with no
	// header-block parent. Release it with parent NoLoc.
	URLCreate(buf Buffer) (Loc, error)
	// URLParse fills a URL record from its string form. The record is left
	// untouched on parse failure.
	URLParse(buf Buffer, url Loc, raw string) error
	// URLString renders the canonical string form. Default ports (http 80,
	// https 443) are elided; an empty path renders as "/".
	URLString(buf Buffer, url Loc) (string, error)

	URLSchemeGet(buf Buffer, url Loc) (string, error)
	URLSchemeSet(buf Buffer, url Loc, scheme string) error
	URLHostGet(buf Buffer, url Loc) (string, error)
	URLHostSet(buf Buffer, url Loc, host string) error
	URLPortGet(buf Buffer, url Loc) (int, error)
	URLPortSet(buf Buffer, url Loc, port int) error
	URLPathGet(buf Buffer, url Loc) (string, error)
	URLPathSet(buf Buffer, url Loc, path string) error
	URLQueryGet(buf Buffer, url Loc) (string, error)
	URLQuerySet(buf Buffer, url Loc, query string) error
	URLFragmentGet(buf Buffer, url Loc) (string, error)
	URLFragmentSet(buf Buffer, url Loc, fragment string) error
}
