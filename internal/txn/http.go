package txn

import "github.com/edgeshim/edgeshim/internal/engine"

// Method enumerates the request methods the engine reports. MethodUnknown is
// the default for anything outside the fixed token set.
type Method int

const (
	MethodUnknown Method = iota
	MethodGet
	MethodPost
	MethodHead
	MethodConnect
	MethodDelete
	MethodICPQuery
	MethodOptions
	MethodPurge
	MethodPut
	MethodTrace
)

var methodTokens = map[string]Method{
	engine.TokenGet:      MethodGet,
	engine.TokenPost:     MethodPost,
	engine.TokenHead:     MethodHead,
	engine.TokenConnect:  MethodConnect,
	engine.TokenDelete:   MethodDelete,
	engine.TokenICPQuery: MethodICPQuery,
	engine.TokenOptions:  MethodOptions,
	engine.TokenPurge:    MethodPurge,
	engine.TokenPut:      MethodPut,
	engine.TokenTrace:    MethodTrace,
}

var methodNames = map[Method]string{
	MethodGet:      engine.TokenGet,
	MethodPost:     engine.TokenPost,
	MethodHead:     engine.TokenHead,
	MethodConnect:  engine.TokenConnect,
	MethodDelete:   engine.TokenDelete,
	MethodICPQuery: engine.TokenICPQuery,
	MethodOptions:  engine.TokenOptions,
	MethodPurge:    engine.TokenPurge,
	MethodPut:      engine.TokenPut,
	MethodTrace:    engine.TokenTrace,
}

// Token returns the wire token for the method, or "" for MethodUnknown.
func (m Method) Token() string {
	return methodNames[m]
}

func (m Method) String() string {
	if token, ok := methodNames[m]; ok {
		return token
	}
	return "UNKNOWN"
}

// MethodFromToken maps a raw engine token onto the enumerated set.
func MethodFromToken(token string) (Method, bool) {
	m, ok := methodTokens[token]
	return m, ok
}

// Version enumerates the protocol versions the facade distinguishes.
type Version int

const (
	VersionUnknown Version = iota
	Version09
	Version10
	Version11
)

func (v Version) String() string {
	switch v {
	case Version09:
		return "HTTP/0.9"
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	}
	return "HTTP/unknown"
}

// DecodeVersion maps the engine's major/minor pair onto the enumerated set.
func DecodeVersion(major, minor int) Version {
	switch {
	case major == 0 && minor == 9:
		return Version09
	case major == 1 && minor == 0:
		return Version10
	case major == 1 && minor == 1:
		return Version11
	}
	return VersionUnknown
}

// Major and Minor report the wire numbers for a version; unknown versions
// report 1.1 so standalone objects still serialize.
func (v Version) Major() int {
	if v == Version09 {
		return 0
	}
	return 1
}

func (v Version) Minor() int {
	switch v {
	case Version09:
		return 9
	case Version10:
		return 0
	}
	return 1
}
