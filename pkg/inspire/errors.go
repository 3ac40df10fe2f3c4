package inspire

import (
	"errors"
	"fmt"
)

// ErrorKind is the classification of an API failure. The vendor
// multiplexes everything over one endpoint and reports problems
// through status codes, so callers branch on the kind rather than on
// HTTP semantics.
type ErrorKind int

const (
	// KindAPI covers protocol-level failures: malformed XML, missing
	// expected fields such as an absent session key after connect.
	KindAPI ErrorKind = iota
	// KindAuth covers bad credentials and expired session keys.
	KindAuth
	// KindConnection covers transport failures: timeouts, refused
	// connections, non-2xx responses.
	KindConnection
	// KindRateLimit is the server-side throttling signal, distinct
	// from the client's own request pacing.
	KindRateLimit
	// KindDevice covers unusable targets: unknown device ids,
	// disconnected gateways or units.
	KindDevice
)

func (k ErrorKind) String() string {
	switch k {
	case KindAPI:
		return "api error"
	case KindAuth:
		return "authentication error"
	case KindConnection:
		return "connection error"
	case KindRateLimit:
		return "rate limit error"
	case KindDevice:
		return "device error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", k)
	}
}

// Error is the error type returned by all client operations that reach
// the network. Code carries the vendor status code when the failure
// came from a status envelope, zero otherwise.
type Error struct {
	Kind    ErrorKind
	Code    int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Kind, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an API error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// Validation errors. These are raised before any network activity and
// are deliberately not *Error values: nothing was classified because
// nothing was sent.
var (
	ErrTemperatureOutOfRange = errors.New("temperature must be between 10 and 30 degrees")
	ErrInvalidFunction       = errors.New("function must be between 1 (Off) and 6 (Boost)")
)

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func newStatusError(kind ErrorKind, code int, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func wrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}
