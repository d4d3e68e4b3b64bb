package analysis

import "errors"

var (
	// ErrTransport covers network failures and non-configuration collaborator errors.
	ErrTransport = errors.New("analysis transport failure")
	// ErrSchema means the collaborator answered but the body broke the field contract.
	ErrSchema = errors.New("analysis response violates schema")
	// ErrConfiguration means no credential is available for the collaborator.
	ErrConfiguration = errors.New("analysis credential not configured")
	// ErrInvalidInput means the request cannot produce a meaningful analysis.
	ErrInvalidInput = errors.New("analysis input invalid")
)

// Operation names used in errors and logs.
const (
	OpAnalyzeProfile = "analyze_profile"
	OpAnalyzeChat    = "analyze_chat"
	OpSelect         = "select_transport"
)

// Error is the concrete failure returned by every Client.
// It unwraps to both its Kind sentinel and the underlying cause.
type Error struct {
	Op     string
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op string, kind error, reason string, cause error) *Error {
	return &Error{Op: op, Kind: kind, Reason: reason, Err: cause}
}
