// Package apperr carries the error taxonomy shared by the attestation
// flow: handlers branch on Kind instead of sniffing message strings.
package apperr

import "fmt"

type Kind int

const (
	// Configuration: schema not found/invalid, chain not configured.
	// The corresponding action is disabled, never retried.
	Configuration Kind = iota
	// Cancellation: the signer declined; informational, not a failure.
	Cancellation
	// Encoding: schema/value mismatch, raised before any side effect.
	Encoding
	// Relay: relay or transport failure; no state was mirrored.
	Relay
	// Reconciliation: database and chain disagree; callers fall back
	// to the conservative disabled state.
	Reconciliation
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration"
	case Cancellation:
		return "cancellation"
	case Encoding:
		return "encoding"
	case Relay:
		return "relay"
	case Reconciliation:
		return "reconciliation"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf reports the kind of err, or ok=false for untagged errors.
func KindOf(err error) (Kind, bool) {
	for err != nil {
		if ae, ok := err.(*Error); ok {
			return ae.Kind, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

// IsKind reports whether err is tagged with kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
