// Package errs defines the error-kind taxonomy shared by every component of
// the decision engine. Workers classify failures into one of these kinds so
// that the propagation policy (log-and-continue, fail-fast, or documented
// block) is decided at a single place rather than re-derived from error
// strings at each call site.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies the category of a domain error.
type Kind int

const (
	// KindValidation marks a malformed inbound payload. Maps to HTTP 400;
	// the record is dropped, not retried.
	KindValidation Kind = iota
	// KindTransientBroker marks an order rejection or connection blip at
	// the broker. Callers decide whether to retry; read-only queries fall
	// back to a stale-or-default value with a warning instead.
	KindTransientBroker
	// KindConfig marks missing credentials or a corrupt score
	// configuration. Fatal at startup.
	KindConfig
	// KindPersistence marks a database failure. Logged; risk checks treat
	// it as a pass so a sick database cannot also block trading.
	KindPersistence
	// KindExternalPolicyBlock is not a failure: a documented "blocked"
	// result (news window, market closed, risk gate) carried on the
	// decision record for audit.
	KindExternalPolicyBlock
	// KindInvariantViolation marks a detected state inconsistency (e.g. a
	// stop-loss found on the wrong side of entry after break-even). The
	// offending update is skipped; the next tick re-attempts from the
	// corrected state.
	KindInvariantViolation
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransientBroker:
		return "transient_broker"
	case KindConfig:
		return "config"
	case KindPersistence:
		return "persistence"
	case KindExternalPolicyBlock:
		return "external_policy_block"
	case KindInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and an optional human-readable
// reason, used throughout the pipeline instead of ad hoc error strings.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an *Error of the given kind.
func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// Wrap creates an *Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// Is reports whether err (or something it wraps) is a domain *Error of kind.
func Is(err error, kind Kind) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind == kind
	}
	return false
}

// Validation is a convenience constructor for KindValidation.
func Validation(reason string) *Error { return New(KindValidation, reason) }

// TransientBroker is a convenience constructor for KindTransientBroker.
func TransientBroker(reason string, err error) *Error {
	return Wrap(KindTransientBroker, reason, err)
}

// Config is a convenience constructor for KindConfig.
func Config(reason string, err error) *Error { return Wrap(KindConfig, reason, err) }

// Persistence is a convenience constructor for KindPersistence.
func Persistence(reason string, err error) *Error { return Wrap(KindPersistence, reason, err) }

// InvariantViolation is a convenience constructor for KindInvariantViolation.
func InvariantViolation(reason string) *Error { return New(KindInvariantViolation, reason) }

// Blocked represents an ExternalPolicyBlock outcome: not an error in the Go
// sense, a documented reason a check declined to proceed. RiskGate and its
// sibling guards return this instead of a bare bool so the reason survives
// into the decision record.
type Blocked struct {
	Reason string
}

// Block constructs a Blocked result with the given human-readable reason.
func Block(reason string, args ...interface{}) Blocked {
	if len(args) > 0 {
		return Blocked{Reason: fmt.Sprintf(reason, args...)}
	}
	return Blocked{Reason: reason}
}

// IsBlocked reports whether b carries a block reason.
func (b Blocked) IsBlocked() bool { return b.Reason != "" }
