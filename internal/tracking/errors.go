package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"

	"paraderos-agent/internal/location"
	"paraderos-agent/internal/reporting"
)

// Kind classifies every failure the tracking subsystem can see
type Kind int

const (
	KindUnexpected Kind = iota
	KindPermissionDenied
	KindSessionAbsent
	KindConnectError
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindSessionAbsent:
		return "session_absent"
	case KindConnectError:
		return "connect_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unexpected"
	}
}

// Policy is what happens to a failure of a given kind
type Policy int

const (
	// PolicyLog writes the failure to the log and nothing else
	PolicyLog Policy = iota
	// PolicyIgnore treats the failure as an expected state
	PolicyIgnore
	// PolicySurfaceOnce shows a notice to the user at the moment it happens
	PolicySurfaceOnce
)

func (k Kind) Policy() Policy {
	switch k {
	case KindPermissionDenied:
		return PolicySurfaceOnce
	case KindSessionAbsent:
		return PolicyIgnore
	default:
		return PolicyLog
	}
}

// Error is a classified tracking failure
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies an arbitrary error
func KindOf(err error) Kind {
	var te *Error
	switch {
	case err == nil:
		return KindUnexpected
	case errors.As(err, &te):
		return te.Kind
	case errors.Is(err, location.ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, reporting.ErrNoToken), errors.Is(err, reporting.ErrNoUser):
		return KindSessionAbsent
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindUnexpected
	}
}

// kindOfReport maps a failed report outcome to its kind
func kindOfReport(r reporting.Result) Kind {
	switch r.Outcome {
	case reporting.OutcomeTimeout:
		return KindTimeout
	case reporting.OutcomeConnectError:
		return KindConnectError
	case reporting.OutcomeRejected:
		return KindSessionAbsent
	default:
		return KindUnexpected
	}
}

// logFailure applies the logging side of a kind's policy. Surfacing to the
// user is the controller's job.
func logFailure(tag string, err *Error) {
	switch err.Kind.Policy() {
	case PolicyIgnore:
		log.Printf("📴 [%s] %s, skipping", tag, err)
	default:
		log.Printf("❌ [%s] %s", tag, err)
	}
}
