// Package guard authorizes requests: it resolves the session, evaluates the
// required permissions and adapts the outcome to page or API responses.
package guard

import (
	"github.com/nia-ro/workdesk/internal/identity"
)

// Outcome tags a Decision.
type Outcome int

const (
	Authorized Outcome = iota
	Unauthenticated
	Forbidden
	Unavailable
)

func (o Outcome) String() string {
	switch o {
	case Authorized:
		return "authorized"
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case Unavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Decision is the result of authorizing one request. Principal is set for
// Authorized and Forbidden, Reason for Unauthenticated, Err for Unavailable.
type Decision struct {
	Outcome   Outcome
	Principal identity.Principal
	Reason    identity.Reason
	Err       error
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool {
	return d.Outcome == Authorized
}

// ActorID returns the principal uid when one was resolved.
func (d Decision) ActorID() string {
	if d.Outcome == Authorized || d.Outcome == Forbidden {
		return d.Principal.UID
	}
	return ""
}
