// Package gate translates session state into a tri-state access decision.
package gate

import "github.com/avolkov/skycart/internal/model"

// Decision is the access state consumed wherever cart access is gated.
type Decision int

const (
	// Unknown means session hydration is in progress; callers must not treat
	// this as denial.
	Unknown Decision = iota
	// Denied means hydration finished with no active identity.
	Denied
	// Allowed means hydration finished and an identity is active.
	Allowed
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	switch d {
	case Unknown:
		return "unknown"
	case Denied:
		return "denied"
	case Allowed:
		return "allowed"
	default:
		return "invalid"
	}
}

// Decide is a pure function of the session store's (loading, user) pair.
// Safe to call on every render.
func Decide(loading bool, user *model.User) Decision {
	if loading {
		return Unknown
	}
	if user == nil {
		return Denied
	}
	return Allowed
}
