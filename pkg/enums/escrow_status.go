package enums

import "slices"

// EscrowStatus tracks funds held between buyer payment and release to the dealer.
type EscrowStatus string

const (
	EscrowStatusCreated  EscrowStatus = "created"
	EscrowStatusFunded   EscrowStatus = "funded"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusCanceled EscrowStatus = "canceled"
)

var validEscrowStatuses = []EscrowStatus{
	EscrowStatusCreated,
	EscrowStatusFunded,
	EscrowStatusReleased,
	EscrowStatusRefunded,
	EscrowStatusCanceled,
}

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowStatusCreated: {EscrowStatusFunded, EscrowStatusCanceled},
	EscrowStatusFunded:  {EscrowStatusReleased, EscrowStatusRefunded},
}

// String implements fmt.Stringer.
func (s EscrowStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EscrowStatus.
func (s EscrowStatus) IsValid() bool {
	return slices.Contains(validEscrowStatuses, s)
}

// CanTransitionTo reports whether next is reachable from s.
func (s EscrowStatus) CanTransitionTo(next EscrowStatus) bool {
	return slices.Contains(escrowTransitions[s], next)
}

// ParseEscrowStatus converts raw input into an EscrowStatus.
func ParseEscrowStatus(value string) (EscrowStatus, error) {
	return parse("escrow status", validEscrowStatuses, value)
}
