package enums

import "slices"

// TrackingStageType is one of the fixed shipment milestones. Declaration order
// is the canonical timeline order.
type TrackingStageType string

const (
	TrackingStagePayment       TrackingStageType = "payment"
	TrackingStageDocumentation TrackingStageType = "documentation"
	TrackingStageShipping      TrackingStageType = "shipping"
	TrackingStageCustoms       TrackingStageType = "customs"
	TrackingStageDelivery      TrackingStageType = "delivery"
)

// TrackingStageOrder lists every stage in timeline order.
var TrackingStageOrder = []TrackingStageType{
	TrackingStagePayment,
	TrackingStageDocumentation,
	TrackingStageShipping,
	TrackingStageCustoms,
	TrackingStageDelivery,
}

// String implements fmt.Stringer.
func (t TrackingStageType) String() string {
	return string(t)
}

// Index returns the position of t in TrackingStageOrder, or -1.
func (t TrackingStageType) Index() int {
	for i, candidate := range TrackingStageOrder {
		if candidate == t {
			return i
		}
	}
	return -1
}

// IsValid reports whether the value is a known TrackingStageType.
func (t TrackingStageType) IsValid() bool {
	return t.Index() >= 0
}

// ParseTrackingStageType converts raw input into a TrackingStageType.
func ParseTrackingStageType(value string) (TrackingStageType, error) {
	return parse("tracking stage", TrackingStageOrder, value)
}

// TrackingStageStatus tracks the progress of a single milestone.
type TrackingStageStatus string

const (
	TrackingStatusPending    TrackingStageStatus = "pending"
	TrackingStatusInProgress TrackingStageStatus = "in_progress"
	TrackingStatusCompleted  TrackingStageStatus = "completed"
	TrackingStatusFailed     TrackingStageStatus = "failed"
)

var validTrackingStatuses = []TrackingStageStatus{
	TrackingStatusPending,
	TrackingStatusInProgress,
	TrackingStatusCompleted,
	TrackingStatusFailed,
}

var trackingTransitions = map[TrackingStageStatus][]TrackingStageStatus{
	TrackingStatusPending:    {TrackingStatusInProgress, TrackingStatusCompleted},
	TrackingStatusInProgress: {TrackingStatusCompleted, TrackingStatusFailed},
	TrackingStatusFailed:     {TrackingStatusInProgress},
}

// String implements fmt.Stringer.
func (s TrackingStageStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TrackingStageStatus.
func (s TrackingStageStatus) IsValid() bool {
	return slices.Contains(validTrackingStatuses, s)
}

// CanTransitionTo reports whether next is reachable from s.
func (s TrackingStageStatus) CanTransitionTo(next TrackingStageStatus) bool {
	return slices.Contains(trackingTransitions[s], next)
}

// ParseTrackingStageStatus converts raw input into a TrackingStageStatus.
func ParseTrackingStageStatus(value string) (TrackingStageStatus, error) {
	return parse("tracking status", validTrackingStatuses, value)
}
