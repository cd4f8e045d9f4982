package enums

import "slices"

// DealJourneyState is the current pipeline position of a buyer/listing deal.
type DealJourneyState string

const (
	JourneyStateLead          DealJourneyState = "LEAD"
	JourneyStateQualification DealJourneyState = "QUALIFICATION"
	JourneyStateQuote         DealJourneyState = "QUOTE"
	JourneyStateDeposit       DealJourneyState = "DEPOSIT"
	JourneyStatePayment       DealJourneyState = "PAYMENT"
	JourneyStateShipping      DealJourneyState = "SHIPPING"
	JourneyStateDelivered     DealJourneyState = "DELIVERED"
	JourneyStateLost          DealJourneyState = "LOST"
	JourneyStateRefunded      DealJourneyState = "REFUNDED"
)

// JourneyPipeline lists the funnel stages in order. LOST and REFUNDED sit
// outside the funnel.
var JourneyPipeline = []DealJourneyState{
	JourneyStateLead,
	JourneyStateQualification,
	JourneyStateQuote,
	JourneyStateDeposit,
	JourneyStatePayment,
	JourneyStateShipping,
	JourneyStateDelivered,
}

var validJourneyStates = append(append([]DealJourneyState{}, JourneyPipeline...), JourneyStateLost, JourneyStateRefunded)

// String implements fmt.Stringer.
func (s DealJourneyState) String() string {
	return string(s)
}

// PipelineIndex returns the funnel position of s, or -1 for off-pipeline states.
func (s DealJourneyState) PipelineIndex() int {
	for i, candidate := range JourneyPipeline {
		if candidate == s {
			return i
		}
	}
	return -1
}

// IsTerminal reports whether no further transitions are possible.
func (s DealJourneyState) IsTerminal() bool {
	return s == JourneyStateLost || s == JourneyStateRefunded
}

// IsValid reports whether the value is a known DealJourneyState.
func (s DealJourneyState) IsValid() bool {
	return slices.Contains(validJourneyStates, s)
}

// CanTransitionTo reports whether next is reachable from s: forward along the
// pipeline, any live deal to LOST, and paid deals to REFUNDED.
func (s DealJourneyState) CanTransitionTo(next DealJourneyState) bool {
	if s.IsTerminal() || s == next {
		return false
	}
	switch next {
	case JourneyStateLost:
		return s != JourneyStateDelivered
	case JourneyStateRefunded:
		return s == JourneyStatePayment || s == JourneyStateShipping || s == JourneyStateDelivered
	}
	from, to := s.PipelineIndex(), next.PipelineIndex()
	return from >= 0 && to > from
}

// ParseDealJourneyState converts raw input into a DealJourneyState.
func ParseDealJourneyState(value string) (DealJourneyState, error) {
	return parse("deal journey state", validJourneyStates, value)
}

// JourneyEventType names an entry in the append-only deal journey log.
type JourneyEventType string

const (
	JourneyEventCreated           JourneyEventType = "journey_created"
	JourneyEventCheckoutInitiated JourneyEventType = "checkout_initiated"
	JourneyEventEscrowCreated     JourneyEventType = "escrow_created"
	JourneyEventPaymentSucceeded  JourneyEventType = "payment_succeeded"
	JourneyEventPaymentFailed     JourneyEventType = "payment_failed"
	JourneyEventShipmentStarted   JourneyEventType = "shipment_started"
	JourneyEventDelivered         JourneyEventType = "delivered"
	JourneyEventRefunded          JourneyEventType = "refunded"
	JourneyEventManualTransition  JourneyEventType = "manual_transition"
	JourneyEventTaskCompleted     JourneyEventType = "task_completed"
)

var validJourneyEventTypes = []JourneyEventType{
	JourneyEventCreated,
	JourneyEventCheckoutInitiated,
	JourneyEventEscrowCreated,
	JourneyEventPaymentSucceeded,
	JourneyEventPaymentFailed,
	JourneyEventShipmentStarted,
	JourneyEventDelivered,
	JourneyEventRefunded,
	JourneyEventManualTransition,
	JourneyEventTaskCompleted,
}

// IsValid reports whether the value is a known JourneyEventType.
func (e JourneyEventType) IsValid() bool {
	return slices.Contains(validJourneyEventTypes, e)
}

// WorkflowTaskStatus tracks an agent task attached to a deal journey.
type WorkflowTaskStatus string

const (
	WorkflowTaskOpen      WorkflowTaskStatus = "open"
	WorkflowTaskCompleted WorkflowTaskStatus = "completed"
	WorkflowTaskCanceled  WorkflowTaskStatus = "canceled"
)

// IsValid reports whether the value is a known WorkflowTaskStatus.
func (s WorkflowTaskStatus) IsValid() bool {
	switch s {
	case WorkflowTaskOpen, WorkflowTaskCompleted, WorkflowTaskCanceled:
		return true
	}
	return false
}
