package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateListing       OutboxAggregateType = "listing"
	AggregateTransaction   OutboxAggregateType = "transaction"
	AggregateEscrow        OutboxAggregateType = "escrow"
	AggregateTrackingStage OutboxAggregateType = "tracking_stage"
	AggregateDealJourney   OutboxAggregateType = "deal_journey"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateListing,
	AggregateTransaction,
	AggregateEscrow,
	AggregateTrackingStage,
	AggregateDealJourney,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", validAggregateTypes, value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventListingApproved      OutboxEventType = "listing_approved"
	EventListingRejected      OutboxEventType = "listing_rejected"
	EventTransactionCreated   OutboxEventType = "transaction_created"
	EventTransactionSucceeded OutboxEventType = "transaction_succeeded"
	EventTransactionFailed    OutboxEventType = "transaction_failed"
	EventTransactionRefunded  OutboxEventType = "transaction_refunded"
	EventEscrowCreated        OutboxEventType = "escrow_created"
	EventEscrowReleased       OutboxEventType = "escrow_released"
	EventEscrowCanceled       OutboxEventType = "escrow_canceled"
	EventTrackingStageUpdated OutboxEventType = "tracking_stage_updated"
	EventJourneyTransitioned  OutboxEventType = "journey_transitioned"
)

var validOutboxEventTypes = []OutboxEventType{
	EventListingApproved,
	EventListingRejected,
	EventTransactionCreated,
	EventTransactionSucceeded,
	EventTransactionFailed,
	EventTransactionRefunded,
	EventEscrowCreated,
	EventEscrowReleased,
	EventEscrowCanceled,
	EventTrackingStageUpdated,
	EventJourneyTransitioned,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", validOutboxEventTypes, value)
}

// OutboxDLQErrorReason records why the publisher gave up on an event.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var validOutboxDLQErrorReasons = []OutboxDLQErrorReason{
	OutboxDLQReasonMaxAttempts,
	OutboxDLQReasonNonRetryable,
}

func (r OutboxDLQErrorReason) IsValid() bool {
	return slices.Contains(validOutboxDLQErrorReasons, r)
}

// ParseOutboxDLQErrorReason converts a query filter into a reason.
func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	return parse("dead letter reason", validOutboxDLQErrorReasons, value)
}
