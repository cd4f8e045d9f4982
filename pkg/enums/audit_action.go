package enums

import "slices"

// AuditAction names a privileged mutation recorded in audit_logs.
type AuditAction string

const (
	AuditListingApproved      AuditAction = "listing_approved"
	AuditListingRejected      AuditAction = "listing_rejected"
	AuditTransactionRefunded  AuditAction = "transaction_refunded"
	AuditEscrowReleased       AuditAction = "escrow_released"
	AuditTrackingStageUpdated AuditAction = "tracking_stage_updated"
	AuditJourneyTransitioned  AuditAction = "journey_transitioned"
)

var validAuditActions = []AuditAction{
	AuditListingApproved,
	AuditListingRejected,
	AuditTransactionRefunded,
	AuditEscrowReleased,
	AuditTrackingStageUpdated,
	AuditJourneyTransitioned,
}

// String implements fmt.Stringer.
func (a AuditAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known AuditAction.
func (a AuditAction) IsValid() bool {
	return slices.Contains(validAuditActions, a)
}

// ParseAuditAction converts raw input into an AuditAction.
func ParseAuditAction(value string) (AuditAction, error) {
	return parse("audit action", validAuditActions, value)
}

// AuditResourceType names the entity an audit entry refers to.
type AuditResourceType string

const (
	AuditResourceListing       AuditResourceType = "listing"
	AuditResourceTransaction   AuditResourceType = "transaction"
	AuditResourceEscrow        AuditResourceType = "escrow"
	AuditResourceTrackingStage AuditResourceType = "tracking_stage"
	AuditResourceDealJourney   AuditResourceType = "deal_journey"
)
