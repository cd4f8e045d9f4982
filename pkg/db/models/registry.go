package models

// All lists every persisted model, in dependency-free order, for sqlite
// schema creation in development and tests.
func All() []any {
	return []any{
		&User{},
		&Dealer{},
		&Listing{},
		&Transaction{},
		&Escrow{},
		&OrderTrackingStage{},
		&DealJourneyState{},
		&DealJourneyEvent{},
		&WorkflowTask{},
		&AuditLogEntry{},
		&NotificationDelivery{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
