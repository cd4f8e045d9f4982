package enums

import "testing"

func TestListingStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to ListingStatus
		ok       bool
	}{
		{ListingStatusPending, ListingStatusActive, true},
		{ListingStatusPending, ListingStatusRejected, true},
		{ListingStatusActive, ListingStatusSold, true},
		{ListingStatusSold, ListingStatusActive, true},
		{ListingStatusActive, ListingStatusRejected, false},
		{ListingStatusRejected, ListingStatusActive, false},
		{ListingStatusSold, ListingStatusPending, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestTransactionStatusTerminalStates(t *testing.T) {
	for _, next := range validTransactionStatuses {
		if TransactionStatusRefunded.CanTransitionTo(next) {
			t.Fatalf("refunded should be terminal, allowed -> %s", next)
		}
		if TransactionStatusFailed.CanTransitionTo(next) {
			t.Fatalf("failed should be terminal, allowed -> %s", next)
		}
	}
	if !TransactionStatusSucceeded.CanTransitionTo(TransactionStatusRefunded) {
		t.Fatal("succeeded -> refunded should be allowed")
	}
	if TransactionStatusPending.CanTransitionTo(TransactionStatusRefunded) {
		t.Fatal("pending -> refunded should be rejected")
	}
}

func TestTrackingStageOrder(t *testing.T) {
	want := []string{"payment", "documentation", "shipping", "customs", "delivery"}
	for i, stage := range TrackingStageOrder {
		if string(stage) != want[i] {
			t.Fatalf("position %d: expected %s got %s", i, want[i], stage)
		}
		if stage.Index() != i {
			t.Fatalf("index of %s: expected %d got %d", stage, i, stage.Index())
		}
	}
	if TrackingStageType("pickup").IsValid() {
		t.Fatal("unknown stage should be invalid")
	}
}

func TestTrackingStatusTransitions(t *testing.T) {
	if !TrackingStatusFailed.CanTransitionTo(TrackingStatusInProgress) {
		t.Fatal("failed stages should be retryable")
	}
	if TrackingStatusCompleted.CanTransitionTo(TrackingStatusInProgress) {
		t.Fatal("completed stages should be final")
	}
}

func TestJourneyTransitions(t *testing.T) {
	cases := []struct {
		from, to DealJourneyState
		ok       bool
	}{
		{JourneyStateLead, JourneyStateQualification, true},
		{JourneyStateLead, JourneyStatePayment, true},
		{JourneyStatePayment, JourneyStateQuote, false},
		{JourneyStateQuote, JourneyStateQuote, false},
		{JourneyStateQuote, JourneyStateLost, true},
		{JourneyStateDelivered, JourneyStateLost, false},
		{JourneyStateShipping, JourneyStateRefunded, true},
		{JourneyStateDeposit, JourneyStateRefunded, false},
		{JourneyStateLost, JourneyStateLead, false},
		{JourneyStateRefunded, JourneyStateDelivered, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestParseCurrencyNormalizes(t *testing.T) {
	c, err := ParseCurrency(" jpy ")
	if err != nil || c != CurrencyJPY {
		t.Fatalf("expected JPY, got %q err=%v", c, err)
	}
	if _, err := ParseCurrency("XYZ"); err == nil {
		t.Fatal("expected unknown currency error")
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	reason, err := ParseOutboxDLQErrorReason("max_attempts")
	if err != nil || reason != OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts, got %q err=%v", reason, err)
	}
	_, err = ParseOutboxDLQErrorReason("timeout")
	if err == nil || err.Error() != `invalid dead letter reason "timeout"` {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := ParseListingStatus("Active"); err == nil {
		t.Fatal("listing status parsing is case sensitive")
	}
}
