package enums

import "slices"

// TransactionStatus tracks the payment state of a buyer transaction.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSucceeded  TransactionStatus = "succeeded"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusProcessing,
	TransactionStatusSucceeded,
	TransactionStatusFailed,
	TransactionStatusRefunded,
}

// refunded and failed are terminal.
var transactionTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusPending:    {TransactionStatusProcessing, TransactionStatusSucceeded, TransactionStatusFailed},
	TransactionStatusProcessing: {TransactionStatusSucceeded, TransactionStatusFailed},
	TransactionStatusSucceeded:  {TransactionStatusRefunded},
}

// String implements fmt.Stringer.
func (s TransactionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known TransactionStatus.
func (s TransactionStatus) IsValid() bool {
	return slices.Contains(validTransactionStatuses, s)
}

// CanTransitionTo reports whether next is reachable from s.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return slices.Contains(transactionTransitions[s], next)
}

// ParseTransactionStatus converts raw input into a TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	return parse("transaction status", validTransactionStatuses, value)
}
