package model

import "time"

type TransactionStatus string

const (
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// TransactionRecord is one immutable ledger entry for billing history and audit.
// (Provider, ExternalTxnID) is unique and doubles as the idempotency key.
type TransactionRecord struct {
	ID             string  // ULID, time sortable
	SubscriptionID *string // nil when the subscription could not be written
	UserEmail      string
	Provider       Provider
	ExternalTxnID  string
	GrossAmount    int64 // minor units
	Fee            int64
	NetAmount      int64
	Currency       string
	Status         TransactionStatus
	PaymentTime    time.Time
	Metadata       map[string]interface{}
	CreatedAt      time.Time
}
