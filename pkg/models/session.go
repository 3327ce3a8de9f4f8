package models

import "time"

// SessionStatus is the pipeline state machine over a SyncSession.
type SessionStatus string

const (
	SessionAwaitingBankAuth      SessionStatus = "awaiting_bank_auth"
	SessionAwaitingTan           SessionStatus = "awaiting_tan"
	SessionFetchingTransactions  SessionStatus = "fetching_transactions"
	SessionReviewingTransactions SessionStatus = "reviewing_transactions"
	SessionImportingToYnab       SessionStatus = "importing_to_ynab"
	SessionCompleted             SessionStatus = "completed"
	SessionFailed                SessionStatus = "failed"
)

// Terminal reports whether no further mutation is accepted.
func (s SessionStatus) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SyncSession is the single active run of the pipeline. Exactly one
// session exists at a time; starting a new one discards the previous
// session's in-memory transactions.
type SyncSession struct {
	ID               string        `json:"id" yaml:"id"`
	StartedAt        time.Time     `json:"started_at" yaml:"started_at"`
	CompletedAt      time.Time     `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status           SessionStatus `json:"status" yaml:"status"`
	FailureReason    string        `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	TransactionCount int           `json:"transaction_count" yaml:"transaction_count"`
	ImportedCount    int           `json:"imported_count" yaml:"imported_count"`
	SkippedCount     int           `json:"skipped_count" yaml:"skipped_count"`
}
