package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// BankTransaction is the immutable record of one raw transaction as
// fetched from the bank. It is created once and never mutated; review
// edits happen on the wrapping SyncTransaction.
type BankTransaction struct {
	ID          string
	BookingDate time.Time
	Amount      Money
	Payee       string
	Memo        string
	Reference   string
	// Raw keeps the bank's original payload for audit and debugging.
	Raw json.RawMessage
}

// TransactionStatus is the review lifecycle of a SyncTransaction.
type TransactionStatus string

const (
	StatusPending         TransactionStatus = "pending"
	StatusAutoCategorized TransactionStatus = "auto_categorized"
	StatusNeedsAttention  TransactionStatus = "needs_attention"
	StatusApproved        TransactionStatus = "approved"
	StatusSkipped         TransactionStatus = "skipped"
)

// ExportStatus records the outcome of the export attempt for one
// transaction.
type ExportStatus string

const (
	ExportNotAttempted ExportStatus = ""
	ExportImported     ExportStatus = "imported"
	ExportDuplicate    ExportStatus = "duplicate"
	ExportFailed       ExportStatus = "failed"
)

// DuplicateKind tags the DuplicateStatus variant.
type DuplicateKind string

const (
	NotDuplicate       DuplicateKind = "not_duplicate"
	PossibleDuplicate  DuplicateKind = "possible_duplicate"
	ConfirmedDuplicate DuplicateKind = "confirmed_duplicate"
)

// MatchDetails carries the structured evidence behind a duplicate verdict
// so the review surface can show why a transaction was flagged.
type MatchDetails struct {
	Strategy            string `json:"strategy" yaml:"strategy"`
	LedgerTransactionID string `json:"ledger_transaction_id,omitempty" yaml:"ledger_transaction_id,omitempty"`
	Note                string `json:"note,omitempty" yaml:"note,omitempty"`
}

// DuplicateStatus is a tagged variant: NotDuplicate, PossibleDuplicate
// with a reason, or ConfirmedDuplicate with the matched reference. Every
// variant keeps its match details.
type DuplicateStatus struct {
	Kind      DuplicateKind `json:"kind" yaml:"kind"`
	Reference string        `json:"reference,omitempty" yaml:"reference,omitempty"`
	Reason    string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Details   MatchDetails  `json:"details" yaml:"details"`
}

// ExternalLink points the reviewer at a third-party aggregator (e.g. a
// marketplace order page) for manual lookup before import.
type ExternalLink struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// TransactionSplit assigns a slice of the total amount to one category.
type TransactionSplit struct {
	CategoryID string `json:"category_id" yaml:"category_id"`
	Amount     Money  `json:"-" yaml:"-"`
	Memo       string `json:"memo,omitempty" yaml:"memo,omitempty"`
}

// ValidateSplits enforces the split invariants: at least two splits (a
// single split is just a category assignment) and the split amounts must
// sum exactly to the transaction total.
func ValidateSplits(total Money, splits []TransactionSplit) error {
	if len(splits) == 0 {
		return nil
	}
	if len(splits) < 2 {
		return fmt.Errorf("a split transaction needs at least two splits, got %d", len(splits))
	}
	sum := MoneyFromMilliunits(0, total.Currency())
	for i, sp := range splits {
		var err error
		sum, err = sum.Add(sp.Amount)
		if err != nil {
			return fmt.Errorf("split %d: %w", i, err)
		}
	}
	if !sum.Equal(total) {
		return fmt.Errorf("splits sum to %s but transaction total is %s", sum, total)
	}
	return nil
}

// SyncTransaction is the mutable working record the pipeline operates on.
// It is owned exclusively by the active sync session.
type SyncTransaction struct {
	Bank          BankTransaction
	Status        TransactionStatus
	CategoryID    string
	MatchedRuleID string
	PayeeOverride string
	Links         []ExternalLink
	Notes         string
	Duplicate     DuplicateStatus
	Export        ExportStatus
	Splits        []TransactionSplit
}

// Payee returns the effective payee for export: the review override when
// set, otherwise the bank's counterparty name.
func (t SyncTransaction) Payee() string {
	if t.PayeeOverride != "" {
		return t.PayeeOverride
	}
	return t.Bank.Payee
}

// Exportable reports whether the transaction belongs in the export batch:
// not skipped, and carrying either a single category or a valid split set.
// Category and splits are mutually exclusive; a transaction with both (or
// with a single split) is not exportable.
func (t SyncTransaction) Exportable() bool {
	if t.Status == StatusSkipped {
		return false
	}
	if len(t.Splits) > 0 {
		if t.CategoryID != "" || len(t.Splits) < 2 {
			return false
		}
		return ValidateSplits(t.Bank.Amount, t.Splits) == nil
	}
	return t.CategoryID != ""
}
