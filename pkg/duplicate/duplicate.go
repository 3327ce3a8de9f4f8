// Package duplicate decides whether an incoming bank transaction already
// exists in the ledger. Three independent strategies run in strict
// priority order; the first success wins.
package duplicate

import (
	"fmt"
	"strings"

	"github.com/dpfeiffer/comsync/pkg/models"
)

// Config holds the fuzzy-match tolerances. The defaults are tunable
// parameters, not hard invariants.
type Config struct {
	DateToleranceDays          int
	AmountToleranceBasisPoints int64
}

func DefaultConfig() Config {
	return Config{
		DateToleranceDays:          1,
		AmountToleranceBasisPoints: 100, // 1%
	}
}

// Detect compares one bank transaction against the ledger transactions.
// Strategy order:
//  1. reference trailer in the ledger memo equals the bank reference
//     -> ConfirmedDuplicate
//  2. the ledger transaction's stored import ID equals the key this
//     system would generate for the bank transaction
//     -> ConfirmedDuplicate
//  3. date within tolerance, amount within tolerance and payees equal or
//     one containing the other (both required, case-insensitive)
//     -> PossibleDuplicate
func Detect(cfg Config, ledger []models.LedgerTransaction, tx models.BankTransaction) models.DuplicateStatus {
	if tx.Reference != "" {
		for _, lt := range ledger {
			if models.ExtractReference(lt.Memo) == tx.Reference {
				return models.DuplicateStatus{
					Kind:      models.ConfirmedDuplicate,
					Reference: tx.Reference,
					Details: models.MatchDetails{
						Strategy:            "reference",
						LedgerTransactionID: lt.ID,
						Note:                "memo reference trailer matches the bank reference",
					},
				}
			}
		}
	}

	importID := models.ImportID(tx.ID, tx.BookingDate)
	for _, lt := range ledger {
		if lt.ImportID != "" && lt.ImportID == importID {
			return models.DuplicateStatus{
				Kind:      models.ConfirmedDuplicate,
				Reference: importID,
				Details: models.MatchDetails{
					Strategy:            "import_id",
					LedgerTransactionID: lt.ID,
					Note:                "ledger import ID matches the recomputed key",
				},
			}
		}
	}

	for _, lt := range ledger {
		if fuzzyMatch(cfg, lt, tx) {
			return models.DuplicateStatus{
				Kind: models.PossibleDuplicate,
				Reason: fmt.Sprintf("same payee, amount within %d bp and date within %dd of ledger transaction",
					cfg.AmountToleranceBasisPoints, cfg.DateToleranceDays),
				Details: models.MatchDetails{
					Strategy:            "fuzzy",
					LedgerTransactionID: lt.ID,
					Note:                fmt.Sprintf("ledger date %s, amount %s", lt.Date.Format("2006-01-02"), lt.Amount),
				},
			}
		}
	}

	return models.DuplicateStatus{
		Kind:    models.NotDuplicate,
		Details: models.MatchDetails{Strategy: "none", Note: fmt.Sprintf("checked %d ledger transactions", len(ledger))},
	}
}

func fuzzyMatch(cfg Config, lt models.LedgerTransaction, tx models.BankTransaction) bool {
	dayDelta := lt.Date.Sub(tx.BookingDate).Hours() / 24
	if dayDelta < 0 {
		dayDelta = -dayDelta
	}
	if dayDelta > float64(cfg.DateToleranceDays) {
		return false
	}
	if !tx.Amount.WithinBasisPoints(lt.Amount, cfg.AmountToleranceBasisPoints) {
		return false
	}
	return payeeMatch(lt.Payee, tx.Payee)
}

// payeeMatch requires both sides to carry a payee; a missing payee
// disqualifies the fuzzy match entirely.
func payeeMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

// MarkDuplicates recomputes the DuplicateStatus of every transaction in
// the batch against the given ledger state. Only the DuplicateStatus
// field changes; category, status, splits and notes pass through
// untouched.
func MarkDuplicates(cfg Config, ledger []models.LedgerTransaction, txs []models.SyncTransaction) []models.SyncTransaction {
	out := make([]models.SyncTransaction, len(txs))
	for i, tx := range txs {
		tx.Duplicate = Detect(cfg, ledger, tx.Bank)
		out[i] = tx
	}
	return out
}
