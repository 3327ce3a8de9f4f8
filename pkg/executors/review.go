package executors

import (
	"fmt"

	"github.com/dpfeiffer/comsync/pkg/models"
)

// ReviewUpdate carries the review edits for one transaction. Nil fields
// are left unchanged.
type ReviewUpdate struct {
	Status        *models.TransactionStatus
	CategoryID    *string
	PayeeOverride *string
	Notes         *string
	Splits        *[]models.TransactionSplit
}

// reviewStatuses are the statuses a reviewer may set directly. The
// machine-assigned statuses (auto_categorized, needs_attention) only
// come out of classification.
var reviewStatuses = map[models.TransactionStatus]bool{
	models.StatusPending:  true,
	models.StatusApproved: true,
	models.StatusSkipped:  true,
}

// ReviewTransaction applies review edits to one transaction of the
// active session. Only valid while the session is in review; split edits
// are validated against the transaction total before anything is stored.
func (e *Executor) ReviewTransaction(sessionID, txID string, upd ReviewUpdate) (models.SyncTransaction, error) {
	if err := e.sessions.ValidateSessionStatus(sessionID, models.SessionReviewingTransactions); err != nil {
		return models.SyncTransaction{}, err
	}
	tx, err := e.sessions.GetTransaction(txID)
	if err != nil {
		return models.SyncTransaction{}, err
	}

	if upd.Status != nil {
		if !reviewStatuses[*upd.Status] {
			return models.SyncTransaction{}, fmt.Errorf("status %q cannot be set by review", *upd.Status)
		}
		tx.Status = *upd.Status
	}
	if upd.CategoryID != nil {
		tx.CategoryID = *upd.CategoryID
		if tx.CategoryID != "" {
			// Category and splits are mutually exclusive.
			tx.Splits = nil
		}
	}
	if upd.PayeeOverride != nil {
		tx.PayeeOverride = *upd.PayeeOverride
	}
	if upd.Notes != nil {
		tx.Notes = *upd.Notes
	}
	if upd.Splits != nil {
		splits := *upd.Splits
		if err := models.ValidateSplits(tx.Bank.Amount, splits); err != nil {
			return models.SyncTransaction{}, err
		}
		tx.Splits = splits
		if len(splits) > 0 {
			// Category and splits are mutually exclusive.
			tx.CategoryID = ""
		}
	}

	if err := e.sessions.UpdateTransaction(tx); err != nil {
		return models.SyncTransaction{}, err
	}
	return tx, nil
}
