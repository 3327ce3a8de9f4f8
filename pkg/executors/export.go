package executors

import (
	"context"
	"fmt"

	"github.com/dpfeiffer/comsync/pkg/models"
	"github.com/dpfeiffer/comsync/pkg/ynab"
)

// Export sends the exportable transactions of the active session to the
// ledger and completes the session. Per-transaction outcomes come from
// the ledger's response: only transactions the ledger reports as created
// are marked imported, ones it recognized by import ID are marked
// duplicate, and anything else that was sent is marked failed.
func (e *Executor) Export(ctx context.Context, sessionID string) (models.SyncSession, *ynab.ExportResult, error) {
	if err := e.sessions.Transition(sessionID, models.SessionReviewingTransactions, models.SessionImportingToYnab); err != nil {
		return models.SyncSession{}, nil, err
	}

	txs, err := e.sessions.Transactions()
	if err != nil {
		return models.SyncSession{}, nil, err
	}
	exportable := ynab.FilterExportable(txs)

	payloads := make([]ynab.PayloadTransaction, 0, len(exportable))
	sent := make([]models.SyncTransaction, 0, len(exportable))
	for _, tx := range exportable {
		p, err := ynab.BuildPayload(e.settings.AccountID, tx)
		if err != nil {
			tx.Export = models.ExportFailed
			if uerr := e.sessions.UpdateTransaction(tx); uerr != nil {
				return models.SyncSession{}, nil, uerr
			}
			e.logger.Warn("transaction excluded from export", "id", tx.Bank.ID, "err", err)
			continue
		}
		payloads = append(payloads, p)
		sent = append(sent, tx)
	}

	result, err := e.ledger.CreateTransactions(ctx, e.settings.BudgetID, payloads)
	if err != nil {
		e.fail(sessionID, fmt.Sprintf("ledger export: %v", err))
		return models.SyncSession{}, nil, err
	}

	created := map[string]bool{}
	for _, id := range result.CreatedImportIDs {
		created[id] = true
	}
	dupes := map[string]bool{}
	for _, id := range result.DuplicateImportIDs {
		dupes[id] = true
	}

	for _, tx := range sent {
		importID := models.ImportID(tx.Bank.ID, tx.Bank.BookingDate)
		switch {
		case created[importID]:
			tx.Export = models.ExportImported
		case dupes[importID]:
			tx.Export = models.ExportDuplicate
		default:
			tx.Export = models.ExportFailed
		}
		if err := e.sessions.UpdateTransaction(tx); err != nil {
			return models.SyncSession{}, nil, err
		}
	}

	done, err := e.sessions.CompleteSession(sessionID)
	if err != nil {
		return models.SyncSession{}, nil, err
	}

	finalTxs, _ := e.sessions.Transactions()
	if err := e.store.PersistSession(done, finalTxs); err != nil {
		e.logger.Warn("could not persist session snapshot", "id", sessionID, "err", err)
	}

	e.setHandshake(nil)
	return done, result, nil
}
