// Package executors orchestrates the sync pipeline: bank handshake, TAN
// confirmation, fetch and classification, review edits, and the final
// export to the ledger. It owns no protocol details; those live in the
// bank and ledger clients it composes.
package executors

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dpfeiffer/comsync/pkg/models"
	"github.com/dpfeiffer/comsync/pkg/session"
	"github.com/dpfeiffer/comsync/pkg/store"
	"github.com/dpfeiffer/comsync/pkg/ynab"
)

// BankHandshake is the opaque in-flight authentication state of a bank
// client between the credential exchange and the TAN confirmation.
type BankHandshake interface {
	ChallengeKind() string
}

// BankClient abstracts the bank side of the pipeline. The comdirect
// adapter is the only implementation today; the interface exists so the
// pipeline and its tests never touch bank protocol types.
type BankClient interface {
	BeginHandshake(ctx context.Context) (BankHandshake, error)
	ConfirmChallenge(ctx context.Context, hs BankHandshake) error
	FetchTransactions(ctx context.Context, hs BankHandshake, accountID string, from, to time.Time) ([]models.BankTransaction, error)
}

// LedgerClient abstracts the ledger side.
type LedgerClient interface {
	Budgets(ctx context.Context) ([]models.LedgerBudget, error)
	Accounts(ctx context.Context, budgetID string) ([]models.LedgerAccount, error)
	Categories(ctx context.Context, budgetID string) ([]models.LedgerCategory, error)
	Transactions(ctx context.Context, budgetID, accountID, currency string) ([]models.LedgerTransaction, error)
	CreateTransactions(ctx context.Context, budgetID string, payloads []ynab.PayloadTransaction) (*ynab.ExportResult, error)
}

// defaultFetchWindow is how far back the fetch reaches when the caller
// does not name a date range.
const defaultFetchWindow = 30 * 24 * time.Hour

type Executor struct {
	logger   *log.Logger
	sessions *session.Manager
	bank     BankClient
	ledger   LedgerClient
	store    store.Store
	settings models.Settings

	mu        sync.Mutex
	handshake BankHandshake
}

func New(logger *log.Logger, sessions *session.Manager, bank BankClient, ledger LedgerClient, st store.Store, settings models.Settings) *Executor {
	return &Executor{
		logger:   logger,
		sessions: sessions,
		bank:     bank,
		ledger:   ledger,
		store:    st,
		settings: settings,
	}
}

// Budgets exposes the ledger's budget list for setup surfaces.
func (e *Executor) Budgets(ctx context.Context) ([]models.LedgerBudget, error) {
	return e.ledger.Budgets(ctx)
}

// Accounts exposes the ledger's account list for setup surfaces.
func (e *Executor) Accounts(ctx context.Context, budgetID string) ([]models.LedgerAccount, error) {
	return e.ledger.Accounts(ctx, budgetID)
}

// Categories exposes the ledger's category list for the review surface.
func (e *Executor) Categories(ctx context.Context, budgetID string) ([]models.LedgerCategory, error) {
	return e.ledger.Categories(ctx, budgetID)
}

// Session returns a snapshot of the active session.
func (e *Executor) Session() (models.SyncSession, bool) {
	return e.sessions.Active()
}

// StatusCounts tallies the active session's review statuses.
func (e *Executor) StatusCounts() (map[models.TransactionStatus]int, error) {
	return e.sessions.GetStatusCounts()
}

// Transactions returns the active session's transaction list.
func (e *Executor) Transactions() ([]models.SyncTransaction, error) {
	return e.sessions.Transactions()
}

func (e *Executor) setHandshake(hs BankHandshake) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handshake = hs
}

func (e *Executor) getHandshake() BankHandshake {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handshake
}

// fail marks the session failed and persists the snapshot for the audit
// trail. Persistence errors are logged, not returned; the failure that
// got us here is the error the caller needs.
func (e *Executor) fail(id, reason string) {
	txs, _ := e.sessions.Transactions()
	if err := e.sessions.FailSession(id, reason); err != nil {
		e.logger.Warn("could not mark session failed", "id", id, "err", err)
		return
	}
	if s, ok := e.sessions.Active(); ok {
		if err := e.store.PersistSession(s, txs); err != nil {
			e.logger.Warn("could not persist failed session", "id", id, "err", err)
		}
	}
}
