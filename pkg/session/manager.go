// Package session owns the single active sync session and its
// transaction list. The Manager is an injectable store created by the
// composition root, never a package-level global, so tests can run in
// parallel with isolated instances.
package session

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dpfeiffer/comsync/pkg/models"
)

// Manager serializes all mutations of the active session behind one
// mutex. Transaction volumes are small (hundreds), so there is no need
// for finer-grained locking.
type Manager struct {
	logger *log.Logger

	mu      sync.Mutex
	session *models.SyncSession
	txs     []models.SyncTransaction
	index   map[string]int // bank transaction ID -> position in txs
}

func NewManager(logger *log.Logger) *Manager {
	return &Manager{logger: logger}
}

// StartNewSession atomically discards any existing session and its
// transactions and creates a fresh one awaiting bank authentication.
func (m *Manager) StartNewSession() models.SyncSession {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil {
		m.logger.Info("discarding previous session", "id", m.session.ID, "status", m.session.Status)
	}
	m.session = &models.SyncSession{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Status:    models.SessionAwaitingBankAuth,
	}
	m.txs = nil
	m.index = map[string]int{}
	return *m.session
}

// Active returns a snapshot of the current session, if any.
func (m *Manager) Active() (models.SyncSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return models.SyncSession{}, false
	}
	return *m.session, true
}

// ValidateSession checks that id names the active session.
func (m *Manager) ValidateSession(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateLocked(id)
}

// ValidateSessionStatus checks that id names the active session and that
// it currently is in the expected status.
func (m *Manager) ValidateSessionStatus(id string, expected models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateLocked(id); err != nil {
		return err
	}
	if m.session.Status != expected {
		return &InvalidSessionStateError{Expected: expected, Actual: m.session.Status}
	}
	return nil
}

// Transition moves the active session from one status to the next. The
// from status guards against concurrent pipeline steps racing each other.
func (m *Manager) Transition(id string, from, to models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateLocked(id); err != nil {
		return err
	}
	if m.session.Status != from {
		return &InvalidSessionStateError{Expected: from, Actual: m.session.Status}
	}
	if m.session.Status.Terminal() {
		return &InvalidSessionStateError{Expected: from, Actual: m.session.Status}
	}
	m.session.Status = to
	m.logger.Debug("session transition", "id", id, "from", from, "to", to)
	return nil
}

// AddTransactions appends to the active session's transaction list,
// upserting by bank transaction ID so re-adding the same transaction
// never duplicates it.
func (m *Manager) AddTransactions(txs []models.SyncTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ErrNoActiveSession
	}
	if m.session.Status.Terminal() {
		return &InvalidSessionStateError{Expected: models.SessionReviewingTransactions, Actual: m.session.Status}
	}
	for _, tx := range txs {
		m.upsertLocked(tx)
	}
	m.session.TransactionCount = len(m.txs)
	return nil
}

// GetTransaction returns the transaction with the given bank ID.
func (m *Manager) GetTransaction(id string) (models.SyncTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return models.SyncTransaction{}, ErrNoActiveSession
	}
	pos, ok := m.index[id]
	if !ok {
		return models.SyncTransaction{}, ErrTransactionNotFound
	}
	return m.txs[pos], nil
}

// Transactions returns a copy of the session's transaction list.
func (m *Manager) Transactions() ([]models.SyncTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrNoActiveSession
	}
	out := make([]models.SyncTransaction, len(m.txs))
	copy(out, m.txs)
	return out, nil
}

// UpdateTransaction upserts one transaction keyed by its bank ID.
func (m *Manager) UpdateTransaction(tx models.SyncTransaction) error {
	return m.UpdateTransactions([]models.SyncTransaction{tx})
}

// UpdateTransactions upserts a batch of transactions.
func (m *Manager) UpdateTransactions(txs []models.SyncTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ErrNoActiveSession
	}
	if m.session.Status.Terminal() {
		return &InvalidSessionStateError{Expected: models.SessionReviewingTransactions, Actual: m.session.Status}
	}
	for _, tx := range txs {
		m.upsertLocked(tx)
	}
	m.session.TransactionCount = len(m.txs)
	return nil
}

// GetStatusCounts tallies the review statuses for progress reporting.
func (m *Manager) GetStatusCounts() (map[models.TransactionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, ErrNoActiveSession
	}
	counts := map[models.TransactionStatus]int{}
	for _, tx := range m.txs {
		counts[tx.Status]++
	}
	return counts, nil
}

// CompleteSession recomputes the imported and skipped counts from the
// actual transaction states and moves the session to Completed. Counts
// are never set independently of the transaction list, so the session
// summary cannot lie about what happened.
func (m *Manager) CompleteSession(id string) (models.SyncSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateLocked(id); err != nil {
		return models.SyncSession{}, err
	}
	if m.session.Status.Terminal() {
		return models.SyncSession{}, &InvalidSessionStateError{Expected: models.SessionImportingToYnab, Actual: m.session.Status}
	}

	imported, skipped := 0, 0
	for _, tx := range m.txs {
		if tx.Export == models.ExportImported {
			imported++
		}
		if tx.Status == models.StatusSkipped {
			skipped++
		}
	}
	m.session.ImportedCount = imported
	m.session.SkippedCount = skipped
	m.session.TransactionCount = len(m.txs)
	m.session.Status = models.SessionCompleted
	m.session.CompletedAt = time.Now().UTC()

	m.logger.Info("session completed", "id", id, "imported", imported, "skipped", skipped, "total", len(m.txs))
	return *m.session, nil
}

// FailSession marks the active session as failed with a reason. Reachable
// from any non-terminal state.
func (m *Manager) FailSession(id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.validateLocked(id); err != nil {
		return err
	}
	if m.session.Status.Terminal() {
		return &InvalidSessionStateError{Expected: m.session.Status, Actual: m.session.Status}
	}
	m.session.Status = models.SessionFailed
	m.session.FailureReason = reason
	m.session.CompletedAt = time.Now().UTC()
	m.logger.Warn("session failed", "id", id, "reason", reason)
	return nil
}

func (m *Manager) validateLocked(id string) error {
	if m.session == nil {
		return ErrNoActiveSession
	}
	if m.session.ID != id {
		return &SessionNotFoundError{ID: id}
	}
	return nil
}

func (m *Manager) upsertLocked(tx models.SyncTransaction) {
	if pos, ok := m.index[tx.Bank.ID]; ok {
		m.txs[pos] = tx
		return
	}
	m.index[tx.Bank.ID] = len(m.txs)
	m.txs = append(m.txs, tx)
}
