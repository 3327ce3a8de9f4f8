package session

import (
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpfeiffer/comsync/pkg/models"
)

func newManager() *Manager {
	return NewManager(log.New(io.Discard))
}

func syncTx(id string, status models.TransactionStatus) models.SyncTransaction {
	m, _ := models.ParseMoney("-10.00", "EUR")
	return models.SyncTransaction{
		Bank: models.BankTransaction{
			ID:          id,
			BookingDate: time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
			Amount:      m,
		},
		Status: status,
	}
}

func TestStartNewSessionDiscardsPrevious(t *testing.T) {
	m := newManager()

	first := m.StartNewSession()
	require.NoError(t, m.AddTransactions([]models.SyncTransaction{syncTx("a", models.StatusPending)}))

	second := m.StartNewSession()
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.SessionAwaitingBankAuth, second.Status)

	txs, err := m.Transactions()
	require.NoError(t, err)
	assert.Empty(t, txs, "previous session's transactions are discarded")

	assert.Error(t, m.ValidateSession(first.ID))
}

func TestNoActiveSessionErrors(t *testing.T) {
	m := newManager()

	err := m.AddTransactions([]models.SyncTransaction{syncTx("a", models.StatusPending)})
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = m.GetStatusCounts()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestValidateSessionStatus(t *testing.T) {
	m := newManager()
	s := m.StartNewSession()

	assert.NoError(t, m.ValidateSessionStatus(s.ID, models.SessionAwaitingBankAuth))

	err := m.ValidateSessionStatus(s.ID, models.SessionReviewingTransactions)
	var stateErr *InvalidSessionStateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, models.SessionReviewingTransactions, stateErr.Expected)
	assert.Equal(t, models.SessionAwaitingBankAuth, stateErr.Actual)

	err = m.ValidateSessionStatus("bogus", models.SessionAwaitingBankAuth)
	var notFound *SessionNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestTransitionGuardsFromStatus(t *testing.T) {
	m := newManager()
	s := m.StartNewSession()

	require.NoError(t, m.Transition(s.ID, models.SessionAwaitingBankAuth, models.SessionAwaitingTan))

	err := m.Transition(s.ID, models.SessionAwaitingBankAuth, models.SessionAwaitingTan)
	var stateErr *InvalidSessionStateError
	assert.ErrorAs(t, err, &stateErr)
}

func TestUpsertNeverDuplicates(t *testing.T) {
	m := newManager()
	m.StartNewSession()

	require.NoError(t, m.AddTransactions([]models.SyncTransaction{
		syncTx("a", models.StatusPending),
		syncTx("b", models.StatusPending),
	}))

	edited := syncTx("a", models.StatusApproved)
	edited.CategoryID = "c1"
	require.NoError(t, m.UpdateTransaction(edited))

	// Updating an unknown ID inserts it.
	require.NoError(t, m.UpdateTransaction(syncTx("c", models.StatusPending)))

	txs, err := m.Transactions()
	require.NoError(t, err)
	assert.Len(t, txs, 3)

	got, err := m.GetTransaction("a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "c1", got.CategoryID)

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, 3, active.TransactionCount)
}

func TestGetStatusCounts(t *testing.T) {
	m := newManager()
	m.StartNewSession()
	require.NoError(t, m.AddTransactions([]models.SyncTransaction{
		syncTx("a", models.StatusPending),
		syncTx("b", models.StatusApproved),
		syncTx("c", models.StatusApproved),
		syncTx("d", models.StatusSkipped),
	}))

	counts, err := m.GetStatusCounts()
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatusPending])
	assert.Equal(t, 2, counts[models.StatusApproved])
	assert.Equal(t, 1, counts[models.StatusSkipped])
}

func TestCompleteSessionRecomputesCounts(t *testing.T) {
	m := newManager()
	s := m.StartNewSession()

	a := syncTx("a", models.StatusApproved)
	a.Export = models.ExportImported
	b := syncTx("b", models.StatusApproved)
	b.Export = models.ExportImported
	c := syncTx("c", models.StatusSkipped)
	require.NoError(t, m.AddTransactions([]models.SyncTransaction{a, b, c}))

	done, err := m.CompleteSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, done.Status)
	assert.Equal(t, 2, done.ImportedCount)
	assert.Equal(t, 1, done.SkippedCount)
	assert.Equal(t, 3, done.TransactionCount)
	assert.False(t, done.CompletedAt.IsZero())
}

func TestTerminalSessionRejectsMutation(t *testing.T) {
	m := newManager()
	s := m.StartNewSession()
	require.NoError(t, m.FailSession(s.ID, "bank unreachable"))

	active, ok := m.Active()
	require.True(t, ok)
	assert.Equal(t, models.SessionFailed, active.Status)
	assert.Equal(t, "bank unreachable", active.FailureReason)

	err := m.AddTransactions([]models.SyncTransaction{syncTx("a", models.StatusPending)})
	var stateErr *InvalidSessionStateError
	assert.ErrorAs(t, err, &stateErr)

	_, err = m.CompleteSession(s.ID)
	assert.ErrorAs(t, err, &stateErr)

	assert.Error(t, m.FailSession(s.ID, "again"), "failed is terminal")
}
