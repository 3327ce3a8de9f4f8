package ynab

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dpfeiffer/comsync/pkg/models"
)

func money(t *testing.T, s string) models.Money {
	t.Helper()
	m, err := models.ParseMoney(s, "EUR")
	require.NoError(t, err)
	return m
}

func exportableTx(t *testing.T, id string) models.SyncTransaction {
	return models.SyncTransaction{
		Bank: models.BankTransaction{
			ID:          id,
			BookingDate: time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC),
			Amount:      money(t, "-50.00"),
			Payee:       "REWE Markt",
			Memo:        "Kartenzahlung",
			Reference:   "REF-" + id,
		},
		Status:     models.StatusApproved,
		CategoryID: "cat-groceries",
	}
}

func TestBuildMemoAppendsReference(t *testing.T) {
	memo := BuildMemo("Kartenzahlung  REWE\nMarkt", "ABC123")
	assert.Equal(t, "Kartenzahlung REWE Markt, Ref: ABC123", memo)

	assert.Equal(t, "ABC123", models.ExtractReference(memo))
}

func TestBuildMemoEmptyParts(t *testing.T) {
	assert.Equal(t, "Ref: ABC", BuildMemo("", "ABC"))
	assert.Equal(t, "just a memo", BuildMemo("just a memo", ""))
	assert.Equal(t, "", BuildMemo("   ", ""))
}

func TestBuildMemoTruncatesFromFront(t *testing.T) {
	long := strings.Repeat("x", 400)
	memo := BuildMemo(long, "ABC123")

	assert.Len(t, []rune(memo), MemoLimit, "truncated memo hits the limit exactly")
	assert.True(t, strings.HasPrefix(memo, "..."), "truncation marker goes in front")
	assert.True(t, strings.HasSuffix(memo, ", Ref: ABC123"), "reference trailer survives intact")

	assert.Equal(t, "ABC123", models.ExtractReference(memo),
		"reference is still extractable after truncation")
}

func TestBuildMemoTruncatesWithoutReference(t *testing.T) {
	long := strings.Repeat("y", 300)
	memo := BuildMemo(long, "")
	assert.Len(t, []rune(memo), MemoLimit)
	assert.True(t, strings.HasPrefix(memo, "..."))
}

func TestBuildMemoOversizedReferenceStaysWithinLimit(t *testing.T) {
	ref := strings.Repeat("R", 2*MemoLimit)

	memo := BuildMemo("coffee", ref)
	assert.Len(t, []rune(memo), MemoLimit)
	assert.True(t, strings.HasSuffix(memo, strings.Repeat("R", 50)))

	memo = BuildMemo("", ref)
	assert.Len(t, []rune(memo), MemoLimit)
}

func TestFilterExportable(t *testing.T) {
	keep := exportableTx(t, "a")
	skipped := exportableTx(t, "b")
	skipped.Status = models.StatusSkipped
	uncategorized := exportableTx(t, "c")
	uncategorized.CategoryID = ""

	out := FilterExportable([]models.SyncTransaction{keep, skipped, uncategorized})
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Bank.ID)
}

func TestBuildPayload(t *testing.T) {
	tx := exportableTx(t, "tx1")
	tx.PayeeOverride = "REWE"

	p, err := BuildPayload("acct-1", tx)
	require.NoError(t, err)
	assert.Equal(t, "acct-1", p.AccountID)
	assert.Equal(t, "2026-03-17", p.Date)
	assert.Equal(t, int64(-50000), p.Amount)
	assert.Equal(t, "REWE", p.PayeeName, "review override wins over bank payee")
	assert.Equal(t, "cat-groceries", p.CategoryID)
	assert.Equal(t, "cleared", p.Cleared)
	assert.True(t, p.Approved)
	assert.Equal(t, "CS:tx1:2026-03-17", p.ImportID)
	assert.Empty(t, p.Subtransactions)
}

func TestBuildPayloadSplits(t *testing.T) {
	tx := exportableTx(t, "tx2")
	tx.CategoryID = ""
	tx.Splits = []models.TransactionSplit{
		{CategoryID: "cat-a", Amount: money(t, "-30.00"), Memo: "part a"},
		{CategoryID: "cat-b", Amount: money(t, "-20.00")},
	}

	p, err := BuildPayload("acct-1", tx)
	require.NoError(t, err)
	assert.Empty(t, p.CategoryID, "split transactions carry no top-level category")
	require.Len(t, p.Subtransactions, 2)
	assert.Equal(t, int64(-30000), p.Subtransactions[0].Amount)
	assert.Equal(t, "cat-a", p.Subtransactions[0].CategoryID)
	assert.Equal(t, "part a", p.Subtransactions[0].Memo)
	assert.Equal(t, int64(-20000), p.Subtransactions[1].Amount)
}

func TestBuildPayloadRejectsNonExportable(t *testing.T) {
	tx := exportableTx(t, "tx3")
	tx.Status = models.StatusSkipped
	_, err := BuildPayload("acct-1", tx)
	assert.Error(t, err)
}

// The ledger rejects string-encoded amounts, so the payload must always
// serialize amounts as bare JSON numbers.
func TestPayloadAmountSerializesAsNumber(t *testing.T) {
	tx := exportableTx(t, "tx4")
	p, err := BuildPayload("acct-1", tx)
	require.NoError(t, err)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"amount":-50000`)
	assert.NotContains(t, string(raw), `"amount":"-50000"`)
}
