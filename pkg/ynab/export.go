package ynab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dpfeiffer/comsync/pkg/models"
)

// MemoLimit is the ledger's memo field length limit in characters.
const MemoLimit = 200

const ellipsisMarker = "..."

// PayloadTransaction is the ledger's wire format for one transaction to
// create. Amount is an int64 so it always encodes as a JSON number: the
// ledger silently rejects string-encoded amounts.
type PayloadTransaction struct {
	AccountID       string                  `json:"account_id"`
	Date            string                  `json:"date"`
	Amount          int64                   `json:"amount"`
	PayeeName       string                  `json:"payee_name,omitempty"`
	CategoryID      string                  `json:"category_id,omitempty"`
	Memo            string                  `json:"memo,omitempty"`
	Cleared         string                  `json:"cleared"`
	Approved        bool                    `json:"approved"`
	ImportID        string                  `json:"import_id"`
	Subtransactions []PayloadSubtransaction `json:"subtransactions,omitempty"`
}

type PayloadSubtransaction struct {
	Amount     int64  `json:"amount"`
	CategoryID string `json:"category_id,omitempty"`
	Memo       string `json:"memo,omitempty"`
}

// ExportResult is the truthful outcome of one bulk-create call, derived
// from the response body rather than from what was sent.
type ExportResult struct {
	Sent               int
	Created            int
	CreatedIDs         []string
	CreatedImportIDs   []string
	DuplicateImportIDs []string
}

// FilterExportable returns the subset of transactions that belong in the
// export batch: not skipped, with either a single category or a valid
// split set. Everything else is excluded before any network call.
func FilterExportable(txs []models.SyncTransaction) []models.SyncTransaction {
	out := make([]models.SyncTransaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Exportable() {
			out = append(out, tx)
		}
	}
	return out
}

// BuildMemo prepares the export memo. Whitespace collapses to single
// spaces and the reference trailer is appended. Over the limit, the memo
// is truncated from the front with a leading ellipsis; the reference
// suffix must survive truncation so later syncs can still match on it.
func BuildMemo(memo, ref string) string {
	collapsed := strings.Join(strings.Fields(memo), " ")
	if ref == "" {
		return truncateFront(collapsed, "")
	}
	if collapsed == "" {
		return truncateFront("", models.ReferenceMarker+ref)
	}
	suffix := ", " + models.ReferenceMarker + ref
	return truncateFront(collapsed, suffix)
}

func truncateFront(memo, suffix string) string {
	combined := memo + suffix
	if len([]rune(combined)) <= MemoLimit {
		return combined
	}
	keep := MemoLimit - len([]rune(ellipsisMarker)) - len([]rune(suffix))
	if keep < 0 {
		// The suffix alone overflows the field; keep its tail so the
		// result still fits the limit.
		r := []rune(ellipsisMarker + suffix)
		return string(r[len(r)-MemoLimit:])
	}
	runes := []rune(memo)
	return ellipsisMarker + string(runes[len(runes)-keep:]) + suffix
}

// BuildPayload converts one reviewed transaction into the wire format.
// The caller is expected to have filtered with FilterExportable; a
// non-exportable transaction is an error here, not a silent skip.
func BuildPayload(accountID string, tx models.SyncTransaction) (PayloadTransaction, error) {
	if !tx.Exportable() {
		return PayloadTransaction{}, fmt.Errorf("transaction %s is not exportable", tx.Bank.ID)
	}
	p := PayloadTransaction{
		AccountID: accountID,
		Date:      tx.Bank.BookingDate.Format("2006-01-02"),
		Amount:    tx.Bank.Amount.Milliunits(),
		PayeeName: tx.Payee(),
		Memo:      BuildMemo(tx.Bank.Memo, tx.Bank.Reference),
		Cleared:   "cleared",
		Approved:  true,
		ImportID:  models.ImportID(tx.Bank.ID, tx.Bank.BookingDate),
	}
	if len(tx.Splits) > 0 {
		if err := models.ValidateSplits(tx.Bank.Amount, tx.Splits); err != nil {
			return PayloadTransaction{}, fmt.Errorf("transaction %s: %w", tx.Bank.ID, err)
		}
		for _, sp := range tx.Splits {
			p.Subtransactions = append(p.Subtransactions, PayloadSubtransaction{
				Amount:     sp.Amount.Milliunits(),
				CategoryID: sp.CategoryID,
				Memo:       sp.Memo,
			})
		}
	} else {
		p.CategoryID = tx.CategoryID
	}
	return p, nil
}

type createResponse struct {
	Data struct {
		Transactions []struct {
			ID       string `json:"id"`
			ImportID string `json:"import_id"`
		} `json:"transactions"`
		DuplicateImportIDs []string `json:"duplicate_import_ids"`
	} `json:"data"`
}

// CreateTransactions sends the bulk-create call. The created count is
// derived from the transactions array the ledger actually returns; the
// ledger silently drops transactions it recognizes as duplicates by
// import ID and reports them in duplicate_import_ids, which is surfaced
// separately and never conflated with successes.
func (c *Client) CreateTransactions(ctx context.Context, budgetID string, payloads []PayloadTransaction) (*ExportResult, error) {
	if len(payloads) == 0 {
		return &ExportResult{}, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(struct {
		Transactions []PayloadTransaction `json:"transactions"`
	}{payloads})
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/budgets/" + budgetID + "/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized:
		return nil, ErrUnauthorized
	case http.StatusNotFound:
		return nil, &BudgetNotFoundError{BudgetID: budgetID}
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{RetryAfter: retryAfter(resp.Header)}
	default:
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, data)}
	}

	var decoded createResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("create response: %v", err)}
	}

	result := &ExportResult{
		Sent:               len(payloads),
		Created:            len(decoded.Data.Transactions),
		DuplicateImportIDs: decoded.Data.DuplicateImportIDs,
	}
	for _, tx := range decoded.Data.Transactions {
		result.CreatedIDs = append(result.CreatedIDs, tx.ID)
		if tx.ImportID != "" {
			result.CreatedImportIDs = append(result.CreatedImportIDs, tx.ImportID)
		}
	}

	c.logger.Info("exported transactions",
		"sent", result.Sent, "created", result.Created, "duplicates", len(result.DuplicateImportIDs))
	return result, nil
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}
