package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dpfeiffer/comsync/pkg/executors"
	"github.com/dpfeiffer/comsync/pkg/models"
)

// dateParam decodes an optional "2006-01-02" date from a JSON string.
type dateParam struct {
	time.Time
}

func (d *dateParam) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	d.Time = t
	return nil
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// transactionResponse is the review surface's view of one transaction.
type transactionResponse struct {
	ID            string                     `json:"id"`
	Date          string                     `json:"date"`
	Amount        string                     `json:"amount"`
	Payee         string                     `json:"payee"`
	Memo          string                     `json:"memo"`
	Reference     string                     `json:"reference,omitempty"`
	Status        models.TransactionStatus   `json:"status"`
	CategoryID    string                     `json:"category_id,omitempty"`
	MatchedRuleID string                     `json:"matched_rule_id,omitempty"`
	Notes         string                     `json:"notes,omitempty"`
	Links         []models.ExternalLink      `json:"links,omitempty"`
	Duplicate     models.DuplicateStatus     `json:"duplicate"`
	Export        models.ExportStatus        `json:"export,omitempty"`
	Splits        []transactionSplitResponse `json:"splits,omitempty"`
}

type transactionSplitResponse struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo,omitempty"`
}

func transactionView(tx models.SyncTransaction) transactionResponse {
	resp := transactionResponse{
		ID:            tx.Bank.ID,
		Date:          tx.Bank.BookingDate.Format("2006-01-02"),
		Amount:        tx.Bank.Amount.String(),
		Payee:         tx.Payee(),
		Memo:          tx.Bank.Memo,
		Reference:     tx.Bank.Reference,
		Status:        tx.Status,
		CategoryID:    tx.CategoryID,
		MatchedRuleID: tx.MatchedRuleID,
		Notes:         tx.Notes,
		Links:         tx.Links,
		Duplicate:     tx.Duplicate,
		Export:        tx.Export,
	}
	for _, sp := range tx.Splits {
		resp.Splits = append(resp.Splits, transactionSplitResponse{
			CategoryID: sp.CategoryID,
			Amount:     sp.Amount.String(),
			Memo:       sp.Memo,
		})
	}
	return resp
}

func transactionViews(txs []models.SyncTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionView(tx))
	}
	return out
}

// reviewRequest is the PATCH body for a transaction under review. Absent
// fields leave the transaction unchanged; amounts arrive as decimal
// strings like "-12.50".
type reviewRequest struct {
	Status        *string             `json:"status"`
	CategoryID    *string             `json:"category_id"`
	PayeeOverride *string             `json:"payee_override"`
	Notes         *string             `json:"notes"`
	Splits        *[]reviewSplitEntry `json:"splits"`
}

type reviewSplitEntry struct {
	CategoryID string `json:"category_id"`
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
}

func (r reviewRequest) toUpdate(currency string) (executors.ReviewUpdate, error) {
	upd := executors.ReviewUpdate{
		CategoryID:    r.CategoryID,
		PayeeOverride: r.PayeeOverride,
		Notes:         r.Notes,
	}
	if r.Status != nil {
		status := models.TransactionStatus(strings.TrimSpace(*r.Status))
		upd.Status = &status
	}
	if r.Splits != nil {
		splits := make([]models.TransactionSplit, 0, len(*r.Splits))
		for i, entry := range *r.Splits {
			amount, err := models.ParseMoney(entry.Amount, currency)
			if err != nil {
				return executors.ReviewUpdate{}, fmt.Errorf("split %d: %w", i, err)
			}
			splits = append(splits, models.TransactionSplit{
				CategoryID: entry.CategoryID,
				Amount:     amount,
				Memo:       entry.Memo,
			})
		}
		upd.Splits = &splits
	}
	return upd, nil
}
