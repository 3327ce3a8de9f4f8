package comdirect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dpfeiffer/comsync/pkg/models"
)

type transactionEntry struct {
	Reference     string `json:"reference"`
	TransactionID string `json:"transactionId"`
	BookingDate   string `json:"bookingDate"`
	Amount        struct {
		Value string `json:"value"`
		Unit  string `json:"unit"`
	} `json:"amount"`
	// The counterparty arrives under "remitter" for credits and
	// "creditor" for debits, depending on transaction direction.
	Remitter *struct {
		HolderName string `json:"holderName"`
	} `json:"remitter"`
	Creditor *struct {
		HolderName string `json:"holderName"`
	} `json:"creditor"`
	RemittanceInfo string `json:"remittanceInfo"`
}

// FetchTransactions retrieves the booked transactions of an account for
// the given date range and normalizes them into domain records: amounts
// become exact Money values, the counterparty is resolved by transaction
// direction and remittance line prefixes are stripped from the memo. The
// raw entry payload is kept on each record for audit.
func (c *Client) FetchTransactions(ctx context.Context, hs *Handshake, accountID string, from, to time.Time) ([]models.BankTransaction, error) {
	q := url.Values{
		"transactionState": {"BOOKED"},
		"min-bookingDate":  {from.Format("2006-01-02")},
		"max-bookingDate":  {to.Format("2006-01-02")},
	}
	path := bankingPath + "/" + url.PathEscape(accountID) + "/transactions?" + q.Encode()

	status, body, _, err := c.do(ctx, hs, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var envelope struct {
		Values []json.RawMessage `json:"values"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("transaction list: %v", err)}
	}

	txs := make([]models.BankTransaction, 0, len(envelope.Values))
	for i, raw := range envelope.Values {
		var entry transactionEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, &InvalidResponseError{Detail: fmt.Sprintf("transaction %d: %v", i, err)}
		}
		tx, err := entry.toBankTransaction(raw)
		if err != nil {
			return nil, &InvalidResponseError{Detail: fmt.Sprintf("transaction %d: %v", i, err)}
		}
		txs = append(txs, tx)
	}

	c.logger.Debug("fetched transactions", "account", accountID, "count", len(txs))
	return txs, nil
}

func (e transactionEntry) toBankTransaction(raw json.RawMessage) (models.BankTransaction, error) {
	date, err := time.Parse("2006-01-02", e.BookingDate)
	if err != nil {
		return models.BankTransaction{}, fmt.Errorf("booking date %q: %w", e.BookingDate, err)
	}
	amount, err := models.ParseMoney(e.Amount.Value, e.Amount.Unit)
	if err != nil {
		return models.BankTransaction{}, err
	}

	id := e.TransactionID
	if id == "" {
		id = e.Reference
	}
	if id == "" {
		return models.BankTransaction{}, fmt.Errorf("entry without reference or transactionId")
	}

	return models.BankTransaction{
		ID:          id,
		BookingDate: date,
		Amount:      amount,
		Payee:       e.payee(amount),
		Memo:        strings.TrimSpace(RemoveLineNumberPrefixes(e.RemittanceInfo)),
		Reference:   e.Reference,
		Raw:         raw,
	}, nil
}

// payee picks the counterparty by direction: for a debit the money went
// to the creditor, for a credit it came from the remitter. Falls back to
// whichever side is present.
func (e transactionEntry) payee(amount models.Money) string {
	remitter, creditor := "", ""
	if e.Remitter != nil {
		remitter = strings.TrimSpace(e.Remitter.HolderName)
	}
	if e.Creditor != nil {
		creditor = strings.TrimSpace(e.Creditor.HolderName)
	}
	if amount.IsNegative() {
		if creditor != "" {
			return creditor
		}
		return remitter
	}
	if remitter != "" {
		return remitter
	}
	return creditor
}
