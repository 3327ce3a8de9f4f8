// Package ynab wraps the YNAB API: the official-ish SDK serves the read
// side (budgets, accounts, categories, existing transactions) while the
// bulk-create call is spoken directly on the wire, where the export
// contract needs subtransactions, duplicate_import_ids and strict
// numeric amount encoding.
package ynab

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/account"
	"github.com/brunomvsouza/ynab.go/api/budget"
	"github.com/brunomvsouza/ynab.go/api/category"
	"github.com/brunomvsouza/ynab.go/api/transaction"
	"github.com/charmbracelet/log"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/dpfeiffer/comsync/pkg/models"
)

const (
	defaultBaseURL     = "https://api.ynab.com/v1"
	defaultRetryAfter  = time.Hour
	taxonomyCacheTTL   = 5 * time.Minute
	taxonomyCacheSweep = 10 * time.Minute
)

// Narrow views of the SDK's read services, so tests can stub the read
// side without a live API.
type budgetReader interface {
	GetBudgets() ([]*budget.Summary, error)
}

type accountReader interface {
	GetAccounts(budgetID string, f *api.Filter) (*account.SearchResultSnapshot, error)
}

type categoryReader interface {
	GetCategories(budgetID string, f *api.Filter) (*category.SearchResultSnapshot, error)
}

type transactionReader interface {
	GetTransactionsByAccount(budgetID, accountID string, f *transaction.Filter) ([]*transaction.Transaction, error)
}

// Client talks to the YNAB API. Safe for concurrent use.
type Client struct {
	budgets      budgetReader
	accounts     accountReader
	categories   categoryReader
	transactions transactionReader

	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  *log.Logger
}

type Option func(*Client)

// WithBaseURL overrides the wire endpoint of the bulk-create call,
// mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(token string, logger *log.Logger, opts ...Option) *Client {
	sdk := ynab.NewClient(token)
	c := &Client{
		budgets:      sdk.Budget(),
		accounts:     sdk.Account(),
		categories:   sdk.Category(),
		transactions: sdk.Transaction(),

		token:   token,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		// YNAB allows 200 requests per hour; stay well under it.
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 5),
		cache:   cache.New(taxonomyCacheTTL, taxonomyCacheSweep),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budgets lists the budgets visible to the token.
func (c *Client) Budgets(ctx context.Context) ([]models.LedgerBudget, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	summaries, err := c.budgets.GetBudgets()
	if err != nil {
		return nil, mapSDKError(err, "")
	}
	out := make([]models.LedgerBudget, 0, len(summaries))
	for _, b := range summaries {
		lb := models.LedgerBudget{ID: b.ID, Name: b.Name}
		if b.CurrencyFormat != nil {
			lb.Currency = b.CurrencyFormat.ISOCode
		}
		out = append(out, lb)
	}
	return out, nil
}

// Accounts lists the accounts of a budget, cached for a few minutes.
func (c *Client) Accounts(ctx context.Context, budgetID string) ([]models.LedgerAccount, error) {
	key := "accounts:" + budgetID
	if v, ok := c.cache.Get(key); ok {
		return v.([]models.LedgerAccount), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	snapshot, err := c.accounts.GetAccounts(budgetID, nil)
	if err != nil {
		return nil, mapSDKError(err, budgetID)
	}
	out := make([]models.LedgerAccount, 0, len(snapshot.Accounts))
	for _, a := range snapshot.Accounts {
		out = append(out, models.LedgerAccount{
			ID:       a.ID,
			Name:     a.Name,
			Type:     string(a.Type),
			OnBudget: a.OnBudget,
			Closed:   a.Closed,
		})
	}
	c.cache.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

// Categories lists the categories of a budget flattened across groups,
// cached for a few minutes. Internal/reserved groups arrive without a
// categories key at all; they are treated as empty, not as an error.
func (c *Client) Categories(ctx context.Context, budgetID string) ([]models.LedgerCategory, error) {
	key := "categories:" + budgetID
	if v, ok := c.cache.Get(key); ok {
		return v.([]models.LedgerCategory), nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	snapshot, err := c.categories.GetCategories(budgetID, nil)
	if err != nil {
		return nil, mapSDKError(err, budgetID)
	}
	var out []models.LedgerCategory
	for _, group := range snapshot.GroupWithCategories {
		if group == nil {
			continue
		}
		for _, cat := range group.Categories {
			out = append(out, models.LedgerCategory{
				ID:        cat.ID,
				Name:      cat.Name,
				GroupID:   group.ID,
				GroupName: group.Name,
				Hidden:    cat.Hidden,
			})
		}
	}
	c.cache.Set(key, out, cache.DefaultExpiration)
	return out, nil
}

// Transactions returns the transactions already present in the ledger
// account, as duplicate-detection input. currency annotates the amounts;
// the wire format carries milliunits without a unit.
func (c *Client) Transactions(ctx context.Context, budgetID, accountID, currency string) ([]models.LedgerTransaction, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	remote, err := c.transactions.GetTransactionsByAccount(budgetID, accountID, nil)
	if err != nil {
		return nil, mapSDKError(err, budgetID)
	}
	out := make([]models.LedgerTransaction, 0, len(remote))
	for _, rt := range remote {
		lt := models.LedgerTransaction{
			ID:     rt.ID,
			Date:   rt.Date.Time,
			Amount: models.MoneyFromMilliunits(rt.Amount, currency),
		}
		if rt.PayeeName != nil {
			lt.Payee = *rt.PayeeName
		}
		if rt.Memo != nil {
			lt.Memo = *rt.Memo
		}
		if rt.ImportID != nil {
			lt.ImportID = *rt.ImportID
		}
		out = append(out, lt)
	}
	return out, nil
}

// mapSDKError translates the SDK's API error into the package taxonomy.
func mapSDKError(err error, budgetID string) error {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ID {
	case "401":
		return ErrUnauthorized
	case "404.2", "404":
		return &BudgetNotFoundError{BudgetID: budgetID}
	case "429":
		return &RateLimitError{RetryAfter: defaultRetryAfter}
	}
	return &InvalidResponseError{Detail: apiErr.Detail}
}
