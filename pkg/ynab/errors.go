package ynab

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnauthorized = errors.New("ynab: unauthorized")

// BudgetNotFoundError reports an unknown budget ID.
type BudgetNotFoundError struct {
	BudgetID string
}

func (e *BudgetNotFoundError) Error() string {
	return fmt.Sprintf("ynab: budget %q not found", e.BudgetID)
}

// RateLimitError surfaces the ledger's rate limit to the caller instead
// of retrying silently. RetryAfter is the wait the caller should honour;
// when the API does not send a Retry-After header it defaults to the
// documented one-hour request window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("ynab: rate limit exceeded, retry after %ds", int(e.RetryAfter.Seconds()))
}

// InvalidResponseError is a response that fails structural decoding or an
// unexpected status.
type InvalidResponseError struct {
	Detail string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("ynab: invalid response: %s", e.Detail)
}
