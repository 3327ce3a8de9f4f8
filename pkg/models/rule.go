package models

import "time"

// PatternKind selects how a rule's pattern string is interpreted.
type PatternKind string

const (
	PatternExact    PatternKind = "exact"
	PatternContains PatternKind = "contains"
	PatternRegex    PatternKind = "regex"
)

// MatchField selects which transaction field the pattern runs against.
type MatchField string

const (
	FieldPayee    MatchField = "payee"
	FieldMemo     MatchField = "memo"
	FieldCombined MatchField = "combined"
)

// Rule is one user-defined classification rule. Rules are immutable
// configuration loaded at classification time; lower priority evaluates
// first and the first matching enabled rule wins.
type Rule struct {
	ID            string      `json:"id" yaml:"id"`
	Name          string      `json:"name" yaml:"name"`
	Pattern       string      `json:"pattern" yaml:"pattern"`
	Kind          PatternKind `json:"kind" yaml:"kind"`
	Field         MatchField  `json:"field" yaml:"field"`
	CategoryID    string      `json:"category_id" yaml:"category_id"`
	PayeeOverride string      `json:"payee_override,omitempty" yaml:"payee_override,omitempty"`
	Priority      int         `json:"priority" yaml:"priority"`
	Enabled       bool        `json:"enabled" yaml:"enabled"`
}

// Settings is the user configuration the persistence collaborator loads
// for the pipeline.
type Settings struct {
	BudgetID                   string `yaml:"budget_id"`
	AccountID                  string `yaml:"account_id"`
	BankAccountID              string `yaml:"bank_account_id"`
	Currency                   string `yaml:"currency"`
	DateToleranceDays          int    `yaml:"date_tolerance_days"`
	AmountToleranceBasisPoints int64  `yaml:"amount_tolerance_basis_points"`
}

// LedgerBudget mirrors a budget in the external ledger, identified by the
// ledger's own opaque ID.
type LedgerBudget struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
}

// LedgerAccount mirrors an account in the external ledger.
type LedgerAccount struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	OnBudget bool   `json:"on_budget"`
	Closed   bool   `json:"closed"`
}

// LedgerCategory mirrors a category in the external ledger.
type LedgerCategory struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Hidden    bool   `json:"hidden"`
}

// LedgerTransaction is the read-side mirror of a transaction that already
// exists in the ledger, used for duplicate detection.
type LedgerTransaction struct {
	ID       string
	Date     time.Time
	Amount   Money
	Payee    string
	Memo     string
	ImportID string
}
