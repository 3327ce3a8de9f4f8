// Package store persists the pieces of the pipeline that outlive a
// process: classification rules, sync settings, and completed session
// snapshots. Everything is plain YAML on disk so users can edit rules
// with a text editor and diff session history.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/dpfeiffer/comsync/pkg/models"
)

// Store is the persistence surface the pipeline depends on.
type Store interface {
	LoadRules() ([]models.Rule, error)
	SaveRules(rules []models.Rule) error
	LoadSettings() (models.Settings, error)
	PersistSession(session models.SyncSession, txs []models.SyncTransaction) error
}

const (
	rulesFile    = "rules.yaml"
	settingsFile = "settings.yaml"
	sessionsDir  = "sessions"
)

// FileStore keeps everything under one base directory:
//
//	<base>/rules.yaml
//	<base>/settings.yaml
//	<base>/sessions/<started>-<id>.yaml
type FileStore struct {
	base   string
	logger *log.Logger
}

func NewFileStore(base string, logger *log.Logger) *FileStore {
	return &FileStore{base: base, logger: logger}
}

type rulesDocument struct {
	Rules []models.Rule `yaml:"rules"`
}

// LoadRules reads the rules file. A missing file is an empty rule set,
// not an error; a first run has no rules yet.
func (s *FileStore) LoadRules() ([]models.Rule, error) {
	path := filepath.Join(s.base, rulesFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var doc rulesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
	}

	seen := map[string]bool{}
	for _, r := range doc.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %q has no id", r.Name)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
	}
	return doc.Rules, nil
}

// SaveRules writes the full rule set, replacing the previous file. The
// write goes through a temp file and rename so a crash cannot leave a
// half-written rules file behind.
func (s *FileStore) SaveRules(rules []models.Rule) error {
	data, err := yaml.Marshal(rulesDocument{Rules: rules})
	if err != nil {
		return err
	}
	return s.writeAtomic(filepath.Join(s.base, rulesFile), data)
}

// LoadSettings reads the settings file. Unlike rules, settings are
// required; the pipeline cannot run without a budget and account.
func (s *FileStore) LoadSettings() (models.Settings, error) {
	path := filepath.Join(s.base, settingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Settings{}, fmt.Errorf("failed to read settings file: %w", err)
	}

	var settings models.Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return models.Settings{}, fmt.Errorf("failed to parse settings yaml: %w", err)
	}
	if settings.BudgetID == "" {
		return models.Settings{}, fmt.Errorf("settings: budget_id is required")
	}
	if settings.AccountID == "" {
		return models.Settings{}, fmt.Errorf("settings: account_id is required")
	}
	return settings, nil
}

// sessionSnapshot is the on-disk record of one finished session.
type sessionSnapshot struct {
	Session      sessionRecord       `yaml:"session"`
	Transactions []transactionRecord `yaml:"transactions"`
}

type sessionRecord struct {
	ID               string    `yaml:"id"`
	StartedAt        time.Time `yaml:"started_at"`
	CompletedAt      time.Time `yaml:"completed_at,omitempty"`
	Status           string    `yaml:"status"`
	FailureReason    string    `yaml:"failure_reason,omitempty"`
	TransactionCount int       `yaml:"transaction_count"`
	ImportedCount    int       `yaml:"imported_count"`
	SkippedCount     int       `yaml:"skipped_count"`
}

type transactionRecord struct {
	ID         string                 `yaml:"id"`
	Date       string                 `yaml:"date"`
	Amount     string                 `yaml:"amount"`
	Payee      string                 `yaml:"payee,omitempty"`
	Memo       string                 `yaml:"memo,omitempty"`
	Reference  string                 `yaml:"reference,omitempty"`
	Status     string                 `yaml:"status"`
	CategoryID string                 `yaml:"category_id,omitempty"`
	RuleID     string                 `yaml:"rule_id,omitempty"`
	Notes      string                 `yaml:"notes,omitempty"`
	Links      []models.ExternalLink  `yaml:"links,omitempty"`
	Splits     []splitRecord          `yaml:"splits,omitempty"`
	Export     string                 `yaml:"export,omitempty"`
	Duplicate  models.DuplicateStatus `yaml:"duplicate"`
}

type splitRecord struct {
	CategoryID string `yaml:"category_id"`
	Amount     string `yaml:"amount"`
	Memo       string `yaml:"memo,omitempty"`
}

// PersistSession writes an audit snapshot of a session and its final
// transaction states. Called on completion and on failure; each session
// gets its own file named by start time and ID so history sorts by date.
func (s *FileStore) PersistSession(session models.SyncSession, txs []models.SyncTransaction) error {
	snap := sessionSnapshot{
		Session: sessionRecord{
			ID:               session.ID,
			StartedAt:        session.StartedAt,
			CompletedAt:      session.CompletedAt,
			Status:           string(session.Status),
			FailureReason:    session.FailureReason,
			TransactionCount: session.TransactionCount,
			ImportedCount:    session.ImportedCount,
			SkippedCount:     session.SkippedCount,
		},
	}
	for _, tx := range txs {
		rec := transactionRecord{
			ID:         tx.Bank.ID,
			Date:       tx.Bank.BookingDate.Format("2006-01-02"),
			Amount:     tx.Bank.Amount.String(),
			Payee:      tx.Payee(),
			Memo:       tx.Bank.Memo,
			Reference:  tx.Bank.Reference,
			Status:     string(tx.Status),
			CategoryID: tx.CategoryID,
			RuleID:     tx.MatchedRuleID,
			Notes:      tx.Notes,
			Links:      tx.Links,
			Export:     string(tx.Export),
			Duplicate:  tx.Duplicate,
		}
		for _, sp := range tx.Splits {
			rec.Splits = append(rec.Splits, splitRecord{
				CategoryID: sp.CategoryID,
				Amount:     sp.Amount.String(),
				Memo:       sp.Memo,
			})
		}
		snap.Transactions = append(snap.Transactions, rec)
	}

	data, err := yaml.Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Join(s.base, sessionsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s-%s.yaml", session.StartedAt.Format("2006-01-02T15-04-05"), session.ID)
	path := filepath.Join(dir, name)
	if err := s.writeAtomic(path, data); err != nil {
		return err
	}
	s.logger.Debug("persisted session snapshot", "path", path, "transactions", len(txs))
	return nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
