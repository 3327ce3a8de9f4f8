package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dpfeiffer/comsync/pkg/comdirect"
	"github.com/dpfeiffer/comsync/pkg/duplicate"
	"github.com/dpfeiffer/comsync/pkg/models"
	"github.com/dpfeiffer/comsync/pkg/rules"
)

// Begin starts a fresh sync session, replacing any previous one, and
// opens the bank handshake. On success the session awaits the user's TAN
// confirmation and the issued challenge kind is returned so the caller
// can tell the user where to look (push app, photoTAN, ...).
func (e *Executor) Begin(ctx context.Context) (models.SyncSession, string, error) {
	s := e.sessions.StartNewSession()
	e.setHandshake(nil)

	hs, err := e.bank.BeginHandshake(ctx)
	if err != nil {
		e.fail(s.ID, fmt.Sprintf("bank handshake: %v", err))
		return models.SyncSession{}, "", err
	}
	e.setHandshake(hs)

	if err := e.sessions.Transition(s.ID, models.SessionAwaitingBankAuth, models.SessionAwaitingTan); err != nil {
		return models.SyncSession{}, "", err
	}
	active, _ := e.sessions.Active()
	e.logger.Info("bank handshake opened", "session", s.ID, "challenge", hs.ChallengeKind())
	return active, hs.ChallengeKind(), nil
}

// ConfirmTan confirms the pending TAN challenge. A rejected or not yet
// approved TAN leaves the session in place so the user can try again;
// an expired challenge or a dead bank session is unrecoverable and fails
// the session.
func (e *Executor) ConfirmTan(ctx context.Context, sessionID string) error {
	if err := e.sessions.ValidateSessionStatus(sessionID, models.SessionAwaitingTan); err != nil {
		return err
	}
	hs := e.getHandshake()
	if hs == nil {
		e.fail(sessionID, "no bank handshake in flight")
		return errors.New("no bank handshake in flight")
	}

	if err := e.bank.ConfirmChallenge(ctx, hs); err != nil {
		if errors.Is(err, comdirect.ErrTanRejected) {
			e.logger.Warn("tan not accepted yet", "session", sessionID)
			return err
		}
		e.fail(sessionID, fmt.Sprintf("tan confirmation: %v", err))
		return err
	}

	return e.sessions.Transition(sessionID, models.SessionAwaitingTan, models.SessionFetchingTransactions)
}

// Fetch pulls the booked transactions for the configured date range,
// classifies them against the rule set, marks duplicates against the
// ledger, and moves the session into review. A zero from/to defaults to
// the last 30 days.
//
// A broken rule set aborts the fetch before anything is added to the
// session: the compile errors come back and the session stays in the
// fetching state, so the user can fix the rules file and retry without
// a new TAN.
func (e *Executor) Fetch(ctx context.Context, sessionID string, from, to time.Time) ([]error, error) {
	if err := e.sessions.ValidateSessionStatus(sessionID, models.SessionFetchingTransactions); err != nil {
		return nil, err
	}
	hs := e.getHandshake()
	if hs == nil {
		e.fail(sessionID, "no bank handshake in flight")
		return nil, errors.New("no bank handshake in flight")
	}

	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-defaultFetchWindow)
	}

	bankTxs, err := e.bank.FetchTransactions(ctx, hs, e.settings.BankAccountID, from, to)
	if err != nil {
		e.fail(sessionID, fmt.Sprintf("bank fetch: %v", err))
		return nil, err
	}

	ruleList, err := e.store.LoadRules()
	if err != nil {
		e.fail(sessionID, fmt.Sprintf("rules: %v", err))
		return nil, err
	}

	txs, ruleErrs := rules.ClassifyTransactions(ruleList, bankTxs)
	if len(ruleErrs) > 0 {
		for _, rerr := range ruleErrs {
			e.logger.Warn("broken rule", "session", sessionID, "err", rerr)
		}
		return ruleErrs, fmt.Errorf("%d classification rule(s) failed to compile", len(ruleErrs))
	}

	ledgerTxs, err := e.ledger.Transactions(ctx, e.settings.BudgetID, e.settings.AccountID, e.settings.Currency)
	if err != nil {
		e.fail(sessionID, fmt.Sprintf("ledger fetch: %v", err))
		return nil, err
	}
	txs = duplicate.MarkDuplicates(e.duplicateConfig(), ledgerTxs, txs)

	if err := e.sessions.AddTransactions(txs); err != nil {
		return nil, err
	}
	if err := e.sessions.Transition(sessionID, models.SessionFetchingTransactions, models.SessionReviewingTransactions); err != nil {
		return nil, err
	}

	e.logger.Info("transactions ready for review",
		"session", sessionID, "count", len(txs), "from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"))
	return nil, nil
}

func (e *Executor) duplicateConfig() duplicate.Config {
	cfg := duplicate.DefaultConfig()
	if e.settings.DateToleranceDays > 0 {
		cfg.DateToleranceDays = e.settings.DateToleranceDays
	}
	if e.settings.AmountToleranceBasisPoints > 0 {
		cfg.AmountToleranceBasisPoints = e.settings.AmountToleranceBasisPoints
	}
	return cfg
}
