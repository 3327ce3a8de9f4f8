// Package server exposes the sync pipeline over HTTP for a local review
// UI. It is a thin translation layer: decode, call the executor, encode.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"github.com/dpfeiffer/comsync/pkg/comdirect"
	"github.com/dpfeiffer/comsync/pkg/executors"
	"github.com/dpfeiffer/comsync/pkg/models"
	"github.com/dpfeiffer/comsync/pkg/session"
	"github.com/dpfeiffer/comsync/pkg/ynab"
)

// Server handles HTTP requests for the sync pipeline.
type Server struct {
	logger   *log.Logger
	exec     *executors.Executor
	settings models.Settings
	router   chi.Router
}

// New creates a new HTTP server around an executor.
func New(logger *log.Logger, exec *executors.Executor, settings models.Settings) *Server {
	s := &Server{
		logger:   logger,
		exec:     exec,
		settings: settings,
		router:   chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.router.Use(s.withLogging)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/sessions", s.handleStartSession)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Post("/sessions/{sessionID}/tan", s.handleConfirmTan)
		r.Post("/sessions/{sessionID}/fetch", s.handleFetch)
		r.Get("/sessions/{sessionID}/counts", s.handleCounts)
		r.Get("/sessions/{sessionID}/transactions", s.handleListTransactions)
		r.Patch("/sessions/{sessionID}/transactions/{txID}", s.handleReviewTransaction)
		r.Post("/sessions/{sessionID}/export", s.handleExport)

		r.Get("/budgets", s.handleBudgets)
		r.Get("/budgets/{budgetID}/accounts", s.handleAccounts)
		r.Get("/budgets/{budgetID}/categories", s.handleCategories)
	})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sess, challenge, err := s.exec.Begin(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"session":   sess,
		"challenge": challenge,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.exec.Session()
	if !ok || sess.ID != chi.URLParam(r, "sessionID") {
		s.respondError(w, r, http.StatusNotFound, "session not found", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) handleConfirmTan(w http.ResponseWriter, r *http.Request) {
	if err := s.exec.ConfirmTan(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	sess, _ := s.exec.Session()
	s.writeJSON(w, http.StatusOK, map[string]any{"session": sess})
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		From dateParam `json:"from"`
		To   dateParam `json:"to"`
	}
	if err := decodeOptional(r, &body); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ruleErrs, err := s.exec.Fetch(r.Context(), chi.URLParam(r, "sessionID"), body.From.Time, body.To.Time)
	if err != nil {
		if len(ruleErrs) > 0 {
			// The session is still fetchable; report every broken rule so
			// the user can fix the rules file and retry.
			msgs := make([]string, 0, len(ruleErrs))
			for _, rerr := range ruleErrs {
				msgs = append(msgs, rerr.Error())
			}
			s.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"status":      "error",
				"error":       err.Error(),
				"rule_errors": msgs,
			})
			return
		}
		s.respondDomainError(w, r, err)
		return
	}

	sess, _ := s.exec.Session()
	txs, err := s.exec.Transactions()
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session":      sess,
		"transactions": transactionViews(txs),
	})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	if err := s.requireSession(r); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	counts, err := s.exec.StatusCounts()
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if err := s.requireSession(r); err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	txs, err := s.exec.Transactions()
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transactions": transactionViews(txs)})
}

func (s *Server) handleReviewTransaction(w http.ResponseWriter, r *http.Request) {
	var body reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	upd, err := body.toUpdate(s.settings.Currency)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error(), nil)
		return
	}

	tx, err := s.exec.ReviewTransaction(chi.URLParam(r, "sessionID"), chi.URLParam(r, "txID"), upd)
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"transaction": transactionView(tx)})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, result, err := s.exec.Export(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"result": map[string]any{
			"sent":                 result.Sent,
			"created":              result.Created,
			"duplicate_import_ids": result.DuplicateImportIDs,
		},
	})
}

func (s *Server) handleBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.exec.Budgets(r.Context())
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"budgets": budgets})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.exec.Accounts(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.exec.Categories(r.Context(), chi.URLParam(r, "budgetID"))
	if err != nil {
		s.respondDomainError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *Server) requireSession(r *http.Request) error {
	sess, ok := s.exec.Session()
	if !ok {
		return session.ErrNoActiveSession
	}
	if sess.ID != chi.URLParam(r, "sessionID") {
		return &session.SessionNotFoundError{ID: chi.URLParam(r, "sessionID")}
	}
	return nil
}

// --- helpers ---

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// respondDomainError maps pipeline errors onto HTTP statuses.
func (s *Server) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound  *session.SessionNotFoundError
		stateErr  *session.InvalidSessionStateError
		rateErr   *ynab.RateLimitError
		budgetErr *ynab.BudgetNotFoundError
	)
	switch {
	case errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrTransactionNotFound),
		errors.As(err, &notFound):
		s.respondError(w, r, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &stateErr):
		s.respondError(w, r, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, comdirect.ErrTanRejected):
		// Not final: the user can approve the push TAN and retry.
		s.respondError(w, r, http.StatusConflict, "tan not confirmed yet", err)
	case errors.Is(err, comdirect.ErrInvalidCredentials):
		s.respondError(w, r, http.StatusUnauthorized, "bank rejected the credentials", err)
	case errors.Is(err, ynab.ErrUnauthorized):
		s.respondError(w, r, http.StatusUnauthorized, "ledger rejected the token", err)
	case errors.As(err, &budgetErr):
		s.respondError(w, r, http.StatusNotFound, err.Error(), nil)
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rateErr.RetryAfter.Seconds())))
		s.respondError(w, r, http.StatusTooManyRequests, err.Error(), nil)
	default:
		s.respondError(w, r, http.StatusBadGateway, "upstream request failed", err)
	}
}

// withLogging logs request start and recovers panics.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
