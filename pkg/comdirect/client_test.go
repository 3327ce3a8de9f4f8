package comdirect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBank struct {
	t *testing.T

	challengeKind  string
	rejectGrant    bool
	tanAttempts    int
	rejectFirstTan bool

	requestInfos []string
	sentinel     string
}

func (f *fakeBank) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(f.t, r.ParseForm())
		if f.rejectGrant {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid_grant"}`)
			return
		}
		token := "primary-token"
		if r.Form.Get("grant_type") == "cd_secondary" {
			assert.Equal(f.t, "primary-token", r.Form.Get("token"))
			token = "banking-token"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"refresh_token": "refresh",
			"expires_in":    599,
		})
	})

	mux.HandleFunc("GET /api/session/clients/user/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.recordRequestInfo(r)
		io.WriteString(w, `[{"identifier":"sess-uuid"}]`)
	})

	mux.HandleFunc("POST /api/session/clients/user/v1/sessions/sess-uuid/validate", func(w http.ResponseWriter, r *http.Request) {
		f.recordRequestInfo(r)
		info, _ := json.Marshal(map[string]any{
			"id":             "challenge-1",
			"typ":            f.challengeKind,
			"availableTypes": []string{f.challengeKind},
		})
		w.Header().Set("x-once-authentication-info", string(info))
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("PATCH /api/session/clients/user/v1/sessions/sess-uuid", func(w http.ResponseWriter, r *http.Request) {
		f.recordRequestInfo(r)
		f.tanAttempts++
		f.sentinel = r.Header.Get("x-once-authentication")
		var authInfo struct {
			ID string `json:"id"`
		}
		require.NoError(f.t, json.Unmarshal([]byte(r.Header.Get("x-once-authentication-info")), &authInfo))
		assert.Equal(f.t, "challenge-1", authInfo.ID)
		if f.rejectFirstTan && f.tanAttempts == 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/banking/v1/accounts/acc-1/transactions", func(w http.ResponseWriter, r *http.Request) {
		f.recordRequestInfo(r)
		assert.Equal(f.t, "BOOKED", r.URL.Query().Get("transactionState"))
		io.WriteString(w, `{"values":[
			{"reference":"REF1","bookingDate":"2026-03-17","amount":{"value":"-50.00","unit":"EUR"},
			 "creditor":{"holderName":"REWE Supermarkt"},"remittanceInfo":"01REWE SAGT DANKE\n02FILIALE 1234"},
			{"reference":"REF2","bookingDate":"2026-03-18","amount":{"value":"1200.00","unit":"EUR"},
			 "remitter":{"holderName":"ACME GmbH"},"remittanceInfo":"01GEHALT 03/2026"}
		]}`)
	})

	return mux
}

func (f *fakeBank) recordRequestInfo(r *http.Request) {
	f.requestInfos = append(f.requestInfos, r.Header.Get("x-http-request-info"))
}

func newTestClient(t *testing.T, bank *fakeBank) *Client {
	t.Helper()
	srv := httptest.NewServer(bank.handler())
	t.Cleanup(srv.Close)
	return New(log.New(io.Discard), WithBaseURL(srv.URL))
}

func testCreds() Credentials {
	return Credentials{ClientID: "cid", ClientSecret: "secret", Username: "user", Password: "pin"}
}

func TestHandshakeAndConfirm(t *testing.T) {
	bank := &fakeBank{t: t, challengeKind: "P_TAN_PUSH"}
	client := newTestClient(t, bank)

	hs, err := client.BeginHandshake(context.Background(), testCreds())
	require.NoError(t, err)
	assert.Equal(t, "P_TAN_PUSH", hs.ChallengeKind())
	assert.Equal(t, "challenge-1", hs.Challenge.ID)
	assert.Equal(t, "primary-token", hs.Tokens.AccessToken)

	pair, err := client.ConfirmChallenge(context.Background(), hs)
	require.NoError(t, err)
	assert.Equal(t, "banking-token", pair.AccessToken)
	assert.Equal(t, "000000", bank.sentinel, "push TAN sentinel must be sent exactly")

	// The session/request ID pair is generated once and echoed verbatim
	// on every call of the handshake.
	require.NotEmpty(t, bank.requestInfos)
	var info struct {
		ClientRequestID struct {
			SessionID string `json:"sessionId"`
			RequestID string `json:"requestId"`
		} `json:"clientRequestId"`
	}
	require.NoError(t, json.Unmarshal([]byte(bank.requestInfos[0]), &info))
	assert.Len(t, info.ClientRequestID.RequestID, 9)
	for _, v := range bank.requestInfos[1:] {
		assert.Equal(t, bank.requestInfos[0], v)
	}
}

func TestHandshakeUnsupportedChallenge(t *testing.T) {
	bank := &fakeBank{t: t, challengeKind: "P_TAN_PHOTO"}
	client := newTestClient(t, bank)

	_, err := client.BeginHandshake(context.Background(), testCreds())
	assert.ErrorIs(t, err, ErrUnsupportedChallenge)
}

func TestHandshakeInvalidCredentials(t *testing.T) {
	bank := &fakeBank{t: t, challengeKind: "P_TAN_PUSH", rejectGrant: true}
	client := newTestClient(t, bank)

	_, err := client.BeginHandshake(context.Background(), testCreds())
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestConfirmChallengeRejectedAllowsRetry(t *testing.T) {
	bank := &fakeBank{t: t, challengeKind: "P_TAN_PUSH", rejectFirstTan: true}
	client := newTestClient(t, bank)

	hs, err := client.BeginHandshake(context.Background(), testCreds())
	require.NoError(t, err)

	_, err = client.ConfirmChallenge(context.Background(), hs)
	assert.ErrorIs(t, err, ErrTanRejected)
	assert.Equal(t, "primary-token", hs.Tokens.AccessToken, "token pair survives a rejected TAN")

	// Retry from the challenge step, without a new credential exchange.
	pair, err := client.ConfirmChallenge(context.Background(), hs)
	require.NoError(t, err)
	assert.Equal(t, "banking-token", pair.AccessToken)
}

func TestFetchTransactions(t *testing.T) {
	bank := &fakeBank{t: t, challengeKind: "P_TAN_PUSH"}
	client := newTestClient(t, bank)

	hs, err := client.BeginHandshake(context.Background(), testCreds())
	require.NoError(t, err)
	_, err = client.ConfirmChallenge(context.Background(), hs)
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	txs, err := client.FetchTransactions(context.Background(), hs, "acc-1", from, to)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	debit := txs[0]
	assert.Equal(t, "REF1", debit.ID)
	assert.Equal(t, int64(-50000), debit.Amount.Milliunits())
	assert.Equal(t, "REWE Supermarkt", debit.Payee, "debit counterparty is the creditor")
	assert.Equal(t, "REWE SAGT DANKE\nFILIALE 1234", debit.Memo, "line prefixes stripped")
	assert.NotEmpty(t, debit.Raw)

	credit := txs[1]
	assert.Equal(t, "ACME GmbH", credit.Payee, "credit counterparty is the remitter")
	assert.Equal(t, int64(1200000), credit.Amount.Milliunits())
}

func TestFetchTransactionsSessionExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	client := New(log.New(io.Discard), WithBaseURL(srv.URL))
	hs := &Handshake{RequestInfo: NewRequestInfo()}

	_, err := client.FetchTransactions(context.Background(), hs, "acc-1", time.Now().AddDate(0, -1, 0), time.Now())
	assert.ErrorIs(t, err, ErrSessionExpired)
}
