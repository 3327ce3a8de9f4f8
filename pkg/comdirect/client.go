// Package comdirect implements the comdirect REST protocol: the OAuth
// password-grant token exchange, the push-TAN session handshake and
// transaction retrieval. Header and field names follow the bank's
// contract bit-for-bit; do not "clean them up".
package comdirect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	defaultBaseURL = "https://api.comdirect.de"

	tokenPath    = "/oauth/token"
	sessionsPath = "/api/session/clients/user/v1/sessions"
	bankingPath  = "/api/banking/v1/accounts"

	requestInfoHeader  = "x-http-request-info"
	onceAuthInfoHeader = "x-once-authentication-info"
	onceAuthHeader     = "x-once-authentication"

	// challengeKindPushTan is the only supported challenge kind: the user
	// approves the TAN out-of-band in the banking app.
	challengeKindPushTan = "P_TAN_PUSH"

	// pushTanSentinel is the fixed confirmation value the protocol
	// requires for a push TAN that was already approved out-of-band.
	pushTanSentinel = "000000"
)

// Credentials are the client and user credentials for the token exchange.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
}

// TokenPair is the short-lived token pair returned by the token endpoint.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Challenge describes the TAN challenge issued during session validation.
type Challenge struct {
	ID             string   `json:"id"`
	Kind           string   `json:"typ"`
	AvailableKinds []string `json:"availableTypes"`
}

// RequestInfo pairs the random session ID with the 9-digit time-based
// request ID. Both are generated once per handshake and echoed verbatim
// on every subsequent call.
type RequestInfo struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
}

// NewRequestInfo generates a fresh identifier pair for one handshake.
func NewRequestInfo() RequestInfo {
	return RequestInfo{
		SessionID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		RequestID: fmt.Sprintf("%09d", time.Now().UnixMilli()%1_000_000_000),
	}
}

func (r RequestInfo) headerValue() string {
	b, _ := json.Marshal(struct {
		ClientRequestID RequestInfo `json:"clientRequestId"`
	}{r})
	return string(b)
}

// Handshake holds the state of one authentication handshake: the request
// identifiers, the token pair and the pending challenge. It is the only
// session state the client owns.
type Handshake struct {
	RequestInfo RequestInfo
	Tokens      TokenPair
	Challenge   Challenge

	sessionUUID  string
	clientID     string
	clientSecret string
}

// ChallengeKind returns the bank's challenge kind, e.g. "P_TAN_PUSH".
func (h *Handshake) ChallengeKind() string {
	return h.Challenge.Kind
}

// Client talks to the comdirect API. It is safe for concurrent use; all
// handshake state lives in the Handshake value.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

type Option func(*Client)

// WithBaseURL overrides the API base URL, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BeginHandshake exchanges the credentials for a token pair, opens a bank
// session and requests TAN validation. The returned handshake carries the
// challenge the user must approve; any challenge kind other than push TAN
// fails with ErrUnsupportedChallenge.
func (c *Client) BeginHandshake(ctx context.Context, creds Credentials) (*Handshake, error) {
	hs := &Handshake{
		RequestInfo:  NewRequestInfo(),
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
	}

	form := url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"grant_type":    {"password"},
		"username":      {creds.Username},
		"password":      {creds.Password},
	}
	if err := c.exchangeToken(ctx, hs, form); err != nil {
		return nil, err
	}

	status, body, _, err := c.do(ctx, hs, http.MethodGet, sessionsPath, nil, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}
	var sessions []struct {
		Identifier string `json:"identifier"`
	}
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("session list: %v", err)}
	}
	if len(sessions) == 0 || sessions[0].Identifier == "" {
		return nil, &InvalidResponseError{Detail: "session list is empty"}
	}
	hs.sessionUUID = sessions[0].Identifier

	validatePath := sessionsPath + "/" + hs.sessionUUID + "/validate"
	status, body, header, err := c.do(ctx, hs, http.MethodPost, validatePath, nil, sessionBody(hs.sessionUUID))
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, statusError(status, body)
	}
	raw := header.Get(onceAuthInfoHeader)
	if raw == "" {
		return nil, &InvalidResponseError{Detail: "missing " + onceAuthInfoHeader + " header"}
	}
	if err := json.Unmarshal([]byte(raw), &hs.Challenge); err != nil {
		return nil, &InvalidResponseError{Detail: fmt.Sprintf("challenge header: %v", err)}
	}
	if hs.Challenge.Kind != challengeKindPushTan {
		c.logger.Warn("bank issued an unsupported challenge", "kind", hs.Challenge.Kind)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChallenge, hs.Challenge.Kind)
	}

	c.logger.Debug("handshake started", "session", hs.RequestInfo.SessionID, "challenge", hs.Challenge.ID)
	return hs, nil
}

// ConfirmChallenge activates the session TAN after the user approved the
// push TAN out-of-band, then exchanges the primary token pair for a
// banking-scoped one. On ErrTanRejected the handshake stays valid and the
// caller may call ConfirmChallenge again.
func (c *Client) ConfirmChallenge(ctx context.Context, hs *Handshake) (TokenPair, error) {
	header := http.Header{}
	info, _ := json.Marshal(struct {
		ID string `json:"id"`
	}{hs.Challenge.ID})
	header.Set(onceAuthInfoHeader, string(info))
	header.Set(onceAuthHeader, pushTanSentinel)

	patchPath := sessionsPath + "/" + hs.sessionUUID
	status, body, _, err := c.do(ctx, hs, http.MethodPatch, patchPath, header, sessionBody(hs.sessionUUID))
	if err != nil {
		return TokenPair{}, err
	}
	switch {
	case status >= 200 && status < 300:
	case status == http.StatusUnauthorized:
		return TokenPair{}, ErrSessionExpired
	case status == http.StatusForbidden && strings.Contains(strings.ToLower(string(body)), "expired"):
		return TokenPair{}, ErrTanChallengeExpired
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusForbidden:
		return TokenPair{}, ErrTanRejected
	default:
		return TokenPair{}, statusError(status, body)
	}

	form := url.Values{
		"client_id":     {hs.clientID},
		"client_secret": {hs.clientSecret},
		"grant_type":    {"cd_secondary"},
		"token":         {hs.Tokens.AccessToken},
	}
	if err := c.exchangeToken(ctx, hs, form); err != nil {
		return TokenPair{}, err
	}

	c.logger.Debug("TAN confirmed", "session", hs.RequestInfo.SessionID)
	return hs.Tokens, nil
}

func (c *Client) exchangeToken(ctx context.Context, hs *Handshake, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
			if strings.Contains(string(body), "invalid_grant") {
				return ErrInvalidCredentials
			}
			return &AuthenticationFailedError{Detail: string(body)}
		}
		return statusError(resp.StatusCode, body)
	}

	var pair TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return &InvalidResponseError{Detail: fmt.Sprintf("token response: %v", err)}
	}
	if pair.AccessToken == "" {
		return &InvalidResponseError{Detail: "token response without access_token"}
	}
	hs.Tokens = pair
	return nil
}

// do performs one authenticated API call, echoing the handshake's request
// identifiers in the x-http-request-info header.
func (c *Client) do(ctx context.Context, hs *Handshake, method, path string, header http.Header, body []byte) (int, []byte, http.Header, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, nil, nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+hs.Tokens.AccessToken)
	req.Header.Set(requestInfoHeader, hs.RequestInfo.headerValue())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, data, resp.Header, nil
}

func sessionBody(identifier string) []byte {
	b, _ := json.Marshal(map[string]any{
		"identifier":       identifier,
		"sessionTanActive": true,
		"activated2FA":     true,
	})
	return b
}

func statusError(status int, body []byte) error {
	if status == http.StatusUnauthorized {
		return ErrSessionExpired
	}
	return &NetworkError{Status: status, Body: string(body)}
}
