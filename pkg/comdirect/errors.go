package comdirect

import (
	"errors"
	"fmt"
)

// Expected failure modes of the bank protocol. None of these are retried
// automatically; the caller decides whether to restart the handshake.
var (
	// ErrUnsupportedChallenge means the bank answered with a TAN
	// challenge kind other than push TAN. This is fatal, never a silent
	// fallback to another kind.
	ErrUnsupportedChallenge = errors.New("comdirect: unsupported TAN challenge kind")

	ErrTanChallengeExpired = errors.New("comdirect: TAN challenge expired")

	// ErrTanRejected leaves the handshake's token pair intact so the
	// caller can retry from the challenge step without re-entering
	// credentials.
	ErrTanRejected = errors.New("comdirect: TAN rejected")

	ErrSessionExpired     = errors.New("comdirect: session expired")
	ErrInvalidCredentials = errors.New("comdirect: invalid credentials")
)

// AuthenticationFailedError reports a token-exchange failure that is not
// a plain credential rejection.
type AuthenticationFailedError struct {
	Detail string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("comdirect: authentication failed: %s", e.Detail)
}

// NetworkError is any non-2xx transport response that does not map to a
// more specific failure. Status and body are kept for diagnostics.
type NetworkError struct {
	Status int
	Body   string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("comdirect: unexpected status %d: %s", e.Status, e.Body)
}

// InvalidResponseError is a 2xx response that fails structural decoding.
type InvalidResponseError struct {
	Detail string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("comdirect: invalid response: %s", e.Detail)
}
