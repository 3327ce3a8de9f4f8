package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/dpfeiffer/comsync/pkg/comdirect"
	"github.com/dpfeiffer/comsync/pkg/models"
)

// comdirectBank adapts the comdirect client to the BankClient interface.
// Credentials are bound at construction so the pipeline never sees them.
type comdirectBank struct {
	client *comdirect.Client
	creds  comdirect.Credentials
}

func NewComdirectBank(client *comdirect.Client, creds comdirect.Credentials) BankClient {
	return &comdirectBank{client: client, creds: creds}
}

func (b *comdirectBank) BeginHandshake(ctx context.Context) (BankHandshake, error) {
	return b.client.BeginHandshake(ctx, b.creds)
}

func (b *comdirectBank) ConfirmChallenge(ctx context.Context, hs BankHandshake) error {
	ch, err := b.handshake(hs)
	if err != nil {
		return err
	}
	_, err = b.client.ConfirmChallenge(ctx, ch)
	return err
}

func (b *comdirectBank) FetchTransactions(ctx context.Context, hs BankHandshake, accountID string, from, to time.Time) ([]models.BankTransaction, error) {
	ch, err := b.handshake(hs)
	if err != nil {
		return nil, err
	}
	return b.client.FetchTransactions(ctx, ch, accountID, from, to)
}

func (b *comdirectBank) handshake(hs BankHandshake) (*comdirect.Handshake, error) {
	ch, ok := hs.(*comdirect.Handshake)
	if !ok {
		return nil, fmt.Errorf("handshake %T is not a comdirect handshake", hs)
	}
	return ch, nil
}
