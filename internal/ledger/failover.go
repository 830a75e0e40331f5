package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Failover is a Client that fans read-only queries out across a primary and
// a bounded list of fallback endpoints. Writes always go to the primary:
// resubmitting a transaction to another endpoint risks a duplicate.
type Failover struct {
	primary   Client
	fallbacks []Client
	maxWait   time.Duration
}

// NewFailover wraps a primary client with read-only fallbacks.
func NewFailover(primary Client, fallbacks ...Client) *Failover {
	return &Failover{
		primary:   primary,
		fallbacks: fallbacks,
		maxWait:   15 * time.Second,
	}
}

func (f *Failover) clients() []Client {
	return append([]Client{f.primary}, f.fallbacks...)
}

// readOp runs op against each endpoint in order until one succeeds, with a
// short exponential backoff between full passes.
func (f *Failover) readOp(ctx context.Context, op func(Client) error) error {
	attempt := func() error {
		var lastErr error
		for _, c := range f.clients() {
			if err := op(c); err != nil {
				lastErr = err
				continue
			}
			return nil
		}
		return lastErr
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.MaxElapsedTime = f.maxWait

	if err := backoff.Retry(attempt, backoff.WithContext(strategy, ctx)); err != nil {
		return fmt.Errorf("all endpoints failed: %w", err)
	}
	return nil
}

// BlockNumber returns the current chain tip.
func (f *Failover) BlockNumber(ctx context.Context) (int64, error) {
	var result int64
	err := f.readOp(ctx, func(c Client) error {
		var err error
		result, err = c.BlockNumber(ctx)
		return err
	})
	return result, err
}

// Call performs a read-only contract call with endpoint fallback.
// Reverts are not retried: every endpoint would revert the same way.
func (f *Failover) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	var result []byte
	err := f.readOp(ctx, func(c Client) error {
		out, err := c.Call(ctx, msg)
		if err != nil {
			var revert *RevertError
			if errors.As(err, &revert) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = out
		return nil
	})
	return result, err
}

// FilterLogs returns logs matching the query with endpoint fallback.
func (f *Failover) FilterLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	var result []Log
	err := f.readOp(ctx, func(c Client) error {
		var err error
		result, err = c.FilterLogs(ctx, q)
		return err
	})
	return result, err
}

// SubmitAndWait submits on the primary only.
func (f *Failover) SubmitAndWait(ctx context.Context, msg TxMsg) (*Receipt, error) {
	return f.primary.SubmitAndWait(ctx, msg)
}

var _ Client = (*Failover)(nil)
