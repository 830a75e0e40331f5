// Package ledger provides access to the ledger over JSON-RPC HTTP.
// Push subscriptions are deliberately not offered; callers poll.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Client is the capability set the pipeline needs from a ledger.
// Any client satisfying it is acceptable; the wire protocol is an
// implementation detail.
type Client interface {
	// BlockNumber returns the current chain tip.
	BlockNumber(ctx context.Context) (int64, error)

	// Call performs a read-only contract call and returns the raw return data.
	Call(ctx context.Context, msg CallMsg) ([]byte, error)

	// FilterLogs returns logs matching the query, in emission order.
	FilterLogs(ctx context.Context, q FilterQuery) ([]Log, error)

	// SubmitAndWait submits a transaction and blocks until one confirmation
	// or the confirmation timeout. A timeout is a failure: the caller must
	// check whether the transaction landed before resubmitting.
	SubmitAndWait(ctx context.Context, msg TxMsg) (*Receipt, error)
}

// CallMsg describes a read-only contract call.
type CallMsg struct {
	From string
	To   string
	Data []byte
}

// TxMsg describes a state-changing transaction.
type TxMsg struct {
	From string
	To   string
	Data []byte
	Gas  uint64
}

// FilterQuery selects logs by contract address, block range and first topic.
type FilterQuery struct {
	Address   string
	FromBlock int64
	ToBlock   int64
	Topic0    string // event signature hash, empty for all
}

// Log is one emitted contract event.
type Log struct {
	Address     string
	Topics      []string
	Data        []byte
	BlockNumber int64
	TxHash      string
	Index       int
}

// Receipt is the confirmation result of a submitted transaction.
type Receipt struct {
	TxHash      string
	BlockNumber int64
	GasUsed     uint64
	Status      uint64 // 1 = success, 0 = reverted
	Logs        []Log
}

// ErrConfirmTimeout is returned when a submitted transaction was not
// confirmed within the bounded wait. The transaction may still land.
var ErrConfirmTimeout = errors.New("transaction confirmation timed out")

// RevertError indicates the ledger executed the transaction and reverted it.
type RevertError struct {
	Reason string // decoded revert string, may be empty
	TxHash string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction reverted (tx=%s)", e.TxHash)
	}
	return fmt.Sprintf("transaction reverted: %s (tx=%s)", e.Reason, e.TxHash)
}

// hexToBig parses a 0x-prefixed quantity.
func hexToBig(s string) (*big.Int, error) {
	if len(s) < 2 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return nil, fmt.Errorf("not a hex quantity: %q", s)
	}
	v, ok := new(big.Int).SetString(s[2:], 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex quantity: %q", s)
	}
	return v, nil
}

func hexToInt64(s string) (int64, error) {
	v, err := hexToBig(s)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("quantity out of int64 range: %q", s)
	}
	return v.Int64(), nil
}

func hexToUint64(s string) (uint64, error) {
	v, err := hexToBig(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("quantity out of uint64 range: %q", s)
	}
	return v.Uint64(), nil
}
