package executor

import (
	"errors"
	"fmt"
	"strings"

	"news-trader/internal/ledger"
)

// TradeErrorKind partitions execution failures. Only InsufficientGas is
// worth a retry with a bigger gas limit; AlreadyProcessed is terminal
// success-from-elsewhere; the rest are terminal failures.
type TradeErrorKind string

const (
	TradeAlreadyProcessed TradeErrorKind = "already_processed"
	TradeConfidenceTooLow TradeErrorKind = "confidence_too_low"
	TradeReputationTooLow TradeErrorKind = "reputation_too_low"
	TradeSwapFailed       TradeErrorKind = "swap_failed"
	TradeInsufficientGas  TradeErrorKind = "insufficient_gas"
	TradeUnknown          TradeErrorKind = "unknown"
)

// TradeError is a classified execution failure.
type TradeError struct {
	Kind             TradeErrorKind
	ClassificationID string
	Reason           string
	TxHash           string
	Err              error
}

func (e *TradeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("trade %s: %s: %s", e.ClassificationID, e.Kind, e.Reason)
	}
	return fmt.Sprintf("trade %s: %s: %v", e.ClassificationID, e.Kind, e.Err)
}

func (e *TradeError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a gas-bumped resubmission can help.
func (e *TradeError) Retryable() bool {
	return e.Kind == TradeInsufficientGas
}

// classifyFailure maps a ledger error onto the trade taxonomy by the
// contract's revert strings.
func classifyFailure(classificationID string, err error) *TradeError {
	te := &TradeError{Kind: TradeUnknown, ClassificationID: classificationID, Err: err}

	var revert *ledger.RevertError
	if errors.As(err, &revert) {
		te.Reason = revert.Reason
		te.TxHash = revert.TxHash
		te.Kind = kindFromReason(revert.Reason)
		return te
	}

	if strings.Contains(strings.ToLower(err.Error()), "gas") {
		te.Kind = TradeInsufficientGas
	}
	return te
}

func kindFromReason(reason string) TradeErrorKind {
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "already processed"):
		return TradeAlreadyProcessed
	case strings.Contains(lower, "confidence"):
		return TradeConfidenceTooLow
	case strings.Contains(lower, "reputation"):
		return TradeReputationTooLow
	case strings.Contains(lower, "swap"),
		strings.Contains(lower, "liquidity"),
		strings.Contains(lower, "slippage"):
		return TradeSwapFailed
	case strings.Contains(lower, "gas"):
		return TradeInsufficientGas
	default:
		return TradeUnknown
	}
}
