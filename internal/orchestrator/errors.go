package orchestrator

import "fmt"

// Pipeline stages, used to attribute failures.
const (
	StageClassification = "classification"
	StageOraclePosting  = "oracle_posting"
	StageTradeExecution = "trade_execution"
	StageEvaluation     = "evaluation"
)

// StageError attributes a pipeline failure to the stage that produced it.
// The wrapped error keeps its own taxonomy (PostError, TradeError,
// EvalError).
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
