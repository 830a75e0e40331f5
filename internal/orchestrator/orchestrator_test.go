package orchestrator

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-trader/internal/classifier"
	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/evaluator"
	"news-trader/internal/executor"
	"news-trader/internal/ledger"
	"news-trader/internal/oracle"
	"news-trader/internal/storage"
	"news-trader/internal/storage/memory"
)

const (
	testOracleAddr = "0x00000000000000000000000000000000000a11ce"
	testAgentAddr  = "0x0000000000000000000000000000000000b0bb1e"
	testSignerAddr = "0x00000000000000000000000000000000000f00d5"
	testClassID    = "0x1111111111111111111111111111111111111111111111111111111111111111"
)

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// routedLedger dispatches calls and submissions by method selector.
type routedLedger struct {
	mu        sync.Mutex
	calls     map[string]func(ledger.CallMsg) ([]byte, error)
	submits   map[string]func(ledger.TxMsg) (*ledger.Receipt, error)
	submitted []ledger.TxMsg
}

func newRoutedLedger() *routedLedger {
	return &routedLedger{
		calls:   make(map[string]func(ledger.CallMsg) ([]byte, error)),
		submits: make(map[string]func(ledger.TxMsg) (*ledger.Receipt, error)),
	}
}

func selectorKey(signature string) string {
	return hex.EncodeToString(contracts.Selector(signature))
}

func (r *routedLedger) BlockNumber(ctx context.Context) (int64, error) { return 100, nil }

func (r *routedLedger) FilterLogs(ctx context.Context, q ledger.FilterQuery) ([]ledger.Log, error) {
	return nil, nil
}

func (r *routedLedger) Call(ctx context.Context, msg ledger.CallMsg) ([]byte, error) {
	r.mu.Lock()
	fn := r.calls[hex.EncodeToString(msg.Data[:4])]
	r.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unrouted call %x", msg.Data[:4])
	}
	return fn(msg)
}

func (r *routedLedger) SubmitAndWait(ctx context.Context, msg ledger.TxMsg) (*ledger.Receipt, error) {
	r.mu.Lock()
	r.submitted = append(r.submitted, msg)
	fn := r.submits[hex.EncodeToString(msg.Data[:4])]
	r.mu.Unlock()
	if fn == nil {
		return nil, fmt.Errorf("unrouted submission %x", msg.Data[:4])
	}
	return fn(msg)
}

func (r *routedLedger) submissions(signature string) []ledger.TxMsg {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ledger.TxMsg
	for _, msg := range r.submitted {
		if hex.EncodeToString(msg.Data[:4]) == selectorKey(signature) {
			out = append(out, msg)
		}
	}
	return out
}

func word(v int64) []byte {
	buf := make([]byte, 32)
	big.NewInt(v).FillBytes(buf)
	return buf
}

func hexWord(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	require.NoError(t, err)
	buf := make([]byte, 32)
	copy(buf[32-len(raw):], raw)
	return buf
}

func paddedString(s string) []byte {
	out := word(int64(len(s)))
	padded := len(s)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}
	buf := make([]byte, padded)
	copy(buf, s)
	return append(out, buf...)
}

// classifiedLog builds a NewsClassified log for the given headline.
func classifiedLog(t *testing.T, topic0, headline string, sentiment, confidence int64, proofHash string) ledger.Log {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(word(5 * 32)) // headline offset
	buf.Write(word(sentiment))
	buf.Write(word(confidence))
	buf.Write(hexWord(t, proofHash))
	buf.Write(word(1700000000))
	buf.Write(paddedString(headline))

	return ledger.Log{
		Address:     testOracleAddr,
		Topics:      []string{topic0, testClassID, "0x000000000000000000000000" + testSignerAddr[2:]},
		Data:        buf.Bytes(),
		BlockNumber: 100,
		TxHash:      "0xposttx",
	}
}

// tradeExecutedLog builds a TradeExecuted log for a BUY.
func tradeExecutedLog(topic0 string) ledger.Log {
	var buf bytes.Buffer
	buf.Write(word(6 * 32)) // action offset
	buf.Write(word(0))      // tokenIn
	buf.Write(word(0))      // tokenOut
	buf.Write(word(100))    // amountIn
	buf.Write(word(95))     // amountOut
	buf.Write(word(1700000100))
	buf.Write(paddedString("BUY"))

	return ledger.Log{
		Address:     testAgentAddr,
		Topics:      []string{topic0, testClassID},
		Data:        buf.Bytes(),
		BlockNumber: 101,
		TxHash:      "0xtradetx",
	}
}

// tradeTupleBody encodes one trade record tuple for a BUY.
func tradeTupleBody(t *testing.T, evaluated bool) []byte {
	var buf bytes.Buffer
	buf.Write(hexWord(t, testClassID))
	buf.Write(word(11 * 32)) // action offset
	buf.Write(word(0))
	buf.Write(word(0))
	buf.Write(word(100))
	buf.Write(word(95))
	buf.Write(word(1700000100))
	buf.Write(word(10_000_000)) // valueBefore 10.000000
	buf.Write(word(10_500_000)) // valueAfter 10.500000
	buf.Write(word(1))          // isProfitable
	if evaluated {
		buf.Write(word(1))
	} else {
		buf.Write(word(0))
	}
	buf.Write(paddedString("BUY"))
	return buf.Bytes()
}

// tradeDetailsReturn encodes getTradeDetails output. The evaluated flag is
// read at call time so tests can flip it after the evaluation transaction.
func tradeDetailsReturn(t *testing.T, evaluated *bool) func(ledger.CallMsg) ([]byte, error) {
	return func(ledger.CallMsg) ([]byte, error) {
		var buf bytes.Buffer
		buf.Write(word(32)) // tuple offset
		buf.Write(tradeTupleBody(t, *evaluated))
		return buf.Bytes(), nil
	}
}

// recentTradesReturn encodes getRecentTrades output holding one trade.
func recentTradesReturn(t *testing.T, evaluated *bool) func(ledger.CallMsg) ([]byte, error) {
	return func(ledger.CallMsg) ([]byte, error) {
		var buf bytes.Buffer
		buf.Write(word(32)) // array offset
		buf.Write(word(1))  // length
		buf.Write(word(32)) // element offset, relative to the element area
		buf.Write(tradeTupleBody(t, *evaluated))
		return buf.Bytes(), nil
	}
}

type fixture struct {
	ledger          *routedLedger
	orchestrator    *Orchestrator
	classifications storage.ClassificationStore
	trades          storage.TradeStore
	evaluated       *bool
}

// newFixture wires a full pipeline over a routed stub ledger with a happy
// path canned for every contract interaction.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	client := newRoutedLedger()

	oracleBinding, err := contracts.NewNewsOracle(client, testOracleAddr, testSignerAddr)
	require.NoError(t, err)
	agentBinding, err := contracts.NewTradingAgent(client, testAgentAddr, testSignerAddr)
	require.NoError(t, err)

	evaluated := new(bool)
	portfolioValue := word(10_000_000)

	client.submits[selectorKey("postClassification(string,uint8,uint8,bytes32)")] = func(msg ledger.TxMsg) (*ledger.Receipt, error) {
		// The proof hash is the fourth head word after the selector.
		proof := "0x" + hex.EncodeToString(msg.Data[4+3*32:4+4*32])
		return &ledger.Receipt{
			TxHash:      "0xposttx",
			BlockNumber: 100,
			Status:      1,
			Logs:        []ledger.Log{classifiedLog(t, oracleBinding.NewsClassifiedTopic(), "headline", 2, 85, proof)},
		}, nil
	}
	client.submits[selectorKey("reactToNews(bytes32)")] = func(msg ledger.TxMsg) (*ledger.Receipt, error) {
		return &ledger.Receipt{
			TxHash:      "0xtradetx",
			BlockNumber: 101,
			Status:      1,
			Logs:        []ledger.Log{tradeExecutedLog(agentBinding.TradeExecutedTopic())},
		}, nil
	}
	client.submits[selectorKey("evaluateTradeProfitability(bytes32)")] = func(msg ledger.TxMsg) (*ledger.Receipt, error) {
		*evaluated = true
		return &ledger.Receipt{TxHash: "0xevaltx", BlockNumber: 102, Status: 1}, nil
	}
	client.calls[selectorKey("getPortfolioValue()")] = func(ledger.CallMsg) ([]byte, error) {
		return portfolioValue, nil
	}
	client.calls[selectorKey("getTradeDetails(bytes32)")] = tradeDetailsReturn(t, evaluated)

	poster, err := oracle.NewPoster(oracle.Options{Contract: oracleBinding})
	require.NoError(t, err)
	exec, err := executor.New(executor.Options{Agent: agentBinding})
	require.NoError(t, err)
	eval, err := evaluator.New(evaluator.Options{Agent: agentBinding, Cooldown: time.Millisecond})
	require.NoError(t, err)

	classifications := memory.NewClassificationStore()
	trades := memory.NewTradeStore()

	orch, err := New(Options{
		Classifier:      classifier.New(classifier.Options{MinConfidence: 75}),
		Poster:          poster,
		Executor:        exec,
		Evaluator:       eval,
		Agent:           agentBinding,
		Classifications: classifications,
		Trades:          trades,
	})
	require.NoError(t, err)

	return &fixture{
		ledger:          client,
		orchestrator:    orch,
		classifications: classifications,
		trades:          trades,
		evaluated:       evaluated,
	}
}

func TestClassifyAndTrade_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.orchestrator.ClassifyAndTrade(ctx, "SEC approves spot Bitcoin ETF")
	require.NoError(t, err)
	require.False(t, result.Rejected)

	require.NotNil(t, result.Classification)
	assert.Equal(t, testClassID, result.Classification.ID)

	require.NotNil(t, result.Trade)
	assert.Equal(t, "BUY", result.Trade.Action())
	assert.Equal(t, "0xtradetx", result.Trade.TxHash)

	require.NotNil(t, result.Evaluation)
	assert.True(t, result.Evaluation.IsProfitable)
	assert.False(t, result.Evaluation.AlreadyEvaluated)
	assert.Equal(t, "5", result.Evaluation.ProfitLossPct.String())

	// Both mirrors were written and the verdict settled.
	stored, err := f.classifications.GetByID(ctx, testClassID)
	require.NoError(t, err)
	assert.Equal(t, uint8(85), stored.Confidence)

	trade, err := f.trades.GetByClassificationID(ctx, testClassID)
	require.NoError(t, err)
	assert.True(t, trade.HasBeenEvaluated)
	assert.True(t, trade.IsProfitable)
}

func TestClassifyAndTrade_Rejected(t *testing.T) {
	f := newFixture(t)

	result, err := f.orchestrator.ClassifyAndTrade(context.Background(), "Committee schedules quarterly meeting")
	require.NoError(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, classifier.RejectReasonConfidence, result.RejectReason)

	// Nothing reached the ledger.
	assert.Empty(t, f.ledger.submitted)
}

func TestClassifyAndTrade_PostingFailureStage(t *testing.T) {
	f := newFixture(t)
	f.ledger.submits[selectorKey("postClassification(string,uint8,uint8,bytes32)")] = func(ledger.TxMsg) (*ledger.Receipt, error) {
		return nil, errors.New("connection refused")
	}

	_, err := f.orchestrator.ClassifyAndTrade(context.Background(), "SEC approves spot Bitcoin ETF")
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageOraclePosting, stageErr.Stage)

	var postErr *oracle.PostError
	require.ErrorAs(t, err, &postErr)
	assert.Equal(t, oracle.PostNetworkError, postErr.Kind)
}

func TestClassifyAndTrade_GasBumpRetry(t *testing.T) {
	f := newFixture(t)

	attempts := 0
	happy := f.ledger.submits[selectorKey("reactToNews(bytes32)")]
	f.ledger.submits[selectorKey("reactToNews(bytes32)")] = func(msg ledger.TxMsg) (*ledger.Receipt, error) {
		attempts++
		if attempts == 1 {
			return nil, &ledger.RevertError{Reason: "Insufficient gas", TxHash: "0xfailtx"}
		}
		return happy(msg)
	}

	result, err := f.orchestrator.ClassifyAndTrade(context.Background(), "SEC approves spot Bitcoin ETF")
	require.NoError(t, err)
	assert.Equal(t, "BUY", result.Trade.Action())

	reacts := f.ledger.submissions("reactToNews(bytes32)")
	require.Len(t, reacts, 2)
	assert.Equal(t, uint64(executor.DefaultGasLimit), reacts[0].Gas)
	assert.Equal(t, uint64(executor.DefaultGasLimit+executor.DefaultGasLimit/2), reacts[1].Gas)
}

func TestClassifyAndTrade_TerminalTradeFailure(t *testing.T) {
	f := newFixture(t)
	f.ledger.submits[selectorKey("reactToNews(bytes32)")] = func(ledger.TxMsg) (*ledger.Receipt, error) {
		return nil, &ledger.RevertError{Reason: "Confidence too low", TxHash: "0xfailtx"}
	}

	_, err := f.orchestrator.ClassifyAndTrade(context.Background(), "SEC approves spot Bitcoin ETF")
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageTradeExecution, stageErr.Stage)

	// No retry for a policy revert.
	assert.Len(t, f.ledger.submissions("reactToNews(bytes32)"), 1)
}

func TestDispatch_RunsTradeAndBackgroundEvaluation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := classifiedConfirmation()
	require.NoError(t, f.orchestrator.Dispatch(ctx, c))
	f.orchestrator.Wait()

	trade, err := f.trades.GetByClassificationID(ctx, testClassID)
	require.NoError(t, err)
	assert.True(t, trade.HasBeenEvaluated)
	assert.True(t, trade.IsProfitable)

	stored, err := f.classifications.GetByID(ctx, testClassID)
	require.NoError(t, err)
	assert.Equal(t, c.Headline, stored.Headline)
}

func TestDispatch_AlreadyProcessedIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.ledger.submits[selectorKey("reactToNews(bytes32)")] = func(ledger.TxMsg) (*ledger.Receipt, error) {
		return nil, &ledger.RevertError{Reason: "Classification already processed", TxHash: "0xfailtx"}
	}

	err := f.orchestrator.Dispatch(context.Background(), classifiedConfirmation())
	require.NoError(t, err)
	f.orchestrator.Wait()

	_, err = f.trades.GetByClassificationID(context.Background(), testClassID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDispatch_TerminalFailurePropagates(t *testing.T) {
	f := newFixture(t)
	f.ledger.submits[selectorKey("reactToNews(bytes32)")] = func(ledger.TxMsg) (*ledger.Receipt, error) {
		return nil, &ledger.RevertError{Reason: "Swap failed: no liquidity", TxHash: "0xfailtx"}
	}

	err := f.orchestrator.Dispatch(context.Background(), classifiedConfirmation())
	require.Error(t, err)

	var tradeErr *executor.TradeError
	require.ErrorAs(t, err, &tradeErr)
	assert.Equal(t, executor.TradeSwapFailed, tradeErr.Kind)
}

func TestRecoverEvaluations_SettlesPendingVerdicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The mirror holds an executed trade whose evaluation never ran.
	require.NoError(t, f.trades.Insert(ctx, &domain.TradeRecord{
		ClassificationID: testClassID,
		Action:           "BUY",
		Timestamp:        time.Now().Unix() - 60,
		TxHash:           "0xtradetx",
	}))
	f.ledger.calls[selectorKey("getRecentTrades(uint256)")] = recentTradesReturn(t, f.evaluated)

	require.NoError(t, f.orchestrator.RecoverEvaluations(ctx, 10))

	// The pending trade was settled on-chain and mirrored.
	require.Len(t, f.ledger.submissions("evaluateTradeProfitability(bytes32)"), 1)

	trade, err := f.trades.GetByClassificationID(ctx, testClassID)
	require.NoError(t, err)
	assert.True(t, trade.HasBeenEvaluated)
	assert.True(t, trade.IsProfitable)

	// A second sweep sees the settled flag and submits nothing new.
	require.NoError(t, f.orchestrator.RecoverEvaluations(ctx, 10))
	assert.Len(t, f.ledger.submissions("evaluateTradeProfitability(bytes32)"), 1)
}

func TestRecoverEvaluations_RequiresAgent(t *testing.T) {
	f := newFixture(t)

	orch, err := New(Options{
		Classifier: classifier.New(classifier.Options{}),
		Poster:     f.orchestrator.poster,
		Executor:   f.orchestrator.executor,
		Evaluator:  f.orchestrator.evaluator,
	})
	require.NoError(t, err)

	assert.Error(t, orch.RecoverEvaluations(context.Background(), 10))
}

func TestNew_RequiresComponents(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func classifiedConfirmation() *domain.Classification {
	return &domain.Classification{
		ID:            testClassID,
		Headline:      "SEC approves spot Bitcoin ETF",
		Sentiment:     domain.SentimentGood,
		Confidence:    85,
		ProofRef:      "0x2222222222222222222222222222222222222222222222222222222222222222",
		Timestamp:     1700000000,
		SourceAgentID: testSignerAddr,
		BlockNumber:   100,
		TxHash:        "0xposttx",
	}
}
