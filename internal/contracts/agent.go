package contracts

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"news-trader/internal/domain"
	"news-trader/internal/ledger"
)

// stableDecimals is the number of decimals of the stable valuation unit.
const stableDecimals = 6

// Function and event signatures of the trading-agent contract.
const (
	sigReactToNews       = "reactToNews(bytes32)"
	sigEvaluateTrade     = "evaluateTradeProfitability(bytes32)"
	sigGetPortfolio      = "getPortfolio()"
	sigGetPortfolioValue = "getPortfolioValue()"
	sigGetTradeDetails   = "getTradeDetails(bytes32)"
	sigGetRecentTrades   = "getRecentTrades(uint256)"
	sigGetTradeStats     = "getTradeStats()"
	sigProcessedFlag     = "processedClassifications(bytes32)"
	sigTradeExecuted     = "TradeExecuted(bytes32,string,address,address,uint256,uint256,uint256)"
)

// TradingAgent is the typed binding for the trading-agent contract.
type TradingAgent struct {
	client  ledger.Client
	address string
	from    string

	tradeExecutedTopic string
}

// NewTradingAgent creates a binding. Addresses are validated here, once.
func NewTradingAgent(client ledger.Client, address, from string) (*TradingAgent, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("invalid trading-agent address: %q", address)
	}
	if from != "" && !ValidAddress(from) {
		return nil, fmt.Errorf("invalid signer address: %q", from)
	}
	return &TradingAgent{
		client:             client,
		address:            address,
		from:               from,
		tradeExecutedTopic: eventTopic(sigTradeExecuted),
	}, nil
}

// Address returns the contract address.
func (a *TradingAgent) Address() string {
	return a.address
}

// TradeExecutedTopic returns topic0 of the TradeExecuted event, for log
// filtering.
func (a *TradingAgent) TradeExecutedTopic() string {
	return a.tradeExecutedTopic
}

// ReactToNews submits the trade-triggering transaction and waits for one
// confirmation. The contract performs the policy check (confidence,
// reputation, processed-guard) and the swap.
func (a *TradingAgent) ReactToNews(ctx context.Context, classificationID string, gasLimit uint64) (*ledger.Receipt, error) {
	data, err := newCall(sigReactToNews).addBytes32(classificationID).encode()
	if err != nil {
		return nil, fmt.Errorf("encode reactToNews: %w", err)
	}

	return a.client.SubmitAndWait(ctx, ledger.TxMsg{
		From: a.from,
		To:   a.address,
		Data: data,
		Gas:  gasLimit,
	})
}

// EvaluateTradeProfitability submits the evaluation transaction and waits
// for one confirmation. Reverts TooEarly before the contract's cool-down.
func (a *TradingAgent) EvaluateTradeProfitability(ctx context.Context, classificationID string, gasLimit uint64) (*ledger.Receipt, error) {
	data, err := newCall(sigEvaluateTrade).addBytes32(classificationID).encode()
	if err != nil {
		return nil, fmt.Errorf("encode evaluateTradeProfitability: %w", err)
	}

	return a.client.SubmitAndWait(ctx, ledger.TxMsg{
		From: a.from,
		To:   a.address,
		Data: data,
		Gas:  gasLimit,
	})
}

// GetPortfolio reads the agent's raw holdings.
func (a *TradingAgent) GetPortfolio(ctx context.Context) (*domain.Portfolio, error) {
	out, err := a.callView(ctx, sigGetPortfolio)
	if err != nil {
		return nil, err
	}

	d := returnData{data: out}
	asset, err := d.uint(0)
	if err != nil {
		return nil, fmt.Errorf("decode asset balance: %w", err)
	}
	stable, err := d.uint(1)
	if err != nil {
		return nil, fmt.Errorf("decode stable balance: %w", err)
	}

	return &domain.Portfolio{AssetBalance: asset, StableBalance: stable}, nil
}

// GetPortfolioValue reads the portfolio valuation in stable units.
func (a *TradingAgent) GetPortfolioValue(ctx context.Context) (decimal.Decimal, error) {
	out, err := a.callView(ctx, sigGetPortfolioValue)
	if err != nil {
		return decimal.Zero, err
	}

	raw, err := returnData{data: out}.uint(0)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode portfolio value: %w", err)
	}
	return decimal.NewFromBigInt(raw, -stableDecimals), nil
}

// GetTradeDetails reads the trade record for a classification id.
func (a *TradingAgent) GetTradeDetails(ctx context.Context, classificationID string) (*domain.TradeRecord, error) {
	data, err := newCall(sigGetTradeDetails).addBytes32(classificationID).encode()
	if err != nil {
		return nil, fmt.Errorf("encode getTradeDetails: %w", err)
	}

	out, err := a.client.Call(ctx, ledger.CallMsg{From: a.from, To: a.address, Data: data})
	if err != nil {
		return nil, err
	}

	tuple, err := returnData{data: out}.tupleAt(0)
	if err != nil {
		return nil, fmt.Errorf("decode trade tuple: %w", err)
	}
	return decodeTradeRecord(tuple)
}

// GetRecentTrades reads the most recent n trade records, newest first.
func (a *TradingAgent) GetRecentTrades(ctx context.Context, n int64) ([]*domain.TradeRecord, error) {
	data, err := newCall(sigGetRecentTrades).addUint(big.NewInt(n)).encode()
	if err != nil {
		return nil, fmt.Errorf("encode getRecentTrades: %w", err)
	}

	out, err := a.client.Call(ctx, ledger.CallMsg{From: a.from, To: a.address, Data: data})
	if err != nil {
		return nil, err
	}

	// Dynamic array of dynamic tuples: offset → length, then one offset per
	// element relative to the array body.
	top := returnData{data: out}
	body, err := top.tupleAt(0)
	if err != nil {
		return nil, fmt.Errorf("decode array offset: %w", err)
	}
	length, err := body.uint(0)
	if err != nil {
		return nil, fmt.Errorf("decode array length: %w", err)
	}
	if !length.IsInt64() || length.Int64() < 0 {
		return nil, fmt.Errorf("array length out of range: %s", length)
	}

	elements := returnData{data: body.data[wordSize:]}
	trades := make([]*domain.TradeRecord, 0, length.Int64())
	for i := int64(0); i < length.Int64(); i++ {
		tuple, err := elements.tupleAt(int(i))
		if err != nil {
			return nil, fmt.Errorf("decode trade %d: %w", i, err)
		}
		trade, err := decodeTradeRecord(tuple)
		if err != nil {
			return nil, fmt.Errorf("decode trade %d: %w", i, err)
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// TradeStats summarizes the agent's lifetime performance.
type TradeStats struct {
	TotalTrades        int64
	ProfitableTrades   int64
	UnprofitableTrades int64
	WinRatePct         int64
}

// GetTradeStats reads the aggregate trade statistics.
func (a *TradingAgent) GetTradeStats(ctx context.Context) (*TradeStats, error) {
	out, err := a.callView(ctx, sigGetTradeStats)
	if err != nil {
		return nil, err
	}

	d := returnData{data: out}
	values := make([]int64, 4)
	for i := range values {
		v, err := d.uint(i)
		if err != nil {
			return nil, fmt.Errorf("decode stat %d: %w", i, err)
		}
		values[i] = v.Int64()
	}

	return &TradeStats{
		TotalTrades:        values[0],
		ProfitableTrades:   values[1],
		UnprofitableTrades: values[2],
		WinRatePct:         values[3],
	}, nil
}

// ProcessedClassifications reads the on-chain processed flag, the
// authoritative at-most-once guard.
func (a *TradingAgent) ProcessedClassifications(ctx context.Context, classificationID string) (bool, error) {
	data, err := newCall(sigProcessedFlag).addBytes32(classificationID).encode()
	if err != nil {
		return false, fmt.Errorf("encode processedClassifications: %w", err)
	}

	out, err := a.client.Call(ctx, ledger.CallMsg{From: a.from, To: a.address, Data: data})
	if err != nil {
		return false, err
	}

	return returnData{data: out}.boolAt(0)
}

// TradeExecutedEvent is one decoded TradeExecuted log.
type TradeExecutedEvent struct {
	ClassificationID string
	Action           string
	TokenIn          string
	TokenOut         string
	AmountIn         *big.Int
	AmountOut        *big.Int
	Timestamp        int64
	TxHash           string
}

// ParseTradeExecuted decodes a TradeExecuted log.
func (a *TradingAgent) ParseTradeExecuted(l ledger.Log) (*TradeExecutedEvent, error) {
	if len(l.Topics) < 2 || l.Topics[0] != a.tradeExecutedTopic {
		return nil, fmt.Errorf("log is not TradeExecuted")
	}

	d := returnData{data: l.Data}
	action, err := d.stringAt(0)
	if err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	tokenIn, err := d.addressAt(1)
	if err != nil {
		return nil, fmt.Errorf("decode tokenIn: %w", err)
	}
	tokenOut, err := d.addressAt(2)
	if err != nil {
		return nil, fmt.Errorf("decode tokenOut: %w", err)
	}
	amountIn, err := d.uint(3)
	if err != nil {
		return nil, fmt.Errorf("decode amountIn: %w", err)
	}
	amountOut, err := d.uint(4)
	if err != nil {
		return nil, fmt.Errorf("decode amountOut: %w", err)
	}
	timestamp, err := d.uint(5)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}

	return &TradeExecutedEvent{
		ClassificationID: l.Topics[1],
		Action:           action,
		TokenIn:          tokenIn,
		TokenOut:         tokenOut,
		AmountIn:         amountIn,
		AmountOut:        amountOut,
		Timestamp:        timestamp.Int64(),
		TxHash:           l.TxHash,
	}, nil
}

// FindTradeExecuted scans receipt logs for the TradeExecuted event.
func (a *TradingAgent) FindTradeExecuted(receipt *ledger.Receipt) (*TradeExecutedEvent, error) {
	for _, l := range receipt.Logs {
		if len(l.Topics) > 0 && l.Topics[0] == a.tradeExecutedTopic {
			return a.ParseTradeExecuted(l)
		}
	}
	return nil, fmt.Errorf("no TradeExecuted event in receipt %s", receipt.TxHash)
}

func (a *TradingAgent) callView(ctx context.Context, signature string) ([]byte, error) {
	data, err := newCall(signature).encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", signature, err)
	}
	return a.client.Call(ctx, ledger.CallMsg{From: a.from, To: a.address, Data: data})
}

// decodeTradeRecord decodes the trade record tuple:
// (classificationId, action, tokenIn, tokenOut, amountIn, amountOut,
// timestamp, portfolioValueBefore, portfolioValueAfter, isProfitable,
// hasBeenEvaluated).
func decodeTradeRecord(d returnData) (*domain.TradeRecord, error) {
	id, err := d.bytes32At(0)
	if err != nil {
		return nil, err
	}
	action, err := d.stringAt(1)
	if err != nil {
		return nil, err
	}
	tokenIn, err := d.addressAt(2)
	if err != nil {
		return nil, err
	}
	tokenOut, err := d.addressAt(3)
	if err != nil {
		return nil, err
	}
	amountIn, err := d.uint(4)
	if err != nil {
		return nil, err
	}
	amountOut, err := d.uint(5)
	if err != nil {
		return nil, err
	}
	timestamp, err := d.uint(6)
	if err != nil {
		return nil, err
	}
	valueBefore, err := d.uint(7)
	if err != nil {
		return nil, err
	}
	valueAfter, err := d.uint(8)
	if err != nil {
		return nil, err
	}
	isProfitable, err := d.boolAt(9)
	if err != nil {
		return nil, err
	}
	evaluated, err := d.boolAt(10)
	if err != nil {
		return nil, err
	}

	return &domain.TradeRecord{
		ClassificationID:     id,
		Action:               action,
		TokenIn:              tokenIn,
		TokenOut:             tokenOut,
		AmountIn:             amountIn,
		AmountOut:            amountOut,
		Timestamp:            timestamp.Int64(),
		PortfolioValueBefore: decimal.NewFromBigInt(valueBefore, -stableDecimals),
		PortfolioValueAfter:  decimal.NewFromBigInt(valueAfter, -stableDecimals),
		IsProfitable:         isProfitable,
		HasBeenEvaluated:     evaluated,
	}, nil
}
