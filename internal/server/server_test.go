package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-trader/internal/contracts"
	"news-trader/internal/domain"
	"news-trader/internal/ledger"
	"news-trader/internal/storage/memory"
)

const testAgentAddr = "0x0000000000000000000000000000000000b0bb1e"

func TestMain(m *testing.M) {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	os.Exit(m.Run())
}

// portfolioLedger answers getPortfolio and getPortfolioValue calls.
type portfolioLedger struct{}

func (portfolioLedger) BlockNumber(ctx context.Context) (int64, error) { return 0, nil }

func (portfolioLedger) FilterLogs(ctx context.Context, q ledger.FilterQuery) ([]ledger.Log, error) {
	return nil, nil
}

func (portfolioLedger) SubmitAndWait(ctx context.Context, msg ledger.TxMsg) (*ledger.Receipt, error) {
	return nil, nil
}

func (portfolioLedger) Call(ctx context.Context, msg ledger.CallMsg) ([]byte, error) {
	word := func(v int64) []byte {
		buf := make([]byte, 32)
		big.NewInt(v).FillBytes(buf)
		return buf
	}
	if string(msg.Data[:4]) == string(contracts.Selector("getPortfolio()")) {
		return append(word(500), word(2_000_000)...), nil
	}
	return word(12_500_000), nil // 12.500000
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	agent, err := contracts.NewTradingAgent(portfolioLedger{}, testAgentAddr, "")
	require.NoError(t, err)

	classifications := memory.NewClassificationStore()
	trades := memory.NewTradeStore()

	srv, err := New(Options{
		Classifications: classifications,
		Trades:          trades,
		Agent:           agent,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.hub.Close()
		ts.Close()
	})

	ctx := context.Background()
	require.NoError(t, classifications.Insert(ctx, &domain.Classification{
		ID:         "0x1111111111111111111111111111111111111111111111111111111111111111",
		Headline:   "Fed cuts rates",
		Sentiment:  domain.SentimentGood,
		Confidence: 85,
		Timestamp:  1700000000,
	}))
	require.NoError(t, trades.Insert(ctx, &domain.TradeRecord{
		ClassificationID:     "0x1111111111111111111111111111111111111111111111111111111111111111",
		Action:               domain.ActionBuy,
		AmountIn:             big.NewInt(100),
		AmountOut:            big.NewInt(95),
		Timestamp:            1700000100,
		PortfolioValueBefore: decimal.RequireFromString("10"),
		TxHash:               "0xtradetx",
	}))

	return srv, ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	return resp.StatusCode
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]string
	status := getJSON(t, ts.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_Status(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]any
	status := getJSON(t, ts.URL+"/status", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "running", body["status"])
	assert.Equal(t, float64(0), body["stream_clients"])
}

func TestServer_Classifications(t *testing.T) {
	_, ts := newTestServer(t)

	var body []map[string]any
	status := getJSON(t, ts.URL+"/classifications?limit=5", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body, 1)
	assert.Equal(t, "Fed cuts rates", body[0]["headline"])
	assert.Equal(t, "GOOD", body[0]["sentiment"])
}

func TestServer_Trades(t *testing.T) {
	_, ts := newTestServer(t)

	var body []map[string]any
	status := getJSON(t, ts.URL+"/trades", &body)
	assert.Equal(t, http.StatusOK, status)
	require.Len(t, body, 1)
	assert.Equal(t, "BUY", body[0]["action"])
	assert.Equal(t, "100", body[0]["amount_in"])
	assert.Equal(t, false, body[0]["has_been_evaluated"])
}

func TestServer_Portfolio(t *testing.T) {
	_, ts := newTestServer(t)

	var body map[string]any
	status := getJSON(t, ts.URL+"/portfolio", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "500", body["asset_balance"])
	assert.Equal(t, "2000000", body["stable_balance"])
	assert.Equal(t, "12.5", body["total_value"])
}

func TestServer_TradeStream(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/trades"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The hub registers the client before the upgrade handler returns, but
	// give the server a moment under race detection.
	require.Eventually(t, func() bool {
		return srv.hub.ClientCount() == 1
	}, time.Second, 10*time.Millisecond)

	srv.OnTradeExecuted(&domain.TradeRecord{
		ClassificationID:     "0x2222222222222222222222222222222222222222222222222222222222222222",
		Action:               domain.ActionSell,
		AmountIn:             big.NewInt(50),
		Timestamp:            1700000200,
		PortfolioValueBefore: decimal.RequireFromString("12"),
		PortfolioValueAfter:  decimal.RequireFromString("11.5"),
		TxHash:               "0xselltx",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "SELL", msg["action"])
	assert.Equal(t, "0xselltx", msg["tx_hash"])
	assert.Equal(t, "50", msg["amount_in"])
}
