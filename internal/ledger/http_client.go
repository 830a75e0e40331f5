package ledger

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"news-trader/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultRetryDelay          = 1 * time.Second
	DefaultMaxDelay            = 10 * time.Second
	DefaultBackoffMult         = 2.0
	DefaultConfirmTimeout      = 180 * time.Second
	DefaultReceiptPollInterval = 4 * time.Second
)

// HTTPClient implements Client using JSON-RPC 2.0 over HTTP.
type HTTPClient struct {
	endpoint            string
	client              *http.Client
	maxRetries          int
	retryDelay          time.Duration
	maxDelay            time.Duration
	backoffMult         float64
	confirmTimeout      time.Duration
	receiptPollInterval time.Duration
	requestID           atomic.Uint64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts for transport failures.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithConfirmTimeout bounds the wait for transaction confirmation.
func WithConfirmTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.confirmTimeout = d
	}
}

// WithReceiptPollInterval sets the receipt polling interval.
func WithReceiptPollInterval(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.receiptPollInterval = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new ledger JSON-RPC HTTP client.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint:            endpoint,
		client:              &http.Client{Timeout: DefaultTimeout},
		maxRetries:          DefaultMaxRetries,
		retryDelay:          DefaultRetryDelay,
		maxDelay:            DefaultMaxDelay,
		backoffMult:         DefaultBackoffMult,
		confirmTimeout:      DefaultConfirmTimeout,
		receiptPollInterval: DefaultReceiptPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs a JSON-RPC call with retries and exponential backoff.
// RPC-level errors (e.g. execution reverted) are returned without retry.
func (c *HTTPClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	start := time.Now()
	defer func() {
		observability.RecordRPCLatency(method, time.Since(start).Seconds())
	}()

	reqID := c.requestID.Add(1)
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var rpcResp rpcResponse
		if err := json.Unmarshal(respBody, &rpcResp); err != nil {
			lastErr = fmt.Errorf("unmarshal response: %w", err)
			continue
		}

		if rpcResp.Error != nil {
			// RPC errors are not retried
			return rpcResp.Error
		}

		if result != nil && rpcResp.Result != nil {
			if err := json.Unmarshal(rpcResp.Result, result); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// BlockNumber returns the current chain tip.
func (c *HTTPClient) BlockNumber(ctx context.Context) (int64, error) {
	var result string
	if err := c.call(ctx, "eth_blockNumber", nil, &result); err != nil {
		return 0, err
	}
	return hexToInt64(result)
}

// Call performs a read-only contract call against the latest block.
func (c *HTTPClient) Call(ctx context.Context, msg CallMsg) ([]byte, error) {
	params := []interface{}{
		callParams(msg.From, msg.To, msg.Data, 0),
		"latest",
	}

	var result string
	if err := c.call(ctx, "eth_call", params, &result); err != nil {
		if reason, ok := revertReasonFromError(err); ok {
			return nil, &RevertError{Reason: reason}
		}
		return nil, err
	}
	return decodeHexData(result)
}

// FilterLogs returns logs matching the query, in emission order.
func (c *HTTPClient) FilterLogs(ctx context.Context, q FilterQuery) ([]Log, error) {
	filter := map[string]interface{}{
		"address":   q.Address,
		"fromBlock": fmt.Sprintf("0x%x", q.FromBlock),
		"toBlock":   fmt.Sprintf("0x%x", q.ToBlock),
	}
	if q.Topic0 != "" {
		filter["topics"] = []interface{}{q.Topic0}
	}

	var result []rawLog
	if err := c.call(ctx, "eth_getLogs", []interface{}{filter}, &result); err != nil {
		return nil, err
	}

	logs := make([]Log, 0, len(result))
	for _, r := range result {
		l, err := r.toLog()
		if err != nil {
			return nil, fmt.Errorf("decode log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

// SubmitAndWait submits a transaction via the node-managed account and polls
// for the receipt until confirmed or the confirmation timeout elapses.
func (c *HTTPClient) SubmitAndWait(ctx context.Context, msg TxMsg) (*Receipt, error) {
	var txHash string
	params := []interface{}{callParams(msg.From, msg.To, msg.Data, msg.Gas)}
	if err := c.call(ctx, "eth_sendTransaction", params, &txHash); err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}

	receipt, err := c.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}

	if receipt.Status == 0 {
		// Replay the call to extract the revert reason. Best effort: the
		// receipt alone does not carry it.
		reason := c.replayForRevertReason(ctx, msg)
		return receipt, &RevertError{Reason: reason, TxHash: txHash}
	}

	return receipt, nil
}

// waitForReceipt polls for the transaction receipt. One confirmation is
// sufficient.
func (c *HTTPClient) waitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	deadline := time.Now().Add(c.confirmTimeout)

	for {
		var result *rawReceipt
		if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{txHash}, &result); err != nil {
			return nil, fmt.Errorf("get receipt: %w", err)
		}

		if result != nil {
			return result.toReceipt()
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w (tx=%s)", ErrConfirmTimeout, txHash)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.receiptPollInterval):
		}
	}
}

// replayForRevertReason re-executes a reverted transaction as a read-only
// call to recover the revert string. Returns "" if the node gives none.
func (c *HTTPClient) replayForRevertReason(ctx context.Context, msg TxMsg) string {
	params := []interface{}{
		callParams(msg.From, msg.To, msg.Data, 0),
		"latest",
	}
	var result string
	err := c.call(ctx, "eth_call", params, &result)
	if err == nil {
		return ""
	}
	reason, _ := revertReasonFromError(err)
	return reason
}

// callParams builds the tx/call object shared by eth_call and
// eth_sendTransaction.
func callParams(from, to string, data []byte, gas uint64) map[string]interface{} {
	p := map[string]interface{}{
		"to":   to,
		"data": "0x" + hex.EncodeToString(data),
	}
	if from != "" {
		p["from"] = from
	}
	if gas > 0 {
		p["gas"] = fmt.Sprintf("0x%x", gas)
	}
	return p
}

// rawLog is the raw RPC log object.
type rawLog struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
}

func (r *rawLog) toLog() (Log, error) {
	block, err := hexToInt64(r.BlockNumber)
	if err != nil {
		return Log{}, err
	}

	var index int64
	if r.LogIndex != "" {
		index, err = hexToInt64(r.LogIndex)
		if err != nil {
			return Log{}, err
		}
	}

	data, err := decodeHexData(r.Data)
	if err != nil {
		return Log{}, err
	}

	return Log{
		Address:     r.Address,
		Topics:      r.Topics,
		Data:        data,
		BlockNumber: block,
		TxHash:      r.TxHash,
		Index:       int(index),
	}, nil
}

// rawReceipt is the raw RPC receipt object.
type rawReceipt struct {
	TxHash      string   `json:"transactionHash"`
	BlockNumber string   `json:"blockNumber"`
	GasUsed     string   `json:"gasUsed"`
	Status      string   `json:"status"`
	Logs        []rawLog `json:"logs"`
}

func (r *rawReceipt) toReceipt() (*Receipt, error) {
	block, err := hexToInt64(r.BlockNumber)
	if err != nil {
		return nil, err
	}
	gasUsed, err := hexToUint64(r.GasUsed)
	if err != nil {
		return nil, err
	}
	status, err := hexToUint64(r.Status)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{
		TxHash:      r.TxHash,
		BlockNumber: block,
		GasUsed:     gasUsed,
		Status:      status,
	}

	for _, l := range r.Logs {
		log, err := l.toLog()
		if err != nil {
			return nil, err
		}
		receipt.Logs = append(receipt.Logs, log)
	}

	return receipt, nil
}

// decodeHexData decodes 0x-prefixed byte data. "0x" decodes to empty.
func decodeHexData(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("not hex data: %q", s)
	}
	return hex.DecodeString(s[2:])
}
