package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func rpcHandler(t *testing.T, handle func(req rpcRequest) interface{}) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func TestHTTPClient_BlockNumber(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		if req.Method != "eth_blockNumber" {
			t.Errorf("expected method eth_blockNumber, got %s", req.Method)
		}
		return "0x1b4"
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	n, err := client.BlockNumber(context.Background())
	if err != nil {
		t.Fatalf("BlockNumber: %v", err)
	}
	if n != 436 {
		t.Errorf("expected block 436, got %d", n)
	}
}

func TestHTTPClient_Call(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		if req.Method != "eth_call" {
			t.Errorf("expected method eth_call, got %s", req.Method)
		}
		return "0x0000000000000000000000000000000000000000000000000000000000000001"
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	out, err := client.Call(context.Background(), CallMsg{To: "0xabc", Data: []byte{0x01}})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(out) != 32 || out[31] != 1 {
		t.Errorf("unexpected return data: %x", out)
	}
}

func TestHTTPClient_Call_Revert(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    3,
				"message": "execution reverted: Confidence too low",
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	_, err := client.Call(context.Background(), CallMsg{To: "0xabc", Data: []byte{0x01}})
	var revert *RevertError
	if !errors.As(err, &revert) {
		t.Fatalf("expected RevertError, got %v", err)
	}
	if revert.Reason != "Confidence too low" {
		t.Errorf("expected reason %q, got %q", "Confidence too low", revert.Reason)
	}
}

func TestHTTPClient_FilterLogs(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		if req.Method != "eth_getLogs" {
			t.Errorf("expected method eth_getLogs, got %s", req.Method)
		}
		return []map[string]interface{}{
			{
				"address":         "0xoracle",
				"topics":          []string{"0xtopic0", "0xtopic1"},
				"data":            "0x01",
				"blockNumber":     "0x10",
				"transactionHash": "0xtx1",
				"logIndex":        "0x0",
			},
			{
				"address":         "0xoracle",
				"topics":          []string{"0xtopic0", "0xtopic2"},
				"data":            "0x02",
				"blockNumber":     "0x11",
				"transactionHash": "0xtx2",
				"logIndex":        "0x1",
			},
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)

	logs, err := client.FilterLogs(context.Background(), FilterQuery{
		Address:   "0xoracle",
		FromBlock: 15,
		ToBlock:   20,
		Topic0:    "0xtopic0",
	})
	if err != nil {
		t.Fatalf("FilterLogs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs, got %d", len(logs))
	}
	if logs[0].BlockNumber != 16 || logs[1].BlockNumber != 17 {
		t.Errorf("unexpected block numbers: %d, %d", logs[0].BlockNumber, logs[1].BlockNumber)
	}
}

func TestHTTPClient_SubmitAndWait(t *testing.T) {
	var receiptCalls atomic.Int32

	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "eth_sendTransaction":
			return "0xtxhash"
		case "eth_getTransactionReceipt":
			// Receipt appears on the second poll.
			if receiptCalls.Add(1) < 2 {
				return nil
			}
			return map[string]interface{}{
				"transactionHash": "0xtxhash",
				"blockNumber":     "0x20",
				"gasUsed":         "0x5208",
				"status":          "0x1",
				"logs":            []interface{}{},
			}
		default:
			t.Errorf("unexpected method %s", req.Method)
			return nil
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithReceiptPollInterval(10*time.Millisecond))

	receipt, err := client.SubmitAndWait(context.Background(), TxMsg{From: "0xme", To: "0xagent", Gas: 500000})
	if err != nil {
		t.Fatalf("SubmitAndWait: %v", err)
	}
	if receipt.BlockNumber != 32 {
		t.Errorf("expected block 32, got %d", receipt.BlockNumber)
	}
	if receipt.GasUsed != 21000 {
		t.Errorf("expected gasUsed 21000, got %d", receipt.GasUsed)
	}
}

func TestHTTPClient_SubmitAndWait_Timeout(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, func(req rpcRequest) interface{} {
		switch req.Method {
		case "eth_sendTransaction":
			return "0xtxhash"
		default:
			// Receipt never appears.
			return nil
		}
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithReceiptPollInterval(5*time.Millisecond),
		WithConfirmTimeout(20*time.Millisecond))

	_, err := client.SubmitAndWait(context.Background(), TxMsg{From: "0xme", To: "0xagent"})
	if !errors.Is(err, ErrConfirmTimeout) {
		t.Fatalf("expected ErrConfirmTimeout, got %v", err)
	}
}

func TestDecodeRevertReason(t *testing.T) {
	// Error(string) payload for "Already processed".
	payload := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"0000000000000000000000000000000000000000000000000000000000000011" +
		"416c72656164792070726f636573736564000000000000000000000000000000"

	reason, ok := DecodeRevertReason(payload)
	if !ok {
		t.Fatal("expected payload to decode")
	}
	if reason != "Already processed" {
		t.Errorf("expected %q, got %q", "Already processed", reason)
	}
}

func TestDecodeRevertReason_NotRevertPayload(t *testing.T) {
	if _, ok := DecodeRevertReason("0xdeadbeef"); ok {
		t.Error("expected non-revert payload to fail")
	}
}
