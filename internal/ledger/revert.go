package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"strings"
)

// errorStringSelector is the 4-byte selector of Error(string), the standard
// revert payload.
var errorStringSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// revertReasonFromError extracts a revert reason from a JSON-RPC error, if
// the error represents reverted execution.
func revertReasonFromError(err error) (string, bool) {
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		return "", false
	}

	msg := strings.ToLower(rpcErr.Message)
	if !strings.Contains(msg, "revert") {
		return "", false
	}

	// Some nodes put the reason straight into the message.
	if idx := strings.Index(rpcErr.Message, "reverted: "); idx >= 0 {
		return rpcErr.Message[idx+len("reverted: "):], true
	}

	// Others return the raw Error(string) payload in the data field.
	if len(rpcErr.Data) > 0 {
		var dataHex string
		if json.Unmarshal(rpcErr.Data, &dataHex) == nil {
			if reason, ok := DecodeRevertReason(dataHex); ok {
				return reason, true
			}
		}
	}

	return "", true
}

// DecodeRevertReason decodes an Error(string) revert payload from 0x-hex
// return data. Returns false if the payload is not a standard revert string.
func DecodeRevertReason(dataHex string) (string, bool) {
	data, err := decodeHexData(dataHex)
	if err != nil {
		return "", false
	}
	if len(data) < 4+32+32 {
		return "", false
	}
	for i, b := range errorStringSelector {
		if data[i] != b {
			return "", false
		}
	}

	body := data[4:]
	offset := binary.BigEndian.Uint64(body[24:32])
	if offset != 32 || len(body) < 64 {
		return "", false
	}
	length := binary.BigEndian.Uint64(body[32+24 : 64])
	if uint64(len(body)) < 64+length {
		return "", false
	}
	return string(body[64 : 64+length]), true
}
