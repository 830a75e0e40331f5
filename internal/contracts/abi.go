// Package contracts holds the strongly-typed bindings for the on-chain
// oracle and trading-agent interfaces, plus the minimal ABI codec they
// share. Each binding validates its addresses once at construction instead
// of assembling call data ad hoc per call site.
package contracts

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

const wordSize = 32

// keccak256 hashes data with the legacy Keccak-256 used by contract ABIs.
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// methodSelector returns the 4-byte selector for a function signature like
// "reactToNews(bytes32)".
func methodSelector(signature string) []byte {
	return keccak256([]byte(signature))[:4]
}

// Selector exposes the 4-byte function selector, mainly for call routing in
// test doubles.
func Selector(signature string) []byte {
	return methodSelector(signature)
}

// eventTopic returns the 0x-hex topic0 for an event signature.
func eventTopic(signature string) string {
	return "0x" + hex.EncodeToString(keccak256([]byte(signature)))
}

// parseHexWord parses a 0x-hex string of exactly n bytes.
func parseHexWord(s string, n int) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return nil, fmt.Errorf("missing 0x prefix: %q", s)
	}
	b, err := hex.DecodeString(s[2:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %q", s)
	}
	if len(b) != n {
		return nil, fmt.Errorf("expected %d bytes, got %d: %q", n, len(b), s)
	}
	return b, nil
}

// ValidAddress reports whether s is a 0x-hex 20-byte address.
func ValidAddress(s string) bool {
	_, err := parseHexWord(s, 20)
	return err == nil
}

// ValidHash reports whether s is a 0x-hex 32-byte value.
func ValidHash(s string) bool {
	_, err := parseHexWord(s, wordSize)
	return err == nil
}

// callBuilder assembles ABI call data using the standard head/tail layout.
type callBuilder struct {
	selector []byte
	head     [][]byte // one word per argument; nil marks a dynamic slot
	tail     [][]byte // encoded dynamic data, parallel to nil head slots
	err      error
}

func newCall(signature string) *callBuilder {
	return &callBuilder{selector: methodSelector(signature)}
}

func leftPad(b []byte) []byte {
	if len(b) >= wordSize {
		return b[len(b)-wordSize:]
	}
	word := make([]byte, wordSize)
	copy(word[wordSize-len(b):], b)
	return word
}

func uintWord(v *big.Int) []byte {
	return leftPad(v.Bytes())
}

func (c *callBuilder) addUint(v *big.Int) *callBuilder {
	if c.err == nil {
		c.head = append(c.head, uintWord(v))
		c.tail = append(c.tail, nil)
	}
	return c
}

func (c *callBuilder) addUint8(v uint8) *callBuilder {
	return c.addUint(big.NewInt(int64(v)))
}

func (c *callBuilder) addBytes32(hexStr string) *callBuilder {
	if c.err != nil {
		return c
	}
	b, err := parseHexWord(hexStr, wordSize)
	if err != nil {
		c.err = fmt.Errorf("bytes32 argument: %w", err)
		return c
	}
	c.head = append(c.head, b)
	c.tail = append(c.tail, nil)
	return c
}

func (c *callBuilder) addAddress(hexStr string) *callBuilder {
	if c.err != nil {
		return c
	}
	b, err := parseHexWord(hexStr, 20)
	if err != nil {
		c.err = fmt.Errorf("address argument: %w", err)
		return c
	}
	c.head = append(c.head, leftPad(b))
	c.tail = append(c.tail, nil)
	return c
}

func (c *callBuilder) addString(s string) *callBuilder {
	if c.err != nil {
		return c
	}
	data := []byte(s)
	padded := len(data)
	if rem := padded % wordSize; rem != 0 {
		padded += wordSize - rem
	}
	enc := make([]byte, wordSize+padded)
	copy(enc[:wordSize], uintWord(big.NewInt(int64(len(data)))))
	copy(enc[wordSize:], data)

	c.head = append(c.head, nil) // offset filled in encode
	c.tail = append(c.tail, enc)
	return c
}

// encode produces selector || head || tail, resolving dynamic offsets.
func (c *callBuilder) encode() ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}

	headSize := wordSize * len(c.head)
	var tail []byte

	out := make([]byte, 0, 4+headSize)
	out = append(out, c.selector...)

	for i, word := range c.head {
		if word != nil {
			out = append(out, word...)
			continue
		}
		offset := big.NewInt(int64(headSize + len(tail)))
		out = append(out, uintWord(offset)...)
		tail = append(tail, c.tail[i]...)
	}

	return append(out, tail...), nil
}

// returnData decodes ABI-encoded return values and event data.
type returnData struct {
	data []byte
}

func (d returnData) word(i int) ([]byte, error) {
	start := i * wordSize
	if start+wordSize > len(d.data) {
		return nil, fmt.Errorf("return data too short: want word %d, have %d bytes", i, len(d.data))
	}
	return d.data[start : start+wordSize], nil
}

func (d returnData) uint(i int) (*big.Int, error) {
	w, err := d.word(i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func (d returnData) uint8At(i int) (uint8, error) {
	v, err := d.uint(i)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("uint8 out of range: %s", v)
	}
	return uint8(v.Uint64()), nil
}

func (d returnData) boolAt(i int) (bool, error) {
	v, err := d.uint(i)
	if err != nil {
		return false, err
	}
	return v.Sign() != 0, nil
}

func (d returnData) bytes32At(i int) (string, error) {
	w, err := d.word(i)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(w), nil
}

func (d returnData) addressAt(i int) (string, error) {
	w, err := d.word(i)
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(w[12:]), nil
}

// stringAt decodes a dynamic string whose offset word sits at slot i.
// Offsets are relative to the start of d.
func (d returnData) stringAt(i int) (string, error) {
	offset, err := d.uint(i)
	if err != nil {
		return "", err
	}
	if !offset.IsUint64() {
		return "", fmt.Errorf("string offset out of range: %s", offset)
	}
	start := offset.Uint64()
	if start+wordSize > uint64(len(d.data)) {
		return "", fmt.Errorf("string offset %d beyond data", start)
	}
	length := binary.BigEndian.Uint64(d.data[start+wordSize-8 : start+wordSize])
	if start+wordSize+length > uint64(len(d.data)) {
		return "", fmt.Errorf("string length %d beyond data", length)
	}
	return string(d.data[start+wordSize : start+wordSize+length]), nil
}

// tupleAt returns the sub-data of a dynamic tuple whose offset word sits at
// slot i. Field slots inside the tuple are relative to the tuple start.
func (d returnData) tupleAt(i int) (returnData, error) {
	offset, err := d.uint(i)
	if err != nil {
		return returnData{}, err
	}
	if !offset.IsUint64() || offset.Uint64() > uint64(len(d.data)) {
		return returnData{}, fmt.Errorf("tuple offset out of range: %s", offset)
	}
	return returnData{data: d.data[offset.Uint64():]}, nil
}
