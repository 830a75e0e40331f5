// Package prover produces the verifiable artifact that accompanies every
// posted classification. The pipeline only ever carries the artifact's
// 32-byte commitment; the artifact body stays with the prover backend.
package prover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"news-trader/internal/domain"
)

// Artifact is the result of proving one classification.
type Artifact struct {
	ProofHash string // 0x-hex bytes32 commitment
	Backend   string
}

// Prover generates a proof artifact binding a headline, its feature
// vector, and the resulting sentiment.
type Prover interface {
	Prove(ctx context.Context, headline string, features []float64, sentiment domain.Sentiment) (*Artifact, error)
}

// HashProver is the default backend: a deterministic commitment over the
// canonical classification input. It proves nothing cryptographically
// beyond integrity, but keeps the wire format identical to a real proving
// backend.
type HashProver struct{}

// NewHashProver creates the commitment-only backend.
func NewHashProver() *HashProver {
	return &HashProver{}
}

// Prove hashes the canonical encoding of the input. Same input, same hash.
func (p *HashProver) Prove(_ context.Context, headline string, features []float64, sentiment domain.Sentiment) (*Artifact, error) {
	if !sentiment.Valid() {
		return nil, fmt.Errorf("invalid sentiment %d", uint8(sentiment))
	}

	var b strings.Builder
	b.WriteString(headline)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(sentiment)))
	for _, f := range features {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}

	sum := sha256.Sum256([]byte(b.String()))
	return &Artifact{
		ProofHash: "0x" + hex.EncodeToString(sum[:]),
		Backend:   "sha256-commitment",
	}, nil
}

var _ Prover = (*HashProver)(nil)
