package contracts

import (
	"context"
	"fmt"
	"math/big"

	"news-trader/internal/domain"
	"news-trader/internal/ledger"
)

// Function and event signatures of the news oracle contract.
const (
	sigPostClassification     = "postClassification(string,uint8,uint8,bytes32)"
	sigGetClassification      = "getClassification(bytes32)"
	sigGetClassificationCount = "getClassificationCount()"
	sigGetClassificationIDAt  = "getClassificationIdByIndex(uint256)"
	sigNewsClassified         = "NewsClassified(bytes32,string,uint8,uint8,bytes32,uint256,address)"
)

// NewsOracle is the typed binding for the classification oracle contract.
type NewsOracle struct {
	client  ledger.Client
	address string
	from    string // signing account for postClassification

	newsClassifiedTopic string
}

// NewNewsOracle creates a binding. Addresses are validated here, once.
func NewNewsOracle(client ledger.Client, address, from string) (*NewsOracle, error) {
	if !ValidAddress(address) {
		return nil, fmt.Errorf("invalid oracle address: %q", address)
	}
	if from != "" && !ValidAddress(from) {
		return nil, fmt.Errorf("invalid signer address: %q", from)
	}
	return &NewsOracle{
		client:              client,
		address:             address,
		from:                from,
		newsClassifiedTopic: eventTopic(sigNewsClassified),
	}, nil
}

// Address returns the contract address.
func (o *NewsOracle) Address() string {
	return o.address
}

// NewsClassifiedTopic returns topic0 of the NewsClassified event, for log
// filtering.
func (o *NewsOracle) NewsClassifiedTopic() string {
	return o.newsClassifiedTopic
}

// PostClassification submits a classification and waits for one
// confirmation. Not idempotent: two identical calls create two distinct
// classifications.
func (o *NewsOracle) PostClassification(ctx context.Context, headline string, sentiment domain.Sentiment, confidence uint8, proofHash string, gasLimit uint64) (*ledger.Receipt, error) {
	data, err := newCall(sigPostClassification).
		addString(headline).
		addUint8(uint8(sentiment)).
		addUint8(confidence).
		addBytes32(proofHash).
		encode()
	if err != nil {
		return nil, fmt.Errorf("encode postClassification: %w", err)
	}

	return o.client.SubmitAndWait(ctx, ledger.TxMsg{
		From: o.from,
		To:   o.address,
		Data: data,
		Gas:  gasLimit,
	})
}

// GetClassification reads a confirmed classification by id.
func (o *NewsOracle) GetClassification(ctx context.Context, id string) (*domain.Classification, error) {
	data, err := newCall(sigGetClassification).addBytes32(id).encode()
	if err != nil {
		return nil, fmt.Errorf("encode getClassification: %w", err)
	}

	out, err := o.client.Call(ctx, ledger.CallMsg{From: o.from, To: o.address, Data: data})
	if err != nil {
		return nil, err
	}

	d := returnData{data: out}
	headline, err := d.stringAt(0)
	if err != nil {
		return nil, fmt.Errorf("decode headline: %w", err)
	}
	sentiment, err := d.uint8At(1)
	if err != nil {
		return nil, fmt.Errorf("decode sentiment: %w", err)
	}
	confidence, err := d.uint8At(2)
	if err != nil {
		return nil, fmt.Errorf("decode confidence: %w", err)
	}
	proofHash, err := d.bytes32At(3)
	if err != nil {
		return nil, fmt.Errorf("decode proofHash: %w", err)
	}
	timestamp, err := d.uint(4)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}
	sourceAgent, err := d.addressAt(5)
	if err != nil {
		return nil, fmt.Errorf("decode sourceAgent: %w", err)
	}

	return &domain.Classification{
		ID:            id,
		Headline:      headline,
		Sentiment:     domain.Sentiment(sentiment),
		Confidence:    confidence,
		ProofRef:      proofHash,
		Timestamp:     timestamp.Int64(),
		SourceAgentID: sourceAgent,
	}, nil
}

// GetClassificationCount returns the total number of classifications.
func (o *NewsOracle) GetClassificationCount(ctx context.Context) (int64, error) {
	data, err := newCall(sigGetClassificationCount).encode()
	if err != nil {
		return 0, err
	}

	out, err := o.client.Call(ctx, ledger.CallMsg{From: o.from, To: o.address, Data: data})
	if err != nil {
		return 0, err
	}

	count, err := returnData{data: out}.uint(0)
	if err != nil {
		return 0, fmt.Errorf("decode count: %w", err)
	}
	if !count.IsInt64() {
		return 0, fmt.Errorf("classification count out of range: %s", count)
	}
	return count.Int64(), nil
}

// GetClassificationIDByIndex returns the id at a given index, for
// index-based catch-up scans.
func (o *NewsOracle) GetClassificationIDByIndex(ctx context.Context, index int64) (string, error) {
	data, err := newCall(sigGetClassificationIDAt).addUint(big.NewInt(index)).encode()
	if err != nil {
		return "", err
	}

	out, err := o.client.Call(ctx, ledger.CallMsg{From: o.from, To: o.address, Data: data})
	if err != nil {
		return "", err
	}

	return returnData{data: out}.bytes32At(0)
}

// NewsClassifiedEvent is one decoded NewsClassified log.
type NewsClassifiedEvent struct {
	ClassificationID string
	Headline         string
	Sentiment        domain.Sentiment
	Confidence       uint8
	ProofHash        string
	Timestamp        int64
	SourceAgentID    string
	BlockNumber      int64
	TxHash           string
}

// Classification converts the event into the confirmed domain record.
func (e *NewsClassifiedEvent) Classification() *domain.Classification {
	return &domain.Classification{
		ID:            e.ClassificationID,
		Headline:      e.Headline,
		Sentiment:     e.Sentiment,
		Confidence:    e.Confidence,
		ProofRef:      e.ProofHash,
		Timestamp:     e.Timestamp,
		SourceAgentID: e.SourceAgentID,
		BlockNumber:   e.BlockNumber,
		TxHash:        e.TxHash,
	}
}

// ParseNewsClassified decodes a NewsClassified log. Returns an error if the
// log is not this event.
func (o *NewsOracle) ParseNewsClassified(l ledger.Log) (*NewsClassifiedEvent, error) {
	if len(l.Topics) < 3 || l.Topics[0] != o.newsClassifiedTopic {
		return nil, fmt.Errorf("log is not NewsClassified")
	}

	d := returnData{data: l.Data}
	headline, err := d.stringAt(0)
	if err != nil {
		return nil, fmt.Errorf("decode headline: %w", err)
	}
	sentiment, err := d.uint8At(1)
	if err != nil {
		return nil, fmt.Errorf("decode sentiment: %w", err)
	}
	confidence, err := d.uint8At(2)
	if err != nil {
		return nil, fmt.Errorf("decode confidence: %w", err)
	}
	proofHash, err := d.bytes32At(3)
	if err != nil {
		return nil, fmt.Errorf("decode proofHash: %w", err)
	}
	timestamp, err := d.uint(4)
	if err != nil {
		return nil, fmt.Errorf("decode timestamp: %w", err)
	}

	agentTopic, err := parseHexWord(l.Topics[2], wordSize)
	if err != nil {
		return nil, fmt.Errorf("decode sourceAgent topic: %w", err)
	}

	return &NewsClassifiedEvent{
		ClassificationID: l.Topics[1],
		Headline:         headline,
		Sentiment:        domain.Sentiment(sentiment),
		Confidence:       confidence,
		ProofHash:        proofHash,
		Timestamp:        timestamp.Int64(),
		SourceAgentID:    "0x" + fmt.Sprintf("%x", agentTopic[12:]),
		BlockNumber:      l.BlockNumber,
		TxHash:           l.TxHash,
	}, nil
}

// FindNewsClassified scans receipt logs for the NewsClassified event. This
// is the only way the assigned classification id becomes known.
func (o *NewsOracle) FindNewsClassified(receipt *ledger.Receipt) (*NewsClassifiedEvent, error) {
	for _, l := range receipt.Logs {
		if len(l.Topics) > 0 && l.Topics[0] == o.newsClassifiedTopic {
			return o.ParseNewsClassified(l)
		}
	}
	return nil, fmt.Errorf("no NewsClassified event in receipt %s", receipt.TxHash)
}
