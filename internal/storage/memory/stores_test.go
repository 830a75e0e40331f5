package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"news-trader/internal/domain"
	"news-trader/internal/storage"
)

func classification(id string, ts int64) *domain.Classification {
	return &domain.Classification{
		ID:         id,
		Headline:   "headline " + id,
		Sentiment:  domain.SentimentGood,
		Confidence: 85,
		ProofRef:   "0x2222222222222222222222222222222222222222222222222222222222222222",
		Timestamp:  ts,
	}
}

func trade(id string) *domain.TradeRecord {
	return &domain.TradeRecord{
		ClassificationID:     id,
		Action:               domain.ActionBuy,
		AmountIn:             big.NewInt(100),
		AmountOut:            big.NewInt(95),
		Timestamp:            1700000100,
		PortfolioValueBefore: decimal.NewFromInt(10),
	}
}

func TestClassificationStore_InsertAndGet(t *testing.T) {
	store := NewClassificationStore()
	ctx := context.Background()

	c := classification("0x01", 1700000000)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByID(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Headline != c.Headline {
		t.Errorf("Headline mismatch: got %s, want %s", got.Headline, c.Headline)
	}
	if got.Sentiment != domain.SentimentGood {
		t.Errorf("Sentiment mismatch: got %v", got.Sentiment)
	}

	// Mutating the returned copy must not affect the store.
	got.Headline = "mutated"
	again, _ := store.GetByID(ctx, "0x01")
	if again.Headline != c.Headline {
		t.Error("store returned a shared reference")
	}
}

func TestClassificationStore_DuplicateKey(t *testing.T) {
	store := NewClassificationStore()
	ctx := context.Background()

	if err := store.Insert(ctx, classification("0x01", 1700000000)); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	err := store.Insert(ctx, classification("0x01", 1700000001))
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestClassificationStore_NotFound(t *testing.T) {
	store := NewClassificationStore()

	_, err := store.GetByID(context.Background(), "0xmissing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClassificationStore_GetRecent(t *testing.T) {
	store := NewClassificationStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("0x%02d", i)
		if err := store.Insert(ctx, classification(id, int64(1700000000+i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, 3)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3, got %d", len(recent))
	}
	if recent[0].ID != "0x04" || recent[2].ID != "0x02" {
		t.Errorf("wrong order: %s, %s", recent[0].ID, recent[2].ID)
	}
}

func TestClassificationStore_GetByTimeRange(t *testing.T) {
	store := NewClassificationStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("0x%02d", i)
		if err := store.Insert(ctx, classification(id, int64(1700000000+i*10))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetByTimeRange(ctx, 1700000010, 1700000030)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].ID != "0x01" || got[2].ID != "0x03" {
		t.Errorf("wrong order: %s, %s", got[0].ID, got[2].ID)
	}
}

func TestClassificationStore_InvalidInput(t *testing.T) {
	store := NewClassificationStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Classification{}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty id, got %v", err)
	}
}

func TestClassificationStore_ConcurrentInsert(t *testing.T) {
	store := NewClassificationStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("0x%04d", n)
			if err := store.Insert(ctx, classification(id, int64(n))); err != nil {
				t.Errorf("Insert failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	recent, err := store.GetRecent(ctx, 100)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 50 {
		t.Errorf("expected 50 records, got %d", len(recent))
	}
}

func TestTradeStore_InsertAndGet(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.Insert(ctx, trade("0x01")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByClassificationID(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetByClassificationID failed: %v", err)
	}
	if got.Action != domain.ActionBuy {
		t.Errorf("Action mismatch: got %s", got.Action)
	}
	if got.HasBeenEvaluated {
		t.Error("new trade must not be evaluated")
	}
}

func TestTradeStore_DuplicateKey(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.Insert(ctx, trade("0x01")); err != nil {
		t.Fatalf("first Insert failed: %v", err)
	}
	if err := store.Insert(ctx, trade("0x01")); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestTradeStore_MarkEvaluated(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	if err := store.Insert(ctx, trade("0x01")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	after := decimal.RequireFromString("10.5")
	if err := store.MarkEvaluated(ctx, "0x01", after, true); err != nil {
		t.Fatalf("MarkEvaluated failed: %v", err)
	}

	got, err := store.GetByClassificationID(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetByClassificationID failed: %v", err)
	}
	if !got.HasBeenEvaluated || !got.IsProfitable {
		t.Errorf("verdict not written: evaluated=%v profitable=%v", got.HasBeenEvaluated, got.IsProfitable)
	}
	if !got.PortfolioValueAfter.Equal(after) {
		t.Errorf("value after mismatch: %s", got.PortfolioValueAfter)
	}

	// Second write is rejected.
	err = store.MarkEvaluated(ctx, "0x01", after, false)
	if !errors.Is(err, storage.ErrAlreadyEvaluated) {
		t.Errorf("expected ErrAlreadyEvaluated, got %v", err)
	}
}

func TestTradeStore_MarkEvaluated_NotFound(t *testing.T) {
	store := NewTradeStore()

	err := store.MarkEvaluated(context.Background(), "0xmissing", decimal.Zero, false)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTradeStore_GetRecent(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.Insert(ctx, trade(fmt.Sprintf("0x%02d", i))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	recent, err := store.GetRecent(ctx, 2)
	if err != nil {
		t.Fatalf("GetRecent failed: %v", err)
	}
	if len(recent) != 2 || recent[0].ClassificationID != "0x03" {
		t.Errorf("wrong recent set: %+v", recent)
	}
}

func TestValuationStore_RecordAndQuery(t *testing.T) {
	store := NewValuationStore()
	ctx := context.Background()

	points := []domain.ValuationPoint{
		{ObservedAt: 1000, Value: decimal.NewFromInt(10), Stage: domain.ValuationStageBeforeTrade, ClassificationID: "0x01"},
		{ObservedAt: 2000, Value: decimal.NewFromInt(11), Stage: domain.ValuationStageAfterTrade, ClassificationID: "0x01"},
		{ObservedAt: 3000, Value: decimal.NewFromInt(12), Stage: domain.ValuationStageEvaluation, ClassificationID: "0x02"},
	}
	for _, p := range points {
		if err := store.RecordValuation(ctx, p); err != nil {
			t.Fatalf("RecordValuation failed: %v", err)
		}
	}

	forTrade, err := store.GetByClassificationID(ctx, "0x01")
	if err != nil {
		t.Fatalf("GetByClassificationID failed: %v", err)
	}
	if len(forTrade) != 2 || forTrade[0].Stage != domain.ValuationStageBeforeTrade {
		t.Errorf("wrong points for trade: %+v", forTrade)
	}

	ranged, err := store.GetByTimeRange(ctx, 2000, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(ranged) != 2 || ranged[1].ObservedAt != 3000 {
		t.Errorf("wrong ranged points: %+v", ranged)
	}
}

func TestValuationStore_InvalidInput(t *testing.T) {
	store := NewValuationStore()

	err := store.RecordValuation(context.Background(), domain.ValuationPoint{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
