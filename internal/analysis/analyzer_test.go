package analysis

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"golang.org/x/time/rate"

	"example.com/billsage/backend/internal/ai"
	"example.com/billsage/backend/internal/metrics"
	"example.com/billsage/backend/internal/models"
)

type fakeClient struct {
	response string
	err      error
	calls    int
}

func (f *fakeClient) Generate(_ context.Context, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeClient) GenerateWithDocument(_ context.Context, _ string, _ []byte, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func strPtr(s string) *string { return &s }

func newAnalyzer(t *testing.T, client ai.Client, limiter *rate.Limiter) *Analyzer {
	t.Helper()

	service, err := ai.NewService(client)
	if err != nil {
		t.Fatalf("ai.NewService: %v", err)
	}

	return New(service, limiter, metrics.New(), slog.New(slog.DiscardHandler))
}

// TestAnalyzeItemsUsesAI проверяет применение вердиктов модели к строкам.
func TestAnalyzeItemsUsesAI(t *testing.T) {
	client := &fakeClient{response: `{"analyses":[{"isOverpriced":true,"recommendedPrice":180,"confidence":90,"reasoning":"above range","savings":120}]}`}
	analyzer := newAnalyzer(t, client, nil)

	items := []models.BillLineItem{{Description: "Office visit", BilledAmount: 300, Quantity: 1}}
	outcome := analyzer.AnalyzeItems(context.Background(), items)

	if outcome.UsedFallback {
		t.Fatal("expected ai path, not fallback")
	}
	if outcome.RawResponse == nil {
		t.Fatal("expected raw response to be kept")
	}
	if !outcome.Items[0].IsOverpriced || outcome.Items[0].RecommendedPrice != 180 {
		t.Fatalf("unexpected verdict: %+v", outcome.Items[0])
	}
}

// TestAnalyzeItemsFallsBackOnError проверяет переход на эвристику при сбое AI.
func TestAnalyzeItemsFallsBackOnError(t *testing.T) {
	client := &fakeClient{err: errors.New("quota exceeded")}
	analyzer := newAnalyzer(t, client, nil)

	items := []models.BillLineItem{{ServiceCode: strPtr("99213"), Description: "Office visit", BilledAmount: 300, Quantity: 1}}
	outcome := analyzer.AnalyzeItems(context.Background(), items)

	if !outcome.UsedFallback {
		t.Fatal("expected fallback path")
	}
	if outcome.RawResponse != nil {
		t.Fatal("expected no raw response on fallback")
	}
	if !outcome.Items[0].IsOverpriced {
		t.Fatal("expected heuristic to flag 300 > 250")
	}
	if outcome.Items[0].RecommendedPrice != 180 {
		t.Fatalf("expected heuristic recommendation 180, got %v", outcome.Items[0].RecommendedPrice)
	}
}

// TestAnalyzeItemsRateLimited проверяет эвристику при исчерпанном лимите AI.
func TestAnalyzeItemsRateLimited(t *testing.T) {
	client := &fakeClient{response: `{"analyses":[]}`}
	limiter := rate.NewLimiter(rate.Limit(0), 0)
	analyzer := newAnalyzer(t, client, limiter)

	items := []models.BillLineItem{{Description: "misc", BilledAmount: 50, Quantity: 1}}
	outcome := analyzer.AnalyzeItems(context.Background(), items)

	if !outcome.UsedFallback {
		t.Fatal("expected fallback when limiter denies")
	}
	if client.calls != 0 {
		t.Fatalf("expected no ai calls, got %d", client.calls)
	}
}

// TestAnalyzeItemsNeutralOnZeroAmount проверяет нейтральный вердикт для нулевой суммы.
func TestAnalyzeItemsNeutralOnZeroAmount(t *testing.T) {
	client := &fakeClient{err: errors.New("unavailable")}
	analyzer := newAnalyzer(t, client, nil)

	items := []models.BillLineItem{{Description: "adjustment", BilledAmount: 0, Quantity: 1}}
	outcome := analyzer.AnalyzeItems(context.Background(), items)

	item := outcome.Items[0]
	if item.IsOverpriced {
		t.Fatal("expected neutral verdict")
	}
	if item.Confidence != 50 {
		t.Fatalf("expected confidence 50, got %v", item.Confidence)
	}
	if item.Savings != 0 {
		t.Fatalf("expected zero savings, got %v", item.Savings)
	}
}

// TestBuildTotals проверяет инвариант savings == billed - recommended.
func TestBuildTotals(t *testing.T) {
	items := []models.BillLineItem{
		{BilledAmount: 300, RecommendedPrice: 180},
		{BilledAmount: 175.10, RecommendedPrice: 35.05},
	}

	totals := BuildTotals(items)
	if totals.Billed != 475.10 {
		t.Fatalf("unexpected billed total: %v", totals.Billed)
	}
	if totals.Recommended != 215.05 {
		t.Fatalf("unexpected recommended total: %v", totals.Recommended)
	}
	if totals.Savings != 260.05 {
		t.Fatalf("unexpected savings total: %v", totals.Savings)
	}
}

// TestBuildTotalsEmpty проверяет нулевые итоги для пустого списка строк.
func TestBuildTotalsEmpty(t *testing.T) {
	totals := BuildTotals(nil)
	if totals.Billed != 0 || totals.Recommended != 0 || totals.Savings != 0 {
		t.Fatalf("expected zero totals, got %+v", totals)
	}
}
