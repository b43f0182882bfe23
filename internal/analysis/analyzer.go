// Package analysis выносит ценовые вердикты по строкам счета:
// сначала через AI, при сбое через эвристику по справочной таблице.
package analysis

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"example.com/billsage/backend/internal/ai"
	"example.com/billsage/backend/internal/metrics"
	"example.com/billsage/backend/internal/models"
	"example.com/billsage/backend/internal/pricing"
)

const neutralReasoning = "AI analysis unavailable. Please consult with a medical billing advocate for detailed review."

// Analyzer применяет вердикты к строкам счета и считает итоги.
type Analyzer struct {
	ai      *ai.Service
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New создает анализатор поверх AI-сервиса.
func New(aiService *ai.Service, limiter *rate.Limiter, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		ai:      aiService,
		limiter: limiter,
		metrics: m,
		logger:  logger,
	}
}

// Outcome — результат анализа: строки с вердиктами и сырой ответ модели.
type Outcome struct {
	Items        []models.BillLineItem
	RawResponse  *string
	UsedFallback bool
}

// AnalyzeItems проставляет вердикт каждой строке. Ошибок не возвращает:
// при недоступности AI строки оцениваются эвристикой, счет всегда
// доводится до состояния analyzed.
func (a *Analyzer) AnalyzeItems(ctx context.Context, items []models.BillLineItem) Outcome {
	if len(items) == 0 {
		return Outcome{Items: items}
	}

	if a.limiter != nil && !a.limiter.Allow() {
		a.logger.Warn("ai rate limit reached, falling back to heuristic", slog.Int("items", len(items)))
		return a.analyzeWithFallback(items)
	}

	inputs := make([]ai.AnalysisInput, len(items))
	for i, item := range items {
		inputs[i] = ai.AnalysisInput{
			ServiceCode:    item.ServiceCode,
			Description:    item.Description,
			BilledAmount:   item.BilledAmount,
			Quantity:       item.Quantity,
			InsurerAllowed: item.InsurerAllowed,
		}
	}

	analyses, raw, err := a.ai.AnalyzeLineItems(ctx, inputs)
	if err != nil {
		a.metrics.AIRequests.WithLabelValues("analyze", metrics.OutcomeError).Inc()
		a.logger.Warn("ai analysis failed, falling back to heuristic",
			slog.Int("items", len(items)),
			slog.String("error", err.Error()),
		)
		return a.analyzeWithFallback(items)
	}

	a.metrics.AIRequests.WithLabelValues("analyze", metrics.OutcomeOK).Inc()

	out := make([]models.BillLineItem, len(items))
	for i, item := range items {
		item.IsOverpriced = analyses[i].IsOverpriced
		item.RecommendedPrice = analyses[i].RecommendedPrice
		item.Confidence = analyses[i].Confidence
		item.Reasoning = analyses[i].Reasoning
		item.Savings = analyses[i].Savings
		out[i] = item
	}

	var rawResponse *string
	if raw != "" {
		rawResponse = &raw
	}

	return Outcome{Items: out, RawResponse: rawResponse}
}

func (a *Analyzer) analyzeWithFallback(items []models.BillLineItem) Outcome {
	out := make([]models.BillLineItem, len(items))
	for i, item := range items {
		var result pricing.Result
		if item.BilledAmount > 0 {
			result = pricing.Analyze(pricing.Input{
				ServiceCode:  item.ServiceCode,
				Description:  item.Description,
				BilledAmount: item.BilledAmount,
				Quantity:     item.Quantity,
			})
		} else {
			result = neutralResult(item.BilledAmount)
		}

		item.IsOverpriced = result.IsOverpriced
		item.RecommendedPrice = result.RecommendedPrice
		item.Confidence = result.Confidence
		item.Reasoning = result.Reasoning
		item.Savings = result.Savings
		out[i] = item

		a.metrics.FallbackAnalyses.Inc()
	}

	return Outcome{Items: out, UsedFallback: true}
}

// neutralResult — вердикт без оценки: строка не помечается завышенной,
// рекомендация равна выставленной сумме.
func neutralResult(billed float64) pricing.Result {
	return pricing.Result{
		IsOverpriced:     false,
		RecommendedPrice: billed,
		Confidence:       50,
		Reasoning:        neutralReasoning,
		Savings:          0,
	}
}

// Totals — агрегаты счета по строкам.
type Totals struct {
	Billed      float64
	Recommended float64
	Savings     float64
}

// BuildTotals считает итоги счета. Инвариант: savings == billed - recommended.
func BuildTotals(items []models.BillLineItem) Totals {
	var totals Totals
	for _, item := range items {
		totals.Billed += item.BilledAmount
		totals.Recommended += item.RecommendedPrice
	}

	totals.Billed = pricing.Round2(totals.Billed)
	totals.Recommended = pricing.Round2(totals.Recommended)
	totals.Savings = pricing.Round2(totals.Billed - totals.Recommended)
	return totals
}
