// Package metrics регистрирует счетчики Prometheus для конвейера анализа счетов.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Источники создания счетов.
const (
	SourceCSV      = "csv"
	SourceDocument = "document"
)

// Исходы запросов к AI.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics — набор счетчиков конвейера.
type Metrics struct {
	registry *prometheus.Registry

	BillsCreated     *prometheus.CounterVec
	AIRequests       *prometheus.CounterVec
	FallbackAnalyses prometheus.Counter
}

// New создает реестр и регистрирует счетчики приложения.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		BillsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billsage",
			Name:      "bills_created_total",
			Help:      "Количество созданных счетов по источнику загрузки.",
		}, []string{"source"}),
		AIRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billsage",
			Name:      "ai_requests_total",
			Help:      "Количество запросов к AI по операции и исходу.",
		}, []string{"operation", "outcome"}),
		FallbackAnalyses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "billsage",
			Name:      "fallback_analyses_total",
			Help:      "Количество строк, оцененных эвристикой вместо AI.",
		}),
	}
}

// Handler возвращает HTTP-обработчик выдачи метрик.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
