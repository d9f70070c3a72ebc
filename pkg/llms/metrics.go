package llms

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bioagent",
		Subsystem: "llm",
		Name:      "generate_total",
		Help:      "LLM calls by model and outcome.",
	}, []string{"model", "outcome"})

	generateDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bioagent",
		Subsystem: "llm",
		Name:      "generate_duration_seconds",
		Help:      "LLM call wall time.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"model"})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bioagent",
		Subsystem: "llm",
		Name:      "tokens_total",
		Help:      "Tokens consumed by model and direction.",
	}, []string{"model", "direction"})
)

func observeGenerate(model string, err error, usage Usage, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	generateTotal.WithLabelValues(model, outcome).Inc()
	generateDuration.WithLabelValues(model).Observe(elapsed.Seconds())
	if usage.InputTokens > 0 {
		tokensTotal.WithLabelValues(model, "input").Add(float64(usage.InputTokens))
	}
	if usage.OutputTokens > 0 {
		tokensTotal.WithLabelValues(model, "output").Add(float64(usage.OutputTokens))
	}
}
