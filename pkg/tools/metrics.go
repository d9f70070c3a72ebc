package tools

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dispatchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bioagent",
		Subsystem: "tools",
		Name:      "dispatch_total",
		Help:      "Tool invocations by tool name and outcome code.",
	}, []string{"tool", "code"})

	dispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bioagent",
		Subsystem: "tools",
		Name:      "dispatch_duration_seconds",
		Help:      "Tool handler wall time.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"tool"})
)

func observeDispatch(tool, code string, elapsed time.Duration) {
	if code == "" {
		code = "ok"
	}
	dispatchTotal.WithLabelValues(tool, code).Inc()
	if elapsed > 0 {
		dispatchDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
	}
}
