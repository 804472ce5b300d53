package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ticksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solver",
			Name:      "ticks_total",
			Help:      "Number of processed block ticks.",
		},
		[]string{"chain"},
	)
	tradesExecuted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "solver",
			Name:      "trades_executed_total",
			Help:      "Number of successfully relayed trades.",
		},
	)
	tradesFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "solver",
			Name:      "trades_failed_total",
			Help:      "Number of trades that failed during execution.",
		},
	)
	candidatesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "solver",
			Name:      "candidates_skipped_total",
			Help:      "Number of candidates skipped during evaluation.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		ticksProcessed,
		tradesExecuted,
		tradesFailed,
		candidatesSkipped,
	)
}

// TickProcessed increments the tick counter for the given chain.
func TickProcessed(chainID uint64) {
	ticksProcessed.WithLabelValues(strconv.FormatUint(chainID, 10)).Inc()
}

// TradeExecuted increments the executed-trade counter.
func TradeExecuted() {
	tradesExecuted.Inc()
}

// TradeFailed increments the failed-trade counter.
func TradeFailed() {
	tradesFailed.Inc()
}

// CandidateSkipped increments the skip counter for the given reason.
func CandidateSkipped(reason string) {
	candidatesSkipped.WithLabelValues(reason).Inc()
}
