package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckinActions counts photographer actions by action and outcome.
	CheckinActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shootday_checkin_actions_total",
		Help: "Check-in actions by action and result.",
	}, []string{"action", "result"})

	// CheckinRecordsUpdated counts records touched by fan-out writes.
	CheckinRecordsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shootday_checkin_records_updated_total",
		Help: "Check-in records written by fan-out, by action.",
	}, []string{"action"})

	// TravelEstimates counts travel-time lookups by source.
	TravelEstimates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shootday_travel_estimates_total",
		Help: "Travel-time estimates by source (cache, fresh, fallback).",
	}, []string{"source"})

	// ProviderCalls counts external geocode/route calls by result.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shootday_provider_calls_total",
		Help: "External route provider calls by result.",
	}, []string{"result"})

	// ProviderLatency observes external route provider latency.
	ProviderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "shootday_provider_call_seconds",
		Help:    "Latency of geocode plus route lookups.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
	})

	// AlertRows reports the size of the latest alert feed by state.
	AlertRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shootday_alert_rows",
		Help: "Rows in the most recent alert feed computation, by state.",
	}, []string{"state"})
)
