package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanOutcomes counts resolved operator inputs by outcome
	ScanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldcollect",
		Name:      "scan_outcomes_total",
		Help:      "Operator scan inputs by resulting transition.",
	}, []string{"outcome"})

	// FeedbackEvents counts feedback emitted to operators by category
	FeedbackEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldcollect",
		Name:      "feedback_events_total",
		Help:      "Feedback events emitted by category.",
	}, []string{"category"})

	// RecordsEmitted counts ledger appends by record status
	RecordsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldcollect",
		Name:      "records_emitted_total",
		Help:      "Collection records appended to session ledgers.",
	}, []string{"status"})

	// LocationUpdates counts continuous-tracking fixes by filter decision
	LocationUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldcollect",
		Name:      "location_updates_total",
		Help:      "Continuous tracking fixes by filter decision (propagated, suppressed, rejected).",
	}, []string{"decision"})

	// FixAttempts counts single-fix acquisitions by result
	FixAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldcollect",
		Name:      "fix_attempts_total",
		Help:      "Single fix acquisition attempts by result.",
	}, []string{"result"})

	// SegmentCache counts planner segment cache lookups
	SegmentCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fieldcollect",
		Name:      "segment_cache_lookups_total",
		Help:      "Route segmentation cache lookups by result (hit, miss).",
	}, []string{"result"})

	// ActiveSessions is the number of open collection sessions
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fieldcollect",
		Name:      "active_sessions",
		Help:      "Open collection sessions.",
	})

	// HTTPRequestDuration observes API latency by route pattern and status
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fieldcollect",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route pattern and status code.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
