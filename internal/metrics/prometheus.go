// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps the prometheus collectors for the scan pipeline.
type Metrics struct {
	registry *prometheus.Registry

	scansTotal      *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	itemsExtracted  prometheus.Counter
	reviewerTotal   *prometheus.CounterVec
	verdictsTotal   *prometheus.CounterVec
	ticketsCreated  prometheus.Counter
	commentsAdded   prometheus.Counter
	attacksTotal    *prometheus.CounterVec
	findingsCreated prometheus.Counter
}

// scan duration buckets in seconds; scans are dominated by reviewer latency.
var durationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

var instance *Metrics

// Init initializes the metrics subsystem with the given namespace.
func Init(namespace string) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		scansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Completed scans by outcome",
			},
			[]string{"outcome"},
		),
		scanDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "End-to-end scan duration",
				Buckets:   durationBuckets,
			},
		),
		itemsExtracted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_extracted_total",
				Help:      "Endpoints and functions extracted across scans",
			},
		),
		reviewerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reviewer_requests_total",
				Help:      "Reviewer calls by backend and outcome",
			},
			[]string{"backend", "outcome"},
		),
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "verdicts_total",
				Help:      "Consensus outcomes by provenance tag",
			},
			[]string{"tag"},
		),
		ticketsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracker_tickets_created_total",
				Help:      "Tracker issues created by the dispatcher",
			},
		),
		commentsAdded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracker_comments_added_total",
				Help:      "Recurrence comments added by the dispatcher",
			},
		),
		attacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attacks_simulated_total",
				Help:      "Simulated attacks by result",
			},
			[]string{"result"},
		),
		findingsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_created_total",
				Help:      "Findings persisted from successful exploits",
			},
		),
	}

	registry.MustRegister(
		m.scansTotal, m.scanDuration, m.itemsExtracted,
		m.reviewerTotal, m.verdictsTotal,
		m.ticketsCreated, m.commentsAdded,
		m.attacksTotal, m.findingsCreated,
	)
	instance = m
}

// Handler returns the /metrics HTTP handler. Before Init it serves an empty
// registry so the endpoint is always mountable.
func Handler() http.Handler {
	if instance == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(instance.registry, promhttp.HandlerOpts{})
}

// ScanCompleted records a finished scan.
func ScanCompleted(outcome string, elapsed time.Duration, items int) {
	if instance == nil {
		return
	}
	instance.scansTotal.WithLabelValues(outcome).Inc()
	instance.scanDuration.Observe(elapsed.Seconds())
	instance.itemsExtracted.Add(float64(items))
}

// ReviewerRequest records one reviewer call outcome: ok, error, unparseable.
func ReviewerRequest(backend, outcome string) {
	if instance == nil {
		return
	}
	instance.reviewerTotal.WithLabelValues(backend, outcome).Inc()
}

// VerdictReached records a consensus outcome tag.
func VerdictReached(tag string) {
	if instance == nil {
		return
	}
	instance.verdictsTotal.WithLabelValues(tag).Inc()
}

// TicketCreated records one created tracker issue.
func TicketCreated() {
	if instance != nil {
		instance.ticketsCreated.Inc()
	}
}

// CommentAdded records one recurrence comment.
func CommentAdded() {
	if instance != nil {
		instance.commentsAdded.Inc()
	}
}

// AttackSimulated records one simulated attack.
func AttackSimulated(success bool) {
	if instance == nil {
		return
	}
	result := "failed"
	if success {
		result = "succeeded"
	}
	instance.attacksTotal.WithLabelValues(result).Inc()
}

// FindingCreated records one persisted finding.
func FindingCreated() {
	if instance != nil {
		instance.findingsCreated.Inc()
	}
}
