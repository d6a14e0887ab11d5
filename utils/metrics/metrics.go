package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unilink_http_requests_total", Help: "HTTP requests by method, route and status"},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "unilink_http_request_duration_seconds", Help: "HTTP request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)

	OutboxProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unilink_outbox_processed_total", Help: "Outbox events projected successfully"},
		[]string{"entity_type"},
	)
	OutboxFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unilink_outbox_failed_total", Help: "Outbox events that failed to project"},
		[]string{"entity_type"},
	)
	DeadLetters = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "unilink_outbox_dead_letters_total", Help: "Outbox events moved to the dead letter table"},
	)

	CredentialsIssued = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "unilink_credentials_issued_total", Help: "Credential issuance transactions submitted"},
	)
	CredentialVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "unilink_credential_verifications_total", Help: "Credential verifications by outcome"},
		[]string{"outcome"},
	)

	registerOnce sync.Once
)

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequests, HTTPDuration,
			OutboxProcessed, OutboxFailed, DeadLetters,
			CredentialsIssued, CredentialVerifications,
		)
	})
}
