package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TokenRedemptions records portal token redemption attempts by result
	// (success|not_ready|archived|invalid).
	TokenRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clientdeck_portal_redemptions_total",
			Help: "Total number of portal access token redemption attempts",
		},
		[]string{"result"},
	)

	// AccessRequests counts self-service link requests. The counter is not
	// labelled by approval outcome so metrics cannot become an enumeration
	// side channel.
	AccessRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientdeck_portal_access_requests_total",
			Help: "Total number of self-service portal access link requests",
		},
	)

	// InvitesIssued counts staff-issued customer invitations.
	InvitesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clientdeck_portal_invites_total",
			Help: "Total number of customer invitations issued",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clientdeck_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
