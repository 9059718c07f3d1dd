// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "billing",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	InvoicesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Name:      "invoices_generated_total",
		Help:      "Invoices created, by booking type.",
	}, []string{"booking_type"})

	ScheduleAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Name:      "schedule_attempts_total",
		Help:      "Authorization and capture attempts by stage and outcome.",
	}, []string{"stage", "outcome"})

	ReferralRewards = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "billing",
		Name:      "referral_rewards_total",
		Help:      "Referral tracking requests by outcome.",
	}, []string{"outcome"})

	SweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "billing",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of bulk sweeps.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"sweep"})
)
