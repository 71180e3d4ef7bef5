// Package observability declares the Prometheus metrics of the form service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess   = "success"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomePartial   = "partial"
	OutcomeValid     = "valid"
	OutcomeInvalid   = "invalid"
	OutcomeCancelled = "cancelled"
)

var (
	// EventLoads counts event metadata fetches
	EventLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_reg_form_event_loads_total",
			Help: "Number of event metadata fetches",
		},
		[]string{"outcome"},
	)

	// Submissions counts form submission attempts by outcome
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_reg_form_submissions_total",
			Help: "Number of form submissions",
		},
		[]string{"outcome"},
	)

	// AttendeePosts counts individual attendee creations
	AttendeePosts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_reg_form_attendee_posts_total",
			Help: "Number of attendee records sent to the backend",
		},
		[]string{"outcome"},
	)

	// CouponValidations counts coupon checks
	CouponValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_reg_form_coupon_validations_total",
			Help: "Number of coupon validations",
		},
		[]string{"outcome"},
	)

	// APIRequestDuration tracks backend API latency
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_reg_form_api_request_duration_seconds",
			Help:    "Duration of backend API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
