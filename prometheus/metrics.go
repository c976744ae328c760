package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	HttpStatusCategory  *prometheus.CounterVec

	// Authentication metrics
	AuthErrorsCounter *prometheus.CounterVec

	// Webhook metrics
	WebhookEventsCounter     *prometheus.CounterVec
	WebhookRejectedCounter   *prometheus.CounterVec
	WebhookProcessingSeconds *prometheus.HistogramVec

	// Checkout and read-path metrics
	CheckoutSessionsCounter *prometheus.CounterVec
	DetailReadsCounter      *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// Label usage metrics
	LabelUsageCounter prometheus.Counter
)

// InitMetrics registers every metric on reg with the given name prefix.
// Until it runs, the Record helpers are no-ops.
func InitMetrics(prefix string, reg prometheus.Registerer) {
	factory := promauto.With(reg)

	HttpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HttpStatusCategory = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		},
		[]string{"category"},
	)

	AuthErrorsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
		[]string{"reason"},
	)

	WebhookEventsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_webhook_events_total",
			Help: "Verified webhook events by type and reconciliation outcome",
		},
		[]string{"type", "outcome"},
	)

	WebhookRejectedCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_webhook_rejected_total",
			Help: "Webhook deliveries rejected before processing",
		},
		[]string{"reason"},
	)

	WebhookProcessingSeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_webhook_processing_seconds",
			Help:    "Time spent reconciling a verified webhook event",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"type"},
	)

	CheckoutSessionsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_checkout_sessions_total",
			Help: "Checkout session creation attempts by result",
		},
		[]string{"result"},
	)

	DetailReadsCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_subscription_detail_reads_total",
			Help: "Subscription detail reads by result",
		},
		[]string{"result"},
	)

	DbOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type"},
	)

	LabelUsageCounter = factory.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_label_usage_total",
			Help: "Labels recorded against organization monthly counters",
		},
	)
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordHTTPRequest records one served request
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if HttpRequestsTotal == nil {
		return
	}
	HttpRequestsTotal.WithLabelValues(method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
	if status != "" {
		HttpStatusCategory.WithLabelValues(status[:1] + "xx").Inc()
	}
}

// RecordAuthError increments the authentication error counter
func RecordAuthError(reason string) {
	if AuthErrorsCounter == nil {
		return
	}
	AuthErrorsCounter.WithLabelValues(reason).Inc()
}

// RecordWebhookEvent increments the counter for a reconciled event
func RecordWebhookEvent(eventType, outcome string, duration time.Duration) {
	if WebhookEventsCounter == nil {
		return
	}
	WebhookEventsCounter.WithLabelValues(eventType, outcome).Inc()
	WebhookProcessingSeconds.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordWebhookRejected increments the counter for deliveries that failed verification
func RecordWebhookRejected(reason string) {
	if WebhookRejectedCounter == nil {
		return
	}
	WebhookRejectedCounter.WithLabelValues(reason).Inc()
}

// RecordCheckout increments the checkout counter
func RecordCheckout(result string) {
	if CheckoutSessionsCounter == nil {
		return
	}
	CheckoutSessionsCounter.WithLabelValues(result).Inc()
}

// RecordDetailRead increments the subscription detail read counter
func RecordDetailRead(result string) {
	if DetailReadsCounter == nil {
		return
	}
	DetailReadsCounter.WithLabelValues(result).Inc()
}

// RecordLabelUsage adds to the label usage counter
func RecordLabelUsage(count int) {
	if LabelUsageCounter == nil {
		return
	}
	LabelUsageCounter.Add(float64(count))
}
