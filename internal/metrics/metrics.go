// Package metrics holds the Prometheus collectors of both services.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AcceptTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_accept_total",
			Help: "Accept attempts by outcome.",
		},
		[]string{"outcome"},
	)

	TransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_transitions_total",
			Help: "Committed lifecycle transitions by action.",
		},
		[]string{"action"},
	)

	SuspensionsImposed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_suspensions_imposed_total",
			Help: "Suspensions created, by actor type and source (automatic or manual).",
		},
		[]string{"actor_type", "source"},
	)

	SuspensionsExpired = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_suspensions_expired_total",
		Help: "Temporary suspensions deactivated by the expiry sweep.",
	})

	NotificationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_notifications_dropped_total",
		Help: "Notification events dropped because the buffer was full.",
	})

	ReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_reports_total",
			Help: "Report generation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	WorkerMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_worker_messages_total",
			Help: "Report requests consumed by the worker, by disposition (acked, requeued, discarded).",
		},
		[]string{"disposition"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

var once sync.Once

// Init registers the collectors in the default registry. Safe to call more
// than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			AcceptTotal,
			TransitionsTotal,
			SuspensionsImposed,
			SuspensionsExpired,
			NotificationsDropped,
			ReportsTotal,
			WorkerMessagesTotal,
			httpRequestDuration,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served HTTP request. route is the matched
// route template, not the raw path.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
