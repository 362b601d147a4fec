package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_http_requests_total",
			Help: "Total number of HTTP requests processed by the realtime service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_ws_active_connections",
			Help: "Number of active websocket connections owned by this process.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_ws_events_total",
			Help: "Total number of websocket lifecycle and command events.",
		},
		[]string{"event"},
	)
	broadcastDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcast_deliveries_total",
			Help: "Per-connection broadcast outcomes.",
		},
		[]string{"outcome"},
	)
	broadcastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "realtime_broadcast_duration_seconds",
			Help:    "Broadcast fan-out latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"room_kind"},
	)
	busEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_bus_events_total",
			Help: "Inbound bus events by routing key and outcome.",
		},
		[]string{"routing_key", "outcome"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
	rateLimitRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_rate_limit_rejections_total",
			Help: "Client commands rejected by the per-user rate limit.",
		},
		[]string{"action"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		broadcastDeliveriesTotal,
		broadcastDuration,
		busEventsTotal,
		amqpPublishErrorsTotal,
		rateLimitRejectionsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func AddBroadcastOutcomes(delivered, skipped, failed int) {
	if delivered > 0 {
		broadcastDeliveriesTotal.WithLabelValues("delivered").Add(float64(delivered))
	}
	if skipped > 0 {
		broadcastDeliveriesTotal.WithLabelValues("skipped").Add(float64(skipped))
	}
	if failed > 0 {
		broadcastDeliveriesTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

func ObserveBroadcastDuration(roomKind string, d time.Duration) {
	broadcastDuration.WithLabelValues(roomKind).Observe(d.Seconds())
}

func IncBusEvent(routingKey, outcome string) {
	busEventsTotal.WithLabelValues(routingKey, outcome).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

func IncRateLimitRejection(action string) {
	rateLimitRejectionsTotal.WithLabelValues(action).Inc()
}
