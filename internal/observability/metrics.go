package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_http_requests_total",
			Help: "Total number of HTTP requests processed by the event service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventsync_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventsync_ws_active_connections",
			Help: "Number of active push channel connections.",
		},
		[]string{"transport"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_ws_events_total",
			Help: "Total number of push channel lifecycle events.",
		},
		[]string{"transport", "event"},
	)
	groupMembershipTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_group_membership_changes_total",
			Help: "Total number of group joins and leaves.",
		},
		[]string{"op"},
	)
	fanoutDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventsync_fanout_deliveries_total",
			Help: "Total number of frames enqueued to connections, by scope and result.",
		},
		[]string{"scope", "result"},
	)
	publishUnreadyTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_publish_unready_total",
			Help: "Publishes dropped because the fan-out engine was not initialized.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsync_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		groupMembershipTotal,
		fanoutDeliveriesTotal,
		publishUnreadyTotal,
		amqpPublishErrorsTotal,
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

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(transport string) {
	wsActiveConnections.WithLabelValues(transport).Inc()
}

func DecWSActive(transport string) {
	wsActiveConnections.WithLabelValues(transport).Dec()
}

func IncWSEvent(transport, event string) {
	wsEventsTotal.WithLabelValues(transport, event).Inc()
}

func IncGroupMembership(op string) {
	groupMembershipTotal.WithLabelValues(op).Inc()
}

// AddFanout records the outcome of one fan-out pass.
func AddFanout(scope string, delivered, dropped int) {
	if delivered > 0 {
		fanoutDeliveriesTotal.WithLabelValues(scope, "delivered").Add(float64(delivered))
	}
	if dropped > 0 {
		fanoutDeliveriesTotal.WithLabelValues(scope, "dropped").Add(float64(dropped))
	}
}

func IncPublishUnready() {
	publishUnreadyTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
