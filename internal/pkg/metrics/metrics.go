package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "turfgrid",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "turfgrid",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Game metrics
	ClaimsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "claims",
		Name:      "processed_total",
		Help:      "Total claim attempts settled, labelled by verdict reason",
	}, []string{"reason"})

	ClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "claims",
		Name:      "write_conflicts_total",
		Help:      "Total claim writes that lost a compare-and-set race",
	})

	ContestsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "contests",
		Name:      "opened_total",
		Help:      "Total contest windows opened by attacks",
	})

	ContestsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "contests",
		Name:      "resolved_total",
		Help:      "Total contest windows resolved, labelled by outcome",
	}, []string{"outcome"})

	PositionsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "positions",
		Name:      "ingested_total",
		Help:      "Total player positions accepted",
	}, []string{"source"})

	PositionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "positions",
		Name:      "rejected_total",
		Help:      "Total player positions rejected as implausible movement",
	})

	PositionBatchFlushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turfgrid",
		Subsystem: "positions",
		Name:      "batch_flush_duration_seconds",
		Help:      "Duration of position batch inserts",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfgrid",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfgrid",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfgrid",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfgrid",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfgrid",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics updates database pool metrics from pgx pool stats.
// Declared against a narrow interface so this package does not import pgxpool.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
