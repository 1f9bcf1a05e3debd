package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	UsersRegistered     prometheus.Counter
	VerificationEmails  *prometheus.CounterVec
	BlogsCreated        prometheus.Counter
	ModerationDecisions *prometheus.CounterVec
	CommentsCreated     prometheus.Counter
	BlogViews           prometheus.Counter
	PaymentsTotal       *prometheus.CounterVec
	GatewayBreakerState *prometheus.GaugeVec
}

var (
	metrics *Metrics
	once    sync.Once
)

// Get returns the process-wide metrics, registering them on first use.
func Get() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
				},
				[]string{"method", "path"},
			),
			CacheHits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "page_cache_hits_total",
					Help: "Rendered page cache hits",
				},
				[]string{"store"},
			),
			CacheMisses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "page_cache_misses_total",
					Help: "Rendered page cache misses",
				},
				[]string{"store"},
			),
			UsersRegistered: promauto.NewCounter(prometheus.CounterOpts{
				Name: "users_registered_total",
				Help: "Accounts created",
			}),
			VerificationEmails: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "verification_emails_total",
					Help: "Verification emails by outcome",
				},
				[]string{"status"},
			),
			BlogsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "blogs_created_total",
				Help: "Blogs submitted",
			}),
			ModerationDecisions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "moderation_decisions_total",
					Help: "Blog moderation decisions",
				},
				[]string{"decision"},
			),
			CommentsCreated: promauto.NewCounter(prometheus.CounterOpts{
				Name: "comments_created_total",
				Help: "Comments posted",
			}),
			BlogViews: promauto.NewCounter(prometheus.CounterOpts{
				Name: "blog_views_total",
				Help: "Counted blog views",
			}),
			PaymentsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "payments_total",
					Help: "Payments by gateway and status",
				},
				[]string{"gateway", "status"},
			),
			GatewayBreakerState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "payment_gateway_breaker_state",
					Help: "Circuit breaker state per gateway (0=closed, 0.5=half-open, 1=open)",
				},
				[]string{"gateway"},
			),
		}
	})
	return metrics
}

func GinHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func MetricsMiddleware() gin.HandlerFunc {
	m := Get()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func RecordCacheHit(store string) { Get().CacheHits.WithLabelValues(store).Inc() }
func RecordCacheMiss(store string) { Get().CacheMisses.WithLabelValues(store).Inc() }

func RecordRegistration() { Get().UsersRegistered.Inc() }

func RecordVerificationEmail(status string) {
	Get().VerificationEmails.WithLabelValues(status).Inc()
}

func RecordBlogCreated() { Get().BlogsCreated.Inc() }
func RecordModeration(decision string) { Get().ModerationDecisions.WithLabelValues(decision).Inc() }
func RecordComment() { Get().CommentsCreated.Inc() }
func RecordBlogView() { Get().BlogViews.Inc() }

func RecordPayment(gateway, status string) {
	Get().PaymentsTotal.WithLabelValues(gateway, status).Inc()
}

func SetBreakerState(gateway string, value float64) {
	Get().GatewayBreakerState.WithLabelValues(gateway).Set(value)
}
