package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestMetricsMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	router.GET("/metrics", GinHandler())

	before := testutil.ToFloat64(Get().HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200"))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	router.ServeHTTP(w, req)

	after := testutil.ToFloat64(Get().HTTPRequestsTotal.WithLabelValues("GET", "/ping", "200"))
	assert.Equal(t, before+1, after)

	RecordPayment("stripe", "succeeded")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "payments_total")
}
