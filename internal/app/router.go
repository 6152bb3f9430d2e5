package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bitskyai/producer-agent/internal/platform/ctxutil"
	"github.com/bitskyai/producer-agent/internal/producer"
)

// requestID tags every request with a correlation id: the incoming
// X-Request-Id header, or a fresh UUID when absent. The id is stored on
// the request context (readable via ctxutil.GetTraceData) and echoed in
// the X-Request-Id response header. The producer's runLoop does not run
// on the request context, so its log lines do not carry this id.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{RequestID: id})
		c.Request = c.Request.WithContext(ctx)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// wireRouter builds the producer's operational HTTP surface: liveness
// and readiness probes, a status endpoint exposing the façade's
// read-only views, and the Prometheus scrape endpoint.
func wireRouter(p *producer.Producer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/readyz", func(c *gin.Context) {
		if _, ok := p.ProducerConfiguration(); !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/status", func(c *gin.Context) {
		body := gin.H{"type": p.Type(), "ranJobNumber": p.RanJobNumber()}
		if cfg, ok := p.ProducerConfiguration(); ok {
			body["remoteConfig"] = cfg
		}
		if jobID, ok := p.JobID(); ok {
			body["jobId"] = jobID
		}
		if cerr := p.ProducerError(); cerr != nil {
			body["lastError"] = gin.H{
				"kind":    cerr.Kind,
				"status":  cerr.Status,
				"message": cerr.Message,
			}
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
