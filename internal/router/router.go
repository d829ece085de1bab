package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"imguard/internal/handler"
	"imguard/internal/middleware"
	"imguard/internal/origin"
)

// Options controls optional surfaces of the engine.
type Options struct {
	Origins     *origin.AllowList
	Metrics     prometheus.Gatherer
	MetricsPath string
	// TrustedProxies lists proxies whose forwarded headers are believed when
	// resolving the client identity. Empty means none.
	TrustedProxies []string
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	log *zap.Logger,
	opts Options,
	uploadH *handler.UploadHandler,
	usageH *handler.UsageHandler,
	healthH *handler.HealthHandler,
) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}

	// Global middleware
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.ClientIdentity())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(opts.Origins))

	r.NoMethod(func(c *gin.Context) {
		handler.RespondError(c, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	r.NoRoute(func(c *gin.Context) {
		handler.RespondError(c, http.StatusNotFound, "NOT_FOUND", "resource not found")
	})

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	if opts.Metrics != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{})))
	}

	// The upload pipeline checks the origin itself as its first stage.
	r.POST("/upload", uploadH.Upload)
	r.GET("/usage", middleware.OriginGuard(opts.Origins), usageH.Usage)

	return r, nil
}
