// Package api exposes the check-in, alert and operational endpoints over gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"shootday/internal/auth"
	"shootday/internal/checkin"
	"shootday/internal/cloudinary"
	"shootday/internal/httpmiddleware"
	"shootday/internal/monitor"
	"shootday/internal/queue"
)

// PhotoUploader stores arrival photos. *cloudinary.Client satisfies it.
type PhotoUploader interface {
	UploadBase64(ctx context.Context, scheduleID int64, data string) (cloudinary.UploadResult, error)
	UploadBytes(ctx context.Context, scheduleID int64, data []byte, filename string) (cloudinary.UploadResult, error)
}

// Deps wires the handlers. Photos and Queue may be nil.
type Deps struct {
	Checkins *checkin.Service
	Monitor  *monitor.Monitor
	Users    auth.UserStore
	Photos   PhotoUploader
	Queue    queue.Queue
	Health   map[string]func(ctx context.Context) error
	Clock    clock.Clock
	Log      *zap.Logger

	JWTIssuer       string
	JWTSigningKey   string
	AccessTTL       time.Duration
	RateLimitPerMin int
}

type handler struct {
	Deps
}

// NewRouter builds the gin engine with logging, recovery, CORS and
// per-caller rate limiting.
func NewRouter(d Deps) *gin.Engine {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.AccessTTL <= 0 {
		d.AccessTTL = 12 * time.Hour
	}
	h := &handler{Deps: d}

	r := gin.New()
	r.Use(ginzap.GinzapWithConfig(d.Log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/healthz", "/metrics", "/v1/keepalive"},
	}))
	r.Use(ginzap.RecoveryWithZap(d.Log, true))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	limiter := httpmiddleware.NewTokenBucket(d.RateLimitPerMin, d.RateLimitPerMin, d.Clock)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", h.healthz)
	r.GET("/v1/keepalive", h.keepalive)
	r.POST("/v1/sessions", limiter.GinMiddleware(), h.login)

	v1 := r.Group("/v1", auth.Bearer(d.JWTSigningKey, d.JWTIssuer), limiter.GinMiddleware())

	me := v1.Group("", auth.RequireRole(auth.RolePhotographer))
	me.POST("/checkins/wake", h.wake)
	me.POST("/checkins/depart", h.depart)
	me.POST("/checkins/arrive", h.arrive)
	me.GET("/me/week", h.week)
	me.GET("/schedules/:id/state", h.scheduleState)
	me.POST("/photos", h.uploadPhoto)

	admin := v1.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/alerts/feed", h.alertFeed)
	admin.GET("/photographers/:id/day", h.photographerDay)

	return r
}

// corsMiddleware answers browser preflight requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS only behind TLS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}
