package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go.ngs.io/prayer-api/internal/compass"
	"go.ngs.io/prayer-api/internal/usecase"
)

// Options tunes the HTTP layer.
type Options struct {
	// CORSAllowedOrigins restricts CORS; empty allows all origins.
	CORSAllowedOrigins []string
	QiblaToleranceDeg  float64
	StreamTick         time.Duration
	Compass            compass.Config
}

func (o Options) withDefaults() Options {
	if o.StreamTick <= 0 {
		o.StreamTick = time.Second
	}
	if o.QiblaToleranceDeg <= 0 {
		o.QiblaToleranceDeg = 5
	}
	return o
}

// SetupRouter creates and configures the Gin router.
func SetupRouter(scheduleUC *usecase.ScheduleUseCase, opts Options) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	// Setup CORS middleware.
	corsConfig := cors.DefaultConfig()
	if len(opts.CORSAllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.CORSAllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Create handler.
	handler := NewHandler(scheduleUC, opts)

	// API v1 routes.
	v1 := router.Group("/v1")

	// Prayer times.
	times := v1.Group("/prayer-times")
	times.GET("", handler.GetPrayerTimes)
	times.GET("/month", handler.GetMonth)
	times.GET("/status", handler.GetStatus)

	v1.GET("/methods", handler.GetMethods)
	v1.GET("/qibla", handler.GetQibla)
	v1.GET("/hijri", handler.GetHijri)

	// City catalog.
	cities := v1.Group("/cities")
	cities.GET("", handler.GetCities)
	cities.GET("/nearest", handler.GetNearestCity)

	// Websocket streams.
	stream := v1.Group("/stream")
	stream.GET("/schedule", handler.StreamSchedule)
	stream.GET("/compass", handler.StreamCompass)

	// Health check.
	router.GET("/health", handler.HealthCheck)

	return router
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		if status >= 500 {
			ev = log.Error()
		} else if status >= 400 {
			ev = log.Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}
