// Package main provides the prayer API HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.ngs.io/prayer-api/internal/adapter/cache"
	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/adapter/store/csv"
	"go.ngs.io/prayer-api/internal/compass"
	"go.ngs.io/prayer-api/internal/config"
	httpHandler "go.ngs.io/prayer-api/internal/http"
	"go.ngs.io/prayer-api/internal/usecase"
)

const version = "0.1.0"

func main() {
	// Parse command-line flags.
	showHelp := flag.Bool("help", false, "Show usage information")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}

	if *showVersion {
		fmt.Printf("prayer-api version %s\n", version)
		return
	}

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	log.Info().
		Str("port", cfg.Port).
		Str("cities", cfg.CitiesPath).
		Str("default_method", string(cfg.DefaultMethod)).
		Str("default_timezone", cfg.DefaultTimezone.String()).
		Msg("starting prayer API server")

	// Custom calculation profiles (optional).
	custom, err := config.LoadProfiles(cfg.ProfilesPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.ProfilesPath).Msg("failed to load profiles")
	}
	if len(custom) > 0 {
		log.Info().Int("count", len(custom)).Msg("custom profiles loaded")
	}

	// City catalog (optional).
	var catalog store.CityCatalog
	if cfg.CitiesPath != "" {
		cityStore, err := csv.NewCityStore(cfg.CitiesPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.CitiesPath).Msg("failed to load city catalog")
		}
		log.Info().Int("cities", cityStore.Len()).Msg("city catalog loaded")
		catalog = cityStore
	}

	// Schedule cache (optional).
	var scheduleCache cache.ScheduleCache
	if cfg.CacheEnabled() {
		rc := cache.NewRedisCache(cfg.RedisAddress, cfg.RedisUsername, cfg.RedisPassword, cfg.CacheTTL)
		defer func() { _ = rc.Close() }()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("address", cfg.RedisAddress).Msg("redis unreachable, schedules will be computed until it recovers")
		} else {
			log.Info().Str("address", cfg.RedisAddress).Dur("ttl", cfg.CacheTTL).Msg("schedule cache enabled")
		}
		cancel()
		scheduleCache = rc
	} else {
		log.Info().Msg("schedule cache disabled (no REDIS_ADDRESS)")
	}

	// Initialize use case.
	region := usecase.NewRegionResolver(catalog, cfg.RegionRadiusKm, cfg.DefaultMethod, cfg.DefaultTimezone)
	scheduleUC := usecase.NewScheduleUseCase(catalog, usecase.NewProfileRegistry(custom), region, scheduleCache)

	// Setup router.
	router := httpHandler.SetupRouter(scheduleUC, httpHandler.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		QiblaToleranceDeg:  cfg.QiblaToleranceDeg,
		StreamTick:         cfg.StreamTick,
		Compass: compass.Config{
			MinInterval: cfg.CompassMinInterval,
			Smoothing:   cfg.CompassSmoothing,
		},
	})

	// Start server.
	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Info().Str("addr", addr).Msgf("health check: http://localhost:%s/health", cfg.Port)

	if err := router.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// setupLogger configures the global zerolog logger.
func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.LogFormat == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

// printUsage prints usage information.
func printUsage() {
	fmt.Printf("Prayer API Server v%s\n\n", version)
	fmt.Println("USAGE:")
	fmt.Println("  prayer-api [flags]")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  -help          Show this help message")
	fmt.Println("  -version       Show version information")
	fmt.Println()
	fmt.Println("ENVIRONMENT VARIABLES (also read from .env):")
	fmt.Println("  PORT                    Server port (default: 8080)")
	fmt.Println("  CITIES_PATH             City catalog CSV (default: ./data/cities.csv)")
	fmt.Println("  PROFILES_PATH           Custom calculation profiles YAML (optional)")
	fmt.Println("  DEFAULT_METHOD          Method outside any catalog region (default: MuslimWorldLeague)")
	fmt.Println("  DEFAULT_TIMEZONE        Time zone outside any catalog region (default: UTC)")
	fmt.Println("  REGION_RADIUS_KM        Radius for regional defaults (default: 300)")
	fmt.Println("  REDIS_ADDRESS           Redis address for the schedule cache (optional)")
	fmt.Println("  REDIS_USERNAME          Redis username (optional)")
	fmt.Println("  REDIS_PASSWORD          Redis password (optional)")
	fmt.Println("  CACHE_TTL               Schedule cache TTL (default: 24h)")
	fmt.Println("  CORS_ALLOWED_ORIGINS    Comma-separated list of allowed origins (default: all origins)")
	fmt.Println("  LOG_LEVEL               debug, info, warn, error (default: info)")
	fmt.Println("  LOG_FORMAT              json or console (default: json)")
	fmt.Println("  STREAM_TICK             Schedule stream interval (default: 1s)")
	fmt.Println("  COMPASS_MIN_INTERVAL    Minimum spacing of compass headings (default: 20ms)")
	fmt.Println("  COMPASS_SMOOTHING       Heading smoothing weight in [0, 1) (default: 0)")
	fmt.Println("  QIBLA_TOLERANCE_DEG     Alignment tolerance in degrees (default: 5)")
	fmt.Println()
	fmt.Println("API ENDPOINTS:")
	fmt.Println("  GET /health                     Health check")
	fmt.Println("  GET /v1/methods                 List calculation methods")
	fmt.Println("  GET /v1/prayer-times            Prayer times for one day")
	fmt.Println("  GET /v1/prayer-times/month      Prayer times for a month")
	fmt.Println("  GET /v1/prayer-times/status     Current prayer and countdown")
	fmt.Println("  GET /v1/qibla                   Qibla bearing and alignment")
	fmt.Println("  GET /v1/hijri                   Hijri date")
	fmt.Println("  GET /v1/cities                  Search the city catalog")
	fmt.Println("  GET /v1/cities/nearest          Nearest catalog city")
	fmt.Println("  GET /v1/stream/schedule         Websocket schedule stream")
	fmt.Println("  GET /v1/stream/compass          Websocket compass session")
	fmt.Println()
}
