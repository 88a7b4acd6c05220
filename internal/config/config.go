package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"go.ngs.io/prayer-api/internal/domain"
)

// Config holds environment-based settings.
type Config struct {
	Port               string
	CitiesPath         string
	ProfilesPath       string
	DefaultMethod      domain.Method
	DefaultTimezone    *time.Location
	RegionRadiusKm     float64
	RedisAddress       string
	RedisUsername      string
	RedisPassword      string
	CacheTTL           time.Duration
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string
	StreamTick         time.Duration
	CompassMinInterval time.Duration
	CompassSmoothing   float64
	QiblaToleranceDeg  float64
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:          get("PORT", "8080"),
		CitiesPath:    get("CITIES_PATH", "./data/cities.csv"),
		ProfilesPath:  get("PROFILES_PATH", ""),
		RedisAddress:  get("REDIS_ADDRESS", ""),
		RedisUsername: get("REDIS_USERNAME", ""),
		RedisPassword: getenv("REDIS_PASSWORD"),
		LogLevel:      strings.ToLower(get("LOG_LEVEL", "info")),
		LogFormat:     strings.ToLower(get("LOG_FORMAT", "json")),
	}

	method, err := domain.ParseMethod(get("DEFAULT_METHOD", string(domain.MethodMuslimWorldLeague)))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_METHOD: %w", err)
	}
	cfg.DefaultMethod = method

	loc, err := time.LoadLocation(get("DEFAULT_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	cfg.DefaultTimezone = loc

	if cfg.RegionRadiusKm, err = parseFloat(get("REGION_RADIUS_KM", "300"), "REGION_RADIUS_KM"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = parseDuration(get("CACHE_TTL", "24h"), "CACHE_TTL"); err != nil {
		return nil, err
	}
	if cfg.StreamTick, err = parseDuration(get("STREAM_TICK", "1s"), "STREAM_TICK"); err != nil {
		return nil, err
	}
	if cfg.CompassMinInterval, err = parseDuration(get("COMPASS_MIN_INTERVAL", "20ms"), "COMPASS_MIN_INTERVAL"); err != nil {
		return nil, err
	}
	if cfg.CompassSmoothing, err = parseFloat(get("COMPASS_SMOOTHING", "0"), "COMPASS_SMOOTHING"); err != nil {
		return nil, err
	}
	if cfg.CompassSmoothing >= 1 {
		return nil, fmt.Errorf("COMPASS_SMOOTHING must be in [0, 1), got %v", cfg.CompassSmoothing)
	}
	if cfg.QiblaToleranceDeg, err = parseFloat(get("QIBLA_TOLERANCE_DEG", "5"), "QIBLA_TOLERANCE_DEG"); err != nil {
		return nil, err
	}
	if cfg.QiblaToleranceDeg > 180 {
		return nil, fmt.Errorf("QIBLA_TOLERANCE_DEG must be at most 180, got %v", cfg.QiblaToleranceDeg)
	}
	if cfg.StreamTick <= 0 {
		return nil, fmt.Errorf("STREAM_TICK must be > 0")
	}

	if origins := get("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	switch cfg.LogFormat {
	case "json", "console":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be json or console, got %q", cfg.LogFormat)
	}

	return cfg, nil
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddress != ""
}

func parseFloat(s, key string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", key, s)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %v", key, v)
	}
	return v, nil
}

func parseDuration(s, key string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, s)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %s", key, d)
	}
	return d, nil
}
