package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"go.ngs.io/prayer-api/internal/adapter/store"
	"go.ngs.io/prayer-api/internal/domain"
	"go.ngs.io/prayer-api/internal/usecase"
)

// Handler handles HTTP requests for prayer schedules.
type Handler struct {
	scheduleUC *usecase.ScheduleUseCase
	opts       Options
}

// NewHandler creates a new HTTP handler.
func NewHandler(scheduleUC *usecase.ScheduleUseCase, opts Options) *Handler {
	return &Handler{
		scheduleUC: scheduleUC,
		opts:       opts.withDefaults(),
	}
}

// GetPrayerTimes handles GET /v1/prayer-times.
func (h *Handler) GetPrayerTimes(c *gin.Context) {
	req, ok := h.scheduleRequest(c)
	if !ok {
		return
	}

	response, err := h.scheduleUC.Execute(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetMonth handles GET /v1/prayer-times/month.
func (h *Handler) GetMonth(c *gin.Context) {
	req, ok := h.scheduleRequest(c)
	if !ok {
		return
	}

	response, err := h.scheduleUC.Month(c.Request.Context(), req, c.Query("month"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetStatus handles GET /v1/prayer-times/status.
func (h *Handler) GetStatus(c *gin.Context) {
	req, ok := h.scheduleRequest(c)
	if !ok {
		return
	}

	delays, err := parseIqamaDelays(c.Query)
	if err != nil {
		h.fail(c, err)
		return
	}

	var now time.Time
	if s := c.Query("now"); s != "" {
		now, err = time.Parse(time.RFC3339, s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid now (expected RFC3339): %v", err)})
			return
		}
	}

	response, err := h.scheduleUC.Status(c.Request.Context(), req, delays, now)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetQibla handles GET /v1/qibla.
func (h *Handler) GetQibla(c *gin.Context) {
	coord, ok := parseCoordinate(c)
	if !ok {
		return
	}

	var heading *float64
	if s := c.Query("heading"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid heading: %v", err)})
			return
		}
		heading = &v
	}

	tolerance := h.opts.QiblaToleranceDeg
	if s := c.Query("tolerance"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid tolerance: %v", err)})
			return
		}
		tolerance = v
	}

	response, err := h.scheduleUC.Qibla(coord, heading, tolerance)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetHijri handles GET /v1/hijri.
func (h *Handler) GetHijri(c *gin.Context) {
	loc := time.UTC
	if tz := c.Query("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown time zone %q", tz)})
			return
		}
		loc = l
	}

	response, err := h.scheduleUC.Hijri(c.Query("date"), loc)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetMethods handles GET /v1/methods.
func (h *Handler) GetMethods(c *gin.Context) {
	profiles := h.scheduleUC.Methods()

	c.JSON(http.StatusOK, gin.H{
		"methods": profiles,
		"count":   len(profiles),
	})
}

// GetCities handles GET /v1/cities.
func (h *Handler) GetCities(c *gin.Context) {
	cities := h.scheduleUC.Cities(c.Query("q"))
	if cities == nil {
		cities = []domain.City{}
	}

	c.JSON(http.StatusOK, gin.H{
		"cities": cities,
		"count":  len(cities),
	})
}

// GetNearestCity handles GET /v1/cities/nearest.
func (h *Handler) GetNearestCity(c *gin.Context) {
	coord, ok := parseCoordinate(c)
	if !ok {
		return
	}

	response, err := h.scheduleUC.NearestCity(coord)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   h.scheduleUC.Now().UTC().Format(time.RFC3339),
	})
}

// scheduleRequest reads the location and calculation parameters shared by
// the schedule endpoints. It writes the error response itself.
func (h *Handler) scheduleRequest(c *gin.Context) (usecase.ScheduleRequest, bool) {
	req := usecase.ScheduleRequest{
		Date:             c.Query("date"),
		Timezone:         c.Query("tz"),
		Method:           c.Query("method"),
		Asr:              c.Query("asr"),
		HighLatitudeRule: c.Query("high_lat"),
	}

	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr != "" || lonStr != "" {
		lat, err := strconv.ParseFloat(latStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
			return req, false
		}
		lon, err := strconv.ParseFloat(lonStr, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
			return req, false
		}
		req.Lat = &lat
		req.Lon = &lon
	}

	if city := c.Query("city"); city != "" {
		req.CityID = &city
	}

	adj, err := usecase.ParseAdjustments(c.Query)
	if err != nil {
		h.fail(c, err)
		return req, false
	}
	req.Adjustments = adj

	return req, true
}

func parseCoordinate(c *gin.Context) (domain.GeoCoordinate, bool) {
	latStr := c.Query("lat")
	lonStr := c.Query("lon")
	if latStr == "" || lonStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lon parameters are required"})
		return domain.GeoCoordinate{}, false
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid latitude: %v", err)})
		return domain.GeoCoordinate{}, false
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid longitude: %v", err)})
		return domain.GeoCoordinate{}, false
	}
	coord, err := domain.NewGeoCoordinate(lat, lon)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return domain.GeoCoordinate{}, false
	}
	return coord, true
}

// parseIqamaDelays starts from the default delays and applies iqama_<prayer>.
func parseIqamaDelays(get func(string) string) (domain.IqamaDelays, error) {
	delays := domain.DefaultIqamaDelays
	for _, p := range domain.Prayers {
		if !p.Congregational() {
			continue
		}
		s := get("iqama_" + string(p))
		if s == "" {
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return delays, fmt.Errorf("%w: iqama_%s must be an integer, got %q", domain.ErrInvalidIqamaDelay, p, s)
		}
		delays = delays.Set(p, n)
	}
	return delays, delays.Validate()
}

// statusFor maps an error to its HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidCoordinate),
		errors.Is(err, domain.ErrUnknownMethod),
		errors.Is(err, domain.ErrInvalidProfile),
		errors.Is(err, domain.ErrInvalidIqamaDelay):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrCityNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDegenerateAstronomicalInput),
		errors.Is(err, domain.ErrScheduleOrdering):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	body := gin.H{"error": err.Error()}
	var degenerate *domain.DegenerateInputError
	if errors.As(err, &degenerate) {
		body["prayer"] = degenerate.Prayer
		body["hint"] = "select a high_lat rule (middle_of_the_night, seventh_of_the_night, twilight_angle)"
	}
	c.JSON(status, body)
}
