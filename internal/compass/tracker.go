package compass

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.ngs.io/prayer-api/internal/domain"
)

var (
	// ErrUnsupportedSensor is returned once the caller has reported that the
	// platform has no orientation sensor.
	ErrUnsupportedSensor = errors.New("orientation sensor unsupported")
	// ErrOrientationPermissionDenied is returned once the caller has reported
	// that the user refused orientation access.
	ErrOrientationPermissionDenied = errors.New("orientation permission denied")
	// ErrInvalidSample is returned for samples that cannot be normalized.
	ErrInvalidSample = errors.New("invalid heading sample")
)

// Convention is the angular convention a sensor reports in.
type Convention string

const (
	// Clockwise is degrees clockwise from north (the output convention).
	Clockwise Convention = "clockwise"
	// CounterClockwise is degrees counter-clockwise from north, as reported
	// by the W3C DeviceOrientation alpha angle.
	CounterClockwise Convention = "counterclockwise"
	// DeviceCompass is a platform compass heading that is already clockwise.
	DeviceCompass Convention = "device"
)

// ParseConvention maps a wire name to a Convention. Empty means Clockwise.
func ParseConvention(s string) (Convention, error) {
	switch c := Convention(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return Clockwise, nil
	case Clockwise, CounterClockwise, DeviceCompass:
		return c, nil
	}
	return "", fmt.Errorf("%w: unknown convention %q", ErrInvalidSample, s)
}

// Status is the tracker's sensor state.
type Status string

const (
	StatusWaiting          Status = "waiting"
	StatusActive           Status = "active"
	StatusUnsupported      Status = "unsupported"
	StatusPermissionDenied Status = "permission_denied"
)

// Sample is one raw reading from the sensor collaborator.
type Sample struct {
	Degrees     float64    `json:"degrees"`
	Convention  Convention `json:"convention"`
	Accuracy    *float64   `json:"accuracy,omitempty"`
	TimestampMs int64      `json:"timestamp_ms"`
}

// Heading is a normalized, calibrated heading.
type Heading struct {
	Degrees     float64  `json:"degrees"`
	Raw         float64  `json:"raw"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// AlignedWith reports whether h points at b within tolerance degrees.
func (h Heading) AlignedWith(b domain.Bearing, tolerance float64) bool {
	return domain.IsAligned(h.Degrees, b.Degrees(), tolerance)
}

// Config tunes a Tracker.
type Config struct {
	// MinInterval is the minimum spacing between emitted headings.
	MinInterval time.Duration
	// Smoothing is the weight kept from the previous heading, in [0, 1).
	// Zero disables smoothing.
	Smoothing float64
}

const maxSmoothing = 0.95

// Tracker turns a sensor stream into normalized headings. One tracker
// serves one orientation session.
type Tracker struct {
	mu  sync.Mutex
	cfg Config

	status Status
	offset float64

	lastEmitMs int64
	haveEmit   bool

	pending     Sample
	havePending bool

	last     Heading
	haveLast bool

	smooth     float64
	haveSmooth bool
}

// NewTracker returns a tracker in the waiting state.
func NewTracker(cfg Config) *Tracker {
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.Smoothing < 0 || math.IsNaN(cfg.Smoothing) {
		cfg.Smoothing = 0
	}
	if cfg.Smoothing > maxSmoothing {
		cfg.Smoothing = maxSmoothing
	}
	return &Tracker{cfg: cfg, status: StatusWaiting}
}

// Normalize converts a raw reading to clockwise degrees in [0, 360).
func Normalize(degrees float64, c Convention) (float64, error) {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return 0, fmt.Errorf("%w: degrees must be finite", ErrInvalidSample)
	}
	switch c {
	case Clockwise, DeviceCompass, "":
		return domain.NormalizeDegrees(degrees), nil
	case CounterClockwise:
		return domain.NormalizeDegrees(360 - degrees), nil
	}
	return 0, fmt.Errorf("%w: unknown convention %q", ErrInvalidSample, c)
}

// Ingest normalizes s. It returns ok=false while s is held back by the
// rate limiter; the held sample is replaced by newer ones and released by a
// later Ingest or by Flush.
func (t *Tracker) Ingest(s Sample) (Heading, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.statusErr(); err != nil {
		return Heading{}, false, err
	}
	if _, err := Normalize(s.Degrees, s.Convention); err != nil {
		return Heading{}, false, err
	}
	t.status = StatusActive

	if t.throttled(s.TimestampMs) {
		t.pending = s
		t.havePending = true
		return Heading{}, false, nil
	}
	h := t.emit(s, s.TimestampMs)
	return h, true, nil
}

// Flush releases the held sample if the interval has elapsed by nowMs.
func (t *Tracker) Flush(nowMs int64) (Heading, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.havePending || t.statusErr() != nil || t.throttled(nowMs) {
		return Heading{}, false
	}
	return t.emit(t.pending, nowMs), true
}

// throttled reports whether nowMs is too close to the last emission. A time
// before the last emission means the client clock was reset; the next emit
// rebases on it.
func (t *Tracker) throttled(nowMs int64) bool {
	if !t.haveEmit || nowMs < t.lastEmitMs {
		return false
	}
	return nowMs-t.lastEmitMs < t.cfg.MinInterval.Milliseconds()
}

// emit must be called with t.mu held and a sample that normalizes.
func (t *Tracker) emit(s Sample, atMs int64) Heading {
	raw, _ := Normalize(s.Degrees, s.Convention)
	deg := domain.NormalizeDegrees(raw + t.offset)

	if t.cfg.Smoothing > 0 {
		if !t.haveSmooth {
			t.smooth = deg
			t.haveSmooth = true
		} else {
			alpha := 1 - t.cfg.Smoothing
			t.smooth = domain.NormalizeDegrees(t.smooth + alpha*domain.SignedDelta(t.smooth, deg))
		}
		deg = t.smooth
	}

	var acc *float64
	// Some platforms report -1 when accuracy is unknown.
	if s.Accuracy != nil && *s.Accuracy >= 0 && !math.IsNaN(*s.Accuracy) {
		v := *s.Accuracy
		acc = &v
	}

	h := Heading{Degrees: deg, Raw: raw, Accuracy: acc, TimestampMs: s.TimestampMs}
	t.last = h
	t.haveLast = true
	t.lastEmitMs = atMs
	t.haveEmit = true
	t.havePending = false
	return h
}

func (t *Tracker) statusErr() error {
	switch t.status {
	case StatusUnsupported:
		return ErrUnsupportedSensor
	case StatusPermissionDenied:
		return ErrOrientationPermissionDenied
	}
	return nil
}

// SetCalibrationOffset replaces the additive offset applied to later headings.
func (t *Tracker) SetCalibrationOffset(offset float64) error {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return fmt.Errorf("%w: calibration offset must be finite", ErrInvalidSample)
	}
	t.mu.Lock()
	t.offset = domain.SignedDelta(0, offset)
	t.haveSmooth = false
	t.mu.Unlock()
	return nil
}

// ClearCalibration removes the calibration offset.
func (t *Tracker) ClearCalibration() {
	t.mu.Lock()
	t.offset = 0
	t.haveSmooth = false
	t.mu.Unlock()
}

// Calibrate sets the offset that maps currentEstimate, an uncalibrated
// heading, onto knownTarget and returns it.
func (t *Tracker) Calibrate(currentEstimate, knownTarget float64) (float64, error) {
	if math.IsNaN(currentEstimate) || math.IsNaN(knownTarget) ||
		math.IsInf(currentEstimate, 0) || math.IsInf(knownTarget, 0) {
		return 0, fmt.Errorf("%w: calibration angles must be finite", ErrInvalidSample)
	}
	offset := domain.SignedDelta(currentEstimate, knownTarget)
	if err := t.SetCalibrationOffset(offset); err != nil {
		return 0, err
	}
	return offset, nil
}

// CalibrationOffset returns the current offset in (-180, 180].
func (t *Tracker) CalibrationOffset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// MarkUnsupported records that no orientation sensor exists.
func (t *Tracker) MarkUnsupported() { t.setStatus(StatusUnsupported) }

// MarkPermissionDenied records that the user refused orientation access.
func (t *Tracker) MarkPermissionDenied() { t.setStatus(StatusPermissionDenied) }

// Reset returns the tracker to the waiting state, e.g. after permission is
// granted on a retry. The calibration offset is kept.
func (t *Tracker) Reset() { t.setStatus(StatusWaiting) }

func (t *Tracker) setStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
	t.haveLast = false
	t.havePending = false
	t.haveEmit = false
	t.haveSmooth = false
}

// Status returns the sensor state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Last returns the most recent emitted heading. It reports nothing while
// the sensor is unsupported or denied.
func (t *Tracker) Last() (Heading, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.statusErr() != nil || !t.haveLast {
		return Heading{}, false
	}
	return t.last, true
}
