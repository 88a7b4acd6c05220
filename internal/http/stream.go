package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"go.ngs.io/prayer-api/internal/compass"
	"go.ngs.io/prayer-api/internal/domain"
	"go.ngs.io/prayer-api/internal/usecase"
)

const (
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// message is the envelope of every websocket frame.
type message struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
	Error   string `json:"error,omitempty"`

	Evaluation   *evaluationPayload   `json:"evaluation,omitempty"`
	Notification *domain.Notification `json:"notification,omitempty"`

	Heading   *compass.Heading `json:"heading,omitempty"`
	QiblaDeg  *float64         `json:"qibla_deg,omitempty"`
	DeltaDeg  *float64         `json:"delta_deg,omitempty"`
	Aligned   *bool            `json:"aligned,omitempty"`
	Status    compass.Status   `json:"status,omitempty"`
	OffsetDeg *float64         `json:"offset_deg,omitempty"`
}

type evaluationPayload struct {
	Now     string             `json:"now"`
	Date    string             `json:"date"`
	State   domain.State       `json:"state"`
	Current domain.Prayer      `json:"current,omitempty"`
	Next    usecase.NextEvent  `json:"next"`
	Hijri   string             `json:"hijri"`
	Delays  domain.IqamaDelays `json:"iqama_delays"`
}

// wsSession serializes writes to one connection and stops with it.
type wsSession struct {
	id     string
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	in     chan []byte
}

func newSession(c *gin.Context) (*wsSession, bool) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return nil, false
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	s := &wsSession{
		id:     uuid.NewString(),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		in:     make(chan []byte, 16),
	}
	go s.readPump()
	log.Info().Str("session", s.id).Str("path", c.FullPath()).Msg("websocket connected")
	return s, true
}

// readPump forwards client frames to in and cancels the session when the
// connection closes.
func (s *wsSession) readPump() {
	defer s.cancel()
	defer close(s.in)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case s.in <- data:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *wsSession) send(m message) error {
	m.Session = s.id
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSession) ping() error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *wsSession) close() {
	s.cancel()
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = s.conn.Close()
	log.Info().Str("session", s.id).Msg("websocket closed")
}

// StreamSchedule handles GET /v1/stream/schedule. It pushes an evaluation
// every tick and a notification for each adhan or iqama instant crossed
// since the previous tick.
func (h *Handler) StreamSchedule(c *gin.Context) {
	req, ok := h.scheduleRequest(c)
	if !ok {
		return
	}
	delays, err := parseIqamaDelays(c.Query)
	if err != nil {
		h.fail(c, err)
		return
	}
	resolved, err := h.scheduleUC.Resolve(req)
	if err != nil {
		h.fail(c, err)
		return
	}
	// Fail before upgrading when today's schedule cannot be built.
	last := h.scheduleUC.Now()
	tl, err := h.scheduleUC.Timeline(c.Request.Context(), resolved, last)
	if err != nil {
		h.fail(c, err)
		return
	}

	s, ok := newSession(c)
	if !ok {
		return
	}
	defer s.close()

	ticker := time.NewTicker(h.opts.StreamTick)
	defer ticker.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	if err := h.pushEvaluation(s, resolved, &tl, delays, last, last); err != nil {
		return
	}
	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-s.in:
			if !ok {
				return
			}
		case <-pinger.C:
			if err := s.ping(); err != nil {
				return
			}
		case <-ticker.C:
			now := h.scheduleUC.Now()
			if err := h.pushEvaluation(s, resolved, &tl, delays, last, now); err != nil {
				return
			}
			last = now
		}
	}
}

// pushEvaluation sends what happened in [from, now) and the evaluation at
// now. tl is rebuilt only once now leaves the span it covers.
func (h *Handler) pushEvaluation(s *wsSession, r *usecase.Resolved, tl *domain.Timeline, delays domain.IqamaDelays, from, now time.Time) error {
	if !tl.Covers(now) {
		fresh, err := h.scheduleUC.Timeline(s.ctx, r, now)
		if err != nil {
			log.Warn().Err(err).Str("session", s.id).Msg("schedule unavailable")
			return s.send(message{Type: "error", Error: err.Error()})
		}
		*tl = fresh
	}

	days := []domain.DailySchedule{tl.Current}
	if tl.Previous != nil {
		days = append([]domain.DailySchedule{*tl.Previous}, days...)
	}
	for _, day := range days {
		for _, n := range domain.DueNotifications(day, delays, from, now) {
			if err := s.send(message{Type: "notification", Notification: &n}); err != nil {
				return err
			}
		}
	}

	ev := tl.Evaluate(delays, now)
	local := now.In(r.Location)
	return s.send(message{Type: "evaluation", Evaluation: &evaluationPayload{
		Now:     local.Format(time.RFC3339),
		Date:    local.Format("2006-01-02"),
		State:   ev.State,
		Current: ev.Current,
		Next: usecase.NextEvent{
			Prayer:           ev.Next.Prayer,
			Name:             ev.Next.Prayer.Title(),
			Time:             ev.Next.Time.In(r.Location).Format(time.RFC3339),
			IsIqama:          ev.Next.IsIqama,
			RemainingSeconds: int64(ev.Next.Remaining / time.Second),
			Remaining:        domain.FormatRemaining(ev.Next.Remaining),
		},
		Hijri:  domain.ToHijri(local).String(),
		Delays: delays,
	}})
}

// compassRequest is a client frame on the compass stream.
type compassRequest struct {
	Type        string   `json:"type"`
	Degrees     float64  `json:"degrees"`
	Convention  string   `json:"convention"`
	Accuracy    *float64 `json:"accuracy"`
	TimestampMs int64    `json:"timestamp_ms"`
	Current     float64  `json:"current"`
	Target      *float64 `json:"target"`
	Offset      float64  `json:"offset"`
}

// StreamCompass handles GET /v1/stream/compass. Each session owns a
// tracker; with lat and lon the replies include the Qibla alignment.
func (h *Handler) StreamCompass(c *gin.Context) {
	var qibla *domain.Bearing
	if c.Query("lat") != "" || c.Query("lon") != "" {
		coord, ok := parseCoordinate(c)
		if !ok {
			return
		}
		b := domain.QiblaBearing(coord)
		qibla = &b
	}

	s, ok := newSession(c)
	if !ok {
		return
	}
	defer s.close()

	tracker := compass.NewTracker(h.opts.Compass)
	interval := h.opts.Compass.MinInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	flusher := time.NewTicker(interval)
	defer flusher.Stop()
	pinger := time.NewTicker(pingPeriod)
	defer pinger.Stop()

	// Flush runs on the client's clock; skew maps server time onto it.
	var skew int64
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-pinger.C:
			if err := s.ping(); err != nil {
				return
			}
		case <-flusher.C:
			if hd, ok := tracker.Flush(time.Now().UnixMilli() + skew); ok {
				if err := s.send(h.headingMessage(hd, qibla)); err != nil {
					return
				}
			}
		case data, ok := <-s.in:
			if !ok {
				return
			}
			var req compassRequest
			if err := json.Unmarshal(data, &req); err != nil {
				if err := s.send(message{Type: "error", Error: "invalid message"}); err != nil {
					return
				}
				continue
			}
			if req.Type == "sample" && req.TimestampMs != 0 {
				skew = req.TimestampMs - time.Now().UnixMilli()
			}
			if err := s.send(h.handleCompass(tracker, req, qibla)); err != nil {
				return
			}
		}
	}
}

// handleCompass applies one client frame to tracker and returns the reply.
func (h *Handler) handleCompass(tracker *compass.Tracker, req compassRequest, qibla *domain.Bearing) message {
	status := func() message {
		off := tracker.CalibrationOffset()
		return message{Type: "status", Status: tracker.Status(), OffsetDeg: &off}
	}

	switch req.Type {
	case "sample":
		conv, err := compass.ParseConvention(req.Convention)
		if err != nil {
			return message{Type: "error", Error: err.Error()}
		}
		hd, emitted, err := tracker.Ingest(compass.Sample{
			Degrees:     req.Degrees,
			Convention:  conv,
			Accuracy:    req.Accuracy,
			TimestampMs: req.TimestampMs,
		})
		if err != nil {
			return message{Type: "error", Error: err.Error(), Status: tracker.Status()}
		}
		if !emitted {
			return message{Type: "held"}
		}
		return h.headingMessage(hd, qibla)
	case "calibrate":
		target := req.Target
		if target == nil && qibla != nil {
			t := qibla.Degrees()
			target = &t
		}
		if target == nil {
			return message{Type: "error", Error: "calibrate needs a target or a location"}
		}
		if _, err := tracker.Calibrate(req.Current, *target); err != nil {
			return message{Type: "error", Error: err.Error()}
		}
		return status()
	case "offset":
		if err := tracker.SetCalibrationOffset(req.Offset); err != nil {
			return message{Type: "error", Error: err.Error()}
		}
		return status()
	case "clear":
		tracker.ClearCalibration()
		return status()
	case "unsupported":
		tracker.MarkUnsupported()
		return status()
	case "denied":
		tracker.MarkPermissionDenied()
		return status()
	case "reset":
		tracker.Reset()
		return status()
	case "status":
		msg := status()
		if hd, ok := tracker.Last(); ok {
			msg.Heading = &hd
		}
		return msg
	}
	return message{Type: "error", Error: "unknown message type " + req.Type}
}

func (h *Handler) headingMessage(hd compass.Heading, qibla *domain.Bearing) message {
	msg := message{Type: "heading", Heading: &hd}
	if qibla != nil {
		q := qibla.Degrees()
		delta := domain.SignedDelta(hd.Degrees, q)
		aligned := hd.AlignedWith(*qibla, h.opts.QiblaToleranceDeg)
		msg.QiblaDeg = &q
		msg.DeltaDeg = &delta
		msg.Aligned = &aligned
	}
	return msg
}
