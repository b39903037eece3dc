package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kasuganosora/gen1sim/audit"
	"github.com/kasuganosora/gen1sim/cache"
	"github.com/kasuganosora/gen1sim/config"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/match"
	"github.com/kasuganosora/gen1sim/game/player"
	mw "github.com/kasuganosora/gen1sim/middleware"
	"go.uber.org/zap"
)

// Handler is the Gin handler for GET /api/matches/:id/ws. It must sit
// behind middleware.SeatAuth.
type Handler struct {
	mgr      *match.Manager
	ps       cache.PubSub
	sm       *player.SessionManager
	audit    *audit.Service
	router   *Router
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a new WebSocket Handler and registers the seat
// message handlers on router.
// sec.AllowedOrigins controls which WebSocket origins are accepted.
// An empty slice permits all origins (development only).
func NewHandler(
	mgr *match.Manager,
	ps cache.PubSub,
	sec config.SecurityConfig,
	sm *player.SessionManager,
	auditSvc *audit.Service,
	router *Router,
	logger *zap.Logger,
) *Handler {
	h := &Handler{
		mgr:    mgr,
		ps:     ps,
		sm:     sm,
		audit:  auditSvc,
		router: router,
		logger: logger,
	}
	allowed := sec.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true // dev mode: allow all
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowed {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
	router.On("ping", h.handlePing)
	router.On("choose", h.handleChoose)
	router.On("request", h.handleRequest)
	router.On("log", h.handleLog)
	return h
}

// ServeWS upgrades an authenticated seat. The client first receives the
// whole log as "line" packets, then live lines, its own "request" packets,
// and finally "end" when the match is over.
func (h *Handler) ServeWS(c *gin.Context) {
	seat, ok := mw.GetSeat(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "seat required"})
		return
	}
	id := c.Param("id")
	if _, err := h.mgr.Get(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "match not found"})
		return
	}

	// Subscribe before reading the backlog so no line falls in between.
	ctx, cancel := context.WithCancel(context.Background())
	msgs, unsub, err := h.ps.Subscribe(ctx, match.Channel(id), match.SeatChannel(id, seat))
	if err != nil {
		cancel()
		h.logger.Error("match subscribe failed", zap.String("match_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	backlog, err := h.mgr.Backlog(c.Request.Context(), id, 0)
	if err != nil && !errors.Is(err, match.ErrNotFound) {
		unsub()
		cancel()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsub()
		cancel()
		h.logger.Error("ws upgrade failed", zap.Error(err))
		return
	}

	sess := player.NewSession(id, seat, conn, h.logger)
	h.sm.Register(sess)
	for i, l := range backlog {
		sess.SendJSON("line", match.Line{Seq: i, Text: l})
	}
	if m, err := h.mgr.Get(id); err == nil {
		if req, err := m.Request(seat); err == nil {
			sess.SendJSON("request", requestPayload{Request: req})
		}
	}

	go h.forward(sess, msgs, len(backlog), func() { unsub(); cancel() })
	h.readPump(sess)
}

type requestPayload struct {
	Request string `json:"request"`
}

// forward relays bus messages to s until the match ends or s closes.
func (h *Handler) forward(s *player.Session, msgs <-chan *cache.Message, next int, stop func()) {
	defer stop()
	lineCh := match.Channel(s.MatchID)
	for {
		select {
		case <-s.Done:
			return
		case msg, ok := <-msgs:
			if !ok {
				s.Close()
				return
			}
			if msg.Channel != lineCh {
				s.SendJSON("request", requestPayload{Request: msg.Payload})
				continue
			}
			l, err := match.DecodeLine(msg.Payload)
			if err != nil {
				h.logger.Warn("bad bus line", zap.String("match_id", s.MatchID), zap.Error(err))
				continue
			}
			if l.End {
				h.sendEnd(s, l)
				// let the write pump drain before closing
				time.AfterFunc(time.Second, s.Close)
				return
			}
			if l.Seq < next {
				continue // already sent from the backlog
			}
			next = l.Seq + 1
			s.SendJSON("line", l)
		}
	}
}

// sendEnd reports the end of the stream, with the final summary while the
// match is still held in memory.
func (h *Handler) sendEnd(s *player.Session, l match.Line) {
	payload := struct {
		match.Line
		Summary *match.Summary `json:"summary,omitempty"`
	}{Line: l}
	if m, err := h.mgr.Get(s.MatchID); err == nil {
		sum := m.Summary()
		payload.Summary = &sum
	}
	s.SendJSON("end", payload)
}

// readPump reads messages from the WebSocket connection and dispatches them.
func (h *Handler) readPump(s *player.Session) {
	defer func() {
		s.Close()
		h.sm.Unregister(s)
		h.logger.Info("seat disconnected",
			zap.String("match_id", s.MatchID),
			zap.Stringer("seat", s.Seat))
	}()

	s.SetReadDeadline()
	s.Conn.SetPongHandler(func(string) error {
		s.SetReadDeadline()
		return nil
	})

	for {
		_, raw, err := s.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived) {
				h.logger.Warn("ws unexpected close",
					zap.String("match_id", s.MatchID),
					zap.Stringer("seat", s.Seat),
					zap.Error(err))
			}
			return
		}
		// Reset read deadline on any message (heartbeat or otherwise).
		s.SetReadDeadline()
		h.router.Dispatch(s, raw)
	}
}

func (h *Handler) handlePing(_ context.Context, s *player.Session, raw json.RawMessage) error {
	var req struct {
		TS int64 `json:"ts"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &req)
	}
	s.SendHeartbeatPong(req.TS)
	return nil
}

func (h *Handler) handleChoose(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	var req struct {
		Choice battle.Choice `json:"choice"`
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return err
	}
	start := time.Now()
	err := h.mgr.Choose(ctx, s.MatchID, s.Seat, req.Choice)
	if h.audit != nil {
		entry := audit.AuditEntry{
			TraceID:    TraceIDFromCtx(ctx),
			MatchID:    s.MatchID,
			Seat:       s.Seat.String(),
			Action:     "choose",
			Request:    req,
			DurationMs: int(time.Since(start).Milliseconds()),
		}
		if s.Conn != nil {
			entry.IP = s.Conn.RemoteAddr().String()
		}
		if err != nil {
			entry.Error = err.Error()
		}
		if m, gerr := h.mgr.Get(s.MatchID); gerr == nil {
			entry.Turn = m.Summary().Turn
		}
		h.audit.Log(entry)
	}
	if err != nil {
		return err
	}
	s.SendJSON("ack", req)
	return nil
}

func (h *Handler) handleRequest(_ context.Context, s *player.Session, _ json.RawMessage) error {
	m, err := h.mgr.Get(s.MatchID)
	if err != nil {
		return err
	}
	req, err := m.Request(s.Seat)
	if err != nil {
		return err
	}
	s.SendJSON("request", requestPayload{Request: req})
	return nil
}

func (h *Handler) handleLog(ctx context.Context, s *player.Session, raw json.RawMessage) error {
	var req struct {
		Since int `json:"since"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return err
		}
	}
	lines, err := h.mgr.Backlog(ctx, s.MatchID, req.Since)
	if err != nil {
		return err
	}
	for i, l := range lines {
		s.SendJSON("line", match.Line{Seq: req.Since + i, Text: l})
	}
	return nil
}
