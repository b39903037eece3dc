package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kasuganosora/gen1sim/game/player"
	"go.uber.org/zap"
)

// HandlerFunc processes a decoded WS message payload.
type HandlerFunc func(ctx context.Context, session *player.Session, payload json.RawMessage) error

// Router dispatches incoming WS packets to registered handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a new Router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// On registers a HandlerFunc for the given message type.
func (r *Router) On(msgType string, fn HandlerFunc) {
	r.handlers[msgType] = fn
}

// errorPayload is sent back when a handler fails.
type errorPayload struct {
	Type  string `json:"type"`
	Seq   uint64 `json:"seq,omitempty"`
	Error string `json:"error"`
}

// Dispatch decodes raw bytes, validates seq, and invokes the appropriate
// handler. Handler errors are reported to the client as an "error" packet.
func (r *Router) Dispatch(s *player.Session, raw []byte) {
	var pkt player.Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		r.logger.Warn("malformed packet",
			zap.String("match_id", s.MatchID),
			zap.Error(err))
		s.SendJSON("error", errorPayload{Error: "malformed packet"})
		return
	}

	// Monotonic seq check (anti-replay). Seq == 0 means no seq tracking.
	if pkt.Seq != 0 && pkt.Seq <= s.LastSeq {
		r.logger.Warn("replayed or out-of-order packet",
			zap.String("match_id", s.MatchID),
			zap.Uint64("seq", pkt.Seq),
			zap.Uint64("last_seq", s.LastSeq))
		return
	}
	if pkt.Seq != 0 {
		s.LastSeq = pkt.Seq
	}

	s.TraceID = uuid.NewString()
	ctx := context.WithValue(context.Background(), ctxKeyTraceID{}, s.TraceID)

	fn, ok := r.handlers[pkt.Type]
	if !ok {
		r.logger.Debug("unhandled message type",
			zap.String("type", pkt.Type),
			zap.String("match_id", s.MatchID))
		s.SendJSON("error", errorPayload{Type: pkt.Type, Seq: pkt.Seq, Error: "unknown message type"})
		return
	}

	if err := fn(ctx, s, pkt.Payload); err != nil {
		r.logger.Info("handler error",
			zap.String("type", pkt.Type),
			zap.String("match_id", s.MatchID),
			zap.Stringer("seat", s.Seat),
			zap.String("trace_id", s.TraceID),
			zap.Error(err))
		s.SendJSON("error", errorPayload{Type: pkt.Type, Seq: pkt.Seq, Error: err.Error()})
	}
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx extracts the trace ID from a handler context.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
