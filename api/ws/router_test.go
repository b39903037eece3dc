package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/game/player"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nop() *zap.Logger { return zap.NewNop() }

// newSession creates a session without a connection; packets sent to it
// stay in SendChan.
func newSession() *player.Session {
	return player.NewSession("m1", battle.P1, nil, nop())
}

func nextPacket(t *testing.T, s *player.Session) player.Packet {
	t.Helper()
	require.NotEmpty(t, s.SendChan)
	var pkt player.Packet
	require.NoError(t, json.Unmarshal(<-s.SendChan, &pkt))
	return pkt
}

func makePacket(t *testing.T, seq uint64, msgType string, payload interface{}) []byte {
	t.Helper()
	p, _ := json.Marshal(payload)
	pkt := player.Packet{Seq: seq, Type: msgType, Payload: p}
	b, err := json.Marshal(pkt)
	require.NoError(t, err)
	return b
}

func TestRouter_On_Dispatch_Basic(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("ping", func(ctx context.Context, s *player.Session, payload json.RawMessage) error {
		called = true
		return nil
	})

	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "ping", nil))
	assert.True(t, called)
}

func TestRouter_Dispatch_MalformedJSON(t *testing.T) {
	r := NewRouter(nop())
	s := newSession()
	r.Dispatch(s, []byte("not json"))
	assert.Equal(t, "error", nextPacket(t, s).Type)
}

func TestRouter_Dispatch_UnknownType(t *testing.T) {
	r := NewRouter(nop())
	called := false
	r.On("known", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		called = true
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "unknown", nil))
	assert.False(t, called)
	assert.Equal(t, "error", nextPacket(t, s).Type)
}

func TestRouter_Dispatch_AntiReplay_RejectsOldSeq(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		callCount++
		return nil
	})
	s := newSession()

	// First message with seq=5 → accepted
	r.Dispatch(s, makePacket(t, 5, "msg", nil))
	assert.Equal(t, 1, callCount)

	// Same seq=5 → rejected (replay)
	r.Dispatch(s, makePacket(t, 5, "msg", nil))
	assert.Equal(t, 1, callCount)

	// Lower seq=3 → rejected
	r.Dispatch(s, makePacket(t, 3, "msg", nil))
	assert.Equal(t, 1, callCount)
}

func TestRouter_Dispatch_AntiReplay_AcceptsNewSeq(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		callCount++
		return nil
	})
	s := newSession()

	r.Dispatch(s, makePacket(t, 10, "msg", nil))
	r.Dispatch(s, makePacket(t, 11, "msg", nil))
	r.Dispatch(s, makePacket(t, 100, "msg", nil))
	assert.Equal(t, 3, callCount)
}

func TestRouter_Dispatch_SeqZero_SkipsAntiReplay(t *testing.T) {
	r := NewRouter(nop())
	var callCount int
	r.On("msg", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		callCount++
		return nil
	})
	s := newSession()
	s.LastSeq = 100 // high seq already seen

	// Seq=0 should bypass anti-replay
	r.Dispatch(s, makePacket(t, 0, "msg", nil))
	r.Dispatch(s, makePacket(t, 0, "msg", nil))
	assert.Equal(t, 2, callCount)
}

func TestRouter_Dispatch_PayloadPassed(t *testing.T) {
	r := NewRouter(nop())
	var got map[string]interface{}
	r.On("data", func(_ context.Context, _ *player.Session, raw json.RawMessage) error {
		return json.Unmarshal(raw, &got)
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "data", map[string]interface{}{"key": "value"}))
	assert.Equal(t, "value", got["key"])
}

func TestRouter_Dispatch_HandlerErrorReported(t *testing.T) {
	r := NewRouter(nop())
	r.On("err", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		return assert.AnError
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 7, "err", nil))

	pkt := nextPacket(t, s)
	assert.Equal(t, "error", pkt.Type)
	var p errorPayload
	require.NoError(t, json.Unmarshal(pkt.Payload, &p))
	assert.Equal(t, "err", p.Type)
	assert.Equal(t, uint64(7), p.Seq)
	assert.Equal(t, assert.AnError.Error(), p.Error)
}

func TestRouter_TraceIDFromCtx_Present(t *testing.T) {
	r := NewRouter(nop())
	var traceID string
	r.On("trace", func(ctx context.Context, _ *player.Session, _ json.RawMessage) error {
		traceID = TraceIDFromCtx(ctx)
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "trace", nil))
	assert.NotEmpty(t, traceID)
}

func TestTraceIDFromCtx_Missing(t *testing.T) {
	id := TraceIDFromCtx(context.Background())
	assert.Equal(t, "", id)
}

func TestRouter_MultipleHandlers(t *testing.T) {
	r := NewRouter(nop())
	var calls []string
	r.On("a", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		calls = append(calls, "a")
		return nil
	})
	r.On("b", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		calls = append(calls, "b")
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "a", nil))
	r.Dispatch(s, makePacket(t, 2, "b", nil))
	assert.Equal(t, []string{"a", "b"}, calls)
}

func TestRouter_ReplaceHandler(t *testing.T) {
	r := NewRouter(nop())
	var calls []string
	r.On("msg", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		calls = append(calls, "first")
		return nil
	})
	r.On("msg", func(_ context.Context, _ *player.Session, _ json.RawMessage) error {
		calls = append(calls, "second")
		return nil
	})
	s := newSession()
	r.Dispatch(s, makePacket(t, 1, "msg", nil))
	assert.Equal(t, []string{"second"}, calls)
}
