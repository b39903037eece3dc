// Package player tracks the websocket connections of remote seats.
package player

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kasuganosora/gen1sim/game/battle"
	"go.uber.org/zap"
)

const (
	sendChanBuf   = 256
	writeDeadline = 10 * time.Second
	readDeadlineS = 60 * time.Second
	pingInterval  = 30 * time.Second // server-side WS ping
)

// Packet is the unified WS message envelope.
type Packet struct {
	Seq     uint64          `json:"seq"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one connected seat.
type Session struct {
	MatchID string
	Seat    battle.SideID

	Conn     *websocket.Conn
	SendChan chan []byte
	Done     chan struct{}
	TraceID  string
	LastSeq  uint64

	mu        sync.Mutex
	connected time.Time
	sent      int
	logger    *zap.Logger
}

// NewSession creates a Session. The write goroutine is started only when
// conn is non-nil so tests can drain SendChan directly.
func NewSession(matchID string, seat battle.SideID, conn *websocket.Conn, logger *zap.Logger) *Session {
	s := &Session{
		MatchID:   matchID,
		Seat:      seat,
		Conn:      conn,
		SendChan:  make(chan []byte, sendChanBuf),
		Done:      make(chan struct{}),
		connected: time.Now(),
		logger:    logger,
	}
	if conn != nil {
		go s.writePump()
	}
	return s
}

// Key identifies the seat a session plays.
func (s *Session) Key() string { return Key(s.MatchID, s.Seat) }

// Key builds the registry key of a seat.
func Key(matchID string, seat battle.SideID) string { return matchID + ":" + seat.String() }

// writePump drains SendChan and writes to the WebSocket connection.
// Also sends periodic WebSocket pings to detect dead connections quickly.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Conn.Close()
	for {
		select {
		case data, ok := <-s.SendChan:
			if !ok {
				return
			}
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Warn("ws write error",
					zap.String("match_id", s.MatchID),
					zap.Stringer("seat", s.Seat),
					zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := s.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.Done:
			_ = s.Conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = s.Conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send encodes pkt and sends it non-blocking. Drops if channel full or closed.
func (s *Session) Send(pkt *Packet) {
	if s.IsClosed() {
		return
	}
	data, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	s.SendRaw(data)
}

// SendJSON wraps v in a packet of the given type.
func (s *Session) SendJSON(typ string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("ws payload marshal failed", zap.String("type", typ), zap.Error(err))
		return
	}
	s.Send(&Packet{Type: typ, Payload: payload})
}

// SendRaw sends raw bytes non-blocking. Drops if channel full or closed.
func (s *Session) SendRaw(data []byte) {
	if s.IsClosed() {
		return
	}
	select {
	case s.SendChan <- data:
		s.mu.Lock()
		s.sent++
		s.mu.Unlock()
	case <-s.Done:
	default:
		if !s.IsClosed() {
			s.logger.Warn("send channel full, dropping packet",
				zap.String("match_id", s.MatchID),
				zap.Stringer("seat", s.Seat))
		}
	}
}

// Close signals the writePump to shut down.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.Done:
	default:
		close(s.Done)
	}
}

// IsClosed returns true if the session has been closed.
func (s *Session) IsClosed() bool {
	select {
	case <-s.Done:
		return true
	default:
		return false
	}
}

// Stats reports when the session connected and how many packets it queued.
func (s *Session) Stats() (connected time.Time, sent int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected, s.sent
}

// SetReadDeadline resets the WebSocket read deadline to 60 s from now.
func (s *Session) SetReadDeadline() {
	_ = s.Conn.SetReadDeadline(time.Now().Add(readDeadlineS))
}

// SendHeartbeatPong sends a pong packet in response to a client ping.
func (s *Session) SendHeartbeatPong(clientTS int64) {
	s.SendJSON("pong", struct {
		ClientTS int64 `json:"client_ts"`
		ServerTS int64 `json:"server_ts"`
	}{clientTS, time.Now().UnixMilli()})
}
