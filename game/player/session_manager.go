package player

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// SessionManager maintains the registry of connected seats.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session // Key(match, seat) → session
	logger   *zap.Logger
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager(logger *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register adds a session. If a previous session holds the same seat, it is
// closed first (reconnect from another tab or device).
func (sm *SessionManager) Register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if old, ok := sm.sessions[s.Key()]; ok {
		old.Close()
		sm.logger.Info("duplicate seat session displaced",
			zap.String("match_id", s.MatchID),
			zap.Stringer("seat", s.Seat))
	}
	sm.sessions[s.Key()] = s
	sm.logger.Info("seat session registered",
		zap.String("match_id", s.MatchID),
		zap.Stringer("seat", s.Seat))
}

// Unregister removes s if it still holds its seat.
func (sm *SessionManager) Unregister(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.sessions[s.Key()] == s {
		delete(sm.sessions, s.Key())
		sm.logger.Info("seat session unregistered",
			zap.String("match_id", s.MatchID),
			zap.Stringer("seat", s.Seat))
	}
}

// Get returns the session for a seat key, or nil if not found.
func (sm *SessionManager) Get(key string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[key]
}

// Count returns the number of currently connected sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// ForMatch returns the sessions connected to one match.
func (sm *SessionManager) ForMatch(matchID string) []*Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var out []*Session
	for k, s := range sm.sessions {
		if strings.HasPrefix(k, matchID+":") {
			out = append(out, s)
		}
	}
	return out
}

// BroadcastMatch sends a packet to every seat of a match. Uses non-blocking
// send so a slow connection cannot stall the match.
func (sm *SessionManager) BroadcastMatch(matchID string, pkt *Packet) {
	data, err := json.Marshal(pkt)
	if err != nil {
		sm.logger.Error("failed to marshal broadcast packet", zap.Error(err))
		return
	}
	for _, s := range sm.ForMatch(matchID) {
		s.SendRaw(data)
	}
}

// CloseMatch closes every session of a match.
func (sm *SessionManager) CloseMatch(matchID string) {
	for _, s := range sm.ForMatch(matchID) {
		s.Close()
	}
}

// CloseAllSessions closes all connected sessions and waits up to 10s for
// their read loops to unregister them.
func (sm *SessionManager) CloseAllSessions() {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	sm.logger.Info("closing all sessions", zap.Int("count", len(sessions)))
	for _, s := range sessions {
		s.Close()
	}

	maxWait := 10 * time.Second
	start := time.Now()
	for time.Since(start) < maxWait {
		if sm.Count() == 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
}
