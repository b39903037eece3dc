// Package match hosts live battles: two seats per battle, each a remote
// player holding a seat token or a bot strategy, with every protocol line
// fanned out through the cache bus and the finished battle persisted.
package match

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/kasuganosora/gen1sim/game/ai"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/protocol"
)

var (
	ErrNotFound  = errors.New("match: not found")
	ErrWrongSeat = errors.New("match: seat is not played remotely")
	ErrEnded     = errors.New("match: ended")
	ErrVetoed    = errors.New("match: choice rejected")
)

// CreateRequest describes a new match.
type CreateRequest struct {
	P1    []battle.Set  `json:"p1" binding:"required"`
	P2    []battle.Set  `json:"p2" binding:"required"`
	Names [2]string     `json:"names"`
	Seed  *[4]uint16    `json:"seed,omitempty"`  // nil = derived from the match id
	Rules *battle.Rules `json:"rules,omitempty"` // nil = server rules
	// Bots names the strategy playing each seat; "" leaves it to a player.
	Bots [2]string `json:"bots"`
}

// ChoiceEvent is the BeforeChoice hook payload.
type ChoiceEvent struct {
	MatchID string
	Seat    battle.SideID
	Choice  battle.Choice
	Turn    int
}

// TurnEvent is the BattleTurn hook payload.
type TurnEvent struct {
	MatchID string
	Turn    int
	Result  battle.Result
	Lines   []string
}

// Summary is the public view of a match.
type Summary struct {
	ID        string        `json:"id"`
	Names     [2]string     `json:"names"`
	Bots      [2]string     `json:"bots"`
	Seed      [4]uint16     `json:"seed"`
	Turn      int           `json:"turn"`
	Result    battle.Result `json:"result"`
	Waiting   [2]bool       `json:"waiting"` // seat still owes a choice
	Lines     int           `json:"lines"`
	Ended     bool          `json:"ended"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Match is one live battle. All fields are guarded by mu.
type Match struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	b        *battle.Battle
	seed     [4]uint16
	teams    [2][]battle.Set
	rules    battle.Rules
	bots     [2]ai.Strategy
	botNames [2]string
	result   battle.Result
	pending  [2]*battle.Choice
	choices  []string // "c1|c2" per Play call
	lines    []string
	active   time.Time
	ended    bool
	err      error
}

// Summary snapshots the match.
func (m *Match) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Summary{
		ID:        m.ID,
		Bots:      m.botNames,
		Seed:      m.seed,
		Turn:      m.b.Turn,
		Result:    m.result,
		Lines:     len(m.lines),
		Ended:     m.ended,
		CreatedAt: m.CreatedAt,
	}
	for i, side := range m.b.Sides {
		s.Names[i] = side.Name
		s.Waiting[i] = !m.ended && m.pending[i] == nil && m.result.Request(side.ID) != battle.RequestPass
	}
	if m.err != nil {
		s.Error = m.err.Error()
	}
	return s
}

// Lines returns the protocol lines from index since on.
func (m *Match) Lines(since int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if since < 0 || since >= len(m.lines) {
		return nil
	}
	return slices.Clone(m.lines[since:])
}

// Choices lists what seat may submit now.
func (m *Match) Choices(seat battle.SideID) ([]battle.Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return nil, ErrEnded
	}
	return m.b.Choices(seat, m.result)
}

// Request renders the seat's pending request as a protocol line.
func (m *Match) Request(seat battle.SideID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.request(seat)
}

func (m *Match) request(seat battle.SideID) (string, error) {
	if m.ended {
		return "", ErrEnded
	}
	cs, err := m.b.Choices(seat, m.result)
	if err != nil {
		return "", err
	}
	return protocol.Request(seat, m.result, cs), nil
}

// submit checks c against the legal choices and stores it. m.mu must be
// held.
func (m *Match) submit(seat battle.SideID, c battle.Choice) error {
	if m.ended {
		return ErrEnded
	}
	if m.bots[seat] != nil {
		return ErrWrongSeat
	}
	legal, err := m.b.Choices(seat, m.result)
	if err != nil {
		return err
	}
	if !(len(legal) == 0 && c == battle.Pass()) && !slices.Contains(legal, c) {
		return battle.ErrIllegalChoice
	}
	m.pending[seat] = &c
	return nil
}

// advance fills automatic choices (bots and forced passes) and plays while
// both seats have a choice. It returns the lines produced. m.mu must be
// held.
func (m *Match) advance() ([]string, error) {
	var lines []string
	for !m.result.Ended() {
		for i := range m.pending {
			if m.pending[i] != nil {
				continue
			}
			seat := battle.SideID(i)
			cs, err := m.b.Choices(seat, m.result)
			if err != nil {
				return lines, err
			}
			switch {
			case len(cs) == 0:
				p := battle.Pass()
				m.pending[i] = &p
			case m.bots[i] != nil:
				c, err := m.bots[i].Choose(m.b, seat, m.result)
				if err != nil {
					return lines, err
				}
				m.pending[i] = &c
			}
		}
		if m.pending[battle.P1] == nil || m.pending[battle.P2] == nil {
			break
		}
		c1, c2 := *m.pending[battle.P1], *m.pending[battle.P2]
		m.pending = [2]*battle.Choice{}
		r, events, err := m.b.Play(c1, c2)
		out := protocol.Render(events)
		m.lines = append(m.lines, out...)
		lines = append(lines, out...)
		if err != nil {
			return lines, err
		}
		m.choices = append(m.choices, c1.String()+"|"+c2.String())
		m.result = r
	}
	return lines, nil
}
