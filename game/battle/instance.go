package battle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kasuganosora/gen1sim/resource"
	"go.uber.org/zap"
)

var (
	ErrIllegalChoice = errors.New("battle: illegal choice")
	ErrBattleEnded   = errors.New("battle: battle has ended")
	ErrNotStarted    = errors.New("battle: battle not started")
	ErrStarted       = errors.New("battle: battle already started")
)

// ResultType is the outcome from player 1's point of view.
type ResultType uint8

const (
	ResultNone ResultType = iota
	ResultWin
	ResultLose
	ResultTie
)

var resultNames = [...]string{"none", "win", "lose", "tie"}

func (r ResultType) String() string { return resultNames[r] }

func (r ResultType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *ResultType) UnmarshalText(b []byte) error {
	i := slices.Index(resultNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("battle: unknown result %q", b)
	}
	*r = ResultType(i)
	return nil
}

// RequestKind is what a side must submit next.
type RequestKind uint8

const (
	RequestPass RequestKind = iota
	RequestMove
	RequestSwitch
)

var requestNames = [...]string{"pass", "move", "switch"}

func (r RequestKind) String() string { return requestNames[r] }

func (r RequestKind) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func (r *RequestKind) UnmarshalText(b []byte) error {
	i := slices.Index(requestNames[:], string(b))
	if i < 0 {
		return fmt.Errorf("battle: unknown request %q", b)
	}
	*r = RequestKind(i)
	return nil
}

// Result is returned after every call that advances the battle.
type Result struct {
	Type ResultType  `json:"type"`
	P1   RequestKind `json:"p1"`
	P2   RequestKind `json:"p2"`
}

// Request returns the request for one side.
func (r Result) Request(id SideID) RequestKind {
	if id == P1 {
		return r.P1
	}
	return r.P2
}

func (r Result) Ended() bool { return r.Type != ResultNone }

// Rules toggles the clauses in force.
type Rules struct {
	EndlessBattle bool `mapstructure:"endless_battle" yaml:"endless_battle" json:"endless_battle"`
	SleepClause   bool `mapstructure:"sleep_clause" yaml:"sleep_clause" json:"sleep_clause"`
	FreezeClause  bool `mapstructure:"freeze_clause" yaml:"freeze_clause" json:"freeze_clause"`
	// TurnLimit is the first turn number that is never played; reaching it
	// ends the battle in a tie.
	TurnLimit int `mapstructure:"turn_limit" yaml:"turn_limit" json:"turn_limit"`
}

// DefaultRules returns the clauses of the standard ruleset.
func DefaultRules() Rules {
	return Rules{EndlessBattle: true, SleepClause: true, FreezeClause: true, TurnLimit: 1000}
}

// BattleConfig configures a Battle.
type BattleConfig struct {
	P1, P2  []Set
	Names   [2]string // "" = "Player 1" / "Player 2"
	Seed    [4]uint16
	Source  Source // nil = PRNG seeded with Seed; injectable for testing
	Dex     *resource.Dex
	Rules   *Rules      // nil = DefaultRules()
	TurnMgr TurnManager // nil = DefaultTurnManager
	Logger  *zap.Logger
}

// Battle is the deterministic state machine for one singles battle.
type Battle struct {
	Sides [2]*Side
	Turn  int
	// LastDamage is the damage of the last damaging hit, read by Counter
	// and Bide.
	LastDamage int

	rules   Rules
	src     Source
	dex     *resource.Dex
	logger  *zap.Logger
	turnMgr TurnManager
	log     Log

	metronomePool []*resource.Move

	started bool
	result  Result
	err     error

	faints []*Combatant
	// recharge holds the combatant owed a -mustrecharge after its residual.
	recharge *Combatant
}

// NewBattle validates the rosters and builds a battle ready for Start.
func NewBattle(cfg BattleConfig) (*Battle, error) {
	if cfg.Dex == nil {
		cfg.Dex = resource.Default()
	}
	if cfg.Source == nil {
		cfg.Source = NewPRNG(cfg.Seed)
	}
	if cfg.TurnMgr == nil {
		cfg.TurnMgr = DefaultTurnManager{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	rules := DefaultRules()
	if cfg.Rules != nil {
		rules = *cfg.Rules
	}

	b := &Battle{
		rules:   rules,
		src:     cfg.Source,
		dex:     cfg.Dex,
		logger:  cfg.Logger,
		turnMgr: cfg.TurnMgr,
	}
	for i, sets := range [2][]Set{cfg.P1, cfg.P2} {
		id := SideID(i)
		if len(sets) < 1 || len(sets) > 6 {
			return nil, fmt.Errorf("battle: %s: team size %d, want 1..6", id, len(sets))
		}
		name := cfg.Names[i]
		if name == "" {
			name = fmt.Sprintf("Player %d", i+1)
		}
		s := &Side{ID: id, Name: name, battle: b}
		for _, set := range sets {
			c, err := newCombatant(b.dex, s, set)
			if err != nil {
				return nil, fmt.Errorf("battle: %s: %w", id, err)
			}
			s.Team = append(s.Team, c)
		}
		b.Sides[i] = s
	}
	for _, m := range b.dex.Moves {
		if m.Num != resource.MoveMetronome && m.Num != resource.MoveStruggle {
			b.metronomePool = append(b.metronomePool, m)
		}
	}
	return b, nil
}

// Log returns the full event log.
func (b *Battle) Log() *Log { return &b.log }

// Result returns the latest result.
func (b *Battle) Result() Result { return b.result }

// Err returns the error that stopped the battle, if any.
func (b *Battle) Err() error { return b.err }

func (b *Battle) Side(id SideID) *Side { return b.Sides[id] }

// Dex returns the data tables the battle was built from.
func (b *Battle) Dex() *resource.Dex { return b.dex }

// Rules returns the clauses in force.
func (b *Battle) Rules() Rules { return b.rules }

func (b *Battle) emit(e Event) { b.log.Append(e) }

// Start sends out both leads and begins turn 1.
func (b *Battle) Start() (Result, []Event, error) {
	if b.started {
		return b.result, nil, ErrStarted
	}
	b.started = true
	mark := b.log.Len()
	err := b.guard(func() {
		for _, s := range b.Sides {
			s.Active().switchIn()
			b.emit(evSwitch(s.Active()))
		}
		b.nextTurn()
	})
	if err != nil {
		return b.result, b.log.Since(mark), err
	}
	b.logger.Debug("battle started",
		zap.String("p1", b.Sides[P1].Active().Name), zap.String("p2", b.Sides[P2].Active().Name))
	return b.result, b.log.Since(mark), nil
}

// Play submits one choice per side and advances the battle until the next
// request.
func (b *Battle) Play(c1, c2 Choice) (Result, []Event, error) {
	if b.err != nil {
		return b.result, nil, b.err
	}
	if !b.started {
		return b.result, nil, ErrNotStarted
	}
	if b.result.Ended() {
		return b.result, nil, ErrBattleEnded
	}
	choices := [2]Choice{c1, c2}
	for i, c := range choices {
		if err := b.validate(SideID(i), c); err != nil {
			return b.result, nil, err
		}
	}

	mark := b.log.Len()
	err := b.guard(func() {
		if b.result.P1 == RequestSwitch || b.result.P2 == RequestSwitch {
			b.replace(choices)
			return
		}
		b.playTurn(choices)
	})
	if err != nil {
		return b.result, b.log.Since(mark), err
	}
	return b.result, b.log.Since(mark), nil
}

// guard runs fn, converting a determinism panic into a poisoned battle.
func (b *Battle) guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			de, ok := r.(*DeterminismError)
			if !ok {
				panic(r)
			}
			b.logger.Warn("determinism error", zap.Error(de), zap.Int("turn", b.Turn))
			b.err = de
			err = de
		}
	}()
	fn()
	return nil
}

// replace performs forced switches after a faint, player 1 first.
func (b *Battle) replace(choices [2]Choice) {
	for i, s := range b.Sides {
		if b.result.Request(s.ID) == RequestSwitch {
			s.switchTo(int(choices[i].Data))
		}
	}
	b.nextTurn()
}

// nextTurn ends the battle on the turn limit or an endless battle, and
// otherwise starts the next turn.
func (b *Battle) nextTurn() {
	if b.Turn+1 >= b.rules.TurnLimit {
		b.finish(ResultTie)
		return
	}
	if b.rules.EndlessBattle && b.endless() {
		b.finish(ResultTie)
		return
	}
	b.Turn++
	b.emit(evTurn(b.Turn))
	b.result = Result{P1: RequestMove, P2: RequestMove}
}

func (b *Battle) finish(r ResultType) {
	switch r {
	case ResultWin:
		b.emit(ev(KindWin, b.Sides[P1].Name))
	case ResultLose:
		b.emit(ev(KindWin, b.Sides[P2].Name))
	case ResultTie:
		b.emit(ev(KindTie))
	}
	b.result = Result{Type: r}
	b.logger.Info("battle ended", zap.Stringer("result", r), zap.Int("turn", b.Turn))
}

// faint queues c to faint at the end of the current action.
func (b *Battle) faint(c *Combatant) {
	for _, f := range b.faints {
		if f == c {
			return
		}
	}
	b.faints = append(b.faints, c)
}

// flushFaints emits the queued faints and settles the battle. It reports
// whether anything fainted, which ends the action phase.
func (b *Battle) flushFaints() bool {
	if len(b.faints) == 0 {
		return false
	}
	for _, c := range b.faints {
		b.emit(ev(KindFaint, c.Ident()))
		// A fainting binder drops its own lock only: the target stays
		// partially trapped until its counter runs out.
		c.Fainted = true
		c.Status = StatusNone
		c.Volatiles.Clear()
		c.Boosts = Boosts{}
	}
	b.faints = b.faints[:0]
	b.recharge = nil

	lost1, lost2 := b.Sides[P1].Defeated(), b.Sides[P2].Defeated()
	switch {
	case lost1 && lost2:
		b.finish(ResultTie)
	case lost1:
		b.finish(ResultLose)
	case lost2:
		b.finish(ResultWin)
	default:
		b.result = Result{}
		if b.Sides[P1].Active().HP == 0 {
			b.result.P1 = RequestSwitch
		}
		if b.Sides[P2].Active().HP == 0 {
			b.result.P2 = RequestSwitch
		}
	}
	return true
}

// endless reports whether neither side can ever make progress.
func (b *Battle) endless() bool {
	for _, s := range b.Sides {
		foe := s.Foe()
		for _, c := range s.Team {
			switch {
			case c.Fainted, c.Status == StatusFreeze:
			case onlyTransform(c) && allOf(foe, func(f *Combatant) bool { return f.Fainted || onlyTransform(f) }):
			case noPP(c) && allOf(foe, func(f *Combatant) bool { return f.Fainted || f.HasType(resource.Ghost) }):
			default:
				return false
			}
		}
	}
	return true
}

func onlyTransform(c *Combatant) bool {
	for _, m := range c.Moves {
		if m.Move.Num != resource.MoveTransform {
			return false
		}
	}
	return true
}

func noPP(c *Combatant) bool {
	for _, m := range c.Moves {
		if m.PP > 0 {
			return false
		}
	}
	return true
}

func allOf(s *Side, pred func(*Combatant) bool) bool {
	for _, c := range s.Team {
		if !pred(c) {
			return false
		}
	}
	return true
}
