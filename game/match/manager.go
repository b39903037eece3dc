package match

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kasuganosora/gen1sim/cache"
	"github.com/kasuganosora/gen1sim/game/ai"
	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/plugin/hook"
	"github.com/kasuganosora/gen1sim/protocol"
	"github.com/kasuganosora/gen1sim/resource"
	"github.com/kasuganosora/gen1sim/scheduler"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	activeKey   = "battle:active"
	finishedKey = "battle:finished"
	statsKey    = "battle:stats"
)

// Channel is the pub/sub channel carrying a match's protocol lines.
func Channel(id string) string { return "battle:" + id }

// SeatChannel carries the request lines meant for one seat only.
func SeatChannel(id string, seat battle.SideID) string { return "battle:" + id + ":" + seat.String() }

// BacklogKey is the cache list holding every line a match has produced.
func BacklogKey(id string) string { return "battle:" + id + ":log" }

// SeatKey holds the live token of a seat; deleting it revokes the seat.
func SeatKey(id string, seat battle.SideID) string { return "seat:" + id + ":" + seat.String() }

// Recorder persists finished battles.
type Recorder interface {
	Record(rec *model.BattleRecord)
}

// TokenIssuer signs a seat token.
type TokenIssuer func(matchID string, seat battle.SideID, ttl time.Duration) (string, error)

// Config wires a Manager. Cache and PubSub are required; the rest may be nil.
type Config struct {
	Dex       *resource.Dex
	Rules     battle.Rules
	Cache     cache.Cache
	PubSub    cache.PubSub
	Hooks     *hook.HookCenter
	Recorder  Recorder
	Tokens    TokenIssuer
	TokenTTL  time.Duration
	Scheduler *scheduler.Scheduler
	// Grace keeps a finished match in memory so late readers can fetch it.
	Grace  time.Duration
	Logger *zap.Logger
}

// Manager is the registry of live matches.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.RWMutex
	matches map[string]*Match
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.Dex == nil {
		cfg.Dex = resource.Default()
	}
	if cfg.Rules.TurnLimit <= 0 {
		cfg.Rules.TurnLimit = battle.DefaultRules().TurnLimit
	}
	if cfg.Hooks == nil {
		cfg.Hooks = hook.NewHookCenter()
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 72 * time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, logger: logger, matches: make(map[string]*Match)}
}

// seedFromID derives a battle seed from the random bits of a match id.
func seedFromID(id uuid.UUID) [4]uint16 {
	var s [4]uint16
	for i := range s {
		s[i] = binary.BigEndian.Uint16(id[8+2*i:])
	}
	return s
}

// Create starts a match and returns it with one token per remote seat
// ("" for bot seats). Bot-only matches play to the end before Create
// returns.
func (mgr *Manager) Create(ctx context.Context, req CreateRequest) (*Match, [2]string, error) {
	var tokens [2]string
	uid := uuid.New()
	m := &Match{
		ID:        uid.String(),
		CreatedAt: time.Now(),
		seed:      seedFromID(uid),
		teams:     [2][]battle.Set{req.P1, req.P2},
		rules:     mgr.cfg.Rules,
		botNames:  req.Bots,
		active:    time.Now(),
	}
	if req.Seed != nil {
		m.seed = *req.Seed
	}
	if req.Rules != nil {
		m.rules = *req.Rules
		if m.rules.TurnLimit <= 0 {
			m.rules.TurnLimit = mgr.cfg.Rules.TurnLimit
		}
	}
	for i, name := range req.Bots {
		if name == "" {
			continue
		}
		s, err := ai.New(name, uint64(m.seed[i])<<32|uint64(m.seed[2+i]))
		if err != nil {
			return nil, tokens, err
		}
		m.bots[i] = s
	}

	b, err := battle.NewBattle(battle.BattleConfig{
		P1:     req.P1,
		P2:     req.P2,
		Names:  req.Names,
		Seed:   m.seed,
		Dex:    mgr.cfg.Dex,
		Rules:  &m.rules,
		Logger: mgr.logger.With(zap.String("match_id", m.ID)),
	})
	if err != nil {
		return nil, tokens, err
	}
	m.b = b

	names := [2]string{b.Sides[battle.P1].Name, b.Sides[battle.P2].Name}
	m.lines = protocol.Header(names, [2]int{len(req.P1), len(req.P2)}, m.rules)
	r, events, err := b.Start()
	if err != nil {
		return nil, tokens, err
	}
	m.lines = append(m.lines, protocol.Render(events)...)
	m.result = r

	for i := range tokens {
		if m.bots[i] != nil || mgr.cfg.Tokens == nil {
			continue
		}
		seat := battle.SideID(i)
		tok, err := mgr.cfg.Tokens(m.ID, seat, mgr.cfg.TokenTTL)
		if err != nil {
			return nil, tokens, fmt.Errorf("match: issue %s token: %w", seat, err)
		}
		if err := mgr.cfg.Cache.Set(ctx, SeatKey(m.ID, seat), tok, mgr.cfg.TokenTTL); err != nil {
			return nil, tokens, err
		}
		tokens[i] = tok
	}

	mgr.mu.Lock()
	mgr.matches[m.ID] = m
	mgr.mu.Unlock()

	if err := mgr.cfg.Cache.RPush(ctx, BacklogKey(m.ID), m.lines...); err != nil {
		mgr.logger.Warn("backlog push failed", zap.String("match_id", m.ID), zap.Error(err))
	}
	if err := mgr.cfg.Cache.SAdd(ctx, activeKey, m.ID); err != nil {
		mgr.logger.Warn("active set add failed", zap.String("match_id", m.ID), zap.Error(err))
	}
	if _, err := mgr.cfg.Hooks.Trigger(ctx, hook.BattleCreated, m); err != nil {
		mgr.logger.Warn("battle.created hook failed", zap.String("match_id", m.ID), zap.Error(err))
	}
	mgr.logger.Info("match created",
		zap.String("match_id", m.ID),
		zap.Uint16s("seed", m.seed[:]),
		zap.Strings("bots", req.Bots[:]))

	m.mu.Lock()
	err = mgr.step(ctx, m)
	m.mu.Unlock()
	return m, tokens, err
}

// Get returns a live match.
func (mgr *Manager) Get(id string) (*Match, error) {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()
	m, ok := mgr.matches[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m, nil
}

// List summarises the live matches, oldest first.
func (mgr *Manager) List() []Summary {
	mgr.mu.RLock()
	ms := make([]*Match, 0, len(mgr.matches))
	for _, m := range mgr.matches {
		ms = append(ms, m)
	}
	mgr.mu.RUnlock()

	out := make([]Summary, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Summary())
	}
	slices.SortFunc(out, func(a, b Summary) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Choose submits a remote seat's choice. The battle advances as soon as
// both seats have one.
func (mgr *Manager) Choose(ctx context.Context, id string, seat battle.SideID, c battle.Choice) error {
	m, err := mgr.Get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	ev := &ChoiceEvent{MatchID: id, Seat: seat, Choice: c, Turn: m.b.Turn}
	if _, err := mgr.cfg.Hooks.Trigger(ctx, hook.BeforeChoice, ev); errors.Is(err, hook.ErrInterrupt) {
		return ErrVetoed
	}
	if err := m.submit(seat, c); err != nil {
		return fmt.Errorf("%s %s: %w", seat, c, err)
	}
	m.active = time.Now()
	return mgr.step(ctx, m)
}

// step advances m, publishes what it produced and finishes it if it ended.
// m.mu must be held.
func (mgr *Manager) step(ctx context.Context, m *Match) error {
	lines, err := m.advance()
	if len(lines) > 0 {
		mgr.publish(ctx, m, lines)
		if _, herr := mgr.cfg.Hooks.Trigger(ctx, hook.BattleTurn, &TurnEvent{
			MatchID: m.ID, Turn: m.b.Turn, Result: m.result, Lines: lines,
		}); herr != nil {
			mgr.logger.Warn("battle.turn hook failed", zap.String("match_id", m.ID), zap.Error(herr))
		}
	}
	if err != nil {
		m.err = err
		mgr.logger.Error("match failed", zap.String("match_id", m.ID), zap.Int("turn", m.b.Turn), zap.Error(err))
		mgr.finish(ctx, m, "")
		return err
	}
	if m.result.Ended() {
		mgr.finish(ctx, m, m.result.Type.String())
		return nil
	}
	for i := range m.pending {
		seat := battle.SideID(i)
		if m.pending[i] != nil || m.bots[i] != nil {
			continue
		}
		if req, err := m.request(seat); err == nil {
			_ = mgr.cfg.PubSub.Publish(ctx, SeatChannel(m.ID, seat), req)
		}
	}
	return nil
}

func (mgr *Manager) publish(ctx context.Context, m *Match, lines []string) {
	if err := mgr.cfg.Cache.RPush(ctx, BacklogKey(m.ID), lines...); err != nil {
		mgr.logger.Warn("backlog push failed", zap.String("match_id", m.ID), zap.Error(err))
	}
	base := len(m.lines) - len(lines)
	for i, l := range lines {
		if err := mgr.cfg.PubSub.Publish(ctx, Channel(m.ID), EncodeLine(Line{Seq: base + i, Text: l})); err != nil {
			mgr.logger.Warn("publish failed", zap.String("match_id", m.ID), zap.Error(err))
			return
		}
	}
}

// finish marks m ended, records it and schedules its eviction. result is
// "" for a match that failed or was abandoned. m.mu must be held.
func (mgr *Manager) finish(ctx context.Context, m *Match, result string) {
	if m.ended {
		return
	}
	m.ended = true
	m.pending = [2]*battle.Choice{}

	rec, err := m.record(result)
	if err != nil {
		mgr.logger.Error("record build failed", zap.String("match_id", m.ID), zap.Error(err))
	} else {
		if _, err := mgr.cfg.Hooks.Trigger(ctx, hook.BattleEnded, rec); err != nil {
			mgr.logger.Warn("battle.ended hook failed", zap.String("match_id", m.ID), zap.Error(err))
		}
		if mgr.cfg.Recorder != nil {
			mgr.cfg.Recorder.Record(rec)
		}
	}

	c := mgr.cfg.Cache
	outcome := result
	if outcome == "" {
		outcome = "abandoned"
	}
	_ = c.SRem(ctx, activeKey, m.ID)
	_ = c.ZAdd(ctx, finishedKey, float64(time.Now().UnixMilli()), m.ID)
	_, _ = c.HIncrBy(ctx, statsKey, outcome, 1)
	_ = c.Del(ctx, SeatKey(m.ID, battle.P1), SeatKey(m.ID, battle.P2))
	_ = mgr.cfg.PubSub.Publish(ctx, Channel(m.ID), EncodeLine(Line{Seq: len(m.lines), End: true}))

	mgr.logger.Info("match finished",
		zap.String("match_id", m.ID),
		zap.String("result", outcome),
		zap.Int("turn", m.b.Turn))

	if mgr.cfg.Scheduler != nil && mgr.cfg.Grace > 0 {
		id := m.ID
		mgr.cfg.Scheduler.AddDelay("evict:"+id, mgr.cfg.Grace, func(context.Context) { mgr.Remove(id) })
	} else {
		go mgr.Remove(m.ID)
	}
}

// Line is one message on Channel: a protocol line with its index in the
// match log, or the end of the stream.
type Line struct {
	Seq  int    `json:"seq"`
	Text string `json:"line,omitempty"`
	End  bool   `json:"end,omitempty"`
}

// EncodeLine renders l as a pub/sub payload.
func EncodeLine(l Line) string {
	b, _ := json.Marshal(l)
	return string(b)
}

// DecodeLine parses a payload published on Channel.
func DecodeLine(payload string) (Line, error) {
	var l Line
	err := json.Unmarshal([]byte(payload), &l)
	return l, err
}

// Remove drops a match from memory. Its backlog stays in the cache.
func (mgr *Manager) Remove(id string) {
	mgr.mu.Lock()
	delete(mgr.matches, id)
	mgr.mu.Unlock()
}

// Abandon ends a live match without a result.
func (mgr *Manager) Abandon(ctx context.Context, id string) error {
	m, err := mgr.Get(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ended {
		return ErrEnded
	}
	mgr.finish(ctx, m, "")
	_, _ = mgr.cfg.Hooks.Trigger(ctx, hook.BattleAbandoned, id)
	return nil
}

// Sweep abandons matches with no accepted choice for longer than idle and
// returns how many it abandoned.
func (mgr *Manager) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)
	mgr.mu.RLock()
	var stale []string
	for id, m := range mgr.matches {
		m.mu.Lock()
		if !m.ended && m.active.Before(cutoff) {
			stale = append(stale, id)
		}
		m.mu.Unlock()
	}
	mgr.mu.RUnlock()

	n := 0
	for _, id := range stale {
		if mgr.Abandon(ctx, id) == nil {
			n++
		}
	}
	if n > 0 {
		mgr.logger.Info("idle matches abandoned", zap.Int("count", n))
	}
	return n
}

// Close abandons every live match.
func (mgr *Manager) Close(ctx context.Context) {
	mgr.mu.RLock()
	ids := make([]string, 0, len(mgr.matches))
	for id := range mgr.matches {
		ids = append(ids, id)
	}
	mgr.mu.RUnlock()
	for _, id := range ids {
		_ = mgr.Abandon(ctx, id)
	}
}

// Backlog returns the lines of a match from index since on, from the
// cache so that evicted matches can still be read.
func (mgr *Manager) Backlog(ctx context.Context, id string, since int) ([]string, error) {
	lines, err := mgr.cfg.Cache.LRange(ctx, BacklogKey(id), int64(since), -1)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 && since == 0 {
		return nil, ErrNotFound
	}
	return lines, nil
}

// Recent returns the ids of the n most recently finished matches.
func (mgr *Manager) Recent(ctx context.Context, n int) ([]string, error) {
	return mgr.cfg.Cache.ZRevRange(ctx, finishedKey, 0, int64(n)-1)
}

// Stats counts finished matches by outcome and reports the live count.
func (mgr *Manager) Stats(ctx context.Context) (map[string]int64, error) {
	raw, err := mgr.cfg.Cache.HGetAll(ctx, statsKey)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw)+1)
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("match: stats %s: %w", k, err)
		}
		out[k] = n
	}
	active, err := mgr.cfg.Cache.SMembers(ctx, activeKey)
	if err != nil {
		return nil, err
	}
	out["active"] = int64(len(active))
	return out, nil
}

// record builds the persisted form of m. m.mu must be held.
func (m *Match) record(result string) (*model.BattleRecord, error) {
	teams, err := json.Marshal(m.teams)
	if err != nil {
		return nil, err
	}
	rules, err := json.Marshal(m.rules)
	if err != nil {
		return nil, err
	}
	rec := &model.BattleRecord{
		MatchID: m.ID,
		Seed:    datatypes.NewJSONType(m.seed),
		P1Name:  m.b.Sides[battle.P1].Name,
		P2Name:  m.b.Sides[battle.P2].Name,
		Teams:   datatypes.JSON(teams),
		Rules:   datatypes.JSON(rules),
		Choices: datatypes.JSONSlice[string](slices.Clone(m.choices)),
		Log:     datatypes.JSONSlice[string](slices.Clone(m.lines)),
		Digest:  protocol.Digest(m.lines),
		Result:  result,
		Turns:   m.b.Turn,
		EndedAt: time.Now(),
	}
	if m.err != nil {
		rec.Error = m.err.Error()
	}
	return rec, nil
}
