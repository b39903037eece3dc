package match

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kasuganosora/gen1sim/game/battle"
	"github.com/kasuganosora/gen1sim/model"
	"github.com/kasuganosora/gen1sim/protocol"
	"github.com/kasuganosora/gen1sim/resource"
)

var ErrDigestMismatch = errors.New("match: replay digest mismatch")

// Replay re-plays a stored battle from its seed, teams, rules and choices.
// It returns the regenerated lines; the error wraps ErrDigestMismatch when
// they do not fingerprint to the stored digest.
func Replay(rec *model.BattleRecord, dex *resource.Dex) ([]string, error) {
	var teams [2][]battle.Set
	if err := json.Unmarshal(rec.Teams, &teams); err != nil {
		return nil, fmt.Errorf("match: replay teams: %w", err)
	}
	var rules battle.Rules
	if err := json.Unmarshal(rec.Rules, &rules); err != nil {
		return nil, fmt.Errorf("match: replay rules: %w", err)
	}
	names := [2]string{rec.P1Name, rec.P2Name}
	b, err := battle.NewBattle(battle.BattleConfig{
		P1:    teams[0],
		P2:    teams[1],
		Names: names,
		Seed:  rec.Seed.Data(),
		Dex:   dex,
		Rules: &rules,
	})
	if err != nil {
		return nil, err
	}

	lines := protocol.Header(names, [2]int{len(teams[0]), len(teams[1])}, rules)
	_, events, err := b.Start()
	lines = append(lines, protocol.Render(events)...)
	if err != nil {
		return lines, err
	}
	for i, pair := range rec.Choices {
		s1, s2, ok := strings.Cut(pair, "|")
		if !ok {
			return lines, fmt.Errorf("match: replay choice %d: malformed %q", i, pair)
		}
		c1, err := battle.ParseChoice(s1)
		if err != nil {
			return lines, fmt.Errorf("match: replay choice %d: %w", i, err)
		}
		c2, err := battle.ParseChoice(s2)
		if err != nil {
			return lines, fmt.Errorf("match: replay choice %d: %w", i, err)
		}
		_, events, err := b.Play(c1, c2)
		lines = append(lines, protocol.Render(events)...)
		if err != nil {
			return lines, fmt.Errorf("match: replay choice %d: %w", i, err)
		}
	}
	if got := protocol.Digest(lines); got != rec.Digest {
		return lines, fmt.Errorf("%w: got %s, stored %s", ErrDigestMismatch, got, rec.Digest)
	}
	return lines, nil
}
