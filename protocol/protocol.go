// Package protocol converts battle events to and from the pipe-delimited text
// protocol used by battle logs and clients.
package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kasuganosora/gen1sim/game/battle"
	"golang.org/x/crypto/blake2b"
)

var ErrMalformed = errors.New("protocol: malformed line")

// Render renders events as protocol lines.
func Render(events []battle.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

// Parse reads one protocol line back into an event. Bracketed trailing
// arguments become keyword arguments.
func Parse(line string) (battle.Event, error) {
	if !strings.HasPrefix(line, "|") {
		return battle.Event{}, fmt.Errorf("%w: %q", ErrMalformed, line)
	}
	parts := strings.Split(line[1:], "|")
	kind, ok := battle.ParseKind(parts[0])
	if !ok {
		return battle.Event{}, fmt.Errorf("%w: unknown kind %q", ErrMalformed, parts[0])
	}
	e := battle.Event{Kind: kind}
	for _, p := range parts[1:] {
		if strings.HasPrefix(p, "[") {
			end := strings.IndexByte(p, ']')
			if end < 0 {
				return battle.Event{}, fmt.Errorf("%w: %q", ErrMalformed, line)
			}
			e.KWArgs = append(e.KWArgs, battle.KWArg{
				Key:   p[1:end],
				Value: strings.TrimPrefix(p[end+1:], " "),
			})
			continue
		}
		if len(e.KWArgs) > 0 {
			return battle.Event{}, fmt.Errorf("%w: positional after keyword in %q", ErrMalformed, line)
		}
		e.Args = append(e.Args, p)
	}
	return e, nil
}

// ParseAll parses lines, skipping the ones Filter would drop.
func ParseAll(lines []string) ([]battle.Event, error) {
	var out []battle.Event
	for i, l := range Filter(lines) {
		e, err := Parse(l)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

var redundant = map[string]bool{
	"": true, "t:": true, "gametype": true, "player": true, "teamsize": true,
	"gen": true, "message": true, "tier": true, "rule": true, "start": true,
	"upkeep": true, "-message": true, "-hint": true,
}

// Filter drops the header, timestamp and hint lines that carry no battle
// state, leaving the lines a battle log is compared on.
func Filter(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" {
			continue
		}
		kind := l[1:]
		if i := strings.IndexByte(kind, '|'); i >= 0 {
			kind = kind[:i]
		}
		if redundant[kind] {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Header returns the preamble a client expects before the first switch.
func Header(names [2]string, teamSizes [2]int, rules battle.Rules) []string {
	out := []string{"|gametype|singles"}
	for i, n := range names {
		id := battle.SideID(i)
		out = append(out, fmt.Sprintf("|player|%s|%s|", id, n))
		out = append(out, fmt.Sprintf("|teamsize|%s|%d", id, teamSizes[i]))
	}
	out = append(out, "|gen|1", "|tier|[Gen 1] OU")
	if rules.SleepClause {
		out = append(out, "|rule|Sleep Clause Mod: Limit one foe put to sleep")
	}
	if rules.FreezeClause {
		out = append(out, "|rule|Freeze Clause Mod: Limit one foe frozen")
	}
	if rules.EndlessBattle {
		out = append(out, "|rule|Endless Battle Clause: Forcing endless battles is banned")
	}
	return append(out, "|start")
}

// Digest fingerprints a filtered log. Two battles played from the same seed
// and choices produce the same digest.
func Digest(lines []string) string {
	h, _ := blake2b.New256(nil)
	for _, l := range Filter(lines) {
		h.Write([]byte(l))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Request renders the request line sent to one seat after a result.
func Request(id battle.SideID, r battle.Result, choices []battle.Choice) string {
	var sb strings.Builder
	sb.WriteString("|request|")
	sb.WriteString(id.String())
	sb.WriteByte('|')
	sb.WriteString(r.Request(id).String())
	for i, c := range choices {
		if i == 0 {
			sb.WriteByte('|')
		} else {
			sb.WriteByte(',')
		}
		sb.WriteString(c.String())
	}
	return sb.String()
}

// Turn extracts the turn number from a turn line, or 0.
func Turn(line string) int {
	rest, ok := strings.CutPrefix(line, "|turn|")
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(rest)
	return n
}
