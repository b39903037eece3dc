package battle

import (
	"fmt"
	"strconv"
	"strings"
)

// EventKind is the protocol message type of an Event.
type EventKind uint8

const (
	KindMove EventKind = iota
	KindSwitch
	KindCant
	KindFaint
	KindTurn
	KindWin
	KindTie
	KindDamage
	KindHeal
	KindStatus
	KindCureStatus
	KindBoost
	KindUnboost
	KindClearAllBoost
	KindFail
	KindMiss
	KindHitCount
	KindPrepare
	KindMustRecharge
	KindActivate
	KindFieldActivate
	KindStart
	KindEnd
	KindOHKO
	KindCrit
	KindSuperEffective
	KindResisted
	KindImmune
	KindTransform
	KindNothing

	numKinds
)

var kindNames = [numKinds]string{
	"move", "switch", "cant", "faint", "turn", "win", "tie", "-damage",
	"-heal", "-status", "-curestatus", "-boost", "-unboost",
	"-clearallboost", "-fail", "-miss", "-hitcount", "-prepare",
	"-mustrecharge", "-activate", "-fieldactivate", "-start", "-end",
	"-ohko", "-crit", "-supereffective", "-resisted", "-immune",
	"-transform", "-nothing",
}

func (k EventKind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", uint8(k))
}

// ParseKind looks a kind up by its protocol name.
func ParseKind(s string) (EventKind, bool) {
	for i, n := range kindNames {
		if n == s {
			return EventKind(i), true
		}
	}
	return 0, false
}

// KWArg is a bracketed keyword argument such as [from] psn or [silent].
type KWArg struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Event is one protocol message. Events are values; the engine never
// mutates one after appending it to the log.
type Event struct {
	Kind   EventKind `json:"kind"`
	Args   []string  `json:"args,omitempty"`
	KWArgs []KWArg   `json:"kwargs,omitempty"`
}

// EventType returns the protocol name of the event.
func (e Event) EventType() string { return e.Kind.String() }

// String renders the event as a protocol line. Move lines attach [from]
// without a space, every other kind separates key and value.
func (e Event) String() string {
	var sb strings.Builder
	sb.WriteByte('|')
	sb.WriteString(e.Kind.String())
	for _, a := range e.Args {
		sb.WriteByte('|')
		sb.WriteString(a)
	}
	for _, kw := range e.KWArgs {
		sb.WriteString("|[")
		sb.WriteString(kw.Key)
		sb.WriteByte(']')
		if kw.Value != "" {
			if e.Kind != KindMove {
				sb.WriteByte(' ')
			}
			sb.WriteString(kw.Value)
		}
	}
	return sb.String()
}

// Log is the append-only event log of a battle.
type Log struct {
	events []Event
}

func (l *Log) Append(e Event) { l.events = append(l.events, e) }

func (l *Log) Len() int { return len(l.events) }

// Since returns the events appended at or after index i.
func (l *Log) Since(i int) []Event {
	if i >= len(l.events) {
		return nil
	}
	out := make([]Event, len(l.events)-i)
	copy(out, l.events[i:])
	return out
}

func (l *Log) All() []Event { return l.Since(0) }

// Lines renders every event.
func (l *Log) Lines() []string {
	out := make([]string, len(l.events))
	for i, e := range l.events {
		out[i] = e.String()
	}
	return out
}

// --- constructors ---

func kw(key string) KWArg                  { return KWArg{Key: key} }
func kwv(key, value string) KWArg          { return KWArg{Key: key, Value: value} }
func from(value string) KWArg              { return KWArg{Key: "from", Value: value} }
func of(c *Combatant) KWArg                { return KWArg{Key: "of", Value: c.Ident()} }
func ev(k EventKind, args ...string) Event { return Event{Kind: k, Args: args} }

func (e Event) with(kws ...KWArg) Event {
	e.KWArgs = append(e.KWArgs, kws...)
	return e
}

func evSwitch(c *Combatant) Event {
	return ev(KindSwitch, c.Ident(), c.Details(), c.HPStatus())
}

func evMove(user *Combatant, name string, target *Combatant) Event {
	t := ""
	if target != nil {
		t = target.Ident()
	}
	return ev(KindMove, user.Ident(), name, t)
}

func evDamage(c *Combatant) Event { return ev(KindDamage, c.Ident(), c.HPStatus()) }

func evHeal(c *Combatant) Event { return ev(KindHeal, c.Ident(), c.HPStatus()) }

func evCant(c *Combatant, reason string, extra ...string) Event {
	return ev(KindCant, append([]string{c.Ident(), reason}, extra...)...)
}

func evFail(c *Combatant, extra ...string) Event {
	return ev(KindFail, append([]string{c.Ident()}, extra...)...)
}

func evBoost(kind EventKind, c *Combatant, stat string, n int) Event {
	return ev(kind, c.Ident(), stat, strconv.Itoa(n))
}

func evTurn(n int) Event { return ev(KindTurn, strconv.Itoa(n)) }
