package coordinator

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onetalk/support-chat/internal/domain"
)

// Presence is the counterpart's typing indicator.
type Presence struct {
	typing bool
}

// Observe applies a broadcast from the session channel. Events sent by
// selfID are ignored. It reports whether the indicator changed.
func (p *Presence) Observe(b domain.Broadcast, selfID string) bool {
	if b.SenderID == selfID {
		return false
	}
	var next bool
	switch b.Event {
	case domain.EventTyping:
		next = true
	case domain.EventStoppedTyping:
		next = false
	default:
		return false
	}
	changed := next != p.typing
	p.typing = next
	return changed
}

// Typing reports whether the counterpart is currently typing.
func (p *Presence) Typing() bool { return p.typing }

// typingSignal debounces the local stopped-typing broadcast. Each keystroke
// replaces the idle timer; a generation counter discards fires from timers
// that were replaced or cancelled after they had already been scheduled.
type typingSignal struct {
	clock clockwork.Clock
	idle  time.Duration
	timer clockwork.Timer
	gen   uint64
}

func (s *typingSignal) keystroke(onIdle func(gen uint64)) {
	s.stop()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.idle, func() { onIdle(gen) })
}

// fired reports whether gen belongs to the live timer and disarms it.
func (s *typingSignal) fired(gen uint64) bool {
	if s.timer == nil || gen != s.gen {
		return false
	}
	s.timer = nil
	s.gen++
	return true
}

func (s *typingSignal) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}
