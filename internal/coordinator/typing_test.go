package coordinator

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onetalk/support-chat/internal/domain"
)

func TestPresenceObserve(t *testing.T) {
	var p Presence

	if p.Observe(domain.Broadcast{Event: domain.EventTyping, SenderID: "me"}, "me") {
		t.Error("own typing event changed presence")
	}
	if !p.Observe(domain.Broadcast{Event: domain.EventTyping, SenderID: "them"}, "me") {
		t.Error("counterpart typing did not change presence")
	}
	if !p.Typing() {
		t.Fatal("Typing() = false after typing event")
	}
	if p.Observe(domain.Broadcast{Event: domain.EventTyping, SenderID: "them"}, "me") {
		t.Error("repeated typing event reported a change")
	}
	if p.Observe(domain.Broadcast{Event: domain.EventExtensionRequest, SenderID: "them"}, "me") {
		t.Error("unrelated event changed presence")
	}
	p.Observe(domain.Broadcast{Event: domain.EventStoppedTyping, SenderID: "them"}, "me")
	if p.Typing() {
		t.Error("Typing() = true after stopped-typing")
	}
}

func TestTypingSignalDebounces(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := typingSignal{clock: clock, idle: 2 * time.Second}
	fires := make(chan uint64, 4)

	s.keystroke(func(gen uint64) { fires <- gen })
	clock.Advance(time.Second)
	s.keystroke(func(gen uint64) { fires <- gen })
	clock.Advance(time.Second)

	select {
	case <-fires:
		t.Fatal("replaced timer fired")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(time.Second)
	select {
	case gen := <-fires:
		if !s.fired(gen) {
			t.Error("fired() rejected the live timer's generation")
		}
		if s.fired(gen) {
			t.Error("fired() accepted the same generation twice")
		}
	case <-time.After(time.Second):
		t.Fatal("idle timer never fired")
	}
}

func TestTypingSignalStopInvalidatesPendingFire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := typingSignal{clock: clock, idle: 2 * time.Second}

	var captured uint64
	s.keystroke(func(gen uint64) {})
	captured = s.gen
	s.stop()

	if s.fired(captured) {
		t.Error("fired() accepted a generation from a stopped timer")
	}
}
