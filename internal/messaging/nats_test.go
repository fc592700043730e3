package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/onetalk/support-chat/internal/domain"
)

func TestSubjects(t *testing.T) {
	if got := MessagesSubject("s1"); got != "onetalk.session.s1.messages" {
		t.Errorf("MessagesSubject = %q", got)
	}
	if got := SessionSubject("s1"); got != "onetalk.session.s1.row" {
		t.Errorf("SessionSubject = %q", got)
	}
	if got := BroadcastSubject("s1"); got != "onetalk.session.s1.broadcast" {
		t.Errorf("BroadcastSubject = %q", got)
	}
}

func TestTouchesWaiting(t *testing.T) {
	waiting := &domain.Session{ID: "s1", Status: domain.StatusWaiting}
	active := &domain.Session{ID: "s1", Status: domain.StatusActive}

	tests := []struct {
		name string
		ch   domain.SessionChange
		want bool
	}{
		{"insert waiting", domain.SessionChange{Kind: domain.ChangeInsert, New: waiting}, true},
		{"claimed", domain.SessionChange{Kind: domain.ChangeUpdate, New: active, Old: waiting}, true},
		{"active update", domain.SessionChange{Kind: domain.ChangeUpdate, New: active, Old: active}, false},
		{"delete waiting", domain.SessionChange{Kind: domain.ChangeDelete, Old: waiting}, true},
	}
	for _, tt := range tests {
		if got := touchesWaiting(tt.ch); got != tt.want {
			t.Errorf("%s: touchesWaiting = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// newTestClient connects to a local NATS server. Tests are skipped if
// unavailable.
func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.MaxReconnects = 0
	c, err := NewNATSClient(cfg)
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestMessageRoundTrip(t *testing.T) {
	c := newTestClient(t)
	got := make(chan domain.Message, 1)

	sub, err := c.SubscribeMessages("s-rt", func(m domain.Message) { got <- m })
	if err != nil {
		t.Fatalf("SubscribeMessages() error: %v", err)
	}
	defer sub.Unsubscribe()
	if err := c.conn.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	if err := c.PublishMessage(domain.Message{ID: "m1", SessionID: "s-rt", SenderID: "p1", Content: "hi"}); err != nil {
		t.Fatalf("PublishMessage() error: %v", err)
	}

	select {
	case m := <-got:
		if m.ID != "m1" || m.Content != "hi" {
			t.Errorf("unexpected message: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestSessionChangeMirroredToWaitingFeed(t *testing.T) {
	c := newTestClient(t)
	got := make(chan domain.SessionChange, 1)

	sub, err := c.SubscribeWaiting(func(ch domain.SessionChange) { got <- ch })
	if err != nil {
		t.Fatalf("SubscribeWaiting() error: %v", err)
	}
	defer sub.Unsubscribe()
	c.conn.Flush()

	ch := domain.SessionChange{Kind: domain.ChangeInsert, New: &domain.Session{ID: "s-wait", Status: domain.StatusWaiting}}
	if err := c.PublishSessionChange(ch); err != nil {
		t.Fatalf("PublishSessionChange() error: %v", err)
	}

	select {
	case recv := <-got:
		if recv.SessionID() != "s-wait" {
			t.Errorf("unexpected change: %+v", recv)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting change not delivered")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	c := newTestClient(t)
	got := make(chan domain.Broadcast, 4)

	sub, err := c.SubscribeBroadcast("s-unsub", func(b domain.Broadcast) { got <- b })
	if err != nil {
		t.Fatalf("SubscribeBroadcast() error: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe() error: %v", err)
	}
	if err := sub.Unsubscribe(); err != nil {
		t.Errorf("second Unsubscribe() error: %v", err)
	}

	c.Broadcast(context.Background(), "s-unsub", domain.Broadcast{Event: domain.EventTyping})
	c.conn.Flush()

	select {
	case b := <-got:
		t.Errorf("received after unsubscribe: %+v", b)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBadPayloadDropped(t *testing.T) {
	c := newTestClient(t)
	got := make(chan domain.Broadcast, 1)

	sub, err := c.SubscribeBroadcast("s-bad", func(b domain.Broadcast) { got <- b })
	if err != nil {
		t.Fatalf("SubscribeBroadcast() error: %v", err)
	}
	defer sub.Unsubscribe()
	c.conn.Flush()

	c.conn.Publish(BroadcastSubject("s-bad"), []byte("{not json"))
	c.conn.Flush()

	select {
	case b := <-got:
		t.Errorf("bad payload delivered: %+v", b)
	case <-time.After(100 * time.Millisecond):
	}
}
