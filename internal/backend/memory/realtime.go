package memory

import (
	"context"
	"sync"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

const waitingTopic = "waiting"

func messagesTopic(sessionID string) string  { return "messages:" + sessionID }
func sessionTopic(sessionID string) string   { return "session:" + sessionID }
func broadcastTopic(sessionID string) string { return "broadcast:" + sessionID }

func (g *Gateway) SubscribeMessages(sessionID string, fn func(domain.Message)) (backend.Subscription, error) {
	return g.hub.subscribe(messagesTopic(sessionID), fn), nil
}

func (g *Gateway) SubscribeSession(sessionID string, fn func(domain.SessionChange)) (backend.Subscription, error) {
	return g.hub.subscribe(sessionTopic(sessionID), fn), nil
}

func (g *Gateway) SubscribeWaiting(fn func(domain.SessionChange)) (backend.Subscription, error) {
	return g.hub.subscribe(waitingTopic, fn), nil
}

func (g *Gateway) SubscribeBroadcast(sessionID string, fn func(domain.Broadcast)) (backend.Subscription, error) {
	return g.hub.subscribe(broadcastTopic(sessionID), fn), nil
}

func (g *Gateway) Broadcast(ctx context.Context, sessionID string, b domain.Broadcast) error {
	g.mu.Lock()
	err := g.begin(OpBroadcast)
	g.mu.Unlock()
	if err != nil {
		return err
	}
	g.hub.publish(broadcastTopic(sessionID), func(fn any) {
		fn.(func(domain.Broadcast))(b)
	})
	return nil
}

// publishSession sends a row change to the session's feed and, when the
// waiting status is involved, to the waiting-queue feed.
func (g *Gateway) publishSession(c domain.SessionChange) {
	g.hub.publish(sessionTopic(c.SessionID()), func(fn any) {
		fn.(func(domain.SessionChange))(c)
	})
	wasWaiting := c.Old != nil && c.Old.Status == domain.StatusWaiting
	isWaiting := c.New != nil && c.New.Status == domain.StatusWaiting
	if wasWaiting || isWaiting {
		g.hub.publish(waitingTopic, func(fn any) {
			fn.(func(domain.SessionChange))(c)
		})
	}
}

// hub fans events out to subscribers. Each subscriber has its own queue and
// goroutine so handlers never run on the publisher's goroutine and events on
// one topic keep their order.
type hub struct {
	mu     sync.Mutex
	nextID int
	topics map[string]map[int]*subscriber
}

type subscriber struct {
	hub     *hub
	topic   string
	id      int
	handler any
	queue   chan func()
	done    chan struct{}
	once    sync.Once
}

func newHub() *hub {
	return &hub{topics: make(map[string]map[int]*subscriber)}
}

func (h *hub) subscribe(topic string, handler any) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &subscriber{
		hub:     h,
		topic:   topic,
		id:      h.nextID,
		handler: handler,
		queue:   make(chan func(), 256),
		done:    make(chan struct{}),
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[int]*subscriber)
	}
	h.topics[topic][s.id] = s
	go s.loop()
	return s
}

func (h *hub) publish(topic string, deliver func(handler any)) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		subs = append(subs, s)
	}
	// Enqueue while holding the lock so concurrent publishers cannot
	// interleave differently for different subscribers of the same topic.
	for _, s := range subs {
		handler := s.handler
		select {
		case s.queue <- func() { deliver(handler) }:
		case <-s.done:
		}
	}
	h.mu.Unlock()
}

func (s *subscriber) loop() {
	for {
		select {
		case <-s.done:
			return
		case fn := <-s.queue:
			fn()
		}
	}
}

// Unsubscribe stops delivery. Events still queued are dropped.
func (s *subscriber) Unsubscribe() error {
	s.once.Do(func() {
		// Closing done first releases a publisher blocked on a full queue
		// while it holds the hub lock.
		close(s.done)
		s.hub.mu.Lock()
		delete(s.hub.topics[s.topic], s.id)
		s.hub.mu.Unlock()
	})
	return nil
}
