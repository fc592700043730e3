// Package messaging provides the NATS realtime adapter. It fans row changes
// out on per-session subjects, carries the ephemeral broadcast channel and
// implements backend.Realtime and backend.ChangePublisher.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/domain"
)

// NATS subject patterns.
const (
	SubjectPrefix  = "onetalk.session" // + .<session_id>.<feed>
	SubjectWaiting = "onetalk.sessions.waiting"
	feedMessages   = "messages"
	feedRow        = "row"
	feedBroadcast  = "broadcast"
)

// MessagesSubject carries inserted message rows of one session.
func MessagesSubject(sessionID string) string {
	return SubjectPrefix + "." + sessionID + "." + feedMessages
}

// SessionSubject carries changes to one session row.
func SessionSubject(sessionID string) string {
	return SubjectPrefix + "." + sessionID + "." + feedRow
}

// BroadcastSubject is the ephemeral per-session channel.
func BroadcastSubject(sessionID string) string {
	return SubjectPrefix + "." + sessionID + "." + feedBroadcast
}

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
	seq  uint64
}

var (
	_ backend.Realtime        = (*NATSClient)(nil)
	_ backend.ChangePublisher = (*NATSClient)(nil)
)

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "onetalk-sessiond",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// publishJSON encodes v and publishes it on subject.
func (c *NATSClient) publishJSON(subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("nats encode %s: %w", subject, err)
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// subscribe registers handler on subject under a unique key. Each NATS
// subscription delivers on its own goroutine in publish order.
func (c *NATSClient) subscribe(subject string, handler func(data []byte)) (backend.Subscription, error) {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.seq++
	key := subject + "#" + strconv.FormatUint(c.seq, 10)
	c.subs[key] = sub
	c.mu.Unlock()

	var once sync.Once
	return backend.SubscriptionFunc(func() error {
		var err error
		once.Do(func() { err = c.unsubscribe(key) })
		return err
	}), nil
}

// decode returns a NATS handler that unmarshals into T and drops payloads
// that do not parse.
func decode[T any](subject string, fn func(T)) func(data []byte) {
	return func(data []byte) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			log.Printf("[nats] bad payload on %s: %v", subject, err)
			return
		}
		fn(v)
	}
}

// SubscribeMessages delivers inserted messages of one session.
func (c *NATSClient) SubscribeMessages(sessionID string, fn func(domain.Message)) (backend.Subscription, error) {
	subject := MessagesSubject(sessionID)
	return c.subscribe(subject, decode(subject, fn))
}

// SubscribeSession delivers changes to one session row.
func (c *NATSClient) SubscribeSession(sessionID string, fn func(domain.SessionChange)) (backend.Subscription, error) {
	subject := SessionSubject(sessionID)
	return c.subscribe(subject, decode(subject, fn))
}

// SubscribeWaiting delivers changes touching waiting sessions.
func (c *NATSClient) SubscribeWaiting(fn func(domain.SessionChange)) (backend.Subscription, error) {
	return c.subscribe(SubjectWaiting, decode(SubjectWaiting, fn))
}

// SubscribeBroadcast joins a session's ephemeral channel.
func (c *NATSClient) SubscribeBroadcast(sessionID string, fn func(domain.Broadcast)) (backend.Subscription, error) {
	subject := BroadcastSubject(sessionID)
	return c.subscribe(subject, decode(subject, fn))
}

// Broadcast sends an ephemeral event to every subscriber of the session's
// channel. Nothing is persisted.
func (c *NATSClient) Broadcast(ctx context.Context, sessionID string, b domain.Broadcast) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.publishJSON(BroadcastSubject(sessionID), b)
}

// PublishMessage fans out an inserted message row.
func (c *NATSClient) PublishMessage(m domain.Message) error {
	return c.publishJSON(MessagesSubject(m.SessionID), m)
}

// PublishSessionChange fans out a session row change, and mirrors it to the
// waiting feed when either row image is waiting.
func (c *NATSClient) PublishSessionChange(ch domain.SessionChange) error {
	if err := c.publishJSON(SessionSubject(ch.SessionID()), ch); err != nil {
		return err
	}
	if touchesWaiting(ch) {
		return c.publishJSON(SubjectWaiting, ch)
	}
	return nil
}

func touchesWaiting(ch domain.SessionChange) bool {
	return (ch.New != nil && ch.New.Status == domain.StatusWaiting) ||
		(ch.Old != nil && ch.Old.Status == domain.StatusWaiting)
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			log.Printf("[nats] drain %s: %v", key, err)
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		log.Printf("[nats] connection drain: %v", err)
	}

	log.Printf("[nats] client closed")
}

// unsubscribe removes and unsubscribes a stored subscription.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.subs, key)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}
