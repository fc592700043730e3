// Package coordinator runs one participant's view of one chat session: the
// server-anchored countdown, the optimistic message timeline, typing
// presence, the seeker/listener extension handshake and the end-of-session
// routine.
//
// Each Coordinator owns a single goroutine (Run) that holds all session
// state. Realtime callbacks, backend completions, timer fires and user
// commands are all funneled into that goroutine as events, so no state is
// shared and stale completions arriving after the coordinator has finished
// are dropped.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/onetalk/support-chat/internal/backend"
	"github.com/onetalk/support-chat/internal/chat"
	"github.com/onetalk/support-chat/internal/domain"
	"github.com/onetalk/support-chat/internal/metrics"
)

// Config holds the coordinator's timing parameters.
type Config struct {
	Tick            time.Duration // countdown resolution
	TypingIdle      time.Duration // quiet period before stopped-typing is sent
	SettlementDelay time.Duration // simulated payment settlement
	CallTimeout     time.Duration // per backend call
}

// DefaultConfig returns the production timing values.
func DefaultConfig() Config {
	return Config{
		Tick:            time.Second,
		TypingIdle:      2 * time.Second,
		SettlementDelay: 2 * time.Second,
		CallTimeout:     10 * time.Second,
	}
}

// ProfileResolver looks up a profile, typically through a cache.
type ProfileResolver interface {
	Profile(ctx context.Context, id string) (*domain.Profile, error)
}

// SendLimiter throttles outgoing messages per profile.
type SendLimiter interface {
	Allow(ctx context.Context, profileID string) (bool, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the clock used for the countdown and every timer.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithProfiles sets the resolver used for the counterpart's profile. It
// defaults to the gateway itself.
func WithProfiles(p ProfileResolver) Option {
	return func(c *Coordinator) { c.profiles = p }
}

// WithSendLimiter enables send throttling.
func WithSendLimiter(l SendLimiter) Option {
	return func(c *Coordinator) { c.limiter = l }
}

const (
	eventBuffer  = 64
	outboxBuffer = 32
)

// Coordinator is the per-session state machine. Create one with New and
// drive it with Run; the command methods may be called from any goroutine.
type Coordinator struct {
	cfg       Config
	gw        backend.Gateway
	view      View
	clock     clockwork.Clock
	profiles  ProfileResolver
	limiter   SendLimiter
	self      domain.Participant
	sessionID string

	events    chan func()
	outbox    chan domain.Broadcast
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the Run goroutine.
	session     *domain.Session
	counterpart *domain.Profile
	countdown   *Countdown
	timeline    *chat.Timeline
	presence    Presence
	typing      typingSignal
	ledger      *Ledger
	negotiation Negotiation
	settle      clockwork.Timer
	draft       string
	subs        []backend.Subscription
	ending      bool
	finished    bool
	outcome     Outcome

	snapMu sync.RWMutex
	snap   Snapshot
}

// New creates a coordinator for self in sessionID. Nothing happens until Run.
func New(gw backend.Gateway, view View, self domain.Participant, sessionID string, cfg Config, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:       cfg,
		gw:        gw,
		view:      view,
		clock:     clockwork.NewRealClock(),
		profiles:  gw,
		self:      self,
		sessionID: sessionID,
		events:    make(chan func(), eventBuffer),
		outbox:    make(chan domain.Broadcast, outboxBuffer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.typing = typingSignal{clock: c.clock, idle: cfg.TypingIdle}
	return c
}

// Run performs entry (server time, session row, counterpart, history,
// subscriptions) and then processes events until the session ends or ctx
// is cancelled. Cancelling ctx is how the participant leaves the screen.
func (c *Coordinator) Run(ctx context.Context) (Outcome, error) {
	if err := c.enter(ctx); err != nil {
		c.close()
		return Outcome{}, err
	}
	defer c.cleanup()

	metrics.ActiveCoordinators.Inc()
	defer metrics.ActiveCoordinators.Dec()

	go c.sendBroadcasts()

	ticker := c.clock.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	if c.countdown.Expire() {
		c.timeUp()
	}
	c.render()

	for !c.finished {
		select {
		case <-ctx.Done():
			log.Printf("[coordinator] session=%s participant=%s left", c.sessionID, c.self.ProfileID)
			return c.outcome, ctx.Err()
		case <-ticker.Chan():
			if !c.ending && c.countdown.Tick() {
				c.timeUp()
			}
		case fn := <-c.events:
			fn()
		}
		c.render()
	}
	return c.outcome, nil
}

// Done is closed once the coordinator has stopped processing events.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Snapshot returns the most recently rendered state.
func (c *Coordinator) Snapshot() Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snap
}

func (c *Coordinator) enter(ctx context.Context) error {
	now, err := c.gw.ServerTime(ctx)
	if err != nil {
		log.Printf("[coordinator] session=%s server time: %v", c.sessionID, err)
		c.toast(Toast{Title: "Error", Description: "Could not sync with server time.", Variant: VariantDestructive})
		c.view.Navigate(RouteDashboard)
		return fmt.Errorf("%w: %v", ErrServerTime, err)
	}

	s, err := c.gw.Session(ctx, c.sessionID)
	if err != nil || s.Status.Terminal() {
		if err != nil && !errors.Is(err, backend.ErrNotFound) {
			log.Printf("[coordinator] session=%s load: %v", c.sessionID, err)
		}
		c.toast(Toast{Title: "Session Ended", Description: "This chat session is no longer active.", Variant: VariantDestructive})
		c.view.Navigate(RouteDashboard)
		return ErrSessionInactive
	}
	if !s.IsParticipant(c.self.ProfileID) {
		c.toast(Toast{Title: "Error", Description: "You are not part of this session.", Variant: VariantDestructive})
		c.view.Navigate(RouteDashboard)
		return ErrNotParticipant
	}
	c.session = s
	c.countdown = NewCountdown(s, now)
	c.ledger = NewLedger(s.ExtendedDurationMinutes)

	if other := s.Counterpart(c.self.ProfileID); other != "" {
		c.counterpart = c.resolveProfile(ctx, other)
	}

	history, err := c.gw.Messages(ctx, c.sessionID)
	if err != nil {
		log.Printf("[coordinator] session=%s load messages: %v", c.sessionID, err)
	}
	c.timeline = chat.NewTimeline(history)

	return c.subscribe()
}

func (c *Coordinator) subscribe() error {
	msgSub, err := c.gw.SubscribeMessages(c.sessionID, func(m domain.Message) {
		c.post(func() { c.onMessage(m) })
	})
	if err != nil {
		return fmt.Errorf("coordinator: subscribe messages: %w", err)
	}
	c.subs = append(c.subs, msgSub)

	rowSub, err := c.gw.SubscribeSession(c.sessionID, func(ch domain.SessionChange) {
		c.post(func() { c.onSessionChange(ch) })
	})
	if err != nil {
		c.unsubscribe()
		return fmt.Errorf("coordinator: subscribe session: %w", err)
	}
	c.subs = append(c.subs, rowSub)

	bcSub, err := c.gw.SubscribeBroadcast(c.sessionID, func(b domain.Broadcast) {
		c.post(func() { c.onBroadcast(b) })
	})
	if err != nil {
		c.unsubscribe()
		return fmt.Errorf("coordinator: subscribe broadcast: %w", err)
	}
	c.subs = append(c.subs, bcSub)
	return nil
}

func (c *Coordinator) resolveProfile(ctx context.Context, id string) *domain.Profile {
	p, err := c.profiles.Profile(ctx, id)
	if err != nil {
		log.Printf("[coordinator] session=%s profile %s: %v", c.sessionID, id, err)
		return nil
	}
	return p
}

func (c *Coordinator) cleanup() {
	c.typing.stop()
	c.stopSettlement()
	// Handlers blocked in post must see done before their feeds are torn down.
	c.close()
	c.unsubscribe()
}

func (c *Coordinator) unsubscribe() {
	for _, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[coordinator] session=%s unsubscribe: %v", c.sessionID, err)
		}
	}
	c.subs = nil
}

func (c *Coordinator) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// post queues fn for the Run goroutine. It must not be called from that
// goroutine. Events posted after the coordinator stopped are dropped.
func (c *Coordinator) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.done:
	}
}

// spawn runs a backend call off the loop. The returned continuation, if
// any, runs on the loop.
func (c *Coordinator) spawn(call func(ctx context.Context) func()) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
		defer cancel()
		if k := call(ctx); k != nil {
			c.post(k)
		}
	}()
}

// do runs fn on the loop and waits for its result. The snapshot reflects
// fn's effects by the time do returns.
func (c *Coordinator) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	run := func() {
		err := fn()
		c.render()
		reply <- err
	}
	select {
	case c.events <- run:
	case <-c.done:
		return ErrEnded
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrEnded
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// broadcast queues an ephemeral event for the session channel. Delivery is
// best effort and order preserving.
func (c *Coordinator) broadcast(b domain.Broadcast) {
	b.SenderID = c.self.ProfileID
	select {
	case c.outbox <- b:
	default:
		log.Printf("[coordinator] session=%s outbox full, dropping %s", c.sessionID, b.Event)
	}
}

func (c *Coordinator) sendBroadcasts() {
	for {
		select {
		case b := <-c.outbox:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CallTimeout)
			if err := c.gw.Broadcast(ctx, c.sessionID, b); err != nil {
				log.Printf("[coordinator] session=%s broadcast %s: %v", c.sessionID, b.Event, err)
			}
			cancel()
		case <-c.done:
			return
		}
	}
}

func (c *Coordinator) toast(t Toast) {
	if t.Variant == "" {
		t.Variant = VariantDefault
	}
	c.view.Toast(t)
}

func (c *Coordinator) render() {
	snap := Snapshot{
		SessionID:         c.sessionID,
		Status:            c.session.Status,
		Nickname:          c.self.Nickname,
		IsSeeker:          c.session.IsSeeker(c.self.ProfileID),
		Messages:          c.timeline.Entries(),
		Draft:             c.draft,
		Remaining:         c.countdown.Remaining(),
		Clock:             FormatTime(c.countdown.Remaining()),
		Urgent:            c.countdown.Urgent(),
		CounterpartTyping: c.presence.Typing(),
		PendingExtension:  c.negotiation.Pending(),
		ProcessingPayment: c.negotiation.Processing(),
		Ended:             c.ending,
	}
	if c.counterpart != nil {
		snap.Counterpart = c.counterpart.Nickname
	}
	snap.CanExtend = snap.IsSeeker && snap.Urgent && !c.ending

	c.snapMu.Lock()
	c.snap = snap
	c.snapMu.Unlock()
	c.view.Render(snap)
}

// Realtime handlers.

func (c *Coordinator) onMessage(m domain.Message) {
	if m.SessionID != "" && m.SessionID != c.sessionID {
		return
	}
	nickname := ""
	if c.counterpart != nil {
		nickname = c.counterpart.Nickname
	}
	if c.timeline.ApplyRemote(m, c.self.ProfileID, nickname) {
		metrics.MessagesTotal.WithLabelValues("received").Inc()
	}
}

func (c *Coordinator) onSessionChange(ch domain.SessionChange) {
	row := ch.New
	if row == nil || row.ID != c.sessionID {
		return
	}
	if row.ListenerID != "" && c.session.ListenerID == "" {
		c.session.ListenerID = row.ListenerID
		c.fetchCounterpart(row.Counterpart(c.self.ProfileID))
	}
	if row.Status == domain.StatusActive && c.session.Status == domain.StatusWaiting {
		c.session.Status = domain.StatusActive
	}
	c.observeExtended(row.ExtendedDurationMinutes)

	if row.Status == domain.StatusCompleted {
		c.remoteEnded()
	}
}

func (c *Coordinator) fetchCounterpart(id string) {
	if id == "" {
		return
	}
	c.spawn(func(ctx context.Context) func() {
		p := c.resolveProfile(ctx, id)
		return func() {
			if p != nil {
				c.counterpart = p
			}
		}
	})
}

// observeExtended feeds a freshly observed extended_duration_minutes value
// through the ledger and applies any new minutes to the clock.
func (c *Coordinator) observeExtended(extended int) {
	added := c.ledger.Observe(extended)
	if added == 0 {
		return
	}
	c.session.ExtendedDurationMinutes = extended
	c.countdown.Extend(added)
	c.toast(Toast{Title: "Session Extended!", Description: fmt.Sprintf("%d minutes have been added.", added)})
}

func (c *Coordinator) onBroadcast(b domain.Broadcast) {
	switch b.Event {
	case domain.EventTyping, domain.EventStoppedTyping:
		c.presence.Observe(b, c.self.ProfileID)
	case domain.EventExtensionRequest:
		if b.SenderID == c.self.ProfileID || c.session.IsSeeker(c.self.ProfileID) || b.Package == nil {
			return
		}
		pkg, ok := domain.LookupPackage(b.Package.Minutes)
		if !ok || pkg.Price != b.Package.Price {
			log.Printf("[coordinator] session=%s ignoring unknown package %+v", c.sessionID, *b.Package)
			return
		}
		if c.negotiation.Receive(pkg) {
			c.toast(Toast{Title: "Extension Requested", Description: fmt.Sprintf("The seeker would like %d more minutes.", pkg.Minutes)})
		}
	}
}

// Commands.

// SetDraft records compose input and signals typing to the counterpart.
func (c *Coordinator) SetDraft(ctx context.Context, text string) error {
	return c.do(ctx, func() error {
		if c.ending {
			return ErrEnded
		}
		c.draft = text
		c.broadcast(domain.Broadcast{Event: domain.EventTyping})
		c.typing.keystroke(func(gen uint64) {
			c.post(func() { c.onTypingIdle(gen) })
		})
		return nil
	})
}

func (c *Coordinator) onTypingIdle(gen uint64) {
	if c.typing.fired(gen) {
		c.broadcast(domain.Broadcast{Event: domain.EventStoppedTyping})
	}
}

// Send submits the current draft. The message appears immediately as
// provisional and is confirmed or rolled back when the insert completes.
func (c *Coordinator) Send(ctx context.Context) error {
	if c.limiter != nil {
		if err := c.do(ctx, c.checkDraft); err != nil {
			return err
		}
		ok, err := c.limiter.Allow(ctx, c.self.ProfileID)
		if err != nil {
			log.Printf("[coordinator] session=%s send limiter: %v", c.sessionID, err)
		}
		if !ok {
			metrics.MessagesTotal.WithLabelValues("rejected").Inc()
			return ErrRateLimited
		}
	}
	return c.do(ctx, c.send)
}

// checkDraft rejects a send that could never be delivered, before it is
// charged to the rate limit.
func (c *Coordinator) checkDraft() error {
	if c.ending {
		return ErrEnded
	}
	if err := chat.ValidateMessage(strings.TrimSpace(c.draft)); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return err
	}
	return nil
}

func (c *Coordinator) send() error {
	if err := c.checkDraft(); err != nil {
		return err
	}
	prev := c.draft
	content := strings.TrimSpace(prev)

	c.typing.stop()
	c.broadcast(domain.Broadcast{Event: domain.EventStoppedTyping})

	tempID := c.timeline.AddProvisional(domain.Message{
		SessionID:      c.sessionID,
		SenderID:       c.self.ProfileID,
		Content:        content,
		CreatedAt:      c.clock.Now(),
		SenderNickname: c.self.Nickname,
	})
	c.draft = ""

	c.spawn(func(ctx context.Context) func() {
		row := domain.Message{SessionID: c.sessionID, SenderID: c.self.ProfileID, Content: content}
		err := c.gw.InsertMessage(ctx, &row)
		return func() { c.onInserted(tempID, prev, row, err) }
	})
	return nil
}

func (c *Coordinator) onInserted(tempID, prev string, row domain.Message, err error) {
	if err != nil {
		log.Printf("[coordinator] session=%s insert message: %v", c.sessionID, err)
		c.timeline.Rollback(tempID)
		c.draft = prev
		metrics.MessagesTotal.WithLabelValues("rolled_back").Inc()
		c.toast(Toast{Title: "Error", Description: "Failed to send message.", Variant: VariantDestructive})
		return
	}
	c.timeline.Confirm(tempID, row)
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
}

// EndChat ends the session for both participants. Repeated or concurrent
// calls are no-ops.
func (c *Coordinator) EndChat(ctx context.Context) error {
	err := c.do(ctx, func() error {
		c.end(TriggerManual, true)
		return nil
	})
	if errors.Is(err, ErrEnded) {
		return nil
	}
	return err
}

// RequestExtension asks the listener to extend the session by one catalog
// package. Only the seeker may ask, and only in the last five minutes.
func (c *Coordinator) RequestExtension(ctx context.Context, minutes int) error {
	return c.do(ctx, func() error {
		if c.ending {
			return ErrEnded
		}
		if !c.session.IsSeeker(c.self.ProfileID) {
			return ErrNotSeeker
		}
		if !c.countdown.Urgent() {
			return ErrExtensionUnavailable
		}
		pkg, ok := domain.LookupPackage(minutes)
		if !ok {
			return ErrUnknownPackage
		}
		c.broadcast(domain.Broadcast{Event: domain.EventExtensionRequest, Package: &pkg})
		metrics.ExtensionsTotal.WithLabelValues("requested").Inc()
		c.toast(Toast{Title: "Request Sent", Description: "Waiting for the listener to accept."})
		return nil
	})
}

// DeclineExtension discards the pending extension request.
func (c *Coordinator) DeclineExtension(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.ending {
			return ErrEnded
		}
		if c.session.IsSeeker(c.self.ProfileID) {
			return ErrNotListener
		}
		if err := c.negotiation.Decline(); err != nil {
			return err
		}
		metrics.ExtensionsTotal.WithLabelValues("declined").Inc()
		return nil
	})
}

// AcceptExtension pays for the pending request. After the settlement delay
// the extension procedure runs, a transaction is recorded against the
// seeker, and the session row is refetched so the clock picks up the new
// minutes.
func (c *Coordinator) AcceptExtension(ctx context.Context) error {
	return c.do(ctx, func() error {
		if c.ending {
			return ErrEnded
		}
		if c.session.IsSeeker(c.self.ProfileID) {
			return ErrNotListener
		}
		pkg, err := c.negotiation.BeginAccept()
		if err != nil {
			return err
		}
		payer := c.session.SeekerID
		c.settle = c.clock.AfterFunc(c.cfg.SettlementDelay, func() {
			c.spawn(func(ctx context.Context) func() {
				return c.applyExtension(ctx, pkg, payer)
			})
		})
		return nil
	})
}

// applyExtension runs off the loop.
func (c *Coordinator) applyExtension(ctx context.Context, pkg domain.ExtensionPackage, payer string) func() {
	if err := c.gw.ExtendSession(ctx, c.sessionID, pkg.Minutes); err != nil {
		log.Printf("[coordinator] session=%s extend by %d: %v", c.sessionID, pkg.Minutes, err)
		return func() { c.onExtended(nil, err) }
	}

	tx := domain.Transaction{
		SessionID: c.sessionID,
		ProfileID: payer,
		Amount:    pkg.Price,
		Currency:  domain.CurrencyVND,
		Status:    domain.TransactionCompleted,
	}
	if err := c.gw.InsertTransaction(ctx, &tx); err != nil {
		log.Printf("[coordinator] session=%s record transaction: %v", c.sessionID, err)
	}

	fresh, err := c.gw.Session(ctx, c.sessionID)
	if err != nil {
		log.Printf("[coordinator] session=%s refetch after extend: %v", c.sessionID, err)
		fresh = nil
	}
	return func() { c.onExtended(fresh, nil) }
}

func (c *Coordinator) onExtended(fresh *domain.Session, err error) {
	c.settle = nil
	c.negotiation.Finish()
	if err != nil {
		metrics.ExtensionsTotal.WithLabelValues("failed").Inc()
		c.toast(Toast{Title: "Error", Description: "Failed to extend session.", Variant: VariantDestructive})
		return
	}
	metrics.ExtensionsTotal.WithLabelValues("applied").Inc()
	if fresh != nil {
		c.observeExtended(fresh.ExtendedDurationMinutes)
	}
}

func (c *Coordinator) stopSettlement() {
	if c.settle != nil {
		c.settle.Stop()
		c.settle = nil
	}
}
