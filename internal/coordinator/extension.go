package coordinator

import "github.com/onetalk/support-chat/internal/domain"

// Ledger tracks the highest extended_duration_minutes value this
// coordinator has applied to its clock. Every observation source (realtime
// row updates, the refetch after a successful extension) goes through
// Observe, so each minute is added exactly once.
type Ledger struct {
	seen int
}

// NewLedger starts from the value present at entry.
func NewLedger(initial int) *Ledger {
	return &Ledger{seen: initial}
}

// Observe returns the minutes to add for a newly seen value; zero when the
// value is not strictly greater than the last one applied.
func (l *Ledger) Observe(extended int) int {
	if extended <= l.seen {
		return 0
	}
	added := extended - l.seen
	l.seen = extended
	return added
}

// Seen returns the last applied value.
func (l *Ledger) Seen() int { return l.seen }

// Negotiation is the non-seeker's side of an extension request: at most one
// pending package, replaced by newer requests until a payment starts.
type Negotiation struct {
	pending    *domain.ExtensionPackage
	processing bool
}

// Receive stores an incoming request. Requests arriving while a payment is
// processing are dropped.
func (n *Negotiation) Receive(pkg domain.ExtensionPackage) bool {
	if n.processing {
		return false
	}
	n.pending = &pkg
	return true
}

// Decline discards the pending request.
func (n *Negotiation) Decline() error {
	if n.pending == nil {
		return ErrNoPendingRequest
	}
	if n.processing {
		return ErrPaymentInProgress
	}
	n.pending = nil
	return nil
}

// BeginAccept marks the pending request as being paid for.
func (n *Negotiation) BeginAccept() (domain.ExtensionPackage, error) {
	if n.pending == nil {
		return domain.ExtensionPackage{}, ErrNoPendingRequest
	}
	if n.processing {
		return domain.ExtensionPackage{}, ErrPaymentInProgress
	}
	n.processing = true
	return *n.pending, nil
}

// Finish clears the request whatever the payment outcome was.
func (n *Negotiation) Finish() {
	n.pending = nil
	n.processing = false
}

// Pending returns a copy of the pending package, or nil.
func (n *Negotiation) Pending() *domain.ExtensionPackage {
	if n.pending == nil {
		return nil
	}
	p := *n.pending
	return &p
}

// Processing reports whether a payment is in flight.
func (n *Negotiation) Processing() bool { return n.processing }
