package coordinator

import (
	"errors"
	"testing"

	"github.com/onetalk/support-chat/internal/domain"
)

func TestLedgerAppliesEachDeltaOnce(t *testing.T) {
	l := NewLedger(0)

	if got := l.Observe(30); got != 30 {
		t.Fatalf("Observe(30) = %d, want 30", got)
	}
	// Same value from a second source (refetch after the realtime update).
	if got := l.Observe(30); got != 0 {
		t.Errorf("repeated Observe(30) = %d, want 0", got)
	}
	if got := l.Observe(90); got != 60 {
		t.Errorf("Observe(90) = %d, want 60", got)
	}
	// A stale, smaller value arriving late.
	if got := l.Observe(30); got != 0 {
		t.Errorf("stale Observe(30) = %d, want 0", got)
	}
	if l.Seen() != 90 {
		t.Errorf("Seen() = %d, want 90", l.Seen())
	}
}

func TestLedgerStartsFromEntryValue(t *testing.T) {
	l := NewLedger(60)
	if got := l.Observe(60); got != 0 {
		t.Errorf("Observe(entry value) = %d, want 0", got)
	}
}

func TestNegotiationNewerRequestReplaces(t *testing.T) {
	var n Negotiation
	n.Receive(domain.ExtensionPackage{Minutes: 30, Price: 29000})
	n.Receive(domain.ExtensionPackage{Minutes: 60, Price: 49000})

	p := n.Pending()
	if p == nil || p.Minutes != 60 {
		t.Fatalf("Pending() = %+v, want the 60 minute package", p)
	}
}

func TestNegotiationAcceptLifecycle(t *testing.T) {
	var n Negotiation
	if _, err := n.BeginAccept(); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("BeginAccept() without request error = %v", err)
	}

	n.Receive(domain.ExtensionPackage{Minutes: 30, Price: 29000})
	pkg, err := n.BeginAccept()
	if err != nil {
		t.Fatalf("BeginAccept() error = %v", err)
	}
	if pkg.Minutes != 30 {
		t.Errorf("accepted %d minutes, want 30", pkg.Minutes)
	}
	if !n.Processing() {
		t.Error("Processing() = false during payment")
	}

	if _, err := n.BeginAccept(); !errors.Is(err, ErrPaymentInProgress) {
		t.Errorf("second BeginAccept() error = %v, want ErrPaymentInProgress", err)
	}
	if err := n.Decline(); !errors.Is(err, ErrPaymentInProgress) {
		t.Errorf("Decline() during payment error = %v, want ErrPaymentInProgress", err)
	}
	if n.Receive(domain.ExtensionPackage{Minutes: 60, Price: 49000}) {
		t.Error("Receive() during payment should be dropped")
	}

	n.Finish()
	if n.Pending() != nil || n.Processing() {
		t.Error("Finish() should clear pending and processing")
	}
}

func TestNegotiationDecline(t *testing.T) {
	var n Negotiation
	if err := n.Decline(); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("Decline() without request error = %v", err)
	}
	n.Receive(domain.ExtensionPackage{Minutes: 30, Price: 29000})
	if err := n.Decline(); err != nil {
		t.Fatalf("Decline() error = %v", err)
	}
	if n.Pending() != nil {
		t.Error("Decline() left a pending request")
	}
}
