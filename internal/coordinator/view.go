package coordinator

import (
	"github.com/onetalk/support-chat/internal/chat"
	"github.com/onetalk/support-chat/internal/domain"
)

// Variant styles a toast.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Toast is a transient user notification.
type Toast struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Variant     Variant `json:"variant"`
}

// RouteDashboard is where listeners, and anyone whose entry failed, land.
const RouteDashboard = "/dashboard"

// RateRoute is the rating page for a finished session.
func RateRoute(sessionID string) string {
	return "/rate/" + sessionID
}

// Snapshot is everything the chat screen renders.
type Snapshot struct {
	SessionID         string                   `json:"session_id"`
	Status            domain.Status            `json:"status"`
	Nickname          string                   `json:"nickname"`
	Counterpart       string                   `json:"counterpart,omitempty"`
	IsSeeker          bool                     `json:"is_seeker"`
	Messages          []chat.Entry             `json:"messages"`
	Draft             string                   `json:"draft"`
	Remaining         int                      `json:"remaining"`
	Clock             string                   `json:"clock"`
	Urgent            bool                     `json:"urgent"`
	CanExtend         bool                     `json:"can_extend"`
	CounterpartTyping bool                     `json:"counterpart_typing"`
	PendingExtension  *domain.ExtensionPackage `json:"pending_extension,omitempty"`
	ProcessingPayment bool                     `json:"processing_payment"`
	Ended             bool                     `json:"ended"`
}

// View is the presentation surface driven by a Coordinator. All methods are
// called from the coordinator's own goroutine.
type View interface {
	Render(Snapshot)
	Toast(Toast)
	Navigate(route string)
}
