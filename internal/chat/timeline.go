// Package chat holds message-level logic for a single session: content
// validation and the ordered, optimistic message timeline.
package chat

import (
	"github.com/google/uuid"

	"github.com/onetalk/support-chat/internal/domain"
)

// State tags a timeline entry as provisional (sent locally, insert not yet
// acknowledged) or confirmed (known to the backend).
type State int

const (
	Provisional State = iota
	Confirmed
)

func (s State) String() string {
	if s == Provisional {
		return "provisional"
	}
	return "confirmed"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Entry is one visible message. While provisional, Message.ID equals TempID.
type Entry struct {
	domain.Message
	State  State  `json:"state"`
	TempID string `json:"temp_id,omitempty"`
}

// Timeline is the append-only message list of one session. Entries are
// never reordered and never deduplicated by content; the only collapse is a
// provisional entry turning into its confirmed row. Not goroutine-safe: it
// is owned by the session coordinator's loop.
type Timeline struct {
	entries []Entry
}

// NewTimeline seeds a timeline with already persisted history.
func NewTimeline(history []domain.Message) *Timeline {
	t := &Timeline{entries: make([]Entry, 0, len(history))}
	for _, m := range history {
		t.entries = append(t.entries, Entry{Message: m, State: Confirmed})
	}
	return t
}

// AddProvisional appends a locally sent message under a fresh temporary ID
// and returns that ID.
func (t *Timeline) AddProvisional(m domain.Message) string {
	tempID := "tmp-" + uuid.NewString()
	m.ID = tempID
	t.entries = append(t.entries, Entry{Message: m, State: Provisional, TempID: tempID})
	return tempID
}

// Confirm collapses the provisional entry tempID into the stored row,
// keeping its position. It returns false if the entry is gone.
func (t *Timeline) Confirm(tempID string, row domain.Message) bool {
	i := t.indexOf(tempID)
	if i < 0 {
		return false
	}
	e := &t.entries[i]
	e.ID = row.ID
	if !row.CreatedAt.IsZero() {
		e.CreatedAt = row.CreatedAt
	}
	e.State = Confirmed
	return true
}

// Rollback removes the provisional entry tempID and returns it.
func (t *Timeline) Rollback(tempID string) (domain.Message, bool) {
	i := t.indexOf(tempID)
	if i < 0 {
		return domain.Message{}, false
	}
	m := t.entries[i].Message
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	return m, true
}

// ApplyRemote appends a message observed on the realtime insert feed.
// Messages sent by selfID are already represented optimistically and are
// ignored. The counterpart's nickname is attached instead of being looked up
// again.
func (t *Timeline) ApplyRemote(m domain.Message, selfID, counterpartNickname string) bool {
	if m.SenderID == selfID {
		return false
	}
	if m.SenderNickname == "" {
		m.SenderNickname = counterpartNickname
	}
	t.entries = append(t.entries, Entry{Message: m, State: Confirmed})
	return true
}

// Entries returns a copy of the timeline in display order.
func (t *Timeline) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of visible entries.
func (t *Timeline) Len() int {
	return len(t.entries)
}

func (t *Timeline) indexOf(tempID string) int {
	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].State == Provisional && t.entries[i].TempID == tempID {
			return i
		}
	}
	return -1
}
