// Package domain holds the row types shared by the backend adapters, the
// session coordinator and the adjacent flows. They mirror the backend's
// tables; nothing here talks to the network.
package domain

import "time"

// Status is the lifecycle state of a chat session.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// DefaultDurationMinutes is the base length of a newly requested session.
const DefaultDurationMinutes = 30

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Session is the client's projection of a chat_sessions row.
type Session struct {
	ID                      string    `json:"id"`
	SeekerID                string    `json:"seeker_id"`
	ListenerID              string    `json:"listener_id,omitempty"` // empty until claimed
	TopicID                 string    `json:"topic_id,omitempty"`
	Description             string    `json:"description,omitempty"`
	CreatedAt               time.Time `json:"created_at"`
	DurationMinutes         int       `json:"duration_minutes"`
	ExtendedDurationMinutes int       `json:"extended_duration_minutes"`
	Status                  Status    `json:"status"`
}

// TotalMinutes is the base duration plus every applied extension.
func (s *Session) TotalMinutes() int {
	return s.DurationMinutes + s.ExtendedDurationMinutes
}

// IsSeeker reports whether profileID requested this session.
func (s *Session) IsSeeker(profileID string) bool {
	return profileID != "" && profileID == s.SeekerID
}

// Counterpart returns the other participant's profile ID, or "" if the
// session has not been claimed yet.
func (s *Session) Counterpart(profileID string) string {
	if profileID == s.SeekerID {
		return s.ListenerID
	}
	return s.SeekerID
}

// IsParticipant checks if a profile is part of this session.
func (s *Session) IsParticipant(profileID string) bool {
	return profileID != "" && (profileID == s.SeekerID || profileID == s.ListenerID)
}

// ChangeKind names the kind of row change carried by a realtime feed.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// SessionChange is one event from a chat_sessions change feed. New is nil
// for deletes; Old may be nil when the backend does not ship the previous
// row image.
type SessionChange struct {
	Kind ChangeKind `json:"kind"`
	New  *Session   `json:"new,omitempty"`
	Old  *Session   `json:"old,omitempty"`
}

// SessionID returns the ID of the row the change refers to.
func (c SessionChange) SessionID() string {
	if c.New != nil {
		return c.New.ID
	}
	if c.Old != nil {
		return c.Old.ID
	}
	return ""
}
