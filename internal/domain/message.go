package domain

import "time"

// Message is an immutable chat message. SenderNickname is denormalised from
// profiles at read time and is not stored on the row.
type Message struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	SenderNickname string    `json:"sender_nickname,omitempty"`
}
