package domain

import "time"

// Topic is a conversation theme a seeker can pick when requesting a listener.
type Topic struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Color       string `json:"color"`
	IsActive    bool   `json:"is_active"`
}

// Rating is a seeker's score for a completed session.
type Rating struct {
	SessionID string    `json:"session_id"`
	RaterID   string    `json:"rater_id"`
	RatedID   string    `json:"rated_id"`
	Rating    int       `json:"rating"`
	Feedback  string    `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MoodEntry is one record in a user's private mood journal.
type MoodEntry struct {
	ID        string    `json:"id"`
	ProfileID string    `json:"profile_id"`
	Mood      string    `json:"mood"`
	MoodScore int       `json:"mood_score"`
	Notes     string    `json:"notes"`
	Emotions  []string  `json:"emotions"`
	CreatedAt time.Time `json:"created_at"`
}
