package domain

// Role is the participant role recorded on a profile.
type Role string

const (
	RoleSeeker   Role = "seeker"
	RoleListener Role = "listener"
	RoleExpert   Role = "expert"
)

// ListenerStatus tracks listener onboarding.
type ListenerStatus string

const (
	ListenerUnverified ListenerStatus = "unverified"
	ListenerPending    ListenerStatus = "pending"
	ListenerVerified   ListenerStatus = "verified"
)

// Profile is the pseudonymous public profile of a user.
type Profile struct {
	ID             string         `json:"id" redis:"id"`
	UserID         string         `json:"user_id" redis:"user_id"`
	Nickname       string         `json:"nickname" redis:"nickname"`
	Bio            string         `json:"bio,omitempty" redis:"bio"`
	Role           Role           `json:"role" redis:"role"`
	RatingAverage  float64        `json:"rating_average" redis:"rating_average"`
	RatingCount    int            `json:"rating_count" redis:"rating_count"`
	TotalSessions  int            `json:"total_sessions" redis:"total_sessions"`
	IsAvailable    bool           `json:"is_available" redis:"is_available"`
	ListenerStatus ListenerStatus `json:"listener_status" redis:"listener_status"`
}

// Participant is the signed-in identity a coordinator or flow acts for. It
// is created when the user signs in and dropped on sign-out.
type Participant struct {
	ProfileID string
	Nickname  string
}
