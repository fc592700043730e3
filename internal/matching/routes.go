// Package matching connects seekers with listeners: seekers start a session
// and wait in a waiting room, verified listeners browse the queue of waiting
// sessions and claim one. The claim race itself is settled by the backend.
package matching

// Client routes produced by the flows in this package.
const (
	RouteAIChat    = "/ai-chat"
	RouteDashboard = "/dashboard"
	RouteOnboard   = "/listener/onboarding"
	RouteQueue     = "/listener/queue"
)

// WaitingRoute is the seeker's waiting room for a session.
func WaitingRoute(sessionID string) string {
	return "/chat/waiting/" + sessionID
}

// SessionRoute is the chat screen of a session.
func SessionRoute(sessionID string) string {
	return "/chat/session/" + sessionID
}
