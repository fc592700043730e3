package domain

// Broadcast event names carried on a session's ephemeral channel.
const (
	EventTyping           = "typing"
	EventStoppedTyping    = "stopped-typing"
	EventExtensionRequest = "extension-request"
)

// Broadcast is a fire-and-forget event on a session's broadcast channel. It
// is never persisted.
type Broadcast struct {
	Event    string            `json:"event"`
	SenderID string            `json:"sender_id,omitempty"`
	Package  *ExtensionPackage `json:"package,omitempty"`
}
