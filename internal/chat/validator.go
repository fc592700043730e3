package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max row size
	MaxTextChars    = 2000 // max character count
)

var (
	// ErrEmptyMessage is returned for blank compose input.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrInvalidMessage wraps every other content rule violation.
	ErrInvalidMessage = errors.New("chat: invalid message")
)

// ValidateMessage checks that trimmed message text meets content
// requirements. It never touches the network.
func ValidateMessage(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("%w: exceeds %d byte limit", ErrInvalidMessage, MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: contains invalid UTF-8", ErrInvalidMessage)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("%w: exceeds %d character limit", ErrInvalidMessage, MaxTextChars)
	}
	return nil
}
