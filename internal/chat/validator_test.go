package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateMessage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want error
	}{
		{"ok", "hello", nil},
		{"empty", "", ErrEmptyMessage},
		{"blank", "   \n\t", ErrEmptyMessage},
		{"max chars", strings.Repeat("a", MaxTextChars), nil},
		{"too many chars", strings.Repeat("a", MaxTextChars+1), ErrInvalidMessage},
		{"too many bytes", strings.Repeat("é", MaxMessageBytes/2+1), ErrInvalidMessage},
		{"invalid utf8", "bad \xff byte", ErrInvalidMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessage(tt.text)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("ValidateMessage() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateMessage() error = %v, want %v", err, tt.want)
			}
		})
	}
}
