package coordinator

import (
	"errors"

	"github.com/onetalk/support-chat/internal/chat"
)

// Command validation errors. They are returned before any state changes.
var (
	ErrEmptyMessage         = chat.ErrEmptyMessage
	ErrRateLimited          = errors.New("coordinator: sending too fast")
	ErrNotSeeker            = errors.New("coordinator: only the seeker may request an extension")
	ErrNotListener          = errors.New("coordinator: only the listener may answer an extension request")
	ErrExtensionUnavailable = errors.New("coordinator: extensions open in the last five minutes")
	ErrUnknownPackage       = errors.New("coordinator: unknown extension package")
	ErrNoPendingRequest     = errors.New("coordinator: no pending extension request")
	ErrPaymentInProgress    = errors.New("coordinator: extension payment in progress")
	ErrEnded                = errors.New("coordinator: session has ended")
)

// Entry errors. The coordinator has already toasted and navigated away when
// Run returns one of these.
var (
	ErrServerTime      = errors.New("coordinator: could not read server time")
	ErrSessionInactive = errors.New("coordinator: session is not active")
	ErrNotParticipant  = errors.New("coordinator: not a participant of this session")
)
