package ws

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/onetalk/support-chat/internal/chat"
	"github.com/onetalk/support-chat/internal/coordinator"
	"github.com/onetalk/support-chat/internal/protocol"
)

// MessageHandler handles one parsed client message. msg is the concrete
// struct returned by protocol.ParseClientMessage. A returned error is sent
// back to the client as an error message.
type MessageHandler func(ctx context.Context, conn *Connection, msg interface{}) error

// MessageDispatcher routes incoming messages to handlers by type. Ping is
// answered internally.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	timeout  time.Duration
}

// NewMessageDispatcher creates a dispatcher with the chat command handlers
// registered. Each handler runs under timeout.
func NewMessageDispatcher(timeout time.Duration) *MessageDispatcher {
	d := &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		timeout:  timeout,
	}
	d.Register(protocol.TypeDraft, func(ctx context.Context, c *Connection, msg interface{}) error {
		return c.session.SetDraft(ctx, msg.(protocol.DraftMsg).Text)
	})
	d.Register(protocol.TypeSend, func(ctx context.Context, c *Connection, _ interface{}) error {
		return c.session.Send(ctx)
	})
	d.Register(protocol.TypeEndChat, func(ctx context.Context, c *Connection, _ interface{}) error {
		return c.session.EndChat(ctx)
	})
	d.Register(protocol.TypeRequestExtension, func(ctx context.Context, c *Connection, msg interface{}) error {
		return c.session.RequestExtension(ctx, msg.(protocol.RequestExtensionMsg).Minutes)
	})
	d.Register(protocol.TypeAcceptExtension, func(ctx context.Context, c *Connection, _ interface{}) error {
		return c.session.AcceptExtension(ctx)
	})
	d.Register(protocol.TypeDeclineExtension, func(ctx context.Context, c *Connection, _ interface{}) error {
		return c.session.DeclineExtension(ctx)
	})
	return d
}

// Register associates a handler with a message type, replacing any
// previous one.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch parses data and runs the matching handler.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		log.Printf("[ws] parse error conn=%s: %v", conn.ID, err)
		d.sendError(conn, protocol.CodeBadRequest, "invalid message format")
		return
	}

	if msgType == protocol.TypePing {
		d.sendPong(conn)
		return
	}

	handler, ok := d.handlers[msgType]
	if !ok {
		log.Printf("[ws] unsupported message type=%q conn=%s", msgType, conn.ID)
		d.sendError(conn, protocol.CodeBadRequest, "unsupported message type")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := handler(ctx, conn, msg); err != nil {
		d.sendError(conn, errorCode(err), err.Error())
	}
}

// errorCode maps a command error to a protocol error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, coordinator.ErrRateLimited):
		return protocol.CodeRateLimited
	case errors.Is(err, coordinator.ErrNotSeeker), errors.Is(err, coordinator.ErrNotListener):
		return protocol.CodeForbidden
	case errors.Is(err, coordinator.ErrExtensionUnavailable),
		errors.Is(err, coordinator.ErrNoPendingRequest),
		errors.Is(err, coordinator.ErrPaymentInProgress),
		errors.Is(err, coordinator.ErrEnded):
		return protocol.CodeConflict
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrInvalidMessage),
		errors.Is(err, coordinator.ErrUnknownPackage):
		return protocol.CodeBadRequest
	}
	return protocol.CodeInternal
}

func (d *MessageDispatcher) sendError(conn *Connection, code string, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{
		Code:    code,
		Message: message,
	})
	if err != nil {
		log.Printf("[ws] failed to build error message conn=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[ws] failed to send error message conn=%s: %v", conn.ID, err)
	}
}

func (d *MessageDispatcher) sendPong(conn *Connection) {
	data, err := protocol.NewServerMessage(protocol.TypePong, protocol.PongMsg{})
	if err != nil {
		log.Printf("[ws] failed to build pong message conn=%s: %v", conn.ID, err)
		return
	}
	if err := conn.WriteMessage(data); err != nil {
		log.Printf("[ws] failed to send pong message conn=%s: %v", conn.ID, err)
	}
}
