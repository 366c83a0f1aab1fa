// Package port defines the boundaries of the chat module.
//
// The reconciliation engine depends on these interfaces and never on the
// Telegram client directly, so tests drive it with in-memory fakes.
package port

import (
	"context"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
)

// Transport is the set of chat platform primitives the engine needs.
// Failures are reported as *chatdomain.TransportError.
type Transport interface {
	// Send delivers a new message of r.Kind to chatID.
	Send(ctx context.Context, chatID int64, r chatdomain.Render) (*chatdomain.SentMessage, error)

	// EditText replaces the text and inline markup of a text message.
	EditText(ctx context.Context, ref chatdomain.MessageRef, r chatdomain.Render) (*chatdomain.SentMessage, error)

	// EditCaption replaces the caption and inline markup of a media message.
	EditCaption(ctx context.Context, ref chatdomain.MessageRef, r chatdomain.Render) (*chatdomain.SentMessage, error)

	// EditMedia replaces media, caption and inline markup in place.
	EditMedia(ctx context.Context, ref chatdomain.MessageRef, r chatdomain.Render) (*chatdomain.SentMessage, error)

	// EditMarkup replaces only the inline keyboard. A MarkupNone value clears it.
	EditMarkup(ctx context.Context, ref chatdomain.MessageRef, m chatdomain.Markup) error

	// Delete removes a message.
	Delete(ctx context.Context, ref chatdomain.MessageRef) error
}

// InterfaceStore is the chat-scoped map from interface name to its last
// rendered state. Implementations are owned by one chat.
type InterfaceStore interface {
	ChatID() int64
	Interface(name string) (*chatdomain.Interface, bool)
	SaveInterface(iface *chatdomain.Interface)
	ForgetInterface(name string)
}

// CallbackAnswerer acknowledges inline button presses. With alert set the
// text is shown as a modal instead of a toast.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

// UpdateSource delivers incoming updates until ctx is done.
type UpdateSource interface {
	Updates(ctx context.Context) <-chan chatdomain.Update
}
