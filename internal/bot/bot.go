// Package bot turns chat updates into menu screens.
//
// ============================================================
// STATE MACHINE: one state per chat, one handler per update
// ============================================================
//
// Every chat has a current State kept in its session. An update is matched
// against the routes of the registered menus in order; the first route whose
// state set and trigger match handles it and returns the next state, which the
// Router stores back. Updates nobody handles fall through:
//
//   - text messages are deleted so the chat only shows the menu
//   - callbacks (stale buttons) reopen the start menu
//
// Updates of one chat are serialized; different chats run concurrently up to
// the router's bulkhead size.
package bot

import (
	"context"
	"html"
	"strings"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/chat/session"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/i18n"

	"go.uber.org/zap"
)

// InterfaceName is the name of the single menu message every chat has.
const InterfaceName = "interface"

// State is the menu position of a chat.
type State string

const (
	StateStart          State = "start"
	StateSettings       State = "settings"
	StateWaitingToken   State = "waiting_token"
	StateSelectAccounts State = "select_accounts"
	StateSelectHour     State = "select_hour"
	StateSelectMinute   State = "select_minute"
	StateSelectLanguage State = "select_language"
)

// Handler processes one update and returns the chat's next state.
type Handler func(r *Request) (State, error)

// Route binds a trigger to a handler.
type Route struct {
	// States the route is active in; empty means every state.
	States []State

	// Callback matches the callback data exactly, or as a prefix when Prefix
	// is set. An empty Callback with Text set matches text messages instead.
	Callback string
	Prefix   bool
	Text     bool

	Handle Handler
}

func (rt Route) matches(state State, upd chatdomain.Update) bool {
	if len(rt.States) > 0 {
		found := false
		for _, s := range rt.States {
			if s == state {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if upd.IsCallback() {
		if rt.Callback == "" {
			return false
		}
		if rt.Prefix {
			return strings.HasPrefix(upd.CallbackData, rt.Callback)
		}
		return upd.CallbackData == rt.Callback
	}
	return rt.Text && rt.Callback == "" && !strings.HasPrefix(upd.Text, "/")
}

// Menu is a group of screens.
type Menu interface {
	Routes() []Route
}

// ============================================================
// Request
// ============================================================

// Request is one update together with the chat state it runs against.
type Request struct {
	Ctx     context.Context
	Update  chatdomain.Update
	User    *domain.User
	Session *session.Session
	T       i18n.Translator

	router   *Router
	answered bool
}

// Answer acknowledges the callback once; later calls and text updates are
// no-ops.
func (r *Request) Answer(text string, alert bool) {
	if !r.Update.IsCallback() || r.answered {
		return
	}
	r.answered = true
	if err := r.router.answerer.AnswerCallback(r.Ctx, r.Update.CallbackID, text, alert); err != nil {
		r.router.logger.Warn("can't answer callback",
			zap.Int64("chat_id", r.Update.ChatID),
			zap.String("callback", r.Update.CallbackData),
			zap.Error(err),
		)
	}
}

// Show renders the menu message with an HTML text and inline keyboard.
func (r *Request) Show(text string, rows ...[]chatdomain.InlineButton) error {
	desired := chatdomain.TextRender(text, chatdomain.ParseHTML).WithMarkup(chatdomain.InlineMarkup(rows...))
	_, err := r.router.reconciler.Render(r.Ctx, r.Session, InterfaceName, desired)
	return err
}

// Reset deletes the menu message so the next Show sends a fresh one.
func (r *Request) Reset() {
	r.router.reconciler.DeleteInterface(r.Ctx, r.Session, InterfaceName)
}

// Save persists the request's user.
func (r *Request) Save() error {
	return r.router.users.Add(r.Ctx, r.User)
}

// DeleteMessage removes the user's message best-effort.
func (r *Request) DeleteMessage() {
	if r.Update.IsCallback() || r.Update.MessageID == 0 {
		return
	}
	ref := chatdomain.MessageRef{ChatID: r.Update.ChatID, MessageID: r.Update.MessageID}
	if err := r.router.transport.Delete(r.Ctx, ref); err != nil {
		r.router.logger.Debug("can't delete user message", zap.Int64("chat_id", ref.ChatID), zap.Error(err))
	}
}

// Button is a localized callback button.
func (r *Request) Button(key, data string) chatdomain.InlineButton {
	return chatdomain.CallbackButton(r.T.T(key), data)
}

// ============================================================
// Helpers
// ============================================================

// GroupButtons splits buttons into rows of size. A non-positive size puts
// every button on its own row.
func GroupButtons(buttons []chatdomain.InlineButton, size int) [][]chatdomain.InlineButton {
	if size <= 0 {
		size = 1
	}
	rows := make([][]chatdomain.InlineButton, 0, (len(buttons)+size-1)/size)
	for start := 0; start < len(buttons); start += size {
		end := min(start+size, len(buttons))
		rows = append(rows, buttons[start:end:end])
	}
	return rows
}

// row is a single-button keyboard row.
func row(b chatdomain.InlineButton) []chatdomain.InlineButton {
	return []chatdomain.InlineButton{b}
}

// errorText makes an error safe to show inside an HTML message.
func errorText(err error) string {
	return html.EscapeString(err.Error())
}
