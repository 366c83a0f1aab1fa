// Package service implements the interface reconciliation engine.
//
// ============================================================
// RECONCILIATION: edit in place, replace, or send new
// ============================================================
//
// Every message the bot shows belongs to a named interface ("interface",
// "report", ...). Render compares the desired state against the last state
// stored for that name and picks the cheapest transport action that makes the
// chat show the desired state:
//
//  1. Text longer than one message   → N fresh sends, markup on the last chunk
//  2. Nothing rendered yet           → send
//  3. Reply target changed           → delete + send
//  4. Keyboard class changed         → clear old keyboard + send
//  5. Reply keyboard desired         → send (reply keyboards cannot be edited)
//  6. Compare text, markup and media:
//     all same                       → no-op
//     only markup differs            → edit markup
//     content kind changed           → delete + send
//     media differs                  → edit media
//     text differs                   → edit text / caption
//  7. Any failed edit                 → delete if present + send
//
// The stored state is read, decided on and written back within one call; the
// engine keeps nothing between calls.
package service

import (
	"context"
	"errors"
	"strings"

	"github.com/boddenberg/monoreport-bot-go/internal/chat/content"
	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/chat/port"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var chatTracer = otel.Tracer("chat/service")

// Decision labels, also used as metric label values.
const (
	DecisionSend           = "send"
	DecisionChunked        = "chunked"
	DecisionNoop           = "noop"
	DecisionEditMarkup     = "edit_markup"
	DecisionEditMedia      = "edit_media"
	DecisionEditText       = "edit_text"
	DecisionEditCaption    = "edit_caption"
	DecisionResend         = "resend"
	DecisionFallbackResend = "fallback_resend"
)

// Reconciler renders named interfaces through a chat transport.
type Reconciler struct {
	transport port.Transport
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewReconciler creates the engine.
func NewReconciler(transport port.Transport, metrics *observability.Metrics, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		transport: transport,
		metrics:   metrics,
		logger:    logger,
	}
}

// Render makes the chat behind scope show desired under name.
func (r *Reconciler) Render(ctx context.Context, scope port.InterfaceStore, name string, desired chatdomain.Render) (*chatdomain.Interface, error) {
	ctx, span := chatTracer.Start(ctx, "Reconciler.Render")
	defer span.End()

	if scope == nil {
		r.logger.Error("render without chat scope", zap.String("interface", name))
		return nil, &domain.ErrStoreUnavailable{}
	}
	if desired.Kind == "" {
		desired.Kind = chatdomain.KindText
	}

	chatID := scope.ChatID()
	span.SetAttributes(
		attribute.Int64("chat.id", chatID),
		attribute.String("interface", name),
		attribute.String("kind", string(desired.Kind)),
	)

	prior, ok := scope.Interface(name)
	if !ok {
		prior = &chatdomain.Interface{Name: name}
	}

	decision, iface, err := r.reconcile(ctx, scope, prior, desired)
	span.SetAttributes(attribute.String("decision", decision))
	r.metrics.IncrRenderDecision(decision)

	r.logger.Debug("render decision",
		zap.Int64("chat_id", chatID),
		zap.String("interface", name),
		zap.String("decision", decision),
		zap.Error(err),
	)
	return iface, err
}

func (r *Reconciler) reconcile(ctx context.Context, scope port.InterfaceStore, prior *chatdomain.Interface, desired chatdomain.Render) (string, *chatdomain.Interface, error) {
	// 1. Length overflow
	if desired.Kind == chatdomain.KindText && content.Overflows(desired.Text) {
		iface, err := r.sendChunked(ctx, scope, prior.Name, desired)
		return DecisionChunked, iface, err
	}

	// 2. No prior message
	if !prior.HasMessage() {
		iface, err := r.sendFresh(ctx, scope, prior.Name, desired)
		return DecisionSend, iface, err
	}

	// 3. Reply target change
	if desired.ReplyTo != 0 && desired.ReplyTo != prior.ReplyTo {
		iface, err := r.replace(ctx, scope, prior, desired)
		return DecisionResend, iface, err
	}

	// 4. Markup class change
	if !prior.Markup.IsNone() && !desired.Markup.IsNone() && prior.Markup.Class != desired.Markup.Class {
		r.ClearMarkup(ctx, scope, prior.Name)
		iface, err := r.sendFresh(ctx, scope, prior.Name, desired)
		return DecisionResend, iface, err
	}

	// 5. Reply keyboard desired
	if desired.Markup.Class == chatdomain.MarkupReply {
		iface, err := r.sendFresh(ctx, scope, prior.Name, desired)
		return DecisionSend, iface, err
	}

	// 6. Equality check
	sameKind := prior.Kind == desired.Kind
	textSame := sameKind && textSame(prior, desired)
	markupSame := prior.Markup.Equal(desired.Markup)
	mediaSame := prior.MediaSame(desired)

	switch {
	case textSame && mediaSame && markupSame:
		return DecisionNoop, prior, nil

	case textSame && mediaSame:
		if prior.Markup.Class == chatdomain.MarkupReply {
			iface, err := r.replace(ctx, scope, prior, desired)
			return DecisionResend, iface, err
		}
		err := r.transport.EditMarkup(ctx, *prior.Message, desired.Markup)
		if err == nil || chatdomain.IsTransportKind(err, chatdomain.TransportNotModified) {
			iface := *prior
			iface.Markup = desired.Markup
			scope.SaveInterface(&iface)
			return DecisionEditMarkup, &iface, nil
		}
		return r.fallback(ctx, scope, prior, desired, err)

	case !sameKind:
		iface, err := r.replace(ctx, scope, prior, desired)
		return DecisionResend, iface, err

	case !mediaSame && desired.Kind.Editable():
		sent, err := r.transport.EditMedia(ctx, *prior.Message, desired)
		return r.afterEdit(ctx, scope, prior, desired, DecisionEditMedia, sent, err)

	case !mediaSame:
		iface, err := r.replace(ctx, scope, prior, desired)
		return DecisionResend, iface, err

	case desired.Kind == chatdomain.KindText:
		sent, err := r.transport.EditText(ctx, *prior.Message, desired)
		return r.afterEdit(ctx, scope, prior, desired, DecisionEditText, sent, err)

	case desired.Kind.HasCaption():
		sent, err := r.transport.EditCaption(ctx, *prior.Message, desired)
		return r.afterEdit(ctx, scope, prior, desired, DecisionEditCaption, sent, err)

	default:
		iface, err := r.replace(ctx, scope, prior, desired)
		return DecisionResend, iface, err
	}
}

// afterEdit stores a successful edit or falls back to delete + send.
func (r *Reconciler) afterEdit(ctx context.Context, scope port.InterfaceStore, prior *chatdomain.Interface, desired chatdomain.Render, decision string, sent *chatdomain.SentMessage, err error) (string, *chatdomain.Interface, error) {
	if err != nil && !chatdomain.IsTransportKind(err, chatdomain.TransportNotModified) {
		return r.fallback(ctx, scope, prior, desired, err)
	}

	iface := *prior
	iface.Apply(desired, sent)
	// An edit never changes what the message replies to.
	iface.ReplyTo = prior.ReplyTo
	scope.SaveInterface(&iface)
	return decision, &iface, nil
}

func (r *Reconciler) fallback(ctx context.Context, scope port.InterfaceStore, prior *chatdomain.Interface, desired chatdomain.Render, editErr error) (string, *chatdomain.Interface, error) {
	fields := []zap.Field{
		zap.Int64("chat_id", scope.ChatID()),
		zap.String("interface", prior.Name),
		zap.Stringer("transport_error", chatdomain.TransportKind(editErr)),
		zap.Error(editErr),
	}
	if chatdomain.IsTransportKind(editErr, chatdomain.TransportParseError) {
		fields = append(fields, zap.String("text", desired.Text))
	}
	r.logger.Warn("can't edit message, resending", fields...)

	iface, err := r.replace(ctx, scope, prior, desired)
	return DecisionFallbackResend, iface, err
}

// replace deletes the prior message if present and sends desired fresh.
func (r *Reconciler) replace(ctx context.Context, scope port.InterfaceStore, prior *chatdomain.Interface, desired chatdomain.Render) (*chatdomain.Interface, error) {
	r.DeleteInterface(ctx, scope, prior.Name)
	return r.sendFresh(ctx, scope, prior.Name, desired)
}

func (r *Reconciler) sendFresh(ctx context.Context, scope port.InterfaceStore, name string, desired chatdomain.Render) (*chatdomain.Interface, error) {
	sent, used, err := r.send(ctx, scope.ChatID(), desired)
	if err != nil {
		return nil, err
	}

	iface := &chatdomain.Interface{Name: name}
	iface.Apply(used, sent)
	scope.SaveInterface(iface)
	return iface, nil
}

func (r *Reconciler) sendChunked(ctx context.Context, scope port.InterfaceStore, name string, desired chatdomain.Render) (*chatdomain.Interface, error) {
	chunks := content.Chunk(desired.Text, content.MessageChunkSize)

	var iface *chatdomain.Interface
	for i, chunk := range chunks {
		part := desired
		part.Text = chunk
		if i < len(chunks)-1 {
			part.Markup = chatdomain.NoMarkup()
		}

		var err error
		iface, err = r.sendFresh(ctx, scope, name, part)
		if err != nil {
			return nil, err
		}
	}
	return iface, nil
}

// send delivers desired as a new message. Captions rejected as too long are
// retried once without tags and then truncated. The render actually sent is
// returned alongside the message.
func (r *Reconciler) send(ctx context.Context, chatID int64, desired chatdomain.Render) (*chatdomain.SentMessage, chatdomain.Render, error) {
	sent, err := r.transport.Send(ctx, chatID, desired)
	if err != nil && desired.Kind.HasCaption() && chatdomain.IsTransportKind(err, chatdomain.TransportCaptionTooLong) {
		stripped := desired
		stripped.Text = content.StripTags(desired.Text)
		stripped.ParseMode = chatdomain.ParseNone
		desired = stripped

		sent, err = r.transport.Send(ctx, chatID, desired)
		if err != nil {
			desired.Text = content.TruncateCaption(stripped.Text)
			sent, err = r.transport.Send(ctx, chatID, desired)
		}
	}

	if err != nil {
		if chatdomain.IsTransportKind(err, chatdomain.TransportForbidden) {
			return nil, desired, &domain.ErrUserUnreachable{ChatID: chatID, Err: err}
		}
		r.metrics.IncrExternalError("telegram")
		return nil, desired, &domain.ErrExternalService{Service: "telegram", Err: err}
	}
	return sent, desired, nil
}

// ============================================================
// Auxiliary operations
// ============================================================

// Interface returns the stored state of name, if any.
func (r *Reconciler) Interface(scope port.InterfaceStore, name string) (*chatdomain.Interface, bool) {
	if scope == nil {
		return nil, false
	}
	return scope.Interface(name)
}

// RemoveInterface forgets the stored state without touching the chat.
func (r *Reconciler) RemoveInterface(scope port.InterfaceStore, name string) {
	if scope == nil {
		r.logger.Error("remove interface without chat scope", zap.String("interface", name))
		return
	}
	scope.ForgetInterface(name)
}

// DeleteInterface deletes the message best-effort and forgets the state.
func (r *Reconciler) DeleteInterface(ctx context.Context, scope port.InterfaceStore, name string) {
	if scope == nil {
		r.logger.Error("delete interface without chat scope", zap.String("interface", name))
		return
	}

	if iface, ok := scope.Interface(name); ok && iface.HasMessage() {
		if err := r.transport.Delete(ctx, *iface.Message); err != nil {
			r.logger.Warn("can't delete interface message",
				zap.Int64("chat_id", scope.ChatID()),
				zap.String("interface", name),
				zap.Error(err),
			)
		}
	}
	scope.ForgetInterface(name)
}

// ClearMarkup removes the keyboard best-effort and forgets the state. Reply
// keyboards cannot be cleared by an edit, so their message is deleted.
func (r *Reconciler) ClearMarkup(ctx context.Context, scope port.InterfaceStore, name string) {
	if scope == nil {
		r.logger.Error("clear markup without chat scope", zap.String("interface", name))
		return
	}

	iface, ok := scope.Interface(name)
	if !ok {
		return
	}
	if iface.Markup.Class == chatdomain.MarkupReply {
		r.DeleteInterface(ctx, scope, name)
		return
	}

	if iface.HasMessage() {
		err := r.transport.EditMarkup(ctx, *iface.Message, chatdomain.NoMarkup())
		if err != nil && !chatdomain.IsTransportKind(err, chatdomain.TransportNotModified) {
			r.logger.Warn("can't remove keyboard markup",
				zap.Int64("chat_id", scope.ChatID()),
				zap.String("interface", name),
				zap.Error(err),
			)
		}
	}
	scope.ForgetInterface(name)
}

// ============================================================
// Comparison
// ============================================================

// textSame compares the normalized desired text with every rendering the
// platform reported for the prior message.
func textSame(prior *chatdomain.Interface, desired chatdomain.Render) bool {
	want := content.Normalize(desired.Text, desired.ParseMode)

	var candidates []string
	if prior.Rendering.HTML != "" {
		candidates = append(candidates, content.Normalize(prior.Rendering.HTML, chatdomain.ParseHTML))
	}
	if prior.Rendering.Markdown != "" {
		candidates = append(candidates, content.Normalize(prior.Rendering.Markdown, chatdomain.ParseMarkdownV2))
	}
	if prior.Rendering.Plain != "" {
		candidates = append(candidates, strings.Trim(prior.Rendering.Plain, " \n\t"))
	}
	if len(candidates) == 0 {
		candidates = append(candidates, content.Normalize(prior.Text, prior.ParseMode))
	}

	for _, c := range candidates {
		if c == want {
			return true
		}
	}
	return false
}

// IsUnreachable reports whether err means the user blocked the bot.
func IsUnreachable(err error) bool {
	var unreachable *domain.ErrUserUnreachable
	return errors.As(err, &unreachable)
}
