package infra

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer is the OpenTelemetry tracer of chat/infra.
var tracer = otel.Tracer("chat/infra")

// ============================================================
// Telegram: port.Transport, port.UpdateSource and port.CallbackAnswerer
// ============================================================
//
// Every Bot API failure is classified into a chatdomain.TransportError so
// the reconciler can tell "nothing changed" and "message gone" apart from
// real failures without looking at Telegram descriptions.

// DefaultAPIEndpoint is the public Bot API.
const DefaultAPIEndpoint = "https://api.telegram.org"

// Telegram adapts go-telegram-bot-api to the chat ports.
type Telegram struct {
	bot            *tgbotapi.BotAPI
	pollTimeout    int
	allowedUpdates []string
	logger         *zap.Logger
}

// NewTelegram connects to the Bot API at endpoint (DefaultAPIEndpoint when
// empty) and verifies the token with getMe.
func NewTelegram(token, endpoint string, httpClient *http.Client, logger *zap.Logger) (*Telegram, error) {
	if endpoint == "" {
		endpoint = DefaultAPIEndpoint
	}
	bot, err := tgbotapi.NewBotAPIWithClient(token, strings.TrimRight(endpoint, "/")+"/bot%s/%s", httpClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))
	return &Telegram{
		bot:            bot,
		pollTimeout:    60,
		allowedUpdates: []string{"message", "callback_query"},
		logger:         logger,
	}, nil
}

// Username is the bot's @username.
func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

// ============================================================
// Sending
// ============================================================

// Send delivers a new message of r.Kind.
func (t *Telegram) Send(ctx context.Context, chatID int64, r chatdomain.Render) (*chatdomain.SentMessage, error) {
	_, span := tracer.Start(ctx, "Telegram.Send")
	defer span.End()
	span.SetAttributes(attribute.Int64("chat.id", chatID), attribute.String("kind", string(r.Kind)))

	cfg, err := sendConfig(chatID, r)
	if err != nil {
		return nil, &chatdomain.TransportError{Kind: chatdomain.TransportGeneric, Err: err}
	}

	msg, err := t.bot.Send(cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return sentMessage(msg, r), nil
}

func sendConfig(chatID int64, r chatdomain.Render) (tgbotapi.Chattable, error) {
	switch r.Kind {
	case chatdomain.KindText, "":
		cfg := tgbotapi.NewMessage(chatID, r.Text)
		cfg.ParseMode = string(r.ParseMode)
		cfg.DisableWebPagePreview = r.DisableWebPagePreview
		applyBase(&cfg.BaseChat, r)
		return cfg, nil

	case chatdomain.KindPhoto:
		cfg := tgbotapi.NewPhoto(chatID, fileData(r.Media))
		cfg.Caption, cfg.ParseMode = r.Text, string(r.ParseMode)
		applyBase(&cfg.BaseChat, r)
		return cfg, nil

	case chatdomain.KindDocument:
		cfg := tgbotapi.NewDocument(chatID, fileData(r.Media))
		cfg.Caption, cfg.ParseMode = r.Text, string(r.ParseMode)
		applyBase(&cfg.BaseChat, r)
		return cfg, nil

	case chatdomain.KindVideo:
		cfg := tgbotapi.NewVideo(chatID, fileData(r.Media))
		cfg.Caption, cfg.ParseMode = r.Text, string(r.ParseMode)
		applyBase(&cfg.BaseChat, r)
		return cfg, nil

	case chatdomain.KindAnimation:
		cfg := tgbotapi.NewAnimation(chatID, fileData(r.Media))
		cfg.Caption, cfg.ParseMode = r.Text, string(r.ParseMode)
		applyBase(&cfg.BaseChat, r)
		return cfg, nil

	case chatdomain.KindSticker:
		cfg := tgbotapi.NewSticker(chatID, fileData(r.Media))
		applyBase(&cfg.BaseChat, r)
		return cfg, nil

	case chatdomain.KindLocation:
		if r.Location == nil {
			return nil, errors.New("location render without coordinates")
		}
		cfg := tgbotapi.NewLocation(chatID, r.Location.Latitude, r.Location.Longitude)
		applyBase(&cfg.BaseChat, r)
		return cfg, nil
	}
	return nil, fmt.Errorf("unsupported content kind %q", r.Kind)
}

func applyBase(b *tgbotapi.BaseChat, r chatdomain.Render) {
	b.ReplyToMessageID = r.ReplyTo
	b.DisableNotification = r.DisableNotification
	if m := replyMarkup(r.Markup); m != nil {
		b.ReplyMarkup = m
	}
}

// ============================================================
// Editing
// ============================================================

// EditText replaces the text and inline markup of a text message.
func (t *Telegram) EditText(ctx context.Context, ref chatdomain.MessageRef, r chatdomain.Render) (*chatdomain.SentMessage, error) {
	_, span := tracer.Start(ctx, "Telegram.EditText")
	defer span.End()

	cfg := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, r.Text)
	cfg.ParseMode = string(r.ParseMode)
	cfg.DisableWebPagePreview = r.DisableWebPagePreview
	cfg.ReplyMarkup = inlineMarkup(r.Markup)

	msg, err := t.bot.Send(cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return sentMessage(msg, r), nil
}

// EditCaption replaces the caption and inline markup of a media message.
func (t *Telegram) EditCaption(ctx context.Context, ref chatdomain.MessageRef, r chatdomain.Render) (*chatdomain.SentMessage, error) {
	_, span := tracer.Start(ctx, "Telegram.EditCaption")
	defer span.End()

	cfg := tgbotapi.NewEditMessageCaption(ref.ChatID, ref.MessageID, r.Text)
	cfg.ParseMode = string(r.ParseMode)
	cfg.ReplyMarkup = inlineMarkup(r.Markup)

	msg, err := t.bot.Send(cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return sentMessage(msg, r), nil
}

// EditMedia swaps the media of a photo/document/video/animation message.
func (t *Telegram) EditMedia(ctx context.Context, ref chatdomain.MessageRef, r chatdomain.Render) (*chatdomain.SentMessage, error) {
	_, span := tracer.Start(ctx, "Telegram.EditMedia")
	defer span.End()

	var media any
	file := fileData(r.Media)
	switch r.Kind {
	case chatdomain.KindPhoto:
		m := tgbotapi.NewInputMediaPhoto(file)
		m.Caption, m.ParseMode = r.Text, string(r.ParseMode)
		media = m
	case chatdomain.KindDocument:
		m := tgbotapi.NewInputMediaDocument(file)
		m.Caption, m.ParseMode = r.Text, string(r.ParseMode)
		media = m
	case chatdomain.KindVideo:
		m := tgbotapi.NewInputMediaVideo(file)
		m.Caption, m.ParseMode = r.Text, string(r.ParseMode)
		media = m
	case chatdomain.KindAnimation:
		m := tgbotapi.NewInputMediaAnimation(file)
		m.Caption, m.ParseMode = r.Text, string(r.ParseMode)
		media = m
	default:
		return nil, &chatdomain.TransportError{Kind: chatdomain.TransportGeneric, Err: fmt.Errorf("%q media cannot be edited", r.Kind)}
	}

	cfg := tgbotapi.EditMessageMediaConfig{
		BaseEdit: tgbotapi.BaseEdit{
			ChatID:      ref.ChatID,
			MessageID:   ref.MessageID,
			ReplyMarkup: inlineMarkup(r.Markup),
		},
		Media: media,
	}

	msg, err := t.bot.Send(cfg)
	if err != nil {
		return nil, Classify(err)
	}
	return sentMessage(msg, r), nil
}

// EditMarkup replaces only the inline keyboard; MarkupNone clears it.
func (t *Telegram) EditMarkup(ctx context.Context, ref chatdomain.MessageRef, m chatdomain.Markup) error {
	_, span := tracer.Start(ctx, "Telegram.EditMarkup")
	defer span.End()

	kb := inlineMarkup(m)
	if kb == nil {
		kb = &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	}
	cfg := tgbotapi.NewEditMessageReplyMarkup(ref.ChatID, ref.MessageID, *kb)

	if _, err := t.bot.Request(cfg); err != nil {
		return Classify(err)
	}
	return nil
}

// Delete removes a message.
func (t *Telegram) Delete(ctx context.Context, ref chatdomain.MessageRef) error {
	_, span := tracer.Start(ctx, "Telegram.Delete")
	defer span.End()

	if _, err := t.bot.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID)); err != nil {
		return Classify(err)
	}
	return nil
}

// AnswerCallback acknowledges a button press.
func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error {
	_, span := tracer.Start(ctx, "Telegram.AnswerCallback")
	defer span.End()

	cfg := tgbotapi.NewCallback(callbackID, text)
	cfg.ShowAlert = alert
	if _, err := t.bot.Request(cfg); err != nil {
		return Classify(err)
	}
	return nil
}

// ============================================================
// Receiving
// ============================================================

// Updates long-polls the Bot API until ctx is done. The channel is closed
// after polling stopped.
func (t *Telegram) Updates(ctx context.Context) <-chan chatdomain.Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = t.pollTimeout
	cfg.AllowedUpdates = t.allowedUpdates

	in := t.bot.GetUpdatesChan(cfg)
	out := make(chan chatdomain.Update)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case u, ok := <-in:
				if !ok {
					return
				}
				upd, ok := ConvertUpdate(u)
				if !ok {
					continue
				}
				select {
				case out <- upd:
				case <-ctx.Done():
					t.bot.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

// ConvertUpdate keeps private-chat text messages and button presses.
func ConvertUpdate(u tgbotapi.Update) (chatdomain.Update, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil {
			return chatdomain.Update{}, false
		}
		upd := chatdomain.Update{
			ChatID:       cq.From.ID,
			From:         sender(cq.From),
			CallbackID:   cq.ID,
			CallbackData: cq.Data,
		}
		if cq.Message != nil {
			upd.MessageID = cq.Message.MessageID
			if cq.Message.Chat != nil {
				upd.ChatID = cq.Message.Chat.ID
			}
		}
		return upd, true

	case u.Message != nil:
		m := u.Message
		if m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
			return chatdomain.Update{}, false
		}
		return chatdomain.Update{
			ChatID:    m.Chat.ID,
			From:      sender(m.From),
			MessageID: m.MessageID,
			Text:      m.Text,
		}, true
	}
	return chatdomain.Update{}, false
}

func sender(u *tgbotapi.User) chatdomain.Sender {
	return chatdomain.Sender{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Username:     u.UserName,
		LanguageCode: u.LanguageCode,
	}
}

// ============================================================
// Conversions
// ============================================================

func fileData(m *chatdomain.MediaRef) tgbotapi.RequestFileData {
	if m == nil {
		return tgbotapi.FileID("")
	}
	if m.IsLocal() {
		return tgbotapi.FileBytes{Name: m.Name, Bytes: m.Bytes}
	}
	return tgbotapi.FileID(m.FileID)
}

// replyMarkup converts any markup class for sendMessage-style calls.
func replyMarkup(m chatdomain.Markup) any {
	switch m.Class {
	case chatdomain.MarkupInline:
		return *inlineMarkup(m)
	case chatdomain.MarkupReply:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(m.Reply))
		for _, row := range m.Reply {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, buttons)
		}
		kb := tgbotapi.NewReplyKeyboard(rows...)
		kb.ResizeKeyboard = true
		return kb
	}
	return nil
}

// inlineMarkup converts an inline grid; other classes yield nil.
func inlineMarkup(m chatdomain.Markup) *tgbotapi.InlineKeyboardMarkup {
	if m.Class != chatdomain.MarkupInline {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(m.Inline))
	for _, row := range m.Inline {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.CallbackData))
		}
		rows = append(rows, buttons)
	}
	return &tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// sentMessage records what the platform now shows. Telegram echoes plain
// text plus entities; the marked-up form is the text we sent.
func sentMessage(msg tgbotapi.Message, r chatdomain.Render) *chatdomain.SentMessage {
	plain := msg.Text
	if plain == "" {
		plain = msg.Caption
	}
	rendering := chatdomain.Rendering{Plain: plain}
	switch r.ParseMode {
	case chatdomain.ParseHTML:
		rendering.HTML = r.Text
	case chatdomain.ParseMarkdownV2:
		rendering.Markdown = r.Text
	}

	var chatID int64
	if msg.Chat != nil {
		chatID = msg.Chat.ID
	}
	return &chatdomain.SentMessage{
		Ref:       chatdomain.MessageRef{ChatID: chatID, MessageID: msg.MessageID},
		Rendering: rendering,
	}
}

// ============================================================
// Error classification
// ============================================================

var descriptionKinds = []struct {
	fragment string
	kind     chatdomain.TransportErrorKind
}{
	{"message is not modified", chatdomain.TransportNotModified},
	{"message to edit not found", chatdomain.TransportNotFound},
	{"message to delete not found", chatdomain.TransportNotFound},
	{"message can't be edited", chatdomain.TransportNotFound},
	{"message can't be deleted", chatdomain.TransportNotFound},
	{"message_id_invalid", chatdomain.TransportNotFound},
	{"can't parse entities", chatdomain.TransportParseError},
	{"caption is too long", chatdomain.TransportCaptionTooLong},
	{"media_caption_too_long", chatdomain.TransportCaptionTooLong},
	{"bot was blocked by the user", chatdomain.TransportForbidden},
	{"user is deactivated", chatdomain.TransportForbidden},
	{"chat not found", chatdomain.TransportForbidden},
	{"bot can't initiate conversation", chatdomain.TransportForbidden},
}

// Classify maps a Bot API failure to a *chatdomain.TransportError.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var tgErr *tgbotapi.Error
	if !errors.As(err, &tgErr) {
		return &chatdomain.TransportError{Kind: chatdomain.TransportGeneric, Err: err}
	}

	desc := strings.ToLower(tgErr.Message)
	for _, d := range descriptionKinds {
		if strings.Contains(desc, d.fragment) {
			return &chatdomain.TransportError{Kind: d.kind, Err: err}
		}
	}
	if tgErr.Code == http.StatusForbidden {
		return &chatdomain.TransportError{Kind: chatdomain.TransportForbidden, Err: err}
	}
	return &chatdomain.TransportError{Kind: chatdomain.TransportGeneric, Err: err}
}
