package domain

import "bytes"

// ============================================================
// Interface: the last rendered state of a named slot
// ============================================================

// MessageRef is the platform handle of a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Rendering holds the forms the platform may report back for sent text.
// Plain is the entity-free text; HTML and Markdown are what was sent when the
// corresponding parse mode was used. Empty means not available.
type Rendering struct {
	Plain    string
	HTML     string
	Markdown string
}

// SentMessage is what the transport returns after a send or an edit.
type SentMessage struct {
	Ref       MessageRef
	Rendering Rendering
}

// Interface is the stored state of one logical message slot in a chat.
type Interface struct {
	Name string

	// Message is nil when no live message exists for this slot.
	Message *MessageRef

	Kind      ContentKind
	Text      string
	ParseMode ParseMode
	Rendering Rendering
	Markup    Markup
	Media     *MediaRef
	Location  *Location
	ReplyTo   int

	DisableNotification   bool
	DisableWebPagePreview bool
}

// HasMessage reports whether a live message handle is stored.
func (i *Interface) HasMessage() bool {
	return i != nil && i.Message != nil
}

// Apply records a successful send or edit of r as the new state. Edits keep
// the prior ReplyTo; the reconciler restores it.
func (i *Interface) Apply(r Render, sent *SentMessage) {
	if sent != nil {
		ref := sent.Ref
		i.Message = &ref
		i.Rendering = sent.Rendering
	}
	i.Kind = r.Kind
	i.Text = r.Text
	i.ParseMode = r.ParseMode
	i.Markup = r.Markup
	i.Media = r.Media
	i.Location = r.Location
	i.ReplyTo = r.ReplyTo
	i.DisableNotification = r.DisableNotification
	i.DisableWebPagePreview = r.DisableWebPagePreview
}

// MediaSame compares media identity: same file id, or same bytes for local
// media. Different kinds are never the same.
func (i *Interface) MediaSame(r Render) bool {
	if i.Kind != r.Kind {
		return false
	}
	if r.Kind == KindLocation {
		switch {
		case i.Location == nil && r.Location == nil:
			return true
		case i.Location == nil || r.Location == nil:
			return false
		default:
			return *i.Location == *r.Location
		}
	}

	a, b := i.Media, r.Media
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	case a.FileID != "" || b.FileID != "":
		return a.FileID == b.FileID
	default:
		return bytes.Equal(a.Bytes, b.Bytes)
	}
}
