// Package domain defines the types the chat reconciliation engine works with.
//
// The engine compares two shapes:
//
//	Render     what the caller wants the chat to show now
//	Interface  what was last shown for a logical name in one chat
//
// Every piece of state the comparison needs is an explicit field. Absence is
// always encoded explicitly (nil pointer, zero MessageRef, MarkupNone), never
// inferred from a missing attribute.
package domain

// ============================================================
// Content kinds and parse modes
// ============================================================

// ContentKind is the mutually exclusive kind of a rendered message.
type ContentKind string

const (
	KindText      ContentKind = "text"
	KindPhoto     ContentKind = "photo"
	KindDocument  ContentKind = "document"
	KindVideo     ContentKind = "video"
	KindAnimation ContentKind = "animation"
	KindSticker   ContentKind = "sticker"
	KindLocation  ContentKind = "location"
)

// IsMedia reports whether the kind carries a MediaRef.
func (k ContentKind) IsMedia() bool {
	switch k {
	case KindPhoto, KindDocument, KindVideo, KindAnimation, KindSticker:
		return true
	}
	return false
}

// HasCaption reports whether the kind's text is sent as a caption.
func (k ContentKind) HasCaption() bool {
	switch k {
	case KindPhoto, KindDocument, KindVideo, KindAnimation:
		return true
	}
	return false
}

// Editable reports whether the platform can replace this kind's media in place.
func (k ContentKind) Editable() bool {
	return k.HasCaption()
}

// ParseMode selects how the platform interprets message text.
type ParseMode string

const (
	ParseNone       ParseMode = ""
	ParseHTML       ParseMode = "HTML"
	ParseMarkdownV2 ParseMode = "MarkdownV2"
)

// ============================================================
// Media
// ============================================================

// MediaRef identifies media either by a platform file id or by local bytes.
// Exactly one of FileID and Bytes is set.
type MediaRef struct {
	FileID string
	Name   string
	Bytes  []byte
}

// RemoteMedia references media already uploaded to the platform.
func RemoteMedia(fileID string) *MediaRef {
	return &MediaRef{FileID: fileID}
}

// LocalMedia references media that must be uploaded.
func LocalMedia(name string, data []byte) *MediaRef {
	return &MediaRef{Name: name, Bytes: data}
}

// IsLocal reports whether the media has to be uploaded.
func (m *MediaRef) IsLocal() bool {
	return m != nil && m.FileID == ""
}

// Location is a geographic point.
type Location struct {
	Latitude  float64
	Longitude float64
}

// ============================================================
// Render: the desired state
// ============================================================

// Render describes what the caller wants an interface to show.
type Render struct {
	Kind      ContentKind
	Text      string // message text, or caption for media kinds
	ParseMode ParseMode
	Markup    Markup
	Media     *MediaRef
	Location  *Location

	// ReplyTo is the message id to reply to; zero means none.
	ReplyTo int

	DisableNotification   bool
	DisableWebPagePreview bool
}

// TextRender is a plain text render.
func TextRender(text string, mode ParseMode) Render {
	return Render{Kind: KindText, Text: text, ParseMode: mode}
}

// MediaRender is a photo/document/video/animation/sticker render.
func MediaRender(kind ContentKind, media *MediaRef, caption string, mode ParseMode) Render {
	return Render{Kind: kind, Media: media, Text: caption, ParseMode: mode}
}

// LocationRender is a location render.
func LocationRender(lat, lon float64) Render {
	return Render{Kind: KindLocation, Location: &Location{Latitude: lat, Longitude: lon}}
}

// WithMarkup returns a copy carrying the given markup.
func (r Render) WithMarkup(m Markup) Render {
	r.Markup = m
	return r
}

// WithReplyTo returns a copy replying to messageID.
func (r Render) WithReplyTo(messageID int) Render {
	r.ReplyTo = messageID
	return r
}

// Silent returns a copy with notifications disabled.
func (r Render) Silent() Render {
	r.DisableNotification = true
	return r
}

// WithoutPreview returns a copy with link previews disabled.
func (r Render) WithoutPreview() Render {
	r.DisableWebPagePreview = true
	return r
}
