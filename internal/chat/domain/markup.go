package domain

// ============================================================
// Markup: tagged union of keyboard shapes
// ============================================================

// MarkupClass is the structural class of a keyboard.
type MarkupClass int

const (
	MarkupNone MarkupClass = iota
	MarkupInline
	MarkupReply
)

func (c MarkupClass) String() string {
	switch c {
	case MarkupInline:
		return "inline"
	case MarkupReply:
		return "reply"
	default:
		return "none"
	}
}

// InlineButton is one inline keyboard button. Empty CallbackData or URL means
// the field is absent.
type InlineButton struct {
	Text         string
	CallbackData string
	URL          string
}

// CallbackButton builds a button that sends data back to the bot.
func CallbackButton(text, data string) InlineButton {
	return InlineButton{Text: text, CallbackData: data}
}

// URLButton builds a link button.
func URLButton(text, url string) InlineButton {
	return InlineButton{Text: text, URL: url}
}

// Markup is a keyboard attached to a message. Only the grid matching Class is used.
type Markup struct {
	Class  MarkupClass
	Inline [][]InlineButton
	Reply  [][]string
}

// NoMarkup is the absent keyboard.
func NoMarkup() Markup {
	return Markup{}
}

// InlineMarkup builds an inline keyboard from rows.
func InlineMarkup(rows ...[]InlineButton) Markup {
	return Markup{Class: MarkupInline, Inline: rows}
}

// ReplyMarkup builds a reply keyboard from rows of labels.
func ReplyMarkup(rows ...[]string) Markup {
	return Markup{Class: MarkupReply, Reply: rows}
}

// IsNone reports whether no keyboard is attached.
func (m Markup) IsNone() bool {
	return m.Class == MarkupNone
}

// Equal compares two keyboards. Different classes are never equal. Grids must
// have the same shape and the same label at every coordinate; callback data and
// URL are compared only when both sides carry them.
func (m Markup) Equal(other Markup) bool {
	if m.Class != other.Class {
		return false
	}

	switch m.Class {
	case MarkupInline:
		if len(m.Inline) != len(other.Inline) {
			return false
		}
		for i, row := range m.Inline {
			if len(row) != len(other.Inline[i]) {
				return false
			}
			for j, b := range row {
				o := other.Inline[i][j]
				if b.Text != o.Text {
					return false
				}
				if b.CallbackData != "" && o.CallbackData != "" && b.CallbackData != o.CallbackData {
					return false
				}
				if b.URL != "" && o.URL != "" && b.URL != o.URL {
					return false
				}
			}
		}
	case MarkupReply:
		if len(m.Reply) != len(other.Reply) {
			return false
		}
		for i, row := range m.Reply {
			if len(row) != len(other.Reply[i]) {
				return false
			}
			for j, label := range row {
				if label != other.Reply[i][j] {
					return false
				}
			}
		}
	}
	return true
}
