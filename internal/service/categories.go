package service

import (
	"strconv"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
)

// CategoryOther collects every MCC not listed in the table.
const CategoryOther = "other"

type category struct {
	key   string
	names map[string]string
	mccs  []int
}

// categories is ordered; the first category listing an MCC wins.
var categories = []category{
	{"groceries", map[string]string{"uk": "🛒 Продукти", "en": "🛒 Groceries"},
		[]int{5411, 5412, 5422, 5441, 5451, 5462, 5499}},
	{"restaurants", map[string]string{"uk": "🍔 Ресторани та кафе", "en": "🍔 Restaurants & Cafes"},
		[]int{5812, 5813, 5814}},
	{"transport", map[string]string{"uk": "🚗 Транспорт", "en": "🚗 Transport"},
		[]int{4111, 4112, 4121, 4131, 4411, 4511, 4784, 5541, 5542, 5172, 7512, 7523}},
	{"entertainment", map[string]string{"uk": "🎬 Розваги", "en": "🎬 Entertainment"},
		[]int{7832, 7841, 7911, 7922, 7929, 7932, 7933, 7941, 7991, 7992, 7993, 7994, 7995, 7996, 7997, 7998, 7999}},
	{"health", map[string]string{"uk": "💊 Здоров'я", "en": "💊 Health"},
		[]int{5122, 5292, 5912, 5975, 5976, 5977, 8011, 8021, 8031, 8041, 8042, 8043, 8049, 8050, 8062, 8071, 8099}},
	{"clothing", map[string]string{"uk": "👕 Одяг та взуття", "en": "👕 Clothing & Shoes"},
		[]int{5611, 5621, 5631, 5641, 5651, 5661, 5681, 5691, 5699, 5931, 5932, 5948}},
	{"utilities", map[string]string{"uk": "🏠 Комунальні послуги", "en": "🏠 Utilities"},
		[]int{4814, 4816, 4821, 4899, 4900}},
	{"electronics", map[string]string{"uk": "📱 Електроніка", "en": "📱 Electronics"},
		[]int{5045, 5046, 5065, 5722, 5732, 5733, 5734, 5735}},
	{"education", map[string]string{"uk": "📚 Освіта", "en": "📚 Education"},
		[]int{5111, 5192, 5942, 5943, 5994, 8211, 8220, 8241, 8244, 8249, 8299}},
	{"transfers", map[string]string{"uk": "💸 Перекази", "en": "💸 Transfers"},
		[]int{4829, 6010, 6011, 6012, 6051, 6211, 6300, 6540}},
	{CategoryOther, map[string]string{"uk": "📦 Інше", "en": "📦 Other"}, nil},
}

var (
	mccIndex      = make(map[int]string)
	categoryIndex = make(map[string]category, len(categories))
)

func init() {
	for _, c := range categories {
		categoryIndex[c.key] = c
		for _, mcc := range c.mccs {
			if _, taken := mccIndex[mcc]; !taken {
				mccIndex[mcc] = c.key
			}
		}
	}
}

// ClassifyMCC maps a merchant category code to a category key.
func ClassifyMCC(mcc int) string {
	if key, ok := mccIndex[mcc]; ok {
		return key
	}
	return CategoryOther
}

// CategoryKeys lists the category keys in table order.
func CategoryKeys() []string {
	keys := make([]string, len(categories))
	for i, c := range categories {
		keys[i] = c.key
	}
	return keys
}

// CategoryName returns the display name of a category in lang, falling back
// to English and then to "Other". Unknown keys are treated as "other".
func CategoryName(key, lang string) string {
	c, ok := categoryIndex[key]
	if !ok {
		c = categoryIndex[CategoryOther]
	}
	if name, ok := c.names[lang]; ok {
		return name
	}
	if name, ok := c.names["en"]; ok {
		return name
	}
	return "Other"
}

// currencySymbols covers the currencies Monobank issues cards in.
var currencySymbols = map[int]string{
	980: "₴",
	840: "$",
	978: "€",
}

var accountTypeLabels = map[string]string{
	"black":    "💳 Чорна картка",
	"white":    "💳 Біла картка",
	"platinum": "💎 Platinum",
	"iron":     "🔩 Залізна картка",
	"fop":      "💼 ФОП",
	"eAid":     "🇺🇦 єПідтримка",
}

// FormatAccountName builds the button label of an account, for example
// "💳 Чорна картка *1234 (₴)".
func FormatAccountName(a domain.Account) string {
	name, ok := accountTypeLabels[a.Type]
	if !ok {
		name = "💳 " + a.Type
	}

	if len(a.MaskedPan) > 0 {
		pan := []rune(a.MaskedPan[0])
		if len(pan) > 4 {
			pan = pan[len(pan)-4:]
		}
		name += " *" + string(pan)
	}

	cur, ok := currencySymbols[a.CurrencyCode]
	if !ok {
		cur = strconv.Itoa(a.CurrencyCode)
	}
	return name + " (" + cur + ")"
}
