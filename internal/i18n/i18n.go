// Package i18n loads the bot's message catalogues from TOML files and
// resolves messages per user language.
//
// Messages are fmt format strings. Lookups fall back to the bundle's default
// language and then to the key itself, so a missing translation shows up
// in the chat instead of failing the render.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/BurntSushi/toml"
)

//go:embed locales/*.toml
var locales embed.FS

// Language describes one available catalogue.
type Language struct {
	Code string `toml:"code"`
	Name string `toml:"name"`
}

type catalogue struct {
	Language
	Messages map[string]string `toml:"messages"`
}

// Bundle holds every loaded catalogue.
type Bundle struct {
	fallback   string
	catalogues map[string]catalogue
	languages  []Language
}

// Load reads the embedded catalogues.
func Load(fallback string) (*Bundle, error) {
	return LoadFS(locales, "locales", fallback)
}

// LoadFS reads every *.toml file in dir of fsys.
func LoadFS(fsys fs.FS, dir, fallback string) (*Bundle, error) {
	files, err := fs.Glob(fsys, path.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("list locales: %w", err)
	}

	b := &Bundle{
		fallback:   fallback,
		catalogues: make(map[string]catalogue, len(files)),
	}
	for _, f := range files {
		data, err := fs.ReadFile(fsys, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}

		var c catalogue
		if err := toml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
		if c.Code == "" {
			return nil, fmt.Errorf("%s: code is required", f)
		}
		b.catalogues[c.Code] = c
		b.languages = append(b.languages, c.Language)
	}

	if _, ok := b.catalogues[fallback]; !ok {
		return nil, fmt.Errorf("fallback language %q has no catalogue", fallback)
	}

	// Default language first, the rest by code.
	sort.SliceStable(b.languages, func(i, j int) bool {
		if (b.languages[i].Code == fallback) != (b.languages[j].Code == fallback) {
			return b.languages[i].Code == fallback
		}
		return b.languages[i].Code < b.languages[j].Code
	})
	return b, nil
}

// Fallback is the default language code.
func (b *Bundle) Fallback() string {
	return b.fallback
}

// Languages lists the available catalogues.
func (b *Bundle) Languages() []Language {
	return append([]Language(nil), b.languages...)
}

// Supports reports whether lang has a catalogue.
func (b *Bundle) Supports(lang string) bool {
	_, ok := b.catalogues[lang]
	return ok
}

// Resolve returns lang if supported, the fallback otherwise.
func (b *Bundle) Resolve(lang string) string {
	if b.Supports(lang) {
		return lang
	}
	return b.fallback
}

// LanguageName returns the display name of lang.
func (b *Bundle) LanguageName(lang string) string {
	return b.catalogues[b.Resolve(lang)].Name
}

// T formats the message key in lang with args.
func (b *Bundle) T(lang, key string, args ...any) string {
	msg, ok := b.catalogues[lang].Messages[key]
	if !ok {
		msg, ok = b.catalogues[b.fallback].Messages[key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Translator binds a bundle to one language.
type Translator struct {
	bundle *Bundle
	lang   string
}

// For returns a translator for lang (resolved against the bundle).
func (b *Bundle) For(lang string) Translator {
	return Translator{bundle: b, lang: b.Resolve(lang)}
}

// Lang is the resolved language code.
func (t Translator) Lang() string {
	return t.lang
}

// T formats key in the translator's language.
func (t Translator) T(key string, args ...any) string {
	return t.bundle.T(t.lang, key, args...)
}
