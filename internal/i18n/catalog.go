// Package i18n loads the embedded display string tables and exposes them through
// golang.org/x/text printers.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the fallback for missing locales and keys.
const BaseLocale = "en-US"

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds every locale's messages and a compiled x/text catalog.
type Bundle struct {
	locales map[string]map[string]string
	tags    map[string]language.Tag
	builder *catalog.Builder
	matcher language.Matcher
	matched []string
	ordered []string
}

//go:embed locales/*/*.yaml
var embeddedFS embed.FS

// LoadEmbedded loads the string tables shipped with the binary.
func LoadEmbedded() (*Bundle, error) {
	return LoadFromFS(embeddedFS)
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{
		locales: map[string]map[string]string{},
		tags:    map[string]language.Tag{},
	}
	for _, p := range paths {
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", p, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", p, err)
		}
		if err := b.add(p, file); err != nil {
			return nil, err
		}
	}
	if _, ok := b.locales[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	if err := b.compile(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) add(p string, file catalogFile) error {
	localeFromPath := path.Base(path.Dir(p))
	namespaceFromPath := strings.TrimSuffix(path.Base(p), path.Ext(p))

	locale := strings.TrimSpace(file.Locale)
	if locale == "" {
		return fmt.Errorf("catalog %s: locale is required", p)
	}
	if locale != localeFromPath {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", p, locale, localeFromPath)
	}
	if strings.TrimSpace(file.Namespace) != namespaceFromPath {
		return fmt.Errorf("catalog %s: namespace %q must match filename %q", p, file.Namespace, namespaceFromPath)
	}
	if len(file.Messages) == 0 {
		return fmt.Errorf("catalog %s: messages are required", p)
	}

	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("catalog %s: parse locale tag: %w", p, err)
	}

	messages, ok := b.locales[locale]
	if !ok {
		messages = map[string]string{}
		b.locales[locale] = messages
		b.tags[locale] = tag
	}
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", p)
		}
		if !strings.HasPrefix(key, file.Namespace+".") {
			return fmt.Errorf("catalog %s: key %q must start with %q", p, key, file.Namespace+".")
		}
		if _, dup := messages[key]; dup {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", p, key, locale)
		}
		messages[key] = value
	}
	return nil
}

func (b *Bundle) compile() error {
	b.builder = catalog.NewBuilder(catalog.Fallback(b.tags[BaseLocale]))

	b.ordered = make([]string, 0, len(b.locales))
	for locale := range b.locales {
		b.ordered = append(b.ordered, locale)
	}
	sort.Strings(b.ordered)

	// The base locale goes first so it wins ties in the matcher.
	supported := []language.Tag{b.tags[BaseLocale]}
	b.matched = []string{BaseLocale}
	for _, locale := range b.ordered {
		if locale != BaseLocale {
			supported = append(supported, b.tags[locale])
			b.matched = append(b.matched, locale)
		}
		for key, value := range b.locales[locale] {
			if err := b.builder.SetString(b.tags[locale], key, value); err != nil {
				return fmt.Errorf("register %s/%s: %w", locale, key, err)
			}
		}
	}
	b.matcher = language.NewMatcher(supported)
	return nil
}

// Locales returns the available locale ids, sorted.
func (b *Bundle) Locales() []string {
	return append([]string(nil), b.ordered...)
}

// HasLocale reports whether locale has its own table.
func (b *Bundle) HasLocale(locale string) bool {
	_, ok := b.locales[strings.TrimSpace(locale)]
	return ok
}

// Resolve returns locale if it is supported, else BaseLocale.
func (b *Bundle) Resolve(locale string) string {
	locale = strings.TrimSpace(locale)
	if b.HasLocale(locale) {
		return locale
	}
	return BaseLocale
}

// Match picks the best supported locale for an Accept-Language header value.
func (b *Bundle) Match(acceptLanguage string) string {
	if strings.TrimSpace(acceptLanguage) == "" {
		return BaseLocale
	}
	_, index, confidence := b.matcher.Match(parseAccept(acceptLanguage)...)
	if confidence == language.No {
		return BaseLocale
	}
	if index < 0 || index >= len(b.matched) {
		return BaseLocale
	}
	return b.matched[index]
}

func parseAccept(header string) []language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return []language.Tag{language.Und}
	}
	return tags
}

// Printer formats messages for locale, falling back to BaseLocale.
func (b *Bundle) Printer(locale string) *message.Printer {
	return message.NewPrinter(b.tags[b.Resolve(locale)], message.Catalog(b.builder))
}

// Message returns the raw, unformatted message with base-locale fallback.
func (b *Bundle) Message(locale, key string) (string, bool) {
	key = strings.TrimSpace(key)
	if messages, ok := b.locales[strings.TrimSpace(locale)]; ok {
		if v, ok := messages[key]; ok {
			return v, true
		}
	}
	v, ok := b.locales[BaseLocale][key]
	return v, ok
}

// Messages returns a copy of the raw table for locale, with base-locale keys filled in.
func (b *Bundle) Messages(locale string) map[string]string {
	out := make(map[string]string, len(b.locales[BaseLocale]))
	for k, v := range b.locales[BaseLocale] {
		out[k] = v
	}
	for k, v := range b.locales[strings.TrimSpace(locale)] {
		out[k] = v
	}
	return out
}

// MissingKeys lists base-locale keys that locale does not translate.
func (b *Bundle) MissingKeys(locale string) []string {
	own := b.locales[strings.TrimSpace(locale)]
	var missing []string
	for key := range b.locales[BaseLocale] {
		if _, ok := own[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
