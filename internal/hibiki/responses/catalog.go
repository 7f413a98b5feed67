// Package responses turns an action outcome into the sentence Hibiki speaks.
//
// Templates live in an embedded YAML catalog, one block per locale, and are
// validated against an embedded JSON schema when loaded. Each action maps to
// a list of interchangeable templates; the Catalog picks one per call.
package responses

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Hibiki/common/docschema"
)

//go:embed catalog.yaml
var defaultCatalog []byte

//go:embed schema.json
var catalogSchemaJSON []byte

var catalogSchema = sync.OnceValue(func() *docschema.Schema {
	return docschema.MustCompile("responses.schema.json", catalogSchemaJSON)
})

// ErrInvalidCatalog is wrapped by every catalog load failure.
var ErrInvalidCatalog = errors.New("invalid response catalog")

// Template keys for outcomes that are not a plain success.
const (
	KeyDenied           = "security_denied"
	KeyConfirmation     = "request_confirmation"
	KeyNothingToConfirm = "nothing_to_confirm"
	KeyEmergency        = "emergency"
	KeyError            = "error"
	KeyUnknown          = "unknown"
)

// statusKeys maps outcome statuses to template keys. "success" uses the
// action's own templates.
var statusKeys = map[string]string{
	"denied":                KeyDenied,
	"confirmation_required": KeyConfirmation,
	"nothing_to_confirm":    KeyNothingToConfirm,
	"emergency":             KeyEmergency,
	"error":                 KeyError,
	"unknown":               KeyUnknown,
}

// fieldAliases lets callers pass parameter names instead of placeholder names.
var fieldAliases = map[string]string{
	"app_name": "app",
	"url":      "site",
	"result":   "res",
}

// Document is the YAML shape of a catalog.
type Document struct {
	Version       int               `yaml:"version"`
	DefaultLocale string            `yaml:"default_locale"`
	DefaultUser   string            `yaml:"default_user"`
	Locales       map[string]Locale `yaml:"locales"`
}

// Locale holds the templates of one language.
type Locale struct {
	Done      string              `yaml:"done"`
	Failure   string              `yaml:"failure"`
	Greetings map[string][]string `yaml:"greetings"`
	Actions   map[string][]string `yaml:"actions"`
}

// Catalog formats responses. It is safe for concurrent use.
type Catalog struct {
	doc  Document
	mu   sync.Mutex
	pick func(n int) int
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPicker replaces the random template choice. pick receives the number of
// candidates and returns an index.
func WithPicker(pick func(n int) int) Option {
	return func(c *Catalog) { c.pick = pick }
}

// Default returns the embedded catalog.
func Default(opts ...Option) (*Catalog, error) {
	return Parse(defaultCatalog, opts...)
}

// Load reads a catalog from path.
func Load(path string, opts ...Option) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read response catalog %s: %w", path, err)
	}
	c, err := Parse(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("response catalog %s: %w", path, err)
	}
	return c, nil
}

// LoadOrDefault loads path, or the embedded catalog when path is empty.
func LoadOrDefault(path string, opts ...Option) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(opts...)
	}
	return Load(path, opts...)
}

// Parse validates and decodes a YAML catalog.
func Parse(data []byte, opts ...Option) (*Catalog, error) {
	if err := catalogSchema().ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if _, ok := doc.Locales[doc.DefaultLocale]; !ok {
		return nil, fmt.Errorf("%w: default locale %q has no templates", ErrInvalidCatalog, doc.DefaultLocale)
	}
	if doc.DefaultUser == "" {
		doc.DefaultUser = "Janob"
	}
	c := &Catalog{doc: doc, pick: rand.IntN}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DefaultLocale is the locale used for unknown or empty locale codes.
func (c *Catalog) DefaultLocale() string {
	return c.doc.DefaultLocale
}

// Has reports whether the catalog carries templates for locale.
func (c *Catalog) Has(locale string) bool {
	_, ok := c.doc.Locales[locale]
	return ok
}

// Format renders the reply for an outcome. fields fill placeholders; both
// placeholder names ("app") and parameter names ("app_name") are accepted.
// Placeholders nobody filled are replaced with their defaults.
func (c *Catalog) Format(action, status, locale string, fields map[string]string) string {
	loc, code := c.locale(locale)

	var tmpl string
	switch key, special := statusKeys[status]; {
	case status == "success":
		tmpl = c.choose(c.templates(code, action), loc.Done)
	case special:
		tmpl = c.choose(c.templates(code, key), loc.Failure)
	default:
		tmpl = loc.Failure
	}
	return c.fill(tmpl, fields)
}

// Greeting returns a time-of-day greeting for hour (0-23).
func (c *Catalog) Greeting(locale string, hour int, fields map[string]string) string {
	_, code := c.locale(locale)
	var part string
	switch {
	case hour >= 5 && hour < 12:
		part = "morning"
	case hour >= 12 && hour < 18:
		part = "afternoon"
	case hour >= 18 && hour < 22:
		part = "evening"
	default:
		part = "night"
	}
	list := c.doc.Locales[code].Greetings[part]
	if len(list) == 0 {
		list = c.doc.Locales[c.doc.DefaultLocale].Greetings[part]
	}
	return c.fill(c.choose(list, ""), fields)
}

func (c *Catalog) locale(code string) (Locale, string) {
	if loc, ok := c.doc.Locales[code]; ok {
		return loc, code
	}
	return c.doc.Locales[c.doc.DefaultLocale], c.doc.DefaultLocale
}

// templates looks key up in locale code, then in the default locale.
func (c *Catalog) templates(code, key string) []string {
	if list := c.doc.Locales[code].Actions[key]; len(list) > 0 {
		return list
	}
	return c.doc.Locales[c.doc.DefaultLocale].Actions[key]
}

func (c *Catalog) choose(list []string, fallback string) string {
	if len(list) == 0 {
		return fallback
	}
	c.mu.Lock()
	i := c.pick(len(list))
	c.mu.Unlock()
	if i < 0 || i >= len(list) {
		i = 0
	}
	return list[i]
}

func (c *Catalog) fill(tmpl string, fields map[string]string) string {
	values := map[string]string{
		"user":          c.doc.DefaultUser,
		"app":           "App",
		"site":          "Website",
		"query":         "",
		"res":           "",
		"error_message": "",
	}
	for k, v := range fields {
		if alias, ok := fieldAliases[k]; ok {
			k = alias
		}
		if k == "user" && v == "" {
			continue
		}
		values[k] = v
	}
	pairs := make([]string, 0, 2*len(values))
	for k, v := range values {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}
