// Package lexicon loads the multilingual pattern table that drives intent
// classification, together with the protocol definitions and the curated app
// and website lists used by parameter extraction.
//
// The table is a YAML document validated against an embedded JSON schema. A
// compiled Lexicon is immutable and safe for concurrent use.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Hibiki/common/docschema"
)

//go:embed patterns.yaml
var defaultTable []byte

//go:embed schema.json
var schemaJSON []byte

// ErrInvalidTable is wrapped by every structural validation failure.
var ErrInvalidTable = errors.New("invalid pattern table")

// DefaultCategory is reported for actions that carry no category.
const DefaultCategory = "GENERAL"

var tableSchema = sync.OnceValue(func() *docschema.Schema {
	return docschema.MustCompile("lexicon.schema.json", schemaJSON)
})

// Document is the YAML form of the table.
type Document struct {
	Version   int             `yaml:"version"`
	Languages []LanguageEntry `yaml:"languages"`
	Protocols []Protocol      `yaml:"protocols"`
	Apps      []string        `yaml:"apps"`
	Websites  []Website       `yaml:"websites"`
}

// LanguageEntry holds the ordered action list of one language.
type LanguageEntry struct {
	Code    string        `yaml:"code"`
	Actions []ActionEntry `yaml:"actions"`
}

// ActionEntry binds patterns to an action.
type ActionEntry struct {
	Action   string   `yaml:"action"`
	Category string   `yaml:"category"`
	Patterns []string `yaml:"patterns"`
}

// Protocol is a named sequence of steps run one after the other.
type Protocol struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Steps    []Step   `yaml:"steps"`
}

// Step is one action of a protocol. Params are applied in key order.
type Step struct {
	Action string            `yaml:"action"`
	Params map[string]string `yaml:"params"`
}

// ParamKeys returns the step's parameter names sorted.
func (s Step) ParamKeys() []string {
	keys := make([]string, 0, len(s.Params))
	for k := range s.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Website maps a spoken site name to its URL.
type Website struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Pattern is one compiled entry of the table.
type Pattern struct {
	Action   string
	Language string
	Source   string
	re       *regexp.Regexp
}

// Match reports whether the pattern occurs anywhere in text.
func (p Pattern) Match(text string) bool {
	return p.re.MatchString(text)
}

// Score is the rune length of the pattern source.
func (p Pattern) Score() int {
	return utf8.RuneCountInString(p.Source)
}

// Lexicon is a compiled pattern table.
type Lexicon struct {
	patterns   []Pattern
	categories map[string]string
	actions    []string
	protocols  []Protocol
	apps       []string
	websites   []Website
}

var defaultLexicon = sync.OnceValues(func() (*Lexicon, error) {
	return Parse(defaultTable)
})

// Default returns the embedded table. It is compiled once per process.
func Default() (*Lexicon, error) {
	return defaultLexicon()
}

// Load reads and compiles a table from path.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	lx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lx, nil
}

// LoadOrDefault loads path, or returns the embedded table when path is empty.
func LoadOrDefault(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	return Load(path)
}

// Parse validates a YAML table against the schema and compiles it.
func Parse(data []byte) (*Lexicon, error) {
	if err := tableSchema().ValidateYAML(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("lexicon parse: %w", err)
	}
	return Compile(doc)
}

// Compile checks the cross-references the schema cannot express and compiles
// every pattern.
func Compile(doc Document) (*Lexicon, error) {
	lx := &Lexicon{
		categories: make(map[string]string),
		protocols:  doc.Protocols,
		apps:       doc.Apps,
		websites:   doc.Websites,
	}

	// ── Languages ────────────────────────────────────────────────────────────
	seenLang := make(map[string]struct{}, len(doc.Languages))
	for li, lang := range doc.Languages {
		if _, dup := seenLang[lang.Code]; dup {
			return nil, fmt.Errorf("%w: languages[%d]: duplicate code %q", ErrInvalidTable, li, lang.Code)
		}
		seenLang[lang.Code] = struct{}{}

		for ai, entry := range lang.Actions {
			if prev, ok := lx.categories[entry.Action]; ok {
				if entry.Category != "" && prev != entry.Category {
					return nil, fmt.Errorf("%w: %s.actions[%d] (%q): category %q conflicts with %q",
						ErrInvalidTable, lang.Code, ai, entry.Action, entry.Category, prev)
				}
			} else {
				cat := entry.Category
				if cat == "" {
					cat = DefaultCategory
				}
				lx.categories[entry.Action] = cat
				lx.actions = append(lx.actions, entry.Action)
			}

			for pi, src := range entry.Patterns {
				re, err := regexp.Compile("(?i)" + src)
				if err != nil {
					return nil, fmt.Errorf("%w: %s.actions[%d].patterns[%d] %q: %v",
						ErrInvalidTable, lang.Code, ai, pi, src, err)
				}
				lx.patterns = append(lx.patterns, Pattern{
					Action:   entry.Action,
					Language: lang.Code,
					Source:   src,
					re:       re,
				})
			}
		}
	}

	// ── Protocols ────────────────────────────────────────────────────────────
	seenProto := make(map[string]struct{}, len(doc.Protocols))
	for i, p := range doc.Protocols {
		if _, dup := seenProto[p.Name]; dup {
			return nil, fmt.Errorf("%w: protocols[%d]: duplicate name %q", ErrInvalidTable, i, p.Name)
		}
		seenProto[p.Name] = struct{}{}
		for si, step := range p.Steps {
			if _, ok := lx.categories[step.Action]; !ok {
				return nil, fmt.Errorf("%w: protocols[%d] (%q).steps[%d]: unknown action %q",
					ErrInvalidTable, i, p.Name, si, step.Action)
			}
		}
	}

	return lx, nil
}

// Patterns returns every pattern in evaluation order: language order, then
// action entry order, then pattern order.
func (lx *Lexicon) Patterns() []Pattern {
	out := make([]Pattern, len(lx.patterns))
	copy(out, lx.patterns)
	return out
}

// Actions lists every action named by the table in first-seen order.
func (lx *Lexicon) Actions() []string {
	out := make([]string, len(lx.actions))
	copy(out, lx.actions)
	return out
}

// Has reports whether the table defines action.
func (lx *Lexicon) Has(action string) bool {
	_, ok := lx.categories[action]
	return ok
}

// Category returns the category of action, DefaultCategory if it has none.
func (lx *Lexicon) Category(action string) string {
	if c, ok := lx.categories[action]; ok {
		return c
	}
	return DefaultCategory
}

// Protocol looks up a protocol by name.
func (lx *Lexicon) Protocol(name string) (Protocol, bool) {
	for _, p := range lx.protocols {
		if p.Name == name {
			return p, true
		}
	}
	return Protocol{}, false
}

// Protocols returns the protocols in table order.
func (lx *Lexicon) Protocols() []Protocol {
	out := make([]Protocol, len(lx.protocols))
	copy(out, lx.protocols)
	return out
}

// Apps returns the curated application names in table order.
func (lx *Lexicon) Apps() []string {
	out := make([]string, len(lx.apps))
	copy(out, lx.apps)
	return out
}

// Websites returns the known sites in table order.
func (lx *Lexicon) Websites() []Website {
	out := make([]Website, len(lx.websites))
	copy(out, lx.websites)
	return out
}
