package intent

import (
	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
)

// ParsedCommand is the structured form of one utterance.
type ParsedCommand struct {
	Action       string `json:"action"`
	Params       Params `json:"parameters"`
	OriginalText string `json:"original_text"`
	Score        int    `json:"score"`
}

// IsUnknown reports whether no pattern matched.
func (pc ParsedCommand) IsUnknown() bool {
	return pc.Action == Unknown
}

// Parser combines classification and extraction.
type Parser struct {
	classifier *Classifier
	extractor  *Extractor
	lexicon    *lexicon.Lexicon
}

// NewParser builds a parser over lx.
func NewParser(lx *lexicon.Lexicon) *Parser {
	return &Parser{
		classifier: NewClassifier(lx),
		extractor:  NewExtractor(lx),
		lexicon:    lx,
	}
}

// Parse normalises text, classifies it and extracts the winning action's
// parameters. Unknown input yields action Unknown with empty Params.
func (p *Parser) Parse(text string) ParsedCommand {
	norm := Normalize(text)
	pc := ParsedCommand{Action: Unknown, OriginalText: text}
	if norm == "" {
		return pc
	}
	action, score := p.classifier.Classify(norm)
	if action == Unknown {
		return pc
	}
	pc.Action = action
	pc.Score = score
	pc.Params = p.extractor.Extract(action, norm)
	return pc
}

// Explain returns every pattern that matched the normalised text.
func (p *Parser) Explain(text string) []Match {
	return p.classifier.ClassifyAll(Normalize(text))
}

// Lexicon returns the table the parser was built on.
func (p *Parser) Lexicon() *lexicon.Lexicon {
	return p.lexicon
}

// Extractor exposes the parameter extractor, used for rule introspection.
func (p *Parser) Extractor() *Extractor {
	return p.extractor
}
