// Package intent turns normalised text into a ParsedCommand: a named action,
// its extracted parameters and the score of the pattern that won.
package intent

import (
	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
)

// Unknown is the action reported when no pattern matches.
const Unknown = "unknown"

// Match is one pattern that occurred in the text.
type Match struct {
	Action   string `json:"action"`
	Language string `json:"language"`
	Pattern  string `json:"pattern"`
	Score    int    `json:"score"`
}

// Classifier picks the action whose longest matching pattern scores highest.
// It holds no mutable state.
type Classifier struct {
	patterns []lexicon.Pattern
}

// NewClassifier captures the table's patterns in evaluation order.
func NewClassifier(lx *lexicon.Lexicon) *Classifier {
	return &Classifier{patterns: lx.Patterns()}
}

// outranks decides whether candidate replaces best. Only a strictly higher
// score wins, so ties go to the match seen first.
func outranks(candidate, best Match) bool {
	return candidate.Score > best.Score
}

// Classify returns the winning action and its score, or (Unknown, 0).
func (c *Classifier) Classify(text string) (string, int) {
	best := Match{Action: Unknown}
	for _, p := range c.patterns {
		if !p.Match(text) {
			continue
		}
		m := Match{Action: p.Action, Language: p.Language, Pattern: p.Source, Score: p.Score()}
		if outranks(m, best) {
			best = m
		}
	}
	return best.Action, best.Score
}

// ClassifyAll returns every match in evaluation order.
func (c *Classifier) ClassifyAll(text string) []Match {
	var out []Match
	for _, p := range c.patterns {
		if p.Match(text) {
			out = append(out, Match{Action: p.Action, Language: p.Language, Pattern: p.Source, Score: p.Score()})
		}
	}
	return out
}
