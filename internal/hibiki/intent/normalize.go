package intent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// apostrophes folds the Uzbek okina/tutuq variants onto ASCII '.
var apostrophes = strings.NewReplacer(
	"\u02bb", "'",
	"\u02bc", "'",
	"\u2018", "'",
	"\u2019", "'",
	"\u0060", "'",
	"\u00b4", "'",
)

// Normalize prepares raw input for classification: NFC composition, folded
// apostrophes, Unicode lower-casing and collapsed whitespace.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = apostrophes.Replace(text)
	// A Caser keeps state between calls and must not be shared.
	text = cases.Lower(language.Und).String(text)
	return strings.Join(strings.Fields(text), " ")
}

// titleCase capitalises every word, used for names and cities.
func titleCase(s string) string {
	return cases.Title(language.Und).String(s)
}
