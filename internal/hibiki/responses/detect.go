package responses

import (
	"strings"

	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
)

var languageMarkers = map[string][]string{
	"uz": {"och", "yop", "qidir", "yarat", "yoz", "soat", "necha", "bugun", "boshla", "to'xtat"},
	"ru": {"открой", "закрой", "поиск", "создай", "время", "дата", "начни", "стоп"},
	"en": {"open", "close", "search", "create", "time", "date", "start", "stop"},
}

// DetectLanguage guesses the locale of text by counting marker words. Uzbek
// wins ties and is the answer when nothing matches.
func DetectLanguage(text string) string {
	return DetectLanguageOr(text, "uz")
}

// DetectLanguageOr is DetectLanguage with a caller-chosen answer for text
// that carries no marker at all.
func DetectLanguageOr(text, fallback string) string {
	norm := intent.Normalize(text)
	count := func(lang string) int {
		n := 0
		for _, w := range languageMarkers[lang] {
			if strings.Contains(norm, w) {
				n++
			}
		}
		return n
	}
	uz, ru, en := count("uz"), count("ru"), count("en")
	switch {
	case uz > 0 && uz >= max(ru, en):
		return "uz"
	case ru > 0 && ru > en:
		return "ru"
	case en > 0:
		return "en"
	}
	return fallback
}
