package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// QuizLanguages are the languages offered for generated quizzes.
var QuizLanguages = []string{"en", "ru", "de", "fr", "es", "it", "pt", "uk"}

// LanguageName returns the name of a language in that language, e.g.
// "русский" for "ru". Unparseable codes are returned unchanged.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.Self.Name(tag); name != "" {
		return name
	}
	return code
}

// EnglishName returns the English name of a language, as used in prompts.
// An empty code means English.
func EnglishName(code string) string {
	if code == "" {
		return "English"
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}
