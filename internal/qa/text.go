package qa

import "strings"

// Language identifies the language a question and its course material use.
type Language string

const (
	LanguageEN Language = "EN"
	LanguageDE Language = "DE"
)

// unknownSentinels lists, per language, answers the QA model emits when it
// cannot answer from the supplied document. Matched case-insensitively
// against the cleaned answer.
var unknownSentinels = map[Language][]string{
	LanguageEN: {"unknown", "unknown."},
	LanguageDE: {"unbekannt", "unbekannt."},
}

// Clean trims surrounding whitespace from question or answer text. No other
// normalization is applied, so Clean(Clean(s)) == Clean(s).
func Clean(text string) string {
	return strings.TrimSpace(text)
}

// CheckAnswerValidity reports whether a cleaned model answer is usable.
// Empty answers and the language's "unknown" sentinel are rejected; the
// sentinel check is scoped to the request language, so an English "unknown"
// passes for a German request.
func CheckAnswerValidity(answer string, language Language) bool {
	if answer == "" {
		return false
	}
	lowered := strings.ToLower(answer)
	for _, sentinel := range unknownSentinels[language] {
		if lowered == sentinel {
			return false
		}
	}
	return true
}
