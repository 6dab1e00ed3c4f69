package qa

import "testing"

func TestCleanIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "What is osmosis?", "What is osmosis?"},
		{"surrounding whitespace", "  What is osmosis? \n", "What is osmosis?"},
		{"tabs", "\tWhat is osmosis?\t", "What is osmosis?"},
		{"inner whitespace kept", "What  is   osmosis?", "What  is   osmosis?"},
		{"empty", "   ", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cleaned := Clean(tc.input)
			if cleaned != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, cleaned)
			}
			if again := Clean(cleaned); again != cleaned {
				t.Fatalf("clean not idempotent: %q became %q", cleaned, again)
			}
		})
	}
}

func TestCheckAnswerValidity(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		language Language
		valid    bool
	}{
		{"empty", "", LanguageEN, false},
		{"english unknown", "unknown", LanguageEN, false},
		{"english unknown dotted", "Unknown.", LanguageEN, false},
		{"english unknown uppercase", "UNKNOWN.", LanguageEN, false},
		{"german unbekannt", "Unbekannt", LanguageDE, false},
		{"german unbekannt dotted", "unbekannt.", LanguageDE, false},
		{"english unknown under german", "unknown", LanguageDE, true},
		{"german unbekannt under english", "unbekannt", LanguageEN, true},
		{"real answer", "The mitochondria is the powerhouse of the cell", LanguageEN, true},
		{"sentinel as prefix", "unknown compound", LanguageEN, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CheckAnswerValidity(tc.answer, tc.language); got != tc.valid {
				t.Fatalf("expected %v got %v", tc.valid, got)
			}
		})
	}
}
