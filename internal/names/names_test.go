package names

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase", "Alice", "alice"},
		{"diacritics", "Jiří Novák", "jiri novak"},
		{"dashes", "jan-novak", "jan novak"},
		{"mixed", "Éva-Marie  Dubois", "eva marie dubois"},
		{"already normalized", "alice smith", "alice smith"},
		{"empty", "", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.input); got != tc.expected {
				t.Errorf("Normalize(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestRemoveDiacritics(t *testing.T) {
	if got := RemoveDiacritics("Åsa Öström"); got != "Asa Ostrom" {
		t.Errorf("RemoveDiacritics = %q; want %q", got, "Asa Ostrom")
	}
}
