package util

import "testing"

func TestOnlyDigits(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain digits", "5511999998888", "5511999998888"},
		{"formatted number", "+55 (11) 99999-8888", "5511999998888"},
		{"jid suffix", "5511999998888@c.us", "5511999998888"},
		{"no digits", "abc", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OnlyDigits(tt.input); got != tt.expected {
				t.Errorf("OnlyDigits(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"already prefixed", "5511999998888", "5511999998888"},
		{"missing country code", "11999998888", "5511999998888"},
		{"formatted with plus", "+55 11 99999-8888", "5511999998888"},
		{"empty", "", ""},
		{"punctuation only", "()-", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizePhone(tt.input); got != tt.expected {
				t.Errorf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  MENU  "); got != "menu" {
		t.Errorf("NormalizeText = %q, want %q", got, "menu")
	}
}

func TestFirstName(t *testing.T) {
	if got := FirstName("Maria Clara Souza"); got != "Maria" {
		t.Errorf("FirstName = %q, want %q", got, "Maria")
	}
	if got := FirstName("   "); got != "" {
		t.Errorf("FirstName of blank = %q, want empty", got)
	}
}
