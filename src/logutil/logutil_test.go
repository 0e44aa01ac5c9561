package logutil

import "testing"

func TestRedactKey(t *testing.T) {
	if got := RedactKey("short"); got != "********" {
		t.Errorf("Expected short keys fully masked, got %q", got)
	}
	if got := RedactKey("b14a01cd9e716535"); got != "b14a...6535" {
		t.Errorf("Unexpected redaction %q", got)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{name: "Plain", in: "Hello", out: "Hello"},
		{name: "Newlines", in: "a\nb\r\nc", out: "a\\nb\\n\\nc"},
		{name: "Tabs and control", in: "a\tb\x01", out: "a\\tb?"},
		{name: "Multibyte kept whole", in: "你好", out: "你好"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeText(tt.in); got != tt.out {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.out)
			}
		})
	}

	long := make([]rune, 150)
	for i := range long {
		long[i] = '字'
	}
	got := []rune(SanitizeText(string(long)))
	if len(got) != maxLogLength+3 {
		t.Errorf("Expected truncation to %d runes plus ellipsis, got %d", maxLogLength, len(got))
	}
}
