package extract

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"crlf to lf", "a\r\nb\r\nc", "a\nb\nc"},
		{"bare cr to lf", "a\rb", "a\nb"},
		{"trailing spaces stripped", "line one   \nline two\t \n", "line one\nline two"},
		{"blank runs collapse to two", "a\n\n\n\n\nb", "a\n\n\nb"},
		{"control chars stripped", "he\x00llo\x07 world", "hello world"},
		{"inner runs collapse", "a    b  \t c", "a b c"},
		{"tabs collapse to space", "col1\tcol2", "col1 col2"},
		{"outer whitespace trimmed", "\n\n  text  \n\n", "text"},
		{"cjk untouched", "苹果公司成立于1976年。", "苹果公司成立于1976年。"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	in := "Title\r\n\r\n\r\n\r\nBody text here.   \r\nMore.\r"
	first := Normalize(in)
	if Normalize(in) != first {
		t.Error("normalization must be deterministic")
	}
	if Normalize(first) != first {
		t.Error("normalization must be idempotent")
	}
}
