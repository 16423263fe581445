package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitText_ShortUnchanged(t *testing.T) {
	got := splitText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitText_RespectsLimit(t *testing.T) {
	line := strings.Repeat("я", 30) + "\n"
	s := strings.Repeat(line, 20)
	chunks := splitText(s, 100, "")
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 100 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d keeps trailing newline", i)
		}
	}
	if got := strings.Join(chunks, "\n"); got != strings.TrimRight(s, "\n") {
		t.Fatalf("content lost on rejoin")
	}
}

func TestSplitText_PrefersBlankLine(t *testing.T) {
	s := strings.Repeat("a", 40) + "\n\n" + strings.Repeat("b", 20) + "\n" + strings.Repeat("c", 50)
	chunks := splitText(s, 80, "")
	if chunks[0] != strings.Repeat("a", 40) {
		t.Fatalf("first chunk = %q", chunks[0])
	}
}

func TestSplitText_HTMLNoBrokenTag(t *testing.T) {
	s := strings.Repeat("x", 45) + "<b>bold</b>" + strings.Repeat("y", 40)
	chunks := splitText(s, 50, "HTML")
	for i, c := range chunks {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("chunk %d splits a tag: %q", i, c)
		}
	}
}
