package stream

import (
	"strings"
	"testing"
)

func TestFieldExtractor(t *testing.T) {
	t.Run("whole document in one chunk", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		ex.Feed(`{"title": "x", "draft": "hello world", "other": 1}`)

		if got.String() != "hello world" {
			t.Errorf("extracted %q", got.String())
		}
		if !ex.Done() {
			t.Error("extractor not done")
		}
	})

	t.Run("key split across chunks", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		ex.Feed(`{"dr`)
		ex.Feed(`aft": "val`)
		ex.Feed(`ue"}`)

		if got.String() != "value" {
			t.Errorf("extracted %q", got.String())
		}
	})

	t.Run("byte at a time", func(t *testing.T) {
		doc := `{"draft": "abc"}`
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		for i := 0; i < len(doc); i++ {
			ex.Feed(doc[i : i+1])
		}
		if got.String() != "abc" {
			t.Errorf("extracted %q", got.String())
		}
	})

	t.Run("escapes unescaped", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		ex.Feed(`{"draft": "line1\nline2\ttab \"quoted\" slash\/ back\\"}`)

		want := "line1\nline2\ttab \"quoted\" slash/ back\\"
		if got.String() != want {
			t.Errorf("extracted %q, want %q", got.String(), want)
		}
	})

	t.Run("escape split across chunks", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		ex.Feed(`{"draft": "a\`)
		ex.Feed(`nb"}`)

		if got.String() != "a\nb" {
			t.Errorf("extracted %q", got.String())
		}
	})

	t.Run("other fields ignored", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		// "draft_title" does not match the quoted key `"draft"`.
		ex.Feed(`{"draft_title": "no", "draft": "yes"}`)

		if got.String() != "yes" {
			t.Errorf("extracted %q", got.String())
		}
	})

	t.Run("stops at closing quote", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		ex.Feed(`{"draft": "done", "extra": "ignored"}`)
		ex.Feed(`more garbage`)

		if got.String() != "done" {
			t.Errorf("extracted %q", got.String())
		}
	})

	t.Run("buffer mode withholds until complete", func(t *testing.T) {
		ex := NewFieldExtractor("draft", true, nil)
		ex.Feed(`{"draft": "partial`)

		if _, complete := ex.Result(); complete {
			t.Error("marked complete too early")
		}
		ex.Feed(` value"}`)
		value, complete := ex.Result()
		if !complete {
			t.Fatal("not complete after closing quote")
		}
		if value != "partial value" {
			t.Errorf("value %q", value)
		}
	})

	t.Run("missing key extracts nothing", func(t *testing.T) {
		var got strings.Builder
		ex := NewFieldExtractor("draft", false, func(d string) { got.WriteString(d) })
		ex.Feed(`{"title": "only"}`)

		if got.Len() != 0 || ex.Done() {
			t.Errorf("unexpected extraction %q", got.String())
		}
	})
}
