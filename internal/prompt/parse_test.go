package prompt

import (
	"strings"
	"testing"
)

const validPayload = `{
	"insights": ["You are making steady progress on a long goal.", "Your frustration eased once you named it."],
	"questions": ["What helped you keep going?", "Who could support you next week"],
	"themes": ["Personal Growth", "Self-Care!"]
}`

func TestParseValidJSON(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Parse(validPayload)
	if res.Fallback || res.Err != "" {
		t.Fatalf("valid payload must not fall back: %+v", res)
	}
	if len(res.Insights) != 2 {
		t.Fatalf("expected 2 insights, got %v", res.Insights)
	}
	// order preserved
	if !strings.HasPrefix(res.Insights[0], "You are making") {
		t.Fatalf("insight order lost: %v", res.Insights)
	}
	// question mark coerced
	if res.Questions[1] != "Who could support you next week?" {
		t.Fatalf("question not coerced: %q", res.Questions[1])
	}
	// themes slugified
	if res.Themes[0] != "personal_growth" || res.Themes[1] != "selfcare" {
		t.Fatalf("themes not normalized: %v", res.Themes)
	}
}

func TestParseJSONWrappedInProse(t *testing.T) {
	e := New(DefaultConfig())
	raw := "Sure! Here is the analysis you asked for:\n" + validPayload + "\nHope this helps."
	res := e.Parse(raw)
	if res.Fallback {
		t.Fatalf("embedded object should parse: %+v", res)
	}
	if len(res.Insights) != 2 || len(res.Questions) != 2 {
		t.Fatalf("unexpected extraction: %+v", res)
	}
}

func TestParseFencedCodeBlock(t *testing.T) {
	e := New(DefaultConfig())
	raw := "```json\n" + validPayload + "\n```"
	res := e.Parse(raw)
	if res.Fallback || len(res.Insights) != 2 {
		t.Fatalf("fenced payload should parse: %+v", res)
	}
}

func TestParseMissingFieldRejected(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Parse(`{"insights": ["Something reasonably long to keep."], "questions": ["And?"]}`)
	if !res.Fallback {
		t.Fatalf("payload without themes must not be accepted: %+v", res)
	}
}

func TestParseBulletFallback(t *testing.T) {
	e := New(DefaultConfig())
	raw := "Here are my thoughts:\n- You showed real persistence through the week.\n- What would make tomorrow easier?\n1. Rest is part of the work too.\n"
	res := e.Parse(raw)
	if !res.Fallback {
		t.Fatalf("expected heuristic fallback")
	}
	if res.Err != "" {
		t.Fatalf("recoverable text must not set Err: %+v", res)
	}
	if len(res.Insights) != 2 {
		t.Fatalf("expected 2 insights, got %v", res.Insights)
	}
	if len(res.Questions) != 1 || !strings.HasSuffix(res.Questions[0], "?") {
		t.Fatalf("expected 1 question, got %v", res.Questions)
	}
}

func TestParseUnstructuredTextGenericFallback(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Parse("The model rambled on without any structure at all today.")
	if !res.Fallback || res.Err == "" {
		t.Fatalf("expected generic fallback with error flag: %+v", res)
	}
	if len(res.Insights) == 0 || len(res.Questions) == 0 {
		t.Fatalf("generic fallback must still carry content: %+v", res)
	}
}

func TestParseEmpty(t *testing.T) {
	e := New(DefaultConfig())
	res := e.Parse("   ")
	if !res.Fallback || res.Err == "" {
		t.Fatalf("empty response must yield error-flagged fallback: %+v", res)
	}
}

func TestParseCapsCounts(t *testing.T) {
	e := New(DefaultConfig())
	raw := `{"insights": ["first insight long enough", "second insight long enough", "third insight long enough", "fourth insight long enough"],
		"questions": ["one thing?", "two things?", "three things?", "four things?"],
		"themes": ["a", "b", "c", "d"]}`
	res := e.Parse(raw)
	if len(res.Insights) != 3 || len(res.Questions) != 3 || len(res.Themes) != 3 {
		t.Fatalf("counts must be capped at 3: %+v", res)
	}
}

func TestParseDiscardsTrivialStrings(t *testing.T) {
	e := New(DefaultConfig())
	raw := `{"insights": ["short", "This one is long enough to keep around."], "questions": ["?", "A real question here?"], "themes": [""]}`
	res := e.Parse(raw)
	if len(res.Insights) != 1 || len(res.Questions) != 1 || len(res.Themes) != 0 {
		t.Fatalf("trivial entries must be discarded: %+v", res)
	}
}

func TestFirstBalancedObjectHandlesStrings(t *testing.T) {
	text := `prefix {"a": "brace } inside", "b": {"c": 1}} suffix`
	got := firstBalancedObject(text)
	want := `{"a": "brace } inside", "b": {"c": 1}}`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if firstBalancedObject("no braces here") != "" {
		t.Fatalf("expected empty result without braces")
	}
}
