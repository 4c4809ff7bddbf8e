package prompt

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseResult carries the validated reflection data extracted from a raw
// model response. It is always populated: when nothing can be recovered the
// fields hold fixed generic content and Err is set.
type ParseResult struct {
	Insights  []string
	Questions []string
	Themes    []string
	// Fallback is true when the data came from the heuristic line scanner
	// or the fixed generic pair rather than a structured JSON payload.
	Fallback bool
	// Err describes why structured parsing failed. A non-empty Err never
	// means the result is unusable.
	Err string
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	bulletRe     = regexp.MustCompile(`^[•\-\*]\s*|^\d+[\.)]\s*`)
)

// Parse extracts reflection data from the raw model output. Strategies, in
// order: the whole text as one JSON object; the first balanced brace object;
// a fenced code block. Payloads missing any of the three required fields are
// rejected. When no strategy succeeds, bullet and numbered lines are scanned
// heuristically; when even that recovers nothing, a fixed generic pair is
// returned with Err set.
func (e *Engine) Parse(raw string) ParseResult {
	text := strings.TrimSpace(raw)
	if text == "" {
		return e.genericFallback("empty response from model")
	}

	for _, candidate := range e.jsonCandidates(text) {
		if res, ok := e.tryPayload(candidate); ok {
			return res
		}
	}
	return e.scanLines(text)
}

// jsonCandidates returns substrings worth attempting as JSON, best first.
func (e *Engine) jsonCandidates(text string) []string {
	cands := []string{text}
	if obj := firstBalancedObject(text); obj != "" {
		cands = append(cands, obj)
	}
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		cands = append(cands, m[1])
	}
	return cands
}

// tryPayload decodes one candidate and validates the required fields.
func (e *Engine) tryPayload(candidate string) (ParseResult, bool) {
	var data map[string]any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return ParseResult{}, false
	}
	for _, key := range []string{"insights", "questions", "themes"} {
		if _, ok := data[key]; !ok {
			return ParseResult{}, false
		}
	}
	res := ParseResult{
		Insights:  e.cleanInsights(stringList(data["insights"])),
		Questions: e.cleanQuestions(stringList(data["questions"])),
		Themes:    e.cleanThemes(stringList(data["themes"])),
	}
	return res, true
}

// firstBalancedObject returns the first brace-balanced JSON object in the
// text, tolerating braces inside string literals.
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// scanLines is the heuristic fallback: bullet or numbered lines become
// insights, or questions when they end with a question mark.
func (e *Engine) scanLines(text string) ParseResult {
	var insights, questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !bulletRe.MatchString(line) {
			continue
		}
		cleaned := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
		switch {
		case strings.HasSuffix(cleaned, "?"):
			questions = append(questions, cleaned)
		case len(cleaned) > 10:
			insights = append(insights, cleaned)
		}
	}
	if len(insights) == 0 && len(questions) == 0 {
		return e.genericFallback("no structured data in model response")
	}
	return ParseResult{
		Insights:  capList(insights, e.cfg.MaxInsights),
		Questions: capList(questions, e.cfg.MaxQuestions),
		Themes:    []string{"reflection", "personal_growth"},
		Fallback:  true,
	}
}

func (e *Engine) genericFallback(reason string) ParseResult {
	return ParseResult{
		Insights:  []string{"Your journal entry shows thoughtful reflection on your experiences."},
		Questions: []string{"What aspects of this experience would you like to explore further?"},
		Themes:    []string{"reflection"},
		Fallback:  true,
		Err:       reason,
	}
}

// stringList coerces a decoded JSON value into its string elements,
// discarding anything else.
func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func capList(in []string, max int) []string {
	if len(in) > max {
		return in[:max]
	}
	return in
}

func (e *Engine) cleanInsights(in []string) []string {
	out := make([]string, 0, e.cfg.MaxInsights)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if len(s) > 10 {
			out = append(out, s)
		}
		if len(out) == e.cfg.MaxInsights {
			break
		}
	}
	return out
}

func (e *Engine) cleanQuestions(in []string) []string {
	out := make([]string, 0, e.cfg.MaxQuestions)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if len(s) <= 5 {
			continue
		}
		if !strings.HasSuffix(s, "?") {
			s += "?"
		}
		out = append(out, s)
		if len(out) == e.cfg.MaxQuestions {
			break
		}
	}
	return out
}

var themeStripRe = regexp.MustCompile(`[^a-z0-9\s]`)

func (e *Engine) cleanThemes(in []string) []string {
	out := make([]string, 0, e.cfg.MaxThemes)
	for _, s := range in {
		s = themeStripRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "")
		s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), "_")
		if s != "" {
			out = append(out, s)
		}
		if len(out) == e.cfg.MaxThemes {
			break
		}
	}
	return out
}
