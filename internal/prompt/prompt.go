// Package prompt builds inference prompts from journal entries and parses
// the model's raw output into validated reflection data. Model output is
// adversarial-by-unreliability: it may wrap JSON in prose, omit fields or
// emit invalid JSON, so parsing degrades through several strategies instead
// of failing outright.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
)

// Config bounds prompt construction and response sanitization.
type Config struct {
	MaxContentLength int // max characters taken from the journal entry
	MinContentLength int // below this no prompt is built
	MinWords         int
	MaxInsights      int
	MaxQuestions     int
	MaxThemes        int
}

// DefaultConfig returns the documented limits.
func DefaultConfig() Config {
	return Config{
		MaxContentLength: 2000,
		MinContentLength: 50,
		MinWords:         10,
		MaxInsights:      3,
		MaxQuestions:     3,
		MaxThemes:        3,
	}
}

// Engine builds prompts and parses model responses.
type Engine struct {
	cfg Config
}

// New constructs an Engine; zero limits fall back to defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = def.MaxContentLength
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = def.MinContentLength
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = def.MinWords
	}
	if cfg.MaxInsights <= 0 {
		cfg.MaxInsights = def.MaxInsights
	}
	if cfg.MaxQuestions <= 0 {
		cfg.MaxQuestions = def.MaxQuestions
	}
	if cfg.MaxThemes <= 0 {
		cfg.MaxThemes = def.MaxThemes
	}
	return &Engine{cfg: cfg}
}

var whitespaceRe = regexp.MustCompile(`\s+`)

const reflectionTemplate = `You are a thoughtful and empathetic journaling companion. Your role is to help people gain deeper insights into their thoughts and experiences through reflective analysis.

Analyze the following journal entry and provide meaningful insights, thoughtful questions, and identify key themes. Focus on emotional intelligence, self-awareness, and personal growth opportunities.

%sJournal Entry:
%s

Please respond in this exact JSON format:
{
    "insights": [
        "First key insight about the writer's thoughts, feelings, or situation",
        "Second insight about patterns, connections, people, and relationships"
    ],
    "questions": [
        "What deeper question helps them explore their feelings?",
        "What question encourages them to consider different perspectives?",
        "What question guides them toward actionable next steps?"
    ],
    "themes": [
        "primary_theme",
        "secondary_theme",
        "tertiary_theme"
    ]
}

Guidelines:
- Address the writer directly as "you"
- Insights should be compassionate, specific, and actionable
- Questions should be open-ended and encourage deeper reflection
- Themes should be 1-2 words describing key topics (e.g., "relationships", "career", "self_care", "growth", "creativity")
- Focus on what the writer can learn or do, not just observations
- Be encouraging and supportive in tone

JSON Response:`

// ValidContent reports whether the content carries enough material for a
// meaningful reflection. A negative answer is a user-facing outcome, not an
// error.
func (e *Engine) ValidContent(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < e.cfg.MinContentLength {
		return false
	}
	return len(strings.Fields(trimmed)) >= e.cfg.MinWords
}

// Build returns the inference prompt for the entry, or ok=false when the
// normalized content is too short to analyze.
func (e *Engine) Build(content, entryDate string) (string, bool) {
	processed := e.preprocess(content)
	if len(strings.TrimSpace(processed)) < e.cfg.MinContentLength {
		return "", false
	}
	dateCtx := ""
	if entryDate != "" {
		dateCtx = fmt.Sprintf("Entry Date: %s\n\n", entryDate)
	}
	return fmt.Sprintf(reflectionTemplate, dateCtx, processed), true
}

// Preview returns the first 100 characters of the processed content, the
// text that would actually be analyzed.
func (e *Engine) Preview(content string) string {
	processed := e.preprocess(content)
	if len(processed) <= 100 {
		return processed
	}
	return processed[:100] + "..."
}

// preprocess collapses whitespace and truncates to the character budget,
// preferring a sentence boundary when it preserves at least 80% of the
// budgeted length.
func (e *Engine) preprocess(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	out := whitespaceRe.ReplaceAllString(strings.TrimSpace(content), " ")
	max := e.cfg.MaxContentLength
	if len(out) <= max {
		return out
	}
	truncated := out[:max]
	if idx := strings.LastIndex(truncated, "."); idx > int(float64(max)*0.8) {
		return truncated[:idx+1]
	}
	return truncated + "..."
}
