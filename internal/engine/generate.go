package engine

import (
	"context"
	"strings"
	"time"
)

// Result is the outcome of one generation.
type Result struct {
	Text     string
	Tokens   int
	Duration time.Duration
}

// Generate runs one completion for the given prompt, loading the model first
// when necessary. The optional onToken callback observes the token stream;
// returning an error from it stops generation early. Generations are
// serialized.
func (e *Engine) Generate(ctx context.Context, prompt string, onToken func(string) error) (Result, error) {
	if !e.Loaded() {
		if err := e.Load(ctx); err != nil {
			return Result{}, err
		}
	}
	// genMu is held across the session snapshot and the generation itself;
	// Unload closes sessions under the same lock, so the handle cannot be
	// freed while a generation is in flight.
	e.genMu.Lock()
	defer e.genMu.Unlock()

	e.mu.RLock()
	sess := e.session
	e.mu.RUnlock()
	if sess == nil {
		return Result{}, ErrNotLoaded()
	}

	start := time.Now()
	tokens := 0
	var sb strings.Builder
	final, err := sess.Generate(ctx, prompt, func(tok string) error {
		tokens++
		sb.WriteString(tok)
		if onToken != nil {
			return onToken(tok)
		}
		return nil
	})
	took := time.Since(start)
	if err != nil {
		return Result{Tokens: tokens, Duration: took}, err
	}
	text := final.Content
	if text == "" {
		text = sb.String()
	}
	e.log.Debug().Int("tokens", tokens).Dur("took", took).Msg("generation complete")
	return Result{Text: text, Tokens: tokens, Duration: took}, nil
}
