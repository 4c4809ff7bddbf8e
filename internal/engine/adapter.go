package engine

import "context"

// Adapter abstracts the model runtime used by the Engine. Concrete
// implementations (e.g., llama.cpp) satisfy this interface.
type Adapter interface {
	// Start loads the model at modelPath and prepares a reusable session
	// with the given parameters.
	Start(modelPath string, params Params) (Session, error)
}

// Session is a loaded model ready to generate. A session is reused across
// requests and released with Close.
type Session interface {
	// Generate streams tokens for the given prompt. The onToken callback is
	// invoked for each token; returning an error from it stops generation.
	// Implementations must return when the context is canceled.
	Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error)
	// Close releases any resources associated with the session.
	Close() error
}

// Params captures generation parameters passed to the adapter.
type Params struct {
	Temperature   float32
	TopP          float32
	TopK          int
	MaxTokens     int
	Stop          []string
	Seed          int
	RepeatPenalty float32
}

// FinalResult summarizes the generation after streaming.
type FinalResult struct {
	Content      string
	FinishReason string
}
