// Package engine owns the lifecycle of the local language model: loading it
// into memory with bounded retries, running generations against the live
// session and unloading it to reclaim memory.
package engine

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reflectd/internal/common/fsutil"
	"reflectd/pkg/types"
)

// State is the engine lifecycle state.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoading  State = "loading"
	StateLoaded   State = "loaded"
	StateError    State = "error"
)

const (
	defaultLoadRetries    = 3
	defaultRetryBaseDelay = 500 * time.Millisecond
)

// Config holds construction parameters for the Engine. Zero values fall back
// to package defaults.
type Config struct {
	// Adapter is the model runtime. When nil, the llama adapter is used.
	Adapter   Adapter
	ModelPath string

	Threads     int
	ContextSize int
	Temperature float64
	MaxTokens   int
	// Stop sequences that end a generation early.
	Stop []string

	// LoadRetries bounds load attempts before the engine enters the error
	// state.
	LoadRetries int
	// RetryBaseDelay is the first retry wait; subsequent waits double.
	RetryBaseDelay time.Duration

	// MemoryProbe reports available memory bytes; the default asks the OS.
	MemoryProbe func() (uint64, error)

	Logger zerolog.Logger
}

// Engine is the single-model inference engine. All methods are safe for
// concurrent use; at most one load runs at a time and generations are
// serialized on the live session.
type Engine struct {
	cfg Config
	log zerolog.Logger

	mu      sync.RWMutex
	state   State
	loadErr string
	session Session

	// genMu serializes generations; the underlying runtime is not
	// reentrant.
	genMu sync.Mutex
}

// New constructs an Engine in the unloaded state.
func New(cfg Config) *Engine {
	if cfg.Threads <= 0 {
		cfg.Threads = 4
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = 2048
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.LoadRetries <= 0 {
		cfg.LoadRetries = defaultLoadRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = defaultRetryBaseDelay
	}
	if cfg.Adapter == nil {
		cfg.Adapter = NewLlamaAdapter(cfg.ContextSize, cfg.Threads)
	}
	if cfg.MemoryProbe == nil {
		cfg.MemoryProbe = defaultMemoryProbe
	}
	return &Engine{
		cfg:   cfg,
		log:   cfg.Logger,
		state: StateUnloaded,
	}
}

// RuntimeBuilt reports whether the real llama runtime was compiled in.
func RuntimeBuilt() bool { return llamaBuilt }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// LoadError returns the message of the last failed load, or "".
func (e *Engine) LoadError() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadErr
}

// Loaded reports whether a live session is held.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateLoaded && e.session != nil
}

// Status reports the engine state and effective generation configuration.
func (e *Engine) Status() types.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return types.EngineStatus{
		State:       string(e.state),
		LoadError:   e.loadErr,
		Threads:     e.cfg.Threads,
		ContextSize: e.cfg.ContextSize,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	}
}

func (e *Engine) params() Params {
	return Params{
		Temperature: float32(e.cfg.Temperature),
		MaxTokens:   e.cfg.MaxTokens,
		Stop:        e.cfg.Stop,
	}
}

// Load brings the model into memory with the configured retry budget.
// Returns nil immediately when already loaded and ErrLoadInProgress when
// another goroutine is mid-load. A failed load moves the engine to the error
// state; a later Load may retry from there.
func (e *Engine) Load(ctx context.Context) error {
	return e.LoadWithRetries(ctx, 0)
}

// LoadWithRetries is Load with an explicit retry budget; retries <= 0 uses
// the configured default. Callers in settle-prone environments pass a higher
// budget.
func (e *Engine) LoadWithRetries(ctx context.Context, retries int) error {
	if retries <= 0 {
		retries = e.cfg.LoadRetries
	}
	e.mu.Lock()
	switch e.state {
	case StateLoaded:
		e.mu.Unlock()
		return nil
	case StateLoading:
		e.mu.Unlock()
		return ErrLoadInProgress()
	}
	e.state = StateLoading
	e.loadErr = ""
	e.mu.Unlock()

	sess, err := e.load(ctx, retries)

	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.state = StateError
		e.loadErr = err.Error()
		return err
	}
	e.session = sess
	e.state = StateLoaded
	return nil
}

// load performs the preflight checks and the bounded retry loop. Called
// without the lock held; only the goroutine that won the Loading transition
// runs it.
func (e *Engine) load(ctx context.Context, retries int) (Session, error) {
	if _, err := fsutil.ReadHeader(e.cfg.ModelPath, 4); err != nil {
		return nil, fmt.Errorf("model file not readable: %w", err)
	}
	if avail, err := e.cfg.MemoryProbe(); err == nil && avail < minLoadMemoryBytes {
		return nil, insufficientMemoryError{needed: minLoadMemoryBytes, available: avail}
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(e.cfg.RetryBaseDelay) * math.Pow(2, float64(attempt-1)))
			delay += time.Duration(rand.Int63n(int64(e.cfg.RetryBaseDelay)))
			e.log.Debug().Dur("wait", delay).Int("attempt", attempt+1).Msg("retrying model load")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		start := time.Now()
		sess, err := e.cfg.Adapter.Start(e.cfg.ModelPath, e.params())
		if err == nil {
			e.log.Info().Dur("took", time.Since(start)).Str("path", e.cfg.ModelPath).Msg("model loaded")
			return sess, nil
		}
		if IsDependencyUnavailable(err) {
			// retrying cannot make a missing runtime appear
			return nil, err
		}
		lastErr = err
		e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("model load attempt failed")
	}
	return nil, fmt.Errorf("model load failed after %d attempts: %w", retries, lastErr)
}

// Unload releases the live session and returns the engine to the unloaded
// state. Safe to call in any state. The session is closed under genMu so an
// in-flight generation always finishes before the handle is freed.
func (e *Engine) Unload() {
	e.mu.Lock()
	sess := e.session
	e.session = nil
	e.state = StateUnloaded
	e.loadErr = ""
	e.mu.Unlock()
	if sess != nil {
		e.genMu.Lock()
		err := sess.Close()
		e.genMu.Unlock()
		if err != nil {
			e.log.Warn().Err(err).Msg("session close failed")
		} else {
			e.log.Info().Msg("model unloaded")
		}
	}
}

// ValidateHealth checks the live session with a tiny generation. On failure
// the session is released so the next request triggers a fresh load.
func (e *Engine) ValidateHealth(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Snapshot the session while holding genMu so a concurrent Unload
	// cannot close it between the check and the generation.
	e.genMu.Lock()
	e.mu.RLock()
	sess := e.session
	state := e.state
	e.mu.RUnlock()
	if state != StateLoaded || sess == nil {
		e.genMu.Unlock()
		return false
	}
	_, err := sess.Generate(checkCtx, "Hi", func(string) error { return nil })
	e.genMu.Unlock()
	if err != nil {
		e.log.Warn().Err(err).Msg("health check failed, releasing session")
		e.Unload()
		return false
	}
	return true
}
