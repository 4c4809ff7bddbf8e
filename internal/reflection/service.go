// Package reflection orchestrates the journal reflection pipeline: input
// validation, cache lookup, artifact and engine readiness, prompt
// construction, generation and response parsing. Its public operation never
// returns an error; every failure degrades into a fixed, user-facing result
// so journaling is never interrupted by a model fault.
package reflection

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"reflectd/internal/cache"
	"reflectd/internal/engine"
	"reflectd/internal/prompt"
	"reflectd/internal/provision"
	"reflectd/pkg/types"
)

const (
	defaultModelName       = "qwen2.5-3b"
	defaultLoadWaitTimeout = 60 * time.Second
	defaultLoadWaitPoll    = time.Second
	defaultLoadRetries     = 5
)

// Config holds construction parameters for the Service. Zero values fall
// back to package defaults.
type Config struct {
	Provision *provision.Manager
	Engine    *engine.Engine
	Prompt    *prompt.Engine
	Cache     *cache.Cache

	// ModelName is the identifier stamped on generated results.
	ModelName string
	// LoadWaitTimeout bounds the wait for a load already in progress.
	LoadWaitTimeout time.Duration
	// LoadWaitPoll is the poll interval during that wait.
	LoadWaitPoll time.Duration
	// LoadRetries is the elevated retry budget used when the service itself
	// drives a load. Packaged deployments need more attempts than the engine
	// default because of filesystem settling delays.
	LoadRetries int
	// DiagnosticsPath is an optional JSON file receiving diagnostic events.
	DiagnosticsPath string

	Logger zerolog.Logger
}

// Service wires the provisioning manager, inference engine, prompt engine
// and reflection cache behind one generate operation.
type Service struct {
	provision *provision.Manager
	engine    *engine.Engine
	prompt    *prompt.Engine
	cache     *cache.Cache
	cfg       Config
	log       zerolog.Logger

	generations atomic.Uint64

	genCh  chan genRequest
	closed chan struct{}
}

// New constructs the Service and starts its generation worker.
func New(cfg Config) *Service {
	if cfg.ModelName == "" {
		cfg.ModelName = defaultModelName
	}
	if cfg.LoadWaitTimeout <= 0 {
		cfg.LoadWaitTimeout = defaultLoadWaitTimeout
	}
	if cfg.LoadWaitPoll <= 0 {
		cfg.LoadWaitPoll = defaultLoadWaitPoll
	}
	if cfg.LoadRetries <= 0 {
		cfg.LoadRetries = defaultLoadRetries
	}
	if cfg.Prompt == nil {
		cfg.Prompt = prompt.New(prompt.DefaultConfig())
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.New("", false, 0, cfg.Logger)
	}
	s := &Service{
		provision: cfg.Provision,
		engine:    cfg.Engine,
		prompt:    cfg.Prompt,
		cache:     cfg.Cache,
		cfg:       cfg,
		log:       cfg.Logger,
		genCh:     make(chan genRequest),
		closed:    make(chan struct{}),
	}
	go s.generateWorker()
	return s
}

// Close stops the generation worker. In-flight generations finish first.
func (s *Service) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

// Available reports whether a valid artifact is on disk.
func (s *Service) Available() bool { return s.provision.Available() }

// Ready reports whether a reflection could be generated right now.
func (s *Service) Ready() bool {
	return s.engine.Loaded() && s.provision.Available()
}

// GenerationsTotal counts successful generations since start, excluding
// cache hits.
func (s *Service) GenerationsTotal() uint64 { return s.generations.Load() }

// GenerateReflection runs the full pipeline for one journal entry. It always
// returns a usable result; failures are reported through the result's Error
// field, never by aborting. onProgress (may be nil) receives coarse phase
// strings.
func (s *Service) GenerateReflection(ctx context.Context, content, entryDate string, forceRegenerate bool, onProgress func(string)) types.ReflectionResult {
	start := time.Now()
	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	if !s.prompt.ValidContent(content) {
		return s.fixedResult(start, tooBriefResult)
	}

	if !forceRegenerate {
		if cached, ok := s.cache.Get(content, entryDate); ok {
			cached.Cached = true
			cached.GenerationTime = time.Since(start)
			s.log.Debug().Str("key", cache.Key(content, entryDate)).Msg("reflection cache hit")
			return cached
		}
	}

	if !s.provision.Available() {
		return s.fixedResult(start, unavailableResult)
	}

	for !s.engine.Loaded() {
		// another caller may be mid-load; wait for it with a bounded poll
		// instead of piling on a second load
		if s.engine.State() == engine.StateLoading {
			progress("Loading AI model...")
			deadline := time.Now().Add(s.cfg.LoadWaitTimeout)
			for s.engine.State() == engine.StateLoading && time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return s.fixedResult(start, loadTimeoutResult)
				case <-time.After(s.cfg.LoadWaitPoll):
				}
				progress("Loading AI model...")
			}
			if s.engine.State() == engine.StateLoading {
				s.log.Warn().Dur("waited", s.cfg.LoadWaitTimeout).Msg("gave up waiting for model load")
				return s.fixedResult(start, loadTimeoutResult)
			}
			continue
		}

		progress("Loading AI model...")
		err := s.engine.LoadWithRetries(ctx, s.cfg.LoadRetries)
		if err == nil {
			break
		}
		if engine.IsLoadInProgress(err) {
			// lost the race to another caller's load; rejoin the wait
			continue
		}
		s.log.Warn().Err(err).Msg("model load failed during reflection")
		r := s.fixedResult(start, loadFailedResult)
		r.Error = "Failed to load AI model: " + err.Error()
		return r
	}

	promptText, ok := s.prompt.Build(content, entryDate)
	if !ok {
		return s.fixedResult(start, insufficientResult)
	}

	progress("Generating AI reflection...")
	genRes, err := s.generate(ctx, promptText, onProgress)
	if err != nil {
		s.log.Warn().Err(err).Msg("generation failed")
		// re-check the session after a failure so a broken one is
		// released and the next request starts from a clean load
		if ctx.Err() == nil && !errors.Is(err, errServiceClosed) {
			s.engine.ValidateHealth(ctx)
		}
		r := s.fixedResult(start, generationFailedResult)
		r.ModelUsed = s.cfg.ModelName
		r.Error = err.Error()
		return r
	}

	parsed := s.prompt.Parse(genRes.Text)
	if parsed.Err != "" {
		s.log.Warn().Str("reason", parsed.Err).Msg("response parsing failed")
		r := s.fixedResult(start, parseFailedResult)
		r.ModelUsed = s.cfg.ModelName
		r.Error = parsed.Err
		return r
	}

	result := types.ReflectionResult{
		Insights:       parsed.Insights,
		Questions:      parsed.Questions,
		Themes:         parsed.Themes,
		GeneratedAt:    time.Now(),
		GenerationTime: time.Since(start),
		ModelUsed:      s.cfg.ModelName,
	}
	s.generations.Add(1)
	s.cache.Put(content, entryDate, result)
	s.log.Info().
		Int("insights", len(result.Insights)).
		Int("questions", len(result.Questions)).
		Dur("took", result.GenerationTime).
		Bool("heuristic", parsed.Fallback).
		Msg("reflection generated")
	return result
}

// RetryInitialization attempts to recover a service whose model failed to
// load at startup. Returns the resulting readiness.
func (s *Service) RetryInitialization(ctx context.Context) bool {
	if s.Ready() {
		return true
	}
	if !s.provision.Available() {
		return false
	}
	if err := s.engine.LoadWithRetries(ctx, s.cfg.LoadRetries); err != nil {
		s.log.Warn().Err(err).Msg("retry initialization failed")
		return false
	}
	return true
}

// UnloadModel releases the model to reclaim memory. The next reflection
// triggers a fresh load.
func (s *Service) UnloadModel() { s.engine.Unload() }

// ClearCache removes all cached reflections.
func (s *Service) ClearCache() error { return s.cache.Clear() }

// CacheStats reports reflection cache usage.
func (s *Service) CacheStats() types.CacheStats { return s.cache.Stats() }

// Status reports the full pipeline state.
func (s *Service) Status() types.StatusResponse {
	resp := types.StatusResponse{
		Ready:            s.Ready(),
		Artifact:         s.provision.Info(),
		Engine:           s.engine.Status(),
		Cache:            s.cache.Stats(),
		GenerationsTotal: s.generations.Load(),
	}
	if p, started := s.provision.Progress(); started {
		resp.Download = &p
	}
	return resp
}

// Provision exposes the provisioning manager for download endpoints.
func (s *Service) Provision() *provision.Manager { return s.provision }

func progressCounter(onProgress func(string)) func(string) error {
	if onProgress == nil {
		return func(string) error { return nil }
	}
	chars := 0
	return func(tok string) error {
		chars += len(tok)
		onProgress(fmt.Sprintf("Processing AI response... (%d chars)", chars))
		return nil
	}
}
