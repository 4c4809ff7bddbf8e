package reflection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reflectd/internal/cache"
	"reflectd/internal/engine"
	"reflectd/internal/provision"
	"reflectd/pkg/types"
)

// longEntry clears the minimum-length and minimum-word checks.
const longEntry = "Today I spent the morning walking along the river and thinking about how much my daily routines have changed over this year."

const jsonOutput = `{"insights": ["You are noticing how your routines shape your mood"], "questions": ["What routine feels most supportive right now?"], "themes": ["Routines", "Change"]}`

// scriptedAdapter is an in-memory engine adapter with scripted behavior.
type scriptedAdapter struct {
	failStarts int
	output     string
	genErr     error

	starts   int
	genCalls int
}

func (a *scriptedAdapter) Start(modelPath string, params engine.Params) (engine.Session, error) {
	a.starts++
	if a.starts <= a.failStarts {
		return nil, errRuntimeInit
	}
	return scriptedSession{a: a}, nil
}

var errRuntimeInit = initError{}

type initError struct{}

func (initError) Error() string { return "runtime init failed" }

type scriptedSession struct{ a *scriptedAdapter }

func (s scriptedSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (engine.FinalResult, error) {
	s.a.genCalls++
	if s.a.genErr != nil {
		return engine.FinalResult{}, s.a.genErr
	}
	if err := onToken(s.a.output); err != nil {
		return engine.FinalResult{}, err
	}
	return engine.FinalResult{Content: s.a.output, FinishReason: "stop"}, nil
}

func (scriptedSession) Close() error { return nil }

// gateAdapter parks Start until released, then delegates.
type gateAdapter struct {
	release chan struct{}
	inner   *scriptedAdapter
}

func (g *gateAdapter) Start(modelPath string, params engine.Params) (engine.Session, error) {
	<-g.release
	return g.inner.Start(modelPath, params)
}

type testHarness struct {
	svc     *Service
	adapter *scriptedAdapter
	manager *provision.Manager
}

// newHarness wires a real provisioning manager, engine and cache around a
// scripted adapter. When withArtifact is set, a valid artifact already sits
// on disk.
func newHarness(t *testing.T, adapter *scriptedAdapter, withArtifact bool) testHarness {
	t.Helper()
	h := newHarnessWithAdapter(t, adapter, withArtifact)
	h.adapter = adapter
	return h
}

func newHarnessWithAdapter(t *testing.T, adapter engine.Adapter, withArtifact bool) testHarness {
	t.Helper()
	dir := t.TempDir()
	mgr, err := provision.New(provision.Config{
		Artifact: types.ModelArtifact{
			Repo:     "test/repo",
			File:     "model.gguf",
			MinBytes: 8,
			MaxBytes: 1 << 20,
		},
		ModelsDir: filepath.Join(dir, "models"),
		BaseURL:   "http://unused",
		Logger:    zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("provision manager: %v", err)
	}
	if withArtifact {
		b := make([]byte, 64)
		copy(b, "GGUF")
		if err := os.WriteFile(mgr.ModelPath(), b, 0o644); err != nil {
			t.Fatalf("write artifact: %v", err)
		}
	}
	eng := engine.New(engine.Config{
		Adapter:        adapter,
		ModelPath:      mgr.ModelPath(),
		LoadRetries:    2,
		RetryBaseDelay: time.Millisecond,
		MemoryProbe:    func() (uint64, error) { return 8 << 30, nil },
		Logger:         zerolog.Nop(),
	})
	c := cache.New(filepath.Join(dir, "ai_cache"), true, time.Hour, zerolog.Nop())
	svc := New(Config{
		Provision:       mgr,
		Engine:          eng,
		Cache:           c,
		LoadWaitTimeout: 100 * time.Millisecond,
		LoadWaitPoll:    5 * time.Millisecond,
		LoadRetries:     3,
		Logger:          zerolog.Nop(),
	})
	t.Cleanup(svc.Close)
	return testHarness{svc: svc, manager: mgr}
}

// waitForLoading blocks until the engine enters the loading state.
func waitForLoading(t *testing.T, e *engine.Engine) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if e.State() == engine.StateLoading {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("engine never entered the loading state")
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}
