package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// roomyMemory makes the preflight memory check pass regardless of the host.
func roomyMemory() (uint64, error) { return 8 << 30, nil }

// createModelFile writes a small file with a GGUF header and returns its path.
func createModelFile(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "model.gguf")
	if err := os.WriteFile(p, []byte("GGUFtestdata"), 0o644); err != nil {
		t.Fatalf("create model file: %v", err)
	}
	return p
}

// fakeAdapter is a lightweight in-memory adapter used for tests. failStarts
// makes the first N Start calls fail before succeeding.
type fakeAdapter struct {
	failStarts int
	startErr   error
	genErr     error
	tokens     []string
	final      FinalResult

	starts     int
	closes     int
	receivedMP string
}

func (f *fakeAdapter) Start(modelPath string, params Params) (Session, error) {
	f.starts++
	f.receivedMP = modelPath
	if f.startErr != nil {
		return nil, f.startErr
	}
	if f.starts <= f.failStarts {
		return nil, errTransient
	}
	return fakeSession{f: f}, nil
}

var errTransient = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string { return "runtime init timed out" }

type fakeSession struct{ f *fakeAdapter }

func (s fakeSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (FinalResult, error) {
	if s.f.genErr != nil {
		return FinalResult{}, s.f.genErr
	}
	for _, tok := range s.f.tokens {
		select {
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		default:
		}
		if err := onToken(tok); err != nil {
			return FinalResult{}, err
		}
	}
	return s.f.final, nil
}

func (s fakeSession) Close() error {
	s.f.closes++
	return nil
}

// newTestEngine wires a fake adapter with fast retries and a readable model
// file.
func newTestEngine(t *testing.T, fa *fakeAdapter) *Engine {
	t.Helper()
	return New(Config{
		Adapter:        fa,
		ModelPath:      createModelFile(t, t.TempDir()),
		LoadRetries:    3,
		RetryBaseDelay: time.Millisecond,
		MemoryProbe:    roomyMemory,
		Logger:         zerolog.Nop(),
	})
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}
