package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reflectd/internal/cache"
	"reflectd/internal/engine"
	"reflectd/internal/httpapi"
	"reflectd/internal/provision"
	"reflectd/internal/reflection"
	"reflectd/pkg/types"
)

const modelOutput = `{"insights":["You are noticing how your routines shape your mood"],` +
	`"questions":["What routine feels most supportive right now?"],` +
	`"themes":["Routines","Change"]}`

// echoAdapter is an in-process model runtime emitting a fixed response.
type echoAdapter struct {
	output string
}

func (a *echoAdapter) Start(modelPath string, params engine.Params) (engine.Session, error) {
	return &echoSession{output: a.output}, nil
}

type echoSession struct {
	output string
}

func (s *echoSession) Generate(ctx context.Context, prompt string, onToken func(string) error) (engine.FinalResult, error) {
	if err := onToken(s.output); err != nil {
		return engine.FinalResult{}, err
	}
	return engine.FinalResult{Content: s.output, FinishReason: "stop"}, nil
}

func (s *echoSession) Close() error { return nil }

// newServer stands up the full pipeline behind an httptest server. The model
// artifact is a small file with valid header bytes; size bounds are relaxed
// accordingly.
func newServer(t *testing.T, withArtifact bool) (*httptest.Server, *reflection.Service) {
	t.Helper()
	mgr, err := provision.New(provision.Config{
		Artifact: types.ModelArtifact{
			Repo:     "test/repo",
			File:     "model.gguf",
			MinBytes: 8,
			MaxBytes: 1 << 20,
		},
		ModelsDir: t.TempDir(),
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
		Adapter:        &echoAdapter{output: modelOutput},
		ModelPath:      mgr.ModelPath(),
		LoadRetries:    2,
		RetryBaseDelay: time.Millisecond,
		MemoryProbe:    func() (uint64, error) { return 8 << 30, nil },
		Logger:         zerolog.Nop(),
	})
	svc := reflection.New(reflection.Config{
		Provision: mgr,
		Engine:    eng,
		Cache:     cache.New(t.TempDir(), true, time.Hour, zerolog.Nop()),
		Logger:    zerolog.Nop(),
	})
	t.Cleanup(svc.Close)

	srv := httptest.NewServer(httpapi.NewMux(svc))
	t.Cleanup(srv.Close)
	return srv, svc
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func decodeResult(t *testing.T, body []byte) types.ReflectionResult {
	t.Helper()
	var res types.ReflectionResult
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode result: %v body=%s", err, string(body))
	}
	return res
}
