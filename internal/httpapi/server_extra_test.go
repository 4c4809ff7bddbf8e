package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"reflectd/pkg/types"
)

func TestCORSAndSecurityHeaders(t *testing.T) {
	SetCORSOptions(true, []string{"http://localhost:5173"}, []string{"GET", "POST"}, []string{"Content-Type"})
	t.Cleanup(func() { SetCORSOptions(false, nil, nil, nil) })

	h := NewMux(newMockService(t, true))

	req := httptest.NewRequest(http.MethodOptions, "/reflect", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin=%q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff header=%q", got)
	}
}

func TestReflectLogsWithZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	SetLogger(logger)
	t.Cleanup(func() { zlog = nil })

	svc := newMockService(t, true)
	svc.result = types.ReflectionResult{
		Insights:  []string{"an insight"},
		Questions: []string{"a question?"},
		ModelUsed: "qwen2.5-3b",
	}
	h := NewMux(svc)

	w := postJSON(t, h, "/reflect?log=debug", `{"content":"a journal entry long enough to reflect on"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	logs := buf.String()
	if !strings.Contains(logs, "reflect start") {
		t.Fatalf("missing start log, got: %s", logs)
	}
	if !strings.Contains(logs, "reflect end") {
		t.Fatalf("missing completion log, got: %s", logs)
	}
}

func TestReflectDegradedOutcomeLogged(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))
	t.Cleanup(func() { zlog = nil })

	svc := newMockService(t, true)
	svc.result = types.ReflectionResult{
		Insights:  []string{"Your entry has been saved."},
		ModelUsed: "none",
		Error:     "Model loading timeout",
	}
	h := NewMux(svc)

	w := postJSON(t, h, "/reflect?log=info", `{"content":"a journal entry long enough to reflect on"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("degraded results still return 200, got %d", w.Code)
	}
	if !strings.Contains(buf.String(), "degraded") {
		t.Fatalf("outcome not logged, got: %s", buf.String())
	}
}
