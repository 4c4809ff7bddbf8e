package provision

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reflectd/pkg/types"
)

func testPayload(size int) []byte {
	b := make([]byte, size)
	copy(b, "GGUF")
	for i := 4; i < size; i++ {
		b[i] = byte(i % 251)
	}
	return b
}

func newDownloadManager(t *testing.T, baseURL string, transportRetries int) *Manager {
	t.Helper()
	m, err := New(Config{
		Artifact: types.ModelArtifact{
			Repo:     "test/repo",
			File:     "model.gguf",
			MinBytes: 8,
			MaxBytes: 1 << 20,
		},
		ModelsDir:        t.TempDir(),
		BaseURL:          baseURL,
		TransportRetries: transportRetries,
		UpdateInterval:   10 * time.Millisecond,
		Logger:           zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestDownloadSuccess(t *testing.T) {
	payload := testPayload(64 << 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/test/repo/resolve/main/model.gguf" {
			http.NotFound(w, r)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	var calls int32
	if !m.Download(func(types.DownloadProgress) { atomic.AddInt32(&calls, 1) }) {
		t.Fatalf("first Download should start a worker")
	}
	m.Wait()

	p, started := m.Progress()
	if !started {
		t.Fatalf("started flag should be set")
	}
	if p.Status != types.DownloadComplete {
		t.Fatalf("status = %q (%s), want complete", p.Status, p.ErrorMessage)
	}
	if p.BytesDownloaded != int64(len(payload)) {
		t.Fatalf("bytes = %d, want %d", p.BytesDownloaded, len(payload))
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("sink should have observed progress")
	}
	if _, err := os.Stat(m.TempPath()); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be gone after finalize")
	}
	got, err := os.ReadFile(m.ModelPath())
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("artifact content differs from served payload")
	}
	if !m.Available() {
		t.Fatalf("artifact should be available after download")
	}
	if m.Downloading() {
		t.Fatalf("worker should be inactive after completion")
	}
}

func TestDownloadCancelAndSingleWorker(t *testing.T) {
	// stream indefinitely so the worker stays active until cancelled
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunk := make([]byte, 1024)
		copy(chunk, "GGUF")
		fl := w.(http.Flusher)
		for {
			if _, err := w.Write(chunk); err != nil {
				return
			}
			fl.Flush()
			select {
			case <-r.Context().Done():
				return
			case <-time.After(2 * time.Millisecond):
			}
		}
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	if !m.Download(nil) {
		t.Fatalf("first Download should start a worker")
	}
	if !m.Downloading() {
		t.Fatalf("worker should be active")
	}
	if m.Download(nil) {
		t.Fatalf("second Download while active must be a no-op")
	}

	m.Cancel()
	m.Cancel() // idempotent
	m.Wait()

	p, _ := m.Progress()
	if p.Status != types.DownloadError {
		t.Fatalf("status = %q, want error", p.Status)
	}
	if !strings.Contains(p.ErrorMessage, "cancelled") {
		t.Fatalf("error message = %q", p.ErrorMessage)
	}
	if _, err := os.Stat(m.TempPath()); !os.IsNotExist(err) {
		t.Fatalf("cancel must remove the temporary file")
	}
	if _, err := os.Stat(m.ModelPath()); !os.IsNotExist(err) {
		t.Fatalf("cancel must not leave a final artifact")
	}
	if m.Available() {
		t.Fatalf("artifact must not be available after cancel")
	}
}

func TestDownloadRetriesTransientFailure(t *testing.T) {
	payload := testPayload(16 << 10)
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	m.Download(nil)
	m.Wait()

	p, _ := m.Progress()
	if p.Status != types.DownloadComplete {
		t.Fatalf("status = %q (%s), want complete after retry", p.Status, p.ErrorMessage)
	}
	if got := atomic.LoadInt32(&requests); got != 2 {
		t.Fatalf("requests = %d, want 2", got)
	}
}

func TestDownloadExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	m.Download(nil)
	m.Wait()

	p, _ := m.Progress()
	if p.Status != types.DownloadError {
		t.Fatalf("status = %q, want error", p.Status)
	}
	if !strings.Contains(p.ErrorMessage, "after 2 attempts") {
		t.Fatalf("error message should report attempts: %q", p.ErrorMessage)
	}
	if _, err := os.Stat(m.ModelPath()); !os.IsNotExist(err) {
		t.Fatalf("no artifact may exist after failed download")
	}
}

func TestDownloadResumesPartialTransfer(t *testing.T) {
	payload := testPayload(32 << 10)
	var sawRange atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rng := r.Header.Get("Range")
		if rng == "" {
			w.Write(payload)
			return
		}
		sawRange.Store(true)
		var offset int64
		if _, err := fmt.Sscanf(rng, "bytes=%d-", &offset); err != nil {
			http.Error(w, "bad range", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, len(payload)-1, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(payload[offset:])
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	half := len(payload) / 2
	if err := os.WriteFile(m.TempPath(), payload[:half], 0o644); err != nil {
		t.Fatalf("seed partial file: %v", err)
	}

	m.Download(nil)
	m.Wait()

	p, _ := m.Progress()
	if p.Status != types.DownloadComplete {
		t.Fatalf("status = %q (%s), want complete", p.Status, p.ErrorMessage)
	}
	if !sawRange.Load() {
		t.Fatalf("resume should send a Range request")
	}
	got, err := os.ReadFile(m.ModelPath())
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("resumed artifact content differs from served payload")
	}
}

func TestDownloadSpeedTracksRecentWindow(t *testing.T) {
	// a large burst followed by a slow trickle; late speed samples must
	// reflect the trickle, not the cumulative average since start
	burst := testPayload(512 << 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		w.Write(burst)
		fl.Flush()
		drip := make([]byte, 512)
		for i := 0; i < 8; i++ {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(25 * time.Millisecond):
			}
			if _, err := w.Write(drip); err != nil {
				return
			}
			fl.Flush()
		}
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	var mu sync.Mutex
	var speeds []float64
	m.Download(func(p types.DownloadProgress) {
		if p.Status == types.DownloadActive {
			mu.Lock()
			speeds = append(speeds, p.Speed)
			mu.Unlock()
		}
	})
	m.Wait()

	p, _ := m.Progress()
	if p.Status != types.DownloadComplete {
		t.Fatalf("status = %q (%s), want complete", p.Status, p.ErrorMessage)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(speeds) == 0 {
		t.Fatalf("no active samples observed")
	}
	// the cumulative average over this transfer stays above 1 MB/s; a
	// windowed measurement during the trickle sits orders of magnitude lower
	last := speeds[len(speeds)-1]
	if last >= 256<<10 {
		t.Fatalf("late speed sample = %.0f B/s, want trickle throughput", last)
	}
}

func TestDownloadRejectsInvalidPayload(t *testing.T) {
	// correct size, wrong signature
	bad := testPayload(16 << 10)
	copy(bad, "JUNK")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bad)
	}))
	defer srv.Close()

	m := newDownloadManager(t, srv.URL, 1)
	m.Download(nil)
	m.Wait()

	p, _ := m.Progress()
	if p.Status != types.DownloadError {
		t.Fatalf("status = %q, want error", p.Status)
	}
	if !strings.Contains(p.ErrorMessage, "validation") {
		t.Fatalf("error message = %q", p.ErrorMessage)
	}
	if _, err := os.Stat(m.ModelPath()); !os.IsNotExist(err) {
		t.Fatalf("invalid payload must never reach the final path")
	}
	if _, err := os.Stat(m.TempPath()); !os.IsNotExist(err) {
		t.Fatalf("temporary file should be removed on failure")
	}
}

func TestCancelWithoutDownload(t *testing.T) {
	m := newDownloadManager(t, "http://unused", 1)
	m.Cancel() // no-op
	m.Wait()   // returns immediately
	if _, started := m.Progress(); started {
		t.Fatalf("no download was ever started")
	}
}
