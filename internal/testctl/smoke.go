package testctl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// smokeDaemon builds the daemon, starts it against a throwaway data
// directory and exercises the basic endpoints without a model on disk.
func smokeDaemon(cfg *Config) error {
	info("==== Smoke test reflectd ====")
	tmp, err := os.MkdirTemp("", "reflectd-smoke-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	bin := filepath.Join(tmp, "reflectd")
	info("[smoke] Building daemon")
	if err := runEnvCmdStreaming(context.Background(), map[string]string{"CGO_ENABLED": "0"},
		"go", "build", "-o", bin, "./cmd/reflectd"); err != nil {
		return err
	}

	port := cfg.SmokePort
	if port == 0 {
		if port, err = chooseFreePort(); err != nil {
			return err
		}
	}
	if err := ensurePorts([]int{port}, false); err != nil {
		return err
	}

	dataDir := filepath.Join(tmp, "data")
	cmd := exec.Command(bin, "serve", "--addr", fmt.Sprintf(":%d", port), "--data-dir", dataDir)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	TrackProcess(cmd)
	defer killProcesses()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	if err := waitHTTP(base+"/healthz", http.StatusOK, 10*time.Second); err != nil {
		return err
	}
	info("[smoke] /healthz ok")

	resp, err := http.Get(base + "/status")
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("/status returned %d", resp.StatusCode)
	}
	info("[smoke] /status ok")

	body := bytes.NewBufferString(`{"content":"Tired."}`)
	resp, err = http.Post(base+"/reflect", "application/json", body)
	if err != nil {
		return err
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("/reflect returned %d: %s", resp.StatusCode, string(b))
	}
	if !strings.Contains(string(b), "too brief") {
		return fmt.Errorf("/reflect unexpected body: %s", string(b))
	}
	info("[smoke] /reflect ok (degraded without model, as expected)")
	info("[smoke] PASS")
	return nil
}
