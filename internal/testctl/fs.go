package testctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func firstGGUF(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".gguf") {
			return name, nil
		}
	}
	return "", fmt.Errorf("no .gguf models found in %s", dir)
}

// hasModelArtifact reports whether a downloaded model exists under the
// daemon's default data directory.
func hasModelArtifact() bool {
	dir := filepath.Join(homeDir(), ".reflectd", "models")
	_, err := firstGGUF(dir)
	return err == nil
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}
