package testctl

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

func installGo() error {
	info("Downloading Go modules...")
	return runCmdVerbose(context.Background(), "go", "mod", "download")
}

// installLlama clones go-llama.cpp (with its bundled llama.cpp submodule) and
// builds libbinding.a so the daemon can be compiled with the llama build tag.
func installLlama() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	srcDir := filepath.Join(home, "src")
	bindDir := filepath.Join(srcDir, "go-llama.cpp")
	if _, err := os.Stat(bindDir); os.IsNotExist(err) {
		if err := os.MkdirAll(srcDir, 0o755); err != nil {
			return err
		}
		info("[llama] Cloning go-llama.cpp into %s", bindDir)
		if err := runCmdVerbose(context.Background(), "git", "clone", "--recurse-submodules",
			"https://github.com/go-skynet/go-llama.cpp.git", bindDir); err != nil {
			return err
		}
	} else {
		info("[llama] Updating go-llama.cpp in %s", bindDir)
		_ = runCmdVerbose(context.Background(), "git", "-C", bindDir, "pull", "--ff-only")
		_ = runCmdVerbose(context.Background(), "git", "-C", bindDir, "submodule", "update", "--init", "--recursive")
	}

	info("[llama] Building libbinding.a")
	if err := RunCmd(context.Background(), Cmd{Path: "make", Args: []string{"libbinding.a"}, Dir: bindDir}); err != nil {
		return err
	}
	libPath := filepath.Join(bindDir, "libbinding.a")
	if fi, err := os.Stat(libPath); err != nil || fi.IsDir() {
		return fmt.Errorf("libbinding.a not found at %s", libPath)
	}
	info("[llama] Built: %s", libPath)
	info("[llama] Build the daemon with:")
	info("    export C_INCLUDE_PATH=%s", bindDir)
	info("    export LIBRARY_PATH=%s", bindDir)
	info("    CGO_ENABLED=1 go build -tags llama ./cmd/reflectd")
	return nil
}
