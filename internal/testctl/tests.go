package testctl

import "context"

// Tests
func runGoTests() error {
	info("==== Run Go tests ====")
	return runCmdStreaming(context.Background(), "go", "test", "./...", "-v")
}

// runGoTestsLlama runs the suite with the real llama.cpp binding compiled in.
// Requires a prior `testctl install llama`.
func runGoTestsLlama() error {
	info("==== Run Go tests (llama tag) ====")
	return runEnvCmdStreaming(context.Background(), map[string]string{"CGO_ENABLED": "1"},
		"go", "test", "-tags", "llama", "./...", "-v")
}

func runBlackboxTests() error {
	info("==== Run blackbox tests ====")
	return runCmdStreaming(context.Background(), "go", "test", "./tests/blackbox/...", "-v")
}
