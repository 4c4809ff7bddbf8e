package testctl

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type Config struct {
	SmokePort int
	LogLvl    string
}

// buildRootCmd is a convenience for help-only fallbacks.
func buildRootCmd() *cobra.Command {
	return buildRootCmdWith(&Config{LogLvl: "info"})
}

// buildRootCmdWith constructs the Cobra command tree wired to the fn* actions.
func buildRootCmdWith(cfg *Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "testctl",
		Short:         "Dev and test utilities for reflectd",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Int("smoke-port", cfg.SmokePort, "Port for the smoke-test daemon (0 picks a free port)")
	root.PersistentFlags().String("log-level", cfg.LogLvl, "Log level: debug|info|warn|error (defaults TESTCTL_LOG_LEVEL or info)")
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if f := cmd.InheritedFlags().Lookup("smoke-port"); f != nil {
			var n int
			_, _ = fmt.Sscanf(f.Value.String(), "%d", &n)
			if n != 0 {
				cfg.SmokePort = n
			}
		}
		if f := cmd.InheritedFlags().Lookup("log-level"); f != nil {
			if v := f.Value.String(); v != "" {
				cfg.LogLvl = v
			}
		}
		SetLogLevel(cfg.LogLvl)
	}

	// install group
	installCmd := &cobra.Command{Use: "install", Short: "Install dependencies/tools", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("install requires a subcommand: go|llama")
	}}
	installGoCmd := &cobra.Command{Use: "go", Short: "Download Go modules", RunE: func(cmd *cobra.Command, args []string) error { return fnInstallGo() }}
	installLlamaCmd := &cobra.Command{Use: "llama", Short: "Build go-llama.cpp for the llama build tag", RunE: func(cmd *cobra.Command, args []string) error { return fnInstallLlama() }}
	installCmd.AddCommand(installGoCmd, installLlamaCmd)
	root.AddCommand(installCmd)

	// test group
	testCmd := &cobra.Command{Use: "test", Short: "Run tests", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("test requires a subcommand: go|go:llama|blackbox|all")
	}}
	testGo := &cobra.Command{Use: "go", Short: "Run Go tests", RunE: func(cmd *cobra.Command, args []string) error { return fnRunGoTests() }}
	testGoLlama := &cobra.Command{Use: "go:llama", Short: "Run Go tests with the llama binding compiled in", RunE: func(cmd *cobra.Command, args []string) error { return fnRunGoTestsLlama() }}
	testBlackbox := &cobra.Command{Use: "blackbox", Short: "Run HTTP blackbox tests against a built daemon", RunE: func(cmd *cobra.Command, args []string) error { return fnRunBlackbox() }}
	testAll := &cobra.Command{Use: "all", Short: "Go tests, blackbox, then a daemon smoke run", RunE: func(cmd *cobra.Command, args []string) error {
		if err := fnRunGoTests(); err != nil {
			return err
		}
		if err := fnRunBlackbox(); err != nil {
			return err
		}
		return fnSmoke(cfg)
	}}
	testCmd.AddCommand(testGo, testGoLlama, testBlackbox, testAll)
	root.AddCommand(testCmd)

	// smoke command
	smokeCmd := &cobra.Command{Use: "smoke", Short: "Build and smoke-test the daemon", Example: "  testctl smoke\n  testctl smoke --smoke-port 18090", RunE: func(cmd *cobra.Command, args []string) error {
		if fnHasModelArtifact() {
			info("[smoke] Note: a model artifact exists under ~/.reflectd; the smoke run uses a throwaway data dir")
		}
		return fnSmoke(cfg)
	}}
	root.AddCommand(smokeCmd)

	// completion command
	completionCmd := &cobra.Command{Use: "completion", Short: "Generate the autocompletion script for the specified shell"}
	completionCmd.AddCommand(&cobra.Command{Use: "bash", Short: "Bash completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenBashCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "zsh", Short: "Zsh completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenZshCompletion(os.Stdout) }})
	completionCmd.AddCommand(&cobra.Command{Use: "fish", Short: "Fish completion", RunE: func(cmd *cobra.Command, args []string) error { return root.GenFishCompletion(os.Stdout, true) }})
	root.AddCommand(completionCmd)

	return root
}

// MainWithArgs is a testable variant of Main that accepts args explicitly.
// It returns an exit code (0 for success, non-zero on error).
func MainWithArgs(args []string) int {
	cfg := &Config{LogLvl: envStr("TESTCTL_LOG_LEVEL", "info")}
	root := buildRootCmdWith(cfg)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return 1
	}
	return 0
}

// Main returns an exit code (0 for success, non-zero on error) for use by cmd/testctl.
func Main() int { return MainWithArgs(os.Args[1:]) }
