package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"reflectd/internal/cache"
	"reflectd/internal/config"
	"reflectd/internal/engine"
	"reflectd/internal/prompt"
	"reflectd/internal/provision"
	"reflectd/internal/reflection"
)

// cliOptions carries flag values shared across subcommands.
type cliOptions struct {
	configPath string
	dataDir    string
	modelsDir  string
	cacheDir   string
	logLevel   string
	logJSON    bool
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	opts := &cliOptions{}
	root := &cobra.Command{
		Use:           "reflectd",
		Short:         "Local journal reflection daemon",
		Long:          "reflectd runs a fully local AI reflection pipeline for journal entries:\nmodel provisioning, llama.cpp inference and a content-addressed result cache.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a config file (.yaml|.json|.toml)")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Application data directory (default ~/.reflectd)")
	root.PersistentFlags().StringVar(&opts.modelsDir, "models-dir", "", "Model artifact directory (default <data-dir>/models)")
	root.PersistentFlags().StringVar(&opts.cacheDir, "cache-dir", "", "Reflection cache directory (default <data-dir>/ai_cache)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs instead of console output")

	root.AddCommand(
		newServeCmd(opts),
		newDownloadCmd(opts),
		newRemoveCmd(opts),
		newReflectCmd(opts),
		newDiagnoseCmd(opts),
		newCacheCmd(opts),
	)
	return root
}

// loadConfig builds the effective configuration: file (if any) over defaults,
// then flag overrides, then path normalization.
func loadConfig(opts *cliOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		cfg, err = config.Load(opts.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.modelsDir != "" {
		cfg.ModelsDir = opts.modelsDir
	}
	if opts.cacheDir != "" {
		cfg.CacheDir = opts.cacheDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Normalize(); err != nil {
		return cfg, fmt.Errorf("normalize config: %w", err)
	}
	return cfg, nil
}

func newLogger(opts *cliOptions, cfg config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if opts.logJSON {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

// buildService wires the full pipeline from configuration.
func buildService(cfg config.Config, log zerolog.Logger) (*reflection.Service, error) {
	mgr, err := provision.New(provision.Config{
		Artifact:  provision.DefaultArtifact(cfg.ModelRepo, cfg.ModelFile),
		ModelsDir: cfg.ModelsDir,
		Logger:    log,
	})
	if err != nil {
		return nil, fmt.Errorf("provisioning manager: %w", err)
	}
	eng := engine.New(engine.Config{
		ModelPath:   mgr.ModelPath(),
		Threads:     cfg.Threads,
		ContextSize: cfg.ContextSize,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		LoadRetries: cfg.LoadRetries,
		Logger:      log,
	})
	svc := reflection.New(reflection.Config{
		Provision:       mgr,
		Engine:          eng,
		Prompt:          prompt.New(prompt.DefaultConfig()),
		Cache:           cache.New(cfg.CacheDir, cfg.CacheEnabled, cfg.CacheExpiry(), log),
		LoadRetries:     cfg.ServiceLoadRetries,
		DiagnosticsPath: filepath.Join(cfg.DataDir, "diagnostics.json"),
		Logger:          log,
	})
	return svc, nil
}

// splitCSV splits a comma-separated flag value, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
