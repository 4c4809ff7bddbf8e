package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newReflectCmd(opts *cliOptions) *cobra.Command {
	var (
		entryDate string
		force     bool
	)
	cmd := &cobra.Command{
		Use:   "reflect [entry text]",
		Short: "Generate a reflection for a single journal entry",
		Long:  "Reads the entry from the argument, or from stdin when no argument is given,\nand prints the reflection result as JSON.",
		Example: "  reflectd reflect \"Today I went for a long walk and ...\"\n" +
			"  cat entry.txt | reflectd reflect --date 2026-08-30",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts, cfg)
			svc, err := buildService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			var content string
			if len(args) == 1 {
				content = args[0]
			} else {
				b, err := io.ReadAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				content = string(b)
			}
			if strings.TrimSpace(content) == "" {
				return fmt.Errorf("entry text is empty")
			}
			if entryDate == "" {
				entryDate = time.Now().Format("2006-01-02")
			}

			res := svc.GenerateReflection(cmd.Context(), content, entryDate, force, func(phase string) {
				fmt.Fprintln(os.Stderr, phase)
			})
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&entryDate, "date", "", "Entry date (YYYY-MM-DD, defaults to today)")
	cmd.Flags().BoolVar(&force, "force", false, "Bypass the cache and regenerate")
	return cmd
}

func newDiagnoseCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Diagnose the pipeline and attempt repairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts, cfg)
			svc, err := buildService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()
			report := svc.DiagnoseAndRepair(cmd.Context())
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newCacheCmd(opts *cliOptions) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the reflection cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("cache requires a subcommand: stats|clear")
		},
	}
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts, cfg)
			svc, err := buildService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(svc.CacheStats())
		},
	}
	clear := &cobra.Command{
		Use:   "clear",
		Short: "Delete all cached reflections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts, cfg)
			svc, err := buildService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.ClearCache(); err != nil {
				return err
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
	cacheCmd.AddCommand(stats, clear)
	return cacheCmd
}
