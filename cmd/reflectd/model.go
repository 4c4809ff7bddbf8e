package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reflectd/internal/provision"
	"reflectd/pkg/types"
)

func newDownloadCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download the model artifact and validate it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts, cfg)
			mgr, err := provision.New(provision.Config{
				Artifact:  provision.DefaultArtifact(cfg.ModelRepo, cfg.ModelFile),
				ModelsDir: cfg.ModelsDir,
				Logger:    log,
			})
			if err != nil {
				return err
			}
			if mgr.Available() {
				fmt.Println("model already available at", mgr.ModelPath())
				return nil
			}
			if req := mgr.CheckSystemRequirements(); !req.Met {
				for _, issue := range req.Issues {
					fmt.Fprintln(os.Stderr, "requirement not met:", issue)
				}
				return fmt.Errorf("system requirements not met")
			}
			if !mgr.Download(printProgress) {
				return fmt.Errorf("a download is already running")
			}
			mgr.Wait()
			fmt.Println()
			p, _ := mgr.Progress()
			if p.Status == types.DownloadError {
				return fmt.Errorf("download failed: %s", p.ErrorMessage)
			}
			fmt.Println("model ready at", mgr.ModelPath())
			return nil
		},
	}
}

func newRemoveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove",
		Short: "Remove the model artifact and cached reflections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log := newLogger(opts, cfg)
			mgr, err := provision.New(provision.Config{
				Artifact:  provision.DefaultArtifact(cfg.ModelRepo, cfg.ModelFile),
				ModelsDir: cfg.ModelsDir,
				Logger:    log,
			})
			if err != nil {
				return err
			}
			if err := mgr.Remove(); err != nil {
				return err
			}
			fmt.Println("removed", mgr.ModelPath())
			return nil
		},
	}
}

// printProgress renders a single-line progress display on stderr.
func printProgress(p types.DownloadProgress) {
	switch p.Status {
	case types.DownloadActive:
		total := "?"
		if p.TotalBytes > 0 {
			total = provision.FormatBytes(p.TotalBytes)
		}
		fmt.Fprintf(os.Stderr, "\r%s / %s  %s  ETA %s    ",
			provision.FormatBytes(p.BytesDownloaded), total,
			provision.FormatSpeed(p.Speed), provision.FormatETA(p.ETASeconds))
	case types.DownloadValidating:
		fmt.Fprintf(os.Stderr, "\rvalidating...                              ")
	}
}
