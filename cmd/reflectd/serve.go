package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"reflectd/internal/httpapi"
)

func newServeCmd(opts *cliOptions) *cobra.Command {
	var (
		addr           string
		corsOrigins    string
		reflectTimeout int64
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reflection HTTP daemon",
		Example: "  reflectd serve\n" +
			"  reflectd serve --addr :8090 --cors-origins http://localhost:5173",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			log := newLogger(opts, cfg)

			svc, err := buildService(cfg, log)
			if err != nil {
				return err
			}
			defer svc.Close()

			httpapi.SetLogger(log)
			httpapi.SetReflectTimeoutSeconds(reflectTimeout)
			if corsOrigins != "" {
				httpapi.SetCORSOptions(true,
					splitCSV(corsOrigins),
					[]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
					[]string{"Content-Type", "X-Log-Level"})
			}

			// Base context joined into every request; cancelled during
			// shutdown so in-flight generations stop.
			baseCtx, baseCancel := context.WithCancel(context.Background())
			defer baseCancel()
			httpapi.SetBaseContext(baseCtx)

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           httpapi.NewMux(svc),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Msg("reflectd listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shCtx); err != nil {
					log.Warn().Err(err).Msg("graceful shutdown")
				}
				baseCancel()
				svc.UnloadModel()
				return nil
			})
			if cfg.AutoLoadModel && svc.Available() {
				g.Go(func() error {
					if svc.RetryInitialization(gctx) {
						log.Info().Msg("model preloaded")
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	defaultAddr := ""
	if v := os.Getenv("REFLECTD_ADDR"); v != "" {
		defaultAddr = v
	}
	cmd.Flags().StringVar(&addr, "addr", defaultAddr, "HTTP listen address, e.g. :8090 (defaults REFLECTD_ADDR or config)")
	cmd.Flags().StringVar(&corsOrigins, "cors-origins", "", "Comma-separated list of allowed CORS origins (empty disables CORS)")
	cmd.Flags().Int64Var(&reflectTimeout, "reflect-timeout", 0, "Per-request timeout in seconds for /reflect (0 disables)")
	return cmd
}
