package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"reflectd/internal/provision"
	"reflectd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	GenerateReflection(ctx context.Context, content, entryDate string, forceRegenerate bool, onProgress func(string)) types.ReflectionResult
	Status() types.StatusResponse
	DiagnoseAndRepair(ctx context.Context) types.DiagnosticReport
	ClearCache() error
	CacheStats() types.CacheStats
	UnloadModel()
	Ready() bool
	Provision() *provision.Manager
}

// NewMux builds the HTTP handler for the reflection daemon.
func NewMux(svc Service) http.Handler {
	startTime := time.Now()

	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	r.Use(MetricsMiddleware)

	r.Post("/reflect", func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		var req types.ReflectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			writeJSONError(w, http.StatusBadRequest, "content is required")
			return
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Int("content_len", len(req.Content)).Bool("force", req.ForceRegenerate)
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("reflect start")
			} else {
				log.Printf("reflect start content_len=%d force=%v", len(req.Content), req.ForceRegenerate)
			}
		}

		// Join server base context with request context so shutdown cancels
		// work too.
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if reflectTimeout > 0 {
			var tcancel context.CancelFunc
			joinedCtx, tcancel = context.WithTimeout(joinedCtx, time.Duration(reflectTimeout)*time.Second)
			defer tcancel()
		}

		var onProgress func(string)
		if lvl >= LevelDebug && zlog != nil {
			onProgress = func(phase string) { zlog.Debug().Str("phase", phase).Msg("reflect progress") }
		}
		res := svc.GenerateReflection(joinedCtx, req.Content, req.EntryDate, req.ForceRegenerate, onProgress)

		outcome := "generated"
		switch {
		case res.Cached:
			outcome = "cached"
		case res.Error != "":
			outcome = "degraded"
		}
		observeReflection(outcome, time.Since(start))
		if lvl >= LevelInfo {
			if zlog != nil {
				z := zlog.Info().Str("outcome", outcome).Dur("dur", time.Since(start))
				if rid := middleware.GetReqID(r.Context()); rid != "" {
					z = z.Str("request_id", rid)
				}
				z.Msg("reflect end")
			} else {
				log.Printf("reflect end outcome=%s dur=%s", outcome, time.Since(start))
			}
		}
		writeJSON(w, res)
	})

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		resp := svc.Status()
		resp.UptimeSeconds = int64(time.Since(startTime).Seconds())
		resp.ServerTimeUnix = time.Now().Unix()
		writeJSON(w, resp)
	})

	r.Route("/model", func(r chi.Router) {
		r.Post("/download", func(w http.ResponseWriter, r *http.Request) {
			mgr := svc.Provision()
			if mgr.Available() {
				writeJSON(w, map[string]any{"started": false, "reason": "model already available"})
				return
			}
			if req := mgr.CheckSystemRequirements(); !req.Met {
				writeJSONError(w, http.StatusInsufficientStorage, strings.Join(req.Issues, "; "))
				return
			}
			if !mgr.Download(nil) {
				writeJSONError(w, http.StatusConflict, "a download is already running")
				return
			}
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(map[string]any{"started": true})
		})

		r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
			p, started := svc.Provision().Progress()
			if !started {
				writeJSONError(w, http.StatusNotFound, "no download has been started")
				return
			}
			writeJSON(w, p)
		})

		r.Post("/cancel", func(w http.ResponseWriter, r *http.Request) {
			mgr := svc.Provision()
			if !mgr.Downloading() {
				writeJSONError(w, http.StatusConflict, "no active download")
				return
			}
			mgr.Cancel()
			mgr.Wait()
			writeJSON(w, map[string]any{"cancelled": true})
		})

		r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
			mgr := svc.Provision()
			if mgr.Downloading() {
				writeJSONError(w, http.StatusConflict, "cannot remove while a download is running")
				return
			}
			svc.UnloadModel()
			if err := mgr.Remove(); err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, map[string]any{"removed": true})
		})
	})

	r.Post("/diagnose", func(w http.ResponseWriter, r *http.Request) {
		joinedCtx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		writeJSON(w, svc.DiagnoseAndRepair(joinedCtx))
	})

	r.Route("/cache", func(r chi.Router) {
		r.Post("/clear", func(w http.ResponseWriter, r *http.Request) {
			if err := svc.ClearCache(); err != nil {
				writeJSONError(w, http.StatusInternalServerError, err.Error())
				return
			}
			writeJSON(w, map[string]any{"cleared": true})
		})
		r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, svc.CacheStats())
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}
