package reflection

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"

	"reflectd/internal/common/fsutil"
	"reflectd/pkg/types"
)

// DiagnoseAndRepair inspects artifact validity, engine state and the cache
// directory, attempts the cheap repairs and reports what was found and
// tried. The common real-world failure is a filesystem settling race right
// after installation, so a reload attempt fixes most of what this finds.
func (s *Service) DiagnoseAndRepair(ctx context.Context) types.DiagnosticReport {
	report := types.DiagnosticReport{
		ID:            uuid.NewString(),
		RepairSuccess: true,
	}
	s.log.Info().Str("report_id", report.ID).Msg("starting diagnosis")

	report.Artifact = s.provision.Validate()
	if !report.Artifact.Valid {
		report.IssuesFound = append(report.IssuesFound, "model validation failed: "+report.Artifact.ErrorMessage)
	}

	if le := s.engine.LoadError(); le != "" {
		report.IssuesFound = append(report.IssuesFound, "last model load failed: "+le)
	}

	if report.Artifact.Valid && !s.engine.Loaded() {
		report.IssuesFound = append(report.IssuesFound, "model available but not loaded")
		report.RepairsAttempted = append(report.RepairsAttempted, "load model")
		if err := s.engine.LoadWithRetries(ctx, s.cfg.LoadRetries); err != nil {
			report.RepairsAttempted = append(report.RepairsAttempted, "load model failed: "+err.Error())
			report.RepairSuccess = false
		} else {
			report.RepairsAttempted = append(report.RepairsAttempted, "load model succeeded")
		}
	} else if s.engine.Loaded() && !s.engine.ValidateHealth(ctx) {
		report.IssuesFound = append(report.IssuesFound, "loaded model failed health probe")
		report.RepairsAttempted = append(report.RepairsAttempted, "reload model")
		if err := s.engine.LoadWithRetries(ctx, s.cfg.LoadRetries); err != nil {
			report.RepairsAttempted = append(report.RepairsAttempted, "reload model failed: "+err.Error())
			report.RepairSuccess = false
		} else {
			report.RepairsAttempted = append(report.RepairsAttempted, "reload model succeeded")
		}
	}

	if s.cache.Enabled() && !fsutil.PathExists(s.cache.Dir()) {
		report.IssuesFound = append(report.IssuesFound, "cache directory missing")
		report.RepairsAttempted = append(report.RepairsAttempted, "recreate cache directory")
		if err := fsutil.EnsureDir(s.cache.Dir()); err != nil {
			report.RepairsAttempted = append(report.RepairsAttempted, "recreate cache directory failed: "+err.Error())
			report.RepairSuccess = false
		}
	}

	if s.Ready() {
		report.FinalStatus = "available"
	} else {
		report.FinalStatus = "unavailable"
	}
	s.log.Info().
		Str("report_id", report.ID).
		Str("final_status", report.FinalStatus).
		Int("issues", len(report.IssuesFound)).
		Int("repairs", len(report.RepairsAttempted)).
		Msg("diagnosis complete")

	s.appendDiagnostic(map[string]any{
		"event":        "diagnose_and_repair",
		"report_id":    report.ID,
		"final_status": report.FinalStatus,
		"issues":       report.IssuesFound,
		"repairs":      report.RepairsAttempted,
	})
	return report
}

// diagnosticEntry is one line of the on-disk diagnostic log.
type diagnosticEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Info      map[string]any `json:"info"`
}

const maxDiagnosticEntries = 50

// appendDiagnostic records an event to the diagnostics file, keeping only
// the most recent entries. Failures are swallowed; diagnostics must never
// interfere with the pipeline.
func (s *Service) appendDiagnostic(info map[string]any) {
	path := s.cfg.DiagnosticsPath
	if path == "" {
		return
	}
	var entries []diagnosticEntry
	if raw, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(raw, &entries)
	}
	entries = append(entries, diagnosticEntry{Timestamp: time.Now(), Info: info})
	if len(entries) > maxDiagnosticEntries {
		entries = entries[len(entries)-maxDiagnosticEntries:]
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, raw, 0o644)
}
