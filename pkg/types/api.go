package types

// ReflectRequest is the payload accepted by POST /reflect.
type ReflectRequest struct {
	// Journal entry content to analyze.
	// example: Today I finally finished the project I had been putting off...
	Content string `json:"content" example:"Today I finally finished the project..."`
	// Optional entry date in YYYY-MM-DD form, used for cache keying and
	// prompt context.
	// example: 2026-08-31
	EntryDate string `json:"entry_date,omitempty" example:"2026-08-31"`
	// Skip the cache and force a fresh generation.
	// example: false
	ForceRegenerate bool `json:"force_regenerate,omitempty" example:"false"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// EngineStatus summarizes the inference engine for GET /status.
type EngineStatus struct {
	// Lifecycle state: unloaded, loading or loaded.
	// example: loaded
	State string `json:"state" example:"loaded"`
	// Last load error, if any.
	LoadError string `json:"load_error,omitempty"`
	// Effective generation configuration.
	Threads     int     `json:"threads" example:"4"`
	ContextSize int     `json:"context_size" example:"2048"`
	Temperature float64 `json:"temperature" example:"0.7"`
	MaxTokens   int     `json:"max_tokens" example:"512"`
}

// CacheStats reports reflection cache usage for GET /cache/stats.
type CacheStats struct {
	// Whether caching is enabled at all.
	Enabled bool `json:"enabled"`
	// Number of cached reflections on disk.
	Entries int `json:"entries"`
	// Total size of all cache records in bytes.
	SizeBytes int64 `json:"size_bytes"`
	// Directory holding the cache records.
	Dir string `json:"dir,omitempty"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// True when the artifact is valid on disk and the engine has a handle.
	Ready bool `json:"ready"`
	// Artifact identity and on-disk state.
	Artifact ArtifactInfo `json:"artifact"`
	// Engine lifecycle and configuration.
	Engine EngineStatus `json:"engine"`
	// Reflection cache usage.
	Cache CacheStats `json:"cache"`
	// In-flight or last download progress, if a download was started.
	Download *DownloadProgress `json:"download,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total reflections generated since start (excludes cache hits).
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
}

// DiagnosticReport is returned by POST /diagnose.
type DiagnosticReport struct {
	// Unique identifier of this diagnostic run.
	ID string `json:"id"`
	// Issues discovered during inspection, human readable.
	IssuesFound []string `json:"issues_found"`
	// Repairs that were attempted, with their outcome.
	RepairsAttempted []string `json:"repairs_attempted"`
	// False when at least one attempted repair failed.
	RepairSuccess bool `json:"repair_success"`
	// Overall service state after repairs: available or unavailable.
	FinalStatus string `json:"final_status"`
	// Detailed artifact validation outcome.
	Artifact ArtifactValidation `json:"artifact"`
}

// ArtifactValidation is the step-by-step outcome of artifact validation.
type ArtifactValidation struct {
	PathExists    bool   `json:"path_exists"`
	PathReadable  bool   `json:"path_readable"`
	SizeValid     bool   `json:"size_valid"`
	HeaderValid   bool   `json:"header_valid"`
	Valid         bool   `json:"valid"`
	ErrorMessage  string `json:"error_message,omitempty"`
	Path          string `json:"path"`
	ParentExists  bool   `json:"parent_exists"`
	SizeBytes     int64  `json:"size_bytes,omitempty"`
}
