package types

import "time"

// ReflectionResult is the structured outcome of analyzing one journal entry.
// Immutable once constructed; serialized as-is into the reflection cache.
type ReflectionResult struct {
	// Observations about the writer's thoughts, feelings or situation.
	Insights []string `json:"insights"`
	// Open-ended questions for further reflection.
	Questions []string `json:"questions"`
	// Short lowercase slug tags describing key topics.
	// example: ["relationships","self_care"]
	Themes []string `json:"themes"`
	// When the reflection was generated (RFC 3339).
	GeneratedAt time.Time `json:"generated_at"`
	// Wall-clock duration of this request, including cache retrieval time
	// when the result was served from cache.
	GenerationTime time.Duration `json:"generation_time_ns"`
	// Identifier of the model that produced the reflection, or "none" when
	// the result is a fallback.
	ModelUsed string `json:"model_used"`
	// True when the result was served from the reflection cache.
	Cached bool `json:"cached"`
	// Non-empty when the result is a degraded fallback. The result itself is
	// still valid, user-facing content.
	Error string `json:"error,omitempty"`
}

// DownloadStatus enumerates the lifecycle states of an artifact transfer.
type DownloadStatus string

const (
	DownloadInitializing DownloadStatus = "initializing"
	DownloadActive       DownloadStatus = "downloading"
	DownloadValidating   DownloadStatus = "validating"
	DownloadComplete     DownloadStatus = "complete"
	DownloadError        DownloadStatus = "error"
)

// Terminal reports whether no further progress updates will follow.
func (s DownloadStatus) Terminal() bool {
	return s == DownloadComplete || s == DownloadError
}

// DownloadProgress is a point-in-time snapshot of an artifact transfer.
type DownloadProgress struct {
	// Bytes written to disk so far.
	BytesDownloaded int64 `json:"bytes_downloaded"`
	// Expected total size in bytes; 0 while unknown.
	TotalBytes int64 `json:"total_bytes"`
	// Instantaneous throughput in bytes per second.
	Speed float64 `json:"speed_bps"`
	// Estimated seconds remaining; negative while unknown.
	ETASeconds int `json:"eta_seconds"`
	// Current transfer status.
	Status DownloadStatus `json:"status"`
	// Human-readable message for the error status.
	ErrorMessage string `json:"error_message,omitempty"`
}

// ModelArtifact identifies a specific quantized model file on a remote host
// and its local validation bounds.
type ModelArtifact struct {
	// Stable remote identifier (repository path).
	// example: Qwen/Qwen2.5-3B-Instruct-GGUF
	Repo string `json:"repo"`
	// File name within the repository; also the local file name.
	// example: qwen2.5-3b-instruct-q4_k_m.gguf
	File string `json:"file"`
	// Inclusive size bounds in bytes for a valid artifact.
	MinBytes int64 `json:"min_bytes"`
	MaxBytes int64 `json:"max_bytes"`
}

// ArtifactInfo describes the artifact and its on-disk state for status
// reporting.
type ArtifactInfo struct {
	Repo      string `json:"repo"`
	File      string `json:"file"`
	Path      string `json:"path"`
	Available bool   `json:"available"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}
