// Package provision acquires and validates the model artifact on disk. The
// artifact is a single GGUF file fetched over HTTPS into a temporary path and
// renamed into place only after validation passes.
package provision

import (
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"reflectd/internal/common/fsutil"
	"reflectd/pkg/types"
)

// ggufMagic is the 4-byte signature every valid artifact starts with.
const ggufMagic = "GGUF"

// Size bounds for a plausible quantized model file.
const (
	MinArtifactBytes = int64(1_000_000_000)
	MaxArtifactBytes = int64(3_000_000_000)
)

const (
	defaultBaseURL             = "https://huggingface.co"
	defaultAvailabilityRetries = 3
	defaultTransportRetries    = 3
	defaultUpdateInterval      = 3 * time.Second
)

// DefaultArtifact fills validation bounds for an artifact identified by repo
// and file name.
func DefaultArtifact(repo, file string) types.ModelArtifact {
	return types.ModelArtifact{
		Repo:     repo,
		File:     file,
		MinBytes: MinArtifactBytes,
		MaxBytes: MaxArtifactBytes,
	}
}

// Config holds construction parameters for the Manager. Zero values fall
// back to package defaults.
type Config struct {
	Artifact  types.ModelArtifact
	ModelsDir string
	// BaseURL of the artifact host; overridable for tests.
	BaseURL string
	// AvailabilityRetries bounds the settle-retry loop in Available.
	AvailabilityRetries int
	// TransportRetries bounds network retry attempts during download.
	TransportRetries int
	// UpdateInterval rate-limits progress notifications.
	UpdateInterval time.Duration
	HTTPClient     *http.Client
	Logger         zerolog.Logger
}

// Manager owns artifact acquisition and validation. At most one download
// worker is active per Manager.
type Manager struct {
	artifact         types.ModelArtifact
	modelsDir        string
	baseURL          string
	availRetries     int
	transportRetries int
	updateInterval   time.Duration
	client           *http.Client
	log              zerolog.Logger

	mu       sync.Mutex
	active   bool
	started  bool // a download has been started at least once
	cancelCh chan struct{}
	progress types.DownloadProgress
	done     chan struct{}
}

// New constructs a Manager and makes sure the models directory exists.
func New(cfg Config) (*Manager, error) {
	if cfg.Artifact.MinBytes == 0 {
		cfg.Artifact.MinBytes = MinArtifactBytes
	}
	if cfg.Artifact.MaxBytes == 0 {
		cfg.Artifact.MaxBytes = MaxArtifactBytes
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AvailabilityRetries <= 0 {
		cfg.AvailabilityRetries = defaultAvailabilityRetries
	}
	if cfg.TransportRetries <= 0 {
		cfg.TransportRetries = defaultTransportRetries
	}
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = defaultUpdateInterval
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 0} // streaming; no overall timeout
	}
	if err := fsutil.EnsureDir(cfg.ModelsDir); err != nil {
		return nil, err
	}
	return &Manager{
		artifact:         cfg.Artifact,
		modelsDir:        cfg.ModelsDir,
		baseURL:          cfg.BaseURL,
		availRetries:     cfg.AvailabilityRetries,
		transportRetries: cfg.TransportRetries,
		updateInterval:   cfg.UpdateInterval,
		client:           cfg.HTTPClient,
		log:              cfg.Logger,
	}, nil
}

// ModelPath is the final on-disk location of the artifact.
func (m *Manager) ModelPath() string {
	return filepath.Join(m.modelsDir, m.artifact.File)
}

// TempPath is the in-progress transfer location.
func (m *Manager) TempPath() string {
	return m.ModelPath() + ".tmp"
}

func (m *Manager) cacheDir() string {
	return filepath.Join(m.modelsDir, "cache")
}

// Available reports whether a valid artifact is on disk: the file exists,
// its size is within bounds and its first bytes match the GGUF signature.
// The check is retried with short sleeps because the file can be briefly
// invisible or short right after a write completes on packaged deployments;
// that is an accepted condition to retry through, not an error.
func (m *Manager) Available() bool {
	for attempt := 0; attempt < m.availRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		if m.validateFile(m.ModelPath()) {
			return true
		}
	}
	return false
}

// validateFile runs the three-part check on one candidate path. Any failure
// means "not valid", never an error.
func (m *Manager) validateFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return false
	}
	if fi.Size() < m.artifact.MinBytes || fi.Size() > m.artifact.MaxBytes {
		return false
	}
	header, err := fsutil.ReadHeader(path, len(ggufMagic))
	if err != nil {
		return false
	}
	return string(header) == ggufMagic
}

// Validate returns the step-by-step validation outcome for diagnostics.
func (m *Manager) Validate() types.ArtifactValidation {
	v := types.ArtifactValidation{
		Path:         m.ModelPath(),
		ParentExists: fsutil.PathExists(m.modelsDir),
	}
	fi, err := os.Stat(v.Path)
	if err != nil {
		v.ErrorMessage = "artifact file does not exist"
		return v
	}
	v.PathExists = true
	v.SizeBytes = fi.Size()
	if _, err := fsutil.ReadHeader(v.Path, 1); err != nil {
		v.ErrorMessage = "artifact file not readable: " + err.Error()
		return v
	}
	v.PathReadable = true
	if fi.Size() < m.artifact.MinBytes || fi.Size() > m.artifact.MaxBytes {
		v.ErrorMessage = "artifact size out of bounds"
		return v
	}
	v.SizeValid = true
	header, err := fsutil.ReadHeader(v.Path, len(ggufMagic))
	if err != nil || string(header) != ggufMagic {
		v.ErrorMessage = "invalid GGUF signature"
		return v
	}
	v.HeaderValid = true
	v.Valid = true
	return v
}

// Remove deletes the artifact and the transfer cache directory.
func (m *Manager) Remove() error {
	if err := os.Remove(m.ModelPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(m.cacheDir()); err != nil {
		return err
	}
	return nil
}

// Info describes the artifact and its current on-disk state.
func (m *Manager) Info() types.ArtifactInfo {
	info := types.ArtifactInfo{
		Repo: m.artifact.Repo,
		File: m.artifact.File,
		Path: m.ModelPath(),
	}
	if fi, err := os.Stat(info.Path); err == nil {
		info.SizeBytes = fi.Size()
	}
	info.Available = m.Available()
	return info
}

// Requirements summarizes whether the host can hold and run the artifact.
type Requirements struct {
	Met               bool     `json:"met"`
	Issues            []string `json:"issues,omitempty"`
	FreeDiskBytes     uint64   `json:"free_disk_bytes"`
	AvailableMemBytes uint64   `json:"available_mem_bytes"`
}

// minimum free space for download plus temporary file
const minFreeDiskBytes = 3 << 30

// CheckSystemRequirements verifies disk space for the download and gives a
// memory advisory. Probe failures are reported as issues, not errors.
func (m *Manager) CheckSystemRequirements() Requirements {
	req := Requirements{Met: true}
	if du, err := disk.Usage(m.modelsDir); err == nil {
		req.FreeDiskBytes = du.Free
		if du.Free < minFreeDiskBytes {
			req.Met = false
			req.Issues = append(req.Issues, "insufficient disk space: need at least 3GB free for the model download")
		}
	} else {
		req.Issues = append(req.Issues, "could not determine free disk space: "+err.Error())
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		req.AvailableMemBytes = vm.Available
		if vm.Available < 2<<30 {
			req.Issues = append(req.Issues, "low available memory: at least 2GB recommended for model loading")
		}
	} else {
		req.Issues = append(req.Issues, "could not determine available memory: "+err.Error())
	}
	return req
}
