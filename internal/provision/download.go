package provision

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"

	"reflectd/pkg/types"
)

// Adaptive chunk sizing bounds. The transfer grows or shrinks its chunk size
// between these based on measured throughput.
const (
	minChunkBytes     = 256 << 10
	maxChunkBytes     = 8 << 20
	initialChunkBytes = 1 << 20
)

// errCancelled is the cooperative cancellation signal inside the worker.
var errCancelled = errors.New("download cancelled by user")

// Download starts the background transfer worker unless one is already
// active; a second call while a download runs is a no-op and returns false.
// Progress snapshots are rate-limited to the configured update interval and
// delivered both to sink (may be nil) and to Progress().
func (m *Manager) Download(sink func(types.DownloadProgress)) bool {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return false
	}
	m.active = true
	m.started = true
	m.cancelCh = make(chan struct{})
	m.done = make(chan struct{})
	m.progress = types.DownloadProgress{Status: types.DownloadInitializing}
	cancelCh := m.cancelCh
	done := m.done
	m.mu.Unlock()

	go m.run(sink, cancelCh, done)
	return true
}

// Cancel requests a cooperative stop of the in-flight transfer. The worker
// notices at the next chunk boundary, removes the temporary file and
// publishes a terminal error state. Idempotent; a no-op without an active
// download.
func (m *Manager) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	select {
	case <-m.cancelCh:
	default:
		close(m.cancelCh)
	}
}

// Downloading reports whether a transfer worker is currently active.
func (m *Manager) Downloading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Progress returns the latest progress snapshot and whether a download has
// ever been started on this manager.
func (m *Manager) Progress() (types.DownloadProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress, m.started
}

// Wait blocks until the current download reaches a terminal state. Returns
// immediately when no download was started.
func (m *Manager) Wait() {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Manager) run(sink func(types.DownloadProgress), cancelCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer func() {
		m.mu.Lock()
		m.active = false
		m.mu.Unlock()
	}()

	setState := func(p types.DownloadProgress) {
		m.mu.Lock()
		m.progress = p
		m.mu.Unlock()
		if sink != nil {
			sink(p)
		}
	}
	fail := func(msg string) {
		_ = os.Remove(m.TempPath())
		setState(types.DownloadProgress{Status: types.DownloadError, ErrorMessage: msg})
	}

	setState(types.DownloadProgress{Status: types.DownloadInitializing})
	// a previous partial transfer may be resumable; stale non-resumable
	// state is handled by the attempt itself

	total, err := m.transfer(sink, cancelCh)
	switch {
	case errors.Is(err, errCancelled):
		m.log.Info().Msg("model download cancelled")
		fail(errCancelled.Error())
		return
	case err != nil:
		m.log.Warn().Err(err).Msg("model download failed")
		fail(err.Error())
		return
	}

	setState(types.DownloadProgress{
		BytesDownloaded: total,
		TotalBytes:      total,
		Status:          types.DownloadValidating,
	})
	if !m.validateFile(m.TempPath()) {
		fail("downloaded file failed validation")
		return
	}
	// Rename only after validation so the final path never holds a partial
	// or invalid artifact.
	if err := os.Rename(m.TempPath(), m.ModelPath()); err != nil {
		fail("finalize artifact: " + err.Error())
		return
	}
	m.log.Info().Str("path", m.ModelPath()).Int64("bytes", total).Msg("model download complete")
	setState(types.DownloadProgress{
		BytesDownloaded: total,
		TotalBytes:      total,
		Status:          types.DownloadComplete,
	})
}

// transfer drives the streaming download with bounded transport retries and
// exponential backoff, resuming from the bytes already on disk.
func (m *Manager) transfer(sink func(types.DownloadProgress), cancelCh <-chan struct{}) (int64, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 0 // attempts are bounded by count, not wall clock

	var lastErr error
	for attempt := 0; attempt <= m.transportRetries; attempt++ {
		if attempt > 0 {
			wait := bo.NextBackOff()
			m.log.Debug().Dur("wait", wait).Int("attempt", attempt).Msg("retrying model download")
			select {
			case <-time.After(wait):
			case <-cancelCh:
				return 0, errCancelled
			}
		}
		total, err := m.attempt(sink, cancelCh)
		if err == nil || errors.Is(err, errCancelled) {
			return total, err
		}
		lastErr = err
	}
	return 0, fmt.Errorf("download failed after %d attempts: %w", m.transportRetries+1, lastErr)
}

// attempt performs one streaming transfer into the temporary path.
func (m *Manager) attempt(sink func(types.DownloadProgress), cancelCh <-chan struct{}) (int64, error) {
	url := fmt.Sprintf("%s/%s/resolve/main/%s", m.baseURL, m.artifact.Repo, m.artifact.File)

	var offset int64
	if fi, err := os.Stat(m.TempPath()); err == nil {
		offset = fi.Size()
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// server ignored the range request; start over
		offset = 0
	case http.StatusPartialContent:
		// resuming from offset
	case http.StatusNotFound:
		return 0, fmt.Errorf("model artifact not found at %s", url)
	default:
		return 0, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	flags := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(m.TempPath(), flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	total := int64(0)
	if resp.ContentLength >= 0 {
		total = offset + resp.ContentLength
	}

	written := offset
	chunkSize := initialChunkBytes
	buf := make([]byte, maxChunkBytes)
	lastPublish := time.Now()
	lastWritten := written
	var speedSamples []float64

	for {
		select {
		case <-cancelCh:
			return 0, errCancelled
		default:
		}

		n, rerr := resp.Body.Read(buf[:chunkSize])
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return 0, werr
			}
			written += int64(n)
		}

		now := time.Now()
		if now.Sub(lastPublish) >= m.updateInterval {
			// instantaneous throughput over the window since the last
			// publish, not a cumulative average since transfer start
			window := now.Sub(lastPublish).Seconds()
			var speed float64
			if window > 0 {
				speed = float64(written-lastWritten) / window
			}
			speedSamples = append(speedSamples, speed)
			if len(speedSamples) > 5 {
				speedSamples = speedSamples[len(speedSamples)-5:]
			}
			chunkSize = adaptChunkSize(chunkSize, speedSamples)

			eta := -1
			if speed > 0 && total > 0 {
				eta = int(float64(total-written) / speed)
			}
			p := types.DownloadProgress{
				BytesDownloaded: written,
				TotalBytes:      total,
				Speed:           speed,
				ETASeconds:      eta,
				Status:          types.DownloadActive,
			}
			m.mu.Lock()
			m.progress = p
			m.mu.Unlock()
			if sink != nil {
				sink(p)
			}
			lastPublish = now
			lastWritten = written
		}

		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return 0, rerr
		}
	}

	if err := f.Sync(); err != nil {
		return 0, err
	}
	return written, nil
}

// adaptChunkSize grows or shrinks the chunk size within bounds based on the
// rolling mean of recent throughput samples.
func adaptChunkSize(current int, samples []float64) int {
	if len(samples) < 5 {
		return current
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	avg := sum / float64(len(samples))
	switch {
	case avg < 1<<20 && current > minChunkBytes:
		return current / 2
	case avg > 5<<20 && current < maxChunkBytes:
		return current * 2
	}
	return current
}
