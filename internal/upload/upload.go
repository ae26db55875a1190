// Package upload sequences a file transfer: request a one-time upload URL,
// push the bytes directly with progress reporting, then register the storage
// handle for a durable file reference. Registration only happens after a
// successful transfer, so a failed upload never leaves an orphaned file
// record behind.
package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parleyhq/parley/internal/backend"
)

// ProgressFunc receives fractional progress in [0,100]. It is guaranteed to
// be called with exactly 100 once the transfer completes, even if the
// underlying reader never reports a final chunk.
type ProgressFunc func(percent float64)

// Uploader performs progress-tracked file uploads against a backend
type Uploader struct {
	client backend.Client
	http   *http.Client
}

// New creates an uploader. A nil httpClient gets a sensible default timeout.
func New(client backend.Client, httpClient *http.Client) *Uploader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Uploader{client: client, http: httpClient}
}

// Upload transfers size bytes from r under the given filename and returns the
// registered durable file reference.
func (u *Uploader) Upload(ctx context.Context, r io.Reader, size int64, filename string, onProgress ProgressFunc) (backend.FileRef, error) {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	target, err := u.client.GenerateUploadURL(ctx, filename)
	if err != nil {
		return backend.FileRef{}, fmt.Errorf("failed to get upload URL: %w", err)
	}

	body := &progressReader{r: r, total: size, onProgress: onProgress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target.UploadURL, body)
	if err != nil {
		return backend.FileRef{}, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.ContentLength = size

	resp, err := u.http.Do(req)
	if err != nil {
		return backend.FileRef{}, fmt.Errorf("upload transfer failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return backend.FileRef{}, fmt.Errorf("upload rejected with status %d", resp.StatusCode)
	}

	// The transfer finished; make sure the caller sees completion even when
	// the reader under-reported (zero-length files, chunked bodies).
	onProgress(100)

	ref, err := u.client.RegisterFile(ctx, target.StorageKey, filename)
	if err != nil {
		return backend.FileRef{}, fmt.Errorf("failed to register file: %w", err)
	}
	if ref.FileID == "" || ref.URL == "" {
		return backend.FileRef{}, fmt.Errorf("malformed registration response for %q", filename)
	}
	return ref, nil
}

// progressReader reports cumulative read progress as a percentage of total.
type progressReader struct {
	r          io.Reader
	total      int64
	read       int64
	onProgress ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.read += int64(n)
		if p.total > 0 {
			pct := float64(p.read) / float64(p.total) * 100
			if pct > 100 {
				pct = 100
			}
			p.onProgress(pct)
		}
	}
	return n, err
}
