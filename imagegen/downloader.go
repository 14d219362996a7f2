// downloader.go fetches generated views from the FAL CDN and writes them
// atomically under their final angle-based name.
package imagegen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"multiangle/core"
	"multiangle/vision"
)

// DefaultDownloadTimeout bounds a single image download.
const DefaultDownloadTimeout = 30 * time.Second

// Downloader saves generated images to disk.
//
// Downloads are attempted once. A failed download leaves nothing at the
// destination path.
type Downloader struct {
	client  *http.Client
	timeout time.Duration
}

// DownloaderConfig holds configuration for the Downloader.
type DownloaderConfig struct {
	// HTTPClient is shared with the API client so the run reuses connections.
	// If nil, a default client is created.
	HTTPClient *http.Client

	// Timeout bounds each download. Default: 30 seconds.
	Timeout time.Duration
}

// DefaultDownloaderConfig returns sensible defaults for downloading images.
func DefaultDownloaderConfig() DownloaderConfig {
	return DownloaderConfig{
		Timeout: DefaultDownloadTimeout,
	}
}

// NewDownloader creates a downloader.
func NewDownloader(cfg DownloaderConfig) *Downloader {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultDownloadTimeout
	}
	return &Downloader{client: client, timeout: timeout}
}

// DownloadResult contains information about the downloaded image.
type DownloadResult struct {
	Path        string
	Size        int64
	ContentType string
}

// Download fetches url into destPath. The body must be complete and carry a
// decodable image header; only then is it written to a temporary file beside
// destPath and renamed into place.
func (d *Downloader) Download(ctx context.Context, url, destPath string) (*DownloadResult, error) {
	if url == "" {
		return nil, errors.New("imagegen: URL cannot be empty")
	}
	if destPath == "" {
		return nil, errors.New("imagegen: destination path cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to create download request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen: download failed with status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if ct := mediaType(contentType); ct != "" && !strings.HasPrefix(ct, "image/") && ct != "application/octet-stream" {
		return nil, fmt.Errorf("imagegen: download returned %s, not an image", ct)
	}

	size, err := core.WriteFileAtomic(destPath, func(w io.Writer) error {
		var body bytes.Buffer
		n, err := io.Copy(&body, resp.Body)
		if err != nil {
			return err
		}
		if resp.ContentLength > 0 && n != resp.ContentLength {
			return fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
		}
		if n == 0 {
			return errors.New("empty body")
		}
		if _, _, err := vision.DecodeConfig(bytes.NewReader(body.Bytes())); err != nil {
			return err
		}
		_, err = body.WriteTo(w)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen: failed to write %s: %w", filepath.Base(destPath), err)
	}

	return &DownloadResult{
		Path:        destPath,
		Size:        size,
		ContentType: contentType,
	}, nil
}

// ensureDir creates dir and its parents.
func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("imagegen: failed to create output directory: %w", err)
	}
	return nil
}

// mediaType lowercases a Content-Type and strips its parameters.
func mediaType(contentType string) string {
	lower := strings.ToLower(contentType)
	if idx := strings.Index(lower, ";"); idx != -1 {
		lower = lower[:idx]
	}
	return strings.TrimSpace(lower)
}
