package imagegen

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// assertNoFiles fails if dir contains anything, including temp files.
func assertNoFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read dir: %v", err)
	}
	for _, e := range entries {
		t.Errorf("unexpected file left behind: %s", e.Name())
	}
}

// TestDefaultDownloaderConfig tests default timeout.
func TestDefaultDownloaderConfig(t *testing.T) {
	cfg := DefaultDownloaderConfig()
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Timeout)
	}

	d := NewDownloader(DownloaderConfig{})
	if d.client == nil {
		t.Error("expected a default HTTP client")
	}
	if d.timeout != DefaultDownloadTimeout {
		t.Errorf("expected default timeout, got %v", d.timeout)
	}
}

// TestDownload_EmptyArguments tests argument validation.
func TestDownload_EmptyArguments(t *testing.T) {
	d := NewDownloader(DefaultDownloaderConfig())
	dir := t.TempDir()

	if _, err := d.Download(context.Background(), "", filepath.Join(dir, "a.png")); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := d.Download(context.Background(), "http://example.invalid/a.png", ""); err == nil {
		t.Error("expected error for empty destination")
	}
}

// TestDownload_Success tests that the body lands at the final path.
func TestDownload_Success(t *testing.T) {
	content := pngBytes(t, 4, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(content)
	}))
	defer server.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, ViewFileName(45, "png"))
	d := NewDownloader(DownloaderConfig{HTTPClient: server.Client()})

	result, err := d.Download(context.Background(), server.URL+"/out.png", dest)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Path != dest {
		t.Errorf("expected path %s, got %s", dest, result.Path)
	}
	if result.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), result.Size)
	}
	if result.ContentType != "image/png" {
		t.Errorf("expected content type image/png, got %s", result.ContentType)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("failed to read downloaded file: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("content mismatch: got %d bytes", len(data))
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the view in %s, got %d entries", dir, len(entries))
	}
}

// TestDownload_FailuresLeaveNoFile tests that no partial file survives a failed download.
func TestDownload_FailuresLeaveNoFile(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "truncated body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Header().Set("Content-Length", "1000")
				w.Write([]byte("only a little"))
			},
		},
		{
			name: "empty body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
			},
		},
		{
			name: "image content type with non-image body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "image/png")
				w.Write([]byte("fake png bytes"))
			},
		},
		{
			name: "html instead of image",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Write([]byte("<html>expired</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			dir := t.TempDir()
			d := NewDownloader(DownloaderConfig{HTTPClient: server.Client()})

			_, err := d.Download(context.Background(), server.URL, filepath.Join(dir, "view_000deg.png"))
			if err == nil {
				t.Fatal("expected error")
			}
			assertNoFiles(t, dir)
		})
	}
}

// TestDownload_ContextCancellation tests that cancellation aborts the download.
func TestDownload_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	dir := t.TempDir()
	d := NewDownloader(DownloaderConfig{HTTPClient: server.Client()})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := d.Download(ctx, server.URL, filepath.Join(dir, "view_000deg.png")); err == nil {
		t.Error("expected error for cancelled context")
	}
	assertNoFiles(t, dir)
}

// TestMediaType tests Content-Type normalization.
func TestMediaType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"image/png", "image/png"},
		{"IMAGE/JPEG; charset=binary", "image/jpeg"},
		{"", ""},
		{"  image/webp ", "image/webp"},
	}
	for _, tt := range tests {
		if got := mediaType(tt.in); got != tt.want {
			t.Errorf("mediaType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
