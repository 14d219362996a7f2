// Package validation holds the pre-flight checks that run before any request
// reaches FAL: input image validation, output directory checks and the
// colored checklist printed at startup.
package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"multiangle/vision"
)

// Image error codes for programmatic handling
const (
	ImageErrEmptyPath   = "EMPTY_PATH"
	ImageErrNotFound    = "NOT_FOUND"
	ImageErrNotFile     = "NOT_A_FILE"
	ImageErrUnsupported = "UNSUPPORTED_FORMAT"
	ImageErrDecode      = "DECODE_FAILED"
	ImageErrTooSmall    = "TOO_SMALL"
)

// DefaultMinDimension is the smallest accepted width or height in pixels.
const DefaultMinDimension = 64

// supportedExtensions maps accepted file extensions to their MIME type.
var supportedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".gif":  "image/gif",
}

// ImageError describes why an input image was rejected.
type ImageError struct {
	Code    string
	Path    string
	Message string
	Err     error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ImageError) Unwrap() error {
	return e.Err
}

// IsImageError reports whether err is an *ImageError and returns it.
func IsImageError(err error) (*ImageError, bool) {
	var imgErr *ImageError
	if errors.As(err, &imgErr) {
		return imgErr, true
	}
	return nil, false
}

// ImageInfo describes a validated input image.
type ImageInfo struct {
	Path      string
	Name      string // base name, e.g. "chair.png"
	Stem      string // base name without extension, e.g. "chair"
	Format    string // decoder name: png, jpeg, gif, webp, bmp
	MIMEType  string // derived from the extension
	Width     int
	Height    int
	SizeBytes int64
}

// SupportedExtensions returns the accepted extensions in sorted order.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// MIMETypeForPath returns the MIME type for a supported extension, or "".
func MIMETypeForPath(path string) string {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// ImageValidator checks input images before generation starts.
type ImageValidator struct {
	MinDimension int
}

// NewImageValidator creates a validator; minDimension <= 0 selects DefaultMinDimension.
func NewImageValidator(minDimension int) *ImageValidator {
	if minDimension <= 0 {
		minDimension = DefaultMinDimension
	}
	return &ImageValidator{MinDimension: minDimension}
}

// Validate checks, in order: non-empty path, existence, regular file,
// supported extension, decodability, and minimum dimensions.
func (v *ImageValidator) Validate(path string) (*ImageInfo, error) {
	if path == "" {
		return nil, &ImageError{Code: ImageErrEmptyPath, Message: "image path cannot be empty"}
	}

	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ImageError{Code: ImageErrNotFound, Path: path, Message: fmt.Sprintf("image file not found: %s", path)}
		}
		return nil, &ImageError{Code: ImageErrNotFound, Path: path, Message: fmt.Sprintf("cannot access %s", path), Err: err}
	}
	if !stat.Mode().IsRegular() {
		return nil, &ImageError{Code: ImageErrNotFile, Path: path, Message: fmt.Sprintf("path is not a regular file: %s", path)}
	}

	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := supportedExtensions[ext]
	if !ok {
		return nil, &ImageError{
			Code:    ImageErrUnsupported,
			Path:    path,
			Message: fmt.Sprintf("unsupported image format %q (supported: %s)", ext, strings.Join(SupportedExtensions(), ", ")),
		}
	}

	cfg, format, err := vision.DecodeConfigFile(path)
	if err != nil {
		return nil, &ImageError{Code: ImageErrDecode, Path: path, Message: fmt.Sprintf("cannot decode image %s", path), Err: err}
	}

	width, height := cfg.Width, cfg.Height
	if width < v.MinDimension || height < v.MinDimension {
		return nil, &ImageError{
			Code:    ImageErrTooSmall,
			Path:    path,
			Message: fmt.Sprintf("image is %dx%d, minimum is %dx%d", width, height, v.MinDimension, v.MinDimension),
		}
	}

	name := filepath.Base(path)
	return &ImageInfo{
		Path:      path,
		Name:      name,
		Stem:      strings.TrimSuffix(name, filepath.Ext(name)),
		Format:    format,
		MIMEType:  mimeType,
		Width:     width,
		Height:    height,
		SizeBytes: stat.Size(),
	}, nil
}
