package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"golang.org/x/image/draw"

	"multiangle/core"
)

// DefaultMontageColumns matches one row per 60 degrees of rotation at 5-degree steps.
const DefaultMontageColumns = 12

// ErrNoImages is returned when a montage is requested with no input files.
var ErrNoImages = errors.New("vision: no images for montage")

// MontageOptions controls the preview grid layout.
type MontageOptions struct {
	// Columns per row. Zero means DefaultMontageColumns.
	Columns int

	// CellWidth scales every cell to this width, keeping the first image's
	// aspect ratio. Zero keeps the first image's native size.
	CellWidth int
}

// MontageResult describes a written montage.
type MontageResult struct {
	Path       string
	Images     int
	Columns    int
	Rows       int
	CellWidth  int
	CellHeight int
	Bytes      int64
}

// BuildMontage pastes the images at paths into a grid, in order, left to right
// then top to bottom. The canvas is always Columns cells wide; unused cells
// stay black.
func BuildMontage(paths []string, opts MontageOptions) (*image.RGBA, MontageResult, error) {
	if len(paths) == 0 {
		return nil, MontageResult{}, ErrNoImages
	}

	cols := opts.Columns
	if cols <= 0 {
		cols = DefaultMontageColumns
	}
	rows := (len(paths) + cols - 1) / cols

	first, _, err := DecodeFile(paths[0])
	if err != nil {
		return nil, MontageResult{}, fmt.Errorf("vision: decode %s: %w", paths[0], err)
	}
	cellW, cellH := first.Bounds().Dx(), first.Bounds().Dy()
	if opts.CellWidth > 0 && opts.CellWidth != cellW {
		cellH = max(1, cellH*opts.CellWidth/cellW)
		cellW = opts.CellWidth
	}

	canvas := image.NewRGBA(image.Rect(0, 0, cellW*cols, cellH*rows))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	for i, path := range paths {
		img := first
		if i > 0 {
			img, _, err = DecodeFile(path)
			if err != nil {
				return nil, MontageResult{}, fmt.Errorf("vision: decode %s: %w", path, err)
			}
		}

		cell, err := FitInto(img, cellW, cellH)
		if err != nil {
			return nil, MontageResult{}, err
		}

		x := (i % cols) * cellW
		y := (i / cols) * cellH
		r := image.Rect(x, y, x+cellW, y+cellH)
		draw.Draw(canvas, r, cell, cell.Bounds().Min, draw.Src)
	}

	return canvas, MontageResult{
		Images:     len(paths),
		Columns:    cols,
		Rows:       rows,
		CellWidth:  cellW,
		CellHeight: cellH,
	}, nil
}

// WriteMontage builds the grid and writes it as PNG to outPath atomically.
func WriteMontage(paths []string, outPath string, opts MontageOptions) (*MontageResult, error) {
	canvas, result, err := BuildMontage(paths, opts)
	if err != nil {
		return nil, err
	}

	n, err := core.WriteFileAtomic(outPath, func(w io.Writer) error {
		return png.Encode(w, canvas)
	})
	if err != nil {
		return nil, fmt.Errorf("vision: write montage: %w", err)
	}

	result.Path = outPath
	result.Bytes = n
	return &result, nil
}
