package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"multiangle/core"
	"multiangle/imagegen"
	"multiangle/validation"
)

const rule = "============================================================"

func printBanner(w io.Writer) {
	bold := color.New(color.FgCyan, color.Bold)
	fmt.Fprintln(w)
	bold.Fprintln(w, rule)
	bold.Fprintln(w, "Multi-Angle Image Generation Tool")
	fmt.Fprintln(w, "Powered by FAL.ai Qwen Image Edit Plus LoRA")
	bold.Fprintln(w, rule)
}

func printImageInfo(w io.Writer, info *validation.ImageInfo) {
	if info == nil {
		return
	}
	fmt.Fprintln(w)
	color.New(color.FgGreen).Fprintf(w, "✓ Image validated: %s\n", info.Name)
	fmt.Fprintf(w, "  Dimensions: %dx%d\n", info.Width, info.Height)
	fmt.Fprintf(w, "  Size: %s\n", core.FormatBytes(info.SizeBytes))
}

func printSummary(w io.Writer, s *imagegen.RunSummary) {
	title := color.New(color.FgGreen, color.Bold)
	heading := "Generation Complete!"
	if s.Interrupted {
		title = color.New(color.FgYellow, color.Bold)
		heading = "Generation Interrupted"
	}

	fmt.Fprintln(w)
	title.Fprintln(w, rule)
	title.Fprintln(w, heading)
	title.Fprintln(w, rule)

	fmt.Fprintf(w, "Input Image: %s\n", s.InputPath)
	fmt.Fprintf(w, "Total Views Generated: %d/%d\n", s.Succeeded(), len(s.Angles))
	if n := len(s.Angles); n > 0 {
		fmt.Fprintf(w, "Rotation Range: %d° - %d° (%d° increments)\n",
			s.Angles[0], s.Angles[n-1], imagegen.DefaultRotationIncrement)
	}
	fmt.Fprintf(w, "Output Directory: %s\n", s.OutputDir)
	fmt.Fprintf(w, "Disk Space Used: %s\n", core.FormatBytes(s.BytesWritten()))
	fmt.Fprintf(w, "Elapsed: %s\n", s.Elapsed.Round(100*time.Millisecond))
	if s.MontagePath != "" {
		fmt.Fprintf(w, "Montage: %s\n", s.MontagePath)
	}

	if failed := s.Failed(); len(failed) > 0 {
		color.New(color.FgRed).Fprintf(w, "Failed Angles: %s\n", joinAngles(failed))
	}
	if s.Interrupted {
		if skipped := len(s.Angles) - len(s.Results); skipped > 0 {
			color.New(color.FgYellow).Fprintf(w, "Not Attempted: %d angles\n", skipped)
		}
	}

	fmt.Fprintln(w, "\nParameters Used:")
	fmt.Fprintf(w, "  Guidance Scale: %g\n", s.Parameters.GuidanceScale)
	fmt.Fprintf(w, "  Inference Steps: %d\n", s.Parameters.NumInferenceSteps)
	fmt.Fprintf(w, "  LoRA Scale: %g\n", s.Parameters.LoraScale)
	for _, line := range s.Parameters.Changed() {
		if strings.HasPrefix(line, "Guidance Scale") ||
			strings.HasPrefix(line, "Inference Steps") ||
			strings.HasPrefix(line, "LoRA Scale") {
			continue
		}
		fmt.Fprintf(w, "  %s\n", line)
	}
	title.Fprintln(w, rule)
	fmt.Fprintln(w)
}

func joinAngles(angles []int) string {
	parts := make([]string, len(angles))
	for i, a := range angles {
		parts[i] = fmt.Sprintf("%d°", a)
	}
	return strings.Join(parts, ", ")
}
