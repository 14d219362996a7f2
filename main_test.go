package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"multiangle/core"
	"multiangle/imagegen"
)

// captureRun returns a runFunc that records the parsed invocation.
func captureRun(gotPath *string, gotOpts **cliOptions, gotCmd **cobra.Command, code int) runFunc {
	return func(_ context.Context, cmd *cobra.Command, imagePath string, opts *cliOptions) int {
		*gotPath = imagePath
		*gotOpts = opts
		if gotCmd != nil {
			*gotCmd = cmd
		}
		return code
	}
}

func TestExecuteCommand_FlagsAfterImagePath(t *testing.T) {
	var (
		path string
		opts *cliOptions
	)
	var stdout, stderr bytes.Buffer
	args := []string{
		"product.png",
		"--guidance-scale", "1.5",
		"--num-steps", "10",
		"--lora-scale", "1.2",
		"--move-forward", "3",
		"--vertical-angle", "-0.5",
		"--wide-angle",
		"--no-montage",
		"--output-format", "webp",
		"--quiet",
	}

	code := executeCommand(context.Background(), args, &stdout, &stderr, captureRun(&path, &opts, nil, 0))
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, stderr.String())
	}
	if path != "product.png" {
		t.Errorf("image path = %q, want product.png", path)
	}

	want := imagegen.Parameters{
		GuidanceScale:     1.5,
		NumInferenceSteps: 10,
		LoraScale:         1.2,
		MoveForward:       3,
		VerticalAngle:     -0.5,
		WideAngleLens:     true,
		OutputFormat:      "webp",
		NoMontage:         true,
	}
	if opts.params != want {
		t.Errorf("params = %+v, want %+v", opts.params, want)
	}
	if !opts.quiet {
		t.Error("quiet = false, want true")
	}
}

func TestExecuteCommand_Defaults(t *testing.T) {
	var (
		path string
		opts *cliOptions
	)
	var stdout, stderr bytes.Buffer

	code := executeCommand(context.Background(), []string{"chair.jpg"}, &stdout, &stderr, captureRun(&path, &opts, nil, 7))
	if code != 7 {
		t.Errorf("exit code = %d, want the run's code 7", code)
	}
	if opts.params != imagegen.DefaultParameters() {
		t.Errorf("params = %+v, want defaults", opts.params)
	}
	if opts.quiet || opts.configPath != "" {
		t.Errorf("opts = %+v, want zero flags", opts)
	}
}

func TestExecuteCommand_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no image", nil},
		{"two images", []string{"a.png", "b.png"}},
		{"unknown flag", []string{"a.png", "--rotate"}},
		{"bad number", []string{"a.png", "--num-steps", "six"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			run := func(context.Context, *cobra.Command, string, *cliOptions) int {
				called = true
				return 0
			}
			var stdout, stderr bytes.Buffer

			code := executeCommand(context.Background(), tt.args, &stdout, &stderr, run)
			if code != core.ExitCodeError {
				t.Errorf("exit code = %d, want %d", code, core.ExitCodeError)
			}
			if called {
				t.Error("run called despite usage error")
			}
			if !strings.Contains(stderr.String(), "ERROR") {
				t.Errorf("stderr = %q, want an error line", stderr.String())
			}
		})
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		cfg         func() *core.Config
		wantOutput  string
		wantHistory string
		wantMetrics string
	}{
		{
			name:        "no flags keeps config",
			args:        []string{"a.png"},
			cfg:         core.DefaultConfig,
			wantOutput:  core.DefaultOutputDir,
			wantHistory: filepath.Join(core.DefaultOutputDir, core.DefaultHistoryDBName),
		},
		{
			name:        "output dir moves default history",
			args:        []string{"a.png", "--output-dir", "renders"},
			cfg:         core.DefaultConfig,
			wantOutput:  "renders",
			wantHistory: filepath.Join("renders", core.DefaultHistoryDBName),
		},
		{
			name: "output dir keeps explicit history",
			args: []string{"a.png", "--output-dir", "renders"},
			cfg: func() *core.Config {
				c := core.DefaultConfig()
				c.HistoryDB = "/var/lib/multiangle.db"
				return c
			},
			wantOutput:  "renders",
			wantHistory: "/var/lib/multiangle.db",
		},
		{
			name:        "empty history flag disables history",
			args:        []string{"a.png", "--history-db", "", "--metrics-file", "m.prom"},
			cfg:         core.DefaultConfig,
			wantOutput:  core.DefaultOutputDir,
			wantHistory: "",
			wantMetrics: "m.prom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				path string
				opts *cliOptions
				cmd  *cobra.Command
			)
			var stdout, stderr bytes.Buffer
			if code := executeCommand(context.Background(), tt.args, &stdout, &stderr, captureRun(&path, &opts, &cmd, 0)); code != 0 {
				t.Fatalf("exit code = %d: %s", code, stderr.String())
			}

			cfg := tt.cfg()
			applyFlags(cmd, cfg, opts)

			if cfg.OutputDir != tt.wantOutput {
				t.Errorf("OutputDir = %q, want %q", cfg.OutputDir, tt.wantOutput)
			}
			if cfg.HistoryDB != tt.wantHistory {
				t.Errorf("HistoryDB = %q, want %q", cfg.HistoryDB, tt.wantHistory)
			}
			if cfg.MetricsFile != tt.wantMetrics {
				t.Errorf("MetricsFile = %q, want %q", cfg.MetricsFile, tt.wantMetrics)
			}
		})
	}
}

func TestExitCodeFor(t *testing.T) {
	saved := &imagegen.RunSummary{Results: []imagegen.GenerationResult{{Angle: 0, Success: true}, {Angle: 5}}}
	none := &imagegen.RunSummary{Results: []imagegen.GenerationResult{{Angle: 0}, {Angle: 5}}}

	tests := []struct {
		name    string
		summary *imagegen.RunSummary
		err     error
		sig     os.Signal
		want    int
	}{
		{"some views saved", saved, nil, nil, core.ExitCodeSuccess},
		{"nothing saved", none, nil, nil, core.ExitCodeError},
		{"no summary", nil, errors.New("bad image"), nil, core.ExitCodeError},
		{"interrupt", saved, context.Canceled, os.Interrupt, core.ExitCodeSIGINT},
		{"terminate with nothing saved", none, context.Canceled, syscall.SIGTERM, core.ExitCodeSIGTERM},
		{"cancelled without signal", saved, context.Canceled, nil, core.ExitCodeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.summary, tt.err, tt.sig); got != tt.want {
				t.Errorf("exitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// newFakeFAL serves the queue protocol for owner/app/angles and a CDN for
// the generated views. The first submission is rate limited.
func newFakeFAL(t *testing.T, submits *atomic.Int32) *httptest.Server {
	t.Helper()
	view := testPNG(t, 8, 8)

	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/owner/app/angles", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Key test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var args map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if submits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		id := fmt.Sprintf("r%v", args["rotate_right_left"])
		json.NewEncoder(w).Encode(map[string]string{
			"request_id":   id,
			"status_url":   srv.URL + "/owner/app/requests/" + id + "/status",
			"response_url": srv.URL + "/owner/app/requests/" + id,
		})
	})
	mux.HandleFunc("/owner/app/requests/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/owner/app/requests/")
		if strings.HasSuffix(rest, "/status") {
			json.NewEncoder(w).Encode(map[string]string{"status": "COMPLETED"})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"images": []map[string]interface{}{{"url": srv.URL + "/cdn/" + rest + ".png", "content_type": "image/png"}},
			"seed":   42,
		})
	})
	mux.HandleFunc("/cdn/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(view)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// setFastEnv points the tool at srv with millisecond delays.
func setFastEnv(t *testing.T, queueURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("FAL_KEY", "test-key")
	t.Setenv("FAL_QUEUE_URL", queueURL)
	t.Setenv("FAL_ENDPOINT", "owner/app/angles")
	t.Setenv("THROTTLE_DELAY_MS", "0")
	t.Setenv("INITIAL_RETRY_DELAY_MS", "1")
	t.Setenv("MAX_RETRY_DELAY_MS", "5")
	t.Setenv("POLL_INTERVAL_MS", "1")
	t.Setenv("LOG_FILE", filepath.Join(dir, "logs", "multiangle.log"))
	t.Setenv("OUTPUT_DIR", filepath.Join(dir, "unused"))
	return dir
}

func TestRunCLI_EndToEnd(t *testing.T) {
	var submits atomic.Int32
	srv := newFakeFAL(t, &submits)
	dir := setFastEnv(t, srv.URL)

	input := filepath.Join(dir, "lamp.png")
	if err := os.WriteFile(input, testPNG(t, 64, 64), 0644); err != nil {
		t.Fatal(err)
	}
	outDir := filepath.Join(dir, "views")
	metricsFile := filepath.Join(dir, "metrics", "multiangle.prom")

	var stdout, stderr bytes.Buffer
	code := runCLI(context.Background(), []string{
		input, "--output-dir", outDir, "--metrics-file", metricsFile, "--quiet",
	}, &stdout, &stderr)
	if code != core.ExitCodeSuccess {
		t.Fatalf("exit code = %d\nstdout:\n%s\nstderr:\n%s", code, stdout.String(), stderr.String())
	}

	if got := submits.Load(); got != 73 {
		t.Errorf("submissions = %d, want 73 (72 plus one rate-limited retry)", got)
	}
	for _, name := range []string{"view_000deg.png", "view_005deg.png", "view_355deg.png", "lamp_montage.png"} {
		if _, err := os.Stat(filepath.Join(outDir, "lamp", name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, core.DefaultHistoryDBName)); err != nil {
		t.Errorf("history database not created: %v", err)
	}

	out := stdout.String()
	for _, want := range []string{"Generation Complete!", "Total Views Generated: 72/72", "Rotation Range: 0° - 355°"} {
		if !strings.Contains(out, want) {
			t.Errorf("stdout missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(stderr.String(), "test-key") {
		t.Error("API key leaked to console output")
	}

	data, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics file not written: %v", err)
	}
	for _, want := range []string{
		`multiangle_views_total{result="saved"} 72`,
		`multiangle_api_retries_total{reason="rate_limited"} 1`,
		`multiangle_montage_total{result="success"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestRunCLI_PreflightFailures(t *testing.T) {
	var submits atomic.Int32
	srv := newFakeFAL(t, &submits)

	tests := []struct {
		name      string
		setup     func(t *testing.T, dir string) []string
		wantInOut []string
	}{
		{
			name: "missing key",
			setup: func(t *testing.T, dir string) []string {
				t.Setenv("FAL_KEY", "")
				return []string{filepath.Join(dir, "x.png")}
			},
			wantInOut: []string{"FAL_KEY", "export FAL_KEY"},
		},
		{
			name: "missing image",
			setup: func(t *testing.T, dir string) []string {
				return []string{filepath.Join(dir, "nope.png"), "--quiet"}
			},
			wantInOut: []string{"nope.png"},
		},
		{
			name: "every bad parameter reported",
			setup: func(t *testing.T, dir string) []string {
				input := filepath.Join(dir, "ok.png")
				if err := os.WriteFile(input, testPNG(t, 64, 64), 0644); err != nil {
					t.Fatal(err)
				}
				return []string{input, "--guidance-scale", "25", "--num-steps", "1", "--vertical-angle", "2"}
			},
			wantInOut: []string{"guidance-scale", "num-steps", "vertical-angle"},
		},
		{
			name: "NaN parameter",
			setup: func(t *testing.T, dir string) []string {
				input := filepath.Join(dir, "ok.png")
				if err := os.WriteFile(input, testPNG(t, 64, 64), 0644); err != nil {
					t.Fatal(err)
				}
				return []string{input, "--lora-scale", "NaN"}
			},
			wantInOut: []string{"lora-scale"},
		},
		{
			name: "tiny image",
			setup: func(t *testing.T, dir string) []string {
				input := filepath.Join(dir, "tiny.png")
				if err := os.WriteFile(input, testPNG(t, 8, 8), 0644); err != nil {
					t.Fatal(err)
				}
				return []string{input}
			},
			wantInOut: []string{"minimum is 64x64"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setFastEnv(t, srv.URL)
			args := append(tt.setup(t, dir), "--output-dir", filepath.Join(dir, "views"))

			var stdout, stderr bytes.Buffer
			code := runCLI(context.Background(), args, &stdout, &stderr)
			if code != core.ExitCodeError {
				t.Errorf("exit code = %d, want %d", code, core.ExitCodeError)
			}

			combined := stdout.String() + stderr.String()
			for _, want := range tt.wantInOut {
				if !strings.Contains(combined, want) {
					t.Errorf("output missing %q:\n%s", want, combined)
				}
			}
		})
	}

	if n := submits.Load(); n != 0 {
		t.Errorf("preflight failures made %d API calls, want 0", n)
	}
}

func TestRunCLI_CancelledBeforeStart(t *testing.T) {
	var submits atomic.Int32
	srv := newFakeFAL(t, &submits)
	dir := setFastEnv(t, srv.URL)

	input := filepath.Join(dir, "cup.png")
	if err := os.WriteFile(input, testPNG(t, 64, 64), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	start := time.Now()
	code := runCLI(ctx, []string{input, "--output-dir", filepath.Join(dir, "views"), "--quiet"}, &stdout, &stderr)
	if code != core.ExitCodeError {
		t.Errorf("exit code = %d, want %d", code, core.ExitCodeError)
	}
	if submits.Load() != 0 {
		t.Errorf("cancelled run made %d API calls", submits.Load())
	}
	if time.Since(start) > 10*time.Second {
		t.Errorf("cancelled run took %v", time.Since(start))
	}
	if !strings.Contains(stdout.String(), "Generation Interrupted") {
		t.Errorf("stdout missing interrupted summary:\n%s", stdout.String())
	}
}
