package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"multiangle/core"
	"multiangle/imagegen"
)

// cliOptions holds everything parsed from the command line.
type cliOptions struct {
	params imagegen.Parameters
	quiet  bool

	configPath  string
	outputDir   string
	historyDB   string
	metricsFile string
}

// runFunc executes a parsed invocation and returns the process exit code.
type runFunc func(ctx context.Context, cmd *cobra.Command, imagePath string, opts *cliOptions) int

// newRootCommand builds the multiangle command. run receives the parsed
// options; its result is stored in *exitCode.
func newRootCommand(ctx context.Context, stdout, stderr io.Writer, run runFunc, exitCode *int) *cobra.Command {
	opts := &cliOptions{params: imagegen.DefaultParameters()}

	cmd := &cobra.Command{
		Use:   "multiangle IMAGE_PATH",
		Short: "Generate 72 rotated views of a product image with FAL.ai",
		Long: "Generate multiple angle views of a product image using FAL.ai's Qwen Image Edit Plus LoRA model.\n" +
			"One view is requested per 5 degree step (0-355), saved as view_NNNdeg.<format>,\n" +
			"and assembled into a preview montage.",
		Example: "  multiangle image.jpg\n" +
			"  multiangle product.png --guidance-scale 1.5 --lora-scale 1.2\n" +
			"  multiangle photo.jpg --num-steps 10 --no-montage --quiet",
		Version:       core.GetVersionInfo(),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			*exitCode = run(ctx, cmd, args[0], opts)
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.Float64Var(&opts.params.GuidanceScale, "guidance-scale", imagegen.DefaultGuidanceScale,
		fmt.Sprintf("CFG guidance scale (%g-%g)", imagegen.MinGuidanceScale, imagegen.MaxGuidanceScale))
	flags.IntVar(&opts.params.NumInferenceSteps, "num-steps", imagegen.DefaultNumInferenceSteps,
		fmt.Sprintf("number of inference steps (%d-%d)", imagegen.MinNumInferenceSteps, imagegen.MaxNumInferenceSteps))
	flags.Float64Var(&opts.params.LoraScale, "lora-scale", imagegen.DefaultLoraScale,
		fmt.Sprintf("LoRA scale for camera control (%g-%g)", imagegen.MinLoraScale, imagegen.MaxLoraScale))
	flags.Float64Var(&opts.params.MoveForward, "move-forward", imagegen.DefaultMoveForward,
		fmt.Sprintf("camera zoom/forward movement (%g-%g)", imagegen.MinMoveForward, imagegen.MaxMoveForward))
	flags.Float64Var(&opts.params.VerticalAngle, "vertical-angle", imagegen.DefaultVerticalAngle,
		fmt.Sprintf("vertical camera angle (%g to %g)", imagegen.MinVerticalAngle, imagegen.MaxVerticalAngle))
	flags.BoolVar(&opts.params.WideAngleLens, "wide-angle", false, "enable wide-angle lens effect")
	flags.BoolVar(&opts.params.NoMontage, "no-montage", false, "skip creating a montage of generated images")
	flags.StringVar(&opts.params.OutputFormat, "output-format", imagegen.DefaultOutputFormat, "output image format (png, jpeg, webp)")
	flags.BoolVarP(&opts.quiet, "quiet", "q", false, "only print warnings and errors to the console")

	flags.StringVar(&opts.configPath, "config", "", "optional YAML config file")
	flags.StringVar(&opts.outputDir, "output-dir", core.DefaultOutputDir, "base output directory (overrides OUTPUT_DIR)")
	flags.StringVar(&opts.historyDB, "history-db", "", "run history SQLite file, empty to disable (overrides HISTORY_DB)")
	flags.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics to this file (overrides METRICS_FILE)")

	return cmd
}

// applyFlags lets explicitly set flags override file and environment values.
func applyFlags(cmd *cobra.Command, cfg *core.Config, opts *cliOptions) {
	flags := cmd.Flags()

	if flags.Changed("output-dir") {
		// History follows the output dir unless it was placed explicitly.
		if cfg.HistoryDB == filepath.Join(cfg.OutputDir, core.DefaultHistoryDBName) {
			cfg.HistoryDB = filepath.Join(opts.outputDir, core.DefaultHistoryDBName)
		}
		cfg.OutputDir = opts.outputDir
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = opts.historyDB
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = opts.metricsFile
	}
}

// runCLI parses args and runs the tool, returning the exit code.
func runCLI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return executeCommand(ctx, args, stdout, stderr, runMultiAngle)
}

func executeCommand(ctx context.Context, args []string, stdout, stderr io.Writer, run runFunc) int {
	exitCode := core.ExitCodeSuccess
	cmd := newRootCommand(ctx, stdout, stderr, run, &exitCode)
	if args == nil {
		args = []string{} // cobra falls back to os.Args on nil
	}
	cmd.SetArgs(args)

	if err := cmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintf(stderr, "ERROR: %v\n", err)
		fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", cmd.Name())
		return core.ExitCodeError
	}
	return exitCode
}
