package validation

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// StepStatus represents the status of a preflight step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Check is a single named preflight check.
type Check struct {
	Name string
	Run  func() (StepStatus, string, error)
}

// Step is the recorded outcome of a Check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// SuiteResult is the outcome of a full preflight run.
type SuiteResult struct {
	Steps       []Step
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// FirstError returns the first error from a failed step, or nil.
func (r SuiteResult) FirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a one-line human-readable summary.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Preflight passed: ")
	} else {
		sb.WriteString("Preflight failed: ")
	}
	fmt.Fprintf(&sb, "%d/%d checks passed", r.PassedSteps, len(r.Steps))
	if r.FailedSteps > 0 {
		fmt.Fprintf(&sb, ", %d failed", r.FailedSteps)
	}
	if r.Warnings > 0 {
		fmt.Fprintf(&sb, ", %d warnings", r.Warnings)
	}
	return sb.String()
}

// PreflightSuite runs checks in order and prints a colored checklist.
type PreflightSuite struct {
	title        string
	output       io.Writer
	checks       []Check
	showProgress bool
	failFast     bool
}

// NewPreflightSuite creates a suite that prints to stdout and stops at the first failure.
func NewPreflightSuite(title string) *PreflightSuite {
	return &PreflightSuite{
		title:        title,
		output:       os.Stdout,
		showProgress: true,
		failFast:     true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *PreflightSuite) WithOutput(w io.Writer) *PreflightSuite {
	s.output = w
	return s
}

// WithShowProgress enables or disables progress output.
func (s *PreflightSuite) WithShowProgress(show bool) *PreflightSuite {
	s.showProgress = show
	return s
}

// WithFailFast marks remaining checks as skipped after the first failure.
func (s *PreflightSuite) WithFailFast(failFast bool) *PreflightSuite {
	s.failFast = failFast
	return s
}

// Add appends a check.
func (s *PreflightSuite) Add(check Check) *PreflightSuite {
	s.checks = append(s.checks, check)
	return s
}

// Run executes every check and returns the aggregated result.
func (s *PreflightSuite) Run() SuiteResult {
	start := time.Now()
	steps := make([]Step, 0, len(s.checks))

	if s.showProgress {
		s.printHeader()
	}

	failed := false
	for _, check := range s.checks {
		var step Step
		if failed && s.failFast {
			step = Step{Name: check.Name, Status: StepSkipped, Message: "skipped after earlier failure"}
		} else {
			step = runCheck(check)
		}
		if step.Status == StepFailed {
			failed = true
		}
		if s.showProgress {
			s.printStep(step)
		}
		steps = append(steps, step)
	}

	result := buildResult(steps, time.Since(start))
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func runCheck(check Check) Step {
	start := time.Now()
	status, message, err := check.Run()
	return Step{
		Name:    check.Name,
		Status:  status,
		Message: message,
		Error:   err,
		Latency: time.Since(start),
	}
}

func buildResult(steps []Step, elapsed time.Duration) SuiteResult {
	result := SuiteResult{Steps: steps, Duration: elapsed, Success: true}
	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}
	return result
}

func (s *PreflightSuite) printHeader() {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", s.title)
}

func (s *PreflightSuite) printStep(step Step) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepSkipped:
		icon, clr = "○", color.New(color.FgHiBlack)
	default:
		icon, clr = "?", color.New(color.FgWhite)
	}

	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if (step.Status == StepFailed || step.Status == StepWarning) && step.Error != nil {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

func (s *PreflightSuite) printSummary(result SuiteResult) {
	if result.Success {
		return
	}
	fmt.Fprintln(s.output)
	color.New(color.FgRed, color.Bold).Fprintln(s.output, result.Summary())
}
