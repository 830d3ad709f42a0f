package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ingestfilter/internal/config"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/registry"
)

// Issue severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	SourceOptions
	Primary  string
	MaxDepth int
	Strict   bool // treat cycle warnings as errors
}

// ValidationIssue is one finding about the definitions.
type ValidationIssue struct {
	Pipeline string   `json:"pipeline,omitempty"`
	Code     string   `json:"code"`
	Severity string   `json:"severity"`
	Message  string   `json:"message"`
	Path     []string `json:"path,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Primary   string            `json:"primary,omitempty"`
	Pipelines []string          `json:"pipelines,omitempty"`
	Issues    []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate [definitions]",
		Short: "Check pipeline definitions without filtering events",
		Long: `Parse and compile pipeline definitions and report what a filter would
see at startup: pipelines that fail to compile, a missing primary pipeline,
and pipelines that can invoke each other in a loop.

Cycles are warnings: a loop guarded by on_failure may terminate, and
unbounded loops stop at --max-depth. Use --strict to fail on them.

Examples:
  ingestfilter validate ./pipelines.yaml
  ingestfilter validate ./pipelines.cue --primary main --strict
  ingestfilter validate --redis-key pipelines --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Definitions = args[0]
			}
			return runValidate(opts, cmd)
		},
	}

	opts.SourceOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.Primary, "primary", "", "primary pipeline (default: first definition)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", registry.DefaultMaxDepth, "maximum nested pipeline invocations")
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "treat cycle warnings as errors")

	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	cfg := config.Default()
	opts.SourceOptions.apply(&cfg)
	defs, err := LoadDefinitions(cmd.Context(), cfg)
	if err != nil {
		code, message := errorCode(err)
		return outputValidateError(formatter, code, message, nil)
	}
	formatter.VerboseLog("Loaded %d pipeline definition(s)", len(defs))

	regOpts := []registry.Option{
		registry.WithMaxDepth(opts.MaxDepth),
		registry.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	if opts.Primary != "" {
		regOpts = append(regOpts, registry.WithPrimary(opts.Primary))
	}
	reg, err := registry.Build(cmd.Context(), defs, ingest.Builtins(), regOpts...)
	if err != nil {
		return outputValidationIssues(formatter, ValidationResult{
			Issues: []ValidationIssue{{
				Pipeline: opts.Primary,
				Code:     ErrCodeBuildFailed,
				Severity: SeverityError,
				Message:  err.Error(),
			}},
		})
	}

	result := ValidationResult{
		Valid:     true,
		Primary:   reg.PrimaryName(),
		Pipelines: reg.Names(),
		Issues:    collectIssues(reg, opts.Strict),
	}
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			result.Valid = false
		}
	}
	for _, name := range result.Pipelines {
		p, _ := reg.Lookup(name)
		formatter.VerboseLog("Compiled pipeline: %s (%s)", name, strings.Join(p.ProcessorTypes(), ", "))
	}

	if !result.Valid {
		return outputValidationIssues(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// collectIssues lists compile failures, sorted by pipeline, followed by
// cycles in definition order.
func collectIssues(reg *registry.Registry, strict bool) []ValidationIssue {
	var issues []ValidationIssue

	failures := reg.Failures()
	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		issues = append(issues, ValidationIssue{
			Pipeline: name,
			Code:     ErrCodeCompileFailed,
			Severity: SeverityError,
			Message:  failures[name].Error(),
		})
	}

	severity := SeverityWarning
	if strict {
		severity = SeverityError
	}
	for _, c := range reg.Cycles() {
		issues = append(issues, ValidationIssue{
			Pipeline: c.Path[0],
			Code:     ErrCodeCycle,
			Severity: severity,
			Message:  c.Message,
			Path:     c.Path,
		})
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ %d pipeline(s) valid, primary [%s]\n", len(result.Pipelines), result.Primary)
	for _, issue := range result.Issues {
		fmt.Fprintf(formatter.Writer, "  warning %s: %s\n", issue.Code, issue.Message)
	}
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationIssues outputs a failed validation.
func outputValidationIssues(formatter *OutputFormatter, result ValidationResult) error {
	first := result.Issues[0]
	for _, issue := range result.Issues {
		if issue.Severity == SeverityError {
			first = issue
			break
		}
	}
	errCount := countErrors(result.Issues)

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    first.Code,
				Message: first.Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", errCount))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range result.Issues {
		if issue.Pipeline != "" {
			fmt.Fprintf(formatter.Writer, "pipeline [%s]\n", issue.Pipeline)
		}
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", issue.Severity, issue.Code, issue.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", errCount))
}

func countErrors(issues []ValidationIssue) int {
	n := 0
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			n++
		}
	}
	return n
}

