package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ingestfilter/internal/config"
	"github.com/roach88/ingestfilter/internal/definition"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	SourceOptions
	Output string // output file path
}

// CompiledPipeline is one definition in the engine wire shape.
type CompiledPipeline struct {
	Name       string          `json:"name"`
	Processors []string        `json:"processors"`
	Document   json.RawMessage `json:"document"`
}

// CompilationResult holds the compiled pipelines in definition order.
type CompilationResult struct {
	Pipelines []CompiledPipeline `json:"pipelines"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [definitions]",
		Short: "Render pipeline definitions as engine wire documents",
		Long: `Render every pipeline definition as the JSON document the ingest engine
compiles: {"processors": [{<type>: <params>}, ...]}.

Processor order and parameters are preserved exactly. With --output the
documents are written as one JSON object keyed by pipeline name, which
--definitions accepts again.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.Definitions = args[0]
			}
			return runCompile(opts, cmd)
		},
	}

	opts.SourceOptions.bind(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, cmd *cobra.Command) error {
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
		return outputCompileError(formatter, code, message, nil)
	}

	result := &CompilationResult{Pipelines: make([]CompiledPipeline, 0, len(defs))}
	for _, d := range defs {
		formatter.VerboseLog("Compiling pipeline: %s", d.Name)
		wire, err := definition.Reformat(d)
		if err != nil {
			return outputCompileError(formatter, ErrCodeParseFailed, err.Error(), d.Name)
		}
		result.Pipelines = append(result.Pipelines, CompiledPipeline{
			Name:       d.Name,
			Processors: d.ProcessorTypes(),
			Document:   wire,
		})
	}

	// Write to file if --output specified
	if opts.Output != "" {
		if err := writeWireFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	// Human-readable text output
	fmt.Fprintf(formatter.Writer, "✓ Compiled %d pipeline(s)\n\n", len(result.Pipelines))
	for _, p := range result.Pipelines {
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", p.Name, describeProcessors(p.Processors))
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote wire documents to %s\n", outputFile)
	}
	return nil
}

func describeProcessors(types []string) string {
	if len(types) == 0 {
		return "(no processors)"
	}
	return strings.Join(types, " → ")
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// writeWireFile writes the pipelines as one JSON object keyed by name,
// keeping definition order.
func writeWireFile(result *CompilationResult, filename string) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range result.Pipelines {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(p.Name)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(p.Document)
	}
	buf.WriteByte('}')

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return fmt.Errorf("formatting wire documents: %w", err)
	}
	out.WriteByte('\n')

	if err := os.WriteFile(filename, out.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
