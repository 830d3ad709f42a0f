package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ingestfilter/internal/codec"
	"github.com/roach88/ingestfilter/internal/config"
	"github.com/roach88/ingestfilter/internal/event"
	"github.com/roach88/ingestfilter/internal/filter"
	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/registry"
	"github.com/roach88/ingestfilter/internal/store"
)

// DefaultBatchSize is the number of events filtered together.
const DefaultBatchSize = 125

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	SourceOptions

	ConfigFile      string
	Primary         string
	NodeName        string
	WatchdogMaxTime time.Duration
	MaxDepth        int
	Database        string
	InputFormat     string
	OutputFormat    string
	BatchSize       int
}

// RunStats summarises a finished run.
type RunStats struct {
	Batches int
	Events  int
	Matched int
	Dropped int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Filter an event stream through the primary pipeline",
		Long: `Filter events read from stdin through the primary pipeline and write the
surviving events to stdout.

Events are JSON lines or a MessagePack stream. Each record is an object;
"@timestamp" and "@metadata" carry the event timestamp and metadata.
Events are filtered in batches. If any event of a batch fails, the whole
batch is aborted and the command exits with status 1.

With --db every batch is recorded in a SQLite audit log: the batch status
and, per event, whether it was transformed or dropped.

Example:
  ingestfilter run --definitions ./pipelines.yaml < events.jsonl
  ingestfilter run --config ./settings.yaml --db ./audit.db
  ingestfilter run --redis-key pipelines --primary main --output-format msgpack`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(opts, cmd)
		},
	}

	opts.SourceOptions.bind(cmd)
	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "YAML settings file (pipeline_definitions, primary_pipeline, ...)")
	cmd.Flags().StringVar(&opts.Primary, "primary", "", "primary pipeline (default: first definition)")
	cmd.Flags().StringVar(&opts.NodeName, "node-name", "", "node name (default: random UUIDv7)")
	cmd.Flags().DurationVar(&opts.WatchdogMaxTime, "watchdog-max-time", config.DefaultWatchdogMaxTime, "maximum execution time per event (0 disables)")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", registry.DefaultMaxDepth, "maximum nested pipeline invocations")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite audit database")
	cmd.Flags().StringVar(&opts.InputFormat, "input-format", config.FormatJSON, "input format (json|msgpack)")
	cmd.Flags().StringVar(&opts.OutputFormat, "output-format", config.FormatJSON, "output format (json|msgpack)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", DefaultBatchSize, "events per batch")

	return cmd
}

// resolveConfig merges the settings file with the flags that were set.
func resolveConfig(opts *RunOptions, cmd *cobra.Command) (config.Config, error) {
	c := config.Default()
	if opts.ConfigFile != "" {
		var err error
		if c, err = config.LoadFile(opts.ConfigFile); err != nil {
			return config.Config{}, err
		}
	}

	opts.SourceOptions.apply(&c)
	flags := cmd.Flags()
	if flags.Changed("primary") {
		c.Primary = opts.Primary
	}
	if flags.Changed("node-name") {
		c.NodeName = opts.NodeName
	}
	if flags.Changed("watchdog-max-time") {
		c.WatchdogMaxTime = opts.WatchdogMaxTime
	}
	if flags.Changed("max-depth") {
		c.MaxDepth = opts.MaxDepth
	}
	if flags.Changed("db") {
		c.Database = opts.Database
	}
	if flags.Changed("input-format") {
		c.InputFormat = opts.InputFormat
	}
	if flags.Changed("output-format") {
		c.OutputFormat = opts.OutputFormat
	}

	if err := c.Normalize(); err != nil {
		return config.Config{}, err
	}
	return c, nil
}

func runFilter(opts *RunOptions, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	})
	logger := slog.New(handler)

	if opts.BatchSize <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid batch size %d", opts.BatchSize))
	}
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	logger = logger.With("node", cfg.NodeName)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	defs, err := LoadDefinitions(ctx, cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load definitions", err)
	}
	reg, err := registry.Build(ctx, defs, ingest.Builtins(), cfg.RegistryOptions(logger)...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build pipelines", err)
	}
	logger.Info("pipelines loaded", "pipelines", len(reg.Names()), "primary", reg.PrimaryName())

	var st *store.Store
	if cfg.Database != "" {
		st, err = store.Open(cfg.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	reader, err := codec.NewReader(cfg.InputFormat, cmd.InOrStdin())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid input format", err)
	}
	writer, err := codec.NewWriter(cfg.OutputFormat, cmd.OutOrStdout())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid output format", err)
	}

	f := filter.New(reg, filter.WithID(cfg.NodeName), filter.WithLogger(logger))
	stats, err := filterStream(ctx, f, reader, writer, st, opts.BatchSize, cfg.NodeName, reg.PrimaryName())
	logger.Info("filter stopped",
		"batches", stats.Batches,
		"events", stats.Events,
		"matched", stats.Matched,
		"dropped", stats.Dropped,
	)
	return err
}

// filterStream reads batches until the reader is exhausted or ctx is
// cancelled. Events that were not dropped are written in input order.
func filterStream(ctx context.Context, f *filter.Filter, r codec.Reader, w codec.Writer, st *store.Store, batchSize int, node, pipeline string) (RunStats, error) {
	var stats RunStats
	listener := filter.MatchListenerFunc(func(*event.Event) { stats.Matched++ })

	for ctx.Err() == nil {
		batch, err := codec.ReadBatch(r, batchSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, WrapExitError(ExitCommandError, "failed to read events", err)
		}

		out, filterErr := f.Filter(ctx, batch, listener)
		if filterErr != nil && ctx.Err() != nil {
			// Interrupted by shutdown, not a pipeline failure.
			break
		}
		if st != nil {
			if _, _, err := st.RecordBatch(ctx, node, pipeline, batch, out, filterErr); err != nil {
				return stats, WrapExitError(ExitCommandError, "failed to record batch", err)
			}
		}
		if filterErr != nil {
			return stats, WrapExitError(ExitFailure, fmt.Sprintf("batch %d aborted", stats.Batches+1), filterErr)
		}

		stats.Batches++
		stats.Events += len(batch)
		if err := writeEvents(w, out, &stats); err != nil {
			return stats, err
		}
	}

	if err := writeEvents(w, f.Flush(ctx), &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

func writeEvents(w codec.Writer, events []*event.Event, stats *RunStats) error {
	for _, e := range events {
		if e.IsCancelled() {
			stats.Dropped++
			continue
		}
		if err := w.Write(e); err != nil {
			return WrapExitError(ExitCommandError, "failed to write event", err)
		}
	}
	if err := w.Flush(); err != nil {
		return WrapExitError(ExitCommandError, "failed to write events", err)
	}
	return nil
}
