// Package main is the FileLoader CLI: a batch process that discovers files dropped in a
// configured directory, matches each to a declared source configuration, and runs the
// full archive→dedup→stage→read→validate→write→audit→publish→cleanup pipeline across a
// bounded worker pool.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"runtime"
	"syscall"

	"github.com/fileloader-io/fileloader/internal/db"
	"github.com/fileloader-io/fileloader/internal/filestore"
	"github.com/fileloader-io/fileloader/internal/notify"
	"github.com/fileloader-io/fileloader/internal/pipeline"
	"github.com/fileloader-io/fileloader/internal/sourceconfig"
	"github.com/fileloader-io/fileloader/internal/telemetry"
)

// Exit codes per spec.md §6: 0 success (no fatal internal errors), 1 a run happened but
// hit at least one fatal internal error, 2 reserved for configuration errors.
const (
	exitOK          = 0
	exitRunFailed   = 1
	exitConfigError = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fileloader", flag.ContinueOnError)

	var (
		showHelp  = fs.Bool("help", false, "show usage information")
		filePath  = fs.String("file", "", "process a single file path regardless of directory")
		directory = fs.String("directory", "", "override DIRECTORY_PATH")
		source    = fs.String("source", "", "restrict matching to one source by name")
	)

	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}

	if *showHelp || (fs.NArg() == 0) {
		printUsage()

		if *showHelp {
			return exitOK
		}

		return exitConfigError
	}

	if fs.Arg(0) != "run" {
		fmt.Fprintf(os.Stderr, "unknown command %q\n", fs.Arg(0))
		printUsage()

		return exitConfigError
	}

	// Flags may also follow the command, as in `fileloader run --file PATH`.
	if err := fs.Parse(fs.Args()[1:]); err != nil {
		return exitConfigError
	}

	if *showHelp {
		printUsage()

		return exitOK
	}

	cfg, err := LoadAppConfig()
	if err != nil {
		log.Printf("configuration error: %v", err)

		return exitConfigError
	}

	if *directory != "" {
		cfg.DirectoryPath = *directory
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, cfg, logger, *filePath, *source); err != nil {
		logger.Error("run failed", slog.Any("error", err))

		return exitRunFailed
	}

	return exitOK
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `fileloader - file ingestion pipeline

Usage:
  fileloader run [flags]

Flags:
  --file PATH        process a single file path regardless of directory
  --directory PATH   override DIRECTORY_PATH
  --source NAME      restrict matching to one source by name
  --help             show this message`)
}

// execute builds every collaborator from cfg and runs the Dispatcher over the discovered
// (or single, if --file was given) FileJobs.
func execute(ctx context.Context, cfg *AppConfig, logger *slog.Logger, filePath, sourceName string) error {
	if err := cfg.DB.Validate(); err != nil {
		return pipeline.NewError(pipeline.FailureConfigError, "", "", err)
	}

	conn, err := db.NewConnection(driverFor(cfg.DB.Dialect), cfg.DB)
	if err != nil {
		return pipeline.NewError(pipeline.FailureDBUnavailable, "", "", err)
	}
	defer func() { _ = conn.Close() }()

	adapter, err := db.NewAdapter(db.Dialect(cfg.DB.Dialect), conn)
	if err != nil {
		return pipeline.NewError(pipeline.FailureConfigError, "", "", err)
	}

	logStore := pipeline.NewPostgresLogStore(conn)

	registry, err := sourceconfig.Load(cfg.SourceConfigPath)
	if err != nil {
		return pipeline.NewError(pipeline.FailureConfigError, "", "", err)
	}

	if sourceName != "" {
		matched, ok := registry.ByName(sourceName)
		if !ok {
			return pipeline.NewError(pipeline.FailureConfigError, sourceName, "", fmt.Errorf("unknown source %q", sourceName))
		}

		registry, err = sourceconfig.NewRegistry([]sourceconfig.SourceConfig{*matched})
		if err != nil {
			return pipeline.NewError(pipeline.FailureConfigError, sourceName, "", err)
		}
	}

	store := filestore.NewLocalStore()

	rateLimiter := notify.NewInMemoryRateLimiter(notify.RateLimiterConfig{})

	notifier := &notify.Router{
		Email:   notify.NewEmailNotifier(cfg.Email, rateLimiter),
		Webhook: newWebhookNotifierOrNil(cfg.WebhookURL, rateLimiter, logger),
	}

	tracer := telemetry.NewDefaultTracer()

	runnerCfg := pipeline.RunnerConfig{
		DropDir:        cfg.DirectoryPath,
		ArchiveDir:     cfg.ArchivePath,
		QuarantineDir:  cfg.DuplicatePath,
		DuplicateDir:   cfg.DuplicatePath,
		ArchiveRetries: cfg.ArchiveRetries,
		ArchiveBackoff: cfg.ArchiveBackoff,
	}

	runner := pipeline.NewRunner(runnerCfg, store, adapter, logStore, notifier, tracer)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	dispatcher := pipeline.NewDispatcher(registry, store, cfg.DirectoryPath, cfg.DuplicatePath, workers, runner.Run, logger, notifier)

	if filePath != "" {
		return runSingleFile(ctx, runner, registry, filePath)
	}

	discovery := pipeline.NewFileDiscovery(store, cfg.DirectoryPath)

	jobs, err := discovery.Discover(ctx)
	if err != nil {
		return pipeline.NewError(pipeline.FailureConfigError, "", "", err)
	}

	dispatcher.Dispatch(ctx, jobs)

	return nil
}

// runSingleFile processes exactly one path, bypassing directory discovery — the
// `--file PATH` CLI surface.
func runSingleFile(ctx context.Context, runner *pipeline.Runner, registry *sourceconfig.Registry, filePath string) error {
	name := path.Base(filePath)

	cfg, ok := registry.Match(name)
	if !ok {
		return pipeline.NewError(pipeline.FailureConfigError, "", name, fmt.Errorf("%w: %s", pipeline.ErrNoSourceMatch, name))
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return pipeline.NewError(pipeline.FailureStoreUnavailable, cfg.Name, name, err)
	}

	job := pipeline.FileJob{Path: filePath, Name: name, Size: info.Size()}

	return runner.Run(ctx, job, cfg)
}

// newWebhookNotifierOrNil constructs a WebhookNotifier if webhookURL is configured,
// logging and falling back to nil (internal failures go unreported, not fatal) if the
// scheme is unsupported.
func newWebhookNotifierOrNil(webhookURL string, limiter notify.RateLimiter, logger *slog.Logger) notify.Notifier {
	if webhookURL == "" {
		return nil
	}

	n, err := notify.NewWebhookNotifier(webhookURL, limiter)
	if err != nil {
		logger.Warn("webhook notifier not configured", slog.Any("error", err))

		return nil
	}

	return n
}

// driverFor maps a db.Dialect to its database/sql driver name.
func driverFor(dialect string) string {
	if dialect == string(db.DialectPostgres) {
		return db.PostgresDriverName
	}

	return dialect
}
