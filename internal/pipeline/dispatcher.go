package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fileloader-io/fileloader/internal/filestore"
	"github.com/fileloader-io/fileloader/internal/notify"
	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// RunFunc runs one file's PipelineRunner to completion. Dispatcher is intentionally
// ignorant of PipelineRunner's internals — it only needs something it can call per
// matched (FileJob, SourceConfig) pair and recover around.
type RunFunc func(ctx context.Context, job FileJob, cfg *sourceconfig.SourceConfig) error

// Dispatcher matches discovered files against the source registry and fans them out to a
// bounded pool of long-lived workers. Files with no matching source are moved to the
// duplicate/quarantine directory with a warning — spec.md's Dispatcher contract: unmatched
// files carry no DB state, so there is nothing to log to file_load_log, but they must not
// be left in the drop directory to be rediscovered on every subsequent run. A worker panic
// is recovered, converted into a WorkerPanic failure reported over webhook, and the
// offending file is moved back to the drop directory so a human or a later run can retry
// it; the worker itself keeps running.
type Dispatcher struct {
	registry     *sourceconfig.Registry
	store        filestore.Store
	dropDir      string
	duplicateDir string
	run          RunFunc
	workers      int
	logger       *slog.Logger
	notifier     notify.Notifier
}

// NewDispatcher creates a Dispatcher with workers long-lived goroutines draining a
// bounded job channel. notifier may be nil, in which case worker panics are logged but not
// reported over any transport.
func NewDispatcher(registry *sourceconfig.Registry, store filestore.Store, dropDir, duplicateDir string, workers int, run RunFunc, logger *slog.Logger, notifier notify.Notifier) *Dispatcher {
	if workers < 1 {
		workers = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		registry:     registry,
		store:        store,
		dropDir:      dropDir,
		duplicateDir: duplicateDir,
		run:          run,
		workers:      workers,
		logger:       logger,
		notifier:     notifier,
	}
}

// Dispatch matches each job against the registry and runs matched jobs across d.workers
// workers, blocking until every job has been processed or ctx is cancelled. Jobs with no
// matching source are moved to the duplicate directory and logged at Warn — they carry no
// file_load_log state, so quarantine is the closest existing destination for "not ours to
// process."
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []FileJob) {
	queue := make(chan dispatchedJob, d.workers)

	var wg sync.WaitGroup

	for i := 0; i < d.workers; i++ {
		wg.Add(1)

		go d.worker(ctx, queue, &wg)
	}

feed:
	for _, job := range jobs {
		cfg, ok := d.registry.Match(job.Name)
		if !ok {
			d.logger.Warn("no source matches file, moving to duplicate directory", slog.String("filename", job.Name))
			d.moveUnmatched(ctx, job)

			continue
		}

		select {
		case queue <- dispatchedJob{job: job, cfg: cfg}:
		case <-ctx.Done():
			break feed
		}
	}

	close(queue)
	wg.Wait()
}

// moveUnmatched relocates a file with no matching source to the duplicate/quarantine
// directory, best-effort — a failed move is logged and the file is left in place for the
// next run to retry.
func (d *Dispatcher) moveUnmatched(ctx context.Context, job FileJob) {
	dst := path.Join(d.duplicateDir, job.Name)

	if err := d.store.Move(ctx, job.Path, dst); err != nil {
		d.logger.Error("failed to move unmatched file to duplicate directory",
			slog.String("filename", job.Name),
			slog.Any("error", err),
		)
	}
}

// dispatchedJob pairs a FileJob with the SourceConfig it matched, the unit of work
// enqueued to workers.
type dispatchedJob struct {
	job FileJob
	cfg *sourceconfig.SourceConfig
}

// worker drains queue until it's closed or ctx is cancelled, running each job through
// d.run behind a panic recovery boundary.
func (d *Dispatcher) worker(ctx context.Context, queue <-chan dispatchedJob, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case dj, ok := <-queue:
			if !ok {
				return
			}

			d.runOne(ctx, dj)
		case <-ctx.Done():
			return
		}
	}
}

// runOne runs a single job, recovering from a worker panic and moving the file back to
// the drop directory so it can be retried later instead of being silently lost mid-stage.
func (d *Dispatcher) runOne(ctx context.Context, dj dispatchedJob) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("worker panic recovered",
				slog.String("filename", dj.job.Name),
				slog.String("source", dj.cfg.Name),
				slog.Any("panic", r),
				slog.String("stack_trace", string(debug.Stack())),
			)

			d.notifyPanic(ctx, dj, r)
			d.restoreToDropDir(ctx, dj.job)
		}
	}()

	if err := d.run(ctx, dj.job, dj.cfg); err != nil {
		d.logger.Error("file run failed",
			slog.String("filename", dj.job.Name),
			slog.String("source", dj.cfg.Name),
			slog.Any("error", err),
		)
	}
}

// notifyPanic reports a recovered worker panic as an internal FailureWorkerPanic over
// webhook (spec.md §4.2: "the Dispatcher records an internal error (webhook)"). Best-effort
// — a nil notifier, or the notifier's own send failure, is swallowed.
func (d *Dispatcher) notifyPanic(ctx context.Context, dj dispatchedJob, r any) {
	if d.notifier == nil {
		return
	}

	n := notify.Notification{
		SourceName:  dj.cfg.Name,
		Filename:    dj.job.Name,
		FailureKind: notify.FailureKind(FailureWorkerPanic),
		Detail:      fmt.Sprintf("worker panic: %v", r),
		OccurredAt:  time.Now(),
	}

	_ = d.notifier.Notify(ctx, n)
}

// restoreToDropDir moves a file whose worker panicked back to the drop directory under
// its original name, best-effort — if the move itself fails, it's logged and the file is
// left wherever it ended up (archive, or still mid-move).
func (d *Dispatcher) restoreToDropDir(ctx context.Context, job FileJob) {
	dst := path.Join(d.dropDir, job.Name)

	if err := d.store.Move(ctx, job.Path, dst); err != nil {
		d.logger.Error("failed to restore file to drop dir after worker panic",
			slog.String("filename", job.Name),
			slog.Any("error", err),
		)
	}
}
