package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fileloader-io/fileloader/internal/db"
	"github.com/fileloader-io/fileloader/internal/filestore"
	"github.com/fileloader-io/fileloader/internal/notify"
	"github.com/fileloader-io/fileloader/internal/sourceconfig"
	"github.com/fileloader-io/fileloader/internal/telemetry"
)

// RunnerConfig names the directories and retry budget a Runner needs, independent of any
// one file or source.
type RunnerConfig struct {
	DropDir        string
	ArchiveDir     string
	QuarantineDir  string
	DuplicateDir   string
	ArchiveRetries int
	ArchiveBackoff time.Duration
}

// Runner orchestrates a single file through the full Init→Cleaned lifecycle: archive,
// allocate+dedup, stage, stream read/validate/write, audit, publish, cleanup. One Runner
// instance is shared across files (it holds no per-file state); Run is safe to call
// concurrently from multiple Dispatcher workers as long as store/adapter/logStore are.
type Runner struct {
	cfg      RunnerConfig
	store    filestore.Store
	adapter  db.Adapter
	logStore LogStore
	notifier notify.Notifier
	tracer   *telemetry.Tracer
}

// NewRunner creates a Runner.
func NewRunner(cfg RunnerConfig, store filestore.Store, adapter db.Adapter, logStore LogStore, notifier notify.Notifier, tracer *telemetry.Tracer) *Runner {
	if cfg.ArchiveRetries <= 0 {
		cfg.ArchiveRetries = 3
	}

	if cfg.ArchiveBackoff <= 0 {
		cfg.ArchiveBackoff = time.Second
	}

	if tracer == nil {
		tracer = telemetry.NewDefaultTracer()
	}

	return &Runner{cfg: cfg, store: store, adapter: adapter, logStore: logStore, notifier: notifier, tracer: tracer}
}

// Run drives job through every stage, returning nil on a clean Cleaned outcome and a
// pipeline Error on any terminal Quarantined outcome. Satisfies the Dispatcher's RunFunc.
func (r *Runner) Run(ctx context.Context, job FileJob, cfg *sourceconfig.SourceConfig) error {
	run := &fileRun{
		runner:  r,
		job:     job,
		cfg:     cfg,
		machine: NewMachine(),
		startedAt: time.Now(),
	}

	return run.execute(ctx)
}

// fileRun carries the mutable state of one file moving through the pipeline: its
// allocated id, archived path, and accumulated row counters. Scoped to a single Run call.
type fileRun struct {
	runner  *Runner
	job     FileJob
	cfg     *sourceconfig.SourceConfig

	machine     *Machine
	fileLoadID  int64
	archivePath string
	contentHash string
	startedAt   time.Time

	rowsRead      int64
	rowsValid     int64
	rowsInvalid   int64
	rowsPublished int64
}

func (fr *fileRun) execute(ctx context.Context) error {
	if err := fr.archive(ctx); err != nil {
		return fr.failBeforeLog(ctx, FailureArchiveFailed, err)
	}

	if err := fr.allocateAndRecord(ctx); err != nil {
		return fr.failBeforeLog(ctx, FailureDBUnavailable, err)
	}

	duplicate, err := fr.checkDuplicate(ctx)
	if err != nil {
		return fr.fail(ctx, FailureDBUnavailable, err)
	}

	if duplicate {
		return fr.quarantineDuplicate(ctx)
	}

	stageTable := fr.stageTableName()

	if err := fr.createStage(ctx, stageTable); err != nil {
		return fr.fail(ctx, FailureStageCreateFailed, err)
	}

	validGrainKeys, dlqRows, streamErr := fr.stream(ctx, stageTable)
	if streamErr != nil {
		fr.dropStage(ctx, stageTable)
		return fr.fail(ctx, classifyStreamError(streamErr), streamErr)
	}

	if len(dlqRows) > 0 {
		if err := fr.runner.logStore.InsertDLQ(ctx, dlqRows); err != nil {
			fr.dropStage(ctx, stageTable)
			return fr.fail(ctx, FailureBulkInsertFailed, fmt.Errorf("writing dlq rows: %w", err))
		}
	}

	if fr.rowsInvalid > fr.cfg.Threshold {
		fr.dropStage(ctx, stageTable)
		return fr.fail(ctx, FailureValidationThresholdExceeded, fmt.Errorf("%w: %d invalid rows over threshold %d", ErrThresholdExceeded, fr.rowsInvalid, fr.cfg.Threshold))
	}

	auditor := NewAuditor(fr.runner.adapter, stageTable, fr.cfg)
	if err := auditor.Audit(ctx); err != nil {
		fr.dropStage(ctx, stageTable)
		return fr.fail(ctx, failureKindOf(err, FailureAuditFailedError), err)
	}

	if err := fr.machine.Transition(StateAudited); err != nil {
		return fr.fail(ctx, FailureAuditFailedError, err)
	}

	publisher := NewPublisher(fr.runner.adapter, fr.runner.logStore, stageTable, fr.cfg)

	var published int64

	publishOp := func() error {
		var publishErr error
		published, publishErr = publisher.Publish(ctx, validGrainKeys)
		return publishErr
	}

	if err := fr.retryStep(ctx, FailurePublishFailed, publishOp); err != nil {
		fr.dropStage(ctx, stageTable)
		return fr.fail(ctx, FailurePublishFailed, err)
	}

	fr.rowsPublished = published

	if err := fr.machine.Transition(StatePublished); err != nil {
		return fr.fail(ctx, FailurePublishFailed, err)
	}

	fr.cleanup(ctx, stageTable)

	if err := fr.machine.Transition(StateCleaned); err != nil {
		return fr.fail(ctx, FailurePublishFailed, err)
	}

	_ = fr.runner.logStore.Complete(ctx, fr.fileLoadID, StateCleaned, fr.rowsRead, fr.rowsValid, fr.rowsInvalid, fr.rowsPublished, "", "")

	return nil
}

// archive copies the source file into the archive directory with exponential-backoff
// retry over transient failures, per spec.md's Archive step (R=3, 1s/2s/4s by default).
func (fr *fileRun) archive(ctx context.Context) error {
	ctx, span := fr.runner.tracer.StartFileStage(ctx, "archive", fr.cfg.Name, fr.job.Name)
	defer func() { telemetry.EndWithError(span, nil) }()

	// Namespaced by arrival time so a same-named file re-delivered after a prior
	// successful archive (the exact case the Dedup step exists to catch) doesn't collide
	// with its own earlier archived copy.
	dst := path.Join(fr.runner.cfg.ArchiveDir, fmt.Sprintf("%d_%s", fr.startedAt.UnixNano(), fr.job.Name))

	op := func() error {
		return fr.runner.store.Move(ctx, fr.job.Path, dst)
	}

	if err := fr.retryStep(ctx, FailureArchiveFailed, op); err != nil {
		return fmt.Errorf("archiving %s after retries: %w", fr.job.Name, err)
	}

	fr.archivePath = dst

	return fr.machine.Transition(StateArchived)
}

// allocateAndRecord claims a file_load_id and inserts its Running file_load_log row,
// hashing the archived file's content for the dedup check that follows.
func (fr *fileRun) allocateAndRecord(ctx context.Context) error {
	id, err := fr.runner.logStore.AllocateFileLoadID(ctx)
	if err != nil {
		return fmt.Errorf("allocating file_load_id: %w", err)
	}

	fr.fileLoadID = id

	hash, err := fr.runner.store.Hash(ctx, fr.archivePath, fr.cfg.Gzip || strings.HasSuffix(fr.job.Name, ".gz"))
	if err != nil {
		return fmt.Errorf("hashing archived file: %w", err)
	}

	fr.contentHash = hash

	if err := fr.runner.logStore.InsertRunning(ctx, fr.fileLoadID, fr.cfg.Name, fr.job.Name, fr.contentHash); err != nil {
		return fmt.Errorf("recording file_load_log row: %w", err)
	}

	return nil
}

// checkDuplicate queries file_load_log for a prior Succeeded run with the same
// (filename, content hash).
func (fr *fileRun) checkDuplicate(ctx context.Context) (bool, error) {
	found, err := fr.runner.logStore.FindSucceeded(ctx, fr.cfg.Name, fr.job.Name, fr.contentHash)
	if err != nil {
		return false, err
	}

	if !found {
		if err := fr.machine.Transition(StateDeduped); err != nil {
			return false, err
		}
	}

	return found, nil
}

// stageTableName derives a per-file staging table name so concurrent loads of the same
// source never collide: stg_<source>_<file_load_id>.
func (fr *fileRun) stageTableName() string {
	return fmt.Sprintf("stg_%s_%d", fr.cfg.Name, fr.fileLoadID)
}

func (fr *fileRun) createStage(ctx context.Context, stageTable string) error {
	columns := make([]db.ColumnDef, len(fr.cfg.Schema))
	for i, f := range fr.cfg.Schema {
		columns[i] = db.ColumnDef{Name: f.Name, SQLType: sqlTypeFor(f.Type), Nullable: f.Nullable}
	}

	op := func() error {
		return fr.runner.adapter.CreateStagingTable(ctx, stageTable, columns)
	}

	if err := fr.retryStep(ctx, FailureStageCreateFailed, op); err != nil {
		return err
	}

	return fr.machine.Transition(StateStaged)
}

// retryStep runs op once, or under the same exponential-backoff retry policy Archive
// uses, according to kind.IsTransient() — spec.md §4.3/§4.6 scope retry to the failure
// classes that are plausibly transient (I/O timeout, connection reset, deadlock); a
// validation or structural failure retrying would just waste the budget re-failing.
func (fr *fileRun) retryStep(ctx context.Context, kind FailureKind, op func() error) error {
	if !kind.IsTransient() {
		return op()
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = fr.runner.cfg.ArchiveBackoff
	expBackoff.Multiplier = 2
	expBackoff.MaxElapsedTime = 0

	policy := backoff.WithMaxRetries(expBackoff, uint64(fr.runner.cfg.ArchiveRetries))

	return backoff.Retry(op, backoff.WithContext(policy, ctx))
}

// stream runs the Reader→Validator→Writer hand-off to completion, reading every batch
// even after the invalid-row threshold is crossed so the DLQ reflects the full error set.
// Returns the grain keys of every validly-published row (for post-publish DLQ
// self-healing) and the accumulated DLQ rows.
func (fr *fileRun) stream(ctx context.Context, stageTable string) ([]string, []ValidationFailure, error) {
	src, err := fr.runner.store.Open(ctx, fr.archivePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening archived file: %w", err)
	}
	defer func() { _ = src.Close() }()

	reader, err := NewReader(src, fr.cfg, fr.job.Name)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = reader.Close() }()

	if err := fr.machine.Transition(StateRead); err != nil {
		return nil, nil, err
	}

	validator := NewValidator(fr.cfg)
	writer := NewWriter(fr.runner.adapter, stageTable, fr.fileLoadID, fr.cfg)

	var dlqRows []ValidationFailure

	var validGrainKeys []string

	for {
		batch, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, nil, err
		}

		validator.ValidateBatch(batch)

		var failures []ValidationFailure

		op := func() error {
			var writeErr error
			failures, writeErr = writer.WriteBatch(ctx, batch)
			return writeErr
		}

		if err := fr.retryStep(ctx, FailureBulkInsertFailed, op); err != nil {
			return nil, nil, err
		}

		dlqRows = append(dlqRows, failures...)

		for _, rec := range batch.Records {
			if rec.Valid {
				validGrainKeys = append(validGrainKeys, grainValuesKey(fr.cfg.Grain, rec.Values))
			}
		}
	}

	fr.rowsRead = writer.RowsRead()
	fr.rowsValid = writer.RowsValid()
	fr.rowsInvalid = int64(validator.InvalidCount())

	if err := fr.machine.Transition(StateValidated); err != nil {
		return nil, nil, err
	}

	if err := fr.machine.Transition(StateWritten); err != nil {
		return nil, nil, err
	}

	return validGrainKeys, dlqRows, nil
}

// cleanup always drops the staging table and deletes the source file from the drop
// directory — never before publish has succeeded. Errors from both steps are discarded:
// they are neither logged nor sent as a notification, and never change the pipeline's
// terminal state.
func (fr *fileRun) cleanup(ctx context.Context, stageTable string) {
	fr.dropStage(ctx, stageTable)
	_ = fr.runner.store.Delete(ctx, fr.job.Path)
}

func (fr *fileRun) dropStage(ctx context.Context, stageTable string) {
	_ = fr.runner.adapter.DropStagingTable(ctx, stageTable)
}

// quarantineDuplicate handles step 3's DuplicateFile outcome: the archived copy stays put,
// the original drop-dir file moves to the duplicates directory, and the already-inserted
// file_load_log row is closed as Quarantined(DuplicateFile).
func (fr *fileRun) quarantineDuplicate(ctx context.Context) error {
	_ = fr.machine.Transition(StateQuarantined)

	dst := path.Join(fr.runner.cfg.DuplicateDir, fr.job.Name)
	_ = fr.runner.store.Move(ctx, fr.job.Path, dst)

	_ = fr.runner.logStore.Complete(ctx, fr.fileLoadID, StateQuarantined, fr.rowsRead, fr.rowsValid, fr.rowsInvalid, fr.rowsPublished, FailureDuplicateFile, "duplicate of a prior succeeded load")

	fr.notify(ctx, FailureDuplicateFile, ErrDuplicateFile)

	return NewError(FailureDuplicateFile, fr.cfg.Name, fr.job.Name, ErrDuplicateFile)
}

// fail quarantines a file once a file_load_log row already exists (steps 4 onward),
// moving the source file to the quarantine directory and closing the log row.
func (fr *fileRun) fail(ctx context.Context, kind FailureKind, cause error) error {
	_ = fr.machine.Transition(StateQuarantined)

	dst := path.Join(fr.runner.cfg.QuarantineDir, fr.job.Name)
	_ = fr.runner.store.Move(ctx, fr.job.Path, dst)

	_ = fr.runner.logStore.Complete(ctx, fr.fileLoadID, StateQuarantined, fr.rowsRead, fr.rowsValid, fr.rowsInvalid, fr.rowsPublished, kind, cause.Error())

	fr.notify(ctx, kind, cause)

	return NewError(kind, fr.cfg.Name, fr.job.Name, cause)
}

// failBeforeLog quarantines a file whose failure happened before a file_load_log row
// exists (Archive, or the allocate/insert step itself) — there is nothing to Complete,
// only the source file to relocate and stakeholders/operators to notify.
func (fr *fileRun) failBeforeLog(ctx context.Context, kind FailureKind, cause error) error {
	dst := path.Join(fr.runner.cfg.QuarantineDir, fr.job.Name)
	_ = fr.runner.store.Move(ctx, fr.job.Path, dst)

	fr.notify(ctx, kind, cause)

	return NewError(kind, fr.cfg.Name, fr.job.Name, cause)
}

func (fr *fileRun) notify(ctx context.Context, kind FailureKind, cause error) {
	if fr.runner.notifier == nil {
		return
	}

	n := notify.Notification{
		SourceName:    fr.cfg.Name,
		Filename:      fr.job.Name,
		FailureKind:   notify.FailureKind(kind),
		Detail:        cause.Error(),
		RowsRead:      fr.rowsRead,
		RowsValid:     fr.rowsValid,
		RowsInvalid:   fr.rowsInvalid,
		RowsPublished: fr.rowsPublished,
		OccurredAt:    time.Now(),
		Recipients:    fr.cfg.Notify.Recipients,
		CC:            fr.cfg.Notify.CC,
	}

	_ = fr.runner.notifier.Notify(ctx, n)
}

// classifyStreamError maps an error surfaced during the Reader→Validator→Writer hand-off
// to its FailureKind, preferring a *Error's own kind when the stage already classified it.
func classifyStreamError(err error) FailureKind {
	return failureKindOf(err, FailureBulkInsertFailed)
}

// failureKindOf extracts the FailureKind from err if it (or something it wraps) is a
// pipeline *Error, otherwise returns fallback.
func failureKindOf(err error, fallback FailureKind) FailureKind {
	var pipelineErr *Error
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Kind
	}

	return fallback
}

// grainValuesKey builds the same composite grain key format the Validator and Writer use,
// from a validated record's typed Values.
func grainValuesKey(grain []string, values map[string]any) string {
	parts := make([]string, len(grain))
	for i, g := range grain {
		parts[i] = fmt.Sprintf("%v", values[g])
	}

	return strings.Join(parts, "\x1f")
}

// sqlTypeFor maps a SourceConfig field's semantic type to a Postgres column type. Other
// dialects' adapters are responsible for their own mapping if/when implemented.
func sqlTypeFor(t sourceconfig.FieldType) string {
	switch t {
	case sourceconfig.FieldTypeInt:
		return "BIGINT"
	case sourceconfig.FieldTypeFloat:
		return "DOUBLE PRECISION"
	case sourceconfig.FieldTypeBool:
		return "BOOLEAN"
	case sourceconfig.FieldTypeDate:
		return "DATE"
	case sourceconfig.FieldTypeDatetime:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}
