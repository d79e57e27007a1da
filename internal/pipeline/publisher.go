package pipeline

import (
	"context"
	"fmt"

	"github.com/fileloader-io/fileloader/internal/db"
	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// DLQCleaner deletes file_load_dlq rows by (source, grain) — the self-healing side of
// Publish. Implemented against *sql.DB directly rather than db.Adapter, since DLQ cleanup
// is a plain parameterized delete with no dialect-specific staging/merge semantics.
type DLQCleaner interface {
	DeleteByGrain(ctx context.Context, sourceName string, grainKeys []string) (int64, error)
}

// Publisher merges a file's staging table into its target table and performs DLQ
// self-healing for any grain keys the merge just superseded.
type Publisher struct {
	adapter     db.Adapter
	dlq         DLQCleaner
	stageTable  string
	targetTable string
	sourceName  string
	columns     []string
	grain       []string
}

// NewPublisher creates a Publisher for a file's staging-to-target merge.
func NewPublisher(adapter db.Adapter, dlq DLQCleaner, stageTable string, cfg *sourceconfig.SourceConfig) *Publisher {
	columns := make([]string, len(cfg.Schema))
	for i, f := range cfg.Schema {
		columns[i] = f.Name
	}

	return &Publisher{
		adapter:     adapter,
		dlq:         dlq,
		stageTable:  stageTable,
		targetTable: cfg.TargetTable,
		sourceName:  cfg.Name,
		columns:     columns,
		grain:       cfg.Grain,
	}
}

// Publish merges stage into target by grain (insert-or-update, never delete), then
// deletes any file_load_dlq rows for this source whose grain now appears in target —
// the self-healing behaviour a re-submitted, now-valid file triggers.
func (p *Publisher) Publish(ctx context.Context, grainKeys []string) (int64, error) {
	published, err := p.adapter.Merge(ctx, p.stageTable, p.targetTable, p.columns, p.grain)
	if err != nil {
		return 0, NewError(FailurePublishFailed, p.sourceName, "", err)
	}

	if p.dlq != nil && len(grainKeys) > 0 {
		if _, err := p.dlq.DeleteByGrain(ctx, p.sourceName, grainKeys); err != nil {
			return published, fmt.Errorf("dlq self-heal after publish: %w", err)
		}
	}

	return published, nil
}
