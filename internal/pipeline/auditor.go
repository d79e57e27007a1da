package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fileloader-io/fileloader/internal/db"
	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// Auditor runs the mandatory grain-uniqueness check and any user-supplied audit queries
// against a file's staging table, before Publish is allowed to run.
type Auditor struct {
	adapter    db.Adapter
	stageTable string
	grain      []string
	audits     []sourceconfig.Audit
}

// NewAuditor creates an Auditor for a file's staging table.
func NewAuditor(adapter db.Adapter, stageTable string, cfg *sourceconfig.SourceConfig) *Auditor {
	return &Auditor{
		adapter:    adapter,
		stageTable: stageTable,
		grain:      cfg.Grain,
		audits:     cfg.Audits,
	}
}

// Audit runs the grain-uniqueness check, then every configured audit query, in order,
// stopping at the first failure. Returns a pipeline Error with FailureGrainValidationError
// or FailureAuditFailedError on the first violation found.
func (a *Auditor) Audit(ctx context.Context) error {
	if err := a.checkGrainUniqueness(ctx); err != nil {
		return err
	}

	for _, audit := range a.audits {
		if err := a.runAudit(ctx, audit); err != nil {
			return err
		}
	}

	return nil
}

// checkGrainUniqueness counts the grain groups in stage that occur more than once
// (`SELECT COUNT(*) FROM (SELECT grain FROM stage GROUP BY grain HAVING COUNT(*) > 1)`);
// a count above zero fails the file.
func (a *Auditor) checkGrainUniqueness(ctx context.Context) error {
	cols := strings.Join(a.grain, ", ")
	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT %s FROM %s GROUP BY %s HAVING COUNT(*) > 1) dup",
		cols, a.stageTable, cols,
	)

	result, err := a.adapter.ExecuteScalar(ctx, query)
	if err != nil {
		return NewError(FailureAuditFailedError, "", "", fmt.Errorf("grain uniqueness check: %w", err))
	}

	count, ok := asCount(result)
	if ok && count > 0 {
		return NewError(FailureGrainValidationError, "", "", fmt.Errorf("%w: %d duplicate grain group(s)", ErrGrainValidation, count))
	}

	return nil
}

// runAudit executes one user-supplied audit query and compares its scalar result against
// the declared predicate: a comparison operator (=, !=, <, <=, >, >=) followed by the
// expected scalar, e.g. "= 0" or "> 0" (spec §4.7's "the configured predicate ... must
// hold").
func (a *Auditor) runAudit(ctx context.Context, audit sourceconfig.Audit) error {
	result, err := a.adapter.ExecuteScalar(ctx, audit.SQL)
	if err != nil {
		return NewError(FailureAuditFailedError, "", "", fmt.Errorf("audit %q: %w", audit.Name, err))
	}

	op, want, err := parsePredicate(audit.Predicate)
	if err != nil {
		return NewError(FailureAuditFailedError, "", "", fmt.Errorf("%w: audit %q has unparseable predicate %q: %v", ErrAuditFailed, audit.Name, audit.Predicate, err))
	}

	got, ok := asFloat(result)
	if !ok {
		return NewError(FailureAuditFailedError, "", "", fmt.Errorf("%w: audit %q returned a non-numeric scalar %v", ErrAuditFailed, audit.Name, result))
	}

	if !comparePredicate(op, got, want) {
		return NewError(FailureAuditFailedError, "", "", fmt.Errorf("%w: audit %q expected %s, got %v", ErrAuditFailed, audit.Name, audit.Predicate, result))
	}

	return nil
}

// predicateOperators lists the recognized comparison operators, longest first so "<=" and
// ">=" are matched before their single-character prefixes "<" and ">".
var predicateOperators = []string{"<=", ">=", "!=", "=", "<", ">"}

// parsePredicate splits a predicate like "> 0" or ">=10" into its comparison operator and
// expected scalar.
func parsePredicate(predicate string) (string, float64, error) {
	predicate = strings.TrimSpace(predicate)

	for _, op := range predicateOperators {
		if !strings.HasPrefix(predicate, op) {
			continue
		}

		value := strings.TrimSpace(strings.TrimPrefix(predicate, op))

		want, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return "", 0, fmt.Errorf("invalid predicate value %q: %w", value, err)
		}

		return op, want, nil
	}

	return "", 0, fmt.Errorf("predicate must start with one of =, !=, <, <=, >, >=")
}

// comparePredicate evaluates got <op> want.
func comparePredicate(op string, got, want float64) bool {
	switch op {
	case "=":
		return got == want
	case "!=":
		return got != want
	case "<":
		return got < want
	case "<=":
		return got <= want
	case ">":
		return got > want
	case ">=":
		return got >= want
	default:
		return false
	}
}

func asCount(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case int32:
		return int64(t), true
	case int:
		return int64(t), true
	case float64:
		return int64(t), true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
