package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fileloader-io/fileloader/internal/sourceconfig"
)

// ReasonDuplicateGrain is the ValidationFailure reason recorded when a record's grain
// tuple repeats one already seen earlier in the same file. First occurrence wins; the
// repeat is marked invalid rather than written to stage twice.
const ReasonDuplicateGrain = "DuplicateGrain"

const (
	dateLayout     = "2006-01-02"
	datetimeLayout = time.RFC3339
)

// Validator applies a SourceConfig's schema, per-field rules, and grain uniqueness to
// each record of a Batch, and tracks the running invalid-row count against the
// configured threshold. One Validator is scoped to exactly one file.
type Validator struct {
	cfg          *sourceconfig.SourceConfig
	seenGrains   map[string]struct{}
	invalidCount int
}

// NewValidator creates a Validator for the given SourceConfig.
func NewValidator(cfg *sourceconfig.SourceConfig) *Validator {
	return &Validator{
		cfg:        cfg,
		seenGrains: make(map[string]struct{}),
	}
}

// ValidateBatch mutates each Record in place: Valid, FailedFields, and Reasons are set,
// and Values are replaced with their coerced, typed form on success. Returns the number
// of invalid records in this batch; ValidateBatch never returns an error itself — the
// running threshold is inspected by the caller via InvalidCount/ThresholdExceeded after
// the Reader reaches EOF, per the documented continue-to-end-of-file semantics.
func (v *Validator) ValidateBatch(batch *Batch) int {
	invalidInBatch := 0

	for i := range batch.Records {
		rec := &batch.Records[i]

		failedFields, reasons, typed := v.validateRecord(rec)

		if len(failedFields) == 0 {
			grainKey := v.grainKeyFor(typed)

			if _, seen := v.seenGrains[grainKey]; seen {
				failedFields = append(failedFields, v.cfg.Grain...)
				reasons = append(reasons, ReasonDuplicateGrain)
			} else {
				v.seenGrains[grainKey] = struct{}{}
			}
		}

		if len(failedFields) == 0 {
			rec.Valid = true
			rec.Values = typed
		} else {
			rec.Valid = false
			rec.FailedFields = failedFields
			rec.Reasons = reasons
			v.invalidCount++
			invalidInBatch++
		}
	}

	return invalidInBatch
}

// InvalidCount returns the running count of invalid records across all batches seen so far.
func (v *Validator) InvalidCount() int {
	return v.invalidCount
}

// ThresholdExceeded reports whether the running invalid count exceeds the SourceConfig's
// configured threshold. Callers check this after the Reader reaches io.EOF, not per-batch —
// the file is read to completion regardless, so the DLQ reflects the full error set.
func (v *Validator) ThresholdExceeded() bool {
	return v.invalidCount > v.cfg.Threshold
}

// grainKeyFor builds a stable composite key from a record's grain field values, used for
// the streaming duplicate-grain check.
func (v *Validator) grainKeyFor(values map[string]any) string {
	parts := make([]string, len(v.cfg.Grain))
	for i, g := range v.cfg.Grain {
		parts[i] = fmt.Sprintf("%v", values[g])
	}

	return strings.Join(parts, "\x1f")
}

// validateRecord type-coerces and validates a single record against the schema, returning
// the failed field names, human-readable reasons, and the coerced value map (valid fields
// only coerced; invalid fields keep the raw value for DLQ serialization).
func (v *Validator) validateRecord(rec *Record) ([]string, []string, map[string]any) {
	var failedFields, reasons []string

	typed := make(map[string]any, len(v.cfg.Schema))

	for _, field := range v.cfg.Schema {
		raw, present := rec.Values[field.Name]

		if !present || isBlank(raw) {
			if field.Nullable {
				typed[field.Name] = nil
				continue
			}

			failedFields = append(failedFields, field.Name)
			reasons = append(reasons, fmt.Sprintf("%s is required", field.Name))

			continue
		}

		value, err := coerce(raw, field.Type)
		if err != nil {
			failedFields = append(failedFields, field.Name)
			reasons = append(reasons, fmt.Sprintf("%s: %v", field.Name, err))

			continue
		}

		if err := applyRules(value, field.Rules); err != nil {
			failedFields = append(failedFields, field.Name)
			reasons = append(reasons, fmt.Sprintf("%s: %v", field.Name, err))

			continue
		}

		typed[field.Name] = value
	}

	return failedFields, reasons, typed
}

// isBlank reports whether a raw cell value should be treated as absent.
func isBlank(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// coerce converts a raw cell value (typically a string from CSV/Excel, or a native JSON/
// Parquet type) into the field's declared semantic type.
func coerce(raw any, fieldType sourceconfig.FieldType) (any, error) {
	switch fieldType {
	case sourceconfig.FieldTypeString:
		return fmt.Sprintf("%v", raw), nil

	case sourceconfig.FieldTypeInt:
		switch t := raw.(type) {
		case int64:
			return t, nil
		case float64:
			return int64(t), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("not a valid int: %q", t)
			}
			return n, nil
		default:
			return nil, fmt.Errorf("not a valid int: %v", raw)
		}

	case sourceconfig.FieldTypeFloat:
		switch t := raw.(type) {
		case float64:
			return t, nil
		case int64:
			return float64(t), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("not a valid float: %q", t)
			}
			return f, nil
		default:
			return nil, fmt.Errorf("not a valid float: %v", raw)
		}

	case sourceconfig.FieldTypeBool:
		switch t := raw.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(t))
			if err != nil {
				return nil, fmt.Errorf("not a valid bool: %q", t)
			}
			return b, nil
		default:
			return nil, fmt.Errorf("not a valid bool: %v", raw)
		}

	case sourceconfig.FieldTypeDate:
		return parseTime(raw, dateLayout)

	case sourceconfig.FieldTypeDatetime:
		return parseTime(raw, datetimeLayout)

	default:
		return nil, fmt.Errorf("unknown field type %q", fieldType)
	}
}

func parseTime(raw any, layout string) (any, error) {
	switch t := raw.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(layout, strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("not a valid %s: %q", layout, t)
		}
		return parsed, nil
	default:
		return nil, fmt.Errorf("not a valid timestamp: %v", raw)
	}
}

// applyRules evaluates a field's declared constraint predicates against its coerced value.
// Supported rules: "min:N", "max:N" (numeric bounds), "nonempty" (non-blank string),
// "enum:a,b,c" (value must be one of the listed options), "regex:PATTERN" is intentionally
// not supported here — regex rules belong in SourceConfig-level audits, which run against
// the stage table with full SQL context rather than per-record in Go. Rules may also be
// written as a bare comparison expression, e.g. "age >= 0" (SourceConfig's documented
// shape): a leading field-name token is ignored, and the trailing operator/scalar pair is
// evaluated the same way Auditor's predicates are.
func applyRules(value any, rules []string) error {
	for _, rule := range rules {
		name, arg, hasColon := strings.Cut(rule, ":")

		if !hasColon {
			switch name {
			case "nonempty":
				if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
					return fmt.Errorf("value must not be empty")
				}

				continue
			default:
				matched, err := evalExpressionRule(rule, value)
				if !matched {
					return fmt.Errorf("unknown rule %q", rule)
				}

				if err != nil {
					return err
				}

				continue
			}
		}

		switch name {
		case "min":
			bound, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("invalid rule %q", rule)
			}
			if num, ok := asFloat(value); ok && num < bound {
				return fmt.Errorf("value %v below minimum %v", value, bound)
			}

		case "max":
			bound, err := strconv.ParseFloat(arg, 64)
			if err != nil {
				return fmt.Errorf("invalid rule %q", rule)
			}
			if num, ok := asFloat(value); ok && num > bound {
				return fmt.Errorf("value %v above maximum %v", value, bound)
			}

		case "enum":
			options := strings.Split(arg, ",")
			s := fmt.Sprintf("%v", value)

			matched := false
			for _, opt := range options {
				if s == opt {
					matched = true
					break
				}
			}

			if !matched {
				return fmt.Errorf("value %q not in allowed set %v", s, options)
			}

		default:
			return fmt.Errorf("unknown rule %q", rule)
		}
	}

	return nil
}

// evalExpressionRule recognizes a bare "[field] <op> <value>" expression rule, e.g.
// "age >= 0" or ">= 0". matched is false when the rule contains none of the recognized
// comparison operators, letting the caller fall back to its own "unknown rule" error.
func evalExpressionRule(rule string, value any) (matched bool, err error) {
	fields := strings.Fields(rule)

	opIdx := -1

	for i, f := range fields {
		if isComparisonOperator(f) {
			opIdx = i
			break
		}
	}

	if opIdx == -1 || opIdx == len(fields)-1 {
		return false, nil
	}

	op := fields[opIdx]
	valueStr := strings.Join(fields[opIdx+1:], "")

	want, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return false, nil
	}

	got, ok := asFloat(value)
	if !ok {
		return true, fmt.Errorf("value %v is not numeric", value)
	}

	if !comparePredicate(op, got, want) {
		return true, fmt.Errorf("value %v fails rule %q", value, rule)
	}

	return true, nil
}

func isComparisonOperator(s string) bool {
	for _, op := range predicateOperators {
		if s == op {
			return true
		}
	}

	return false
}

// asFloat widens a value to float64 for numeric comparisons, covering both the coerced
// Go types ValidateBatch produces and the scalar types database/sql drivers return.
func asFloat(value any) (float64, bool) {
	switch t := value.(type) {
	case int64:
		return float64(t), true
	case int32:
		return float64(t), true
	case int:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}
