// Package sourceconfig loads the declarative YAML document binding filename patterns to
// target tables, schemas, grains, validators, audits, and notification policy.
package sourceconfig

import (
	"errors"
	"fmt"
)

// Sentinel errors for SourceConfig validation. Any of these raised during Load
// is a ConfigError — fatal at process startup.
var (
	ErrNameEmpty          = errors.New("source name cannot be empty")
	ErrPatternEmpty       = errors.New("source pattern cannot be empty")
	ErrPatternInvalid     = errors.New("source pattern is not a valid regular expression")
	ErrFileTypeInvalid    = errors.New("file_type must be one of: csv, excel, json, parquet")
	ErrSchemaEmpty        = errors.New("schema must declare at least one field")
	ErrGrainEmpty         = errors.New("grain must name at least one field")
	ErrGrainFieldUnknown  = errors.New("grain field is not declared in schema")
	ErrGrainFieldNullable = errors.New("grain field must be non-nullable")
	ErrDuplicateName      = errors.New("duplicate source name")
)

// FileType is the declared file format for a SourceConfig.
type FileType string

const (
	FileTypeCSV     FileType = "csv"
	FileTypeExcel   FileType = "excel"
	FileTypeJSON    FileType = "json"
	FileTypeParquet FileType = "parquet"
)

// IsValid reports whether the FileType is recognized.
func (t FileType) IsValid() bool {
	switch t {
	case FileTypeCSV, FileTypeExcel, FileTypeJSON, FileTypeParquet:
		return true
	default:
		return false
	}
}

// FieldType is the semantic type of a schema field, used for coercion and validation.
type FieldType string

const (
	FieldTypeInt      FieldType = "int"
	FieldTypeFloat    FieldType = "float"
	FieldTypeString   FieldType = "string"
	FieldTypeBool     FieldType = "bool"
	FieldTypeDate     FieldType = "date"
	FieldTypeDatetime FieldType = "datetime"
)

type (
	// Field declares one row schema field.
	Field struct {
		Name     string    `yaml:"field"`
		Type     FieldType `yaml:"type"`
		Nullable bool      `yaml:"nullable"`
		Rules    []string  `yaml:"rules"`
	}

	// CSVOptions are file-type-specific options for csv sources.
	CSVOptions struct {
		Delimiter  string `yaml:"delimiter"`
		HeaderSkip int    `yaml:"header_skip"`
		Encoding   string `yaml:"encoding"`
	}

	// ExcelOptions are file-type-specific options for excel sources.
	ExcelOptions struct {
		Sheet      string `yaml:"sheet"`
		HeaderSkip int    `yaml:"header_skip"`
	}

	// JSONOptions are file-type-specific options for json sources.
	JSONOptions struct {
		// RecordPath is a dot-separated path to the array of records within the document.
		// Empty means the document root is the array.
		RecordPath string `yaml:"record_path"`
	}

	// ParquetOptions are file-type-specific options for parquet sources.
	ParquetOptions struct {
		BatchSize int `yaml:"batch_size"`
	}

	// Audit is a single user-supplied post-write check against the staging table.
	Audit struct {
		Name      string `yaml:"name"`
		SQL       string `yaml:"sql"`
		Predicate string `yaml:"predicate"`
	}

	// Notifications is a source's recipient list, CC list, and enabled notification kinds.
	Notifications struct {
		Recipients []string `yaml:"recipients"`
		CC         []string `yaml:"cc"`
		Kinds      []string `yaml:"kinds"`
	}

	// SourceConfig is an immutable, process-lifetime binding of a filename pattern to a
	// target table, schema, grain, validators, audits, and notification policy.
	SourceConfig struct {
		Name         string         `yaml:"name"`
		Pattern      string         `yaml:"pattern"`
		FileType     FileType       `yaml:"file_type"`
		Gzip         bool           `yaml:"gzip"`
		CSV          CSVOptions     `yaml:"csv"`
		Excel        ExcelOptions   `yaml:"excel"`
		JSON         JSONOptions    `yaml:"json"`
		Parquet      ParquetOptions `yaml:"parquet"`
		TargetTable  string         `yaml:"target_table"`
		Schema       []Field        `yaml:"schema"`
		Grain        []string       `yaml:"grain"`
		Threshold    int            `yaml:"threshold"`
		Audits       []Audit        `yaml:"audits"`
		Notify       Notifications  `yaml:"notifications"`
	}

	// document is the top-level YAML shape: defaults merged into every source entry.
	document struct {
		Defaults SourceConfig   `yaml:"defaults"`
		Sources  []SourceConfig `yaml:"sources"`
	}
)

// FieldNames returns the declared schema field names.
func (c *SourceConfig) FieldNames() map[string]Field {
	out := make(map[string]Field, len(c.Schema))
	for _, f := range c.Schema {
		out[f.Name] = f
	}

	return out
}

// Validate enforces the invariants spec.md §3 requires of a SourceConfig: grain fields
// are a subset of schema fields, and every grain field is non-nullable.
func (c *SourceConfig) Validate() error {
	if c.Name == "" {
		return ErrNameEmpty
	}

	if c.Pattern == "" {
		return fmt.Errorf("%w: %s", ErrPatternEmpty, c.Name)
	}

	if !c.FileType.IsValid() {
		return fmt.Errorf("%w: %s (source %s)", ErrFileTypeInvalid, c.FileType, c.Name)
	}

	if len(c.Schema) == 0 {
		return fmt.Errorf("%w: %s", ErrSchemaEmpty, c.Name)
	}

	if len(c.Grain) == 0 {
		return fmt.Errorf("%w: %s", ErrGrainEmpty, c.Name)
	}

	fields := c.FieldNames()

	for _, g := range c.Grain {
		field, ok := fields[g]
		if !ok {
			return fmt.Errorf("%w: %s (source %s)", ErrGrainFieldUnknown, g, c.Name)
		}

		if field.Nullable {
			return fmt.Errorf("%w: %s (source %s)", ErrGrainFieldNullable, g, c.Name)
		}
	}

	return nil
}
