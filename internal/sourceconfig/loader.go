package sourceconfig

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/fileloader-io/fileloader/internal/config"
)

const (
	// DefaultConfigPath is the default location of the SourceConfig document.
	DefaultConfigPath = "sources.yaml"

	// ConfigPathEnvVar is the environment variable naming a custom config path.
	ConfigPathEnvVar = "SOURCES_CONFIG_PATH"
)

// Load reads and validates the SourceConfig document at path, merging the document's
// `defaults` block into each source entry before validation.
//
// Behavior mirrors the aliasing-package convention this is grounded on: a missing file
// is not an error (an empty registry is returned, with a log warning) since in principle
// an operator may run FileLoader with zero sources declared yet; an unparsable document,
// however, is a ConfigError, since malformed source declarations cannot be silently
// skipped without risking mismatched schema/grain expectations downstream.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from a trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("source config file not found, starting with an empty registry",
				slog.String("path", path))

			return NewRegistry(nil)
		}

		return nil, fmt.Errorf("%w: reading %s: %w", ErrConfigUnreadable, path, err)
	}

	if len(data) == 0 {
		return NewRegistry(nil)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrConfigUnparsable, path, err)
	}

	merged := make([]SourceConfig, 0, len(doc.Sources))

	for _, src := range doc.Sources {
		withDefaults := doc.Defaults

		if err := mergo.Merge(&withDefaults, src, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("%w: merging defaults into source %s: %w", ErrConfigUnparsable, src.Name, err)
		}

		merged = append(merged, withDefaults)
	}

	return NewRegistry(merged)
}

// LoadFromEnv loads the SourceConfig document from the path named by
// SOURCES_CONFIG_PATH, falling back to DefaultConfigPath.
func LoadFromEnv() (*Registry, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return Load(path)
}

// ErrConfigUnreadable and ErrConfigUnparsable are ConfigError causes distinct from a
// simply-missing file.
var (
	ErrConfigUnreadable = errors.New("source config file could not be read")
	ErrConfigUnparsable = errors.New("source config file could not be parsed")
)

// compilePattern compiles a SourceConfig's regex pattern as written. The pattern is not
// anchored, so it matches any part of the base filename unless it uses ^ and $.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrPatternInvalid, pattern, err)
	}

	return re, nil
}
