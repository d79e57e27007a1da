package sourceconfig

import (
	"fmt"
	"regexp"
)

// compiledSource pairs a validated SourceConfig with its compiled filename pattern.
type compiledSource struct {
	config *SourceConfig
	regex  *regexp.Regexp
}

// Registry is the immutable, process-lifetime, ordered set of SourceConfigs loaded at
// startup. Matching is first-pattern-wins in declaration order, per spec.md §4.2/§5.
type Registry struct {
	sources []compiledSource
}

// NewRegistry validates and compiles a slice of SourceConfigs into a Registry.
// Returns ConfigError (via the sentinel errors in types.go) on the first invalid entry
// or duplicate name.
func NewRegistry(configs []SourceConfig) (*Registry, error) {
	seen := make(map[string]struct{}, len(configs))
	compiled := make([]compiledSource, 0, len(configs))

	for i := range configs {
		cfg := configs[i]

		if err := cfg.Validate(); err != nil {
			return nil, err
		}

		if _, dup := seen[cfg.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, cfg.Name)
		}

		seen[cfg.Name] = struct{}{}

		re, err := compilePattern(cfg.Pattern)
		if err != nil {
			return nil, err
		}

		compiled = append(compiled, compiledSource{config: &cfg, regex: re})
	}

	return &Registry{sources: compiled}, nil
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}

	return len(r.sources)
}

// Match returns the first SourceConfig whose pattern matches the base filename, in
// declaration order. Returns (nil, false) if no source matches.
func (r *Registry) Match(baseFilename string) (*SourceConfig, bool) {
	if r == nil {
		return nil, false
	}

	for _, s := range r.sources {
		if s.regex.MatchString(baseFilename) {
			return s.config, true
		}
	}

	return nil, false
}

// ByName returns a registered source by its unique name, restricting matching to one
// source per the CLI `--source NAME` flag (spec.md §6).
func (r *Registry) ByName(name string) (*SourceConfig, bool) {
	if r == nil {
		return nil, false
	}

	for _, s := range r.sources {
		if s.config.Name == name {
			return s.config, true
		}
	}

	return nil, false
}

// All returns every registered SourceConfig in declaration order.
func (r *Registry) All() []*SourceConfig {
	if r == nil {
		return nil
	}

	out := make([]*SourceConfig, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s.config)
	}

	return out
}
