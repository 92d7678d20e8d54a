package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSubmitTimeout bounds one connector call when the tool config does
// not say otherwise.
const DefaultSubmitTimeout = 30 * time.Second

// Tool is the tasksync.yaml configuration.
type Tool struct {
	// Database is the SQLite file holding baselines, remembered defaults
	// and the submission log.
	Database string `yaml:"database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// SubmitTimeout bounds one connector call.
	SubmitTimeout time.Duration `yaml:"submit_timeout,omitempty"`

	// Repositories lists the known repositories and their definitions.
	Repositories []RepositoryRef `yaml:"repositories"`
}

// RepositoryRef points at a repository definition.
type RepositoryRef struct {
	URL string `yaml:"url"`

	// Definition is a .cue file or directory, relative to the config file.
	Definition string `yaml:"definition"`
}

// LoadTool reads a tool config. Unknown fields are rejected and relative
// paths are resolved against the config file's directory.
func LoadTool(path string) (*Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading tool config: %v", err)}
	}

	var t Tool
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&t); err != nil {
		return nil, &Error{Code: ErrCodeToolConfig, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	base := filepath.Dir(path)
	if t.Database != "" && !filepath.IsAbs(t.Database) {
		t.Database = filepath.Join(base, t.Database)
	}
	for i, r := range t.Repositories {
		if r.Definition != "" && !filepath.IsAbs(r.Definition) {
			t.Repositories[i].Definition = filepath.Join(base, r.Definition)
		}
	}
	if t.SubmitTimeout == 0 {
		t.SubmitTimeout = DefaultSubmitTimeout
	}

	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Tool) validate() error {
	if t.Database == "" {
		return &Error{Code: ErrCodeToolConfig, Field: "database", Message: "database is required"}
	}
	if t.SubmitTimeout < 0 {
		return &Error{Code: ErrCodeToolConfig, Field: "submit_timeout", Message: "must not be negative"}
	}
	if _, err := t.Level(); err != nil {
		return err
	}
	seen := make(map[string]bool)
	for i, r := range t.Repositories {
		field := fmt.Sprintf("repositories[%d]", i)
		if r.URL == "" {
			return &Error{Code: ErrCodeToolConfig, Field: field + ".url", Message: "url is required"}
		}
		if r.Definition == "" {
			return &Error{Code: ErrCodeToolConfig, Field: field + ".definition", Message: "definition is required"}
		}
		if seen[r.URL] {
			return &Error{Code: ErrCodeToolConfig, Field: field + ".url", Message: fmt.Sprintf("duplicate repository %s", r.URL)}
		}
		seen[r.URL] = true
	}
	return nil
}

// Level returns the configured log level. An empty level means info.
func (t *Tool) Level() (slog.Level, error) {
	switch strings.ToLower(t.LogLevel) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, &Error{Code: ErrCodeToolConfig, Field: "log_level", Message: fmt.Sprintf("unknown level %q", t.LogLevel)}
	}
}

// Repository returns the definition reference for a repository URL.
func (t *Tool) Repository(url string) (RepositoryRef, bool) {
	for _, r := range t.Repositories {
		if r.URL == url {
			return r, true
		}
	}
	return RepositoryRef{}, false
}
