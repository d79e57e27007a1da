package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileloader-io/fileloader/internal/pipeline"
)

func TestLoadAppConfig_MissingDirectoryPathIsConfigError(t *testing.T) {
	t.Setenv("DIRECTORY_PATH", "")

	_, err := LoadAppConfig()

	require.Error(t, err)

	var pipelineErr *pipeline.Error
	require.ErrorAs(t, err, &pipelineErr)
	assert.Equal(t, pipeline.FailureConfigError, pipelineErr.Kind)
}

func TestLoadAppConfig_DefaultsArchiveAndDuplicatePathsFromDirectoryPath(t *testing.T) {
	t.Setenv("DIRECTORY_PATH", "/data/drop")
	t.Setenv("ARCHIVE_PATH", "")
	t.Setenv("DUPLICATE_FILES_PATH", "")

	cfg, err := LoadAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "/data/drop/archive", cfg.ArchivePath)
	assert.Equal(t, "/data/drop/quarantine", cfg.DuplicatePath)
}

func TestLoadAppConfig_ExplicitArchiveAndDuplicatePathsAreHonored(t *testing.T) {
	t.Setenv("DIRECTORY_PATH", "/data/drop")
	t.Setenv("ARCHIVE_PATH", "/data/archive")
	t.Setenv("DUPLICATE_FILES_PATH", "/data/quarantine")

	cfg, err := LoadAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "/data/archive", cfg.ArchivePath)
	assert.Equal(t, "/data/quarantine", cfg.DuplicatePath)
}

func TestLoadAppConfig_DevPrefixAppliesToAppVariables(t *testing.T) {
	t.Setenv("ENV_STATE", "dev")
	t.Setenv("DIRECTORY_PATH", "")
	t.Setenv("DEV_DIRECTORY_PATH", "/dev/drop")
	t.Setenv("DEV_ARCHIVE_RETRIES", "5")

	cfg, err := LoadAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "/dev/drop", cfg.DirectoryPath)
	assert.Equal(t, 5, cfg.ArchiveRetries)
}

func TestLoadAppConfig_DefaultsWhenUnset(t *testing.T) {
	t.Setenv("DIRECTORY_PATH", "/data/drop")
	t.Setenv("SOURCE_CONFIG_PATH", "")
	t.Setenv("ARCHIVE_RETRIES", "")
	t.Setenv("ARCHIVE_BACKOFF", "")

	cfg, err := LoadAppConfig()
	require.NoError(t, err)

	assert.Equal(t, "sources.yaml", cfg.SourceConfigPath)
	assert.Equal(t, 3, cfg.ArchiveRetries)
	assert.Equal(t, time.Second, cfg.ArchiveBackoff)
}
