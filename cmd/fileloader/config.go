package main

import (
	"errors"
	"strings"
	"time"

	"github.com/fileloader-io/fileloader/internal/config"
	"github.com/fileloader-io/fileloader/internal/db"
	"github.com/fileloader-io/fileloader/internal/notify"
	"github.com/fileloader-io/fileloader/internal/pipeline"
)

// ErrDirectoryPathEmpty is a ConfigError: the drop directory must be configured.
var ErrDirectoryPathEmpty = errors.New("DIRECTORY_PATH must be set")

// envPrefix returns "DEV_" when ENV_STATE=dev. The prefix applies to the variables this
// file reads with envPrefix (DIRECTORY_PATH, ARCHIVE_PATH, DUPLICATE_FILES_PATH,
// SOURCE_CONFIG_PATH, WORKER_COUNT, ARCHIVE_RETRIES, ARCHIVE_BACKOFF). The DATABASE_*,
// SMTP_* and WEBHOOK_URL variables are read by db.LoadConfig,
// notify.LoadEmailConfigFromEnv and notify.LoadWebhookURLFromEnv without the prefix.
func envPrefix() string {
	if strings.EqualFold(config.GetEnvStr("ENV_STATE", ""), "dev") {
		return "DEV_"
	}

	return ""
}

func envStr(key, defaultValue string) string {
	return config.GetEnvStr(envPrefix()+key, defaultValue)
}

func envInt(key string, defaultValue int) int {
	return config.GetEnvInt(envPrefix()+key, defaultValue)
}

// AppConfig is the process-lifetime configuration loaded from the environment: drop/
// archive/duplicate directories, source config path, worker count, and the database/
// notification settings needed to build their respective clients.
type AppConfig struct {
	DirectoryPath  string
	ArchivePath    string
	DuplicatePath  string
	SourceConfigPath string
	Workers        int
	ArchiveRetries int
	ArchiveBackoff time.Duration

	DB    *db.Config
	Email notify.EmailConfig

	WebhookURL string
}

// LoadAppConfig reads AppConfig from the environment, applying the dev-prefixing rule.
func LoadAppConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		DirectoryPath:    envStr("DIRECTORY_PATH", ""),
		ArchivePath:      envStr("ARCHIVE_PATH", ""),
		DuplicatePath:    envStr("DUPLICATE_FILES_PATH", ""),
		SourceConfigPath: envStr("SOURCE_CONFIG_PATH", "sources.yaml"),
		Workers:          envInt("WORKER_COUNT", 0),
		ArchiveRetries:   envInt("ARCHIVE_RETRIES", 3),
		ArchiveBackoff:   config.GetEnvDuration(envPrefix()+"ARCHIVE_BACKOFF", time.Second),
		DB:               db.LoadConfig(),
		Email:            notify.LoadEmailConfigFromEnv(),
		WebhookURL:       notify.LoadWebhookURLFromEnv(),
	}

	if cfg.DirectoryPath == "" {
		return nil, pipeline.NewError(pipeline.FailureConfigError, "", "", ErrDirectoryPathEmpty)
	}

	if cfg.ArchivePath == "" {
		cfg.ArchivePath = cfg.DirectoryPath + "/archive"
	}

	if cfg.DuplicatePath == "" {
		cfg.DuplicatePath = cfg.DirectoryPath + "/quarantine"
	}

	return cfg, nil
}
