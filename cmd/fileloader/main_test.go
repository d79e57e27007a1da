package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fileloader-io/fileloader/internal/db"
)

func TestRun_HelpFlagPrintsUsageAndExitsOK(t *testing.T) {
	assert.Equal(t, exitOK, run([]string{"--help"}))
}

func TestRun_NoArgsExitsConfigError(t *testing.T) {
	assert.Equal(t, exitConfigError, run([]string{}))
}

func TestRun_UnknownCommandExitsConfigError(t *testing.T) {
	assert.Equal(t, exitConfigError, run([]string{"bogus"}))
}

func TestRun_UnparsableFlagsExitsConfigError(t *testing.T) {
	assert.Equal(t, exitConfigError, run([]string{"--not-a-flag"}))
}

func TestRun_RunCommandWithoutDirectoryPathExitsConfigError(t *testing.T) {
	t.Setenv("DIRECTORY_PATH", "")

	assert.Equal(t, exitConfigError, run([]string{"run"}))
}

func TestDriverFor_PostgresDialectMapsToDriverName(t *testing.T) {
	assert.Equal(t, db.PostgresDriverName, driverFor(string(db.DialectPostgres)))
}

func TestDriverFor_UnknownDialectPassesThrough(t *testing.T) {
	assert.Equal(t, "mysql", driverFor("mysql"))
}
