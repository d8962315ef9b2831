package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andreyvit/vstore"
)

const sampleConfig = `
data_dir: /tmp/vs
database: notes
poll_interval: 5ms
poll_attempts: 7
stores:
  - name: notes
    indexes:
      - name: keyword
      - name: tag
        key_path: [tags]
        multi: true
      - name: slug
        unique: true
objects:
  - settings
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_file(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/vs", cfg.DataDir)
	assert.Equal(t, "notes", cfg.Database)
	assert.Equal(t, 5*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 7, cfg.PollAttempts)
	assert.Equal(t, vstore.DefaultUpgradeTimeout, cfg.UpgradeTimeout)
	require.Len(t, cfg.Stores, 1)
	assert.Len(t, cfg.Stores[0].Indexes, 3)
	assert.Equal(t, []string{"settings"}, cfg.Objects)
}

func TestLoadConfig_defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, defaultDataDir, cfg.DataDir)
	assert.Equal(t, defaultDatabase, cfg.Database)
	assert.Equal(t, vstore.DefaultPollAttempts, cfg.PollAttempts)
	assert.Empty(t, cfg.Stores)
}

func TestLoadConfig_env(t *testing.T) {
	t.Setenv("VSTORE_DATABASE", "fromenv")
	t.Setenv("VSTORE_STRICT_READINESS", "true")
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	assert.Equal(t, "fromenv", cfg.Database)
	assert.True(t, cfg.StrictReadiness)
}

func TestLoadConfig_missingExplicitFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigSchema(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)
	scm, err := cfg.schema()
	require.NoError(t, err)

	assert.Equal(t, []string{"notes"}, scm.StoreNames())
	assert.Equal(t, []string{"settings"}, scm.ObjectNames())
}

func TestConfigSchema_duplicate(t *testing.T) {
	cfg := &config{
		Stores:  []storeConfig{{Name: "a"}},
		Objects: []string{"a"},
	}
	_, err := cfg.schema()
	assert.ErrorContains(t, err, "declared twice")
}

func TestParseRecords(t *testing.T) {
	recs, err := parseRecords(`[{"id":"a"},{"id":"b"}]`, nil)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = parseRecords(`{"id":"a","n":1}`, nil)
	require.NoError(t, err)
	assert.Equal(t, []vstore.Record{{"id": "a", "n": float64(1)}}, recs)

	_, err = parseRecords(`42`, nil)
	assert.Error(t, err)
}
