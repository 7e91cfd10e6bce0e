package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.ETL.PageSize)
	assert.Equal(t, ".", cfg.ETL.AuditDir)
	assert.Equal(t, int64(4), cfg.ETL.MaxConcurrentRuns)
	assert.InDelta(t, 10.0, cfg.ETL.SourceRatePerSec, 0.001)
	assert.Equal(t, 30, cfg.Scoring.TimeoutSecs)
	assert.Equal(t, 3, cfg.Scoring.MaxAttempts)
	assert.Equal(t, "./sql", cfg.Query.SQLDir)
	assert.Empty(t, cfg.Source.DatabaseURL)
	assert.Empty(t, cfg.Dest.DatabaseURL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
source:
  database_url: postgres://etl:pw@src:5432/lme
dest:
  database_url: postgres://etl:pw@dst:5432/lm_dev
etl:
  page_size: 50
  audit_dir: /var/lib/lme
scoring:
  url: http://scoring:8600/api/propensity/run
  timeout_secs: 10
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://etl:pw@src:5432/lme", cfg.Source.DatabaseURL)
	assert.Equal(t, "postgres://etl:pw@dst:5432/lm_dev", cfg.Dest.DatabaseURL)
	assert.Equal(t, 50, cfg.ETL.PageSize)
	assert.Equal(t, "/var/lib/lme", cfg.ETL.AuditDir)
	assert.Equal(t, "http://scoring:8600/api/propensity/run", cfg.Scoring.URL)
	assert.Equal(t, 10, cfg.Scoring.TimeoutSecs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.Scoring.MaxAttempts)
}

func TestLoadBadYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{"json info", LogConfig{Level: "info", Format: "json"}, false},
		{"console debug", LogConfig{Level: "debug", Format: "console"}, false},
		{"bad level", LogConfig{Level: "verbose", Format: "json"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := InitLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, zap.L())
			}
		})
	}
}
