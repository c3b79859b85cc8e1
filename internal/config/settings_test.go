package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, "memory", s.Store.Driver)
	assert.Equal(t, "processed", s.Tables.Processed)
	assert.Equal(t, 587, s.SMTP.Port)
	assert.Equal(t, "fs", s.Blob.Driver)
	assert.Equal(t, "none", s.Tracing.Exporter)
	assert.False(t, s.DryRun)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "profileflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: sqlite
  sqlite_path: /var/lib/profileflow.db
tables:
  raw: "1AbC:Form Responses 1"
telegram:
  chat_id: "@alrawdha"
render:
  retention: 3
`), 0o600))
	t.Setenv("PROFILEFLOW_STORE_DRIVER", "postgres")
	t.Setenv("PROFILEFLOW_SMTP_PASSWORD", "app-password")
	t.Setenv("PROFILEFLOW_DRY_RUN", "true")

	s, err := Load(New(), path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", s.Store.Driver)
	assert.Equal(t, "/var/lib/profileflow.db", s.Store.SQLitePath)
	assert.Equal(t, "1AbC:Form Responses 1", s.Tables.Raw)
	assert.Equal(t, "@alrawdha", s.Telegram.ChatID)
	assert.Equal(t, "app-password", s.SMTP.Password)
	assert.Equal(t, 3, s.Render.Retention)
	assert.True(t, s.DryRun)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := Load(New(), "")
	require.NoError(t, err)

	bad := s
	bad.Store.Driver = "excel"
	assert.Error(t, bad.Validate())

	bad = s
	bad.Tracing.Exporter = "otlp"
	assert.Error(t, bad.Validate())
	bad.Tracing.Endpoint = "http://collector:4318/v1/traces"
	assert.NoError(t, bad.Validate())

	bad = s
	bad.Render.Retention = -1
	assert.Error(t, bad.Validate())
}
