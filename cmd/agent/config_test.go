package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "permis/pkg/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "permis-agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const fullConfig = `
server:
  url: https://permis.example.org/
  email: ranger@peche.gouv.fr
  password_env: PERMIS_AGENT_PASSWORD
agent_id: 7b8a85ba-4c8e-4a9d-9c5a-55a7a69e8e11
listen_addr: 127.0.0.1:9010
database_path: /var/lib/permis-agent/queue.db
request_timeout: 3m
shutdown_timeout: 5s
verification:
  public_key: a3f1c6d88e9b4a57c2d10f3e5b6a7988c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6
  max_code_age: 48h
queue:
  capacity: 128
  max_attempts: 3
  drain_interval: 2m
snapshot:
  refresh_interval: 10m
`

func TestLoadConfigParsesEverything(t *testing.T) {
	t.Setenv("PERMIS_AGENT_PASSWORD", "s3cret")
	path := writeConfig(t, fullConfig)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://permis.example.org", cfg.Server.URL, "trailing slash must be trimmed")
	assert.Equal(t, "ranger@peche.gouv.fr", cfg.Server.Email)
	assert.Equal(t, "s3cret", cfg.password)

	wantAgent, err := id.ParseAgentID("7b8a85ba-4c8e-4a9d-9c5a-55a7a69e8e11")
	require.NoError(t, err)
	assert.Equal(t, wantAgent, cfg.agentID)

	assert.Equal(t, "127.0.0.1:9010", cfg.ListenAddr)
	assert.Equal(t, "/var/lib/permis-agent/queue.db", cfg.DatabasePath)
	assert.Equal(t, 3*time.Minute, cfg.RequestTimeout.Std())
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout.Std())
	assert.Equal(t, 48*time.Hour, cfg.Verification.MaxCodeAge.Std())
	assert.Equal(t, 128, cfg.Queue.Capacity)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Queue.DrainInterval.Std())
	assert.Equal(t, 10*time.Minute, cfg.Snapshot.RefreshInterval.Std())
}

const minimalConfig = `
server:
  url: http://localhost:8080
  email: ranger@peche.gouv.fr
  password_env: PERMIS_AGENT_PASSWORD
agent_id: 7b8a85ba-4c8e-4a9d-9c5a-55a7a69e8e11
verification:
  public_key: a3f1c6d88e9b4a57c2d10f3e5b6a7988c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6
`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	t.Setenv("PERMIS_AGENT_PASSWORD", "s3cret")
	path := writeConfig(t, minimalConfig)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, defaultRequestTimeout, cfg.RequestTimeout.Std())
	assert.Equal(t, defaultShutdownTimeout, cfg.ShutdownTimeout.Std())
	assert.Equal(t, defaultDrainInterval, cfg.Queue.DrainInterval.Std())
	assert.Equal(t, defaultRefreshInterval, cfg.Snapshot.RefreshInterval.Std())
	assert.Zero(t, cfg.Queue.Capacity, "queue defaults stay with the queue")
	assert.Zero(t, cfg.Verification.MaxCodeAge.Std(), "verifier default trust window applies")
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	t.Setenv("PERMIS_AGENT_PASSWORD", "s3cret")
	path := writeConfig(t, minimalConfig+"\nsnapshots:\n  refresh_interval: 1m\n")

	_, err := loadConfig(path)
	require.Error(t, err, "a misspelled section must not run on silent defaults")
}

func TestLoadConfigRequiresPassword(t *testing.T) {
	t.Setenv("PERMIS_AGENT_PASSWORD", "")
	path := writeConfig(t, minimalConfig)

	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PERMIS_AGENT_PASSWORD")
}

func TestLoadConfigRejectsMalformedAgentID(t *testing.T) {
	t.Setenv("PERMIS_AGENT_PASSWORD", "s3cret")
	path := writeConfig(t, `
server:
  url: http://localhost:8080
  email: ranger@peche.gouv.fr
  password_env: PERMIS_AGENT_PASSWORD
agent_id: not-a-uuid
verification:
  public_key: a3f1c6d88e9b4a57c2d10f3e5b6a7988c1d2e3f4a5b6c7d8e9f0a1b2c3d4e5f6
`)

	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent_id")
}

func TestLoadConfigRejectsMalformedDuration(t *testing.T) {
	t.Setenv("PERMIS_AGENT_PASSWORD", "s3cret")
	path := writeConfig(t, minimalConfig+"\nqueue:\n  drain_interval: soon\n")

	_, err := loadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
