package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Queue.MaxTries)
	assert.Equal(t, "iso-8859-1", cfg.Render.Codepage)
	assert.Equal(t, 56, cfg.Render.Columns)
	assert.Equal(t, "file", cfg.Spool.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
server:
  port: 9090
spool:
  backend: device
  device:
    address: 10.0.0.20:9100
queue:
  retry_delay: 2s
webhook:
  endpoints:
    - name: ops
      url: http://hooks.local/print
      events: [job_failed]
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "device", cfg.Spool.Backend)
	assert.Equal(t, "10.0.0.20:9100", cfg.Spool.Device.Address)
	assert.Equal(t, 2*time.Second, cfg.Queue.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout, "untouched defaults survive")
	require.Len(t, cfg.Webhook.Endpoints, 1)
	assert.Equal(t, []string{"job_failed"}, cfg.Webhook.Endpoints[0].Events)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [port"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv_OverridesOnlySetVariables(t *testing.T) {
	t.Setenv("SPOOL_SERVER_PORT", "7070")
	t.Setenv("SPOOL_DB_PATH", "/tmp/journal.db")
	t.Setenv("SPOOL_SPOOL_DEVICE_ADDRESS", "printer:9100")
	t.Setenv("SPOOL_TRANSPORT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("SPOOL_QUEUE_RETRY_DELAY", "250ms")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "/tmp/journal.db", cfg.Database.Path)
	assert.Equal(t, "printer:9100", cfg.Spool.Device.Address)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Transport.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Queue.RetryDelay)
	assert.Equal(t, "./spool", cfg.Spool.Root)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("SPOOL_SERVER_PORT", "not-a-number")

	cfg := Default()
	assert.Error(t, cfg.ApplyEnv())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"secret without hash", func(c *Config) { c.Auth.JWTSecret = "s3cret" }},
		{"unknown driver", func(c *Config) { c.Invoices.Driver = "oracle" }},
		{"device without address", func(c *Config) { c.Spool.Backend = "device" }},
		{"s3 without bucket", func(c *Config) { c.Spool.Backend = "s3" }},
		{"unknown backend", func(c *Config) { c.Spool.Backend = "floppy" }},
		{"zero tries", func(c *Config) { c.Queue.MaxTries = 0 }},
		{"negative delay", func(c *Config) { c.Queue.RetryDelay = -time.Second }},
		{"spacing overflow", func(c *Config) { c.Render.LineSpacing = 300 }},
		{"unknown barcode", func(c *Config) { c.Render.Barcode = "qr" }},
		{"kafka without brokers", func(c *Config) { c.Transport.Kafka.Enabled = true }},
		{"webhook without url", func(c *Config) {
			c.Webhook.Endpoints = []WebhookEndpoint{{Name: "x"}}
		}},
		{"bad level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_ServerDisabledIgnoresPort(t *testing.T) {
	cfg := Default()
	cfg.Server.Enabled = false
	cfg.Server.Port = 0
	assert.NoError(t, cfg.Validate())
}
