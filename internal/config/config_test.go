package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, "robot-agent-01", cfg.Agent.Name)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "robot-checks", cfg.Kafka.Topics.Tasks)
	assert.Equal(t, time.Second, cfg.Checks.PollInterval)
	assert.Equal(t, 30, cfg.Checks.MaxPolls)
	assert.Equal(t, 10*time.Second, cfg.Checks.ControlTimeout)
	assert.True(t, cfg.Checks.AutoStart)
	assert.False(t, cfg.Checks.AllowEviction)
	assert.Equal(t, 3*time.Second, cfg.Discovery.Timeout)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: prod
agent:
  name: lab-agent
kafka:
  brokers: ["k1:9092", "k2:9092"]
checks:
  poll_interval: 250ms
  max_polls: 10
  allow_eviction: true
`), 0o644))

	cfg, err := load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, "lab-agent", cfg.Agent.Name)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Checks.PollInterval)
	assert.Equal(t, 10, cfg.Checks.MaxPolls)
	assert.True(t, cfg.Checks.AllowEviction)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHECKS_MAX_POLLS", "5")
	t.Setenv("AGENT_NAME", "env-agent")

	cfg, err := load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Checks.MaxPolls)
	assert.Equal(t, "env-agent", cfg.Agent.Name)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CHECKS_MAX_POLLS", "0")

	_, err := load(viper.New(), "")
	assert.ErrorContains(t, err, "max_polls")
}
