package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Env       string          `mapstructure:"env"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Server    ServerConfig    `mapstructure:"server"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Checks    ChecksConfig    `mapstructure:"checks"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
}

type AgentConfig struct {
	Name         string        `mapstructure:"name"`
	Site         string        `mapstructure:"site"`
	Token        string        `mapstructure:"token"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type KafkaConfig struct {
	Brokers []string    `mapstructure:"brokers"`
	Topics  KafkaTopics `mapstructure:"topics"`
}

type KafkaTopics struct {
	Tasks   string `mapstructure:"tasks"`
	Results string `mapstructure:"results"`
	Logs    string `mapstructure:"logs"`
}

type ServerConfig struct {
	HealthPort string `mapstructure:"health_port"`
}

type BackendConfig struct {
	URL               string        `mapstructure:"url"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

type ChecksConfig struct {
	MasterTimeout  time.Duration `mapstructure:"master_timeout"`
	ControlTimeout time.Duration `mapstructure:"control_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	MaxPolls       int           `mapstructure:"max_polls"`
	AutoStart      bool          `mapstructure:"auto_start"`
	AllowEviction  bool          `mapstructure:"allow_eviction"`
	PingTimeout    time.Duration `mapstructure:"ping_timeout"`
	PingCount      int           `mapstructure:"ping_count"`
	PingPrivileged bool          `mapstructure:"ping_privileged"`
}

type DiscoveryConfig struct {
	Service string        `mapstructure:"service"`
	Domain  string        `mapstructure:"domain"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads configuration from path (or ./config/local.yaml when empty),
// then applies environment overrides such as CHECKS_MAX_POLLS.
func Load(path string) (*Config, error) {
	return load(viper.GetViper(), path)
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("local")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Watch reloads the config file on change and hands the new config to
// onChange. Invalid edits are logged and ignored.
func Watch(log *slog.Logger, onChange func(*Config)) {
	watch(viper.GetViper(), log, onChange)
}

func watch(v *viper.Viper, log *slog.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := decode(v)
		if err != nil {
			log.Error("ignoring invalid config change", "file", e.Name, "error", err.Error())
			return
		}
		log.Info("config reloaded", "file", e.Name, "op", e.Op.String())
		onChange(cfg)
	})
	v.WatchConfig()
}

func (c *Config) Validate() error {
	if c.Agent.Name == "" {
		return errors.New("agent.name is required")
	}
	if c.Checks.MaxPolls <= 0 {
		return fmt.Errorf("checks.max_polls must be positive, got %d", c.Checks.MaxPolls)
	}
	if c.Checks.PollInterval <= 0 {
		return fmt.Errorf("checks.poll_interval must be positive, got %s", c.Checks.PollInterval)
	}
	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive, got %s", c.Agent.PollInterval)
	}
	if c.Backend.HeartbeatInterval <= 0 {
		return fmt.Errorf("backend.heartbeat_interval must be positive, got %s", c.Backend.HeartbeatInterval)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Agent defaults
	v.SetDefault("env", "local")
	v.SetDefault("agent.name", "robot-agent-01")
	v.SetDefault("agent.site", "lab")
	v.SetDefault("agent.token", "")
	v.SetDefault("agent.poll_interval", "5s")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topics.tasks", "robot-checks")
	v.SetDefault("kafka.topics.results", "robot-check-results")
	v.SetDefault("kafka.topics.logs", "robot-agent-logs")

	// Server defaults
	v.SetDefault("server.health_port", "8081")

	v.SetDefault("backend.url", "http://localhost:8080")
	v.SetDefault("backend.heartbeat_interval", "30s")

	// Checks defaults
	v.SetDefault("checks.master_timeout", "10s")
	v.SetDefault("checks.control_timeout", "10s")
	v.SetDefault("checks.poll_interval", "1s")
	v.SetDefault("checks.max_polls", 30)
	v.SetDefault("checks.auto_start", true)
	v.SetDefault("checks.allow_eviction", false)
	v.SetDefault("checks.ping_timeout", "5s")
	v.SetDefault("checks.ping_count", 4)
	v.SetDefault("checks.ping_privileged", false)

	v.SetDefault("discovery.service", "_ros-master._tcp")
	v.SetDefault("discovery.domain", "local.")
	v.SetDefault("discovery.timeout", "3s")
}
