package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	id "permis/pkg/domain"
)

// Config is the agent daemon's YAML configuration. Credentials never live in
// the file itself: the login password is read from the environment variable
// named by server.password_env, so the file can sit in version control next
// to the device's provisioning notes.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	AgentID      string             `yaml:"agent_id"`
	ListenAddr   string             `yaml:"listen_addr"`
	DatabasePath string             `yaml:"database_path"`
	// RequestTimeout bounds one local HTTP request. It must comfortably
	// cover a drain pass, which is why the default is generous.
	RequestTimeout  Duration           `yaml:"request_timeout"`
	ShutdownTimeout Duration           `yaml:"shutdown_timeout"`
	Verification    VerificationConfig `yaml:"verification"`
	Queue           QueueConfig        `yaml:"queue"`
	Snapshot        SnapshotConfig     `yaml:"snapshot"`

	// Parsed values (populated by validate)
	agentID  id.AgentID
	password string
}

// ServerConfig points the daemon at its issuing server.
type ServerConfig struct {
	URL         string `yaml:"url"`
	Email       string `yaml:"email"`
	PasswordEnv string `yaml:"password_env"`
}

// VerificationConfig carries the published key material for offline checks.
type VerificationConfig struct {
	// PublicKey is the hex-encoded Ed25519 public key distributed at
	// provisioning time. The device never sees the signing half.
	PublicKey string `yaml:"public_key"`
	// MaxCodeAge overrides the trust window for scanned codes. Zero keeps
	// the verifier's default.
	MaxCodeAge Duration `yaml:"max_code_age"`
}

// QueueConfig tunes the offline write queue. Zero values keep the queue's
// defaults.
type QueueConfig struct {
	Capacity      int      `yaml:"capacity"`
	MaxAttempts   int      `yaml:"max_attempts"`
	DrainInterval Duration `yaml:"drain_interval"`
}

// SnapshotConfig tunes the permit snapshot pull.
type SnapshotConfig struct {
	RefreshInterval Duration `yaml:"refresh_interval"`
}

// Duration lets YAML carry Go duration strings ("90s", "15m").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

const (
	defaultListenAddr      = "127.0.0.1:8090"
	defaultDatabasePath    = "permis-agent.db"
	defaultRequestTimeout  = 2 * time.Minute
	defaultShutdownTimeout = 10 * time.Second
	defaultDrainInterval   = 5 * time.Minute
	defaultRefreshInterval = 15 * time.Minute
)

// loadConfig reads, parses, and validates the daemon configuration. Unknown
// keys are rejected so a typo in a field name fails provisioning instead of
// silently running on defaults.
func loadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.DatabasePath == "" {
		c.DatabasePath = defaultDatabasePath
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = Duration(defaultRequestTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = Duration(defaultShutdownTimeout)
	}
	if c.Queue.DrainInterval <= 0 {
		c.Queue.DrainInterval = Duration(defaultDrainInterval)
	}
	if c.Snapshot.RefreshInterval <= 0 {
		c.Snapshot.RefreshInterval = Duration(defaultRefreshInterval)
	}
}

func (c *Config) validate() error {
	c.Server.URL = strings.TrimRight(strings.TrimSpace(c.Server.URL), "/")
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if c.Server.Email == "" {
		return errors.New("server.email is required")
	}
	if c.Server.PasswordEnv == "" {
		return errors.New("server.password_env is required")
	}
	c.password = os.Getenv(c.Server.PasswordEnv)
	if c.password == "" {
		return fmt.Errorf("environment variable %s (server.password_env) is not set", c.Server.PasswordEnv)
	}

	agentID, err := id.ParseAgentID(c.AgentID)
	if err != nil {
		return fmt.Errorf("agent_id: %w", err)
	}
	c.agentID = agentID

	if strings.TrimSpace(c.Verification.PublicKey) == "" {
		return errors.New("verification.public_key is required")
	}

	if c.Queue.Capacity < 0 {
		return errors.New("queue.capacity cannot be negative")
	}
	if c.Queue.MaxAttempts < 0 {
		return errors.New("queue.max_attempts cannot be negative")
	}
	return nil
}
