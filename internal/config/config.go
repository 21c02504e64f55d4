// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Switchboard configuration, loaded from switchboard.yaml.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Agent   AgentConfig   `yaml:"agent"`
	Polish  PolishConfig  `yaml:"polish"`
	Relay   RelayConfig   `yaml:"relay"`
	Store   StoreConfig   `yaml:"store"`
	Loop    LoopConfig    `yaml:"loop"`
	Speech  SpeechConfig  `yaml:"speech"`
	GitHub  GitHubConfig  `yaml:"github"`
	Mirror  MirrorConfig  `yaml:"mirror"`
}

// GatewayConfig holds the listen address of the relay gateway and the URL
// operator-side tools use to reach it.
type GatewayConfig struct {
	Listen string `yaml:"listen"`
	URL    string `yaml:"url"`
}

// AgentConfig holds upstream companion-agent API settings.
type AgentConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	DefaultAgent     string `yaml:"default_agent"`
	MaxMessageLength int    `yaml:"max_message_length"`
	MaxRetries       int    `yaml:"max_retries"`
	InitialBackoffMS int    `yaml:"initial_backoff_ms"`
	JitterMS         int    `yaml:"jitter_ms"`
}

// InitialBackoff returns the first retry delay.
func (a AgentConfig) InitialBackoff() time.Duration {
	return time.Duration(a.InitialBackoffMS) * time.Millisecond
}

// Jitter returns the maximum random offset added to each retry delay.
func (a AgentConfig) Jitter() time.Duration {
	return time.Duration(a.JitterMS) * time.Millisecond
}

// PolishConfig selects the text refinement provider.
type PolishConfig struct {
	Provider string `yaml:"provider"` // "gemini" or "http"
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Endpoint string `yaml:"endpoint"`
}

// RelayConfig holds operator-side relay settings.
type RelayConfig struct {
	ChunkWarnThreshold int    `yaml:"chunk_warn_threshold"`
	OperatorName       string `yaml:"operator_name"`
	LoopAgent          string `yaml:"loop_agent"`
}

// StoreConfig holds the loop session store settings.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "mysql"
	DSN    string `yaml:"dsn"`
	Sweep  string `yaml:"sweep"` // cron spec for expiring finished loops
}

// LoopConfig bounds gateway-run conversation loops.
type LoopConfig struct {
	TurnIntervalSec int `yaml:"turn_interval_sec"`
	MaxDurationSec  int `yaml:"max_duration_sec"`
}

// TurnInterval returns the pause between loop turns.
func (l LoopConfig) TurnInterval() time.Duration {
	return time.Duration(l.TurnIntervalSec) * time.Second
}

// MaxDuration returns the longest loop the gateway will accept.
func (l LoopConfig) MaxDuration() time.Duration {
	return time.Duration(l.MaxDurationSec) * time.Second
}

// SpeechConfig names the external recognizer command. An empty command
// disables speech capture.
type SpeechConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// GitHubConfig holds the token used to fetch repository files for code sends.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// MirrorConfig holds optional chat-platform transcript mirrors.
type MirrorConfig struct {
	Slack   MirrorTarget `yaml:"slack"`
	Discord MirrorTarget `yaml:"discord"`
}

// MirrorTarget is a single outbound mirror destination.
type MirrorTarget struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether both a token and a channel are configured.
func (m MirrorTarget) Enabled() bool {
	return m.BotToken != "" && m.Channel != ""
}

// Load reads a YAML config file from path and returns a validated Config.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with only defaults applied, for tools that can run
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// ApplyEnv fills credentials the config file left empty from the
// environment: NOMI_API_KEY, GEMINI_API_KEY and GITHUB_TOKEN.
func (c *Config) ApplyEnv() {
	fill := func(dst *string, name string) {
		if *dst == "" {
			*dst = os.Getenv(name)
		}
	}
	fill(&c.Agent.APIKey, "NOMI_API_KEY")
	if c.Polish.Provider == "gemini" {
		fill(&c.Polish.APIKey, "GEMINI_API_KEY")
	}
	fill(&c.GitHub.Token, "GITHUB_TOKEN")
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Gateway.Listen == "" {
		c.Gateway.Listen = ":8765"
	}
	if c.Gateway.URL == "" {
		addr := c.Gateway.Listen
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		c.Gateway.URL = "http://" + addr
	}
	if c.Agent.BaseURL == "" {
		c.Agent.BaseURL = "https://api.nomi.ai/v1"
	}
	if c.Agent.MaxMessageLength == 0 {
		c.Agent.MaxMessageLength = 450
	}
	if c.Agent.MaxRetries == 0 {
		c.Agent.MaxRetries = 5
	}
	if c.Agent.InitialBackoffMS == 0 {
		c.Agent.InitialBackoffMS = 1000
	}
	if c.Agent.JitterMS == 0 {
		c.Agent.JitterMS = 500
	}
	if c.Polish.Provider == "" {
		c.Polish.Provider = "gemini"
	}
	if c.Polish.Model == "" {
		c.Polish.Model = "gemini-2.0-flash"
	}
	if c.Relay.ChunkWarnThreshold == 0 {
		c.Relay.ChunkWarnThreshold = 750
	}
	if c.Relay.OperatorName == "" {
		c.Relay.OperatorName = "You"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = "file::memory:?cache=shared"
	}
	if c.Store.Sweep == "" {
		c.Store.Sweep = "@every 15s"
	}
	if c.Loop.TurnIntervalSec == 0 {
		c.Loop.TurnIntervalSec = 5
	}
	if c.Loop.MaxDurationSec == 0 {
		c.Loop.MaxDurationSec = 3600
	}
}

// validate checks that all present fields are well formed. Fields only the
// gateway needs are checked separately by ValidateGateway.
func (c *Config) validate() error {
	var errs []string
	if c.Agent.MaxMessageLength < 0 {
		errs = append(errs, "agent.max_message_length must be positive")
	}
	if c.Agent.MaxRetries < 0 {
		errs = append(errs, "agent.max_retries must not be negative")
	}
	if c.Agent.InitialBackoffMS < 0 || c.Agent.JitterMS < 0 {
		errs = append(errs, "agent backoff values must not be negative")
	}
	if c.Agent.DefaultAgent != "" {
		if _, err := uuid.Parse(c.Agent.DefaultAgent); err != nil {
			errs = append(errs, fmt.Sprintf("agent.default_agent %q is not a UUID", c.Agent.DefaultAgent))
		}
	}
	if c.Relay.LoopAgent != "" {
		if _, err := uuid.Parse(c.Relay.LoopAgent); err != nil {
			errs = append(errs, fmt.Sprintf("relay.loop_agent %q is not a UUID", c.Relay.LoopAgent))
		}
	}
	switch c.Polish.Provider {
	case "gemini":
	case "http":
		if c.Polish.Endpoint == "" {
			errs = append(errs, "polish.endpoint is required for the http provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("polish.provider %q must be gemini or http", c.Polish.Provider))
	}
	if c.Relay.ChunkWarnThreshold < 0 {
		errs = append(errs, "relay.chunk_warn_threshold must be positive")
	}
	switch c.Store.Driver {
	case "sqlite":
	case "mysql":
		if c.Store.DSN == "" {
			errs = append(errs, "store.dsn is required for mysql")
		} else if _, err := mysql.ParseDSN(c.Store.DSN); err != nil {
			errs = append(errs, fmt.Sprintf("store.dsn: %v", err))
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or mysql", c.Store.Driver))
	}
	if _, err := cron.ParseStandard(c.Store.Sweep); err != nil {
		errs = append(errs, fmt.Sprintf("store.sweep %q: %v", c.Store.Sweep, err))
	}
	if c.Loop.TurnIntervalSec < 0 {
		errs = append(errs, "loop.turn_interval_sec must not be negative")
	}
	if c.Loop.MaxDurationSec < 0 {
		errs = append(errs, "loop.max_duration_sec must not be negative")
	}
	if c.Mirror.Slack.BotToken != "" && c.Mirror.Slack.Channel == "" {
		errs = append(errs, "mirror.slack.channel is required when a bot token is set")
	}
	if c.Mirror.Discord.BotToken != "" && c.Mirror.Discord.Channel == "" {
		errs = append(errs, "mirror.discord.channel is required when a bot token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateGateway checks the settings `sb serve` cannot start without.
func (c *Config) ValidateGateway() error {
	var errs []string
	if c.Agent.APIKey == "" {
		errs = append(errs, "agent.api_key is required")
	}
	if c.Agent.DefaultAgent == "" {
		errs = append(errs, "agent.default_agent is required")
	}
	if c.Polish.Provider == "gemini" && c.Polish.APIKey == "" {
		errs = append(errs, "polish.api_key is required for the gemini provider")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: gateway: %s", strings.Join(errs, "; "))
	}
	return nil
}
