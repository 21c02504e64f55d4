package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const fullYAML = `
gateway:
  listen: ":9000"
  url: http://relay.internal:9000

agent:
  base_url: https://agents.example.com/v1
  api_key: key-123
  default_agent: 2d3b8d8e-5b6f-4f0e-9a55-8a4c3a1f0b11
  max_message_length: 300
  max_retries: 3
  initial_backoff_ms: 200
  jitter_ms: 50

polish:
  provider: http
  endpoint: http://localhost:5001/polish

relay:
  chunk_warn_threshold: 600
  operator_name: Homer

store:
  driver: mysql
  dsn: "root@tcp(127.0.0.1:3306)/switchboard?parseTime=true"
  sweep: "*/1 * * * *"

loop:
  turn_interval_sec: 2
  max_duration_sec: 120

speech:
  command: whisper-stream
  args: ["--model", "base.en"]

mirror:
  slack:
    bot_token: xoxb-1
    channel: C01
`

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Gateway.Listen != ":9000" {
		t.Errorf("Gateway.Listen = %q, want %q", cfg.Gateway.Listen, ":9000")
	}
	if cfg.Gateway.URL != "http://relay.internal:9000" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
	if cfg.Agent.MaxMessageLength != 300 {
		t.Errorf("Agent.MaxMessageLength = %d, want 300", cfg.Agent.MaxMessageLength)
	}
	if cfg.Agent.MaxRetries != 3 {
		t.Errorf("Agent.MaxRetries = %d, want 3", cfg.Agent.MaxRetries)
	}
	if cfg.Agent.InitialBackoff().Milliseconds() != 200 {
		t.Errorf("InitialBackoff = %v, want 200ms", cfg.Agent.InitialBackoff())
	}
	if cfg.Polish.Provider != "http" {
		t.Errorf("Polish.Provider = %q, want http", cfg.Polish.Provider)
	}
	if cfg.Relay.OperatorName != "Homer" {
		t.Errorf("Relay.OperatorName = %q, want Homer", cfg.Relay.OperatorName)
	}
	if cfg.Store.Driver != "mysql" {
		t.Errorf("Store.Driver = %q, want mysql", cfg.Store.Driver)
	}
	if cfg.Loop.TurnInterval().Seconds() != 2 {
		t.Errorf("TurnInterval = %v, want 2s", cfg.Loop.TurnInterval())
	}
	if len(cfg.Speech.Args) != 2 {
		t.Errorf("len(Speech.Args) = %d, want 2", len(cfg.Speech.Args))
	}
	if !cfg.Mirror.Slack.Enabled() {
		t.Error("expected slack mirror enabled")
	}
	if cfg.Mirror.Discord.Enabled() {
		t.Error("expected discord mirror disabled")
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Gateway.Listen != ":8765" {
		t.Errorf("Gateway.Listen = %q, want :8765", cfg.Gateway.Listen)
	}
	if cfg.Gateway.URL != "http://localhost:8765" {
		t.Errorf("Gateway.URL = %q, want http://localhost:8765", cfg.Gateway.URL)
	}
	if cfg.Agent.BaseURL != "https://api.nomi.ai/v1" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Agent.MaxMessageLength != 450 {
		t.Errorf("Agent.MaxMessageLength = %d, want 450", cfg.Agent.MaxMessageLength)
	}
	if cfg.Agent.MaxRetries != 5 {
		t.Errorf("Agent.MaxRetries = %d, want 5", cfg.Agent.MaxRetries)
	}
	if cfg.Agent.JitterMS != 500 {
		t.Errorf("Agent.JitterMS = %d, want 500", cfg.Agent.JitterMS)
	}
	if cfg.Polish.Model != "gemini-2.0-flash" {
		t.Errorf("Polish.Model = %q", cfg.Polish.Model)
	}
	if cfg.Relay.ChunkWarnThreshold != 750 {
		t.Errorf("Relay.ChunkWarnThreshold = %d, want 750", cfg.Relay.ChunkWarnThreshold)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN == "" {
		t.Errorf("Store = %+v, want sqlite with default dsn", cfg.Store)
	}
	if cfg.Loop.TurnIntervalSec != 5 {
		t.Errorf("Loop.TurnIntervalSec = %d, want 5", cfg.Loop.TurnIntervalSec)
	}
	if cfg.Loop.MaxDurationSec != 3600 {
		t.Errorf("Loop.MaxDurationSec = %d, want 3600", cfg.Loop.MaxDurationSec)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("gateway: [unclosed"))
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
	if !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: parse")
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad default agent", "agent:\n  default_agent: nope\n", "agent.default_agent"},
		{"bad loop agent", "relay:\n  loop_agent: nope\n", "relay.loop_agent"},
		{"unknown provider", "polish:\n  provider: openai\n", "polish.provider"},
		{"http without endpoint", "polish:\n  provider: http\n", "polish.endpoint"},
		{"unknown driver", "store:\n  driver: postgres\n", "store.driver"},
		{"mysql without dsn", "store:\n  driver: mysql\n", "store.dsn is required"},
		{"mysql bad dsn", "store:\n  driver: mysql\n  dsn: \"not a dsn\"\n", "store.dsn"},
		{"bad sweep", "store:\n  sweep: \"every now and then\"\n", "store.sweep"},
		{"slack without channel", "mirror:\n  slack:\n    bot_token: xoxb\n", "mirror.slack.channel"},
		{"discord without channel", "mirror:\n  discord:\n    bot_token: abc\n", "mirror.discord.channel"},
		{"negative retries", "agent:\n  max_retries: -1\n", "agent.max_retries"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestParse_MultipleErrorsJoined(t *testing.T) {
	_, err := Parse([]byte("polish:\n  provider: x\nstore:\n  driver: y\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "; ") {
		t.Errorf("expected joined errors, got %q", err.Error())
	}
}

func TestValidateGateway(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	err = cfg.ValidateGateway()
	if err == nil {
		t.Fatal("expected gateway validation error")
	}
	for _, want := range []string{"agent.api_key", "agent.default_agent", "polish.api_key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error = %q, want to contain %q", err.Error(), want)
		}
	}

	cfg.Agent.APIKey = "k"
	cfg.Agent.DefaultAgent = "2d3b8d8e-5b6f-4f0e-9a55-8a4c3a1f0b11"
	cfg.Polish.APIKey = "g"
	if err := cfg.ValidateGateway(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SB_TEST_AGENT_KEY", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "switchboard.yaml")
	if err := os.WriteFile(path, []byte("agent:\n  api_key: ${SB_TEST_AGENT_KEY}\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.APIKey != "from-env" {
		t.Errorf("Agent.APIKey = %q, want %q", cfg.Agent.APIKey, "from-env")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Gateway.URL != "http://localhost:8765" {
		t.Errorf("Gateway.URL = %q", cfg.Gateway.URL)
	}
}

func TestApplyEnv_FillsEmptyCredentials(t *testing.T) {
	t.Setenv("NOMI_API_KEY", "nomi-env")
	t.Setenv("GEMINI_API_KEY", "gemini-env")
	t.Setenv("GITHUB_TOKEN", "gh-env")

	cfg, err := Parse([]byte("agent:\n  api_key: from-file\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.ApplyEnv()

	if cfg.Agent.APIKey != "from-file" {
		t.Errorf("Agent.APIKey = %q, file value should win", cfg.Agent.APIKey)
	}
	if cfg.Polish.APIKey != "gemini-env" {
		t.Errorf("Polish.APIKey = %q", cfg.Polish.APIKey)
	}
	if cfg.GitHub.Token != "gh-env" {
		t.Errorf("GitHub.Token = %q", cfg.GitHub.Token)
	}
}
