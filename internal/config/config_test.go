package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nvandessel/resonance/internal/models"
)

// isolate keeps Load from picking up a developer's real config or keys.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "resonance.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	config := Default()

	s := config.Simulation
	if s.Personas != 30 || s.Ticks != 3 || s.MaxGenerations != 3 {
		t.Errorf("sizes = %d/%d/%d, want 30/3/3", s.Personas, s.Ticks, s.MaxGenerations)
	}
	if s.FitnessThreshold != 0.70 {
		t.Errorf("FitnessThreshold = %v, want 0.70", s.FitnessThreshold)
	}
	if s.EdgeProbability != 0.15 || s.Influencers != 5 {
		t.Errorf("graph defaults = %v/%d", s.EdgeProbability, s.Influencers)
	}
	if s.ReactionTimeout != 45*time.Second {
		t.Errorf("ReactionTimeout = %v", s.ReactionTimeout)
	}
	if config.Fitness.Calibration.Controversy != 80 {
		t.Errorf("Calibration = %+v", config.Fitness.Calibration)
	}
	if config.LLM.Provider != "anthropic" || config.LLM.MaxRetries != 2 {
		t.Errorf("LLM = %v", config.LLM)
	}
	if config.Store.Backend != "sqlite" || config.Store.Dir != ".resonance" {
		t.Errorf("Store = %+v", config.Store)
	}
	if config.Logging.Level != "info" {
		t.Errorf("expected Logging.Level 'info', got '%s'", config.Logging.Level)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
campaign:
  content: "Meet the quietest blender ever made."
  image_description: "A blender in a library"
  goal: clicks
  target_audience: "new parents"
simulation:
  personas: 12
  ticks: 4
  fitness_threshold: 0.5
  seed: 42
  reaction_timeout: 10s
fitness:
  calibration:
    reach: 40
llm:
  provider: openai
  api_key: test-key
  timeout: 10s
store:
  backend: memory
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	seed := config.Campaign.Seed()
	if seed.Goal != models.GoalClicks || seed.TargetAudience != "new parents" || seed.ImageDescription == "" {
		t.Errorf("seed = %+v", seed)
	}
	if config.Simulation.Personas != 12 || config.Simulation.Ticks != 4 || config.Simulation.Seed != 42 {
		t.Errorf("Simulation = %+v", config.Simulation)
	}
	if config.Simulation.ReactionTimeout != 10*time.Second {
		t.Errorf("ReactionTimeout = %v", config.Simulation.ReactionTimeout)
	}
	// Unset keys keep their defaults.
	if config.Simulation.MaxGenerations != 3 {
		t.Errorf("MaxGenerations = %d, want default 3", config.Simulation.MaxGenerations)
	}
	if config.Fitness.Calibration.Reach != 40 || config.Fitness.Calibration.Shares != 50 {
		t.Errorf("Calibration = %+v", config.Fitness.Calibration)
	}
	if config.LLM.Provider != "openai" || config.LLM.APIKey != "test-key" || config.LLM.Timeout != 10*time.Second {
		t.Errorf("LLM = %+v", config.LLM)
	}
	if config.Store.Backend != "memory" {
		t.Errorf("Backend = %s", config.Store.Backend)
	}
}

func TestLoadFromFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "expanded-key-value")
	t.Setenv("TEST_MONGO_PASS", "hunter2")
	path := writeConfig(t, `
llm:
  api_key: ${TEST_API_KEY}
store:
  mongo_uri: mongodb://app:${TEST_MONGO_PASS}@db:27017
`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if config.LLM.APIKey != "expanded-key-value" {
		t.Errorf("expected APIKey 'expanded-key-value', got '%s'", config.LLM.APIKey)
	}
	if config.Store.MongoURI != "mongodb://app:hunter2@db:27017" {
		t.Errorf("MongoURI = %s", config.Store.MongoURI)
	}
}

func TestLoad_FindsWorkingDirectoryFile(t *testing.T) {
	isolate(t)
	if err := os.WriteFile(FileName, []byte("simulation:\n  personas: 7\n"), 0600); err != nil {
		t.Fatal(err)
	}

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Simulation.Personas != 7 {
		t.Errorf("Personas = %d, want 7", config.Simulation.Personas)
	}
}

func TestLoad_NoFile(t *testing.T) {
	isolate(t)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.Simulation.Personas != Default().Simulation.Personas {
		t.Errorf("expected defaults, got %+v", config.Simulation)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("RESONANCE_SIMULATION_PERSONAS", "9")
	t.Setenv("RESONANCE_SIMULATION_FITNESS_THRESHOLD", "0.9")
	t.Setenv("RESONANCE_SIMULATION_REACTION_TIMEOUT", "3s")
	t.Setenv("RESONANCE_CAMPAIGN_GOAL", "controversy")
	t.Setenv("RESONANCE_LLM_PROVIDER", "rules")
	t.Setenv("RESONANCE_STORE_DIR", "/tmp/runs")
	t.Setenv("RESONANCE_LOG_LEVEL", "debug")
	t.Setenv("RESONANCE_OTEL_ENDPOINT", "http://collector:4318")

	path := writeConfig(t, "simulation:\n  personas: 50\n")
	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.Simulation.Personas != 9 {
		t.Errorf("env should override file: Personas = %d", config.Simulation.Personas)
	}
	if config.Simulation.FitnessThreshold != 0.9 || config.Simulation.ReactionTimeout != 3*time.Second {
		t.Errorf("Simulation = %+v", config.Simulation)
	}
	if config.Campaign.Seed().Goal != models.GoalControversy {
		t.Errorf("Goal = %s", config.Campaign.Goal)
	}
	if config.LLM.Provider != "rules" || config.Store.Dir != "/tmp/runs" {
		t.Errorf("LLM/Store = %s/%s", config.LLM.Provider, config.Store.Dir)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Level = %s", config.Logging.Level)
	}
	if config.Telemetry.Endpoint != "http://collector:4318" {
		t.Errorf("Endpoint = %s", config.Telemetry.Endpoint)
	}
}

func TestEnvOverrides_LocalModel(t *testing.T) {
	isolate(t)
	t.Setenv("MODELS_HOME", "/opt/models")
	t.Setenv("RESONANCE_LLM_PROVIDER", "local")
	t.Setenv("RESONANCE_LLM_LOCAL_LIB_PATH", "/opt/llama")
	t.Setenv("RESONANCE_LLM_LOCAL_GPU_LAYERS", "8")

	path := writeConfig(t, "llm:\n  local:\n    model_path: ${MODELS_HOME}/embed.gguf\n")
	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	local := config.LLM.Local
	if local.LibPath != "/opt/llama" || local.GPULayers != 8 {
		t.Errorf("Local = %+v", local)
	}
	if local.ModelPath != "/opt/models/embed.gguf" {
		t.Errorf("ModelPath = %q", local.ModelPath)
	}
	if got := config.LLM.ClientConfig(1).Local; got != local {
		t.Errorf("ClientConfig().Local = %+v, want %+v", got, local)
	}
}

func TestEnvOverrides_InvalidValue(t *testing.T) {
	isolate(t)
	t.Setenv("RESONANCE_SIMULATION_TICKS", "many")

	if _, err := Load(""); err == nil {
		t.Error("expected error for non-numeric ticks")
	}
}

func TestEnvOverrides_ProviderKeys(t *testing.T) {
	tests := []struct {
		provider string
		envVar   string
	}{
		{"anthropic", "ANTHROPIC_API_KEY"},
		{"openai", "OPENAI_API_KEY"},
		{"gemini", "GEMINI_API_KEY"},
		{"gemini", "GOOGLE_API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			isolate(t)
			t.Setenv("RESONANCE_LLM_PROVIDER", tt.provider)
			t.Setenv(tt.envVar, "key-from-env")

			config, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if config.LLM.APIKey != "key-from-env" {
				t.Errorf("APIKey = %q", config.LLM.APIKey)
			}
		})
	}

	t.Run("explicit key wins", func(t *testing.T) {
		isolate(t)
		t.Setenv("RESONANCE_LLM_API_KEY", "explicit")
		t.Setenv("ANTHROPIC_API_KEY", "conventional")

		config, err := Load("")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if config.LLM.APIKey != "explicit" {
			t.Errorf("APIKey = %q, want explicit", config.LLM.APIKey)
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"zero personas", func(c *Config) { c.Simulation.Personas = 0 }, true},
		{"zero ticks", func(c *Config) { c.Simulation.Ticks = 0 }, true},
		{"zero generations", func(c *Config) { c.Simulation.MaxGenerations = 0 }, true},
		{"threshold above one", func(c *Config) { c.Simulation.FitnessThreshold = 1.5 }, true},
		{"threshold negative", func(c *Config) { c.Simulation.FitnessThreshold = -0.1 }, true},
		{"threshold bounds ok", func(c *Config) { c.Simulation.FitnessThreshold = 1 }, false},
		{"edge probability above one", func(c *Config) { c.Simulation.EdgeProbability = 2 }, true},
		{"negative influencers", func(c *Config) { c.Simulation.Influencers = -1 }, true},
		{"zero concurrency", func(c *Config) { c.Simulation.Concurrency = 0 }, true},
		{"zero reaction timeout", func(c *Config) { c.Simulation.ReactionTimeout = 0 }, true},
		{"negative calibration", func(c *Config) { c.Fitness.Calibration.Reach = -1 }, true},
		{"negative llm timeout", func(c *Config) { c.LLM.Timeout = -time.Second }, true},
		{"negative retries", func(c *Config) { c.LLM.MaxRetries = -1 }, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "ollama" }, true},
		{"gemini", func(c *Config) { c.LLM.Provider = "gemini" }, false},
		{"rules", func(c *Config) { c.LLM.Provider = "rules" }, false},
		{"local", func(c *Config) { c.LLM.Provider = "local" }, false},
		{"negative gpu layers", func(c *Config) { c.LLM.Local.GPULayers = -1 }, true},
		{"unknown backend", func(c *Config) { c.Store.Backend = "postgres" }, true},
		{"mongo without uri", func(c *Config) { c.Store.Backend = "mongo" }, true},
		{"mongo with uri", func(c *Config) {
			c.Store.Backend = "mongo"
			c.Store.MongoURI = "mongodb://localhost:27017"
		}, false},
		{"invalid log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"trace log level", func(c *Config) { c.Logging.Level = "trace" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
		})
	}
}

func TestValidateCampaign(t *testing.T) {
	config := Default()
	if err := config.ValidateCampaign(); !errors.Is(err, ErrInvalid) {
		t.Errorf("empty campaign: err = %v", err)
	}
	config.Campaign.Content = "Try our socks"
	if err := config.ValidateCampaign(); err == nil {
		t.Error("missing audience should fail")
	}
	config.Campaign.TargetAudience = "runners"
	if err := config.ValidateCampaign(); err != nil {
		t.Errorf("complete campaign: %v", err)
	}
}

func TestCampaignSeed_UnknownGoal(t *testing.T) {
	seed := CampaignConfig{Content: " hi ", Goal: "world domination"}.Seed()
	if seed.Goal != models.GoalEngagement || seed.Content != "hi" {
		t.Errorf("seed = %+v", seed)
	}
}

func TestRedactedAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", ""},
		{"short", "(set)"},
		{"sk-ant-1234567890abcd", "sk-a...abcd"},
	}
	for _, tt := range tests {
		if got := (LLMConfig{APIKey: tt.key}).RedactedAPIKey(); got != tt.want {
			t.Errorf("RedactedAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLLMConfigString(t *testing.T) {
	c := LLMConfig{Provider: "anthropic", APIKey: "sk-ant-secret-value-1234", Model: "claude"}
	s := c.String()
	if strings.Contains(s, "secret") {
		t.Errorf("String() leaked the API key: %s", s)
	}
	if !strings.Contains(s, "anthropic") || !strings.Contains(s, "claude") {
		t.Errorf("String() = %s", s)
	}
}

func TestRedactedMongoURI(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"", ""},
		{"mongodb://localhost:27017", "mongodb://localhost:27017"},
		{"mongodb://app:pw@db:27017/x", "mongodb://***@db:27017/x"},
		{"mongodb+srv://u:p@cluster.example.net", "mongodb+srv://***@cluster.example.net"},
	}
	for _, tt := range tests {
		if got := (StoreConfig{MongoURI: tt.uri}).RedactedMongoURI(); got != tt.want {
			t.Errorf("RedactedMongoURI(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestLLMConfig_ClientConfig(t *testing.T) {
	c := LLMConfig{Provider: "openai", APIKey: "k", MaxRetries: 4, RequestsPerSecond: 2}
	cc := c.ClientConfig(99)
	if cc.Provider != "openai" || cc.APIKey != "k" || cc.MaxRetries != 4 || cc.RequestsPerSecond != 2 || cc.Seed != 99 {
		t.Errorf("ClientConfig = %+v", cc)
	}
}

func TestLoadFromFile_NotFound(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/path/resonance.yaml"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadFromFile_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "simulation: [unclosed")
	if _, err := LoadFromFile(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLLMConfig_KeyFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "openai-key")

	c := LLMConfig{Provider: "openai"}
	c.KeyFromEnv()
	if c.APIKey != "openai-key" {
		t.Errorf("APIKey = %q, want openai-key", c.APIKey)
	}

	c = LLMConfig{Provider: "openai", APIKey: "set"}
	c.KeyFromEnv()
	if c.APIKey != "set" {
		t.Errorf("APIKey = %q, want set", c.APIKey)
	}

	c = LLMConfig{Provider: "rules"}
	c.KeyFromEnv()
	if c.APIKey != "" {
		t.Errorf("rules APIKey = %q, want empty", c.APIKey)
	}
}
