// Package config provides unified configuration loading for resonance.
// It supports loading from YAML files and RESONANCE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/resonance/internal/fitness"
	"github.com/nvandessel/resonance/internal/llm"
	"github.com/nvandessel/resonance/internal/logging"
	"github.com/nvandessel/resonance/internal/models"
)

// FileName is the config file looked up in the working directory.
const FileName = "resonance.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESONANCE_"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config contains all resonance configuration settings.
type Config struct {
	// Campaign is the initial post and what it is trying to achieve.
	Campaign CampaignConfig `json:"campaign" yaml:"campaign" envPrefix:"CAMPAIGN_"`

	// Simulation sizes the population and bounds the evolution loop.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation" envPrefix:"SIMULATION_"`

	// Fitness holds the normalization constants used when scoring.
	Fitness FitnessConfig `json:"fitness" yaml:"fitness"`

	// LLM selects the inference provider.
	LLM LLMConfig `json:"llm" yaml:"llm" envPrefix:"LLM_"`

	// Store selects where runs are archived.
	Store StoreConfig `json:"store" yaml:"store" envPrefix:"STORE_"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging" envPrefix:"LOG_"`

	// Telemetry configures OpenTelemetry trace export.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" envPrefix:"OTEL_"`
}

// CampaignConfig is the first generation's seed.
type CampaignConfig struct {
	Content          string `json:"content" yaml:"content" env:"CONTENT"`
	ImageDescription string `json:"image_description,omitempty" yaml:"image_description,omitempty" env:"IMAGE_DESCRIPTION"`
	Goal             string `json:"goal" yaml:"goal" env:"GOAL"`
	TargetAudience   string `json:"target_audience" yaml:"target_audience" env:"TARGET_AUDIENCE"`
}

// Seed converts the campaign section into a CampaignSeed.
func (c CampaignConfig) Seed() models.CampaignSeed {
	return models.CampaignSeed{
		Content:          strings.TrimSpace(c.Content),
		ImageDescription: strings.TrimSpace(c.ImageDescription),
		Goal:             models.ParseGoal(c.Goal),
		TargetAudience:   strings.TrimSpace(c.TargetAudience),
	}
}

// SimulationConfig controls population size, propagation and the loop bounds.
type SimulationConfig struct {
	Personas         int     `json:"personas" yaml:"personas" env:"PERSONAS"`
	Ticks            int     `json:"ticks" yaml:"ticks" env:"TICKS"`
	MaxGenerations   int     `json:"max_generations" yaml:"max_generations" env:"MAX_GENERATIONS"`
	FitnessThreshold float64 `json:"fitness_threshold" yaml:"fitness_threshold" env:"FITNESS_THRESHOLD"`
	EdgeProbability  float64 `json:"edge_probability" yaml:"edge_probability" env:"EDGE_PROBABILITY"`
	Influencers      int     `json:"influencers" yaml:"influencers" env:"INFLUENCERS"`

	// Seed fixes the session random source. Zero draws a fresh seed.
	Seed int64 `json:"seed" yaml:"seed" env:"SEED"`

	// Concurrency bounds in-flight reaction calls within a tick.
	Concurrency int `json:"concurrency" yaml:"concurrency" env:"CONCURRENCY"`

	// ReactionTimeout bounds a single reaction call, retries included.
	ReactionTimeout time.Duration `json:"reaction_timeout" yaml:"reaction_timeout" env:"REACTION_TIMEOUT"`
}

// FitnessConfig configures scoring.
type FitnessConfig struct {
	Calibration fitness.Calibration `json:"calibration" yaml:"calibration"`
}

// LLMConfig configures the inference provider.
type LLMConfig struct {
	// Provider identifies the backend: "anthropic", "openai", "gemini",
	// "rules" or "local".
	Provider string `json:"provider" yaml:"provider" env:"PROVIDER"`

	// APIKey is the API key for the provider. Supports ${VAR} syntax for env vars.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty" env:"API_KEY"`

	// BaseURL overrides the API endpoint, e.g. for OpenAI-compatible servers.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty" env:"BASE_URL"`

	Model             string        `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" env:"TIMEOUT"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" env:"MAX_RETRIES"`
	RequestsPerSecond float64       `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty" env:"REQUESTS_PER_SECOND"`

	// Local configures the "local" provider's embedding model.
	Local llm.LocalConfig `json:"local,omitempty" yaml:"local,omitempty" envPrefix:"LOCAL_"`
}

// RedactedAPIKey returns the API key with most characters masked.
// Shows first 4 and last 4 characters, e.g., "sk-a...xyz9".
// Returns "" for empty keys and "(set)" for keys shorter than 12 chars.
func (c LLMConfig) RedactedAPIKey() string {
	if c.APIKey == "" {
		return ""
	}
	if len(c.APIKey) < 12 {
		return "(set)"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String implements fmt.Stringer to prevent accidental API key logging.
func (c LLMConfig) String() string {
	return fmt.Sprintf("LLMConfig{Provider:%s, APIKey:%s, Model:%s}",
		c.Provider, c.RedactedAPIKey(), c.Model)
}

// ClientConfig converts the section into the llm package's configuration.
// seed feeds the offline rules provider.
func (c LLMConfig) ClientConfig(seed int64) llm.ClientConfig {
	return llm.ClientConfig{
		Provider:          c.Provider,
		APIKey:            c.APIKey,
		BaseURL:           c.BaseURL,
		Model:             c.Model,
		Timeout:           c.Timeout,
		MaxRetries:        c.MaxRetries,
		RequestsPerSecond: c.RequestsPerSecond,
		Seed:              seed,
		Local:             c.Local,
	}
}

// StoreConfig selects the archive backend.
type StoreConfig struct {
	// Backend is "sqlite" (default), "mongo" or "memory".
	Backend string `json:"backend" yaml:"backend" env:"BACKEND"`

	// Dir holds the SQLite database, generation exports and decision logs.
	Dir string `json:"dir" yaml:"dir" env:"DIR"`

	MongoURI      string `json:"mongo_uri,omitempty" yaml:"mongo_uri,omitempty" env:"MONGO_URI"`
	MongoDatabase string `json:"mongo_database,omitempty" yaml:"mongo_database,omitempty" env:"MONGO_DATABASE"`
}

// RedactedMongoURI hides credentials embedded in the connection string.
func (c StoreConfig) RedactedMongoURI() string {
	scheme, rest, ok := strings.Cut(c.MongoURI, "://")
	if !ok {
		return c.MongoURI
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return c.MongoURI
	}
	return scheme + "://***@" + rest[at+1:]
}

// LoggingConfig configures resonance's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <store.dir>/decisions.jsonl.
	// "trace" additionally includes full prompt and response content.
	Level string `json:"level" yaml:"level" env:"LEVEL"`
}

// TelemetryConfig configures OTLP trace export. An empty endpoint disables it.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"ENDPOINT"`
	ServiceName string `json:"service_name" yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	llmDefaults := llm.DefaultConfig()
	return &Config{
		Campaign: CampaignConfig{
			Goal: string(models.GoalEngagement),
		},
		Simulation: SimulationConfig{
			Personas:         30,
			Ticks:            3,
			MaxGenerations:   3,
			FitnessThreshold: 0.70,
			EdgeProbability:  0.15,
			Influencers:      5,
			Concurrency:      4,
			ReactionTimeout:  45 * time.Second,
		},
		Fitness: FitnessConfig{
			Calibration: fitness.DefaultCalibration(),
		},
		LLM: LLMConfig{
			Provider:   llmDefaults.Provider,
			Timeout:    llmDefaults.Timeout,
			MaxRetries: llmDefaults.MaxRetries,
		},
		Store: StoreConfig{
			Backend:       "sqlite",
			Dir:           ".resonance",
			MongoDatabase: "resonance",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "resonance",
		},
	}
}

// Load loads configuration from path, or from the default locations when
// path is empty, then applies environment overrides.
// Order: defaults -> ./resonance.yaml or ~/.resonance/config.yaml -> environment variables
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// findConfigFile returns the first default config file that exists, or "".
func findConfigFile() string {
	candidates := []string{FileName}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".resonance", "config.yaml"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in secrets and model paths
	config.LLM.APIKey = expandEnvVars(config.LLM.APIKey)
	config.Store.MongoURI = expandEnvVars(config.Store.MongoURI)
	config.LLM.Local.LibPath = expandEnvVars(config.LLM.Local.LibPath)
	config.LLM.Local.ModelPath = expandEnvVars(config.LLM.Local.ModelPath)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	s := c.Simulation
	switch {
	case s.Personas < 1:
		return fmt.Errorf("%w: simulation.personas must be at least 1, got %d", ErrInvalid, s.Personas)
	case s.Ticks < 1:
		return fmt.Errorf("%w: simulation.ticks must be at least 1, got %d", ErrInvalid, s.Ticks)
	case s.MaxGenerations < 1:
		return fmt.Errorf("%w: simulation.max_generations must be at least 1, got %d", ErrInvalid, s.MaxGenerations)
	case s.FitnessThreshold < 0 || s.FitnessThreshold > 1:
		return fmt.Errorf("%w: simulation.fitness_threshold must be between 0 and 1, got %f", ErrInvalid, s.FitnessThreshold)
	case s.EdgeProbability < 0 || s.EdgeProbability > 1:
		return fmt.Errorf("%w: simulation.edge_probability must be between 0 and 1, got %f", ErrInvalid, s.EdgeProbability)
	case s.Influencers < 0:
		return fmt.Errorf("%w: simulation.influencers must be non-negative, got %d", ErrInvalid, s.Influencers)
	case s.Concurrency < 1:
		return fmt.Errorf("%w: simulation.concurrency must be at least 1, got %d", ErrInvalid, s.Concurrency)
	case s.ReactionTimeout <= 0:
		return fmt.Errorf("%w: simulation.reaction_timeout must be positive, got %v", ErrInvalid, s.ReactionTimeout)
	}

	cal := c.Fitness.Calibration
	if cal.Reach < 0 || cal.Shares < 0 || cal.Comments < 0 || cal.Controversy < 0 {
		return fmt.Errorf("%w: fitness.calibration values must be non-negative", ErrInvalid)
	}

	if c.LLM.Timeout < 0 {
		return fmt.Errorf("%w: llm.timeout must be non-negative, got %v", ErrInvalid, c.LLM.Timeout)
	}
	if c.LLM.MaxRetries < 0 {
		return fmt.Errorf("%w: llm.max_retries must be non-negative, got %d", ErrInvalid, c.LLM.MaxRetries)
	}
	if c.LLM.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: llm.requests_per_second must be non-negative, got %f", ErrInvalid, c.LLM.RequestsPerSecond)
	}

	validProviders := map[string]bool{"": true, "anthropic": true, "openai": true, "gemini": true, "rules": true, "local": true}
	if !validProviders[c.LLM.Provider] {
		return fmt.Errorf("%w: invalid provider: %s (valid: anthropic, openai, gemini, rules, local)", ErrInvalid, c.LLM.Provider)
	}
	if c.LLM.Local.GPULayers < 0 {
		return fmt.Errorf("%w: llm.local.gpu_layers must be non-negative, got %d", ErrInvalid, c.LLM.Local.GPULayers)
	}

	switch c.Store.Backend {
	case "", "sqlite", "memory":
	case "mongo":
		if c.Store.MongoURI == "" {
			return fmt.Errorf("%w: store.mongo_uri is required for the mongo backend", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: invalid store backend: %s (valid: sqlite, mongo, memory)", ErrInvalid, c.Store.Backend)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("%w: invalid log level: %s (valid: error, warn, info, debug, trace)", ErrInvalid, c.Logging.Level)
	}

	return nil
}

// ValidateCampaign checks the fields a run needs beyond Validate.
func (c *Config) ValidateCampaign() error {
	if strings.TrimSpace(c.Campaign.Content) == "" {
		return fmt.Errorf("%w: campaign.content is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Campaign.TargetAudience) == "" {
		return fmt.Errorf("%w: campaign.target_audience is required", ErrInvalid)
	}
	return nil
}

// applyEnvOverrides applies RESONANCE_* variables, then falls back to the
// provider's conventional API key variable when no key is configured.
func applyEnvOverrides(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	config.LLM.KeyFromEnv()
	return nil
}

// KeyFromEnv fills an empty APIKey from the provider's conventional
// variable. Callers that change Provider after Load call it again.
func (c *LLMConfig) KeyFromEnv() {
	if c.APIKey != "" {
		return
	}
	switch c.Provider {
	case "", "anthropic":
		c.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	case "gemini":
		c.APIKey = os.Getenv("GEMINI_API_KEY")
		if c.APIKey == "" {
			c.APIKey = os.Getenv("GOOGLE_API_KEY")
		}
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
