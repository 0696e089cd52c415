package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the uwia extraction API configuration.
type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	Database   DatabaseConfig   `yaml:"database"`
	Models     ModelsConfig     `yaml:"models"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
	MaxBodyMB       int `yaml:"max_body_mb"`
}

// DatabaseConfig holds session store connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// ModelConfig holds the settings of one extraction model backend.
type ModelConfig struct {
	Provider string `yaml:"provider"` // openai, anthropic, gemini
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

// ModelsConfig holds the extraction model roster. Primary and secondary run
// every dual-model pass; judge breaks ties.
type ModelsConfig struct {
	Primary   ModelConfig `yaml:"primary"`
	Secondary ModelConfig `yaml:"secondary"`
	Judge     ModelConfig `yaml:"judge"`
}

// EmbeddingConfig holds embedding provider settings for the retrieval path.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
}

// ExtractionConfig holds orchestration tuning. The thresholds and margins are
// empirically tuned constants from production runs; change with care.
type ExtractionConfig struct {
	BatchSize          int     `yaml:"batch_size"`            // concurrent model calls per batch
	BatchDelayMS       int     `yaml:"batch_delay_ms"`        // pause between batches
	AgreementThreshold float64 `yaml:"agreement_threshold"`   // below this the judge runs
	NotFoundThreshold  float64 `yaml:"not_found_threshold"`   // above this rate a reanalysis pass runs
	PlaceholderMargin  float64 `yaml:"placeholder_margin"`    // confidence margin to replace a placeholder
	StableMargin       float64 `yaml:"stable_margin"`         // confidence margin to replace a plausible value
	SessionTTLHours    int     `yaml:"session_ttl_hours"`     // retrieval session time-to-live
	MaxContextTokens   int     `yaml:"max_context_tokens"`    // retrieval context window budget
	RetrievalTopK      int     `yaml:"retrieval_top_k"`       // chunks retrieved per query
	MinTextPerMB       float64 `yaml:"min_text_per_mb"`       // below this density a file is scan-only
	EarlyExitThreshold float64 `yaml:"early_exit_threshold"`  // confidence to short-circuit signature scans
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 30
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 600 // large scans take minutes end to end
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.HTTP.MaxBodyMB <= 0 {
		c.HTTP.MaxBodyMB = 200
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 5
	}
	if c.Extraction.BatchSize <= 0 {
		c.Extraction.BatchSize = 2
	}
	if c.Extraction.BatchDelayMS <= 0 {
		c.Extraction.BatchDelayMS = 1000
	}
	if c.Extraction.AgreementThreshold <= 0 {
		c.Extraction.AgreementThreshold = 0.8
	}
	if c.Extraction.NotFoundThreshold <= 0 {
		c.Extraction.NotFoundThreshold = 0.4
	}
	if c.Extraction.PlaceholderMargin <= 0 {
		c.Extraction.PlaceholderMargin = 0.05
	}
	if c.Extraction.StableMargin <= 0 {
		c.Extraction.StableMargin = 0.15
	}
	if c.Extraction.SessionTTLHours <= 0 {
		c.Extraction.SessionTTLHours = 2
	}
	if c.Extraction.MaxContextTokens <= 0 {
		c.Extraction.MaxContextTokens = 6000
	}
	if c.Extraction.RetrievalTopK <= 0 {
		c.Extraction.RetrievalTopK = 8
	}
	if c.Extraction.MinTextPerMB <= 0 {
		c.Extraction.MinTextPerMB = 100
	}
	if c.Extraction.EarlyExitThreshold <= 0 {
		c.Extraction.EarlyExitThreshold = 0.9
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	for name, m := range map[string]ModelConfig{
		"primary": c.Models.Primary, "secondary": c.Models.Secondary, "judge": c.Models.Judge,
	} {
		switch m.Provider {
		case "openai", "anthropic", "gemini":
			// ok
		case "":
			return fmt.Errorf("models.%s.provider is required", name)
		default:
			return fmt.Errorf("models.%s.provider must be openai, anthropic or gemini, got %q", name, m.Provider)
		}
		if m.Model == "" {
			return fmt.Errorf("models.%s.model is required", name)
		}
	}
	if c.Extraction.NotFoundThreshold > 1 {
		return fmt.Errorf("extraction.not_found_threshold must be in (0,1], got %f", c.Extraction.NotFoundThreshold)
	}
	if c.Extraction.AgreementThreshold > 1 {
		return fmt.Errorf("extraction.agreement_threshold must be in (0,1], got %f", c.Extraction.AgreementThreshold)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
