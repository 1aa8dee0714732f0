// Package config loads taskgraph settings. Values are layered: built-in
// defaults, the user config under XDG_CONFIG_HOME, a project .taskgraph.yaml
// found in the working directory or a parent, then TASKGRAPH_* environment
// variables. Command-line flags are applied by the caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/ShayCichocki/taskgraph/internal/inference"
	"github.com/ShayCichocki/taskgraph/internal/logging"
	"github.com/ShayCichocki/taskgraph/internal/orchestrator"
	"github.com/ShayCichocki/taskgraph/pkg/models"
)

const (
	appName           = "taskgraph"
	projectConfigName = ".taskgraph.yaml"
	envPrefix         = "TASKGRAPH"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all configuration for taskgraph.
type Config struct {
	Execution ExecutionConfig  `mapstructure:"execution"`
	Inference inference.Config `mapstructure:"inference"`
	Replan    ReplanConfig     `mapstructure:"replan"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Storage   StorageConfig    `mapstructure:"storage"`
	Anthropic AnthropicConfig  `mapstructure:"anthropic"`
}

// ExecutionConfig holds executor defaults.
type ExecutionConfig struct {
	Strategy    string        `mapstructure:"strategy"`
	MaxParallel int           `mapstructure:"max_parallel"`
	RetryBudget int           `mapstructure:"retry_budget"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// Runner selects the task runner: dryrun, scripted or anthropic.
	Runner string `mapstructure:"runner"`
}

// ReplanConfig controls replanning after failures.
type ReplanConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxRounds int  `mapstructure:"max_rounds"`
	// Proposer is retry or anthropic.
	Proposer string `mapstructure:"proposer"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
	// DebugDir, when set, receives one debug log per run.
	DebugDir string `mapstructure:"debug_dir"`
}

// StorageConfig locates the plan history database.
type StorageConfig struct {
	// Driver is sqlite (pure Go) or sqlite3 (cgo).
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// AnthropicConfig holds Claude API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Execution: ExecutionConfig{
			Strategy:    string(models.StrategySequential),
			MaxParallel: 4,
			RetryBudget: orchestrator.DefaultRetryBudget,
			TaskTimeout: 5 * time.Minute,
			Runner:      "dryrun",
		},
		Inference: inference.DefaultConfig(),
		Replan: ReplanConfig{
			Enabled:   true,
			MaxRounds: 2,
			Proposer:  "retry",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DataDir(), "taskgraph.db"),
		},
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 4096,
			AWSRegion: "us-east-1",
		},
	}
}

// Load reads the layered configuration.
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(UserConfigDir())
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if project := ProjectConfigPath(); project != "" {
		pv := viper.New()
		pv.SetConfigFile(project)
		if err := pv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", project, err)
		}
		if err := v.MergeConfigMap(pv.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return decode(v)
}

// LoadFromPath reads defaults plus a single file, then the environment.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, Default())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("anthropic.api_key", envPrefix+"_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.Storage.Path = expandHome(cfg.Storage.Path)
	cfg.Logging.DebugDir = expandHome(cfg.Logging.DebugDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := models.ParseStrategy(c.Execution.Strategy); err != nil {
		return fmt.Errorf("%w: execution.strategy: %v", ErrInvalid, err)
	}
	if c.Execution.MaxParallel < 1 {
		return fmt.Errorf("%w: execution.max_parallel must be at least 1, got %d", ErrInvalid, c.Execution.MaxParallel)
	}
	if c.Execution.RetryBudget < 0 {
		return fmt.Errorf("%w: execution.retry_budget must not be negative", ErrInvalid)
	}
	if c.Execution.TaskTimeout < 0 {
		return fmt.Errorf("%w: execution.task_timeout must not be negative", ErrInvalid)
	}
	switch c.Execution.Runner {
	case "dryrun", "scripted", "anthropic":
	default:
		return fmt.Errorf("%w: execution.runner %q", ErrInvalid, c.Execution.Runner)
	}
	if err := c.Inference.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Replan.MaxRounds < 0 {
		return fmt.Errorf("%w: replan.max_rounds must not be negative", ErrInvalid)
	}
	switch c.Replan.Proposer {
	case "retry", "anthropic":
	default:
		return fmt.Errorf("%w: replan.proposer %q", ErrInvalid, c.Replan.Proposer)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	switch c.Storage.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("%w: storage.driver %q", ErrInvalid, c.Storage.Driver)
	}
	return nil
}

// Strategy returns the parsed execution strategy.
func (c *Config) Strategy() models.Strategy {
	s, err := models.ParseStrategy(c.Execution.Strategy)
	if err != nil {
		return models.StrategySequential
	}
	return s
}

// InferenceConfig returns the inference engine settings.
func (c *Config) InferenceConfig() inference.Config {
	return c.Inference
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		OutputPath: c.Logging.File,
	}
}

// ExecutorOptions returns the executor options the config controls.
// Replanning, logging and persistence are wired by the caller.
func (c *Config) ExecutorOptions() []orchestrator.Option {
	opts := []orchestrator.Option{
		orchestrator.WithStrategy(c.Strategy()),
		orchestrator.WithMaxParallel(c.Execution.MaxParallel),
		orchestrator.WithRetryBudget(c.Execution.RetryBudget),
	}
	if c.Execution.TaskTimeout > 0 {
		opts = append(opts, orchestrator.WithTaskTimeout(c.Execution.TaskTimeout))
	}
	return opts
}

// YAML renders the configuration as a config file would hold it. The API
// key is masked.
func (c *Config) YAML() ([]byte, error) {
	s := c.settings()
	s["anthropic.api_key"] = MaskAPIKey(c.Anthropic.APIKey)
	v := viper.New()
	for k, val := range s {
		v.Set(k, val)
	}
	out, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return out, nil
}

// Save writes cfg to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, UserConfigPath())
}

// SaveTo writes cfg to path, creating its directory.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	v := viper.New()
	v.SetConfigFile(path)
	for k, val := range cfg.settings() {
		v.Set(k, val)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// settings flattens cfg into viper keys. Durations are strings so the file
// reads naturally.
func (c *Config) settings() map[string]any {
	w := c.Inference.Weights
	return map[string]any{
		"execution.strategy":                      c.Execution.Strategy,
		"execution.max_parallel":                  c.Execution.MaxParallel,
		"execution.retry_budget":                  c.Execution.RetryBudget,
		"execution.task_timeout":                  c.Execution.TaskTimeout.String(),
		"execution.runner":                        c.Execution.Runner,
		"inference.weights.narrative":             w.Narrative,
		"inference.weights.content":               w.Content,
		"inference.weights.category":              w.Category,
		"inference.threshold":                     c.Inference.Threshold,
		"inference.ambiguity_margin":              c.Inference.AmbiguityMargin,
		"inference.min_overlap":                   c.Inference.MinOverlap,
		"inference.category_confidence":           c.Inference.CategoryConfidence,
		"inference.narrative_sequence_confidence": c.Inference.NarrativeSequenceConfidence,
		"inference.narrative_explicit_confidence": c.Inference.NarrativeExplicitConfidence,
		"inference.min_fragment_match":            c.Inference.MinFragmentMatch,
		"inference.prune_redundant":               c.Inference.PruneRedundant,
		"replan.enabled":                          c.Replan.Enabled,
		"replan.max_rounds":                       c.Replan.MaxRounds,
		"replan.proposer":                         c.Replan.Proposer,
		"logging.level":                           c.Logging.Level,
		"logging.format":                          c.Logging.Format,
		"logging.file":                            c.Logging.File,
		"logging.debug_dir":                       c.Logging.DebugDir,
		"storage.driver":                          c.Storage.Driver,
		"storage.path":                            c.Storage.Path,
		"anthropic.api_key":                       c.Anthropic.APIKey,
		"anthropic.model":                         c.Anthropic.Model,
		"anthropic.max_tokens":                    c.Anthropic.MaxTokens,
		"anthropic.use_bedrock":                   c.Anthropic.UseBedrock,
		"anthropic.aws_region":                    c.Anthropic.AWSRegion,
		"anthropic.aws_profile":                   c.Anthropic.AWSProfile,
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	for k, val := range cfg.settings() {
		v.SetDefault(k, val)
	}
}

// UserConfigDir returns the XDG config directory for taskgraph.
func UserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// UserConfigPath returns the path of the user config file.
func UserConfigPath() string {
	return filepath.Join(UserConfigDir(), "config.yaml")
}

// DataDir returns the XDG data directory for taskgraph.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".local", "share", appName)
	}
	return filepath.Join(home, ".local", "share", appName)
}

// ProjectConfigPath returns the nearest .taskgraph.yaml at or above the
// working directory, or "".
func ProjectConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		p := filepath.Join(cwd, projectConfigName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return ""
		}
		cwd = parent
	}
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
