// Package config loads and validates the run configuration stomper
// starts a session with: defaults, overlaid by a .stomper/config.yaml
// file, overlaid by STOMPER_* environment variables, overlaid by CLI
// flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nlabs/stomper/internal/types"
)

// Config is the fully resolved run configuration.
type Config struct {
	RootDir            string        `mapstructure:"root_dir"`
	Tools              []string      `mapstructure:"tools"`
	Strategy           string        `mapstructure:"strategy"`
	MaxErrorsPerIter   int           `mapstructure:"max_errors_per_iteration"`
	MaxAttemptsPerFile int           `mapstructure:"max_attempts_per_file"`
	RunTests           bool          `mapstructure:"run_tests"`
	TestMode           string        `mapstructure:"test_mode"`
	UseIsolation       bool          `mapstructure:"use_isolation"`
	MaxParallelFiles   int           `mapstructure:"max_parallel_files"`
	ContinueOnError    bool          `mapstructure:"continue_on_error"`
	FileFilters        []string      `mapstructure:"file_filters"`
	CoAuthors          []string      `mapstructure:"co_authors"`
	AssistantBackend   string        `mapstructure:"assistant_backend"`
	AssistantTimeout   time.Duration `mapstructure:"assistant_timeout"`
	AssistantModel     string        `mapstructure:"assistant_model"`
	LearningDataPath   string        `mapstructure:"learning_data_path"`
	SandboxRoot        string        `mapstructure:"sandbox_root"`
	FailedSandboxRetention int       `mapstructure:"failed_sandbox_retention"`
	ToolRatePerSecond  float64       `mapstructure:"tool_rate_per_second"`
	NonInteractive     bool          `mapstructure:"non_interactive"`
}

// DefaultConfig returns stomper's built-in defaults, before any file, env,
// or flag overlay is applied.
func DefaultConfig() Config {
	return Config{
		RootDir:            ".",
		Tools:              []string{"golangci-lint"},
		Strategy:           "adaptive",
		MaxErrorsPerIter:   10,
		MaxAttemptsPerFile: 3,
		RunTests:           true,
		TestMode:           string(types.TestModeQuick),
		UseIsolation:       true,
		MaxParallelFiles:   4,
		ContinueOnError:    true,
		AssistantBackend:   "subprocess",
		AssistantTimeout:   5 * time.Minute,
		AssistantModel:     "claude-sonnet-4-5-20250929",
		LearningDataPath:   ".stomper/learning_data.json",
		SandboxRoot:        ".stomper/sandboxes",
		FailedSandboxRetention: 0,
		ToolRatePerSecond:  2,
	}
}

// Load resolves a Config from defaults, an optional YAML file at
// configPath (missing file is not an error), STOMPER_*-prefixed
// environment variables, and finally the provided viper instance's
// bound CLI flags (set up by the caller via BindPFlags).
func Load(v *viper.Viper, configPath string) (Config, error) {
	def := DefaultConfig()
	v.SetConfigType("yaml")
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".stomper")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("STOMPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, def)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, def Config) {
	v.SetDefault("root_dir", def.RootDir)
	v.SetDefault("tools", def.Tools)
	v.SetDefault("strategy", def.Strategy)
	v.SetDefault("max_errors_per_iteration", def.MaxErrorsPerIter)
	v.SetDefault("max_attempts_per_file", def.MaxAttemptsPerFile)
	v.SetDefault("run_tests", def.RunTests)
	v.SetDefault("test_mode", def.TestMode)
	v.SetDefault("use_isolation", def.UseIsolation)
	v.SetDefault("max_parallel_files", def.MaxParallelFiles)
	v.SetDefault("continue_on_error", def.ContinueOnError)
	v.SetDefault("assistant_backend", def.AssistantBackend)
	v.SetDefault("assistant_timeout", def.AssistantTimeout)
	v.SetDefault("assistant_model", def.AssistantModel)
	v.SetDefault("learning_data_path", def.LearningDataPath)
	v.SetDefault("sandbox_root", def.SandboxRoot)
	v.SetDefault("failed_sandbox_retention", def.FailedSandboxRetention)
	v.SetDefault("tool_rate_per_second", def.ToolRatePerSecond)
}

// Validate checks a resolved Config against the invariants the session
// orchestrator relies on, and against the set of tool adapters actually
// registered (an unknown tool is a fatal ToolNotAvailable
// at session start, not a per-file error).
func (c Config) Validate(availableTools map[string]bool) error {
	if c.MaxParallelFiles < 1 {
		return fmt.Errorf("max_parallel_files must be >= 1 (got %d)", c.MaxParallelFiles)
	}
	if c.MaxAttemptsPerFile < 1 {
		return fmt.Errorf("max_attempts_per_file must be >= 1 (got %d)", c.MaxAttemptsPerFile)
	}
	if len(c.Tools) == 0 {
		return fmt.Errorf("at least one tool must be enabled")
	}
	for _, t := range c.Tools {
		if !availableTools[t] {
			return fmt.Errorf("%w: %s", types.ErrToolNotAvailable, t)
		}
	}
	switch types.TestMode(c.TestMode) {
	case types.TestModeFull, types.TestModeQuick, types.TestModeFinal, types.TestModeNone:
	default:
		return fmt.Errorf("invalid test_mode %q", c.TestMode)
	}
	return nil
}

// SessionConfig adapts a resolved Config into the types.SessionConfig
// the orchestrator consumes.
func (c Config) SessionConfig() types.SessionConfig {
	return types.SessionConfig{
		RootDir:            c.RootDir,
		EnabledTools:       c.Tools,
		Strategy:           c.Strategy,
		MaxErrorsPerIter:   c.MaxErrorsPerIter,
		MaxAttemptsPerFile: c.MaxAttemptsPerFile,
		RunTests:           c.RunTests,
		TestMode:           types.TestMode(c.TestMode),
		UseIsolation:       c.UseIsolation,
		MaxParallelFiles:   c.MaxParallelFiles,
		ContinueOnError:    c.ContinueOnError,
		FileFilters:        c.FileFilters,
		CoAuthors:          c.CoAuthors,
	}
}
