// Package config resolves mchown's run configuration from command-line
// arguments, flags and MCHOWN_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tigerand/mchown/internal/hostinfo"
	"github.com/tigerand/mchown/internal/logger"
)

// EnvPrefix is prepended to every environment variable, e.g. MCHOWN_THREADS.
const EnvPrefix = "MCHOWN"

// Flag names shared with the command definitions.
const (
	FlagThreads     = "threads"
	FlagDebug       = "debug"
	FlagMetricsFile = "metrics-file"
	FlagLogLevel    = "log-level"
)

// Config is one fully resolved invocation.
type Config struct {
	Path  string `mapstructure:"-" validate:"required"`
	User  string `mapstructure:"-" validate:"required"`
	Group string `mapstructure:"-" validate:"required"`

	// RequestedThreads is what the operator asked for, 0 if nothing.
	RequestedThreads int `mapstructure:"threads"`
	// Threads is the pool size actually used.
	Threads int `mapstructure:"-" validate:"gte=1"`

	Debug       bool   `mapstructure:"debug"`
	LogLevel    string `mapstructure:"log_level"`
	MetricsFile string `mapstructure:"metrics_file"`

	// Level is LogLevel parsed, lowered to debug when Debug is set.
	Level logger.Level `mapstructure:"-"`
}

var validate = validator.New()

// Load builds a Config from the positional arguments and the flag set.
// Flags that were set win over the environment, which wins over flag
// defaults. defaultThreads is the host's default pool size.
func Load(flags *pflag.FlagSet, args []string, defaultThreads int) (*Config, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("expected <path> <user> <group>, got %d arguments", len(args))
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"threads":      FlagThreads,
		"debug":        FlagDebug,
		"metrics_file": FlagMetricsFile,
		"log_level":    FlagLogLevel,
	}
	for key, name := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Path, cfg.User, cfg.Group = args[0], args[1], args[2]
	cfg.Threads = hostinfo.ResolveThreads(cfg.RequestedThreads, defaultThreads)

	cfg.Level = logger.LevelInfo
	if cfg.LogLevel != "" {
		lvl, ok := logger.ParseLevel(cfg.LogLevel)
		if !ok {
			return nil, fmt.Errorf("unknown log level %q (want debug, info, warn or error)", cfg.LogLevel)
		}
		cfg.Level = lvl
	}
	if cfg.Debug {
		cfg.Level = logger.LevelDebug
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the struct tags of cfg.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
