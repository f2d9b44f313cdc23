package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// EnvPrefix prefixes environment overrides, e.g. DEVLOOP_LOOP_MAX_ROUNDS=3.
const EnvPrefix = "DEVLOOP_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

//nolint:gochecknoglobals // validator caches struct metadata
var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads <repoDir>/.devloop/config.json. A missing file yields defaults.
func Load(repoDir string) (*Config, error) {
	path := filepath.Join(repoDir, ProjectConfigDir, ProjectConfigFilename)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyEnvOverrides(cfg)
		if err := Validate(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads a JSON config, substituting ${VAR} from the environment,
// then applies DEVLOOP_* overrides and defaults, then validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		if value := os.Getenv(match[2 : len(match)-1]); value != "" {
			return value
		}
		return match
	})

	var cfg Config
	if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct constraints and cross-field rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !strings.Contains(cfg.Git.BranchPattern, TaskIDPlaceholder) {
		return fmt.Errorf("git.branch_pattern %q must contain %s", cfg.Git.BranchPattern, TaskIDPlaceholder)
	}
	for _, model := range []string{cfg.Models.Developer, cfg.Models.Reviewer} {
		if _, err := GetModelProvider(model); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	applyEnvOverridesRecursive(reflect.ValueOf(cfg).Elem(), EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, prefix string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + strings.ToUpper(strings.Split(tag, ",")[0])

		if field.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(field, key+"_")
			continue
		}
		if value := os.Getenv(key); value != "" {
			setFieldFromEnv(field, value)
		}
	}
}

func setFieldFromEnv(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int:
		if n, err := strconv.Atoi(value); err == nil {
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	default:
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Models.Developer == "" {
		cfg.Models.Developer = DefaultDeveloperModel
	}
	if cfg.Models.Reviewer == "" {
		cfg.Models.Reviewer = DefaultReviewerModel
	}
	if cfg.Models.MaxOutputTokens == 0 {
		cfg.Models.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if cfg.Loop.MaxStepsDeveloper == 0 {
		cfg.Loop.MaxStepsDeveloper = DefaultMaxStepsDeveloper
	}
	if cfg.Loop.MaxStepsReviewer == 0 {
		cfg.Loop.MaxStepsReviewer = DefaultMaxStepsReviewer
	}
	if cfg.Git.BranchPattern == "" {
		cfg.Git.BranchPattern = DefaultBranchPattern
	}
	if cfg.Paths.Facts == "" {
		cfg.Paths.Facts = "docs/knowledge/facts.md"
	}
	if cfg.Paths.Backlog == "" {
		cfg.Paths.Backlog = "docs/tasks/backlog.yaml"
	}
	if cfg.Paths.Done == "" {
		cfg.Paths.Done = "docs/tasks/done.yaml"
	}
	if cfg.Paths.Problems == "" {
		cfg.Paths.Problems = "docs/tasks/problems.yaml"
	}
	if cfg.Paths.Checks == "" {
		cfg.Paths.Checks = "docs/orchestrator.yaml"
	}
	if cfg.Paths.TaskLogs == "" {
		cfg.Paths.TaskLogs = "logs"
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = DefaultRetryAttempts
	}
	if cfg.Retry.InitialDelayMs == 0 {
		cfg.Retry.InitialDelayMs = DefaultRetryInitialMs
	}
	if cfg.Retry.MaxDelayMs == 0 {
		cfg.Retry.MaxDelayMs = DefaultRetryMaxMs
	}
}

// DBPath returns the journal location for repoDir.
func (c *Config) DBPath(repoDir string) string {
	if c.Persistence.DBPath != "" {
		if filepath.IsAbs(c.Persistence.DBPath) {
			return c.Persistence.DBPath
		}
		return filepath.Join(repoDir, c.Persistence.DBPath)
	}
	return filepath.Join(repoDir, ProjectConfigDir, DatabaseFilename)
}
