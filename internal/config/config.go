// Package config resolves harness settings from flags, environment, an
// optional .env file and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the root configuration for bidcheck.
type Config struct {
	Target   TargetConfig   `mapstructure:"target"`
	Timeouts TimeoutConfig  `mapstructure:"timeouts"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Log      LogConfig      `mapstructure:"log"`
	Scenario ScenarioConfig `mapstructure:"scenario"`
}

// TargetConfig points the harness at one deployment.
type TargetConfig struct {
	UIBaseURL  string `mapstructure:"ui_base_url"`
	APIBaseURL string `mapstructure:"api_base_url"`
	TenantID   string `mapstructure:"tenant_id"`
	Role       string `mapstructure:"role"`
}

// TimeoutConfig bounds every wait. Nothing is retried.
type TimeoutConfig struct {
	HTTP          time.Duration `mapstructure:"http"`
	MandatoryWait time.Duration `mapstructure:"mandatory_wait"`
	OptionalWait  time.Duration `mapstructure:"optional_wait"`
}

type BrowserConfig struct {
	Headless  bool   `mapstructure:"headless"`
	ExecPath  string `mapstructure:"exec_path"`
	NoSandbox bool   `mapstructure:"no_sandbox"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// Summary is the result table format: ascii or markdown.
	Summary string `mapstructure:"summary"`
}

// ScenarioConfig locates the scenario definition; empty uses the built-in one.
type ScenarioConfig struct {
	File string `mapstructure:"file"`
}

// Defaults match a local dashboard dev server.
const (
	DefaultUIBaseURL  = "http://127.0.0.1:5173"
	DefaultAPIBaseURL = "http://localhost:8000"
	DefaultTenantID   = "tenant_demo"
)

// legacyEnv lists the unprefixed variable names the dashboard's own tooling
// uses, in precedence order after the BIDCHECK_ name.
var legacyEnv = map[string][]string{
	"target.ui_base_url":  {"E2E_BASE_URL"},
	"target.api_base_url": {"VITE_API_BASE_URL", "API_BASE_URL"},
	"target.tenant_id":    {"TENANT_ID"},
}

// Options controls where Load looks.
type Options struct {
	// File is an optional YAML/JSON/TOML config file.
	File string
	// EnvFiles are loaded into the process environment first; missing files
	// are skipped. Nil means ".env".
	EnvFiles []string
}

// Load builds a Viper instance from defaults, the optional config file and the
// environment (BIDCHECK_ prefix, e.g. BIDCHECK_TARGET_TENANT_ID), then
// decodes it.
func Load(opts Options) (*Config, error) {
	v, err := NewViper(opts)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// NewViper returns the configured Viper instance so callers can bind flags
// before decoding.
func NewViper(opts Options) (*viper.Viper, error) {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading env file %s: %w", f, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BIDCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		prefixed := "BIDCHECK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", opts.File, err)
		}
	}
	return v, nil
}

// Decode unmarshals and validates v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.Target.UIBaseURL = strings.TrimRight(cfg.Target.UIBaseURL, "/")
	cfg.Target.APIBaseURL = strings.TrimRight(cfg.Target.APIBaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks URLs and timeouts.
func (c *Config) Validate() error {
	var errs []error
	for name, raw := range map[string]string{
		"target.ui_base_url":  c.Target.UIBaseURL,
		"target.api_base_url": c.Target.APIBaseURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s: %q is not an absolute URL", name, raw))
		}
	}
	if strings.TrimSpace(c.Target.TenantID) == "" {
		errs = append(errs, errors.New("target.tenant_id is required"))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.http":           c.Timeouts.HTTP,
		"timeouts.mandatory_wait": c.Timeouts.MandatoryWait,
		"timeouts.optional_wait":  c.Timeouts.OptionalWait,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("target.ui_base_url", DefaultUIBaseURL)
	v.SetDefault("target.api_base_url", DefaultAPIBaseURL)
	v.SetDefault("target.tenant_id", DefaultTenantID)
	v.SetDefault("target.role", "admin")

	v.SetDefault("timeouts.http", 30*time.Second)
	v.SetDefault("timeouts.mandatory_wait", 30*time.Second)
	v.SetDefault("timeouts.optional_wait", 10*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.summary", "ascii")

	v.SetDefault("scenario.file", "")
}
