// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger      LoggerConfig      `mapstructure:"logger" yaml:"logger"`
	Browser     BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace" yaml:"marketplace"`
	Credentials CredentialsConfig `mapstructure:"credentials" yaml:"-"`
	State       StateConfig       `mapstructure:"state" yaml:"state"`
	Catalog     CatalogConfig     `mapstructure:"catalog" yaml:"catalog"`
	Triage      TriageConfig      `mapstructure:"triage" yaml:"triage"`
	Listing     ListingConfig     `mapstructure:"listing" yaml:"listing"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls how the browser is launched or attached to.
type BrowserConfig struct {
	// DebuggerAddress attaches to an already running Chrome started with
	// --remote-debugging-port (e.g. "127.0.0.1:9222"). Empty launches a new browser.
	DebuggerAddress   string        `mapstructure:"debugger_address" yaml:"debugger_address"`
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	UserDataDir       string        `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ProfileDirectory  string        `mapstructure:"profile_directory" yaml:"profile_directory"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	ActionTimeout     time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
	ActionsPerSecond  float64       `mapstructure:"actions_per_second" yaml:"actions_per_second"`
	Typing            TypingConfig  `mapstructure:"typing" yaml:"typing"`
}

// TypingConfig paces keystrokes when a reply or form value is typed.
type TypingConfig struct {
	KeyDelayMin time.Duration `mapstructure:"key_delay_min" yaml:"key_delay_min"`
	KeyDelayMax time.Duration `mapstructure:"key_delay_max" yaml:"key_delay_max"`
}

// MarketplaceConfig locates the pages the bot drives.
type MarketplaceConfig struct {
	BaseURL      string `mapstructure:"base_url" yaml:"base_url"`
	InboxPath    string `mapstructure:"inbox_path" yaml:"inbox_path"`
	MessagesPath string `mapstructure:"messages_path" yaml:"messages_path"`
	CreatePath   string `mapstructure:"create_path" yaml:"create_path"`
}

// CredentialsConfig is populated from the environment only.
type CredentialsConfig struct {
	Email    string `mapstructure:"email" yaml:"-"`
	Password string `mapstructure:"password" yaml:"-"`
}

// StateConfig locates the thread-state document.
type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CatalogConfig locates the catalog document and its photos.
type CatalogConfig struct {
	Path     string `mapstructure:"path" yaml:"path"`
	PhotoDir string `mapstructure:"photo_dir" yaml:"photo_dir"`
	// RepairMalformed attempts a syntactic repair of a malformed catalog
	// document before falling back to an empty catalog.
	RepairMalformed bool `mapstructure:"repair_malformed" yaml:"repair_malformed"`
}

// TriageConfig tunes the conversation triage loop.
type TriageConfig struct {
	Interval  time.Duration `mapstructure:"interval" yaml:"interval"`
	ListMode  string        `mapstructure:"list_mode" yaml:"list_mode"`
	ScanDepth int           `mapstructure:"scan_depth" yaml:"scan_depth"`
	DryRun    bool          `mapstructure:"dry_run" yaml:"dry_run"`
	// MaxPasses stops the loop after N passes. Zero runs until cancelled.
	MaxPasses int `mapstructure:"max_passes" yaml:"max_passes"`
}

// Posted policies for ListingConfig.PostedPolicy.
const (
	PostedPolicyAlways    = "always"
	PostedPolicyPublished = "published"
)

// ListingConfig tunes the listing form filler.
type ListingConfig struct {
	Condition      string        `mapstructure:"condition" yaml:"condition"`
	StepAttempts   int           `mapstructure:"step_attempts" yaml:"step_attempts"`
	StepRetryDelay time.Duration `mapstructure:"step_retry_delay" yaml:"step_retry_delay"`
	PostedPolicy   string        `mapstructure:"posted_policy" yaml:"posted_policy"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "marketpilot")
	v.SetDefault("logger.log_file", "marketpilot.log")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.debugger_address", "")
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.action_timeout", "20s")
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.post_load_wait", "2s")
	v.SetDefault("browser.actions_per_second", 4.0)
	v.SetDefault("browser.typing.key_delay_min", "40ms")
	v.SetDefault("browser.typing.key_delay_max", "140ms")

	// -- Marketplace --
	v.SetDefault("marketplace.base_url", "https://www.facebook.com")
	v.SetDefault("marketplace.inbox_path", "/marketplace/inbox")
	v.SetDefault("marketplace.messages_path", "/messages/t/")
	v.SetDefault("marketplace.create_path", "/marketplace/create/item")

	// -- Stores --
	v.SetDefault("state.path", "buyer_state.json")
	v.SetDefault("catalog.path", "output.json")
	v.SetDefault("catalog.photo_dir", "")
	v.SetDefault("catalog.repair_malformed", false)

	// -- Triage --
	v.SetDefault("triage.interval", "60s")
	v.SetDefault("triage.list_mode", "marketplace")
	v.SetDefault("triage.scan_depth", 1)
	v.SetDefault("triage.dry_run", false)
	v.SetDefault("triage.max_passes", 0)

	// -- Listing --
	v.SetDefault("listing.condition", "Used - Good")
	v.SetDefault("listing.step_attempts", 2)
	v.SetDefault("listing.step_retry_delay", "1s")
	v.SetDefault("listing.posted_policy", PostedPolicyAlways)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials never come from the config file.
	_ = v.BindEnv("credentials.email", "MARKETPILOT_FB_EMAIL")
	_ = v.BindEnv("credentials.password", "MARKETPILOT_FB_PASS")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Credentials.Email == "" {
		cfg.Credentials.Email = os.Getenv("MARKETPILOT_FB_EMAIL")
	}
	if cfg.Credentials.Password == "" {
		cfg.Credentials.Password = os.Getenv("MARKETPILOT_FB_PASS")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// expandPaths resolves a leading "~" in every configured filesystem path.
func (c *Config) expandPaths() error {
	paths := []*string{
		&c.Logger.LogFile,
		&c.State.Path,
		&c.Catalog.Path,
		&c.Catalog.PhotoDir,
		&c.Browser.UserDataDir,
	}
	for _, p := range paths {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Marketplace.BaseURL == "" {
		return fmt.Errorf("marketplace.base_url is required")
	}
	if err := c.Triage.Validate(); err != nil {
		return fmt.Errorf("triage configuration invalid: %w", err)
	}
	if err := c.Listing.Validate(); err != nil {
		return fmt.Errorf("listing configuration invalid: %w", err)
	}
	if c.Browser.Typing.KeyDelayMax < c.Browser.Typing.KeyDelayMin {
		return fmt.Errorf("browser.typing.key_delay_max must not be lower than key_delay_min")
	}
	return nil
}

// Validate checks the TriageConfig settings.
func (t *TriageConfig) Validate() error {
	if t.Interval <= 0 {
		return fmt.Errorf("interval must be a positive duration")
	}
	if t.ScanDepth <= 0 {
		return fmt.Errorf("scan_depth must be greater than 0")
	}
	if t.MaxPasses < 0 {
		return fmt.Errorf("max_passes must not be negative")
	}
	switch t.ListMode {
	case "marketplace", "all":
	default:
		return fmt.Errorf("list_mode %q is not one of 'marketplace', 'all'", t.ListMode)
	}
	return nil
}

// Validate checks the ListingConfig settings.
func (l *ListingConfig) Validate() error {
	if l.StepAttempts <= 0 {
		return fmt.Errorf("step_attempts must be greater than 0")
	}
	if l.StepRetryDelay < 0 {
		return fmt.Errorf("step_retry_delay must not be negative")
	}
	switch l.PostedPolicy {
	case PostedPolicyAlways, PostedPolicyPublished:
	default:
		return fmt.Errorf("posted_policy %q is not one of '%s', '%s'", l.PostedPolicy, PostedPolicyAlways, PostedPolicyPublished)
	}
	return nil
}
