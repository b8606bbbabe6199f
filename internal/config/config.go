// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Conversation() ConversationConfig
	Network() NetworkConfig
	Parser() ParserConfig
	Fetch() FetchConfig
	SetFetchConfig(fc FetchConfig)

	// Conversation Setters
	SetConversationAutoRedirect(bool)
	SetConversationExceptionsOnErrorStatus(bool)
	SetConversationScriptingEnabled(bool)

	// Network Setters
	SetNetworkIgnoreTLSErrors(bool)
	SetNetworkTimeout(d time.Duration)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	ConversationCfg ConversationConfig `mapstructure:"conversation" yaml:"conversation"`
	NetworkCfg      NetworkConfig      `mapstructure:"network" yaml:"network"`
	ParserCfg       ParserConfig       `mapstructure:"parser" yaml:"parser"`
	// fetch gets its marching orders from CLI flags, not the config file.
	fetch FetchConfig `mapstructure:"-" yaml:"-"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.LoggerCfg }
func (c *Config) Conversation() ConversationConfig { return c.ConversationCfg }
func (c *Config) Network() NetworkConfig           { return c.NetworkCfg }
func (c *Config) Parser() ParserConfig             { return c.ParserCfg }
func (c *Config) Fetch() FetchConfig               { return c.fetch }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetFetchConfig(fc FetchConfig) { c.fetch = fc }

// Conversation Setters
func (c *Config) SetConversationAutoRedirect(b bool) { c.ConversationCfg.AutoRedirect = b }
func (c *Config) SetConversationExceptionsOnErrorStatus(b bool) {
	c.ConversationCfg.ExceptionsOnErrorStatus = b
}
func (c *Config) SetConversationScriptingEnabled(b bool) { c.ConversationCfg.Scripting.Enabled = b }

// Network Setters
func (c *Config) SetNetworkIgnoreTLSErrors(b bool)  { c.NetworkCfg.IgnoreTLSErrors = b }
func (c *Config) SetNetworkTimeout(d time.Duration) { c.NetworkCfg.Timeout = d }

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

// ConversationConfig holds the browser-emulation policy of a conversation.
type ConversationConfig struct {
	AutoRedirect            bool              `mapstructure:"auto_redirect" yaml:"auto_redirect"`
	MaxRedirects            int               `mapstructure:"max_redirects" yaml:"max_redirects"`
	AcceptCookies           bool              `mapstructure:"accept_cookies" yaml:"accept_cookies"`
	AcceptGzip              bool              `mapstructure:"accept_gzip" yaml:"accept_gzip"`
	ExceptionsOnErrorStatus bool              `mapstructure:"exceptions_on_error_status" yaml:"exceptions_on_error_status"`
	AutoRefresh             bool              `mapstructure:"auto_refresh" yaml:"auto_refresh"`
	MaxRefreshDelay         time.Duration     `mapstructure:"max_refresh_delay" yaml:"max_refresh_delay"`
	DefaultCharset          string            `mapstructure:"default_charset" yaml:"default_charset"`
	UserAgent               string            `mapstructure:"user_agent" yaml:"user_agent"`
	Headers                 map[string]string `mapstructure:"headers" yaml:"headers"`
	Auth                    AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Scripting               ScriptingConfig   `mapstructure:"scripting" yaml:"scripting"`
}

// AuthConfig carries credentials sent as a Basic Authorization header.
type AuthConfig struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// ScriptingConfig controls the embedded script engine.
type ScriptingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ExceptionsOnError re-throws script failures instead of recording them.
	ExceptionsOnError bool          `mapstructure:"exceptions_on_error" yaml:"exceptions_on_error"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ProxyConfig defines the configuration for an outbound proxy.
type ProxyConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Address  string `mapstructure:"address" yaml:"address"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"-"`
}

// NetworkConfig tunes the network behavior of the application.
type NetworkConfig struct {
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Proxy              ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	IgnoreTLSErrors    bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	CheckContentLength bool          `mapstructure:"check_content_length" yaml:"check_content_length"`
	// RateLimit is the maximum number of requests per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// ParserConfig selects the markup parser used for responses.
type ParserConfig struct {
	// Default is "html" or "xml".
	Default string `mapstructure:"default" yaml:"default"`
	// XMLContentTypes are parsed with the XML parser regardless of Default.
	XMLContentTypes []string `mapstructure:"xml_content_types" yaml:"xml_content_types"`
}

// FetchConfig holds settings populated from CLI flags for a fetch job.
type FetchConfig struct {
	Targets     []string
	Output      string
	HAROutput   string
	Concurrency int
	Dump        []string
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
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
	v.SetDefault("logger.service_name", "pagewalk")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Conversation --
	v.SetDefault("conversation.auto_redirect", true)
	v.SetDefault("conversation.max_redirects", 10)
	v.SetDefault("conversation.accept_cookies", true)
	v.SetDefault("conversation.accept_gzip", true)
	v.SetDefault("conversation.exceptions_on_error_status", true)
	v.SetDefault("conversation.auto_refresh", false)
	v.SetDefault("conversation.max_refresh_delay", "0s")
	v.SetDefault("conversation.default_charset", "iso-8859-1")
	v.SetDefault("conversation.user_agent", "pagewalk/1.0")
	v.SetDefault("conversation.scripting.enabled", true)
	v.SetDefault("conversation.scripting.exceptions_on_error", true)
	v.SetDefault("conversation.scripting.timeout", "10s")

	// -- Network --
	v.SetDefault("network.timeout", "30s")
	v.SetDefault("network.proxy.enabled", false)
	v.SetDefault("network.ignore_tls_errors", false)
	v.SetDefault("network.check_content_length", false)
	v.SetDefault("network.rate_limit", 0.0)
	v.SetDefault("network.rate_burst", 1)

	// -- Parser --
	v.SetDefault("parser.default", "html")
	v.SetDefault("parser.xml_content_types", []string{"application/xhtml+xml", "text/xml", "application/xml"})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("conversation.auth.password", "PAGEWALK_AUTH_PASSWORD")
	_ = v.BindEnv("network.proxy.password", "PAGEWALK_PROXY_PASSWORD")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.ConversationCfg.MaxRedirects <= 0 {
		return fmt.Errorf("conversation.max_redirects must be a positive integer")
	}
	if c.NetworkCfg.RateLimit < 0 {
		return fmt.Errorf("network.rate_limit must not be negative")
	}
	if c.NetworkCfg.RateLimit > 0 && c.NetworkCfg.RateBurst <= 0 {
		return fmt.Errorf("network.rate_burst must be positive when rate limiting is enabled")
	}
	if err := c.NetworkCfg.Proxy.Validate(); err != nil {
		return fmt.Errorf("network.proxy configuration invalid: %w", err)
	}
	switch strings.ToLower(c.ParserCfg.Default) {
	case "html", "xml":
	default:
		return fmt.Errorf("parser.default must be 'html' or 'xml', got %q", c.ParserCfg.Default)
	}
	return nil
}

// Validate checks the proxy configuration.
func (p *ProxyConfig) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Address == "" {
		return fmt.Errorf("address is required when the proxy is enabled")
	}
	return nil
}
