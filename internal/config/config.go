package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tanq16/batchfetch/internal/utils"
)

// Config holds the resolved settings for one run. Precedence is
// flag > BATCHFETCH_* environment variable > config file > default.
type Config struct {
	Output      string        `mapstructure:"output"`
	BatchSize   int           `mapstructure:"batch_size"`
	MaxParallel int           `mapstructure:"max_parallel"`
	Timeout     time.Duration `mapstructure:"timeout"`
	KATimeout   time.Duration `mapstructure:"keep_alive_timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	Headers     []string      `mapstructure:"headers"`
	Proxy       ProxyConfig   `mapstructure:"proxy"`
	S3Profile   string        `mapstructure:"s3_profile"`
	S3Endpoint  string        `mapstructure:"s3_endpoint"`
	Debug       bool          `mapstructure:"debug"`
	Plain       bool          `mapstructure:"plain"`
}

type ProxyConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// flag name -> config key
var flagKeys = map[string]string{
	"output":             "output",
	"batch-size":         "batch_size",
	"max-parallel":       "max_parallel",
	"timeout":            "timeout",
	"keep-alive-timeout": "keep_alive_timeout",
	"user-agent":         "user_agent",
	"header":             "headers",
	"proxy":              "proxy.url",
	"proxy-username":     "proxy.username",
	"proxy-password":     "proxy.password",
	"s3-profile":         "s3_profile",
	"s3-endpoint":        "s3_endpoint",
	"debug":              "debug",
	"plain":              "plain",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", ".")
	v.SetDefault("batch_size", utils.DefaultBatchSize)
	v.SetDefault("max_parallel", 0)
	v.SetDefault("timeout", "0s")
	v.SetDefault("keep_alive_timeout", "90s")
	v.SetDefault("user_agent", utils.ToolUserAgent)
	v.SetDefault("headers", []string{})
	v.SetDefault("s3_profile", "")
	v.SetDefault("s3_endpoint", "")
	v.SetDefault("debug", false)
	v.SetDefault("plain", false)
}

// Load reads the optional config file at path and overlays env and flags.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BATCHFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Output == "" {
		return errors.New("output directory is required")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch_size must be positive")
	}
	if c.MaxParallel < 0 {
		return errors.New("max_parallel cannot be negative (0 disables the cap)")
	}
	if c.Timeout < 0 || c.KATimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}
	return nil
}

// HTTPClientConfig converts the loaded settings into the HTTP client options.
func (c *Config) HTTPClientConfig() utils.HTTPClientConfig {
	userAgent := c.UserAgent
	if userAgent == "randomize" {
		userAgent = utils.GetRandomUserAgent()
	}
	proxyURL, username, password := c.Proxy.URL, c.Proxy.Username, c.Proxy.Password
	// Credentials embedded in the proxy URL are used unless given separately
	if parsed, err := url.Parse(proxyURL); err == nil && parsed.User != nil && username == "" {
		username = parsed.User.Username()
		if p, set := parsed.User.Password(); set {
			password = p
		}
		parsed.User = nil
		proxyURL = parsed.String()
	}
	return utils.HTTPClientConfig{
		Timeout:       c.Timeout,
		KATimeout:     c.KATimeout,
		ProxyURL:      proxyURL,
		ProxyUsername: username,
		ProxyPassword: password,
		UserAgent:     userAgent,
		Headers:       utils.ParseHeaderArgs(c.Headers),
	}
}
