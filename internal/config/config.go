package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultAPIBase is the backend used when nothing else is configured.
const DefaultAPIBase = "http://127.0.0.1:8000/api"

// Config holds client configuration
type Config struct {
	APIBase   string        `mapstructure:"api_base"`
	DataDir   string        `mapstructure:"data_dir"`
	Timeout   time.Duration `mapstructure:"timeout"`
	LogLevel  string        `mapstructure:"log_level"`
	Listen    string        `mapstructure:"listen"`
	SealToken bool          `mapstructure:"seal_token"`
	Notify    NotifyConfig  `mapstructure:"notify"`
}

// NotifyConfig lists Shoutrrr destinations for dashboard events.
type NotifyConfig struct {
	URLs        []string      `mapstructure:"urls"`
	MinSeverity string        `mapstructure:"min_severity"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

// DBPath is the sqlite file holding the token store and notification history.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "chemviz.db")
}

// KeyPath is the secretbox key used to seal the persisted token.
func (c *Config) KeyPath() string {
	return filepath.Join(c.DataDir, "chemviz.key")
}

// Load reads configuration from an optional YAML file, a .env file and
// CHEMVIZ_* environment variables, in increasing order of precedence.
// An empty path falls back to $CHEMVIZ_CONFIG and then to
// ~/.config/chemviz/config.yaml; a missing default file is not an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		Logger.Warnf("config: could not read .env: %v", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CHEMVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("CHEMVIZ_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigPath()
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if explicit || !isNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	// viper does not split env lists on its own
	if raw := os.Getenv("CHEMVIZ_NOTIFY_URLS"); raw != "" {
		cfg.Notify.URLs = splitList(raw)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base", DefaultAPIBase)
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("listen", "127.0.0.1:5173")
	v.SetDefault("seal_token", true)
	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.min_severity", "warning")
	v.SetDefault("notify.cooldown", 5*time.Minute)
}

func (c *Config) applyDefaults() {
	c.APIBase = strings.TrimRight(strings.TrimSpace(c.APIBase), "/")
	if c.APIBase == "" {
		c.APIBase = DefaultAPIBase
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Notify.MinSeverity == "" {
		c.Notify.MinSeverity = "warning"
	}
}

func (c *Config) validate() error {
	u, err := url.Parse(c.APIBase)
	if err != nil {
		return fmt.Errorf("invalid api_base %q: %w", c.APIBase, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid api_base %q: scheme must be http or https", c.APIBase)
	}
	switch c.Notify.MinSeverity {
	case "info", "warning", "critical":
	default:
		return fmt.Errorf("invalid notify.min_severity %q", c.Notify.MinSeverity)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "chemviz")
	}
	return ".chemviz"
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chemviz", "config.yaml")
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
}

func splitList(raw string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
