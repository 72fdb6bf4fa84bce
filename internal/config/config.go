package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client's configuration model: where the backend lives,
// how politely to talk to it, and where local state goes.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Storage StorageConfig `yaml:"storage"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type APIConfig struct {
	// Root URL of the backend, e.g. https://chirp.example.com.
	// If empty, read from env CHIRP_API_URL.
	Root string `yaml:"root"`
	// Request timeout in seconds.
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	// Client-side rate limit.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// Delay before the single reconciliation-fallback retry, in ms.
	RetryDelayMS int `yaml:"retryDelayMs"`
}

type SessionConfig struct {
	// Where the session cookie is persisted between runs.
	CookiePath string `yaml:"cookiePath"`
}

type StorageConfig struct {
	// SQLite action journal path. Empty disables journaling.
	JournalPath string `yaml:"journalPath"`
}

type MetricsConfig struct {
	// Address for the /metrics server, e.g. ":9090". Empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, ".chirp")
	return Config{
		API: APIConfig{
			Root:           "",
			TimeoutSeconds: 15,
			RPS:            5,
			Burst:          10,
			RetryDelayMS:   400,
		},
		Session: SessionConfig{CookiePath: filepath.Join(dataDir, "cookies.json")},
		Storage: StorageConfig{JournalPath: filepath.Join(dataDir, "journal.db")},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.API.Root == "" {
		c.API.Root = os.Getenv("CHIRP_API_URL")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("CHIRP_METRICS_ADDR")
	}
}

// RetryDelay returns the fallback retry delay as a duration.
func (c Config) RetryDelay() time.Duration {
	if c.API.RetryDelayMS <= 0 {
		return 400 * time.Millisecond
	}
	return time.Duration(c.API.RetryDelayMS) * time.Millisecond
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
