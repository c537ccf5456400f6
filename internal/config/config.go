package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Backend names accepted by the backend key.
const (
	BackendDlib   = "dlib"
	BackendPython = "python"
)

// DefaultDB is used when neither db nor POSTGRES_HOST is set.
const DefaultDB = "postgres://localhost:5432/facegate"

// Config is the facegate configuration.
type Config struct {
	GalleryDir   string  `mapstructure:"gallery_dir"`
	ModelsDir    string  `mapstructure:"models_dir"`
	Camera       int     `mapstructure:"camera"`
	Threshold    float64 `mapstructure:"threshold"`
	Scale        float64 `mapstructure:"scale"`
	Backend      string  `mapstructure:"backend"`
	CNN          bool    `mapstructure:"cnn"`
	WorkerScript string  `mapstructure:"worker_script"`
	Python       string  `mapstructure:"python"`
	DB           string  `mapstructure:"db"`
}

// New returns a viper instance with defaults and FACEGATE_ environment
// overrides applied. Callers bind flags before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("gallery_dir", "known_faces")
	v.SetDefault("models_dir", "models")
	v.SetDefault("camera", 0)
	v.SetDefault("threshold", 0.6)
	v.SetDefault("scale", 0.5)
	v.SetDefault("backend", BackendDlib)
	v.SetDefault("cnn", false)
	v.SetDefault("worker_script", "python/worker.py")
	v.SetDefault("python", "python3")
	v.SetDefault("db", "")

	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (path, or facegate.yaml in the working
// directory and $HOME/.config/facegate) and validates the result.
// A missing default config file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("facegate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/facegate")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("validating config: %w", errors.Join(errs...))
	}
	return &cfg, nil
}

// Validate returns every problem found, not just the first.
func (c *Config) Validate() []error {
	var errs []error
	if c.Threshold <= 0 || c.Threshold > 2 {
		errs = append(errs, fmt.Errorf("threshold must be in (0, 2], got %v", c.Threshold))
	}
	if c.Scale <= 0 || c.Scale > 1 {
		errs = append(errs, fmt.Errorf("scale must be in (0, 1], got %v", c.Scale))
	}
	if c.Camera < 0 {
		errs = append(errs, fmt.Errorf("camera must be a device index, got %d", c.Camera))
	}
	if c.GalleryDir == "" {
		errs = append(errs, errors.New("gallery_dir must not be empty"))
	}
	switch c.Backend {
	case BackendDlib, BackendPython:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendDlib, BackendPython))
	}
	return errs
}

// DatabaseURL returns db, or builds one from the POSTGRES_* environment.
func (c *Config) DatabaseURL() string {
	if c.DB != "" {
		return c.DB
	}
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		return DefaultDB
	}
	user := os.Getenv("POSTGRES_USER")
	pass := os.Getenv("POSTGRES_PASSWORD")
	name := os.Getenv("POSTGRES_DB")
	port := os.Getenv("POSTGRES_PORT")
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
}
