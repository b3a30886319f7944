// Package config loads the tempora.yaml configuration file and the declared
// table models it points at. Precedence: CLI flags > environment > config
// file > defaults; flag overrides are applied by the command layer.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/temporadb/tempora/internal/terr"
)

// DefaultFile is the config file name looked up in the working directory.
const DefaultFile = "tempora.yaml"

// Config is the tempora.yaml file.
type Config struct {
	DatabaseURL string `yaml:"database_url"`
	ModelsFile  string `yaml:"models_file"`
}

// Load reads the config file, after loading a .env file when present.
// ${VAR} references in database_url are expanded from the environment; a
// DATABASE_URL environment variable wins over the file value.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()

	cfg := &Config{
		ModelsFile: "models.yaml",
	}

	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to read config file").
				With("path", path)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, terr.Wrap(terr.ErrConfigInvalid, err, "failed to parse config file").
			With("path", path)
	}

	cfg.DatabaseURL = os.Expand(cfg.DatabaseURL, os.Getenv)
	if envURL := os.Getenv("DATABASE_URL"); envURL != "" {
		cfg.DatabaseURL = envURL
	}

	return cfg, nil
}

// Validate checks the loaded configuration is usable for database commands.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return terr.New(terr.ErrConfigInvalid,
			"database_url is required; set it in "+DefaultFile+" or via DATABASE_URL")
	}
	return nil
}
