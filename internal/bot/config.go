package bot

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/dutybot/core/config"
	coredatabase "github.com/m3rciful/dutybot/core/database"
)

// Storage drivers for the session store.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// StorageConfig selects where in-flight dialog sessions live.
type StorageConfig struct {
	Driver   string              `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Postgres coredatabase.Config `yaml:"postgres"`
}

// Config is the full application configuration: the core bot settings
// plus app-level storage. The embedded core config promotes CoreConfig,
// satisfying the runner's carrier contract.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage StorageConfig `yaml:"storage"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := normalizeStorage(&cfg.Storage); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func normalizeStorage(sc *StorageConfig) error {
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = StorageMemory
	}
	switch driver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(sc.Postgres.Host) == "" {
			return fmt.Errorf("storage.postgres.host is required when storage.driver is 'postgres'")
		}
		if strings.TrimSpace(sc.Postgres.Name) == "" {
			return fmt.Errorf("storage.postgres.name is required when storage.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: memory, postgres", sc.Driver)
	}
	sc.Driver = driver
	return nil
}
