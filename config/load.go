package config

import (
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Load reads configuration from the given YAML file, then overlays
// environment variables. A missing file is not an error: env vars and
// defaults carry the full configuration in container deployments.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, err
			}
			return &cfg, nil
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
