package config

import (
	"os"
	"strconv"
)

// LoadFromEnv applies environment overrides on top of file values.
func LoadFromEnv(cfg *Config) {
	if port := os.Getenv("DRCTL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if logLevel := os.Getenv("DRCTL_LOG_LEVEL"); logLevel != "" {
		cfg.Server.LogLevel = logLevel
	}

	if secret := os.Getenv("DRCTL_API_SECRET"); secret != "" {
		cfg.Server.APISecret = secret
	}

	if cfg.Database != nil {
		if host := os.Getenv("DRCTL_DB_HOST"); host != "" {
			cfg.Database.Host = host
		}
		if password := os.Getenv("DRCTL_DB_PASSWORD"); password != "" {
			cfg.Database.Password = password
		}
	}
}

// GetEnvOrDefault returns an environment variable or a fallback.
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
