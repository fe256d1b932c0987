package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetConfigName("config")

	if configPath != "" {
		// Use explicit path if provided
		v.SetConfigFile(configPath)
	} else {
		// Search in multiple locations
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/skill-badges")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".skill-badges"))
		}
	}

	// Defaults are overridden by config file and env vars
	setDefaults(v)

	v.SetEnvPrefix("SKILL_BADGES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	// Missing config file is fine, defaults and env vars still apply
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// DATABASE_URL overrides the individual database settings
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if err := parseDatabaseURL(v, dbURL); err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "skill_badges")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.conn_max_idle_time", "10m")

	// Server defaults
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.debug", false)

	// HTTP defaults
	v.SetDefault("http.port", 8082)
}

// bindEnvVars binds specific environment variables to configuration keys
func bindEnvVars(v *viper.Viper) {
	// Log level can be set via LOG_LEVEL or SKILL_BADGES_SERVER_LOG_LEVEL
	v.BindEnv("server.log_level", "LOG_LEVEL", "SKILL_BADGES_SERVER_LOG_LEVEL")

	// HTTP port can be set via PORT or SKILL_BADGES_HTTP_PORT
	v.BindEnv("http.port", "PORT", "SKILL_BADGES_HTTP_PORT")

	// Debug mode
	v.BindEnv("server.debug", "DEBUG", "SKILL_BADGES_SERVER_DEBUG")
}

// parseDatabaseURL parses a PostgreSQL connection URL and sets individual database config values
func parseDatabaseURL(v *viper.Viper, dbURL string) error {
	if !strings.HasPrefix(dbURL, "postgres://") && !strings.HasPrefix(dbURL, "postgresql://") {
		return fmt.Errorf("URL must start with postgres:// or postgresql://")
	}

	dbURL = strings.TrimPrefix(dbURL, "postgres://")
	dbURL = strings.TrimPrefix(dbURL, "postgresql://")

	parts := strings.SplitN(dbURL, "@", 2)
	if len(parts) != 2 {
		return fmt.Errorf("invalid URL format")
	}

	// user:password
	userParts := strings.SplitN(parts[0], ":", 2)
	if len(userParts) > 0 {
		v.Set("database.user", userParts[0])
	}
	if len(userParts) > 1 {
		v.Set("database.password", userParts[1])
	}

	remaining := parts[1]

	var queryParams string
	if idx := strings.Index(remaining, "?"); idx != -1 {
		queryParams = remaining[idx+1:]
		remaining = remaining[:idx]
	}

	// host:port/dbname
	hostDBParts := strings.SplitN(remaining, "/", 2)
	if len(hostDBParts) != 2 {
		return fmt.Errorf("database name not found in URL")
	}

	hostParts := strings.SplitN(hostDBParts[0], ":", 2)
	v.Set("database.host", hostParts[0])
	if len(hostParts) > 1 {
		v.Set("database.port", hostParts[1])
	}

	v.Set("database.dbname", hostDBParts[1])

	if queryParams != "" {
		params := strings.Split(queryParams, "&")
		for _, param := range params {
			kv := strings.SplitN(param, "=", 2)
			if len(kv) == 2 && kv[0] == "sslmode" {
				v.Set("database.sslmode", kv[1])
			}
		}
	}

	return nil
}

// LoadConfigOrDefault loads configuration or returns default if loading fails
func LoadConfigOrDefault(configPath string) *Config {
	config, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config: %v. Using defaults.\n", err)
		return NewDefault()
	}
	return config
}
