package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config represents the main application configuration
type Config struct {
	Database Database `json:"database" mapstructure:"database"`
	Server   Server   `json:"server" mapstructure:"server"`
	HTTP     HTTP     `json:"http" mapstructure:"http"`
}

// Database represents database configuration
type Database struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	User            string        `json:"user" mapstructure:"user"`
	Password        string        `json:"password" mapstructure:"password"`
	DBName          string        `json:"dbname" mapstructure:"dbname"`
	SSLMode         string        `json:"sslmode" mapstructure:"sslmode"`
	MaxConnections  int           `json:"max_connections" mapstructure:"max_connections"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// Server represents server configuration
type Server struct {
	LogLevel string `json:"log_level" mapstructure:"log_level"`
	Debug    bool   `json:"debug" mapstructure:"debug"`
}

// HTTP represents HTTP server configuration
type HTTP struct {
	Port         int      `json:"port" mapstructure:"port"`
	AllowOrigins []string `json:"allow_origins" mapstructure:"allow_origins"`
}

// NewDefault returns a Config instance with default values
func NewDefault() *Config {
	return &Config{
		Database: Database{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "",
			DBName:          "skill_badges",
			SSLMode:         "disable",
			MaxConnections:  25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 1 * time.Minute,
		},
		Server: Server{
			LogLevel: "info",
			Debug:    false,
		},
		HTTP: HTTP{
			Port:         8082,
			AllowOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port must be between 1 and 65535")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("max connections must be greater than 0")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("max idle connections cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxConnections {
		return fmt.Errorf("max idle connections cannot exceed max connections")
	}

	// Server validation
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("invalid log level: %s", c.Server.LogLevel)
	}

	// HTTP validation
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}

	return nil
}

// DatabaseURL constructs a PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	params := url.Values{}
	params.Set("sslmode", c.Database.SSLMode)

	var userInfo *url.Userinfo
	if c.Database.Password == "" {
		userInfo = url.User(c.Database.User)
	} else {
		userInfo = url.UserPassword(c.Database.User, c.Database.Password)
	}

	u := &url.URL{
		Scheme:   "postgres",
		User:     userInfo,
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     c.Database.DBName,
		RawQuery: params.Encode(),
	}

	return u.String()
}
