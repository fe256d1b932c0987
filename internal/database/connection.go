package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database manages the database connection pool. It is the only shared
// mutable resource in the service; every request issues exactly one
// statement against it.
type Database struct {
	db     *gorm.DB
	config map[string]interface{}
	mu     sync.RWMutex
}

// NewDatabase creates a new Database instance
func NewDatabase(config map[string]interface{}) *Database {
	return &Database{
		config: config,
	}
}

// Connect establishes a connection to the PostgreSQL database with retry logic
func (d *Database) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dsn := d.buildDSN()

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(d.getLogLevel()),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	}

	// Startup-only retry: individual statements later are never retried
	maxRetries := 5
	retryDelay := time.Second * 2

	var err error
	for i := 0; i < maxRetries; i++ {
		d.db, err = gorm.Open(postgres.Open(dsn), gormConfig)
		if err == nil {
			break
		}

		if i < maxRetries-1 {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxIdleConns := d.getConfigInt("max_idle_conns", 10)
	maxOpenConns := d.getConfigInt("max_open_conns", 100)
	connMaxLifetime := d.getConfigDuration("conn_max_lifetime", time.Hour)
	connMaxIdleTime := d.getConfigDuration("conn_max_idle_time", time.Minute*10)

	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// Health checks the database connection health
func (d *Database) Health(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return fmt.Errorf("database not connected")
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	d.db = nil
	return nil
}

// DB returns the underlying gorm.DB instance
func (d *Database) DB() *gorm.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// SetDB sets the underlying gorm.DB instance (for testing)
func (d *Database) SetDB(db *gorm.DB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.db = db
}

// buildDSN constructs the PostgreSQL DSN from config
func (d *Database) buildDSN() string {
	host := d.getConfigString("host", "localhost")
	port := d.getConfigInt("port", 5432)
	user := d.getConfigString("user", "postgres")
	password := d.getConfigString("password", "")
	dbname := d.getConfigString("dbname", "skill_badges")
	sslmode := d.getConfigString("sslmode", "disable")
	timezone := d.getConfigString("timezone", "UTC")

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		host, port, user, password, dbname, sslmode, timezone)
}

// getLogLevel returns the GORM log level from config
func (d *Database) getLogLevel() logger.LogLevel {
	level := d.getConfigString("log_level", "error")
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Error
	}
}

// Helper methods for config access

func (d *Database) getConfigString(key string, defaultValue string) string {
	if val, ok := d.config[key].(string); ok {
		return val
	}
	return defaultValue
}

func (d *Database) getConfigInt(key string, defaultValue int) int {
	if val, ok := d.config[key].(int); ok {
		return val
	}
	// JSON decoding hands numbers over as float64
	if val, ok := d.config[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

func (d *Database) getConfigDuration(key string, defaultValue time.Duration) time.Duration {
	if val, ok := d.config[key].(string); ok {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	if val, ok := d.config[key].(time.Duration); ok {
		return val
	}
	return defaultValue
}
