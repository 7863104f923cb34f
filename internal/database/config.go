package database

import (
	"time"

	"github.com/koustreak/hdbexport/internal/config"
)

// Driver identifies the database engine.
type Driver string

const (
	DriverHANA     Driver = "hana"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds everything a driver needs to open one connection.
type Config struct {
	Driver   Driver
	Host     string
	Port     int
	User     string
	Password string

	// Database is the optional database / tenant name.
	Database string

	// ConnectTimeout bounds the connect call. Zero leaves it to the driver.
	ConnectTimeout time.Duration
}

// FromSettings builds a Config from loaded settings.
func FromSettings(s config.Settings, driver Driver) *Config {
	return &Config{
		Driver:   driver,
		Host:     s.Host(),
		Port:     s.Port(),
		User:     s.User(),
		Password: s.Password(),
	}
}

// FromConfig builds a Config from the full application config.
func FromConfig(c *config.Config) *Config {
	cfg := FromSettings(c.Settings, Driver(c.Driver))
	cfg.Database = c.Database
	cfg.ConnectTimeout = c.ConnectTimeout
	return cfg
}
