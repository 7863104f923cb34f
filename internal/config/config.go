// Package config loads connection settings from a dotenv file and the
// process environment.
//
// Usage:
//
//	cfg, err := config.Loader{EnvFile: ".env"}.Load()
//	if err != nil { ... }
//	fmt.Println(cfg.Settings) // db.example.com:30015 as U
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/hdbexport/internal/errs"
)

// Recognised keys. Lookup is case-insensitive in both sources.
const (
	KeyHost           = "HDB_HOST"
	KeyPort           = "HDB_PORT"
	KeyUser           = "HDB_USER"
	KeyPassword       = "HDB_PASSWORD"
	KeyDriver         = "HDB_DRIVER"
	KeyDatabase       = "HDB_DATABASE"
	KeyConnectTimeout = "HDB_CONNECT_TIMEOUT"
	KeyLogLevel       = "LOG_LEVEL"
	KeyLogFormat      = "LOG_FORMAT"
	KeyStoreEndpoint  = "EXPORT_ENDPOINT"
	KeyStoreAccessKey = "EXPORT_ACCESS_KEY"
	KeyStoreSecretKey = "EXPORT_SECRET_KEY"
	KeyStoreBucket    = "EXPORT_BUCKET"
	KeyStoreUseSSL    = "EXPORT_USE_SSL"
	KeyStoreRegion    = "EXPORT_REGION"
)

// DefaultEnvFile is read when no other file is named.
const DefaultEnvFile = ".env"

const (
	defaultDriver         = "hana"
	defaultConnectTimeout = 10 * time.Second
)

// Settings is the four-field connection record. It is a value type with
// unexported fields: once built it cannot be changed by its holders.
type Settings struct {
	host     string
	port     int
	user     string
	password string
}

// NewSettings validates and builds a Settings value.
func NewSettings(host string, port int, user, password string) (Settings, error) {
	var missing []string
	if host == "" {
		missing = append(missing, KeyHost)
	}
	if user == "" {
		missing = append(missing, KeyUser)
	}
	if password == "" {
		missing = append(missing, KeyPassword)
	}
	if len(missing) > 0 {
		return Settings{}, missingError(missing)
	}
	if port <= 0 || port > 65535 {
		return Settings{}, errs.New(errs.ErrKindConfiguration,
			fmt.Sprintf("%s must be between 1 and 65535, got %d", KeyPort, port))
	}
	return Settings{host: host, port: port, user: user, password: password}, nil
}

func (s Settings) Host() string     { return s.host }
func (s Settings) Port() int        { return s.port }
func (s Settings) User() string     { return s.user }
func (s Settings) Password() string { return s.password }

// Addr returns host:port.
func (s Settings) Addr() string {
	return net.JoinHostPort(s.host, strconv.Itoa(s.port))
}

// String never includes the password.
func (s Settings) String() string {
	return fmt.Sprintf("%s as %s", s.Addr(), s.user)
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig holds the optional object-store target for uploads.
// Endpoint is empty when uploads are not configured.
type StoreConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// Enabled reports whether an object store endpoint was configured.
func (c StoreConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Config is everything the binary needs. Only Settings is mandatory;
// the rest carries defaults.
type Config struct {
	Settings Settings

	// Driver selects the database client: hana (default), postgres or mysql.
	Driver string

	// Database is the optional database / tenant name.
	Database string

	// ConnectTimeout bounds the connect call only.
	ConnectTimeout time.Duration

	Log   LogConfig
	Store StoreConfig
}

func missingError(keys []string) *errs.Error {
	return errs.New(errs.ErrKindConfiguration, "missing required settings: "+strings.Join(keys, ", "))
}
