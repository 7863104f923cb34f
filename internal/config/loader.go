package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/koustreak/hdbexport/internal/errs"
)

const configType = "env"

// known lists every key the loader resolves; anything else in either source
// is ignored.
var known = []string{
	KeyHost, KeyPort, KeyUser, KeyPassword,
	KeyDriver, KeyDatabase, KeyConnectTimeout,
	KeyLogLevel, KeyLogFormat,
	KeyStoreEndpoint, KeyStoreAccessKey, KeyStoreSecretKey, KeyStoreBucket, KeyStoreUseSSL, KeyStoreRegion,
}

var required = []string{KeyHost, KeyPort, KeyUser, KeyPassword}

// raw mirrors the keys as viper sees them (lower-cased).
type raw struct {
	Host           string        `mapstructure:"hdb_host"`
	Port           int           `mapstructure:"hdb_port"`
	User           string        `mapstructure:"hdb_user"`
	Password       string        `mapstructure:"hdb_password"`
	Driver         string        `mapstructure:"hdb_driver"`
	Database       string        `mapstructure:"hdb_database"`
	ConnectTimeout time.Duration `mapstructure:"hdb_connect_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
	LogFormat      string        `mapstructure:"log_format"`
	StoreEndpoint  string        `mapstructure:"export_endpoint"`
	StoreAccessKey string        `mapstructure:"export_access_key"`
	StoreSecretKey string        `mapstructure:"export_secret_key"`
	StoreBucket    string        `mapstructure:"export_bucket"`
	StoreUseSSL    bool          `mapstructure:"export_use_ssl"`
	StoreRegion    string        `mapstructure:"export_region"`
}

// Loader resolves Config from a dotenv file overlaid with the process
// environment. The zero value reads DefaultEnvFile and os.Environ.
type Loader struct {
	// EnvFile is the dotenv file to read. A missing file is not an error.
	EnvFile string

	// Environ returns KEY=value pairs. Defaults to os.Environ.
	Environ func() []string
}

// Load reads both sources and validates the result. It never contacts the
// database. Every failure is an errs.ErrKindConfiguration error.
func (l Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType(configType)
	v.SetDefault(strings.ToLower(KeyDriver), defaultDriver)
	v.SetDefault(strings.ToLower(KeyConnectTimeout), defaultConnectTimeout)
	v.SetDefault(strings.ToLower(KeyLogLevel), "info")

	file := l.EnvFile
	if file == "" {
		file = DefaultEnvFile
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil && !isNotExist(err) {
		return nil, errs.Wrap(errs.ErrKindConfiguration, fmt.Sprintf("read %s", file), err)
	}

	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	overlayEnv(v, environ())

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, missingError(missing)
	}

	// Decoded here rather than by mapstructure, which would read a leading
	// zero as octal.
	port, err := strconv.Atoi(strings.TrimSpace(v.GetString(KeyPort)))
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration,
			fmt.Sprintf("%s must be an integer", KeyPort), err)
	}
	v.Set(strings.ToLower(KeyPort), port)

	var r raw
	if err := v.Unmarshal(&r); err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "decode settings", err)
	}

	settings, err := NewSettings(r.Host, r.Port, r.User, r.Password)
	if err != nil {
		return nil, err
	}

	driver := strings.ToLower(strings.TrimSpace(r.Driver))
	if driver == "" {
		driver = defaultDriver
	}
	switch driver {
	case "hana", "postgres", "mysql":
	default:
		return nil, errs.New(errs.ErrKindConfiguration,
			fmt.Sprintf("%s must be one of hana, postgres, mysql; got %q", KeyDriver, r.Driver))
	}
	if r.ConnectTimeout < 0 {
		return nil, errs.New(errs.ErrKindConfiguration,
			fmt.Sprintf("%s must not be negative", KeyConnectTimeout))
	}

	return &Config{
		Settings:       settings,
		Driver:         driver,
		Database:       r.Database,
		ConnectTimeout: r.ConnectTimeout,
		Log: LogConfig{
			Level:  strings.ToLower(r.LogLevel),
			Format: strings.ToLower(r.LogFormat),
		},
		Store: StoreConfig{
			Endpoint:  r.StoreEndpoint,
			AccessKey: r.StoreAccessKey,
			SecretKey: r.StoreSecretKey,
			Bucket:    r.StoreBucket,
			UseSSL:    r.StoreUseSSL,
			Region:    r.StoreRegion,
		},
	}, nil
}

// LoadSettings is Load for callers that only need the connection record.
func LoadSettings(envFile string) (Settings, error) {
	cfg, err := Loader{EnvFile: envFile}.Load()
	if err != nil {
		return Settings{}, err
	}
	return cfg.Settings, nil
}

// overlayEnv copies recognised variables into v, matching names without
// regard to case. Set has the highest precedence in viper, so the
// environment always wins over the file.
func overlayEnv(v *viper.Viper, environ []string) {
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		for _, key := range known {
			if strings.EqualFold(name, key) {
				v.Set(strings.ToLower(key), value)
				break
			}
		}
	}
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.Is(err, fs.ErrNotExist) || errors.As(err, &notFound)
}
