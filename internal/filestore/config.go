package filestore

import "github.com/koustreak/hdbexport/internal/config"

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to an object store.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is sent to region-aware backends such as AWS S3. Empty lets
	// the client discover it.
	Region string
}

// FromConfig builds a MinIO Config from the EXPORT_* settings.
func FromConfig(c config.StoreConfig) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  c.Endpoint,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		UseSSL:    c.UseSSL,
		Region:    c.Region,
	}
}
