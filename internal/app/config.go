package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/edugate-dev/edugate/internal/credstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText     LogFormat = "text"
	LogFormatJSON     LogFormat = "json"
	LogFormatOTel     LogFormat = "otel"
	LogFormatOTLP     LogFormat = "otlp"
	LogFormatOTLPGRPC LogFormat = "otlp-grpc"
)

// CredentialStorageType represents the storage backends supported for the
// credential pair.
type CredentialStorageType string

const (
	CredentialStorageTypeFile    CredentialStorageType = "file"
	CredentialStorageTypeEnv     CredentialStorageType = "env"
	CredentialStorageTypeKeyring CredentialStorageType = "keyring"
	CredentialStorageTypeBolt    CredentialStorageType = "bolt"
)

// Default configuration values
const (
	DefaultConfigLogFormat          = LogFormatText
	DefaultConfigAPIBaseURL         = "https://api.edugate.dev/v1"
	DefaultConfigAPILoginPath       = "/auth/login"
	DefaultConfigAPIRegisterPath    = "/auth/register"
	DefaultConfigAPIRefreshPath     = "/auth/refresh"
	DefaultConfigAPITimeout         = 30 * time.Second
	DefaultConfigCredentialsStorage = CredentialStorageTypeFile
	DefaultConfigKeyringService     = "edugate-credentials"
)

// APIConfig holds the platform API endpoints.
type APIConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`

	// Routes of the auth exchanges. These are also the routes exempt from
	// the refresh protocol.
	LoginPath    string `json:"login_path" validate:"required"`
	RegisterPath string `json:"register_path" validate:"required"`
	RefreshPath  string `json:"refresh_path" validate:"required"`

	// Timeout bounds the auth exchanges (login, registration, refresh).
	// A hung refresh would otherwise suspend every request queued behind it.
	Timeout time.Duration `json:"timeout"`
}

// CredentialsConfig describes where the credential pair is stored.
type CredentialsConfig struct {
	// Storage configuration - where the credential pair lives
	Storage CredentialStorageType `json:"storage" validate:"required,oneof=file env keyring bolt"`

	// Storage-specific settings (mutually exclusive based on Storage type)
	File        string `json:"file,omitempty"`         // For file storage: path to credential file
	Bolt        string `json:"bolt,omitempty"`         // For bolt storage: path to database file
	AccessEnv   string `json:"access_env,omitempty"`   // For env storage: access credential variable
	RefreshEnv  string `json:"refresh_env,omitempty"`  // For env storage: refresh credential variable
	KeyringUser string `json:"keyring_user,omitempty"` // For keyring storage: user identifier
}

// NewStore creates a credential store from the configuration.
func (c *CredentialsConfig) NewStore() (credstore.Store, error) {
	switch c.Storage {
	case CredentialStorageTypeFile:
		return credstore.NewFileStore(c.File)
	case CredentialStorageTypeEnv:
		return credstore.NewEnvStore(c.AccessEnv, c.RefreshEnv)
	case CredentialStorageTypeKeyring:
		return credstore.NewKeyringStore(DefaultConfigKeyringService, c.KeyringUser)
	case CredentialStorageTypeBolt:
		return credstore.NewBoltStore(c.Bolt)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.Storage)
	}
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel    slog.Level        `json:"log_level"`
	LogFormat   LogFormat         `json:"log_format" validate:"oneof=text json otel otlp otlp-grpc"`
	API         APIConfig         `json:"api"`
	Credentials CredentialsConfig `json:"credentials"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// ApplyDefaults fills unset config fields with sensible defaults.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultConfigAPIBaseURL
	}
	if c.API.LoginPath == "" {
		c.API.LoginPath = DefaultConfigAPILoginPath
	}
	if c.API.RegisterPath == "" {
		c.API.RegisterPath = DefaultConfigAPIRegisterPath
	}
	if c.API.RefreshPath == "" {
		c.API.RefreshPath = DefaultConfigAPIRefreshPath
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultConfigAPITimeout
	}
	if c.Credentials.Storage == "" {
		c.Credentials.Storage = DefaultConfigCredentialsStorage
	}

	// Dynamic defaults based on storage type
	switch c.Credentials.Storage {
	case CredentialStorageTypeFile:
		if c.Credentials.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("credentials.file required (auto-detect failed: %w)", err)
			}
			c.Credentials.File = filepath.Join(configDir, "edugate", "credentials.json")
		}
	case CredentialStorageTypeBolt:
		if c.Credentials.Bolt == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("credentials.bolt required (auto-detect failed: %w)", err)
			}
			c.Credentials.Bolt = filepath.Join(configDir, "edugate", "credentials.db")
		}
	case CredentialStorageTypeKeyring:
		if c.Credentials.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("credentials.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Credentials.KeyringUser = currentUser.Username
		}
	case CredentialStorageTypeEnv:
		// access_env must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Credentials.Storage {
	case CredentialStorageTypeFile:
		if c.Credentials.File == "" {
			return errors.New("file path required for file storage")
		}
	case CredentialStorageTypeBolt:
		if c.Credentials.Bolt == "" {
			return errors.New("bolt path required for bolt storage")
		}
	case CredentialStorageTypeEnv:
		if c.Credentials.AccessEnv == "" {
			return errors.New("access_env required for env storage")
		}
		// Env storage is read-only, so refreshed credentials cannot be
		// persisted. Omitting refresh_env disables the refresh protocol
		// outright: a 401 then ends the session immediately.
		if c.Credentials.RefreshEnv != "" {
			return errors.New("refresh_env is incompatible with read-only env storage; leave it unset")
		}
	case CredentialStorageTypeKeyring:
		if c.Credentials.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	}

	return nil
}
