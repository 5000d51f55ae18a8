// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"

	DefaultListenAddr = ":8080"
	DefaultLogLevel   = "info"
	DefaultDatabase   = "nexusvault"
)

// DefaultEnvFile is read by Load when no path is given.
const DefaultEnvFile = ".env"

type Config struct {
	Env     string
	Store   Store
	Payload Payload
	Server  Server
	Logger  Logger
}

// Store locates the record store.
type Store struct {
	URL      string
	Key      string
	Database string
}

// Payload locates the sealed secret bundle.
type Payload struct {
	// Location is an inline payload, a file path or an s3:// URL.
	Location string
	// TokenKey verifies JWT-form payloads.
	TokenKey   string
	S3Region   string
	S3Endpoint string
}

type Server struct {
	ListenAddr string
}

type Logger struct {
	Level string
}

// bindings maps viper keys to environment variables, most specific first.
var bindings = map[string][]string{
	"env":                 {"NEXUS_ENV", "APP_ENV"},
	"store.url":           {"NEXUS_STORE_URL", "SUPABASE_URL", "NEXT_PUBLIC_SUPABASE_URL"},
	"store.key":           {"NEXUS_STORE_KEY", "SUPABASE_ANON_KEY", "NEXT_PUBLIC_SUPABASE_ANON_KEY"},
	"store.database":      {"NEXUS_STORE_DATABASE"},
	"payload.location":    {"NEXUS_PAYLOAD"},
	"payload.token_key":   {"NEXUS_PAYLOAD_TOKEN_KEY"},
	"payload.s3_region":   {"NEXUS_S3_REGION", "AWS_REGION"},
	"payload.s3_endpoint": {"NEXUS_S3_ENDPOINT"},
	"server.listen_addr":  {"NEXUS_LISTEN_ADDR"},
	"logger.level":        {"NEXUS_LOG_LEVEL", "LOG_LEVEL"},
}

// New returns a viper instance with defaults and environment bindings.
// Commands bind their flags onto it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("env", EnvProd)
	v.SetDefault("store.database", DefaultDatabase)
	v.SetDefault("server.listen_addr", DefaultListenAddr)
	v.SetDefault("logger.level", DefaultLogLevel)
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
	return v
}

// LoadEnvFile loads path (DefaultEnvFile when empty) into the process
// environment without overriding variables that are already set. A
// missing default file is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Load reads envFile and the environment into a Config.
func Load(envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return FromViper(New())
}

// FromViper builds a Config from v and validates it.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Env: strings.ToLower(strings.TrimSpace(v.GetString("env"))),
		Store: Store{
			URL:      strings.TrimSpace(v.GetString("store.url")),
			Key:      strings.TrimSpace(v.GetString("store.key")),
			Database: v.GetString("store.database"),
		},
		Payload: Payload{
			Location:   strings.TrimSpace(v.GetString("payload.location")),
			TokenKey:   v.GetString("payload.token_key"),
			S3Region:   v.GetString("payload.s3_region"),
			S3Endpoint: v.GetString("payload.s3_endpoint"),
		},
		Server: Server{ListenAddr: v.GetString("server.listen_addr")},
		Logger: Logger{Level: strings.ToLower(v.GetString("logger.level"))},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown environments and log levels.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvLocal, EnvDev, EnvProd:
	default:
		return fmt.Errorf("unknown environment %q (want %s, %s or %s)", c.Env, EnvLocal, EnvDev, EnvProd)
	}
	switch c.Logger.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logger.Level)
	}
	return nil
}
