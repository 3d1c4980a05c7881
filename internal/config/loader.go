package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmedmhosni/roastify/internal/db"
	"github.com/ahmedmhosni/roastify/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ROASTIFY_REMOTE_PASSWORD.
const EnvPrefix = "ROASTIFY"

// Config is the full application configuration.
type Config struct {
	Local  db.Config
	Remote db.Config
	Server ServerConfig
	Auth   AuthConfig
	Mirror MirrorConfig
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// AuthConfig configures bearer token issuing and checking.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// MirrorConfig configures `roastify mirror`.
type MirrorConfig struct {
	Manifest        string
	Strategy        string
	BatchSize       int
	Timeout         time.Duration
	LockKey         int64
	TimestampColumn string
}

// Default returns the configuration used when no file or env override is present.
func Default() Config {
	local := db.DefaultConfig()
	remote := db.DefaultConfig()
	remote.SSLMode = "require"
	return Config{
		Local:  local,
		Remote: remote,
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Mirror: MirrorConfig{
			Manifest:        "mirror.yaml",
			Strategy:        "row-count",
			BatchSize:       100,
			Timeout:         30 * time.Minute,
			LockKey:         727274,
			TimestampColumn: "updated_at",
		},
	}
}

var dbKeys = []string{"host", "port", "user", "password", "dbname", "sslmode", "max_conns"}

// Load reads config.yaml from configPath (if present) and applies ROASTIFY_* env overrides.
func Load(configPath string) (Config, error) {
	// Start with default
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // allow environment overrides

	for _, section := range []string{"local", "remote"} {
		for _, key := range dbKeys {
			_ = v.BindEnv(section + "." + key)
		}
	}
	for _, key := range []string{
		"server.addr", "server.allowed_origins", "server.read_timeout", "server.write_timeout", "server.idle_timeout",
		"auth.jwt_secret", "auth.token_ttl",
		"mirror.manifest", "mirror.strategy", "mirror.batch_size", "mirror.timeout", "mirror.lock_key", "mirror.timestamp_column",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found? Just log it, use defaults + env
		logger.Default.Info("no config.yaml found, using defaults and env vars")
	} else {
		logger.Default.Info("loaded %s", v.ConfigFileUsed())
	}

	applyDB(v, "local", &cfg.Local)
	applyDB(v, "remote", &cfg.Remote)

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	}
	if v.IsSet("server.read_timeout") {
		cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	}
	if v.IsSet("server.write_timeout") {
		cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	}
	if v.IsSet("server.idle_timeout") {
		cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	}

	if v.IsSet("auth.jwt_secret") {
		cfg.Auth.JWTSecret = v.GetString("auth.jwt_secret")
	}
	if v.IsSet("auth.token_ttl") {
		cfg.Auth.TokenTTL = v.GetDuration("auth.token_ttl")
	}

	if v.IsSet("mirror.manifest") {
		cfg.Mirror.Manifest = v.GetString("mirror.manifest")
	}
	if v.IsSet("mirror.strategy") {
		cfg.Mirror.Strategy = v.GetString("mirror.strategy")
	}
	if v.IsSet("mirror.batch_size") {
		cfg.Mirror.BatchSize = v.GetInt("mirror.batch_size")
	}
	if v.IsSet("mirror.timeout") {
		cfg.Mirror.Timeout = v.GetDuration("mirror.timeout")
	}
	if v.IsSet("mirror.lock_key") {
		cfg.Mirror.LockKey = v.GetInt64("mirror.lock_key")
	}
	if v.IsSet("mirror.timestamp_column") {
		cfg.Mirror.TimestampColumn = v.GetString("mirror.timestamp_column")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// splitList flattens comma-separated entries, as env values arrive as one string.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func applyDB(v *viper.Viper, section string, cfg *db.Config) {
	// Override defaults if values exist
	if v.IsSet(section + ".host") {
		cfg.Host = v.GetString(section + ".host")
	}
	if v.IsSet(section + ".port") {
		cfg.Port = v.GetInt(section + ".port")
	}
	if v.IsSet(section + ".user") {
		cfg.User = v.GetString(section + ".user")
	}
	if v.IsSet(section + ".password") {
		cfg.Password = v.GetString(section + ".password")
	}
	if v.IsSet(section + ".dbname") {
		cfg.DBName = v.GetString(section + ".dbname")
	}
	if v.IsSet(section + ".sslmode") {
		cfg.SSLMode = v.GetString(section + ".sslmode")
	}
	if v.IsSet(section + ".max_conns") {
		cfg.MaxConns = v.GetInt32(section + ".max_conns")
	}
}

// Validate rejects values that would make a run misbehave rather than fail loudly.
func (c Config) Validate() error {
	for name, d := range map[string]db.Config{"local": c.Local, "remote": c.Remote} {
		if strings.TrimSpace(d.Host) == "" {
			return fmt.Errorf("%s.host is required", name)
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("%s.port %d is out of range", name, d.Port)
		}
	}
	if c.Mirror.BatchSize <= 0 {
		return fmt.Errorf("mirror.batch_size must be positive, got %d", c.Mirror.BatchSize)
	}
	if c.Mirror.Timeout <= 0 {
		return fmt.Errorf("mirror.timeout must be positive, got %s", c.Mirror.Timeout)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	return nil
}

// Target returns the local or remote database config by name.
func (c Config) Target(name string) (db.Config, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "local":
		return c.Local, nil
	case "remote":
		return c.Remote, nil
	default:
		return db.Config{}, fmt.Errorf("unknown target %q (want local or remote)", name)
	}
}
