package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string   `mapstructure:"PORT"`
	Env                 string   `mapstructure:"ENV"`
	DatabaseURL         string   `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32    `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer          string   `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string   `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string   `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string   `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string `mapstructure:"CORS_ORIGINS"`
	EncryptionKey       string   `mapstructure:"ENCRYPTION_KEY"`
	EncryptionKeyVer    int      `mapstructure:"ENCRYPTION_KEY_VERSION"`
	EncryptionPrevKeys  string   `mapstructure:"ENCRYPTION_PREVIOUS_KEYS"`
	LoginMaxAttempts    int      `mapstructure:"LOGIN_MAX_ATTEMPTS"`
	LoginWindowMinutes  int      `mapstructure:"LOGIN_WINDOW_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ENCRYPTION_KEY_VERSION", 1)
	v.SetDefault("LOGIN_MAX_ATTEMPTS", 5)
	v.SetDefault("LOGIN_WINDOW_MINUTES", 15)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("AUTH_SIGNING_KEY")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("ENCRYPTION_KEY")
	v.BindEnv("ENCRYPTION_KEY_VERSION")
	v.BindEnv("ENCRYPTION_PREVIOUS_KEYS")
	v.BindEnv("LOGIN_MAX_ATTEMPTS")
	v.BindEnv("LOGIN_WINDOW_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; requests without a token get")
		log.Println("WARNING: a default provider identity. Do NOT use this in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_ISSUER for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PreviousKeys parses ENCRYPTION_PREVIOUS_KEYS, a comma-separated list of
// "version:hexkey" pairs kept around for decrypting data written under
// rotated-out keys. Returns a map of version to raw 32-byte key material.
func (c *Config) PreviousKeys() (map[int][]byte, error) {
	keys := make(map[int][]byte)
	if c.EncryptionPrevKeys == "" {
		return keys, nil
	}
	for _, pair := range strings.Split(c.EncryptionPrevKeys, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("ENCRYPTION_PREVIOUS_KEYS entry %q must be \"version:hexkey\"", pair)
		}
		ver, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_PREVIOUS_KEYS entry %q has invalid version: %w", pair, err)
		}
		raw, err := hex.DecodeString(parts[1])
		if err != nil {
			return nil, fmt.Errorf("ENCRYPTION_PREVIOUS_KEYS v%d is not valid hex: %w", ver, err)
		}
		if len(raw) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_PREVIOUS_KEYS v%d must be 32 bytes (64 hex chars), got %d bytes", ver, len(raw))
		}
		keys[ver] = raw
	}
	return keys, nil
}

// Validate checks that the configuration is safe to run. In production the
// field-encryption key is required and must be a valid 64-character hex string
// (32 bytes when decoded), and real JWT authentication must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthIssuer == "" && c.AuthSigningKey == "" {
		return fmt.Errorf(
			"AUTH_ISSUER or AUTH_SIGNING_KEY must be set when ENV is %q. "+
				"Refusing to start without authentication configuration", c.Env)
	}

	if c.IsProduction() && c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required in production")
	}
	if c.EncryptionKey != "" {
		keyBytes, err := hex.DecodeString(c.EncryptionKey)
		if err != nil {
			return fmt.Errorf("ENCRYPTION_KEY is not valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes (64 hex chars), got %d bytes", len(keyBytes))
		}
	}
	if c.EncryptionKeyVer < 1 {
		return fmt.Errorf("ENCRYPTION_KEY_VERSION must be >= 1, got %d", c.EncryptionKeyVer)
	}
	if _, err := c.PreviousKeys(); err != nil {
		return err
	}

	if c.LoginMaxAttempts < 1 {
		return fmt.Errorf("LOGIN_MAX_ATTEMPTS must be >= 1, got %d", c.LoginMaxAttempts)
	}
	if c.LoginWindowMinutes < 1 {
		return fmt.Errorf("LOGIN_WINDOW_MINUTES must be >= 1, got %d", c.LoginWindowMinutes)
	}

	return nil
}
