package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env string
	} `mapstructure:"app"`

	HTTP struct {
		Addr           string
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"http"`

	Postgres struct {
		DSN         string
		MaxConns    int32 `mapstructure:"max_conns"`
		AutoMigrate bool  `mapstructure:"auto_migrate"`
	} `mapstructure:"postgres"`

	Ledger struct {
		LockTimeout   time.Duration `mapstructure:"lock_timeout"`
		ApplyTimeout  time.Duration `mapstructure:"apply_timeout"`
		RetryAttempts uint64        `mapstructure:"retry_attempts"`
	} `mapstructure:"ledger"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.allowed_origins", []string{"*"})
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.auto_migrate", true)
	v.SetDefault("ledger.lock_timeout", 5*time.Second)
	v.SetDefault("ledger.apply_timeout", 15*time.Second)
	v.SetDefault("ledger.retry_attempts", 3)
	v.SetDefault("metrics.enabled", true)
}

// Load reads .env (if present), then the optional YAML file at path, then
// SKLAD_* environment variables, later sources winning.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SKLAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return c, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("failed to decode config: %w", err)
	}

	if c.Postgres.DSN == "" {
		c.Postgres.DSN = os.Getenv("DATABASE_URL")
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required (SKLAD_POSTGRES_DSN or DATABASE_URL)")
	}
	if c.Ledger.LockTimeout < 0 || c.Ledger.ApplyTimeout < 0 {
		return errors.New("ledger timeouts must not be negative")
	}
	return nil
}
