package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ufmn/followup/internal/domain/followup"
	"github.com/ufmn/followup/internal/platform/db"
)

// Source kinds.
const (
	SourceDir      = "dir"
	SourcePostgres = "postgres"
)

type Config struct {
	Env            string        `mapstructure:"ENV" validate:"required,oneof=development test production"`
	Port           string        `mapstructure:"PORT" validate:"required,numeric"`
	LogLevel       string        `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
	Source         string        `mapstructure:"SOURCE" validate:"oneof=dir postgres"`
	DataDir        string        `mapstructure:"DATA_DIR"`
	SchemaFile     string        `mapstructure:"SCHEMA_FILE"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL" validate:"omitempty,url"`
	DBSchema       string        `mapstructure:"DB_SCHEMA" validate:"required"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS" validate:"gte=1"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS" validate:"gte=0,ltefield=DBMaxConns"`
	Persist        bool          `mapstructure:"PERSIST"`
	Workers        int           `mapstructure:"WORKERS" validate:"gte=0,lte=256"`
	ResampleFreq   string        `mapstructure:"RESAMPLE_FREQ" validate:"frequency"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT" validate:"gt=0"`
}

var keys = []string{
	"ENV",
	"PORT",
	"LOG_LEVEL",
	"SOURCE",
	"DATA_DIR",
	"SCHEMA_FILE",
	"DATABASE_URL",
	"DB_SCHEMA",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"PERSIST",
	"WORKERS",
	"RESAMPLE_FREQ",
	"REQUEST_TIMEOUT",
}

// Load reads the configuration from the environment and an optional .env
// file in the working directory, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SOURCE", SourceDir)
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("DB_SCHEMA", "followup")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("PERSIST", false)
	v.SetDefault("WORKERS", 4)
	v.SetDefault("RESAMPLE_FREQ", "D")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	// Unmarshal only sees keys viper knows about.
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env file is fine.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the service is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// NeedsDatabase reports whether any configured component talks to Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Source == SourcePostgres || c.Persist
}

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("frequency", func(fl validator.FieldLevel) bool {
		_, err := followup.ParseFrequency(fl.Field().String())
		return err == nil
	})
	return v
}()

// Validate checks field ranges and the rules that span fields: reading from
// or persisting to Postgres needs DATABASE_URL, and the directory source
// needs DATA_DIR.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value())
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when SOURCE=postgres or PERSIST=true")
	}
	if c.Source == SourceDir && c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required when SOURCE=dir")
	}
	if !db.ValidSchema(c.DBSchema) {
		return fmt.Errorf("DB_SCHEMA %q is not a valid schema name", c.DBSchema)
	}
	return nil
}
