// Package config loads the YAML configuration shared by the server and the
// command line tools.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = "1"

	DefaultPath = "config.yaml"
	PathEnv     = "DRAFTHOUSE_CONFIG"
)

var configLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	configLogger = l
}

// Config represents the complete configuration structure
type Config struct {
	Version  string         `yaml:"version" default:"1"`
	Site     SiteConfig     `yaml:"site"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Render   RenderConfig   `yaml:"render"`
	Storage  StorageConfig  `yaml:"storage"`
	Autosave AutosaveConfig `yaml:"autosave"`
	Client   ClientConfig   `yaml:"client"`
}

type SiteConfig struct {
	Name        string `yaml:"name" default:"Drafthouse"`
	Description string `yaml:"description" default:"Write, autosave, and publish"`
}

type ServerConfig struct {
	Host              string        `yaml:"host" default:"0.0.0.0"`
	Port              string        `yaml:"port" default:"12600" validate:"required,numeric"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" default:"5s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" default:"10s"`
	AllowedOrigins    []string      `yaml:"allowed_origins" default:"*"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LoggingConfig struct {
	Level  string `yaml:"level" default:"info"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

type RenderConfig struct {
	Engine      string `yaml:"engine" default:"mmark" validate:"oneof=mmark classic"`
	SyntaxStyle string `yaml:"syntax_style" default:"gruvbox"`
}

type StorageConfig struct {
	Driver        string         `yaml:"driver" default:"sqlite" validate:"oneof=memory sqlite postgres s3 dynamodb"`
	Compression   string         `yaml:"compression" default:"zstd" validate:"oneof=zstd gzip none"`
	WatchInterval time.Duration  `yaml:"watch_interval" default:"10s" validate:"gte=0"`
	SQLite        SQLiteConfig   `yaml:"sqlite"`
	Postgres      PostgresConfig `yaml:"postgres"`
	S3            S3Config       `yaml:"s3"`
	DynamoDB      DynamoDBConfig `yaml:"dynamodb"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" default:"./drafthouse.db"`
}

type PostgresConfig struct {
	// DSN is usually supplied through DATABASE_DSN.
	DSN string `yaml:"dsn" default:""`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" default:""`
	Prefix          string `yaml:"prefix" default:"posts/"`
	Region          string `yaml:"region" default:"auto"`
	Endpoint        string `yaml:"endpoint" default:""`
	AccessKeyID     string `yaml:"access_key_id" default:""`
	SecretAccessKey string `yaml:"secret_access_key" default:""`
}

type DynamoDBConfig struct {
	Table       string `yaml:"table" default:"posts"`
	Region      string `yaml:"region" default:"us-east-1"`
	Endpoint    string `yaml:"endpoint" default:""`
	CreateTable bool   `yaml:"create_table" default:"false"`
}

type AutosaveConfig struct {
	Debounce time.Duration `yaml:"debounce" default:"5s" validate:"gt=0"`
	// Backstop of 0 disables the backstop timer.
	Backstop time.Duration `yaml:"backstop" default:"30s" validate:"gte=0"`
}

type ClientConfig struct {
	ServerURL string        `yaml:"server_url" default:"http://localhost:12600" validate:"url"`
	Timeout   time.Duration `yaml:"timeout" default:"15s"`
}

var ErrUnsupportedVersion = errors.New("unsupported configuration version")

// Path returns the config file to load: flagValue when set, then
// $DRAFTHOUSE_CONFIG, then config.yaml.
func Path(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads path on top of the defaults. A missing file is not an error.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	config := &Config{}

	// Apply default values first
	applyDefaults(config)

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		configLogger.Info().Str("path", path).Msg("Config file not found, using defaults")
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: %q", ErrUnsupportedVersion, c.Version)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a := c.Autosave
	if a.Backstop != 0 && a.Backstop <= a.Debounce {
		return fmt.Errorf("invalid configuration: autosave.backstop (%s) must exceed autosave.debounce (%s)", a.Backstop, a.Debounce)
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return errors.New("invalid configuration: storage.postgres.dsn or DATABASE_DSN is required")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("invalid configuration: storage.s3.bucket is required")
		}
	}
	return nil
}

// applyEnv lets secrets and deployment specifics come from the environment.
func applyEnv(c *Config) {
	overrides := []struct {
		env string
		dst *string
	}{
		{"DATABASE_DSN", &c.Storage.Postgres.DSN},
		{"S3_ACCESS_KEY_ID", &c.Storage.S3.AccessKeyID},
		{"S3_SECRET_ACCESS_KEY", &c.Storage.S3.SecretAccessKey},
		{"S3_ENDPOINT", &c.Storage.S3.Endpoint},
		{"DRAFTHOUSE_SERVER_URL", &c.Client.ServerURL},
		{"LOG_LEVEL", &c.Logging.Level},
	}

	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.env); ok && v != "" {
			*o.dst = v
		}
	}
}

func ApplyDefaults(config interface{}) {
	applyDefaults(config)
}

var durationType = reflect.TypeOf(time.Duration(0))

func applyDefaults(config interface{}) {
	v := reflect.ValueOf(config)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return
	}

	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.IsValid() || !field.CanSet() {
			continue
		}

		// Recursively apply defaults to nested structs
		if field.Kind() == reflect.Struct {
			applyDefaults(field.Addr().Interface())
			continue
		}

		defaultValue := fieldType.Tag.Get("default")
		if defaultValue == "" {
			continue
		}

		if field.Type() == durationType {
			if d, err := time.ParseDuration(defaultValue); err == nil {
				field.SetInt(int64(d))
			} else {
				configLogger.Warn().Err(err).Str("field_name", fieldType.Name).Msg("Invalid default duration")
			}
			continue
		}

		switch field.Kind() {
		case reflect.String:
			field.SetString(defaultValue)
		case reflect.Bool:
			if val, err := strconv.ParseBool(defaultValue); err == nil {
				field.SetBool(val)
			}
		case reflect.Int, reflect.Int64:
			if val, err := strconv.ParseInt(defaultValue, 10, 64); err == nil {
				field.SetInt(val)
			}
		case reflect.Float64:
			if val, err := strconv.ParseFloat(defaultValue, 64); err == nil {
				field.SetFloat(val)
			}
		case reflect.Slice:
			if field.Len() == 0 && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(defaultValue, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for j, part := range parts {
					slice.Index(j).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		default:
			configLogger.Warn().
				Str("field_name", fieldType.Name).
				Str("field_type", field.Kind().String()).
				Msg("Unsupported field type for default value")
		}
	}
}
