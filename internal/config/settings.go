// Package config loads runtime settings and the schema mapping.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PROFILEFLOW_STORE_DRIVER.
const EnvPrefix = "PROFILEFLOW"

// Settings is the full runtime configuration.
type Settings struct {
	Store    StoreSettings    `mapstructure:"store"`
	Tables   TableSettings    `mapstructure:"tables"`
	Schema   SchemaSettings   `mapstructure:"schema"`
	SMTP     SMTPSettings     `mapstructure:"smtp"`
	Telegram TelegramSettings `mapstructure:"telegram"`
	Blob     BlobSettings     `mapstructure:"blob"`
	Render   RenderSettings   `mapstructure:"render"`
	Metrics  MetricsSettings  `mapstructure:"metrics"`
	Tracing  TracingSettings  `mapstructure:"tracing"`
	Log      LogSettings      `mapstructure:"log"`
	Serve    ServeSettings    `mapstructure:"serve"`
	DryRun   bool             `mapstructure:"dry_run"`
}

// StoreSettings selects the tabular driver.
type StoreSettings struct {
	Driver            string `mapstructure:"driver"`
	SQLitePath        string `mapstructure:"sqlite_path"`
	PostgresDSN       string `mapstructure:"postgres_dsn"`
	SheetsCredentials string `mapstructure:"sheets_credentials"`
}

// TableSettings names the five stores. For the sheets driver each name is
// "<spreadsheet id>[:<tab>]".
type TableSettings struct {
	Raw               string `mapstructure:"raw"`
	Amendment         string `mapstructure:"amendment"`
	Processed         string `mapstructure:"processed"`
	PublicationFemale string `mapstructure:"publication_female"`
	PublicationMale   string `mapstructure:"publication_male"`
}

// SchemaSettings locates the column mapping file.
type SchemaSettings struct {
	File string `mapstructure:"file"`
}

// SMTPSettings configures outbound email.
type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	FromName string `mapstructure:"from_name"`
}

// TelegramSettings configures the channel bot.
type TelegramSettings struct {
	Token  string `mapstructure:"token"`
	ChatID string `mapstructure:"chat_id"`
}

// BlobSettings selects where rendered documents are kept.
type BlobSettings struct {
	Driver string     `mapstructure:"driver"`
	FSRoot string     `mapstructure:"fs_root"`
	S3     S3Settings `mapstructure:"s3"`
}

// S3Settings configures the s3 blob driver.
type S3Settings struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// RenderSettings controls document output.
type RenderSettings struct {
	LocalDir  string `mapstructure:"local_dir"`
	Retention int    `mapstructure:"retention"`
}

// MetricsSettings configures metric export for one-shot runs.
type MetricsSettings struct {
	PushURL string `mapstructure:"push_url"`
	Job     string `mapstructure:"job"`
}

// TracingSettings selects a span exporter: none, json or otlp.
type TracingSettings struct {
	Exporter string `mapstructure:"exporter"`
	Endpoint string `mapstructure:"endpoint"`
}

// LogSettings selects the slog handler.
type LogSettings struct {
	Format string `mapstructure:"format"`
	Level  string `mapstructure:"level"`
}

// ServeSettings configures the HTTP trigger surface.
type ServeSettings struct {
	Addr  string `mapstructure:"addr"`
	Token string `mapstructure:"token"`
}

var defaults = map[string]any{
	"store.driver":              "memory",
	"store.sqlite_path":         "profileflow.db",
	"store.postgres_dsn":        "",
	"store.sheets_credentials":  "",
	"tables.raw":                "raw",
	"tables.amendment":          "amendments",
	"tables.processed":          "processed",
	"tables.publication_female": "publication_female",
	"tables.publication_male":   "publication_male",
	"schema.file":               "schema.yaml",
	"smtp.host":                 "smtp.gmail.com",
	"smtp.port":                 587,
	"smtp.username":             "",
	"smtp.password":             "",
	"smtp.from":                 "",
	"smtp.from_name":            "Al Rawdha Community Matchmaking",
	"telegram.token":            "",
	"telegram.chat_id":          "",
	"blob.driver":               "fs",
	"blob.fs_root":              "./artifacts",
	"blob.s3.bucket":            "",
	"blob.s3.region":            "us-east-1",
	"blob.s3.endpoint":          "",
	"blob.s3.access_key_id":     "",
	"blob.s3.secret_access_key": "",
	"blob.s3.path_style":        false,
	"render.local_dir":          "data",
	"render.retention":          0,
	"metrics.push_url":          "",
	"metrics.job":               "profileflow",
	"tracing.exporter":          "none",
	"tracing.endpoint":          "",
	"log.format":                "text",
	"log.level":                 "info",
	"serve.addr":                ":8080",
	"serve.token":               "",
	"dry_run":                   false,
}

// New returns a viper instance with defaults and PROFILEFLOW_* environment
// bindings applied. Flags may be bound onto it before Load.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads file (or ./profileflow.yaml when file is empty and it exists)
// into v and decodes the result.
func Load(v *viper.Viper, file string) (Settings, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("profileflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return s, s.Validate()
}

// Validate checks enumerated settings.
func (s Settings) Validate() error {
	var errs []error
	switch s.Store.Driver {
	case "memory", "sqlite", "postgres", "sheets":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want memory, sqlite, postgres or sheets", s.Store.Driver))
	}
	switch s.Tracing.Exporter {
	case "", "none", "json":
	case "otlp":
		if s.Tracing.Endpoint == "" {
			errs = append(errs, fmt.Errorf("tracing.endpoint required for otlp exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q: want none, json or otlp", s.Tracing.Exporter))
	}
	if s.Render.Retention < 0 {
		errs = append(errs, fmt.Errorf("render.retention must not be negative"))
	}
	return errors.Join(errs...)
}
