// Package config provides configuration management for dexcount.
package config

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dexcount/internal/packagetree"
	"github.com/dexcount/pkg/compression"
	apperrors "github.com/dexcount/pkg/errors"
)

// EnvPrefix prefixes every environment override, e.g. DEXCOUNT_COUNT_MAX_METHOD_COUNT.
const EnvPrefix = "DEXCOUNT"

// Config holds all configuration for the application.
type Config struct {
	Print     PrintConfig     `mapstructure:"print"`
	Count     CountConfig     `mapstructure:"count"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// PrintConfig holds report rendering options.
type PrintConfig struct {
	Format                  string `mapstructure:"format"` // list, tree, json or yaml
	IncludeClasses          bool   `mapstructure:"include_classes"`
	IncludeClassCount       bool   `mapstructure:"include_class_count"`
	IncludeMethodCount      bool   `mapstructure:"include_method_count"`
	IncludeFieldCount       bool   `mapstructure:"include_field_count"`
	IncludeTotalMethodCount bool   `mapstructure:"include_total_method_count"`
	OrderByMethodCount      bool   `mapstructure:"order_by_method_count"`
	MaxTreeDepth            int    `mapstructure:"max_tree_depth"` // 0 is unlimited
	PrintHeader             bool   `mapstructure:"print_header"`
	Verbose                 bool   `mapstructure:"verbose"`
}

// CountConfig holds counting and threshold options.
type CountConfig struct {
	MaxMethodCount   int    `mapstructure:"max_method_count"` // 0 disables the check
	DexerPath        string `mapstructure:"dexer_path"`
	DexerTimeout     int    `mapstructure:"dexer_timeout"` // in seconds
	RunDexer         bool   `mapstructure:"run_dexer"`     // count referenced refs of AARs
	IncludeSynthetic bool   `mapstructure:"include_synthetic"`
	MappingFile      string `mapstructure:"mapping_file"`
	OutputDir        string `mapstructure:"output_dir"`
	OutputFileName   string `mapstructure:"output_file_name"` // defaults to the artifact name
	Variant          string `mapstructure:"variant"`
	TeamCity         bool   `mapstructure:"teamcity"`
	TeamCitySlug     string `mapstructure:"teamcity_slug"`
	TreeCompression  string `mapstructure:"tree_compression"` // zstd, gzip or none
	TempDir          string `mapstructure:"temp_dir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"` // empty logs to stderr
	Format     string `mapstructure:"format"`      // json or text
}

// StorageConfig holds report publishing configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // none, local, cos or minio
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`   // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`   // e.g., "https" or "http"
	Endpoint  string `mapstructure:"endpoint"` // minio host:port
	UseSSL    bool   `mapstructure:"use_ssl"`
	LocalPath string `mapstructure:"local_path"` // for local storage
	Prefix    string `mapstructure:"prefix"`
}

// HistoryConfig holds run history database configuration.
type HistoryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Path     string `mapstructure:"path"` // sqlite file
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// TelemetryConfig overrides the OTEL_* environment.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	Protocol string `mapstructure:"protocol"` // grpc or http/protobuf
	Insecure bool   `mapstructure:"insecure"`
}

// MetricsConfig holds Prometheus textfile export configuration.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"` // empty disables export
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from the specified file path. A .env file in the
// working directory is loaded into the environment first; environment
// variables override file values.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dexcount")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/dexcount")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !(configPath != "" && os.IsNotExist(err)) {
			return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config file", err)
		}
	}

	return unmarshal(v)
}

// LoadFromReader loads configuration from a byte slice (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to read config", err)
	}
	return unmarshal(v)
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := unmarshal(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "failed to unmarshal config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Print defaults
	v.SetDefault("print.format", "list")
	v.SetDefault("print.include_classes", false)
	v.SetDefault("print.include_class_count", false)
	v.SetDefault("print.include_method_count", true)
	v.SetDefault("print.include_field_count", true)
	v.SetDefault("print.include_total_method_count", false)
	v.SetDefault("print.order_by_method_count", false)
	v.SetDefault("print.max_tree_depth", 0)
	v.SetDefault("print.print_header", false)
	v.SetDefault("print.verbose", false)

	// Count defaults
	v.SetDefault("count.max_method_count", 0)
	v.SetDefault("count.dexer_path", "d8")
	v.SetDefault("count.dexer_timeout", 60)
	v.SetDefault("count.run_dexer", true)
	v.SetDefault("count.include_synthetic", true)
	v.SetDefault("count.mapping_file", "")
	v.SetDefault("count.output_dir", "./build/outputs/dexcount")
	v.SetDefault("count.output_file_name", "")
	v.SetDefault("count.variant", "")
	v.SetDefault("count.teamcity", false)
	v.SetDefault("count.teamcity_slug", "")
	v.SetDefault("count.tree_compression", "zstd")
	v.SetDefault("count.temp_dir", "")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output_path", "")
	v.SetDefault("log.format", "text")

	// Storage defaults
	v.SetDefault("storage.type", "none")
	v.SetDefault("storage.local_path", "./storage")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("storage.secret_id", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.domain", "")
	v.SetDefault("storage.scheme", "https")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "dexcount")

	// History defaults
	v.SetDefault("history.enabled", false)
	v.SetDefault("history.type", "sqlite")
	v.SetDefault("history.path", "./dexcount.db")
	v.SetDefault("history.host", "localhost")
	v.SetDefault("history.port", 0)
	v.SetDefault("history.database", "dexcount")
	v.SetDefault("history.user", "")
	v.SetDefault("history.password", "")
	v.SetDefault("history.max_conns", 5)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "")
	v.SetDefault("telemetry.protocol", "grpc")
	v.SetDefault("telemetry.insecure", false)

	// Metrics defaults
	v.SetDefault("metrics.textfile_path", "")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := packagetree.ParseOutputFormat(c.Print.Format); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "invalid print.format", err)
	}
	if c.Print.MaxTreeDepth < 0 {
		return apperrors.Newf(apperrors.CodeConfigError, "print.max_tree_depth must not be negative: %d", c.Print.MaxTreeDepth)
	}

	if c.Count.MaxMethodCount < 0 {
		return apperrors.Newf(apperrors.CodeConfigError, "count.max_method_count must not be negative: %d", c.Count.MaxMethodCount)
	}
	if c.Count.DexerTimeout < 1 {
		return apperrors.Newf(apperrors.CodeConfigError, "count.dexer_timeout must be at least 1 second")
	}
	if _, err := compression.ParseType(c.Count.TreeCompression); err != nil {
		return apperrors.Wrap(apperrors.CodeConfigError, "invalid count.tree_compression", err)
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported log format: %s", c.Log.Format)
	}

	switch c.Storage.Type {
	case "", "none", "local", "cos", "minio":
	default:
		return apperrors.Newf(apperrors.CodeConfigError, "unsupported storage type: %s", c.Storage.Type)
	}

	if c.History.Enabled {
		switch c.History.Type {
		case "sqlite":
			if c.History.Path == "" {
				return apperrors.Newf(apperrors.CodeConfigError, "history.path is required for sqlite")
			}
		case "postgres", "mysql":
			if c.History.Host == "" {
				return apperrors.Newf(apperrors.CodeConfigError, "history.host is required for %s", c.History.Type)
			}
		default:
			return apperrors.Newf(apperrors.CodeConfigError, "unsupported database type: %s", c.History.Type)
		}
	}

	return nil
}

// OutputFormat returns the parsed print.format. Validate has already
// rejected unknown values.
func (c *Config) OutputFormat() packagetree.OutputFormat {
	f, _ := packagetree.ParseOutputFormat(c.Print.Format)
	return f
}

// PrintOptions converts the print section into renderer options for an
// Android artifact. Callers adjust IsAndroidProject and PrintDeclarations
// for the artifact at hand.
func (c *Config) PrintOptions() packagetree.PrintOptions {
	depth := c.Print.MaxTreeDepth
	if depth <= 0 {
		depth = math.MaxInt32
	}
	return packagetree.PrintOptions{
		IncludeClasses:          c.Print.IncludeClasses,
		IncludeClassCount:       c.Print.IncludeClassCount,
		IncludeMethodCount:      c.Print.IncludeMethodCount,
		IncludeFieldCount:       c.Print.IncludeFieldCount,
		IncludeTotalMethodCount: c.Print.IncludeTotalMethodCount,
		OrderByMethodCount:      c.Print.OrderByMethodCount,
		MaxTreeDepth:            depth,
		PrintHeader:             c.Print.PrintHeader,
		IsAndroidProject:        true,
	}
}

// DexerTimeout returns count.dexer_timeout as a duration.
func (c *Config) DexerTimeout() time.Duration {
	return time.Duration(c.Count.DexerTimeout) * time.Second
}

// TreeCompression returns the parsed count.tree_compression.
func (c *Config) TreeCompression() compression.Type {
	t, _ := compression.ParseType(c.Count.TreeCompression)
	return t
}

// String summarizes the effective configuration without secrets.
func (c *Config) String() string {
	return fmt.Sprintf("format=%s max_method_count=%d storage=%s history=%t telemetry=%t",
		c.Print.Format, c.Count.MaxMethodCount, c.Storage.Type, c.History.Enabled, c.Telemetry.Enabled)
}
