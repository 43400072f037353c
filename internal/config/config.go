// Package config loads engine configuration from defaults, an optional
// YAML file and VSPTD_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/vsptd/internal/catalog"
	"github.com/roach88/vsptd/internal/rule"
	"github.com/roach88/vsptd/internal/triple"
)

// EnvPrefix prefixes every environment override, e.g. VSPTD_LOGGER_LEVEL.
const EnvPrefix = "VSPTD"

// Config holds the entire engine configuration.
type Config struct {
	Logger   LoggerConfig           `mapstructure:"logger" yaml:"logger"`
	Keywords rule.Keywords          `mapstructure:"keywords" yaml:"keywords"`
	Metadata catalog.MetadataSchema `mapstructure:"metadata" yaml:"metadata"`
	Result   ResultConfig           `mapstructure:"result" yaml:"result"`
	Cache    CacheConfig            `mapstructure:"cache" yaml:"cache"`
	Store    StoreConfig            `mapstructure:"store" yaml:"store"`
}

// LoggerConfig configures the slog logger and optional log file rotation.
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// ResultConfig names the attribute a find action projects, and the prefix
// of the triplets it returns.
type ResultConfig struct {
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
	Name   string `mapstructure:"name" yaml:"name"`
}

// CacheConfig bounds the resolver caches.
type CacheConfig struct {
	Tables      int `mapstructure:"tables" yaml:"tables"`
	Columns     int `mapstructure:"columns" yaml:"columns"`
	Connections int `mapstructure:"connections" yaml:"connections"`
}

// StoreConfig configures store calls.
type StoreConfig struct {
	// Timeout bounds each store call. Zero means no deadline.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	// Logger
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// Keywords
	kw := rule.DefaultKeywords()
	v.SetDefault("keywords.if", kw.If)
	v.SetDefault("keywords.then", kw.Then)
	v.SetDefault("keywords.terminator", kw.Terminator)
	v.SetDefault("keywords.find", kw.Find)
	v.SetDefault("keywords.insert", kw.Insert)
	v.SetDefault("keywords.delete", kw.Delete)
	v.SetDefault("keywords.or", kw.Or)
	v.SetDefault("keywords.and", kw.And)
	v.SetDefault("keywords.not", kw.Not)

	// Metadata schema
	md := catalog.DefaultMetadataSchema()
	v.SetDefault("metadata.agents_table", md.AgentsTable)
	v.SetDefault("metadata.agent_name_column", md.AgentNameColumn)
	v.SetDefault("metadata.agent_table_column", md.AgentTableColumn)
	v.SetDefault("metadata.vocabulary_table", md.VocabularyTable)
	v.SetDefault("metadata.vocabulary_prefix_column", md.VocabularyPrefixColumn)
	v.SetDefault("metadata.vocabulary_name_column", md.VocabularyNameColumn)
	v.SetDefault("metadata.vocabulary_agent_column", md.VocabularyAgentColumn)
	v.SetDefault("metadata.vocabulary_column_column", md.VocabularyColumnColumn)

	// Result
	v.SetDefault("result.prefix", "E")
	v.SetDefault("result.name", "NM")

	// Caches
	v.SetDefault("cache.tables", 4)
	v.SetDefault("cache.columns", 8)
	v.SetDefault("cache.connections", 8)

	// Store
	v.SetDefault("store.timeout", "0s")
}

// NewViper returns a viper instance with defaults and environment
// overrides bound.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration. An empty path uses only defaults and the
// environment; a named file that cannot be read is an error.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return NewConfigFromViper(v)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := NewConfigFromViper(func() *viper.Viper {
		v := viper.New()
		SetDefaults(v)
		return v
	}())
	if err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return cfg
}

// NewConfigFromViper decodes and validates v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if _, err := rule.NewGrammar(c.Keywords); err != nil {
		return fmt.Errorf("keywords: %w", err)
	}
	if err := c.Metadata.Validate(); err != nil {
		return err
	}
	if !triple.IsPrefix(c.Result.Prefix) {
		return fmt.Errorf("result.prefix %q is not a valid prefix", c.Result.Prefix)
	}
	if c.Result.Name == "" {
		return fmt.Errorf("result.name must not be empty")
	}
	if c.Cache.Tables <= 0 || c.Cache.Columns <= 0 || c.Cache.Connections <= 0 {
		return fmt.Errorf("cache sizes must be positive, got tables=%d columns=%d connections=%d",
			c.Cache.Tables, c.Cache.Columns, c.Cache.Connections)
	}
	if c.Store.Timeout < 0 {
		return fmt.Errorf("store.timeout must not be negative")
	}
	return nil
}
