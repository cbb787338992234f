// Package config loads service settings from defaults, a .env file, the
// environment and an optional YAML file, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "RAG"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Llama     LlamaConfig     `mapstructure:"llama"`
	Store     StoreConfig     `mapstructure:"store"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Chunker   ChunkerConfig   `mapstructure:"chunker"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr      string `mapstructure:"addr" validate:"required"`
	StaticDir string `mapstructure:"static_dir" validate:"required"`
	UploadDir string `mapstructure:"upload_dir" validate:"required"`
	// MaxUploadMB bounds multipart bodies.
	MaxUploadMB int `mapstructure:"max_upload_mb" validate:"min=1"`
}

type LlamaConfig struct {
	URL       string        `mapstructure:"url" validate:"required,url"`
	MaxTokens int           `mapstructure:"max_tokens" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"min=0"`
}

type StoreConfig struct {
	Backend    string `mapstructure:"backend" validate:"oneof=memory postgres"`
	Collection string `mapstructure:"collection" validate:"required"`
	AllowReset bool   `mapstructure:"allow_reset"`
	Workers    int    `mapstructure:"workers" validate:"min=1"`
}

type PostgresConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port" validate:"min=0,max=65535"`
	User    string `mapstructure:"user"`
	Pass    string `mapstructure:"pass"`
	DBName  string `mapstructure:"db_name"`
	SSLMode string `mapstructure:"ssl_mode" validate:"oneof=disable allow prefer require verify-ca verify-full"`
}

// DSN renders a pgx connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Pass, p.DBName, p.SSLMode)
}

type ChunkerConfig struct {
	Size int `mapstructure:"size" validate:"min=1"`
}

type RetrievalConfig struct {
	TopK int `mapstructure:"top_k" validate:"min=1"`
}

type LoaderConfig struct {
	InboxDir   string        `mapstructure:"inbox_dir" validate:"required"`
	ArchiveDir string        `mapstructure:"archive_dir" validate:"required"`
	BadDir     string        `mapstructure:"bad_dir" validate:"required"`
	Settle     time.Duration `mapstructure:"settle" validate:"gt=0"`
	Interval   time.Duration `mapstructure:"interval" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

var defaults = map[string]any{
	"server.addr":          ":8000",
	"server.static_dir":    "static",
	"server.upload_dir":    "uploads",
	"server.max_upload_mb": 32,

	"llama.url":        "http://127.0.0.1:8989",
	"llama.max_tokens": 1000,
	"llama.timeout":    "120s",

	"store.backend":     "memory",
	"store.collection":  "documents",
	"store.allow_reset": false,
	"store.workers":     4,

	"postgres.host":     "localhost",
	"postgres.port":     5432,
	"postgres.user":     "postgres",
	"postgres.pass":     "",
	"postgres.db_name":  "rag",
	"postgres.ssl_mode": "disable",

	"chunker.size":    500,
	"retrieval.top_k": 5,

	"loader.inbox_dir":   "inbox",
	"loader.archive_dir": "archive",
	"loader.bad_dir":     "bad",
	"loader.settle":      "2s",
	"loader.interval":    "1s",

	"log.level":  "info",
	"log.format": "console",
}

// Env names the service used before the RAG_ prefix existed. They are
// consulted after the prefixed name.
var legacyEnv = map[string]string{
	"server.addr":      "SERVER_ADDR",
	"postgres.host":    "PG_HOST",
	"postgres.port":    "PG_PORT",
	"postgres.user":    "PG_USER",
	"postgres.pass":    "PG_PASS",
	"postgres.db_name": "PG_DB_NAME",
	"llama.url":        "LLM_URL",
}

var validate = validator.New()

// Load resolves the configuration. path may be empty; a missing .env is fine.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(path string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints plus the ones that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Backend == "postgres" && c.Postgres.Host == "" {
		return errors.New("invalid config: postgres backend needs postgres.host")
	}
	if u, err := url.Parse(c.Llama.URL); err == nil && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid config: llama.url scheme %q", u.Scheme)
	}
	return nil
}
