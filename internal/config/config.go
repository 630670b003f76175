package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the sink
type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Storage  StorageConfig
	Redshift RedshiftConfig
	Sink     SinkConfig
	Buffer   BufferConfig
	Journal  JournalConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	Backend   string // "s3" or "local"
	LocalPath string
	// S3/MinIO configuration
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // Custom endpoint for MinIO (e.g., "http://localhost:9000")
	S3AccessKey string // AWS access key (or use AWS_ACCESS_KEY_ID env var)
	S3SecretKey string // AWS secret key (or use AWS_SECRET_ACCESS_KEY env var)
	S3UseSSL    bool
	S3PathStyle bool // Path-style addressing (required for MinIO)
}

type RedshiftConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Table    string // target table, optionally schema-qualified ("public.access_logs")
}

// DSN builds the Postgres-wire connection string for the warehouse.
func (c *RedshiftConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	return u.String()
}

type SinkConfig struct {
	FileType       string // json, tsv, csv, msgpack
	Delimiter      string // overrides the file-type default when set
	RecordLogField string // record field holding the JSON payload (structured-text modes)
	PathPrefix     string // storage key prefix
	TimestampKey   string // strftime pattern appended to the prefix
	UTC            bool   // format the key timestamp in UTC instead of local time
}

type BufferConfig struct {
	MaxRecords    int // seal a chunk after this many records
	MaxBytes      int // seal a chunk after this many buffered bytes
	FlushInterval int // seconds between interval-driven seals
	RetryLimit    int // flush attempts before a chunk is dropped
	RetryWaitMS   int // initial retry backoff in milliseconds
}

type JournalConfig struct {
	Enabled bool
	DBPath  string // SQLite database path
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("RSINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("redshift-sink")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/redshift-sink/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetInt("server.read_timeout"),
			WriteTimeout: v.GetInt("server.write_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Storage: StorageConfig{
			Backend:     v.GetString("storage.backend"),
			LocalPath:   v.GetString("storage.local_path"),
			S3Bucket:    v.GetString("storage.s3_bucket"),
			S3Region:    v.GetString("storage.s3_region"),
			S3Endpoint:  v.GetString("storage.s3_endpoint"),
			S3AccessKey: v.GetString("storage.s3_access_key"),
			S3SecretKey: v.GetString("storage.s3_secret_key"),
			S3UseSSL:    v.GetBool("storage.s3_use_ssl"),
			S3PathStyle: v.GetBool("storage.s3_path_style"),
		},
		Redshift: RedshiftConfig{
			Host:     v.GetString("redshift.host"),
			Port:     v.GetInt("redshift.port"),
			Database: v.GetString("redshift.database"),
			User:     v.GetString("redshift.user"),
			Password: v.GetString("redshift.password"),
			Table:    v.GetString("redshift.table"),
		},
		Sink: SinkConfig{
			FileType:       v.GetString("sink.file_type"),
			Delimiter:      v.GetString("sink.delimiter"),
			RecordLogField: v.GetString("sink.record_log_field"),
			PathPrefix:     v.GetString("sink.path_prefix"),
			TimestampKey:   v.GetString("sink.timestamp_key"),
			UTC:            v.GetBool("sink.utc"),
		},
		Buffer: BufferConfig{
			MaxRecords:    v.GetInt("buffer.max_records"),
			MaxBytes:      v.GetInt("buffer.max_bytes"),
			FlushInterval: v.GetInt("buffer.flush_interval"),
			RetryLimit:    v.GetInt("buffer.retry_limit"),
			RetryWaitMS:   v.GetInt("buffer.retry_wait_ms"),
		},
		Journal: JournalConfig{
			Enabled: v.GetBool("journal.enabled"),
			DBPath:  v.GetString("journal.db_path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the process must not start with.
func (cfg *Config) Validate() error {
	switch cfg.Sink.FileType {
	case "json", "tsv", "csv", "msgpack":
	default:
		return fmt.Errorf("invalid sink.file_type %q (must be json, tsv, csv or msgpack)", cfg.Sink.FileType)
	}

	switch cfg.Storage.Backend {
	case "s3", "local":
	default:
		return fmt.Errorf("invalid storage.backend %q (must be s3 or local)", cfg.Storage.Backend)
	}

	if cfg.Redshift.Table == "" {
		return fmt.Errorf("redshift.table is required")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8089)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Storage defaults
	v.SetDefault("storage.backend", "s3")
	v.SetDefault("storage.local_path", "./data/staging")
	v.SetDefault("storage.s3_region", "us-east-1")
	v.SetDefault("storage.s3_use_ssl", true)
	v.SetDefault("storage.s3_path_style", false)

	// Redshift defaults
	v.SetDefault("redshift.host", "localhost")
	v.SetDefault("redshift.port", 5439)
	v.SetDefault("redshift.database", "dev")
	v.SetDefault("redshift.user", "")
	v.SetDefault("redshift.password", "")
	v.SetDefault("redshift.table", "")

	// Sink defaults
	v.SetDefault("sink.file_type", "json")
	v.SetDefault("sink.delimiter", "")
	v.SetDefault("sink.record_log_field", "log")
	v.SetDefault("sink.path_prefix", "logs/")
	v.SetDefault("sink.timestamp_key", "%Y%m%d-%H%M")
	v.SetDefault("sink.utc", false)

	// Buffer defaults
	v.SetDefault("buffer.max_records", 10000)
	v.SetDefault("buffer.max_bytes", 8*1024*1024)
	v.SetDefault("buffer.flush_interval", 60)
	v.SetDefault("buffer.retry_limit", 5)
	v.SetDefault("buffer.retry_wait_ms", 500)

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.db_path", "./data/redshift-sink.db")
}
