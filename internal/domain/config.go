package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Data        DataConfig      `mapstructure:"data"`
	Cache       CacheConfig     `mapstructure:"cache"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Dataset source kinds
const (
	SourceFiles    = "files"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

// DataConfig selects where the patient datasets are loaded from.
type DataConfig struct {
	Source      string          `mapstructure:"source"` // "files", "sqlite", "postgres"
	Dir         string          `mapstructure:"dir"`
	Files       DataFilesConfig `mapstructure:"files"`
	S3          S3Config        `mapstructure:"s3"`
	SQLitePath  string          `mapstructure:"sqlite_path"`
	PostgresURL string          `mapstructure:"postgres_url"`
	LoadTimeout time.Duration   `mapstructure:"load_timeout"`
}

// DataFilesConfig names each dataset file relative to the data directory or S3 prefix.
type DataFilesConfig struct {
	Patients            string `mapstructure:"patients"`
	Labs                string `mapstructure:"labs"`
	Medications         string `mapstructure:"medications"`
	MedicationKnowledge string `mapstructure:"medication_knowledge"`
	ReferenceRanges     string `mapstructure:"reference_ranges"`
	BodyMap             string `mapstructure:"body_map"`
	MaleGraphic         string `mapstructure:"male_graphic"`
	FemaleGraphic       string `mapstructure:"female_graphic"`
}

// S3Config enables reading the dataset files from an S3-compatible bucket.
// The files source uses S3 when Bucket is set.
type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

// CacheConfig represents report cache configuration. Setting RedisURL adds a shared Redis
// tier behind the in-memory cache.
type CacheConfig struct {
	MaxItems  int           `mapstructure:"max_items"`
	RedisURL  string        `mapstructure:"redis_url"`
	TTL       time.Duration `mapstructure:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// RateLimitConfig represents HTTP rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
