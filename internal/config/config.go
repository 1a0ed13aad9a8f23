package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/visual-health-insight/internal/domain"
)

// EnvPrefix is prepended to every environment override, e.g. HEALTH_INSIGHT_DATA_DIR.
const EnvPrefix = "HEALTH_INSIGHT"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager. When configFile is empty the usual search
// paths are tried and a missing file is not an error.
func NewManager(configFile string) (*Manager, error) {
	m := &Manager{configFile: configFile}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/health-insight/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// Data defaults
	v.SetDefault("data.source", domain.SourceFiles)
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.files.patients", "patients.json")
	v.SetDefault("data.files.labs", "patient_labs.csv")
	v.SetDefault("data.files.medications", "patient_medications.csv")
	v.SetDefault("data.files.medication_knowledge", "medications_database.json")
	v.SetDefault("data.files.reference_ranges", "test_reference_ranges.json")
	v.SetDefault("data.files.body_map", "body_system_mapping.json")
	v.SetDefault("data.files.male_graphic", "homo_sapiens_male.svg")
	v.SetDefault("data.files.female_graphic", "homo_sapiens_female.svg")
	v.SetDefault("data.s3.bucket", "")
	v.SetDefault("data.s3.prefix", "")
	v.SetDefault("data.s3.region", "us-east-1")
	v.SetDefault("data.s3.endpoint", "")
	v.SetDefault("data.s3.path_style", false)
	v.SetDefault("data.sqlite_path", "./data/health.db")
	v.SetDefault("data.postgres_url", "")
	v.SetDefault("data.load_timeout", "30s")

	// Cache defaults
	v.SetDefault("cache.max_items", 256)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl", "10m")
	v.SetDefault("cache.key_prefix", "health-insight:report:")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.rps", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetDataConfig returns dataset source configuration
func (m *Manager) GetDataConfig() *domain.DataConfig {
	return &m.config.Data
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	// Validate data source configuration
	switch config.Data.Source {
	case domain.SourceFiles:
		if config.Data.Dir == "" && config.Data.S3.Bucket == "" {
			return fmt.Errorf("data directory or S3 bucket is required for the files source")
		}
		if config.Data.Files.MaleGraphic == "" && config.Data.Files.FemaleGraphic == "" {
			return fmt.Errorf("at least one anatomy graphic file is required")
		}
	case domain.SourceSQLite:
		if config.Data.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite source")
		}
	case domain.SourcePostgres:
		if config.Data.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for the postgres source")
		}
	default:
		return fmt.Errorf("invalid data source: %s", config.Data.Source)
	}
	if config.Data.LoadTimeout <= 0 {
		return fmt.Errorf("data load timeout must be positive")
	}

	// Validate cache configuration
	if config.Cache.MaxItems <= 0 {
		return fmt.Errorf("cache max items must be positive: %d", config.Cache.MaxItems)
	}
	if config.Cache.RedisURL != "" && config.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive when redis is enabled")
	}

	if config.RateLimit.Enabled && (config.RateLimit.RPS <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive when enabled")
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	if f := strings.ToLower(config.Logging.Format); f != "json" && f != "text" {
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	return nil
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == ""
}
