// Package config loads and validates application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the points API server configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Points   PointsConfig   `mapstructure:"points"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// PointsConfig contains the reward policy and reconciliation settings.
// DailyCap and PointsPerSwap are the single source of truth for the policy;
// every component reads them from here.
type PointsConfig struct {
	DailyCap      int           `mapstructure:"daily_cap"`
	PointsPerSwap string        `mapstructure:"points_per_swap"`
	QuizReward    string        `mapstructure:"quiz_reward"`
	DemoAddress   string        `mapstructure:"demo_address"`
	SettleDelay   time.Duration `mapstructure:"settle_delay"`
}

// AuthConfig contains admin boundary authentication settings. An empty
// JWT secret leaves the admin routes open (testnet default).
type AuthConfig struct {
	AdminJWTSecret string `mapstructure:"admin_jwt_secret"`
	AdminJWTIssuer string `mapstructure:"admin_jwt_issuer"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "60s")
	viper.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.database", "testnet_points")

	// Points policy defaults
	viper.SetDefault("points.daily_cap", 5)
	viper.SetDefault("points.points_per_swap", "0.5")
	viper.SetDefault("points.quiz_reward", "10")
	viper.SetDefault("points.demo_address", "0x0000000000000000000000000000000000000de0")
	viper.SetDefault("points.settle_delay", "500ms")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output_path", "stdout")
}

func validate(config *Config) error {
	if config.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if config.Points.DailyCap < 1 {
		return fmt.Errorf("points.daily_cap must be at least 1")
	}
	if config.Points.PointsPerSwap == "" {
		return fmt.Errorf("points.points_per_swap is required")
	}
	if config.Points.DemoAddress == "" {
		return fmt.Errorf("points.demo_address is required")
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
