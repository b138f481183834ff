package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Auth       AuthConfig       `mapstructure:"auth"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Presence   PresenceConfig   `mapstructure:"presence"`
	Inactivity InactivityConfig `mapstructure:"inactivity"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
}

type ServerConfig struct {
	Port    int           `mapstructure:"port" default:"8000"`
	Mode    string        `mapstructure:"mode"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	Timezone        string        `mapstructure:"timezone"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret      string `mapstructure:"jwt_secret"`
	JWTExpiryHours int    `mapstructure:"jwt_expiry_hours"`
	JWTIssuer      string `mapstructure:"jwt_issuer"`
}

type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// PresenceConfig controls the heartbeat and staleness behavior of presence
// records. StalenessThreshold must comfortably exceed HeartbeatInterval or
// every user flaps offline between heartbeats.
type PresenceConfig struct {
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	StalenessThreshold time.Duration `mapstructure:"staleness_threshold"`
	RefreshInterval    time.Duration `mapstructure:"refresh_interval"`
}

// InactivityConfig holds the warn/expire thresholds of the inactivity
// watchdog, both counted from the same last-activity timestamp.
type InactivityConfig struct {
	WarnAfter   time.Duration `mapstructure:"warn_after"`
	ExpireAfter time.Duration `mapstructure:"expire_after"`
}

type AnalyticsConfig struct {
	RetentionWindow time.Duration `mapstructure:"retention_window"`
	LeaderboardSize int           `mapstructure:"leaderboard_size"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

func LoadConfig(configPath string) (*Config, error) {
	var config Config

	// If CONFIG_FILE environment variable is set, use it
	if envConfigFile := os.Getenv("CONFIG_FILE"); envConfigFile != "" {
		configPath = envConfigFile
	}

	// Initialize viper
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	// If configPath is provided, use it directly
	if configPath != "" {
		dir := filepath.Dir(configPath)
		file := filepath.Base(configPath)
		ext := filepath.Ext(file)
		name := strings.TrimSuffix(file, ext)

		v.AddConfigPath(dir)
		v.SetConfigName(name)
	} else {
		// Fallback to default locations
		_, filename, _, _ := runtime.Caller(0)
		pkgConfigDir := filepath.Dir(filename)
		projectRoot := filepath.Join(pkgConfigDir, "..", "..")

		v.AddConfigPath(pkgConfigDir)
		v.AddConfigPath(projectRoot)
		v.AddConfigPath(filepath.Join(projectRoot, "pkg", "config"))
		v.SetConfigName("config")
	}

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error loading config file: %v", err)
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Override with environment variables if they exist
	envVars := map[string]string{
		"database.host":                "DB_HOST",
		"database.port":                "DB_PORT",
		"database.user":                "DB_USER",
		"database.password":            "DB_PASSWORD",
		"database.name":                "DB_NAME",
		"database.sslmode":             "DB_SSLMODE",
		"server.mode":                  "SERVER_MODE",
		"server.timeout":               "SERVER_TIMEOUT",
		"redis.host":                   "REDIS_HOST",
		"redis.port":                   "REDIS_PORT",
		"redis.password":               "REDIS_PASSWORD",
		"redis.db":                     "REDIS_DB",
		"auth.jwt_secret":              "JWT_SECRET",
		"auth.jwt_issuer":              "JWT_ISSUER",
		"auth.jwt_expiry_hours":        "JWT_EXPIRY_HOURS",
		"presence.heartbeat_interval":  "PRESENCE_HEARTBEAT_INTERVAL",
		"presence.staleness_threshold": "PRESENCE_STALENESS_THRESHOLD",
		"presence.refresh_interval":    "PRESENCE_REFRESH_INTERVAL",
		"inactivity.warn_after":        "INACTIVITY_WARN_AFTER",
		"inactivity.expire_after":      "INACTIVITY_EXPIRE_AFTER",
		"analytics.retention_window":   "ANALYTICS_RETENTION_WINDOW",
		"analytics.leaderboard_size":   "ANALYTICS_LEADERBOARD_SIZE",
		"analytics.cache_ttl":          "ANALYTICS_CACHE_TTL",
		"logging.level":                "LOG_LEVEL",
		"logging.format":               "LOG_FORMAT",
	}

	for configKey, envVar := range envVars {
		if value := os.Getenv(envVar); value != "" {
			// Handle special cases for type conversion
			switch envVar {
			case "DB_PORT", "REDIS_PORT", "REDIS_DB", "JWT_EXPIRY_HOURS", "ANALYTICS_LEADERBOARD_SIZE":
				if intVal, err := strconv.Atoi(value); err == nil {
					v.Set(configKey, intVal)
				}
			case "SERVER_TIMEOUT", "PRESENCE_HEARTBEAT_INTERVAL", "PRESENCE_STALENESS_THRESHOLD",
				"PRESENCE_REFRESH_INTERVAL", "INACTIVITY_WARN_AFTER", "INACTIVITY_EXPIRE_AFTER",
				"ANALYTICS_RETENTION_WINDOW", "ANALYTICS_CACHE_TTL":
				if d, err := time.ParseDuration(value); err == nil {
					v.Set(configKey, d)
				}
			default:
				v.Set(configKey, value)
			}
		}
	}

	// Unmarshal config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	return &config, nil
}

// setDefaults seeds the engine timings so a minimal config file still
// produces a working service.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.timeout", 5*time.Second)
	v.SetDefault("presence.heartbeat_interval", 15*time.Second)
	v.SetDefault("presence.staleness_threshold", 60*time.Second)
	v.SetDefault("presence.refresh_interval", 5*time.Second)
	v.SetDefault("inactivity.warn_after", 300*time.Second)
	v.SetDefault("inactivity.expire_after", 600*time.Second)
	v.SetDefault("analytics.retention_window", 30*24*time.Hour)
	v.SetDefault("analytics.leaderboard_size", 3)
	v.SetDefault("analytics.cache_ttl", 5*time.Second)
}
