package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for a service
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	JWT       JWTConfig
	Webhook   WebhookConfig
	Analytics AnalyticsConfig
	Auth      AuthConfig
}

// ServiceConfig holds service-level settings
type ServiceConfig struct {
	Name string
	Port string
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka connection settings
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// JWTConfig holds token signing settings
type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// WebhookConfig holds the outbound webhook endpoints.
// SubmitURL receives completed intake submissions (CRM side),
// AnalyticsURL is the event collector.
type WebhookConfig struct {
	SubmitURL    string
	AnalyticsURL string
}

// AnalyticsConfig holds analytics engine tuning
type AnalyticsConfig struct {
	MaxStoredEvents     int64
	HiddenThreshold     time.Duration
	InactivityThreshold time.Duration
	SessionIdleExpiry   time.Duration
	ForwardQueueSize    int
	RecentDropOffs      int
}

// AuthConfig holds the dashboard operator credential
type AuthConfig struct {
	OperatorEmail        string
	OperatorPasswordHash string
}

var defaultPorts = map[string]string{
	"funnel":    "8080",
	"collector": "8090",
}

// Load reads configuration for the named service from the environment.
func Load(service string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name: service,
			Port: getEnv(strings.ToUpper(service)+"_PORT", defaultPorts[service]),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "funnel_"+service),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			GroupID: getEnv("KAFKA_GROUP_ID", service+"-group"),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Webhook: WebhookConfig{
			SubmitURL:    getEnv("SUBMIT_WEBHOOK_URL", "https://wayfindercollective.app.n8n.cloud/webhook/funnel-intake"),
			AnalyticsURL: getEnv("ANALYTICS_WEBHOOK_URL", "https://wayfindercollective.app.n8n.cloud/webhook/funnel-analytics"),
		},
		Analytics: AnalyticsConfig{
			MaxStoredEvents:     int64(getEnvInt("ANALYTICS_MAX_EVENTS", 10000)),
			HiddenThreshold:     getEnvDuration("ANALYTICS_HIDDEN_THRESHOLD", 5*time.Second),
			InactivityThreshold: getEnvDuration("ANALYTICS_INACTIVITY_THRESHOLD", 30*time.Second),
			SessionIdleExpiry:   getEnvDuration("ANALYTICS_SESSION_EXPIRY", 2*time.Hour),
			ForwardQueueSize:    getEnvInt("ANALYTICS_FORWARD_QUEUE", 256),
			RecentDropOffs:      getEnvInt("ANALYTICS_RECENT_DROPOFFS", 10),
		},
		Auth: AuthConfig{
			OperatorEmail:        getEnv("DASHBOARD_EMAIL", ""),
			OperatorPasswordHash: getEnv("DASHBOARD_PASSWORD_HASH", ""),
		},
	}

	if cfg.Service.Port == "" {
		return nil, fmt.Errorf("no port configured for service %q", service)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
