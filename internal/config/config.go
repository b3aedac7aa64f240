package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config holds the application's configuration, resolved once at boot.
type Config struct {
	HTTPPort       string
	AllowedOrigins []string

	GCPProject     string
	SecretsEnabled bool

	InfluxDBURL         string
	InfluxDBToken       string
	InfluxDBOrg         string
	InfluxDBBucket      string
	InfluxDBMeasurement string
	InlineQueryParams   bool

	ReadingsRowLimit     int
	ReadingsDefaultHours int
	ReadingsMaxHours     int

	DocumentStoreDriver string
	CodeStoreDriver     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RegistrationTTL time.Duration

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	LogLevel  string
	LogFormat string
}

var errSecretsAlreadyMerged = errors.New("secrets already merged into configuration")

// Store is the process-wide key/value configuration. Keys are colon
// segmented ("influxdb:url"); environment variables map onto them by
// upper-casing and replacing ":" with "_" (INFLUXDB_URL).
type Store struct {
	v *viper.Viper

	mu     sync.Mutex
	merged bool
}

// NewStore creates a Store that reads defaults and the environment.
func NewStore() *Store {
	v := viper.NewWithOptions(viper.KeyDelimiter(":"))
	v.SetEnvKeyReplacer(strings.NewReplacer(":", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return &Store{v: v}
}

// LoadConfig loads an optional .env file into the environment and returns
// the store backed by it.
func LoadConfig(envFile string) *Store {
	var err error
	if envFile != "" {
		err = godotenv.Load(envFile)
	} else {
		err = godotenv.Load()
	}
	if err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}
	return NewStore()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http:port", "8080")
	v.SetDefault("http:allowed_origins", "http://localhost:5173")
	v.SetDefault("gcp:project", "farm-iot-project")
	v.SetDefault("secrets:enabled", true)
	v.SetDefault("influxdb:measurement", "sensor_readings")
	v.SetDefault("influxdb:inline_params", true)
	v.SetDefault("readings:row_limit", 5000)
	v.SetDefault("readings:default_hours", 24)
	v.SetDefault("readings:max_hours", 8760)
	v.SetDefault("documentstore:driver", "firestore")
	v.SetDefault("codestore:driver", "redis")
	v.SetDefault("redis:addr", "localhost:6379")
	v.SetDefault("redis:db", 0)
	v.SetDefault("registration:ttl", 15*time.Minute)
	v.SetDefault("mqtt:client_id", "farmiot-ingest")
	v.SetDefault("mqtt:topic", "sensors/+/data")
	v.SetDefault("log:level", "info")
	v.SetDefault("log:format", "text")
}

// GetString looks up a single key.
func (s *Store) GetString(key string) string {
	return s.v.GetString(key)
}

// GetBool looks up a single boolean key.
func (s *Store) GetBool(key string) bool {
	return s.v.GetBool(key)
}

// Set overrides a key. Intended for boot code and tests.
func (s *Store) Set(key string, value any) {
	s.v.Set(key, value)
}

// MergeSecrets writes vault-provided values over every other source. It may
// only run once per process; configuration is not refreshed afterwards.
func (s *Store) MergeSecrets(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.merged {
		return errSecretsAlreadyMerged
	}
	for k, val := range values {
		s.v.Set(k, val)
	}
	s.merged = true
	return nil
}

// Resolve builds the typed Config and checks the keys the service cannot
// start without.
func (s *Store) Resolve() (Config, error) {
	v := s.v
	cfg := Config{
		HTTPPort:             v.GetString("http:port"),
		AllowedOrigins:       splitList(v.GetString("http:allowed_origins")),
		GCPProject:           v.GetString("gcp:project"),
		SecretsEnabled:       v.GetBool("secrets:enabled"),
		InfluxDBURL:          v.GetString("influxdb:url"),
		InfluxDBToken:        v.GetString("influxdb:token"),
		InfluxDBOrg:          v.GetString("influxdb:org"),
		InfluxDBBucket:       v.GetString("influxdb:bucket"),
		InfluxDBMeasurement:  v.GetString("influxdb:measurement"),
		InlineQueryParams:    v.GetBool("influxdb:inline_params"),
		ReadingsRowLimit:     v.GetInt("readings:row_limit"),
		ReadingsDefaultHours: v.GetInt("readings:default_hours"),
		ReadingsMaxHours:     v.GetInt("readings:max_hours"),
		DocumentStoreDriver:  strings.ToLower(v.GetString("documentstore:driver")),
		CodeStoreDriver:      strings.ToLower(v.GetString("codestore:driver")),
		RedisAddr:            v.GetString("redis:addr"),
		RedisPassword:        v.GetString("redis:password"),
		RedisDB:              v.GetInt("redis:db"),
		RegistrationTTL:      v.GetDuration("registration:ttl"),
		MQTTBroker:           v.GetString("mqtt:broker"),
		MQTTClientID:         v.GetString("mqtt:client_id"),
		MQTTTopic:            v.GetString("mqtt:topic"),
		LogLevel:             v.GetString("log:level"),
		LogFormat:            v.GetString("log:format"),
	}

	if cfg.InfluxDBURL == "" || cfg.InfluxDBToken == "" || cfg.InfluxDBOrg == "" || cfg.InfluxDBBucket == "" {
		return Config{}, fmt.Errorf("InfluxDB configuration is incomplete. Please provide influxdb:url, influxdb:token, influxdb:org and influxdb:bucket (env INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET or vault secrets)")
	}
	if cfg.ReadingsRowLimit <= 0 {
		return Config{}, fmt.Errorf("readings:row_limit must be positive, got %d", cfg.ReadingsRowLimit)
	}
	if cfg.ReadingsDefaultHours <= 0 || cfg.ReadingsDefaultHours > cfg.ReadingsMaxHours {
		return Config{}, fmt.Errorf("readings:default_hours must be between 1 and readings:max_hours (%d), got %d", cfg.ReadingsMaxHours, cfg.ReadingsDefaultHours)
	}
	if cfg.RegistrationTTL <= 0 {
		return Config{}, fmt.Errorf("registration:ttl must be positive, got %s", cfg.RegistrationTTL)
	}
	switch cfg.DocumentStoreDriver {
	case "firestore", "memory":
	default:
		return Config{}, fmt.Errorf("unknown documentstore:driver %q", cfg.DocumentStoreDriver)
	}
	switch cfg.CodeStoreDriver {
	case "redis", "memory":
	default:
		return Config{}, fmt.Errorf("unknown codestore:driver %q", cfg.CodeStoreDriver)
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
