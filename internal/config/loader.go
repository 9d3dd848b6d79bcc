package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported values for DatabaseDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures environment driven configuration values for the scheduler service.
type Config struct {
	HTTPPort        int
	ShutdownTimeout time.Duration
	LogLevel        slog.Level

	DatabaseDriver string
	SQLiteDSN      string
	PostgresURL    string

	KafkaBrokers string
	KafkaTopic   string

	OTelEnabled     bool
	OTelEndpoint    string
	OTelSampleRatio float64
}

// fileConfig is the optional YAML layer named by SCHEDULER_CONFIG_FILE.
type fileConfig struct {
	HTTP struct {
		Port            int    `yaml:"port"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"http"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLiteDSN   string `yaml:"sqlite_dsn"`
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"database"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
	Telemetry struct {
		Enabled     *bool    `yaml:"enabled"`
		Endpoint    string   `yaml:"endpoint"`
		SampleRatio *float64 `yaml:"sample_ratio"`
	} `yaml:"telemetry"`
}

// values flattens the file into the variable names the environment uses.
func (f fileConfig) values() map[string]string {
	values := map[string]string{
		"SCHEDULER_SHUTDOWN_TIMEOUT": f.HTTP.ShutdownTimeout,
		"SCHEDULER_LOG_LEVEL":        f.Log.Level,
		"SCHEDULER_DATABASE_DRIVER":  f.Database.Driver,
		"SCHEDULER_SQLITE_DSN":       f.Database.SQLiteDSN,
		"SCHEDULER_POSTGRES_URL":     f.Database.PostgresURL,
		"SCHEDULER_KAFKA_BROKERS":    strings.Join(f.Kafka.Brokers, ","),
		"SCHEDULER_KAFKA_TOPIC":      f.Kafka.Topic,
		"SCHEDULER_OTEL_ENDPOINT":    f.Telemetry.Endpoint,
	}
	if f.HTTP.Port != 0 {
		values["SCHEDULER_HTTP_PORT"] = strconv.Itoa(f.HTTP.Port)
	}
	if f.Telemetry.Enabled != nil {
		values["SCHEDULER_OTEL_ENABLED"] = strconv.FormatBool(*f.Telemetry.Enabled)
	}
	if f.Telemetry.SampleRatio != nil {
		values["SCHEDULER_OTEL_SAMPLE_RATIO"] = strconv.FormatFloat(*f.Telemetry.SampleRatio, 'f', -1, 64)
	}
	return values
}

// Load parses configuration values from the current process environment.
//
// Values are layered: defaults, then the YAML file named by
// SCHEDULER_CONFIG_FILE, then environment variables. A .env file (or the file
// named by SCHEDULER_ENV_FILE) is loaded first without overriding variables
// that are already set. Missing and invalid entries are reported together with
// localized messages.
func Load() (Config, error) {
	envFile := strings.TrimSpace(os.Getenv("SCHEDULER_ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf(".env ファイルを読み込めません: %w", err)
	}

	fileValues := map[string]string{}
	if path := strings.TrimSpace(os.Getenv("SCHEDULER_CONFIG_FILE")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("設定ファイルを読み込めません: %w", err)
		}
		var file fileConfig
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Config{}, fmt.Errorf("設定ファイルの形式が不正です: %w", err)
		}
		fileValues = file.values()
	}

	lookup := func(key string) string {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			return value
		}
		return strings.TrimSpace(fileValues[key])
	}
	return parse(lookup)
}

func parse(lookup func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
		DatabaseDriver:  DriverSQLite,
		SQLiteDSN:       "file:scheduler.db",
		KafkaTopic:      "lesson.bookings",
		OTelEndpoint:    "localhost:4317",
		OTelSampleRatio: 1,
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if portValue := lookup("SCHEDULER_HTTP_PORT"); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "SCHEDULER_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if timeoutValue := lookup("SCHEDULER_SHUTDOWN_TIMEOUT"); timeoutValue != "" {
		timeout, err := time.ParseDuration(timeoutValue)
		if err != nil || timeout <= 0 {
			invalid = append(invalid, "SCHEDULER_SHUTDOWN_TIMEOUT")
		} else {
			cfg.ShutdownTimeout = timeout
		}
	}

	if levelValue := lookup("SCHEDULER_LOG_LEVEL"); levelValue != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(levelValue)); err != nil {
			invalid = append(invalid, "SCHEDULER_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if driver := strings.ToLower(lookup("SCHEDULER_DATABASE_DRIVER")); driver != "" {
		switch driver {
		case DriverSQLite, DriverPostgres:
			cfg.DatabaseDriver = driver
		default:
			invalid = append(invalid, "SCHEDULER_DATABASE_DRIVER")
		}
	}

	if dsn := lookup("SCHEDULER_SQLITE_DSN"); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.PostgresURL = lookup("SCHEDULER_POSTGRES_URL")
	if cfg.DatabaseDriver == DriverPostgres && cfg.PostgresURL == "" {
		missing = append(missing, "SCHEDULER_POSTGRES_URL")
	}

	cfg.KafkaBrokers = lookup("SCHEDULER_KAFKA_BROKERS")
	if topic := lookup("SCHEDULER_KAFKA_TOPIC"); topic != "" {
		cfg.KafkaTopic = topic
	}

	if enabledValue := lookup("SCHEDULER_OTEL_ENABLED"); enabledValue != "" {
		enabled, err := strconv.ParseBool(enabledValue)
		if err != nil {
			invalid = append(invalid, "SCHEDULER_OTEL_ENABLED")
		} else {
			cfg.OTelEnabled = enabled
		}
	}

	if endpoint := lookup("SCHEDULER_OTEL_ENDPOINT"); endpoint != "" {
		cfg.OTelEndpoint = endpoint
	}

	if ratioValue := lookup("SCHEDULER_OTEL_SAMPLE_RATIO"); ratioValue != "" {
		ratio, err := strconv.ParseFloat(ratioValue, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			invalid = append(invalid, "SCHEDULER_OTEL_SAMPLE_RATIO")
		} else {
			cfg.OTelSampleRatio = ratio
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}
