package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"ppg-vitals/internal/measurement"
)

// ErrInvalidConfig некорректное значение параметра
var ErrInvalidConfig = errors.New("invalid config")

// Config конфигурация сервиса
type Config struct {
	Server struct {
		Port string
	}

	Redis struct {
		Addr      string
		Password  string
		DB        int
		Retention time.Duration // TTL истории измерений
	}

	// NATS включается непустым URL
	NATS struct {
		URL            string
		FramesSubject  string
		EventsSubject  string
		ClientName     string
		ReconnectDelay time.Duration
	}

	Analyzer struct {
		Workers   int
		QueueSize int
	}

	Measurement measurement.Config

	Log struct {
		Level  string
		Format string
	}
}

// Load загружает конфигурацию из environment
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Server.Port = getEnv("SERVER_PORT", "8080")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvAsInt("REDIS_DB", 0)
	cfg.Redis.Retention = time.Duration(getEnvAsInt("HISTORY_RETENTION_HOURS", 720)) * time.Hour

	cfg.NATS.URL = getEnv("NATS_URL", "")
	cfg.NATS.FramesSubject = getEnv("NATS_FRAMES_SUBJECT", "ppg.frames")
	cfg.NATS.EventsSubject = getEnv("NATS_EVENTS_SUBJECT", "ppg.events")
	cfg.NATS.ClientName = getEnv("NATS_CLIENT_NAME", "ppg-vitals")
	cfg.NATS.ReconnectDelay = 2 * time.Second

	cfg.Analyzer.Workers = getEnvAsInt("WORKERS", 4)
	cfg.Analyzer.QueueSize = getEnvAsInt("QUEUE_SIZE", 1000)

	m := measurement.DefaultConfig()
	m.DurationMs = getEnvAsFloat("MEASUREMENT_DURATION_MS", m.DurationMs)
	m.CalibrationMs = getEnvAsFloat("CALIBRATION_DURATION_MS", m.CalibrationMs)
	m.SamplingRateHz = getEnvAsFloat("SAMPLING_RATE_HZ", m.SamplingRateHz)
	m.MinHr = getEnvAsInt("MIN_HR", m.MinHr)
	m.MaxHr = getEnvAsInt("MAX_HR", m.MaxHr)
	m.AdaptiveThreshold = getEnvAsBool("ADAPTIVE_THRESHOLD", m.AdaptiveThreshold)
	m.EnhancedProcessing = getEnvAsBool("ENHANCED_PROCESSING", m.EnhancedProcessing)
	m.HistoryCapacity = getEnvAsInt("HISTORY_CAPACITY", m.HistoryCapacity)
	m.WindowCapacity = getEnvAsInt("WINDOW_CAPACITY", m.WindowCapacity)
	m.MinConfidence = getEnvAsInt("MIN_CONFIDENCE", m.MinConfidence)
	m.MaxSessionAgeMs = getEnvAsFloat("MAX_SESSION_AGE_MS", m.MaxSessionAgeMs)
	m.SpO2Jitter = getEnvAsFloat("SPO2_JITTER", m.SpO2Jitter)
	m.ReportIntervalMs = getEnvAsFloat("REPORT_INTERVAL_MS", m.ReportIntervalMs)
	cfg.Measurement = m

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет согласованность параметров
func (c *Config) Validate() error {
	m := c.Measurement
	switch {
	case c.Analyzer.Workers < 1:
		return fmt.Errorf("%w: WORKERS must be positive, got %d", ErrInvalidConfig, c.Analyzer.Workers)
	case c.Analyzer.QueueSize < 1:
		return fmt.Errorf("%w: QUEUE_SIZE must be positive, got %d", ErrInvalidConfig, c.Analyzer.QueueSize)
	case m.SamplingRateHz <= 0:
		return fmt.Errorf("%w: SAMPLING_RATE_HZ must be positive", ErrInvalidConfig)
	case m.DurationMs <= 0:
		return fmt.Errorf("%w: MEASUREMENT_DURATION_MS must be positive", ErrInvalidConfig)
	case m.CalibrationMs < 0 || m.CalibrationMs >= m.DurationMs:
		return fmt.Errorf("%w: CALIBRATION_DURATION_MS must be in [0, %.0f)", ErrInvalidConfig, m.DurationMs)
	case m.MinHr <= 0 || m.MaxHr <= m.MinHr:
		return fmt.Errorf("%w: heart rate range [%d, %d]", ErrInvalidConfig, m.MinHr, m.MaxHr)
	case m.HistoryCapacity < 1:
		return fmt.Errorf("%w: HISTORY_CAPACITY must be positive", ErrInvalidConfig)
	case m.WindowCapacity < 30:
		return fmt.Errorf("%w: WINDOW_CAPACITY must be at least 30", ErrInvalidConfig)
	case m.MinConfidence < 0 || m.MinConfidence >= 100:
		return fmt.Errorf("%w: MIN_CONFIDENCE must be in [0, 100)", ErrInvalidConfig)
	case m.SpO2Jitter < 0:
		return fmt.Errorf("%w: SPO2_JITTER must not be negative", ErrInvalidConfig)
	}
	return nil
}

// getEnv получает environment variable или возвращает default
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt получает environment variable как int
func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat получает environment variable как float64
func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool получает environment variable как bool
func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
