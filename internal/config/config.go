package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// Providers understood by PROVIDER.
const (
	ProviderMock = "mock"
	ProviderNMEA = "nmea"
	ProviderMQTT = "mqtt"
)

// Output formats understood by OUTPUT_FORMAT.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config holds all application configuration values.
type Config struct {
	// Location provider
	Provider           string
	GPSSerialPort      string
	GPSBaudRate        int
	NMEAUEREMeters     float64 // user equivalent range error, turns DOP into metres
	HeadingAccuracyDeg float64 // accuracy attached to HDG readings

	// MQTT
	MQTTBroker           string
	MQTTClientIDRecorder string
	MQTTClientIDGPS      string
	MQTTClientIDConsole  string

	// Topics
	TopicGPS     string
	TopicHeading string
	TopicStatus  string

	// Recording
	SampleIntervalMs int // milliseconds between ticks
	BatchSize        int // samples held in memory before a flush
	OutputDir        string
	OutputFormat     string
	FlushAsync       bool
	PublishStatus    bool

	// Web Server (0 disables)
	WebServerPort int
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Provider:             ProviderMock,
		GPSBaudRate:          9600,
		NMEAUEREMeters:       5,
		HeadingAccuracyDeg:   5,
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDRecorder: "location-recorder",
		MQTTClientIDGPS:      "location-gps-producer",
		MQTTClientIDConsole:  "location-console-subscriber",
		TopicGPS:             "inertial/gps",
		TopicHeading:         "inertial/heading",
		TopicStatus:          "inertial/recorder/status",
		SampleIntervalMs:     20,
		BatchSize:            20,
		OutputDir:            ".",
		OutputFormat:         FormatJSON,
		FlushAsync:           true,
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
// The file is KEY=VALUE per line, '#' starts a comment.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return FromMap(values)
}

// FromMap applies values on top of Default and validates the result.
func FromMap(values map[string]string) (*Config, error) {
	cfg := Default()

	// sorted so errors are reported deterministically
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(values[key])); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Location provider
	case "PROVIDER":
		c.Provider = strings.ToLower(value)
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate
	case "NMEA_UERE_METERS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid NMEA_UERE_METERS %q: %w", value, err)
		}
		if v <= 0 {
			return fmt.Errorf("NMEA_UERE_METERS must be positive, got %v", v)
		}
		c.NMEAUEREMeters = v
	case "HEADING_ACCURACY_DEG":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid HEADING_ACCURACY_DEG %q: %w", value, err)
		}
		c.HeadingAccuracyDeg = v

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_RECORDER":
		c.MQTTClientIDRecorder = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_HEADING":
		c.TopicHeading = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Recording
	case "SAMPLE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_INTERVAL_MS %q: %w", value, err)
		}
		if interval <= 0 {
			return fmt.Errorf("SAMPLE_INTERVAL_MS must be positive, got %d", interval)
		}
		c.SampleIntervalMs = interval
	case "BATCH_SIZE":
		size, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid BATCH_SIZE %q: %w", value, err)
		}
		if size <= 0 {
			return fmt.Errorf("BATCH_SIZE must be positive, got %d", size)
		}
		c.BatchSize = size
	case "OUTPUT_DIR":
		c.OutputDir = value
	case "OUTPUT_FORMAT":
		c.OutputFormat = strings.ToLower(value)
	case "FLUSH_ASYNC":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid FLUSH_ASYNC %q: %w", value, err)
		}
		c.FlushAsync = b
	case "PUBLISH_STATUS":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid PUBLISH_STATUS %q: %w", value, err)
		}
		c.PublishStatus = b

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		if port < 0 || port > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", port)
		}
		c.WebServerPort = port

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that the combination of values is usable.
func (c *Config) validate() error {
	switch c.Provider {
	case ProviderMock:
	case ProviderNMEA:
		if c.GPSSerialPort == "" {
			return fmt.Errorf("GPS_SERIAL_PORT is required for PROVIDER=nmea")
		}
		if c.GPSBaudRate <= 0 {
			return fmt.Errorf("GPS_BAUD_RATE is required for PROVIDER=nmea")
		}
	case ProviderMQTT:
		if c.TopicGPS == "" || c.TopicHeading == "" {
			return fmt.Errorf("TOPIC_GPS and TOPIC_HEADING are required for PROVIDER=mqtt")
		}
	default:
		return fmt.Errorf("PROVIDER must be one of mock, nmea, mqtt, got %q", c.Provider)
	}

	if c.OutputFormat != FormatJSON && c.OutputFormat != FormatYAML {
		return fmt.Errorf("OUTPUT_FORMAT must be json or yaml, got %q", c.OutputFormat)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("OUTPUT_DIR is required")
	}
	if (c.Provider == ProviderMQTT || c.PublishStatus) && c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
