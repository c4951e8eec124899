package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Driver names accepted by SPECTROMETER_DRIVER.
const (
	DriverSerial = "serial"
	DriverMock   = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// Spectrometer
	SpectrometerDriver    string
	SerialPort            string
	SerialBaudRate        int
	SerialReadTimeoutMS   int
	MockFailureRate       float64
	IntegrationTimeMicros int
	ScansToAverage        int

	// Timing
	TickInterval int // milliseconds

	// Web Server
	WebServerPort int
	WebRoot       string
	ExportDir     string

	// MQTT
	MQTTEnabled         bool
	MQTTBroker          string
	MQTTClientIDViewer  string
	MQTTClientIDConsole string

	// Topics
	TopicSpectrum string
	TopicStatus   string
	TopicCommand  string

	// Display
	DisplayEnabled        bool
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
}

// globalConfig is the process-wide configuration. InitGlobal sets it once
// under configOnce; Get reads it concurrently under configMu.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when no file is given. The values
// match the instrument's stock behaviour: 20 ms integration, 4 scans averaged,
// 30 ms tick.
func Default() *Config {
	return &Config{
		SpectrometerDriver:    DriverSerial,
		SerialPort:            "/dev/ttyUSB0",
		SerialBaudRate:        115200,
		SerialReadTimeoutMS:   1000,
		IntegrationTimeMicros: 20000,
		ScansToAverage:        4,

		TickInterval: 30,

		WebServerPort: 8080,
		WebRoot:       "web",
		ExportDir:     "exports",

		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDViewer:  "spectrometer-viewer",
		MQTTClientIDConsole: "spectrometer-console",

		TopicSpectrum: "spectrometer/spectrum",
		TopicStatus:   "spectrometer/status",
		TopicCommand:  "spectrometer/command",

		DisplayUpdateInterval: 250,
	}
}

// Load reads the configuration file on top of Default() and returns the result.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parsePositive(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %d", key, n)
	}
	return n, nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// Spectrometer
	case "SPECTROMETER_DRIVER":
		if value != DriverSerial && value != DriverMock {
			return fmt.Errorf("SPECTROMETER_DRIVER must be %q or %q, got %q", DriverSerial, DriverMock, value)
		}
		c.SpectrometerDriver = value
	case "SPECTROMETER_SERIAL_PORT":
		c.SerialPort = value
	case "SPECTROMETER_BAUD_RATE":
		c.SerialBaudRate, err = parsePositive(key, value)
	case "SPECTROMETER_READ_TIMEOUT_MS":
		c.SerialReadTimeoutMS, err = parsePositive(key, value)
	case "MOCK_FAILURE_RATE":
		rate, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return fmt.Errorf("invalid MOCK_FAILURE_RATE %q: %w", value, perr)
		}
		if rate < 0 || rate > 1 {
			return fmt.Errorf("MOCK_FAILURE_RATE must be 0-1, got %g", rate)
		}
		c.MockFailureRate = rate
	case "INTEGRATION_TIME_US":
		c.IntegrationTimeMicros, err = parsePositive(key, value)
	case "SCANS_TO_AVERAGE":
		c.ScansToAverage, err = parsePositive(key, value)

	// Timing
	case "TICK_INTERVAL":
		c.TickInterval, err = parsePositive(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePositive(key, value)
	case "WEB_ROOT":
		c.WebRoot = value
	case "EXPORT_DIR":
		c.ExportDir = value

	// MQTT
	case "MQTT_ENABLED":
		c.MQTTEnabled, err = parseBool(key, value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_VIEWER":
		c.MQTTClientIDViewer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_SPECTRUM":
		c.TopicSpectrum = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_COMMAND":
		c.TopicCommand = value

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parsePositive(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that the fields each enabled component needs are set.
func (c *Config) validate() error {
	if c.SpectrometerDriver == DriverSerial && c.SerialPort == "" {
		return fmt.Errorf("SPECTROMETER_SERIAL_PORT is required for the serial driver")
	}
	if c.ExportDir == "" {
		return fmt.Errorf("EXPORT_DIR is required")
	}
	if c.MQTTEnabled {
		if c.MQTTBroker == "" {
			return fmt.Errorf("MQTT_BROKER is required when MQTT_ENABLED=true")
		}
		if c.TopicSpectrum == "" || c.TopicStatus == "" || c.TopicCommand == "" {
			return fmt.Errorf("TOPIC_SPECTRUM, TOPIC_STATUS and TOPIC_COMMAND are required when MQTT_ENABLED=true")
		}
	}
	return nil
}

// InitGlobal initializes the global configuration. An empty path selects
// Default(). Only the first call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		if configPath == "" {
			globalConfig = Default()
			return
		}
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
