package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const ENV_PREFIX = "batlink"

var validDrivers = []string{"modbus", "goburrow", "memory"}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "warn")
	v.SetDefault("link.driver", "modbus")
	v.SetDefault("link.url", "rtu:///dev/ttyUSB0")
	v.SetDefault("link.speed", 9600)
	v.SetDefault("link.unit_id", 1)
	v.SetDefault("link.timeout_millis", 1000)
	v.SetDefault("link.poll_interval_millis", 200)
	v.SetDefault("link.recv_address", 0)
	v.SetDefault("link.send_address", 0)
	v.SetDefault("link.tick_interval_millis", 1)
	v.SetDefault("link.keep_alive_millis", 5000)
	v.SetDefault("link.mute_ack", false)
	v.SetDefault("link.outbound_enabled", true)
	v.SetDefault("link.dump_values", false)
	v.SetDefault("link.inverter_allows_contactor_closing", true)
	v.SetDefault("mqtt.ha_discovery_enable", false)
	v.SetDefault("mqtt.base_topic", "batlink")
	v.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	v.SetDefault("journal.enable", false)
	v.SetDefault("journal.path", "events.cbor")
	v.SetDefault("publish_interval_millis", 5000)
	v.SetDefault("port", 8080)
}

// Load reads defaults, BATLINK_* variables and the optional yaml file into a
// validated Config.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {

	// alias PORT => BATLINK_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("BATLINK_PORT", port)
	}

	SetDefaults(v)

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile == "" {
		cfgFile = os.Getenv("CONFIG_FILE")
	}
	// if defined, try to load config from yaml file
	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			v.SetConfigFile(cfgFile)

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.LogLevel = parseLogLevel(v.GetString("log_level"))

	// check and fix base topic
	baseTopic, err := CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks bounds.
func (cfg *Config) Validate() error {
	if !slices.Contains(validDrivers, cfg.Link.Driver) {
		return fmt.Errorf("config param link.driver must be one of %v", validDrivers)
	}
	if cfg.Link.Driver != "memory" && cfg.Link.URL == "" {
		return errors.New("config param link.url is required")
	}
	if cfg.Link.TickIntervalMillis < 1 {
		return errors.New("config param link.tick_interval_millis should be >= 1")
	}
	if cfg.Link.TimeoutMillis < 10 {
		return errors.New("config param link.timeout_millis should be >= 10")
	}
	if cfg.PublishIntervalMillis < 1000 {
		return errors.New("config param publish_interval_millis should be >= 1000")
	}
	if cfg.Journal.Enable && cfg.Journal.Path == "" {
		return errors.New("config param journal.path is required when the journal is enabled")
	}
	return nil
}

func parseLogLevel(level string) zapcore.Level {
	switch level {
	case "trace":
		return zap.DebugLevel
	case "debug":
		return zap.DebugLevel
	case "info":
		return zap.InfoLevel
	case "error":
		return zap.ErrorLevel
	case "warn":
		return zap.WarnLevel
	case "fatal":
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}
