package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel              zapcore.Level `yaml:"log_level"`
	Link                  LinkConfig    `mapstructure:"link" yaml:"link"`
	MQTT                  MQTTConfig    `mapstructure:"mqtt" yaml:"mqtt"`
	Journal               JournalConfig `mapstructure:"journal" yaml:"journal"`
	PublishIntervalMillis uint32        `mapstructure:"publish_interval_millis" yaml:"publish_interval_millis"`
	Port                  uint          `mapstructure:"port" yaml:"port"`
	HttpLog               bool          `mapstructure:"http_log" yaml:"http_log"`
}

type LinkConfig struct {
	Driver                         string `mapstructure:"driver" yaml:"driver"`
	URL                            string `mapstructure:"url" yaml:"url"`
	Speed                          uint   `mapstructure:"speed" yaml:"speed"`
	UnitId                         uint8  `mapstructure:"unit_id" yaml:"unit_id"`
	TimeoutMillis                  uint32 `mapstructure:"timeout_millis" yaml:"timeout_millis"`
	PollIntervalMillis             uint32 `mapstructure:"poll_interval_millis" yaml:"poll_interval_millis"`
	RecvAddress                    uint16 `mapstructure:"recv_address" yaml:"recv_address"`
	SendAddress                    uint16 `mapstructure:"send_address" yaml:"send_address"`
	TickIntervalMillis             uint32 `mapstructure:"tick_interval_millis" yaml:"tick_interval_millis"`
	KeepAliveMillis                uint32 `mapstructure:"keep_alive_millis" yaml:"keep_alive_millis"`
	MuteAck                        bool   `mapstructure:"mute_ack" yaml:"mute_ack"`
	OutboundEnabled                bool   `mapstructure:"outbound_enabled" yaml:"outbound_enabled"`
	DumpValues                     bool   `mapstructure:"dump_values" yaml:"dump_values"`
	InverterAllowsContactorClosing bool   `mapstructure:"inverter_allows_contactor_closing" yaml:"inverter_allows_contactor_closing"`
}

type MQTTConfig struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Username          string `yaml:"username"`
	Password          string `yaml:"password"`
	BaseTopic         string `mapstructure:"base_topic" yaml:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable" yaml:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic" yaml:"ha_discovery_topic"`
}

// JournalConfig enables the CBOR event journal.
type JournalConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

// Redacted returns a copy safe to print.
func (cfg Config) Redacted() Config {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	return cfg
}
