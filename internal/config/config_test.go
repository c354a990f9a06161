package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, zap.WarnLevel, cfg.LogLevel)
	assert.Equal(t, "modbus", cfg.Link.Driver)
	assert.Equal(t, uint32(1), cfg.Link.TickIntervalMillis)
	assert.Equal(t, uint32(5000), cfg.Link.KeepAliveMillis)
	assert.True(t, cfg.Link.OutboundEnabled)
	assert.True(t, cfg.Link.InverterAllowsContactorClosing)
	assert.Equal(t, "batlink", cfg.MQTT.BaseTopic)
	assert.Equal(t, uint32(5000), cfg.PublishIntervalMillis)
	assert.Equal(t, uint(8080), cfg.Port)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
log_level: debug
link:
  driver: goburrow
  url: tcp://10.0.0.20:502
  mute_ack: true
mqtt:
  base_topic: Battery_Bridge
`), 0o600))
	t.Setenv("BATLINK_LINK_DUMP_VALUES", "true")
	t.Setenv("BATLINK_PORT", "")
	t.Setenv("PORT", "9090")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)

	assert.Equal(t, zap.DebugLevel, cfg.LogLevel)
	assert.Equal(t, "goburrow", cfg.Link.Driver)
	assert.Equal(t, "tcp://10.0.0.20:502", cfg.Link.URL)
	assert.True(t, cfg.Link.MuteAck)
	assert.True(t, cfg.Link.DumpValues)
	assert.Equal(t, "battery_bridge", cfg.MQTT.BaseTopic)
	assert.Equal(t, uint(9090), cfg.Port)
}

func TestLoadRejectsInvalidTopic(t *testing.T) {
	t.Setenv("BATLINK_MQTT_BASE_TOPIC", "bat/link")

	_, err := Load(viper.New(), "")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Link: LinkConfig{
				Driver:             "modbus",
				URL:                "rtu:///dev/ttyUSB0",
				TickIntervalMillis: 1,
				TimeoutMillis:      1000,
			},
			PublishIntervalMillis: 5000,
		}
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Link.Driver = "can"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Link.URL = ""
	assert.Error(t, cfg.Validate())
	cfg.Link.Driver = "memory"
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Link.TickIntervalMillis = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.PublishIntervalMillis = 500
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Journal.Enable = true
	assert.Error(t, cfg.Validate())
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := CheckMQTTTopic("BatLink_01")
	require.NoError(t, err)
	assert.Equal(t, "batlink_01", topic)

	_, err = CheckMQTTTopic("bat link")
	assert.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := Config{MQTT: MQTTConfig{Username: "user", Password: "secret"}}
	r := cfg.Redacted()
	assert.Equal(t, "*redacted*", r.MQTT.Password)
	assert.Equal(t, "secret", cfg.MQTT.Password)
}
