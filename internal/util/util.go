package util

import (
	"github.com/berfenger/batlink2mqtt/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Link: config.LinkConfig{
			Driver:                         "memory",
			TimeoutMillis:                  100,
			PollIntervalMillis:             10,
			TickIntervalMillis:             1,
			KeepAliveMillis:                5000,
			OutboundEnabled:                true,
			InverterAllowsContactorClosing: true,
		},
		MQTT: config.MQTTConfig{
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "batlink",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		PublishIntervalMillis: 5000,
		Port:                  8080,
	}
}
