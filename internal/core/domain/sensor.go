package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE                     = "bridge"
	SENSOR_ID_BATTERY_SOC                      = "battery_soc"
	SENSOR_ID_BATTERY_SOH                      = "battery_soh"
	SENSOR_ID_BATTERY_VOLTAGE                  = "battery_voltage"
	SENSOR_ID_BATTERY_CURRENT                  = "battery_current"
	SENSOR_ID_BATTERY_TOTAL_CAPACITY           = "battery_total_capacity"
	SENSOR_ID_BATTERY_REMAINING_CAPACITY       = "battery_remaining_capacity"
	SENSOR_ID_BATTERY_ACTIVE_POWER             = "battery_active_power"
	SENSOR_ID_BATTERY_TEMPERATURE_MIN          = "battery_temperature_min"
	SENSOR_ID_BATTERY_TEMPERATURE_MAX          = "battery_temperature_max"
	SENSOR_ID_BATTERY_CELL_VOLTAGE_MIN         = "battery_cell_voltage_min"
	SENSOR_ID_BATTERY_CELL_VOLTAGE_MAX         = "battery_cell_voltage_max"
	SENSOR_ID_BATTERY_CHEMISTRY                = "battery_chemistry"
	SENSOR_ID_BATTERY_BMS_STATUS               = "battery_bms_status"
	SENSOR_ID_BATTERY_UPSTREAM_FAULT           = "battery_upstream_fault"
	SENSOR_ID_BATTERY_ALLOWS_CONTACTOR_CLOSING = "battery_allows_contactor_closing"
	SENSOR_ID_LIMIT_MAX_CHARGE_POWER           = "limit_max_charge_power"
	SENSOR_ID_LIMIT_MAX_DISCHARGE_POWER        = "limit_max_discharge_power"
	SENSOR_ID_LINK_FRESHNESS                   = "link_freshness"
	SENSOR_ID_LINK_MINUTES_LOST                = "link_minutes_lost"
	SENSOR_ID_LINK_READS                       = "link_reads"
	SENSOR_ID_LINK_ERRORS                      = "link_errors"
	SWITCH_ID_INVERTER_ALLOWS_CONTACTOR        = "inverter_allows_contactor_closing"
	STATE_CLASS_MEASUREMENT                    = "measurement"
	DEVICE_CLASS_BATTERY                       = "battery"
	DEVICE_CLASS_CURRENT                       = "current"
	DEVICE_CLASS_ENERGY_STORAGE                = "energy_storage"
	DEVICE_CLASS_POWER                         = "power"
	DEVICE_CLASS_TEMPERATURE                   = "temperature"
	DEVICE_CLASS_VOLTAGE                       = "voltage"
	DEVICE_CLASS_CONNECTIVITY                  = "connectivity"
	DEVICE_CLASS_PROBLEM                       = "problem"
	DEVICE_CLASS_DURATION                      = "duration"
	ENTITY_CLASS_DIAGNOSTIC                    = "diagnostic"
	SENSOR_TYPE_SENSOR                         = "sensor"
	SENSOR_TYPE_BINARY                         = "binary_sensor"

	// battery values go unavailable in Home Assistant when not refreshed
	SENSOR_EXPIRE_AFTER_SECONDS = 240
)

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("batlink_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "ACasal",
		Model:        "Batlink",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Batlink %s", md5HashShort(baseTopic)),
	}
}

func BatteryDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("batlink_battery_%s", md5HashShort(baseTopic)),
		Manufacturer: "Battery board",
		Model:        "Serial link battery",
		Name:         fmt.Sprintf("Battery %s", md5HashShort(baseTopic)),
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {
	return []GenericSensor{{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	}}
}

// BatterySensors lists the decoded battery values. Values expire so a dead
// link shows as unavailable rather than frozen.
func BatterySensors(batteryDevice Device) []GenericSensor {

	measurement := func(id, name, deviceClass, unit string) GenericSensor {
		return GenericSensor{
			Device:            batteryDevice,
			Id:                id,
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       deviceClass,
			UnitOfMeasurement: unit,
			UniqueId:          uniqueId(batteryDevice.Id, id),
			ExpireAfter:       SENSOR_EXPIRE_AFTER_SECONDS,
		}
	}

	sensors := []GenericSensor{
		measurement(SENSOR_ID_BATTERY_SOC, "State of charge", DEVICE_CLASS_BATTERY, "%"),
		measurement(SENSOR_ID_BATTERY_SOH, "State of health", "", "%"),
		measurement(SENSOR_ID_BATTERY_VOLTAGE, "Battery voltage", DEVICE_CLASS_VOLTAGE, "V"),
		measurement(SENSOR_ID_BATTERY_CURRENT, "Battery current", DEVICE_CLASS_CURRENT, "A"),
		measurement(SENSOR_ID_BATTERY_TOTAL_CAPACITY, "Total capacity", DEVICE_CLASS_ENERGY_STORAGE, "Wh"),
		measurement(SENSOR_ID_BATTERY_REMAINING_CAPACITY, "Remaining capacity", DEVICE_CLASS_ENERGY_STORAGE, "Wh"),
		measurement(SENSOR_ID_BATTERY_ACTIVE_POWER, "Battery power", DEVICE_CLASS_POWER, "W"),
		measurement(SENSOR_ID_BATTERY_TEMPERATURE_MIN, "Temperature min", DEVICE_CLASS_TEMPERATURE, "°C"),
		measurement(SENSOR_ID_BATTERY_TEMPERATURE_MAX, "Temperature max", DEVICE_CLASS_TEMPERATURE, "°C"),
		measurement(SENSOR_ID_BATTERY_CELL_VOLTAGE_MIN, "Cell voltage min", DEVICE_CLASS_VOLTAGE, "V"),
		measurement(SENSOR_ID_BATTERY_CELL_VOLTAGE_MAX, "Cell voltage max", DEVICE_CLASS_VOLTAGE, "V"),
		measurement(SENSOR_ID_LIMIT_MAX_CHARGE_POWER, "Max charge power", DEVICE_CLASS_POWER, "W"),
		measurement(SENSOR_ID_LIMIT_MAX_DISCHARGE_POWER, "Max discharge power", DEVICE_CLASS_POWER, "W"),
	}

	sensors = append(sensors, GenericSensor{
		Device:     batteryDevice,
		Id:         SENSOR_ID_BATTERY_CHEMISTRY,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Chemistry",
		Icon:       "mdi:flask",
		UniqueId:   uniqueId(batteryDevice.Id, SENSOR_ID_BATTERY_CHEMISTRY),
	})
	sensors = append(sensors, GenericSensor{
		Device:     batteryDevice,
		Id:         SENSOR_ID_BATTERY_BMS_STATUS,
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "BMS status",
		UniqueId:   uniqueId(batteryDevice.Id, SENSOR_ID_BATTERY_BMS_STATUS),
	})
	sensors = append(sensors, GenericSensor{
		Device:      batteryDevice,
		Id:          SENSOR_ID_BATTERY_UPSTREAM_FAULT,
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Battery fault",
		DeviceClass: DEVICE_CLASS_PROBLEM,
		UniqueId:    uniqueId(batteryDevice.Id, SENSOR_ID_BATTERY_UPSTREAM_FAULT),
	})
	sensors = append(sensors, GenericSensor{
		Device:     batteryDevice,
		Id:         SENSOR_ID_BATTERY_ALLOWS_CONTACTOR_CLOSING,
		SensorType: SENSOR_TYPE_BINARY,
		Name:       "Battery allows contactor closing",
		Icon:       "mdi:electric-switch",
		UniqueId:   uniqueId(batteryDevice.Id, SENSOR_ID_BATTERY_ALLOWS_CONTACTOR_CLOSING),
	})

	return sensors
}

func LinkSensors(batteryDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Freshness state
	sensors = append(sensors, GenericSensor{
		Device:         batteryDevice,
		Id:             SENSOR_ID_LINK_FRESHNESS,
		SensorType:     SENSOR_TYPE_SENSOR,
		Name:           "Link freshness",
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		Icon:           "mdi:timer-sand",
		UniqueId:       uniqueId(batteryDevice.Id, SENSOR_ID_LINK_FRESHNESS),
	})

	// Minutes without good data
	sensors = append(sensors, GenericSensor{
		Device:            batteryDevice,
		Id:                SENSOR_ID_LINK_MINUTES_LOST,
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Minutes without data",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_DURATION,
		UnitOfMeasurement: "min",
		EntityCategory:    ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:          uniqueId(batteryDevice.Id, SENSOR_ID_LINK_MINUTES_LOST),
	})

	// Reads and errors per reporting interval
	sensors = append(sensors, GenericSensor{
		Device:           batteryDevice,
		Id:               SENSOR_ID_LINK_READS,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Link reads per interval",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(batteryDevice.Id, SENSOR_ID_LINK_READS),
	})
	sensors = append(sensors, GenericSensor{
		Device:           batteryDevice,
		Id:               SENSOR_ID_LINK_ERRORS,
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Link errors per interval",
		StateClass:       STATE_CLASS_MEASUREMENT,
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		UniqueId:         uniqueId(batteryDevice.Id, SENSOR_ID_LINK_ERRORS),
	})

	return sensors
}

func ContactorSwitches(batteryDevice Device) []GenericSwitch {
	return []GenericSwitch{{
		Device:   batteryDevice,
		Id:       SWITCH_ID_INVERTER_ALLOWS_CONTACTOR,
		Name:     "Inverter allows contactor closing",
		UniqueId: uniqueId(batteryDevice.Id, SWITCH_ID_INVERTER_ALLOWS_CONTACTOR),
		Icon:     "mdi:electric-switch-closed",
	}}
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
