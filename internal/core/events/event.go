package events

import (
	. "github.com/berfenger/batlink2mqtt/internal/core/domain"
)

// BatteryStatusToUpdateEvents maps the store value to sensor updates. The
// decoded battery values are only sent once a snapshot was received.
func BatteryStatusToUpdateEvents(status *BatteryStatus) []any {
	var events []any

	// Governed limits
	events = append(events, FloatUpdate(SENSOR_ID_LIMIT_MAX_CHARGE_POWER, float64(status.Limits.MaxChargePowerW), 0))
	events = append(events, FloatUpdate(SENSOR_ID_LIMIT_MAX_DISCHARGE_POWER, float64(status.Limits.MaxDischargePowerW), 0))

	// Freshness
	events = append(events, TextUpdate(SENSOR_ID_LINK_FRESHNESS, status.Freshness.String()))
	events = append(events, FloatUpdate(SENSOR_ID_LINK_MINUTES_LOST, float64(status.MinutesLost), 0))

	// Local switch
	events = append(events, SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SWITCH_ID_INVERTER_ALLOWS_CONTACTOR,
		},
		Value: status.InverterAllowsContactorClosing,
	})

	if !status.HasSnapshot {
		return events
	}
	snap := status.Snapshot

	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_SOC, float64(snap.StateOfChargePptt)/100, 2))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_SOH, float64(snap.StateOfHealthPptt)/100, 2))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_VOLTAGE, float64(snap.VoltageDV)/10, 1))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_CURRENT, float64(snap.CurrentDA)/10, 1))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_TOTAL_CAPACITY, float64(snap.TotalCapacityWh), 0))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_REMAINING_CAPACITY, float64(snap.RemainingCapacityWh), 0))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_ACTIVE_POWER, float64(snap.ActivePowerW), 0))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_TEMPERATURE_MIN, float64(snap.TemperatureMinDC)/10, 1))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_TEMPERATURE_MAX, float64(snap.TemperatureMaxDC)/10, 1))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_CELL_VOLTAGE_MIN, float64(snap.CellMinVoltageMV)/1000, 3))
	events = append(events, FloatUpdate(SENSOR_ID_BATTERY_CELL_VOLTAGE_MAX, float64(snap.CellMaxVoltageMV)/1000, 3))
	events = append(events, TextUpdate(SENSOR_ID_BATTERY_CHEMISTRY, snap.Chemistry.String()))
	events = append(events, TextUpdate(SENSOR_ID_BATTERY_BMS_STATUS, snap.BMSStatus.String()))
	events = append(events, BinaryUpdate(SENSOR_ID_BATTERY_UPSTREAM_FAULT, snap.UpstreamFault))
	events = append(events, BinaryUpdate(SENSOR_ID_BATTERY_ALLOWS_CONTACTOR_CLOSING, snap.AllowsContactorClosing))

	return events
}

func LinkReportToUpdateEvents(report *LinkReport) []any {
	return []any{
		FloatUpdate(SENSOR_ID_LINK_READS, float64(report.Reads), 0),
		FloatUpdate(SENSOR_ID_LINK_ERRORS, float64(report.Errors), 0),
	}
}
