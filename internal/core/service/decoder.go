package service

import "github.com/berfenger/batlink2mqtt/internal/core/domain"

// Register layout of the battery peer (receive side).
const (
	REG_SOC = iota
	REG_SOH
	REG_VOLTAGE
	REG_CURRENT
	REG_TOTAL_CAPACITY
	REG_REMAINING_CAPACITY
	REG_MAX_DISCHARGE_POWER
	REG_MAX_CHARGE_POWER
	REG_BMS_STATUS
	REG_ACTIVE_POWER
	REG_TEMPERATURE_MIN
	REG_TEMPERATURE_MAX
	REG_CELL_MAX_VOLTAGE
	REG_CELL_MIN_VOLTAGE
	REG_CHEMISTRY
	REG_BATTERY_ALLOWS_CONTACTOR

	RECV_REGISTER_COUNT
)

// Register layout towards the battery peer (send side).
const (
	SEND_REG_INVERTER_ALLOWS_CONTACTOR = iota

	SEND_REGISTER_COUNT
)

// the transport carries 16 bit integers, so these values lose one decimal
// on the wire
const truncatedDecimalScale = 10

// DecodeRegisters maps one complete receive register set into a snapshot.
func DecodeRegisters(regs [RECV_REGISTER_COUNT]uint16) domain.BatterySnapshot {
	status := domain.BMSStatus(regs[REG_BMS_STATUS])
	return domain.BatterySnapshot{
		StateOfChargePptt:      regs[REG_SOC],
		StateOfHealthPptt:      regs[REG_SOH],
		VoltageDV:              regs[REG_VOLTAGE],
		CurrentDA:              int16(regs[REG_CURRENT]),
		TotalCapacityWh:        uint32(regs[REG_TOTAL_CAPACITY]) * truncatedDecimalScale,
		RemainingCapacityWh:    uint32(regs[REG_REMAINING_CAPACITY]) * truncatedDecimalScale,
		MaxDischargePowerW:     uint32(regs[REG_MAX_DISCHARGE_POWER]) * truncatedDecimalScale,
		MaxChargePowerW:        uint32(regs[REG_MAX_CHARGE_POWER]) * truncatedDecimalScale,
		ActivePowerW:           int32(int16(regs[REG_ACTIVE_POWER])) * truncatedDecimalScale,
		TemperatureMinDC:       int16(regs[REG_TEMPERATURE_MIN]),
		TemperatureMaxDC:       int16(regs[REG_TEMPERATURE_MAX]),
		CellMaxVoltageMV:       regs[REG_CELL_MAX_VOLTAGE],
		CellMinVoltageMV:       regs[REG_CELL_MIN_VOLTAGE],
		Chemistry:              domain.Chemistry(regs[REG_CHEMISTRY]),
		BMSStatus:              status,
		UpstreamFault:          status == domain.BMS_STATUS_FAULT,
		AllowsContactorClosing: regs[REG_BATTERY_ALLOWS_CONTACTOR] != 0,
	}
}

// RegisterSet fixes a receive copy to the decoder's geometry. Missing
// registers read as zero.
func RegisterSet(values []uint16) [RECV_REGISTER_COUNT]uint16 {
	var regs [RECV_REGISTER_COUNT]uint16
	copy(regs[:], values)
	return regs
}
