package service

import (
	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// LinkStats tallies link reads and errors in the governor state and logs
// error onset and recovery once each.
type LinkStats struct {
	Events     port.EventSink
	DumpValues bool
	Logger     *zap.Logger
}

func (s *LinkStats) ReadFailed(state *domain.GovernorState, now uint32) {
	state.Errors++
	if state.ErrorLatched {
		return
	}
	state.ErrorLatched = true
	s.Events.Set(domain.EVENT_LINK_READ_ERROR, 0)
	s.Logger.Warn("link: read error", zap.Uint32("at", now))
}

func (s *LinkStats) ReadSucceeded(state *domain.GovernorState, now uint32) {
	state.Reads++
	if !state.ErrorLatched {
		return
	}
	state.ErrorLatched = false
	s.Events.Clear(domain.EVENT_LINK_READ_ERROR)
	s.Logger.Info("link: recovered, read good", zap.Uint32("at", now))
}

// Flush emits the tally once per reporting interval and resets it.
// It returns nil while the interval is still running.
func (s *LinkStats) Flush(state *domain.GovernorState, now uint32, status *domain.BatteryStatus) *domain.LinkReport {
	if now-state.ReportMillis <= REPORT_INTERVAL_MILLIS {
		return nil
	}
	state.ReportMillis = now
	report := &domain.LinkReport{
		Reads:  state.Reads,
		Errors: state.Errors,
	}
	state.Reads = 0
	state.Errors = 0

	s.Logger.Info("link: receiver report",
		zap.Uint32("new_data", report.Reads),
		zap.Uint32("errors", report.Errors),
		zap.Uint32("at", now))

	if s.DumpValues && status != nil {
		s.dump(status)
	}
	return report
}

func (s *LinkStats) dump(status *domain.BatteryStatus) {
	snap := status.Snapshot
	s.Logger.Info("link: values from battery",
		zap.Uint16("soc_pptt", snap.StateOfChargePptt),
		zap.Uint16("soh_pptt", snap.StateOfHealthPptt),
		zap.Uint16("voltage_dv", snap.VoltageDV),
		zap.Int16("current_da", snap.CurrentDA),
		zap.Uint32("capacity_wh", snap.TotalCapacityWh),
		zap.Uint32("remaining_wh", snap.RemainingCapacityWh),
		zap.Uint32("max_discharge_w", status.Limits.MaxDischargePowerW),
		zap.Uint32("max_charge_w", status.Limits.MaxChargePowerW),
		zap.Stringer("bms_status", snap.BMSStatus),
		zap.Int32("power_w", snap.ActivePowerW),
		zap.Int16("temp_min_dc", snap.TemperatureMinDC),
		zap.Int16("temp_max_dc", snap.TemperatureMaxDC),
		zap.Uint16("cell_max_mv", snap.CellMaxVoltageMV),
		zap.Uint16("cell_min_mv", snap.CellMinVoltageMV),
		zap.Stringer("chemistry", snap.Chemistry),
		zap.Bool("battery_allows_contactor_closing", snap.AllowsContactorClosing),
		zap.Bool("inverter_allows_contactor_closing", status.InverterAllowsContactorClosing))
}
