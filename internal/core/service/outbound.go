package service

import (
	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// OutboundWriter pushes locally owned values to the battery peer.
// Transmission errors are reported and never retried here.
type OutboundWriter struct {
	Link   port.TelemetryLink
	Store  port.StatusStore
	Events port.EventSink
	Logger *zap.Logger
}

// Run writes the send register set when the outbound interval has elapsed.
// It returns true when it ran.
func (w *OutboundWriter) Run(state *domain.GovernorState, now uint32) bool {
	if now-state.UpdateMillis <= OUTBOUND_INTERVAL_MILLIS {
		return false
	}
	state.UpdateMillis = now

	w.Link.Poll()
	if w.Link.HasTransmissionError(true) {
		w.Events.Set(domain.EVENT_LINK_TRANSMISSION_ERROR, 0)
		w.Logger.Debug("link: transmission error", zap.Uint32("at", now))
	} else {
		w.Events.Clear(domain.EVENT_LINK_TRANSMISSION_ERROR)
	}

	w.Link.SetField(SEND_REG_INVERTER_ALLOWS_CONTACTOR, boolRegister(w.Store.InverterAllowsContactorClosing()))
	return true
}

func boolRegister(b bool) uint16 {
	if b {
		return 1
	}
	return 0
}
