package service

import (
	"time"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
	"go.uber.org/zap"
)

const (
	MINUTE_MILLIS            = 60000
	DECAY_MINUTES            = 4
	REPORT_INTERVAL_MILLIS   = 59999 // flush when strictly more than this has elapsed
	OUTBOUND_INTERVAL_MILLIS = 100
	KEEP_ALIVE_INTERVAL      = 5000 * time.Millisecond
	MAX_EVENT_DATA           = 255
)

type GovernorOptions struct {
	KeepAliveInterval time.Duration
	MuteAck           bool
	OutboundEnabled   bool
	DumpValues        bool
}

// TickResult tells the caller what a tick produced beyond the store update.
type TickResult struct {
	StatusChanged bool
	Report        *domain.LinkReport
}

// Governor turns link polls into governed power limits. It owns its
// GovernorState; Tick must only be called from one goroutine.
type Governor struct {
	State domain.GovernorState

	link   port.TelemetryLink
	events port.EventSink
	store  port.StatusStore
	stats  *LinkStats
	writer *OutboundWriter
	logger *zap.Logger

	snapshot    domain.BatterySnapshot
	hasSnapshot bool
	published   domain.BatteryStatus
	started     bool
}

func NewGovernor(link port.TelemetryLink, events port.EventSink, store port.StatusStore,
	opts GovernorOptions, logger *zap.Logger) *Governor {

	if opts.KeepAliveInterval <= 0 {
		opts.KeepAliveInterval = KEEP_ALIVE_INTERVAL
	}
	link.SetKeepAliveInterval(opts.KeepAliveInterval)
	link.SetAckSuppression(opts.MuteAck)

	g := &Governor{
		link:   link,
		events: events,
		store:  store,
		logger: logger,
		stats: &LinkStats{
			Events:     events,
			DumpValues: opts.DumpValues,
			Logger:     logger,
		},
	}
	if opts.OutboundEnabled {
		g.writer = &OutboundWriter{
			Link:   link,
			Store:  store,
			Events: events,
			Logger: logger,
		}
	}
	return g
}

// Tick runs one poll/decode/decay cycle at link time now.
func (g *Governor) Tick(now uint32) TickResult {
	result := TickResult{}

	g.link.Poll()
	if g.link.HasReadError(true) {
		g.stats.ReadFailed(&g.State, now)
	}

	// a fresh snapshot is committed before decay so it is exposed this tick
	if regs, ok := g.link.TakeNewData(); ok {
		g.commit(now, DecodeRegisters(RegisterSet(regs)))
	}

	limits, minutesLost, freshness := DecayLimits(g.State, now)
	g.raiseStaleness(minutesLost, freshness)
	g.logMinutesLost(now, minutesLost, limits)

	status := domain.BatteryStatus{
		Snapshot:                       g.snapshot,
		HasSnapshot:                    g.hasSnapshot,
		Limits:                         limits,
		Freshness:                      freshness,
		MinutesLost:                    minutesLost,
		LastGoodAt:                     g.State.LastGoodMillis,
		LinkReadError:                  g.State.ErrorLatched,
		InverterAllowsContactorClosing: g.store.InverterAllowsContactorClosing(),
	}
	if !g.started || status != g.published {
		g.started = true
		g.published = status
		status.UpdatedAt = now
		g.store.PublishStatus(status)
		result.StatusChanged = true
	}

	result.Report = g.stats.Flush(&g.State, now, g.store.Status())

	if g.writer != nil {
		g.writer.Run(&g.State, now)
	}
	return result
}

// Limits is the decay computation for the current state. It has no side
// effects, so calling it twice with the same now gives the same answer.
func (g *Governor) Limits(now uint32) (domain.PowerLimits, uint32, domain.FreshnessState) {
	return DecayLimits(g.State, now)
}

func (g *Governor) commit(now uint32, snapshot domain.BatterySnapshot) {
	g.snapshot = snapshot
	g.hasSnapshot = true

	if snapshot.UpstreamFault {
		g.events.Set(domain.EVENT_UPSTREAM_FAULT, 0)
	} else {
		g.events.Clear(domain.EVENT_UPSTREAM_FAULT)
		g.State.HasGood = true
		g.State.LastGoodMillis = now
		g.State.LastGoodMaxChargeW = snapshot.MaxChargePowerW
		g.State.LastGoodMaxDischargeW = snapshot.MaxDischargePowerW
	}

	g.stats.ReadSucceeded(&g.State, now)
}

func (g *Governor) raiseStaleness(minutesLost uint32, freshness domain.FreshnessState) {
	switch freshness {
	case domain.FRESHNESS_FRESH:
		g.events.Clear(domain.EVENT_STALENESS_WARNING)
		g.events.Clear(domain.EVENT_STALENESS_FAILURE)
	case domain.FRESHNESS_DECAYING:
		g.events.Set(domain.EVENT_STALENESS_WARNING, uint8(minutesLost))
	case domain.FRESHNESS_EXPIRED:
		g.events.Clear(domain.EVENT_STALENESS_WARNING)
		g.events.Set(domain.EVENT_STALENESS_FAILURE, uint8(min(minutesLost, MAX_EVENT_DATA)))
	}
}

func (g *Governor) logMinutesLost(now uint32, minutesLost uint32, limits domain.PowerLimits) {
	if minutesLost == g.State.LoggedMinutesLost {
		return
	}
	g.State.LoggedMinutesLost = minutesLost
	if minutesLost == 0 {
		return
	}
	msg := "governor: minutes without data"
	if g.hasSnapshot && g.snapshot.UpstreamFault {
		msg = "governor: battery fault (minutes)"
	}
	g.logger.Warn(msg,
		zap.Uint32("minutes", minutesLost),
		zap.Uint32("max_charge_w", limits.MaxChargePowerW),
		zap.Uint32("max_discharge_w", limits.MaxDischargePowerW),
		zap.Uint32("at", now))
}

// DecayLimits derives the exposed limits from the last good snapshot and the
// time elapsed since it. Elapsed time is an unsigned difference on the
// wrapping link clock.
func DecayLimits(state domain.GovernorState, now uint32) (domain.PowerLimits, uint32, domain.FreshnessState) {
	if !state.HasGood {
		return domain.PowerLimits{}, 0, domain.FRESHNESS_NO_DATA_YET
	}
	minutesLost := (now - state.LastGoodMillis) / MINUTE_MILLIS
	switch {
	case minutesLost == 0:
		return domain.PowerLimits{
			MaxChargePowerW:    state.LastGoodMaxChargeW,
			MaxDischargePowerW: state.LastGoodMaxDischargeW,
		}, 0, domain.FRESHNESS_FRESH
	case minutesLost < DECAY_MINUTES:
		return domain.PowerLimits{
			MaxChargePowerW:    decay(state.LastGoodMaxChargeW, minutesLost),
			MaxDischargePowerW: decay(state.LastGoodMaxDischargeW, minutesLost),
		}, minutesLost, domain.FRESHNESS_DECAYING
	default:
		return domain.PowerLimits{}, minutesLost, domain.FRESHNESS_EXPIRED
	}
}

// lose a quarter of the last good value per minute lost
func decay(lastGood uint32, minutesLost uint32) uint32 {
	return uint32(uint64(lastGood) * uint64(DECAY_MINUTES-minutesLost) / DECAY_MINUTES)
}
