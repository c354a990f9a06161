package service

import (
	"testing"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/datalayer"
	"github.com/berfenger/batlink2mqtt/pkg/seriallink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeLink struct {
	regs      [RECV_REGISTER_COUNT]uint16
	sent      [SEND_REGISTER_COUNT]uint16
	newData   bool
	readErr   bool
	txErr     bool
	polls     int
	keepAlive time.Duration
	muteAck   bool
}

func (l *fakeLink) push(regs [RECV_REGISTER_COUNT]uint16) {
	l.regs = regs
	l.newData = true
}

func (l *fakeLink) Poll() { l.polls++ }

func (l *fakeLink) HasNewData(clear bool) bool {
	return takeFlag(&l.newData, clear)
}

func (l *fakeLink) TakeNewData() ([]uint16, bool) {
	if !takeFlag(&l.newData, true) {
		return nil, false
	}
	return append([]uint16(nil), l.regs[:]...), true
}

func (l *fakeLink) HasReadError(clear bool) bool {
	return takeFlag(&l.readErr, clear)
}

func (l *fakeLink) HasTransmissionError(clear bool) bool {
	return takeFlag(&l.txErr, clear)
}

func (l *fakeLink) Field(index int) uint16 { return l.regs[index] }

func (l *fakeLink) SetField(index int, value uint16) { l.sent[index] = value }

func (l *fakeLink) SetKeepAliveInterval(interval time.Duration) { l.keepAlive = interval }

func (l *fakeLink) SetAckSuppression(mute bool) { l.muteAck = mute }

func takeFlag(flag *bool, clear bool) bool {
	v := *flag
	if clear {
		*flag = false
	}
	return v
}

// registers with limits in tens of watts, as they travel on the wire
func batteryRegs(maxCharge, maxDischarge uint16, status domain.BMSStatus) [RECV_REGISTER_COUNT]uint16 {
	var regs [RECV_REGISTER_COUNT]uint16
	regs[REG_SOC] = 5000
	regs[REG_SOH] = 9900
	regs[REG_VOLTAGE] = 3700
	regs[REG_MAX_CHARGE_POWER] = maxCharge
	regs[REG_MAX_DISCHARGE_POWER] = maxDischarge
	regs[REG_BMS_STATUS] = uint16(status)
	regs[REG_BATTERY_ALLOWS_CONTACTOR] = 1
	return regs
}

type governorFixture struct {
	gov    *Governor
	link   *fakeLink
	events *EventLog
	store  *datalayer.Store
	logs   *observer.ObservedLogs
}

func newGovernorFixture(opts GovernorOptions) *governorFixture {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	link := &fakeLink{}
	events := NewEventLog(nil, logger)
	store := datalayer.NewStore(true)
	return &governorFixture{
		gov:    NewGovernor(link, events, store, opts, logger),
		link:   link,
		events: events,
		store:  store,
		logs:   logs,
	}
}

func TestGovernorAppliesLinkOptions(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{MuteAck: true})
	assert.Equal(t, KEEP_ALIVE_INTERVAL, f.link.keepAlive)
	assert.True(t, f.link.muteAck)
}

func TestNoDataYetExposesZero(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.gov.Tick(500_000)

	status := f.store.Status()
	assert.Equal(t, domain.FRESHNESS_NO_DATA_YET, status.Freshness)
	assert.False(t, status.HasSnapshot)
	assert.Equal(t, domain.PowerLimits{}, status.Limits)
	assert.Empty(t, f.events.Entries())
}

func TestFreshDataExposedSameTick(t *testing.T) {
	require := require.New(t)
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(0)
	f.gov.Tick(65_000)
	require.Equal(uint32(6000), f.store.Status().Limits.MaxChargePowerW)

	// new data while decaying must not keep the previous tick's value
	f.link.push(batteryRegs(500, 300, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(70_000)

	status := f.store.Status()
	require.Equal(domain.FRESHNESS_FRESH, status.Freshness)
	require.Equal(uint32(5000), status.Limits.MaxChargePowerW)
	require.Equal(uint32(3000), status.Limits.MaxDischargePowerW)
	require.Equal(uint32(70_000), status.LastGoodAt)
	require.False(f.events.Entry(domain.EVENT_STALENESS_WARNING).Active)
}

func TestDecayAfter65Seconds(t *testing.T) {
	require := require.New(t)
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(1000)
	f.gov.Tick(66_000)

	status := f.store.Status()
	require.Equal(domain.FRESHNESS_DECAYING, status.Freshness)
	require.Equal(uint32(1), status.MinutesLost)
	require.Equal(uint32(6000), status.Limits.MaxChargePowerW)
	require.Equal(uint32(3000), status.Limits.MaxDischargePowerW)

	warning := f.events.Entry(domain.EVENT_STALENESS_WARNING)
	require.True(warning.Active)
	require.Equal(uint8(1), warning.Data)
	require.Equal(uint32(1), warning.Occurrences)
}

func TestExpiryAfter245Seconds(t *testing.T) {
	require := require.New(t)
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(1000)
	f.gov.Tick(246_000)

	status := f.store.Status()
	require.Equal(domain.FRESHNESS_EXPIRED, status.Freshness)
	require.Equal(uint32(4), status.MinutesLost)
	require.Equal(domain.PowerLimits{}, status.Limits)

	failure := f.events.Entry(domain.EVENT_STALENESS_FAILURE)
	require.True(failure.Active)
	require.Equal(uint8(4), failure.Data)
}

func TestFailurePayloadClamped(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(0)
	f.gov.Tick(300 * MINUTE_MILLIS)

	assert.Equal(t, uint32(300), f.store.Status().MinutesLost)
	assert.Equal(t, uint8(255), f.events.Entry(domain.EVENT_STALENESS_FAILURE).Data)
}

func TestDecayRampIsLinearAndTruncating(t *testing.T) {
	state := domain.GovernorState{
		HasGood:               true,
		LastGoodMillis:        0,
		LastGoodMaxChargeW:    8001,
		LastGoodMaxDischargeW: 4003,
	}

	prev := domain.PowerLimits{MaxChargePowerW: state.LastGoodMaxChargeW, MaxDischargePowerW: state.LastGoodMaxDischargeW}
	for m := uint32(1); m <= 3; m++ {
		limits, minutesLost, freshness := DecayLimits(state, m*MINUTE_MILLIS+10)
		assert.Equal(t, m, minutesLost)
		assert.Equal(t, domain.FRESHNESS_DECAYING, freshness)
		assert.Equal(t, 8001*(4-m)/4, limits.MaxChargePowerW)
		assert.Equal(t, 4003*(4-m)/4, limits.MaxDischargePowerW)
		assert.LessOrEqual(t, limits.MaxChargePowerW, prev.MaxChargePowerW)
		assert.LessOrEqual(t, limits.MaxDischargePowerW, prev.MaxDischargePowerW)
		prev = limits
	}

	for _, m := range []uint32{4, 5, 60, 1000} {
		limits, _, freshness := DecayLimits(state, m*MINUTE_MILLIS)
		assert.Equal(t, domain.FRESHNESS_EXPIRED, freshness)
		assert.Equal(t, domain.PowerLimits{}, limits)
	}
}

func TestDecayIsIdempotent(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(0)

	l1, m1, s1 := f.gov.Limits(130_000)
	l2, m2, s2 := f.gov.Limits(130_000)
	assert.Equal(t, l1, l2)
	assert.Equal(t, m1, m2)
	assert.Equal(t, s1, s2)

	r1 := f.gov.Tick(130_000)
	first := *f.store.Status()
	r2 := f.gov.Tick(130_000)
	assert.True(t, r1.StatusChanged)
	assert.False(t, r2.StatusChanged)
	assert.Equal(t, first, *f.store.Status())
}

func TestMinutesLostLogIsEdgeTriggered(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(0)

	// minutes lost: 0, 1, 1, 1, 2
	for _, now := range []uint32{30_000, 61_000, 90_000, 119_000, 121_000} {
		f.gov.Tick(now)
	}

	assert.Equal(t, 2, f.logs.FilterMessage("governor: minutes without data").Len())
}

func TestClockWraparound(t *testing.T) {
	require := require.New(t)
	f := newGovernorFixture(GovernorOptions{})

	lastGood := uint32(0xFFFFFF00)
	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(lastGood)

	// the clock wrapped, so now < lastGood
	f.gov.Tick(0x100)
	status := f.store.Status()
	require.Equal(domain.FRESHNESS_FRESH, status.Freshness)
	require.Equal(uint32(0), status.MinutesLost)
	require.Equal(uint32(8000), status.Limits.MaxChargePowerW)

	f.gov.Tick(lastGood + 65_000)
	status = f.store.Status()
	require.Equal(domain.FRESHNESS_DECAYING, status.Freshness)
	require.Equal(uint32(1), status.MinutesLost)
	require.Equal(uint32(6000), status.Limits.MaxChargePowerW)
}

func TestGoodDataAtClockZeroIsHonoured(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(0)

	assert.True(t, f.gov.State.HasGood)
	assert.Equal(t, domain.FRESHNESS_FRESH, f.store.Status().Freshness)
}

func TestUpstreamFaultDoesNotAdvanceLastGood(t *testing.T) {
	require := require.New(t)
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(1000)
	f.link.push(batteryRegs(1200, 1200, domain.BMS_STATUS_FAULT))
	f.gov.Tick(30_000)

	require.Equal(uint32(1000), f.gov.State.LastGoodMillis)
	require.Equal(uint32(8000), f.gov.State.LastGoodMaxChargeW)
	require.Equal(uint32(2), f.gov.State.Reads)

	status := f.store.Status()
	require.True(status.HasSnapshot)
	require.True(status.Snapshot.UpstreamFault)
	require.Equal(uint32(12000), status.Snapshot.MaxChargePowerW)
	require.Equal(uint32(8000), status.Limits.MaxChargePowerW)
	require.True(f.events.Entry(domain.EVENT_UPSTREAM_FAULT).Active)

	f.gov.Tick(62_000)
	require.Equal(1, f.logs.FilterMessage("governor: battery fault (minutes)").Len())
	require.Equal(uint32(6000), f.store.Status().Limits.MaxChargePowerW)

	// a fault-free snapshot clears the fault
	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(63_000)
	require.False(f.events.Entry(domain.EVENT_UPSTREAM_FAULT).Active)
	require.Equal(uint32(63_000), f.gov.State.LastGoodMillis)
}

func TestReadErrorOnsetAndRecovery(t *testing.T) {
	require := require.New(t)
	f := newGovernorFixture(GovernorOptions{})

	for now := uint32(1); now <= 3; now++ {
		f.link.readErr = true
		f.gov.Tick(now)
	}
	require.True(f.gov.State.ErrorLatched)
	require.Equal(uint32(3), f.gov.State.Errors)
	require.Equal(1, f.logs.FilterMessage("link: read error").Len())
	require.True(f.store.Status().LinkReadError)

	entry := f.events.Entry(domain.EVENT_LINK_READ_ERROR)
	require.True(entry.Active)
	require.Equal(uint32(1), entry.Occurrences)

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(4)
	require.False(f.gov.State.ErrorLatched)
	require.Equal(1, f.logs.FilterMessage("link: recovered, read good").Len())
	require.False(f.events.Entry(domain.EVENT_LINK_READ_ERROR).Active)
	require.False(f.store.Status().LinkReadError)
}

func TestStalenessEventsClearedWhenFresh(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(0)
	f.gov.Tick(250_000)
	require.True(t, f.events.Entry(domain.EVENT_STALENESS_FAILURE).Active)

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	f.gov.Tick(251_000)
	assert.False(t, f.events.Entry(domain.EVENT_STALENESS_FAILURE).Active)
	assert.Equal(t, uint32(1), f.events.Entry(domain.EVENT_STALENESS_FAILURE).Occurrences)
}

func TestTickReturnsLinkReport(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.link.push(batteryRegs(800, 400, domain.BMS_STATUS_ACTIVE))
	assert.Nil(t, f.gov.Tick(10).Report)

	r := f.gov.Tick(60_000)
	require.NotNil(t, r.Report)
	assert.Equal(t, domain.LinkReport{Reads: 1, Errors: 0}, *r.Report)
}

func TestOutboundDisabledByDefault(t *testing.T) {
	f := newGovernorFixture(GovernorOptions{})

	f.gov.Tick(1000)
	assert.Equal(t, uint16(0), f.link.sent[SEND_REG_INVERTER_ALLOWS_CONTACTOR])
}

// racingLink delivers a second register set right after the governor took
// the first one, the way a background exchange can.
type racingLink struct {
	*seriallink.Link
	driver *seriallink.MemoryDriver
	next   [RECV_REGISTER_COUNT]uint16
	raced  bool
}

func (l *racingLink) Poll() {}

func (l *racingLink) TakeNewData() ([]uint16, bool) {
	regs, ok := l.Link.TakeNewData()
	if ok && !l.raced {
		l.raced = true
		l.driver.SetRegisters(0, l.next[:])
		l.Link.Exchange()
	}
	return regs, ok
}

func TestSnapshotNeverMixesTwoExchanges(t *testing.T) {
	require := require.New(t)

	driver := seriallink.NewMemoryDriver(RECV_REGISTER_COUNT, SEND_REGISTER_COUNT)
	inner := seriallink.NewWithDriver(driver, seriallink.Config{
		Driver:    seriallink.DRIVER_MEMORY,
		RecvCount: RECV_REGISTER_COUNT,
		SendCount: SEND_REGISTER_COUNT,
	}, zap.NewNop())
	link := &racingLink{
		Link:   inner,
		driver: driver,
		next:   batteryRegs(100, 100, domain.BMS_STATUS_ACTIVE),
	}

	faulted := batteryRegs(800, 400, domain.BMS_STATUS_FAULT)
	driver.SetRegisters(0, faulted[:])
	inner.Exchange()

	events := NewEventLog(nil, zap.NewNop())
	store := datalayer.NewStore(true)
	gov := NewGovernor(link, events, store, GovernorOptions{}, zap.NewNop())

	gov.Tick(1000)

	status := store.Status()
	require.Equal(domain.BMS_STATUS_FAULT, status.Snapshot.BMSStatus)
	require.Equal(uint32(8000), status.Snapshot.MaxChargePowerW)
	require.False(gov.State.HasGood)
	require.Equal(domain.PowerLimits{}, status.Limits)
	require.True(events.Entry(domain.EVENT_UPSTREAM_FAULT).Active)

	// the racing exchange is picked up whole on the next tick
	gov.Tick(1001)

	status = store.Status()
	require.Equal(domain.FRESHNESS_FRESH, status.Freshness)
	require.Equal(uint32(1000), status.Limits.MaxChargePowerW)
	require.Equal(uint32(1000), gov.State.LastGoodMaxChargeW)
	require.False(events.Entry(domain.EVENT_UPSTREAM_FAULT).Active)
}
