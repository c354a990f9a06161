package actor

import (
	"sync"
	"testing"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/config"
	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/datalayer"
	"github.com/berfenger/batlink2mqtt/internal/util"
	"github.com/berfenger/batlink2mqtt/pkg/seriallink"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// charge limit 6000 W, discharge limit 3000 W, BMS active
var activeBatteryRegs = []uint16{5000, 9900, 3700, 0, 1000, 500, 300, 600, 3, 0, 200, 220, 3350, 3300, 2, 1}

func newMemoryLink(cfg *config.Config) (*seriallink.Link, *seriallink.MemoryDriver) {
	driver := seriallink.NewMemoryDriver(16, 1)
	link := seriallink.NewWithDriver(driver, seriallink.Config{
		Driver:       seriallink.DRIVER_MEMORY,
		RecvCount:    16,
		SendCount:    1,
		Timeout:      time.Duration(cfg.Link.TimeoutMillis) * time.Millisecond,
		PollInterval: time.Duration(cfg.Link.PollIntervalMillis) * time.Millisecond,
	}, zap.NewNop())
	return link, driver
}

type collector struct {
	mu     sync.Mutex
	events []any
}

func (c *collector) add(v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, v)
}

func (c *collector) all() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]any(nil), c.events...)
}

func TestGovernorActor(t *testing.T) {
	cfg := util.LoadTestConfig()
	logger := zap.Must(zap.NewDevelopment())

	as := actor.NewActorSystem()
	defer as.Shutdown()
	context := as.Root

	link, driver := newMemoryLink(&cfg)
	driver.SetRegisters(0, activeBatteryRegs)
	store := datalayer.NewStore(cfg.Link.InverterAllowsContactorClosing)
	es := &eventstream.EventStream{}
	published := &collector{}
	es.Subscribe(published.add)

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewGovernorActor(&cfg, link, datalayer.NewMonotonicClock(), store, nil, es, logger)
	})
	pid := context.Spawn(props)
	defer context.Stop(pid)

	require.Eventually(t, func() bool {
		return store.Status().Freshness == domain.FRESHNESS_FRESH
	}, 3*time.Second, 10*time.Millisecond)

	status := store.Status()
	assert.Equal(t, domain.PowerLimits{MaxChargePowerW: 6000, MaxDischargePowerW: 3000}, status.Limits)
	assert.Equal(t, uint16(5000), status.Snapshot.StateOfChargePptt)
	assert.Equal(t, domain.CHEMISTRY_LFP, status.Snapshot.Chemistry)

	// the local flag reaches the peer through the outbound writer
	require.Eventually(t, func() bool {
		return driver.Writes() > 0 && driver.Written()[0] == 1
	}, 3*time.Second, 10*time.Millisecond)

	res, err := context.RequestFuture(pid, domain.SetContactorAllowRequest{Allow: false}, time.Second).Result()
	require.NoError(t, err)
	assert.True(t, res.(domain.SetContactorAllowResponse).Changed)
	assert.False(t, store.InverterAllowsContactorClosing())

	require.Eventually(t, func() bool {
		return driver.Written()[0] == 0
	}, 3*time.Second, 10*time.Millisecond)

	res, err = context.RequestFuture(pid, domain.GetBatteryStatusRequest{}, time.Second).Result()
	require.NoError(t, err)
	statusResp := res.(domain.GetBatteryStatusResponse)
	assert.Equal(t, domain.FRESHNESS_FRESH, statusResp.Status.Freshness)

	res, err = context.RequestFuture(pid, domain.ActorHealthRequest{}, time.Second).Result()
	require.NoError(t, err)
	health := res.(domain.ActorHealthResponse)
	assert.True(t, health.Healthy)
	assert.Equal(t, "fresh", health.State)

	context.Send(pid, domain.PublishTelemetryRequest{})
	require.Eventually(t, func() bool {
		for _, ev := range published.all() {
			if f, ok := ev.(domain.FloatSensorUpdateEvent); ok && f.Id == domain.SENSOR_ID_LIMIT_MAX_CHARGE_POWER {
				return f.Value == 6000
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestGovernorActorPublishesEventsOnce(t *testing.T) {
	cfg := util.LoadTestConfig()

	as := actor.NewActorSystem()
	defer as.Shutdown()
	context := as.Root

	link, driver := newMemoryLink(&cfg)
	driver.FailReads(1_000_000)
	store := datalayer.NewStore(true)
	es := &eventstream.EventStream{}
	published := &collector{}
	es.Subscribe(published.add)

	pid := context.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewGovernorActor(&cfg, link, datalayer.NewMonotonicClock(), store, nil, es, zap.NewNop())
	}))
	defer context.Stop(pid)

	require.Eventually(t, func() bool {
		return store.Status().LinkReadError
	}, 3*time.Second, 10*time.Millisecond)

	records := func() []domain.EventRecord {
		var out []domain.EventRecord
		for _, ev := range published.all() {
			if r, ok := ev.(domain.EventRecord); ok {
				out = append(out, r)
			}
		}
		return out
	}

	context.Send(pid, domain.PublishTelemetryRequest{})
	require.Eventually(t, func() bool { return len(records()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "LINK_READ_ERROR", records()[0].Event)

	// already published, so a second cycle sends no record
	_, err := context.RequestFuture(pid, domain.GetBatteryStatusRequest{}, time.Second).Result()
	require.NoError(t, err)
	context.Send(pid, domain.PublishTelemetryRequest{})
	_, err = context.RequestFuture(pid, domain.GetBatteryStatusRequest{}, time.Second).Result()
	require.NoError(t, err)
	assert.Len(t, records(), 1)
}

func TestDiscoveryEntities(t *testing.T) {
	sensors, switches := DiscoveryEntities("batlink")

	require.NotEmpty(t, sensors)
	assert.Equal(t, domain.SENSOR_ID_BRIDGE_STATE, sensors[0].Id)

	bridge := domain.BridgeDevice("batlink")
	battery := sensors[1]
	assert.Equal(t, domain.SENSOR_ID_BATTERY_SOC, battery.Id)
	assert.Equal(t, bridge.Id, battery.Device.ViaDevice)
	assert.NotEmpty(t, battery.Device.Manufacturer)
	assert.Empty(t, sensors[2].Device.Manufacturer)

	ids := map[string]bool{}
	for _, s := range sensors {
		assert.False(t, ids[s.UniqueId], "duplicate %s", s.UniqueId)
		ids[s.UniqueId] = true
	}
	assert.True(t, ids["uid_"+domain.BatteryDevice("batlink").Id+"_"+domain.SENSOR_ID_LINK_MINUTES_LOST])

	require.Len(t, switches, 1)
	assert.Equal(t, domain.SWITCH_ID_INVERTER_ALLOWS_CONTACTOR, switches[0].Id)
}
