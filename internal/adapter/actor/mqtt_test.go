package actor

import (
	"testing"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/mqtt"
	"github.com/berfenger/batlink2mqtt/internal/util"
	"github.com/berfenger/batlink2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	defer as.Shutdown()

	context := as.Root

	es := &eventstream.EventStream{}

	mqttActor := NewTestMQTTActor(&cfg, es, logger)
	props := actor.PropsFromProducer(func() actor.Actor { return mqttActor })
	pid := context.Spawn(props)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	require.NoError(t, err)
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, resp.Healthy)

	es.Publish(domain.FloatUpdate(domain.SENSOR_ID_BATTERY_SOC, 55.5, 1))
	es.Publish(domain.BinaryUpdate(domain.SENSOR_ID_BATTERY_UPSTREAM_FAULT, true))
	es.Publish(domain.EventEntry{
		Id:          domain.EVENT_STALENESS_WARNING,
		Active:      true,
		Occurrences: 1,
		Data:        2,
	}.Record())

	assert.Eventually(t, func() bool {
		return len(mqttActor.Published()) == 3
	}, 2*time.Second, 20*time.Millisecond)

	published := mqttActor.Published()
	assert.Equal(t, PublishedMessage{Topic: "batlink/sensor/battery_soc/state", Payload: "55.5"}, published[0])
	assert.Equal(t, PublishedMessage{Topic: "batlink/binary_sensor/battery_upstream_fault/state", Payload: "on"}, published[1])
	assert.Equal(t, "batlink/events", published[2].Topic)
	assert.Contains(t, published[2].Payload, `"event_type":"STALENESS_WARNING"`)
	assert.Contains(t, published[2].Payload, `"data":2`)

	context.Stop(pid)
}

func TestEvent2MQTTMessage(t *testing.T) {
	cfg := util.LoadTestConfig()
	state := NewTestMQTTActor(&cfg, nil, zap.NewNop())
	state.client = mqtt.CreateMQTTClient(&cfg, mqtt.OptsFromConfig(&cfg), nil, nil)

	sw := domain.SwitchSensorUpdateEvent{
		SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SWITCH_ID_INVERTER_ALLOWS_CONTACTOR},
		Value:                  false,
	}
	assert.Equal(t, &PublishedMessage{
		Topic:   "batlink/switch/inverter_allows_contactor_closing/state",
		Payload: "off",
		Retain:  true,
	}, state.event2MQTTMessage(sw))

	assert.Equal(t, &PublishedMessage{
		Topic:   "batlink/sensor/link_freshness/state",
		Payload: "decaying",
	}, state.event2MQTTMessage(domain.TextUpdate(domain.SENSOR_ID_LINK_FRESHNESS, "decaying")))

	assert.Equal(t, "offline", state.event2MQTTMessage(domain.BridgeStateUpdateEvent{}).Payload)
	assert.Nil(t, state.event2MQTTMessage(42))
}
