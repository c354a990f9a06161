package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_GOVERNOR     = "governor"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetBatteryStatusRequest struct {
	ActorRequestMixIn
}

type GetBatteryStatusResponse struct {
	ActorResponseMixIn
	Status *BatteryStatus
	Events []EventEntry
}

type SetContactorAllowRequest struct {
	ActorRequestMixIn
	Allow bool
}

type SetContactorAllowResponse struct {
	ActorResponseMixIn
	Changed bool
}

// PublishTelemetryRequest asks the governor to push the current status and
// pending events to the telemetry bus.
type PublishTelemetryRequest struct {
	ActorRequestMixIn
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishEventRecordRequest struct {
	ActorRequestMixIn
	Record EventRecord
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
