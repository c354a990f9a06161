package actor

import (
	"errors"
	"fmt"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/config"
	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

type HADiscoveryActor struct {
	config    *config.Config
	behavior  actor.Behavior
	stash     *actorutil.Stash
	mqttActor *actor.PID

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:    config,
		mqttActor: mqttActor,
		behavior:  actor.NewBehavior(),
		stash:     &actorutil.Stash{},
		logger:    actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// discovery is only sent once MQTT is up
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 15*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		if !msg.Healthy {
			panic(errors.New("MQTT Actor is not healthy"))
		}
		sensors, switches := DiscoveryEntities(state.config.MQTT.BaseTopic)
		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors:  sensors,
			Switches: switches,
		})
		state.logger.Info("hadiscovery: published", zap.Int("sensors", len(sensors)), zap.Int("switches", len(switches)))
		state.behavior.Become(state.Done)
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}

// DiscoveryEntities lists every entity the bridge exposes. Only the first
// entity of each device carries the full device description.
func DiscoveryEntities(baseTopic string) ([]domain.GenericSensor, []domain.GenericSwitch) {
	var sensors []domain.GenericSensor

	bridgeDevice := domain.BridgeDevice(baseTopic)
	sensors = append(sensors, domain.BridgeSensors(bridgeDevice)...)

	batteryDevice := domain.BatteryDevice(baseTopic)
	batteryDevice.ViaDevice = bridgeDevice.Id
	batterySensors := domain.BatterySensors(batteryDevice)
	for i := range batterySensors {
		if i > 0 {
			batterySensors[i].Device = domain.IdDevice(batteryDevice)
		}
		sensors = append(sensors, batterySensors[i])
	}
	sensors = append(sensors, domain.LinkSensors(domain.IdDevice(batteryDevice))...)

	switches := domain.ContactorSwitches(domain.IdDevice(batteryDevice))

	return sensors, switches
}
