package actor

import (
	"fmt"
	"io"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/config"
	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/events"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
	"github.com/berfenger/batlink2mqtt/internal/core/service"
	"github.com/berfenger/batlink2mqtt/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

const LINK_OPEN_TIMEOUT = 2 * time.Second

// GovernorActor drives the governor tick from a timer and is the only
// writer of the governor state and the status store.
type GovernorActor struct {
	config      *config.Config
	behavior    actor.Behavior
	stash       *actorutil.Stash
	link        port.TelemetryLink
	clock       port.Clock
	store       port.StatusStore
	eventLog    *service.EventLog
	governor    *service.Governor
	eventStream *eventstream.EventStream
	scheduler   *scheduler.TimerScheduler
	cancelTick  scheduler.CancelFunc
	lastReport  *domain.LinkReport
	logger      *zap.Logger
}

type governorTick struct{}

type linkOpened struct {
	Error error
}

func NewGovernorActor(config *config.Config, link port.TelemetryLink, clock port.Clock, store port.StatusStore,
	recorder port.EventRecorder, eventStream *eventstream.EventStream, logger *zap.Logger) *GovernorActor {

	actLogger := actorutil.ActorLogger(domain.ACTOR_ID_GOVERNOR, logger)
	eventLog := service.NewEventLog(recorder, actLogger)
	act := &GovernorActor{
		config:      config,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		link:        link,
		clock:       clock,
		store:       store,
		eventLog:    eventLog,
		eventStream: eventStream,
		logger:      actLogger,
		governor: service.NewGovernor(link, eventLog, store, service.GovernorOptions{
			KeepAliveInterval: time.Duration(config.Link.KeepAliveMillis) * time.Millisecond,
			MuteAck:           config.Link.MuteAck,
			OutboundEnabled:   config.Link.OutboundEnabled,
			DumpValues:        config.Link.DumpValues,
		}, actLogger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *GovernorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *GovernorActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("governor@starting started")
		state.scheduler = scheduler.NewTimerScheduler(ctx)

		opener, ok := state.link.(interface{ Open() error })
		if !ok {
			ctx.Send(ctx.Self(), linkOpened{})
			return
		}
		actorutil.NewBackgroundTask(ctx, func() (*linkOpened, error) {
			if err := opener.Open(); err != nil {
				return nil, err
			}
			return &linkOpened{}, nil
		}).WithTimeout(LINK_OPEN_TIMEOUT).OnError(func(err error) {
			// exchanges reconnect on their own
			state.logger.Warn("governor@starting link not available yet", zap.Error(err))
		}).Recover(func(err error) linkOpened {
			return linkOpened{Error: err}
		}).PipeTo(ctx.Self())
	case linkOpened:
		if msg.Error == nil {
			state.logger.Debug("governor@starting link open")
		}
		interval := time.Duration(state.config.Link.TickIntervalMillis) * time.Millisecond
		if interval <= 0 {
			interval = time.Millisecond
		}
		state.cancelTick = state.scheduler.SendRepeatedly(interval, interval, ctx.Self(), governorTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("governor@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *GovernorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case governorTick:
		result := state.governor.Tick(state.clock.NowMillis())
		if result.Report != nil {
			state.lastReport = result.Report
		}
	case domain.ActorHealthRequest:
		state.logger.Debug("governor@default ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_GOVERNOR,
			Healthy: true,
			State:   state.store.Status().Freshness.String(),
		})
	case domain.GetBatteryStatusRequest:
		actorutil.ForRequest(msg).Respond(ctx, domain.GetBatteryStatusResponse{
			Status: state.store.Status(),
			Events: state.eventLog.Entries(),
		})
	case domain.SetContactorAllowRequest:
		changed := state.store.SetInverterAllowsContactorClosing(msg.Allow)
		state.logger.Info("governor@default inverter allows contactor closing", zap.Bool("allow", msg.Allow), zap.Bool("changed", changed))
		if changed && state.eventStream != nil {
			state.eventStream.Publish(domain.SwitchSensorUpdateEvent{
				SensorUpdateEventMixIn: domain.SensorUpdateEventMixIn{Id: domain.SWITCH_ID_INVERTER_ALLOWS_CONTACTOR},
				Value:                  msg.Allow,
			})
		}
		actorutil.ForRequest(msg).Respond(ctx, domain.SetContactorAllowResponse{Changed: changed})
	case domain.PublishTelemetryRequest:
		state.publishTelemetry()
	case *actor.Stopping:
		state.stop()
	case *actor.Restarting:
		state.stop()
	default:
		state.logger.Debug("governor@default unhandled", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

// publishTelemetry pushes the current status, events not yet published and
// the last link report to the event stream.
func (state *GovernorActor) publishTelemetry() {
	if state.eventStream == nil {
		return
	}
	for _, ev := range events.BatteryStatusToUpdateEvents(state.store.Status()) {
		state.eventStream.Publish(ev)
	}
	for _, entry := range state.eventLog.Unpublished() {
		state.eventStream.Publish(entry.Record())
		state.eventLog.MarkPublished(entry.Id)
	}
	if state.lastReport != nil {
		for _, ev := range events.LinkReportToUpdateEvents(state.lastReport) {
			state.eventStream.Publish(ev)
		}
		state.lastReport = nil
	}
}

func (state *GovernorActor) stop() {
	if state.cancelTick != nil {
		state.cancelTick()
		state.cancelTick = nil
	}
	if closer, ok := state.link.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			state.logger.Warn("governor: link close", zap.Error(err))
		}
	}
}
