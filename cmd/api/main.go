package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/berfenger/batlink2mqtt/internal/adapter/actor"
	"github.com/berfenger/batlink2mqtt/internal/adapter/journal"
	"github.com/berfenger/batlink2mqtt/internal/config"
	"github.com/berfenger/batlink2mqtt/internal/core/actor"
	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
	"github.com/berfenger/batlink2mqtt/internal/core/service"
	"github.com/berfenger/batlink2mqtt/internal/datalayer"
	"github.com/berfenger/batlink2mqtt/internal/server"
	"github.com/berfenger/batlink2mqtt/internal/util/actorutil"
	"github.com/berfenger/batlink2mqtt/pkg/seriallink"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	link, err := seriallink.New(linkConfig(cfg, logger), logger)
	if err != nil {
		return err
	}

	var recorder port.EventRecorder
	if cfg.Journal.Enable {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()
		recorder = j
	}

	store := datalayer.NewStore(cfg.Link.InverterAllowsContactorClosing)
	clock := datalayer.NewMonotonicClock()

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg,
			governorActorProvider(cfg, link, clock, store, recorder, logger),
			mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return err
	}

	// publish cadence
	sched := quartz.NewStdScheduler()
	schedCtx, cancelSched := context.WithCancel(context.Background())
	defer cancelSched()
	sched.Start(schedCtx)
	publishJob := job.NewFunctionJob(func(_ context.Context) (bool, error) {
		ctx.Send(pid, domain.PublishTelemetryRequest{})
		return true, nil
	})
	err = sched.ScheduleJob(quartz.NewJobDetail(publishJob, quartz.NewJobKey("publish")),
		quartz.NewSimpleTrigger(time.Duration(cfg.PublishIntervalMillis)*time.Millisecond))
	if err != nil {
		return err
	}

	server := server.NewServer(*cfg, ctx, pid)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	sched.Stop()
	ctx.Stop(pid)
	as.Shutdown()
	return nil
}

func linkConfig(cfg *config.Config, logger *zap.Logger) seriallink.Config {
	return seriallink.Config{
		Driver:       cfg.Link.Driver,
		URL:          cfg.Link.URL,
		Speed:        cfg.Link.Speed,
		UnitId:       cfg.Link.UnitId,
		Timeout:      time.Duration(cfg.Link.TimeoutMillis) * time.Millisecond,
		PollInterval: time.Duration(cfg.Link.PollIntervalMillis) * time.Millisecond,
		RecvAddress:  cfg.Link.RecvAddress,
		RecvCount:    service.RECV_REGISTER_COUNT,
		SendAddress:  cfg.Link.SendAddress,
		SendCount:    service.SEND_REGISTER_COUNT,
		Instrument: []seriallink.Instrument{{
			RecordTime: func(fnName string, duration time.Duration) {
				logger.Debug("seriallink: timing", zap.String("fn", fnName), zap.Duration("duration", duration))
			},
		}},
	}
}

func governorActorProvider(cfg *config.Config, link port.TelemetryLink, clock port.Clock, store port.StatusStore,
	recorder port.EventRecorder, logger *zap.Logger) actor.GovernorActorProvider {
	return func(es *eventstream.EventStream) *actor.GovernorActor {
		return actor.NewGovernorActor(cfg, link, clock, store, recorder, es, logger)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func(es *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, es, logger)
	}
}

func safePrintConfig(cfg config.Config) {
	slog.Info("Using", "config", cfg.Redacted())
}
