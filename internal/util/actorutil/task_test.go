package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskOutcome struct {
	Value string
}

// spawns an actor that starts task on Started and forwards the piped result
func runTask(t *testing.T, start func(ctx actor.Context)) taskOutcome {
	system := actor.NewActorSystem()
	t.Cleanup(system.Shutdown)

	results := make(chan taskOutcome, 1)
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			start(ctx)
		case taskOutcome:
			results <- msg
		}
	})
	system.Root.Spawn(props)

	select {
	case r := <-results:
		return r
	case <-time.After(2 * time.Second):
		require.FailNow(t, "task result not delivered")
		return taskOutcome{}
	}
}

func TestBackgroundTaskDeliversValue(t *testing.T) {
	outcome := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskOutcome, error) {
			return &taskOutcome{Value: "ok"}, nil
		}).PipeTo(ctx.Self())
	})
	assert.Equal(t, "ok", outcome.Value)
}

func TestBackgroundTaskErrorObservedThenRecovered(t *testing.T) {
	failure := errors.New("port busy")
	observed := make(chan error, 1)

	outcome := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskOutcome, error) {
			return nil, failure
		}).OnError(func(err error) {
			observed <- err
		}).Recover(func(err error) taskOutcome {
			return taskOutcome{Value: "recovered: " + err.Error()}
		}).PipeTo(ctx.Self())
	})

	assert.Equal(t, "recovered: port busy", outcome.Value)
	select {
	case err := <-observed:
		assert.ErrorIs(t, err, failure)
	default:
		assert.Fail(t, "OnError not called")
	}
}

func TestBackgroundTaskTimeout(t *testing.T) {
	outcome := runTask(t, func(ctx actor.Context) {
		NewBackgroundTask(ctx, func() (*taskOutcome, error) {
			time.Sleep(time.Second)
			return &taskOutcome{Value: "late"}, nil
		}).WithTimeout(20 * time.Millisecond).Recover(func(err error) taskOutcome {
			return taskOutcome{Value: "timeout"}
		}).PipeTo(ctx.Self())
	})
	assert.Equal(t, "timeout", outcome.Value)
}
