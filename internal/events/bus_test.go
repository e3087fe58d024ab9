package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"device-dispatch/internal/model"
)

func receive(t *testing.T, ch <-chan model.CommandEvent) model.CommandEvent {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return model.CommandEvent{}
}

func TestBusDeliversByType(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(10, zap.NewNop())
	go bus.Run(ctx)

	queued, unsubQueued := bus.Subscribe(model.EventCommandQueued)
	defer unsubQueued()
	all, unsubAll := bus.Subscribe(AllEvents)
	defer unsubAll()

	bus.Publish(model.CommandEvent{Type: model.EventCommandFailed, DeviceID: "dev-1"})
	bus.Publish(model.CommandEvent{Type: model.EventCommandQueued, DeviceID: "dev-2"})

	if e := receive(t, all); e.Type != model.EventCommandFailed {
		t.Errorf("wildcard got %s first, want COMMAND_FAILED", e.Type)
	}
	if e := receive(t, all); e.Type != model.EventCommandQueued {
		t.Errorf("wildcard got %s second, want COMMAND_QUEUED", e.Type)
	}
	if e := receive(t, queued); e.DeviceID != "dev-2" {
		t.Errorf("typed subscriber got %+v", e)
	}
	select {
	case e := <-queued:
		t.Errorf("typed subscriber received unrelated event %+v", e)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(10, zap.NewNop())
	ch, unsubscribe := bus.Subscribe(AllEvents)

	unsubscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := NewBus(1, zap.NewNop())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(model.CommandEvent{Type: model.EventCommandQueued})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full bus")
	}
}
