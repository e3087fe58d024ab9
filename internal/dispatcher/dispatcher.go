// internal/dispatcher/dispatcher.go
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"device-dispatch/internal/clock"
	"device-dispatch/internal/events"
	"device-dispatch/internal/history"
	"device-dispatch/internal/metrics"
	"device-dispatch/internal/model"
	"device-dispatch/internal/queue"
	"device-dispatch/internal/serializer"
	"device-dispatch/internal/transport"
	"device-dispatch/internal/utils"
)

// Options controls the worker loop
type Options struct {
	Workers      int
	PollInterval time.Duration
	SendTimeout  time.Duration
	Clock        clock.Clock
}

// DefaultOptions returns a single worker polling every 50ms
func DefaultOptions() Options {
	return Options{
		Workers:      1,
		PollInterval: 50 * time.Millisecond,
		SendTimeout:  5 * time.Second,
		Clock:        clock.System{},
	}
}

// Dispatcher drains the command queue: each dequeued command is validated,
// encoded for its device family, handed to the device transport and then
// recorded in history with its final status.
type Dispatcher struct {
	queue      *queue.Queue
	serializer *serializer.Serializer
	history    *history.History
	transports *transport.Registry
	bus        *events.Bus
	audit      *utils.AuditLogger
	options    Options
	wake       chan struct{}
	logger     *zap.Logger
}

// New creates a dispatcher. Zero option fields take their defaults.
func New(
	q *queue.Queue,
	s *serializer.Serializer,
	h *history.History,
	transports *transport.Registry,
	bus *events.Bus,
	options Options,
	logger *zap.Logger,
) *Dispatcher {
	defaults := DefaultOptions()
	if options.Workers < 1 {
		options.Workers = defaults.Workers
	}
	if options.PollInterval <= 0 {
		options.PollInterval = defaults.PollInterval
	}
	if options.SendTimeout <= 0 {
		options.SendTimeout = defaults.SendTimeout
	}
	if options.Clock == nil {
		options.Clock = defaults.Clock
	}

	return &Dispatcher{
		queue:      q,
		serializer: s,
		history:    h,
		transports: transports,
		bus:        bus,
		audit:      utils.NewAuditLogger(logger),
		options:    options,
		wake:       make(chan struct{}, 1),
		logger:     logger.With(zap.String("component", "dispatcher")),
	}
}

// QueueObserver keeps the depth gauge current, publishes queue events and
// records cancelled commands in history. Pass it to queue.New.
func QueueObserver(h *history.History, bus *events.Bus) queue.Observer {
	return func(op queue.Op, cmd *model.DeviceCommand, depth int) {
		metrics.SetQueueDepth(depth)

		switch op {
		case queue.OpEnqueued:
			bus.Publish(model.EventForCommand(model.EventCommandQueued, cmd, *cmd.QueuedAt))
		case queue.OpCancelled:
			h.Record(cmd)
			metrics.IncCommandResult(string(cmd.Status))
			bus.Publish(model.EventForCommand(model.EventCommandCancelled, cmd, *cmd.CompletedAt))
		}
	}
}

// Submit enqueues cmd and wakes an idle worker
func (d *Dispatcher) Submit(cmd *model.DeviceCommand) (uuid.UUID, error) {
	if cmd == nil {
		return d.queue.Enqueue(nil)
	}
	priority := cmd.Priority

	id, err := d.queue.Enqueue(cmd)
	if err != nil {
		return uuid.Nil, err
	}
	metrics.IncEnqueued(priority.String())

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return id, nil
}

// ClearDeviceQueue cancels the queued commands of deviceID and announces it
func (d *Dispatcher) ClearDeviceQueue(deviceID string) int {
	removed := d.queue.ClearDeviceQueue(deviceID)
	d.bus.Publish(model.CommandEvent{
		Type:      model.EventDeviceQueueCleared,
		DeviceID:  deviceID,
		Data:      model.JSONObject{"removed": removed},
		Timestamp: d.options.Clock.Now(),
	})
	return removed
}

// Run starts the workers and blocks until ctx is done
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Dispatcher started",
		zap.Int("workers", d.options.Workers),
		zap.Duration("poll_interval", d.options.PollInterval),
	)

	var wg sync.WaitGroup
	for i := 0; i < d.options.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()

	d.logger.Info("Dispatcher stopped")
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	ticker := time.NewTicker(d.options.PollInterval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			if _, ok := d.ProcessNext(ctx); !ok {
				break
			}
		}

		select {
		case <-ctx.Done():
			d.logger.Debug("Worker exiting", zap.Int("worker", worker))
			return
		case <-ticker.C:
		case <-d.wake:
		}
	}
}

// ProcessNext dispatches the next queued command. It returns false when the
// queue is empty.
func (d *Dispatcher) ProcessNext(ctx context.Context) (*model.DeviceCommand, bool) {
	cmd, ok := d.queue.Dequeue()
	if !ok {
		return nil, false
	}
	d.dispatch(ctx, cmd)
	return cmd, true
}

func (d *Dispatcher) dispatch(ctx context.Context, cmd *model.DeviceCommand) {
	log := utils.NewCommandLogger(d.logger, cmd)
	log.Start()

	device, ok := d.transports.Device(cmd.DeviceID)
	if !ok {
		d.fail(cmd, fmt.Errorf("%w: %s", model.ErrUnknownDevice, cmd.DeviceID), log)
		return
	}

	frame, ok := d.encode(cmd, device, log)
	if !ok {
		return
	}

	deviceLog := utils.NewDeviceLogger(d.logger, device)
	tr, err := d.transports.Acquire(ctx, cmd.DeviceID)
	if err != nil {
		deviceLog.LogConnection("open", false, err)
		metrics.IncTransportError(string(device.ConnectionType))
		d.fail(cmd, err, log)
		return
	}

	d.bus.Publish(model.EventForCommand(model.EventCommandTransmitted, cmd, d.options.Clock.Now()))
	sendCtx, cancel := context.WithTimeout(ctx, d.options.SendTimeout)
	err = tr.Send(sendCtx, frame)
	cancel()

	format := d.serializer.GetConfig(device.Family).Format
	deviceLog.LogFrame(cmd.ID.String(), format, len(frame), err)
	if err != nil {
		metrics.IncTransportError(string(device.ConnectionType))
		d.fail(cmd, fmt.Errorf("send frame: %w", err), log)
		return
	}

	// TRANSMITTING -> COMPLETED cannot fail for a dequeued command
	_ = cmd.TransitionTo(model.CommandStatusCompleted, d.options.Clock.Now())
	d.finish(cmd, model.EventCommandCompleted)
	log.Success(zap.Int("frame_size", len(frame)))
}

// encode validates and frames cmd. Failures mark the command FAILED.
func (d *Dispatcher) encode(cmd *model.DeviceCommand, device model.Device, log *utils.CommandLogger) ([]byte, bool) {
	format := d.serializer.GetConfig(device.Family).Format
	started := time.Now()

	frame, result, err := d.serializer.ValidateAndEncode(cmd, device.Family)

	if len(result.Warnings) > 0 {
		metrics.AddValidationWarnings(string(device.Family), len(result.Warnings))
		log.Warn("Command validation warnings", zap.Strings("warnings", result.Warnings))

		event := model.EventForCommand(model.EventValidationWarning, cmd, d.options.Clock.Now())
		event.Data["warnings"] = result.Warnings
		d.bus.Publish(event)
	}

	if err != nil {
		metrics.ObserveEncode(string(format), metrics.ResultError, time.Since(started))
		d.fail(cmd, err, log)
		return nil, false
	}

	metrics.ObserveEncode(string(format), metrics.ResultSuccess, time.Since(started))
	return frame, true
}

func (d *Dispatcher) fail(cmd *model.DeviceCommand, err error, log *utils.CommandLogger) {
	// TRANSMITTING -> FAILED cannot fail for a dequeued command
	_ = cmd.Fail(err, d.options.Clock.Now())
	d.finish(cmd, model.EventCommandFailed)
	log.Error(err)
}

func (d *Dispatcher) finish(cmd *model.DeviceCommand, eventType model.EventType) {
	d.history.Record(cmd)
	metrics.IncCommandResult(string(cmd.Status))
	d.bus.Publish(model.EventForCommand(eventType, cmd, *cmd.CompletedAt))

	if cmd.Type == model.CommandEmergencyStop {
		d.audit.LogEmergencyStop(cmd.ID.String(), cmd.DeviceID, cmd.Status)
	}
}
