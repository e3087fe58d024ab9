// Package queue stages commands awaiting transmission. Commands leave in
// priority order (Emergency first) and FIFO within a priority band.
//
// The queue never blocks: Dequeue returns immediately when nothing is
// queued. One mutex covers the heap and index bookkeeping; observers run
// after it is released.
package queue

import (
	"container/heap"
	"sync"

	"github.com/google/uuid"

	"device-dispatch/internal/clock"
	"device-dispatch/internal/model"
)

// Op identifies a queue mutation reported to an Observer
type Op string

const (
	OpEnqueued  Op = "enqueued"
	OpDequeued  Op = "dequeued"
	OpCancelled Op = "cancelled"
)

// Observer is told about every state change, after the queue lock is
// released. cmd is a snapshot; depth is the queued count after the change.
type Observer func(op Op, cmd *model.DeviceCommand, depth int)

// Statistics is a snapshot over currently queued commands only
type Statistics struct {
	QueuedCount int                           `json:"queued_count"`
	ByPriority  map[model.CommandPriority]int `json:"by_priority"`
	ByDevice    map[string]int                `json:"by_device"`
}

type item struct {
	cmd   *model.DeviceCommand
	seq   uint64
	index int
}

// itemHeap implements heap.Interface ordered by
// (Priority desc, QueuedAt asc, seq asc)
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.cmd.Priority != b.cmd.Priority {
		return a.cmd.Priority > b.cmd.Priority
	}
	if !a.cmd.QueuedAt.Equal(*b.cmd.QueuedAt) {
		return a.cmd.QueuedAt.Before(*b.cmd.QueuedAt)
	}
	return a.seq < b.seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Option configures a Queue
type Option func(*Queue)

// WithClock sets the time source for QueuedAt and status timestamps
func WithClock(c clock.Clock) Option {
	return func(q *Queue) { q.clock = c }
}

// WithMaxSize bounds the number of queued commands. Emergency commands are
// accepted even when the queue is full. Zero means unbounded.
func WithMaxSize(n int) Option {
	return func(q *Queue) { q.maxSize = n }
}

// WithObserver registers an observer. May be given more than once.
func WithObserver(o Observer) Option {
	return func(q *Queue) { q.observers = append(q.observers, o) }
}

// Queue is a thread-safe priority queue of device commands
type Queue struct {
	mu    sync.Mutex
	items itemHeap
	index map[uuid.UUID]*item
	seq   uint64

	clock     clock.Clock
	maxSize   int
	observers []Observer
}

// New creates an empty queue
func New(opts ...Option) *Queue {
	q := &Queue{
		index: make(map[uuid.UUID]*item),
		clock: clock.System{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue marks cmd QUEUED and stages it. The queue takes ownership of cmd
// until it is dequeued or cancelled.
func (q *Queue) Enqueue(cmd *model.DeviceCommand) (uuid.UUID, error) {
	if cmd == nil {
		return uuid.Nil, &model.ValidationError{Message: "command is nil"}
	}
	if cmd.Type == "" {
		return uuid.Nil, &model.ValidationError{Field: "type", Message: "command type is required"}
	}
	if cmd.DeviceID == "" {
		return uuid.Nil, &model.ValidationError{Field: "device_id", Message: "device id is required"}
	}
	if !cmd.Priority.IsValid() {
		return uuid.Nil, &model.ValidationError{Field: "priority", Message: "unknown priority " + cmd.Priority.String()}
	}
	if cmd.ID == uuid.Nil {
		cmd.ID = uuid.New()
	}

	q.mu.Lock()
	if _, exists := q.index[cmd.ID]; exists {
		q.mu.Unlock()
		return uuid.Nil, &model.ValidationError{Field: "id", Message: "command " + cmd.ID.String() + " is already queued"}
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize && !cmd.IsEmergency() {
		q.mu.Unlock()
		return uuid.Nil, model.ErrQueueFull
	}
	if err := cmd.TransitionTo(model.CommandStatusQueued, q.clock.Now()); err != nil {
		q.mu.Unlock()
		return uuid.Nil, err
	}

	q.seq++
	it := &item{cmd: cmd, seq: q.seq}
	heap.Push(&q.items, it)
	q.index[cmd.ID] = it
	depth := len(q.items)
	snapshot := cmd.Clone()
	q.mu.Unlock()

	q.notify(OpEnqueued, snapshot, depth)
	return cmd.ID, nil
}

// Dequeue removes the highest-priority, oldest command and marks it
// TRANSMITTING. It returns false when the queue is empty. The queue keeps no
// reference to the returned command.
func (q *Queue) Dequeue() (*model.DeviceCommand, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, false
	}

	it := heap.Pop(&q.items).(*item)
	delete(q.index, it.cmd.ID)
	cmd := it.cmd
	// QUEUED -> TRANSMITTING cannot fail for an indexed item
	_ = cmd.TransitionTo(model.CommandStatusTransmitting, q.clock.Now())
	depth := len(q.items)
	snapshot := cmd.Clone()
	q.mu.Unlock()

	q.notify(OpDequeued, snapshot, depth)
	return cmd, true
}

// Peek returns a snapshot of the command Dequeue would return next
func (q *Queue) Peek() (*model.DeviceCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	return q.items[0].cmd.Clone(), true
}

// Get returns a snapshot of a queued command
func (q *Queue) Get(id uuid.UUID) (*model.DeviceCommand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.index[id]
	if !ok {
		return nil, false
	}
	return it.cmd.Clone(), true
}

// Cancel moves a still-queued command to CANCELLED. It returns false when the
// command is unknown, already dequeued or already terminal.
func (q *Queue) Cancel(id uuid.UUID) bool {
	q.mu.Lock()
	it, ok := q.index[id]
	if !ok {
		q.mu.Unlock()
		return false
	}

	snapshot := q.cancelLocked(it)
	depth := len(q.items)
	q.mu.Unlock()

	q.notify(OpCancelled, snapshot, depth)
	return true
}

// ClearDeviceQueue cancels every queued command of deviceID and returns how
// many were cancelled. Commands already transmitting are not affected.
func (q *Queue) ClearDeviceQueue(deviceID string) int {
	q.mu.Lock()
	var targets []*item
	for _, it := range q.items {
		if it.cmd.DeviceID == deviceID {
			targets = append(targets, it)
		}
	}

	snapshots := make([]*model.DeviceCommand, 0, len(targets))
	for _, it := range targets {
		snapshots = append(snapshots, q.cancelLocked(it))
	}
	depth := len(q.items)
	q.mu.Unlock()

	for _, snapshot := range snapshots {
		q.notify(OpCancelled, snapshot, depth)
	}
	return len(snapshots)
}

// cancelLocked removes it from the heap and index. Caller holds q.mu.
func (q *Queue) cancelLocked(it *item) *model.DeviceCommand {
	heap.Remove(&q.items, it.index)
	delete(q.index, it.cmd.ID)
	// QUEUED -> CANCELLED cannot fail for an indexed item
	_ = it.cmd.TransitionTo(model.CommandStatusCancelled, q.clock.Now())
	return it.cmd.Clone()
}

// Statistics returns counts over the currently queued commands
func (q *Queue) Statistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Statistics{
		QueuedCount: len(q.items),
		ByPriority:  make(map[model.CommandPriority]int),
		ByDevice:    make(map[string]int),
	}
	for _, it := range q.items {
		stats.ByPriority[it.cmd.Priority]++
		stats.ByDevice[it.cmd.DeviceID]++
	}
	return stats
}

// Count returns the number of queued commands
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) notify(op Op, cmd *model.DeviceCommand, depth int) {
	for _, o := range q.observers {
		o(op, cmd, depth)
	}
}
