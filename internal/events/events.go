// Package events implements the process-wide event bus that the lifecycle,
// queue, pipeline, and merge-session components publish to, and the
// progress aggregator and logging sinks subscribe from.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescale-labs/taskorc/internal/constants"
)

// EventType defines the types of events that can be emitted.
type EventType string

const (
	EventLog    EventType = "log"
	EventError  EventType = "error"
	EventFatal  EventType = "fatal"

	// Task lifecycle transitions (spec §4.5)
	EventTaskStateChange EventType = "task_state_change"
	EventTaskProgress    EventType = "task_progress"
	EventTaskFinalized   EventType = "task_finalized"

	// Queue admission (spec §4.3)
	EventQueueAdmitted EventType = "queue_admitted"
	EventQueueQueued   EventType = "queue_queued"
	EventQueueReleased EventType = "queue_released"
	EventQueueStopped  EventType = "queue_stopped"

	// Media pipeline stage transitions (spec §4.4)
	EventPipelineStageStart EventType = "pipeline_stage_start"
	EventPipelineStageDone  EventType = "pipeline_stage_done"

	// Merge session transitions (spec §4.6)
	EventMergeStateChange EventType = "merge_state_change"

	// Config reload (credential/config store change)
	EventConfigChanged EventType = "config_changed"
)

// LogLevel defines log severity levels.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is the base interface for all events.
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// LogEvent represents log messages routed through the bus in addition to
// zerolog, so a chat-facing "log" command can tail recent activity.
type LogEvent struct {
	BaseEvent
	Level   LogLevel
	Message string
	TaskID  string
	Error   error
}

// TaskStateChangeEvent represents a task lifecycle transition.
type TaskStateChangeEvent struct {
	BaseEvent
	TaskID    string
	OwnerID   int64
	ChatID    int64
	OldState  string
	NewState  string
	Reason    string
}

// TaskProgressEvent represents a ProgressSnapshot from a backend driver or
// pipeline stage, forwarded for the aggregator to coalesce (spec §4.9).
type TaskProgressEvent struct {
	BaseEvent
	TaskID     string
	Phase      string // queued-dl, downloading, queued-up, uploading, processing
	Driver     string
	Name       string
	Processed  int64
	Total      int64
	Speed      float64
	ETA        time.Duration
	Error      string
}

// QueueEvent represents a gate admission/release/wake transition.
type QueueEvent struct {
	BaseEvent
	Gate   string // "download" or "upload"
	TaskID string
	Action string // "admitted", "queued", "released", "stopped"
}

// PipelineStageEvent represents entry/exit of one media pipeline stage.
type PipelineStageEvent struct {
	BaseEvent
	TaskID string
	Stage  string
	Err    error
}

// MergeStateChangeEvent represents a merge session transition.
type MergeStateChangeEvent struct {
	BaseEvent
	OwnerID  int64
	OldState string
	NewState string
	Inputs   int
}

// ConfigChangedEvent represents a change to the live config/credential
// store; subscribers should invalidate caches.
type ConfigChangedEvent struct {
	BaseEvent
	Key string
}

// EventBus manages event subscriptions and publishing.
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewEventBus creates a new event bus with specified buffer size.
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type.
func (eb *EventBus) Subscribe(eventType EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events.
func (eb *EventBus) SubscribeAll() <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, eb.bufferSize)
	eb.all = append(eb.all, ch)
	return ch
}

// Publish sends an event to all subscribers, non-blocking.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}

	for _, ch := range eb.all {
		select {
		case ch <- event:
		default:
			eb.droppedEvents.Add(1)
		}
	}
}

// Close shuts down the event bus and closes all channels.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// PublishLog is a convenience method for publishing log events.
func (eb *EventBus) PublishLog(level LogLevel, message, taskID string, err error) {
	eb.Publish(&LogEvent{
		BaseEvent: BaseEvent{EventType: EventLog, Time: time.Now()},
		Level:     level,
		Message:   message,
		TaskID:    taskID,
		Error:     err,
	})
}

// PublishTaskStateChange is a convenience method for publishing lifecycle
// transitions.
func (eb *EventBus) PublishTaskStateChange(taskID string, ownerID, chatID int64, oldState, newState, reason string) {
	eb.Publish(&TaskStateChangeEvent{
		BaseEvent: BaseEvent{EventType: EventTaskStateChange, Time: time.Now()},
		TaskID:    taskID,
		OwnerID:   ownerID,
		ChatID:    chatID,
		OldState:  oldState,
		NewState:  newState,
		Reason:    reason,
	})
}

// PublishQueueEvent is a convenience method for publishing gate transitions.
// The event type follows action ("queued", "released", "stopped"); any
// other action is published as EventQueueAdmitted.
func (eb *EventBus) PublishQueueEvent(gate, taskID, action string) {
	eventType := EventQueueAdmitted
	switch action {
	case "queued":
		eventType = EventQueueQueued
	case "released":
		eventType = EventQueueReleased
	case "stopped":
		eventType = EventQueueStopped
	}
	eb.Publish(&QueueEvent{
		BaseEvent: BaseEvent{EventType: eventType, Time: time.Now()},
		Gate:      gate,
		TaskID:    taskID,
		Action:    action,
	})
}

// Unsubscribe removes a subscription channel from a specific event type.
func (eb *EventBus) Unsubscribe(eventType EventType, ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	subscribers := eb.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from all event types.
func (eb *EventBus) UnsubscribeAll(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range eb.all {
		if subCh == ch {
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
}

// GetDroppedEventCount returns the total number of events dropped due to
// full buffers.
func (eb *EventBus) GetDroppedEventCount() int64 {
	return eb.droppedEvents.Load()
}

// ResetDroppedEventCount resets the dropped event counter to zero.
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
