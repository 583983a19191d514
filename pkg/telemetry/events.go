package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a diagnostic event emitted by the matbridge supervisor.
// The event stream is the human-readable side channel that narrates an
// execution's state transitions while it is still in progress.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// ExecutionID is the associated execution ID, if applicable.
	ExecutionID string `json:"execution_id,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for supervisor state transitions.
const (
	EventTypeDispatched         = "execution.dispatched"
	EventTypeCompleting         = "execution.completing"
	EventTypeResolved           = "execution.resolved"
	EventTypeReclassified       = "execution.reclassified"
	EventTypeAbandoned          = "execution.abandoned"
	EventTypeProbeOK            = "probe.ok"
	EventTypeProbeFailed        = "probe.failed"
	EventTypeDebugPauseObserved = "debug.pause_observed"
	EventTypeDesktopShown       = "debug.desktop_shown"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Source == "" {
		event.Source = "supervisor"
	}

	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishDispatched publishes an execution dispatched event.
func (ep *EventPublisher) PublishDispatched(executionID string) error {
	return ep.Publish(Event{
		Type:        EventTypeDispatched,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Execution %s dispatched to engine", executionID),
		Level:       EventLevelInfo,
	})
}

// PublishProbe publishes the outcome of one responsiveness probe.
func (ep *EventPublisher) PublishProbe(executionID string, responsive bool, streak int) error {
	if responsive {
		return ep.Publish(Event{
			Type:        EventTypeProbeOK,
			ExecutionID: executionID,
			Message:     "Engine responsive to probe",
			Level:       EventLevelInfo,
		})
	}
	return ep.Publish(Event{
		Type:        EventTypeProbeFailed,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Probe failed (%d consecutive), engine busy or debugging", streak),
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"failure_streak": streak,
		},
	})
}

// PublishDebugPauseObserved publishes a debug pause observation event.
func (ep *EventPublisher) PublishDebugPauseObserved(executionID string) error {
	return ep.Publish(Event{
		Type:        EventTypeDebugPauseObserved,
		ExecutionID: executionID,
		Message:     "Engine is paused in the debugger",
		Level:       EventLevelInfo,
	})
}

// PublishDesktopShown publishes a show-desktop event.
func (ep *EventPublisher) PublishDesktopShown(executionID string) error {
	return ep.Publish(Event{
		Type:        EventTypeDesktopShown,
		ExecutionID: executionID,
		Message:     "Engine desktop surfaced for interactive debugging",
		Level:       EventLevelInfo,
	})
}

// PublishCompleting publishes a completion-detected event.
func (ep *EventPublisher) PublishCompleting(executionID string) error {
	return ep.Publish(Event{
		Type:        EventTypeCompleting,
		ExecutionID: executionID,
		Message:     "Pending handle reported done, collecting result",
		Level:       EventLevelInfo,
	})
}

// PublishReclassified publishes a post-debug reclassification event.
func (ep *EventPublisher) PublishReclassified(executionID, errorDetail string) error {
	return ep.Publish(Event{
		Type:        EventTypeReclassified,
		ExecutionID: executionID,
		Message:     "Engine error after debug pause reclassified as success",
		Level:       EventLevelWarning,
		Data: map[string]interface{}{
			"error_detail": errorDetail,
		},
	})
}

// PublishResolved publishes an execution resolved event.
func (ep *EventPublisher) PublishResolved(executionID, status, classification string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:        EventTypeResolved,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Execution %s resolved: %s (%s)", executionID, status, classification),
		Level:       EventLevelInfo,
		Data: map[string]interface{}{
			"status":         status,
			"classification": classification,
			"duration":       duration.Seconds(),
		},
	})
}

// PublishAbandoned publishes an execution abandoned event.
func (ep *EventPublisher) PublishAbandoned(executionID, reason string) error {
	return ep.Publish(Event{
		Type:        EventTypeAbandoned,
		ExecutionID: executionID,
		Message:     fmt.Sprintf("Execution %s abandoned: %s", executionID, reason),
		Level:       EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents delivers events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain remaining events before shutting down
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers in order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, len(ep.subscribers))
	copy(entries, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled || ep.cancel == nil {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByExecutionID creates a filter that only allows events for a specific execution.
func FilterByExecutionID(executionID string) EventFilter {
	return func(event Event) bool {
		return event.ExecutionID == executionID
	}
}
