package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next frame.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// Resized/resolution changed from the OS.
	/* Context usage:
	 * se := ctx.Data.(*SystemEvent)
	 */
	EVENT_CODE_RESIZED SystemEventCode = 0x08

	// One or more watched shader files changed on disk.
	/* Context usage:
	 * sc := ctx.Data.(*ShadersChangedEvent)
	 */
	EVENT_CODE_SHADERS_CHANGED SystemEventCode = 0x09

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

type EventContext struct {
	Type SystemEventCode
	Data interface{}
}

type SystemEvent struct {
	WindowWidth  uint32
	WindowHeight uint32
}

type ShadersChangedEvent struct {
	Files []string
}

// Should return true if handled.
type FnOnEvent func(ctx EventContext) bool

type registeredEvent struct {
	id       uint64
	callback FnOnEvent
}

// EventSystem dispatches events synchronously on the goroutine that fires them.
type EventSystem struct {
	mu         sync.RWMutex
	registered map[SystemEventCode][]registeredEvent
	nextID     uint64
}

func NewEventSystem() *EventSystem {
	return &EventSystem{
		registered: make(map[SystemEventCode][]registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code.
 * @param code The event code to listen for.
 * @param onEvent The callback invoked when the event code is fired.
 * @returns A registration id to be used with Unregister.
 */
func (es *EventSystem) Register(code SystemEventCode, onEvent FnOnEvent) uint64 {
	es.mu.Lock()
	defer es.mu.Unlock()

	es.nextID++
	es.registered[code] = append(es.registered[code], registeredEvent{
		id:       es.nextID,
		callback: onEvent,
	})
	return es.nextID
}

// Unregister removes a listener. Returns false if the id was not registered for code.
func (es *EventSystem) Unregister(code SystemEventCode, id uint64) bool {
	es.mu.Lock()
	defer es.mu.Unlock()

	events := es.registered[code]
	for i, e := range events {
		if e.id == id {
			es.registered[code] = append(events[:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * true, the event is considered handled and is not passed on to any more listeners.
 * @returns true if handled, otherwise false.
 */
func (es *EventSystem) Fire(ctx EventContext) bool {
	es.mu.RLock()
	events := make([]registeredEvent, len(es.registered[ctx.Type]))
	copy(events, es.registered[ctx.Type])
	es.mu.RUnlock()

	for _, e := range events {
		if e.callback(ctx) {
			return true
		}
	}
	return false
}

// Shutdown drops every registration.
func (es *EventSystem) Shutdown() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.registered = make(map[SystemEventCode][]registeredEvent)
}
