package ballista

import (
	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
)

const (
	ADD_BODY EventType = iota
	REMOVE_BODY
	PRE_STEP
	POST_STEP
	BEGIN_CONTACT
	END_CONTACT
	BEGIN_SHAPE_CONTACT
	END_SHAPE_CONTACT
	COLLIDE
	WAKE_UP
	SLEEPY
	SLEEP
)

type EventType uint8

// Event interface - all events implement this
type Event interface {
	Type() EventType
}

// World events, dispatched immediately
type AddBodyEvent struct {
	Body *actor.RigidBody
}

func (e AddBodyEvent) Type() EventType { return ADD_BODY }

type RemoveBodyEvent struct {
	Body *actor.RigidBody
}

func (e RemoveBodyEvent) Type() EventType { return REMOVE_BODY }

type PreStepEvent struct {
	Time float64
}

func (e PreStepEvent) Type() EventType { return PRE_STEP }

type PostStepEvent struct {
	Time float64
}

func (e PostStepEvent) Type() EventType { return POST_STEP }

// Contact events
type BeginContactEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e BeginContactEvent) Type() EventType { return BEGIN_CONTACT }

type EndContactEvent struct {
	BodyA *actor.RigidBody
	BodyB *actor.RigidBody
}

func (e EndContactEvent) Type() EventType { return END_CONTACT }

// Shape contact events carry shape attachment ids; the bodies are nil when
// one of them left the world.
type BeginShapeContactEvent struct {
	BodyA, BodyB   *actor.RigidBody
	ShapeA, ShapeB int
}

func (e BeginShapeContactEvent) Type() EventType { return BEGIN_SHAPE_CONTACT }

type EndShapeContactEvent struct {
	BodyA, BodyB   *actor.RigidBody
	ShapeA, ShapeB int
}

func (e EndShapeContactEvent) Type() EventType { return END_SHAPE_CONTACT }

// CollideEvent is sent once per body when two bodies start touching. Body is
// the receiver, Other the body it hit.
type CollideEvent struct {
	Body    *actor.RigidBody
	Other   *actor.RigidBody
	Contact *equation.Contact
}

func (e CollideEvent) Type() EventType { return COLLIDE }

// Sleep events
type WakeUpEvent struct {
	Body *actor.RigidBody
}

func (e WakeUpEvent) Type() EventType { return WAKE_UP }

type SleepyEvent struct {
	Body *actor.RigidBody
}

func (e SleepyEvent) Type() EventType { return SLEEPY }

type SleepEvent struct {
	Body *actor.RigidBody
}

func (e SleepEvent) Type() EventType { return SLEEP }

// EventListener - callback for events
type EventListener func(event Event)

// Events manager
type Events struct {
	// Listeners by event type
	listeners map[EventType][]EventListener

	// Event buffer to send at flush
	buffer []Event

	// Last sleep state seen per body id
	sleepStates map[int]actor.SleepState
}

func NewEvents() Events {
	return Events{
		listeners:   make(map[EventType][]EventListener),
		buffer:      make([]Event, 0, 256),
		sleepStates: make(map[int]actor.SleepState),
	}
}

// Subscribe adds a listener for an event type
func (e *Events) Subscribe(eventType EventType, listener EventListener) {
	if e.listeners == nil {
		e.listeners = make(map[EventType][]EventListener)
	}
	e.listeners[eventType] = append(e.listeners[eventType], listener)
}

// HasListener reports whether anything listens to eventType.
func (e *Events) HasListener(eventType EventType) bool {
	return len(e.listeners[eventType]) > 0
}

// dispatch sends an event to its listeners right away.
func (e *Events) dispatch(event Event) {
	for _, listener := range e.listeners[event.Type()] {
		listener(event)
	}
}

// emit queues an event until the next flush. Nothing is queued without listeners.
func (e *Events) emit(event Event) {
	if !e.HasListener(event.Type()) {
		return
	}
	e.buffer = append(e.buffer, event)
}

// processSleepEvents compares each body's sleep state with the one seen at
// the previous step.
func (e *Events) processSleepEvents(bodies []*actor.RigidBody) {
	if e.sleepStates == nil {
		e.sleepStates = make(map[int]actor.SleepState)
	}
	for _, body := range bodies {
		previous, exists := e.sleepStates[body.ID]
		current := body.SleepState
		e.sleepStates[body.ID] = current
		if !exists || previous == current {
			continue
		}

		if previous == actor.SleepStateSleeping {
			e.emit(WakeUpEvent{Body: body})
		}
		switch current {
		case actor.SleepStateSleepy:
			e.emit(SleepyEvent{Body: body})
		case actor.SleepStateSleeping:
			e.emit(SleepEvent{Body: body})
		}
	}
}

// track records the sleep state of a new body so its first transition is reported.
func (e *Events) track(body *actor.RigidBody) {
	if e.sleepStates == nil {
		e.sleepStates = make(map[int]actor.SleepState)
	}
	e.sleepStates[body.ID] = body.SleepState
}

// forget drops the tracked state of a removed body.
func (e *Events) forget(bodyID int) {
	delete(e.sleepStates, bodyID)
}

// flush sends all buffered events and clears the buffer
func (e *Events) flush() {
	for _, event := range e.buffer {
		e.dispatch(event)
	}
	clear(e.buffer)
	e.buffer = e.buffer[:0]
}
