package ballista

import (
	"testing"

	"github.com/akmonengine/ballista/actor"
	"github.com/go-gl/mathgl/mgl64"
)

type eventCapture struct {
	events []Event
}

func (ec *eventCapture) capture(event Event) {
	ec.events = append(ec.events, event)
}

func (ec *eventCapture) reset() {
	ec.events = ec.events[:0]
}

func (ec *eventCapture) count() int {
	return len(ec.events)
}

func (ec *eventCapture) countType(eventType EventType) int {
	n := 0
	for _, e := range ec.events {
		if e.Type() == eventType {
			n++
		}
	}
	return n
}

func (ec *eventCapture) hasEventType(eventType EventType) bool {
	return ec.countType(eventType) > 0
}

// =============================================================================
// Subscribe and Listeners Tests
// =============================================================================

func TestEvents_Subscribe(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}

	events.Subscribe(BEGIN_CONTACT, capture.capture)

	if len(events.listeners[BEGIN_CONTACT]) != 1 {
		t.Errorf("Expected 1 listener for BEGIN_CONTACT, got %d", len(events.listeners[BEGIN_CONTACT]))
	}
	if !events.HasListener(BEGIN_CONTACT) {
		t.Error("HasListener should report BEGIN_CONTACT")
	}
	if events.HasListener(END_CONTACT) {
		t.Error("HasListener should not report END_CONTACT")
	}
}

func TestEvents_MultipleListeners(t *testing.T) {
	events := NewEvents()
	capture1 := &eventCapture{}
	capture2 := &eventCapture{}

	events.Subscribe(BEGIN_CONTACT, capture1.capture)
	events.Subscribe(BEGIN_CONTACT, capture2.capture)

	events.emit(BeginContactEvent{})
	events.flush()

	if capture1.count() != 1 || capture2.count() != 1 {
		t.Errorf("Expected each listener to get 1 event, got %d and %d", capture1.count(), capture2.count())
	}
}

func TestEvents_DifferentEventTypes(t *testing.T) {
	events := NewEvents()
	captureBegin := &eventCapture{}
	captureEnd := &eventCapture{}

	events.Subscribe(BEGIN_CONTACT, captureBegin.capture)
	events.Subscribe(END_CONTACT, captureEnd.capture)

	events.emit(BeginContactEvent{})
	events.flush()

	if captureBegin.count() != 1 {
		t.Errorf("Begin capture expected 1 event, got %d", captureBegin.count())
	}
	if captureEnd.count() != 0 {
		t.Errorf("End capture expected 0 events, got %d", captureEnd.count())
	}
}

// =============================================================================
// Buffering Tests
// =============================================================================

func TestEvents_EmitWaitsForFlush(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}
	events.Subscribe(COLLIDE, capture.capture)

	events.emit(CollideEvent{})
	if capture.count() != 0 {
		t.Fatalf("Expected no event before flush, got %d", capture.count())
	}

	events.flush()
	if capture.count() != 1 {
		t.Errorf("Expected 1 event after flush, got %d", capture.count())
	}
	if len(events.buffer) != 0 {
		t.Errorf("Expected buffer to be empty after flush, got %d", len(events.buffer))
	}
}

func TestEvents_DispatchIsImmediate(t *testing.T) {
	events := NewEvents()
	capture := &eventCapture{}
	events.Subscribe(PRE_STEP, capture.capture)

	events.dispatch(PreStepEvent{Time: 1})

	if capture.count() != 1 {
		t.Errorf("Expected 1 event, got %d", capture.count())
	}
}

func TestEvents_NoListeners(t *testing.T) {
	events := NewEvents()

	events.emit(BeginContactEvent{})
	events.emit(SleepEvent{})

	if len(events.buffer) != 0 {
		t.Errorf("Expected nothing buffered without listeners, got %d", len(events.buffer))
	}
	events.flush()
}

// =============================================================================
// Sleep/Wake Events Tests
// =============================================================================

func TestEvents_SleepTransitions(t *testing.T) {
	body, err := actor.NewRigidBody(actor.NewTransform(), 1, actor.BodyTypeDynamic)
	if err != nil {
		t.Fatal(err)
	}
	bodies := []*actor.RigidBody{body}

	tests := []struct {
		name  string
		state actor.SleepState
		want  []EventType
	}{
		{"first sighting", actor.SleepStateAwake, nil},
		{"unchanged", actor.SleepStateAwake, nil},
		{"awake to sleepy", actor.SleepStateSleepy, []EventType{SLEEPY}},
		{"sleepy to sleeping", actor.SleepStateSleeping, []EventType{SLEEP}},
		{"still sleeping", actor.SleepStateSleeping, nil},
		{"sleeping to awake", actor.SleepStateAwake, []EventType{WAKE_UP}},
		{"awake to sleeping", actor.SleepStateSleeping, []EventType{SLEEP}},
		{"sleeping to sleepy", actor.SleepStateSleepy, []EventType{WAKE_UP, SLEEPY}},
	}

	events := NewEvents()
	capture := &eventCapture{}
	for _, eventType := range []EventType{WAKE_UP, SLEEPY, SLEEP} {
		events.Subscribe(eventType, capture.capture)
	}

	// cases depend on the state left by the previous one
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capture.reset()
			body.SleepState = tt.state
			events.processSleepEvents(bodies)
			events.flush()

			if capture.count() != len(tt.want) {
				t.Fatalf("Expected %d events, got %d", len(tt.want), capture.count())
			}
			for i, eventType := range tt.want {
				if capture.events[i].Type() != eventType {
					t.Errorf("Event %d: expected type %d, got %d", i, eventType, capture.events[i].Type())
				}
			}
		})
	}
}

func TestEvents_ForgetResetsSleepTracking(t *testing.T) {
	body, err := actor.NewRigidBody(actor.NewTransform(), 1, actor.BodyTypeDynamic)
	if err != nil {
		t.Fatal(err)
	}
	bodies := []*actor.RigidBody{body}

	events := NewEvents()
	capture := &eventCapture{}
	events.Subscribe(SLEEP, capture.capture)

	events.processSleepEvents(bodies)
	events.forget(body.ID)
	body.SleepState = actor.SleepStateSleeping
	events.processSleepEvents(bodies)
	events.flush()

	if capture.count() != 0 {
		t.Errorf("Expected no event for a forgotten body, got %d", capture.count())
	}
}

// =============================================================================
// World Integration Tests
// =============================================================================

func TestEvents_ContactLifecycle(t *testing.T) {
	w := New()
	w.Gravity = mgl64.Vec3{}

	a := newSphereBody(t, mgl64.Vec3{0, 0, 0}, 1, 1)
	b := newSphereBody(t, mgl64.Vec3{1.5, 0, 0}, 1, 1)
	if err := w.AddBody(a); err != nil {
		t.Fatal(err)
	}
	if err := w.AddBody(b); err != nil {
		t.Fatal(err)
	}

	capture := &eventCapture{}
	for _, eventType := range []EventType{BEGIN_CONTACT, END_CONTACT, BEGIN_SHAPE_CONTACT, END_SHAPE_CONTACT, COLLIDE} {
		w.Events.Subscribe(eventType, capture.capture)
	}

	// Step 1: overlapping
	if err := w.Step(1.0 / 60.0); err != nil {
		t.Fatal(err)
	}
	if capture.countType(BEGIN_CONTACT) != 1 {
		t.Errorf("Expected 1 BEGIN_CONTACT, got %d", capture.countType(BEGIN_CONTACT))
	}
	if capture.countType(BEGIN_SHAPE_CONTACT) != 1 {
		t.Errorf("Expected 1 BEGIN_SHAPE_CONTACT, got %d", capture.countType(BEGIN_SHAPE_CONTACT))
	}
	if capture.countType(COLLIDE) != 2 {
		t.Errorf("Expected 2 COLLIDE events, got %d", capture.countType(COLLIDE))
	}

	// Step 2: separated by hand
	capture.reset()
	a.SetPosition(mgl64.Vec3{-10, 0, 0})
	a.Velocity, b.Velocity = mgl64.Vec3{}, mgl64.Vec3{}
	if err := w.Step(1.0 / 60.0); err != nil {
		t.Fatal(err)
	}
	if capture.countType(END_CONTACT) != 1 {
		t.Errorf("Expected 1 END_CONTACT, got %d", capture.countType(END_CONTACT))
	}
	if capture.countType(END_SHAPE_CONTACT) != 1 {
		t.Errorf("Expected 1 END_SHAPE_CONTACT, got %d", capture.countType(END_SHAPE_CONTACT))
	}
	if capture.hasEventType(BEGIN_CONTACT) || capture.hasEventType(COLLIDE) {
		t.Error("No begin or collide event expected after separation")
	}
}

func TestEvents_StepOrder(t *testing.T) {
	w := New()
	var order []EventType
	record := func(e Event) { order = append(order, e.Type()) }
	w.Events.Subscribe(PRE_STEP, record)
	w.Events.Subscribe(POST_STEP, record)
	w.Events.Subscribe(ADD_BODY, record)
	w.Events.Subscribe(REMOVE_BODY, record)

	body := newSphereBody(t, mgl64.Vec3{}, 1, 1)
	if err := w.AddBody(body); err != nil {
		t.Fatal(err)
	}
	if err := w.Step(1.0 / 60.0); err != nil {
		t.Fatal(err)
	}
	if err := w.RemoveBody(body); err != nil {
		t.Fatal(err)
	}

	want := []EventType{ADD_BODY, PRE_STEP, POST_STEP, REMOVE_BODY}
	if len(order) != len(want) {
		t.Fatalf("Expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("Event %d: expected %d, got %d", i, want[i], order[i])
		}
	}
}
