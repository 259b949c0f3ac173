package ballista

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/constraint"
	"github.com/akmonengine/ballista/equation"
	"github.com/akmonengine/ballista/solver"
	"github.com/go-gl/mathgl/mgl64"
)

const DEFAULT_WORKERS = 1

var (
	// ErrUnknownBody reports a body that is not part of the world.
	ErrUnknownBody = errors.New("unknown body")
	// ErrInvalidTimeStep reports a non-positive or non-finite time step.
	ErrInvalidTimeStep = errors.New("invalid time step")
)

type World struct {
	// List of all rigid bodies in the world, body.Index is its slot
	Bodies      []*actor.RigidBody
	Constraints []constraint.Constraint
	// Gravity acceleration (m/s², or N/kg)
	Gravity mgl64.Vec3

	Broadphase  Broadphase
	Narrowphase *Narrowphase
	Solver      solver.Solver
	// Workers integrates bodies in parallel
	Workers int

	AllowSleep        bool
	QuatNormalizeSkip int
	QuatNormalizeFast bool
	// MaxSubSteps bounds the catch-up work of StepElapsed
	MaxSubSteps int

	DefaultMaterial        *actor.Material
	DefaultContactMaterial *actor.ContactMaterial

	Time       float64
	StepNumber int

	Events Events
	Logger *slog.Logger

	dt               float64
	accumulator      float64
	contactMaterials map[[2]int]*actor.ContactMaterial
	bodiesByID       map[int]*actor.RigidBody
	shapeOwners      map[int]*actor.RigidBody
	noCollide        map[uint64]int
	bodyOverlaps     *OverlapKeeper
	shapeOverlaps    *OverlapKeeper

	pairsA, pairsB      []*actor.RigidBody
	additions, removals []uint64
	typesA, typesB      []actor.ShapeType
	ray                 Ray
}

// New returns a world with the default configuration, logging to slog.Default().
func New() *World {
	return newWorld()
}

func newWorld() *World {
	cfg := DefaultConfig()
	cm, err := cfg.contactMaterial()
	if err != nil {
		// the default contact material is valid by construction
		panic(err)
	}

	w := &World{
		Gravity:                mgl64.Vec3(cfg.Gravity),
		Broadphase:             NewNaiveBroadphase(),
		Solver:                 cfg.solver(),
		Workers:                DEFAULT_WORKERS,
		MaxSubSteps:            cfg.MaxSubSteps,
		DefaultMaterial:        actor.NewMaterial("default"),
		DefaultContactMaterial: cm,
		Events:                 NewEvents(),
		Logger:                 slog.Default(),
		dt:                     equation.DefaultTimeStep,
		contactMaterials:       make(map[[2]int]*actor.ContactMaterial),
		bodiesByID:             make(map[int]*actor.RigidBody),
		shapeOwners:            make(map[int]*actor.RigidBody),
		noCollide:              make(map[uint64]int),
		bodyOverlaps:           NewOverlapKeeper(),
		shapeOverlaps:          NewOverlapKeeper(),
	}
	w.Narrowphase = newNarrowphase(w)
	return w
}

// ============================================================================
// Registry
// ============================================================================

// AddBody adds a rigid body to the world. Adding a body twice is a no-op.
// It fails when one of the body's shapes cannot collide with a shape already
// in the world.
func (w *World) AddBody(body *actor.RigidBody) error {
	if body == nil {
		return fmt.Errorf("%w: nil body", ErrUnknownBody)
	}
	if _, ok := w.bodiesByID[body.ID]; ok {
		return nil
	}
	if err := w.checkShapePairs(body); err != nil {
		return err
	}

	if body.Material == nil {
		body.Material = w.DefaultMaterial
	}
	body.Index = len(w.Bodies)
	w.Bodies = append(w.Bodies, body)
	w.bodiesByID[body.ID] = body
	for _, s := range body.Shapes {
		w.shapeOwners[s.ID] = body
	}
	if tracker, ok := w.Broadphase.(BodyTracker); ok {
		tracker.BodyAdded(body)
	}

	w.Events.track(body)

	w.Logger.Debug("body added", "body", body.ID, "shapes", len(body.Shapes), "type", body.Type)
	w.Events.dispatch(AddBodyEvent{Body: body})
	return nil
}

// checkShapePairs rejects bodies that could meet another body through a
// shape pair the narrowphase cannot handle.
func (w *World) checkShapePairs(body *actor.RigidBody) error {
	w.typesA = w.typesA[:0]
	for _, s := range body.Shapes {
		w.typesA = leafTypes(s.Shape, w.typesA)
	}

	for _, other := range w.Bodies {
		if body.Type == actor.BodyTypeStatic && other.Type == actor.BodyTypeStatic {
			continue
		}
		if body.CollisionFilterGroup&other.CollisionFilterMask == 0 || other.CollisionFilterGroup&body.CollisionFilterMask == 0 {
			continue
		}
		w.typesB = w.typesB[:0]
		for _, s := range other.Shapes {
			w.typesB = leafTypes(s.Shape, w.typesB)
		}
		for _, ta := range w.typesA {
			for _, tb := range w.typesB {
				if !SupportsShapePair(ta, tb) {
					return fmt.Errorf("%w: %v and %v (bodies %d, %d)", ErrUnsupportedShapePair, ta, tb, body.ID, other.ID)
				}
			}
		}
	}
	return nil
}

// RemoveBody removes a rigid body from the world together with the
// constraints attached to it.
func (w *World) RemoveBody(body *actor.RigidBody) error {
	if body == nil {
		return fmt.Errorf("%w: nil body", ErrUnknownBody)
	}
	if _, ok := w.bodiesByID[body.ID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownBody, body.ID)
	}

	for i := len(w.Constraints) - 1; i >= 0; i-- {
		a, b := w.Constraints[i].Bodies()
		if a == body || b == body {
			w.RemoveConstraint(w.Constraints[i])
		}
	}

	k := body.Index
	if k < 0 || k >= len(w.Bodies) || w.Bodies[k] != body {
		k = slices.Index(w.Bodies, body)
	}
	w.Bodies = slices.Delete(w.Bodies, k, k+1)
	for i := k; i < len(w.Bodies); i++ {
		w.Bodies[i].Index = i
	}
	body.Index = -1
	delete(w.bodiesByID, body.ID)

	w.bodyOverlaps.RemoveID(body.ID)
	for _, s := range body.Shapes {
		w.shapeOverlaps.RemoveID(s.ID)
		delete(w.shapeOwners, s.ID)
	}
	w.Narrowphase.forgetBody(body.ID)
	w.Events.forget(body.ID)
	if tracker, ok := w.Broadphase.(BodyTracker); ok {
		tracker.BodyRemoved(body)
	}

	w.Logger.Debug("body removed", "body", body.ID)
	w.Events.dispatch(RemoveBodyEvent{Body: body})
	return nil
}

func (w *World) BodyByID(id int) (*actor.RigidBody, error) {
	body, ok := w.bodiesByID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBody, id)
	}
	return body, nil
}

// shapeOwner finds the body carrying a shape attachment, including shapes
// attached after the body joined the world.
func (w *World) shapeOwner(id int) *actor.RigidBody {
	if body, ok := w.shapeOwners[id]; ok {
		return body
	}
	for _, body := range w.Bodies {
		for _, s := range body.Shapes {
			w.shapeOwners[s.ID] = body
		}
	}
	return w.shapeOwners[id]
}

// AddConstraint registers a constraint between two bodies of the world.
func (w *World) AddConstraint(c constraint.Constraint) error {
	a, b := c.Bodies()
	for _, body := range [2]*actor.RigidBody{a, b} {
		if _, ok := w.bodiesByID[body.ID]; !ok {
			return fmt.Errorf("%w: constraint %d references body %d", ErrUnknownBody, c.ID(), body.ID)
		}
	}
	if slices.Contains(w.Constraints, c) {
		return nil
	}
	w.Constraints = append(w.Constraints, c)
	return nil
}

// RemoveConstraint reports whether the constraint was part of the world.
func (w *World) RemoveConstraint(c constraint.Constraint) bool {
	k := slices.Index(w.Constraints, c)
	if k < 0 {
		return false
	}
	w.Constraints = slices.Delete(w.Constraints, k, k+1)
	return true
}

func materialKey(a, b *actor.Material) [2]int {
	if a.ID > b.ID {
		a, b = b, a
	}
	return [2]int{a.ID, b.ID}
}

// AddContactMaterial registers how two materials interact, replacing any
// previous entry for the same pair.
func (w *World) AddContactMaterial(cm *actor.ContactMaterial) error {
	if cm == nil || cm.MaterialA == nil || cm.MaterialB == nil {
		return fmt.Errorf("%w: contact material needs two materials", actor.ErrInvalidMaterial)
	}
	if err := cm.Validate(); err != nil {
		return err
	}
	w.contactMaterials[materialKey(cm.MaterialA, cm.MaterialB)] = cm
	return nil
}

// ContactMaterial returns the registered contact material of a pair, or nil.
func (w *World) ContactMaterial(a, b *actor.Material) *actor.ContactMaterial {
	if a == nil || b == nil {
		return nil
	}
	return w.contactMaterials[materialKey(a, b)]
}

// ============================================================================
// Queries
// ============================================================================

// AABBQuery returns the bodies whose bounds overlap aabb.
func (w *World) AABBQuery(aabb actor.AABB) []*actor.RigidBody {
	return w.Broadphase.AABBQuery(w.Bodies, aabb, nil)
}

func (w *World) RaycastClosest(from, to mgl64.Vec3, options RayOptions) (RaycastResult, bool) {
	w.ray = Ray{From: from, To: to, Mode: RaycastClosest, RayOptions: options, bodies: w.ray.bodies, leaves: w.ray.leaves, triangles: w.ray.triangles}
	hit := w.ray.IntersectWorld(w)
	return w.ray.result, hit
}

func (w *World) RaycastAny(from, to mgl64.Vec3, options RayOptions) (RaycastResult, bool) {
	w.ray = Ray{From: from, To: to, Mode: RaycastAny, RayOptions: options, bodies: w.ray.bodies, leaves: w.ray.leaves, triangles: w.ray.triangles}
	hit := w.ray.IntersectWorld(w)
	return w.ray.result, hit
}

// RaycastAll calls callback for every hit until it returns false.
func (w *World) RaycastAll(from, to mgl64.Vec3, options RayOptions, callback func(RaycastResult) bool) bool {
	w.ray = Ray{From: from, To: to, Mode: RaycastAll, RayOptions: options, Callback: callback, bodies: w.ray.bodies, leaves: w.ray.leaves, triangles: w.ray.triangles}
	return w.ray.IntersectWorld(w)
}

func (w *World) ClearForces() {
	for _, body := range w.Bodies {
		body.ClearForces()
	}
}

// ============================================================================
// Stepping
// ============================================================================

func validTimeStep(dt float64) error {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTimeStep, dt)
	}
	return nil
}

// Step advances the world by exactly dt.
func (w *World) Step(dt float64) error {
	if err := validTimeStep(dt); err != nil {
		return err
	}
	return w.internalStep(dt)
}

// StepElapsed accumulates elapsed time and takes as many fixed steps of dt as
// fit, at most maxSubSteps (MaxSubSteps when <= 0). Leftover time is kept and
// InterpolatedTransform is blended between the last two poses.
func (w *World) StepElapsed(dt, elapsed float64, maxSubSteps int) error {
	if err := validTimeStep(dt); err != nil {
		return err
	}
	if elapsed < 0 || math.IsNaN(elapsed) || math.IsInf(elapsed, 0) {
		return fmt.Errorf("%w: elapsed %v", ErrInvalidTimeStep, elapsed)
	}
	if maxSubSteps <= 0 {
		maxSubSteps = max(1, w.MaxSubSteps)
	}

	w.accumulator += elapsed
	for substeps := 0; w.accumulator >= dt && substeps < maxSubSteps; substeps++ {
		if err := w.internalStep(dt); err != nil {
			return err
		}
		w.accumulator -= dt
	}
	if w.accumulator >= dt {
		w.Logger.Debug("dropping simulation time", "seconds", w.accumulator-math.Mod(w.accumulator, dt))
	}
	w.accumulator = math.Mod(w.accumulator, dt)

	alpha := w.accumulator / dt
	for _, body := range w.Bodies {
		body.Interpolate(alpha)
	}
	return nil
}

func (w *World) internalStep(dt float64) error {
	w.dt = dt
	w.Workers = max(DEFAULT_WORKERS, w.Workers)

	// Phase 1: gravity
	for _, body := range w.Bodies {
		if body.Type == actor.BodyTypeDynamic && body.SleepState != actor.SleepStateSleeping {
			body.Force = body.Force.Add(w.Gravity.Mul(body.Mass))
		}
	}

	// Phase 2: broad phase
	w.pairsA, w.pairsB = w.Broadphase.CollisionPairs(w.Bodies, w.pairsA[:0], w.pairsB[:0])
	w.filterConnectedPairs()

	// Phase 3: narrow phase
	w.bodyOverlaps.Tick()
	w.shapeOverlaps.Tick()
	if err := w.Narrowphase.GetContacts(w.pairsA, w.pairsB); err != nil {
		return err
	}
	w.processContacts()
	w.emitContactEvents()
	for _, body := range w.Bodies {
		if body.WakeUpAfterNarrowphase {
			body.WakeUp()
		}
	}

	// Phase 4: constraints and solve
	w.Solver.RemoveAllEquations()
	for _, c := range w.Constraints {
		c.Update()
		for _, eq := range c.Equations() {
			core := eq.Core()
			core.SetSpookParams(core.Stiffness, core.Relaxation, dt)
			w.Solver.AddEquation(eq)
		}
	}
	for _, c := range w.Narrowphase.Contacts {
		w.Solver.AddEquation(c)
	}
	for _, f := range w.Narrowphase.Frictions {
		w.Solver.AddEquation(f)
	}
	for _, body := range w.Bodies {
		body.UpdateSolveMassProperties()
	}
	iterations := w.Solver.Solve(dt, w.Bodies)
	w.Solver.RemoveAllEquations()

	// Phase 5: integrate
	w.Narrowphase.RecordImpulses()
	for _, body := range w.Bodies {
		body.ApplyDamping(dt)
	}
	w.Events.dispatch(PreStepEvent{Time: w.Time})

	quatNormalize := w.StepNumber%(w.QuatNormalizeSkip+1) == 0
	task(w.Workers, w.Bodies, func(body *actor.RigidBody) {
		body.Integrate(dt, quatNormalize, w.QuatNormalizeFast)
	})
	w.ClearForces()

	// Phase 6: time and sleep
	w.Time += dt
	w.StepNumber++
	w.Events.dispatch(PostStepEvent{Time: w.Time})
	if w.AllowSleep {
		for _, body := range w.Bodies {
			body.SleepTick(w.Time)
		}
	}
	w.Events.processSleepEvents(w.Bodies)

	w.Logger.Debug("step",
		"step", w.StepNumber,
		"bodies", len(w.Bodies),
		"pairs", len(w.pairsA),
		"contacts", len(w.Narrowphase.Contacts),
		"iterations", iterations)

	// Phase 7: events
	w.Events.flush()
	return nil
}

// filterConnectedPairs drops pairs joined by a constraint that disables
// their collisions.
func (w *World) filterConnectedPairs() {
	clear(w.noCollide)
	for _, c := range w.Constraints {
		if !c.CollideConnected() {
			a, b := c.Bodies()
			w.noCollide[PackPair(a.ID, b.ID)]++
		}
	}
	if len(w.noCollide) == 0 {
		return
	}
	n := 0
	for k := range w.pairsA {
		a, b := w.pairsA[k], w.pairsB[k]
		if w.noCollide[PackPair(a.ID, b.ID)] > 0 {
			continue
		}
		w.pairsA[n], w.pairsB[n] = a, b
		n++
	}
	w.pairsA, w.pairsB = w.pairsA[:n], w.pairsB[:n]
}

// processContacts feeds the overlap keepers, sends collide events on first
// contact and flags sleeping bodies hit hard enough to wake up.
func (w *World) processContacts() {
	for _, c := range w.Narrowphase.Contacts {
		bi, bj := c.BodyA, c.BodyB
		wakeOnImpact(bi, bj)
		wakeOnImpact(bj, bi)

		first := !w.bodyOverlaps.Previously(bi.ID, bj.ID) && !w.bodyOverlaps.Overlapping(bi.ID, bj.ID)
		w.bodyOverlaps.Set(bi.ID, bj.ID)
		w.shapeOverlaps.Set(c.ShapeA, c.ShapeB)
		if first {
			w.Events.emit(CollideEvent{Body: bi, Other: bj, Contact: c})
			w.Events.emit(CollideEvent{Body: bj, Other: bi, Contact: c})
		}
	}
	for _, o := range w.Narrowphase.Overlaps {
		w.bodyOverlaps.Set(o.BodyA.ID, o.BodyB.ID)
		w.shapeOverlaps.Set(o.ShapeA, o.ShapeB)
	}
}

func wakeOnImpact(sleeper, other *actor.RigidBody) {
	if !sleeper.AllowSleep || sleeper.Type != actor.BodyTypeDynamic || sleeper.SleepState != actor.SleepStateSleeping {
		return
	}
	if other.SleepState != actor.SleepStateAwake || other.Type == actor.BodyTypeStatic {
		return
	}
	speedSq := other.Velocity.LenSqr() + other.AngularVelocity.LenSqr()
	if speedSq >= 2*other.SleepSpeedLimit*other.SleepSpeedLimit {
		sleeper.WakeUpAfterNarrowphase = true
	}
}

func (w *World) emitContactEvents() {
	w.additions, w.removals = w.bodyOverlaps.Diff(w.additions[:0], w.removals[:0])
	for _, key := range w.additions {
		i, j := Unpack(key)
		w.Events.emit(BeginContactEvent{BodyA: w.bodiesByID[i], BodyB: w.bodiesByID[j]})
	}
	for _, key := range w.removals {
		i, j := Unpack(key)
		w.Events.emit(EndContactEvent{BodyA: w.bodiesByID[i], BodyB: w.bodiesByID[j]})
	}

	if !w.Events.HasListener(BEGIN_SHAPE_CONTACT) && !w.Events.HasListener(END_SHAPE_CONTACT) {
		return
	}
	w.additions, w.removals = w.shapeOverlaps.Diff(w.additions[:0], w.removals[:0])
	for _, key := range w.additions {
		i, j := Unpack(key)
		w.Events.emit(BeginShapeContactEvent{BodyA: w.shapeOwner(i), BodyB: w.shapeOwner(j), ShapeA: i, ShapeB: j})
	}
	for _, key := range w.removals {
		i, j := Unpack(key)
		w.Events.emit(EndShapeContactEvent{BodyA: w.shapeOwner(i), BodyB: w.shapeOwner(j), ShapeA: i, ShapeB: j})
	}
}
