package ballista

import (
	"errors"
	"fmt"
	"math"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
	"github.com/akmonengine/ballista/gjk"
	"github.com/akmonengine/ballista/mathx"
	"github.com/akmonengine/ballista/sat"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrUnsupportedShapePair is returned when no collision routine exists for two shape types.
var ErrUnsupportedShapePair = errors.New("unsupported shape pair")

// duplicateEpsilonSq merges contacts of one shape pair closer than 1e-6.
const duplicateEpsilonSq = 1e-12

// Overlap is a shape pair found touching in test-only mode, without contacts.
type Overlap struct {
	BodyA, BodyB   *actor.RigidBody
	ShapeA, ShapeB int
}

// leaf is a non compound shape placed in the world.
type leaf struct {
	shape    actor.Shape
	t        actor.Transform
	id       int
	material *actor.Material
}

// pairContext carries what the collision routines need for one leaf pair.
type pairContext struct {
	bodyA, bodyB *actor.RigidBody
	a, b         *leaf

	material    *actor.ContactMaterial
	friction    float64
	restitution float64
	slip        float64

	justTest bool
	overlap  bool
	start    int
	count    int
}

func (pc *pairContext) done() bool {
	return pc.justTest && pc.overlap
}

type collider func(n *Narrowphase, pc *pairContext)

var colliders = map[[2]actor.ShapeType]collider{
	{actor.ShapeTypeSphere, actor.ShapeTypeSphere}:                     sphereSphere,
	{actor.ShapeTypeSphere, actor.ShapeTypePlane}:                      spherePlane,
	{actor.ShapeTypeSphere, actor.ShapeTypeBox}:                        sphereConvex,
	{actor.ShapeTypeSphere, actor.ShapeTypeConvexPolyhedron}:           sphereConvex,
	{actor.ShapeTypeSphere, actor.ShapeTypeHeightfield}:                sphereHeightfield,
	{actor.ShapeTypeSphere, actor.ShapeTypeTrimesh}:                    sphereTrimesh,
	{actor.ShapeTypePlane, actor.ShapeTypeBox}:                         planeConvex,
	{actor.ShapeTypePlane, actor.ShapeTypeConvexPolyhedron}:            planeConvex,
	{actor.ShapeTypePlane, actor.ShapeTypeTrimesh}:                     planeTrimesh,
	{actor.ShapeTypeBox, actor.ShapeTypeBox}:                           convexConvex,
	{actor.ShapeTypeBox, actor.ShapeTypeConvexPolyhedron}:              convexConvex,
	{actor.ShapeTypeBox, actor.ShapeTypeHeightfield}:                   convexHeightfield,
	{actor.ShapeTypeBox, actor.ShapeTypeTrimesh}:                       convexTrimesh,
	{actor.ShapeTypeConvexPolyhedron, actor.ShapeTypeConvexPolyhedron}: convexConvex,
	{actor.ShapeTypeConvexPolyhedron, actor.ShapeTypeHeightfield}:      convexHeightfield,
	{actor.ShapeTypeConvexPolyhedron, actor.ShapeTypeTrimesh}:          convexTrimesh,
}

// SupportsShapePair reports whether two leaf shape types can collide.
func SupportsShapePair(a, b actor.ShapeType) bool {
	if a > b {
		a, b = b, a
	}
	_, ok := colliders[[2]actor.ShapeType{a, b}]
	return ok
}

// Narrowphase turns broadphase pairs into contact and friction equations.
// Equations are pooled: they stay valid until the next GetContacts call.
type Narrowphase struct {
	Contacts  []*equation.Contact
	Frictions []*equation.Friction
	Overlaps  []Overlap

	// EnableFrictionReduction creates a single averaged friction pair per body pair
	EnableFrictionReduction bool

	world *World

	contactPool  []*equation.Contact
	frictionPool []*equation.Friction

	pair      pairContext
	reduction pairContext
	clipper   sat.Clipper
	points    []sat.ContactPoint
	manifold  []sat.ContactPoint
	leavesA   []leaf
	leavesB   []leaf
	triangles []int

	// average normal impulse per body pair during the last solve
	impulses     map[uint64]float64
	nextImpulses map[uint64]float64
	counts       map[uint64]int
}

func newNarrowphase(world *World) *Narrowphase {
	return &Narrowphase{
		world:        world,
		impulses:     make(map[uint64]float64),
		nextImpulses: make(map[uint64]float64),
		counts:       make(map[uint64]int),
	}
}

func (n *Narrowphase) reset() {
	n.contactPool = append(n.contactPool, n.Contacts...)
	clear(n.Contacts)
	n.Contacts = n.Contacts[:0]

	n.frictionPool = append(n.frictionPool, n.Frictions...)
	clear(n.Frictions)
	n.Frictions = n.Frictions[:0]

	n.Overlaps = n.Overlaps[:0]
}

// GetContacts replaces the current contacts with those of the given pairs.
func (n *Narrowphase) GetContacts(pairsA, pairsB []*actor.RigidBody) error {
	n.reset()
	for k := range pairsA {
		if err := n.collideBodies(pairsA[k], pairsB[k]); err != nil {
			return err
		}
	}
	return nil
}

// isJustTest is true for pairs that can never exchange impulses.
func isJustTest(a, b *actor.RigidBody) bool {
	return (a.Type == actor.BodyTypeKinematic && b.Type != actor.BodyTypeDynamic) ||
		(b.Type == actor.BodyTypeKinematic && a.Type != actor.BodyTypeDynamic)
}

func (n *Narrowphase) collideBodies(bi, bj *actor.RigidBody) error {
	justTest := isJustTest(bi, bj)
	n.leavesA = flattenBody(bi, n.leavesA[:0])
	n.leavesB = flattenBody(bj, n.leavesB[:0])

	contactsBefore := len(n.Contacts)
	n.reduction = pairContext{}

	for i := range n.leavesA {
		for j := range n.leavesB {
			la, lb := &n.leavesA[i], &n.leavesB[j]
			if !leafSpheresOverlap(la, lb) {
				continue
			}
			if err := n.collideLeaves(bi, bj, la, lb, justTest); err != nil {
				return err
			}
		}
	}

	if n.EnableFrictionReduction && len(n.Contacts) > contactsBefore && n.reduction.friction > 0 {
		n.averageFriction(&n.reduction, n.Contacts[contactsBefore:])
	}
	return nil
}

func flattenBody(body *actor.RigidBody, out []leaf) []leaf {
	for _, s := range body.Shapes {
		material := s.Material
		if material == nil {
			material = body.Material
		}
		out = flattenShape(s.Shape, body.ShapeTransform(s), s.ID, material, out)
	}
	return out
}

func flattenShape(shape actor.Shape, t actor.Transform, id int, material *actor.Material, out []leaf) []leaf {
	if c, ok := shape.(*actor.Compound); ok {
		for _, child := range c.Children {
			out = flattenShape(child.Shape, t.Compose(child.Offset, child.Orientation), id, material, out)
		}
		return out
	}
	return append(out, leaf{shape: shape, t: t, id: id, material: material})
}

// leafTypes appends the non compound shape types found in shape.
func leafTypes(shape actor.Shape, out []actor.ShapeType) []actor.ShapeType {
	if c, ok := shape.(*actor.Compound); ok {
		for _, child := range c.Children {
			out = leafTypes(child.Shape, out)
		}
		return out
	}
	return append(out, shape.Type())
}

func leafSpheresOverlap(a, b *leaf) bool {
	r := a.shape.BoundingRadius() + b.shape.BoundingRadius()
	if math.IsInf(r, 1) {
		return true
	}
	return a.t.Position.Sub(b.t.Position).LenSqr() <= r*r
}

func (n *Narrowphase) collideLeaves(bi, bj *actor.RigidBody, la, lb *leaf, justTest bool) error {
	if la.shape.Type() > lb.shape.Type() {
		bi, bj = bj, bi
		la, lb = lb, la
	}
	key := [2]actor.ShapeType{la.shape.Type(), lb.shape.Type()}
	fn, ok := colliders[key]
	if !ok {
		return fmt.Errorf("%w: %v and %v (bodies %d, %d)", ErrUnsupportedShapePair, key[0], key[1], bi.ID, bj.ID)
	}

	pc := &n.pair
	*pc = pairContext{bodyA: bi, bodyB: bj, a: la, b: lb, justTest: justTest, start: len(n.Contacts)}

	if justTest {
		ca, okA := la.shape.(actor.Convex)
		cb, okB := lb.shape.(actor.Convex)
		if okA && okB {
			pc.overlap = gjk.Intersect(ca, la.t, cb, lb.t)
		} else {
			fn(n, pc)
		}
		if pc.overlap {
			n.Overlaps = append(n.Overlaps, Overlap{BodyA: bi, BodyB: bj, ShapeA: la.id, ShapeB: lb.id})
		}
		return nil
	}

	n.resolveMaterial(pc)
	fn(n, pc)
	if pc.count > 0 {
		n.reduction = *pc
	}
	return nil
}

// resolveMaterial picks the registered contact material of the pair, falling
// back to the mixed material coefficients and then to the world default.
func (n *Narrowphase) resolveMaterial(pc *pairContext) {
	w := n.world
	cm := w.ContactMaterial(pc.a.material, pc.b.material)
	if cm != nil {
		pc.friction, pc.restitution = cm.Friction, cm.Restitution
	} else {
		cm = w.DefaultContactMaterial
		pc.friction, pc.restitution = cm.Friction, cm.Restitution
		if f, ok := actor.MixFriction(pc.a.material, pc.b.material); ok {
			pc.friction = f
		}
		if r, ok := actor.MixRestitution(pc.a.material, pc.b.material); ok {
			pc.restitution = r
		}
	}
	pc.material = cm
	pc.slip = n.slipBound(pc.bodyA, pc.bodyB, pc.friction)
}

// slipBound bounds each friction impulse by friction times the average normal
// impulse the pair received at the previous step, or by the weight of the
// reduced mass when the pair is new.
func (n *Narrowphase) slipBound(bi, bj *actor.RigidBody, friction float64) float64 {
	if friction <= 0 {
		return 0
	}
	if avg, ok := n.impulses[PackPair(bi.ID, bj.ID)]; ok {
		return friction * avg
	}
	reducedMass := 0.0
	if invSum := bi.InvMass + bj.InvMass; invSum > 0 {
		reducedMass = 1 / invSum
	}
	return friction * n.world.Gravity.Len() * reducedMass * n.world.dt
}

// addContact records a contact between pointA on A and pointB on B, normal
// pointing from A to B. It reports whether the routine should go on.
func (n *Narrowphase) addContact(pc *pairContext, normal, pointA, pointB mgl64.Vec3) bool {
	if pc.justTest {
		pc.overlap = true
		return false
	}

	bi, bj := pc.bodyA, pc.bodyB
	ri := pointA.Sub(bi.Transform.Position)
	rj := pointB.Sub(bj.Transform.Position)
	if !mathx.IsFinite(ri) || !mathx.IsFinite(rj) || !mathx.IsFinite(normal) {
		n.world.Logger.Warn("dropping non-finite contact",
			"bodyA", bi.ID, "bodyB", bj.ID,
			"shapeA", pc.a.shape.Type().String(), "shapeB", pc.b.shape.Type().String())
		return true
	}

	for _, c := range n.Contacts[pc.start:] {
		if c.RJ.Sub(rj).LenSqr() < duplicateEpsilonSq && c.NI.Dot(normal) > 0.99 {
			return true
		}
	}

	c := n.newContact(bi, bj)
	c.NI = normal
	c.RI = ri
	c.RJ = rj
	c.ShapeA = pc.a.id
	c.ShapeB = pc.b.id
	c.Restitution = pc.restitution
	c.SetSpookParams(pc.material.ContactEquationStiffness, pc.material.ContactEquationRelaxation, n.world.dt)
	c.Enabled = bi.CollisionResponse && bj.CollisionResponse
	n.Contacts = append(n.Contacts, c)
	pc.count++

	if pc.friction > 0 && !n.EnableFrictionReduction {
		n.addFrictionPair(pc, ri, rj, normal, c.Enabled)
	}
	return true
}

func (n *Narrowphase) addFrictionPair(pc *pairContext, ri, rj, normal mgl64.Vec3, enabled bool) {
	t1, t2 := mathx.Tangents(normal)
	for _, t := range [2]mgl64.Vec3{t1, t2} {
		f := n.newFriction(pc.bodyA, pc.bodyB, pc.slip)
		f.RI = ri
		f.RJ = rj
		f.T = t
		f.SetSpookParams(pc.material.FrictionEquationStiffness, pc.material.FrictionEquationRelaxation, n.world.dt)
		f.Enabled = enabled
		n.Frictions = append(n.Frictions, f)
	}
}

// averageFriction adds one friction pair at the mean contact point of a body pair.
func (n *Narrowphase) averageFriction(pc *pairContext, contacts []*equation.Contact) {
	var ri, rj, normal mgl64.Vec3
	enabled := false
	for _, c := range contacts {
		// contacts of swapped leaf pairs point the other way
		if c.BodyA == pc.bodyA {
			ri, rj, normal = ri.Add(c.RI), rj.Add(c.RJ), normal.Add(c.NI)
		} else {
			ri, rj, normal = ri.Add(c.RJ), rj.Add(c.RI), normal.Sub(c.NI)
		}
		enabled = enabled || c.Enabled
	}
	inv := 1.0 / float64(len(contacts))
	if normal.LenSqr() == 0 {
		return
	}
	n.addFrictionPair(pc, ri.Mul(inv), rj.Mul(inv), normal.Normalize(), enabled)
}

func (n *Narrowphase) newContact(bi, bj *actor.RigidBody) *equation.Contact {
	if k := len(n.contactPool); k > 0 {
		c := n.contactPool[k-1]
		n.contactPool = n.contactPool[:k-1]
		c.Reset(bi, bj)
		return c
	}
	return equation.NewContact(bi, bj, equation.DefaultMaxForce)
}

func (n *Narrowphase) newFriction(bi, bj *actor.RigidBody, slip float64) *equation.Friction {
	if k := len(n.frictionPool); k > 0 {
		f := n.frictionPool[k-1]
		n.frictionPool = n.frictionPool[:k-1]
		f.Reset(bi, bj, slip)
		return f
	}
	return equation.NewFriction(bi, bj, slip)
}

// RecordImpulses stores the average normal impulse of every body pair after a
// solve. It bounds the friction of the next step.
func (n *Narrowphase) RecordImpulses() {
	clear(n.nextImpulses)
	clear(n.counts)
	for _, c := range n.Contacts {
		key := PackPair(c.BodyA.ID, c.BodyB.ID)
		n.nextImpulses[key] += c.Lambda
		n.counts[key]++
	}
	for key, sum := range n.nextImpulses {
		n.nextImpulses[key] = sum / float64(n.counts[key])
	}
	n.impulses, n.nextImpulses = n.nextImpulses, n.impulses
}

// forgetBody drops the impulse history of a removed body.
func (n *Narrowphase) forgetBody(id int) {
	for key := range n.impulses {
		if i, j := Unpack(key); i == id || j == id {
			delete(n.impulses, key)
		}
	}
}
