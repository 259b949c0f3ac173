package solver

import (
	"cmp"
	"slices"
	"sync"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/sync/errgroup"
)

// Island is a set of bodies connected through equations, with the equations
// acting on them. Anchor bodies (no solver mass) never join an island.
type Island struct {
	Bodies    []*actor.RigidBody
	Equations []equation.Equation
}

// SplitSolver partitions the equations into islands and solves each one with
// its own Gauss-Seidel pass. With Workers > 1 islands are solved concurrently.
type SplitSolver struct {
	Subsolver *GSSolver
	Workers   int
	Equations []equation.Equation

	islands  []Island
	islandOf []int
	adjacent [][]int
	queue    []int
	pool     sync.Pool
}

func NewSplitSolver(subsolver *GSSolver) *SplitSolver {
	if subsolver == nil {
		subsolver = NewGSSolver()
	}
	s := &SplitSolver{Subsolver: subsolver, Workers: 1}
	s.pool.New = func() any {
		return &GSSolver{}
	}
	return s
}

func (s *SplitSolver) AddEquation(eq equation.Equation) {
	if !eq.Core().Enabled {
		return
	}
	s.Equations = append(s.Equations, eq)
}

func (s *SplitSolver) RemoveEquation(eq equation.Equation) {
	if i := slices.Index(s.Equations, eq); i >= 0 {
		s.Equations = slices.Delete(s.Equations, i, i+1)
	}
}

func (s *SplitSolver) RemoveAllEquations() {
	clear(s.Equations)
	s.Equations = s.Equations[:0]
}

// Islands returns the partition computed by the last Solve.
func (s *SplitSolver) Islands() []Island {
	return s.islands
}

// Solve returns the highest iteration count used by any island.
func (s *SplitSolver) Solve(h float64, bodies []*actor.RigidBody) int {
	for _, b := range bodies {
		b.VLambda = mgl64.Vec3{}
		b.WLambda = mgl64.Vec3{}
	}

	s.buildIslands(bodies)

	results := make([]int, len(s.islands))
	if s.Workers <= 1 || len(s.islands) < 2 {
		for i := range s.islands {
			results[i] = s.Subsolver.solve(h, s.islands[i].Bodies, s.islands[i].Equations)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(s.Workers)
		for i := range s.islands {
			g.Go(func() error {
				sub := s.pool.Get().(*GSSolver)
				sub.Iterations = s.Subsolver.Iterations
				sub.Tolerance = s.Subsolver.Tolerance
				results[i] = sub.solve(h, s.islands[i].Bodies, s.islands[i].Equations)
				s.pool.Put(sub)
				return nil
			})
		}
		_ = g.Wait()
	}

	iterations := 0
	for _, r := range results {
		iterations = max(iterations, r)
	}
	return iterations
}

// buildIslands runs a breadth-first traversal over the bodies with solver
// mass, linking bodies that share an equation.
func (s *SplitSolver) buildIslands(bodies []*actor.RigidBody) {
	index := arenaIndex(bodies)

	n := len(bodies)
	s.islandOf = slices.Grow(s.islandOf[:0], n)[:n]
	s.adjacent = slices.Grow(s.adjacent[:0], n)[:n]
	for i := range n {
		s.islandOf[i] = -1
		s.adjacent[i] = s.adjacent[i][:0]
	}

	for e, eq := range s.Equations {
		c := eq.Core()
		a, b := index(c.BodyA), index(c.BodyB)
		if a >= 0 && bodies[a].InvMassSolve > 0 {
			s.adjacent[a] = append(s.adjacent[a], e)
		}
		if b >= 0 && b != a && bodies[b].InvMassSolve > 0 {
			s.adjacent[b] = append(s.adjacent[b], e)
		}
	}

	for i := range s.islands {
		clear(s.islands[i].Bodies)
		clear(s.islands[i].Equations)
	}
	s.islands = s.islands[:0]

	for root, body := range bodies {
		if s.islandOf[root] >= 0 || body.InvMassSolve == 0 {
			continue
		}

		id := len(s.islands)
		if id < cap(s.islands) {
			s.islands = s.islands[:id+1]
			s.islands[id].Bodies = s.islands[id].Bodies[:0]
			s.islands[id].Equations = s.islands[id].Equations[:0]
		} else {
			s.islands = append(s.islands, Island{})
		}
		island := &s.islands[id]

		s.islandOf[root] = id
		s.queue = append(s.queue[:0], root)
		for len(s.queue) > 0 {
			current := s.queue[0]
			s.queue = s.queue[1:]
			island.Bodies = append(island.Bodies, bodies[current])

			for _, e := range s.adjacent[current] {
				c := s.Equations[e].Core()
				for _, other := range [2]int{index(c.BodyA), index(c.BodyB)} {
					if other < 0 || s.islandOf[other] >= 0 || bodies[other].InvMassSolve == 0 {
						continue
					}
					s.islandOf[other] = id
					s.queue = append(s.queue, other)
				}
			}
		}
	}

	for _, eq := range s.Equations {
		c := eq.Core()
		id := -1
		if a := index(c.BodyA); a >= 0 && s.islandOf[a] >= 0 {
			id = s.islandOf[a]
		} else if b := index(c.BodyB); b >= 0 && s.islandOf[b] >= 0 {
			id = s.islandOf[b]
		}
		if id < 0 {
			// both ends are anchors
			continue
		}
		s.islands[id].Equations = append(s.islands[id].Equations, eq)
	}

	for i := range s.islands {
		slices.SortFunc(s.islands[i].Equations, func(a, b equation.Equation) int {
			return cmp.Compare(a.Core().ID, b.Core().ID)
		})
	}
}

// arenaIndex maps a body to its position in bodies, trusting RigidBody.Index
// when it matches and falling back to a lookup table otherwise.
func arenaIndex(bodies []*actor.RigidBody) func(*actor.RigidBody) int {
	consistent := true
	for i, b := range bodies {
		if b.Index != i {
			consistent = false
			break
		}
	}
	if consistent {
		return func(b *actor.RigidBody) int {
			if b.Index < 0 || b.Index >= len(bodies) || bodies[b.Index] != b {
				return -1
			}
			return b.Index
		}
	}

	lookup := make(map[*actor.RigidBody]int, len(bodies))
	for i, b := range bodies {
		lookup[b] = i
	}
	return func(b *actor.RigidBody) int {
		if i, ok := lookup[b]; ok {
			return i
		}
		return -1
	}
}
