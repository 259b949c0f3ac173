// Package solver resolves equation sets into body velocity corrections with
// projected Gauss-Seidel iterations.
package solver

import (
	"math"
	"slices"

	"github.com/akmonengine/ballista/actor"
	"github.com/akmonengine/ballista/equation"
	"github.com/akmonengine/ballista/mathx"
	"github.com/go-gl/mathgl/mgl64"
)

const (
	DefaultIterations = 10
	DefaultTolerance  = 1e-7
)

// Solver collects the equations of one step and applies the resulting
// velocity corrections to the bodies.
type Solver interface {
	AddEquation(eq equation.Equation)
	RemoveEquation(eq equation.Equation)
	RemoveAllEquations()
	// Solve runs the equations registered for timestep h and returns the iterations used.
	Solve(h float64, bodies []*actor.RigidBody) int
}

// GSSolver is a projected Gauss-Seidel solver. Not converging within
// Iterations is not an error: the best estimate is kept.
type GSSolver struct {
	Iterations int
	Tolerance  float64
	Equations  []equation.Equation

	lambda []float64
	bs     []float64
	invCs  []float64
}

func NewGSSolver() *GSSolver {
	return &GSSolver{
		Iterations: DefaultIterations,
		Tolerance:  DefaultTolerance,
	}
}

// AddEquation registers eq for the next Solve. Disabled equations are ignored.
func (s *GSSolver) AddEquation(eq equation.Equation) {
	if !eq.Core().Enabled {
		return
	}
	s.Equations = append(s.Equations, eq)
}

func (s *GSSolver) RemoveEquation(eq equation.Equation) {
	if i := slices.Index(s.Equations, eq); i >= 0 {
		s.Equations = slices.Delete(s.Equations, i, i+1)
	}
}

func (s *GSSolver) RemoveAllEquations() {
	clear(s.Equations)
	s.Equations = s.Equations[:0]
}

func (s *GSSolver) Solve(h float64, bodies []*actor.RigidBody) int {
	return s.solve(h, bodies, s.Equations)
}

// solve runs the iterations over equations, touching only the given bodies'
// velocities. Solve mass properties must be up to date.
func (s *GSSolver) solve(h float64, bodies []*actor.RigidBody, equations []equation.Equation) int {
	n := len(equations)
	if n == 0 {
		return 0
	}

	s.lambda = resize(s.lambda, n)
	s.bs = resize(s.bs, n)
	s.invCs = resize(s.invCs, n)

	for i, eq := range equations {
		s.lambda[i] = 0
		s.bs[i] = eq.ComputeB(h)
		s.invCs[i] = 1.0 / eq.Core().ComputeC()
	}

	for _, b := range bodies {
		b.VLambda = mgl64.Vec3{}
		b.WLambda = mgl64.Vec3{}
	}

	toleranceSq := s.Tolerance * s.Tolerance
	iter := 0
	for iter < s.Iterations {
		iter++
		deltaLambdaTot := 0.0

		for j, eq := range equations {
			c := eq.Core()
			lambdaJ := s.lambda[j]
			gwLambda := c.ComputeGWlambda()
			deltaLambda := s.invCs[j] * (s.bs[j] - gwLambda - c.Eps*lambdaJ)

			if lambdaJ+deltaLambda < c.MinForce {
				deltaLambda = c.MinForce - lambdaJ
			} else if lambdaJ+deltaLambda > c.MaxForce {
				deltaLambda = c.MaxForce - lambdaJ
			}
			s.lambda[j] += deltaLambda
			deltaLambdaTot += math.Abs(deltaLambda)

			c.AddToWlambda(deltaLambda)
		}

		if deltaLambdaTot*deltaLambdaTot < toleranceSq {
			break
		}
	}

	for _, b := range bodies {
		if b.InvMassSolve == 0 {
			continue
		}
		b.Velocity = b.Velocity.Add(mathx.Scale(b.VLambda, b.LinearFactor))
		b.AngularVelocity = b.AngularVelocity.Add(mathx.Scale(b.WLambda, b.AngularFactor))
	}

	for i, eq := range equations {
		c := eq.Core()
		c.Lambda = s.lambda[i]
		c.Multiplier = s.lambda[i] / h
	}

	return iter
}

func resize(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
