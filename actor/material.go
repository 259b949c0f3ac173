package actor

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

var materialIDs atomic.Int64

// ErrInvalidMaterial reports out of range material coefficients.
var ErrInvalidMaterial = errors.New("invalid material")

// Material names a surface kind. Friction and Restitution are optional
// per-material coefficients, negative when unset; pairs registered as
// ContactMaterial take precedence.
type Material struct {
	ID          int
	Name        string
	Friction    float64
	Restitution float64
}

func NewMaterial(name string) *Material {
	return &Material{
		ID:          int(materialIDs.Add(1)),
		Name:        name,
		Friction:    -1,
		Restitution: -1,
	}
}

// ContactMaterial describes how two materials interact on contact.
type ContactMaterial struct {
	MaterialA, MaterialB *Material

	Friction    float64
	Restitution float64

	ContactEquationStiffness   float64
	ContactEquationRelaxation  float64
	FrictionEquationStiffness  float64
	FrictionEquationRelaxation float64
}

// NewContactMaterial creates a contact material with the default equation stiffness and relaxation.
func NewContactMaterial(a, b *Material, friction, restitution float64) (*ContactMaterial, error) {
	cm := &ContactMaterial{
		MaterialA:                  a,
		MaterialB:                  b,
		Friction:                   friction,
		Restitution:                restitution,
		ContactEquationStiffness:   1e7,
		ContactEquationRelaxation:  3,
		FrictionEquationStiffness:  1e7,
		FrictionEquationRelaxation: 3,
	}
	if err := cm.Validate(); err != nil {
		return nil, err
	}
	return cm, nil
}

func (cm *ContactMaterial) Validate() error {
	if cm.Friction < 0 || math.IsNaN(cm.Friction) || math.IsInf(cm.Friction, 0) {
		return fmt.Errorf("%w: friction %v", ErrInvalidMaterial, cm.Friction)
	}
	if cm.Restitution < 0 || math.IsNaN(cm.Restitution) || math.IsInf(cm.Restitution, 0) {
		return fmt.Errorf("%w: restitution %v", ErrInvalidMaterial, cm.Restitution)
	}
	for name, v := range map[string]float64{
		"contact stiffness":   cm.ContactEquationStiffness,
		"contact relaxation":  cm.ContactEquationRelaxation,
		"friction stiffness":  cm.FrictionEquationStiffness,
		"friction relaxation": cm.FrictionEquationRelaxation,
	} {
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %v", ErrInvalidMaterial, name, v)
		}
	}
	return nil
}

// MixFriction combines two per-material friction coefficients with their
// geometric mean. ok is false when either coefficient is unset.
func MixFriction(a, b *Material) (friction float64, ok bool) {
	if a == nil || b == nil || a.Friction < 0 || b.Friction < 0 {
		return 0, false
	}
	return math.Sqrt(a.Friction * b.Friction), true
}

// MixRestitution averages two per-material restitution coefficients.
// ok is false when either coefficient is unset.
func MixRestitution(a, b *Material) (restitution float64, ok bool) {
	if a == nil || b == nil || a.Restitution < 0 || b.Restitution < 0 {
		return 0, false
	}
	return (a.Restitution + b.Restitution) / 2.0, true
}
