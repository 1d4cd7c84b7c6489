package sim

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// ErrInvariant is returned when the robot state leaves its allowed envelope.
var ErrInvariant = errors.New("simulation invariant violated")

// Vec is a 2D vector in arena units.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns v+o.
func (v Vec) Add(o Vec) Vec {
	return Vec{X: v.X + o.X, Y: v.Y + o.Y}
}

// Scale returns v*k.
func (v Vec) Scale(k float64) Vec {
	return Vec{X: v.X * k, Y: v.Y * k}
}

// Len returns the Euclidean magnitude of v.
func (v Vec) Len() float64 {
	return math.Hypot(v.X, v.Y)
}

// Dist returns the Euclidean distance between v and o.
func (v Vec) Dist(o Vec) float64 {
	return math.Hypot(v.X-o.X, v.Y-o.Y)
}

// Arena is the rectangular play field. The robot is a square of side
// 2*HalfExtent whose centre must stay HalfExtent away from every wall.
type Arena struct {
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	HalfExtent float64 `json:"half_extent"`
}

// Bounds returns the inclusive range allowed for the robot centre.
func (a Arena) Bounds() (lo, hi Vec) {
	lo = Vec{X: a.HalfExtent, Y: a.HalfExtent}
	hi = Vec{X: a.Width - a.HalfExtent, Y: a.Height - a.HalfExtent}
	return lo, hi
}

// Center returns the middle of the arena.
func (a Arena) Center() Vec {
	return Vec{X: a.Width / 2, Y: a.Height / 2}
}

// Params tunes the motion model. Velocities are in units per tick.
type Params struct {
	Arena Arena `json:"arena"`

	MaxSpeed      float64 `json:"max_speed"`
	Acceleration  float64 `json:"acceleration"`
	Friction      float64 `json:"friction"`
	SnapThreshold float64 `json:"snap_threshold"`
	Restitution   float64 `json:"restitution"`
}

// DefaultParams returns the tuning the robot ships with.
func DefaultParams() Params {
	return Params{
		Arena:         Arena{Width: 800, Height: 600, HalfExtent: 20},
		MaxSpeed:      4,
		Acceleration:  0.6,
		Friction:      0.92,
		SnapThreshold: 0.1,
		Restitution:   0.7,
	}
}

// Validate reports every out-of-range parameter.
func (p Params) Validate() error {
	var err error
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"max speed", p.MaxSpeed},
		{"acceleration", p.Acceleration},
		{"friction", p.Friction},
		{"snap threshold", p.SnapThreshold},
		{"restitution", p.Restitution},
		{"arena width", p.Arena.Width},
		{"arena height", p.Arena.Height},
		{"half extent", p.Arena.HalfExtent},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			err = multierr.Append(err, fmt.Errorf("%s must be finite, got %v", f.name, f.v))
		}
	}
	if p.MaxSpeed <= 0 {
		err = multierr.Append(err, fmt.Errorf("max speed must be positive, got %v", p.MaxSpeed))
	}
	if p.Acceleration <= 0 {
		err = multierr.Append(err, fmt.Errorf("acceleration must be positive, got %v", p.Acceleration))
	}
	if p.Friction <= 0 || p.Friction >= 1 {
		err = multierr.Append(err, fmt.Errorf("friction must be in (0,1), got %v", p.Friction))
	}
	if p.SnapThreshold <= 0 {
		err = multierr.Append(err, fmt.Errorf("snap threshold must be positive, got %v", p.SnapThreshold))
	}
	if p.Restitution < 0 || p.Restitution >= 1 {
		err = multierr.Append(err, fmt.Errorf("restitution must be in [0,1), got %v", p.Restitution))
	}
	if p.Arena.HalfExtent < 0 {
		err = multierr.Append(err, fmt.Errorf("half extent must not be negative, got %v", p.Arena.HalfExtent))
	}
	if p.Arena.Width < 2*p.Arena.HalfExtent || p.Arena.Height < 2*p.Arena.HalfExtent {
		err = multierr.Append(err, fmt.Errorf("arena %vx%v cannot hold a robot of half extent %v",
			p.Arena.Width, p.Arena.Height, p.Arena.HalfExtent))
	}
	return err
}

// Collision records which axes hit a wall during a step.
type Collision struct {
	X bool `json:"x"`
	Y bool `json:"y"`
}

// Any reports whether either axis collided.
func (c Collision) Any() bool {
	return c.X || c.Y
}

// Step advances the robot by dt ticks under cmd. Both axes are driven every
// call: an axis the command does not address decays toward zero.
func (p Params) Step(cmd Command, vel, pos Vec, dt float64) (Vec, Vec, Collision) {
	target := cmd.Target(p.MaxSpeed)
	vel.X = p.drive(vel.X, target.X, dt)
	vel.Y = p.drive(vel.Y, target.Y, dt)

	pos = pos.Add(vel.Scale(dt))

	lo, hi := p.Arena.Bounds()
	var hit Collision
	pos.X, vel.X, hit.X = p.bounce(pos.X, vel.X, lo.X, hi.X)
	pos.Y, vel.Y, hit.Y = p.bounce(pos.Y, vel.Y, lo.Y, hi.Y)
	return vel, pos, hit
}

func (p Params) drive(v, target, dt float64) float64 {
	if target != 0 {
		step := p.Acceleration * dt
		switch {
		case v < target:
			return math.Min(target, v+step)
		case v > target:
			return math.Max(target, v-step)
		}
		return v
	}

	v *= math.Pow(p.Friction, dt)
	if math.Abs(v) < p.SnapThreshold {
		return 0
	}
	return v
}

// bounce clamps x into [lo, hi] and reflects v off whichever wall was reached.
// It reports a hit only when x was clamped or v reflected.
func (p Params) bounce(x, v, lo, hi float64) (float64, float64, bool) {
	switch {
	case x <= lo:
		hit := x < lo || v < 0
		if v < 0 {
			v = -v * p.Restitution
		}
		return lo, v, hit
	case x >= hi:
		hit := x > hi || v > 0
		if v > 0 {
			v = -v * p.Restitution
		}
		return hi, v, hit
	}
	return x, v, false
}

// Check verifies the speed and arena invariants for a state.
func (p Params) Check(vel, pos Vec) error {
	if math.Abs(vel.X) > p.MaxSpeed || math.Abs(vel.Y) > p.MaxSpeed || math.IsNaN(vel.X) || math.IsNaN(vel.Y) {
		return fmt.Errorf("%w: velocity %+v exceeds max speed %v", ErrInvariant, vel, p.MaxSpeed)
	}
	lo, hi := p.Arena.Bounds()
	if !(pos.X >= lo.X && pos.X <= hi.X && pos.Y >= lo.Y && pos.Y <= hi.Y) {
		return fmt.Errorf("%w: position %+v outside %+v..%+v", ErrInvariant, pos, lo, hi)
	}
	return nil
}
