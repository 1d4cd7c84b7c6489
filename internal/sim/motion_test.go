package sim

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestStepAcceleratesWithoutOvershoot(t *testing.T) {
	p := DefaultParams()
	vel, pos := Vec{}, p.Arena.Center()
	for i := 0; i < 20; i++ {
		vel, pos, _ = p.Step(Right, vel, pos, 1)
		if vel.X > p.MaxSpeed {
			t.Fatalf("tick %d: velocity %v overshot max speed", i, vel.X)
		}
	}
	if vel.X != p.MaxSpeed {
		t.Fatalf("expected velocity to settle at %v, got %v", p.MaxSpeed, vel.X)
	}
}

func TestStepSteadyState(t *testing.T) {
	p := DefaultParams()
	vel := Vec{X: 0, Y: -p.MaxSpeed}
	pos := p.Arena.Center()
	for i := 0; i < 5; i++ {
		next, _, _ := p.Step(Forward, vel, pos, 1)
		if next != vel {
			t.Fatalf("expected steady velocity %+v, got %+v", vel, next)
		}
	}
}

func TestStopDecaysToZero(t *testing.T) {
	p := DefaultParams()
	vel, pos := Vec{X: 3, Y: -4}, p.Arena.Center()
	prev := vel.Len()
	for i := 0; i < 60; i++ {
		vel, pos, _ = p.Step(Stop, vel, pos, 1)
		if vel == (Vec{}) {
			return
		}
		if vel.Len() >= prev {
			t.Fatalf("tick %d: speed %v did not drop below %v", i, vel.Len(), prev)
		}
		if vel.X < 0 || vel.Y > 0 {
			t.Fatalf("tick %d: friction inverted velocity %+v", i, vel)
		}
		prev = vel.Len()
	}
	t.Fatalf("velocity never reached zero, last %+v", vel)
}

func TestSnapToZero(t *testing.T) {
	p := DefaultParams()
	vel, _, _ := p.Step(Stop, Vec{X: 0.105, Y: -0.2}, p.Arena.Center(), 1)
	if vel.X != 0 {
		t.Fatalf("expected x to snap to 0, got %v", vel.X)
	}
	if vel.Y != -0.2*p.Friction {
		t.Fatalf("expected y to decay to %v, got %v", -0.2*p.Friction, vel.Y)
	}
}

func TestCollisionAtFarEdge(t *testing.T) {
	p := DefaultParams()
	_, hi := p.Arena.Bounds()
	vel, pos, hit := p.Step(Right, Vec{X: p.MaxSpeed}, Vec{X: hi.X - 1, Y: 300}, 1)
	if !hit.X || hit.Y {
		t.Fatalf("expected only x collision, got %+v", hit)
	}
	if pos.X != hi.X {
		t.Fatalf("expected x clamped to %v, got %v", hi.X, pos.X)
	}
	if want := -p.MaxSpeed * p.Restitution; vel.X != want {
		t.Fatalf("expected reflected velocity %v, got %v", want, vel.X)
	}
}

func TestCollisionAtNearEdge(t *testing.T) {
	p := DefaultParams()
	lo, _ := p.Arena.Bounds()
	vel, pos, hit := p.Step(Forward, Vec{Y: -p.MaxSpeed}, Vec{X: 400, Y: lo.Y + 2}, 1)
	if !hit.Y {
		t.Fatal("expected y collision")
	}
	if pos.Y != lo.Y {
		t.Fatalf("expected y clamped to %v, got %v", lo.Y, pos.Y)
	}
	if want := p.MaxSpeed * p.Restitution; vel.Y != want {
		t.Fatalf("expected reflected velocity %v, got %v", want, vel.Y)
	}
}

func TestLargeVelocityClampsExactly(t *testing.T) {
	p := DefaultParams()
	p.MaxSpeed = 50
	_, hi := p.Arena.Bounds()
	vel, pos, hit := p.Step(Right, Vec{X: 50}, Vec{X: hi.X - 10, Y: 300}, 1)
	if !hit.X {
		t.Fatal("expected x collision")
	}
	if pos.X != hi.X {
		t.Fatalf("expected x exactly %v, got %v", hi.X, pos.X)
	}
	if want := -50 * p.Restitution; vel.X != want {
		t.Fatalf("expected restitution applied once (%v), got %v", want, vel.X)
	}
}

func TestRestingOnEdgeIsStable(t *testing.T) {
	p := DefaultParams()
	_, hi := p.Arena.Bounds()
	pos := Vec{X: hi.X, Y: 300}
	for i := 0; i < 3; i++ {
		vel, next, hit := p.Step(Stop, Vec{}, pos, 1)
		if next != pos || vel != (Vec{}) {
			t.Fatalf("expected idempotent clamp, got pos %+v vel %+v", next, vel)
		}
		if hit.Any() {
			t.Fatalf("tick %d: resting on the wall reported a collision %+v", i, hit)
		}
		if math.Signbit(vel.X) {
			t.Fatal("expected positive zero velocity")
		}
	}
}

func TestAxesDrivenIndependently(t *testing.T) {
	p := DefaultParams()
	vel, pos := Vec{}, p.Arena.Center()

	vel, pos, _ = p.Step(Forward, vel, pos, 1)
	if vel.X != 0 || vel.Y != -p.Acceleration {
		t.Fatalf("tick 1: unexpected velocity %+v", vel)
	}

	vel, pos, _ = p.Step(Left, vel, pos, 1)
	wantY := -p.Acceleration * p.Friction
	if vel.X != -p.Acceleration || vel.Y != wantY {
		t.Fatalf("tick 2: expected (%v,%v), got %+v", -p.Acceleration, wantY, vel)
	}

	vel, _, _ = p.Step(Forward, vel, pos, 1)
	wantX := -p.Acceleration * p.Friction
	wantY = wantY - p.Acceleration
	if vel.X != wantX || vel.Y != wantY {
		t.Fatalf("tick 3: expected (%v,%v), got %+v", wantX, wantY, vel)
	}
}

func TestStepScalesWithDt(t *testing.T) {
	p := DefaultParams()
	vel, pos, _ := p.Step(Right, Vec{}, p.Arena.Center(), 2)
	if want := 2 * p.Acceleration; vel.X != want {
		t.Fatalf("expected velocity %v, got %v", want, vel.X)
	}
	if want := p.Arena.Center().X + 2*vel.X; pos.X != want {
		t.Fatalf("expected position %v, got %v", want, pos.X)
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("expected defaults to be valid, got %v", err)
	}
	bad := DefaultParams()
	bad.Friction = 1
	bad.MaxSpeed = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected invalid params to fail")
	}
}

func TestParamsValidateRejectsNonFinite(t *testing.T) {
	cases := map[string]func(*Params){
		"nan max speed":    func(p *Params) { p.MaxSpeed = math.NaN() },
		"inf max speed":    func(p *Params) { p.MaxSpeed = math.Inf(1) },
		"nan acceleration": func(p *Params) { p.Acceleration = math.NaN() },
		"nan friction":     func(p *Params) { p.Friction = math.NaN() },
		"nan snap":         func(p *Params) { p.SnapThreshold = math.NaN() },
		"nan restitution":  func(p *Params) { p.Restitution = math.NaN() },
		"inf width":        func(p *Params) { p.Arena.Width = math.Inf(1) },
		"nan height":       func(p *Params) { p.Arena.Height = math.NaN() },
		"nan half extent":  func(p *Params) { p.Arena.HalfExtent = math.NaN() },
	}
	for name, mutate := range cases {
		p := DefaultParams()
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("%s: expected validation to fail", name)
		}
	}
}

func TestCollisionOnlyWhenStateChanges(t *testing.T) {
	p := DefaultParams()
	lo, hi := p.Arena.Bounds()

	// landing exactly on the wall while moving into it reflects
	_, _, hit := p.Step(Right, Vec{X: p.MaxSpeed}, Vec{X: hi.X - p.MaxSpeed, Y: 300}, 1)
	if !hit.X {
		t.Fatal("expected reflection at the far wall to count as a collision")
	}

	// leaving the wall is not a collision
	vel, pos, hit := p.Step(Right, Vec{}, Vec{X: lo.X, Y: 300}, 1)
	if hit.Any() || pos.X <= lo.X || vel.X <= 0 {
		t.Fatalf("expected clean departure from the near wall, got pos %+v vel %+v hit %+v", pos, vel, hit)
	}
}

func TestRandomCommandsKeepInvariants(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(7))
	vel, pos := Vec{}, p.Arena.Center()
	cmd := Stop
	for tick := 0; tick < 50000; tick++ {
		if rng.Intn(20) == 0 {
			cmd = Commands[rng.Intn(len(Commands))]
		}
		vel, pos, _ = p.Step(cmd, vel, pos, 1)
		if err := p.Check(vel, pos); err != nil {
			t.Fatalf("tick %d under %v: %v", tick, cmd, err)
		}
	}
}

func TestCheck(t *testing.T) {
	p := DefaultParams()
	if err := p.Check(Vec{X: 4, Y: -4}, Vec{X: 20, Y: 580}); err != nil {
		t.Fatalf("expected boundary state to pass, got %v", err)
	}
	if err := p.Check(Vec{X: 4.01}, p.Arena.Center()); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for speed, got %v", err)
	}
	if err := p.Check(Vec{}, Vec{X: 19, Y: 300}); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for position, got %v", err)
	}
}
