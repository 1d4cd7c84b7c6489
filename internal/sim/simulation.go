package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	defaultTickRate      = 60
	defaultTrailCapacity = 150
	defaultTrailEpsilon  = 0.5
	inputBuffer          = 64
)

// Frame is the observable robot state handed to sinks once per tick. Trail
// is freshly copied each tick and shared by every sink, so treat it as
// read-only.
type Frame struct {
	Tick      uint64    `json:"tick"`
	Time      time.Time `json:"time"`
	Command   Command   `json:"command"`
	Velocity  Vec       `json:"velocity"`
	Position  Vec       `json:"position"`
	Collision Collision `json:"collision"`
	Trail     []Vec     `json:"trail,omitempty"`
	MaxSpeed  float64   `json:"max_speed"`
	Arena     Arena     `json:"arena"`
}

// Speed returns the magnitude of the frame velocity.
func (f Frame) Speed() float64 {
	return f.Velocity.Len()
}

// SpeedRatio returns speed relative to the max speed, capped at 1.
func (f Frame) SpeedRatio() float64 {
	if f.MaxSpeed <= 0 {
		return 0
	}
	return math.Min(1, f.Speed()/f.MaxSpeed)
}

// Sink consumes frames. Render is called from the simulation goroutine and
// must not block.
type Sink interface {
	Render(Frame)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Frame)

// Render calls f(frame).
func (f SinkFunc) Render(frame Frame) { f(frame) }

// Options configures a Simulation. Zero fields fall back to defaults.
type Options struct {
	Params        Params
	TickRate      int
	TrailCapacity int
	TrailEpsilon  float64
	Start         *Vec
	Clock         clock.Clock
	Logger        *zap.SugaredLogger
}

// Simulation drives the motion model at a fixed rate from the commands held
// in a Store. Everything except the Store and the pending input queues is
// owned by the goroutine calling Run.
type Simulation struct {
	store    *Store
	params   Params
	interval time.Duration
	clock    clock.Clock
	logger   *zap.SugaredLogger
	sinks    []Sink

	trail    *Trail
	vel, pos Vec
	tick     uint64
	last     Command

	manual chan Command
	tuning chan Params
	latest atomic.Pointer[Frame]
}

// New creates a simulation reading commands from store. The robot starts at
// rest in the arena centre unless opts.Start is set.
func New(store *Store, opts Options, sinks ...Sink) (*Simulation, error) {
	if store == nil {
		return nil, errors.New("command store is required")
	}
	if opts.Params == (Params{}) {
		opts.Params = DefaultParams()
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid motion params: %w", err)
	}
	if opts.TickRate <= 0 {
		opts.TickRate = defaultTickRate
	}
	if opts.TrailCapacity <= 0 {
		opts.TrailCapacity = defaultTrailCapacity
	}
	switch {
	case opts.TrailEpsilon == 0:
		opts.TrailEpsilon = defaultTrailEpsilon
	case !(opts.TrailEpsilon > 0) || math.IsInf(opts.TrailEpsilon, 0):
		return nil, fmt.Errorf("trail epsilon must be positive and finite, got %v", opts.TrailEpsilon)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	pos := opts.Params.Arena.Center()
	if opts.Start != nil {
		pos = *opts.Start
	}
	if err := opts.Params.Check(Vec{}, pos); err != nil {
		return nil, fmt.Errorf("start position: %w", err)
	}

	return &Simulation{
		store:    store,
		params:   opts.Params,
		interval: time.Second / time.Duration(opts.TickRate),
		clock:    opts.Clock,
		logger:   opts.Logger,
		sinks:    sinks,
		trail:    NewTrail(opts.TrailCapacity, opts.TrailEpsilon),
		pos:      pos,
		last:     store.Get(),
		manual:   make(chan Command, inputBuffer),
		tuning:   make(chan Params, 1),
	}, nil
}

// Interval returns the tick period.
func (s *Simulation) Interval() time.Duration {
	return s.interval
}

// Manual queues a key-press command. It is written to the store at the start
// of the next tick. It reports false if the queue is full.
func (s *Simulation) Manual(cmd Command) bool {
	select {
	case s.manual <- cmd:
		return true
	default:
		s.logger.Warnw("manual input queue full, dropping command", "command", cmd.String())
		return false
	}
}

// Retune schedules new motion params for the next tick. A pending update that
// has not been applied yet is replaced.
func (s *Simulation) Retune(p Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid motion params: %w", err)
	}
	for {
		select {
		case s.tuning <- p:
			return nil
		default:
		}
		select {
		case <-s.tuning:
		default:
		}
	}
}

// Latest returns the most recently published frame. It is safe to call from
// any goroutine.
func (s *Simulation) Latest() (Frame, bool) {
	f := s.latest.Load()
	if f == nil {
		return Frame{}, false
	}
	return *f, true
}

// Run ticks until ctx is cancelled or an invariant breaks. Cancellation is a
// normal quit and returns nil.
func (s *Simulation) Run(ctx context.Context) error {
	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	s.logger.Infow("simulation started", "interval", s.interval, "position", s.pos)
	for {
		select {
		case <-ctx.Done():
			s.logger.Infow("simulation stopped", "tick", s.tick)
			return nil
		case <-ticker.C:
			if _, err := s.advance(); err != nil {
				s.logger.Errorw("simulation halted", "tick", s.tick, "error", err)
				return err
			}
		}
	}
}

func (s *Simulation) advance() (Frame, error) {
	s.drainManual()
	s.drainTuning()

	cmd := s.store.Get()
	if cmd != s.last {
		s.logger.Infow("command changed", "from", s.last.String(), "to", cmd.String())
		s.last = cmd
	}

	vel, pos, hit := s.params.Step(cmd, s.vel, s.pos, 1)
	if err := s.params.Check(vel, pos); err != nil {
		return Frame{}, err
	}
	s.vel, s.pos = vel, pos
	s.tick++
	s.trail.Record(pos)

	frame := Frame{
		Tick:      s.tick,
		Time:      s.clock.Now(),
		Command:   cmd,
		Velocity:  vel,
		Position:  pos,
		Collision: hit,
		Trail:     s.trail.Snapshot(),
		MaxSpeed:  s.params.MaxSpeed,
		Arena:     s.params.Arena,
	}
	if hit.Any() {
		s.logger.Debugw("wall collision", "tick", s.tick, "x", hit.X, "y", hit.Y, "velocity", vel)
	}
	s.latest.Store(&frame)
	for _, sink := range s.sinks {
		s.render(sink, frame)
	}
	return frame, nil
}

func (s *Simulation) render(sink Sink, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorw("sink panicked, frame dropped", "tick", frame.Tick, "panic", r)
		}
	}()
	sink.Render(frame)
}

func (s *Simulation) drainManual() {
	for {
		select {
		case cmd := <-s.manual:
			s.store.Set(cmd)
		default:
			return
		}
	}
}

func (s *Simulation) drainTuning() {
	select {
	case p := <-s.tuning:
		s.applyParams(p)
	default:
	}
}

// applyParams swaps in new tuning and pulls the current state back inside
// the new envelope.
func (s *Simulation) applyParams(p Params) {
	lo, hi := p.Arena.Bounds()
	s.pos.X = math.Min(math.Max(s.pos.X, lo.X), hi.X)
	s.pos.Y = math.Min(math.Max(s.pos.Y, lo.Y), hi.Y)
	s.vel.X = math.Min(math.Max(s.vel.X, -p.MaxSpeed), p.MaxSpeed)
	s.vel.Y = math.Min(math.Max(s.vel.Y, -p.MaxSpeed), p.MaxSpeed)
	s.params = p
	s.logger.Infow("motion params updated", "max_speed", p.MaxSpeed, "acceleration", p.Acceleration,
		"friction", p.Friction, "restitution", p.Restitution, "arena", p.Arena)
}
