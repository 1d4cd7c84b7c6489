// Package config holds the runtime settings of the robot simulator and the
// hot-reloadable motion tuning file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strconv"

	"go.uber.org/multierr"

	"tiltbot/internal/sim"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Server configures the command listener.
type Server struct {
	Host string
	Port int
	// CommandRate is the sustained number of /command requests accepted per
	// second. Zero disables limiting.
	CommandRate  float64
	CommandBurst int
}

// Addr returns host:port.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Log configures the process logger.
type Log struct {
	Level       string
	File        string
	Development bool
}

// Config is the full simulator configuration.
type Config struct {
	Physics       sim.Params
	TickRate      int
	TrailCapacity int
	TrailEpsilon  float64
	TuningFile    string
	Headless      bool
	Server        Server
	Log           Log
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Physics:       sim.DefaultParams(),
		TickRate:      60,
		TrailCapacity: 150,
		TrailEpsilon:  0.5,
		Server: Server{
			Host:         "0.0.0.0",
			Port:         5000,
			CommandRate:  50,
			CommandBurst: 20,
		},
		Log: Log{Level: "info"},
	}
}

// Validate reports every problem in c at once.
func (c Config) Validate() error {
	var err error
	if perr := c.Physics.Validate(); perr != nil {
		err = multierr.Append(err, perr)
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		err = multierr.Append(err, fmt.Errorf("tick rate must be in 1..1000, got %d", c.TickRate))
	}
	if c.TrailCapacity <= 0 {
		err = multierr.Append(err, fmt.Errorf("trail capacity must be positive, got %d", c.TrailCapacity))
	}
	if !(c.TrailEpsilon > 0) || math.IsInf(c.TrailEpsilon, 0) {
		err = multierr.Append(err, fmt.Errorf("trail epsilon must be positive and finite, got %v", c.TrailEpsilon))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port out of range: %d", c.Server.Port))
	}
	if c.Server.CommandRate < 0 || math.IsNaN(c.Server.CommandRate) || math.IsInf(c.Server.CommandRate, 0) {
		err = multierr.Append(err, fmt.Errorf("command rate must not be negative, got %v", c.Server.CommandRate))
	}
	if c.Server.CommandRate > 0 && c.Server.CommandBurst <= 0 {
		err = multierr.Append(err, fmt.Errorf("command burst must be positive when limiting, got %d", c.Server.CommandBurst))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ApplyTuning overlays the JSON object in data onto base. Fields missing from
// data keep their base value.
func ApplyTuning(base sim.Params, data []byte) (sim.Params, error) {
	p := base
	if err := json.Unmarshal(data, &p); err != nil {
		return base, fmt.Errorf("decode tuning: %w", err)
	}
	if err := p.Validate(); err != nil {
		return base, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return p, nil
}

// LoadTuning reads a tuning file and overlays it onto base.
func LoadTuning(path string, base sim.Params) (sim.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read tuning %s: %w", path, err)
	}
	return ApplyTuning(base, data)
}
