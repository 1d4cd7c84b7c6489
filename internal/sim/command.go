package sim

import (
	"fmt"
	"strings"
)

// Command is a discrete directional instruction for the robot.
type Command uint8

// The zero value is Stop so an unset Command never implies motion.
const (
	Stop Command = iota
	Forward
	Backward
	Left
	Right
)

type commandInfo struct {
	token string
	name  string
	// target velocity sign per axis, scaled by the max speed.
	axis [2]float64
}

var commandTable = [...]commandInfo{
	Stop:     {token: "S", name: "stop"},
	Forward:  {token: "F", name: "forward", axis: [2]float64{0, -1}},
	Backward: {token: "B", name: "backward", axis: [2]float64{0, 1}},
	Left:     {token: "L", name: "left", axis: [2]float64{-1, 0}},
	Right:    {token: "R", name: "right", axis: [2]float64{1, 0}},
}

// Commands lists every valid command in display order.
var Commands = []Command{Forward, Backward, Left, Right, Stop}

// Valid reports whether c is one of the defined commands.
func (c Command) Valid() bool {
	return int(c) < len(commandTable)
}

func (c Command) info() commandInfo {
	if !c.Valid() {
		return commandTable[Stop]
	}
	return commandTable[c]
}

// String returns the single-letter wire token.
func (c Command) String() string {
	return c.info().token
}

// Name returns the lowercase human readable name.
func (c Command) Name() string {
	return c.info().name
}

// Target returns the per-axis target velocity for c at the given max speed.
func (c Command) Target(maxSpeed float64) Vec {
	axis := c.info().axis
	return Vec{X: axis[0] * maxSpeed, Y: axis[1] * maxSpeed}
}

// ParseCommand maps a wire token to a Command. Letters are case-insensitive
// and the full names are accepted too. Anything else yields Stop with ok set
// to false so callers can record the anomaly.
func ParseCommand(token string) (cmd Command, ok bool) {
	token = strings.TrimSpace(token)
	for i, info := range commandTable {
		if strings.EqualFold(token, info.token) || strings.EqualFold(token, info.name) {
			return Command(i), true
		}
	}
	return Stop, false
}

// MarshalText encodes the command as its wire token.
func (c Command) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a wire token. Unlike ParseCommand it rejects unknown
// tokens.
func (c *Command) UnmarshalText(text []byte) error {
	cmd, ok := ParseCommand(string(text))
	if !ok {
		return fmt.Errorf("unknown command %q", text)
	}
	*c = cmd
	return nil
}
