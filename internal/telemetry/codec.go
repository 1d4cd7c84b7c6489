// Package telemetry streams simulation frames to websocket clients and
// accepts commands from them. Messages use the protobuf wire format described
// in proto/telemetry.proto.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"tiltbot/internal/sim"
)

const (
	frameTick       protowire.Number = 1
	frameCommand    protowire.Number = 2
	frameVelocity   protowire.Number = 3
	framePosition   protowire.Number = 4
	frameCollisionX protowire.Number = 5
	frameCollisionY protowire.Number = 6
	frameTrail      protowire.Number = 7
	frameMaxSpeed   protowire.Number = 8
	frameUnixNanos  protowire.Number = 9
	frameArena      protowire.Number = 10

	controlCommand protowire.Number = 1
)

var errTruncated = errors.New("truncated message")

// EncodeFrame serializes f as a Frame message.
func EncodeFrame(f sim.Frame) []byte {
	b := make([]byte, 0, 64+len(f.Trail)*20)
	b = protowire.AppendTag(b, frameTick, protowire.VarintType)
	b = protowire.AppendVarint(b, f.Tick)
	b = protowire.AppendTag(b, frameCommand, protowire.BytesType)
	b = protowire.AppendString(b, f.Command.String())
	b = appendVec(b, frameVelocity, f.Velocity)
	b = appendVec(b, framePosition, f.Position)
	b = appendBool(b, frameCollisionX, f.Collision.X)
	b = appendBool(b, frameCollisionY, f.Collision.Y)
	for _, p := range f.Trail {
		b = appendVec(b, frameTrail, p)
	}
	b = appendDouble(b, frameMaxSpeed, f.MaxSpeed)
	if !f.Time.IsZero() {
		b = protowire.AppendTag(b, frameUnixNanos, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.Time.UnixNano()))
	}

	var arena []byte
	arena = appendDouble(arena, 1, f.Arena.Width)
	arena = appendDouble(arena, 2, f.Arena.Height)
	arena = appendDouble(arena, 3, f.Arena.HalfExtent)
	b = protowire.AppendTag(b, frameArena, protowire.BytesType)
	b = protowire.AppendBytes(b, arena)
	return b
}

// DecodeFrame parses a Frame message. Unknown fields are skipped.
func DecodeFrame(b []byte) (sim.Frame, error) {
	var f sim.Frame
	err := walk(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		switch {
		case num == frameTick && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			f.Tick = v
			return n, nil
		case num == frameCommand && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(field)
			if n >= 0 {
				cmd, ok := sim.ParseCommand(s)
				if !ok {
					return 0, fmt.Errorf("unknown command %q", s)
				}
				f.Command = cmd
			}
			return n, nil
		case (num == frameVelocity || num == framePosition || num == frameTrail) && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			v, err := decodeVec(raw)
			if err != nil {
				return 0, err
			}
			switch num {
			case frameVelocity:
				f.Velocity = v
			case framePosition:
				f.Position = v
			default:
				f.Trail = append(f.Trail, v)
			}
			return n, nil
		case (num == frameCollisionX || num == frameCollisionY) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			if num == frameCollisionX {
				f.Collision.X = v != 0
			} else {
				f.Collision.Y = v != 0
			}
			return n, nil
		case num == frameMaxSpeed && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(field)
			f.MaxSpeed = math.Float64frombits(v)
			return n, nil
		case num == frameUnixNanos && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(field)
			f.Time = time.Unix(0, int64(v))
			return n, nil
		case num == frameArena && typ == protowire.BytesType:
			raw, n := protowire.ConsumeBytes(field)
			if n < 0 {
				return n, nil
			}
			a, err := decodeArena(raw)
			if err != nil {
				return 0, err
			}
			f.Arena = a
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return sim.Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// EncodeControl serializes a ControlUpdate carrying token.
func EncodeControl(token string) []byte {
	b := protowire.AppendTag(nil, controlCommand, protowire.BytesType)
	return protowire.AppendString(b, token)
}

// DecodeControl returns the raw command token of a ControlUpdate.
func DecodeControl(b []byte) (string, error) {
	var token string
	err := walk(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if num == controlCommand && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(field)
			token = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, field), nil
	})
	if err != nil {
		return "", fmt.Errorf("decode control: %w", err)
	}
	return token, nil
}

// walk iterates the fields of a message. fn receives the bytes following the
// tag and returns how many it consumed, or a negative protowire error code.
func walk(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		if m > len(b) {
			return errTruncated
		}
		b = b[m:]
	}
	return nil
}

func decodeVec(b []byte) (sim.Vec, error) {
	var v sim.Vec
	err := walk(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if typ != protowire.Fixed64Type || (num != 1 && num != 2) {
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
		bits, n := protowire.ConsumeFixed64(field)
		if num == 1 {
			v.X = math.Float64frombits(bits)
		} else {
			v.Y = math.Float64frombits(bits)
		}
		return n, nil
	})
	return v, err
}

func decodeArena(b []byte) (sim.Arena, error) {
	var a sim.Arena
	err := walk(b, func(num protowire.Number, typ protowire.Type, field []byte) (int, error) {
		if typ != protowire.Fixed64Type {
			return protowire.ConsumeFieldValue(num, typ, field), nil
		}
		bits, n := protowire.ConsumeFixed64(field)
		switch num {
		case 1:
			a.Width = math.Float64frombits(bits)
		case 2:
			a.Height = math.Float64frombits(bits)
		case 3:
			a.HalfExtent = math.Float64frombits(bits)
		}
		return n, nil
	})
	return a, err
}

func appendVec(b []byte, num protowire.Number, v sim.Vec) []byte {
	var inner []byte
	inner = appendDouble(inner, 1, v.X)
	inner = appendDouble(inner, 2, v.Y)
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}
