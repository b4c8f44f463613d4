package game

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned for client inputs that cannot be reconciled.
var ErrInvalidInput = errors.New("invalid client input")

// ClientInput is the client's belief of the current tick and its desired
// target position for this tick.
type ClientInput struct {
	ExpectedTick float64 `json:"expected_tick"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
}

// Target returns the requested target position.
func (in ClientInput) Target() Vector2 {
	return Vector2{X: in.X, Y: in.Y}
}

type rawClientInput struct {
	ExpectedTick *float64 `json:"expected_tick"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
}

// DecodeClientInput parses a text message into a ClientInput. All three
// fields are required and must be finite.
func DecodeClientInput(data []byte) (ClientInput, error) {
	var raw rawClientInput
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientInput{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if raw.ExpectedTick == nil || raw.X == nil || raw.Y == nil {
		return ClientInput{}, fmt.Errorf("%w: expected_tick, x and y are required", ErrInvalidInput)
	}
	in := ClientInput{ExpectedTick: *raw.ExpectedTick, X: *raw.X, Y: *raw.Y}
	if err := in.Validate(); err != nil {
		return ClientInput{}, err
	}
	return in, nil
}

// Validate rejects non-finite values.
func (in ClientInput) Validate() error {
	for _, v := range []float64{in.ExpectedTick, in.X, in.Y} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value", ErrInvalidInput)
		}
	}
	return nil
}
