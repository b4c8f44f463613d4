package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientInput(t *testing.T) {
	in, err := DecodeClientInput([]byte(`{"expected_tick": 42.7, "x": 1.5, "y": -2}`))
	require.NoError(t, err)
	assert.Equal(t, ClientInput{ExpectedTick: 42.7, X: 1.5, Y: -2}, in)
	assert.Equal(t, Vector2{X: 1.5, Y: -2}, in.Target())
}

func TestDecodeClientInput_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `ping`},
		{"empty object", `{}`},
		{"missing y", `{"expected_tick": 1, "x": 1}`},
		{"missing tick", `{"x": 1, "y": 1}`},
		{"wrong type", `{"expected_tick": "soon", "x": 1, "y": 1}`},
		{"null field", `{"expected_tick": 1, "x": null, "y": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeClientInput([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
