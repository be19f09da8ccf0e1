package ruleengine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariableString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "Should keep strings as is", value: "gold", want: "gold"},
		{name: "Should render nil as empty", value: nil, want: ""},
		{name: "Should keep the json.Number literal", value: json.Number("1000000"), want: "1000000"},
		{name: "Should render a large float without exponent", value: float64(1000000), want: "1000000"},
		{name: "Should render a phone-sized float as digits", value: 5.511999999999e12, want: "5511999999999"},
		{name: "Should render fractional floats", value: 1.5, want: "1.5"},
		{name: "Should render float32 at its own precision", value: float32(0.1), want: "0.1"},
		{name: "Should render booleans", value: true, want: "true"},
		{name: "Should render integers", value: 42, want: "42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, VariableString(tt.value))
		})
	}
}
