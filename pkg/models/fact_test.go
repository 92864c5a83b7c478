package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceNumerical(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  *float64
	}{
		{"float", 12.5, ptr(12.5)},
		{"int", 7, ptr(7.0)},
		{"numeric string", "3.25", ptr(3.25)},
		{"garbage string", "garbage", nil},
		{"empty string", "", nil},
		{"nil", nil, nil},
		{"NaN", math.NaN(), nil},
		{"Inf", math.Inf(1), nil},
		{"bool", true, nil},
		{"map", map[string]any{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CoerceNumerical(tt.input)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestNewCategoricalFact(t *testing.T) {
	withAttr := NewCategoricalFact(4, 9)
	require.NotNil(t, withAttr.Attribute)
	assert.Equal(t, int64(9), *withAttr.Attribute)
	assert.Equal(t, VariableTypeCategorical, withAttr.Type)

	noAttr := NewCategoricalFact(4, 0)
	assert.Nil(t, noAttr.Attribute)
}

func TestNewNumericalFactCoercesGarbageToNull(t *testing.T) {
	f := NewNumericalFact(3, "not a number")
	assert.Nil(t, f.Numerical)
	assert.Equal(t, VariableTypeNumerical, f.Type)
}

func TestNewTextFactStringifies(t *testing.T) {
	assert.Equal(t, "42", NewTextFact(5, 42).Text)
	assert.Equal(t, "hello", NewTextFact(5, "hello").Text)
}

func ptr(f float64) *float64 { return &f }
