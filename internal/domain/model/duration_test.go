package model_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/runplane/internal/domain/model"
	apperrors "github.com/target/runplane/internal/errors"
)

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Duration
	}{
		{"seconds", `"PT60S"`, 60 * time.Second},
		{"minutes", `"PT2M"`, 2 * time.Minute},
		{"hours", `"PT1H"`, time.Hour},
		{"composite", `"PT1H30M15S"`, time.Hour + 30*time.Minute + 15*time.Second},
		{"days", `"P1D"`, 24 * time.Hour},
		{"fractional seconds", `"PT0.5S"`, 500 * time.Millisecond},
		{"bare number", `60`, 60 * time.Second},
		{"bare fractional", `1.5`, 1500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d model.Duration
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))
			assert.Equal(t, tt.want, d.Std())
		})
	}
}

func TestDurationUnmarshalInvalid(t *testing.T) {
	tests := []string{
		`"60 seconds"`,
		`"P"`,
		`"PT"`,
		`""`,
		`"-PT60S"`,
		`-10`,
		`true`,
		`{"seconds": 60}`,
	}

	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			var d model.Duration
			err := json.Unmarshal([]byte(in), &d)
			assert.True(t, apperrors.IsValidation(err), "expected validation error, got %v", err)
		})
	}
}

func TestDurationMarshal(t *testing.T) {
	out, err := json.Marshal(model.Duration(90 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"PT90S"`, string(out))
}
