package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"console default level", Options{}},
		{"console debug", Options{Level: "debug"}},
		{"json", Options{JSON: true, Level: "warn"}},
		{"bad level falls back", Options{Level: "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.opts)
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestComponentNilParent(t *testing.T) {
	assert.NotNil(t, Component(nil, "pipeline"))
}
