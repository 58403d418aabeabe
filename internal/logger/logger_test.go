package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error", "bogus"} {
		l, err := New(lvl, "console", "fieldlink-test")
		require.NoError(t, err, lvl)
		assert.NotNil(t, l)
	}
}

func TestNew_JSON(t *testing.T) {
	l, err := New("info", "json", "")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(0))
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
