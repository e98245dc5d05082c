package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xlog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]xlog.Level{
		"":        xlog.LevelInfo,
		"debug":   xlog.LevelDebug,
		"INFO":    xlog.LevelInfo,
		" warn ":  xlog.LevelWarn,
		"warning": xlog.LevelWarn,
		"error":   xlog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New("hlbus-test", "verbose", false)
	assert.Error(t, err)

	l, err := New("hlbus-test", "error", false)
	require.NoError(t, err)
	assert.NotNil(t, l)
}
