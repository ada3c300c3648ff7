package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	cases := []struct {
		level, format string
		want          zapcore.Level
	}{
		{"debug", "console", zapcore.DebugLevel},
		{"INFO", "json", zapcore.InfoLevel},
		{"warn", "", zapcore.WarnLevel},
		{"", "console", zapcore.InfoLevel},
	}
	for _, tc := range cases {
		l, err := New(tc.level, tc.format)
		require.NoError(t, err, "%s/%s", tc.level, tc.format)
		assert.True(t, l.Core().Enabled(tc.want))
		assert.False(t, l.Core().Enabled(tc.want-1))
	}
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New("loud", "console")
	assert.Error(t, err)
	_, err = New("info", "xml")
	assert.Error(t, err)
}
