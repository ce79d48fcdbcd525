package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/TechXTT/pgraph/internal/plugin"
	"github.com/TechXTT/pgraph/internal/plugin/createlog"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = zapcore.AddSync(&buf)
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func TestNew(t *testing.T) {
	log, err := New("debug", "console")
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = New("warn", "json")
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "console")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.EqualError(t, err, `unknown log format "xml"`)

	_, err = NewAudit("xml")
	require.EqualError(t, err, `unknown log format "xml"`)
}

func TestNewAudit_IgnoresLogLevel(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		t.Run(format, func(t *testing.T) {
			buf := captureStdout(t)

			app, err := New("error", format)
			require.NoError(t, err)
			audit, err := NewAudit(format)
			require.NoError(t, err)

			app.Info("routine")
			out, err := createlog.Attempt{Table: "widgets", Log: audit}.
				Before(context.Background(), "input", &plugin.Invocation{CallerID: "42"})
			require.NoError(t, err)
			require.Equal(t, "input", out)

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, 1)
			require.Contains(t, lines[0], "A create was attempted on table widgets by user with id 42")
			require.NotContains(t, buf.String(), "routine")
		})
	}
}
