package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLogger_FormatRFC3339Millis(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 10, 25, 13, 4, 5, 987_654_321, time.FixedZone("IDT", 3*60*60))
	require.Equal(t, "2025-10-25T10:04:05.987Z", FormatRFC3339Millis(ts))
}

func TestLogger_DropsEmptyStringAttrs(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Info("cache: miss", "key", "", "use_count", 2)

	out := buf.String()
	require.Contains(t, out, "cache: miss")
	require.Contains(t, out, "use_count")
	require.NotContains(t, out, "key=")
}

func TestLogger_VerboseEnablesDebug(t *testing.T) {
	t.Parallel()

	var quiet, loud bytes.Buffer
	NewWithWriter(&quiet, false).Debug("hidden")
	NewWithWriter(&loud, true).Debug("shown")

	require.Empty(t, quiet.String())
	require.Contains(t, loud.String(), "shown")
}
