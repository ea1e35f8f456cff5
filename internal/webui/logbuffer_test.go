package webui

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBufferKeepsNewest(t *testing.T) {
	lb := NewLogBuffer(3)
	for i := 0; i < 5; i++ {
		_, err := fmt.Fprintf(lb, `{"level":"info","message":"line %d"}`+"\n", i)
		require.NoError(t, err)
	}

	entries := lb.GetEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "line 2", entries[0].Message)
	assert.Equal(t, "line 4", entries[2].Message)

	recent := lb.GetRecentEntries(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "line 3", recent[0].Message)

	lb.Clear()
	assert.Empty(t, lb.GetEntries())
}

func TestParseEntry(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		level     string
		component string
		message   string
		time      time.Time
	}{
		{
			name:      "zerolog unix time",
			raw:       `{"level":"warn","component":"alerter","time":1709294400,"message":"Alert queue full"}`,
			level:     "warn",
			component: "alerter",
			message:   "Alert queue full",
			time:      time.Unix(1709294400, 0),
		},
		{
			name:    "rfc3339 time",
			raw:     `{"level":"error","time":"2024-03-01T12:00:00Z","message":"boom"}`,
			level:   "error",
			message: "boom",
			time:    time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:    "plain text",
			raw:     "not json at all",
			level:   "info",
			message: "not json at all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := parseEntry(tt.raw)
			assert.Equal(t, tt.level, e.Level)
			assert.Equal(t, tt.component, e.Component)
			assert.Equal(t, tt.message, e.Message)
			assert.Equal(t, tt.raw, e.Raw)
			if !tt.time.IsZero() {
				assert.True(t, tt.time.Equal(e.Timestamp))
			}
		})
	}
}

func TestLogBufferAsZerologSink(t *testing.T) {
	lb := NewLogBuffer(10)
	logger := zerolog.New(io.MultiWriter(io.Discard, lb)).With().Timestamp().Str("component", "monitor").Logger()

	logger.Debug().Msg("tick")
	logger.Info().Msg("Monitor started")
	logger.Warn().Msg("Sample out of order")

	entries := lb.GetEntries()
	require.Len(t, entries, 3)
	assert.Equal(t, "monitor", entries[1].Component)
	assert.Equal(t, "Monitor started", entries[1].Message)

	warn := lb.Filter("warn", 0)
	require.Len(t, warn, 1)
	assert.Equal(t, "Sample out of order", warn[0].Message)

	assert.Len(t, lb.Filter("info", 1), 1)
	assert.Len(t, lb.Filter("", 0), 2)
}

func TestTemplatesDefined(t *testing.T) {
	assert.NotNil(t, Templates.Lookup("base"))
	assert.NotNil(t, Templates.Lookup("content"))
}
