package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/synapse-search/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	now := time.Now()
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{Type: progress.TypeVisit, Source: "s", URL: "https://a.test", TS: now},
		{Type: progress.TypeIndexed, Source: "s", URL: "https://a.test", Title: "A", TS: now},
		{Type: progress.TypeFinish, Source: "s", Count: 1, TS: now},
	}))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.DebugLevel, entries[0].Level)
	require.Equal(t, zapcore.InfoLevel, entries[1].Level)
	require.Equal(t, "A", entries[1].ContextMap()["title"])
	require.EqualValues(t, 1, entries[2].ContextMap()["count"])
}
