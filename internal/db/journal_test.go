package db

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/quakemap/internal/engine"
)

func TestJournal_RecordHistory(t *testing.T) {
	sqlDB, err := Open(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(start)
	j := NewJournal(sqlDB, clock)
	ctx := context.Background()
	require.NoError(t, j.Init(ctx))
	require.NoError(t, j.Init(ctx))

	seven := engine.FeatureRef{Source: "states", ID: engine.NumberID(7)}
	twelve := engine.FeatureRef{Source: "states", ID: engine.NumberID(12)}
	require.NoError(t, j.Record(ctx, "w1", seven, true))
	clock.Advance(time.Second)
	require.NoError(t, j.Record(ctx, "w1", seven, false))
	require.NoError(t, j.Record(ctx, "w1", twelve, true))
	require.NoError(t, j.Record(ctx, "w2", seven, true))

	entries, err := j.History(ctx, "w1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "12", entries[0].FeatureID)
	assert.True(t, entries[0].Hover)
	assert.Equal(t, "7", entries[1].FeatureID)
	assert.False(t, entries[1].Hover)
	assert.True(t, start.Equal(entries[2].At))

	entries, err = j.History(ctx, "w1", 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entries, err = j.History(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)

	tables, err := j.Tables(ctx)
	require.NoError(t, err)
	assert.Contains(t, tables, "hover_journal")
}

func TestOpen_DataDir(t *testing.T) {
	sqlDB, err := Open(Config{DataDir: t.TempDir(), DBName: "test"})
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
}
