package store

import (
	"path/filepath"
	"testing"

	"sma-lab/internal/points"
	"sma-lab/pkg/colorutil"
	"sma-lab/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sample(x, y int, temp float64) *points.Sample {
	return &points.Sample{
		Pos:         geometry.PointInt{X: x, Y: y},
		Color:       colorutil.RGB{R: 10, G: 20, B: 30},
		Temperature: temp,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openDB(t)

	defaults := points.Defaults{{X: 1, Y: 2}, {X: 3, Y: 4}, {X: 5, Y: 6}}
	snap := points.Snapshot{
		Records: []points.RecordSnapshot{
			{Timestamp: "b", Points: [points.Slots]*points.Sample{sample(1, 2, 40.5), nil, sample(5, 6, 41)}},
			{Timestamp: "a", Excluded: true},
			{Timestamp: "c"},
		},
		Defaults: &defaults,
	}
	require.NoError(t, db.SaveSnapshot("/data/exp1/data.csv", snap))

	got, ok, err := db.LoadSnapshot("/data/exp1/data.csv")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, snap, got)
}

func TestLoadMissingSession(t *testing.T) {
	db := openDB(t)
	_, ok, err := db.LoadSnapshot("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveReplacesSession(t *testing.T) {
	db := openDB(t)
	key := "data.csv"

	require.NoError(t, db.SaveSnapshot(key, points.Snapshot{
		Records: []points.RecordSnapshot{{Timestamp: "1"}, {Timestamp: "2"}},
	}))
	require.NoError(t, db.SaveSnapshot(key, points.Snapshot{
		Records: []points.RecordSnapshot{{Timestamp: "3", Points: [points.Slots]*points.Sample{nil, sample(7, 8, 30), nil}}},
	}))

	got, ok, err := db.LoadSnapshot(key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "3", got.Records[0].Timestamp)
	assert.Nil(t, got.Defaults)
	assert.Equal(t, 30.0, got.Records[0].Points[1].Temperature)

	sessions, err := db.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 1, sessions[0].Records)
}

func TestSessionsAndDelete(t *testing.T) {
	db := openDB(t)
	require.NoError(t, db.SaveSnapshot("x", points.Snapshot{
		Records: []points.RecordSnapshot{{Timestamp: "1", Excluded: true}, {Timestamp: "2"}},
	}))

	sessions, err := db.Sessions()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "x", sessions[0].Dataset)
	assert.Equal(t, 2, sessions[0].Records)
	assert.Equal(t, 1, sessions[0].Excluded)
	assert.False(t, sessions[0].Defaults)

	require.NoError(t, db.DeleteSession("x"))
	_, ok, err := db.LoadSnapshot("x")
	require.NoError(t, err)
	assert.False(t, ok)
}
