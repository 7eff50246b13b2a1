package scheduler

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionLog_AppendAndRead(t *testing.T) {
	l := NewExecutionLog(filepath.Join(t.TempDir(), "execlog.json"), zerolog.Nop())

	last, err := l.Last()
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, l.Append(LogEntry{Status: RunSuccess, Summary: "first"}))
	require.NoError(t, l.Append(LogEntry{Status: RunFailure, Summary: "second", Error: "boom"}))

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RunSuccess, entries[0].Status)
	assert.Equal(t, "second", entries[1].Summary)
	assert.False(t, entries[0].Timestamp.IsZero())

	last, err = l.Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, RunFailure, last.Status)
	assert.Equal(t, "boom", last.Error)
}

func TestExecutionLog_CapsAtMaxEntries(t *testing.T) {
	l := NewExecutionLog(filepath.Join(t.TempDir(), "execlog.json"), zerolog.Nop())

	for i := 0; i < maxLogEntries+20; i++ {
		require.NoError(t, l.Append(LogEntry{
			Timestamp: time.Now(),
			Status:    RunSuccess,
			Summary:   fmt.Sprintf("run %d", i),
		}))
	}

	entries, err := l.Entries()
	require.NoError(t, err)
	require.Len(t, entries, maxLogEntries)
	// Oldest 20 were evicted.
	assert.Equal(t, "run 20", entries[0].Summary)
	assert.Equal(t, fmt.Sprintf("run %d", maxLogEntries+19), entries[maxLogEntries-1].Summary)
}

func TestExecutionLog_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "execlog.json")

	l1 := NewExecutionLog(path, zerolog.Nop())
	require.NoError(t, l1.Append(LogEntry{Status: RunSkipped, Summary: "holiday"}))

	l2 := NewExecutionLog(path, zerolog.Nop())
	last, err := l2.Last()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, RunSkipped, last.Status)
}
