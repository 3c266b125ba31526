package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordExecution_RoundTrips(t *testing.T) {
	s := openTestStore(t)
	id, err := s.RecordExecution(ExecutionRecord{
		ActionRef:   "acme/build:1.0.0",
		Status:      "succeeded",
		StartedAt:   time.Now(),
		CompletedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	execs, err := s.Executions()
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "acme/build:1.0.0", execs[0].ActionRef)
}

func TestAppendLog_FiltersByExecutionID(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.AppendLog(LogRecord{ExecutionID: 1, Level: "info", Message: "a", Timestamp: time.Now()}))
	require.NoError(t, s.AppendLog(LogRecord{ExecutionID: 2, Level: "info", Message: "b", Timestamp: time.Now()}))
	require.NoError(t, s.AppendLog(LogRecord{ExecutionID: 1, Level: "error", Message: "c", Timestamp: time.Now()}))

	logs, err := s.LogsForExecution(1)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a", logs[0].Message)
	assert.Equal(t, "c", logs[1].Message)
}
