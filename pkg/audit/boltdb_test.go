package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBoltLogAppendAndRecent(t *testing.T) {
	l, err := NewBoltLog(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(Record{Kind: "Task", UID: "t1", State: "SUBMITTED"}))
	require.NoError(t, l.Append(Record{Kind: "Task", UID: "t1", State: "RUNNING"}))
	require.NoError(t, l.Append(Record{Kind: "Task", UID: "t1", State: "DONE"}))

	recent, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "RUNNING", recent[0].State)
	require.Equal(t, "DONE", recent[1].State)
	require.Less(t, recent[0].Seq, recent[1].Seq)
}

func TestBoltLogRecentZeroReturnsAll(t *testing.T) {
	l, err := NewBoltLog(t.TempDir())
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(Record{Kind: "Stage", UID: "s1", State: "DONE"}))

	recent, err := l.Recent(0)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}
