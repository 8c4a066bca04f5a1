// file: internal/history/store_test.go
// version: 1.1.0
// guid: 3e8d1b6a-0f72-4c95-a4d3-9b5c2e7f1a06

package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/filesync/internal/transfer"
)

func openTestStore(t *testing.T, limit int) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history")
	s, err := Open(path, limit)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestAppendAndRecentNewestFirst(t *testing.T) {
	s, _ := openTestStore(t, 10)
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append(Record{
			RepoID:     "r1",
			Path:       fmt.Sprintf("/f%d", i),
			Success:    i != 1,
			FinishedAt: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "/f2", got[0].Path)
	assert.Equal(t, "/f1", got[1].Path)
	assert.False(t, got[1].Success)
	assert.Equal(t, "/f0", got[2].Path)

	got, err = s.Recent(2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSameMillisecondKeepsOrder(t *testing.T) {
	s, _ := openTestStore(t, 10)
	at := time.Now()
	require.NoError(t, s.Append(Record{Path: "/first", FinishedAt: at}))
	require.NoError(t, s.Append(Record{Path: "/second", FinishedAt: at}))

	got, err := s.Recent(2)
	require.NoError(t, err)
	assert.Equal(t, "/second", got[0].Path)
	assert.Equal(t, "/first", got[1].Path)
}

func TestLimitDropsOldest(t *testing.T) {
	s, _ := openTestStore(t, 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(Record{Path: fmt.Sprintf("/f%d", i)}))
	}
	assert.Equal(t, 3, s.Len())

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "/f4", got[0].Path)
	assert.Equal(t, "/f2", got[2].Path)
}

func TestPruneOnEveryAppend(t *testing.T) {
	s, _ := openTestStore(t, 1)
	for i := 0; i < 200; i++ {
		require.NoError(t, s.Append(Record{Path: fmt.Sprintf("/f%d", i)}))
		require.Equal(t, 1, s.Len())
	}

	got, err := s.Recent(5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/f199", got[0].Path)
}

func TestReopenCountsAndTrims(t *testing.T) {
	s, path := openTestStore(t, 10)
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(Record{Path: fmt.Sprintf("/f%d", i)}))
	}
	require.NoError(t, s.Close())

	reopened, err := Open(path, 2)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, 2, reopened.Len())
	got, err := reopened.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "/f3", got[0].Path)
	assert.Equal(t, "/f2", got[1].Path)
}

func TestListenerRecordsFinishedOnly(t *testing.T) {
	s, _ := openTestStore(t, 10)
	l := Listener(s)

	task := transfer.TaskInfo{ID: "01J0", RepoID: "r1", Path: "/a.txt", Transferred: 2048}
	l(transfer.Event{Kind: transfer.EventQueued, Task: task})
	l(transfer.Event{Kind: transfer.EventStarted, Task: task})
	l(transfer.Event{Kind: transfer.EventFinished, Task: task, Success: true, Elapsed: 1500 * time.Millisecond})

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "01J0", got[0].TaskID)
	assert.Equal(t, "r1", got[0].RepoID)
	assert.True(t, got[0].Success)
	assert.Equal(t, int64(2048), got[0].Bytes)
	assert.Equal(t, int64(1500), got[0].ElapsedMs)
	assert.False(t, got[0].FinishedAt.IsZero())
}
