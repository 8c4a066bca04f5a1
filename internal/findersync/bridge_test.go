// file: internal/findersync/bridge_test.go
// version: 1.0.0
// guid: d83a5b2e-61f4-4c0b-8e29-7a5c3f1d9b06

package findersync

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/config"
	"github.com/jdfalk/filesync/internal/transfer"
)

type fakeTransfers struct {
	mu       sync.Mutex
	progress map[string]string
	snap     transfer.Snapshot
}

func (f *fakeTransfers) GetProgress(repoID, path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress[repoID+":"+path]
}

func (f *fakeTransfers) Snapshot() transfer.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeTransfers) set(snap transfer.Snapshot, progress map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.progress = progress
}

type mockLinks struct {
	mock.Mock
}

func (m *mockLinks) SharedLink(ctx context.Context, acct account.Account, repoID, path string) (string, error) {
	args := m.Called(ctx, acct, repoID, path)
	return args.String(0), args.Error(1)
}

func testAccount() account.Account {
	return account.New("https://files.example.com", "alice@example.com", "tok")
}

func newTestBridge(t *testing.T, transfers Transfers, links LinkFetcher, opts Options) (*Bridge, []config.Repo) {
	t.Helper()
	repos := []config.Repo{
		{ID: "r1", Name: "Work", Worktree: t.TempDir()},
		{ID: "r2", Name: "Photos", Worktree: t.TempDir()},
		{ID: "r3", Name: "Gone", Worktree: filepath.Join(t.TempDir(), "missing")},
	}
	return NewBridge(transfers, links, testAccount, repos, opts), repos
}

func TestGetWatchSetBeforeRefreshIsEmpty(t *testing.T) {
	b, _ := newTestBridge(t, &fakeTransfers{}, nil, Options{})
	assert.Empty(t, b.GetWatchSet(10))
}

func TestRefreshDerivesRepoStatus(t *testing.T) {
	tr := &fakeTransfers{}
	b, repos := newTestBridge(t, tr, nil, Options{})

	tr.set(transfer.Snapshot{
		Current: &transfer.TaskInfo{RepoID: "r2", Path: "/a.jpg"},
		Pending: []transfer.TaskInfo{{RepoID: "r1", Path: "/doc.txt"}},
	}, nil)
	b.Refresh()

	set := b.GetWatchSet(10)
	require.Len(t, set, 3)
	assert.Equal(t, WatchDir{Path: repos[0].Worktree, RepoID: "r1", Status: StatusPending}, set[0])
	assert.Equal(t, StatusSyncing, set[1].Status)
	assert.Equal(t, StatusError, set[2].Status)

	tr.set(transfer.Snapshot{}, nil)
	b.Refresh()
	set = b.GetWatchSet(10)
	assert.Equal(t, StatusDone, set[0].Status)
	assert.Equal(t, StatusDone, set[1].Status)
}

func TestPausedRepo(t *testing.T) {
	tr := &fakeTransfers{}
	b, repos := newTestBridge(t, tr, nil, Options{})
	repos[0].Paused = true
	b.SetRepos(repos)

	set := b.GetWatchSet(1)
	require.Len(t, set, 1)
	assert.Equal(t, StatusPaused, set[0].Status)

	status, err := b.FileStatus(filepath.Join(repos[0].Worktree, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, StatusPaused, status)
}

func TestGetWatchSetTruncatesAndCopies(t *testing.T) {
	b, _ := newTestBridge(t, &fakeTransfers{}, nil, Options{})
	b.Refresh()

	assert.Empty(t, b.GetWatchSet(0))
	assert.Empty(t, b.GetWatchSet(-1))
	assert.Len(t, b.GetWatchSet(2), 2)
	assert.Len(t, b.GetWatchSet(100), 3)

	got := b.GetWatchSet(3)
	got[0].Status = StatusError
	assert.NotEqual(t, StatusError, b.GetWatchSet(3)[0].Status)
}

func TestGetWatchSetConcurrentWithRefresh(t *testing.T) {
	b, _ := newTestBridge(t, &fakeTransfers{}, nil, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				set := b.GetWatchSet(2)
				assert.LessOrEqual(t, len(set), 2)
			}
		}()
	}
	for j := 0; j < 50; j++ {
		b.Refresh()
	}
	wg.Wait()
}

func TestFileStatusFromProgress(t *testing.T) {
	tr := &fakeTransfers{}
	b, repos := newTestBridge(t, tr, nil, Options{})
	root := repos[0].Worktree

	tr.set(transfer.Snapshot{}, map[string]string{
		"r1:/docs/a.txt": "42%",
		"r1:/docs/b.txt": transfer.PendingMarker,
	})

	tests := []struct {
		path string
		want Status
	}{
		{filepath.Join(root, "docs", "a.txt"), StatusSyncing},
		{filepath.Join(root, "docs", "b.txt"), StatusPending},
		{filepath.Join(root, "docs", "c.txt"), StatusDone},
	}
	for _, tt := range tests {
		got, err := b.FileStatus(tt.path)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.path)
	}

	_, err := b.FileStatus("/somewhere/else.txt")
	assert.ErrorIs(t, err, ErrNotInWatchSet)
}

func TestResolve(t *testing.T) {
	b, repos := newTestBridge(t, nil, nil, Options{})
	root := repos[1].Worktree

	repo, rel, err := b.resolve(filepath.Join(root, "2024", "beach.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "r2", repo.ID)
	assert.Equal(t, "/2024/beach.jpg", rel)

	_, rel, err = b.resolve(root)
	require.NoError(t, err)
	assert.Equal(t, "/", rel)

	_, _, err = b.resolve(root + "-sibling/file")
	assert.ErrorIs(t, err, ErrNotInWatchSet)
}

func TestDoShareLinkMemoizes(t *testing.T) {
	links := &mockLinks{}
	var delivered atomic.Int32
	b, repos := newTestBridge(t, &fakeTransfers{}, links, Options{
		OnShareLink: func(localPath, link string) { delivered.Add(1) },
	})
	local := filepath.Join(repos[0].Worktree, "report.pdf")

	links.On("SharedLink", mock.Anything, testAccount(), "r1", "/report.pdf").
		Return("https://files.example.com/f/abc/", nil).Once()

	for i := 0; i < 3; i++ {
		link, err := b.DoShareLink(context.Background(), local)
		require.NoError(t, err)
		assert.Equal(t, "https://files.example.com/f/abc/", link)
	}

	links.AssertExpectations(t)
	assert.Equal(t, int32(3), delivered.Load())
}

func TestDoShareLinkErrors(t *testing.T) {
	links := &mockLinks{}
	b, repos := newTestBridge(t, &fakeTransfers{}, links, Options{})
	local := filepath.Join(repos[0].Worktree, "secret.txt")

	boom := errors.New("server said no")
	links.On("SharedLink", mock.Anything, mock.Anything, "r1", "/secret.txt").Return("", boom).Twice()

	_, err := b.DoShareLink(context.Background(), local)
	assert.ErrorIs(t, err, boom)
	_, err = b.DoShareLink(context.Background(), local)
	assert.ErrorIs(t, err, boom)
	links.AssertExpectations(t)

	_, err = b.DoShareLink(context.Background(), "/not/watched")
	assert.ErrorIs(t, err, ErrNotInWatchSet)
}

func TestStartStop(t *testing.T) {
	tr := &fakeTransfers{}
	b, _ := newTestBridge(t, tr, nil, Options{Interval: 10 * time.Millisecond})
	b.Start()
	defer b.Stop()

	require.Len(t, b.GetWatchSet(10), 3)

	tr.set(transfer.Snapshot{Current: &transfer.TaskInfo{RepoID: "r1"}}, nil)
	require.Eventually(t, func() bool {
		return b.GetWatchSet(1)[0].Status == StatusSyncing
	}, time.Second, 5*time.Millisecond)

	b.Stop()
	b.Stop()
}
