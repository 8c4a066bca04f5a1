// file: internal/transfer/manager.go
// version: 1.1.0
// guid: 36fa13ef-4ad0-43e3-8393-9d73a4a12173

package transfer

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	ulid "github.com/oklog/ulid/v2"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/metrics"
	"github.com/jdfalk/filesync/internal/tasks"
)

// PendingMarker is what GetProgress reports for a task still in the backlog.
const PendingMarker = "pending"

// DefaultProgressInterval is how often progress events are emitted for the
// running task when listeners are registered.
const DefaultProgressInterval = 500 * time.Millisecond

// ErrClosed is returned by AddDownloadTask after Close.
var ErrClosed = errors.New("transfer manager closed")

// Task is what the manager needs from a download. Done must be closed exactly
// once when the task finishes; Succeeded is read after that.
type Task interface {
	Start()
	Progress() tasks.Progress
	RepoID() string
	Path() string
	Done() <-chan struct{}
	Succeeded() bool
}

// Factory builds a task bound to its identity. It must not start it.
type Factory func(acct account.Account, repoID, path, localPath string) Task

// DownloadFactory returns a Factory producing *tasks.DownloadTask values.
func DownloadFactory(fetcher tasks.Fetcher, opts tasks.DownloadOptions) Factory {
	return func(acct account.Account, repoID, path, localPath string) Task {
		return tasks.NewDownloadTask(fetcher, acct, repoID, path, localPath, opts)
	}
}

// localPather is implemented by tasks that know their destination on disk.
type localPather interface {
	LocalPath() string
}

type entry struct {
	id       string
	task     Task
	admitted time.Time

	// owned by the scheduler goroutine
	started  time.Time
	finished bool
}

func (e *entry) info(state State) TaskInfo {
	info := TaskInfo{
		ID:     e.id,
		RepoID: e.task.RepoID(),
		Path:   e.task.Path(),
		State:  state,
	}
	if lp, ok := e.task.(localPather); ok {
		info.LocalPath = lp.LocalPath()
	}
	if state == StateCurrent {
		p := e.task.Progress()
		info.Progress = p.String()
		info.Transferred = p.Transferred
		info.Total = p.Total
	} else {
		info.Progress = PendingMarker
	}
	return info
}

// schedState is an immutable copy of the scheduler's (current, backlog) pair.
type schedState struct {
	current *entry
	pending []*entry
}

type admission struct {
	task  Task
	reply chan struct{}
}

type completion struct {
	entry   *entry
	success bool
}

// Manager runs at most one download at a time and queues the rest in
// admission order. All state changes happen on a single scheduler goroutine;
// progress queries read a published snapshot and never block it.
type Manager struct {
	factory          Factory
	progressInterval time.Duration

	listenersMu sync.RWMutex
	listeners   []Listener

	// scheduler-owned
	current *entry
	pending []*entry

	snap atomic.Pointer[schedState]

	admit    chan admission
	finished chan completion
	quit     chan struct{}
	stopped  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithListener registers a listener before the scheduler starts.
func WithListener(l Listener) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, l) }
}

// WithProgressInterval sets how often EventProgress is emitted. Zero or a
// negative value disables progress events.
func WithProgressInterval(d time.Duration) Option {
	return func(m *Manager) { m.progressInterval = d }
}

// NewManager creates the scheduler and starts its goroutine. One manager is
// meant to live for the whole process; call Close on shutdown.
func NewManager(factory Factory, opts ...Option) *Manager {
	m := &Manager{
		factory:          factory,
		progressInterval: DefaultProgressInterval,
		admit:            make(chan admission),
		finished:         make(chan completion),
		quit:             make(chan struct{}),
		stopped:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap.Store(&schedState{})

	go m.run()
	return m
}

// AddListener registers a listener. Listeners run on the scheduler goroutine
// and must not block or call back into the manager's mutating methods.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.listeners = append(m.listeners, l)
}

// AddDownloadTask builds a task for the given identity and hands it to the
// scheduler. If nothing is running the task is started before this returns;
// otherwise it joins the end of the backlog. The returned handle lets the
// caller observe the task's own outcome.
func (m *Manager) AddDownloadTask(acct account.Account, repoID, path, localPath string) (Task, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}

	task := m.factory(acct, repoID, path, localPath)
	req := admission{task: task, reply: make(chan struct{})}

	select {
	case m.admit <- req:
	case <-m.stopped:
		return nil, ErrClosed
	}
	<-req.reply
	return task, nil
}

// GetProgress reports on the task keyed by (repoID, path): the running task's
// live progress, PendingMarker for a queued one, or "" if neither matches.
// Safe to call from any goroutine.
func (m *Manager) GetProgress(repoID, path string) string {
	s := m.snap.Load()
	if s.current != nil && matches(s.current.task, repoID, path) {
		return s.current.task.Progress().String()
	}
	for _, e := range s.pending {
		if matches(e.task, repoID, path) {
			return PendingMarker
		}
	}
	return ""
}

// Snapshot returns a copy of the running task and backlog. Safe to call from
// any goroutine.
func (m *Manager) Snapshot() Snapshot {
	s := m.snap.Load()
	out := Snapshot{Pending: make([]TaskInfo, 0, len(s.pending))}
	if s.current != nil {
		info := s.current.info(StateCurrent)
		out.Current = &info
	}
	for _, e := range s.pending {
		out.Pending = append(out.Pending, e.info(StatePending))
	}
	return out
}

// Idle reports whether no task is running.
func (m *Manager) Idle() bool {
	return m.snap.Load().current == nil
}

// Close stops the scheduler. A running task is left to finish on its own;
// tasks still in the backlog are dropped without being started.
func (m *Manager) Close(timeout time.Duration) error {
	m.closeOnce.Do(func() {
		log.Println("[INFO] Shutting down transfer manager...")
		m.closed.Store(true)
		close(m.quit)
	})

	select {
	case <-m.stopped:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}

func matches(t Task, repoID, path string) bool {
	return t.RepoID() == repoID && t.Path() == path
}

func (m *Manager) run() {
	defer close(m.stopped)

	var tick <-chan time.Time
	if m.progressInterval > 0 {
		ticker := time.NewTicker(m.progressInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case req := <-m.admit:
			m.admitTask(req.task)
			close(req.reply)
		case c := <-m.finished:
			m.complete(c)
		case <-tick:
			if m.current != nil {
				m.notify(Event{Kind: EventProgress, Task: m.current.info(StateCurrent)})
			}
		case <-m.quit:
			m.shutdown()
			return
		}
	}
}

func (m *Manager) admitTask(task Task) {
	e := &entry{
		id:       ulid.Make().String(),
		task:     task,
		admitted: time.Now(),
	}
	go m.watch(e)

	if m.current == nil {
		m.startEntry(e)
		return
	}

	m.pending = append(m.pending, e)
	m.publish()
	metrics.IncTransferQueued()
	log.Printf("[INFO] Download %s (%s:%s) queued behind %s, %d pending",
		e.id, task.RepoID(), task.Path(), m.current.id, len(m.pending))
	m.notify(Event{Kind: EventQueued, Task: e.info(StatePending)})
}

// watch forwards the task's single completion to the scheduler.
func (m *Manager) watch(e *entry) {
	select {
	case <-e.task.Done():
	case <-m.stopped:
		return
	}

	c := completion{entry: e, success: e.task.Succeeded()}
	select {
	case m.finished <- c:
	case <-m.stopped:
	}
}

func (m *Manager) startEntry(e *entry) {
	m.current = e
	e.started = time.Now()
	m.publish()

	log.Printf("[INFO] Starting download %s (%s:%s)", e.id, e.task.RepoID(), e.task.Path())
	metrics.IncTransferStarted()
	e.task.Start()
	m.notify(Event{Kind: EventStarted, Task: e.info(StateCurrent)})
}

func (m *Manager) complete(c completion) {
	e := c.entry
	if e.finished {
		log.Printf("[WARN] Duplicate completion for download %s ignored", e.id)
		return
	}
	if e != m.current {
		// A queued task must not finish before it was started. Drop it so the
		// backlog never hands out a task whose completion was already consumed.
		if i := slices.Index(m.pending, e); i >= 0 {
			m.pending = slices.Delete(m.pending, i, i+1)
			e.finished = true
			m.publish()
		}
		log.Printf("[WARN] Completion for download %s that is not running ignored", e.id)
		return
	}
	e.finished = true

	elapsed := time.Since(e.started)
	metrics.IncTransferFinished(c.success)
	metrics.ObserveTransferDuration(c.success, elapsed)
	if c.success {
		log.Printf("[INFO] Download %s (%s:%s) completed in %v", e.id, e.task.RepoID(), e.task.Path(), elapsed)
	} else {
		log.Printf("[WARN] Download %s (%s:%s) failed after %v", e.id, e.task.RepoID(), e.task.Path(), elapsed)
	}

	finishedInfo := e.info(StateCompleted)
	finishedInfo.Progress = ""

	if len(m.pending) > 0 {
		next := m.pending[0]
		m.pending[0] = nil
		m.pending = m.pending[1:]
		m.notify(Event{Kind: EventFinished, Task: finishedInfo, Success: c.success, Elapsed: elapsed})
		m.startEntry(next)
		return
	}

	m.current = nil
	m.publish()
	m.notify(Event{Kind: EventFinished, Task: finishedInfo, Success: c.success, Elapsed: elapsed})
}

func (m *Manager) shutdown() {
	if n := len(m.pending); n > 0 {
		log.Printf("[WARN] Transfer manager stopping with %d pending downloads, dropping them", n)
	}
	if m.current != nil {
		log.Printf("[INFO] Download %s still running at shutdown", m.current.id)
	}
	m.current = nil
	m.pending = nil
	m.publish()
	log.Println("[INFO] Transfer manager stopped")
}

func (m *Manager) publish() {
	m.snap.Store(&schedState{
		current: m.current,
		pending: slices.Clone(m.pending),
	})

	active := 0
	if m.current != nil {
		active = 1
	}
	metrics.SetActiveTransfers(active)
	metrics.SetPendingTransfers(len(m.pending))
}

func (m *Manager) notify(ev Event) {
	m.listenersMu.RLock()
	listeners := m.listeners
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
