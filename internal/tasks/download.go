// file: internal/tasks/download.go
// version: 1.0.1
// guid: e390ce3c-4d71-4dbb-a9d6-35c4153315d0

package tasks

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/jdfalk/filesync/internal/account"
	"github.com/jdfalk/filesync/internal/api"
	"github.com/jdfalk/filesync/internal/metrics"
)

const (
	partSuffix     = ".part"
	copyBufferSize = 32 * 1024
)

// Fetcher resolves and streams remote files. *api.Client implements it.
type Fetcher interface {
	FileDownloadLink(ctx context.Context, acct account.Account, repoID, path string) (string, error)
	OpenFile(ctx context.Context, link string) (io.ReadCloser, int64, error)
}

// DownloadOptions tunes wire-level behavior of a download.
type DownloadOptions struct {
	// Retries is the number of extra attempts after a transient failure.
	Retries int
	// RetryDelay is multiplied by the attempt number between retries.
	RetryDelay time.Duration
	// Limiter throttles the body copy when non-nil. It may be shared across tasks.
	Limiter *rate.Limiter
}

// DefaultDownloadOptions returns one retry after two seconds and no throttling.
func DefaultDownloadOptions() DownloadOptions {
	return DownloadOptions{
		Retries:    1,
		RetryDelay: 2 * time.Second,
	}
}

// NewBandwidthLimiter returns a limiter allowing bytesPerSec, or nil when the
// limit is disabled.
func NewBandwidthLimiter(bytesPerSec int) *rate.Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := bytesPerSec
	if burst < copyBufferSize {
		burst = copyBufferSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// DownloadTask downloads one remote file of a repository to a local path.
// Identity is fixed at construction; Start takes no arguments.
type DownloadTask struct {
	*NetworkTask

	account   account.Account
	repoID    string
	path      string
	localPath string

	fetcher Fetcher
	opts    DownloadOptions
}

// NewDownloadTask binds a download to its identity. Nothing happens until Start.
func NewDownloadTask(fetcher Fetcher, acct account.Account, repoID, path, localPath string, opts DownloadOptions) *DownloadTask {
	t := &DownloadTask{
		account:   acct,
		repoID:    repoID,
		path:      path,
		localPath: localPath,
		fetcher:   fetcher,
		opts:      opts,
	}
	t.NetworkTask = NewNetworkTask(fmt.Sprintf("download %s:%s", repoID, path), t.download)
	return t
}

// RepoID returns the repository the file belongs to.
func (t *DownloadTask) RepoID() string { return t.repoID }

// Path returns the remote path inside the repository.
func (t *DownloadTask) Path() string { return t.path }

// LocalPath returns the destination on disk.
func (t *DownloadTask) LocalPath() string { return t.localPath }

func (t *DownloadTask) download(ctx context.Context, report ReportFunc) error {
	var lastErr error
	for attempt := 0; attempt <= t.opts.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(time.Duration(attempt) * t.opts.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			log.Printf("[INFO] Retrying download %s:%s, attempt %d", t.repoID, t.path, attempt+1)
		}

		err := t.fetchOnce(ctx, report)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Printf("[WARN] Download attempt %d failed for %s:%s: %v", attempt+1, t.repoID, t.path, err)

		if api.IsPermanent(err) || ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("download %s:%s: %w", t.repoID, t.path, lastErr)
}

func (t *DownloadTask) fetchOnce(ctx context.Context, report ReportFunc) error {
	if !t.account.IsValid() {
		return account.ErrInvalid
	}

	link, err := t.fetcher.FileDownloadLink(ctx, t.account, t.repoID, t.path)
	if err != nil {
		return fmt.Errorf("failed to resolve download link: %w", err)
	}

	body, size, err := t.fetcher.OpenFile(ctx, link)
	if err != nil {
		return fmt.Errorf("failed to open download: %w", err)
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(t.localPath), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmpPath := t.localPath + partSuffix
	out, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmpPath, err)
	}

	report(0, size)
	var src io.Reader = body
	if t.opts.Limiter != nil {
		src = &throttledReader{ctx: ctx, r: body, limiter: t.opts.Limiter}
	}

	written, copyErr := copyWithProgress(out, src, size, report)
	closeErr := out.Close()
	if copyErr == nil {
		copyErr = closeErr
	}
	if copyErr == nil && size >= 0 && written != size {
		copyErr = fmt.Errorf("short download: got %d of %d bytes", written, size)
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return copyErr
	}

	if err := os.Rename(tmpPath, t.localPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move download into place: %w", err)
	}
	if size < 0 {
		report(written, written)
	}
	return nil
}

func copyWithProgress(dst io.Writer, src io.Reader, size int64, report ReportFunc) (int64, error) {
	buf := make([]byte, copyBufferSize)
	var written int64
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			metrics.AddBytesDownloaded(n)
			report(written, size)
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// throttledReader waits on a token bucket before handing out bytes.
type throttledReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	if burst := tr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := tr.r.Read(p)
	if n > 0 {
		if waitErr := tr.limiter.WaitN(tr.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
