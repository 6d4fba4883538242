package mchown

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/tigerand/mchown/internal/logger"
)

// readBatchSize is how many directory entries are fetched per ReadDir call.
const readBatchSize = 256

// walker runs the tree walk on behalf of one worker slot.
type walker struct {
	pool *Pool
	slot *WorkerSlot
}

func (w *walker) debugf(format string, v ...any) {
	if logger.Enabled(logger.LevelDebug) {
		logger.Debug("[%02d] %s", w.slot.ordinal, fmt.Sprintf(format, v...))
	}
}

func (w *walker) errorf(format string, v ...any) {
	logger.Error("[%02d] %s", w.slot.ordinal, fmt.Sprintf(format, v...))
}

// walk changes the owner of job.Path, its files and links, and hands its
// subdirectories to other workers or walks them itself.
//
// The first subdirectory found is held back until the scan is done. Later
// subdirectories are queued while the pool has room and walked in place when
// it does not. At the end the held-back one is queued if there were others,
// or walked here, so every subdirectory is either queued or processed.
//
// Failing to open the directory aborts the whole traversal. Stat or chown
// failures on the directory itself only end this job; failures on single
// entries are counted and the scan goes on.
func (w *walker) walk(ctx context.Context, job *DirectoryJob) error {
	p := w.pool
	cred := *job.Cred
	var c jobCounts
	defer p.record(job.HierarchyID, &c)

	w.debugf("walk called with path %q cred %s", job.Path, cred)

	dh, err := p.ops.openDir(job.Path)
	if err != nil {
		w.errorf("opendir failed on %q: %v", job.Path, err)
		err = fmt.Errorf("%w: %w", ErrOpenDir, err)
		p.abortTraversal(err)
		return err
	}

	if err := w.chownSelf(dh, job.Path, cred, &c); err != nil {
		_ = dh.close()
		return err
	}

	var (
		deferred string
		subdirs  int
		stopped  bool
		readErr  error
		errs     []error
	)

scan:
	for {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		entries, err := dh.readBatch(readBatchSize)
		for _, e := range entries {
			if ctx.Err() != nil {
				stopped = true
				break scan
			}
			name := e.Name()
			if name == "." || name == ".." {
				continue
			}

			typ := e.Type()
			switch {
			case typ.IsRegular(), typ&fs.ModeSymlink != 0:
				w.chownEntry(dh, job.Path, name, typ, cred, &c)

			case typ.IsDir():
				subdirs++
				if subdirs == 1 {
					w.debugf("delay processing of %s", joinPath(job.Path, name))
					deferred = name
					continue
				}
				if p.enqueue(ctx, job.Path, name, job.Cred, job.HierarchyID) {
					c.dirsQueued++
					continue
				}
				if ctx.Err() != nil {
					w.debugf("enqueue refused, shutting down")
					stopped = true
					break scan
				}
				w.debugf("enqueue refused, walking %s in place", joinPath(job.Path, name))
				c.fallbacks++
				child := job.child(name)
				if err := w.walk(ctx, &child); err != nil {
					errs = append(errs, err)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			w.errorf("readdir failed on %q: %v", job.Path, err)
			c.failures++
			readErr = fmt.Errorf("%w %s: %w", ErrReadDir, job.Path, err)
			break
		}
		if len(entries) == 0 {
			break
		}
	}

	if err := dh.close(); err != nil {
		w.debugf("close of %q failed: %v", job.Path, err)
	}

	if readErr == nil && !stopped && ctx.Err() == nil && subdirs > 0 {
		switch {
		case subdirs > 1 && p.enqueue(ctx, job.Path, deferred, job.Cred, job.HierarchyID):
			c.dirsQueued++
		case ctx.Err() != nil:
		default:
			if subdirs > 1 {
				c.fallbacks++
			}
			w.debugf("recursing into held back directory %s", joinPath(job.Path, deferred))
			child := job.child(deferred)
			if err := w.walk(ctx, &child); err != nil {
				errs = append(errs, err)
			}
		}
	}

	w.debugf("%s: files changed %d, links changed %d, unchanged %d, dirs changed %d, dirs queued %d",
		job.Path, c.filesChanged, c.linksChanged, c.filesUnchanged, c.dirsChanged, c.dirsQueued)

	return errors.Join(append([]error{readErr}, errs...)...)
}

// chownSelf fixes the owner of the directory being walked.
func (w *walker) chownSelf(dh dirHandle, path string, cred Credential, c *jobCounts) error {
	ops := w.pool.ops
	owner, err := ops.stat(dh.fd)
	if err != nil {
		w.errorf("failed to stat %q: %v", path, err)
		c.failures++
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if owner == cred {
		c.dirsUnchanged++
		return nil
	}
	if err := ops.chown(dh.fd, cred); err != nil {
		w.errorf("failed to chown %q: %v", path, err)
		c.failures++
		return fmt.Errorf("chown %s: %w", path, err)
	}
	c.dirsChanged++
	return nil
}

// chownEntry fixes the owner of a regular file or symlink without following it.
func (w *walker) chownEntry(dh dirHandle, dir, name string, typ fs.FileMode, cred Credential, c *jobCounts) {
	ops := w.pool.ops
	owner, err := ops.statAt(dh.fd, name)
	if err != nil {
		w.errorf("failed stat of %q: %v", joinPath(dir, name), err)
		c.failures++
		return
	}
	if owner == cred {
		c.filesUnchanged++
		return
	}
	if err := ops.chownAt(dh.fd, name, cred); err != nil {
		w.errorf("failed chown of %q: %v", joinPath(dir, name), err)
		c.failures++
		return
	}
	if typ&fs.ModeSymlink != 0 {
		c.linksChanged++
	} else {
		c.filesChanged++
	}
}
