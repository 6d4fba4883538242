package mchown

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type fileKey struct {
	dev uint64
	ino uint64
}

// fakeOps opens and reads real directories but keeps ownership in memory,
// so tests can pretend every entry starts out with a foreign owner without
// needing root.
type fakeOps struct {
	unixOps

	initial Credential

	mu       sync.Mutex
	owners   map[fileKey]Credential
	fdPaths  map[int]string
	failOpen map[string]error
	failSelf map[string]bool
	failName map[string]bool
	onOpen   func(path string)

	chowns atomic.Int64
	opens  atomic.Int64
}

func newFakeOps(initial Credential) *fakeOps {
	return &fakeOps{
		initial:  initial,
		owners:   make(map[fileKey]Credential),
		fdPaths:  make(map[int]string),
		failOpen: make(map[string]error),
		failSelf: make(map[string]bool),
		failName: make(map[string]bool),
	}
}

func keyOf(st *unix.Stat_t) fileKey {
	return fileKey{dev: uint64(st.Dev), ino: uint64(st.Ino)}
}

func (f *fakeOps) ownerOf(k fileKey) Credential {
	if c, ok := f.owners[k]; ok {
		return c
	}
	return f.initial
}

func (f *fakeOps) openDir(path string) (dirHandle, error) {
	f.opens.Add(1)
	if f.onOpen != nil {
		f.onOpen(path)
	}
	f.mu.Lock()
	err := f.failOpen[path]
	f.mu.Unlock()
	if err != nil {
		return dirHandle{fd: -1}, &os.PathError{Op: "open", Path: path, Err: err}
	}
	dh, err := f.unixOps.openDir(path)
	if err != nil {
		return dh, err
	}
	f.mu.Lock()
	f.fdPaths[dh.fd] = path
	f.mu.Unlock()
	return dh, nil
}

func (f *fakeOps) stat(fd int) (Credential, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Credential{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ownerOf(keyOf(&st)), nil
}

func (f *fakeOps) chown(fd int, cred Credential) error {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSelf[f.fdPaths[fd]] {
		return syscall.EPERM
	}
	f.owners[keyOf(&st)] = cred
	f.chowns.Add(1)
	return nil
}

func (f *fakeOps) statAt(dirfd int, name string) (Credential, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return Credential{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ownerOf(keyOf(&st)), nil
}

func (f *fakeOps) chownAt(dirfd int, name string, cred Credential) error {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failName[name] {
		return syscall.EPERM
	}
	f.owners[keyOf(&st)] = cred
	f.chowns.Add(1)
	return nil
}

// ownedBy reports how many entries under root the fake believes are owned
// by cred, and how many entries there are in total.
func (f *fakeOps) ownedBy(t *testing.T, root string, cred Credential) (owned, total int) {
	t.Helper()
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		var st unix.Stat_t
		if err := unix.Lstat(path, &st); err != nil {
			return err
		}
		total++
		f.mu.Lock()
		if f.ownerOf(keyOf(&st)) == cred {
			owned++
		}
		f.mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return owned, total
}

// buildTree creates the given entries under root. Names ending in "/" are
// directories, names containing " -> " are symlinks, the rest are files.
func buildTree(t *testing.T, root string, entries ...string) {
	t.Helper()
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e, "/"):
			require.NoError(t, os.MkdirAll(filepath.Join(root, e), 0o755))
		case strings.Contains(e, " -> "):
			parts := strings.SplitN(e, " -> ", 2)
			link := filepath.Join(root, parts[0])
			require.NoError(t, os.MkdirAll(filepath.Dir(link), 0o755))
			require.NoError(t, os.Symlink(parts[1], link))
		default:
			path := filepath.Join(root, e)
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
			require.NoError(t, os.WriteFile(path, []byte(e), 0o644))
		}
	}
}

// buildWideTree creates width directories per level, depth levels deep,
// each holding files files.
func buildWideTree(t *testing.T, root string, width, depth, files int) {
	t.Helper()
	var fill func(dir string, level int)
	fill = func(dir string, level int) {
		for f := range files {
			require.NoError(t, os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+f))), nil, 0o644))
		}
		if level == depth {
			return
		}
		for w := range width {
			sub := filepath.Join(dir, "d"+string(rune('a'+w)))
			require.NoError(t, os.Mkdir(sub, 0o755))
			fill(sub, level+1)
		}
	}
	fill(root, 0)
}

func fastDrain() DrainPolicy {
	return DrainPolicy{
		Interval:         time.Millisecond,
		Step:             time.Millisecond,
		MaxBackoffRounds: 5,
		QuietRounds:      3,
	}
}

func newTestPool(t *testing.T, workers int, ops fsOps) *Pool {
	t.Helper()
	p, err := NewPool(context.Background(), Options{Workers: workers, Drain: fastDrain(), ops: ops})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}
