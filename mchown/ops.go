package mchown

import (
	"fmt"
	"io/fs"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// dirHandle is an open directory. fd is used for the *at syscalls, f for
// batched entry enumeration.
type dirHandle struct {
	fd int
	f  *os.File
}

func (h dirHandle) readBatch(n int) ([]fs.DirEntry, error) {
	return h.f.ReadDir(n)
}

func (h dirHandle) close() error {
	if h.f == nil {
		return nil
	}
	return h.f.Close()
}

// fsOps is every filesystem call the tree walk makes. The pool uses unixOps;
// tests swap in fakes to simulate foreign owners and failures.
type fsOps interface {
	openDir(path string) (dirHandle, error)
	stat(fd int) (Credential, error)
	chown(fd int, cred Credential) error
	statAt(dirfd int, name string) (Credential, error)
	chownAt(dirfd int, name string, cred Credential) error
}

type unixOps struct{}

func (unixOps) openDir(path string) (dirHandle, error) {
	for {
		fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
		if err == syscall.EINTR {
			continue
		}
		if err != nil {
			return dirHandle{fd: -1}, &os.PathError{Op: "open", Path: path, Err: err}
		}
		return dirHandle{fd: fd, f: os.NewFile(uintptr(fd), path)}, nil
	}
}

func (unixOps) stat(fd int) (Credential, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return Credential{}, fmt.Errorf("fstat: %w", err)
	}
	return Credential{UID: st.Uid, GID: st.Gid}, nil
}

func (unixOps) chown(fd int, cred Credential) error {
	if err := unix.Fchown(fd, int(cred.UID), int(cred.GID)); err != nil {
		return fmt.Errorf("fchown: %w", err)
	}
	return nil
}

func (unixOps) statAt(dirfd int, name string) (Credential, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(dirfd, name, &st, unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return Credential{}, fmt.Errorf("fstatat %s: %w", name, err)
	}
	return Credential{UID: st.Uid, GID: st.Gid}, nil
}

func (unixOps) chownAt(dirfd int, name string, cred Credential) error {
	if err := unix.Fchownat(dirfd, name, int(cred.UID), int(cred.GID), unix.AT_SYMLINK_NOFOLLOW); err != nil {
		return fmt.Errorf("fchownat %s: %w", name, err)
	}
	return nil
}
