// Package walker implements a depth-first directory scan over a pluggable
// filesystem abstraction, with a symlink-cycle filter and a hidden-file
// filter layered on top.
package walker

import (
	"io/fs"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"golang.org/x/sys/unix"
)

// Entry is one directory entry as returned by ReadDir: just enough to build
// a child Path without a second stat call.
type Entry struct {
	Name      string
	IsDir     bool
	IsSymlink bool
}

// FS abstracts the filesystem operations the walker needs, so tests can
// drive deterministic in-memory layouts instead of a real disk.
type FS interface {
	// ReadDir lists the immediate children of path, in no particular order.
	ReadDir(path string) ([]Entry, error)
	// Readlink resolves a symlink's target, relative or absolute.
	Readlink(path string) (string, error)
	// Realpath resolves path to its canonical, symlink-free absolute form.
	Realpath(path string) (string, error)
	// DeviceInode returns the (device, inode) pair identifying path on disk,
	// used as a fast-path membership check ahead of the canonical-prefix
	// comparison. ok is false when the filesystem cannot supply one (e.g. an
	// in-memory billy filesystem), in which case callers fall back to the
	// string check alone.
	DeviceInode(path string) (dev, ino uint64, ok bool)
}

// OSFileSystem is the default FS backed by the real operating system.
type OSFileSystem struct{}

var _ FS = OSFileSystem{}

func (OSFileSystem) ReadDir(path string) ([]Entry, error) {
	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		isSymlink := d.Type()&fs.ModeSymlink != 0
		isDir := d.IsDir()
		if isSymlink {
			// A symlink's own dirent mode never reports IsDir even when the
			// target is a directory; resolve it with a follow-through stat.
			if info, err := os.Stat(joinAbs(path, d.Name())); err == nil {
				isDir = info.IsDir()
			}
		}
		out = append(out, Entry{Name: d.Name(), IsDir: isDir, IsSymlink: isSymlink})
	}
	return out, nil
}

func (OSFileSystem) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

func (OSFileSystem) Realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

func (OSFileSystem) DeviceInode(path string) (dev, ino uint64, ok bool) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, 0, false
	}
	return uint64(st.Dev), uint64(st.Ino), true
}

// BillyFileSystem adapts a github.com/go-git/go-billy/v5 billy.Filesystem
// to the walker's FS interface, letting tests drive the walker over a
// deterministic in-memory tree. billy filesystems generally do not model
// POSIX device/inode identity, so DeviceInode always reports ok=false here;
// the symlink-cycle filter falls back to its canonical-prefix check alone.
type BillyFileSystem struct {
	FS billy.Filesystem
}

var _ FS = BillyFileSystem{}

func (b BillyFileSystem) ReadDir(path string) ([]Entry, error) {
	infos, err := b.FS.ReadDir(path)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(infos))
	for _, info := range infos {
		out = append(out, Entry{
			Name:      info.Name(),
			IsDir:     info.IsDir(),
			IsSymlink: info.Mode()&os.ModeSymlink != 0,
		})
	}
	return out, nil
}

func (b BillyFileSystem) Readlink(path string) (string, error) {
	return b.FS.Readlink(path)
}

func (b BillyFileSystem) Realpath(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	seen := map[string]bool{}
	for {
		if seen[clean] {
			return "", os.ErrInvalid // cycle; caller's filter should have stopped first
		}
		seen[clean] = true
		info, err := b.FS.Lstat(clean)
		if err != nil {
			return clean, nil
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return clean, nil
		}
		target, err := b.FS.Readlink(clean)
		if err != nil {
			return clean, nil
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(clean), target)
		}
		clean = filepath.Clean(target)
	}
}

func (b BillyFileSystem) DeviceInode(path string) (dev, ino uint64, ok bool) {
	return 0, 0, false
}
