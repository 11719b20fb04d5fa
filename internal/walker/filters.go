package walker

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/tilboerner/cherrymusic-rewrite/internal/mpath"
)

// HiddenFilter rejects any path with a "." prefixed component anywhere in
// its lineage — not just the leaf name. Mirrors hidden_file_filter.
func HiddenFilter(p mpath.Path) bool {
	if strings.HasPrefix(p.Name(), ".") {
		return false
	}
	for _, part := range strings.Split(p.Parent(), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// SymlinkCycleFilter rejects a symlinked directory whose canonical target
// is an ancestor of, or lies inside, a root already walked, breaking
// cycles exactly the way circular_symlink_filter does: known roots grow
// monotonically, and a candidate is rejected if it is a prefix of any
// known root or has any known root as its prefix.
//
// Ahead of the authoritative string-prefix comparison, each candidate's
// (device, inode) pair is checked against a roaring.Bitmap of every
// known root's (device, inode) pair folded into a single uint32. A miss
// there proves the candidate cannot already be a known root and the O(n)
// string scan is skipped entirely. The bitmap is necessary, not
// sufficient: two distinct (dev, inode) pairs never collide in the
// underlying comparison, but the 32-bit fold used as the bitmap key can
// theoretically collide, so a bitmap hit always falls through to the
// string check as the source of truth.
type SymlinkCycleFilter struct {
	fs FS

	mu         sync.Mutex
	knownRoots []string // canonical, trailing-slash-terminated
	seen       *roaring.Bitmap
}

// NewSymlinkCycleFilter seeds the filter with root's own canonical path.
func NewSymlinkCycleFilter(fs FS, root string) (*SymlinkCycleFilter, error) {
	canon, err := fs.Realpath(root)
	if err != nil {
		return nil, err
	}
	f := &SymlinkCycleFilter{fs: fs, seen: roaring.New()}
	f.addRootLocked(canon)
	return f, nil
}

func (f *SymlinkCycleFilter) addRootLocked(canon string) {
	withSlash := canon
	if !strings.HasSuffix(withSlash, "/") {
		withSlash += "/"
	}
	f.knownRoots = append(f.knownRoots, withSlash)
	if dev, ino, ok := f.fs.DeviceInode(canon); ok {
		f.seen.Add(foldDevIno(dev, ino))
	}
}

// foldDevIno folds a (device, inode) pair into the 32-bit key space
// roaring.Bitmap stores, via an FNV-1a-style mix. Distinct pairs can
// theoretically collide after folding, which is exactly why bitmap
// membership is a fast-path hint and never the authoritative check.
func foldDevIno(dev, ino uint64) uint32 {
	h := uint64(2166136261)
	for _, v := range [2]uint64{dev, ino} {
		h ^= v
		h *= 16777619
	}
	return uint32(h ^ (h >> 32))
}

// Accept implements Filter. Only directories are ever symlink-cycle
// candidates; non-directory entries (including plain files that happen to
// be symlinks) always pass.
func (f *SymlinkCycleFilter) Accept(p mpath.Path) bool {
	if !p.IsDir() {
		return true
	}
	if !p.IsSymlink() {
		return true
	}

	raw := string(p.Bytes())
	canon, err := f.fs.Realpath(raw)
	if err != nil {
		return false
	}
	testPath := canon
	if !strings.HasSuffix(testPath, "/") {
		testPath += "/"
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if dev, ino, ok := f.fs.DeviceInode(canon); ok {
		if !f.seen.Contains(foldDevIno(dev, ino)) {
			f.addRootLocked(canon)
			return true
		}
	}

	for _, known := range f.knownRoots {
		if strings.HasPrefix(known, testPath) || strings.HasPrefix(testPath, known) {
			return false
		}
	}
	f.addRootLocked(canon)
	return true
}
