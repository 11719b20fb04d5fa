package walker

import (
	"fmt"
	"log"

	"github.com/tilboerner/cherrymusic-rewrite/internal/mpath"
	"github.com/tilboerner/cherrymusic-rewrite/internal/store/storeerr"
)

// Filter decides whether a candidate Path should be descended into /
// yielded at all. Returning false excludes the path and (for directories)
// prunes the whole subtree under it.
type Filter func(p mpath.Path) bool

// Scanner performs a depth-first walk of a root directory using an
// explicit stack, yielding every entry (files and directories) reachable
// under it subject to the configured filters and MaxDepth.
//
// Mirrors recursive_scandir: a plain stack-based DFS rather than
// recursion, so arbitrarily deep trees don't grow the Go call stack.
type Scanner struct {
	FS       FS
	Filters  []Filter
	MaxDepth int // 0 means unlimited
}

// frame is one pending directory to expand, paired with the Path that
// named it (so depth and parent linkage come along for free).
type frame struct {
	path mpath.Path
	abs  string // real filesystem path used for ReadDir/Readlink calls
}

// Walk scans root, calling visit for every accepted entry (including root
// itself) in depth-first order. A directory's children are all yielded
// together, in ReadDir order, as soon as that directory is expanded — not
// deferred until each child is itself popped — mirroring
// recursive_scandir's "for entry in dir_entries: ... yield child" loop, so
// a stateful filter sees every sibling of a directory before it sees any
// of their descendants. visit returning an error aborts the scan and the
// error propagates out of Walk, wrapped with the failing path. A ReadDir
// failure on one directory is logged and that subtree is skipped; it never
// aborts the walk, matching recursive_scandir's "except OSError: continue".
func (s *Scanner) Walk(root string, visit func(p mpath.Path) error) error {
	rootPath := mpath.Construct(root, nil, mpath.WithIsDir(true), mpath.WithIsSymlink(false))
	startDepth := rootPath.Depth()

	if !s.accept(rootPath) {
		return nil
	}
	if err := visit(rootPath); err != nil {
		return fmt.Errorf("walker: visiting %s: %w", rootPath.Display(), err)
	}
	if !rootPath.IsDir() {
		return nil
	}

	stack := []frame{{path: rootPath, abs: root}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.MaxDepth > 0 && top.path.Depth()-startDepth >= s.MaxDepth {
			continue
		}

		entries, err := s.FS.ReadDir(top.abs)
		if err != nil {
			log.Printf("walker: %s", storeerr.New(storeerr.ScanIoError, "read directory", top.path.Display(), err))
			continue
		}
		for _, e := range entries {
			child := top.path.MakeChild(e.Name, mpath.WithIsDir(e.IsDir), mpath.WithIsSymlink(e.IsSymlink))
			if !s.accept(child) {
				continue
			}
			if err := visit(child); err != nil {
				return fmt.Errorf("walker: visiting %s: %w", child.Display(), err)
			}
			if child.IsDir() {
				stack = append(stack, frame{path: child, abs: joinAbs(top.abs, e.Name)})
			}
		}
	}
	return nil
}

func joinAbs(dir, name string) string {
	if dir == "" || dir == "." {
		return name
	}
	return dir + "/" + name
}

func (s *Scanner) accept(p mpath.Path) bool {
	for _, f := range s.Filters {
		if !f(p) {
			return false
		}
	}
	return true
}
