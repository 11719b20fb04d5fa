// Package mpath implements the normalized, byte-transparent path value used
// throughout the index: an immutable (parent, name, depth) triple with a
// byte-exact round trip through the platform's filesystem encoding.
package mpath

import (
	"errors"
	"hash/maphash"
	"os"
	"strings"
)

// ErrInvalidPath is returned by ConstructBytes when neither a name nor a
// parent was supplied at all — not even enough to fall back to "." the way
// Construct("", nil) does. See ConstructBytes for the exact trigger.
var ErrInvalidPath = errors.New("mpath: path has no usable component")

// attrs caches is_dir/is_symlink once computed, shared by every copy of the
// Path value that produced it (Path is a plain struct, so a pointer to this
// cache is what lets "lazily computed, computed once" hold across copies).
type attrs struct {
	dirKnown  bool
	dirVal    bool
	linkKnown bool
	linkVal   bool
}

// Path is an immutable, normalized (parent, name, depth) triple. Two Path
// values are equal iff their normalized joined forms are equal. The zero
// Path has an empty name and does not compare equal to Path("."); build
// values with Construct.
type Path struct {
	parent string // interned, normalized parent string ("" for a root-level entry)
	name   string // interned, single normalized component
	depth  int
	attrs  *attrs
}

// Option customizes construction, overriding derived attributes that would
// otherwise require a stat(2) call.
type Option func(*attrs)

// WithIsDir supplies a known is_dir value, skipping the lazy stat.
func WithIsDir(v bool) Option {
	return func(a *attrs) { a.dirKnown, a.dirVal = true, v }
}

// WithIsSymlink supplies a known is_symlink value, skipping the lazy stat.
func WithIsSymlink(v bool) Option {
	return func(a *attrs) { a.linkKnown, a.linkVal = true, v }
}

func isSimpleComponent(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsRune(name, '/')
}

func applyOptions(opts []Option) *attrs {
	if len(opts) == 0 {
		return &attrs{}
	}
	a := &attrs{}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Construct builds a Path from a name and an optional parent. Given a plain
// component (no separator, not "", ".", "..") and a non-nil parent, this
// takes the happy path: depth = parent.Depth()+1 and no re-normalization is
// needed. Otherwise the joined parent/name is normalized from scratch.
//
// Construct never fails: Path("") == Path(".") per the data model, so there
// is always at least the "." component to fall back to. Use ConstructBytes
// for the one case that can fail.
func Construct(name string, parent *Path, opts ...Option) Path {
	a := applyOptions(opts)
	if isSimpleComponent(name) && parent != nil {
		parentStr := parent.FullPath()
		if parent.name == "." {
			parentStr = parent.parent
		}
		return Path{
			parent: intern(parentStr),
			name:   intern(name),
			depth:  parent.depth + 1,
			attrs:  a,
		}
	}

	parentStr := ""
	if parent != nil {
		parentStr = parent.FullPath()
	}
	components := normalizeJoin(parentStr, name)
	p, n, d := splitComponents(components)
	return Path{parent: intern(p), name: intern(n), depth: d, attrs: a}
}

// ConstructBytes is Construct over raw filesystem bytes, tunneling
// undecodable bytes through lone low surrogates (see BytesToString).
//
// It fails with ErrInvalidPath only when name is nil (not merely empty) and
// no parent was given either — i.e. there is nothing at all to build a path
// from, not even "." to fall back to.
func ConstructBytes(name []byte, parent *Path, opts ...Option) (Path, error) {
	if name == nil && parent == nil {
		return Path{}, ErrInvalidPath
	}
	return Construct(BytesToString(name), parent, opts...), nil
}

// MakeChild is the fast path for a known-simple child component, equivalent
// to Construct(component, &p, opts...) but documents intent at call sites.
func (p Path) MakeChild(component string, opts ...Option) Path {
	return Construct(component, &p, opts...)
}

// normalizeJoin joins parent and name POSIX-style and resolves "." and ".."
// components the way os.path.normpath does, without touching the
// filesystem. Case folding is a no-op here: the index targets
// case-sensitive POSIX filesystems (see spec.md §9 on platform-dependent
// case folding).
func normalizeJoin(parent, name string) []string {
	var joined string
	switch {
	case parent == "":
		joined = name
	case name == "":
		joined = parent
	default:
		joined = parent + "/" + name
	}

	parts := strings.Split(joined, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 && out[len(out)-1] != ".." {
				out = out[:len(out)-1]
			} else {
				out = append(out, "..")
			}
		default:
			out = append(out, part)
		}
	}
	return out
}

// splitComponents turns a resolved component list back into (parent, name,
// depth). An empty list denotes the conceptual root, represented as
// (parent="", name=".", depth=0).
func splitComponents(components []string) (parent, name string, depth int) {
	for _, c := range components {
		if c == ".." {
			depth--
		} else {
			depth++
		}
	}
	if len(components) == 0 {
		return "", ".", 0
	}
	name = components[len(components)-1]
	parent = strings.Join(components[:len(components)-1], "/")
	return parent, name, depth
}

// Parent returns the normalized parent string (the joined form of the
// parent Path, not a Path itself).
func (p Path) Parent() string { return p.parent }

// Name returns the single normalized path component.
func (p Path) Name() string { return p.name }

// Depth is the signed count of non-".." components from the conceptual
// root; see splitComponents and spec.md §3.
func (p Path) Depth() int { return p.depth }

// FullPath returns the joined (parent + sep + name) form. May contain
// tunneled surrogates; use Bytes() for filesystem access, Display() for
// logs.
func (p Path) FullPath() string {
	if p.parent == "" {
		return p.name
	}
	return p.parent + "/" + p.name
}

// Bytes returns the exact bytes the OS will accept for this path,
// re-encoding any tunneled surrogate back to its original byte.
func (p Path) Bytes() []byte { return StringToBytes(p.FullPath()) }

// Display returns a lossy string suitable for logs or UI: undecodable bytes
// are replaced with U+FFFD. Never use this for filesystem access.
func (p Path) Display() string { return Display(p.FullPath()) }

// String implements fmt.Stringer via Display, so %v/%s formatting never
// leaks raw surrogate bytes.
func (p Path) String() string { return p.Display() }

// IsDir reports whether this entry is a directory, computed lazily from the
// OS via stat if it was not supplied at construction.
func (p Path) IsDir() bool {
	if p.attrs != nil && p.attrs.dirKnown {
		return p.attrs.dirVal
	}
	info, err := os.Stat(string(p.Bytes()))
	v := err == nil && info.IsDir()
	if p.attrs != nil {
		p.attrs.dirKnown, p.attrs.dirVal = true, v
	}
	return v
}

// IsSymlink reports whether this entry is itself a symlink, computed
// lazily from the OS via Lstat if it was not supplied at construction.
func (p Path) IsSymlink() bool {
	if p.attrs != nil && p.attrs.linkKnown {
		return p.attrs.linkVal
	}
	info, err := os.Lstat(string(p.Bytes()))
	v := err == nil && info.Mode()&os.ModeSymlink != 0
	if p.attrs != nil {
		p.attrs.linkKnown, p.attrs.linkVal = true, v
	}
	return v
}

// Equal reports whether other (a Path, string, or []byte) denotes the same
// normalized path, and whether the comparison was applicable at all — a
// non-path-like other returns (false, false), mirroring Python's
// NotImplemented rather than a type error.
func (p Path) Equal(other any) (equal, applicable bool) {
	switch v := other.(type) {
	case Path:
		return p.parent == v.parent && p.name == v.name, true
	case *Path:
		if v == nil {
			return false, false
		}
		return p.parent == v.parent && p.name == v.name, true
	case string:
		return stringSlice(normalizeJoin("", v)).equalTo(p), true
	case []byte:
		return stringSlice(normalizeJoin("", BytesToString(v))).equalTo(p), true
	default:
		return false, false
	}
}

func (components stringSlice) equalTo(p Path) bool {
	parent, name, _ := splitComponents(components)
	return parent == p.parent && name == p.name
}

type stringSlice []string

var hashSeed = maphash.MakeSeed()

// Hash returns a hash consistent with Equal: equal paths (by Equal's
// definition restricted to Path/Path comparisons) have equal hashes.
func (p Path) Hash() uint64 {
	var h maphash.Hash
	h.SetSeed(hashSeed)
	_, _ = h.WriteString(p.FullPath())
	return h.Sum64()
}
