package vfs

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"
)

// MemFS is an in-memory VFS with slash-separated absolute paths. Relative
// paths and backslashes are normalized, so "C:\x" and "/C:/x" are the same
// node. MemFS is safe for concurrent use.
type MemFS struct {
	mu    sync.RWMutex
	nodes map[string]*memNode
}

type memNode struct {
	dir     bool
	data    []byte
	modTime time.Time
}

var _ VFS = (*MemFS)(nil)

// NewMemFS returns an empty tree containing only "/".
func NewMemFS() *MemFS {
	return &MemFS{nodes: map[string]*memNode{"/": {dir: true, modTime: time.Now()}}}
}

func (m *MemFS) Stat(p string) (Entry, error) {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[p]
	if !ok {
		return Entry{}, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
	}
	return n.entry(p), nil
}

func (m *MemFS) ReadFile(p string) ([]byte, error) {
	p = cleanPath(p)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[p]
	switch {
	case !ok:
		return nil, &fs.PathError{Op: "read", Path: p, Err: fs.ErrNotExist}
	case n.dir:
		return nil, &fs.PathError{Op: "read", Path: p, Err: syscall.EISDIR}
	}
	return append([]byte(nil), n.data...), nil
}

func (m *MemFS) List(dir string) ([]Entry, error) {
	dir = cleanPath(dir)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(dir)
}

func (m *MemFS) listLocked(dir string) ([]Entry, error) {
	n, ok := m.nodes[dir]
	switch {
	case !ok:
		return nil, &fs.PathError{Op: "list", Path: dir, Err: fs.ErrNotExist}
	case !n.dir:
		return nil, &fs.PathError{Op: "list", Path: dir, Err: syscall.ENOTDIR}
	}
	var out []Entry
	for p, child := range m.nodes {
		if p != dir && path.Dir(p) == dir {
			out = append(out, child.entry(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemFS) WriteFile(p string, data []byte) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[p]; ok && n.dir {
		return &fs.PathError{Op: "write", Path: p, Err: syscall.EISDIR}
	}
	if parent, ok := m.nodes[path.Dir(p)]; !ok || !parent.dir {
		return &fs.PathError{Op: "write", Path: p, Err: fs.ErrNotExist}
	}
	m.nodes[p] = &memNode{data: append([]byte(nil), data...), modTime: time.Now()}
	return nil
}

func (m *MemFS) MkdirAll(dir string) error {
	dir = cleanPath(dir)
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := "/"
	for _, part := range strings.Split(strings.TrimPrefix(dir, "/"), "/") {
		if part == "" {
			continue
		}
		cur = path.Join(cur, part)
		n, ok := m.nodes[cur]
		if !ok {
			m.nodes[cur] = &memNode{dir: true, modTime: time.Now()}
			continue
		}
		if !n.dir {
			return &fs.PathError{Op: "mkdir", Path: cur, Err: syscall.ENOTDIR}
		}
	}
	return nil
}

func (m *MemFS) RemoveAll(p string) error {
	p = cleanPath(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	for q := range m.nodes {
		if q == p || within(p, q) {
			delete(m.nodes, q)
		}
	}
	if p == "/" {
		m.nodes["/"] = &memNode{dir: true, modTime: time.Now()}
	}
	return nil
}

func (m *MemFS) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.nodes[cleanPath(p)]
	return ok
}

func (m *MemFS) IsDir(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[cleanPath(p)]
	return ok && n.dir
}

// Walk snapshots each directory listing before descending, so fn may
// modify the tree.
func (m *MemFS) Walk(root string, fn WalkFunc) error {
	root = cleanPath(root)
	e, err := m.Stat(root)
	if err != nil {
		return fn(root, Entry{}, err)
	}
	if err := m.walk(e, fn); err != nil && err != SkipDir {
		return err
	}
	return nil
}

func (m *MemFS) walk(e Entry, fn WalkFunc) error {
	if err := fn(e.Path, e, nil); err != nil || !e.Dir {
		return err
	}
	children, err := m.List(e.Path)
	if err != nil {
		return fn(e.Path, e, err)
	}
	for _, c := range children {
		err := m.walk(c, fn)
		if err == SkipDir && c.Dir {
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// AddFile writes content to p, creating parents as needed.
func (m *MemFS) AddFile(p, content string) error {
	p = cleanPath(p)
	if err := m.MkdirAll(path.Dir(p)); err != nil {
		return err
	}
	return m.WriteFile(p, []byte(content))
}

func (n *memNode) entry(p string) Entry {
	return Entry{Path: p, Name: path.Base(p), Dir: n.dir, ModTime: n.modTime}
}

func cleanPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// within reports whether q lies strictly below dir.
func within(dir, q string) bool {
	if dir == "/" {
		return q != "/"
	}
	return strings.HasPrefix(q, dir+"/")
}
