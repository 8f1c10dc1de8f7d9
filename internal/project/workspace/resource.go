package workspace

import (
	"context"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dshills/buildsync/internal/project/vfs"
)

// Kind is the type of a resource.
type Kind uint8

// Resource kinds.
const (
	KindFile Kind = iota
	KindFolder
	KindProject
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindFolder:
		return "folder"
	case KindProject:
		return "project"
	default:
		return "unknown"
	}
}

// Resource is a file, folder or project inside the workspace.
// A Resource is a handle: it may outlive the thing it names.
type Resource struct {
	ws      *Workspace
	project string
	rel     string // project-relative slash path, "" for the project
	path    string // disk location
	kind    Kind
	linked  bool
}

// Path returns the workspace path, /<project>/<relative path>.
func (r *Resource) Path() string {
	if r.rel == "" {
		return "/" + r.project
	}
	return "/" + r.project + "/" + r.rel
}

// String implements fmt.Stringer.
func (r *Resource) String() string { return r.Path() }

// RelativePath returns the project-relative path in slash form.
func (r *Resource) RelativePath() string { return r.rel }

// Location returns the resource's location on disk. For linked resources
// this is the link target.
func (r *Resource) Location() string { return r.path }

// Name returns the last element of the resource path.
func (r *Resource) Name() string {
	if r.rel == "" {
		return r.project
	}
	return path.Base(r.rel)
}

// Kind returns the resource kind.
func (r *Resource) Kind() Kind { return r.kind }

// Linked reports whether the resource lives outside its project location.
func (r *Resource) Linked() bool { return r.linked }

// Project returns the owning project.
func (r *Resource) Project() *Project { return r.ws.Project(r.project) }

// URI returns the file:// URI of the resource location.
func (r *Resource) URI() string { return PathToURI(r.path) }

// Parent returns the containing resource, or nil for a project.
func (r *Resource) Parent() *Resource {
	if r.kind == KindProject || r.rel == "" {
		return nil
	}
	dir := path.Dir(r.rel)
	if dir == "." {
		return r.ws.Project(r.project).Resource()
	}

	r.ws.mu.RLock()
	defer r.ws.mu.RUnlock()
	return r.ws.resourceLocked(r.project, dir, KindFolder)
}

// Exists reports whether the resource is known to the workspace. Members
// of closed projects do not exist.
func (r *Resource) Exists() bool {
	r.ws.mu.RLock()
	defer r.ws.mu.RUnlock()

	st, ok := r.ws.projects[r.project]
	if !ok {
		return false
	}
	if r.rel == "" {
		return true
	}
	if !st.open {
		return false
	}
	_, ok = st.members[r.rel]
	return ok
}

// resourceLocked builds a resource handle. The indexed kind wins over
// fallback. Callers hold w.mu.
func (w *Workspace) resourceLocked(project, rel string, fallback Kind) *Resource {
	r := &Resource{ws: w, project: project, rel: rel, kind: fallback}
	st, ok := w.projects[project]
	if !ok {
		return r
	}
	if k, ok := st.members[rel]; ok {
		r.kind = k
	}
	if target, rest, ok := st.linkFor(rel); ok {
		r.linked = true
		r.path = filepath.Join(target, filepath.FromSlash(rest))
		return r
	}
	r.path = filepath.Join(st.desc.Location, filepath.FromSlash(rel))
	return r
}

// linkFor returns the link target covering rel and the remainder below it.
func (st *projectState) linkFor(rel string) (string, string, bool) {
	for linkRel, target := range st.links {
		if rel == linkRel {
			return target, "", true
		}
		if strings.HasPrefix(rel, linkRel+"/") {
			return target, rel[len(linkRel)+1:], true
		}
	}
	return "", "", false
}

// FindResource maps a URI to the resource at that location. Linked
// resources take precedence, then the open project with the longest
// matching location. It returns (nil, nil) when no open project contains
// the location and ErrUnsupportedScheme for non-file URIs.
func (w *Workspace) FindResource(uri string) (*Resource, error) {
	p, err := URIToPath(uri)
	if err != nil {
		return nil, err
	}
	p = NormalizeLocation(p)

	w.mu.RLock()
	defer w.mu.RUnlock()

	for _, name := range w.sortedNamesLocked() {
		st := w.projects[name]
		if !st.open {
			continue
		}
		for linkRel, target := range st.links {
			if rest, ok := relativeTo(target, p); ok {
				return w.resourceLocked(name, path.Join(linkRel, rest), w.guessKind(p)), nil
			}
		}
	}

	best, bestRel := "", ""
	for _, name := range w.sortedNamesLocked() {
		st := w.projects[name]
		if !st.open {
			continue
		}
		rel, ok := relativeTo(st.desc.Location, p)
		if !ok {
			continue
		}
		if best == "" || len(st.desc.Location) > len(w.projects[best].desc.Location) {
			best, bestRel = name, rel
		}
	}
	if best == "" {
		return nil, nil
	}
	if bestRel == "" {
		return &Resource{ws: w, project: best, path: w.projects[best].desc.Location, kind: KindProject}, nil
	}
	return w.resourceLocked(best, bestRel, w.guessKind(p)), nil
}

func (w *Workspace) guessKind(diskPath string) Kind {
	if w.fs.IsDir(diskPath) {
		return KindFolder
	}
	return KindFile
}

// Refresh reconciles the member index below r with disk, to infinite
// depth. Members missing on disk are dropped. Refreshing a resource of a
// closed or unknown project does nothing.
func (w *Workspace) Refresh(ctx context.Context, r *Resource) error {
	if r == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	desc, open, ok := w.state(r.project)
	if !ok || !open {
		return nil
	}

	w.mu.RLock()
	linkTarget, _, linked := w.projects[r.project].linkFor(r.rel)
	links := make(map[string]string, len(w.projects[r.project].links))
	for k, v := range w.projects[r.project].links {
		links[k] = v
	}
	w.mu.RUnlock()

	found := make(map[string]Kind)
	switch {
	case linked:
		if err := w.scan(ctx, linkTarget, r.rel, found); err != nil {
			return &PathError{Op: "refresh", Path: r.Path(), Err: err}
		}
	default:
		root := filepath.Join(desc.Location, filepath.FromSlash(r.rel))
		if err := w.scan(ctx, root, r.rel, found); err != nil {
			return &PathError{Op: "refresh", Path: r.Path(), Err: err}
		}
		for linkRel, target := range links {
			if !covers(r.rel, linkRel) {
				continue
			}
			if err := w.scan(ctx, target, linkRel, found); err != nil {
				return &PathError{Op: "refresh", Path: linkRel, Err: err}
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.projects[r.project]
	if !ok || !st.open {
		return nil
	}
	removed := 0
	for rel := range st.members {
		if covers(r.rel, rel) {
			if _, keep := found[rel]; !keep {
				removed++
			}
			delete(st.members, rel)
		}
	}
	for rel, kind := range found {
		if rel != "" {
			st.members[rel] = kind
		}
	}

	w.logger.Debug("refreshed",
		zap.String("resource", r.Path()),
		zap.Int("members", len(found)),
		zap.Int("removed", removed))
	return nil
}

// scan walks root and records every entry below it as rel-prefixed members.
// A missing root records nothing.
func (w *Workspace) scan(ctx context.Context, root, rel string, found map[string]Kind) error {
	err := w.fs.Walk(root, func(p string, e vfs.Entry, err error) error {
		if err != nil {
			if vfs.IsNotExist(err) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		sub, ok := relativeTo(root, p)
		if !ok {
			return nil
		}
		member := path.Join(rel, sub)
		if member == "." {
			member = ""
		}
		if e.Dir {
			if e.Name == MetadataDir {
				return vfs.SkipDir
			}
			found[member] = KindFolder
			return nil
		}
		found[member] = KindFile
		return nil
	})
	if err == vfs.SkipDir {
		return nil
	}
	return err
}

// covers reports whether rel is prefix itself or lies below it.
func covers(prefix, rel string) bool {
	if prefix == "" {
		return true
	}
	return rel == prefix || strings.HasPrefix(rel, prefix+"/")
}
