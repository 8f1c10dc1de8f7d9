package workspace

import (
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Project is a handle to a named project. The handle stays valid when the
// project is deleted; Exists reports the current state.
type Project struct {
	ws   *Workspace
	name string
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

// Workspace returns the owning workspace.
func (p *Project) Workspace() *Workspace { return p.ws }

// Exists reports whether the project is registered.
func (p *Project) Exists() bool {
	_, _, ok := p.ws.state(p.name)
	return ok
}

// IsOpen reports whether the project exists and is open.
func (p *Project) IsOpen() bool {
	_, open, ok := p.ws.state(p.name)
	return ok && open
}

// Location returns the project's directory on disk, or "" if it does not exist.
func (p *Project) Location() string {
	desc, _, _ := p.ws.state(p.name)
	return desc.Location
}

// Description returns a copy of the project's metadata.
func (p *Project) Description() (Description, error) {
	desc, _, ok := p.ws.state(p.name)
	if !ok {
		return Description{}, &ProjectError{Project: p.name, Op: "describe", Err: ErrProjectNotFound}
	}
	return desc, nil
}

// HasNature reports whether the project exists and carries the nature.
func (p *Project) HasNature(nature string) bool {
	desc, _, ok := p.ws.state(p.name)
	return ok && desc.HasNature(nature)
}

// OutputLocation returns the project-relative output folder.
func (p *Project) OutputLocation() string {
	desc, _, _ := p.ws.state(p.name)
	return desc.Output
}

// Classpath returns the project's classpath entries.
func (p *Project) Classpath() []ClasspathEntry {
	desc, _, _ := p.ws.state(p.name)
	return desc.Classpath
}

// Members returns the project-relative paths of all indexed members, sorted.
func (p *Project) Members() []string {
	p.ws.mu.RLock()
	defer p.ws.mu.RUnlock()

	st, ok := p.ws.projects[p.name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(st.members))
	for rel := range st.members {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Resource returns the resource for the project itself.
func (p *Project) Resource() *Resource {
	return &Resource{
		ws:      p.ws,
		project: p.name,
		path:    p.Location(),
		kind:    KindProject,
	}
}

// Folder returns a handle for the folder at the project-relative path.
func (p *Project) Folder(rel string) *Resource {
	return p.member(rel, KindFolder)
}

// File returns a handle for the file at the project-relative path.
func (p *Project) File(rel string) *Resource {
	return p.member(rel, KindFile)
}

func (p *Project) member(rel string, kind Kind) *Resource {
	rel = cleanRel(rel)
	if rel == "" {
		return p.Resource()
	}

	p.ws.mu.RLock()
	defer p.ws.mu.RUnlock()
	return p.ws.resourceLocked(p.name, rel, kind)
}

// SetNatures replaces the project's natures.
func (p *Project) SetNatures(ctx context.Context, natures ...string) error {
	return p.ws.updateDescription(ctx, p.name, "set natures", func(d *Description) error {
		d.Natures = append([]string(nil), natures...)
		return nil
	})
}

// SetOutputLocation sets the project-relative output folder.
func (p *Project) SetOutputLocation(ctx context.Context, rel string) error {
	rel = cleanRel(rel)
	if rel == "" || strings.HasPrefix(rel, "..") {
		return &ProjectError{Project: p.name, Op: "set output", Err: ErrInvalidPath}
	}
	return p.ws.updateDescription(ctx, p.name, "set output", func(d *Description) error {
		d.Output = rel
		return nil
	})
}

// SetClasspath replaces the project's classpath.
func (p *Project) SetClasspath(ctx context.Context, entries []ClasspathEntry) error {
	return p.ws.updateDescription(ctx, p.name, "set classpath", func(d *Description) error {
		d.Classpath = append([]ClasspathEntry(nil), entries...)
		return nil
	})
}

// SetDescription replaces natures, output and classpath with those of desc.
// Name, location and links are kept.
func (p *Project) SetDescription(ctx context.Context, desc Description) error {
	return p.ws.updateDescription(ctx, p.name, "set description", func(d *Description) error {
		d.Natures = append([]string(nil), desc.Natures...)
		d.Output = desc.Output
		d.Classpath = append([]ClasspathEntry(nil), desc.Classpath...)
		return nil
	})
}

// CreateFolder creates the folder, and any missing parents, inside the
// open project. Creating an existing folder is not an error.
func (p *Project) CreateFolder(ctx context.Context, rel string) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel = cleanRel(rel)
	if rel == "" || strings.HasPrefix(rel, "..") {
		return nil, &PathError{Op: "create folder", Path: rel, Err: ErrInvalidPath}
	}

	w := p.ws
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.projects[p.name]
	if !ok {
		return nil, &ProjectError{Project: p.name, Op: "create folder", Err: ErrProjectNotFound}
	}
	if !st.open {
		return nil, &ProjectError{Project: p.name, Op: "create folder", Err: ErrProjectClosed}
	}

	dir := filepath.Join(st.desc.Location, filepath.FromSlash(rel))
	if err := w.fs.MkdirAll(dir); err != nil {
		return nil, &PathError{Op: "create folder", Path: dir, Err: err}
	}
	for cur := rel; cur != "." && cur != ""; cur = path.Dir(cur) {
		st.members[cur] = KindFolder
	}
	return w.resourceLocked(p.name, rel, KindFolder), nil
}

// Link makes the file or folder at target, which lives outside the
// project, appear as a linked member of folder. folder must exist in the
// project ("" is the project itself).
func (p *Project) Link(ctx context.Context, folder, target string) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	folder = cleanRel(folder)
	target = NormalizeLocation(target)

	info, err := p.ws.fs.Stat(target)
	if err != nil {
		return nil, &PathError{Op: "link", Path: target, Err: err}
	}
	kind := KindFile
	if info.Dir {
		kind = KindFolder
	}

	w := p.ws
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.projects[p.name]
	if !ok {
		return nil, &ProjectError{Project: p.name, Op: "link", Err: ErrProjectNotFound}
	}
	if !st.open {
		return nil, &ProjectError{Project: p.name, Op: "link", Err: ErrProjectClosed}
	}
	if folder != "" && st.members[folder] != KindFolder {
		return nil, &PathError{Op: "link", Path: folder, Err: ErrInvalidPath}
	}

	rel := path.Join(folder, filepath.Base(target))
	if existing, ok := st.links[rel]; ok && SameLocation(existing, target) {
		return w.resourceLocked(p.name, rel, kind), nil
	}

	desc := st.desc.clone()
	desc.Links = append(desc.Links, LinkEntry{Path: rel, Target: target})
	if err := WriteDescription(w.fs, desc); err != nil {
		return nil, &ProjectError{Project: p.name, Op: "link", Err: err}
	}
	st.desc = desc
	st.links[rel] = target
	st.members[rel] = kind
	return w.resourceLocked(p.name, rel, kind), nil
}

// cleanRel normalizes a project-relative path to slash form without a
// leading slash. The project itself is "".
func cleanRel(rel string) string {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" {
		return ""
	}
	rel = path.Clean(rel)
	if rel == "." {
		return ""
	}
	return rel
}
