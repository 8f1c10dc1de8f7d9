package workspace

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/dshills/buildsync/internal/project/vfs"
)

// DescriptorFile is the per-project metadata file kept at the project location.
const DescriptorFile = ".project.yaml"

// Well-known project natures.
const (
	// NatureSource marks a project that carries source folders and a classpath.
	NatureSource = "source"

	// NatureGo marks a project managed through go.mod.
	NatureGo = "go"
)

// EntryKind is the kind of a classpath entry.
type EntryKind string

// Classpath entry kinds.
const (
	EntrySource    EntryKind = "source"
	EntryContainer EntryKind = "container"
	EntryLibrary   EntryKind = "library"
)

// ClasspathEntry is one element of a project classpath.
type ClasspathEntry struct {
	Kind EntryKind `yaml:"kind"`
	Path string    `yaml:"path"`
}

// String returns kind:path.
func (e ClasspathEntry) String() string {
	return string(e.Kind) + ":" + e.Path
}

// LinkEntry records a linked resource: a file or folder outside the
// project location that appears inside the project at Path.
type LinkEntry struct {
	Path   string `yaml:"path"`
	Target string `yaml:"target"`
}

// Description is the persisted metadata of a project.
type Description struct {
	Name      string           `yaml:"name"`
	Location  string           `yaml:"-"`
	Natures   []string         `yaml:"natures,omitempty"`
	Output    string           `yaml:"output,omitempty"`
	Classpath []ClasspathEntry `yaml:"classpath,omitempty"`
	Links     []LinkEntry      `yaml:"links,omitempty"`
}

// HasNature reports whether the description carries the nature.
func (d Description) HasNature(nature string) bool {
	for _, n := range d.Natures {
		if n == nature {
			return true
		}
	}
	return false
}

// clone returns a deep copy so callers cannot mutate workspace state.
func (d Description) clone() Description {
	out := d
	out.Natures = append([]string(nil), d.Natures...)
	out.Classpath = append([]ClasspathEntry(nil), d.Classpath...)
	out.Links = append([]LinkEntry(nil), d.Links...)
	return out
}

// ReadDescription loads the descriptor stored in dir. A missing
// descriptor yields ErrNoDescriptor.
func ReadDescription(fsys vfs.VFS, dir string) (Description, error) {
	file := filepath.Join(dir, DescriptorFile)
	data, err := fsys.ReadFile(file)
	if err != nil {
		if vfs.IsNotExist(err) {
			return Description{}, &PathError{Op: "read descriptor", Path: file, Err: ErrNoDescriptor}
		}
		return Description{}, &PathError{Op: "read descriptor", Path: file, Err: err}
	}

	var desc Description
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return Description{}, &PathError{Op: "parse descriptor", Path: file, Err: err}
	}
	if desc.Name == "" {
		return Description{}, &PathError{Op: "parse descriptor", Path: file, Err: ErrInvalidName}
	}
	desc.Location = NormalizeLocation(dir)
	return desc, nil
}

// WriteDescription stores the descriptor at desc.Location.
func WriteDescription(fsys vfs.VFS, desc Description) error {
	if desc.Location == "" {
		return fmt.Errorf("write descriptor %s: %w", desc.Name, ErrInvalidPath)
	}
	data, err := yaml.Marshal(desc)
	if err != nil {
		return err
	}
	file := filepath.Join(desc.Location, DescriptorFile)
	if err := fsys.WriteFile(file, data); err != nil {
		return &PathError{Op: "write descriptor", Path: file, Err: err}
	}
	return nil
}
