package vfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// OSFS is the VFS backed by the host file system.
type OSFS struct{}

var _ VFS = (*OSFS)(nil)

// NewOSFS returns the host file system.
func NewOSFS() *OSFS { return &OSFS{} }

func (*OSFS) Stat(path string) (Entry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Entry{}, err
	}
	return entryOf(path, info), nil
}

func (*OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (*OSFS) List(dir string) ([]Entry, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(dirents))
	for _, d := range dirents {
		info, err := d.Info()
		if err != nil {
			continue // removed while listing
		}
		out = append(out, entryOf(filepath.Join(dir, d.Name()), info))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// WriteFile writes into a temporary sibling and renames it over path.
func (*OSFS) WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, FilePerm); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return &fs.PathError{Op: "write", Path: path, Err: err}
	}
	return nil
}

func (*OSFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, DirPerm)
}

func (*OSFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (*OSFS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

func (*OSFS) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (*OSFS) Walk(root string, fn WalkFunc) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fn(path, Entry{}, err)
		}
		info, err := d.Info()
		if err != nil {
			return fn(path, Entry{}, err)
		}
		return fn(path, entryOf(path, info), nil)
	})
}

func entryOf(path string, info fs.FileInfo) Entry {
	return Entry{Path: path, Name: info.Name(), Dir: info.IsDir(), ModTime: info.ModTime()}
}
