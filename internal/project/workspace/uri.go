package workspace

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts a file path to a file:// URI.
func PathToURI(path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	absPath = filepath.ToSlash(absPath)
	if !strings.HasPrefix(absPath, "/") {
		// Windows drive path: C:/x -> /C:/x
		absPath = "/" + absPath
	}

	u := url.URL{
		Scheme: "file",
		Path:   absPath,
	}
	return u.String()
}

// URIToPath converts a file:// URI to a local path. Any other scheme
// yields ErrUnsupportedScheme.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", ErrUnsupportedScheme
	}
	if u.Path == "" {
		return "", ErrInvalidPath
	}

	path := filepath.FromSlash(u.Path)

	// On Windows, remove leading slash if path starts with drive letter
	if len(path) >= 3 && (path[0] == '/' || path[0] == '\\') && path[2] == ':' {
		path = path[1:]
	}
	return filepath.Clean(path), nil
}

// NormalizeLocation cleans a location and upper-cases a leading drive
// letter so that c:\src and C:\src compare equal.
func NormalizeLocation(path string) string {
	if path == "" {
		return path
	}
	path = filepath.Clean(path)
	if len(path) >= 2 && path[1] == ':' {
		path = strings.ToUpper(path[:1]) + path[1:]
	}
	return path
}

// SameLocation reports whether two locations denote the same directory.
func SameLocation(a, b string) bool {
	return NormalizeLocation(a) == NormalizeLocation(b)
}

// relativeTo returns child relative to parent in slash form, or false when
// child is not parent or below it.
func relativeTo(parent, child string) (string, bool) {
	parent = NormalizeLocation(parent)
	child = NormalizeLocation(child)
	if parent == child {
		return "", true
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
