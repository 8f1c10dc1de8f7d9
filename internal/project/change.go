package project

import "fmt"

// ChangeKind is the kind of a file change.
type ChangeKind int

// Change kinds.
const (
	Created ChangeKind = iota + 1
	Changed
	Deleted
)

// String returns the kind name.
func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Changed:
		return "changed"
	case Deleted:
		return "deleted"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ChangeEvent is a change of the file at URI.
type ChangeEvent struct {
	URI  string
	Kind ChangeKind
}
