package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPath is returned by operations that need a backing file.
var ErrNoPath = errors.New("configuration has no file")

// ParseError locates a TOML decoding failure. Line and Column are 1-based
// and zero when the decoder could not attribute the failure; Key is the
// dotted key being decoded, if known.
type ParseError struct {
	Path   string
	Line   int
	Column int
	Key    string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ":%d", e.Column)
		}
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " (%s)", e.Key)
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }
