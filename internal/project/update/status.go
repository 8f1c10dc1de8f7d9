package update

import (
	"fmt"
	"time"
)

// Severity classifies a Status.
type Severity int

const (
	// SeverityOK marks a successful update.
	SeverityOK Severity = iota
	// SeverityError marks a failed update.
	SeverityError
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Status is the outcome of one background update.
type Status struct {
	Project  string
	JobID    string
	Severity Severity
	Message  string
	Err      error
	Elapsed  time.Duration
}

// OK reports whether the update succeeded.
func (s Status) OK() bool {
	return s.Severity == SeverityOK
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", s.Severity, s.Message, s.Err)
	}
	return fmt.Sprintf("[%s] %s", s.Severity, s.Message)
}
