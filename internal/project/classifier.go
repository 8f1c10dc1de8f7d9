package project

import (
	"github.com/dshills/buildsync/internal/project/buildsupport"
	"github.com/dshills/buildsync/internal/project/workspace"
)

// Classifier decides whether a resource is a build file.
type Classifier struct {
	active *buildsupport.Active
}

// NewClassifier creates a classifier reading the support held by active.
func NewClassifier(active *buildsupport.Active) *Classifier {
	return &Classifier{active: active}
}

// IsBuildFile reports whether a build support is active and it recognizes r.
func (c *Classifier) IsBuildFile(r *workspace.Resource) bool {
	if r == nil {
		return false
	}
	support := c.active.Get()
	if support == nil {
		return false
	}
	return support.IsBuildFile(r)
}
