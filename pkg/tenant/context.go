// Package tenant resolves tenant contexts (one group/section pair with its own
// credentials) from the credential pool and tracks the selection per session.
package tenant

import (
	"maps"
	"strings"
)

// Context is one tenant: the credentials of a single base plus display labels.
// Values are immutable once built.
type Context struct {
	Key          string
	GroupLabel   string
	SectionLabel string
	GroupID      string
	SectionSlug  string
	Token        string
	BaseID       string
	extras       map[string]string
}

// Extra returns a deployment-specific value (form URLs and the like) by name,
// case-insensitively, or def when the block does not define it.
func (c Context) Extra(name, def string) string {
	if v, ok := c.extras[strings.ToUpper(name)]; ok {
		return v
	}
	return def
}

// Extras returns a copy of every extra value.
func (c Context) Extras() map[string]string {
	return maps.Clone(c.extras)
}

// Label renders "<group> · <section>".
func (c Context) Label() string {
	return c.GroupLabel + " · " + c.SectionLabel
}
