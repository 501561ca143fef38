package core

import (
	"fmt"
	"strings"
)

// VersionCatalog is the ordered, append-only list of API versions known to
// the process. Position in the list defines the order.
type VersionCatalog struct {
	versions []string
	index    map[string]int
}

func NewVersionCatalog(versions ...string) (*VersionCatalog, error) {
	if len(versions) == 0 {
		return nil, newConfigError("core: version catalog requires at least one version", nil)
	}
	catalog := &VersionCatalog{
		versions: make([]string, 0, len(versions)),
		index:    make(map[string]int, len(versions)),
	}
	for position, raw := range versions {
		version := normalizeVersion(raw)
		if version == "" {
			return nil, newConfigError(
				fmt.Sprintf("core: version catalog entry %d is blank", position),
				map[string]any{"position": position},
			)
		}
		if _, exists := catalog.index[version]; exists {
			return nil, newConfigError(
				fmt.Sprintf("core: version catalog has duplicate version %q", version),
				map[string]any{"version": version},
			)
		}
		catalog.index[version] = len(catalog.versions)
		catalog.versions = append(catalog.versions, version)
	}
	return catalog, nil
}

func (c *VersionCatalog) Contains(version string) bool {
	_, ok := c.Index(version)
	return ok
}

func (c *VersionCatalog) Index(version string) (int, bool) {
	if c == nil {
		return 0, false
	}
	position, ok := c.index[normalizeVersion(version)]
	return position, ok
}

func (c *VersionCatalog) Validate(version string) error {
	if c.Contains(version) {
		return nil
	}
	return newUnknownVersionError(normalizeVersion(version), nil)
}

// Compare returns -1, 0 or 1 as a is before, equal to, or after b.
func (c *VersionCatalog) Compare(a, b string) (int, error) {
	left, ok := c.Index(a)
	if !ok {
		return 0, newUnknownVersionError(normalizeVersion(a), nil)
	}
	right, ok := c.Index(b)
	if !ok {
		return 0, newUnknownVersionError(normalizeVersion(b), nil)
	}
	switch {
	case left < right:
		return -1, nil
	case left > right:
		return 1, nil
	default:
		return 0, nil
	}
}

func (c *VersionCatalog) Earliest() string {
	if c == nil || len(c.versions) == 0 {
		return ""
	}
	return c.versions[0]
}

func (c *VersionCatalog) Latest() string {
	if c == nil || len(c.versions) == 0 {
		return ""
	}
	return c.versions[len(c.versions)-1]
}

func (c *VersionCatalog) Versions() []string {
	if c == nil {
		return []string{}
	}
	return append([]string(nil), c.versions...)
}

func (c *VersionCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.versions)
}

// Between returns the versions v with lower < v <= upper, ascending.
func (c *VersionCatalog) Between(lower, upper string) ([]string, error) {
	from, ok := c.Index(lower)
	if !ok {
		return nil, newUnknownVersionError(normalizeVersion(lower), nil)
	}
	to, ok := c.Index(upper)
	if !ok {
		return nil, newUnknownVersionError(normalizeVersion(upper), nil)
	}
	if from >= to {
		return []string{}, nil
	}
	return append([]string(nil), c.versions[from+1:to+1]...), nil
}

func normalizeVersion(version string) string {
	return strings.TrimSpace(version)
}
