package action

import (
	"fmt"
	"strings"
)

// Reference identifies an artifact in the registry: "<namespace>/<slug>:<version>".
type Reference struct {
	Namespace string
	Slug      string
	Version   string
	raw       string
}

// String returns the original "<namespace>/<slug>:<version>" form.
func (r Reference) String() string {
	if r.raw != "" {
		return r.raw
	}
	return fmt.Sprintf("%s/%s:%s", r.Namespace, r.Slug, r.Version)
}

// ParseReference parses a raw action reference string. Parsing fails if
// either the "/" or ":" separator is missing (spec.md §3).
func ParseReference(raw string) (Reference, error) {
	slashIdx := strings.IndexByte(raw, '/')
	if slashIdx < 0 {
		return Reference{}, fmt.Errorf("action: reference %q missing '/' separator", raw)
	}
	rest := raw[slashIdx+1:]
	colonIdx := strings.IndexByte(rest, ':')
	if colonIdx < 0 {
		return Reference{}, fmt.Errorf("action: reference %q missing ':' separator", raw)
	}
	namespace := raw[:slashIdx]
	slug := rest[:colonIdx]
	version := rest[colonIdx+1:]
	if namespace == "" || slug == "" || version == "" {
		return Reference{}, fmt.Errorf("action: reference %q has an empty component", raw)
	}
	return Reference{Namespace: namespace, Slug: slug, Version: version, raw: raw}, nil
}

// CacheKey returns the "<namespace>/<slug>/<version>" path segment used to
// key cache entries and registry URLs (spec.md §4.1, §6).
func (r Reference) CacheKey() string {
	return fmt.Sprintf("%s/%s/%s", r.Namespace, r.Slug, r.Version)
}

// HasPrefix reports whether the reference's "namespace/slug:" form begins
// with prefix, used to detect special actions such as "std/read-file:".
func (r Reference) HasPrefix(prefix string) bool {
	return strings.HasPrefix(r.raw, prefix) || strings.HasPrefix(r.String(), prefix)
}
