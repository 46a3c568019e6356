package pbm

import (
	"strings"

	"github.com/pkg/errors"
)

// Namespace is a qualified "database.collection" name.
type Namespace string

// DB returns the database portion of the namespace.
func (n Namespace) DB() string {
	db, _, _ := strings.Cut(string(n), ".")
	return db
}

// Collection returns the collection portion of the namespace.
func (n Namespace) Collection() string {
	_, coll, ok := strings.Cut(string(n), ".")
	if !ok {
		return ""
	}
	return coll
}

// systemDatabases are never tailed regardless of the included set.
var systemDatabases = map[string]bool{
	"admin":  true,
	"config": true,
	"local":  true,
}

// isSystemNamespace reports whether ns belongs to a system/config
// database or is a "system.*" collection, per spec §3/§4.3.2.
func isSystemNamespace(ns string) bool {
	db, coll, _ := strings.Cut(ns, ".")
	if systemDatabases[db] {
		return true
	}
	return strings.HasPrefix(coll, "system.")
}

// NamespaceFilter implements the included-set + rename-map behavior
// described in spec §3/§4.3.2: an empty included set means "all
// namespaces except system/config"; a present set is an exact allow-list.
type NamespaceFilter struct {
	included map[string]bool
	rename   map[string]string
}

// NewNamespaceFilter builds a filter from the parallel namespace-set /
// dest-namespace-set configuration lists (spec §6). Both may be empty
// (meaning "all non-system namespaces, no renaming").
func NewNamespaceFilter(included, dest []string) (*NamespaceFilter, error) {
	if len(dest) > 0 && len(dest) != len(included) {
		return nil, errors.Errorf(
			"destination namespace set must be the same length as the source set: got %d source, %d destination",
			len(included), len(dest))
	}

	seen := make(map[string]bool, len(included))
	for _, ns := range included {
		if seen[ns] {
			return nil, errors.Errorf("namespace set contains a duplicate: %s", ns)
		}
		seen[ns] = true
	}

	f := &NamespaceFilter{
		included: make(map[string]bool, len(included)),
		rename:   make(map[string]string, len(included)),
	}
	seenDest := make(map[string]bool, len(dest))
	for i, ns := range included {
		f.included[ns] = true
		if len(dest) > 0 {
			if seenDest[dest[i]] {
				return nil, errors.Errorf("destination namespace set contains a duplicate: %s", dest[i])
			}
			seenDest[dest[i]] = true
			f.rename[ns] = dest[i]
		}
	}
	return f, nil
}

// Allowed reports whether ns passes the included-set filter and is not
// a system/config namespace (spec invariant P6).
func (f *NamespaceFilter) Allowed(ns string) bool {
	if isSystemNamespace(ns) {
		return false
	}
	if len(f.included) == 0 {
		return true
	}
	return f.included[ns]
}

// Rewrite applies the rename map, returning ns unchanged if absent
// (spec invariant P7: identity rename map is a no-op).
func (f *NamespaceFilter) Rewrite(ns string) string {
	if dest, ok := f.rename[ns]; ok {
		return dest
	}
	return ns
}

// Namespaces returns the configured included set, in no particular order.
// An empty result means "no explicit filter; everything non-system".
func (f *NamespaceFilter) Namespaces() []string {
	out := make([]string, 0, len(f.included))
	for ns := range f.included {
		out = append(out, ns)
	}
	return out
}
