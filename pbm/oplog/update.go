package oplog

import (
	"strings"

	"github.com/pkg/errors"
)

// UpdateFallbackPolicy decides what happens when an update spec uses
// an operator other than $set/$unset — spec §9 "Open question:
// update-spec coverage", resolved per DESIGN.md.
type UpdateFallbackPolicy int

const (
	// FallbackReplace treats the whole `object` as a full-document
	// replacement, preserving _id (spec §4.3.4's stated default, and
	// this engine's default policy).
	FallbackReplace UpdateFallbackPolicy = iota
	// FallbackReject surfaces an OperationError instead of guessing;
	// the caller logs it and drops the event.
	FallbackReject
)

// ApplyUpdateSpec applies spec to doc in memory and returns the
// resulting post-image, per spec §4.3.4: $set sets each dotted path
// (creating intermediate maps), $unset removes each dotted path, and
// any other top-level operator falls back per policy.
func ApplyUpdateSpec(doc map[string]interface{}, spec map[string]interface{}, policy UpdateFallbackPolicy) (map[string]interface{}, error) {
	if !isOperatorUpdate(spec) {
		// `spec` is a full replacement document already.
		return replaceDocument(doc, spec), nil
	}

	for op := range spec {
		if op != "$set" && op != "$unset" {
			switch policy {
			case FallbackReject:
				return nil, errors.Errorf("update operator %s is not supported", op)
			default:
				return replaceDocument(doc, spec), nil
			}
		}
	}

	out := cloneMap(doc)
	if setOps, ok := spec["$set"].(map[string]interface{}); ok {
		for path, v := range setOps {
			setPath(out, path, v)
		}
	}
	if unsetOps, ok := spec["$unset"].(map[string]interface{}); ok {
		for path := range unsetOps {
			unsetPath(out, path)
		}
	}
	return out, nil
}

// isOperatorUpdate reports whether every top-level key of spec starts
// with '$' (an operator update) as opposed to a full replacement doc.
func isOperatorUpdate(spec map[string]interface{}) bool {
	if len(spec) == 0 {
		return true
	}
	for k := range spec {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return true
}

func replaceDocument(old, replacement map[string]interface{}) map[string]interface{} {
	out := cloneMap(replacement)
	if id, ok := old["_id"]; ok {
		out["_id"] = id
	}
	return out
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			v = cloneMap(nested)
		}
		out[k] = v
	}
	return out
}

// setPath sets value at a dotted path, creating intermediate maps as
// needed — each "." descends one level of nesting (spec §4.3.4).
func setPath(doc map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			cur[p] = value
			return
		}
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[p] = next
		}
		cur = next
	}
}

// unsetPath removes the value at a dotted path, a no-op if any segment
// is absent.
func unsetPath(doc map[string]interface{}, path string) {
	parts := strings.Split(path, ".")
	cur := doc
	for i, p := range parts {
		if i == len(parts)-1 {
			delete(cur, p)
			return
		}
		next, ok := cur[p].(map[string]interface{})
		if !ok {
			return
		}
		cur = next
	}
}
