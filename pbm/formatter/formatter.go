// Package formatter implements the document-value transform hooks
// described in spec §4.6, reimplemented directly from
// original_source/mongo_connector/doc_managers/formatters.py: binary
// values base64-encode, numeric scalars (and booleans, which the
// Python source treats as numeric) pass through unchanged, maps
// recurse, and everything else stringifies.
package formatter

import (
	"encoding/base64"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Formatter transforms a document in preparation to be sent to a sink.
// It is invoked by sinks, never by the Tailer (spec §4.6).
type Formatter interface {
	FormatDocument(doc map[string]interface{}) map[string]interface{}
}

// Default preserves numeric scalars and booleans, base64-encodes
// binary, recurses into nested maps and slices, and stringifies
// everything else.
type Default struct{}

func (Default) FormatDocument(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = transformValue(v)
	}
	return out
}

func transformValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case primitive.Binary:
		return base64.StdEncoding.EncodeToString(t.Data)
	case []byte:
		return base64.StdEncoding.EncodeToString(t)
	case map[string]interface{}:
		return Default{}.FormatDocument(t)
	case primitive.M:
		return Default{}.FormatDocument(map[string]interface{}(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, el := range t {
			out[i] = transformValue(el)
		}
		return out
	case int, int32, int64, float32, float64, bool:
		return t
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Flattening collapses nested maps and lists into dotted paths
// (a.b.c, list.0, list.1, ...), then applies Default to each leaf.
type Flattening struct{}

func (Flattening) FormatDocument(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	flatten(doc, "", out)
	return out
}

func flatten(doc map[string]interface{}, prefix string, out map[string]interface{}) {
	for k, v := range doc {
		flattenElement(joinKey(prefix, k), v, out)
	}
}

func flattenElement(key string, v interface{}, out map[string]interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		flatten(t, key, out)
	case primitive.M:
		flatten(map[string]interface{}(t), key, out)
	case []interface{}:
		for i, el := range t {
			flattenElement(fmt.Sprintf("%s.%d", key, i), el, out)
		}
	default:
		out[key] = transformValue(v)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
