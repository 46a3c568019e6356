package formatter

import (
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestDefaultFormatterPassesNumericsAndBooleans(t *testing.T) {
	doc := map[string]interface{}{
		"count": 3,
		"ratio": 1.5,
		"ok":    true,
	}
	got := Default{}.FormatDocument(doc)
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("numeric/boolean scalars must pass through unchanged, got %#v", got)
	}
}

func TestDefaultFormatterEncodesBinary(t *testing.T) {
	doc := map[string]interface{}{"blob": primitive.Binary{Data: []byte("hi")}}
	got := Default{}.FormatDocument(doc)
	if got["blob"] != "aGk=" {
		t.Fatalf("blob = %#v, want base64 \"aGk=\"", got["blob"])
	}
}

func TestDefaultFormatterStringifiesOther(t *testing.T) {
	doc := map[string]interface{}{"when": primitive.DateTime(0)}
	got := Default{}.FormatDocument(doc)
	if _, ok := got["when"].(string); !ok {
		t.Fatalf("unrecognized types must stringify, got %#v (%T)", got["when"], got["when"])
	}
}

func TestDefaultFormatterRecursesIntoNested(t *testing.T) {
	doc := map[string]interface{}{
		"nested": map[string]interface{}{
			"blob": primitive.Binary{Data: []byte("x")},
		},
		"list": []interface{}{primitive.Binary{Data: []byte("y")}, 1},
	}
	got := Default{}.FormatDocument(doc)

	nested, ok := got["nested"].(map[string]interface{})
	if !ok || nested["blob"] != "eA==" {
		t.Fatalf("nested map not recursively formatted: %#v", got["nested"])
	}
	list, ok := got["list"].([]interface{})
	if !ok || list[0] != "eQ==" || list[1] != 1 {
		t.Fatalf("list elements not recursively formatted: %#v", got["list"])
	}
}

func TestFlatteningCollapsesNestedPaths(t *testing.T) {
	doc := map[string]interface{}{
		"a": map[string]interface{}{
			"b": 1,
			"c": []interface{}{"x", "y"},
		},
		"d": 2,
	}
	got := Flattening{}.FormatDocument(doc)

	want := map[string]interface{}{
		"a.b":   1,
		"a.c.0": "x",
		"a.c.1": "y",
		"d":     2,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Flattening() = %#v, want %#v", got, want)
	}
}
