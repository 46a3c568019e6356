package pbm

import "testing"

func TestNewNamespaceFilterValidation(t *testing.T) {
	if _, err := NewNamespaceFilter([]string{"a.b"}, []string{"c.d", "e.f"}); err == nil {
		t.Fatal("mismatched source/destination lengths must be rejected")
	}
	if _, err := NewNamespaceFilter([]string{"a.b", "a.b"}, nil); err == nil {
		t.Fatal("duplicate source namespace must be rejected")
	}
	if _, err := NewNamespaceFilter([]string{"a.b", "c.d"}, []string{"x.y", "x.y"}); err == nil {
		t.Fatal("duplicate destination namespace must be rejected")
	}
}

func TestNamespaceFilterEmptyMeansAllNonSystem(t *testing.T) {
	f, err := NewNamespaceFilter(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allowed("app.users") {
		t.Fatal("an empty included set should allow any non-system namespace")
	}
	for _, ns := range []string{"admin.foo", "config.bar", "local.baz", "app.system.views"} {
		if f.Allowed(ns) {
			t.Fatalf("%s should never be allowed regardless of the included set", ns)
		}
	}
	if got := f.Rewrite("app.users"); got != "app.users" {
		t.Fatalf("an empty rename map must be a no-op, got %s", got)
	}
}

func TestNamespaceFilterExplicitSetAndRename(t *testing.T) {
	f, err := NewNamespaceFilter([]string{"app.users", "app.orders"}, []string{"idx.users", "idx.orders"})
	if err != nil {
		t.Fatal(err)
	}
	if !f.Allowed("app.users") || !f.Allowed("app.orders") {
		t.Fatal("configured namespaces must be allowed")
	}
	if f.Allowed("app.other") {
		t.Fatal("an explicit included set is an exact allow-list")
	}
	if got := f.Rewrite("app.users"); got != "idx.users" {
		t.Fatalf("Rewrite(app.users) = %s, want idx.users", got)
	}

	got := f.Namespaces()
	want := map[string]bool{"app.users": true, "app.orders": true}
	if len(got) != len(want) {
		t.Fatalf("Namespaces() = %v, want %v", got, want)
	}
	for _, ns := range got {
		if !want[ns] {
			t.Fatalf("unexpected namespace %s in %v", ns, got)
		}
	}
}
