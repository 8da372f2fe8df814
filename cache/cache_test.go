package cache

import (
	"path/filepath"
	"testing"

	"github.com/ferrite-lang/ferrite/wire"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGetRoundTrip(t *testing.T) {
	c := openTestCache(t)

	key := Key("def f():\n    return 1\n", "opt=aggressive")
	r := &wire.Result{
		Module:   "demo",
		Function: wire.FunctionSnapshot{Name: "f", Ret: "int"},
		Rust:     "pub fn f() -> i64 {\n    return 1;\n}\n",
	}
	if err := c.Put(key, r); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found {
		t.Fatal("expected cache hit")
	}
	if got.Function.Name != "f" || got.Rust != r.Rust {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestGetMiss(t *testing.T) {
	c := openTestCache(t)

	_, found, err := c.Get(Key("nothing", ""))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected miss on empty cache")
	}
}

func TestKeySeparatesSourceAndConfig(t *testing.T) {
	// The same concatenation must not collide across the boundary.
	if Key("ab", "c") == Key("a", "bc") {
		t.Error("key must separate source from config")
	}
	if Key("x", "opt=aggressive") == Key("x", "opt=conservative") {
		t.Error("config must affect the key")
	}
}

func TestPutReplacesEntry(t *testing.T) {
	c := openTestCache(t)

	key := Key("def g(): pass", "")
	first := &wire.Result{Module: "demo", Function: wire.FunctionSnapshot{Name: "g"}, Rust: "old"}
	second := &wire.Result{Module: "demo", Function: wire.FunctionSnapshot{Name: "g"}, Rust: "new"}

	if err := c.Put(key, first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(key, second); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := c.Get(key)
	if err != nil || !found {
		t.Fatalf("Get: %v found=%v", err, found)
	}
	if got.Rust != "new" {
		t.Errorf("Rust = %q, want new", got.Rust)
	}
}

func TestPurge(t *testing.T) {
	c := openTestCache(t)

	key := Key("def h(): pass", "")
	if err := c.Put(key, &wire.Result{Module: "demo"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Purge(); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, found, _ := c.Get(key); found {
		t.Error("expected miss after purge")
	}
}
