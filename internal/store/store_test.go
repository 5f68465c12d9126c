package store

import (
	"context"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteGetSet(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, map[string][]byte{"a": []byte(`{"x":1}`), "b": []byte(`2`)}); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, err := db.Get(ctx, "a", "b", "missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 values, got %d", len(got))
	}
	if string(got["a"]) != `{"x":1}` {
		t.Errorf("a = %s", got["a"])
	}
	if _, ok := got["missing"]; ok {
		t.Error("missing key should be absent")
	}
}

func TestSQLiteSetOverwrites(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.Set(ctx, map[string][]byte{"a": []byte("1")}); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := db.Set(ctx, map[string][]byte{"a": []byte("2")}); err != nil {
		t.Fatalf("second set: %v", err)
	}

	got, err := db.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got["a"]) != "2" {
		t.Errorf("expected overwritten value 2, got %s", got["a"])
	}

	records, err := db.Records(ctx)
	if err != nil {
		t.Fatalf("records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record, got %d", len(records))
	}
}

func TestSQLiteGetNoKeys(t *testing.T) {
	db := testDB(t)
	got, err := db.Get(context.Background())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := New(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Set(ctx, map[string][]byte{"k": []byte("v")}); err != nil {
		t.Fatalf("set: %v", err)
	}
	db.Close()

	db, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := db.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got["k"]) != "v" {
		t.Errorf("expected v after reopen, got %q", got["k"])
	}
}

func TestMemoryCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	v := []byte("abc")
	_ = m.Set(ctx, map[string][]byte{"k": v})
	v[0] = 'X'

	got, _ := m.Get(ctx, "k")
	if string(got["k"]) != "abc" {
		t.Errorf("stored value aliased caller slice: %q", got["k"])
	}
}

func TestEmotionTags(t *testing.T) {
	ctx := context.Background()
	tags := NewEmotionTags(NewMemory())

	if got, err := tags.Load(ctx, "k1"); err != nil || got != "" {
		t.Fatalf("untagged load = %q, %v", got, err)
	}
	if err := tags.Save(ctx, "k1", "Angry"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := tags.Save(ctx, "k2", "love"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := tags.Load(ctx, "k1"); got != "angry" {
		t.Errorf("k1 = %q, want angry", got)
	}
	if got, _ := tags.Load(ctx, "k2"); got != "love" {
		t.Errorf("k2 = %q, want love", got)
	}
	if err := tags.Save(ctx, "k1", "bored"); err == nil {
		t.Error("expected error for unknown emotion")
	}
}

func TestEmotionTagsCorruptRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, map[string][]byte{EmotionTagsKey: []byte("not json")})

	tags := NewEmotionTags(m)
	if err := tags.Save(ctx, "k", "sad"); err != nil {
		t.Fatalf("save over corrupt record: %v", err)
	}
	if got, _ := tags.Load(ctx, "k"); got != "sad" {
		t.Errorf("k = %q, want sad", got)
	}
}
