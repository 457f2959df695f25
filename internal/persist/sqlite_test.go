package persist

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fontshelf/internal/collection"
)

func openTemp(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fontshelf.db")
	db, err := Open(context.Background(), DSN(path))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func row(id, family string) collection.Row {
	e := collection.NewEntry([]byte("bytes of "+id), id+".ttf", "font/ttf")
	e.FontFamily = family
	e.CreatedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return collection.Row{ID: id, Entry: e}
}

func TestSQLite_SaveLoad(t *testing.T) {
	ctx := context.Background()
	db, path := openTemp(t)

	want := []collection.Row{row("b", "Beta"), row("a", ""), row("c", "Gamma")}
	if err := db.Save(ctx, want, nil); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := db.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	// A second connection sees the same data.
	db2, err := Open(ctx, DSN(path))
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	if n, err := db2.Count(ctx); err != nil || n != 3 {
		t.Errorf("Count() = %d, %v; want 3", n, err)
	}
}

func TestSQLite_UpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	if err := db.Save(ctx, []collection.Row{row("a", "Alpha"), row("b", "Beta")}, nil); err != nil {
		t.Fatal(err)
	}
	replaced := row("a", "Alpha Two")
	replaced.Name = "renamed.ttf"
	if err := db.Save(ctx, []collection.Row{replaced}, []string{"b"}); err != nil {
		t.Fatal(err)
	}

	got, err := db.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]collection.Row{replaced}, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_WithAutoPersist(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	s1 := collection.NewStore()
	ap := collection.NewAutoPersist(s1, db, time.Millisecond)
	ap.StartAutoSave()
	for _, id := range []string{"z", "y"} {
		r := row(id, "Family "+id)
		if err := s1.Put(r.ID, r.Entry); err != nil {
			t.Fatal(err)
		}
	}
	if err := ap.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	s2 := collection.NewStore()
	if err := collection.NewAutoPersist(s2, db, 0).StartAutoLoad(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s1.Rows(), s2.Rows()); diff != "" {
		t.Errorf("restored rows mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_AutoPersistKeepsOrder(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	s1 := collection.NewStore()
	ap := collection.NewAutoPersist(s1, db, time.Hour)
	ap.StartAutoSave()
	for i := range 20 {
		r := row(fmt.Sprintf("id-%02d", 19-i), "")
		if err := s1.Put(r.ID, r.Entry); err != nil {
			t.Fatal(err)
		}
	}
	if err := ap.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	s2 := collection.NewStore()
	if err := collection.NewAutoPersist(s2, db, 0).StartAutoLoad(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s1.IDs(), s2.IDs()); diff != "" {
		t.Errorf("reloaded order mismatch (-want +got):\n%s", diff)
	}
}
