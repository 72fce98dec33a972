// scriptnav/helpers_index_test.go
package scriptnav

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.etcd.io/bbolt"
)

func openTestIndex(t *testing.T) *NameIndex {
	t.Helper()
	ix, err := OpenNameIndex(filepath.Join(t.TempDir(), "index.db"), newTestLogger(t))
	if err != nil {
		t.Fatalf("OpenNameIndex: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestNameIndex(t *testing.T) {
	ix := openTestIndex(t)
	path := filepath.Join(t.TempDir(), "m.py")
	if err := os.WriteFile(path, []byte("def run(task):\n    return task.result\n"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err := ix.Names(path)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if diff := cmp.Diff([]string{"result", "run", "task"}, names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		name string
		want bool
	}{
		{"run", true},
		{"task", true},
		{"return", false},
		{"res", false},
	}
	for _, tt := range tests {
		got, err := ix.Contains(path, tt.name)
		if err != nil {
			t.Fatalf("Contains(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("Contains(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}

	entries, size, err := ix.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if entries != 1 || size <= 0 {
		t.Errorf("Stats = %d entries, %d bytes; want 1 entry", entries, size)
	}

	if err := ix.Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ix.Delete(path); err != nil {
		t.Errorf("deleting a missing entry: %v", err)
	}
	if entries, _, _ := ix.Stats(); entries != 0 {
		t.Errorf("entries after Delete = %d, want 0", entries)
	}
}

func TestNameIndexRebuildsStaleEntries(t *testing.T) {
	ix := openTestIndex(t)
	path := filepath.Join(t.TempDir(), "m.py")
	if err := os.WriteFile(path, []byte("alpha = 1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if ok, _ := ix.Contains(path, "alpha"); !ok {
		t.Fatal("alpha not indexed")
	}

	if err := os.WriteFile(path, []byte("beta = 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}
	names, err := ix.Names(path)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if diff := cmp.Diff([]string{"beta"}, names); diff != "" {
		t.Errorf("stale entry not rebuilt (-want +got):\n%s", diff)
	}
}

func TestNameIndexUndecodableEntry(t *testing.T) {
	ix := openTestIndex(t)
	path := filepath.Join(t.TempDir(), "m.py")
	if err := os.WriteFile(path, []byte("gamma = 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	err := ix.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(indexBucketName).Put([]byte(path), []byte("not gob"))
	})
	if err != nil {
		t.Fatal(err)
	}
	names, err := ix.Names(path)
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	if diff := cmp.Diff([]string{"gamma"}, names); diff != "" {
		t.Errorf("Names mismatch (-want +got):\n%s", diff)
	}
}

func TestNameIndexClosed(t *testing.T) {
	ix := openTestIndex(t)
	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := ix.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := ix.Names("/nonexistent.py"); !errors.Is(err, ErrCacheRead) {
		t.Errorf("Names on closed index = %v, want ErrCacheRead", err)
	}
	if _, _, err := ix.Stats(); !errors.Is(err, ErrCacheRead) {
		t.Errorf("Stats on closed index = %v, want ErrCacheRead", err)
	}
}

func TestNameIndexMissingFile(t *testing.T) {
	ix := openTestIndex(t)
	if _, err := ix.Names(filepath.Join(t.TempDir(), "gone.py")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Names on missing file = %v, want os.ErrNotExist", err)
	}
}
