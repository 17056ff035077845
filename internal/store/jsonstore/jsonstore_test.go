package jsonstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
)

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "todos.json"))
	todos, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if todos == nil || len(todos) != 0 {
		t.Errorf("Load: got %v, want empty non-nil list", todos)
	}
}

func TestSaveLoad(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "sub", "todos.json"))
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	in := []model.Todo{
		{ID: 1, Title: "Buy milk", UserID: 2, CreatedAt: created},
		{ID: 2, Title: "Walk dog", Completed: true, UserID: 2, CreatedAt: created},
	}
	if err := s.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	out, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("Load: got %d todos, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i].ID != in[i].ID || out[i].Title != in[i].Title || out[i].Completed != in[i].Completed {
			t.Errorf("todo %d: got %+v, want %+v", i, out[i], in[i])
		}
		if !out[i].CreatedAt.Equal(in[i].CreatedAt) {
			t.Errorf("todo %d CreatedAt: got %s, want %s", i, out[i].CreatedAt, in[i].CreatedAt)
		}
	}
}

func TestNewWithDirectory(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if want := filepath.Join(dir, DefaultFileName); s.Path() != want {
		t.Errorf("Path: got %q, want %q", s.Path(), want)
	}
}

func TestLoadCorrupt(t *testing.T) {
	p := filepath.Join(t.TempDir(), "todos.json")
	if err := os.WriteFile(p, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(p).Load(); err == nil {
		t.Fatal("Load: expected error for corrupt file")
	}
}
