package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store/jsonstore"
)

var fixedNow = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestServer(t *testing.T, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	opts = append(opts, WithClock(func() time.Time { return fixedNow }))
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestListFiltersByUser(t *testing.T) {
	_, h := newTestServer(t, WithTodos([]model.Todo{
		{ID: 1, Title: "a", UserID: 1},
		{ID: 2, Title: "b", UserID: 2},
		{ID: 3, Title: "c", UserID: 1},
	}))

	rec := do(t, h, http.MethodGet, "/todos?userId=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	var got []model.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != 1 || got[1].ID != 3 {
		t.Errorf("list: got %+v, want ids [1 3]", got)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/todos?userId=5", "")
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body: got %q, want []", body)
	}
}

func TestListRequiresUser(t *testing.T) {
	_, h := newTestServer(t)
	for _, target := range []string{"/todos", "/todos?userId=x"} {
		if rec := do(t, h, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", target, rec.Code)
		}
	}
}

func TestCreate(t *testing.T) {
	s, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/todos?userId=4", `{"id":1,"title":"Buy milk","completed":false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want 201 (%s)", rec.Code, rec.Body)
	}
	var got model.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != 1 || got.UserID != 4 || got.Title != "Buy milk" {
		t.Errorf("created: got %+v", got)
	}
	if !got.CreatedAt.Equal(fixedNow) {
		t.Errorf("CreatedAt: got %s, want %s", got.CreatedAt, fixedNow)
	}
	if n := len(s.Todos()); n != 1 {
		t.Errorf("stored: got %d, want 1", n)
	}
}

func TestCreateCollidingIDGetsNext(t *testing.T) {
	_, h := newTestServer(t, WithTodos([]model.Todo{{ID: 1, Title: "a", UserID: 9}}))
	rec := do(t, h, http.MethodPost, "/todos?userId=1", `{"id":1,"title":"b"}`)
	var got model.Todo
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID != 2 {
		t.Errorf("ID: got %d, want 2", got.ID)
	}
}

func TestCreateValidation(t *testing.T) {
	_, h := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"blank title", `{"id":1,"title":"  "}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, h, http.MethodPost, "/todos?userId=1", tt.body); rec.Code != tt.want {
				t.Errorf("status: got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	s, h := newTestServer(t, WithTodos([]model.Todo{{ID: 1, Title: "a"}, {ID: 2, Title: "b"}}))
	if rec := do(t, h, http.MethodDelete, "/todos/1", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want 204", rec.Code)
	}
	if rec := do(t, h, http.MethodDelete, "/todos/1", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", rec.Code)
	}
	if todos := s.Todos(); len(todos) != 1 || todos[0].ID != 2 {
		t.Errorf("remaining: got %+v", todos)
	}
}

func TestRequireToken(t *testing.T) {
	_, h := newTestServer(t, WithToken("s3cret"))
	if rec := do(t, h, http.MethodGet, "/todos?userId=1", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: got %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/todos?userId=1", "", "Authorization", "Bearer nope"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: got %d, want 401", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/todos?userId=1", "", "Authorization", "Bearer s3cret"); rec.Code != http.StatusOK {
		t.Errorf("right token: got %d, want 200", rec.Code)
	}
}

func TestPersistsToStore(t *testing.T) {
	st := jsonstore.New(filepath.Join(t.TempDir(), "todos.json"))
	_, h := newTestServer(t, WithStore(st))
	do(t, h, http.MethodPost, "/todos?userId=1", `{"id":1,"title":"a"}`)
	do(t, h, http.MethodPost, "/todos?userId=1", `{"id":2,"title":"b"}`)
	do(t, h, http.MethodDelete, "/todos/1", "")

	reloaded, err := New(WithStore(st))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	todos := reloaded.Todos()
	if len(todos) != 1 || todos[0].ID != 2 {
		t.Errorf("reloaded: got %+v, want only id 2", todos)
	}
}
