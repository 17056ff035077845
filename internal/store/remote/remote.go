// Package remote lists, creates and deletes todo records through the todo API.
package remote

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Makepad-fr/tada/internal/client"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
)

var (
	// ErrInvalidPayload is wrapped by errors for responses failing schema validation.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotFound is wrapped by DeleteTodo when the server has no such todo.
	ErrNotFound = errors.New("todo not found")
)

//go:embed schema/*.json
var schemaFS embed.FS

const schemaBase = "https://tada.makepad.fr/schema/"

// API is the subset of client.Client the repository needs.
type API interface {
	GetRaw(ctx context.Context, path string) (json.RawMessage, error)
	PostRaw(ctx context.Context, path string, body any) (json.RawMessage, error)
	Delete(ctx context.Context, path string, out any) error
}

// Repository talks to the /todos endpoints.
type Repository struct {
	api    API
	logger *log.Logger
	now    func() time.Time

	todoSchema *jsonschema.Schema
	listSchema *jsonschema.Schema
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithClock replaces time.Now for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// New compiles the payload schemas and returns a repository over api.
func New(api API, opts ...Option) (*Repository, error) {
	r := &Repository{api: api, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)

	compiler := jsonschema.NewCompiler()
	for _, name := range []string{"todo.schema.json", "todos.schema.json"} {
		b, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}
	var err error
	if r.todoSchema, err = compiler.Compile(schemaBase + "todo.schema.json"); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	if r.listSchema, err = compiler.Compile(schemaBase + "todos.schema.json"); err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return r, nil
}

// ListTodos returns the user's todos in server order.
func (r *Repository) ListTodos(ctx context.Context, userID int) ([]model.Todo, error) {
	raw, err := r.api.GetRaw(ctx, todosPath(userID))
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	if isEmpty(raw) {
		return []model.Todo{}, nil
	}
	if err := validate(r.listSchema, raw); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	var todos []model.Todo
	if err := json.Unmarshal(raw, &todos); err != nil {
		return nil, fmt.Errorf("list todos: json unmarshal: %w", err)
	}
	r.logger.Debug("listed todos", "user", userID, "count", len(todos))
	return todos, nil
}

// createRequest is the partial record posted on create.
type createRequest struct {
	ID        int       `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	UserID    int       `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateTodo posts a new incomplete todo with a client-computed id and
// returns the record the server answered with.
func (r *Repository) CreateTodo(ctx context.Context, id int, title string, userID int) (model.Todo, error) {
	req := createRequest{
		ID:        id,
		Title:     title,
		Completed: false,
		UserID:    userID,
		CreatedAt: r.now().UTC(),
	}
	raw, err := r.api.PostRaw(ctx, todosPath(userID), req)
	if err != nil {
		return model.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	if isEmpty(raw) {
		// Nothing echoed back; the posted record is all we know.
		r.logger.Debug("create returned no body", "id", id)
		return model.Todo(req), nil
	}
	if err := validate(r.todoSchema, raw); err != nil {
		return model.Todo{}, fmt.Errorf("create todo: %w", err)
	}
	var created model.Todo
	if err := json.Unmarshal(raw, &created); err != nil {
		return model.Todo{}, fmt.Errorf("create todo: json unmarshal: %w", err)
	}
	if created.ID != id {
		r.logger.Warn("server assigned a different id", "sent", id, "got", created.ID)
	}
	return created, nil
}

// DeleteTodo deletes the todo with id. The response body is ignored.
func (r *Repository) DeleteTodo(ctx context.Context, id int) error {
	if err := r.api.Delete(ctx, "/todos/"+strconv.Itoa(id), nil); err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("delete todo %d: %w: %w", id, ErrNotFound, err)
		}
		return fmt.Errorf("delete todo %d: %w", id, err)
	}
	return nil
}

func todosPath(userID int) string {
	q := url.Values{}
	q.Set("userId", strconv.Itoa(userID))
	return "/todos?" + q.Encode()
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func validate(schema *jsonschema.Schema, raw json.RawMessage) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}
