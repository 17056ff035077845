// Package server is a development stand-in for the remote todo API.
//
// It serves GET/POST /todos?userId= and DELETE /todos/{id} from memory,
// optionally persisting to a JSON file after every write.
package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/Makepad-fr/tada/internal/client"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
)

const maxBodyBytes = 1 << 20

// Store persists the full record set.
type Store interface {
	Load() ([]model.Todo, error)
	Save([]model.Todo) error
}

// Server holds every user's todos.
type Server struct {
	mu    sync.Mutex
	todos []model.Todo

	store  Store
	token  string
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithStore loads initial data from st and saves to it after each write.
func WithStore(st Store) Option {
	return func(s *Server) { s.store = st }
}

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithLogger sets the access logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock replaces time.Now for records posted without createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithTodos seeds the server.
func WithTodos(todos []model.Todo) Option {
	return func(s *Server) { s.todos = append([]model.Todo(nil), todos...) }
}

// New builds a server, loading existing records from the store if one is set.
func New(opts ...Option) (*Server, error) {
	s := &Server{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrDiscard(s.logger)
	if s.store != nil {
		todos, err := s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("load store: %w", err)
		}
		s.todos = append(s.todos, todos...)
	}
	if s.todos == nil {
		s.todos = []model.Todo{}
	}
	return s, nil
}

// Handler returns the routed handler with access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	if s.token != "" {
		r.Use(s.requireToken)
	}
	r.HandleFunc("/todos", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/todos", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/todos/{id:[0-9]+}", s.handleDelete).Methods(http.MethodDelete)
	return r
}

// Todos returns a copy of every stored record.
func (s *Server) Todos() []model.Todo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Todo(nil), s.todos...)
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.logger.Info("handled",
			"method", r.Method,
			"url", r.URL.RequestURI(),
			"status", m.Code,
			"duration", m.Duration,
			"request_id", r.Header.Get(client.RequestIDHeader),
		)
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(got) < 7 || !strings.EqualFold(got[:7], "bearer ") ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got[7:])), []byte(s.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	out := make([]model.Todo, 0)
	for _, t := range s.todos {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	userID, err := queryUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var in model.Todo
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Title) == "" {
		writeError(w, http.StatusUnprocessableEntity, "title is required")
		return
	}
	in.UserID = userID
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	if in.ID <= 0 || s.indexOf(in.ID) >= 0 {
		in.ID = model.NextID(s.todos)
	}
	s.todos = append(s.todos, in)
	err = s.persist()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("persist failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not save")
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, fmt.Sprintf("todo %d not found", id))
		return
	}
	s.todos = append(s.todos[:i], s.todos[i+1:]...)
	err = s.persist()
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("persist failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not save")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// indexOf requires s.mu.
func (s *Server) indexOf(id int) int {
	for i, t := range s.todos {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// persist requires s.mu.
func (s *Server) persist() error {
	if s.store == nil {
		return nil
	}
	return s.store.Save(s.todos)
}

var errNoUser = errors.New("userId query parameter is required")

func queryUserID(r *http.Request) (int, error) {
	v := r.URL.Query().Get("userId")
	if v == "" {
		return 0, errNoUser
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid userId %q", v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
