// Package controller owns the todo list state and turns user intents into
// remote calls.
//
// All methods must be called from a single owner goroutine (the Bubble Tea
// update loop, or the goroutine running a one-shot command). Intents update
// state immediately and may return an Effect. An Effect performs the remote
// work on any goroutine and yields an Event, which the owner passes back to
// Handle. Effects only capture immutable values; they never touch state.
package controller

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store/remote"
)

// DefaultErrorTTL is how long the empty-title and add-failed flags stay set.
const DefaultErrorTTL = 3 * time.Second

// Repository is the remote todo store.
type Repository interface {
	ListTodos(ctx context.Context, userID int) ([]model.Todo, error)
	CreateTodo(ctx context.Context, id int, title string, userID int) (model.Todo, error)
	DeleteTodo(ctx context.Context, id int) error
}

// Effect runs remote work off the owner goroutine. A nil Event means
// there is nothing to hand back.
type Effect func() Event

// Event is the outcome of an Effect, applied with Controller.Handle.
type Event interface {
	event()
}

// Errors are the four independent failure flags. They never carry a cause.
type Errors struct {
	EmptyTitle   bool
	AddFailed    bool
	DeleteFailed bool
	LoadFailed   bool
}

// Any reports whether any flag is set.
func (e Errors) Any() bool {
	return e.EmptyTitle || e.AddFailed || e.DeleteFailed || e.LoadFailed
}

// State is a snapshot of the controller, safe to keep and read.
type State struct {
	Todos   []model.Todo
	Visible []model.Todo
	Filter  model.Filter
	Title   string
	Adding  bool
	Loading bool
	Errors  Errors
}

// Controller holds the full list and the visible subset.
type Controller struct {
	repo        Repository
	userID      int
	logger      *log.Logger
	errorTTL    time.Duration
	parallelism int

	ctx    context.Context
	cancel context.CancelFunc
	closed bool

	todos   []model.Todo
	visible []model.Todo
	filter  model.Filter
	title   string
	adding  bool
	loading bool
	errs    Errors

	loadSeq  int
	clearSeq int

	// deleting holds ids with a remote delete outstanding. While a load is
	// outstanding, hidden holds ids its result must not bring back and
	// lateCreated the records it may not contain yet.
	deleting    map[int]bool
	hidden      map[int]bool
	lateCreated []model.Todo
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger remote failures are reported to.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithErrorTTL sets how long (empty-title, add-failed) stay visible.
// Zero keeps them until the next submit clears them.
func WithErrorTTL(d time.Duration) Option {
	return func(c *Controller) { c.errorTTL = d }
}

// WithPurgeParallelism bounds concurrent deletes issued by PurgeCompleted.
func WithPurgeParallelism(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// New returns a controller for userID. Effects are bound to ctx and to the
// controller's lifetime.
func New(ctx context.Context, repo Repository, userID int, opts ...Option) *Controller {
	c := &Controller{
		repo:        repo,
		userID:      userID,
		errorTTL:    DefaultErrorTTL,
		parallelism: 4,
		todos:       []model.Todo{},
		visible:     []model.Todo{},
		deleting:    map[int]bool{},
		hidden:      map[int]bool{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDiscard(c.logger)
	c.ctx, c.cancel = context.WithCancel(ctx)
	return c
}

// Close cancels in-flight effects. Events handled after Close are dropped.
func (c *Controller) Close() {
	c.closed = true
	c.cancel()
}

// Closed reports whether Close was called.
func (c *Controller) Closed() bool { return c.closed }

// ---------------------------------------------------
// Queries
// ---------------------------------------------------

// State returns a copy of the current state.
func (c *Controller) State() State {
	return State{
		Todos:   c.Todos(),
		Visible: c.Visible(),
		Filter:  c.filter,
		Title:   c.title,
		Adding:  c.adding,
		Loading: c.loading,
		Errors:  c.errs,
	}
}

// Todos returns a copy of the full list.
func (c *Controller) Todos() []model.Todo { return slices.Clone(c.todos) }

// Visible returns a copy of the visible list.
func (c *Controller) Visible() []model.Todo { return slices.Clone(c.visible) }

// Filter returns the active view filter.
func (c *Controller) Filter() model.Filter { return c.filter }

// Title returns the pending new-item title.
func (c *Controller) Title() string { return c.title }

// Adding reports whether a create request is outstanding.
func (c *Controller) Adding() bool { return c.adding }

// Loading reports whether a load request is outstanding.
func (c *Controller) Loading() bool { return c.loading }

// Errors returns the failure flags.
func (c *Controller) Errors() Errors { return c.errs }

// ActiveCount counts incomplete items in the full list.
func (c *Controller) ActiveCount() int {
	_, active := model.Stats(c.todos)
	return active
}

// AnyCompleted reports whether the full list holds a completed item.
func (c *Controller) AnyCompleted() bool {
	return slices.ContainsFunc(c.todos, func(t model.Todo) bool { return t.Completed })
}

// NextID is the id the next created todo gets.
func (c *Controller) NextID() int { return model.NextID(c.todos) }

// ---------------------------------------------------
// Intents
// ---------------------------------------------------

// Load fetches the full list for the user. A newer Load supersedes an
// older one still in flight.
func (c *Controller) Load() Effect {
	if c.closed {
		return nil
	}
	c.loadSeq++
	c.loading = true
	c.hidden = maps.Clone(c.deleting)
	c.lateCreated = nil
	ctx, repo, userID, seq := c.ctx, c.repo, c.userID, c.loadSeq
	return func() Event {
		todos, err := repo.ListTodos(ctx, userID)
		return loadedEvent{seq: seq, todos: todos, err: err}
	}
}

// SetTitle sets the new-item title.
func (c *Controller) SetTitle(title string) {
	if c.closed {
		return
	}
	c.title = title
}

// Submit creates a todo from the current title. A blank title sets the
// empty-title flag and sends nothing. Submissions while a create is
// outstanding are ignored.
func (c *Controller) Submit() Effect {
	if c.closed || c.adding {
		return nil
	}
	title := strings.TrimSpace(c.title)
	if title == "" {
		c.errs.EmptyTitle = true
		return c.scheduleErrorClear()
	}

	c.adding = true
	ctx, repo, userID, id := c.ctx, c.repo, c.userID, model.NextID(c.todos)
	return func() Event {
		todo, err := repo.CreateTodo(ctx, id, title, userID)
		return createdEvent{id: id, todo: todo, err: err}
	}
}

// Create sets the title and submits it.
func (c *Controller) Create(title string) Effect {
	c.SetTitle(title)
	return c.Submit()
}

// Delete removes the todo with id from both lists and deletes it remotely.
// An unknown id is a no-op. If the remote delete fails the item is put back
// and the delete-failed flag is set.
func (c *Controller) Delete(id int) Effect {
	if c.closed {
		return nil
	}
	i := slices.IndexFunc(c.todos, func(t model.Todo) bool { return t.ID == id })
	if i < 0 {
		return nil
	}
	removed := []removedTodo{{index: i, todo: c.todos[i]}}
	c.todos = slices.Delete(slices.Clone(c.todos), i, i+1)
	c.visible = c.filter.Apply(c.todos)
	c.markDeleting(removed)

	ctx, repo := c.ctx, c.repo
	return func() Event {
		err := repo.DeleteTodo(ctx, id)
		if errors.Is(err, remote.ErrNotFound) {
			err = nil
		}
		return deletedEvent{removed: removed, err: err}
	}
}

// ApplyFilter narrows the visible list. FilterClearCompleted is routed to
// PurgeCompleted and leaves the view filter unchanged.
func (c *Controller) ApplyFilter(f model.Filter) Effect {
	if c.closed {
		return nil
	}
	if !f.IsView() {
		return c.PurgeCompleted()
	}
	c.filter = f
	c.visible = f.Apply(c.todos)
	return nil
}

// PurgeCompleted removes every completed todo from both lists and deletes
// them remotely. Running it again with nothing completed does nothing.
func (c *Controller) PurgeCompleted() Effect {
	if c.closed {
		return nil
	}
	var removed []removedTodo
	kept := make([]model.Todo, 0, len(c.todos))
	for i, t := range c.todos {
		if t.Completed {
			removed = append(removed, removedTodo{index: i, todo: t})
			continue
		}
		kept = append(kept, t)
	}
	if len(removed) == 0 {
		return nil
	}
	c.todos = kept
	c.visible = c.filter.Apply(kept)
	c.markDeleting(removed)

	ctx, repo, limit := c.ctx, c.repo, c.parallelism
	return func() Event {
		var (
			mu     sync.Mutex
			failed []removedTodo
		)
		var g errgroup.Group
		g.SetLimit(limit)
		for _, r := range removed {
			r := r
			g.Go(func() error {
				err := repo.DeleteTodo(ctx, r.todo.ID)
				if err == nil || errors.Is(err, remote.ErrNotFound) {
					return nil
				}
				mu.Lock()
				failed = append(failed, r)
				mu.Unlock()
				return err
			})
		}
		err := g.Wait()
		return purgedEvent{removed: removed, failed: failed, err: err}
	}
}

// ---------------------------------------------------
// Events
// ---------------------------------------------------

type removedTodo struct {
	index int
	todo  model.Todo
}

type loadedEvent struct {
	seq   int
	todos []model.Todo
	err   error
}

type createdEvent struct {
	id   int
	todo model.Todo
	err  error
}

type deletedEvent struct {
	removed []removedTodo
	err     error
}

type purgedEvent struct {
	removed []removedTodo
	failed  []removedTodo
	err    error
}

type clearErrorsEvent struct {
	seq int
}

func (loadedEvent) event()      {}
func (createdEvent) event()     {}
func (deletedEvent) event()     {}
func (purgedEvent) event()      {}
func (clearErrorsEvent) event() {}

// Handle applies the outcome of an Effect and returns any follow-up.
// Events arriving after Close, and results of superseded loads, are dropped.
func (c *Controller) Handle(ev Event) Effect {
	if c.closed || ev == nil {
		return nil
	}
	switch ev := ev.(type) {
	case loadedEvent:
		if ev.seq != c.loadSeq {
			return nil
		}
		c.loading = false
		hidden, late := c.hidden, c.lateCreated
		c.hidden, c.lateCreated = map[int]bool{}, nil
		if ev.err != nil {
			c.errs.LoadFailed = true
			c.logger.Warn("load todos failed", "user", c.userID, "err", ev.err)
			return nil
		}
		c.errs.LoadFailed = false
		c.todos = c.reconcile(ev.todos, hidden, late)
		c.visible = c.filter.Apply(c.todos)
		c.logger.Debug("loaded todos", "user", c.userID, "count", len(c.todos))

	case createdEvent:
		c.adding = false
		c.title = ""
		if ev.err != nil {
			c.errs.AddFailed = true
			c.logger.Warn("create todo failed", "id", ev.id, "err", ev.err)
		} else {
			if c.loading {
				c.lateCreated = append(c.lateCreated, ev.todo)
			}
			if !containsID(c.todos, ev.todo.ID) {
				c.todos = append(c.todos, ev.todo)
				if c.filter.Match(ev.todo) {
					c.visible = append(c.visible, ev.todo)
				}
			}
		}
		return c.scheduleErrorClear()

	case deletedEvent:
		c.settleDeletes(ev.removed, ev.removed, ev.err)
		if ev.err != nil {
			c.errs.DeleteFailed = true
			c.logger.Warn("delete todo failed", "id", ev.removed[0].todo.ID, "err", ev.err)
			c.restore(ev.removed)
		}

	case purgedEvent:
		c.settleDeletes(ev.removed, ev.failed, ev.err)
		if ev.err != nil {
			c.errs.DeleteFailed = true
			c.logger.Warn("clear completed failed", "failed", len(ev.failed), "err", ev.err)
			c.restore(ev.failed)
		}

	case clearErrorsEvent:
		if ev.seq == c.clearSeq {
			c.errs.EmptyTitle = false
			c.errs.AddFailed = false
		}
	}
	return nil
}

// Await runs eff and its follow-ups on the calling goroutine until none is left.
// With a non-zero error TTL this includes waiting for the flags to clear.
func (c *Controller) Await(eff Effect) {
	for eff != nil {
		ev := eff()
		if ev == nil {
			return
		}
		eff = c.Handle(ev)
	}
}

// scheduleErrorClear returns an effect that clears (empty-title, add-failed)
// after the TTL. Only the most recently scheduled clear takes effect.
func (c *Controller) scheduleErrorClear() Effect {
	if c.errorTTL <= 0 {
		return nil
	}
	c.clearSeq++
	ctx, ttl, seq := c.ctx, c.errorTTL, c.clearSeq
	return func() Event {
		t := time.NewTimer(ttl)
		defer t.Stop()
		select {
		case <-t.C:
			return clearErrorsEvent{seq: seq}
		case <-ctx.Done():
			return nil
		}
	}
}

// restore puts back todos whose remote delete failed, at their old
// positions when possible. Todos already present again are skipped.
func (c *Controller) restore(items []removedTodo) {
	if len(items) == 0 {
		return
	}
	items = slices.Clone(items)
	slices.SortFunc(items, func(a, b removedTodo) int { return a.index - b.index })
	todos := slices.Clone(c.todos)
	for _, r := range items {
		if containsID(todos, r.todo.ID) {
			continue
		}
		todos = slices.Insert(todos, min(r.index, len(todos)), r.todo)
	}
	c.todos = todos
	c.visible = c.filter.Apply(todos)
}

// markDeleting records outstanding remote deletes. A load already in flight
// may have been answered before they land, so its result must skip them.
func (c *Controller) markDeleting(items []removedTodo) {
	for _, r := range items {
		c.deleting[r.todo.ID] = true
		if c.loading {
			c.hidden[r.todo.ID] = true
			c.lateCreated = slices.DeleteFunc(c.lateCreated, func(t model.Todo) bool { return t.ID == r.todo.ID })
		}
	}
}

// settleDeletes forgets finished deletes. Failed ids stay on the server, so
// a pending load must keep them.
func (c *Controller) settleDeletes(removed, failed []removedTodo, err error) {
	for _, r := range removed {
		delete(c.deleting, r.todo.ID)
	}
	if err == nil {
		return
	}
	for _, r := range failed {
		delete(c.hidden, r.todo.ID)
		if c.loading {
			c.lateCreated = append(c.lateCreated, r.todo)
		}
	}
}

// reconcile builds the full list from a load result: ids deleted meanwhile
// are dropped and records created meanwhile are kept.
func (c *Controller) reconcile(loaded []model.Todo, hidden map[int]bool, late []model.Todo) []model.Todo {
	todos := make([]model.Todo, 0, len(loaded)+len(late))
	for _, t := range loaded {
		if hidden[t.ID] || containsID(todos, t.ID) {
			continue
		}
		todos = append(todos, t)
	}
	for _, t := range late {
		if !c.deleting[t.ID] && !containsID(todos, t.ID) {
			todos = append(todos, t)
		}
	}
	return todos
}

func containsID(todos []model.Todo, id int) bool {
	return slices.ContainsFunc(todos, func(t model.Todo) bool { return t.ID == id })
}
