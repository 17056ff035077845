package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/server"
	"github.com/Makepad-fr/tada/internal/ui"
)

type env struct {
	srv    *server.Server
	cfg    *config.Config
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// setup starts a dev API with todos and points a config at it.
func setup(t *testing.T, todos ...model.Todo) *env {
	t.Helper()
	t.Setenv("TADA_HOME", t.TempDir())
	t.Setenv(auth.TokenEnv, "")

	s, err := server.New(server.WithTodos(todos))
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	var stdout, stderr bytes.Buffer
	oldOut, oldErr := ui.Out, ui.Err
	ui.Out, ui.Err = &stdout, &stderr
	t.Cleanup(func() { ui.Out, ui.Err = oldOut, oldErr })

	return &env{
		srv: s,
		cfg: &config.Config{
			APIURL:           ts.URL,
			UserID:           1,
			LogLevel:         "error",
			Theme:            "classic",
			NoColor:          true,
			PurgeParallelism: 2,
		},
		stdout: &stdout,
		stderr: &stderr,
	}
}

func (e *env) run(args ...string) int {
	return Run(context.Background(), args, e.cfg)
}

func (e *env) titles() []string {
	var out []string
	for _, t := range e.srv.Todos() {
		out = append(out, t.Title)
	}
	return out
}

func TestList(t *testing.T) {
	e := setup(t,
		model.Todo{ID: 1, Title: "write tests", UserID: 1},
		model.Todo{ID: 2, Title: "ship it", Completed: true, UserID: 1},
		model.Todo{ID: 3, Title: "someone else's", UserID: 2},
	)

	if code := e.run("ls"); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, e.stderr)
	}
	out := e.stdout.String()
	for _, s := range []string{"write tests", "ship it", "1 item left", "clear-completed"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
	if strings.Contains(out, "someone else's") {
		t.Errorf("output shows another user's todo:\n%s", out)
	}
}

func TestListFilter(t *testing.T) {
	e := setup(t,
		model.Todo{ID: 1, Title: "open", UserID: 1},
		model.Todo{ID: 2, Title: "finished", Completed: true, UserID: 1},
	)

	if code := e.run("ls", "--filter", "active"); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, e.stderr)
	}
	out := e.stdout.String()
	if !strings.Contains(out, "open") || strings.Contains(out, "finished") {
		t.Errorf("active filter output:\n%s", out)
	}

	if code := e.run("ls", "--filter", "clear-completed"); code != 2 {
		t.Errorf("ls --filter clear-completed exit = %d, want 2", code)
	}
	if code := e.run("ls", "--filter", "bogus"); code != 2 {
		t.Errorf("ls --filter bogus exit = %d, want 2", code)
	}
}

func TestAdd(t *testing.T) {
	e := setup(t)

	if code := e.run("add", "Buy", "milk"); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, e.stderr)
	}
	if !strings.Contains(e.stdout.String(), "added #1") {
		t.Errorf("stdout = %q, want added #1", e.stdout)
	}
	todos := e.srv.Todos()
	if len(todos) != 1 || todos[0].ID != 1 || todos[0].Title != "Buy milk" || todos[0].UserID != 1 {
		t.Errorf("server todos = %+v", todos)
	}
}

func TestAddReportsServerID(t *testing.T) {
	// Another user's #1 makes the server pick a fresh id.
	e := setup(t, model.Todo{ID: 1, Title: "theirs", UserID: 2})

	if code := e.run("add", "mine"); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, e.stderr)
	}
	if got := e.stdout.String(); !strings.Contains(got, "added #2") {
		t.Errorf("stdout = %q, want added #2", got)
	}
}

func TestAddUsage(t *testing.T) {
	e := setup(t)

	tests := []struct {
		args []string
		want int
	}{
		{[]string{"add"}, 2},
		{[]string{"add", "   "}, 2},
	}
	for _, tc := range tests {
		if got := e.run(tc.args...); got != tc.want {
			t.Errorf("%v: exit = %d, want %d", tc.args, got, tc.want)
		}
	}
	if len(e.srv.Todos()) != 0 {
		t.Errorf("server got %d todos, want 0", len(e.srv.Todos()))
	}
}

func TestRemove(t *testing.T) {
	e := setup(t,
		model.Todo{ID: 1, Title: "a", UserID: 1},
		model.Todo{ID: 2, Title: "b", UserID: 1},
	)

	if code := e.run("rm", "1"); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, e.stderr)
	}
	if got := e.titles(); len(got) != 1 || got[0] != "b" {
		t.Errorf("server titles = %v, want [b]", got)
	}

	tests := []struct {
		args []string
		want int
	}{
		{[]string{"rm", "99"}, 2},
		{[]string{"rm", "x"}, 2},
		{[]string{"rm"}, 2},
	}
	for _, tc := range tests {
		if got := e.run(tc.args...); got != tc.want {
			t.Errorf("%v: exit = %d, want %d", tc.args, got, tc.want)
		}
	}
}

func TestClearCompleted(t *testing.T) {
	e := setup(t,
		model.Todo{ID: 1, Title: "keep", UserID: 1},
		model.Todo{ID: 2, Title: "done", Completed: true, UserID: 1},
		model.Todo{ID: 3, Title: "also done", Completed: true, UserID: 1},
	)

	if code := e.run("clear-completed"); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, e.stderr)
	}
	if !strings.Contains(e.stdout.String(), "cleared 2") {
		t.Errorf("stdout = %q, want cleared 2", e.stdout)
	}
	if got := e.titles(); len(got) != 1 || got[0] != "keep" {
		t.Errorf("server titles = %v, want [keep]", got)
	}

	e.stdout.Reset()
	if code := e.run("clear-completed"); code != 0 {
		t.Fatalf("second run exit = %d", code)
	}
	if !strings.Contains(e.stdout.String(), "cleared 0") {
		t.Errorf("second run stdout = %q, want cleared 0", e.stdout)
	}
}

func TestLoadFailure(t *testing.T) {
	e := setup(t)
	dead := httptest.NewServer(nil)
	e.cfg.APIURL = dead.URL
	dead.Close()

	if code := e.run("ls"); code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(e.stderr.String(), "could not load todos") {
		t.Errorf("stderr = %q", e.stderr)
	}
}

func TestNoUser(t *testing.T) {
	e := setup(t)
	e.cfg.UserID = 0

	if code := e.run("ls"); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
}

func TestUnknownSubcommand(t *testing.T) {
	e := setup(t)
	if code := e.run("frobnicate"); code != 2 {
		t.Errorf("exit = %d, want 2", code)
	}
	if !strings.Contains(e.stdout.String(), "Usage:") {
		t.Error("help not printed")
	}
}

func TestAuthFlow(t *testing.T) {
	e := setup(t, model.Todo{ID: 1, Title: "mine", UserID: 7})
	e.cfg.UserID = 0

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "7",
		"userId": 7,
		"exp":    exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatal(err)
	}

	if code := e.run("auth", "status"); code != 0 || !strings.Contains(e.stdout.String(), "not logged in") {
		t.Fatalf("status before login: exit %d, out %q", code, e.stdout)
	}

	oldIn := In
	In = strings.NewReader(token + "\n")
	t.Cleanup(func() { In = oldIn })
	if code := e.run("auth", "login"); code != 0 {
		t.Fatalf("login exit = %d, stderr: %s", code, e.stderr)
	}

	e.stdout.Reset()
	if code := e.run("auth", "status"); code != 0 {
		t.Fatalf("status exit = %d", code)
	}
	out := e.stdout.String()
	for _, s := range []string{"source: file", "user: 7", exp.UTC().Format(time.RFC3339)} {
		if !strings.Contains(out, s) {
			t.Errorf("status missing %q:\n%s", s, out)
		}
	}

	e.stdout.Reset()
	if code := e.run("auth", "whoami"); code != 0 {
		t.Fatalf("whoami exit = %d", code)
	}
	if !strings.Contains(e.stdout.String(), "sub: 7") {
		t.Errorf("whoami output:\n%s", e.stdout)
	}

	// The token's user id is used when none is configured.
	e.stdout.Reset()
	if code := e.run("ls"); code != 0 {
		t.Fatalf("ls exit = %d, stderr: %s", code, e.stderr)
	}
	if !strings.Contains(e.stdout.String(), "mine") {
		t.Errorf("ls output:\n%s", e.stdout)
	}

	if code := e.run("auth", "logout"); code != 0 {
		t.Fatalf("logout exit = %d", code)
	}
	if code := e.run("auth", "whoami"); code != 2 {
		t.Errorf("whoami after logout exit = %d, want 2", code)
	}
}

func TestSortedClaims(t *testing.T) {
	got := sortedClaims(map[string]any{"sub": "1", "exp": 2, "aud": "x"})
	want := []string{"aud: x", "exp: 2", "sub: 1"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("got %v, want %v", got, want)
	}
}
