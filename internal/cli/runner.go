package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/client"
	"github.com/Makepad-fr/tada/internal/config"
	"github.com/Makepad-fr/tada/internal/controller"
	"github.com/Makepad-fr/tada/internal/logging"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store/remote"
	"github.com/Makepad-fr/tada/internal/tui"
	"github.com/Makepad-fr/tada/internal/ui"
)

// In is where `auth login` reads the token from. Tests swap it.
var In io.Reader = os.Stdin

// Run dispatches subcommands and returns an exit code (0 ok, 1 error, 2 usage).
// No subcommand starts the interactive list.
func Run(ctx context.Context, args []string, cfg *config.Config) int {
	ui.SetTheme(cfg.Theme)
	if cfg.NoColor {
		ui.SetColorForcing(false, true)
	}
	if len(args) == 0 {
		return doUI(ctx, cfg)
	}
	cmd, a := args[0], args[1:]

	switch cmd {
	case "help", "-h", "--help":
		PrintHelp()
		return 0

	case "ui":
		return doUI(ctx, cfg)

	case "ls":
		fs := flag.NewFlagSet("ls", flag.ContinueOnError)
		fs.SetOutput(ui.Err)
		filter := fs.String("filter", "all", "all, active or completed")
		if err := fs.Parse(a); err != nil {
			return 2
		}
		f, err := model.ParseFilter(*filter)
		if err != nil || !f.IsView() {
			ui.Fail("ls: --filter must be all, active or completed")
			return 2
		}
		return doList(ctx, cfg, f)

	case "add":
		if len(a) == 0 {
			ui.Fail("usage: tada add <title...>")
			return 2
		}
		return doAdd(ctx, cfg, strings.Join(a, " "))

	case "rm":
		if len(a) != 1 {
			ui.Fail("usage: tada rm <id>")
			return 2
		}
		id, err := strconv.Atoi(a[0])
		if err != nil {
			ui.Fail("rm: not a number: " + a[0])
			return 2
		}
		return doRemove(ctx, cfg, id)

	case "clear-completed":
		return doClearCompleted(ctx, cfg)

	case "auth":
		if len(a) == 0 {
			ui.Fail("usage: tada auth <login|logout|status|whoami>")
			return 2
		}
		switch a[0] {
		case "login":
			return doAuthLogin()
		case "logout":
			return doAuthLogout()
		case "status":
			return doAuthStatus()
		case "whoami":
			return doAuthWhoAmI()
		default:
			ui.Fail("usage: tada auth <login|logout|status|whoami>")
			return 2
		}
	}

	ui.Fail("unknown subcommand: " + cmd)
	fmt.Fprintln(ui.Err)
	PrintHelp()
	return 2
}

func PrintHelp() {
	fmt.Fprint(ui.Out, `tada - your todos from the todo API

Usage:
  tada [flags] [subcommand] [args]

Subcommands:
  (none) | ui              Interactive list
  ls [--filter F]          List items (F: all, active, completed)
  add <title...>           Add a new item (title can be multiple words)
  rm <id>                  Delete the item with this id
  clear-completed          Delete every completed item
  auth <login|logout|status|whoami>   Token management

Flags:
  -api URL  -user ID  -theme classic|neon|mono  -group  -no-color
  -log-level debug|info|warn|error  -log-file PATH  -error-ttl 3s

Examples:
  tada add "Buy milk"
  tada ls --filter active
  tada rm 3
`)
}

// ---------------------------------------------------
// Wiring
// ---------------------------------------------------

// newController builds the client/repository/controller stack for cfg.
func newController(ctx context.Context, cfg *config.Config, logger *log.Logger, errorTTL time.Duration) (*controller.Controller, error) {
	ti, err := auth.GetToken()
	if err != nil {
		return nil, err
	}
	userID, err := auth.ResolveUserID(cfg.UserID, ti)
	if err != nil {
		return nil, err
	}

	opts := []client.Option{client.WithLogger(logger)}
	if ti != nil {
		opts = append(opts, client.WithToken(ti.Token))
	}
	repo, err := remote.New(client.New(cfg.APIURL, opts...), remote.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return controller.New(ctx, repo, userID,
		controller.WithLogger(logger),
		controller.WithErrorTTL(errorTTL),
		controller.WithPurgeParallelism(cfg.PurgeParallelism),
	), nil
}

// loaded builds a controller for a one-shot command and loads the list.
// On failure it reports and returns the exit code.
func loaded(ctx context.Context, cfg *config.Config) (*controller.Controller, int) {
	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	logger, err := logging.New(ui.Err, opts)
	if err != nil {
		ui.Fail(err.Error())
		return nil, 2
	}
	// Flags outlive a one-shot command, so no auto-clear.
	ctl, err := newController(ctx, cfg, logger, 0)
	if err != nil {
		ui.Fail(err.Error())
		if errors.Is(err, auth.ErrNoUser) {
			return nil, 2
		}
		return nil, 1
	}
	ctl.Await(ctl.Load())
	if ctl.Errors().LoadFailed {
		ui.Fail("could not load todos from " + cfg.APIURL)
		ctl.Close()
		return nil, 1
	}
	return ctl, 0
}

func doUI(ctx context.Context, cfg *config.Config) int {
	path, err := cfg.ResolvedLogFile()
	if err != nil {
		ui.Fail(err.Error())
		return 1
	}
	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	logger, closer, err := logging.NewFile(path, opts)
	if err != nil {
		ui.Fail(err.Error())
		return 1
	}
	defer closer.Close()

	ctl, err := newController(ctx, cfg, logger, cfg.ErrorTTL)
	if err != nil {
		ui.Fail(err.Error())
		if errors.Is(err, auth.ErrNoUser) {
			return 2
		}
		return 1
	}
	defer ctl.Close()

	if err := tui.Run(ctx, ctl); err != nil {
		ui.Fail("tui: " + err.Error())
		return 1
	}
	return 0
}

// ---------------------------------------------------
// Todo subcommands
// ---------------------------------------------------

func doList(ctx context.Context, cfg *config.Config, f model.Filter) int {
	ctl, code := loaded(ctx, cfg)
	if ctl == nil {
		return code
	}
	defer ctl.Close()
	ctl.ApplyFilter(f)

	todos := ctl.Todos()
	d, p := model.Stats(todos)
	th := ui.Current()
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		ui.C(th.Title, "Todos"),
		ui.C(th.Success, th.SymDone), d,
		ui.C(th.Pending, th.SymActive), p,
		ui.C(th.Accent, "Total"), len(todos),
	)

	var lines []string
	lines = append(lines, header)
	lines = append(lines, ui.C(th.Muted, ui.ProgressBar(d, d+p, 28)))
	lines = append(lines, "")

	visible := ctl.Visible()
	if cfg.Group {
		lines = append(lines, groupLines(visible)...)
	} else {
		lines = append(lines, flatLines(visible)...)
	}
	lines = append(lines, "")
	lines = append(lines, ui.C(th.Muted, footer(ctl)))
	ui.Panel(lines)
	return 0
}

func doAdd(ctx context.Context, cfg *config.Config, title string) int {
	ctl, code := loaded(ctx, cfg)
	if ctl == nil {
		return code
	}
	defer ctl.Close()

	ctl.Await(ctl.Create(title))
	errs := ctl.Errors()
	switch {
	case errs.EmptyTitle:
		ui.Fail("add: empty title")
		return 2
	case errs.AddFailed:
		ui.Fail("add: could not create the todo")
		return 1
	}
	// the server may have assigned another id than the one sent
	todos := ctl.Todos()
	ui.OK(fmt.Sprintf("added #%d", todos[len(todos)-1].ID))
	return 0
}

func doRemove(ctx context.Context, cfg *config.Config, id int) int {
	ctl, code := loaded(ctx, cfg)
	if ctl == nil {
		return code
	}
	defer ctl.Close()

	eff := ctl.Delete(id)
	if eff == nil {
		ui.Fail(fmt.Sprintf("no todo with id %d", id))
		ui.Hint("Hint: run `tada ls` to see valid ids")
		return 2
	}
	ctl.Await(eff)
	if ctl.Errors().DeleteFailed {
		ui.Fail(fmt.Sprintf("rm: could not delete #%d", id))
		return 1
	}
	ui.OK(fmt.Sprintf("removed #%d", id))
	return 0
}

func doClearCompleted(ctx context.Context, cfg *config.Config) int {
	ctl, code := loaded(ctx, cfg)
	if ctl == nil {
		return code
	}
	defer ctl.Close()

	before := len(ctl.Todos())
	ctl.Await(ctl.PurgeCompleted())
	removed := before - len(ctl.Todos())
	if ctl.Errors().DeleteFailed {
		ui.Warn(fmt.Sprintf("clear-completed: some deletes failed (%d removed)", removed))
		return 1
	}
	ui.OK(fmt.Sprintf("cleared %d", removed))
	return 0
}

// ---------------------------------------------------
// Rendering helpers
// ---------------------------------------------------

func footer(ctl *controller.Controller) string {
	n := ctl.ActiveCount()
	s := fmt.Sprintf("%d items left", n)
	if n == 1 {
		s = "1 item left"
	}
	s += "  ·  filter: " + ctl.Filter().String()
	if ctl.AnyCompleted() {
		s += "  ·  `tada clear-completed` removes done items"
	}
	return s
}

func flatLines(todos []model.Todo) []string {
	th := ui.Current()
	if len(todos) == 0 {
		return []string{ui.C(th.Muted, "no items")}
	}
	out := make([]string, 0, len(todos))
	for _, it := range todos {
		id := fmt.Sprintf("#%-3d", it.ID)
		box := th.BoxUnchecked
		color := th.Muted
		if it.Completed {
			box, color = th.BoxChecked, th.Success
		}
		out = append(out, fmt.Sprintf("%s %s %s",
			ui.C("\033[2m", id), ui.C(color, box), ui.Truncate(it.Title, 80)))
	}
	return out
}

func groupLines(todos []model.Todo) []string {
	th := ui.Current()
	active := model.FilterActive.Apply(todos)
	done := model.FilterCompleted.Apply(todos)

	var lines []string
	lines = append(lines, ui.C(th.Accent, "Active"))
	if len(active) == 0 {
		lines = append(lines, ui.C(th.Muted, "(none)"))
	} else {
		lines = append(lines, flatLines(active)...)
	}
	lines = append(lines, "")
	lines = append(lines, ui.C(th.Accent, "Completed"))
	if len(done) == 0 {
		lines = append(lines, ui.C(th.Muted, "(none)"))
	} else {
		lines = append(lines, flatLines(done)...)
	}
	return lines
}

// ---------------------------------------------------
// Auth subcommands
// ---------------------------------------------------

func doAuthLogin() int {
	fmt.Fprint(ui.Out, "Paste your token: ")
	token, err := bufio.NewReader(In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		ui.Fail("read token: " + err.Error())
		return 1
	}
	fmt.Fprintln(ui.Out)
	if err := auth.SetToken(token, nil); err != nil {
		ui.Fail("save token: " + err.Error())
		return 1
	}
	ui.OK("logged in")
	return 0
}

func doAuthLogout() int {
	ti, _ := auth.GetToken()
	if ti != nil && ti.Source == "env" {
		ui.OK("token is provided by " + auth.TokenEnv + " env var (nothing to delete)")
		return 0
	}
	if err := auth.DeleteToken(); err != nil {
		ui.Fail("logout: " + err.Error())
		return 1
	}
	ui.OK("logged out")
	return 0
}

func doAuthStatus() int {
	ti, err := auth.GetToken()
	if err != nil {
		ui.Fail(err.Error())
		return 1
	}
	if ti == nil {
		fmt.Fprintln(ui.Out, ui.C(ui.Current().Muted, "not logged in"))
		fmt.Fprintln(ui.Out, "Run: tada auth login")
		return 0
	}
	fmt.Fprintf(ui.Out, "source: %s\n", ti.Source)
	if ti.ExpiresAt != nil {
		fmt.Fprintf(ui.Out, "expires: %s\n", ti.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Fprintln(ui.Out, "expires: (unknown)")
	}
	if id, ok := auth.UserIDFromToken(ti.Token); ok {
		fmt.Fprintf(ui.Out, "user: %d\n", id)
	}
	fmt.Fprintln(ui.Out, "env override: "+auth.TokenEnv)
	return 0
}

// whoami decodes a JWT locally (unverified); opaque tokens print basic info.
func doAuthWhoAmI() int {
	ti, _ := auth.GetToken()
	if ti == nil {
		ui.Fail(auth.ErrNoToken.Error())
		return 2
	}
	claims, err := auth.Claims(ti.Token)
	if err != nil {
		fmt.Fprintln(ui.Out, "Opaque token (cannot introspect locally).")
		fmt.Fprintln(ui.Out, "source:", ti.Source)
		return 0
	}
	fmt.Fprintln(ui.Out, "JWT claims:")
	for _, line := range sortedClaims(claims) {
		fmt.Fprintln(ui.Out, "  "+line)
	}
	return 0
}

func sortedClaims(claims map[string]any) []string {
	keys := make([]string, 0, len(claims))
	for k := range claims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, fmt.Sprintf("%s: %v", k, claims[k]))
	}
	return out
}
