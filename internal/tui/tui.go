// Package tui is the interactive todo list: a Bubble Tea program driving a
// controller.Controller. Controller effects run as tea.Cmds and their events
// come back through Update, so all state changes happen on the program loop.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Makepad-fr/tada/internal/controller"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/ui"
)

// listItem adapts model.Todo to bubbles/list.Item
type listItem struct {
	todo model.Todo
}

func (i listItem) FilterValue() string { return i.todo.Title }

// Custom delegate to control how items render (single line)
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d itemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(listItem)
	if !ok {
		return
	}
	boxStyled := mutedStyle.Render(boxUnchecked)
	textStyled := it.todo.Title
	if it.todo.Completed {
		boxStyled = successStyle.Render(boxChecked)
		textStyled = doneStyle.Render(it.todo.Title)
	}

	id := mutedStyle.Render(fmt.Sprintf("#%-3d", it.todo.ID))
	line := fmt.Sprintf("%s %s %s", id, boxStyled, textStyled)
	prefix := "  "
	if index == m.Index() {
		prefix = selectedStyle.Render("> ")
	}
	fmt.Fprint(w, prefix+line)
}

type keyMap struct {
	Add       key.Binding
	Delete    key.Binding
	All       key.Binding
	Active    key.Binding
	Completed key.Binding
	Clear     key.Binding
	Cycle     key.Binding
	Reload    key.Binding
	Quit      key.Binding
	Submit    key.Binding
	Cancel    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Add:       key.NewBinding(key.WithKeys("a", "n"), key.WithHelp("a", "add")),
		Delete:    key.NewBinding(key.WithKeys("d", "x", "delete"), key.WithHelp("d", "delete")),
		All:       key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "all")),
		Active:    key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "active")),
		Completed: key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "completed")),
		Clear:     key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear completed")),
		Cycle:     key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next filter")),
		Reload:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Submit:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "create")),
		Cancel:    key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
	}
}

func (k keyMap) helpKeys() []key.Binding {
	return []key.Binding{k.Add, k.Delete, k.All, k.Active, k.Completed, k.Clear, k.Reload}
}

type modelTUI struct {
	ctl     *controller.Controller
	keys    keyMap
	list    list.Model
	ti      textinput.Model
	spinner spinner.Model

	typing bool // true while the new-item input has focus
	width  int
	height int
}

func newModel(ctl *controller.Controller) modelTUI {
	keys := newKeyMap()

	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(false)
	// The filter bar replaces fuzzy filtering; its keys would clash.
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.AdditionalShortHelpKeys = keys.helpKeys
	l.AdditionalFullHelpKeys = keys.helpKeys

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What needs to be done?"
	ti.CharLimit = 200

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(pendingStyle))

	m := modelTUI{
		ctl:     ctl,
		keys:    keys,
		list:    l,
		ti:      ti,
		spinner: sp,
		width:   80,
		height:  24,
	}
	m.resize()
	return m
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, ctl *controller.Controller) error {
	p := tea.NewProgram(newModel(ctl), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	ctl.Close()
	if err != nil && ctx.Err() != nil {
		// interrupted by signal
		return nil
	}
	return err
}

// effectCmd runs a controller effect as a command; its event comes back as a message.
func effectCmd(eff controller.Effect) tea.Cmd {
	if eff == nil {
		return nil
	}
	return func() tea.Msg {
		if ev := eff(); ev != nil {
			return ev
		}
		return nil
	}
}

// Update and View implement Bubble Tea's Model on modelTUI
func (m modelTUI) Init() tea.Cmd {
	return tea.Batch(effectCmd(m.ctl.Load()), m.spinner.Tick)
}

func (m modelTUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case controller.Event:
		cmd := effectCmd(m.ctl.Handle(msg))
		m.sync()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if m.typing {
			return m.updateTyping(msg)
		}
		return m.updateBrowsing(msg)
	}

	var cmd tea.Cmd
	if m.typing {
		m.ti, cmd = m.ti.Update(msg)
		return m, cmd
	}
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// updateTyping handles keys while the new-item input has focus.
func (m modelTUI) updateTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.Submit):
		m.ctl.SetTitle(m.ti.Value())
		cmd := effectCmd(m.ctl.Submit())
		m.sync()
		return m, cmd
	case key.Matches(msg, m.keys.Cancel):
		m.typing = false
		m.ti.Blur()
		m.resize()
		return m, nil
	}
	if m.ctl.Adding() {
		// input is disabled while a create is outstanding
		return m, nil
	}
	var cmd tea.Cmd
	m.ti, cmd = m.ti.Update(msg)
	m.ctl.SetTitle(m.ti.Value())
	return m, cmd
}

// updateBrowsing handles keys while the list has focus.
func (m modelTUI) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var eff controller.Effect
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Add):
		m.typing = true
		m.ti.SetValue(m.ctl.Title())
		m.ti.CursorEnd()
		m.resize()
		return m, m.ti.Focus()
	case key.Matches(msg, m.keys.Delete):
		if it, ok := m.list.SelectedItem().(listItem); ok {
			eff = m.ctl.Delete(it.todo.ID)
		}
	case key.Matches(msg, m.keys.All):
		eff = m.ctl.ApplyFilter(model.FilterAll)
	case key.Matches(msg, m.keys.Active):
		eff = m.ctl.ApplyFilter(model.FilterActive)
	case key.Matches(msg, m.keys.Completed):
		eff = m.ctl.ApplyFilter(model.FilterCompleted)
	case key.Matches(msg, m.keys.Clear):
		eff = m.ctl.ApplyFilter(model.FilterClearCompleted)
	case key.Matches(msg, m.keys.Cycle):
		eff = m.ctl.ApplyFilter(nextView(m.ctl.Filter()))
	case key.Matches(msg, m.keys.Reload):
		eff = m.ctl.Load()
	default:
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}
	m.sync()
	return m, effectCmd(eff)
}

func nextView(f model.Filter) model.Filter {
	switch f {
	case model.FilterAll:
		return model.FilterActive
	case model.FilterActive:
		return model.FilterCompleted
	default:
		return model.FilterAll
	}
}

// sync copies the controller's visible list and title into the widgets.
func (m *modelTUI) sync() {
	visible := m.ctl.Visible()
	items := make([]list.Item, 0, len(visible))
	for _, t := range visible {
		items = append(items, listItem{todo: t})
	}
	idx := m.list.Index()
	m.list.SetItems(items)
	if idx >= len(items) {
		idx = len(items) - 1
	}
	if idx >= 0 {
		m.list.Select(idx)
	}
	if !m.ctl.Adding() && m.ti.Value() != m.ctl.Title() {
		m.ti.SetValue(m.ctl.Title())
	}
}

// resize gives the list whatever the chrome around it leaves.
func (m *modelTUI) resize() {
	chrome := 9 // panel border, header, filter bar, footer, spacing
	if m.typing {
		chrome += 4
	}
	chrome += 4 // room for error banners and the pending row
	h := m.height - chrome
	if h < 3 {
		h = 3
	}
	m.list.SetSize(m.width-4, h)
}

func (m modelTUI) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.filterBar())
	b.WriteString("\n\n")

	if m.ctl.Loading() && len(m.ctl.Todos()) == 0 {
		b.WriteString(m.spinner.View() + " " + mutedStyle.Render("loading..."))
		b.WriteString("\n")
	} else if len(m.list.Items()) == 0 {
		b.WriteString(mutedStyle.Render("no items"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.list.View())
		b.WriteString("\n")
	}

	if m.ctl.Adding() {
		pending := fmt.Sprintf("  %s %s %s", m.spinner.View(), mutedStyle.Render(boxUnchecked), m.ti.Value())
		b.WriteString(pending)
		b.WriteString("\n")
	}

	if m.typing {
		title := "Add new item"
		if m.ctl.Adding() {
			title += " " + mutedStyle.Render("(saving...)")
		}
		b.WriteString(inputBoxStyle.Render(title + "\n" + m.ti.View()))
		b.WriteString("\n")
	}

	b.WriteString(m.footer())

	content := panelStyle.Render(b.String())
	if banners := m.banners(); banners != "" {
		content += "\n" + banners
	}
	return content
}

func (m modelTUI) header() string {
	todos := m.ctl.Todos()
	dn, pn := model.Stats(todos)
	stats := fmt.Sprintf("%s   %s %d  %s %d  %s %d",
		titleStyle.Render("Todos"),
		successStyle.Render("✔"), dn,
		pendingStyle.Render("•"), pn,
		accentStyle.Render("Total"), len(todos),
	)
	return stats + "\n" + mutedStyle.Render(ui.ProgressBar(dn, dn+pn, 28))
}

func (m modelTUI) filterBar() string {
	parts := make([]string, 0, len(model.Filters))
	for _, f := range model.Filters {
		label := f.String()
		switch {
		case f == m.ctl.Filter():
			parts = append(parts, filterOnStyle.Render(label))
		case f == model.FilterClearCompleted && !m.ctl.AnyCompleted():
			parts = append(parts, filterOffStyle.Render(label))
		default:
			parts = append(parts, label)
		}
	}
	return strings.Join(parts, "  ")
}

func (m modelTUI) footer() string {
	n := m.ctl.ActiveCount()
	s := fmt.Sprintf("%d items left", n)
	if n == 1 {
		s = "1 item left"
	}
	return mutedStyle.Render(s)
}

// banners renders one line per set error flag.
func (m modelTUI) banners() string {
	errs := m.ctl.Errors()
	if !errs.Any() {
		return ""
	}
	var lines []string
	if errs.EmptyTitle {
		lines = append(lines, bannerStyle.Render("Title can't be empty"))
	}
	if errs.AddFailed {
		lines = append(lines, bannerStyle.Render("Unable to add a todo"))
	}
	if errs.DeleteFailed {
		lines = append(lines, bannerStyle.Render("Unable to delete a todo"))
	}
	if errs.LoadFailed {
		lines = append(lines, bannerStyle.Render("Unable to load todos")+" "+errorStyle.Render("press r to retry"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
