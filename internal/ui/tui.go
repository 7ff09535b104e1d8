package ui

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/idilsaglam/livetodo/internal/app"
	"github.com/idilsaglam/livetodo/internal/model"
)

// listItem adapts a TodoItem to bubbles/list.Item
type listItem struct {
	model.TodoItem
}

func (i listItem) Title() string       { return renderRow(i.TodoItem, false) }
func (i listItem) Description() string { return "" }
func (i listItem) FilterValue() string { return i.Content }

// renderRow draws one item: checkbox, then the label, struck through when done.
func renderRow(it model.TodoItem, selected bool) string {
	box := mutedStyle.Render(boxUnchecked)
	text := it.Content
	if it.Completed {
		box = successStyle.Render(boxChecked)
		text = doneStyle.Render(text)
	}
	prefix := "  "
	if selected {
		prefix = selectedStyle.Render(">") + " "
	}
	return prefix + box + " " + text
}

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
	fmt.Fprint(w, renderRow(it.TodoItem, index == m.Index()))
}

// Messages fed into the program.
type (
	itemsMsg     []model.TodoItem
	subErrMsg    struct{ err error }
	writeDoneMsg struct {
		op      app.Op
		err     error
		skipped bool
	}
)

// feed carries controller events into the bubbletea loop.
type feed struct {
	ctx    context.Context
	events chan tea.Msg
}

func newFeed(ctx context.Context) *feed {
	return &feed{ctx: ctx, events: make(chan tea.Msg, 64)}
}

func (f *feed) push(msg tea.Msg) {
	select {
	case f.events <- msg:
	case <-f.ctx.Done():
	}
}

func (f *feed) handlers() app.Handlers {
	return app.Handlers{
		OnChange: func(items []model.TodoItem) { f.push(itemsMsg(items)) },
		OnError:  func(err error) { f.push(subErrMsg{err: err}) },
	}
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func awaitWrite(w *app.Write) tea.Cmd {
	return func() tea.Msg {
		<-w.Done()
		return writeDoneMsg{op: w.Op, err: w.Err(), skipped: w.Skipped()}
	}
}

// Model is the interactive list. It renders whatever the controller last
// applied and turns key presses into controller writes.
type Model struct {
	ctx    context.Context
	ctrl   *app.Controller
	events <-chan tea.Msg

	list   list.Model
	counts string

	// Inline add
	adding bool
	ti     textinput.Model

	status string
	width  int
	height int
}

var (
	addBind    = key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add"))
	toggleBind = key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle"))
	deleteBind = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete"))
)

// NewModel builds the list from the controller's current items. events may
// be nil when no subscription feeds the model.
func NewModel(ctx context.Context, ctrl *app.Controller, events <-chan tea.Msg) Model {
	l := list.New(nil, itemDelegate{}, 0, 0)
	l.SetShowHelp(true)
	l.SetShowPagination(true)
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(true)
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.FilterInput.Prompt = "/ "
	l.SetStatusBarItemName("item", "items")
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{addBind, toggleBind, deleteBind} }
	l.AdditionalFullHelpKeys = func() []key.Binding { return []key.Binding{addBind, toggleBind, deleteBind} }
	// q is handled here so it can't quit while the add input is open.
	l.KeyMap.Quit.SetEnabled(false)

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "New item..."
	ti.CharLimit = 500

	m := Model{
		ctx:    ctx,
		ctrl:   ctrl,
		events: events,
		list:   l,
		ti:     ti,
	}
	m.resize(80, 24)
	m.setItems(ctrl.Items())
	return m
}

// Run opens the subscription, then runs the program until the user quits.
func Run(ctx context.Context, ctrl *app.Controller) error {
	f, stop, err := subscribe(ctx, ctrl)
	if err != nil {
		return err
	}
	defer stop()

	p := tea.NewProgram(NewModel(f.ctx, ctrl, f.events), tea.WithAltScreen(), tea.WithContext(f.ctx))
	_, err = p.Run()
	return err
}

// subscribe starts ctrl on a fresh feed. stop ends the feed before the
// subscription, since a store callback blocked in push only returns once the
// feed's context is done.
func subscribe(ctx context.Context, ctrl *app.Controller) (*feed, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	f := newFeed(ctx)
	sub, err := ctrl.Start(ctx, f.handlers())
	if err != nil {
		cancel()
		return nil, nil, err
	}
	return f, func() {
		cancel()
		sub.Stop()
	}, nil
}

// Update and View implement Bubble Tea's Model on Model
func (m Model) Init() tea.Cmd { return m.next() }

// next waits for the following controller event.
func (m Model) next() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return waitForEvent(m.events)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case itemsMsg:
		cmd := m.setItems(msg)
		return m, tea.Batch(cmd, m.next())
	case subErrMsg:
		m.status = "sync error: " + msg.err.Error()
		return m, m.next()
	case writeDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("%s failed: %v", msg.op, msg.err)
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	// add mode
	if m.adding {
		var cmd tea.Cmd
		if x, ok := msg.(tea.KeyMsg); ok {
			switch x.String() {
			case "enter":
				w := m.ctrl.Add(m.ctx, m.ti.Value())
				m.closeInput()
				return m, awaitWrite(w)
			case "esc":
				m.closeInput()
				return m, nil
			}
		}
		m.ti, cmd = m.ti.Update(msg)
		return m, cmd
	}

	if x, ok := msg.(tea.KeyMsg); ok && m.list.FilterState() != list.Filtering {
		switch x.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			if it, ok := m.selected(); ok {
				return m, awaitWrite(m.ctrl.Toggle(m.ctx, it.ID, !it.Completed))
			}
			return m, nil
		case "d":
			if it, ok := m.selected(); ok {
				return m, awaitWrite(m.ctrl.Delete(m.ctx, app.DeleteControlID(it.ID)))
			}
			return m, nil
		case "a":
			m.adding = true
			m.status = ""
			m.ti.SetValue("")
			m.resize(m.width, m.height)
			return m, m.ti.Focus()
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	content := m.list.View()
	if m.adding {
		bar := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
		content += "\n" + bar.Render("Add new item\n"+m.ti.View())
	}
	if m.status != "" {
		content += "\n" + errorStyle.Render(m.status)
	}
	return panelString(content)
}

// setItems replaces every row with the snapshot, keeping the cursor on the
// same item when it survived.
func (m *Model) setItems(items []model.TodoItem) tea.Cmd {
	prev, hadPrev := m.selected()

	li := make([]list.Item, len(items))
	for i, it := range items {
		li[i] = listItem{it}
	}
	cmd := m.list.SetItems(li)

	if hadPrev && m.list.FilterState() == list.Unfiltered {
		for i, it := range items {
			if it.ID == prev.ID {
				m.list.Select(i)
				break
			}
		}
	}

	done, pending := model.Stats(items)
	m.counts = fmt.Sprintf("%s %d  %s %d  %s %d",
		successStyle.Render("✔"), done,
		pendingStyle.Render("•"), pending,
		accentStyle.Render("Total"), len(items),
	)
	m.list.Title = "Todos   " + m.counts
	return cmd
}

func (m Model) selected() (model.TodoItem, bool) {
	it, ok := m.list.SelectedItem().(listItem)
	if !ok {
		return model.TodoItem{}, false
	}
	return it.TodoItem, true
}

func (m *Model) closeInput() {
	m.adding = false
	m.ti.SetValue("")
	m.ti.Blur()
	m.resize(m.width, m.height)
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	listHeight := h - 4
	if m.adding {
		listHeight = h - 8
	}
	if listHeight < 3 {
		listHeight = 3
	}
	m.list.SetSize(w-4, listHeight)
}
