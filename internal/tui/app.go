// Package tui provides the interactive Bubble Tea browser for session
// artifacts: a list pane, a detail pane, and rename/delete actions.
package tui

import (
	"fmt"
	"strings"

	"gemtrail/internal/cli"
	"gemtrail/internal/store"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// ArtifactsLoadedMsg is sent when the store listing finishes.
type ArtifactsLoadedMsg struct {
	Artifacts []store.Artifact
	Err       error
}

// ActionDoneMsg is sent when a rename or delete completes.
type ActionDoneMsg struct {
	Status string
	Err    error
}

type mode int

const (
	modeList mode = iota
	modeDetail
	modeRename
	modeDelete
)

// App is the root Bubble Tea model.
type App struct {
	st *store.Store

	artifacts []store.Artifact
	loaded    bool
	loadErr   error

	mode   mode
	cursor int
	status string

	// Detail pane
	detail viewport.Model

	// Form state; pointers so huh writes survive model copies
	form        *huh.Form
	formTitle   *string
	formConfirm *bool

	width  int
	height int
}

const (
	minTerminalWidth = 60
	listOverhead     = 6 // title, header rule, status bar, key hints
)

// NewApp creates a browser over an already-opened store.
func NewApp(st *store.Store) App {
	return App{st: st, detail: viewport.New(0, 0)}
}

// Init implements tea.Model.
func (a App) Init() tea.Cmd {
	return loadArtifactsCmd(a.st)
}

func loadArtifactsCmd(st *store.Store) tea.Cmd {
	return func() tea.Msg {
		arts, err := st.List()
		return ArtifactsLoadedMsg{Artifacts: arts, Err: err}
	}
}

func renameCmd(st *store.Store, filename, title string) tea.Cmd {
	return func() tea.Msg {
		newName, err := st.Rename(filename, title)
		if err != nil {
			return ActionDoneMsg{Err: err}
		}
		return ActionDoneMsg{Status: "renamed to " + newName}
	}
}

func deleteCmd(st *store.Store, filename string) tea.Cmd {
	return func() tea.Msg {
		if err := st.Remove(filename); err != nil {
			return ActionDoneMsg{Err: err}
		}
		return ActionDoneMsg{Status: "deleted " + filename}
	}
}

func (a App) current() (store.Artifact, bool) {
	if a.cursor < 0 || a.cursor >= len(a.artifacts) {
		return store.Artifact{}, false
	}
	return a.artifacts[a.cursor], true
}

// Update implements tea.Model.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.detail.Width = msg.Width - 2
		a.detail.Height = msg.Height - 4
		if a.form != nil {
			a.form = a.form.WithWidth(msg.Width)
		}
		return a, nil

	case ArtifactsLoadedMsg:
		a.loaded = true
		a.loadErr = msg.Err
		a.artifacts = msg.Artifacts
		if a.cursor >= len(a.artifacts) {
			a.cursor = len(a.artifacts) - 1
		}
		if a.cursor < 0 {
			a.cursor = 0
		}
		return a, nil

	case ActionDoneMsg:
		a.mode = modeList
		a.form = nil
		if msg.Err != nil {
			a.status = msg.Err.Error()
			return a, nil
		}
		a.status = msg.Status
		return a, loadArtifactsCmd(a.st)

	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return a, tea.Quit
		}
		if !a.loaded {
			return a, nil
		}

		switch a.mode {
		case modeRename, modeDelete:
			return a.updateForm(msg)
		case modeDetail:
			return a.updateDetail(msg)
		default:
			return a.updateList(key)
		}
	}

	if a.form != nil {
		return a.updateForm(msg)
	}
	return a, nil
}

func (a App) updateList(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "esc":
		return a, tea.Quit
	case "j", "down":
		if a.cursor < len(a.artifacts)-1 {
			a.cursor++
		}
	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
	case "g":
		a.cursor = 0
	case "G":
		if len(a.artifacts) > 0 {
			a.cursor = len(a.artifacts) - 1
		}
	case "enter", "l":
		if art, ok := a.current(); ok {
			a.mode = modeDetail
			a.detail.SetContent(a.renderDetail(art))
			a.detail.GotoTop()
		}
	case "r":
		if art, ok := a.current(); ok {
			title := art.Title
			a.formTitle = &title
			a.form = newRenameForm(a.formTitle)
			if a.width > 0 {
				a.form = a.form.WithWidth(a.width)
			}
			a.mode = modeRename
			return a, a.form.Init()
		}
	case "d":
		if _, ok := a.current(); ok {
			confirm := false
			a.formConfirm = &confirm
			a.form = newDeleteForm(a.formConfirm)
			if a.width > 0 {
				a.form = a.form.WithWidth(a.width)
			}
			a.mode = modeDelete
			return a, a.form.Init()
		}
	case "R":
		a.status = ""
		return a, loadArtifactsCmd(a.st)
	}
	return a, nil
}

func (a App) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "h":
		a.mode = modeList
		return a, nil
	}
	var cmd tea.Cmd
	a.detail, cmd = a.detail.Update(msg)
	return a, cmd
}

func newRenameForm(title *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("New title").
				Description("Lowercased into the artifact filename.").
				Value(title),
		),
	)
}

func newDeleteForm(confirm *bool) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Delete this session artifact?").
				Affirmative("Delete").
				Negative("Keep").
				Value(confirm),
		),
	)
}

func (a App) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	form, cmd := a.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.form = f
	}

	if a.form.State == huh.StateAborted {
		a.mode = modeList
		a.form = nil
		return a, nil
	}

	if a.form.State == huh.StateCompleted {
		art, ok := a.current()
		wasRename := a.mode == modeRename
		a.mode = modeList
		a.form = nil
		if !ok {
			return a, nil
		}
		if wasRename {
			if a.formTitle == nil || strings.TrimSpace(*a.formTitle) == "" {
				a.status = "title cannot be empty"
				return a, nil
			}
			return a, renameCmd(a.st, art.Filename, *a.formTitle)
		}
		if a.formConfirm != nil && *a.formConfirm {
			return a, deleteCmd(a.st, art.Filename)
		}
		return a, nil
	}

	return a, cmd
}

// View implements tea.Model.
func (a App) View() string {
	if a.width == 0 {
		return ""
	}
	if a.width < minTerminalWidth {
		return fmt.Sprintf("\n  Terminal too narrow (%d cols), need %d.\n", a.width, minTerminalWidth)
	}
	if !a.loaded {
		return "\n  Loading sessions...\n"
	}
	if a.loadErr != nil {
		return fmt.Sprintf("\n  error: %v\n", a.loadErr)
	}

	if a.form != nil {
		return a.form.View()
	}

	if a.mode == modeDetail {
		return a.viewDetail()
	}
	return a.viewList()
}

func (a App) viewList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("gemtrail sessions"))
	b.WriteString("\n")

	if len(a.artifacts) == 0 {
		b.WriteString(dimStyle.Render("\n  no session artifacts yet\n"))
	} else {
		visible := a.height - listOverhead
		if visible < 1 {
			visible = 1
		}
		start := 0
		if a.cursor >= visible {
			start = a.cursor - visible + 1
		}
		end := start + visible
		if end > len(a.artifacts) {
			end = len(a.artifacts)
		}

		for i := start; i < end; i++ {
			art := a.artifacts[i]
			title := art.Title
			if title == "" {
				title = dimStyle.Render("(untitled)")
			}
			line := fmt.Sprintf("%s  %-9s  %s",
				art.Timestamp.Format("2006-01-02 15:04"),
				cli.FormatBytes(art.Size),
				title)
			line = cli.Truncate(line, a.width-4)
			if i == a.cursor {
				b.WriteString(selectedStyle.Render("▸ " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	if a.status != "" {
		b.WriteString(statusStyle.Render(a.status))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("enter view · r rename · d delete · R reload · q quit"))
	return b.String()
}

func (a App) viewDetail() string {
	art, _ := a.current()
	header := titleStyle.Render(art.Filename)
	footer := dimStyle.Render("j/k scroll · esc back")
	return header + "\n" + a.detail.View() + "\n" + footer
}

// renderDetail formats the prompt entries of one artifact for the viewport.
func (a App) renderDetail(art store.Artifact) string {
	entries := a.st.Prior(art.SessionID)
	if len(entries) == 0 {
		return dimStyle.Render("no prompt entries (artifact unreadable or empty)")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "session %s · %d prompts\n\n", art.SessionID, len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "%s\n", headerStyle.Render(fmt.Sprintf("prompt %d  %s", i+1, e.PromptID())))
		writeSection(&b, "request", e.Request, "request_text")
		writeSection(&b, "response", e.Response, "response_text")
		writeSection(&b, "error", e.Error, "error.message")
		b.WriteString("\n")
	}
	return b.String()
}

func writeSection(b *strings.Builder, label string, attrs map[string]any, textKey string) {
	if attrs == nil {
		fmt.Fprintf(b, "  %s %s\n", label, dimStyle.Render("(none)"))
		return
	}
	text := ""
	if v, ok := attrs[textKey].(string); ok {
		text = strings.ReplaceAll(v, "\n", " ")
	}
	fmt.Fprintf(b, "  %s %s\n", label, cli.Truncate(text, 120))
}

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#D0A215")).Bold(true).Padding(0, 1)
	headerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4385BE")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3AA99F")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#879A39"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#575653"))
)
