package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/internal/controller"
	"github.com/dgnsrekt/readaloud/internal/settings"
)

type dialogKind int

const (
	dialogNone dialogKind = iota
	dialogAlert
	dialogKey
)

var (
	dialogBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B50FF")).
			Padding(1, 2)

	dialogTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFDF5")).
				Background(lipgloss.Color("#6B50FF")).
				Padding(0, 1)
)

// keySavedMsg is sent after a new API key was stored.
type keySavedMsg struct{}

// dialogModel shows blocking notices one at a time, and the API key prompt.
type dialogModel struct {
	kind  dialogKind
	title string
	body  string
	input textinput.Model
	queue []controller.Notice
	store settings.Store
	width int
}

func newDialogModel(store settings.Store) dialogModel {
	ti := textinput.New()
	ti.Placeholder = "ElevenLabs API key"
	ti.EchoMode = textinput.EchoPassword
	ti.EchoCharacter = '•'
	ti.CharLimit = 128
	ti.Prompt = "› "
	return dialogModel{input: ti, store: store}
}

func (m dialogModel) open() bool {
	return m.kind != dialogNone
}

// inputFocused reports whether keys are going to the API key field.
func (m dialogModel) inputFocused() bool {
	return m.kind == dialogKey && m.input.Focused()
}

// push shows n, or queues it behind the dialog already on screen.
func (m *dialogModel) push(n controller.Notice) tea.Cmd {
	if m.open() {
		m.queue = append(m.queue, n)
		return nil
	}
	return m.show(n)
}

func (m *dialogModel) show(n controller.Notice) tea.Cmd {
	m.body = n.Message
	if n.NeedsCredential() {
		return m.promptKey(n.Message)
	}
	m.kind = dialogAlert
	m.title = "readaloud"
	return nil
}

func (m *dialogModel) promptKey(body string) tea.Cmd {
	m.kind = dialogKey
	m.title = "API key"
	m.body = body
	m.input.Reset()
	return m.input.Focus()
}

// close dismisses the current dialog and shows the next queued one.
func (m *dialogModel) close() tea.Cmd {
	m.kind = dialogNone
	m.input.Blur()
	m.input.Reset()
	if len(m.queue) == 0 {
		return nil
	}
	n := m.queue[0]
	m.queue = m.queue[1:]
	return m.show(n)
}

func (m dialogModel) update(msg tea.Msg) (dialogModel, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.kind == dialogKey {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch m.kind {
	case dialogAlert:
		switch key.String() {
		case keyEnter, keyEsc, " ", "q":
			return m, m.close()
		}
	case dialogKey:
		switch key.String() {
		case keyEnter:
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return m, nil
			}
			if err := m.store.Set(settings.KeyAPIKey, value); err != nil {
				log.Error("Could not save API key", "err", err)
				m.body = "Could not save the API key: " + err.Error()
				return m, nil
			}
			log.Info("API key saved")
			return m, tea.Batch(m.close(), func() tea.Msg { return keySavedMsg{} })
		case keyEsc:
			return m, m.close()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m dialogModel) view(width, height int) string {
	w := min(max(width-8, 20), 64)
	var b strings.Builder
	b.WriteString(dialogTitleStyle.Render(m.title))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(w).Render(m.body))
	switch m.kind {
	case dialogKey:
		m.input.Width = w - 4
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(subtleStyle.Render("enter save • esc cancel"))
	default:
		b.WriteString("\n\n")
		b.WriteString(subtleStyle.Render("enter ok"))
	}
	box := dialogBoxStyle.Render(b.String())
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, box)
}
