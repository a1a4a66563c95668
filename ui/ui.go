// Package ui provides the terminal reader: a pager showing the page, the
// hover read control, the spoken-word highlight and the dialogs.
package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	te "github.com/muesli/termenv"

	"github.com/dgnsrekt/readaloud/internal/controller"
	"github.com/dgnsrekt/readaloud/internal/highlight"
	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"github.com/dgnsrekt/readaloud/internal/remote"
	"github.com/dgnsrekt/readaloud/internal/settings"
	"github.com/dgnsrekt/readaloud/internal/synth"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied"
	ellipsis             = "…"
)

// Deps are the services the reader drives.
type Deps struct {
	Streamer   synth.Streamer
	Settings   settings.Store
	Media      controller.MediaFactory
	Chime      controller.Sound
	Controller controller.Config
}

// NewProgram returns a new Tea program reading doc.
func NewProgram(cfg Config, doc *page.Document, deps Deps) *tea.Program {
	log.Debug(
		"Starting readaloud",
		"path",
		cfg.Path,
		"smooth_scroll",
		cfg.SmoothScroll,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.AllMotion {
		opts = append(opts, tea.WithMouseAllMotion())
	} else {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, doc, deps)
	return tea.NewProgram(m, opts...)
}

// RemoteHandler forwards remote commands into the running program.
func RemoteHandler(p *tea.Program) remote.Handler {
	return func(c remote.Command) error {
		p.Send(remoteMsg(c))
		return nil
	}
}

type (
	errMsg    struct{ err error }
	remoteMsg remote.Command
)

func (e errMsg) Error() string { return e.err.Error() }

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	width  int
	height int
}

type model struct {
	common   *commonModel
	fatalErr error

	// Sub-models
	pager  pagerModel
	dialog dialogModel

	ctrl     *controller.Controller
	sync     *highlight.Synchronizer
	scroller *highlight.AutoScroller
	bridge   *bridge
	store    settings.Store

	autoScroll bool
}

func newModel(cfg Config, doc *page.Document, deps Deps) model {
	if cfg.GlamourStyle == "" || cfg.GlamourStyle == styles.AutoStyle {
		if te.HasDarkBackground() {
			cfg.GlamourStyle = styles.DarkStyle
		} else {
			cfg.GlamourStyle = styles.LightStyle
		}
	}

	common := commonModel{cfg: cfg}

	b := newBridge()
	scroller := highlight.NewAutoScroller(b, highlight.DefaultScrollConfig(), nil)
	sync := highlight.NewSynchronizer(doc, b, scroller)
	ctrl := controller.New(controller.Options{
		Document:     doc,
		Streamer:     deps.Streamer,
		Settings:     deps.Settings,
		Media:        deps.Media,
		Synchronizer: sync,
		Chime:        deps.Chime,
		Presenter:    b,
		Config:       deps.Controller,
	})

	return model{
		common:   &common,
		pager:    newPagerModel(&common, doc),
		dialog:   newDialogModel(deps.Settings),
		ctrl:     ctrl,
		sync:     sync,
		scroller: scroller,
		bridge:   b,
		store:    deps.Settings,

		autoScroll: true,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.bridge.wait()}
	if m.common.cfg.Path != "" {
		cmds = append(cmds, m.pager.watchFile)
	}
	if !settings.Load(m.store).HasAPIKey() {
		cmds = append(cmds, func() tea.Msg {
			return controller.Notice{Kind: controller.NoticeMissingCredential, Message: controller.MsgMissingCredential}
		})
	}
	return tea.Batch(cmds...)
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.ctrl.Stop()
	m.bridge.close()
	m.pager.closeWatcher()
	return m, tea.Quit
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m.quit()
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if m.dialog.open() {
			var cmd tea.Cmd
			m.dialog, cmd = m.dialog.update(msg)
			return m, cmd
		}
		if mm, cmd, ok := m.handleKey(msg); ok {
			return mm, cmd
		}

	case tea.MouseMsg:
		if m.dialog.open() {
			return m, nil
		}
		if cmd, ok := m.handleMouse(msg); ok {
			return m, cmd
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.pager.setSize(msg.Width, msg.Height)
		// The layout changed under the highlight; draw it again.
		if i := m.sync.Current(); i >= 0 {
			m.sync.Seek(i)
		}

	case bridgeMsg:
		cmds = append(cmds, m.applyBridge(m.bridge.collect()), m.bridge.wait())

	case controller.Notice:
		cmds = append(cmds, m.notice(msg))

	case keySavedMsg:
		cmds = append(cmds, m.pager.showStatusMessage(pagerStatusMessage{"API key saved", false}))

	case remoteMsg:
		cmds = append(cmds, m.remote(remote.Command(msg)))

	case hoverDwellMsg:
		if m.pager.hover.dwell(msg.seq) {
			m.pager.refresh()
		}
		return m, nil

	case hoverHideMsg:
		if m.pager.hover.hide(msg.seq) {
			m.pager.refresh()
		}
		return m, nil

	case reloadMsg:
		return m, loadDocument(m.common.cfg.Path)

	case documentLoadedMsg:
		log.Info("Document reloaded", "path", m.common.cfg.Path)
		m.pager.doc.Replace(msg.doc)
		m.pager.hover.dismiss()
		m.pager.clearSelection()
		m.pager.refresh()
		cmds = append(cmds, m.pager.watchFile)

	case errMsg:
		cmds = append(cmds, m.pager.showStatusMessage(pagerStatusMessage{msg.Error(), true}))
	}

	before := m.pager.viewport.YOffset
	newPagerModel, cmd := m.pager.update(msg)
	m.pager = newPagerModel
	cmds = append(cmds, cmd)
	if m.pager.viewport.YOffset != before && userScroll(msg) {
		m.pager.cancelScroll()
		m.scroller.NoteManualScroll()
	}
	m.bridge.setVisible(m.pager.visible())

	return m, tea.Batch(cmds...)
}

// userScroll reports whether msg is input the viewport scrolls on.
func userScroll(msg tea.Msg) bool {
	switch msg.(type) {
	case tea.KeyMsg, tea.MouseMsg:
		return true
	}
	return false
}

// handleKey runs reader keys. ok is false for keys the pager should see.
func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q":
		mm, cmd := m.quit()
		return mm, cmd, true

	case "ctrl+z":
		return m, tea.Suspend, true

	case "ctrl+h":
		return m, m.activate(), true

	case keyEnter:
		if m.pager.hover.visible {
			return m, m.readFrom(m.pager.hover.node), true
		}
		return m, nil, true

	case " ":
		m.ctrl.TogglePause()
		return m, nil, true

	case "s":
		m.ctrl.Stop()
		return m, nil, true

	case keyEsc:
		m.pager.state = pagerStateBrowse
		m.pager.clearSelection()
		if m.pager.hover.visible {
			m.pager.hover.dismiss()
			m.pager.refresh()
		}
		return m, nil, true

	case "K":
		return m, m.dialog.promptKey("Enter your ElevenLabs API key."), true

	case "a":
		m.autoScroll = !m.autoScroll
		m.scroller.SetEnabled(m.autoScroll)
		note := "Auto-scroll off"
		if m.autoScroll {
			note = "Auto-scroll on"
		}
		return m, m.pager.showStatusMessage(pagerStatusMessage{note, false}), true

	case "c":
		text := m.pager.selectedText()
		if text == "" {
			return m, m.pager.showStatusMessage(pagerStatusMessage{"Nothing selected", false}), true
		}
		// Copy using OSC 52
		te.Copy(text)
		// Copy using native system clipboard
		_ = clipboard.WriteAll(text)
		return m, m.pager.showStatusMessage(pagerStatusMessage{"Copied selection", false}), true

	case "r":
		if m.common.cfg.Path == "" {
			return m, m.pager.showStatusMessage(pagerStatusMessage{"Only local files can be reloaded", false}), true
		}
		return m, loadDocument(m.common.cfg.Path), true
	}
	return m, nil, false
}

// activate is the ctrl+h trigger: the selection, or the clipboard when
// nothing is selected.
func (m *model) activate() tea.Cmd {
	text := m.pager.selectedText()
	if text == "" && !m.ctrl.Mode().Active() {
		clip, err := clipboard.ReadAll()
		if err != nil {
			log.Debug("Could not read the clipboard", "err", err)
		}
		text = clip
	}
	if err := m.ctrl.Activate(text); err != nil {
		return m.startError(err)
	}
	return nil
}

func (m *model) readFrom(id page.NodeID) tea.Cmd {
	m.pager.hover.dismiss()
	m.pager.refresh()
	if err := m.ctrl.ReadFrom(id); err != nil {
		return m.startError(err)
	}
	return nil
}

// startError reports a trigger that could not start reading. Failures the
// controller already announced are not repeated.
func (m *model) startError(err error) tea.Cmd {
	switch {
	case errors.Is(err, controller.ErrEmptyText):
		return m.pager.showStatusMessage(pagerStatusMessage{"Select some text or copy it to the clipboard first", false})
	case errors.Is(err, controller.ErrNotEnoughText), errors.Is(err, synth.ErrMissingAPIKey):
		return nil
	}
	log.Debug("Could not start reading", "err", err)
	return nil
}

func (m *model) handleMouse(msg tea.MouseMsg) (tea.Cmd, bool) {
	if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
		return nil, false
	}
	c, inside := m.pager.cellAt(msg.X, msg.Y)
	if !inside {
		return nil, true
	}
	layout := m.pager.doc.Layout()

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return nil, true
		}
		if m.pager.hover.onControl(c) {
			return m.readFrom(m.pager.hover.node), true
		}
		m.pager.selecting = true
		m.pager.hasSelection = false
		m.pager.selStart, m.pager.selEnd = c, c
		m.pager.refresh()
		return nil, true

	case tea.MouseActionMotion:
		if m.pager.selecting && msg.Button == tea.MouseButtonLeft {
			m.pager.selEnd = c
			m.pager.hasSelection = m.pager.selStart != m.pager.selEnd
			m.pager.refresh()
			return nil, true
		}
		id, onText := layout.NodeAt(c.line, c.col)
		onText = onText && c.col < layout.LineEnd(c.line)
		switch action, seq := m.pager.hover.move(c, id, onText); action {
		case hoverStartDwell:
			return tea.Tick(m.common.cfg.hoverDelay(), func(time.Time) tea.Msg { return hoverDwellMsg{seq} }), true
		case hoverStartHide:
			return tea.Tick(m.common.cfg.hideDelay(), func(time.Time) tea.Msg { return hoverHideMsg{seq} }), true
		}
		return nil, true

	case tea.MouseActionRelease:
		if !m.pager.selecting {
			return nil, true
		}
		m.pager.selecting = false
		if m.pager.hasSelection {
			log.Debug("Selected", "text", m.pager.selectedText())
			return nil, true
		}
		// A click outside the text pauses reading.
		if _, onText := layout.NodeAt(c.line, c.col); !onText && m.ctrl.Mode() == playback.ModeSpeaking {
			m.ctrl.Pause()
		}
		return nil, true
	}
	return nil, true
}

// applyBridge brings the pager up to date with the controller.
func (m *model) applyBridge(u bridgeUpdate) tea.Cmd {
	var cmds []tea.Cmd
	if u.rectDirty {
		m.pager.highlight = u.rect
		m.pager.refresh()
	}
	if u.scrollDirty {
		cmds = append(cmds, m.pager.scrollTo(u.scrollTo))
	}
	if u.snapSet {
		cmds = append(cmds, m.pager.setSnapshot(u.snapshot))
	}
	for _, n := range u.notices {
		cmds = append(cmds, m.notice(n))
	}
	return tea.Batch(cmds...)
}

func (m *model) notice(n controller.Notice) tea.Cmd {
	if n.Err != nil {
		log.Info("Notice", "kind", n.Kind, "err", n.Err)
	}
	if !n.Blocking() {
		return m.pager.showStatusMessage(pagerStatusMessage{n.Message, false})
	}
	return m.dialog.push(n)
}

// remote runs a command received from outside the terminal.
func (m *model) remote(c remote.Command) tea.Cmd {
	log.Debug("Remote command", "action", c.Action)
	switch c.Action {
	case remote.ActionStop:
		m.ctrl.Stop()
	case remote.ActionPause:
		m.ctrl.Pause()
	case remote.ActionResume:
		m.ctrl.Resume()
	case remote.ActionReadOutLoud:
		text := c.Text
		if text == "" {
			text = m.pager.selectedText()
		}
		if text != "" {
			if err := m.ctrl.Play(text); err != nil {
				return m.startError(err)
			}
			return nil
		}
		// Nothing given or selected: read from the top of the view.
		top, _ := m.pager.visible()
		layout := m.pager.doc.Layout()
		for line := top; line < len(m.pager.lines); line++ {
			if id, ok := layout.NodeAt(line, 0); ok {
				return m.readFrom(id)
			}
		}
		return m.pager.showStatusMessage(pagerStatusMessage{controller.MsgNotEnoughText, false})
	}
	return nil
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}
	if m.dialog.open() {
		return m.dialog.view(m.common.width, m.common.height)
	}
	return m.pager.View()
}

func errorView(err error, fatal bool) string {
	exitMsg := "press any key to "
	if fatal {
		exitMsg += "exit"
	} else {
		exitMsg += "return"
	}
	s := fmt.Sprintf("%s\n\n%v\n\n%s",
		errorTitleStyle.Render("ERROR"),
		err,
		subtleStyle.Render(exitMsg),
	)
	return "\n" + indent(s, 3)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for _, v := range l {
		fmt.Fprintf(&b, "%s%s\n", i, v)
	}
	return b.String()
}
