package ui

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/readaloud/internal/controller"
	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/playback"
	"github.com/dgnsrekt/readaloud/utils"
)

const (
	statusBarHeight = 1
	scrollFrame     = 16 * time.Millisecond
)

var (
	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}

	statusBarNoteFg = lipgloss.AdaptiveColor{Light: "#656565", Dark: "#7D7D7D"}
	statusBarBg     = lipgloss.AdaptiveColor{Light: "#E6E6E6", Dark: "#242424"}

	statusBarScrollPosStyle = lipgloss.NewStyle().
				Foreground(lipgloss.AdaptiveColor{Light: "#949494", Dark: "#5A5A5A"}).
				Background(statusBarBg).
				Render

	statusBarNoteStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(statusBarBg).
				Render

	statusBarHelpStyle = lipgloss.NewStyle().
				Foreground(statusBarNoteFg).
				Background(lipgloss.AdaptiveColor{Light: "#DCDCDC", Dark: "#323232"}).
				Render

	statusBarMessageStyle = lipgloss.NewStyle().
				Foreground(mintGreen).
				Background(darkGreen).
				Render

	statusBarMessageHelpStyle = lipgloss.NewStyle().
					Foreground(lipgloss.Color("#B6FFE4")).
					Background(green).
					Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

const helpMarkdown = `## Reading

| Key | Action |
|---|---|
| ctrl+h | read the selection or clipboard, or stop |
| enter | read from the hovered paragraph |
| space | pause or resume |
| s | stop |
| K | set the API key |
| a | toggle auto-scroll |

## Page

| Key | Action |
|---|---|
| k/↑ j/↓ | scroll |
| g G | top, bottom |
| c | copy the selection |
| r | reload |
| esc | clear the selection |
| q | quit |

Hover over a paragraph and click ▶ to read from there. Drag to select text.
Click an empty line to pause.
`

type (
	reloadMsg               struct{}
	scrollTickMsg           struct{}
	documentLoadedMsg       struct{ doc *page.Document }
	statusMessageTimeoutMsg struct{}
)

type pagerState int

const (
	pagerStateBrowse pagerState = iota
	pagerStateStatusMessage
)

type pagerModel struct {
	common   *commonModel
	viewport viewport.Model
	doc      *page.Document
	state    pagerState
	showHelp bool
	help     string

	statusMessage      string
	statusMessageTimer *time.Timer

	// Plain layout lines of the current render
	lines []string

	highlight page.Rect
	hover     hoverState

	selecting    bool
	hasSelection bool
	selStart     cell
	selEnd       cell

	scrollTarget int
	scrolling    bool

	snapshot controller.Snapshot
	spinner  spinner.Model
	spinning bool

	watcher *fsnotify.Watcher
}

func newPagerModel(common *commonModel, doc *page.Document) pagerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(fuchsia)

	m := pagerModel{
		common:   common,
		viewport: vp,
		doc:      doc,
		spinner:  sp,
	}
	m.snapshot.CurrentWord = -1
	m.initWatcher()
	return m
}

func (m *pagerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight

	width := w
	if limit := int(m.common.cfg.MaxWidth); limit > 0 { //nolint:gosec
		width = min(width, limit)
	}
	m.doc.SetWidth(max(width, 1))
	m.help = renderHelp(m.common.cfg.GlamourStyle, w)

	if m.showHelp {
		m.viewport.Height -= strings.Count(m.helpView(), "\n") + 1
	}
	m.viewport.Height = max(m.viewport.Height, 1)
	m.refresh()
}

func (m *pagerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

type pagerStatusMessage struct {
	message string
	isError bool
}

func (m *pagerModel) showStatusMessage(msg pagerStatusMessage) tea.Cmd {
	m.state = pagerStateStatusMessage
	m.statusMessage = msg.message
	if msg.isError {
		log.Warn("Status", "message", msg.message)
	}
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

// refresh repaints the page: selection, word highlight and hover control.
func (m *pagerModel) refresh() {
	m.lines = m.doc.Lines()
	m.viewport.SetContent(strings.Join(m.paintLines(m.lines), "\n"))
}

func (m pagerModel) paintLines(lines []string) []string {
	out := append([]string(nil), lines...)

	var sel []cellSpan
	if m.hasSelection {
		sel = selectionSpans(m.selStart, m.selEnd, lines)
	}
	selected := make(map[int]bool, len(sel))
	for _, s := range sel {
		selected[s.line] = true
	}
	var words []cellSpan
	for _, s := range rectSpans(m.highlight, lines) {
		if !selected[s.line] {
			words = append(words, s)
		}
	}
	out = paint(out, selectionStyle, sel...)
	out = paint(out, wordHighlightStyle, words...)

	if m.hover.visible && m.hover.at.line < len(out) {
		out[m.hover.at.line] = overlayControl(lines[m.hover.at.line], m.hover.at.col)
	}
	return out
}

// cellAt maps a screen position to a page cell. ok is false outside the
// document area.
func (m pagerModel) cellAt(x, y int) (cell, bool) {
	if y < 0 || y >= m.viewport.Height || x < 0 {
		return cell{}, false
	}
	return cell{line: m.viewport.YOffset + y, col: x}, true
}

// visible reports the first line shown and how many lines fit, with a
// running smooth scroll counted as done.
func (m pagerModel) visible() (int, int) {
	if m.scrolling {
		return m.scrollTarget, m.viewport.Height
	}
	return m.viewport.YOffset, m.viewport.Height
}

func (m pagerModel) selectedText() string {
	if !m.hasSelection {
		return ""
	}
	return m.doc.Layout().TextBetween(m.selStart.line, m.selStart.col, m.selEnd.line, m.selEnd.col)
}

func (m *pagerModel) clearSelection() {
	m.selecting = false
	if m.hasSelection {
		m.hasSelection = false
		m.refresh()
	}
}

// scrollTo moves the view toward top, smoothly when configured.
func (m *pagerModel) scrollTo(top int) tea.Cmd {
	top = max(min(top, m.viewport.TotalLineCount()-m.viewport.Height), 0)
	if !m.common.cfg.SmoothScroll {
		m.viewport.SetYOffset(top)
		return nil
	}
	m.scrollTarget = top
	if m.scrolling {
		return nil
	}
	m.scrolling = true
	return scrollTick()
}

// stepScroll advances a smooth scroll by one frame.
func (m *pagerModel) stepScroll() tea.Cmd {
	if !m.scrolling {
		return nil
	}
	dist := m.scrollTarget - m.viewport.YOffset
	if dist == 0 {
		m.scrolling = false
		return nil
	}
	step := dist / 4
	if step == 0 {
		step = dist / int(math.Abs(float64(dist)))
	}
	m.viewport.SetYOffset(m.viewport.YOffset + step)
	if m.viewport.YOffset == m.scrollTarget {
		m.scrolling = false
		return nil
	}
	return scrollTick()
}

func (m *pagerModel) cancelScroll() {
	m.scrolling = false
}

func (m *pagerModel) setSnapshot(s controller.Snapshot) tea.Cmd {
	m.snapshot = s
	if s.Mode == playback.ModeLoading && !m.spinning {
		m.spinning = true
		return m.spinner.Tick
	}
	return nil
}

func (m pagerModel) update(msg tea.Msg) (pagerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", keyEsc:
			if m.state != pagerStateBrowse {
				m.state = pagerStateBrowse
				return m, nil
			}
		case "home", "g":
			m.viewport.GotoTop()
		case "end", "G":
			m.viewport.GotoBottom()
		case "?":
			m.toggleHelp()
		}

	case spinner.TickMsg:
		if m.snapshot.Mode != playback.ModeLoading {
			m.spinning = false
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case scrollTickMsg:
		return m, m.stepScroll()

	case statusMessageTimeoutMsg:
		m.state = pagerStateBrowse

	case tea.WindowSizeMsg:
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m pagerModel) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

// statusNote describes the reading session for the status bar.
func (m pagerModel) statusNote() string {
	s := m.snapshot
	switch s.Mode {
	case playback.ModeLoading:
		return m.spinner.View() + " Synthesizing…"
	case playback.ModeSpeaking, playback.ModePaused:
		icon := "▶"
		if s.Mode == playback.ModePaused {
			icon = "⏸"
		}
		note := fmt.Sprintf("%s %d/%d %s/%s", icon, s.CurrentWord+1, s.Segments,
			formatDuration(s.Position), formatDuration(s.Duration))
		if !s.Complete {
			note += " · " + humanize.Bytes(uint64(max(s.Buffer.Bytes, 0))) + " buffered" //nolint:gosec
		}
		return note
	}
	if t := m.doc.Title(); t != "" {
		return t
	}
	if m.common.cfg.Path != "" {
		return filepath.Base(m.common.cfg.Path)
	}
	return "Hover a paragraph or press ctrl+h"
}

func (m pagerModel) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	showStatusMessage := m.state == pagerStateStatusMessage

	logo := logoView()

	percent := math.Max(minPercent, math.Min(maxPercent, m.viewport.ScrollPercent()))
	scrollPercent := statusBarScrollPosStyle(fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude))

	var helpNote string
	if showStatusMessage {
		helpNote = statusBarMessageHelpStyle(" ? Help ")
	} else {
		helpNote = statusBarHelpStyle(" ? Help ")
	}

	note := m.statusNote()
	if showStatusMessage {
		note = m.statusMessage
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	if showStatusMessage {
		note = statusBarMessageStyle(note)
	} else {
		note = statusBarNoteStyle(note)
	}

	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		scrollPercent,
		helpNote,
	)
}

func (m pagerModel) helpView() string {
	s := m.help
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(m.common.width-ansi.PrintableRuneWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// renderHelp renders the key reference with glamour. Failures fall back to
// the raw markdown.
func renderHelp(style string, width int) string {
	r, err := glamour.NewTermRenderer(
		utils.GlamourStyle(style),
		glamour.WithWordWrap(max(min(width, 80)-4, 20)),
	)
	if err != nil {
		log.Debug("Could not create help renderer", "err", err)
		return helpMarkdown
	}
	out, err := r.Render(helpMarkdown)
	if err != nil {
		log.Debug("Could not render help", "err", err)
		return helpMarkdown
	}
	return strings.TrimRight(out, "\n")
}

// COMMANDS

func scrollTick() tea.Cmd {
	return tea.Tick(scrollFrame, func(time.Time) tea.Msg { return scrollTickMsg{} })
}

func waitForStatusMessageTimeout(t *time.Timer) tea.Cmd {
	return func() tea.Msg {
		<-t.C
		return statusMessageTimeoutMsg{}
	}
}

func loadDocument(path string) tea.Cmd {
	return func() tea.Msg {
		doc, err := utils.LoadDocument(path)
		if err != nil {
			log.Error("unable to reload document", "file", path, "error", err)
			return errMsg{err}
		}
		return documentLoadedMsg{doc}
	}
}

func (m *pagerModel) initWatcher() {
	if m.common.cfg.Path == "" {
		return
	}
	var err error
	m.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		log.Error("error creating fsnotify watcher", "error", err)
	}
}

func (m *pagerModel) watchFile() tea.Msg {
	if m.watcher == nil {
		return nil
	}
	dir := m.localDir()

	if err := m.watcher.Add(dir); err != nil {
		log.Error("error adding dir to fsnotify watcher", "error", err)
		return nil
	}

	log.Info("fsnotify watching dir", "dir", dir)

	path, _ := filepath.Abs(m.common.cfg.Path)
	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return nil
			}
			if abs, _ := filepath.Abs(event.Name); abs != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			return reloadMsg{}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

func (m *pagerModel) closeWatcher() {
	if m.watcher == nil {
		return
	}
	if err := m.watcher.Close(); err != nil {
		log.Debug("fsnotify close failed", "error", err)
	}
}

func (m *pagerModel) localDir() string {
	return filepath.Dir(m.common.cfg.Path)
}
