// Package ui provides the terminal interface of tartil: the surah index,
// the reciter picker and the reader that follows the recitation.
package ui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/tartil/internal/catalog"
	"github.com/dgnsrekt/tartil/internal/store"
	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/timing"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "bookmarked!"
	ellipsis             = "…"

	keyEsc   = "esc"
	keyEnter = "enter"
)

// Catalog is the surah and reciter index. *catalog.Client satisfies it.
type Catalog interface {
	Surahs(ctx context.Context) ([]catalog.Surah, error)
	Surah(ctx context.Context, n int) (catalog.SurahDetail, error)
	Reciters(ctx context.Context) ([]catalog.Reciter, error)
}

// PlayerFactory opens a player backend for a new playback session.
type PlayerFactory func() (recite.Player, error)

// Deps are the services the interface talks to. Store, Fetcher and
// NewPlayer may be nil, which disables the features that need them.
type Deps struct {
	Catalog   Catalog
	Store     store.Store
	Timings   timing.Loader
	NewPlayer PlayerFactory
	Fetcher   Fetcher

	// Offset is shared with the config watcher.
	Offset *recite.LiveOffset
}

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, deps Deps) *tea.Program {
	log.Debug(
		"Starting tartil",
		"player", cfg.Playback.Player,
		"surah", cfg.Surah,
		"style", cfg.Style,
	)

	lipgloss.SetHasDarkBackground(resolveStyle(cfg.Style) == "dark")

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	m := newModel(cfg, deps)
	return tea.NewProgram(m, opts...)
}

// state is the top-level application state.
type state int

const (
	stateShowSurahs state = iota
	stateShowReciters
	stateShowReader
)

func (s state) String() string {
	return map[state]string{
		stateShowSurahs:   "showing surah index",
		stateShowReciters: "showing reciter picker",
		stateShowReader:   "showing reader",
	}[s]
}

// Common stuff we'll need to access in all models.
type commonModel struct {
	cfg    Config
	deps   Deps
	width  int
	height int
}

// pickerEntry is one row of the reciter picker.
type pickerEntry struct {
	reciter catalog.Reciter
	moshaf  catalog.Moshaf
}

type model struct {
	common   *commonModel
	state    state
	fatalErr error

	// Sub-models
	surahList listModel
	picker    listModel
	reader    readerModel

	surahs   []catalog.Surah
	reciters []catalog.Reciter
	entries  []pickerEntry
	mastery  map[int]int

	// pickerReturn is where esc leaves the picker to.
	pickerReturn state
	startup      tea.Cmd
}

func newModel(cfg Config, deps Deps) model {
	if cfg.Playback.Server == "" {
		cfg.Playback.Server = recite.DefaultAudioServer
	}
	common := &commonModel{cfg: cfg, deps: deps}

	m := model{
		common:    common,
		state:     stateShowSurahs,
		surahList: newListModel(common, "Surahs"),
		picker:    newListModel(common, "Reciters"),
		reader:    newReaderModel(common),
		mastery:   make(map[int]int),
	}

	if cfg.Surah > 0 {
		if err := timing.ValidSurah(cfg.Surah); err != nil {
			m.fatalErr = err
			return m
		}
		m.startup = m.openSurah(catalog.Surah{Number: cfg.Surah})
	}
	return m
}

func (m model) Init() tea.Cmd {
	log.Debug("Init() called", "state", m.state)
	cmds := []tea.Cmd{m.surahList.spinner.Tick, m.startup}

	if cat := m.common.deps.Catalog; cat != nil {
		cmds = append(cmds, loadSurahs(cat), loadReciters(cat))
	} else {
		cmds = append(cmds, func() tea.Msg {
			return errMsg{fmt.Errorf("no catalog configured")}
		})
	}
	cmds = append(cmds, loadProgress(m.common.deps.Store))

	return tea.Batch(cmds...)
}

// openSurah switches to the reader for s.
func (m *model) openSurah(s catalog.Surah) tea.Cmd {
	log.Debug("opening surah", "surah", s.Number)
	m.state = stateShowReader
	if s.EnglishName == "" && s.Number <= len(m.surahs) {
		s = m.surahs[s.Number-1]
	}
	return m.reader.load(s)
}

// openPicker lists the editions that contain the reader's surah.
func (m *model) openPicker(from state) tea.Cmd {
	m.pickerReturn = from
	m.state = stateShowReciters
	m.picker.resetFilter()
	m.picker.title = fmt.Sprintf("Reciters · surah %d", m.reader.surah.Number)

	if m.reciters == nil {
		return m.picker.spinner.Tick
	}
	m.entries = m.entries[:0]
	var items []listItem
	for _, r := range catalog.ForSurah(m.reciters, m.reader.surah.Number) {
		for _, ms := range r.Moshaf {
			it := listItem{title: r.Name, note: ms.Name, value: len(m.entries)}
			if ms.ID == m.reader.source.moshaf.ID && r.ID == m.reader.source.reciter.ID {
				it.badge = "♪ current"
			} else if r.Popularity == 1 {
				it.badge = "★"
			}
			items = append(items, it)
			m.entries = append(m.entries, pickerEntry{reciter: r, moshaf: ms})
		}
	}
	m.picker.setItems(items)
	if len(items) == 0 {
		m.picker.setError(fmt.Errorf("no reciter offers surah %d", m.reader.surah.Number))
	}
	return nil
}

// applyConfiguredReciter picks the reciter and moshaf named in the
// configuration once the catalog has arrived.
func (m *model) applyConfiguredReciter() tea.Cmd {
	cfg := m.common.cfg.Playback
	if cfg.Reciter == 0 || m.reader.source.moshaf.ID != 0 {
		return nil
	}
	r, ms, ok := catalog.FindMoshaf(m.reciters, cfg.Reciter, cfg.Moshaf)
	if !ok {
		log.Warn("configured reciter not found", "reciter", cfg.Reciter, "moshaf", cfg.Moshaf)
		return nil
	}
	src := moshafSource(r, ms)
	if m.state == stateShowReader && m.reader.surah.Number != 0 && ms.Has(m.reader.surah.Number) {
		return m.reader.reloadAudio(src)
	}
	m.reader.source = src
	return nil
}

func (m *model) surahItems() []listItem {
	items := make([]listItem, len(m.surahs))
	for i, s := range m.surahs {
		items[i] = listItem{
			title: fmt.Sprintf("%3d. %s", s.Number, s.EnglishName),
			note:  fmt.Sprintf("%s · %s · %d ayahs", s.Name, s.EnglishNameTranslation, s.NumberOfAyahs),
			value: s.Number,
		}
		if lvl, ok := m.mastery[s.Number]; ok {
			items[i].badge = fmt.Sprintf("◆ %d%%", lvl)
		}
	}
	return items
}

func (m *model) quit() tea.Cmd {
	m.reader.close()
	return tea.Quit
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	// If there's been an error, any key exits
	if m.fatalErr != nil {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m, m.quit()
		}
	}

	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		// Ctrl+C always quits no matter where in the application you are.
		case "ctrl+c":
			return m, m.quit()

		case "ctrl+z":
			return m, tea.Suspend

		case "q":
			if m.isFiltering() {
				break
			}
			return m, m.quit()

		case keyEsc:
			switch m.state { //nolint:exhaustive
			case stateShowReader:
				if m.reader.showHelp {
					m.reader.toggleHelp()
					return m, nil
				}
				m.reader.close()
				m.state = stateShowSurahs
				m.surahList.moveTo(m.reader.surah.Number)
				return m, nil
			case stateShowReciters:
				if m.picker.filterState == unfiltered {
					m.state = m.pickerReturn
					return m, nil
				}
			}

		case "R":
			if m.state == stateShowReader {
				return m, m.openPicker(stateShowReader)
			}

		case "<", ">", "p", "n":
			if m.state == stateShowReader {
				return m, m.stepSurah(msg.String() == ">" || msg.String() == "n")
			}
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.reader.setSize(msg.Width, msg.Height)
		m.reader.render()
		return m, nil

	case errMsg:
		m.fatalErr = msg
		return m, nil

	case surahsLoadedMsg:
		if msg.err != nil {
			m.surahList.setError(msg.err)
			return m, nil
		}
		m.surahs = msg.surahs
		m.surahList.setItems(m.surahItems())
		if m.state == stateShowReader && m.reader.surah.EnglishName == "" {
			if n := m.reader.surah.Number; n > 0 && n <= len(m.surahs) {
				m.reader.surah = m.surahs[n-1]
			}
		}
		return m, nil

	case recitersLoadedMsg:
		if msg.err != nil {
			m.picker.setError(msg.err)
			return m, nil
		}
		m.reciters = msg.reciters
		cmds = append(cmds, m.applyConfiguredReciter())
		if m.state == stateShowReciters {
			cmds = append(cmds, m.openPicker(m.pickerReturn))
		}
		return m, tea.Batch(cmds...)

	case progressLoadedMsg:
		for _, p := range msg.items {
			if p.MasteryLevel > m.mastery[p.SurahNumber] {
				m.mastery[p.SurahNumber] = p.MasteryLevel
			}
		}
		if m.surahs != nil {
			m.surahList.setItems(m.surahItems())
		}
		return m, nil

	case storeResultMsg:
		if p := msg.memorization; p != nil {
			m.mastery[p.SurahNumber] = p.MasteryLevel
			if m.surahs != nil {
				cursor := m.surahList.cursor
				m.surahList.setItems(m.surahItems())
				m.surahList.cursor = cursor
			}
		}

	case sourceFallbackMsg:
		if m.state == stateShowReader && msg.surah == m.reader.surah.Number {
			return m, m.openPicker(stateShowReader)
		}
		return m, nil

	case recite.PlaybackEndedMsg:
		return m, m.playbackEnded()
	}

	// Playback keeps running behind the picker, so its messages always
	// reach the reader.
	if isPlaybackMsg(msg) || (m.state == stateShowReader && isReaderMsg(msg)) {
		newReader, cmd := m.reader.update(msg)
		m.reader = newReader
		return m, tea.Batch(append(cmds, cmd)...)
	}

	switch m.state {
	case stateShowSurahs:
		newList, cmd := m.surahList.update(msg)
		m.surahList = newList
		cmds = append(cmds, cmd)
		if n, ok := m.surahList.takeSelection(); ok {
			cmds = append(cmds, m.openSurah(catalog.Surah{Number: n}))
		}

	case stateShowReciters:
		newList, cmd := m.picker.update(msg)
		m.picker = newList
		cmds = append(cmds, cmd)
		if i, ok := m.picker.takeSelection(); ok && i < len(m.entries) {
			e := m.entries[i]
			m.state = stateShowReader
			cmds = append(cmds, m.reader.reloadAudio(moshafSource(e.reciter, e.moshaf)))
		}

	case stateShowReader:
		newReader, cmd := m.reader.update(msg)
		m.reader = newReader
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func isPlaybackMsg(msg tea.Msg) bool {
	switch msg.(type) {
	case surahTextMsg, timingLoadedMsg, recite.SampleMsg, recite.SamplesClosedMsg,
		recite.AudioLoadedMsg, recite.PlayingMsg, recite.PausedMsg, recite.RateChangedMsg,
		recite.PlaybackErrorMsg, positionTickMsg, scrollFrameMsg, storeResultMsg:
		return true
	}
	return false
}

// isReaderMsg reports whether msg is for the reader when it is visible:
// viewport mouse events and status message timeouts.
func isReaderMsg(msg tea.Msg) bool {
	switch msg.(type) {
	case tea.MouseMsg, statusMessageTimeoutMsg:
		return true
	}
	return false
}

func (m model) isFiltering() bool {
	switch m.state { //nolint:exhaustive
	case stateShowSurahs:
		return m.surahList.filterState == filtering
	case stateShowReciters:
		return m.picker.filterState == filtering
	}
	return false
}

// stepSurah opens the next or previous surah in the index.
func (m *model) stepSurah(forward bool) tea.Cmd {
	n := m.reader.surah.Number
	if forward {
		n++
	} else {
		n--
	}
	if n < 1 || n > catalog.SurahCount {
		return nil
	}
	return m.openSurah(catalog.Surah{Number: n})
}

// playbackEnded moves on to the next surah the source offers.
func (m *model) playbackEnded() tea.Cmd {
	s := m.reader.session
	if s == nil {
		return nil
	}
	// Re-arm for the next surah before deciding anything.
	wait := recite.WaitForEndCmd(s.Context(), s.Player, m.reader.surah.Number)

	if m.reader.playback.state != playbackPlaying {
		return wait
	}
	next, ok := m.reader.source.next(m.reader.surah.Number)
	if !ok {
		m.reader.playback.state = playbackPaused
		return tea.Batch(wait, m.reader.showStatusMessage(readerStatusMessage{message: "End of recitation"}))
	}
	log.Debug("recitation ended, advancing", "from", m.reader.surah.Number, "to", next)
	if m.state == stateShowReciters {
		m.state = stateShowReader
	}
	return tea.Batch(wait, m.openSurah(catalog.Surah{Number: next}))
}

func (m model) View() string {
	if m.fatalErr != nil {
		return errorView(m.fatalErr, true)
	}

	switch m.state {
	case stateShowReader:
		return m.reader.View()
	case stateShowReciters:
		return m.picker.view()
	default:
		return m.surahList.view()
	}
}
