package ui

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	"github.com/dgnsrekt/tartil/internal/catalog"
	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/audio"
	"github.com/dgnsrekt/tartil/recite/sync"
)

const (
	statusBarHeight = 1
	offsetStep      = 50 * time.Millisecond

	// sourceFallbackDelay is how long a source error stays on screen
	// before the reciter picker opens.
	sourceFallbackDelay = 2 * time.Second
)

var (
	readerHelpHeight int

	mintGreen = lipgloss.AdaptiveColor{Light: "#89F0CB", Dark: "#89F0CB"}
	darkGreen = lipgloss.AdaptiveColor{Light: "#1C8760", Dark: "#1C8760"}
	errorRed  = lipgloss.AdaptiveColor{Light: "#FFD6DF", Dark: "#FFD6DF"}
	darkRed   = lipgloss.AdaptiveColor{Light: "#A3243F", Dark: "#A3243F"}

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

	statusBarErrorStyle = lipgloss.NewStyle().
				Foreground(errorRed).
				Background(darkRed).
				Render

	helpViewStyle = lipgloss.NewStyle().
			Foreground(statusBarNoteFg).
			Background(lipgloss.AdaptiveColor{Light: "#f2f2f2", Dark: "#1B1B1B"}).
			Render
)

type readerState int

const (
	readerStateBrowse readerState = iota
	readerStateStatusMessage
)

type readerStatusMessage struct {
	message string
	isError bool
}

// audioSource is where surah audio comes from: a moshaf picked from the
// catalog, or a bare server from the configuration.
type audioSource struct {
	reciter catalog.Reciter
	moshaf  catalog.Moshaf
	server  string
}

func serverSource(server string) audioSource {
	return audioSource{server: server}
}

func moshafSource(r catalog.Reciter, m catalog.Moshaf) audioSource {
	return audioSource{reciter: r, moshaf: m, server: m.Server}
}

func (s audioSource) url(surah int) string {
	return audio.URL(s.server, surah)
}

func (s audioSource) label() string {
	if s.reciter.Name == "" {
		return ""
	}
	return s.reciter.Name
}

// next returns the surah that follows surah in this source.
func (s audioSource) next(surah int) (int, bool) {
	if s.moshaf.ID != 0 {
		return s.moshaf.Next(surah)
	}
	if surah < catalog.SurahCount {
		return surah + 1, true
	}
	return 0, false
}

// readerModel shows one surah and drives its recitation.
type readerModel struct {
	common   *commonModel
	viewport viewport.Model
	state    readerState
	showHelp bool

	statusMessage      readerStatusMessage
	statusMessageTimer *time.Timer

	surah       catalog.Surah
	ayahs       []catalog.Ayah
	loadingText bool
	textErr     error
	headerLines int

	session  *sync.Session
	scroll   *scrollDirector
	source   audioSource
	playback playbackStatus
	tickGen  uint64
}

func newReaderModel(common *commonModel) readerModel {
	vp := viewport.New(0, 0)
	vp.YPosition = 0

	return readerModel{
		common:   common,
		state:    readerStateBrowse,
		viewport: vp,
		scroll:   newScrollDirector(),
		source:   serverSource(common.cfg.Playback.Server),
		playback: newPlaybackStatus(),
	}
}

func (m *readerModel) setSize(w, h int) {
	m.viewport.Width = w
	m.viewport.Height = h - statusBarHeight

	if m.showHelp {
		if readerHelpHeight == 0 {
			readerHelpHeight = strings.Count(m.helpView(), "\n")
		}
		m.viewport.Height -= (statusBarHeight + readerHelpHeight)
	}
}

func (m *readerModel) toggleHelp() {
	m.showHelp = !m.showHelp
	m.setSize(m.common.width, m.common.height)
	if m.viewport.PastBottom() {
		m.viewport.GotoBottom()
	}
}

func (m *readerModel) showStatusMessage(msg readerStatusMessage) tea.Cmd {
	m.state = readerStateStatusMessage
	m.statusMessage = msg
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	m.statusMessageTimer = time.NewTimer(statusMessageTimeout)

	return waitForStatusMessageTimeout(m.statusMessageTimer)
}

func (m *readerModel) showError(err error) tea.Cmd {
	log.Warn("reader", "error", err)
	return m.showStatusMessage(readerStatusMessage{message: err.Error(), isError: true})
}

// ensureSession starts a playback session if there is none. Without a
// working player the reader shows text only.
func (m *readerModel) ensureSession() error {
	if m.session != nil {
		return nil
	}
	if m.common.deps.NewPlayer == nil {
		m.playback.state = playbackNoAudio
		return nil
	}
	player, err := m.common.deps.NewPlayer()
	if err != nil {
		m.playback.state = playbackNoAudio
		return fmt.Errorf("audio disabled: %w", err)
	}
	cfg := m.common.cfg.Playback
	s, err := sync.NewSession(sync.SessionConfig{
		Player:   player,
		Loader:   m.common.deps.Timings,
		Scroller: m.scroll,
		Offset:   m.common.deps.Offset,
		Sync:     cfg.Sync,
		Rate:     cfg.Rate,
	})
	if err != nil {
		_ = player.Close()
		m.playback.state = playbackNoAudio
		return fmt.Errorf("audio disabled: %w", err)
	}
	m.session = s
	m.playback.rate = s.Rate.Current()
	m.playback.offset = s.Offset.Get()
	return nil
}

// load switches the reader to surah: text, timings and audio are fetched
// concurrently. The current ayah is cleared at once.
func (m *readerModel) load(s catalog.Surah) tea.Cmd {
	m.scroll.stop()
	m.surah = s
	m.ayahs = nil
	m.textErr = nil
	m.loadingText = true
	m.viewport.SetContent("")
	m.viewport.GotoTop()
	m.playback.ayah = -1
	m.playback.total = 0
	m.playback.synced = false
	m.playback.position = 0
	m.tickGen++

	var cmds []tea.Cmd
	if err := m.ensureSession(); err != nil {
		cmds = append(cmds, m.showError(err))
	}
	if m.common.deps.Catalog != nil {
		cmds = append(cmds, loadSurahText(m.common.deps.Catalog, s.Number))
	}
	if m.session == nil {
		return tea.Batch(cmds...)
	}

	first := m.session.Controller.Surah() == 0
	load := m.session.Controller.SelectSurah(s.Number)
	m.playback.state = playbackLoading
	cmds = append(cmds,
		loadTimings(load),
		recite.LoadAudioCmd(m.session.Context(), m.session.Player, m.source.url(s.Number), s.Number),
	)
	if first {
		cmds = append(cmds, recite.WaitForEndCmd(m.session.Context(), m.session.Player, s.Number))
	}
	return tea.Batch(cmds...)
}

// reloadAudio fetches the current surah again from a new source.
func (m *readerModel) reloadAudio(src audioSource) tea.Cmd {
	m.source = src
	if m.session == nil || m.surah.Number == 0 {
		return nil
	}
	m.tickGen++
	m.playback.state = playbackLoading
	m.playback.position = 0
	return recite.LoadAudioCmd(m.session.Context(), m.session.Player, src.url(m.surah.Number), m.surah.Number)
}

// close ends the playback session.
func (m *readerModel) close() {
	m.scroll.stop()
	m.tickGen++
	if m.statusMessageTimer != nil {
		m.statusMessageTimer.Stop()
	}
	if m.session != nil {
		if err := m.session.Close(); err != nil {
			log.Warn("closing playback session", "error", err)
		}
		m.session = nil
	}
	m.playback = newPlaybackStatus()
	m.state = readerStateBrowse
}

func (m *readerModel) currentAyah() int {
	if m.session == nil {
		return sync.None
	}
	idx, _ := m.session.Controller.Current()
	// Timings can count verses the text lacks, a basmala for example.
	if len(m.ayahs) > 0 && idx >= len(m.ayahs) {
		return sync.None
	}
	return idx
}

// focusAyah is the ayah actions apply to: the current one while synced,
// otherwise the first one in view. It is always an index into m.ayahs
// once the text has loaded.
func (m *readerModel) focusAyah() int {
	idx := m.currentAyah()
	if idx == sync.None {
		idx = m.scroll.ayahAt(m.viewport.YOffset)
	}
	return max(0, min(idx, len(m.ayahs)-1))
}

// checkTimings logs a timing table whose verse count differs from the text.
func (m *readerModel) checkTimings() {
	if m.session == nil || len(m.ayahs) == 0 {
		return
	}
	if tbl := m.session.Controller.Table(); tbl != nil && tbl.Len() != len(m.ayahs) {
		log.Debug("timing table does not match the text", "surah", m.surah.Number, "verses", tbl.Len(), "ayahs", len(m.ayahs))
	}
}

func (m *readerModel) render() {
	if len(m.ayahs) == 0 {
		return
	}
	width := m.viewport.Width
	if maxW := int(m.common.cfg.ReaderMaxWidth); maxW > 0 && width > maxW { //nolint:gosec
		width = maxW
	}

	header := surahHeader(m.surah, width)
	m.headerLines = strings.Count(header, "\n")

	body, anchors := renderAyahs(m.ayahs, m.currentAyah(), renderOptions{
		width:       width,
		translation: m.common.cfg.ShowTranslation,
		numbers:     m.common.cfg.ShowAyahNumbers,
	})
	for i := range anchors {
		anchors[i] += m.headerLines
	}
	m.scroll.setAnchors(anchors)
	m.viewport.SetContent(header + body)
}

// verseChanged re-renders the highlight and starts a pending scroll.
func (m *readerModel) verseChanged() tea.Cmd {
	m.playback.ayah = m.currentAyah()
	m.render()
	return m.scroll.start(m.viewport.Height, m.maxYOffset())
}

func (m readerModel) maxYOffset() int {
	return max(0, m.viewport.TotalLineCount()-m.viewport.Height)
}

func (m readerModel) verseRef() verseRef {
	v := verseRef{
		surah:     m.surah.Number,
		ayah:      m.focusAyah() + 1,
		reciterID: m.source.reciter.ID,
	}
	if m.session != nil && m.playback.state == playbackPlaying {
		v.playing = true
		v.position = m.session.Player.Position()
	}
	return v
}

func (m readerModel) update(msg tea.Msg) (readerModel, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case surahTextMsg:
		if msg.surah != m.surah.Number {
			return m, nil
		}
		m.loadingText = false
		if msg.err != nil {
			m.textErr = msg.err
			return m, m.showError(fmt.Errorf("unable to load surah %d: %w", msg.surah, msg.err))
		}
		m.surah = msg.detail.Surah
		m.ayahs = msg.detail.Ayahs
		m.playback.total = len(m.ayahs)
		m.checkTimings()
		m.render()
		// Samples may have arrived before there was anything to scroll to.
		if m.session != nil && m.session.Controller.Snapshot().AutoScroll {
			m.scroll.ScrollToVerse(m.currentAyah())
		}
		cmds = append(cmds, m.scroll.start(m.viewport.Height, m.maxYOffset()))

	case timingLoadedMsg:
		if m.session == nil {
			return m, nil
		}
		res := sync.LoadResult(msg)
		// A missing or malformed asset only disables sync; the controller
		// logs it.
		if m.session.Controller.ApplyLoad(res) {
			m.playback.synced = true
			m.checkTimings()
			gen, ch := m.session.Controller.Samples()
			return m, recite.WaitForSampleCmd(gen, ch)
		}

	case recite.SampleMsg:
		if m.session == nil {
			return m, nil
		}
		gen, ch := m.session.Controller.Samples()
		if msg.Gen != gen {
			return m, nil
		}
		m.playback.update(msg)
		if m.session.Controller.Observe(msg.Position) {
			cmds = append(cmds, m.verseChanged())
		}
		cmds = append(cmds, recite.WaitForSampleCmd(gen, ch))
		return m, tea.Batch(cmds...)

	case recite.AudioLoadedMsg:
		if m.session == nil || msg.Surah != m.surah.Number {
			return m, nil
		}
		m.playback.update(msg)
		cmds = append(cmds, recite.PlayCmd(m.session.Player))
		if rate := m.session.Rate.Current(); rate != recite.DefaultRate {
			cmds = append(cmds, recite.SetRateCmd(m.session.Player, rate))
		}
		return m, tea.Batch(cmds...)

	case recite.PlayingMsg:
		m.playback.update(msg)
		m.tickGen++
		return m, positionTick(m.tickGen)

	case recite.PausedMsg:
		m.playback.update(msg)
		m.tickGen++

	case recite.RateChangedMsg:
		m.playback.update(msg)
		return m, m.showStatusMessage(readerStatusMessage{message: "Speed " + recite.FormatRate(msg.Rate)})

	case recite.PlaybackErrorMsg:
		m.playback.update(msg)
		return m, m.playbackError(msg)

	case positionTickMsg:
		if msg.gen != m.tickGen || m.session == nil || m.playback.state != playbackPlaying {
			return m, nil
		}
		m.playback.position = m.session.Player.Position()
		return m, positionTick(m.tickGen)

	case scrollFrameMsg:
		y, next := m.scroll.step(msg, m.viewport.YOffset)
		m.viewport.SetYOffset(y)
		return m, next

	case storeResultMsg:
		if msg.err != nil {
			return m, m.showError(msg.err)
		}
		return m, m.showStatusMessage(readerStatusMessage{message: msg.message})

	case tea.WindowSizeMsg:
		m.render()

	case statusMessageTimeoutMsg:
		m.state = readerStateBrowse
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *readerModel) playbackError(msg recite.PlaybackErrorMsg) tea.Cmd {
	if msg.IsSourceError() {
		m.tickGen++
		surah := m.surah.Number
		text := "Audio unavailable"
		if name := m.source.label(); name != "" {
			text += " from " + name
		}
		return tea.Batch(
			m.showStatusMessage(readerStatusMessage{message: text + "; choose another reciter", isError: true}),
			tea.Tick(sourceFallbackDelay, func(time.Time) tea.Msg {
				return sourceFallbackMsg{surah: surah}
			}),
		)
	}
	if errors.Is(msg.Err, recite.ErrRateUnsupported) && m.session != nil {
		_ = m.session.Rate.Set(recite.DefaultRate)
		m.playback.rate = recite.DefaultRate
		return m.showStatusMessage(readerStatusMessage{message: "This player cannot change speed", isError: true})
	}
	return m.showError(fmt.Errorf("%s %s: %w", msg.Component, msg.Action, msg.Err))
}

// handleKey processes reader keys. Keys it does not handle go on to the
// viewport.
func (m *readerModel) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "home", "g":
		m.viewport.GotoTop()
	case "end", "G":
		m.viewport.GotoBottom()
	case "d":
		m.viewport.HalfViewDown()
	case "u":
		m.viewport.HalfViewUp()

	case " ":
		return m.togglePlay(), true

	case "right", "l":
		return m.step(true), true
	case "left", "h":
		return m.step(false), true

	case "]":
		if m.session == nil {
			return nil, true
		}
		return recite.SetRateCmd(m.session.Player, m.session.Rate.Faster()), true
	case "[":
		if m.session == nil {
			return nil, true
		}
		return recite.SetRateCmd(m.session.Player, m.session.Rate.Slower()), true

	case "+", "=":
		return m.shiftOffset(offsetStep), true
	case "-", "_":
		return m.shiftOffset(-offsetStep), true
	case "0":
		return m.shiftOffset(0), true

	case "a":
		if m.session == nil {
			return nil, true
		}
		on := !m.session.Controller.Snapshot().AutoScroll
		m.session.Controller.SetAutoScroll(on)
		text := "Auto-scroll off"
		if on {
			text = "Auto-scroll on"
		}
		return m.showStatusMessage(readerStatusMessage{message: text}), true

	case "c":
		return m.copyAyah(), true

	case "b", "f", "D", "m":
		return m.storeAction(msg.String()), true

	case "?":
		m.toggleHelp()

	default:
		return nil, false
	}
	return nil, true
}

func (m *readerModel) togglePlay() tea.Cmd {
	if m.session == nil {
		return m.showStatusMessage(readerStatusMessage{message: "No audio player", isError: true})
	}
	switch m.playback.state {
	case playbackPlaying:
		return recite.PauseCmd(m.session.Player)
	case playbackPaused:
		return recite.PlayCmd(m.session.Player)
	case playbackError:
		return m.reloadAudio(m.source)
	}
	return nil
}

func (m *readerModel) step(forward bool) tea.Cmd {
	if m.session == nil || m.session.Controller.Table() == nil {
		return m.showStatusMessage(readerStatusMessage{message: "No verse timings for this surah"})
	}
	var moved bool
	if forward {
		moved = m.session.Controller.Next()
	} else {
		moved = m.session.Controller.Previous()
	}
	if !moved {
		return nil
	}
	return m.verseChanged()
}

// shiftOffset moves the sync offset by d; zero resets it to the
// configured value.
func (m *readerModel) shiftOffset(d time.Duration) tea.Cmd {
	if m.session == nil {
		return nil
	}
	var now time.Duration
	if d == 0 {
		now = m.common.cfg.Playback.Sync.Offset
		m.session.Offset.Set(now)
	} else {
		now = m.session.Offset.Add(d)
	}
	m.playback.offset = now
	return m.showStatusMessage(readerStatusMessage{message: "Sync offset " + formatOffset(now)})
}

func (m *readerModel) copyAyah() tea.Cmd {
	if len(m.ayahs) == 0 {
		return nil
	}
	a := m.ayahs[m.focusAyah()]
	text := a.Text
	if a.Translation != "" {
		text += "\n" + a.Translation
	}
	text += fmt.Sprintf("\n(%d:%d)", m.surah.Number, a.NumberInSurah)

	// Copy using OSC 52
	termenv.Copy(text)
	// Copy using native system clipboard
	_ = clipboard.WriteAll(text)
	return m.showStatusMessage(readerStatusMessage{message: fmt.Sprintf("Copied %d:%d", m.surah.Number, a.NumberInSurah)})
}

func (m *readerModel) storeAction(key string) tea.Cmd {
	st := m.common.deps.Store
	if st == nil {
		return m.showStatusMessage(readerStatusMessage{message: "No store configured", isError: true})
	}
	if len(m.ayahs) == 0 {
		return nil
	}

	switch key {
	case "b":
		return bookmarkCmd(st, m.verseRef())
	case "f":
		return favoriteCmd(st, m.verseRef())
	case "m":
		return practiceCmd(st, m.surah)
	case "D":
		if m.source.reciter.ID == 0 {
			return m.showStatusMessage(readerStatusMessage{message: "Choose a reciter first (R)", isError: true})
		}
		if m.common.deps.Fetcher == nil || m.common.cfg.DownloadDir == "" {
			return m.showStatusMessage(readerStatusMessage{message: "Downloads are not configured", isError: true})
		}
		text := fmt.Sprintf("Downloading surah %d…", m.surah.Number)
		return tea.Batch(
			m.showStatusMessage(readerStatusMessage{message: text}),
			downloadCmd(st, m.common.deps.Fetcher, m.common.cfg.DownloadDir,
				m.source.url(m.surah.Number), m.surah.Number, m.source.reciter.ID),
		)
	}
	return nil
}

func (m readerModel) View() string {
	var b strings.Builder

	switch {
	case m.loadingText:
		fmt.Fprint(&b, indent(subtleStyle.Render("Loading surah…"), 2))
		fmt.Fprint(&b, strings.Repeat("\n", max(0, m.viewport.Height-2)))
	case m.textErr != nil && len(m.ayahs) == 0:
		fmt.Fprint(&b, errorView(m.textErr, false))
		fmt.Fprint(&b, strings.Repeat("\n", max(0, m.viewport.Height-7)))
	default:
		fmt.Fprint(&b, m.viewport.View()+"\n")
	}

	// Footer
	m.statusBarView(&b)

	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}

	return b.String()
}

func (m readerModel) statusBarView(b *strings.Builder) {
	const (
		minPercent               float64 = 0.0
		maxPercent               float64 = 1.0
		percentToStringMagnitude float64 = 100.0
	)

	showStatusMessage := m.state == readerStateStatusMessage
	render := statusBarNoteStyle
	if showStatusMessage {
		render = statusBarMessageStyle
		if m.statusMessage.isError {
			render = statusBarErrorStyle
		}
	}

	logo := logoView()

	percent := math.Max(minPercent, math.Min(maxPercent, m.viewport.ScrollPercent()))
	scrollPercent := fmt.Sprintf(" %3.f%% ", percent*percentToStringMagnitude)
	if showStatusMessage {
		scrollPercent = render(scrollPercent)
	} else {
		scrollPercent = statusBarScrollPosStyle(scrollPercent)
	}

	helpNote := statusBarHelpStyle(" ? Help ")

	var note string
	if showStatusMessage {
		note = m.statusMessage.message
	} else {
		parts := []string{m.surah.EnglishName}
		if name := m.source.label(); name != "" {
			parts = append(parts, name)
		}
		if p := m.playback.compact(); p != "" {
			parts = append(parts, p)
		}
		note = strings.Join(parts, " · ")
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)), ellipsis)
	note = render(note)

	// Empty space
	padding := max(0,
		m.common.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(scrollPercent)-
			ansi.PrintableRuneWidth(helpNote),
	)
	emptySpace := render(strings.Repeat(" ", padding))

	fmt.Fprintf(b, "%s%s%s%s%s",
		logo,
		note,
		emptySpace,
		scrollPercent,
		helpNote,
	)
}

func (m readerModel) helpView() (s string) {
	col1 := []string{
		"space    play/pause",
		"←/h →/l  previous/next ayah",
		"[ ]      slower/faster",
		"- +      sync offset (0 resets)",
		"a        toggle auto-scroll",
		"R        choose reciter",
		"< >      previous/next surah",
	}
	col2 := []string{
		"b        bookmark ayah",
		"f        favorite ayah",
		"m        log memorization practice",
		"D        download surah audio",
		"c        copy ayah",
		"esc      back to surahs",
		"q        quit",
	}

	s += "\n"
	s += "k/↑      up                  " + col1[0] + "   " + col2[0] + "\n"
	s += "j/↓      down                " + col1[1] + "   " + col2[1] + "\n"
	s += "pgup     page up             " + col1[2] + "   " + col2[2] + "\n"
	s += "pgdn     page down           " + col1[3] + "   " + col2[3] + "\n"
	s += "u        ½ page up           " + col1[4] + "   " + col2[4] + "\n"
	s += "d        ½ page down         " + col1[5] + "   " + col2[5] + "\n"
	s += "g/G      top/bottom          " + col1[6] + "   " + col2[6]

	s = indent(s, 2)

	// Fill up empty cells with spaces for background coloring
	if m.common.width > 0 {
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines); i++ {
			l := runewidth.StringWidth(lines[i])
			n := max(m.common.width-l, 0)
			lines[i] += strings.Repeat(" ", n)
		}

		s = strings.Join(lines, "\n")
	}

	return helpViewStyle(s)
}
