package ui

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const listChromeHeight = 5 // title, blank, filter, blank, footer

type filterState int

const (
	unfiltered    filterState = iota // no filter set
	filtering                        // user is actively setting a filter
	filterApplied                    // a filter is applied and user is not editing filter
)

// listItem is one selectable row. value is the index into the caller's
// own slice.
type listItem struct {
	title string
	note  string
	badge string
	value int

	filterValue string
}

func (i *listItem) buildFilterValue() {
	v, err := normalize(i.title + " " + i.note)
	if err != nil {
		log.Error("error normalizing", "item", i.title, "error", err)
		v = strings.ToLower(i.title + " " + i.note)
	}
	i.filterValue = v
}

// listModel is a filterable, paged list shared by the surah index and the
// reciter picker.
type listModel struct {
	common *commonModel
	title  string

	items    []listItem
	matches  []fuzzy.Match
	cursor   int
	selected int

	filterState filterState
	filterInput textinput.Model

	loading bool
	spinner spinner.Model
	err     error
}

func newListModel(common *commonModel, title string) listModel {
	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = subtleStyle

	ti := textinput.New()
	ti.Prompt = "Find: "
	ti.PromptStyle = selectedStyle
	ti.Cursor.Style = selectedStyle
	ti.CharLimit = 64

	return listModel{
		common:      common,
		title:       title,
		spinner:     sp,
		filterInput: ti,
		loading:     true,
		selected:    -1,
	}
}

func (m *listModel) setItems(items []listItem) {
	for i := range items {
		items[i].buildFilterValue()
	}
	m.items = items
	m.loading = false
	m.err = nil
	m.cursor = 0
	m.refilter()
}

func (m *listModel) setError(err error) {
	m.loading = false
	m.err = err
}

// visible returns the items that pass the current filter, best match
// first.
func (m listModel) visible() []listItem {
	if m.filterState == unfiltered || m.filterInput.Value() == "" {
		return m.items
	}
	out := make([]listItem, len(m.matches))
	for i, match := range m.matches {
		out[i] = m.items[match.Index]
	}
	return out
}

func (m *listModel) refilter() {
	term, err := normalize(m.filterInput.Value())
	if err != nil {
		term = strings.ToLower(m.filterInput.Value())
	}
	targets := make([]string, len(m.items))
	for i, it := range m.items {
		targets[i] = it.filterValue
	}
	m.matches = fuzzy.Find(term, targets)
	if n := len(m.visible()); m.cursor >= n {
		m.cursor = max(0, n-1)
	}
}

func (m *listModel) resetFilter() {
	m.filterState = unfiltered
	m.filterInput.Reset()
	m.filterInput.Blur()
	m.matches = nil
	m.cursor = 0
}

// moveTo places the cursor on the item whose value is v.
func (m *listModel) moveTo(v int) {
	for i, it := range m.visible() {
		if it.value == v {
			m.cursor = i
			return
		}
	}
}

// current returns the item under the cursor.
func (m listModel) current() (listItem, bool) {
	items := m.visible()
	if m.cursor < 0 || m.cursor >= len(items) {
		return listItem{}, false
	}
	return items[m.cursor], true
}

// takeSelection returns the value chosen with enter, once.
func (m *listModel) takeSelection() (int, bool) {
	v := m.selected
	m.selected = -1
	return v, v >= 0
}

func (m listModel) perPage() int {
	return max(1, m.common.height-listChromeHeight)
}

func (m listModel) update(msg tea.Msg) (listModel, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case tea.KeyMsg:
		if m.filterState == filtering {
			switch msg.String() {
			case keyEsc:
				m.resetFilter()
				return m, nil
			case keyEnter, "tab", "shift+tab", "ctrl+k", "up", "ctrl+j", "down":
				if m.filterInput.Value() == "" {
					m.resetFilter()
					return m, nil
				}
				m.filterInput.Blur()
				m.filterState = filterApplied
				return m, nil
			}
			var cmd tea.Cmd
			m.filterInput, cmd = m.filterInput.Update(msg)
			m.refilter()
			return m, cmd
		}

		n := len(m.visible())
		switch msg.String() {
		case "k", "up", "ctrl+k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "j", "down", "ctrl+j":
			if m.cursor < n-1 {
				m.cursor++
			}
		case "pgup", "b", "u":
			m.cursor = max(0, m.cursor-m.perPage())
		case "pgdown", "f", "d":
			m.cursor = max(0, min(n-1, m.cursor+m.perPage()))
		case "home", "g":
			m.cursor = 0
		case "end", "G":
			m.cursor = max(0, n-1)
		case "/":
			m.filterState = filtering
			m.cursor = 0
			cmds = append(cmds, m.filterInput.Focus(), textinput.Blink)
		case keyEsc:
			if m.filterState == filterApplied {
				m.resetFilter()
			}
		case keyEnter:
			if it, ok := m.current(); ok {
				m.selected = it.value
			}
		}
	}

	return m, tea.Batch(cmds...)
}

func (m listModel) view() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), subtleStyle.Render("Loading…"))
		return indent(b.String(), 2)
	case m.err != nil:
		fmt.Fprintf(&b, "%s\n", errorTitleStyle.Render("ERROR"))
		fmt.Fprintf(&b, "\n%s\n", m.err)
		return indent(b.String(), 2)
	}

	if m.filterState != unfiltered {
		b.WriteString(m.filterInput.View())
	} else {
		b.WriteString(subtleStyle.Render("/ find · enter select · esc back · q quit"))
	}
	b.WriteString("\n\n")

	items := m.visible()
	per := m.perPage()
	start := (m.cursor / per) * per
	end := min(len(items), start+per)

	width := max(0, m.common.width-4)
	for i := start; i < end; i++ {
		b.WriteString(m.itemView(items[i], i == m.cursor, width))
		b.WriteByte('\n')
	}
	if len(items) == 0 {
		b.WriteString(subtleStyle.Render("Nothing found."))
		b.WriteByte('\n')
	}

	if pages := (len(items) + per - 1) / per; pages > 1 {
		fmt.Fprintf(&b, "\n%s", subtleStyle.Render(fmt.Sprintf("page %d/%d", start/per+1, pages)))
	}
	return indent(b.String(), 2)
}

func (m listModel) itemView(it listItem, selected bool, width int) string {
	gutter := "  "
	title := it.title
	if selected {
		gutter = selectedStyle.Render("│ ")
		title = selectedStyle.Render(title)
	} else {
		title = normalStyle.Render(title)
	}

	line := gutter + title
	if it.note != "" {
		line += "  " + dimStyle.Render(it.note)
	}
	if it.badge != "" {
		line += "  " + badgeStyle.Render(it.badge)
	}
	if width > 0 {
		line = truncate.StringWithTail(line, uint(width), ellipsis) //nolint:gosec
	}
	return line
}

// normalize lowercases in and strips diacritics, so "fatiha" matches
// "Al-Fātiḥah" and bare Arabic letters match vocalised names.
func normalize(in string) (string, error) {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, in)
	return strings.ToLower(out), err
}
