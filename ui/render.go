package ui

import (
	"fmt"
	"strings"

	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/tartil/internal/catalog"
)

type renderOptions struct {
	width       int
	translation bool
	numbers     bool
}

// renderAyahs lays out a surah for the reader. It returns the text and,
// for each ayah, the index of the first line it occupies.
func renderAyahs(ayahs []catalog.Ayah, current int, opts renderOptions) (string, []int) {
	width := opts.width
	if width <= 0 {
		width = 80
	}

	var (
		b       strings.Builder
		lines   int
		anchors = make([]int, len(ayahs))
	)
	write := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
		lines += strings.Count(s, "\n") + 1
	}

	for i, a := range ayahs {
		anchors[i] = lines

		text := a.Text
		if opts.numbers {
			text = fmt.Sprintf("%s %s", text, ayahMarker(a.NumberInSurah))
		}
		text = wordwrap.String(text, width)

		if i == current {
			write(currentAyahStyle.Render(text))
		} else {
			write(normalStyle.Render(text))
		}

		if opts.translation && a.Translation != "" {
			tr := a.Translation
			if opts.numbers {
				tr = fmt.Sprintf("%d. %s", a.NumberInSurah, tr)
			}
			write(translationStyle.Render(wordwrap.String(tr, width)))
		}

		if i+1 < len(ayahs) {
			write("")
		}
	}

	return strings.TrimSuffix(b.String(), "\n"), anchors
}

// ayahMarker renders an ayah number between ornate parentheses in
// Arabic-Indic digits.
func ayahMarker(n int) string {
	const digits = "٠١٢٣٤٥٦٧٨٩"
	d := []rune(digits)
	var b strings.Builder
	for _, r := range fmt.Sprint(n) {
		b.WriteRune(d[r-'0'])
	}
	return ayahNumberStyle.Render("﴿" + b.String() + "﴾")
}

// surahHeader is the title block shown above the ayahs.
func surahHeader(s catalog.Surah, width int) string {
	title := fmt.Sprintf("%d. %s", s.Number, s.EnglishName)
	if s.EnglishNameTranslation != "" {
		title += " · " + s.EnglishNameTranslation
	}
	meta := fmt.Sprintf("%s · %d ayahs", s.RevelationType, s.NumberOfAyahs)
	h := titleStyle.Render(title) + "  " + s.Name + "\n" + subtleStyle.Render(meta)
	if width > 0 {
		h += "\n" + subtleStyle.Render(strings.Repeat("─", min(width, 60)))
	}
	return h + "\n\n"
}
