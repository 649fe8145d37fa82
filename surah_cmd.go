package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/tartil/internal/catalog"
)

var (
	surahRandom bool
	surahAyah   int
	surahStyle  string

	surahCmd = &cobra.Command{
		Use:   "surah [SURAH]",
		Short: "Print a surah, an ayah, or a random ayah",
		Long: paragraph(fmt.Sprintf(
			"\n%s a surah with its translation, rendered for the terminal. Pipe it anywhere: when stdout is not a terminal the output is plain.",
			keyword("Print"),
		)),
		Example: paragraph("tartil surah 112\ntartil surah 2 --ayah 255\ntartil surah --random"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSurah,
	}
)

func runSurah(cmd *cobra.Command, args []string) error {
	if !surahRandom && len(args) == 0 {
		return errors.New("give a surah number or --random")
	}

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var md string
	switch {
	case surahRandom:
		a, err := svc.catalog.RandomAyah(ctx)
		if err != nil {
			return err
		}
		md = ayahMarkdown(a)

	default:
		n, err := parseSurah(args[0])
		if err != nil {
			return err
		}
		detail, err := svc.catalog.Surah(ctx, n)
		if err != nil {
			return err
		}
		if surahAyah > 0 {
			if surahAyah > len(detail.Ayahs) {
				return fmt.Errorf("surah %d has %d ayahs", n, len(detail.Ayahs))
			}
			md = ayahMarkdown(catalog.VerseAyah{Ayah: detail.Ayahs[surahAyah-1], Surah: detail.Surah})
		} else {
			md = surahMarkdown(detail)
		}
	}

	if cmd.Flags().Changed("style") {
		style = surahStyle
	}
	out, err := renderMarkdown(md)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func surahMarkdown(d catalog.SurahDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %d. %s\n\n", d.Number, d.EnglishName)
	fmt.Fprintf(&b, "%s · *%s* · %s · %d ayahs\n\n", d.Name, d.EnglishNameTranslation, d.RevelationType, d.NumberOfAyahs)
	for _, a := range d.Ayahs {
		fmt.Fprintf(&b, "**%d.** %s\n\n", a.NumberInSurah, a.Text)
		if a.Translation != "" {
			fmt.Fprintf(&b, "> %s\n\n", a.Translation)
		}
	}
	return b.String()
}

func ayahMarkdown(a catalog.VerseAyah) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s · %s\n\n", a.Surah.EnglishName, a.Reference())
	fmt.Fprintf(&b, "%s\n\n", a.Text)
	if a.Translation != "" {
		fmt.Fprintf(&b, "> %s\n\n", a.Translation)
	}
	return b.String()
}

func renderMarkdown(md string) (string, error) {
	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))

	w := int(width) //nolint:gosec
	if w == 0 {
		w = 80
		if isTerminal {
			if tw, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				w = min(tw, 120)
			}
		}
	}

	s := style
	switch {
	case !isTerminal:
		s = styles.NoTTYStyle
	case s == "auto":
		s = styles.AutoStyle
	}
	opt := glamour.WithStandardStyle(s)
	if s == styles.AutoStyle {
		opt = glamour.WithAutoStyle()
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		opt,
		glamour.WithWordWrap(w),
		glamour.WithPreservedNewLines(),
	)
	if err != nil {
		return "", fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(md)
	if err != nil {
		return "", fmt.Errorf("unable to render markdown: %w", err)
	}
	return out, nil
}

func init() {
	surahCmd.Flags().BoolVarP(&surahRandom, "random", "r", false, "print a random ayah")
	surahCmd.Flags().IntVarP(&surahAyah, "ayah", "a", 0, "print only this ayah of the surah")
	surahCmd.Flags().StringVarP(&surahStyle, "style", "s", "auto", "color scheme: auto, dark or light")
}
