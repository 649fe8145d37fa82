package ui

import "github.com/dgnsrekt/tartil/recite"

// Config contains TUI-specific configuration.
type Config struct {
	Playback recite.Config

	// Surah opens straight into the reader when set.
	Surah int

	ShowTranslation bool
	ShowAyahNumbers bool
	ReaderMaxWidth  uint
	EnableMouse     bool

	// Style is "auto", "dark" or "light".
	Style string `env:"TARTIL_STYLE" envDefault:"auto"`

	// DownloadDir receives surah audio recorded with the download key.
	DownloadDir string `env:"TARTIL_DOWNLOAD_DIR"`
}
