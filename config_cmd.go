package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# color scheme: auto, dark or light
style: "auto"
# mouse support
mouse: false
# maximum reader width (0 uses the terminal width)
width: 0
# show the English translation under each ayah
translation: true
# number translation lines
numbers: false

# audio backend: mpv, oto or clock
player: "mpv"
# moshaf server used until a reciter is picked
server: "https://server8.mp3quran.net/afs"
# reciter and moshaf ids from mp3quran.net (0 keeps the server above)
reciter: 0
moshaf: 0
# playback speed: 0.5, 0.75, 1.0, 1.25, 1.5 or 2.0
rate: 1.0

sync:
  # added to every playback position before the current ayah is found;
  # saved edits apply while playing
  offset: "0ms"
  auto_scroll: true
  sample_interval: "500ms"
  min_sample_interval: "100ms"

timings:
  # directory of surah_NNN.json files, an aggregate timings.json, or a base URL
  source: ""
  timeout: "10s"

mpv:
  binary: "mpv"
  start_timeout: "5s"

# persistence API for bookmarks, downloads and memorization goals;
# a local database is used when empty
api:
  url: ""
  timeout: "10s"
store:
  driver: "sqlite3"
  # dsn: "~/.local/share/tartil/tartil.db"

# where downloaded surah audio is saved
download_dir: ""
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the tartil config file",
	Long:    paragraph(fmt.Sprintf("\n%s the tartil config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("tartil config\ntartil config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Tartil", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
