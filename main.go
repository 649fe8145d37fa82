// Package main provides the entry point for the tartil CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/tartil/internal/cache"
	"github.com/dgnsrekt/tartil/internal/catalog"
	"github.com/dgnsrekt/tartil/internal/client"
	"github.com/dgnsrekt/tartil/internal/store"
	"github.com/dgnsrekt/tartil/recite"
	"github.com/dgnsrekt/tartil/recite/audio"
	"github.com/dgnsrekt/tartil/recite/timing"
	"github.com/dgnsrekt/tartil/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile  string
	style       string
	width       uint
	mouse       bool
	translation bool
	numbers     bool

	rootCmd = &cobra.Command{
		Use:   "tartil [SURAH]",
		Short: "Read and listen to the Quran in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead the Quran in the terminal while a reciter %s.", keyword("leads the way")),
		),
		Example:          paragraph("tartil\ntartil 18\ntartil 36 --reciter 123 --moshaf 1"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return validateOptions()
		},
		RunE: execute,
	}
)

func validateOptions() error {
	if configFile != "" && configFile != viper.ConfigFileUsed() {
		viper.SetConfigFile(expandPath(configFile))
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read %s: %w", configFile, err)
		}
	}

	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	translation = viper.GetBool("translation")
	numbers = viper.GetBool("numbers")

	style = viper.GetString("style")
	switch style {
	case "auto", "dark", "light":
	default:
		return fmt.Errorf("unknown style %q: use auto, dark or light", style)
	}

	if width > 0 && width < 20 {
		return fmt.Errorf("width %d is too narrow", width)
	}
	return nil
}

// parseSurah reads a surah number argument.
func parseSurah(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a surah number", arg)
	}
	if err := timing.ValidSurah(n); err != nil {
		return 0, err
	}
	return n, nil
}

func execute(_ *cobra.Command, args []string) error {
	var surah int
	if len(args) == 1 {
		n, err := parseSurah(args[0])
		if err != nil {
			return err
		}
		surah = n
	}
	return runTUI(surah)
}

// services are the long-lived collaborators shared by the commands.
type services struct {
	cache   *cache.Manager
	catalog *catalog.Client
}

func openServices() (*services, error) {
	cacheCfg, err := env.ParseAs[cache.Config]()
	if err != nil {
		return nil, fmt.Errorf("error parsing cache config: %w", err)
	}
	if viper.IsSet("cache.dir") {
		cacheCfg.DiskPath = expandPath(viper.GetString("cache.dir"))
	}
	mgr, err := cache.New(cacheCfg)
	if err != nil {
		log.Warn("disk cache unavailable, keeping assets in memory", "error", err)
		cacheCfg.MemoryOnly = true
		if mgr, err = cache.New(cacheCfg); err != nil {
			return nil, err
		}
	}

	catCfg, err := env.ParseAs[catalog.Config]()
	if err != nil {
		_ = mgr.Close()
		return nil, fmt.Errorf("error parsing catalog config: %w", err)
	}
	return &services{cache: mgr, catalog: catalog.New(catCfg, mgr)}, nil
}

func (s *services) Close() error {
	return s.cache.Close()
}

// openStore connects to the persistence API when one is configured and
// otherwise opens a local database.
func openStore(ctx context.Context) (store.Store, error) {
	if u := viper.GetString("api.url"); u != "" {
		c := client.New(client.Config{URL: u, Timeout: viper.GetDuration("api.timeout")})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := c.Ping(pingCtx); err != nil {
			log.Warn("persistence API unreachable", "url", u, "error", err)
		}
		return c, nil
	}

	cfg := store.Config{
		Driver:  viper.GetString("store.driver"),
		DSN:     expandPath(viper.GetString("store.dsn")),
		Migrate: true,
	}
	if cfg.Driver == store.DriverSQLite && cfg.DSN == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		cfg.DSN = filepath.Join(dir, "tartil.db")
	}
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}

func dataDir() (string, error) {
	scope := gap.NewScope(gap.User, "tartil")
	dirs, err := scope.DataDirs()
	if err != nil || len(dirs) == 0 {
		return "", fmt.Errorf("could not find data directory: %w", err)
	}
	if err := os.MkdirAll(dirs[0], 0o755); err != nil { //nolint:gosec
		return "", err
	}
	return dirs[0], nil
}

func runTUI(surah int) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	if style != "auto" || cfg.Style == "" {
		cfg.Style = style
	}

	playback, err := recite.LoadConfigFromViper()
	if err != nil {
		return err
	}
	cfg.Playback = playback
	cfg.Surah = surah
	cfg.ShowTranslation = translation
	cfg.ShowAyahNumbers = numbers
	cfg.ReaderMaxWidth = width
	cfg.EnableMouse = mouse
	if d := viper.GetString("download_dir"); d != "" {
		cfg.DownloadDir = expandPath(d)
	}

	svc, err := openServices()
	if err != nil {
		return err
	}
	defer svc.Close() //nolint:errcheck

	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		log.Warn("bookmarks disabled", "error", err)
	} else {
		defer st.Close() //nolint:errcheck
	}

	var timings timing.Loader
	if src, err := timing.NewSource(expandPath(playback.Timings.Source), playback.Timings.Timeout, svc.cache); err != nil {
		log.Info("verse sync disabled", "reason", err)
	} else {
		timings = timing.NewStore(src)
	}

	offset := recite.NewLiveOffset(playback.Sync.Offset)
	if used := viper.ConfigFileUsed(); used != "" {
		stop, err := recite.WatchOffset(used, offset)
		if err != nil {
			log.Warn("sync offset will not reload", "error", err)
		} else {
			defer stop() //nolint:errcheck
		}
	}

	fetcher := &audio.HTTPFetcher{Cache: svc.cache}
	deps := ui.Deps{
		Catalog: svc.catalog,
		Store:   st,
		Timings: timings,
		Fetcher: fetcher,
		Offset:  offset,
	}
	deps.NewPlayer = func() (recite.Player, error) {
		return audio.New(playback, fetcher)
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(cfg, deps).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&style, "style", "s", "auto", "color scheme: auto, dark or light")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "maximum reader width (0 uses the terminal width)")
	rootCmd.Flags().BoolVarP(&translation, "translation", "t", true, "show the English translation under each ayah")
	rootCmd.Flags().BoolVarP(&numbers, "numbers", "n", false, "number translation lines")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().String("player", recite.PlayerMPV, "audio backend: mpv, oto or clock")
	rootCmd.Flags().Int("reciter", 0, "mp3quran.net reciter id")
	rootCmd.Flags().Int("moshaf", 0, "moshaf id of the reciter")
	rootCmd.Flags().Float64("rate", recite.DefaultRate, "playback speed")
	rootCmd.Flags().String("offset", "0ms", "sync offset added to the playback position")
	rootCmd.Flags().String("timings", "", "verse timings: directory, timings.json or base URL")
	rootCmd.Flags().String("api", "", "persistence API URL (local database when empty)")

	// Config bindings
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("translation", rootCmd.Flags().Lookup("translation"))
	_ = viper.BindPFlag("numbers", rootCmd.Flags().Lookup("numbers"))
	_ = viper.BindPFlag("player", rootCmd.Flags().Lookup("player"))
	_ = viper.BindPFlag("reciter", rootCmd.Flags().Lookup("reciter"))
	_ = viper.BindPFlag("moshaf", rootCmd.Flags().Lookup("moshaf"))
	_ = viper.BindPFlag("rate", rootCmd.Flags().Lookup("rate"))
	_ = viper.BindPFlag("sync.offset", rootCmd.Flags().Lookup("offset"))
	_ = viper.BindPFlag("timings.source", rootCmd.Flags().Lookup("timings"))
	_ = viper.BindPFlag("api.url", rootCmd.Flags().Lookup("api"))

	viper.SetDefault("style", "auto")
	viper.SetDefault("width", 0)
	viper.SetDefault("translation", true)
	viper.SetDefault("api.timeout", 10*time.Second)
	viper.SetDefault("store.driver", store.DriverSQLite)
	recite.SetDefaults()

	rootCmd.AddCommand(configCmd, manCmd, serveCmd, convertCmd, surahCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "tartil")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "tartil")}, dirs...)
	}

	if c := os.Getenv("TARTIL_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("tartil")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("tartil")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "tartil.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		log.Warn("Could not parse configuration file", "err", err)
	}
}
