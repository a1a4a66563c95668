// Package main provides the entry point for the readaloud CLI application.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/muesli/gitcha"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/cache"
	"github.com/dgnsrekt/readaloud/internal/controller"
	"github.com/dgnsrekt/readaloud/internal/page"
	"github.com/dgnsrekt/readaloud/internal/remote"
	"github.com/dgnsrekt/readaloud/internal/settings"
	"github.com/dgnsrekt/readaloud/internal/synth"
	"github.com/dgnsrekt/readaloud/ui"
	"github.com/dgnsrekt/readaloud/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	readmeNames = []string{"README.md", "README", "Readme.md", "Readme", "readme.md", "readme"}
	pageGlobs   = []string{"*.html", "*.htm", "*.md", "*.mdown", "*.mkdn", "*.mkd", "*.markdown", "README"}

	configFile string
	style      string
	width      uint
	voice      string
	mode       string
	speed      float64
	listen     string
	cacheSize  int64
	noCache    bool

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE|DIR]",
		Short: "Read web pages and markdown out loud in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead pages out loud with %s, highlighting every word as it is spoken.", keyword("ElevenLabs")),
		),
		Example: paragraph("readaloud README.md\nreadaloud https://example.com/post.html\ncurl -s example.com | readaloud -"),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source provides a readable page.
type source struct {
	reader io.ReadCloser
	// Name decides how the content is parsed; Path is set only for local
	// files, which can be reloaded.
	Name string
	Path string
}

// sourceFromArg parses an argument and creates a readable source for it.
func sourceFromArg(ctx context.Context, arg string) (*source, error) {
	// from stdin
	if arg == "-" {
		return sniffSource(os.Stdin, "stdin")
	}

	// HTTP(S) URLs:
	if u, err := url.ParseRequestURI(arg); err == nil && strings.Contains(arg, "://") {
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
		}
		return fetch(ctx, u)
	}

	// a directory:
	if len(arg) == 0 {
		arg = "."
	}
	st, err := os.Stat(arg)
	if err == nil && st.IsDir() {
		path, err := findPage(arg)
		if err != nil {
			return nil, err
		}
		arg = path
	}

	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	p, err := filepath.Abs(arg)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{reader: r, Name: p, Path: p}, nil
}

// fetch downloads a page. The consumer of the source closes the body.
func fetch(ctx context.Context, u *url.URL) (*source, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req) //nolint:bodyclose
	if err != nil {
		cancel()
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}

	name := u.Path
	if strings.Contains(resp.Header.Get("Content-Type"), "markdown") && !utils.IsMarkdownFile(name) {
		name += ".md"
	}
	return &source{reader: cancelCloser{resp.Body, cancel}, Name: name}, nil
}

type cancelCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelCloser) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close() //nolint:wrapcheck
}

// sniffSource reads r fully and names it by its first character: markup
// starts with '<', anything else is treated as markdown.
func sniffSource(r io.ReadCloser, name string) (*source, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read from reader: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("<")) {
		name += ".html"
	} else {
		name += ".md"
	}
	return &source{reader: io.NopCloser(bytes.NewReader(b)), Name: name}, nil
}

// findPage returns the page to read in dir: a README when there is one,
// otherwise the first page found.
func findPage(dir string) (string, error) {
	ch, err := gitcha.FindFilesExcept(dir, pageGlobs, nil)
	if err != nil {
		return "", fmt.Errorf("unable to search %s: %w", dir, err)
	}

	var first string
	for res := range ch {
		if res.Info == nil || res.Info.IsDir() {
			continue
		}
		base := filepath.Base(res.Path)
		for _, v := range readmeNames {
			if base == v {
				go drain(ch)
				return res.Path, nil
			}
		}
		if first == "" {
			first = res.Path
		}
	}
	if first == "" {
		return "", errors.New("missing page source")
	}
	return first, nil
}

func drain(ch <-chan gitcha.SearchResult) {
	for range ch { //nolint:revive
	}
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != "auto" && styles.DefaultStyles[style] == nil {
		style = utils.ExpandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")
	voice = viper.GetString("voice")
	mode = viper.GetString("mode")
	speed = viper.GetFloat64("speed")
	listen = viper.GetString("listen")
	cacheSize = viper.GetInt64("cache.size")
	noCache = viper.GetBool("cache.disabled")

	if speed < 0 || speed > 16 {
		return fmt.Errorf("speed must be between 0 and 16, got %v", speed)
	}
	switch mode {
	case "", "default", "englishfast", "multilingual",
		synth.ModelTurboV2, synth.ModelTurboV25, synth.ModelMultilingualV2:
	default:
		return fmt.Errorf("unknown mode %q: use default, englishfast, multilingual or a model id", mode)
	}
	if voice != "" {
		if _, err := synth.ResolveVoice(voice); err != nil {
			return err //nolint:wrapcheck
		}
	}

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) && cmd.Name() == cmd.Root().Name() {
		return errors.New("readaloud needs a terminal to run in")
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	var (
		src *source
		err error
	)
	// if stdin is a pipe then use stdin for input. note that you can also
	// explicitly use a - to read from stdin.
	if yes, perr := stdinIsPipe(); perr != nil {
		return perr
	} else if yes && len(args) == 0 {
		src, err = sourceFromArg(cmd.Context(), "-")
	} else {
		arg := ""
		if len(args) > 0 {
			arg = args[0]
		}
		src, err = sourceFromArg(cmd.Context(), arg)
	}
	if err != nil {
		return err
	}
	defer src.reader.Close() //nolint:errcheck

	doc, err := utils.ParseDocument(src.reader, src.Name)
	if err != nil {
		return fmt.Errorf("unable to parse %s: %w", src.Name, err)
	}
	log.Debug("Loaded page", "name", src.Name, "nodes", len(doc.TextNodes()))
	return runTUI(src.Path, doc)
}

// openSettings opens the settings file and stores the voice, mode and speed
// given on the command line.
func openSettings() (*settings.FileStore, error) {
	path, err := gap.NewScope(gap.User, "readaloud").DataPath("settings.yml")
	if err != nil {
		return nil, fmt.Errorf("unable to find data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("unable to create data directory: %w", err)
	}
	store, err := settings.NewFileStore(path)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}

	var values [][2]string
	if voice != "" {
		id, err := synth.ResolveVoice(voice)
		if err != nil {
			return nil, err //nolint:wrapcheck
		}
		log.Debug("Using voice", "name", synth.VoiceName(id), "id", id)
		values = append(values, [2]string{settings.KeyVoice, id})
	}
	if mode != "" {
		values = append(values, [2]string{settings.KeyMode, mode})
	}
	if speed != 0 {
		values = append(values, [2]string{settings.KeySpeed, strconv.FormatFloat(speed, 'f', -1, 64)})
	}
	for _, kv := range values {
		if err := store.Set(kv[0], kv[1]); err != nil {
			return nil, err //nolint:wrapcheck
		}
	}
	return store, nil
}

// newStreamer returns the synthesis client, recording complete streams in
// the disk cache unless caching is off.
func newStreamer() (synth.Streamer, error) {
	client := synth.NewClient(synth.ClientConfig{
		BaseURL: viper.GetString("api.url"),
	})
	if noCache || cacheSize <= 0 {
		return client, nil
	}

	dir := viper.GetString("cache.dir")
	if dir == "" {
		base, err := gap.NewScope(gap.User, "readaloud").CacheDir()
		if err != nil {
			return nil, fmt.Errorf("unable to find cache directory: %w", err)
		}
		dir = filepath.Join(base, "audio")
	}
	dc, err := cache.NewDiskCache(utils.ExpandPath(dir), cacheSize<<20)
	if err != nil {
		return nil, err //nolint:wrapcheck
	}
	key := func(r synth.Request) string {
		return cache.Key(r.VoiceID, r.ModelID, r.Text)
	}
	return synth.NewCachingStreamer(client, dc, key, 0), nil
}

func runTUI(path string, doc *page.Document) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag if that's invalid
	if err := validateStyle(cfg.GlamourStyle); err != nil {
		cfg.GlamourStyle = style
	}
	cfg.Path = path
	cfg.MaxWidth = width

	store, err := openSettings()
	if err != nil {
		return err
	}
	streamer, err := newStreamer()
	if err != nil {
		return err
	}
	out, err := audio.NewOtoOutput(audio.DefaultOutputConfig())
	if err != nil {
		return fmt.Errorf("unable to open audio output: %w", err)
	}

	p := ui.NewProgram(cfg, doc, ui.Deps{
		Streamer:   streamer,
		Settings:   store,
		Media:      func() controller.Media { return audio.NewPipeline(out) },
		Chime:      audio.NewChime(out),
		Controller: controller.DefaultConfig(),
	})

	if listen != "" {
		srv := remote.NewServer(ui.RemoteHandler(p))
		if err := srv.Start(listen); err != nil {
			return err //nolint:wrapcheck
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Debug("Remote control server shutdown", "err", err)
			}
		}()
	}

	// Run Bubble Tea program
	if _, err := p.Run(); err != nil {
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
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path for the help screen")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to use the terminal width)")
	rootCmd.Flags().StringVarP(&voice, "voice", "v", "", "voice name or id (saved for later sessions)")
	rootCmd.Flags().StringVarP(&mode, "mode", "m", "", "default, englishfast or multilingual (saved)")
	rootCmd.Flags().Float64Var(&speed, "speed", 0, "playback speed, 1 is normal (saved)")
	rootCmd.Flags().StringVarP(&listen, "listen", "l", "", "accept remote commands on this address, e.g. 127.0.0.1:7457")
	rootCmd.Flags().Int64Var(&cacheSize, "cache-size", 256, "audio cache size in MiB")
	rootCmd.Flags().BoolVar(&noCache, "no-cache", false, "do not cache synthesized audio")

	// Config bindings
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("mode", rootCmd.Flags().Lookup("mode"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("listen", rootCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("cache.size", rootCmd.Flags().Lookup("cache-size"))
	_ = viper.BindPFlag("cache.disabled", rootCmd.Flags().Lookup("no-cache"))

	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)
	viper.SetDefault("cache.size", 256)
	viper.SetDefault("api.url", synth.DefaultBaseURL)

	rootCmd.AddCommand(configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	settings.LoadDotEnv()

	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readaloud.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
