package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/jeanpaul/jarbas/internal/brain"
	"github.com/jeanpaul/jarbas/internal/config"
	"github.com/jeanpaul/jarbas/internal/headless"
	"github.com/jeanpaul/jarbas/internal/health"
	"github.com/jeanpaul/jarbas/internal/importer"
	"github.com/jeanpaul/jarbas/internal/logger"
	"github.com/jeanpaul/jarbas/internal/provider"
	"github.com/jeanpaul/jarbas/internal/store"
	"github.com/jeanpaul/jarbas/internal/tui"
	"github.com/jeanpaul/jarbas/internal/voice"
	"github.com/jeanpaul/jarbas/pkg/version"
)

type flags struct {
	dataDir  string
	logLevel string
	voice    bool
	verbose  bool
}

func main() {
	var f flags
	versionFlag := flag.Bool("version", false, "Print version")
	helpFlag := flag.Bool("help", false, "Show help")
	flag.BoolVar(helpFlag, "h", false, "Show help")
	flag.StringVar(&f.dataDir, "data-dir", "", "Directory holding jarbas.db")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.voice, "voice", false, "Speak replies aloud")
	flag.BoolVar(&f.verbose, "verbose", false, "Print reply metadata to stderr")
	flag.BoolVar(&f.verbose, "v", false, "Print reply metadata to stderr")

	flag.Usage = showHelp
	flag.Parse()

	if *helpFlag {
		showHelp()
		return
	}
	if *versionFlag {
		printVersion()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	cmd := "chat"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "help":
		showHelp()
		return
	case "version":
		printVersion()
		return
	}

	a, err := setup(f)
	if err != nil {
		fatal("%s", err)
	}

	switch cmd {
	case "chat":
		err = a.chat()
	case "ask":
		err = a.ask(ctx, args)
	case "import":
		err = a.importCmd(ctx, args)
	case "history":
		err = a.history(ctx, args)
	case "stats":
		err = a.stats(ctx)
	case "reset":
		err = a.reset(ctx)
	case "key":
		err = a.key(args)
	case "profile":
		err = a.profile(ctx, args)
	case "speak":
		err = a.speak(ctx, args)
	case "doctor":
		err = a.doctor(ctx)
	default:
		// Anything else is a one-shot prompt.
		err = a.ask(ctx, append([]string{cmd}, args...))
	}
	a.Close()
	if err != nil {
		if errors.Is(err, headless.ErrExchangeFailed) {
			os.Exit(1)
		}
		fatal("%s", err)
	}
}

// app holds the wired dependencies for one invocation.
type app struct {
	flags  flags
	cfg    *config.Config
	log    zerolog.Logger
	closer io.Closer
	store  *store.Store
	creds  *config.Credentials
	router *brain.Router
}

func setup(f flags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.voice {
		cfg.Voice.Enabled = true
	}

	log, closer, err := logger.Init(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	st, err := store.Open(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		closer.Close()
		return nil, err
	}

	creds := &config.Credentials{SettingsPath: cfg.SettingsPath}
	router := brain.New(brain.Deps{
		Store:       st,
		Credentials: creds,
		Models:      cfg.Models,
		Logger:      log,
	},
		brain.WithHistoryWindow(cfg.HistoryWindow),
		brain.WithAttemptTimeout(cfg.AttemptTimeout),
		brain.WithRetries(cfg.Retries),
		brain.WithPersona(cfg.Persona),
	)

	log.Debug().Str("db", st.Path()).Str("mode", router.Mode()).Msg("jarbas started")
	return &app{flags: f, cfg: cfg, log: log, closer: closer, store: st, creds: creds, router: router}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
	a.closer.Close()
}

// newVoice wires the remote speech model plus whatever local audio tools
// are installed. A missing tool only disables its half.
func (a *app) newVoice(ctx context.Context) *voice.Adapter {
	var player voice.Player
	if p, err := voice.NewCommandPlayer(a.log); err == nil {
		player = p
	} else {
		a.log.Debug().Err(err).Msg("remote voice playback disabled")
	}
	var local voice.LocalSpeaker
	if s, err := voice.NewCommandSpeaker(a.log); err == nil {
		local = s
	} else {
		a.log.Debug().Err(err).Msg("local speech disabled")
	}

	vc := a.cfg.Voice
	dial := func(ctx context.Context, key string) (voice.Synthesizer, error) {
		s, err := provider.NewGeminiSpeech(ctx, provider.GeminiConfig{APIKey: key}, vc.Model, vc.VoiceName)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	vcfg := voice.DefaultConfig()
	if vc.Language != "" {
		vcfg.Language = vc.Language
	}
	if len(vc.PreferredVoices) > 0 {
		vcfg.PreferredVoices = vc.PreferredVoices
	}
	if vc.Rate > 0 {
		vcfg.Rate = vc.Rate
	}
	if vc.Pitch > 0 {
		vcfg.Pitch = vc.Pitch
	}
	ad := voice.New(vcfg, dial, player, local, a.log)
	ad.Initialize(ctx)
	return ad
}

// speakAndWait is the headless speaker: it blocks until playback ends.
func (a *app) speakAndWait(ad *voice.Adapter) headless.SpeakFunc {
	return func(ctx context.Context, text string) error {
		if err := ad.Speak(ctx, text, a.creds.Resolve().Key); err != nil {
			return err
		}
		err := ad.Wait(ctx)
		if errors.Is(err, context.Canceled) {
			ad.Stop()
			return nil
		}
		return err
	}
}

func (a *app) chat() error {
	d := tui.Deps{
		Brain: a.router,
		Keys:  a.creds,
		Import: func(ctx context.Context, pattern string) (importer.Result, error) {
			return importer.ImportGlob(ctx, a.store, pattern)
		},
		VoiceOn: a.cfg.Voice.Enabled,
	}
	ad := a.newVoice(context.Background())
	d.Voice = ad
	defer ad.Stop()

	var opts []tea.ProgramOption
	if isTerminal() {
		opts = append(opts, tea.WithAltScreen())
	}
	opts = append(opts, tea.WithMouseCellMotion())

	if _, err := tea.NewProgram(tui.NewModel(d), opts...).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

func (a *app) ask(ctx context.Context, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return errors.New("usage: jarbas ask <prompt>")
	}
	opts := headless.Options{Verbose: a.flags.verbose}
	if a.cfg.Voice.Enabled {
		ad := a.newVoice(ctx)
		opts.Speak = a.speakAndWait(ad)
	}
	return headless.Run(ctx, a.router, prompt, opts)
}

func (a *app) importCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: jarbas import <path|glob>")
	}
	var total importer.Result
	for _, pattern := range args {
		res, err := importer.ImportGlob(ctx, a.store, pattern)
		total.Imported += res.Imported
		total.Skipped += res.Skipped
		if err != nil {
			return err
		}
	}
	fmt.Printf("%s %d concepts imported, %d skipped\n", tui.SuccessStyle.Render("✓"), total.Imported, total.Skipped)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	n, err := parseCount(args, 10)
	if err != nil {
		return err
	}
	recs, err := a.router.History(ctx, n)
	if err != nil {
		return err
	}
	title := a.router.Snapshot(ctx).Creator.Title
	for _, r := range recs {
		fmt.Printf("%s  %s\n", tui.HelpStyle.Render(r.CreatedAt.Format(time.DateTime)), tui.HelpStyle.Render("["+r.Context+"]"))
		fmt.Printf("  %s %s\n", tui.LabelStyle.Render(title+":"), r.UserMessage)
		fmt.Printf("  %s %s\n\n", tui.LabelStyle.Render("JARBAS:"), r.Reply)
	}
	if len(recs) == 0 {
		fmt.Println("No exchanges recorded.")
	}
	return nil
}

func (a *app) stats(ctx context.Context) error {
	s := a.router.Snapshot(ctx)
	mode := "OFFLINE (local core)"
	if s.Mode == brain.ModeRemote {
		mode = "ONLINE (key from " + s.Origin + ")"
	}
	fmt.Printf("Creator:    %s (%s), %s\n", s.Creator.Name, s.Creator.Title, s.Creator.SpeechStyle)
	fmt.Printf("Mode:       %s\n", mode)
	fmt.Printf("Level:      %d\n", s.Learning.Level)
	fmt.Printf("Areas:      %s\n", strings.Join(s.Learning.Areas, ", "))
	fmt.Printf("Exchanges:  %d\n", s.Conversations)
	fmt.Printf("Concepts:   %d\n", s.Concepts)
	fmt.Printf("Database:   %s\n", a.store.Path())
	return nil
}

func (a *app) reset(ctx context.Context) error {
	if err := a.router.ResetHistory(ctx); err != nil {
		return err
	}
	fmt.Println(tui.SuccessStyle.Render("✓ History cleared and learning state reset."))
	return nil
}

func (a *app) key(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: jarbas key set <value> | clear | show")
	}
	switch args[0] {
	case "set":
		if len(args) < 2 {
			return errors.New("usage: jarbas key set <value>")
		}
		if err := a.creds.Set(args[1]); err != nil {
			return err
		}
		fmt.Println(tui.SuccessStyle.Render("✓ Key stored in " + a.creds.SettingsPath))
	case "clear":
		if err := a.creds.Clear(); err != nil {
			return err
		}
		fmt.Println(tui.SuccessStyle.Render("✓ Stored key removed."))
	case "show":
		c := a.creds.Resolve()
		if !c.Online() {
			fmt.Println("No key configured: offline mode.")
			return nil
		}
		fmt.Printf("%s (from %s)\n", c.Masked(), c.Origin)
	default:
		return fmt.Errorf("unknown key action %q", args[0])
	}
	return nil
}

func (a *app) profile(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] != "set" || len(args) < 3 {
		return errors.New("usage: jarbas profile set <name> <title> [style]")
	}
	p := store.CreatorProfile{Name: args[1], Title: args[2], SpeechStyle: store.DefaultCreator().SpeechStyle}
	if len(args) > 3 {
		p.SpeechStyle = strings.Join(args[3:], " ")
	}
	if err := a.store.SetCreatorProfile(ctx, p); err != nil {
		return err
	}
	fmt.Println(tui.SuccessStyle.Render(fmt.Sprintf("✓ Creator set to %s, addressed as %q.", p.Name, p.Title)))
	return nil
}

func (a *app) speak(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if strings.TrimSpace(text) == "" {
		return errors.New("usage: jarbas speak <text>")
	}
	ad := a.newVoice(ctx)
	if v, ok := ad.SelectedVoice(); ok {
		a.log.Debug().Str("voice", v.Name).Msg("speaking")
	}
	return a.speakAndWait(ad)(ctx, text)
}

func (a *app) doctor(ctx context.Context) error {
	fmt.Println(tui.AnimatedBanner(0))
	fmt.Println(tui.LabelStyle.Render("  System Diagnostics"))
	fmt.Println()

	ok := tui.SuccessStyle.Render
	bad := tui.ErrorStyle.Render
	dim := tui.HelpStyle.Render

	fmt.Printf("  ● %-10s ... ", "store")
	ss := health.CheckStore(ctx, a.store)
	if ss.Error != "" {
		fmt.Println(bad("✗ " + ss.Error))
	} else {
		fmt.Printf("%s %s\n", ok("✓ schema v"+strconv.Itoa(ss.SchemaVersion)), dim(ss.Path))
	}

	fmt.Printf("  ● %-10s ... ", "key")
	cred := a.creds.Resolve()
	if !cred.Online() {
		fmt.Println(dim("- none, local core only (jarbas key set <value>)"))
	} else {
		fmt.Println(ok("✓ " + cred.Masked() + " from " + cred.Origin))
		g, err := provider.NewGemini(ctx, provider.GeminiConfig{APIKey: cred.Key})
		if err != nil {
			fmt.Printf("  ● %-10s ... %s\n", "gemini", bad("✗ "+err.Error()))
		} else {
			for _, s := range health.Check(ctx, g, a.cfg.Models) {
				fmt.Printf("  ● %-10s ... ", "model")
				if s.Reachable {
					fmt.Printf("%s %s\n", ok("✓ "+s.Model), dim(s.Latency.Round(time.Millisecond).String()))
				} else {
					fmt.Printf("%s\n", bad("✗ "+s.Model+": "+s.Error))
				}
			}
		}
	}

	fmt.Printf("  ● %-10s ... ", "player")
	if p, err := voice.NewCommandPlayer(a.log); err == nil {
		fmt.Println(ok("✓ " + p.Name()))
	} else {
		fmt.Println(dim("- " + err.Error()))
	}
	fmt.Printf("  ● %-10s ... ", "speech")
	if s, err := voice.NewCommandSpeaker(a.log); err == nil {
		fmt.Println(ok("✓ " + s.Name()))
	} else {
		fmt.Println(dim("- " + err.Error()))
	}
	fmt.Println()
	return nil
}

func parseCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid count %q", args[0])
	}
	return n, nil
}

func isTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func printVersion() {
	fmt.Printf("jarbas %s (%s)\n", version.Version, version.Commit)
}

func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, tui.ErrorStyle.Render("error: "+msg))
	os.Exit(1)
}

func showHelp() {
	help := `
` + tui.LabelStyle.Render("JARBAS") + ` - dual-mode personal assistant for your terminal

` + tui.LabelStyle.Render("USAGE:") + `
  jarbas [flags]                   Start interactive chat
  jarbas <command> [args]          Run a command
  jarbas "<prompt>"                Ask once and print the reply

` + tui.LabelStyle.Render("COMMANDS:") + `
  chat                             Interactive chat (default)
  ask <prompt>                     One-shot question
  import <path|glob>...            Import concepts from .json or .xlsx files
  history [n]                      Show the last n exchanges
  stats                            Show creator, level and memory counts
  reset                            Clear history and reset learning
  key set <value> | clear | show   Manage the Gemini API key
  profile set <name> <title> [style]
                                   Set who JARBAS serves
  speak <text>                     Say something aloud
  doctor                           Check store, key, models and audio
  version                          Show version
  help                             Show this help

` + tui.LabelStyle.Render("FLAGS:") + `
  --data-dir <dir>                 Override the database directory
  --log-level <level>              debug, info, warn or error
  --voice                          Speak replies aloud
  --verbose, -v                    Print reply metadata to stderr
  --help, -h                       Show this help

` + tui.LabelStyle.Render("OFFLINE TEACHING:") + `
  learn: <trigger> = <response>

` + tui.LabelStyle.Render("ENVIRONMENT:") + `
  JARBAS_API_KEY, GEMINI_API_KEY, API_KEY    default key when none is stored
`
	fmt.Println(help)
}
