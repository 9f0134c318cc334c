// Package commands provides the built-in voice commands and registers them
// with a [dispatch.Registry].
//
// Registration order is significant: the pattern resolver is first-match, so
// more specific commands (open_terminal) precede catch-all words (stop).
// Desktop programs are chosen from per-platform candidate lists; the first
// one found on PATH is used. Power commands are only registered when
// [Config.AllowPower] is set.
package commands

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/MrWong99/voxprivate/internal/dispatch"
)

// ErrNoProgram is returned when none of a command's candidate programs is
// installed.
var ErrNoProgram = errors.New("commands: no suitable program installed")

// ErrUnsupportedPlatform is returned by commands that have no implementation
// for the running operating system.
var ErrUnsupportedPlatform = errors.New("commands: unsupported platform")

// FileNamePattern extracts the file name from "create a file named foo.txt".
const FileNamePattern = `(?i)(?:named?|called?|with name)\s+(\S+)`

// DefaultBrowserURL is opened by open_browser.
const DefaultBrowserURL = "https://www.google.com"

// Config parameterises the built-in commands. Zero values are replaced with
// defaults by [Register].
type Config struct {
	// SandboxDir receives files from create_file. Default ~/Desktop.
	SandboxDir string

	// ScreenshotDir receives screenshots. Default ~/Pictures.
	ScreenshotDir string

	BrowserURL string

	// AllowPower registers shutdown, restart and sleep.
	AllowPower bool

	// Runner starts external programs. Default [ExecRunner].
	Runner Runner

	// GOOS selects the candidate program lists. Default runtime.GOOS.
	GOOS string

	// Now is the clock for time, date and screenshot names.
	Now func() time.Time
}

func (c *Config) applyDefaults() {
	if c.SandboxDir == "" {
		c.SandboxDir = homeDir("Desktop")
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = homeDir("Pictures")
	}
	if c.BrowserURL == "" {
		c.BrowserURL = DefaultBrowserURL
	}
	if c.Runner == nil {
		c.Runner = ExecRunner{}
	}
	if c.GOOS == "" {
		c.GOOS = runtime.GOOS
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Register adds every built-in command to reg.
func Register(reg *dispatch.Registry, cfg Config) error {
	var errs []error
	for _, c := range Builtins(cfg) {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Builtins returns the built-in command set for cfg in registration order.
func Builtins(cfg Config) []dispatch.Command {
	cfg.applyDefaults()
	b := &builtins{cfg: cfg}

	cmds := []dispatch.Command{
		{
			Name:        "time",
			Description: "Tell the current time",
			Triggers:    []string{`\btime\b`, `\bwhat time\b`, `\bcurrent time\b`, `\bwhat('s| is) the time\b`},
			Keywords:    []string{"time"},
			Handler:     b.time,
		},
		{
			Name:        "date",
			Description: "Tell today's date",
			Triggers:    []string{`\bdate\b`, `\btoday\b`, `\bwhat day\b`, `\bwhat('s| is) today\b`, `\bwhat('s| is) the date\b`},
			Keywords:    []string{"date", "today"},
			Handler:     b.date,
		},
		{
			Name:        "open_terminal",
			Description: "Open a terminal window",
			Triggers: []string{
				`\bopen (terminal|cmd|command prompt|console|shell)\b`,
				`\blaunch (terminal|cmd|console)\b`,
				`\bstart (terminal|cmd|console)\b`,
			},
			Keywords: []string{"open", "launch", "start", "terminal", "console", "shell"},
			Handler:  b.launcher("terminal", "Opening the terminal.", terminals),
		},
		{
			Name:        "screenshot",
			Description: "Take a screenshot and save it to the pictures folder",
			Triggers:    []string{`\b(take|capture|grab) (a )?screenshot\b`, `\bscreenshot\b`},
			Keywords:    []string{"take", "capture", "grab", "screenshot"},
			Handler:     b.screenshot,
		},
		{
			Name:        "create_file",
			Description: "Create an empty file in the sandbox directory",
			Triggers:    []string{`\bcreate (a )?file\b`, `\bmake (a )?file\b`, `\bnew file\b`},
			Keywords:    []string{"create", "make", "file"},
			Slots: []dispatch.SlotSpec{{
				Name:        "name",
				Description: "file name, without directories",
				Default:     "new_file.txt",
				Pattern:     `[A-Za-z0-9_][A-Za-z0-9._-]*`,
				MaxLen:      255,
				Extract:     FileNamePattern,
			}},
			Handler: b.createFile,
		},
		{
			Name:        "open_browser",
			Description: "Open the web browser",
			Triggers: []string{
				`\bopen (browser|chrome|firefox|edge|internet)\b`,
				`\blaunch (browser|chrome|firefox|edge)\b`,
				`\bstart (browser|chrome|firefox|edge)\b`,
			},
			Keywords: []string{"open", "launch", "start", "browser", "chrome", "firefox", "internet"},
			Handler:  b.openBrowser,
		},
		{
			Name:        "play_music",
			Description: "Open the music player",
			Triggers: []string{
				`\bplay (some )?music\b`,
				`\bopen music\b`,
				`\blaunch music (player)?\b`,
				`\bplay (songs?|audio)\b`,
			},
			Keywords: []string{"play", "music", "songs", "audio"},
			Handler:  b.playMusic,
		},
		{
			Name:        "volume_up",
			Description: "Increase the output volume",
			Triggers:    []string{`\bvolume up\b`, `\bincrease volume\b`, `\blouder\b`, `\bturn (it )?up\b`},
			Keywords:    []string{"volume", "increase", "louder"},
			Handler:     b.runner("volume", "Volume increased.", volumeUp),
		},
		{
			Name:        "volume_down",
			Description: "Decrease the output volume",
			Triggers:    []string{`\bvolume down\b`, `\bdecrease volume\b`, `\bquieter\b`, `\bturn (it )?down\b`},
			Keywords:    []string{"volume", "decrease", "quieter"},
			Handler:     b.runner("volume", "Volume decreased.", volumeDown),
		},
		{
			Name:        "mute",
			Description: "Mute the output",
			Triggers:    []string{`\bmute\b`, `\bsilence\b`, `\bturn off (the )?sound\b`},
			Keywords:    []string{"mute", "silence", "sound"},
			Handler:     b.runner("mixer", "Muted.", mute),
		},
	}

	if cfg.AllowPower {
		cmds = append(cmds,
			dispatch.Command{
				Name:        "shutdown",
				Description: "Shut the computer down in one minute",
				Triggers: []string{
					`\bshutdown\b`, `\bshut down\b`, `\bpower off\b`,
					`\bturn off (the )?(computer|pc|system)\b`,
				},
				Keywords: []string{"shutdown", "power"},
				Handler:  b.runner("shutdown", "Shutdown initiated.", shutdown),
			},
			dispatch.Command{
				Name:        "restart",
				Description: "Restart the computer in one minute",
				Triggers:    []string{`\brestart\b`, `\breboot\b`, `\brestart (the )?(computer|pc|system)\b`},
				Keywords:    []string{"restart", "reboot"},
				Handler:     b.runner("restart", "Restart command issued.", restart),
			},
			dispatch.Command{
				Name:        "sleep",
				Description: "Suspend the computer",
				Triggers:    []string{`\bsleep\b`, `\bhibernate\b`, `\bput (the )?(computer|pc|system) to sleep\b`},
				Keywords:    []string{"sleep", "hibernate"},
				Handler:     b.launcher("suspend", "Going to sleep.", suspend),
			},
		)
	}

	cmds = append(cmds,
		dispatch.Command{
			Name:        "calculator",
			Description: "Open the calculator",
			Triggers:    []string{`\bopen (calculator|calc)\b`, `\blaunch (calculator|calc)\b`},
			Keywords:    []string{"calculator"},
			Handler:     b.launcher("calculator", "Opening calculator.", calculators),
		},
		dispatch.Command{
			Name:        "notepad",
			Description: "Open a text editor",
			Triggers:    []string{`\bopen (notepad|text editor|notes)\b`, `\blaunch (notepad|text editor|notes)\b`},
			Keywords:    []string{"notepad", "editor", "notes"},
			Handler:     b.launcher("text editor", "Opening text editor.", editors),
		},
		dispatch.Command{
			Name:        "help",
			Description: "List what the assistant can do",
			Triggers:    []string{`\bhelp\b`, `\bwhat can you do\b`, `\bcommands\b`, `\bwhat (do )?you know\b`},
			Keywords:    []string{"help", "commands"},
			Handler:     b.help,
		},
		dispatch.Command{
			Name:        "stop",
			Description: "Stop the assistant",
			Triggers:    []string{`\bstop\b`, `\bexit\b`, `\bquit\b`, `\bbye\b`, `\bgoodbye\b`, `\bclose\b`},
			Keywords:    []string{"stop", "exit", "quit", "goodbye", "close"},
			Handler:     b.stop,
		},
	)
	return cmds
}

type builtins struct {
	cfg Config
}

func (b *builtins) time(context.Context, dispatch.Args) (dispatch.Reply, error) {
	return dispatch.Reply{Message: "The current time is " + b.cfg.Now().Format("03:04 PM") + "."}, nil
}

func (b *builtins) date(context.Context, dispatch.Args) (dispatch.Reply, error) {
	return dispatch.Reply{Message: "Today is " + b.cfg.Now().Format("Monday, January 02, 2006") + "."}, nil
}

func (b *builtins) createFile(ctx context.Context, args dispatch.Args) (dispatch.Reply, error) {
	name := args["name"]
	path, err := safePath(b.cfg.SandboxDir, name)
	if err != nil {
		return dispatch.Reply{}, err
	}
	if err := touch(ctx, path); err != nil {
		return dispatch.Reply{}, err
	}
	return dispatch.Reply{Message: fmt.Sprintf("Created file %s.", name)}, nil
}

func (b *builtins) screenshot(ctx context.Context, _ dispatch.Args) (dispatch.Reply, error) {
	name := "screenshot_" + b.cfg.Now().Format("20060102_150405") + ".png"
	path, err := safePath(b.cfg.ScreenshotDir, name)
	if err != nil {
		return dispatch.Reply{}, err
	}
	if err := touchDir(ctx, b.cfg.ScreenshotDir); err != nil {
		return dispatch.Reply{}, err
	}
	argv, err := b.pick("screenshot tool", screenshotTools(path))
	if err != nil {
		return dispatch.Reply{}, err
	}
	code, err := b.cfg.Runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return dispatch.Reply{ExitCode: &code}, err
	}
	return dispatch.Reply{Message: fmt.Sprintf("Screenshot saved to %s.", path), ExitCode: &code}, nil
}

func (b *builtins) openBrowser(ctx context.Context, _ dispatch.Args) (dispatch.Reply, error) {
	argv, err := b.pick("browser opener", map[string][][]string{
		"linux":  {{"xdg-open", b.cfg.BrowserURL}},
		"darwin": {{"open", b.cfg.BrowserURL}},
	})
	if err != nil {
		return dispatch.Reply{}, err
	}
	if err := b.cfg.Runner.Start(ctx, argv[0], argv[1:]...); err != nil {
		return dispatch.Reply{}, err
	}
	return dispatch.Reply{Message: "Opening your web browser."}, nil
}

func (b *builtins) playMusic(ctx context.Context, _ dispatch.Args) (dispatch.Reply, error) {
	argv, err := b.pick("music player", players)
	if err != nil {
		return dispatch.Reply{}, err
	}
	if err := b.cfg.Runner.Start(ctx, argv[0], argv[1:]...); err != nil {
		return dispatch.Reply{}, err
	}
	if b.cfg.GOOS == "darwin" {
		return dispatch.Reply{Message: "Opening music player."}, nil
	}
	return dispatch.Reply{Message: fmt.Sprintf("Opening %s.", argv[0])}, nil
}

func (b *builtins) help(context.Context, dispatch.Args) (dispatch.Reply, error) {
	abilities := []string{
		"telling the time", "today's date", "opening the terminal",
		"taking a screenshot", "creating a file", "opening the browser",
		"playing music", "adjusting the volume",
	}
	if b.cfg.AllowPower {
		abilities = append(abilities, "shutting down the computer")
	}
	last := len(abilities) - 1
	text := "I can help you with: " + strings.Join(abilities[:last], ", ") + ", and " + abilities[last] + "."
	return dispatch.Reply{Message: text}, nil
}

func (b *builtins) stop(context.Context, dispatch.Args) (dispatch.Reply, error) {
	return dispatch.Reply{Message: "Goodbye! See you next time.", Stop: true}, nil
}

// launcher returns a handler that starts the first installed candidate and
// does not wait for it.
func (b *builtins) launcher(what, msg string, candidates map[string][][]string) dispatch.Handler {
	return func(ctx context.Context, _ dispatch.Args) (dispatch.Reply, error) {
		argv, err := b.pick(what, candidates)
		if err != nil {
			return dispatch.Reply{}, err
		}
		if err := b.cfg.Runner.Start(ctx, argv[0], argv[1:]...); err != nil {
			return dispatch.Reply{}, err
		}
		return dispatch.Reply{Message: msg}, nil
	}
}

// runner returns a handler that runs the first installed candidate to
// completion and reports its exit code.
func (b *builtins) runner(what, msg string, candidates map[string][][]string) dispatch.Handler {
	return func(ctx context.Context, _ dispatch.Args) (dispatch.Reply, error) {
		argv, err := b.pick(what, candidates)
		if err != nil {
			return dispatch.Reply{}, err
		}
		code, err := b.cfg.Runner.Run(ctx, argv[0], argv[1:]...)
		if err != nil {
			return dispatch.Reply{ExitCode: &code}, err
		}
		return dispatch.Reply{Message: msg, ExitCode: &code}, nil
	}
}

// pick returns the first candidate argv for the configured platform whose
// program is installed.
func (b *builtins) pick(what string, candidates map[string][][]string) ([]string, error) {
	list, ok := candidates[b.cfg.GOOS]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnsupportedPlatform, what, b.cfg.GOOS)
	}
	for _, argv := range list {
		if _, err := b.cfg.Runner.LookPath(argv[0]); err == nil {
			return argv, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoProgram, what)
}
