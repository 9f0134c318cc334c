// Package app wires all VoxPrivate subsystems into a running application.
//
// The App struct owns the full lifecycle: New builds the providers, the
// command registry, the pipeline coordinator and the optional local HTTP
// server; Run starts listening and blocks until the assistant should exit;
// Shutdown drains the pipeline and tears everything down.
//
// For testing, register mock factories in the [config.Registry] passed to
// New and inject runners and writers via functional options.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/voxprivate/internal/commands"
	"github.com/MrWong99/voxprivate/internal/config"
	"github.com/MrWong99/voxprivate/internal/control"
	"github.com/MrWong99/voxprivate/internal/dispatch"
	"github.com/MrWong99/voxprivate/internal/feedback"
	"github.com/MrWong99/voxprivate/internal/gate"
	"github.com/MrWong99/voxprivate/internal/health"
	"github.com/MrWong99/voxprivate/internal/observe"
	"github.com/MrWong99/voxprivate/internal/pipeline"
	"github.com/MrWong99/voxprivate/pkg/provider/intent"
	"github.com/MrWong99/voxprivate/pkg/provider/vad"
)

// App owns all subsystem lifetimes and orchestrates the voice pipeline.
type App struct {
	cfg *config.Config
	reg *config.Registry

	// Injected or defaulted in New.
	cmdRunner    commands.Runner
	speechRunner feedback.Runner
	console      io.Writer
	levels       *slog.LevelVar
	metrics      *observe.Metrics
	configPath   string

	// Subsystems, initialised in New and torn down in Shutdown.
	providers  *Providers
	dispatcher *dispatch.Dispatcher
	coord      *pipeline.Coordinator
	control    *control.Server
	telemetry  *observe.Telemetry
	server     *http.Server
	listener   net.Listener
	watcher    *config.Watcher

	// base outlives the ctx passed to Run so that Shutdown can drain.
	base       context.Context
	cancelBase context.CancelFunc

	quit     chan struct{}
	quitOnce sync.Once
	fatal    chan error

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCommandRunner replaces the process runner used by the built-in
// commands.
func WithCommandRunner(r commands.Runner) Option {
	return func(a *App) { a.cmdRunner = r }
}

// WithSpeechRunner replaces the process runner used for spoken feedback.
func WithSpeechRunner(r feedback.Runner) Option {
	return func(a *App) { a.speechRunner = r }
}

// WithConsole sets where result messages are printed. Default os.Stdout.
func WithConsole(w io.Writer) Option {
	return func(a *App) { a.console = w }
}

// WithLevelVar lets config reloads adjust the level of the process logger.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.levels = lv }
}

// WithMetrics injects the metric instruments instead of building them from
// the telemetry providers.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigPath enables hot reload by watching the config file at path.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// LogLevel maps the logging section to a handler level. With logging
// disabled only errors reach the console.
func LogLevel(l config.LoggingConfig) slog.Level {
	switch {
	case !l.Enabled:
		return slog.LevelError
	case l.Verbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// verbose reports whether transcript text may appear in logs and feedback.
func verbose(l config.LoggingConfig) bool { return l.Enabled && l.Verbose }

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Provider factories
// are looked up in reg by the names configured in cfg.
//
// New performs all initialisation synchronously: telemetry, command
// registry, provider construction (model loading included), feedback sinks,
// coordinator assembly and binding the HTTP listener. The audio device is
// not opened until Run.
func New(ctx context.Context, cfg *config.Config, reg *config.Registry, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		reg:     reg,
		console: os.Stdout,
		quit:    make(chan struct{}),
		fatal:   make(chan error, 1),
	}
	for _, o := range opts {
		o(a)
	}
	a.base, a.cancelBase = context.WithCancel(context.WithoutCancel(ctx))

	fail := func(step string, err error) (*App, error) {
		if a.listener != nil {
			_ = a.listener.Close()
		}
		_ = a.closeAll(context.Background())
		return nil, fmt.Errorf("app: %s: %w", step, err)
	}

	// ── 1. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return fail("init telemetry", err)
	}

	// ── 2. Commands ──────────────────────────────────────────────────────
	d, err := NewDispatcher(cfg, a.cmdRunner)
	if err != nil {
		return fail("init commands", err)
	}
	a.dispatcher = d

	// ── 3. Providers ─────────────────────────────────────────────────────
	if err := a.initProviders(d.Registry().Catalog()); err != nil {
		return fail("init providers", err)
	}

	// ── 4. Coordinator + feedback ────────────────────────────────────────
	if err := a.initPipeline(); err != nil {
		return fail("init pipeline", err)
	}

	// ── 5. Local HTTP server ─────────────────────────────────────────────
	if err := a.initServer(); err != nil {
		return fail("init server", err)
	}

	// ── 6. Config watcher ────────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.ApplyConfig)
		if err != nil {
			return fail("watch config", err)
		}
		a.watcher = w
	}

	return a, nil
}

// NewDispatcher builds the command registry with the built-in commands and
// returns a dispatcher enforcing the configured threshold and timeout. A
// nil runner uses [commands.ExecRunner].
func NewDispatcher(cfg *config.Config, runner commands.Runner) (*dispatch.Dispatcher, error) {
	reg := dispatch.NewRegistry()
	err := commands.Register(reg, commands.Config{
		SandboxDir:    cfg.Commands.SandboxDir,
		ScreenshotDir: cfg.Commands.ScreenshotDir,
		BrowserURL:    cfg.Commands.BrowserURL,
		AllowPower:    cfg.Commands.AllowPower,
		Runner:        runner,
	})
	if err != nil {
		return nil, err
	}
	return dispatch.New(reg,
		dispatch.WithThreshold(cfg.Commands.ConfidenceThreshold),
		dispatch.WithTimeout(cfg.Commands.Timeout),
	), nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initTelemetry sets up the OTel providers when the HTTP server will expose
// them. Without a listen address the global no-op providers stay in place.
func (a *App) initTelemetry(ctx context.Context) error {
	if a.cfg.Server.ListenAddr != "" {
		tel, err := observe.Init(ctx, observe.ProviderConfig{ServiceVersion: Version})
		if err != nil {
			return err
		}
		a.telemetry = tel
		a.closers = append(a.closers, func() error {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tel.Shutdown(sctx)
		})
		if a.metrics == nil {
			m, err := observe.NewMetrics(tel.MeterProvider)
			if err != nil {
				return err
			}
			a.metrics = m
		}
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return nil
}

// initPipeline assembles the feedback sinks and the coordinator.
func (a *App) initPipeline() error {
	var sinks []pipeline.Feedback
	if !a.cfg.Feedback.Quiet {
		sinks = append(sinks, feedback.NewConsole(a.console))
	}
	if a.cfg.Feedback.Speech {
		runner := a.speechRunner
		if runner == nil {
			runner = commands.ExecRunner{}
		}
		sp, err := feedback.NewSpeaker(runner, feedback.WithRate(a.cfg.Feedback.SpeechRate))
		switch {
		case errors.Is(err, feedback.ErrNoSpeechEngine):
			slog.Warn("app: spoken feedback disabled", "err", err)
		case err != nil:
			return err
		default:
			slog.Info("app: spoken feedback enabled", "program", sp.Program())
			a.closers = append(a.closers, sp.Close)
			sinks = append(sinks, sp)
		}
	}
	if a.cfg.Logging.Enabled && a.cfg.Logging.Journal != "" {
		sinks = append(sinks, feedback.NewJournal(a.cfg.Logging.Journal))
	}
	if a.cfg.Server.ListenAddr != "" {
		// The control server needs the coordinator, which needs the sinks.
		sinks = append(sinks, pipeline.FeedbackFunc(func(ctx context.Context, ev pipeline.Event) {
			if a.control != nil {
				a.control.Publish(ctx, ev)
			}
		}))
	}

	coord, err := pipeline.New(pipeline.Config{
		Source: a.providers.Source,
		VAD:    a.providers.VAD,
		VADConfig: vad.Config{
			SampleRate:       a.cfg.Audio.SampleRate,
			SpeechThreshold:  a.cfg.VAD.SpeechThreshold,
			SilenceThreshold: a.cfg.VAD.SilenceThreshold,
		},
		Gate: gate.Config{
			Hangover:    a.cfg.VAD.Hangover,
			MaxDuration: a.cfg.VAD.MaxUtterance,
			MinSpeech:   a.cfg.VAD.MinSpeech,
		},
		Transcriber: a.providers.STT,
		Resolver:    a.providers.Resolver,
		Dispatcher:  stopSignal{Dispatcher: a.dispatcher, onStop: a.requestQuit},
		Feedback:    feedback.Fanout(sinks...),
		Metrics:     a.metrics,
		Reconnect: pipeline.ReconnectConfig{
			MaxRetries: a.cfg.Pipeline.MaxRetries,
			Backoff:    a.cfg.Pipeline.Backoff,
			MaxBackoff: a.cfg.Pipeline.MaxBackoff,
		},
		OnStopped: a.onStopped,
		Verbose:   verbose(a.cfg.Logging),
	})
	if err != nil {
		return err
	}
	a.coord = coord
	return nil
}

// initServer binds the loopback HTTP server for health, metrics and the
// control socket. It is skipped when no listen address is configured.
func (a *App) initServer() error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		return nil
	}
	a.control = control.New(a.base, a.coord, control.WithStopTimeout(a.cfg.Pipeline.StopTimeout))

	mux := http.NewServeMux()
	health.New(health.Func("pipeline", a.coord.Ready)).Register(mux)
	mux.Handle("GET /metrics", a.telemetry.Handler())
	mux.Handle("GET /control", a.control)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	a.listener = ln
	a.server = &http.Server{
		Handler:           observe.LoopbackOnly(observe.Middleware(a.metrics)(mux)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Coordinator returns the pipeline coordinator.
func (a *App) Coordinator() *pipeline.Coordinator { return a.coord }

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Addr returns the bound HTTP address, or "" when the server is disabled.
func (a *App) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the HTTP server and the pipeline and blocks until ctx is
// cancelled, the stop command is spoken, or the audio device is lost for
// good. A voice stop returns nil; a lost device returns the fatal error;
// cancellation returns ctx.Err(). Call Shutdown afterwards in every case.
//
// Stopping the pipeline through the control socket does not end Run; it
// can be started again the same way.
func (a *App) Run(ctx context.Context) error {
	if a.server != nil {
		go func() {
			if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("app: http server failed", "err", err)
			}
		}()
		slog.Info("app: serving health, metrics and control", "addr", a.Addr())
	}

	if err := a.coord.Start(a.base); err != nil {
		return fmt.Errorf("app: start pipeline: %w", err)
	}
	slog.Info("app: listening for voice commands")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.quit:
		slog.Info("app: stop requested by voice command")
		return nil
	case err := <-a.fatal:
		return err
	}
}

// requestQuit ends Run after a successful stop command.
func (a *App) requestQuit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// onStopped forwards fatal pipeline errors to Run.
func (a *App) onStopped(err error) {
	if err == nil {
		return
	}
	select {
	case a.fatal <- err:
	default:
	}
}

// stopSignal reports successful stop commands to the app. The coordinator
// stops itself on the same result.
type stopSignal struct {
	pipeline.Dispatcher
	onStop func()
}

func (s stopSignal) Dispatch(ctx context.Context, in intent.Intent) dispatch.Result {
	res := s.Dispatcher.Dispatch(ctx, in)
	if res.Success && res.Stop {
		s.onStop()
	}
	return res
}

// ─── Reload ──────────────────────────────────────────────────────────────────

// ApplyConfig applies the hot-reloadable differences between old and new:
// the log level, transcript verbosity and the confidence threshold. Other
// changes are logged as needing a restart.
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LoggingChanged {
		if a.levels != nil {
			a.levels.Set(LogLevel(d.NewLogging))
		}
		a.coord.SetVerbose(verbose(d.NewLogging))
		slog.Info("config: logging updated", "enabled", d.NewLogging.Enabled, "verbose", d.NewLogging.Verbose)
	}
	if d.ThresholdChanged {
		a.dispatcher.SetThreshold(d.NewThreshold)
		slog.Info("config: confidence threshold updated", "threshold", d.NewThreshold)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config: changes take effect after a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown drains the pipeline, then tears down all subsystems in reverse
// init order. The drain is bounded by pipeline.stop_timeout and by ctx; if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))

		stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Pipeline.StopTimeout)
		if err := a.coord.Stop(stopCtx); err != nil {
			slog.Warn("app: pipeline drain incomplete", "err", err)
		}
		cancel()

		if a.watcher != nil {
			a.watcher.Stop()
		}
		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("app: http server shutdown", "err", err)
			}
		}
		shutdownErr = a.closeAll(ctx)
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

// closeAll cancels the base context and runs the closers last to first.
func (a *App) closeAll(ctx context.Context) error {
	a.cancelBase()
	for i := len(a.closers) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
			return ctx.Err()
		default:
		}
		if err := a.closers[i](); err != nil {
			slog.Warn("app: closer error", "index", i, "err", err)
		}
	}
	a.closers = nil
	return nil
}
