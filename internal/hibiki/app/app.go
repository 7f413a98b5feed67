// Package app provides the main Hibiki application: the orchestrator that
// turns text into checked, dispatched actions, and the process that wires it
// to the store, the scheduler, the inbox and the terminal.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Hibiki/internal/hibiki/audit"
	"github.com/bdobrica/Hibiki/internal/hibiki/builtin"
	"github.com/bdobrica/Hibiki/internal/hibiki/dispatch"
	"github.com/bdobrica/Hibiki/internal/hibiki/inbox"
	"github.com/bdobrica/Hibiki/internal/hibiki/intent"
	"github.com/bdobrica/Hibiki/internal/hibiki/lexicon"
	"github.com/bdobrica/Hibiki/internal/hibiki/memory"
	"github.com/bdobrica/Hibiki/internal/hibiki/responses"
	"github.com/bdobrica/Hibiki/internal/hibiki/scheduler"
	"github.com/bdobrica/Hibiki/internal/hibiki/security"
	"github.com/bdobrica/Hibiki/internal/hibiki/state"
	"github.com/bdobrica/Hibiki/internal/hibiki/store"
)

// quitCommand ends the terminal session.
const quitCommand = "/quit"

var errQuit = errors.New("quit requested")

// Config holds application configuration
type Config struct {
	DatabasePath string
	// Owner is the identity of commands that carry no actor.
	Owner string
	// Authorized lists the identities allowed to request destructive
	// actions. Defaults to Owner alone.
	Authorized []string
	// Locale is the reply language when detection finds none.
	Locale string
	// Tick is the scheduler interval. Defaults to scheduler.DefaultTick.
	Tick time.Duration
	// InboxDir is a directory watched for command files. Empty disables it.
	InboxDir string
	// LexiconPath and ResponsesPath override the embedded pattern table and
	// response catalog when non-empty.
	LexiconPath   string
	ResponsesPath string
	// Preauthorized lists destructive actions that may be scheduled.
	Preauthorized []string
	// ProtocolStepDelay is the pause between protocol steps.
	ProtocolStepDelay time.Duration
	// DryRun binds a log-only handler to every action without a real one.
	DryRun bool
	// Output receives spoken replies. Defaults to os.Stdout.
	Output io.Writer
	// Fallback answers unrecognised input. Optional.
	Fallback Fallback
}

// App is a fully wired Hibiki process.
type App struct {
	config       *Config
	store        *store.Store
	parser       *intent.Parser
	state        *state.AgentState
	tracker      *memory.Tracker
	dispatcher   *dispatch.Dispatcher
	scheduler    *scheduler.Scheduler
	catalog      *responses.Catalog
	speaker      *WriterSpeaker
	orchestrator *Orchestrator
	inbox        *inbox.Watcher
}

// New creates a new Hibiki application
func New(config *Config) (*App, error) {
	if config.Owner == "" {
		return nil, errors.New("owner must not be empty")
	}
	authorized := config.Authorized
	if len(authorized) == 0 {
		authorized = []string{config.Owner}
	}
	out := config.Output
	if out == nil {
		out = os.Stdout
	}

	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	lx, err := lexicon.LoadOrDefault(config.LexiconPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load pattern table: %w", err)
	}
	slog.Info("pattern table ready", "patterns", len(lx.Patterns()), "actions", len(lx.Actions()), "protocols", len(lx.Protocols()))

	catalog, err := responses.LoadOrDefault(config.ResponsesPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load response catalog: %w", err)
	}
	locale := config.Locale
	if locale == "" || !catalog.Has(locale) {
		locale = catalog.DefaultLocale()
	}

	agent := state.New()
	policy := security.NewPolicy(agent, authorized)
	slog.Info("security policy ready", "authorized", len(authorized), "preauthorized", len(config.Preauthorized))

	tracker := memory.NewTracker(st)
	sched := scheduler.New(st, agent, scheduler.WithTick(config.Tick))
	speaker := NewWriterSpeaker(out)

	registry := builtin.Register(dispatch.NewRegistry(), builtin.Deps{
		Speaker: speaker,
		Tasks:   sched,
	}, lx.Actions(), config.DryRun)
	dispatcher := dispatch.New(registry, dispatch.WithObserver(tracker))
	slog.Info("dispatcher ready", "handlers", len(registry.Actions()), "dry_run", config.DryRun)

	notifier := audit.Multi{audit.NewLogNotifier(nil), audit.NewStoreNotifier(st)}

	parser := intent.NewParser(lx)
	orch := NewOrchestrator(OrchestratorConfig{
		Parser:            parser,
		Policy:            policy,
		State:             agent,
		Dispatcher:        dispatcher,
		Scheduler:         sched,
		Formatter:         catalog,
		Speaker:           speaker,
		Fallback:          config.Fallback,
		Owner:             config.Owner,
		Notifier:          notifier,
		History:           tracker,
		Locale:            locale,
		Preauthorized:     config.Preauthorized,
		ProtocolStepDelay: config.ProtocolStepDelay,
	})
	sched.SetRunner(orch)

	a := &App{
		config:       config,
		store:        st,
		parser:       parser,
		state:        agent,
		tracker:      tracker,
		dispatcher:   dispatcher,
		scheduler:    sched,
		catalog:      catalog,
		speaker:      speaker,
		orchestrator: orch,
	}
	if config.InboxDir != "" {
		a.inbox = inbox.New(config.InboxDir, a.submit(SourceInbox))
		slog.Info("inbox configured", "dir", config.InboxDir)
	}
	return a, nil
}

// Orchestrator returns the command pipeline.
func (a *App) Orchestrator() *Orchestrator { return a.orchestrator }

// Scheduler returns the task scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Store returns the database.
func (a *App) Store() *store.Store { return a.store }

// Run loads the persisted tasks, greets the user and serves commands from in
// (when non-nil) and the inbox until ctx is cancelled or the user quits.
func (a *App) Run(ctx context.Context, in io.Reader) error {
	if err := a.scheduler.Load(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to load scheduled tasks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.tracker.Run(gctx) })
	g.Go(func() error { return a.scheduler.Run(gctx) })
	if a.inbox != nil {
		g.Go(func() error { return a.inbox.Run(gctx) })
	}
	if in != nil {
		g.Go(func() error { return a.repl(gctx, in) })
	}

	greeting := a.catalog.Greeting(a.orchestrator.locale, a.scheduler.Now().Hour(), nil)
	if err := a.speaker.Speak(gctx, greeting); err != nil {
		slog.Warn("greeting failed", "err", err)
	}
	slog.Info("Hibiki is running; press Ctrl+C to stop")

	err := g.Wait()
	a.orchestrator.StopProtocols()
	a.orchestrator.WaitProtocols()
	if errors.Is(err, errQuit) {
		err = nil
	}
	slog.Info("shutting down")
	return err
}

// Stop releases the database.
func (a *App) Stop() {
	slog.Info("closing database")
	if err := a.store.Close(); err != nil {
		slog.Warn("failed to close database", "err", err)
	}
}

func (a *App) submit(source string) inbox.Submit {
	return func(ctx context.Context, text string) {
		a.orchestrator.ProcessCommand(ctx, Command{Text: text, Source: source})
	}
}

// repl reads one command per line. The scanner runs on its own goroutine so
// that cancelling ctx returns at once even while a read is blocked.
func (a *App) repl(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			slog.Warn("stdin read failed", "err", err)
		}
	}()

	run := a.submit(SourceCLI)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				slog.Info("stdin closed")
				return nil
			}
			text := strings.TrimSpace(line)
			switch text {
			case "":
				continue
			case quitCommand:
				return errQuit
			}
			run(ctx, text)
		}
	}
}
