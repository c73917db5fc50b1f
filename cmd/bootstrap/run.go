package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/bootstrap/internal/capability"
	"github.com/alexisbeaulieu97/bootstrap/internal/engine"
	"github.com/alexisbeaulieu97/bootstrap/internal/logger"
	"github.com/alexisbeaulieu97/bootstrap/internal/model"
	"github.com/alexisbeaulieu97/bootstrap/internal/profile"
	"github.com/alexisbeaulieu97/bootstrap/internal/secret"
	"github.com/alexisbeaulieu97/bootstrap/internal/steps"
	"github.com/alexisbeaulieu97/bootstrap/internal/sudo"
	"github.com/alexisbeaulieu97/bootstrap/internal/tui"
)

const sudoRefreshInterval = 60 * time.Second

func runPipeline(ctx context.Context, flags *rootFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	level := "info"
	if flags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve home directory: %w", err)
	}

	p, err := profile.Load(home)
	if err != nil {
		return err
	}

	// Probe once, before any mutation. An unsupported platform aborts here.
	manager, err := capability.Detect(nil)
	if err != nil {
		return err
	}
	log.WithFields(map[string]any{"manager": manager.Name()}).Debug("package manager detected")

	prompt := secret.PromptSource(secret.NewTTYPrompt())
	if flags.dryRun {
		// The placeholder keeps later predicates evaluable without a prompt;
		// Apply never runs under dry-run, so it is never used to decrypt.
		prompt = secret.NewStaticPrompt([]byte("dry-run-placeholder"))
	}

	deps := steps.Deps{
		Manager: manager,
		Client:  capability.NewGitClient(),
		Oracle:  oracleFor(p.Key.Blob, home),
		Trust:   capability.NewGPGTrust(),
		Prompt:  prompt,
		Log:     log,
		Home:    home,
	}
	sequence := steps.Build(p, deps)

	if !flags.dryRun {
		keepalive := sudo.Start(ctx, log, sudoRefreshInterval)
		defer keepalive.Stop()
	}

	interactive := term.IsTerminal(int(os.Stdout.Fd())) && !flags.verbose
	if !interactive {
		pipeline := &engine.Pipeline{DryRun: flags.dryRun, Log: log}
		results, err := pipeline.Run(ctx, sequence)
		logSummary(log, results, flags.dryRun)
		return err
	}

	return runInteractive(ctx, log, sequence, flags.dryRun)
}

func runInteractive(ctx context.Context, log *logger.Logger, sequence []engine.Step, dryRun bool) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan engine.Event, 2*len(sequence))
	pipeline := &engine.Pipeline{DryRun: dryRun, Log: log, Events: events}

	program := tea.NewProgram(tui.NewModel(sequence, dryRun))

	go func() {
		for event := range events {
			program.Send(tui.EventMsg(event))
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		_, err := pipeline.Run(runCtx, sequence)
		close(events)
		errCh <- err
		program.Send(tui.FinishedMsg{Err: err})
	}()

	final, programErr := program.Run()
	if m, ok := final.(tui.Model); ok && m.Aborted() {
		// The UI exited first; tear the pipeline down so transient secret
		// files are destroyed before the process leaves.
		cancel()
	}

	err := <-errCh
	if programErr != nil && err == nil {
		return programErr
	}
	return err
}

func logSummary(log *logger.Logger, results []model.StepResult, dryRun bool) {
	changed := 0
	for _, res := range results {
		if res.Changed() {
			changed++
		}
	}
	verb := "changed"
	if dryRun {
		verb = "would change"
	}
	log.Info(fmt.Sprintf("%d of %d steps %s state", changed, len(results), verb))
}

// oracleFor picks the decrypt capability from the blob format: age blobs
// decrypt in-process, everything else goes through gpg with loopback
// pinentry against the user's agent configuration.
func oracleFor(blobPath, home string) capability.DecryptOracle {
	if strings.HasSuffix(blobPath, ".age") {
		return capability.NewAgeOracle()
	}
	return capability.NewGPGOracle(gnupgHome(home))
}

func gnupgHome(home string) string {
	if env := os.Getenv("GNUPGHOME"); env != "" {
		return env
	}
	return filepath.Join(home, ".gnupg")
}
