package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
)

// Runner starts external programs. Every method takes the program name and
// its arguments as separate values; nothing is ever passed through a shell.
type Runner interface {
	// LookPath reports whether file is installed, like [exec.LookPath].
	LookPath(file string) (string, error)

	// Start launches a program and returns without waiting for it. Used for
	// desktop applications that outlive the command.
	Start(ctx context.Context, name string, args ...string) error

	// Run executes a program to completion and returns its exit code.
	Run(ctx context.Context, name string, args ...string) (int, error)
}

// ExecRunner is the [Runner] backed by os/exec.
type ExecRunner struct{}

var _ Runner = ExecRunner{}

// LookPath implements [Runner].
func (ExecRunner) LookPath(file string) (string, error) { return exec.LookPath(file) }

// Start implements [Runner]. The child is not bound to ctx so that it keeps
// running after the handler returns; a goroutine reaps it on exit.
func (ExecRunner) Start(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("commands: start %s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("commands: launched program exited", "program", name, "err", err)
		}
	}()
	return nil
}

// Run implements [Runner]. A non-zero exit status is returned as the exit
// code together with an error.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return -1, fmt.Errorf("commands: run %s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), fmt.Errorf("commands: %s exited with status %d", name, exitErr.ExitCode())
	}
	return -1, fmt.Errorf("commands: run %s: %w", name, err)
}
