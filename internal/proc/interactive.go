package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// RunInteractive spawns the requested command attached to the caller's
// terminal and waits for it to exit. Nothing is captured or parsed.
//
// When stdin is a terminal the child runs inside a fresh PTY with the
// caller's window size mirrored into it, so full-screen agent UIs render
// correctly. Otherwise the child simply inherits the caller's stdio.
func RunInteractive(ctx context.Context, req Request, opts ...Option) (*InteractiveResult, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("proc: empty command")
	}
	cfg := options{commandFactory: defaultCommandFactory}
	for _, o := range opts {
		o(&cfg)
	}

	cmd := cfg.commandFactory(ctx, req)

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return runInherited(cmd)
	}
	return runInPTY(cmd)
}

// runInherited wires the child directly to the caller's stdio.
func runInherited(cmd *exec.Cmd) (*InteractiveResult, error) {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	err := cmd.Run()
	return interactiveResult(cmd, err)
}

// runInPTY hosts the child in a PTY, forwarding window resizes and raw
// keyboard input until the child exits.
func runInPTY(cmd *exec.Cmd) (*InteractiveResult, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("proc: starting %s in pty: %w", cmd.Path, err)
	}
	defer func() { _ = ptmx.Close() }()

	// Mirror the caller's window size into the PTY, now and on SIGWINCH.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	winch <- syscall.SIGWINCH

	// Raw mode so keystrokes reach the child unbuffered.
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err == nil {
		defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()
	}

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	_, _ = io.Copy(os.Stdout, ptmx)

	return interactiveResult(cmd, cmd.Wait())
}

// interactiveResult converts a Run/Wait error into an InteractiveResult,
// treating nonzero exits as data rather than errors.
func interactiveResult(cmd *exec.Cmd, err error) (*InteractiveResult, error) {
	exitCode := 0
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("proc: running %s: %w", cmd.Path, err)
		}
		exitCode = exitErr.ExitCode()
	}
	return &InteractiveResult{ExitCode: exitCode, Success: exitCode == 0}, nil
}
