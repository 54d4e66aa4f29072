// Package proc spawns agent subprocesses and reports their outcome.
// Callers own retry policy; proc never retries.
package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// Request describes one subprocess invocation. Command[0] is the binary,
// the rest are arguments. Dir and Env are optional; Env entries are
// appended to the inherited environment.
type Request struct {
	Command []string
	Dir     string
	Env     []string
}

// Result holds the outcome of a non-interactive run. It is always produced
// for a process that launched, regardless of exit status.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Success  bool
}

// InteractiveResult holds the outcome of an interactive run. Output is not
// captured; only the exit status is known.
type InteractiveResult struct {
	ExitCode int
	Success  bool
}

// CommandFactory builds an *exec.Cmd for the given context and request.
// The default factory uses exec.CommandContext. Tests can inject a factory
// that invokes a helper process instead.
type CommandFactory func(ctx context.Context, req Request) *exec.Cmd

func defaultCommandFactory(ctx context.Context, req Request) *exec.Cmd {
	cmd := exec.CommandContext(ctx, req.Command[0], req.Command[1:]...)
	cmd.Dir = req.Dir
	if len(req.Env) > 0 {
		cmd.Env = append(os.Environ(), req.Env...)
	}
	return cmd
}

// options holds optional configuration for Run and RunInteractive.
type options struct {
	commandFactory CommandFactory
	stdoutTee      io.Writer
}

// Option configures a run.
type Option func(*options)

// WithCommandFactory injects a custom command factory (used in tests).
func WithCommandFactory(f CommandFactory) Option {
	return func(o *options) { o.commandFactory = f }
}

// WithStdoutTee mirrors captured stdout to w in real time for observability.
func WithStdoutTee(w io.Writer) Option {
	return func(o *options) { o.stdoutTee = w }
}

// Run spawns the requested command with stdout and stderr piped, drains both
// streams concurrently to avoid pipe-buffer deadlock, and waits for exit.
// A nonzero exit status is reported in the Result, not as an error; an error
// is returned only when the process could not be launched or its pipes could
// not be read.
func Run(ctx context.Context, req Request, opts ...Option) (*Result, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("proc: empty command")
	}
	cfg := options{commandFactory: defaultCommandFactory}
	for _, o := range opts {
		o(&cfg)
	}

	cmd := cfg.commandFactory(ctx, req)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("proc: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("proc: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("proc: starting %s: %w", req.Command[0], err)
	}

	// Drain both pipes in parallel; joining before Wait is required because
	// Wait closes the pipes.
	var (
		wg                   sync.WaitGroup
		outBuf, errBuf       []byte
		outReadErr, errReadErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		var r io.Reader = stdout
		if cfg.stdoutTee != nil {
			r = io.TeeReader(stdout, cfg.stdoutTee)
		}
		outBuf, outReadErr = io.ReadAll(r)
	}()
	go func() {
		defer wg.Done()
		errBuf, errReadErr = io.ReadAll(stderr)
	}()
	wg.Wait()

	waitErr := cmd.Wait()

	exitCode := 0
	if waitErr != nil {
		exitErr, ok := waitErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("proc: waiting for %s: %w", req.Command[0], waitErr)
		}
		exitCode = exitErr.ExitCode()
	}
	// Read failures on a process that otherwise ran are launch-environment
	// problems; surface them rather than returning truncated output.
	if outReadErr != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("proc: reading stdout: %w", outReadErr)
	}
	if errReadErr != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("proc: reading stderr: %w", errReadErr)
	}

	return &Result{
		ExitCode: exitCode,
		Stdout:   string(outBuf),
		Stderr:   string(errBuf),
		Success:  exitCode == 0,
	}, nil
}
