package loop

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"ralphloop/internal/agent"
	"ralphloop/internal/prompt"
	"ralphloop/internal/sessions"
)

// Config configures one loop run. The model and adapter are resolved before
// the loop starts and stay fixed for its whole duration.
type Config struct {
	Agent     agent.Adapter
	AgentName string // config spelling, recorded per iteration

	Mode  prompt.Mode
	Model string

	// Prompt is the iteration prompt when ResolvePrompt is nil.
	Prompt string

	// ResolvePrompt, when set, is called at the top of every iteration to
	// produce that iteration's prompt text. A resolution failure is fatal.
	ResolvePrompt func() (string, error)

	// MaxIterations caps the run. Zero means DefaultMaxIterations.
	MaxIterations int

	Verbose bool

	RunOptions agent.RunOptions

	Store    *sessions.Store
	Observer ProgressObserver
	Output   io.Writer // defaults to os.Stdout

	// Test hook. Nil means time.Now.
	Now func() time.Time
}

// DefaultMaxIterations caps the loop when the caller does not set one.
const DefaultMaxIterations = 10

// Run executes the loop until completion is detected, the iteration cap is
// hit, or ctx is cancelled. Each iteration is a wholly fresh agent
// invocation: no conversational context, session handle, or transcript is
// carried forward between iterations. A summary is always returned on a
// controlled stop; an error means the loop could not run at all or an
// invocation failed to launch.
func Run(ctx context.Context, cfg Config) (*RunSummary, error) {
	if cfg.Agent == nil {
		return nil, fmt.Errorf("loop: no agent configured")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("loop: no session store configured")
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Observer == nil {
		cfg.Observer = NoopObserver{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	styles := DefaultStyles()
	summary := &RunSummary{State: StateRunning}
	loopStart := now()

	finish := func(state State) *RunSummary {
		summary.State = state
		summary.Duration = now().Sub(loopStart)
		cfg.Observer.OnLoopEnd(summary)
		writef(cfg.Output, "\n%s\n", formatSummary(styles, summary))
		return summary
	}

	cfg.Observer.OnLoopStart(cfg.MaxIterations)

	for i := 1; i <= cfg.MaxIterations; i++ {
		if ctx.Err() != nil {
			return finish(StateCancelled), nil
		}

		cfg.Observer.OnIterationStart(i, cfg.MaxIterations)
		writef(cfg.Output, "%s\n", formatIterationBanner(styles, i, cfg.MaxIterations))

		promptText := cfg.Prompt
		if cfg.ResolvePrompt != nil {
			var err error
			promptText, err = cfg.ResolvePrompt()
			if err != nil {
				return nil, fmt.Errorf("resolving prompt for iteration %d: %w", i, err)
			}
		}

		iterStart := now()
		res, err := cfg.Agent.Run(ctx, promptText, cfg.Model, cfg.RunOptions)
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-flight: the interrupted iteration gets no
				// record.
				return finish(StateCancelled), nil
			}
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
		if ctx.Err() != nil && res.ExitCode < 0 {
			// A negative exit code means the subprocess died on the
			// cancellation kill signal rather than exiting on its own; its
			// partial output is not a real iteration. A result whose
			// process had already exited when cancellation was observed is
			// recorded normally below.
			return finish(StateCancelled), nil
		}

		stored, err := cfg.Store.Append(sessions.SessionState{
			SessionID: res.SessionID,
			StartedAt: iterStart,
			Mode:      cfg.Mode,
			Prompt:    promptText,
			Agent:     cfg.AgentName,
			PrintMode: true,
		})
		if err != nil {
			return nil, fmt.Errorf("recording iteration %d: %w", i, err)
		}

		iterResult := IterationResult{
			Iteration:          stored.Iteration,
			SessionID:          res.SessionID,
			ExitCode:           res.ExitCode,
			CompletionDetected: res.CompletionDetected,
			Duration:           now().Sub(iterStart),
		}

		summary.Iterations++
		summary.LastSessionID = res.SessionID
		if res.ExitCode != 0 {
			summary.FailedExits++
		}

		cfg.Observer.OnIterationComplete(iterResult)
		writef(cfg.Output, "%s\n", formatIterationLog(styles, iterResult, cfg.MaxIterations))
		if cfg.Verbose {
			printVerboseOutput(cfg.Output, res)
		}

		if res.CompletionDetected {
			return finish(StateCompleted), nil
		}
	}

	return finish(StateExhausted), nil
}
