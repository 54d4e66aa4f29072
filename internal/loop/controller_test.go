package loop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralphloop/internal/agent"
	"ralphloop/internal/proc"
	"ralphloop/internal/prompt"
	"ralphloop/internal/sessions"
)

// scriptedAgent implements agent.Adapter with a canned sequence of run
// results. Invocations beyond the script replay the last entry.
type scriptedAgent struct {
	results []*agent.RunResult
	runErr  error

	prompts []string
	cancel  context.CancelFunc // when set, fires during the invocation
}

func (a *scriptedAgent) Run(ctx context.Context, p, model string, _ agent.RunOptions) (*agent.RunResult, error) {
	a.prompts = append(a.prompts, p)
	if a.cancel != nil {
		a.cancel()
	}
	if a.runErr != nil {
		return nil, a.runErr
	}
	i := len(a.prompts) - 1
	if i >= len(a.results) {
		i = len(a.results) - 1
	}
	return a.results[i], nil
}

func (a *scriptedAgent) CheckAvailability(context.Context) bool { return true }
func (a *scriptedAgent) RunInteractive(context.Context, string, string, agent.RunOptions) (*proc.InteractiveResult, error) {
	return &proc.InteractiveResult{Success: true}, nil
}
func (a *scriptedAgent) Export(string) agent.ExportResult { return agent.ExportResult{} }
func (a *scriptedAgent) Metadata() agent.Metadata {
	return agent.Metadata{Name: "opencode", Command: "opencode"}
}
func (a *scriptedAgent) DefaultModels() agent.ModelConfig   { return agent.ModelConfig{} }
func (a *scriptedAgent) InstallationURL() string            { return "" }
func (a *scriptedAgent) UnavailableErrorMessage() string    { return "" }

var _ agent.Adapter = (*scriptedAgent)(nil)

// recordingObserver captures callback order for assertions.
type recordingObserver struct {
	NoopObserver
	starts    []int
	completes []IterationResult
	summary   *RunSummary
}

func (o *recordingObserver) OnIterationStart(i, _ int)            { o.starts = append(o.starts, i) }
func (o *recordingObserver) OnIterationComplete(r IterationResult) { o.completes = append(o.completes, r) }
func (o *recordingObserver) OnLoopEnd(s *RunSummary)               { o.summary = s }

func continuing() *agent.RunResult {
	return &agent.RunResult{Stdout: "still working", SessionID: "ses_continue01", ExitCode: 0}
}

func completed() *agent.RunResult {
	return &agent.RunResult{
		Stdout:             "done <promise>COMPLETE</promise>",
		SessionID:          "ses_complete01",
		CompletionDetected: true,
	}
}

func newTestConfig(t *testing.T, a agent.Adapter) Config {
	t.Helper()
	store, err := sessions.Open(t.TempDir())
	require.NoError(t, err)
	return Config{
		Agent:         a,
		AgentName:     "opencode",
		Mode:          prompt.ModeBuild,
		Prompt:        "build the thing",
		Model:         "anthropic/claude-opus-4-5",
		MaxIterations: 5,
		Store:         store,
		Output:        &bytes.Buffer{},
	}
}

func TestRunStopsOnCompletionMarker(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{continuing(), continuing(), completed()}}
	cfg := newTestConfig(t, a)
	obs := &recordingObserver{}
	cfg.Observer = obs

	summary, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 3, summary.Iterations)
	assert.Equal(t, "ses_complete01", summary.LastSessionID)
	assert.Equal(t, []int{1, 2, 3}, obs.starts)
	require.Len(t, obs.completes, 3)
	assert.True(t, obs.completes[2].CompletionDetected)
	require.NotNil(t, obs.summary)
	assert.Equal(t, 0, summary.State.ExitCode())

	// Same resolved prompt on every invocation; no mutation between runs.
	for _, p := range a.prompts {
		assert.Equal(t, "build the thing", p)
	}

	records := cfg.Store.Sessions()
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, i+1, r.Iteration)
		assert.Equal(t, "opencode", r.Agent)
		assert.True(t, r.PrintMode)
	}
}

func TestRunExhaustsIterationCap(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{continuing()}}
	cfg := newTestConfig(t, a)
	cfg.MaxIterations = 3

	summary, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, StateExhausted, summary.State)
	assert.Equal(t, 3, summary.Iterations)
	assert.Len(t, a.prompts, 3)
	assert.Equal(t, 2, summary.State.ExitCode())
	assert.Len(t, cfg.Store.Sessions(), 3)
}

func TestRunDefaultsIterationCap(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{continuing()}}
	cfg := newTestConfig(t, a)
	cfg.MaxIterations = 0

	summary, err := Run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, summary.Iterations)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &scriptedAgent{results: []*agent.RunResult{continuing()}}
	cfg := newTestConfig(t, a)

	summary, err := Run(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, summary.State)
	assert.Empty(t, a.prompts)
	assert.Empty(t, cfg.Store.Sessions())
}

func TestRunCancelledMidFlightDiscardsKilledIteration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// A negative exit code is what the runner reports when cancellation
	// killed the subprocess before it exited on its own.
	killed := &agent.RunResult{Stdout: "partial output", ExitCode: -1}
	a := &scriptedAgent{results: []*agent.RunResult{killed}, cancel: cancel}
	cfg := newTestConfig(t, a)
	obs := &recordingObserver{}
	cfg.Observer = obs

	summary, err := Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, summary.State)
	assert.Equal(t, 0, summary.Iterations)
	assert.Len(t, a.prompts, 1, "the invocation started before cancel fired")

	// The interrupted iteration leaves no trace in the record.
	assert.Empty(t, cfg.Store.Sessions())
	assert.Empty(t, obs.completes)
	assert.Equal(t, 5, summary.State.ExitCode())
}

func TestRunCancelAfterCompletedResultKeepsRecord(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// The subprocess exited cleanly with the completion marker before the
	// interrupt was observed: the iteration is real and must be recorded,
	// and the run completed rather than cancelled.
	a := &scriptedAgent{results: []*agent.RunResult{completed()}, cancel: cancel}
	cfg := newTestConfig(t, a)

	summary, err := Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 1, summary.Iterations)

	records := cfg.Store.Sessions()
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Iteration)
	assert.Equal(t, "ses_complete01", records[0].SessionID)
}

func TestRunCancelAfterCleanExitRecordsThenStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Clean exit, no completion marker, interrupt observed afterward: the
	// iteration's record is kept and the run then stops cancelled instead
	// of starting the next iteration.
	a := &scriptedAgent{results: []*agent.RunResult{continuing()}, cancel: cancel}
	cfg := newTestConfig(t, a)

	summary, err := Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, StateCancelled, summary.State)
	assert.Equal(t, 1, summary.Iterations)
	assert.Len(t, a.prompts, 1)

	records := cfg.Store.Sessions()
	require.Len(t, records, 1)
	assert.Equal(t, "ses_continue01", records[0].SessionID)
}

func TestRunLaunchFailureIsFatal(t *testing.T) {
	a := &scriptedAgent{runErr: errors.New("exec: opencode: not found")}
	cfg := newTestConfig(t, a)

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iteration 1")
	assert.Empty(t, cfg.Store.Sessions())
}

func TestRunCountsNonZeroExits(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{
		{Stdout: "flaked", SessionID: "ses_fail000001", ExitCode: 1},
		completed(),
	}}
	cfg := newTestConfig(t, a)

	summary, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, summary.State)
	assert.Equal(t, 1, summary.FailedExits)
	// The failed iteration is still recorded; failure is data, not a stop.
	assert.Len(t, cfg.Store.Sessions(), 2)
}

func TestRunEmitsBannersAndSummary(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{completed()}}
	cfg := newTestConfig(t, a)
	var buf bytes.Buffer
	cfg.Output = &buf

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Iteration 1/5")
	assert.Contains(t, out, "[1/5]")
	assert.Contains(t, out, "ses_complete01")
	assert.Contains(t, out, "Ralph loop finished:")
}

func TestRunVerbosePrintsExcerpts(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{{
		Stdout:             "line one\nline two\n<promise>COMPLETE</promise>",
		Stderr:             "warn: something",
		CompletionDetected: true,
	}}}
	cfg := newTestConfig(t, a)
	cfg.Verbose = true
	var buf bytes.Buffer
	cfg.Output = &buf

	_, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "stdout:")
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, "stderr:")
	assert.Contains(t, out, "warn: something")
}

func TestRunResolvesPromptEachIteration(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{continuing(), continuing(), completed()}}
	cfg := newTestConfig(t, a)

	resolutions := 0
	cfg.ResolvePrompt = func() (string, error) {
		resolutions++
		return fmt.Sprintf("prompt rev %d", resolutions), nil
	}

	summary, err := Run(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, resolutions, "one resolution per iteration")
	require.Len(t, a.prompts, 3)
	assert.Equal(t, "prompt rev 2", a.prompts[1])

	// Each record carries the prompt its iteration actually ran with.
	records := cfg.Store.Sessions()
	require.Len(t, records, 3)
	assert.Equal(t, "prompt rev 3", records[2].Prompt)
	assert.Equal(t, StateCompleted, summary.State)
}

func TestRunPromptResolutionFailureIsFatal(t *testing.T) {
	a := &scriptedAgent{results: []*agent.RunResult{continuing()}}
	cfg := newTestConfig(t, a)
	cfg.ResolvePrompt = func() (string, error) {
		return "", errors.New("template deleted mid-run")
	}

	_, err := Run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving prompt for iteration 1")
	assert.Empty(t, a.prompts, "no invocation happens without a prompt")
}

func TestRunRequiresAgentAndStore(t *testing.T) {
	_, err := Run(context.Background(), Config{Store: nil, Agent: nil})
	require.Error(t, err)

	store, serr := sessions.Open(t.TempDir())
	require.NoError(t, serr)
	_, err = Run(context.Background(), Config{Store: store})
	require.Error(t, err)
}
