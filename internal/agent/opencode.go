package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ralphloop/internal/jsonutil"
	"ralphloop/internal/proc"
)

const (
	opencodeCommand     = "opencode"
	opencodeDisplayName = "OpenCode"
	opencodeInstallURL  = "https://opencode.ai/docs"

	opencodeDefaultSmartModel = "anthropic/claude-opus-4-5"
	opencodeDefaultFastModel  = "anthropic/claude-haiku-4-5"
)

// OpenCode drives the opencode CLI. Headless runs use the `run` subcommand;
// the permission posture is carried in the OPENCODE_PERMISSION environment
// variable the factory injects rather than a flag.
type OpenCode struct {
	dir        string
	env        []string
	agentFlags []string

	// transcriptRoot is the opencode project storage root,
	// ~/.local/share/opencode/project by default. Overridable in tests.
	transcriptRoot string

	version string // cached by CheckAvailability

	run            runFunc
	runInteractive interactiveFunc
}

// newOpenCode builds the adapter from factory-resolved options.
func newOpenCode(opts Options) *OpenCode {
	o := &OpenCode{
		dir:            opts.Dir,
		env:            opts.Env,
		agentFlags:     opts.AgentFlags,
		transcriptRoot: opts.TranscriptRoot,
		run:            opts.runFn,
		runInteractive: opts.interactiveFn,
	}
	if o.run == nil {
		o.run = proc.Run
	}
	if o.runInteractive == nil {
		o.runInteractive = proc.RunInteractive
	}
	if o.transcriptRoot == "" {
		o.transcriptRoot = defaultOpencodeRoot()
	}
	return o
}

var _ Adapter = (*OpenCode)(nil)

// defaultOpencodeRoot resolves the opencode data directory, honoring
// XDG_DATA_HOME the way opencode itself does.
func defaultOpencodeRoot() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "opencode", "project")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "opencode", "project")
}

// CheckAvailability probes `opencode --version` and caches the reported
// version on success.
func (o *OpenCode) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	res, err := o.run(ctx, Request{Command: []string{opencodeCommand, "--version"}})
	if err != nil || !res.Success {
		return false
	}
	o.version = strings.TrimSpace(res.Stdout)
	return true
}

// buildArgs assembles the opencode command line: the run subcommand for
// headless mode, the model flag, free-form extra flags, then the prompt.
func (o *OpenCode) buildArgs(prompt, model string, opts RunOptions, headless bool) []string {
	args := []string{opencodeCommand}
	if headless {
		args = append(args, "run")
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, o.agentFlags...)
	args = append(args, opts.AgentFlags...)
	if headless {
		return append(args, prompt)
	}
	if prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	return args
}

func (o *OpenCode) effectiveDir(opts RunOptions) string {
	if opts.Dir != "" {
		return opts.Dir
	}
	return o.dir
}

// Run performs one headless invocation and scrapes combined output for the
// session identifier and completion marker.
func (o *OpenCode) Run(ctx context.Context, prompt, model string, opts RunOptions) (*RunResult, error) {
	res, err := o.run(ctx, Request{
		Command: o.buildArgs(prompt, model, opts, true),
		Dir:     o.effectiveDir(opts),
		Env:     append(append([]string{}, o.env...), opts.Env...),
	})
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", opencodeCommand, err)
	}

	combined := res.Stdout + "\n" + res.Stderr
	return &RunResult{
		Stdout:             res.Stdout,
		Stderr:             res.Stderr,
		SessionID:          extractSessionID(opencodeSessionPatterns, combined),
		CompletionDetected: DetectCompletion(combined),
		ExitCode:           res.ExitCode,
	}, nil
}

// RunInteractive launches the opencode TUI attached to the caller's
// terminal; the prompt is passed through --prompt. Nothing is parsed.
func (o *OpenCode) RunInteractive(ctx context.Context, prompt, model string, opts RunOptions) (*proc.InteractiveResult, error) {
	return o.runInteractive(ctx, Request{
		Command: o.buildArgs(prompt, model, opts, false),
		Dir:     o.effectiveDir(opts),
		Env:     append(append([]string{}, o.env...), opts.Env...),
	})
}

// Export locates the session info document under the opencode project
// storage tree. Project directories are opaque hashes, so matching goes
// through each directory's project.json identity file when one names this
// adapter's workdir; otherwise every project directory holding the session
// file is a candidate and the most recently modified one wins.
func (o *OpenCode) Export(sessionID string) ExportResult {
	if sessionID == "" {
		return ExportResult{Success: false, Err: "no session id recorded for this iteration"}
	}
	if o.transcriptRoot == "" {
		return ExportResult{Success: false, Err: "opencode storage root could not be determined"}
	}

	entries, err := os.ReadDir(o.transcriptRoot)
	if err != nil {
		return ExportResult{Success: false, Err: fmt.Sprintf("reading %s: %v", o.transcriptRoot, err)}
	}

	var candidates []string
	var matched []string // candidates whose project.json names our workdir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		projectDir := filepath.Join(o.transcriptRoot, e.Name())
		infoPath := filepath.Join(projectDir, "storage", "session", "info", sessionID+".json")
		if _, err := os.Stat(infoPath); err != nil {
			continue
		}
		candidates = append(candidates, infoPath)
		if o.dir != "" && projectWorktree(projectDir) == o.dir {
			matched = append(matched, infoPath)
		}
	}
	if len(matched) > 0 {
		candidates = matched
	}
	if len(candidates) == 0 {
		return ExportResult{Success: false, Err: fmt.Sprintf("no session record found for %s under %s", sessionID, o.transcriptRoot)}
	}

	path := newestPath(candidates)
	data, err := os.ReadFile(path)
	if err != nil {
		return ExportResult{Success: false, Err: fmt.Sprintf("reading session record %s: %v", path, err)}
	}
	return ExportResult{Data: string(data), Success: true}
}

// projectWorktree reads the worktree path out of a project.json identity
// file, returning empty string when absent or unparseable.
func projectWorktree(projectDir string) string {
	data, err := os.ReadFile(filepath.Join(projectDir, "project.json"))
	if err != nil {
		return ""
	}
	var v map[string]interface{}
	if err := jsonutil.UnmarshalWithContext(data, &v, "parsing project.json"); err != nil {
		return ""
	}
	return jsonutil.GetString(v, "worktree")
}

// Metadata implements Adapter.
func (o *OpenCode) Metadata() Metadata {
	return Metadata{
		Name:        TypeOpenCode.String(),
		DisplayName: opencodeDisplayName,
		Version:     o.version,
		Command:     opencodeCommand,
	}
}

// DefaultModels implements Adapter.
func (o *OpenCode) DefaultModels() ModelConfig {
	return ModelConfig{Smart: opencodeDefaultSmartModel, Fast: opencodeDefaultFastModel}
}

// InstallationURL implements Adapter.
func (o *OpenCode) InstallationURL() string { return opencodeInstallURL }

// UnavailableErrorMessage implements Adapter.
func (o *OpenCode) UnavailableErrorMessage() string {
	return unavailableMessage(opencodeDisplayName, opencodeCommand, opencodeInstallURL)
}
