package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ralphloop/internal/jsonutil"
	"ralphloop/internal/proc"
)

const (
	claudeCommand     = "claude"
	claudeDisplayName = "Claude Code"
	claudeInstallURL  = "https://docs.anthropic.com/en/docs/claude-code/setup"

	claudeDefaultSmartModel = "claude-opus-4-5"
	claudeDefaultFastModel  = "claude-haiku-4-5"
)

// availabilityTimeout bounds the version probe so a wedged binary reads as
// unavailable instead of hanging startup.
const availabilityTimeout = 10 * time.Second

// ClaudeCode drives the claude CLI. Headless runs use --print with
// stream-json output so the session identifier appears in scrapeable form.
type ClaudeCode struct {
	dir        string
	env        []string
	agentFlags []string
	posture    Posture

	// transcriptRoot is where claude persists session transcripts,
	// ~/.claude/projects by default. Overridable in tests.
	transcriptRoot string

	version string // cached by CheckAvailability

	run            runFunc
	runInteractive interactiveFunc
}

// newClaudeCode builds the adapter from factory-resolved options.
func newClaudeCode(opts Options) *ClaudeCode {
	c := &ClaudeCode{
		dir:            opts.Dir,
		env:            opts.Env,
		agentFlags:     opts.AgentFlags,
		posture:        opts.Posture,
		transcriptRoot: opts.TranscriptRoot,
		run:            opts.runFn,
		runInteractive: opts.interactiveFn,
	}
	if c.posture == PostureDefault {
		c.posture = PostureAllowAll
	}
	if c.run == nil {
		c.run = proc.Run
	}
	if c.runInteractive == nil {
		c.runInteractive = proc.RunInteractive
	}
	if c.transcriptRoot == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.transcriptRoot = filepath.Join(home, ".claude", "projects")
		}
	}
	return c
}

var _ Adapter = (*ClaudeCode)(nil)

// CheckAvailability probes `claude --version` and caches the reported
// version on success.
func (c *ClaudeCode) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	res, err := c.run(ctx, Request{Command: []string{claudeCommand, "--version"}})
	if err != nil || !res.Success {
		return false
	}
	c.version = strings.TrimSpace(res.Stdout)
	return true
}

// buildArgs assembles the claude command line: headless/print flags, the
// model flag, the permission flag, free-form extra flags, then the prompt.
func (c *ClaudeCode) buildArgs(prompt, model string, opts RunOptions, headless bool) []string {
	args := []string{claudeCommand}
	if headless {
		args = append(args, "--print", "--verbose", "--output-format", "stream-json")
	}
	if model != "" {
		args = append(args, "--model", model)
	}
	if c.effectivePosture(opts) == PostureAllowAll {
		args = append(args, "--dangerously-skip-permissions")
	}
	args = append(args, c.agentFlags...)
	args = append(args, opts.AgentFlags...)
	return append(args, prompt)
}

func (c *ClaudeCode) effectivePosture(opts RunOptions) Posture {
	if opts.Posture != PostureDefault {
		return opts.Posture
	}
	return c.posture
}

func (c *ClaudeCode) effectiveDir(opts RunOptions) string {
	if opts.Dir != "" {
		return opts.Dir
	}
	return c.dir
}

// Run performs one headless invocation and scrapes combined output for the
// session identifier and completion marker.
func (c *ClaudeCode) Run(ctx context.Context, prompt, model string, opts RunOptions) (*RunResult, error) {
	res, err := c.run(ctx, Request{
		Command: c.buildArgs(prompt, model, opts, true),
		Dir:     c.effectiveDir(opts),
		Env:     append(append([]string{}, c.env...), opts.Env...),
	})
	if err != nil {
		return nil, fmt.Errorf("running %s: %w", claudeCommand, err)
	}

	combined := res.Stdout + "\n" + res.Stderr
	return &RunResult{
		Stdout:             res.Stdout,
		Stderr:             res.Stderr,
		SessionID:          extractSessionID(claudeSessionPatterns, combined),
		CompletionDetected: DetectCompletion(combined),
		ExitCode:           res.ExitCode,
	}, nil
}

// RunInteractive runs claude attached to the caller's terminal. Same
// command construction minus the headless flags; nothing is parsed.
func (c *ClaudeCode) RunInteractive(ctx context.Context, prompt, model string, opts RunOptions) (*proc.InteractiveResult, error) {
	return c.runInteractive(ctx, Request{
		Command: c.buildArgs(prompt, model, opts, false),
		Dir:     c.effectiveDir(opts),
		Env:     append(append([]string{}, c.env...), opts.Env...),
	})
}

// Export locates the session transcript under the claude projects tree.
// The project directory for a workdir is its path with every non-alphanumeric
// rune flattened to '-'; if that directory has no match, every project
// directory is scanned and the most recently modified candidate wins.
func (c *ClaudeCode) Export(sessionID string) ExportResult {
	if sessionID == "" {
		return ExportResult{Success: false, Err: "no session id recorded for this iteration"}
	}
	if c.transcriptRoot == "" {
		return ExportResult{Success: false, Err: "claude transcript root could not be determined"}
	}

	filename := sessionID + ".jsonl"
	var candidates []string

	if c.dir != "" {
		direct := filepath.Join(c.transcriptRoot, encodeClaudeProjectDir(c.dir), filename)
		if _, err := os.Stat(direct); err == nil {
			candidates = append(candidates, direct)
		}
	}
	if len(candidates) == 0 {
		entries, err := os.ReadDir(c.transcriptRoot)
		if err != nil {
			return ExportResult{Success: false, Err: fmt.Sprintf("reading %s: %v", c.transcriptRoot, err)}
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			p := filepath.Join(c.transcriptRoot, e.Name(), filename)
			if _, err := os.Stat(p); err == nil {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) == 0 {
		return ExportResult{Success: false, Err: fmt.Sprintf("no transcript found for session %s under %s", sessionID, c.transcriptRoot)}
	}

	path := newestPath(candidates)
	data, err := os.ReadFile(path)
	if err != nil {
		return ExportResult{Success: false, Err: fmt.Sprintf("reading transcript %s: %v", path, err)}
	}

	// Claude transcripts are line-delimited JSON; count the parseable
	// records so inspection can report transcript shape.
	records := 0
	for _, line := range strings.Split(string(data), "\n") {
		var v map[string]interface{}
		if jsonutil.UnmarshalLineSafe(strings.TrimSpace(line), &v) {
			records++
		}
	}

	return ExportResult{Data: string(data), Records: records, Success: true}
}

// Metadata implements Adapter.
func (c *ClaudeCode) Metadata() Metadata {
	return Metadata{
		Name:        TypeClaudeCode.String(),
		DisplayName: claudeDisplayName,
		Version:     c.version,
		Command:     claudeCommand,
	}
}

// DefaultModels implements Adapter.
func (c *ClaudeCode) DefaultModels() ModelConfig {
	return ModelConfig{Smart: claudeDefaultSmartModel, Fast: claudeDefaultFastModel}
}

// InstallationURL implements Adapter.
func (c *ClaudeCode) InstallationURL() string { return claudeInstallURL }

// UnavailableErrorMessage implements Adapter.
func (c *ClaudeCode) UnavailableErrorMessage() string {
	return unavailableMessage(claudeDisplayName, claudeCommand, claudeInstallURL)
}

// encodeClaudeProjectDir mirrors how claude names per-project transcript
// directories: every rune outside [A-Za-z0-9] becomes '-'.
func encodeClaudeProjectDir(dir string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, dir)
}

// newestPath returns the most recently modified of the given paths.
func newestPath(paths []string) string {
	best := paths[0]
	var bestTime time.Time
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if info.ModTime().After(bestTime) {
			best = p
			bestTime = info.ModTime()
		}
	}
	return best
}
