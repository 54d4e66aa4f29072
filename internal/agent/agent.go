// Package agent unifies external AI coding agent CLIs behind one capability
// contract. Each variant translates a generic run or export request into its
// tool's flag vocabulary and scrapes the output for a session identifier and
// the completion marker.
package agent

import (
	"context"
	"fmt"

	"ralphloop/internal/jsonutil"
	"ralphloop/internal/proc"
)

// Type identifies which agent CLI variant to drive.
type Type int

const (
	// TypeOpenCode drives the opencode CLI.
	TypeOpenCode Type = iota
	// TypeClaudeCode drives the claude CLI.
	TypeClaudeCode
)

// String returns the canonical config-file spelling of the agent type.
func (t Type) String() string {
	switch t {
	case TypeOpenCode:
		return "opencode"
	case TypeClaudeCode:
		return "claude-code"
	default:
		return "unknown"
	}
}

// ParseType converts a string to a Type value.
func ParseType(s string) (Type, error) {
	switch s {
	case "opencode":
		return TypeOpenCode, nil
	case "claude-code":
		return TypeClaudeCode, nil
	default:
		return 0, jsonutil.ParseEnumError("agent type", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (t Type) MarshalJSON() ([]byte, error) {
	return jsonutil.MarshalEnumJSON(t)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Type) UnmarshalJSON(data []byte) error {
	parsed, err := jsonutil.UnmarshalEnumJSON(data, ParseType)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Posture is the permission policy applied to an agent's actions.
// The zero value defers to whatever the adapter was constructed with.
type Posture int

const (
	// PostureDefault defers to the posture set at adapter construction.
	PostureDefault Posture = iota
	// PostureAllowAll auto-approves agent actions. The default for headless
	// loop runs, which cannot answer interactive permission prompts.
	PostureAllowAll
	// PostureAsk defers to the agent's interactive confirmation flow.
	PostureAsk
)

// String returns the config-file spelling of the posture.
func (p Posture) String() string {
	switch p {
	case PostureDefault:
		return ""
	case PostureAllowAll:
		return "allow-all"
	case PostureAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// ParsePosture converts a string to a Posture value.
func ParsePosture(s string) (Posture, error) {
	switch s {
	case "allow-all":
		return PostureAllowAll, nil
	case "ask":
		return PostureAsk, nil
	default:
		return 0, jsonutil.ParseEnumError("permission posture", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (p Posture) MarshalJSON() ([]byte, error) {
	return jsonutil.MarshalEnumJSON(p)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Posture) UnmarshalJSON(data []byte) error {
	parsed, err := jsonutil.UnmarshalEnumJSON(data, ParsePosture)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ModelConfig names the two model identifiers a run resolves once and never
// mutates: a smart model for heavy reasoning and a fast model for cheap calls.
type ModelConfig struct {
	Smart string `json:"smart"`
	Fast  string `json:"fast"`
}

// RunOptions carries per-invocation overrides. Zero values defer to the
// options the adapter was constructed with.
type RunOptions struct {
	Posture    Posture
	Dir        string
	Env        []string
	AgentFlags []string
}

// RunResult is the sole output of one non-interactive invocation. It is
// always produced; a failed subprocess exit is data, not an error.
type RunResult struct {
	Stdout             string
	Stderr             string
	SessionID          string // empty when extraction found nothing
	CompletionDetected bool
	ExitCode           int
}

// ExportResult is the outcome of locating a persisted transcript for a
// session. Zero matches is reported through Success and Err, never an error.
type ExportResult struct {
	Data    string `json:"data,omitempty"`
	Records int    `json:"records,omitempty"` // parsed line count, when the format is line-delimited JSON
	Success bool   `json:"success"`
	Err     string `json:"error,omitempty"`
}

// Metadata is an adapter's static identity.
type Metadata struct {
	Name        string `json:"name"`        // config spelling, e.g. "claude-code"
	DisplayName string `json:"displayName"` // e.g. "Claude Code"
	Version     string `json:"version,omitempty"`
	Command     string `json:"command"` // underlying binary name
}

// Adapter is the closed capability contract both variants implement.
// Adding a third agent means one new variant plus one factory registry
// entry, nothing else.
type Adapter interface {
	// CheckAvailability probes the external binary (a version query).
	// Returns false on any failure — missing binary, nonzero exit,
	// timeout — and never raises.
	CheckAvailability(ctx context.Context) bool

	// Run performs one headless invocation: builds the variant's command
	// line, spawns it non-interactively, and scrapes the output.
	Run(ctx context.Context, prompt, model string, opts RunOptions) (*RunResult, error)

	// RunInteractive performs the same command construction but the
	// subprocess inherits the caller's terminal. Nothing is captured.
	RunInteractive(ctx context.Context, prompt, model string, opts RunOptions) (*proc.InteractiveResult, error)

	// Export locates a persisted transcript for a session in the agent's
	// on-disk storage, read-only.
	Export(sessionID string) ExportResult

	// Metadata returns the adapter's static identity, with the cached
	// version if a successful availability probe recorded one.
	Metadata() Metadata

	// DefaultModels returns the variant's built-in model pair.
	DefaultModels() ModelConfig

	// InstallationURL points at the tool's install instructions.
	InstallationURL() string

	// UnavailableErrorMessage is the remediation text shown when the
	// binary is missing; it embeds display name, command, and install URL.
	UnavailableErrorMessage() string
}

// runFunc matches proc.Run and is the adapter-level test seam.
type runFunc func(ctx context.Context, req Request, opts ...proc.Option) (*proc.Result, error)

// interactiveFunc matches proc.RunInteractive.
type interactiveFunc func(ctx context.Context, req Request, opts ...proc.Option) (*proc.InteractiveResult, error)

// Request aliases proc.Request so adapter tests read naturally.
type Request = proc.Request

// unavailableMessage formats the shared remediation text.
func unavailableMessage(displayName, command, installURL string) string {
	return fmt.Sprintf("%s is not available: the %q command was not found or did not respond. Install it from %s and make sure it is on your PATH.",
		displayName, command, installURL)
}
