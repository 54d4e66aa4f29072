package agent

import (
	"context"
	"fmt"
)

// EnvAgent is the environment variable that overrides agent selection.
// It is read once at startup by the caller and threaded in as envValue;
// nothing deeper in the stack re-reads the environment.
const EnvAgent = "RALPHLOOP_AGENT"

// opencodeAllowAllPermission is the OPENCODE_PERMISSION payload encoding an
// allow-all policy; opencode has no equivalent flag.
const opencodeAllowAllPermission = `{"edit":"allow","bash":"allow","webfetch":"allow"}`

// Options configures adapter construction. Zero values mean "use the
// adapter's defaults".
type Options struct {
	Dir        string
	Env        []string
	AgentFlags []string
	Posture    Posture

	// TranscriptRoot overrides the agent's on-disk transcript location.
	// Used by tests; production leaves it empty.
	TranscriptRoot string

	// Test seams for subprocess execution. Nil means the real runners.
	runFn         runFunc
	interactiveFn interactiveFunc
}

// UnavailableError reports that the selected agent's binary failed its
// availability probe. It carries the adapter's remediation text.
type UnavailableError struct {
	Agent   Type
	Message string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("agent %s unavailable: %s", e.Agent, e.Message)
}

// ResolveType picks the agent variant by priority: explicit selection
// argument, then the environment override value, then the default
// (OpenCode). Unknown names are errors, never silent fallbacks.
func ResolveType(explicit, envValue string) (Type, error) {
	if explicit != "" {
		return ParseType(explicit)
	}
	if envValue != "" {
		t, err := ParseType(envValue)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", EnvAgent, err)
		}
		return t, nil
	}
	return TypeOpenCode, nil
}

// New instantiates the adapter for the given type and verifies it is
// usable. The generic permission posture is translated into each variant's
// own mechanism here: OpenCode receives an environment variable encoding
// the allow-all policy (its only mechanism); Claude Code translates the
// posture into its permission flag internally. An adapter that fails its
// availability probe yields an UnavailableError; there is no fallback to a
// different agent.
func New(ctx context.Context, t Type, opts Options) (Adapter, error) {
	var a Adapter
	switch t {
	case TypeOpenCode:
		if opts.Posture == PostureAllowAll || opts.Posture == PostureDefault {
			opts.Env = append(append([]string{}, opts.Env...),
				"OPENCODE_PERMISSION="+opencodeAllowAllPermission)
		}
		a = newOpenCode(opts)
	case TypeClaudeCode:
		a = newClaudeCode(opts)
	default:
		return nil, fmt.Errorf("no adapter registered for agent type %d", t)
	}

	if !a.CheckAvailability(ctx) {
		return nil, &UnavailableError{Agent: t, Message: a.UnavailableErrorMessage()}
	}
	return a, nil
}
