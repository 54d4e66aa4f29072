// Package prompt resolves the text handed to the agent on each iteration:
// either a caller-supplied prompt used verbatim, or a mode-specific template
// file from the working directory with its placeholders substituted.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"ralphloop/internal/jsonutil"
)

// Mode selects which workflow template drives the loop.
type Mode int

const (
	// ModePlan drives the planning template, PROMPT_PLAN.md.
	ModePlan Mode = iota
	// ModeBuild drives the implementation template, PROMPT_BUILD.md.
	ModeBuild
)

// String returns the command-line spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModePlan:
		return "plan"
	case ModeBuild:
		return "build"
	default:
		return "unknown"
	}
}

// ParseMode converts a string to a Mode value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "plan":
		return ModePlan, nil
	case "build":
		return ModeBuild, nil
	default:
		return 0, jsonutil.ParseEnumError("mode", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (m Mode) MarshalJSON() ([]byte, error) {
	return jsonutil.MarshalEnumJSON(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Mode) UnmarshalJSON(data []byte) error {
	parsed, err := jsonutil.UnmarshalEnumJSON(data, ParseMode)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// templateName maps a mode to its fixed template filename.
func templateName(m Mode) string {
	if m == ModePlan {
		return "PROMPT_PLAN.md"
	}
	return "PROMPT_BUILD.md"
}

// Placeholder tokens recognized in template files.
const (
	placeholderSmartModel = "{{SMART_MODEL}}"
	placeholderFastModel  = "{{FAST_MODEL}}"
	placeholderProject    = "{{PROJECT}}"
)

// TemplateNotFoundError reports a missing template file with remediation.
type TemplateNotFoundError struct {
	Path string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("prompt template %s not found; run `ralphloop init` to scaffold the workflow templates", e.Path)
}

// Data holds the values substituted into a template.
type Data struct {
	SmartModel string
	FastModel  string

	// Project is the bare project name; it expands to projects/<name>.
	// Required only when the template uses the project placeholder.
	Project string
}

// Resolve produces the iteration prompt. A non-empty custom prompt is
// returned verbatim with no template lookup and no substitution. Otherwise
// the mode's template file is read from workdir and every placeholder is
// expanded; a project placeholder with no project name configured is an
// error, detected before any substitution happens.
func Resolve(workdir string, mode Mode, custom string, data Data) (string, error) {
	if custom != "" {
		return custom, nil
	}

	path := filepath.Join(workdir, templateName(mode))
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &TemplateNotFoundError{Path: path}
		}
		return "", fmt.Errorf("reading prompt template %s: %w", path, err)
	}

	text := string(raw)
	if strings.Contains(text, placeholderProject) && data.Project == "" {
		return "", fmt.Errorf("template %s uses %s but no project name is configured", path, placeholderProject)
	}

	replacer := strings.NewReplacer(
		placeholderSmartModel, data.SmartModel,
		placeholderFastModel, data.FastModel,
		placeholderProject, filepath.Join("projects", data.Project),
	)
	return replacer.Replace(text), nil
}
