// Package config resolves loop settings from layered sources: built-in
// defaults, a global config file, project-local files in the working
// directory, an explicitly named file, and command-line overrides, in that
// order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"ralphloop/internal/agent"
)

const (
	// LocalJSONName and LocalYAMLName are the two project-local config
	// filenames looked up in the working directory. JSON wins when both
	// exist.
	LocalJSONName = ".ralphloop.json"
	LocalYAMLName = ".ralphloop.yaml"

	// DefaultMaxIterations caps the loop when no layer sets a value.
	DefaultMaxIterations = 10
)

// GlobalPath returns the per-user config file location,
// ~/.config/ralphloop/config.json.
func GlobalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "ralphloop", "config.json")
}

// Config is the fully resolved, validated settings snapshot. It is computed
// once per run and never mutated afterward.
type Config struct {
	// SmartModel and FastModel may be empty, in which case the selected
	// adapter's built-in defaults apply.
	SmartModel string
	FastModel  string

	// Agent is the validated agent spelling ("opencode", "claude-code"),
	// or empty when no layer selected one.
	Agent string

	MaxIterations int

	PermissionPosture agent.Posture
}

// Partial is one layer's contribution. Nil fields mean "this layer says
// nothing about this setting". Unknown keys in source files are dropped by
// the decoders.
type Partial struct {
	SmartModel        *string `json:"smartModel" yaml:"smartModel"`
	FastModel         *string `json:"fastModel" yaml:"fastModel"`
	Agent             *string `json:"agent" yaml:"agent"`
	MaxIterations     *int    `json:"maxIterations" yaml:"maxIterations"`
	PermissionPosture *string `json:"permissionPosture" yaml:"permissionPosture"`
}

// FieldError names one invalid setting and the layer it came from.
type FieldError struct {
	Field   string
	Source  string
	Message string
}

// ValidationError aggregates every invalid field found during resolution so
// a user can fix the whole file in one pass.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = fmt.Sprintf("%s (from %s): %s", p.Field, p.Source, p.Message)
	}
	sort.Strings(msgs)
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// ResolveOptions names the inputs to one resolution pass.
type ResolveOptions struct {
	// Workdir is where project-local config files are looked up.
	Workdir string

	// ExplicitPath, when set, names a config file that must exist; a
	// missing file is an error before any merging happens.
	ExplicitPath string

	// Overrides carries command-line values; it is the highest-precedence
	// layer.
	Overrides Partial

	// GlobalFile overrides the per-user config location. Empty means
	// GlobalPath(). Used by tests.
	GlobalFile string
}

// layer pairs a Partial with the name of where it came from, for error
// attribution.
type layer struct {
	name    string
	partial Partial
}

// Resolve merges all layers and validates the result. The returned error is
// a *ValidationError when any field is invalid, or a plain error for an
// unreadable file.
func Resolve(opts ResolveOptions) (*Config, error) {
	if opts.ExplicitPath != "" {
		if _, err := os.Stat(opts.ExplicitPath); err != nil {
			return nil, fmt.Errorf("config file %s: %w", opts.ExplicitPath, err)
		}
	}

	globalFile := opts.GlobalFile
	if globalFile == "" {
		globalFile = GlobalPath()
	}

	// Lowest precedence first.
	layers := []layer{defaultsLayer()}

	if l, err := loadFileLayer(globalFile, false); err != nil {
		return nil, err
	} else if l != nil {
		layers = append(layers, *l)
	}

	if l, err := localLayer(opts.Workdir); err != nil {
		return nil, err
	} else if l != nil {
		layers = append(layers, *l)
	}

	if opts.ExplicitPath != "" {
		l, err := loadFileLayer(opts.ExplicitPath, true)
		if err != nil {
			return nil, err
		}
		layers = append(layers, *l)
	}

	layers = append(layers, layer{name: "command line", partial: opts.Overrides})

	merged, sources := merge(layers)
	return validate(merged, sources)
}

func defaultsLayer() layer {
	iters := DefaultMaxIterations
	posture := agent.PostureAllowAll.String()
	return layer{
		name: "defaults",
		partial: Partial{
			MaxIterations:     &iters,
			PermissionPosture: &posture,
		},
	}
}

// localLayer loads the project-local config: .ralphloop.json when present,
// otherwise .ralphloop.yaml.
func localLayer(workdir string) (*layer, error) {
	for _, name := range []string{LocalJSONName, LocalYAMLName} {
		path := filepath.Join(workdir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return loadFileLayer(path, true)
	}
	return nil, nil
}

// loadFileLayer parses one config file, choosing the decoder by extension.
// When required is false a missing file yields a nil layer and no error.
func loadFileLayer(path string, required bool) (*layer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var p Partial
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		err = yaml.Unmarshal(data, &p)
	} else {
		err = json.Unmarshal(data, &p)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &layer{name: path, partial: p}, nil
}

// merge applies layers lowest to highest, tracking which layer supplied
// each field's final value.
func merge(layers []layer) (Partial, map[string]string) {
	var out Partial
	sources := make(map[string]string)
	for _, l := range layers {
		if l.partial.SmartModel != nil {
			out.SmartModel = l.partial.SmartModel
			sources["smartModel"] = l.name
		}
		if l.partial.FastModel != nil {
			out.FastModel = l.partial.FastModel
			sources["fastModel"] = l.name
		}
		if l.partial.Agent != nil {
			out.Agent = l.partial.Agent
			sources["agent"] = l.name
		}
		if l.partial.MaxIterations != nil {
			out.MaxIterations = l.partial.MaxIterations
			sources["maxIterations"] = l.name
		}
		if l.partial.PermissionPosture != nil {
			out.PermissionPosture = l.partial.PermissionPosture
			sources["permissionPosture"] = l.name
		}
	}
	return out, sources
}

// validate checks every field and collects all problems before reporting.
func validate(p Partial, sources map[string]string) (*Config, error) {
	var verr ValidationError
	fail := func(field, msg string) {
		verr.Problems = append(verr.Problems, FieldError{
			Field:   field,
			Source:  sources[field],
			Message: msg,
		})
	}

	cfg := &Config{}

	if p.SmartModel != nil {
		cfg.SmartModel = *p.SmartModel
	}
	if p.FastModel != nil {
		cfg.FastModel = *p.FastModel
	}

	if p.Agent != nil && *p.Agent != "" {
		if _, err := agent.ParseType(*p.Agent); err != nil {
			fail("agent", err.Error())
		} else {
			cfg.Agent = *p.Agent
		}
	}

	if p.MaxIterations != nil {
		if *p.MaxIterations <= 0 {
			fail("maxIterations", fmt.Sprintf("must be a positive integer, got %d", *p.MaxIterations))
		} else {
			cfg.MaxIterations = *p.MaxIterations
		}
	}

	if p.PermissionPosture != nil && *p.PermissionPosture != "" {
		posture, err := agent.ParsePosture(*p.PermissionPosture)
		if err != nil {
			fail("permissionPosture", err.Error())
		} else {
			cfg.PermissionPosture = posture
		}
	}

	if len(verr.Problems) > 0 {
		return nil, &verr
	}
	return cfg, nil
}
