// Package templates provides the embedded default prompt templates that
// `ralphloop init` scaffolds into a working directory.
//
// The canonical templates (PROMPT_PLAN.md, PROMPT_BUILD.md) are embedded at
// compile time and exposed via [Files] for workdir injection.
package templates

import "embed"

//go:embed *.md
var templateFS embed.FS

// Files returns the embedded templates as a map of filename to content.
// The returned filenames are bare names (e.g. "PROMPT_BUILD.md") suitable
// for writing into a working directory.
func Files() map[string][]byte {
	entries, err := templateFS.ReadDir(".")
	if err != nil {
		// Should never happen — embedded FS is compiled in.
		return nil
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := templateFS.ReadFile(e.Name())
		if err != nil {
			continue
		}
		out[e.Name()] = data
	}
	return out
}
