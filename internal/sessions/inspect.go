package sessions

import (
	"fmt"

	"ralphloop/internal/agent"
)

// Exporter is the slice of the agent contract inspection needs.
type Exporter interface {
	Export(sessionID string) agent.ExportResult
}

// ExporterResolver maps a recorded agent spelling to a live exporter.
// Returning an error marks the entries for that agent as uninspectable
// without failing the rest.
type ExporterResolver func(agentName string) (Exporter, error)

// InspectEntry pairs a recorded iteration with its exported transcript.
type InspectEntry struct {
	SessionState
	Export agent.ExportResult `json:"export"`
}

// Inspect resolves every recorded session into an InspectEntry. Failures are
// scoped to the entry they belong to: a missing transcript or unresolvable
// agent shows up in that entry's Export, never as a function error.
func Inspect(store *Store, resolve ExporterResolver) []InspectEntry {
	sessions := store.Sessions()
	entries := make([]InspectEntry, 0, len(sessions))

	// One exporter per agent spelling; resolution failures are cached too
	// so each bad agent is resolved once.
	exporters := make(map[string]Exporter)
	resolveErrs := make(map[string]error)

	for _, s := range sessions {
		entry := InspectEntry{SessionState: s}

		exp, ok := exporters[s.Agent]
		if !ok {
			if _, failed := resolveErrs[s.Agent]; !failed {
				e, err := resolve(s.Agent)
				if err != nil {
					resolveErrs[s.Agent] = err
				} else {
					exporters[s.Agent] = e
					exp = e
					ok = true
				}
			}
		}

		switch {
		case !ok:
			entry.Export = agent.ExportResult{
				Success: false,
				Err:     fmt.Sprintf("resolving agent %q: %v", s.Agent, resolveErrs[s.Agent]),
			}
		default:
			entry.Export = exp.Export(s.SessionID)
		}
		entries = append(entries, entry)
	}
	return entries
}
