// Package sessions persists the per-iteration record of a loop run. The
// record is append-only: every agent invocation adds one entry and existing
// entries are never rewritten.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ralphloop/internal/prompt"
)

const (
	// FileVersion is the current sessions file schema version.
	FileVersion = 1

	// RelativePath is where the sessions file lives under the workdir.
	RelativePath = ".ralphloop/sessions.json"
)

// SessionState is one iteration's record. Entries are write-once; fields are
// fixed at append time.
type SessionState struct {
	// Iteration is 1-based and gapless within a file.
	Iteration int       `json:"iteration"`
	SessionID string    `json:"sessionId,omitempty"`
	StartedAt time.Time `json:"startedAt"`

	Mode   prompt.Mode `json:"mode"`
	Prompt string      `json:"prompt"`

	// Agent is the config spelling of the agent that ran the iteration.
	Agent string `json:"agent"`

	// PrintMode records whether the invocation was headless.
	PrintMode bool `json:"printMode"`
}

// SessionsFile is the on-disk document.
type SessionsFile struct {
	Version  int            `json:"version"`
	Sessions []SessionState `json:"sessions"`
}

// Store owns the sessions file for one workdir. It keeps the parsed file in
// memory and rewrites the whole document on every append so a crash between
// iterations never loses completed records.
type Store struct {
	path string
	file SessionsFile
}

// Open loads the store for a workdir, creating an empty in-memory document
// when no file exists yet. A present but unreadable or malformed file is an
// error rather than silent data loss.
func Open(workdir string) (*Store, error) {
	path := filepath.Join(workdir, RelativePath)
	s := &Store{path: path, file: SessionsFile{Version: FileVersion}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading sessions file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &s.file); err != nil {
		return nil, fmt.Errorf("parsing sessions file %s: %w", path, err)
	}
	return s, nil
}

// Path returns the absolute location of the sessions file.
func (s *Store) Path() string { return s.path }

// Sessions returns a copy of the recorded entries.
func (s *Store) Sessions() []SessionState {
	out := make([]SessionState, len(s.file.Sessions))
	copy(out, s.file.Sessions)
	return out
}

// Append records one iteration and persists immediately. The store assigns
// the iteration number so the sequence stays 1-based and gapless regardless
// of what the caller passes.
func (s *Store) Append(state SessionState) (SessionState, error) {
	state.Iteration = len(s.file.Sessions) + 1
	s.file.Sessions = append(s.file.Sessions, state)

	if err := s.flush(); err != nil {
		// Roll back the in-memory append so a retry does not double-record.
		s.file.Sessions = s.file.Sessions[:len(s.file.Sessions)-1]
		return SessionState{}, err
	}
	return state, nil
}

// flush rewrites the full document.
func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating sessions directory: %w", err)
	}
	data, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding sessions file: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing sessions file %s: %w", s.path, err)
	}
	return nil
}
