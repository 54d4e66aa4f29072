package agent

import "testing"

// Captured-output fixtures: session-id extraction and completion detection
// are pure over literal text, so no subprocess is involved here.

func TestDetectCompletion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   bool
	}{
		{"marker alone", "<promise>COMPLETE</promise>", true},
		{"marker embedded", "work done\n<promise>COMPLETE</promise>\nbye", true},
		{"marker inside json", `{"type":"assistant","text":"All tasks finished. <promise>COMPLETE</promise>"}`, true},
		{"no marker", "still working on task 3", false},
		{"partial marker", "<promise>INCOMPLETE</promise>", false},
		{"case mismatch", "<promise>complete</promise>", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectCompletion(tt.output); got != tt.want {
				t.Errorf("DetectCompletion(%q) = %v, want %v", tt.output, got, tt.want)
			}
		})
	}
}

func TestExtractSessionID_Claude(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "stream-json system line",
			output: `{"type":"system","subtype":"init","session_id":"5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11","model":"claude-opus-4-5"}`,
			want:   "5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11",
		},
		{
			name:   "camelCase result line",
			output: `{"type":"result","sessionId":"5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11","is_error":false}`,
			want:   "5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11",
		},
		{
			name:   "plain text footer",
			output: "done.\nSession ID: 5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11\n",
			want:   "5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11",
		},
		{
			name: "snake_case preferred over footer",
			output: `Session ID: 99999999-9999-9999-9999-999999999999
{"session_id":"5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11"}`,
			want: "5b1f0412-9c1e-4a6b-8a63-0f3d2f9b7c11",
		},
		{
			name:   "no session id",
			output: "error: not logged in",
			want:   "",
		},
		{
			name:   "malformed id ignored",
			output: `{"session_id":"not-a-uuid"}`,
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractSessionID(claudeSessionPatterns, tt.output); got != tt.want {
				t.Errorf("extractSessionID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSessionID_OpenCode(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   string
	}{
		{
			name:   "json field",
			output: `{"sessionID":"ses_4f8a2b1c9d0e3f6a","parts":[]}`,
			want:   "ses_4f8a2b1c9d0e3f6a",
		},
		{
			name:   "bare token in text output",
			output: "opencode run\nsession ses_4f8a2b1c9d0e3f6a started\n",
			want:   "ses_4f8a2b1c9d0e3f6a",
		},
		{
			name:   "json field wins over earlier bare token",
			output: "warmup ses_aaaaaaaaaaaa\n" + `{"sessionID":"ses_4f8a2b1c9d0e3f6a"}`,
			want:   "ses_4f8a2b1c9d0e3f6a",
		},
		{
			name:   "short token ignored",
			output: "ses_ab",
			want:   "",
		},
		{
			name:   "no session id",
			output: "model not found",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractSessionID(opencodeSessionPatterns, tt.output); got != tt.want {
				t.Errorf("extractSessionID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeClaudeProjectDir(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"/home/user/proj", "-home-user-proj"},
		{"/home/user/my_app.v2", "-home-user-my-app-v2"},
		{"simple", "simple"},
	}
	for _, tt := range tests {
		if got := encodeClaudeProjectDir(tt.dir); got != tt.want {
			t.Errorf("encodeClaudeProjectDir(%q) = %q, want %q", tt.dir, got, tt.want)
		}
	}
}
