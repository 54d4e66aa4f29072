package agent

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralphloop/internal/proc"
)

func TestResolveType(t *testing.T) {
	tests := []struct {
		name     string
		explicit string
		env      string
		want     Type
		wantErr  bool
	}{
		{name: "default is opencode", want: TypeOpenCode},
		{name: "env selects claude", env: "claude-code", want: TypeClaudeCode},
		{name: "explicit beats env", explicit: "claude-code", env: "opencode", want: TypeClaudeCode},
		{name: "unknown explicit errors", explicit: "copilot", wantErr: true},
		{name: "unknown env errors, no silent fallback", env: "copilot", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveType(tt.explicit, tt.env)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewInjectsOpencodePermissionEnv(t *testing.T) {
	stub := &stubRunner{results: []*proc.Result{okResult("0.15.3")}}
	a, err := New(context.Background(), TypeOpenCode, Options{runFn: stub.run})
	require.NoError(t, err)

	oc, ok := a.(*OpenCode)
	require.True(t, ok)
	assert.Contains(t, oc.env, "OPENCODE_PERMISSION="+opencodeAllowAllPermission)
}

func TestNewAskPostureSkipsPermissionEnv(t *testing.T) {
	stub := &stubRunner{results: []*proc.Result{okResult("0.15.3")}}
	a, err := New(context.Background(), TypeOpenCode, Options{Posture: PostureAsk, runFn: stub.run})
	require.NoError(t, err)

	oc := a.(*OpenCode)
	for _, e := range oc.env {
		assert.NotContains(t, e, "OPENCODE_PERMISSION")
	}
}

func TestNewUnavailableAgent(t *testing.T) {
	stub := &stubRunner{err: os.ErrNotExist}
	a, err := New(context.Background(), TypeClaudeCode, Options{runFn: stub.run})
	require.Nil(t, a)

	var uerr *UnavailableError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, TypeClaudeCode, uerr.Agent)
	assert.Contains(t, uerr.Message, "claude")
	assert.Contains(t, uerr.Message, claudeInstallURL)

	// Only the availability probe ran; nothing was invoked beyond it.
	assert.Len(t, stub.requests, 1)
}

func TestTypeJSONRoundTrip(t *testing.T) {
	for _, typ := range []Type{TypeOpenCode, TypeClaudeCode} {
		data, err := typ.MarshalJSON()
		require.NoError(t, err)
		var back Type
		require.NoError(t, back.UnmarshalJSON(data))
		assert.Equal(t, typ, back)
	}

	var bad Type
	assert.Error(t, bad.UnmarshalJSON([]byte(`"copilot"`)))
}

func TestPostureJSONRoundTrip(t *testing.T) {
	for _, p := range []Posture{PostureAllowAll, PostureAsk} {
		data, err := p.MarshalJSON()
		require.NoError(t, err)
		var back Posture
		require.NoError(t, back.UnmarshalJSON(data))
		assert.Equal(t, p, back)
	}
}
