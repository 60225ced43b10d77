package tools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BaSui01/deepresearch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(out string) ToolFunc {
	return func(context.Context, json.RawMessage) (string, error) { return out, nil }
}

func TestDefaultRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		tool    string
		fn      ToolFunc
		meta    ToolMetadata
		wantErr bool
	}{
		{name: "schema name defaults to tool name", tool: "a", fn: echoTool("a")},
		{name: "mismatched schema name", tool: "a", fn: echoTool("a"), meta: ToolMetadata{Schema: types.ToolSchema{Name: "b"}}, wantErr: true},
		{name: "nil function", tool: "a", wantErr: true},
		{name: "empty name", tool: "", fn: echoTool("a"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewDefaultRegistry(nil)
			err := r.Register(tt.tool, tt.fn, tt.meta)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			_, meta, err := r.Get(tt.tool)
			require.NoError(t, err)
			assert.Equal(t, tt.tool, meta.Schema.Name)
			assert.Equal(t, defaultToolTimeout, meta.Timeout)
			assert.JSONEq(t, `{"type":"object","properties":{}}`, string(meta.Schema.Parameters))
		})
	}
}

func TestDefaultRegistry_DuplicateAndLookup(t *testing.T) {
	r := NewDefaultRegistry(nil)
	require.NoError(t, r.Register("search", echoTool("s"), ToolMetadata{}))
	assert.Error(t, r.Register("search", echoTool("s"), ToolMetadata{}))

	assert.True(t, r.Has("search"))
	assert.False(t, r.Has("missing"))

	_, _, err := r.Get("missing")
	require.Error(t, err)
	assert.Equal(t, types.ErrToolNotFound, types.GetErrorCode(err))
}

func TestDefaultRegistry_ListKeepsRegistrationOrder(t *testing.T) {
	r := NewDefaultRegistry(nil)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(name, echoTool(name), ToolMetadata{}))
	}

	var names []string
	for _, s := range r.List() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestDefaultRegistry_RateLimitWait(t *testing.T) {
	r := NewDefaultRegistry(nil)
	require.NoError(t, r.Register("limited", echoTool("x"), ToolMetadata{
		RateLimit: &RateLimitConfig{RPS: 0.001, Burst: 1},
	}))

	require.NoError(t, r.wait(context.Background(), "limited"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, r.wait(ctx, "limited"), "second call must wait for a token")

	assert.NoError(t, r.wait(context.Background(), "unlimited"))
}
