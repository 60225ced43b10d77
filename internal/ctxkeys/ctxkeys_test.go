package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunIDAndStage(t *testing.T) {
	ctx := context.Background()

	_, ok := RunID(ctx)
	assert.False(t, ok)
	_, ok = Stage(ctx)
	assert.False(t, ok)

	ctx = WithStage(WithRunID(ctx, "run-1"), "supervisor")

	id, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", id)

	stage, ok := Stage(ctx)
	assert.True(t, ok)
	assert.Equal(t, "supervisor", stage)

	_, ok = RunID(WithRunID(context.Background(), ""))
	assert.False(t, ok, "empty id is treated as absent")
}
