package research

import (
	"testing"

	"github.com/BaSui01/deepresearch/testutil"
	"github.com/BaSui01/deepresearch/testutil/fixtures"
	"github.com/BaSui01/deepresearch/testutil/mocks"
	"github.com/BaSui01/deepresearch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportWriter_Run(t *testing.T) {
	provider := mocks.NewMockProvider().On(writerModel, reply(fixtures.Reply("# Fasting\n\nFindings [1].")))

	report, err := NewReportWriter(provider, testConfig(), nil).
		Run(testutil.TestContext(t), "Study intermittent fasting.", []string{"note one", "note two"})
	require.NoError(t, err)
	assert.Equal(t, "# Fasting\n\nFindings [1].", report)

	call := provider.GetLastCall()
	require.NotNil(t, call)
	assert.Equal(t, writerModel, call.Request.Model)
	assert.Equal(t, 32000, call.Request.MaxTokens)
	assert.Empty(t, call.Request.Tools)
	require.Len(t, call.Request.Messages, 1)
	prompt := call.Request.Messages[0].Content
	assert.Contains(t, prompt, "Study intermittent fasting.")
	assert.Contains(t, prompt, "note one\nnote two")
	assert.Contains(t, prompt, "2025-03-14")
}

func TestReportWriter_EmptyReport(t *testing.T) {
	provider := mocks.NewMockProvider().On(writerModel, reply(fixtures.Reply("   ")))

	_, err := NewReportWriter(provider, testConfig(), nil).Run(testutil.TestContext(t), "brief text", nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrEmptyResponse, types.GetErrorCode(err))
}

func TestReportMessage(t *testing.T) {
	msg := reportMessage("body")
	assert.Equal(t, types.RoleAssistant, msg.Role)
	assert.Equal(t, "Here is the final report: body", msg.Content)
}
