// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertRoles(t, []types.Role{types.RoleUser, types.RoleAssistant}, msgs)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/deepresearch/types"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertRoles 断言消息序列的角色顺序
func AssertRoles(t *testing.T, expected []types.Role, actual []types.Message) bool {
	t.Helper()
	roles := make([]types.Role, len(actual))
	for i, m := range actual {
		roles[i] = m.Role
	}
	return assert.Equal(t, expected, roles)
}

// AssertToolResultsMatch 断言工具结果消息与调用一一对应且顺序一致
func AssertToolResultsMatch(t *testing.T, calls []types.ToolCall, results []types.Message) bool {
	t.Helper()
	if !assert.Len(t, results, len(calls)) {
		return false
	}
	ok := true
	for i := range calls {
		ok = assert.Equal(t, types.RoleTool, results[i].Role, "result %d role", i) && ok
		ok = assert.Equal(t, calls[i].ID, results[i].ToolCallID, "result %d call id", i) && ok
	}
	return ok
}

// ToolMessages 过滤出工具结果消息
func ToolMessages(msgs []types.Message) []types.Message {
	var out []types.Message
	for _, m := range msgs {
		if m.IsToolResult() {
			out = append(out, m)
		}
	}
	return out
}

// =============================================================================
// ⏱️ 异步辅助
// =============================================================================

// WaitFor 轮询直到条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return condition()
}
