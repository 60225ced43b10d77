// Copyright 2026 DeepResearch Authors. All rights reserved.
// Use of this source code is governed by a MIT-style license.

/*
Package testutil 提供 deepresearch 测试的共享工具和辅助函数。

# 核心能力

  - 上下文辅助: TestContext / TestContextWithTimeout / CancelledContext
  - 断言工具: AssertRoles / AssertToolResultsMatch / ToolMessages
  - 异步辅助: WaitFor

# 子包

  - testutil/mocks: MockProvider（脚本化回复、按模型路由、错误注入、调用记录）
    与 MockSearchProvider（按查询返回结果、错误与延迟注入），均并发安全
  - testutil/fixtures: 回复、工具调用（Search / Think / Delegate / Complete）、
    结构化输出（ReadyDecision / ClarifyDecision / Brief）与对话样例

# 使用示例

	provider := mocks.NewMockProvider().
		On("supervisor", func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			return mocks.Respond(fixtures.Reply("", fixtures.Complete("c1")))
		})
*/
package testutil
