// Copyright (c) DeepResearch Authors.
// Licensed under the MIT License.

/*
Package types 提供 deepresearch 模块的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、tools、workflow、
research 等上层模块提供统一的消息与错误契约，避免循环依赖。

# 核心类型

  - Message           - 对话消息（Role、Content、ToolCalls、ToolCallID）
  - ToolCall          - 模型发出的工具调用请求（ID + Name + Arguments）
  - ToolSchema        - 工具定义（name + description + JSON Schema parameters）
  - ToolResult        - 工具执行结果，可转换为 tool 角色消息
  - Error / ErrorCode - 结构化错误体系，含 Retryable 标记与 Cause 链
*/
package types
