// Copyright 2026 DeepResearch Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供模型后端的通用适配层：OpenAI 兼容线上格式、
消息/工具/结构化输出的转换以及 HTTP 错误映射。具体后端实现位于
openaicompat 子包。

# 核心函数

  - MapHTTPError - 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - TransportError - 网络层错误统一映射为可重试的上游错误
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI - 请求侧转换
  - ConvertResponseFormat - 结构化输出的 json_schema 约束
  - ToLLMChatResponse - 响应侧转换，工具调用参数保持原始 JSON
*/
package providers
