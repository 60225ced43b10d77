// Copyright (c) DeepResearch Authors.
// Licensed under the MIT License.

/*
Package tools 提供研究流程使用的工具注册与并发执行能力。

# 概述

DefaultRegistry 维护启动时注册的封闭工具集合，按注册顺序向模型暴露
Schema，并为每个工具配置超时与令牌桶限流（golang.org/x/time/rate）。

DefaultExecutor 并发执行一批工具调用，结果严格按调用列表顺序返回：

  - 未知工具名 → "No tool found with name X"
  - 工具报错或超时 → "Error invoking tool X: ..."

两种情况都作为结果文本返回给模型，不会中断调用方的循环。

# 内置工具

  - think             - 记录反思内容
  - research_complete - 研究完成信号
  - conduct_research  - 委派 Schema，由 supervisor 直接调度
  - tavily_search     - 搜索、去重、摘要并格式化结果

# MCP 工具

RegisterMCPTools 通过 github.com/mark3labs/mcp-go 列出 MCP 服务器的工具，
逐个包装为 ToolFunc 注册给研究员。服务器返回 isError 时按工具错误处理。
*/
package tools
