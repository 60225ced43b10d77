// Package tokenizer 提供统一的 Token 计数接口，
// 支持 tiktoken 精确计数与 CJK 估算器，用于统计研究笔记与报告的 token 规模。
package tokenizer
