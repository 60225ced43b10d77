// Package config 提供 DeepResearch 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → .env 文件 → 环境变量 的顺序叠加，
// 环境变量名由前缀与字段的 env 标签拼接而成，例如
// DEEPRESEARCH_LLM_API_KEY、DEEPRESEARCH_SEARCH_CACHE_TTL。
package config
