// Copyright (c) DeepResearch Authors.
// Licensed under the MIT License.

/*
Package search 实现研究员使用的网页搜索能力。

# 流程

一次搜索由 [Service] 完成：向 [Provider] 发起查询，按 URL 去重
（首次出现者保留），对带有网页全文的结果调用 [Summarizer] 生成
<summary>/<key_excerpts> 摘要（失败时回退到简短内容），最后由
[Format] 渲染为编号的来源列表。

# 后端

  - tavily 子包：Tavily 搜索 API 客户端
  - [CachedProvider]：基于 Redis 的结果缓存装饰器
*/
package search
