// Package tavily 实现基于 Tavily 搜索 API 的 search.Provider，
// 请求时总是要求返回网页全文（include_raw_content），供摘要步骤使用。
package tavily
