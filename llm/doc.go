// 版权所有 2024 DeepResearch Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供统一的大语言模型接入层：Provider 抽象、请求/响应模型、
错误语义与中间件链。

# Provider 抽象

核心接口是 [Provider]，只包含 Completion 与 Name。研究流程中的每一次
模型调用（澄清判定、简报生成、研究员推理、压缩、主管决策、报告撰写）
都通过 [Invoke] 或 structured 子包完成。

# 错误语义

后端返回 [*Error]，Retryable 字段只被 [RetryMiddleware] 使用。
[Invoke] 将任何失败包装为 types.ErrBackend，编排核心不做重试。

# 中间件

  - [LoggingMiddleware]：基于 zap 的请求/响应日志
  - [TimeoutMiddleware]：默认或请求级超时
  - [RecoveryMiddleware]：panic 恢复为 [*PanicError]
  - [RetryMiddleware]：只对可重试错误做指数退避重试
  - [MetricsMiddleware]：向 [MetricsCollector] 上报耗时与 token
*/
package llm
