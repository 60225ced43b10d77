/*
Package research 实现深度研究的编排核心。

# 流程

一次运行依次经过四个阶段：

	scoping → brief → supervisor → report

  - scoping: 判断是否需要向用户追问；需要时直接以澄清问题结束
  - brief: 把对话转换为研究简报
  - supervisor: 循环地把子主题委派给并发的研究员（Worker），直到模型停止
    请求工具、调用 research_complete 或达到迭代上限
  - report: 根据简报与全部笔记一次性生成最终报告

# 状态

RunState、SupervisorState 与 WorkerState 都由 workflow.Channel 组成，
阶段只返回部分更新，由各字段的 reducer 合并。一次更新中任一字段被拒绝时，
整个状态保持不变。

# 失败

研究员与工具的失败会变成工具结果文本，循环继续；模型后端的失败会中止流程，
以 *StageError 返回，并标注失败的阶段。
*/
package research
