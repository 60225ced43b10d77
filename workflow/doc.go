// Copyright (c) DeepResearch Authors.
// Licensed under the MIT License.

/*
Package workflow 提供研究流程使用的状态合并与步进机制。

# 状态字段

Channel[T] 是带合并规则（Reducer）的状态字段，内置三种规则：

  - AppendReducer  - 序列追加，返回新切片，不修改旧值
  - SetOnceReducer - 只接受第一次非零写入，重复写同值为空操作，写不同值报错
  - ReplaceReducer - 后写覆盖（计数器）

Reduce 只计算不提交，配合 Store 可以实现多字段的先校验后提交。

# 步进循环

Graph[S, U] 持有一组节点，每个节点读取状态并返回 Transition{Next, Update}，
由 Run 统一调用 S.Apply 合并更新后跳转，直到 Next == End。
*/
package workflow
