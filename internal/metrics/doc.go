/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖
LLM 调用、工具执行、研究编排与搜索缓存四个维度。

# 概述

Collector 通过 promauto.With 注册到调用方给定的 Registerer，
所有指标按 namespace 隔离。Collector 直接实现各组件的观察者接口，
组件本身不依赖 Prometheus。

# 主要能力

  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model 分组。
  - 工具指标：执行总数与耗时，按 tool/status 分组。
  - 编排指标：阶段耗时、委派结果、supervisor 迭代次数、运行结果与总耗时。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
