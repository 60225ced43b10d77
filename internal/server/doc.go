/*
Package server 管理 serve 子命令的 HTTP 监听：研究 API 与 Prometheus /metrics
各用一个 Manager。

Start 非阻塞；Wait 在 context 取消（通常来自 SIGINT/SIGTERM）或服务异常时
触发 Shutdown，在 ShutdownTimeout 内排空进行中的研究请求。
*/
package server
