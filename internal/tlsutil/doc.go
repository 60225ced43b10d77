// Package tlsutil 提供出站连接的集中式 TLS 配置，
// 供模型后端、搜索后端与 Redis 缓存客户端共用（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
