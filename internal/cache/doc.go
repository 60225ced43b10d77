// 版权所有 2024 DeepResearch Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 管理搜索结果缓存使用的 Redis 连接。

Manager 负责连接生命周期（初始化 Ping、后台健康检查、优雅关闭），
并提供 GetJSON/SetJSON 两个序列化读写方法；未命中统一返回
ErrCacheMiss。search.CachedProvider 通过它缓存搜索后端的原始结果。
*/
package cache
