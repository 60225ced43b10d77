/*
Package database 管理运行归档所用的 GORM 连接。

Open 按驱动名（sqlite、postgres、mysql）选择方言并返回 PoolManager。
sqlite 走纯 Go 的 glebarez 驱动，本地归档不需要 cgo。

PoolManager 负责连接池参数、可选的后台探活以及事务执行；
WithTransactionRetry 对死锁、序列化失败和 sqlite 写锁等瞬时错误做指数退避重试。
*/
package database
