// Package archive 将结束的研究运行写入关系库，供事后审计与回放。
// 归档失败只记日志，不影响运行结果。
package archive
