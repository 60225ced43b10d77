// 版权所有 2024 DeepResearch Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 structured 提供类型安全的结构化输出生成。

调用方为目标类型提供 JSON Schema（[Spec]）并实现 [Validatable]，
[Generate] 以 response_format 约束请求模型，从回复中提取 JSON，
反序列化后执行约束校验。无法解析或校验失败统一报告为
types.ErrStructuredOutput，后端失败保持 types.ErrBackend。
*/
package structured
