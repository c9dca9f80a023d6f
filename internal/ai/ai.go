package ai

import "context"

// Response 是大模型生成的文本输出。
type Response struct {
	Text string
}

// GenerateOptions 控制单次生成调用的输出形态。
type GenerateOptions struct {
	ResponseMIMEType string
	ResponseSchema   map[string]any
}

// GenerateOption 定义可选的生成参数。
type GenerateOption func(*GenerateOptions)

// WithResponseMIMEType 指定期望的响应 MIME 类型，例如 application/json。
func WithResponseMIMEType(mimeType string) GenerateOption {
	return func(o *GenerateOptions) {
		o.ResponseMIMEType = mimeType
	}
}

// WithResponseSchema 指定结构化输出的 JSON Schema。
func WithResponseSchema(schema map[string]any) GenerateOption {
	return func(o *GenerateOptions) {
		o.ResponseSchema = schema
	}
}

// BuildGenerateOptions 汇总可选参数。
func BuildGenerateOptions(opts []GenerateOption) GenerateOptions {
	var options GenerateOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Provider 定义了调用大模型的统一接口。
//
// Generate 执行一次无状态生成，SendMessage 在内部维护多轮对话状态，
// Reset 丢弃对话状态。任何调用都可能因配额或网络原因失败。
type Provider interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (*Response, error)
	SendMessage(ctx context.Context, text string) (*Response, error)
	Reset()
}
