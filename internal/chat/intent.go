package chat

import (
	"context"
	"log/slog"
	"strings"

	"DeFAI-Agent/internal/ai"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/pkg/logger"
)

// Intent 是消息被归类到的意图，决定由哪个处理器响应。
type Intent string

// 意图集合是封闭的：每个意图恰好对应一个处理器。
const (
	IntentGenerateAccount    Intent = "GENERATE_ACCOUNT"
	IntentSendToken          Intent = "SEND_TOKEN"
	IntentSwapToken          Intent = "SWAP_TOKEN"
	IntentRequestAttestation Intent = "REQUEST_ATTESTATION"
	IntentConversational     Intent = "CONVERSATIONAL"
	IntentCoinInfo           Intent = "COIN_INFO"
	IntentMarketWatch        Intent = "MARKET_WATCH"
)

// ParseIntent 将分类器输出归一化为已知意图。
func ParseIntent(raw string) (Intent, bool) {
	normalized := Intent(strings.ToUpper(strings.Trim(strings.TrimSpace(raw), ".,!\"'`")))
	switch normalized {
	case IntentGenerateAccount, IntentSendToken, IntentSwapToken,
		IntentRequestAttestation, IntentConversational, IntentCoinInfo, IntentMarketWatch:
		return normalized, true
	}
	return "", false
}

// Classifier 调用大模型完成意图分类。
// 分类失败绝不让整个请求失败：任何错误都回退到 CONVERSATIONAL。
type Classifier struct {
	ai      ai.Provider
	prompts *prompts.Service
	log     *slog.Logger
}

// NewClassifier 构造意图分类器。
func NewClassifier(provider ai.Provider, service *prompts.Service) *Classifier {
	return &Classifier{ai: provider, prompts: service, log: logger.Named("classifier")}
}

// Classify 对消息做意图分类。
func (c *Classifier) Classify(ctx context.Context, message string) Intent {
	prompt, err := c.prompts.GetFormatted("semantic_router", map[string]any{"user_input": message})
	if err != nil {
		c.log.Warn("获取分类提示词失败，回退到对话意图", "error", err)
		return IntentConversational
	}

	resp, err := c.ai.Generate(ctx, prompt.Text, ai.WithResponseMIMEType(prompt.MIMEType))
	if err != nil {
		c.log.Warn("意图分类调用失败，回退到对话意图", "error", err)
		return IntentConversational
	}

	intent, ok := ParseIntent(resp.Text)
	if !ok {
		c.log.Warn("意图分类结果无法解析，回退到对话意图", "raw", resp.Text)
		return IntentConversational
	}
	return intent
}
