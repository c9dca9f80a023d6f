package chat

import (
	"context"
	"errors"
	"testing"

	"DeFAI-Agent/internal/ai"
	"DeFAI-Agent/internal/prompts"
)

// fakeAI 让测试精确控制大模型的返回值。
type fakeAI struct {
	generateText string
	generateErr  error
	sendText     string
	sendErr      error
	lastPrompt   string
	lastSend     string
	resetCalls   int
}

func (f *fakeAI) Generate(_ context.Context, prompt string, _ ...ai.GenerateOption) (*ai.Response, error) {
	f.lastPrompt = prompt
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &ai.Response{Text: f.generateText}, nil
}

func (f *fakeAI) SendMessage(_ context.Context, text string) (*ai.Response, error) {
	f.lastPrompt = text
	f.lastSend = text
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.sendText != "" {
		return &ai.Response{Text: f.sendText}, nil
	}
	return &ai.Response{Text: "reply to: " + text}, nil
}

func (f *fakeAI) Reset() { f.resetCalls++ }

func TestParseIntent(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw    string
		want   Intent
		wantOK bool
	}{
		{"SEND_TOKEN", IntentSendToken, true},
		{" coin_info \n", IntentCoinInfo, true},
		{"MARKET_WATCH.", IntentMarketWatch, true},
		{"something else", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseIntent(tc.raw)
		if ok != tc.wantOK || got != tc.want {
			t.Fatalf("ParseIntent(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.wantOK)
		}
	}
}

func TestClassifyReturnsIntent(t *testing.T) {
	t.Parallel()

	classifier := NewClassifier(&fakeAI{generateText: "SWAP_TOKEN"}, prompts.NewService())
	if got := classifier.Classify(context.Background(), "swap 10 FLR for USDC"); got != IntentSwapToken {
		t.Fatalf("expected SWAP_TOKEN, got %q", got)
	}
}

func TestClassifyFallsBackToConversational(t *testing.T) {
	t.Parallel()

	// 分类失败绝不让请求失败：网络错误与垃圾输出都回退到对话。
	for _, provider := range []*fakeAI{
		{generateErr: errors.New("quota exceeded")},
		{generateText: "NOT_AN_INTENT"},
	} {
		classifier := NewClassifier(provider, prompts.NewService())
		if got := classifier.Classify(context.Background(), "hello"); got != IntentConversational {
			t.Fatalf("expected CONVERSATIONAL fallback, got %q", got)
		}
	}
}
