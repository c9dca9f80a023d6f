package prompts

import (
	"strings"
	"testing"
)

func TestGetFormattedSemanticRouter(t *testing.T) {
	t.Parallel()

	service := NewService()
	prompt, err := service.GetFormatted("semantic_router", map[string]any{"user_input": "send 10 FLR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt.Text, "send 10 FLR") {
		t.Fatalf("user input missing from prompt: %q", prompt.Text)
	}
	for _, category := range []string{"GENERATE_ACCOUNT", "SEND_TOKEN", "SWAP_TOKEN",
		"REQUEST_ATTESTATION", "COIN_INFO", "MARKET_WATCH", "CONVERSATIONAL"} {
		if !strings.Contains(prompt.Text, category) {
			t.Fatalf("category %s missing from router prompt", category)
		}
	}
}

func TestGetFormattedCoinInfoSchema(t *testing.T) {
	t.Parallel()

	service := NewService()
	prompt, err := service.GetFormatted("coin_info", map[string]any{"user_input": "price of BTC"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt.MIMEType != "application/json" {
		t.Fatalf("expected JSON response type, got %q", prompt.MIMEType)
	}
	if prompt.Schema == nil {
		t.Fatalf("expected response schema")
	}
}

func TestGetFormattedUnknownName(t *testing.T) {
	t.Parallel()

	if _, err := NewService().GetFormatted("no_such_prompt", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestGetFormattedMissingVariable(t *testing.T) {
	t.Parallel()

	// missingkey=error：缺少变量必须在渲染期失败，而不是输出空洞的提示词。
	if _, err := NewService().GetFormatted("tx_confirmation", map[string]any{"tx_hash": "0xabc"}); err == nil {
		t.Fatalf("expected error for missing template variable")
	}
}

func TestRegisterOverride(t *testing.T) {
	t.Parallel()

	service := NewService()
	if err := service.Register("semantic_router", "custom {{.user_input}}", "text/plain", nil); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	prompt, err := service.GetFormatted("semantic_router", map[string]any{"user_input": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt.Text != "custom hi" {
		t.Fatalf("override not applied: %q", prompt.Text)
	}
}
