package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func candidateResponse(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}]}}]}`, text)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gemini-test",
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client, server
}

func TestGenerateCarriesGenerationConfig(t *testing.T) {
	t.Parallel()

	var captured struct {
		Contents []struct {
			Role  string `json:"role"`
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"contents"`
		GenerationConfig *struct {
			ResponseMIMEType string         `json:"responseMimeType"`
			ResponseSchema   map[string]any `json:"responseSchema"`
		} `json:"generationConfig"`
	}

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-test:generateContent" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing api key")
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(candidateResponse(`{"token":"BTC"}`)))
	})

	resp, err := client.Generate(context.Background(), "extract the token")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if resp.Text != `{"token":"BTC"}` {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if len(captured.Contents) != 1 || captured.Contents[0].Parts[0].Text != "extract the token" {
		t.Fatalf("prompt not forwarded: %+v", captured.Contents)
	}
	if captured.GenerationConfig != nil {
		t.Fatalf("generation config must be omitted without options")
	}
}

func TestSendMessageReplaysHistory(t *testing.T) {
	t.Parallel()

	var turnCounts []int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Contents []json.RawMessage `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		turnCounts = append(turnCounts, len(req.Contents))
		_, _ = w.Write([]byte(candidateResponse("a reply")))
	})

	ctx := context.Background()
	if _, err := client.SendMessage(ctx, "first"); err != nil {
		t.Fatalf("first message failed: %v", err)
	}
	if _, err := client.SendMessage(ctx, "second"); err != nil {
		t.Fatalf("second message failed: %v", err)
	}

	// 第一轮 1 条，第二轮回放历史后是 3 条（user/model/user）。
	if len(turnCounts) != 2 || turnCounts[0] != 1 || turnCounts[1] != 3 {
		t.Fatalf("unexpected turn counts: %v", turnCounts)
	}

	client.Reset()
	if _, err := client.SendMessage(ctx, "after reset"); err != nil {
		t.Fatalf("post-reset message failed: %v", err)
	}
	if turnCounts[2] != 1 {
		t.Fatalf("reset must clear history, got %d turns", turnCounts[2])
	}
}

func TestCallSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})
	if _, err := client.Generate(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error on HTTP 429")
	}

	client, _ = newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	if _, err := client.Generate(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error on empty candidates")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
