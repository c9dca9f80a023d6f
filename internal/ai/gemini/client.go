package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"DeFAI-Agent/internal/ai"
)

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	defaultModelName = "gemini-1.5-flash"
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 Gemini generateContent API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 Gemini 提供的大模型能力。
//
// SendMessage 的多轮对话历史保存在客户端侧，随每次请求完整回放，
// Reset 将其清空。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu      sync.Mutex
	history []content
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generationConfig struct {
	ResponseMIMEType string         `json:"responseMimeType,omitempty"`
	ResponseSchema   map[string]any `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// NewClient 根据配置创建 Gemini 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Gemini API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Generate 执行一次无状态的结构化生成。
func (c *Client) Generate(ctx context.Context, prompt string, opts ...ai.GenerateOption) (*ai.Response, error) {
	options := ai.BuildGenerateOptions(opts)

	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	if options.ResponseMIMEType != "" || options.ResponseSchema != nil {
		req.GenerationConfig = &generationConfig{
			ResponseMIMEType: options.ResponseMIMEType,
			ResponseSchema:   options.ResponseSchema,
		}
	}

	text, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return &ai.Response{Text: text}, nil
}

// SendMessage 在多轮对话中追加一条用户消息并返回模型回复。
func (c *Client) SendMessage(ctx context.Context, text string) (*ai.Response, error) {
	c.mu.Lock()
	turns := make([]content, len(c.history), len(c.history)+1)
	copy(turns, c.history)
	c.mu.Unlock()

	turns = append(turns, content{Role: "user", Parts: []part{{Text: text}}})

	reply, err := c.call(ctx, generateRequest{Contents: turns})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.history = append(turns, content{Role: "model", Parts: []part{{Text: reply}}})
	c.mu.Unlock()

	return &ai.Response{Text: reply}, nil
}

// Reset 清空对话历史。
func (c *Client) Reset() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
}

func (c *Client) call(ctx context.Context, req generateRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("序列化 Gemini 请求失败: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("构建 Gemini 请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("请求 Gemini 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("Gemini 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析 Gemini 响应失败: %w", err)
	}
	if len(decoded.Candidates) == 0 {
		return "", errors.New("Gemini 响应中没有有效的 candidates")
	}

	var builder strings.Builder
	for _, p := range decoded.Candidates[0].Content.Parts {
		builder.WriteString(p.Text)
	}
	text := strings.TrimSpace(builder.String())
	if text == "" {
		return "", errors.New("Gemini 响应内容为空")
	}
	return text, nil
}

// Ensure Client 实现 ai.Provider 接口。
var _ ai.Provider = (*Client)(nil)
