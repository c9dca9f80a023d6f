package prompts

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Prompt 是一次格式化后的提示词，连同期望的响应形态。
type Prompt struct {
	Text     string
	MIMEType string
	Schema   map[string]any
}

type entry struct {
	tmpl     *template.Template
	mimeType string
	schema   map[string]any
}

// Service 维护按名称索引的提示词模板。
type Service struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewService 创建带有内置模板的提示词服务。
func NewService() *Service {
	s := &Service{entries: make(map[string]entry)}
	for name, def := range builtins {
		s.mustRegister(name, def.text, def.mimeType, def.schema)
	}
	return s
}

// Register 注册或覆盖一个模板。
func (s *Service) Register(name, text, mimeType string, schema map[string]any) error {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return fmt.Errorf("解析提示词模板 %s 失败: %w", name, err)
	}
	s.mu.Lock()
	s.entries[name] = entry{tmpl: tmpl, mimeType: mimeType, schema: schema}
	s.mu.Unlock()
	return nil
}

func (s *Service) mustRegister(name, text, mimeType string, schema map[string]any) {
	if err := s.Register(name, text, mimeType, schema); err != nil {
		panic(err)
	}
}

// GetFormatted 渲染指定模板并返回提示词文本、MIME 类型与响应 Schema。
func (s *Service) GetFormatted(name string, vars map[string]any) (Prompt, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return Prompt{}, fmt.Errorf("未注册的提示词模板: %s", name)
	}

	var builder strings.Builder
	if err := e.tmpl.Execute(&builder, vars); err != nil {
		return Prompt{}, fmt.Errorf("渲染提示词模板 %s 失败: %w", name, err)
	}
	return Prompt{
		Text:     builder.String(),
		MIMEType: e.mimeType,
		Schema:   e.schema,
	}, nil
}

type builtin struct {
	text     string
	mimeType string
	schema   map[string]any
}

var builtins = map[string]builtin{
	"semantic_router": {
		text: `Classify the user input into exactly one of the following categories:
GENERATE_ACCOUNT, SEND_TOKEN, SWAP_TOKEN, REQUEST_ATTESTATION, COIN_INFO, MARKET_WATCH, CONVERSATIONAL.

Reply with the category token only, no punctuation and no explanation.

User input: {{.user_input}}`,
		mimeType: "text/plain",
	},
	"tx_confirmation": {
		text: `A Flare transaction was just broadcast successfully.
Transaction hash: {{.tx_hash}}
Block explorer: {{.block_explorer}}

Write a short, friendly confirmation for the user. Include the transaction
hash and a link to the transaction on the block explorer.`,
		mimeType: "text/plain",
	},
	"generate_account": {
		text: `A new Flare account was generated for the user.
Address: {{.address}}

Tell the user their account is ready, show the address, and remind them the
account holds no funds yet.`,
		mimeType: "text/plain",
	},
	"follow_up_token_send": {
		text: `The user asked to send FLR but the request was missing a valid amount
or destination address. Ask them, in one short sentence, to repeat the request
with the amount of FLR and the 0x destination address.`,
		mimeType: "text/plain",
	},
	"request_attestation": {
		text: `The user asked for a remote attestation of this agent. Tell them an
attestation token will be generated from their next message, and ask them to
reply with a random nonce phrase to be embedded in the token.`,
		mimeType: "text/plain",
	},
	"coin_info": {
		text: `Extract the cryptocurrency token the user is asking about.

User input: {{.user_input}}`,
		mimeType: "application/json",
		schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"token": map[string]any{"type": "string"},
			},
			"required": []string{"token"},
		},
	},
}
