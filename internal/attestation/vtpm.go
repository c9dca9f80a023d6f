package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	xerrors "DeFAI-Agent/internal/errors"
)

const (
	defaultSocketPath = "/run/container_launcher/teeserver.sock"
	tokenEndpoint     = "http://localhost/v1/token"
	defaultAudience   = "https://sts.google.com"
	simulatedToken    = "eyJhbGciOiJSUzI1NiIsImtpZCI6InNpbXVsYXRlZCJ9.simulated.token"
)

// Config 描述 vTPM 证明服务的访问方式。
type Config struct {
	// Simulate 为 true 时不访问 TEE，直接返回固定的演示令牌。
	Simulate   bool
	SocketPath string
	Timeout    time.Duration
}

// Vtpm 通过 TEE launcher 的 unix socket 获取证明令牌。
type Vtpm struct {
	simulate   bool
	httpClient *http.Client
}

// NewVtpm 创建证明客户端。
func NewVtpm(cfg Config) *Vtpm {
	socketPath := strings.TrimSpace(cfg.SocketPath)
	if socketPath == "" {
		socketPath = defaultSocketPath
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}

	return &Vtpm{
		simulate:   cfg.Simulate,
		httpClient: &http.Client{Transport: transport, Timeout: timeout},
	}
}

// GetToken 以给定的 nonce 列表请求一枚 OIDC 证明令牌。
// 失败时返回带 ATTESTATION_FAILURE 错误码的统一错误。
func (v *Vtpm) GetToken(ctx context.Context, nonces []string) (string, error) {
	if v.simulate {
		return simulatedToken, nil
	}

	payload, err := json.Marshal(map[string]any{
		"audience":   defaultAudience,
		"token_type": "OIDC",
		"nonces":     nonces,
	})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeAttestationFailure, err, "序列化证明请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeAttestationFailure, err, "构建证明请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeAttestationFailure, err, "请求 TEE launcher 失败")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeAttestationFailure, err, "读取证明响应失败")
	}
	if resp.StatusCode != http.StatusOK {
		return "", xerrors.New(xerrors.CodeAttestationFailure,
			fmt.Sprintf("TEE launcher 返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return "", xerrors.New(xerrors.CodeAttestationFailure, "TEE launcher 返回空令牌")
	}
	return token, nil
}
