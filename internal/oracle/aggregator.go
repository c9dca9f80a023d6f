package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "DeFAI-Agent/internal/errors"
)

// DefaultAggregatorBaseURL 是 Flare 数据可用性层的公共入口。
const DefaultAggregatorBaseURL = "https://flr-data-availability.flare.network/api/v0"

// RoundSource 抽象历史喂价来源，测试中以 httptest 或假实现替换。
type RoundSource interface {
	// LatestVotingRound 返回最新投票轮次的编号与起始时间戳（秒）。
	LatestVotingRound(ctx context.Context) (roundID int64, startTimestamp int64, err error)
	// AnchorFeed 返回指定轮次某个 feed 的锚定价格（已按精度换算）。
	AnchorFeed(ctx context.Context, feedID string, roundID int64) (float64, error)
}

// AggregatorClient 访问 Flare 数据聚合服务，提供历史轮次的锚定喂价。
type AggregatorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAggregatorClient 构造聚合服务客户端；baseURL 为空时使用公共入口。
func NewAggregatorClient(baseURL string, timeout time.Duration) *AggregatorClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultAggregatorBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AggregatorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// LatestVotingRound 查询最新投票轮次。
func (c *AggregatorClient) LatestVotingRound(ctx context.Context) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/fsp/latest-voting-round", nil)
	if err != nil {
		return 0, 0, fmt.Errorf("构造轮次查询请求失败: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, 0, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询最新投票轮次失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("查询最新投票轮次返回状态码 %d", resp.StatusCode))
	}

	var decoded struct {
		VotingRoundID  int64 `json:"voting_round_id"`
		StartTimestamp int64 `json:"start_timestamp"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return 0, 0, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析最新投票轮次响应失败")
	}
	return decoded.VotingRoundID, decoded.StartTimestamp, nil
}

// AnchorFeed 查询指定轮次的锚定喂价，价格按返回的精度换算成十进制。
func (c *AggregatorClient) AnchorFeed(ctx context.Context, feedID string, roundID int64) (float64, error) {
	body, err := json.Marshal(map[string][]string{"feed_ids": {feedID}})
	if err != nil {
		return 0, fmt.Errorf("编码锚定喂价请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/ftso/anchor-feeds-with-proof?voting_round_id=%d", c.baseURL, roundID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("构造锚定喂价请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "查询锚定喂价失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("查询锚定喂价返回状态码 %d", resp.StatusCode))
	}

	var decoded []struct {
		Body struct {
			Value    float64 `json:"value"`
			Decimals int     `json:"decimals"`
		} `json:"body"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&decoded); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeUpstreamUnavailable, err, "解析锚定喂价响应失败")
	}
	if len(decoded) == 0 {
		return 0, xerrors.New(xerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("轮次 %d 没有 %s 的锚定喂价", roundID, feedID))
	}
	return scalePrice(decoded[0].Body.Value, decoded[0].Body.Decimals), nil
}

var _ RoundSource = (*AggregatorClient)(nil)
