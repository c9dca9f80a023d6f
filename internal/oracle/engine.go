package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"sort"
	"strings"
	"time"

	"DeFAI-Agent/internal/ai"
	"DeFAI-Agent/internal/chart"
	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/flare"
	"DeFAI-Agent/internal/prompts"
	"DeFAI-Agent/pkg/logger"

	"golang.org/x/sync/errgroup"
)

const (
	// roundSeconds 是 FTSO 投票轮次的固定时长。
	roundSeconds = 90
	// roundsPerDay 由轮次时长推出：24*60*60/90。
	roundsPerDay = 24 * 60 * 60 / roundSeconds
	// historyDays 是历史价格回看的天数。
	historyDays = 5

	displayTimeLayout = "2006-01-02 15:04:05 UTC"
	defaultTimeout    = 30 * time.Second
)

// FeedReader 抽象链上喂价读取，由 flare.Provider 实现。
type FeedReader interface {
	GetFeedByID(ctx context.Context, feedIDHex string) (flare.FeedValue, error)
	IsConnected(ctx context.Context) bool
}

// PricePoint 是一条带展示时间的历史价格。
type PricePoint struct {
	Price       float64
	DisplayTime string
	AgeDays     int
}

// Engine 组合链上当前价、聚合服务历史价与图表渲染，生成价格分析回复。
// 整个分析序列受引擎级超时约束。
type Engine struct {
	catalog *Catalog
	reader  FeedReader
	rounds  RoundSource
	cache   RoundCache
	ai      ai.Provider
	prompts *prompts.Service
	timeout time.Duration
	log     *slog.Logger
}

// Option 配置价格分析引擎。
type Option func(*Engine)

// WithCache 启用轮次价格缓存。
func WithCache(cache RoundCache) Option {
	return func(e *Engine) { e.cache = cache }
}

// WithTimeout 覆盖引擎级超时。
func WithTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithTokenExtractor 启用 AI 辅助的代币名称抽取。
func WithTokenExtractor(provider ai.Provider, service *prompts.Service) Option {
	return func(e *Engine) {
		e.ai = provider
		e.prompts = service
	}
}

// NewEngine 构造价格分析引擎。
func NewEngine(catalog *Catalog, reader FeedReader, rounds RoundSource, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		reader:  reader,
		rounds:  rounds,
		timeout: defaultTimeout,
		log:     logger.Named("oracle"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// CoinInfo 回答单个代币的价格询问：当前价、五日涨跌幅与 ASCII 走势图。
// 无法识别的代币返回引导文案而不是错误；链上主读取失败则显式报错。
func (e *Engine) CoinInfo(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	token := e.extractToken(ctx, message)
	symbol, ok := e.catalog.Resolve(token)
	if !ok {
		return e.guidance(token), nil
	}
	feedID, ok := e.catalog.FeedID(symbol)
	if !ok {
		return e.guidance(symbol), nil
	}

	if !e.reader.IsConnected(ctx) {
		return "", xerrors.New(xerrors.CodeUpstreamUnavailable, "无法连接 Flare 网络，请稍后再试")
	}

	feed, err := e.reader.GetFeedByID(ctx, feedID)
	if err != nil {
		return "", err
	}
	if feed.Value == nil || feed.Value.Sign() == 0 {
		return fmt.Sprintf("No price data available for %s at the moment.", symbol), nil
	}

	currentPrice := decodeFeedPrice(feed)
	currentTime := time.Unix(int64(feed.Timestamp), 0).UTC().Format(displayTimeLayout)

	history, err := e.historicalPrices(ctx, feedID)
	if err != nil {
		// 历史数据只影响回答丰富度，降级为仅当前价。
		e.log.Warn("历史价格获取失败，降级为当前价", "symbol", symbol, "error", err)
		lines := []string{
			fmt.Sprintf("Current %s/USD Price: **$%.4f**", symbol, currentPrice),
			fmt.Sprintf("Last Updated: %s (via Flare Time Series Oracle)", currentTime),
			"",
			"Note: Historical price data is temporarily unavailable.",
		}
		return strings.Join(lines, "\n"), nil
	}

	oldest := history[historyDays-1].Price
	change := PercentChange(currentPrice, oldest)
	glyph := TrendGlyph(change)

	// 序列从最旧到最新，最后一个点是当前价。
	series := make([]float64, 0, historyDays+1)
	for i := historyDays - 1; i >= 0; i-- {
		series = append(series, history[i].Price)
	}
	series = append(series, currentPrice)
	chartLines := chart.Render(series, chart.DefaultWidth, chart.DefaultHeight)

	lines := []string{
		fmt.Sprintf("Current %s/USD Price: **$%.4f** %s %+.2f%% (5-Day)", symbol, currentPrice, glyph, change),
		fmt.Sprintf("Last Updated: %s (via Flare Time Series Oracle)", currentTime),
		"",
		"5-Day Price History:",
		"```",
	}
	lines = append(lines, chartLines...)
	lines = append(lines, "```")
	return strings.Join(lines, "\n"), nil
}

// tokenChange 是市场速览中一个代币的聚合结果。
type tokenChange struct {
	Symbol string
	Price  float64
	Change float64
}

// MarketWatch 汇总全部受支持代币的五日涨跌幅，按涨跌幅绝对值排序取前三。
// 单个代币失败只会被跳过，不影响其余代币。
func (e *Engine) MarketWatch(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if !e.reader.IsConnected(ctx) {
		return "", xerrors.New(xerrors.CodeUpstreamUnavailable, "无法连接 Flare 网络，请稍后再试")
	}

	var movers []tokenChange
	for _, symbol := range e.catalog.Supported() {
		feedID, ok := e.catalog.FeedID(symbol)
		if !ok {
			continue
		}
		feed, err := e.reader.GetFeedByID(ctx, feedID)
		if err != nil || feed.Value == nil || feed.Value.Sign() == 0 {
			e.log.Warn("跳过当前价读取失败的代币", "symbol", symbol, "error", err)
			continue
		}
		currentPrice := decodeFeedPrice(feed)

		history, err := e.historicalPrices(ctx, feedID)
		if err != nil {
			e.log.Warn("跳过历史价读取失败的代币", "symbol", symbol, "error", err)
			continue
		}
		movers = append(movers, tokenChange{
			Symbol: symbol,
			Price:  currentPrice,
			Change: PercentChange(currentPrice, history[historyDays-1].Price),
		})
	}

	if len(movers) == 0 {
		return "", xerrors.New(xerrors.CodeUpstreamUnavailable, "所有代币的行情数据均不可用")
	}

	sort.Slice(movers, func(i, j int) bool {
		return math.Abs(movers[i].Change) > math.Abs(movers[j].Change)
	})
	if len(movers) > 3 {
		movers = movers[:3]
	}

	lines := []string{
		"📊 Market Overview (5-Day Change) via Flare Time Series Oracle",
		"",
	}
	for _, m := range movers {
		lines = append(lines, fmt.Sprintf("%s: $%.4f %s %+.2f%%", m.Symbol, m.Price, TrendGlyph(m.Change), m.Change))
	}
	lines = append(lines, "", "Ask about any token for the full 5-day chart.")
	return strings.Join(lines, "\n"), nil
}

// historicalPrices 并发抓取过去 historyDays 天的锚定价格，按 AgeDays-1 索引。
// 任意一天失败整体失败，由调用方决定是否降级。
func (e *Engine) historicalPrices(ctx context.Context, feedID string) ([]PricePoint, error) {
	latestRound, latestTs, err := e.rounds.LatestVotingRound(ctx)
	if err != nil {
		return nil, err
	}

	points := make([]PricePoint, historyDays)
	g, gctx := errgroup.WithContext(ctx)
	for daysAgo := 1; daysAgo <= historyDays; daysAgo++ {
		g.Go(func() error {
			roundID := latestRound - int64(roundsPerDay*daysAgo)
			price, hit := e.cachedRound(gctx, feedID, roundID)
			if !hit {
				fetched, fetchErr := e.rounds.AnchorFeed(gctx, feedID, roundID)
				if fetchErr != nil {
					return fetchErr
				}
				price = fetched
				if e.cache != nil {
					e.cache.Set(gctx, feedID, roundID, price)
				}
			}
			ts := latestTs - (latestRound-roundID)*roundSeconds
			points[daysAgo-1] = PricePoint{
				Price:       price,
				DisplayTime: time.Unix(ts, 0).UTC().Format(displayTimeLayout),
				AgeDays:     daysAgo,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (e *Engine) cachedRound(ctx context.Context, feedID string, roundID int64) (float64, bool) {
	if e.cache == nil {
		return 0, false
	}
	return e.cache.Get(ctx, feedID, roundID)
}

func (e *Engine) extractToken(ctx context.Context, message string) string {
	if e.ai != nil && e.prompts != nil {
		if token, ok := e.extractTokenWithAI(ctx, message); ok {
			return token
		}
	}
	// 回退：逐词扫描别名表。
	for _, word := range strings.Fields(message) {
		cleaned := strings.Trim(word, ".,!?;:'\"()")
		if _, ok := e.catalog.Resolve(cleaned); ok {
			return cleaned
		}
	}
	return message
}

func (e *Engine) extractTokenWithAI(ctx context.Context, message string) (string, bool) {
	prompt, err := e.prompts.GetFormatted("coin_info", map[string]any{"user_input": message})
	if err != nil {
		return "", false
	}
	resp, err := e.ai.Generate(ctx, prompt.Text,
		ai.WithResponseMIMEType(prompt.MIMEType),
		ai.WithResponseSchema(prompt.Schema))
	if err != nil {
		e.log.Warn("AI 代币抽取失败，回退到别名扫描", "error", err)
		return "", false
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &decoded); err != nil {
		return "", false
	}
	token := strings.TrimSpace(decoded.Token)
	if token == "" {
		return "", false
	}
	return token, true
}

func (e *Engine) guidance(token string) string {
	return fmt.Sprintf(
		"Sorry, I cannot get the price for %s. Supported tokens are: %s\n"+
			"You can use any common variation of these tokens (e.g., 'BTC' or 'Bitcoin').",
		token, strings.Join(e.catalog.Supported(), ", "))
}

// PercentChange 计算五日涨跌幅。符号约定：current 高于 oldest 时为负，
// 与趋势符号 TrendGlyph 配套使用。
func PercentChange(current, oldest float64) float64 {
	if oldest == 0 {
		return 0
	}
	return -1 * ((current - oldest) / oldest) * 100
}

// TrendGlyph 根据涨跌幅符号返回趋势符号。
func TrendGlyph(change float64) string {
	if change < 0 {
		return "📉"
	}
	return "📈"
}

func decodeFeedPrice(feed flare.FeedValue) float64 {
	value, _ := new(big.Float).SetInt(feed.Value).Float64()
	return scalePrice(value, int(feed.Decimals))
}

func scalePrice(value float64, decimals int) float64 {
	return value / math.Pow(10, math.Abs(float64(decimals)))
}
