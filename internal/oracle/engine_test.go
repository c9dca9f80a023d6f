package oracle

import (
	"context"
	"errors"
	"math"
	"math/big"
	"strings"
	"sync"
	"testing"

	xerrors "DeFAI-Agent/internal/errors"
	"DeFAI-Agent/internal/flare"
)

type fakeReader struct {
	connected bool
	feeds     map[string]flare.FeedValue
	errs      map[string]error
}

func (f *fakeReader) GetFeedByID(_ context.Context, feedID string) (flare.FeedValue, error) {
	if err, ok := f.errs[feedID]; ok {
		return flare.FeedValue{}, err
	}
	return f.feeds[feedID], nil
}

func (f *fakeReader) IsConnected(context.Context) bool { return f.connected }

type fakeRounds struct {
	mu          sync.Mutex
	latestRound int64
	latestTs    int64
	latestErr   error
	prices      map[string]float64
	anchorErr   error
	anchorCalls int
}

func (f *fakeRounds) LatestVotingRound(context.Context) (int64, int64, error) {
	if f.latestErr != nil {
		return 0, 0, f.latestErr
	}
	return f.latestRound, f.latestTs, nil
}

func (f *fakeRounds) AnchorFeed(_ context.Context, feedID string, _ int64) (float64, error) {
	f.mu.Lock()
	f.anchorCalls++
	f.mu.Unlock()
	if f.anchorErr != nil {
		return 0, f.anchorErr
	}
	return f.prices[feedID], nil
}

func TestPercentChangeSignInverted(t *testing.T) {
	t.Parallel()

	// 价格从 1.00 涨到 1.10 时报告 -10.00% 并配下跌符号。
	change := PercentChange(1.10, 1.00)
	if math.Abs(change-(-10.0)) > 1e-9 {
		t.Fatalf("expected -10.00, got %v", change)
	}
	if TrendGlyph(change) != "📉" {
		t.Fatalf("expected down glyph for %v", change)
	}

	change = PercentChange(0.90, 1.00)
	if math.Abs(change-10.0) > 1e-9 {
		t.Fatalf("expected +10.00, got %v", change)
	}
	if TrendGlyph(change) != "📈" {
		t.Fatalf("expected up glyph for %v", change)
	}
}

func testCatalog() *Catalog {
	return &Catalog{
		FeedIDs: map[string]string{"BTC": "0xbtc"},
		Aliases: map[string]string{"BTC": "BTC", "BITCOIN": "BTC"},
	}
}

func TestCoinInfoFullResponse(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{
		connected: true,
		feeds: map[string]flare.FeedValue{
			"0xbtc": {Value: big.NewInt(110000), Decimals: 5, Timestamp: 1714000000},
		},
	}
	rounds := &fakeRounds{
		latestRound: 900000,
		latestTs:    1714000000,
		prices:      map[string]float64{"0xbtc": 1.00},
	}

	engine := NewEngine(testCatalog(), reader, rounds)
	reply, err := engine.CoinInfo(context.Background(), "what's the price of bitcoin?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(reply, "Current BTC/USD Price: **$1.1000**") {
		t.Fatalf("missing current price in %q", reply)
	}
	if !strings.Contains(reply, "-10.00%") || !strings.Contains(reply, "📉") {
		t.Fatalf("expected inverted change with down glyph in %q", reply)
	}
	if !strings.Contains(reply, "5-Day Price History:") || !strings.Contains(reply, "•") {
		t.Fatalf("expected chart in %q", reply)
	}
	if rounds.anchorCalls != historyDays {
		t.Fatalf("expected %d historical fetches, got %d", historyDays, rounds.anchorCalls)
	}
}

func TestCoinInfoDegradesWhenHistoryFails(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{
		connected: true,
		feeds: map[string]flare.FeedValue{
			"0xbtc": {Value: big.NewInt(110000), Decimals: 5, Timestamp: 1714000000},
		},
	}
	rounds := &fakeRounds{latestErr: errors.New("aggregator down")}

	engine := NewEngine(testCatalog(), reader, rounds)
	reply, err := engine.CoinInfo(context.Background(), "BTC price?")
	if err != nil {
		t.Fatalf("history failure must degrade, not fail: %v", err)
	}
	if !strings.Contains(reply, "Current BTC/USD Price: **$1.1000**") {
		t.Fatalf("missing current price in %q", reply)
	}
	if !strings.Contains(reply, "Historical price data is temporarily unavailable.") {
		t.Fatalf("missing degradation note in %q", reply)
	}
}

func TestCoinInfoPrimaryReadFailures(t *testing.T) {
	t.Parallel()

	// 连不上链是显式错误，绝不降级。
	engine := NewEngine(testCatalog(), &fakeReader{connected: false}, &fakeRounds{})
	if _, err := engine.CoinInfo(context.Background(), "BTC"); !xerrors.HasCode(err, xerrors.CodeUpstreamUnavailable) {
		t.Fatalf("expected UPSTREAM_UNAVAILABLE, got %v", err)
	}

	// 合约拒绝原样上抛。
	reader := &fakeReader{
		connected: true,
		errs:      map[string]error{"0xbtc": xerrors.New(xerrors.CodeChainRejection, "revert")},
	}
	engine = NewEngine(testCatalog(), reader, &fakeRounds{})
	if _, err := engine.CoinInfo(context.Background(), "BTC"); !xerrors.HasCode(err, xerrors.CodeChainRejection) {
		t.Fatalf("expected CHAIN_REJECTION, got %v", err)
	}
}

func TestCoinInfoZeroPriceMeansNoData(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{
		connected: true,
		feeds:     map[string]flare.FeedValue{"0xbtc": {Value: big.NewInt(0), Decimals: 5}},
	}
	engine := NewEngine(testCatalog(), reader, &fakeRounds{})
	reply, err := engine.CoinInfo(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("zero price is not an error: %v", err)
	}
	if !strings.Contains(reply, "No price data available for BTC") {
		t.Fatalf("unexpected reply: %q", reply)
	}
}

func TestCoinInfoUnknownTokenGuidance(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testCatalog(), &fakeReader{connected: true}, &fakeRounds{})
	reply, err := engine.CoinInfo(context.Background(), "price of SHIB?")
	if err != nil {
		t.Fatalf("unresolved token is not an error: %v", err)
	}
	if !strings.Contains(reply, "Supported tokens are:") {
		t.Fatalf("expected guidance, got %q", reply)
	}
}

func TestMarketWatchRanking(t *testing.T) {
	t.Parallel()

	catalog := &Catalog{
		FeedIDs: map[string]string{
			"AAA": "0xaaa", "BBB": "0xbbb", "CCC": "0xccc", "DDD": "0xddd",
		},
		Aliases: map[string]string{"AAA": "AAA", "BBB": "BBB", "CCC": "CCC", "DDD": "DDD"},
	}

	// 五日前价格均为 1.000；当前价选取使涨跌幅为 +1%、-9%、+3%、-0.5%。
	reader := &fakeReader{
		connected: true,
		feeds: map[string]flare.FeedValue{
			"0xaaa": {Value: big.NewInt(990), Decimals: 3, Timestamp: 1},
			"0xbbb": {Value: big.NewInt(1090), Decimals: 3, Timestamp: 1},
			"0xccc": {Value: big.NewInt(970), Decimals: 3, Timestamp: 1},
			"0xddd": {Value: big.NewInt(1005), Decimals: 3, Timestamp: 1},
		},
	}
	rounds := &fakeRounds{
		latestRound: 900000,
		latestTs:    1714000000,
		prices: map[string]float64{
			"0xaaa": 1.0, "0xbbb": 1.0, "0xccc": 1.0, "0xddd": 1.0,
		},
	}

	engine := NewEngine(catalog, reader, rounds)
	reply, err := engine.MarketWatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 期望按 |涨跌幅| 降序取前三：BBB(-9) > CCC(+3) > AAA(+1)，DDD 出局。
	posB := strings.Index(reply, "BBB:")
	posC := strings.Index(reply, "CCC:")
	posA := strings.Index(reply, "AAA:")
	if posB == -1 || posC == -1 || posA == -1 {
		t.Fatalf("missing movers in %q", reply)
	}
	if !(posB < posC && posC < posA) {
		t.Fatalf("wrong ranking order in %q", reply)
	}
	if strings.Contains(reply, "DDD:") {
		t.Fatalf("DDD must be cut from top 3: %q", reply)
	}
}

func TestMarketWatchSkipsFailingTokens(t *testing.T) {
	t.Parallel()

	catalog := &Catalog{
		FeedIDs: map[string]string{"AAA": "0xaaa", "BBB": "0xbbb"},
		Aliases: map[string]string{"AAA": "AAA", "BBB": "BBB"},
	}
	reader := &fakeReader{
		connected: true,
		feeds: map[string]flare.FeedValue{
			"0xaaa": {Value: big.NewInt(990), Decimals: 3, Timestamp: 1},
		},
		errs: map[string]error{"0xbbb": errors.New("revert")},
	}
	rounds := &fakeRounds{
		latestRound: 900000,
		latestTs:    1714000000,
		prices:      map[string]float64{"0xaaa": 1.0},
	}

	engine := NewEngine(catalog, reader, rounds)
	reply, err := engine.MarketWatch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(reply, "AAA:") || strings.Contains(reply, "BBB:") {
		t.Fatalf("expected only AAA in %q", reply)
	}
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]float64
	hits    int
}

func (c *mapCache) Get(_ context.Context, feedID string, roundID int64) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	price, ok := c.entries[cacheKey(feedID, roundID)]
	if ok {
		c.hits++
	}
	return price, ok
}

func (c *mapCache) Set(_ context.Context, feedID string, roundID int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		c.entries = make(map[string]float64)
	}
	c.entries[cacheKey(feedID, roundID)] = price
}

func cacheKey(feedID string, roundID int64) string {
	return roundKey(feedID, roundID)
}

func TestCoinInfoUsesRoundCache(t *testing.T) {
	t.Parallel()

	reader := &fakeReader{
		connected: true,
		feeds: map[string]flare.FeedValue{
			"0xbtc": {Value: big.NewInt(110000), Decimals: 5, Timestamp: 1714000000},
		},
	}
	rounds := &fakeRounds{
		latestRound: 900000,
		latestTs:    1714000000,
		prices:      map[string]float64{"0xbtc": 1.00},
	}
	cache := &mapCache{}

	engine := NewEngine(testCatalog(), reader, rounds, WithCache(cache))
	ctx := context.Background()

	if _, err := engine.CoinInfo(ctx, "BTC"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	firstCalls := rounds.anchorCalls
	if firstCalls != historyDays {
		t.Fatalf("expected %d upstream fetches, got %d", historyDays, firstCalls)
	}

	// 已结算轮次不再变化，第二次全部命中缓存。
	if _, err := engine.CoinInfo(ctx, "BTC"); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if rounds.anchorCalls != firstCalls {
		t.Fatalf("expected cache hits, upstream fetched %d more times", rounds.anchorCalls-firstCalls)
	}
}
