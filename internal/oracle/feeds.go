package oracle

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog 描述 FTSO 喂价目录：feed id、常见别名与可兑换代币集合。
// 目录可以通过 YAML 文件覆盖，未提供时使用内置的 Flare 主网默认值。
type Catalog struct {
	FeedIDs    map[string]string `yaml:"feed_ids"`
	Aliases    map[string]string `yaml:"aliases"`
	SwapTokens []string          `yaml:"swap_tokens"`
}

// DefaultCatalog 返回内置的喂价目录。
func DefaultCatalog() *Catalog {
	return &Catalog{
		FeedIDs: map[string]string{
			"FLR":  "0x01464c522f55534400000000000000000000000000",
			"BTC":  "0x014254432f55534400000000000000000000000000",
			"ETH":  "0x014554482f55534400000000000000000000000000",
			"XRP":  "0x015852502f55534400000000000000000000000000",
			"DOGE": "0x01444f47452f555344000000000000000000000000",
			"ADA":  "0x014144412f55534400000000000000000000000000",
			"ALGO": "0x01414c474f2f555344000000000000000000000000",
			"SOL":  "0x01534f4c2f55534400000000000000000000000000",
		},
		Aliases: map[string]string{
			"FLR":              "FLR",
			"FLARE":            "FLR",
			"FLARE NETWORK":    "FLR",
			"BTC":              "BTC",
			"BITCOIN":          "BTC",
			"WBTC":             "BTC",
			"WRAPPED BITCOIN":  "BTC",
			"XBT":              "BTC",
			"ETH":              "ETH",
			"ETHEREUM":         "ETH",
			"WETH":             "ETH",
			"WRAPPED ETHEREUM": "ETH",
			"XRP":              "XRP",
			"RIPPLE":           "XRP",
			"DOGE":             "DOGE",
			"DOGECOIN":         "DOGE",
			"ADA":              "ADA",
			"CARDANO":          "ADA",
			"ALGO":             "ALGO",
			"ALGORAND":         "ALGO",
			"SOL":              "SOL",
			"SOLANA":           "SOL",
		},
		SwapTokens: []string{"FLR", "USDC", "JOULE", "WFLR", "USDT", "WETH"},
	}
}

// LoadCatalog 从 YAML 文件加载喂价目录；path 为空时返回默认目录。
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取喂价目录失败: %w", err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(content, &catalog); err != nil {
		return nil, fmt.Errorf("解析喂价目录失败: %w", err)
	}

	defaults := DefaultCatalog()
	if len(catalog.FeedIDs) == 0 {
		catalog.FeedIDs = defaults.FeedIDs
	}
	if len(catalog.Aliases) == 0 {
		catalog.Aliases = defaults.Aliases
	}
	if len(catalog.SwapTokens) == 0 {
		catalog.SwapTokens = defaults.SwapTokens
	}
	return &catalog, nil
}

// Resolve 将用户输入的代币名称归一化为规范符号。
// 归一化去掉 /USD 后缀、首尾空白并统一大写。
func (c *Catalog) Resolve(name string) (string, bool) {
	normalized := strings.TrimSpace(strings.ReplaceAll(strings.ToUpper(name), "/USD", ""))
	symbol, ok := c.Aliases[normalized]
	if !ok {
		return "", false
	}
	return symbol, true
}

// FeedID 返回规范符号对应的 feed id。
func (c *Catalog) FeedID(symbol string) (string, bool) {
	feedID, ok := c.FeedIDs[symbol]
	return feedID, ok
}

// Supported 返回按字典序排列的受支持规范符号列表。
func (c *Catalog) Supported() []string {
	symbols := make([]string, 0, len(c.FeedIDs))
	for symbol := range c.FeedIDs {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// SupportedAliases 返回所有指向受支持喂价的别名，用于提示用户。
func (c *Catalog) SupportedAliases() []string {
	seen := make(map[string]struct{})
	aliases := make([]string, 0, len(c.Aliases))
	for alias, symbol := range c.Aliases {
		if _, ok := c.FeedIDs[symbol]; !ok {
			continue
		}
		if _, dup := seen[alias]; dup {
			continue
		}
		seen[alias] = struct{}{}
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// SwapSupported 判断符号是否属于可兑换集合（区分大小写的精确匹配）。
func (c *Catalog) SwapSupported(symbol string) bool {
	for _, token := range c.SwapTokens {
		if token == symbol {
			return true
		}
	}
	return false
}
