package oracle

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCatalogResolveAliases(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	cases := []struct {
		name string
		want string
	}{
		{"BTC", "BTC"},
		{"bitcoin", "BTC"},
		{"WBTC", "BTC"},
		{"xbt", "BTC"},
		{"Flare", "FLR"},
		{"ethereum", "ETH"},
		{"WETH", "ETH"},
		{"ripple", "XRP"},
		{"dogecoin", "DOGE"},
		{"cardano", "ADA"},
		{"algorand", "ALGO"},
		{"solana", "SOL"},
		{"BTC/USD", "BTC"},
		{" eth/usd ", "ETH"},
	}
	for _, tc := range cases {
		got, ok := catalog.Resolve(tc.name)
		if !ok || got != tc.want {
			t.Fatalf("Resolve(%q) = (%q, %v), want %q", tc.name, got, ok, tc.want)
		}
	}

	if _, ok := catalog.Resolve("SHIB"); ok {
		t.Fatalf("unknown token must not resolve")
	}
}

func TestCatalogFeedIDs(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	for _, symbol := range catalog.Supported() {
		feedID, ok := catalog.FeedID(symbol)
		if !ok || len(feedID) != 2+42 {
			t.Fatalf("feed id for %s malformed: %q", symbol, feedID)
		}
	}

	flr, _ := catalog.FeedID("FLR")
	if flr != "0x01464c522f55534400000000000000000000000000" {
		t.Fatalf("unexpected FLR feed id: %s", flr)
	}
}

func TestCatalogSwapSupported(t *testing.T) {
	t.Parallel()

	catalog := DefaultCatalog()
	for _, token := range []string{"FLR", "USDC", "JOULE", "WFLR", "USDT", "WETH"} {
		if !catalog.SwapSupported(token) {
			t.Fatalf("expected %s to be swappable", token)
		}
	}
	if catalog.SwapSupported("BTC") {
		t.Fatalf("BTC must not be swappable")
	}
	if catalog.SwapSupported("flr") {
		t.Fatalf("swap matching is case sensitive")
	}
}

func TestLoadCatalogEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	catalog, err := LoadCatalog("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(catalog.FeedIDs) != len(DefaultCatalog().FeedIDs) {
		t.Fatalf("expected default feed ids")
	}
}

func TestLoadCatalogOverride(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "feeds.yaml")
	content := `feed_ids:
  TEST: "0x0154455354000000000000000000000000000000"
aliases:
  TEST: TEST
  TESTCOIN: TEST
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	catalog, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if got, ok := catalog.Resolve("testcoin"); !ok || got != "TEST" {
		t.Fatalf("expected override alias to resolve, got (%q, %v)", got, ok)
	}
	// 未覆盖的段沿用默认值。
	if len(catalog.SwapTokens) == 0 {
		t.Fatalf("expected default swap tokens to backfill")
	}
}
