// Package oracle implements the price analytics engine: FTSO feed catalog
// and alias resolution, the off-chain aggregator client for historical
// voting rounds, an optional Redis round cache, and the coin-info /
// market-watch response composition.
package oracle
