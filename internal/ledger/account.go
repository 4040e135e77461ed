package ledger

import (
	"MarginCore/internal/state"
)

// Asset symbol mapping for wire formats and logs. Numeric indexes are the
// authoritative identifiers; symbols exist for operators.
var (
	assetToIndex = map[string]state.AssetIndex{
		"USDC": 0,
		"USDT": 1,
		"BTC":  2,
		"ETH":  3,
		"SOL":  4,
	}
	indexToAsset = map[state.AssetIndex]string{
		0: "USDC",
		1: "USDT",
		2: "BTC",
		3: "ETH",
		4: "SOL",
	}
)

// ParseAsset maps a symbol to its asset index.
func ParseAsset(symbol string) (state.AssetIndex, bool) {
	idx, ok := assetToIndex[symbol]
	return idx, ok
}

// AssetSymbol maps an asset index to its symbol.
func AssetSymbol(idx state.AssetIndex) (string, bool) {
	symbol, ok := indexToAsset[idx]
	return symbol, ok
}
