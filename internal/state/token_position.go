package state

import (
	"MarginCore/internal/fp"
)

// AssetIndex identifies an asset within the venue's token registry.
type AssetIndex uint16

// AssetIndexInactive marks an unused token position slot.
const AssetIndexInactive AssetIndex = 0xFFFF

// TokenPosition is one account's balance in one asset, stored as a multiple
// of the owning bank group's accrual index rather than a raw amount. Positive
// values are deposits scaled by the deposit index, negative values are borrows
// scaled by the borrow index. Interest accrues for every holder by advancing
// the shared index once.
type TokenPosition struct {
	// Indexed is the deposit-index (if positive) or borrow-index (if
	// negative) scaled position.
	Indexed fp.Fixed

	// Asset is the index into the token registry, or AssetIndexInactive.
	Asset AssetIndex

	// InUseCount is incremented while a market requires this position to
	// stay alive (e.g. a perp market's settlement token).
	InUseCount uint8

	// Reserved trailing bytes in the persisted layout; carried through
	// round-trips untouched.
	Reserved [40]byte
}

// NewInactiveTokenPosition returns an empty slot.
func NewInactiveTokenPosition() TokenPosition {
	return TokenPosition{Asset: AssetIndexInactive}
}

// IsActive reports whether the slot holds a live position.
func (tp *TokenPosition) IsActive() bool {
	return tp.Asset != AssetIndexInactive
}

// IsActiveForAsset reports whether the slot holds a live position in asset.
func (tp *TokenPosition) IsActiveForAsset(asset AssetIndex) bool {
	return tp.Asset == asset
}

// IsInUse reports whether a market depends on this position.
func (tp *TokenPosition) IsInUse() bool {
	return tp.InUseCount > 0
}

// Native converts the indexed position into a native balance using the bank's
// current accrual indexes.
func (tp *TokenPosition) Native(bank *Bank) fp.Fixed {
	if tp.Indexed.IsPositive() {
		return tp.Indexed.Mul(bank.DepositIndex)
	}
	return tp.Indexed.Mul(bank.BorrowIndex)
}
