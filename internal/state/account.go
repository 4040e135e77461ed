package state

import (
	"fmt"

	"github.com/google/uuid"
)

// Position table capacities. Fixed-size tables keep the persisted record
// layout byte-exact and pre-allocated; unused slots carry sentinel indexes.
const (
	MaxTokenPositions = 16
	MaxPerpPositions  = 8
)

// Account holds one participant's position tables and settlement status
// flags. An account is exclusively owned; mutation always happens inside the
// account's active transaction.
type Account struct {
	AccountID  uuid.UUID
	Owner      uuid.UUID
	AccountNum uint32

	Tokens [MaxTokenPositions]TokenPosition
	Perps  [MaxPerpPositions]PerpPosition

	// BeingLiquidated is set while the account's health is negative and
	// liquidation steps are permitted. IsBankrupt is set once collateral is
	// exhausted with liabilities remaining. Both are entered and exited only
	// by the settlement engines.
	BeingLiquidated bool
	IsBankrupt      bool

	// Version supports compare-and-set commits at the storage layer.
	Version int64

	Reserved [64]byte
}

// NewAccount returns an account with all position slots inactive.
func NewAccount(owner uuid.UUID, accountNum uint32) *Account {
	a := &Account{
		AccountID:  uuid.New(),
		Owner:      owner,
		AccountNum: accountNum,
	}
	for i := range a.Tokens {
		a.Tokens[i] = NewInactiveTokenPosition()
	}
	for i := range a.Perps {
		a.Perps[i] = NewInactivePerpPosition()
	}
	return a
}

// TokenPosition returns the active position for asset.
func (a *Account) TokenPosition(asset AssetIndex) (*TokenPosition, error) {
	for i := range a.Tokens {
		if a.Tokens[i].IsActiveForAsset(asset) {
			return &a.Tokens[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active token position for asset %d", ErrInvalidState, asset)
}

// EnsureTokenPosition returns the position for asset, activating a free slot
// if needed. Reports whether a slot was newly activated.
func (a *Account) EnsureTokenPosition(asset AssetIndex) (*TokenPosition, bool, error) {
	if asset == AssetIndexInactive {
		return nil, false, fmt.Errorf("%w: reserved asset index", ErrInvalidState)
	}
	free := -1
	for i := range a.Tokens {
		if a.Tokens[i].IsActiveForAsset(asset) {
			return &a.Tokens[i], false, nil
		}
		if free < 0 && !a.Tokens[i].IsActive() {
			free = i
		}
	}
	if free < 0 {
		return nil, false, fmt.Errorf("%w: token position table full", ErrInvalidState)
	}
	a.Tokens[free] = NewInactiveTokenPosition()
	a.Tokens[free].Asset = asset
	return &a.Tokens[free], true, nil
}

// DeactivateTokenPosition recycles the slot for asset. Positions a market
// still depends on (InUseCount > 0) cannot be closed.
func (a *Account) DeactivateTokenPosition(asset AssetIndex) error {
	tp, err := a.TokenPosition(asset)
	if err != nil {
		return err
	}
	if tp.IsInUse() {
		return fmt.Errorf("%w: token position for asset %d is in use", ErrInvalidState, asset)
	}
	if !tp.Indexed.IsZero() {
		return fmt.Errorf("%w: token position for asset %d has balance %s", ErrInvalidState, asset, tp.Indexed)
	}
	*tp = NewInactiveTokenPosition()
	return nil
}

// CloseTokenPositionIfZero deactivates the slot when the balance has
// returned to exactly zero and no market holds it open. No-op otherwise.
func (a *Account) CloseTokenPositionIfZero(asset AssetIndex) {
	tp, err := a.TokenPosition(asset)
	if err != nil {
		return
	}
	if tp.Indexed.IsZero() && !tp.IsInUse() {
		*tp = NewInactiveTokenPosition()
	}
}

// PerpPosition returns the active position for market.
func (a *Account) PerpPosition(market PerpMarketIndex) (*PerpPosition, error) {
	for i := range a.Perps {
		if a.Perps[i].IsActiveForMarket(market) {
			return &a.Perps[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no active perp position for market %d", ErrInvalidState, market)
}

// EnsurePerpPosition returns the position for market, activating a free slot
// if needed. Reports whether a slot was newly activated.
func (a *Account) EnsurePerpPosition(market PerpMarketIndex) (*PerpPosition, bool, error) {
	if market == PerpMarketIndexInactive {
		return nil, false, fmt.Errorf("%w: reserved market index", ErrInvalidState)
	}
	free := -1
	for i := range a.Perps {
		if a.Perps[i].IsActiveForMarket(market) {
			return &a.Perps[i], false, nil
		}
		if free < 0 && !a.Perps[i].IsActive() {
			free = i
		}
	}
	if free < 0 {
		return nil, false, fmt.Errorf("%w: perp position table full", ErrInvalidState)
	}
	a.Perps[free] = NewInactivePerpPosition()
	a.Perps[free].Market = market
	return &a.Perps[free], true, nil
}

// DeactivatePerpPosition recycles the slot for market. The position must
// carry no exposure.
func (a *Account) DeactivatePerpPosition(market PerpMarketIndex) error {
	pp, err := a.PerpPosition(market)
	if err != nil {
		return err
	}
	if pp.HasExposure() {
		return fmt.Errorf("%w: perp position for market %d still has exposure", ErrInvalidState, market)
	}
	*pp = NewInactivePerpPosition()
	return nil
}

// ActiveTokenPositions returns pointers to all live token slots.
func (a *Account) ActiveTokenPositions() []*TokenPosition {
	out := make([]*TokenPosition, 0, len(a.Tokens))
	for i := range a.Tokens {
		if a.Tokens[i].IsActive() {
			out = append(out, &a.Tokens[i])
		}
	}
	return out
}

// ActivePerpPositions returns pointers to all live perp slots.
func (a *Account) ActivePerpPositions() []*PerpPosition {
	out := make([]*PerpPosition, 0, len(a.Perps))
	for i := range a.Perps {
		if a.Perps[i].IsActive() {
			out = append(out, &a.Perps[i])
		}
	}
	return out
}

// HasRemainingLiabilities reports whether any token borrow or perp liability
// is still open. Bankruptcy flags clear only when this is false.
func (a *Account) HasRemainingLiabilities() bool {
	for i := range a.Tokens {
		if a.Tokens[i].IsActive() && a.Tokens[i].Indexed.IsNegative() {
			return true
		}
	}
	for i := range a.Perps {
		if !a.Perps[i].IsActive() {
			continue
		}
		if a.Perps[i].BasePositionLots != 0 || a.Perps[i].QuotePositionNative.IsNegative() {
			return true
		}
	}
	return false
}

// HasSpotCollateral reports whether any token deposit remains to seize.
func (a *Account) HasSpotCollateral() bool {
	for i := range a.Tokens {
		if a.Tokens[i].IsActive() && a.Tokens[i].Indexed.IsPositive() {
			return true
		}
	}
	return false
}
