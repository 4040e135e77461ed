package state

import (
	"fmt"

	"MarginCore/internal/fp"
)

// InsuranceFund is the pooled reserve, denominated in one reference asset,
// drawn down to cover bankruptcy shortfalls before losses are socialized.
type InsuranceFund struct {
	// Asset is the reserve denomination (the venue's settlement asset).
	Asset AssetIndex

	// Balance is the native reserve balance. Never negative.
	Balance fp.Fixed
}

// NewInsuranceFund returns a fund with the given starting balance.
func NewInsuranceFund(asset AssetIndex, balance fp.Fixed) *InsuranceFund {
	return &InsuranceFund{Asset: asset, Balance: balance}
}

// Draw removes up to amount from the fund and returns what was actually
// drawn. The balance cannot go negative.
func (f *InsuranceFund) Draw(amount fp.Fixed) (fp.Fixed, error) {
	if amount.IsNegative() {
		return fp.Zero, fmt.Errorf("%w: negative insurance draw", ErrInvalidState)
	}
	drawn := fp.Min(amount, f.Balance)
	f.Balance = f.Balance.Sub(drawn)
	return drawn, nil
}

// Fund adds amount to the reserve.
func (f *InsuranceFund) Fund(amount fp.Fixed) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative insurance contribution", ErrInvalidState)
	}
	f.Balance = f.Balance.Add(amount)
	return nil
}
