package ledger

import (
	"fmt"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

// InvariantValidator checks global bookkeeping invariants over the registry.
// Run after batches of event application and before snapshots; a failure means
// a settlement bug, not bad input.
type InvariantValidator struct {
	registry *Registry
}

func NewInvariantValidator(registry *Registry) *InvariantValidator {
	return &InvariantValidator{registry: registry}
}

// ValidateBankTotals verifies that each bank group's indexed totals equal the
// sums over account positions for that asset.
func (v *InvariantValidator) ValidateBankTotals(asset state.AssetIndex) error {
	group, err := v.registry.BankGroup(asset)
	if err != nil {
		return err
	}

	deposits := fp.Zero
	borrows := fp.Zero
	for _, acct := range v.registry.Accounts() {
		tp, err := acct.TokenPosition(asset)
		if err != nil {
			continue
		}
		if tp.Indexed.Sign() >= 0 {
			deposits = deposits.Add(tp.Indexed)
		} else {
			borrows = borrows.Sub(tp.Indexed)
		}
	}

	groupDeposits := fp.Zero
	groupBorrows := fp.Zero
	for _, b := range group.Banks {
		groupDeposits = groupDeposits.Add(b.IndexedTotalDeposits)
		groupBorrows = groupBorrows.Add(b.IndexedTotalBorrows)
	}

	if !deposits.Equal(groupDeposits) {
		return fmt.Errorf("asset %d indexed deposits: accounts %s, banks %s",
			asset, deposits, groupDeposits)
	}
	if !borrows.Equal(groupBorrows) {
		return fmt.Errorf("asset %d indexed borrows: accounts %s, banks %s",
			asset, borrows, groupBorrows)
	}
	return nil
}

// ValidateGroupIndexes verifies all banks in a group share identical accrual
// index values.
func (v *InvariantValidator) ValidateGroupIndexes(asset state.AssetIndex) error {
	group, err := v.registry.BankGroup(asset)
	if err != nil {
		return err
	}
	first := group.First()
	for _, b := range group.Banks[1:] {
		if !b.DepositIndex.Equal(first.DepositIndex) {
			return fmt.Errorf("asset %d bank %d deposit index %s diverged from %s",
				asset, b.BankNum, b.DepositIndex, first.DepositIndex)
		}
		if !b.BorrowIndex.Equal(first.BorrowIndex) {
			return fmt.Errorf("asset %d bank %d borrow index %s diverged from %s",
				asset, b.BankNum, b.BorrowIndex, first.BorrowIndex)
		}
	}
	return nil
}

// ValidateOpenInterest verifies a market's open interest equals the sum of
// absolute base positions across accounts.
func (v *InvariantValidator) ValidateOpenInterest(market state.PerpMarketIndex) error {
	m, err := v.registry.Market(market)
	if err != nil {
		return err
	}
	var total int64
	for _, acct := range v.registry.Accounts() {
		pp, err := acct.PerpPosition(market)
		if err != nil {
			continue
		}
		lots := pp.BasePositionLots
		if lots < 0 {
			lots = -lots
		}
		total += lots
	}
	if total != m.OpenInterest {
		return fmt.Errorf("market %d open interest: positions sum %d, market %d",
			market, total, m.OpenInterest)
	}
	return nil
}

// ValidateInsuranceNonNegative verifies the insurance fund never went below
// zero.
func (v *InvariantValidator) ValidateInsuranceNonNegative() error {
	if v.registry.Insurance().Balance.IsNegative() {
		return fmt.Errorf("insurance fund balance is negative: %s", v.registry.Insurance().Balance)
	}
	return nil
}

// ValidateStatusFlags verifies no account carries IsBankrupt without
// BeingLiquidated.
func (v *InvariantValidator) ValidateStatusFlags() error {
	for _, acct := range v.registry.Accounts() {
		if acct.IsBankrupt && !acct.BeingLiquidated {
			return fmt.Errorf("account %s is bankrupt but not flagged being-liquidated", acct.AccountID)
		}
	}
	return nil
}

// ValidateAll runs every invariant over every registered asset and market.
func (v *InvariantValidator) ValidateAll() error {
	for asset := range v.registry.PrimaryBanks() {
		if err := v.ValidateBankTotals(asset); err != nil {
			return err
		}
		if err := v.ValidateGroupIndexes(asset); err != nil {
			return err
		}
	}
	for market := range v.registry.Markets() {
		if err := v.ValidateOpenInterest(market); err != nil {
			return err
		}
	}
	if err := v.ValidateInsuranceNonNegative(); err != nil {
		return err
	}
	return v.ValidateStatusFlags()
}
