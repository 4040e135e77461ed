package state

import (
	"fmt"

	"MarginCore/internal/fp"
)

// Bank is the per-asset shared state that token positions reference. Several
// banks may exist for one asset (liquidity partitions); they share accrual
// indexes and together form a BankGroup. A bank is never mutated concurrently:
// every settlement transaction declares the banks it touches and the storage
// layer serializes conflicts.
type Bank struct {
	Asset        AssetIndex
	BankNum      uint8
	Name         string
	MintDecimals uint8

	// DepositIndex and BorrowIndex scale indexed positions into native
	// amounts. Advancing them applies interest to every holder at once.
	DepositIndex fp.Fixed
	BorrowIndex  fp.Fixed

	// IndexedTotalDeposits is the sum of all positive indexed positions,
	// IndexedTotalBorrows the sum of magnitudes of all negative ones.
	IndexedTotalDeposits fp.Fixed
	IndexedTotalBorrows  fp.Fixed

	// Risk parameters used by health and liquidation.
	MaintAssetWeight fp.Fixed
	InitAssetWeight  fp.Fixed
	MaintLiabWeight  fp.Fixed
	InitLiabWeight   fp.Fixed
	LiquidationFee   fp.Fixed

	// OracleID names the price feed for this asset.
	OracleID string

	Reserved [64]byte
}

// NewBank returns a bank with unit accrual indexes and neutral weights.
func NewBank(asset AssetIndex, bankNum uint8, name string, decimals uint8) *Bank {
	one := fp.FromInt64(1)
	return &Bank{
		Asset:            asset,
		BankNum:          bankNum,
		Name:             name,
		MintDecimals:     decimals,
		DepositIndex:     one,
		BorrowIndex:      one,
		MaintAssetWeight: one,
		InitAssetWeight:  one,
		MaintLiabWeight:  one,
		InitLiabWeight:   one,
	}
}

// NativeTotalDeposits returns the bank's total deposits in native units.
func (b *Bank) NativeTotalDeposits() fp.Fixed {
	return b.IndexedTotalDeposits.Mul(b.DepositIndex)
}

// NativeTotalBorrows returns the bank's total borrows in native units.
func (b *Bank) NativeTotalBorrows() fp.Fixed {
	return b.IndexedTotalBorrows.Mul(b.BorrowIndex)
}

// Deposit credits nativeAmount to the position. A borrow is paid down first;
// any remainder becomes a deposit. Returns whether the position is still
// active (non-zero) afterwards.
func (b *Bank) Deposit(tp *TokenPosition, nativeAmount fp.Fixed) (bool, error) {
	if nativeAmount.IsNegative() {
		return false, fmt.Errorf("%w: negative deposit amount", ErrInvalidState)
	}
	if !tp.IsActiveForAsset(b.Asset) {
		return false, fmt.Errorf("%w: token position not active for asset %d", ErrInvalidState, b.Asset)
	}

	if tp.Indexed.Sign() >= 0 {
		indexedChange := nativeAmount.Div(b.DepositIndex)
		b.IndexedTotalDeposits = b.IndexedTotalDeposits.Add(indexedChange)
		tp.Indexed = tp.Indexed.Add(indexedChange)
		return tp.isActiveAfterChange(), nil
	}

	nativeBorrow := tp.Indexed.Mul(b.BorrowIndex) // negative
	remainder := nativeAmount.Add(nativeBorrow)
	if remainder.Sign() >= 0 {
		// The deposit covers the whole borrow; the rest opens a deposit.
		b.IndexedTotalBorrows = b.IndexedTotalBorrows.Add(tp.Indexed) // tp.Indexed < 0
		newIndexed := remainder.Div(b.DepositIndex)
		b.IndexedTotalDeposits = b.IndexedTotalDeposits.Add(newIndexed)
		tp.Indexed = newIndexed
		return tp.isActiveAfterChange(), nil
	}

	// Partial pay-down of the borrow.
	indexedChange := nativeAmount.Div(b.BorrowIndex)
	b.IndexedTotalBorrows = b.IndexedTotalBorrows.Sub(indexedChange)
	tp.Indexed = tp.Indexed.Add(indexedChange)
	return tp.isActiveAfterChange(), nil
}

// Withdraw debits nativeAmount from the position. With allowBorrow the
// position may go negative (a borrow); otherwise exceeding the deposit
// balance returns ErrInsufficientFunds with no mutation.
func (b *Bank) Withdraw(tp *TokenPosition, nativeAmount fp.Fixed, allowBorrow bool) (bool, error) {
	if nativeAmount.IsNegative() {
		return false, fmt.Errorf("%w: negative withdraw amount", ErrInvalidState)
	}
	if !tp.IsActiveForAsset(b.Asset) {
		return false, fmt.Errorf("%w: token position not active for asset %d", ErrInvalidState, b.Asset)
	}

	if tp.Indexed.Sign() <= 0 {
		if !allowBorrow {
			return false, fmt.Errorf("%w: no deposit balance to withdraw", ErrInsufficientFunds)
		}
		indexedChange := nativeAmount.Div(b.BorrowIndex)
		b.IndexedTotalBorrows = b.IndexedTotalBorrows.Add(indexedChange)
		tp.Indexed = tp.Indexed.Sub(indexedChange)
		return tp.isActiveAfterChange(), nil
	}

	nativeDeposit := tp.Indexed.Mul(b.DepositIndex)
	if nativeAmount.Cmp(nativeDeposit) <= 0 {
		indexedChange := nativeAmount.Div(b.DepositIndex)
		b.IndexedTotalDeposits = b.IndexedTotalDeposits.Sub(indexedChange)
		tp.Indexed = tp.Indexed.Sub(indexedChange)
		return tp.isActiveAfterChange(), nil
	}

	if !allowBorrow {
		return false, fmt.Errorf("%w: withdraw %s exceeds deposit %s", ErrInsufficientFunds, nativeAmount, nativeDeposit)
	}

	// The withdrawal consumes the whole deposit and opens a borrow for the
	// remainder.
	b.IndexedTotalDeposits = b.IndexedTotalDeposits.Sub(tp.Indexed)
	borrowNative := nativeAmount.Sub(nativeDeposit)
	newIndexed := borrowNative.Div(b.BorrowIndex).Neg()
	b.IndexedTotalBorrows = b.IndexedTotalBorrows.Sub(newIndexed) // newIndexed < 0
	tp.Indexed = newIndexed
	return tp.isActiveAfterChange(), nil
}

// ChangePosition applies a signed native change: positive deposits, negative
// withdraws (borrowing allowed). Returns whether the position stays active.
func (b *Bank) ChangePosition(tp *TokenPosition, nativeChange fp.Fixed) (bool, error) {
	if nativeChange.Sign() >= 0 {
		return b.Deposit(tp, nativeChange)
	}
	return b.Withdraw(tp, nativeChange.Neg(), true)
}

// WriteOffBorrows removes nativeLoss from the bank's aggregate borrows
// without any repayment. Returns the native borrow reduction applied. The
// matching deposit-side haircut is applied group-wide by SocializeLoss so the
// group's shared index values stay equal.
func (b *Bank) WriteOffBorrows(nativeLoss fp.Fixed) (fp.Fixed, error) {
	if nativeLoss.IsNegative() {
		return fp.Zero, fmt.Errorf("%w: negative write-off", ErrInvalidState)
	}
	reduction := fp.Min(nativeLoss, b.NativeTotalBorrows())
	if reduction.IsZero() {
		return fp.Zero, nil
	}
	b.IndexedTotalBorrows = b.IndexedTotalBorrows.Sub(reduction.Div(b.BorrowIndex))
	return reduction, nil
}

func (tp *TokenPosition) isActiveAfterChange() bool {
	return !tp.Indexed.IsZero()
}

// BankGroup is the set of banks partitioning one asset's liquidity. All banks
// in a group share accrual index values; socialized loss spans the whole
// group.
type BankGroup struct {
	Asset AssetIndex
	Banks []*Bank
}

// NewBankGroup validates that all banks belong to the same asset.
func NewBankGroup(banks ...*Bank) (*BankGroup, error) {
	if len(banks) == 0 {
		return nil, fmt.Errorf("%w: empty bank group", ErrInvalidState)
	}
	asset := banks[0].Asset
	for _, b := range banks[1:] {
		if b.Asset != asset {
			return nil, fmt.Errorf("%w: bank group mixes assets %d and %d", ErrInvalidState, asset, b.Asset)
		}
	}
	return &BankGroup{Asset: asset, Banks: banks}, nil
}

// First returns the group's primary bank, whose indexes are authoritative for
// converting the account's single indexed position for this asset.
func (g *BankGroup) First() *Bank {
	return g.Banks[0]
}

// NativeTotalBorrows sums native borrows across the group.
func (g *BankGroup) NativeTotalBorrows() fp.Fixed {
	total := fp.Zero
	for _, b := range g.Banks {
		total = total.Add(b.NativeTotalBorrows())
	}
	return total
}

// SocializeLoss distributes nativeLoss across the group's banks pro-rata by
// each bank's native borrows. The final bank takes the remainder so the
// write-offs sum exactly to nativeLoss (capped by total borrows). Returns the
// per-bank write-offs in group order.
func (g *BankGroup) SocializeLoss(nativeLoss fp.Fixed) ([]fp.Fixed, error) {
	totalBorrows := g.NativeTotalBorrows()
	loss := fp.Min(nativeLoss, totalBorrows)
	writeOffs := make([]fp.Fixed, len(g.Banks))
	if loss.IsZero() {
		return writeOffs, nil
	}

	remaining := loss
	for i, b := range g.Banks {
		var share fp.Fixed
		if i == len(g.Banks)-1 {
			share = remaining
		} else {
			share = fp.Min(loss.Mul(b.NativeTotalBorrows()).Div(totalBorrows), remaining)
		}
		applied, err := b.WriteOffBorrows(share)
		if err != nil {
			return nil, err
		}
		writeOffs[i] = applied
		remaining = remaining.Sub(applied)
	}
	// Truncation in the pro-rata shares can leave dust; sweep it into any
	// bank that still has borrow capacity so the write-offs net exactly.
	for i, b := range g.Banks {
		if !remaining.IsPositive() {
			break
		}
		applied, err := b.WriteOffBorrows(remaining)
		if err != nil {
			return nil, err
		}
		writeOffs[i] = writeOffs[i].Add(applied)
		remaining = remaining.Sub(applied)
	}
	if remaining.IsPositive() {
		return nil, fmt.Errorf("%w: socialized loss did not net to zero, %s left", ErrInvalidState, remaining)
	}

	// Depositors absorb the loss: lower the shared deposit index once for the
	// whole group so every bank's index values remain equal.
	indexedDeposits := fp.Zero
	for _, b := range g.Banks {
		indexedDeposits = indexedDeposits.Add(b.IndexedTotalDeposits)
	}
	if indexedDeposits.IsPositive() {
		delta := loss.Div(indexedDeposits)
		for _, b := range g.Banks {
			b.DepositIndex = b.DepositIndex.Sub(delta)
		}
	}
	return writeOffs, nil
}
