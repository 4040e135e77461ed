package core

import (
	"fmt"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

// BankruptcyResult reports how one bankruptcy settlement step was funded.
// LiabTransfer always equals InsuranceCoveredLiab plus SocializedLoss.
type BankruptcyResult struct {
	// LiabTransfer is the native borrow erased from the bankrupt account.
	LiabTransfer fp.Fixed

	// InsuranceDrawn is the reserve-asset amount taken from the insurance
	// fund.
	InsuranceDrawn fp.Fixed

	// InsuranceCoveredLiab is the portion of LiabTransfer the draw paid for,
	// in liability-asset units.
	InsuranceCoveredLiab fp.Fixed

	// SocializedLoss is the portion written off against the liability asset's
	// depositors.
	SocializedLoss fp.Fixed

	// BankWriteOffs are the per-bank borrow reductions from socialization, in
	// group order.
	BankWriteOffs []fp.Fixed
}

// LiquidateTokenBankruptcy settles part of a bankrupt account's borrow in the
// group's asset. The insurance fund pays first: when the liability is the
// reserve asset itself the fund repays the borrow directly; otherwise the
// liquidator assumes the borrow and is paid in reserve asset at oracle price
// plus the liquidation fee. Whatever the fund cannot cover is socialized
// across the group's depositors. Bankruptcy flags clear once no liabilities
// remain.
//
// A call against an account with nothing owed in the group's asset is a
// flag-maintenance no-op.
func (e *Engine) LiquidateTokenBankruptcy(
	liqee, liqor *state.Account,
	group *state.BankGroup,
	insurance *state.InsuranceFund,
	reserveBank *state.Bank,
	maxLiabTransfer fp.Fixed,
) (*BankruptcyResult, error) {
	if liqee.AccountID == liqor.AccountID {
		return nil, fmt.Errorf("%w: cannot self-liquidate", state.ErrInvalidState)
	}
	if !liqee.IsBankrupt {
		return nil, fmt.Errorf("%w: account is not bankrupt", state.ErrInvalidState)
	}
	if !maxLiabTransfer.IsPositive() {
		return nil, fmt.Errorf("%w: max liability transfer must be positive", state.ErrInvalidState)
	}
	if reserveBank.Asset != insurance.Asset {
		return nil, fmt.Errorf("%w: reserve bank asset %d does not match insurance asset %d",
			state.ErrInvalidState, reserveBank.Asset, insurance.Asset)
	}

	liqeeCopy := *liqee
	liqorCopy := *liqor
	insuranceCopy := *insurance

	banksCopy := make([]*state.Bank, len(group.Banks))
	var reserveCopy *state.Bank
	for i, b := range group.Banks {
		c := *b
		banksCopy[i] = &c
		if b == reserveBank {
			reserveCopy = &c
		}
	}
	groupCopy := &state.BankGroup{Asset: group.Asset, Banks: banksCopy}
	reserveDenominated := group.Asset == insurance.Asset
	if reserveDenominated && reserveCopy == nil {
		return nil, fmt.Errorf("%w: reserve bank must belong to the liability group", state.ErrInvalidState)
	}
	if reserveCopy == nil {
		c := *reserveBank
		reserveCopy = &c
	}

	result := &BankruptcyResult{BankWriteOffs: make([]fp.Fixed, len(group.Banks))}
	for i := range result.BankWriteOffs {
		result.BankWriteOffs[i] = fp.Zero
	}
	result.LiabTransfer = fp.Zero
	result.InsuranceDrawn = fp.Zero
	result.InsuranceCoveredLiab = fp.Zero
	result.SocializedLoss = fp.Zero

	liabBank := groupCopy.First()
	owed := fp.Zero
	liabPos, posErr := liqeeCopy.TokenPosition(group.Asset)
	if posErr == nil {
		owed = liabPos.Native(liabBank).Neg()
	}

	if owed.IsPositive() {
		liabTransfer := fp.Min(owed, maxLiabTransfer)
		var covered fp.Fixed

		if reserveDenominated {
			// The fund holds the liability asset; it repays the borrow
			// directly and the liquidator takes no part in this leg.
			drawn, err := insuranceCopy.Draw(liabTransfer)
			if err != nil {
				return nil, err
			}
			covered = drawn
			if covered.IsPositive() {
				if _, err := reserveCopy.Deposit(liabPos, covered); err != nil {
					return nil, err
				}
			}
			result.InsuranceDrawn = drawn
		} else {
			liabPrice, err := e.health.Oracle.Price(liabBank.OracleID)
			if err != nil {
				return nil, err
			}
			reservePrice, err := e.health.Oracle.Price(reserveCopy.OracleID)
			if err != nil {
				return nil, err
			}
			feeFactor := fp.FromInt64(1).Add(liabBank.LiquidationFee)
			reservePerLiab := liabPrice.Mul(feeFactor).Div(reservePrice)

			drawn, err := insuranceCopy.Draw(liabTransfer.Mul(reservePerLiab))
			if err != nil {
				return nil, err
			}
			covered = fp.Min(liabTransfer, drawn.Div(reservePerLiab))
			if covered.IsPositive() {
				// The liquidator repays the liqee's borrow by assuming it,
				// and is paid the fee-marked-up value in reserve asset.
				if _, err := liabBank.Deposit(liabPos, covered); err != nil {
					return nil, err
				}
				liqorLiab, _, err := liqorCopy.EnsureTokenPosition(group.Asset)
				if err != nil {
					return nil, err
				}
				if _, err := liabBank.Withdraw(liqorLiab, covered, true); err != nil {
					return nil, err
				}
				liqorReserve, _, err := liqorCopy.EnsureTokenPosition(insurance.Asset)
				if err != nil {
					return nil, err
				}
				if _, err := reserveCopy.Deposit(liqorReserve, drawn); err != nil {
					return nil, err
				}
			}
			result.InsuranceDrawn = drawn
		}
		result.InsuranceCoveredLiab = covered
		result.LiabTransfer = liabTransfer

		shortfall := liabTransfer.Sub(covered)
		if shortfall.IsPositive() {
			writeOffs, err := groupCopy.SocializeLoss(shortfall)
			if err != nil {
				return nil, err
			}
			socialized := fp.Zero
			for i, w := range writeOffs {
				result.BankWriteOffs[i] = w
				socialized = socialized.Add(w)
			}
			result.SocializedLoss = socialized

			// Erase the socialized part of the liqee's borrow by direct index
			// adjustment: SocializeLoss already removed it from the bank
			// totals, so going through Deposit would subtract it twice.
			if liabTransfer.Equal(owed) && covered.Add(socialized).Equal(owed) {
				liabPos.Indexed = fp.Zero
			} else {
				liabPos.Indexed = liabPos.Indexed.Add(socialized.Div(liabBank.BorrowIndex))
			}
		}

		liqeeCopy.CloseTokenPositionIfZero(group.Asset)
		liqorCopy.CloseTokenPositionIfZero(group.Asset)
		liqorCopy.CloseTokenPositionIfZero(insurance.Asset)
	}

	if !liqeeCopy.HasRemainingLiabilities() {
		liqeeCopy.IsBankrupt = false
		liqeeCopy.BeingLiquidated = false
	}

	liqeeCopy.Version++
	liqorCopy.Version++
	*liqee = liqeeCopy
	*liqor = liqorCopy
	for i, b := range group.Banks {
		*b = *banksCopy[i]
	}
	if !reserveDenominated {
		*reserveBank = *reserveCopy
	}
	*insurance = insuranceCopy

	e.log.Info().
		Str("liqee", liqee.AccountID.String()).
		Str("liqor", liqor.AccountID.String()).
		Uint16("liab", uint16(group.Asset)).
		Str("liab_transfer", result.LiabTransfer.String()).
		Str("insurance_drawn", result.InsuranceDrawn.String()).
		Str("socialized", result.SocializedLoss.String()).
		Bool("bankrupt", liqee.IsBankrupt).
		Msg("token bankruptcy step")
	if e.metrics != nil {
		e.metrics.BankruptciesTotal.Inc()
		e.metrics.SocializedLossTotal.Add(result.SocializedLoss.Float64())
		e.metrics.InsuranceBalance.Set(insurance.Balance.Float64())
	}
	return result, nil
}
