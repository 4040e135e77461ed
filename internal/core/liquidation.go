package core

import (
	"fmt"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

// LiquidationResult reports what one token-for-token liquidation step moved.
type LiquidationResult struct {
	// LiabTransfer is the native amount of the liability asset the liquidator
	// repaid on the liqee's behalf.
	LiabTransfer fp.Fixed

	// AssetTransfer is the native collateral seized in exchange, including the
	// liquidation fee markup.
	AssetTransfer fp.Fixed

	// Bankrupt reports that the liqee ran out of seizable collateral while
	// still owing, and must proceed to bankruptcy settlement.
	Bankrupt bool
}

// LiquidateTokenWithToken performs one step of token-for-token liquidation:
// the liquidator repays part of the liqee's borrow in the liability asset and
// seizes collateral in the asset asset at oracle prices, marked up by the
// liability bank's liquidation fee. The transfer is bounded by the amount
// owed, the collateral available and maxLiabTransfer.
//
// The liqee must be below maintenance health (or already flagged
// BeingLiquidated). The flag clears once the liqee is restored to
// non-negative init health; if collateral runs out first the liqee is flagged
// IsBankrupt instead.
func (e *Engine) LiquidateTokenWithToken(
	liqee, liqor *state.Account,
	assetBank, liabBank *state.Bank,
	maxLiabTransfer fp.Fixed,
) (*LiquidationResult, error) {
	if liqee.AccountID == liqor.AccountID {
		return nil, fmt.Errorf("%w: cannot self-liquidate", state.ErrInvalidState)
	}
	if assetBank.Asset == liabBank.Asset {
		return nil, fmt.Errorf("%w: asset and liability banks share asset %d", state.ErrInvalidState, assetBank.Asset)
	}
	if !maxLiabTransfer.IsPositive() {
		return nil, fmt.Errorf("%w: max liability transfer must be positive", state.ErrInvalidState)
	}

	liqeeCopy := *liqee
	liqorCopy := *liqor
	assetBankCopy := *assetBank
	liabBankCopy := *liabBank

	maintHealth, err := e.health.Health(&liqeeCopy, HealthMaint)
	if err != nil {
		return nil, err
	}
	if maintHealth.Sign() >= 0 && !liqeeCopy.BeingLiquidated {
		return nil, fmt.Errorf("%w: account is healthy, maint health %s", state.ErrInvalidState, maintHealth)
	}
	liqeeCopy.BeingLiquidated = true

	assetPrice, err := e.health.Oracle.Price(assetBank.OracleID)
	if err != nil {
		return nil, err
	}
	liabPrice, err := e.health.Oracle.Price(liabBank.OracleID)
	if err != nil {
		return nil, err
	}

	liabPos, err := liqeeCopy.TokenPosition(liabBank.Asset)
	if err != nil {
		return nil, err
	}
	owed := liabPos.Native(&liabBankCopy).Neg()
	if !owed.IsPositive() {
		return nil, fmt.Errorf("%w: no borrow in asset %d to liquidate", state.ErrInvalidState, liabBank.Asset)
	}

	assetPos, err := liqeeCopy.TokenPosition(assetBank.Asset)
	if err != nil {
		return nil, err
	}
	collateral := assetPos.Native(&assetBankCopy)
	if !collateral.IsPositive() {
		return nil, fmt.Errorf("%w: no collateral in asset %d to seize", state.ErrInvalidState, assetBank.Asset)
	}

	// Price the exchange: one unit of liability costs
	// liabPrice * (1 + fee) / assetPrice units of collateral.
	feeFactor := fp.FromInt64(1).Add(liabBankCopy.LiquidationFee)
	liabPerAsset := liabPrice.Mul(feeFactor).Div(assetPrice)

	liabTransfer := fp.Min(fp.Min(owed, maxLiabTransfer), collateral.Div(liabPerAsset))
	assetTransfer := liabTransfer.Mul(liabPerAsset)

	// Liqee: borrow repaid, collateral released.
	if _, err := liabBankCopy.Deposit(liabPos, liabTransfer); err != nil {
		return nil, err
	}
	if _, err := assetBankCopy.Withdraw(assetPos, assetTransfer, false); err != nil {
		return nil, err
	}

	// Liquidator assumes the borrow and receives the collateral.
	liqorLiab, _, err := liqorCopy.EnsureTokenPosition(liabBank.Asset)
	if err != nil {
		return nil, err
	}
	if _, err := liabBankCopy.Withdraw(liqorLiab, liabTransfer, true); err != nil {
		return nil, err
	}
	liqorAsset, _, err := liqorCopy.EnsureTokenPosition(assetBank.Asset)
	if err != nil {
		return nil, err
	}
	if _, err := assetBankCopy.Deposit(liqorAsset, assetTransfer); err != nil {
		return nil, err
	}

	liqorHealth, err := e.health.healthWithOverride(&liqorCopy, HealthInit, &assetBankCopy, &liabBankCopy)
	if err != nil {
		return nil, err
	}
	if liqorHealth.IsNegative() {
		return nil, fmt.Errorf("%w: liquidator init health %s after transfer", state.ErrInsufficientFunds, liqorHealth)
	}

	liqeeCopy.CloseTokenPositionIfZero(liabBank.Asset)
	liqeeCopy.CloseTokenPositionIfZero(assetBank.Asset)
	liqorCopy.CloseTokenPositionIfZero(liabBank.Asset)
	liqorCopy.CloseTokenPositionIfZero(assetBank.Asset)

	result := &LiquidationResult{LiabTransfer: liabTransfer, AssetTransfer: assetTransfer}

	initHealth, err := e.health.healthWithOverride(&liqeeCopy, HealthInit, &assetBankCopy, &liabBankCopy)
	if err != nil {
		return nil, err
	}
	switch {
	case initHealth.Sign() >= 0:
		liqeeCopy.BeingLiquidated = false
	case !liqeeCopy.HasSpotCollateral() && liqeeCopy.HasRemainingLiabilities():
		liqeeCopy.IsBankrupt = true
		result.Bankrupt = true
	}

	liqeeCopy.Version++
	liqorCopy.Version++
	*liqee = liqeeCopy
	*liqor = liqorCopy
	*assetBank = assetBankCopy
	*liabBank = liabBankCopy

	e.log.Info().
		Str("liqee", liqee.AccountID.String()).
		Str("liqor", liqor.AccountID.String()).
		Uint16("asset", uint16(assetBank.Asset)).
		Uint16("liab", uint16(liabBank.Asset)).
		Str("liab_transfer", liabTransfer.String()).
		Str("asset_transfer", assetTransfer.String()).
		Bool("bankrupt", result.Bankrupt).
		Msg("token liquidation step")
	if e.metrics != nil {
		e.metrics.LiquidationsTotal.Inc()
	}
	return result, nil
}
