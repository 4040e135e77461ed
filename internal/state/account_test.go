package state_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

var testOwner = uuid.MustParse("11111111-1111-1111-1111-111111111111")

// ============================================================
// Token position slots
// ============================================================

func TestEnsureTokenPosition(t *testing.T) {
	a := state.NewAccount(testOwner, 0)

	tp, created, err := a.EnsureTokenPosition(3)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !created {
		t.Error("first ensure should activate a slot")
	}
	if tp.Asset != 3 {
		t.Errorf("asset = %d, want 3", tp.Asset)
	}

	again, created, err := a.EnsureTokenPosition(3)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if created {
		t.Error("second ensure should reuse the slot")
	}
	if again != tp {
		t.Error("second ensure returned a different slot")
	}
}

func TestEnsureTokenPosition_TableFull(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	for i := 0; i < state.MaxTokenPositions; i++ {
		if _, _, err := a.EnsureTokenPosition(state.AssetIndex(i)); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if _, _, err := a.EnsureTokenPosition(100); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestEnsureTokenPosition_ReservedIndex(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	if _, _, err := a.EnsureTokenPosition(state.AssetIndexInactive); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestDeactivateTokenPosition(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	tp, _, err := a.EnsureTokenPosition(3)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if err := a.DeactivateTokenPosition(3); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if len(a.ActiveTokenPositions()) != 0 {
		t.Error("slot should be recycled")
	}
	_ = tp
}

func TestDeactivateTokenPosition_InUse(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	tp, _, err := a.EnsureTokenPosition(3)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	tp.InUseCount = 1

	if err := a.DeactivateTokenPosition(3); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestDeactivateTokenPosition_NonZeroBalance(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	tp, _, err := a.EnsureTokenPosition(3)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	tp.Indexed = fp.FromInt64(5)

	if err := a.DeactivateTokenPosition(3); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestCloseTokenPositionIfZero(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	tp, _, err := a.EnsureTokenPosition(3)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}

	tp.Indexed = fp.FromInt64(5)
	a.CloseTokenPositionIfZero(3)
	if len(a.ActiveTokenPositions()) != 1 {
		t.Error("non-zero position must not close")
	}

	tp.Indexed = fp.Zero
	a.CloseTokenPositionIfZero(3)
	if len(a.ActiveTokenPositions()) != 0 {
		t.Error("zero position should close")
	}
}

// ============================================================
// Perp position slots
// ============================================================

func TestEnsurePerpPosition_TableFull(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	for i := 0; i < state.MaxPerpPositions; i++ {
		if _, _, err := a.EnsurePerpPosition(state.PerpMarketIndex(i)); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if _, _, err := a.EnsurePerpPosition(100); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestDeactivatePerpPosition_WithExposure(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	pp, _, err := a.EnsurePerpPosition(0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	pp.BasePositionLots = 10

	if err := a.DeactivatePerpPosition(0); !errors.Is(err, state.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}

	pp.BasePositionLots = 0
	if err := a.DeactivatePerpPosition(0); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if len(a.ActivePerpPositions()) != 0 {
		t.Error("slot should be recycled")
	}
}

// ============================================================
// Liability and collateral probes
// ============================================================

func TestHasRemainingLiabilities(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	if a.HasRemainingLiabilities() {
		t.Error("fresh account has no liabilities")
	}

	tp, _, err := a.EnsureTokenPosition(1)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	tp.Indexed = fp.FromInt64(-10)
	if !a.HasRemainingLiabilities() {
		t.Error("token borrow is a liability")
	}

	tp.Indexed = fp.FromInt64(10)
	if a.HasRemainingLiabilities() {
		t.Error("deposit is not a liability")
	}

	pp, _, err := a.EnsurePerpPosition(0)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	pp.QuotePositionNative = fp.FromInt64(-5)
	if !a.HasRemainingLiabilities() {
		t.Error("negative perp quote is a liability")
	}

	pp.QuotePositionNative = fp.Zero
	pp.BasePositionLots = 3
	if !a.HasRemainingLiabilities() {
		t.Error("open base position is a liability")
	}
}

func TestHasSpotCollateral(t *testing.T) {
	a := state.NewAccount(testOwner, 0)
	if a.HasSpotCollateral() {
		t.Error("fresh account has no collateral")
	}

	tp, _, err := a.EnsureTokenPosition(1)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	tp.Indexed = fp.FromInt64(-10)
	if a.HasSpotCollateral() {
		t.Error("a borrow is not collateral")
	}
	tp.Indexed = fp.FromInt64(10)
	if !a.HasSpotCollateral() {
		t.Error("a deposit is collateral")
	}
}
