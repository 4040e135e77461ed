package ingestion

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"MarginCore/internal/event"
)

// ParseRawEvent converts a RawEvent (JSON bytes plus event type string) into a
// typed event.Event. The shell validates and converts before anything touches
// the settlement engine.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "Deposit":
		return parseDeposit(raw.Data)
	case "Withdrawal":
		return parseWithdrawal(raw.Data)
	case "TradeMatched":
		return parseTradeMatched(raw.Data)
	case "FillExecuted":
		return parseFillExecuted(raw.Data)
	case "FundingUpdate":
		return parseFundingUpdate(raw.Data)
	case "PriceUpdate":
		return parsePriceUpdate(raw.Data)
	case "RiskParamUpdate":
		return parseRiskParamUpdate(raw.Data)
	case "LiquidationRequested":
		return parseLiquidationRequested(raw.Data)
	case "BankruptcyRequested":
		return parseBankruptcyRequested(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// --- JSON wire formats ---
// Field names use snake_case to match upstream producers. Monetary amounts
// arrive scaled by 1e6.

type transferJSON struct {
	TransferID   string `json:"transfer_id"`
	AccountID    string `json:"account_id"`
	Asset        uint16 `json:"asset"`
	AmountMicros int64  `json:"amount_micros"`
	AllowBorrow  bool   `json:"allow_borrow,omitempty"`
	Sequence     int64  `json:"sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseDeposit(data []byte) (*event.Deposit, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Deposit: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.Deposit{
		TransferID:   transferID,
		AccountID:    accountID,
		Asset:        j.Asset,
		AmountMicros: j.AmountMicros,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseWithdrawal(data []byte) (*event.Withdrawal, error) {
	var j transferJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse Withdrawal: %w", err)
	}
	transferID, err := uuid.Parse(j.TransferID)
	if err != nil {
		return nil, fmt.Errorf("parse transfer_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	return &event.Withdrawal{
		TransferID:   transferID,
		AccountID:    accountID,
		Asset:        j.Asset,
		AmountMicros: j.AmountMicros,
		AllowBorrow:  j.AllowBorrow,
		Sequence:     j.Sequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type fillJSON struct {
	FillID       string `json:"fill_id"`
	AccountID    string `json:"account_id"`
	Market       uint16 `json:"market"`
	Side         string `json:"side"` // "bid" or "ask"
	BaseLots     int64  `json:"base_lots"`
	QuoteLots    int64  `json:"quote_lots"`
	FillSequence int64  `json:"fill_sequence"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseTradeMatched(data []byte) (*event.TradeMatched, error) {
	var j fillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse TradeMatched: %w", err)
	}
	fillID, err := uuid.Parse(j.FillID)
	if err != nil {
		return nil, fmt.Errorf("parse fill_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	if j.Side != "bid" && j.Side != "ask" {
		return nil, fmt.Errorf("parse side: %q", j.Side)
	}
	return &event.TradeMatched{
		FillID:       fillID,
		AccountID:    accountID,
		Market:       j.Market,
		Side:         j.Side,
		BaseLots:     j.BaseLots,
		QuoteLots:    j.QuoteLots,
		FillSequence: j.FillSequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseFillExecuted(data []byte) (*event.FillExecuted, error) {
	var j fillJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FillExecuted: %w", err)
	}
	fillID, err := uuid.Parse(j.FillID)
	if err != nil {
		return nil, fmt.Errorf("parse fill_id: %w", err)
	}
	accountID, err := uuid.Parse(j.AccountID)
	if err != nil {
		return nil, fmt.Errorf("parse account_id: %w", err)
	}
	if j.Side != "bid" && j.Side != "ask" {
		return nil, fmt.Errorf("parse side: %q", j.Side)
	}
	return &event.FillExecuted{
		FillID:       fillID,
		AccountID:    accountID,
		Market:       j.Market,
		Side:         j.Side,
		BaseLots:     j.BaseLots,
		QuoteLots:    j.QuoteLots,
		FillSequence: j.FillSequence,
		Timestamp:    time.UnixMicro(j.TimestampUs),
	}, nil
}

type fundingJSON struct {
	Market           uint16 `json:"market"`
	EpochID          int64  `json:"epoch_id"`
	LongDeltaMicros  int64  `json:"long_delta_micros"`
	ShortDeltaMicros int64  `json:"short_delta_micros"`
	Sequence         int64  `json:"sequence"`
	TimestampUs      int64  `json:"timestamp_us"`
}

func parseFundingUpdate(data []byte) (*event.FundingUpdate, error) {
	var j fundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse FundingUpdate: %w", err)
	}
	return &event.FundingUpdate{
		Market:           j.Market,
		EpochID:          j.EpochID,
		LongDeltaMicros:  j.LongDeltaMicros,
		ShortDeltaMicros: j.ShortDeltaMicros,
		Sequence:         j.Sequence,
		Timestamp:        time.UnixMicro(j.TimestampUs),
	}, nil
}

type priceJSON struct {
	OracleID    string `json:"oracle_id"`
	PriceMicros int64  `json:"price_micros"`
	Sequence    int64  `json:"sequence"`
	TimestampUs int64  `json:"timestamp_us"`
}

func parsePriceUpdate(data []byte) (*event.PriceUpdate, error) {
	var j priceJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse PriceUpdate: %w", err)
	}
	if j.OracleID == "" {
		return nil, fmt.Errorf("parse oracle_id: empty")
	}
	return &event.PriceUpdate{
		OracleID:    j.OracleID,
		PriceMicros: j.PriceMicros,
		Sequence:    j.Sequence,
		Timestamp:   time.UnixMicro(j.TimestampUs),
	}, nil
}

type riskParamJSON struct {
	Asset                  uint16 `json:"asset"`
	MaintAssetWeightMicros int64  `json:"maint_asset_weight_micros"`
	InitAssetWeightMicros  int64  `json:"init_asset_weight_micros"`
	MaintLiabWeightMicros  int64  `json:"maint_liab_weight_micros"`
	InitLiabWeightMicros   int64  `json:"init_liab_weight_micros"`
	LiquidationFeeMicros   int64  `json:"liquidation_fee_micros"`
	EffectiveSeq           int64  `json:"effective_seq"`
	Sequence               int64  `json:"sequence"`
	TimestampUs            int64  `json:"timestamp_us"`
}

func parseRiskParamUpdate(data []byte) (*event.RiskParamUpdate, error) {
	var j riskParamJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse RiskParamUpdate: %w", err)
	}
	return &event.RiskParamUpdate{
		Asset:                  j.Asset,
		MaintAssetWeightMicros: j.MaintAssetWeightMicros,
		InitAssetWeightMicros:  j.InitAssetWeightMicros,
		MaintLiabWeightMicros:  j.MaintLiabWeightMicros,
		InitLiabWeightMicros:   j.InitLiabWeightMicros,
		LiquidationFeeMicros:   j.LiquidationFeeMicros,
		EffectiveSeq:           j.EffectiveSeq,
		Sequence:               j.Sequence,
		Timestamp:              time.UnixMicro(j.TimestampUs),
	}, nil
}

type liquidationJSON struct {
	RequestID             string `json:"request_id"`
	LiqeeID               string `json:"liqee_id"`
	LiqorID               string `json:"liqor_id"`
	AssetAsset            uint16 `json:"asset_asset"`
	LiabAsset             uint16 `json:"liab_asset"`
	MaxLiabTransferMicros int64  `json:"max_liab_transfer_micros"`
	Sequence              int64  `json:"sequence"`
	TimestampUs           int64  `json:"timestamp_us"`
}

func parseLiquidationRequested(data []byte) (*event.LiquidationRequested, error) {
	var j liquidationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LiquidationRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	liqeeID, err := uuid.Parse(j.LiqeeID)
	if err != nil {
		return nil, fmt.Errorf("parse liqee_id: %w", err)
	}
	liqorID, err := uuid.Parse(j.LiqorID)
	if err != nil {
		return nil, fmt.Errorf("parse liqor_id: %w", err)
	}
	return &event.LiquidationRequested{
		RequestID:             requestID,
		LiqeeID:               liqeeID,
		LiqorID:               liqorID,
		AssetAsset:            j.AssetAsset,
		LiabAsset:             j.LiabAsset,
		MaxLiabTransferMicros: j.MaxLiabTransferMicros,
		Sequence:              j.Sequence,
		Timestamp:             time.UnixMicro(j.TimestampUs),
	}, nil
}

func parseBankruptcyRequested(data []byte) (*event.BankruptcyRequested, error) {
	var j liquidationJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BankruptcyRequested: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	liqeeID, err := uuid.Parse(j.LiqeeID)
	if err != nil {
		return nil, fmt.Errorf("parse liqee_id: %w", err)
	}
	liqorID, err := uuid.Parse(j.LiqorID)
	if err != nil {
		return nil, fmt.Errorf("parse liqor_id: %w", err)
	}
	return &event.BankruptcyRequested{
		RequestID:             requestID,
		LiqeeID:               liqeeID,
		LiqorID:               liqorID,
		LiabAsset:             j.LiabAsset,
		MaxLiabTransferMicros: j.MaxLiabTransferMicros,
		Sequence:              j.Sequence,
		Timestamp:             time.UnixMicro(j.TimestampUs),
	}, nil
}
