// Package encoding provides the fixed-width binary layout for persisted state
// records. Every record starts with an 8-byte discriminator; all integers are
// little-endian; fixed-point values are 16-byte two's-complement raw values.
// Layouts are append-only: reserved bytes round-trip so older writers and
// newer readers stay compatible.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"MarginCore/internal/fp"
	"MarginCore/internal/state"
)

// Record discriminators.
var (
	AccountDiscriminator = [8]byte{'m', 'c', 'a', 'c', 'c', 't', 0, 1}
	BankDiscriminator    = [8]byte{'m', 'c', 'b', 'a', 'n', 'k', 0, 1}
	MarketDiscriminator  = [8]byte{'m', 'c', 'm', 'k', 't', 0, 0, 1}
)

const (
	fixedSize = 16
	nameSize  = 16
	oracleLen = 32

	tokenPositionSize = fixedSize + 2 + 1 + 5 + 40
	perpPositionSize  = 2 + 6 + 8 + fixedSize + 8 + 8 + 8 + fixedSize + fixedSize + 8 + 8 + 8 + 8 + 64

	// AccountRecordSize is the byte length of an encoded account.
	AccountRecordSize = 8 + 16 + 16 + 4 + 1 + 3 + 8 +
		state.MaxTokenPositions*tokenPositionSize +
		state.MaxPerpPositions*perpPositionSize + 64

	// BankRecordSize is the byte length of an encoded bank.
	BankRecordSize = 8 + 2 + 1 + 1 + 4 + nameSize + 9*fixedSize + oracleLen + 64

	// MarketRecordSize is the byte length of an encoded perp market.
	MarketRecordSize = 8 + 2 + 2 + 2 + 2 + nameSize + 8 + 8 + 8 +
		9*fixedSize + oracleLen + 8 + fixedSize + 64
)

type writer struct {
	buf []byte
}

func (w *writer) bytes(p []byte)  { w.buf = append(w.buf, p...) }
func (w *writer) u8(v uint8)      { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16)    { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32)    { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) i64(v int64)     { w.buf = binary.LittleEndian.AppendUint64(w.buf, uint64(v)) }
func (w *writer) u64(v uint64)    { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) pad(n int)       { w.buf = append(w.buf, make([]byte, n)...) }

func (w *writer) name(s string) {
	var b [nameSize]byte
	copy(b[:], s)
	w.bytes(b[:])
}

func (w *writer) oracle(s string) {
	var b [oracleLen]byte
	copy(b[:], s)
	w.bytes(b[:])
}

// fixed writes the 2^48-scaled raw value as 16-byte little-endian
// two's complement.
func (w *writer) fixed(f fp.Fixed) error {
	if err := f.CheckRange(); err != nil {
		return fmt.Errorf("%w: %v", state.ErrInvalidState, err)
	}
	raw := f.Raw()
	neg := raw.Sign() < 0
	if neg {
		// two's complement: raw + 2^128
		raw.Add(raw, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	var b [fixedSize]byte
	raw.FillBytes(b[:]) // big-endian
	for i, j := 0, fixedSize-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	w.bytes(b[:])
	return nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remain() int { return len(r.buf) - r.off }

func (r *reader) take(n int) ([]byte, error) {
	if r.remain() < n {
		return nil, fmt.Errorf("%w: record truncated at offset %d", state.ErrInvalidState, r.off)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) i64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) name() (string, error) {
	b, err := r.take(nameSize)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

func (r *reader) oracle() (string, error) {
	b, err := r.take(oracleLen)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(b, "\x00")), nil
}

func (r *reader) fixed() (fp.Fixed, error) {
	b, err := r.take(fixedSize)
	if err != nil {
		return fp.Zero, err
	}
	var be [fixedSize]byte
	for i := range be {
		be[i] = b[fixedSize-1-i]
	}
	raw := new(big.Int).SetBytes(be[:])
	if be[0]&0x80 != 0 {
		raw.Sub(raw, new(big.Int).Lsh(big.NewInt(1), 128))
	}
	return fp.FromRaw(raw), nil
}

func checkDiscriminator(r *reader, want [8]byte) error {
	b, err := r.take(8)
	if err != nil {
		return err
	}
	if !bytes.Equal(b, want[:]) {
		return fmt.Errorf("%w: record discriminator mismatch: got %x want %x",
			state.ErrInvalidState, b, want)
	}
	return nil
}

// EncodeAccount serializes an account into its fixed-width record.
func EncodeAccount(a *state.Account) ([]byte, error) {
	w := &writer{buf: make([]byte, 0, AccountRecordSize)}
	w.bytes(AccountDiscriminator[:])
	w.bytes(a.AccountID[:])
	w.bytes(a.Owner[:])
	w.u32(a.AccountNum)

	var flags uint8
	if a.BeingLiquidated {
		flags |= 1
	}
	if a.IsBankrupt {
		flags |= 2
	}
	w.u8(flags)
	w.pad(3)
	w.i64(a.Version)

	for i := range a.Tokens {
		tp := &a.Tokens[i]
		if err := w.fixed(tp.Indexed); err != nil {
			return nil, fmt.Errorf("token %d: %w", i, err)
		}
		w.u16(uint16(tp.Asset))
		w.u8(tp.InUseCount)
		w.pad(5)
		w.bytes(tp.Reserved[:])
	}

	for i := range a.Perps {
		pp := &a.Perps[i]
		w.u16(uint16(pp.Market))
		w.pad(6)
		w.i64(pp.BasePositionLots)
		if err := w.fixed(pp.QuotePositionNative); err != nil {
			return nil, fmt.Errorf("perp %d quote: %w", i, err)
		}
		w.i64(pp.BaseEntryLots)
		w.i64(pp.QuoteEntryNative)
		w.i64(pp.QuoteExitNative)
		if err := w.fixed(pp.LongSettledFunding); err != nil {
			return nil, fmt.Errorf("perp %d long funding: %w", i, err)
		}
		if err := w.fixed(pp.ShortSettledFunding); err != nil {
			return nil, fmt.Errorf("perp %d short funding: %w", i, err)
		}
		w.i64(pp.BidsBaseLots)
		w.i64(pp.AsksBaseLots)
		w.i64(pp.TakerBaseLots)
		w.i64(pp.TakerQuoteLots)
		w.bytes(pp.Reserved[:])
	}

	w.bytes(a.Reserved[:])

	if len(w.buf) != AccountRecordSize {
		return nil, fmt.Errorf("%w: account record size %d, want %d",
			state.ErrInvalidState, len(w.buf), AccountRecordSize)
	}
	return w.buf, nil
}

// DecodeAccount deserializes an account record.
func DecodeAccount(data []byte) (*state.Account, error) {
	r := &reader{buf: data}
	if err := checkDiscriminator(r, AccountDiscriminator); err != nil {
		return nil, err
	}

	a := &state.Account{}
	b, err := r.take(16)
	if err != nil {
		return nil, err
	}
	copy(a.AccountID[:], b)
	if b, err = r.take(16); err != nil {
		return nil, err
	}
	copy(a.Owner[:], b)
	if a.AccountNum, err = r.u32(); err != nil {
		return nil, err
	}

	flags, err := r.u8()
	if err != nil {
		return nil, err
	}
	a.BeingLiquidated = flags&1 != 0
	a.IsBankrupt = flags&2 != 0
	if _, err = r.take(3); err != nil {
		return nil, err
	}
	if a.Version, err = r.i64(); err != nil {
		return nil, err
	}

	for i := range a.Tokens {
		tp := &a.Tokens[i]
		if tp.Indexed, err = r.fixed(); err != nil {
			return nil, err
		}
		asset, err := r.u16()
		if err != nil {
			return nil, err
		}
		tp.Asset = state.AssetIndex(asset)
		if tp.InUseCount, err = r.u8(); err != nil {
			return nil, err
		}
		if _, err = r.take(5); err != nil {
			return nil, err
		}
		res, err := r.take(len(tp.Reserved))
		if err != nil {
			return nil, err
		}
		copy(tp.Reserved[:], res)
	}

	for i := range a.Perps {
		pp := &a.Perps[i]
		market, err := r.u16()
		if err != nil {
			return nil, err
		}
		pp.Market = state.PerpMarketIndex(market)
		if _, err = r.take(6); err != nil {
			return nil, err
		}
		if pp.BasePositionLots, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.QuotePositionNative, err = r.fixed(); err != nil {
			return nil, err
		}
		if pp.BaseEntryLots, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.QuoteEntryNative, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.QuoteExitNative, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.LongSettledFunding, err = r.fixed(); err != nil {
			return nil, err
		}
		if pp.ShortSettledFunding, err = r.fixed(); err != nil {
			return nil, err
		}
		if pp.BidsBaseLots, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.AsksBaseLots, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.TakerBaseLots, err = r.i64(); err != nil {
			return nil, err
		}
		if pp.TakerQuoteLots, err = r.i64(); err != nil {
			return nil, err
		}
		res, err := r.take(len(pp.Reserved))
		if err != nil {
			return nil, err
		}
		copy(pp.Reserved[:], res)
	}

	res, err := r.take(len(a.Reserved))
	if err != nil {
		return nil, err
	}
	copy(a.Reserved[:], res)

	if r.remain() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after account record",
			state.ErrInvalidState, r.remain())
	}
	return a, nil
}

// EncodeBank serializes a bank into its fixed-width record.
func EncodeBank(b *state.Bank) ([]byte, error) {
	w := &writer{buf: make([]byte, 0, BankRecordSize)}
	w.bytes(BankDiscriminator[:])
	w.u16(uint16(b.Asset))
	w.u8(b.BankNum)
	w.u8(b.MintDecimals)
	w.pad(4)
	w.name(b.Name)

	for _, f := range []fp.Fixed{
		b.DepositIndex, b.BorrowIndex,
		b.IndexedTotalDeposits, b.IndexedTotalBorrows,
		b.MaintAssetWeight, b.InitAssetWeight,
		b.MaintLiabWeight, b.InitLiabWeight,
		b.LiquidationFee,
	} {
		if err := w.fixed(f); err != nil {
			return nil, err
		}
	}

	w.oracle(b.OracleID)
	w.bytes(b.Reserved[:])

	if len(w.buf) != BankRecordSize {
		return nil, fmt.Errorf("%w: bank record size %d, want %d",
			state.ErrInvalidState, len(w.buf), BankRecordSize)
	}
	return w.buf, nil
}

// DecodeBank deserializes a bank record.
func DecodeBank(data []byte) (*state.Bank, error) {
	r := &reader{buf: data}
	if err := checkDiscriminator(r, BankDiscriminator); err != nil {
		return nil, err
	}

	b := &state.Bank{}
	asset, err := r.u16()
	if err != nil {
		return nil, err
	}
	b.Asset = state.AssetIndex(asset)
	if b.BankNum, err = r.u8(); err != nil {
		return nil, err
	}
	if b.MintDecimals, err = r.u8(); err != nil {
		return nil, err
	}
	if _, err = r.take(4); err != nil {
		return nil, err
	}
	if b.Name, err = r.name(); err != nil {
		return nil, err
	}

	for _, dst := range []*fp.Fixed{
		&b.DepositIndex, &b.BorrowIndex,
		&b.IndexedTotalDeposits, &b.IndexedTotalBorrows,
		&b.MaintAssetWeight, &b.InitAssetWeight,
		&b.MaintLiabWeight, &b.InitLiabWeight,
		&b.LiquidationFee,
	} {
		if *dst, err = r.fixed(); err != nil {
			return nil, err
		}
	}

	if b.OracleID, err = r.oracle(); err != nil {
		return nil, err
	}
	res, err := r.take(len(b.Reserved))
	if err != nil {
		return nil, err
	}
	copy(b.Reserved[:], res)

	if r.remain() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after bank record",
			state.ErrInvalidState, r.remain())
	}
	return b, nil
}

// EncodePerpMarket serializes a perp market into its fixed-width record.
func EncodePerpMarket(m *state.PerpMarket) ([]byte, error) {
	w := &writer{buf: make([]byte, 0, MarketRecordSize)}
	w.bytes(MarketDiscriminator[:])
	w.u16(uint16(m.Market))
	w.u16(uint16(m.BaseAsset))
	w.u16(uint16(m.QuoteAsset))
	w.pad(2)
	w.name(m.Name)
	w.i64(m.BaseLotSize)
	w.i64(m.QuoteLotSize)
	w.i64(m.OpenInterest)

	for _, f := range []fp.Fixed{
		m.LongFunding, m.ShortFunding,
		m.MakerFee, m.TakerFee, m.LiquidationFee,
		m.MaintAssetWeight, m.InitAssetWeight,
		m.MaintLiabWeight, m.InitLiabWeight,
	} {
		if err := w.fixed(f); err != nil {
			return nil, err
		}
	}

	w.oracle(m.OracleID)
	w.u64(m.SeqNum)
	if err := w.fixed(m.FeesAccrued); err != nil {
		return nil, err
	}
	w.bytes(m.Reserved[:])

	if len(w.buf) != MarketRecordSize {
		return nil, fmt.Errorf("%w: market record size %d, want %d",
			state.ErrInvalidState, len(w.buf), MarketRecordSize)
	}
	return w.buf, nil
}

// DecodePerpMarket deserializes a perp market record.
func DecodePerpMarket(data []byte) (*state.PerpMarket, error) {
	r := &reader{buf: data}
	if err := checkDiscriminator(r, MarketDiscriminator); err != nil {
		return nil, err
	}

	m := &state.PerpMarket{}
	market, err := r.u16()
	if err != nil {
		return nil, err
	}
	m.Market = state.PerpMarketIndex(market)
	base, err := r.u16()
	if err != nil {
		return nil, err
	}
	m.BaseAsset = state.AssetIndex(base)
	quote, err := r.u16()
	if err != nil {
		return nil, err
	}
	m.QuoteAsset = state.AssetIndex(quote)
	if _, err = r.take(2); err != nil {
		return nil, err
	}
	if m.Name, err = r.name(); err != nil {
		return nil, err
	}
	if m.BaseLotSize, err = r.i64(); err != nil {
		return nil, err
	}
	if m.QuoteLotSize, err = r.i64(); err != nil {
		return nil, err
	}
	if m.OpenInterest, err = r.i64(); err != nil {
		return nil, err
	}

	for _, dst := range []*fp.Fixed{
		&m.LongFunding, &m.ShortFunding,
		&m.MakerFee, &m.TakerFee, &m.LiquidationFee,
		&m.MaintAssetWeight, &m.InitAssetWeight,
		&m.MaintLiabWeight, &m.InitLiabWeight,
	} {
		if *dst, err = r.fixed(); err != nil {
			return nil, err
		}
	}

	if m.OracleID, err = r.oracle(); err != nil {
		return nil, err
	}
	if m.SeqNum, err = r.u64(); err != nil {
		return nil, err
	}
	if m.FeesAccrued, err = r.fixed(); err != nil {
		return nil, err
	}
	res, err := r.take(len(m.Reserved))
	if err != nil {
		return nil, err
	}
	copy(m.Reserved[:], res)

	if r.remain() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after market record",
			state.ErrInvalidState, r.remain())
	}
	return m, nil
}
