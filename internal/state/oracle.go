package state

import (
	"fmt"
	"time"

	"MarginCore/internal/fp"
)

// PriceSource looks up the native price for an asset's oracle. An
// implementation wraps whatever feed the venue runs; the engines only see
// fixed-point prices or ErrOracleUnavailable.
type PriceSource interface {
	// Price returns the asset's price in native reserve units per native
	// asset unit. A stale or unconfident feed returns ErrOracleUnavailable.
	Price(oracleID string) (fp.Fixed, error)
}

// StubOracle is an in-memory PriceSource with per-feed confidence and
// staleness filtering. Used by tests and local runs; production wires a
// remote feed behind the same interface.
type StubOracle struct {
	feeds map[string]stubFeed

	// MaxStaleness bounds feed age; zero disables the check.
	MaxStaleness time.Duration

	// ConfFilter rejects feeds whose confidence interval exceeds this
	// fraction of the price; zero disables the check.
	ConfFilter fp.Fixed

	now func() time.Time
}

type stubFeed struct {
	price     fp.Fixed
	conf      fp.Fixed
	updatedAt time.Time
}

// NewStubOracle returns an empty oracle with no filters.
func NewStubOracle() *StubOracle {
	return &StubOracle{
		feeds: make(map[string]stubFeed),
		now:   time.Now,
	}
}

// SetPrice updates a feed with the given price and confidence interval.
func (o *StubOracle) SetPrice(oracleID string, price, conf fp.Fixed) {
	o.feeds[oracleID] = stubFeed{price: price, conf: conf, updatedAt: o.now()}
}

// Price implements PriceSource.
func (o *StubOracle) Price(oracleID string) (fp.Fixed, error) {
	feed, ok := o.feeds[oracleID]
	if !ok {
		return fp.Zero, fmt.Errorf("%w: no feed %q", ErrOracleUnavailable, oracleID)
	}
	if o.MaxStaleness > 0 && o.now().Sub(feed.updatedAt) > o.MaxStaleness {
		return fp.Zero, fmt.Errorf("%w: feed %q stale", ErrOracleUnavailable, oracleID)
	}
	if o.ConfFilter.IsPositive() && feed.price.IsPositive() {
		if feed.conf.Div(feed.price).Cmp(o.ConfFilter) > 0 {
			return fp.Zero, fmt.Errorf("%w: feed %q confidence too wide", ErrOracleUnavailable, oracleID)
		}
	}
	if !feed.price.IsPositive() {
		return fp.Zero, fmt.Errorf("%w: feed %q has non-positive price", ErrOracleUnavailable, oracleID)
	}
	return feed.price, nil
}
