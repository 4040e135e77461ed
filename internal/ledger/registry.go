package ledger

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"MarginCore/internal/state"
)

// Registry is the in-memory working set: accounts, bank groups, markets, the
// oracle and the insurance fund. Event application takes the registry lock for
// the duration of one transaction, which serializes conflicting settlements.
type Registry struct {
	mu sync.RWMutex

	accounts map[uuid.UUID]*state.Account
	groups   map[state.AssetIndex]*state.BankGroup
	markets  map[state.PerpMarketIndex]*state.PerpMarket

	oracle    *state.StubOracle
	insurance *state.InsuranceFund
}

// NewRegistry creates an empty registry around the given oracle and fund.
func NewRegistry(oracle *state.StubOracle, insurance *state.InsuranceFund) *Registry {
	return &Registry{
		accounts:  make(map[uuid.UUID]*state.Account),
		groups:    make(map[state.AssetIndex]*state.BankGroup),
		markets:   make(map[state.PerpMarketIndex]*state.PerpMarket),
		oracle:    oracle,
		insurance: insurance,
	}
}

// Lock takes the registry write lock for one settlement transaction.
func (r *Registry) Lock() { r.mu.Lock() }

// Unlock releases the registry write lock.
func (r *Registry) Unlock() { r.mu.Unlock() }

// AddAccount registers an account. Fails on duplicate ID.
func (r *Registry) AddAccount(acct *state.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[acct.AccountID]; ok {
		return fmt.Errorf("%w: duplicate account %s", state.ErrInvalidState, acct.AccountID)
	}
	r.accounts[acct.AccountID] = acct
	return nil
}

// Account returns the account with the given ID. Callers must hold the
// registry lock while mutating it.
func (r *Registry) Account(id uuid.UUID) (*state.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: unknown account %s", state.ErrInvalidState, id)
	}
	return acct, nil
}

// Accounts returns all registered accounts.
func (r *Registry) Accounts() []*state.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*state.Account, 0, len(r.accounts))
	for _, a := range r.accounts {
		out = append(out, a)
	}
	return out
}

// AddBankGroup registers the bank group for its asset.
func (r *Registry) AddBankGroup(g *state.BankGroup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[g.Asset]; ok {
		return fmt.Errorf("%w: duplicate bank group for asset %d", state.ErrInvalidState, g.Asset)
	}
	r.groups[g.Asset] = g
	return nil
}

// BankGroup returns the group for an asset.
func (r *Registry) BankGroup(asset state.AssetIndex) (*state.BankGroup, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[asset]
	if !ok {
		return nil, fmt.Errorf("%w: no bank group for asset %d", state.ErrInvalidState, asset)
	}
	return g, nil
}

// BankGroups returns all registered bank groups.
func (r *Registry) BankGroups() []*state.BankGroup {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*state.BankGroup, 0, len(r.groups))
	for _, g := range r.groups {
		out = append(out, g)
	}
	return out
}

// Bank returns the primary bank for an asset.
func (r *Registry) Bank(asset state.AssetIndex) (*state.Bank, error) {
	g, err := r.BankGroup(asset)
	if err != nil {
		return nil, err
	}
	return g.First(), nil
}

// PrimaryBanks returns one bank per asset, keyed by asset index, for health
// computations.
func (r *Registry) PrimaryBanks() map[state.AssetIndex]*state.Bank {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[state.AssetIndex]*state.Bank, len(r.groups))
	for asset, g := range r.groups {
		out[asset] = g.First()
	}
	return out
}

// AddMarket registers a perp market.
func (r *Registry) AddMarket(m *state.PerpMarket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[m.Market]; ok {
		return fmt.Errorf("%w: duplicate market %d", state.ErrInvalidState, m.Market)
	}
	r.markets[m.Market] = m
	return nil
}

// Market returns the perp market with the given index.
func (r *Registry) Market(idx state.PerpMarketIndex) (*state.PerpMarket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.markets[idx]
	if !ok {
		return nil, fmt.Errorf("%w: unknown market %d", state.ErrInvalidState, idx)
	}
	return m, nil
}

// Markets returns all registered markets keyed by index.
func (r *Registry) Markets() map[state.PerpMarketIndex]*state.PerpMarket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[state.PerpMarketIndex]*state.PerpMarket, len(r.markets))
	for idx, m := range r.markets {
		out[idx] = m
	}
	return out
}

// Oracle returns the registry's price source.
func (r *Registry) Oracle() *state.StubOracle { return r.oracle }

// Insurance returns the insurance fund.
func (r *Registry) Insurance() *state.InsuranceFund { return r.insurance }
