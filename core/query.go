package core

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

// Position is an investor record together with its repayment cycle state.
type Position struct {
	model.Investor
	Pending          uint64
	ClaimedThisCycle bool
}

func (l *Ledger) Config() model.Config {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.cfg
}

// Height returns the number of committed operations.
func (l *Ledger) Height() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height
}

func (l *Ledger) Project(id uint64) (model.Project, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.st.projects[id]
	if !ok {
		return model.Project{}, ErrProjectNotFound
	}
	return *p, nil
}

func (l *Ledger) ProjectCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.lastID
}

func (l *Ledger) Investor(projectID uint64, addr common.Address) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.st.projects[projectID]
	if !ok {
		return Position{}, ErrProjectNotFound
	}
	r, ok := l.st.rosters[projectID]
	if !ok {
		return Position{}, ErrNotInvestor
	}
	inv, ok := r.get(addr)
	if !ok {
		return Position{}, ErrNotInvestor
	}
	pending := p.InstallmentsProcessed - inv.SettledThrough
	return Position{Investor: *inv, Pending: pending, ClaimedThisCycle: pending == 0}, nil
}

// Investors returns the project's roster in slot order.
func (l *Ledger) Investors(projectID uint64) ([]model.Investor, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.st.projects[projectID]; !ok {
		return nil, ErrProjectNotFound
	}
	r, ok := l.st.rosters[projectID]
	if !ok {
		return []model.Investor{}, nil
	}
	out := make([]model.Investor, 0, r.len())
	for _, inv := range r.slots {
		out = append(out, *inv)
	}
	return out, nil
}

func (l *Ledger) InvestorCount(projectID uint64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.st.projects[projectID]; !ok {
		return 0, ErrProjectNotFound
	}
	if r, ok := l.st.rosters[projectID]; ok {
		return r.len(), nil
	}
	return 0, nil
}

func (l *Ledger) Listing(ref common.Hash) (model.Listing, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	listing, ok := l.st.listings[ref]
	if !ok || !listing.Exists() {
		return model.Listing{}, ErrListingNotFound
	}
	return *listing, nil
}

func (l *Ledger) RefundBalance(addr common.Address) uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.refunds[addr]
}

func (l *Ledger) PlatformEarnings() uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.platform
}

func (l *Ledger) SellerEarnings(ref common.Hash) uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.sellerEarnings[ref]
}

// Custody returns the value the ledger currently holds on behalf of
// investors, sellers and the platform.
func (l *Ledger) Custody() uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.st.custody
}
