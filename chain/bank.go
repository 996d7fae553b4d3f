package chain

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"crowdfund-ledger/core/model"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnpayable           = errors.New("recipient cannot accept payment")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Hook runs when a batch pays addr. Returning an error rejects the batch.
type Hook func(ctx context.Context, t model.Transfer) error

// Bank is an in-memory native-value account book. Settle applies a batch
// of transfers all at once or not at all.
type Bank struct {
	mu        sync.Mutex
	balances  map[common.Address]uint256.Int
	unpayable map[common.Address]bool
	hooks     map[common.Address]Hook
}

func NewBank() *Bank {
	return &Bank{
		balances:  make(map[common.Address]uint256.Int),
		unpayable: make(map[common.Address]bool),
		hooks:     make(map[common.Address]Hook),
	}
}

// Deposit mints amount into addr.
func (b *Bank) Deposit(addr common.Address, amount *uint256.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	bal := b.balances[addr]
	if _, overflow := bal.AddOverflow(&bal, amount); overflow {
		return ErrBalanceOverflow
	}
	b.balances[addr] = bal
	return nil
}

func (b *Bank) BalanceOf(addr common.Address) uint256.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[addr]
}

// SetUnpayable makes every later payment to addr fail.
func (b *Bank) SetUnpayable(addr common.Address, unpayable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if unpayable {
		b.unpayable[addr] = true
	} else {
		delete(b.unpayable, addr)
	}
}

// OnReceive installs a hook for payments to addr; nil removes it.
func (b *Bank) OnReceive(addr common.Address, hook Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hook == nil {
		delete(b.hooks, addr)
		return
	}
	b.hooks[addr] = hook
}

// Settle applies transfers in order. Recipient hooks run first, without
// the bank locked; any hook error, unpayable recipient or short balance
// leaves every balance untouched.
func (b *Bank) Settle(ctx context.Context, transfers []model.Transfer) error {
	for _, t := range transfers {
		b.mu.Lock()
		hook := b.hooks[t.To]
		b.mu.Unlock()
		if hook == nil {
			continue
		}
		if err := hook(ctx, t); err != nil {
			return fmt.Errorf("pay %s: %w", t.To.Hex(), err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[common.Address]uint256.Int)
	balance := func(addr common.Address) uint256.Int {
		if v, ok := next[addr]; ok {
			return v
		}
		return b.balances[addr]
	}
	for _, t := range transfers {
		if b.unpayable[t.To] {
			return fmt.Errorf("pay %s: %w", t.To.Hex(), ErrUnpayable)
		}
		from := balance(t.From)
		if from.Lt(&t.Amount) {
			return fmt.Errorf("debit %s: %w", t.From.Hex(), ErrInsufficientBalance)
		}
		from.Sub(&from, &t.Amount)
		next[t.From] = from

		to := balance(t.To)
		if _, overflow := to.AddOverflow(&to, &t.Amount); overflow {
			return fmt.Errorf("credit %s: %w", t.To.Hex(), ErrBalanceOverflow)
		}
		next[t.To] = to
	}
	for addr, v := range next {
		b.balances[addr] = v
	}
	logrus.Debugf("settled %d transfers", len(transfers))
	return nil
}
