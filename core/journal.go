package core

import (
	"github.com/ethereum/go-ethereum/common"

	"crowdfund-ledger/core/model"
)

// journal records how to undo every state change made by one operation.
// Entries are reverted in reverse order.
type journal struct {
	entries []func()
}

func (j *journal) append(undo func()) {
	j.entries = append(j.entries, undo)
}

func (j *journal) revert() {
	for i := len(j.entries) - 1; i >= 0; i-- {
		j.entries[i]()
	}
	j.entries = nil
}

func (j *journal) length() int { return len(j.entries) }

// snapshot records the current value behind ptr so it can be restored.
func snapshot[T any](j *journal, ptr *T) {
	prev := *ptr
	j.append(func() { *ptr = prev })
}

// put sets m[k] = v and records the previous entry, or its absence.
func put[K comparable, V any](j *journal, m map[K]V, k K, v V) {
	prev, had := m[k]
	j.append(func() {
		if had {
			m[k] = prev
		} else {
			delete(m, k)
		}
	})
	m[k] = v
}

// roster is the investor arena of one project. Records keep a stable slot
// until removed; removal swaps the last record into the freed slot.
type roster struct {
	slots []*model.Investor
	index map[common.Address]int
}

func newRoster() *roster {
	return &roster{index: make(map[common.Address]int)}
}

func (r *roster) get(addr common.Address) (*model.Investor, bool) {
	i, ok := r.index[addr]
	if !ok {
		return nil, false
	}
	return r.slots[i], true
}

func (r *roster) len() int { return len(r.slots) }

// funders counts records holding a primary investment. Holders who only
// bought shares on the market are left out.
func (r *roster) funders() uint64 {
	var n uint64
	for _, inv := range r.slots {
		if !inv.AmountInvested.IsZero() {
			n++
		}
	}
	return n
}

func (r *roster) add(j *journal, inv *model.Investor) {
	r.index[inv.Address] = len(r.slots)
	r.slots = append(r.slots, inv)
	j.append(func() {
		last := len(r.slots) - 1
		delete(r.index, r.slots[last].Address)
		r.slots[last] = nil
		r.slots = r.slots[:last]
	})
}

func (r *roster) remove(j *journal, addr common.Address) {
	i, ok := r.index[addr]
	if !ok {
		return
	}
	last := len(r.slots) - 1
	removed, moved := r.slots[i], r.slots[last]
	r.slots[i] = moved
	r.index[moved.Address] = i
	r.slots[last] = nil
	r.slots = r.slots[:last]
	delete(r.index, addr)
	j.append(func() {
		r.slots = append(r.slots, moved)
		r.slots[i] = removed
		r.index[moved.Address] = last
		r.index[removed.Address] = i
	})
}

func (r *roster) clear(j *journal) {
	slots, index := r.slots, r.index
	r.slots = nil
	r.index = make(map[common.Address]int)
	j.append(func() {
		r.slots = slots
		r.index = index
	})
}
