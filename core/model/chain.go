package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Msg is the caller side of an operation: who calls and how much value is
// attached to the call.
type Msg struct {
	Sender common.Address
	Value  *uint256.Int
}

// Amount returns the attached value, zero when none.
func (m Msg) Amount() *uint256.Int {
	if m.Value == nil {
		return new(uint256.Int)
	}
	return m.Value.Clone()
}

// Transfer moves native value between two accounts.
type Transfer struct {
	From   common.Address
	To     common.Address
	Amount uint256.Int
}

// Receipt is the outcome of one committed operation.
type Receipt struct {
	Height    uint64
	Op        string
	Sender    common.Address
	Timestamp uint64
	Logs      []*types.Log
}
