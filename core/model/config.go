package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// BpsDenominator is 100% in basis points.
const BpsDenominator = 10000

// Fee is a percentage of a base plus a flat amount per counted unit.
type Fee struct {
	Bps  uint16
	Flat uint256.Int
}

// ProjectFees is the fee schedule applied when a creator claims funds.
type ProjectFees struct {
	Platform Fee
	Gateway  Fee
}

type Fees struct {
	Fixed                ProjectFees
	FlexibleSuccessful   ProjectFees
	FlexibleUnsuccessful ProjectFees

	// Investor is charged per installment on repayment withdrawals.
	Investor Fee

	BuyerProcessing  Fee
	SellerProcessing Fee
	// SellerSuccess is optional; a zero fee disables it.
	SellerSuccess Fee
}

type Ranges struct {
	GoalMin          uint256.Int
	GoalMax          uint256.Int
	MinInvestFloor   uint256.Int
	MaxInvestCeiling uint256.Int
	DurationMinDays  uint64
	DurationMaxDays  uint64
	InterestMin      uint16
	InterestMax      uint16
	TermMin          uint64
	TermMax          uint64
}

type Market struct {
	AutoApprove bool
	// RevertTimeout is the number of seconds after listing before unsold
	// shares can be returned to the seller.
	RevertTimeout uint64
}

// Config is the administrator-owned configuration of a ledger. It holds only
// value fields so a plain assignment is a full copy.
type Config struct {
	// Address is the custody account of the ledger itself.
	Address  common.Address
	Admin    common.Address
	Defender common.Address
	Ranges   Ranges
	Fees     Fees
	Market   Market
}
