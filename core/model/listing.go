package model

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type ListingStatus uint8

const (
	ListingUnderReview ListingStatus = iota
	ListingApproved
	ListingRejected
	ListingSold
	ListingClosed
)

func (s ListingStatus) String() string {
	switch s {
	case ListingUnderReview:
		return "under_review"
	case ListingApproved:
		return "approved"
	case ListingRejected:
		return "rejected"
	case ListingSold:
		return "sold"
	case ListingClosed:
		return "closed"
	}
	return fmt.Sprintf("listing(%d)", uint8(s))
}

// Investor is a position in one project.
type Investor struct {
	Address        common.Address
	AmountInvested uint256.Int
	PurchasedShare uint64
	IsAccredited   bool
	// SettledThrough is the installment count this investor has withdrawn up to.
	SettledThrough uint64
}

// Listing is a secondary-market offer of equity shares. Listed shares are
// deducted from the seller's position while the listing is open.
type Listing struct {
	Ref           common.Hash
	Seller        common.Address
	ProjectID     uint64
	SharesListed  uint64
	SharesSold    uint64
	PricePerShare uint256.Int
	ListedAt      uint64
	Status        ListingStatus
}

func (l *Listing) Exists() bool { return l.Seller != (common.Address{}) }

func (l *Listing) Unsold() uint64 { return l.SharesListed - l.SharesSold }
