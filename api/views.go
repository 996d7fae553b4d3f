package api

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core"
	"crowdfund-ledger/core/model"
)

// Views render amounts as base-10 wei strings.

type projectView struct {
	ID                    uint64         `json:"id"`
	Creator               common.Address `json:"creator"`
	Name                  string         `json:"name"`
	DealType              string         `json:"dealType"`
	Status                string         `json:"status"`
	EndDate               uint64         `json:"endDate"`
	AvailableShare        uint64         `json:"availableShare"`
	PricePerShare         string         `json:"pricePerShare"`
	MinInvest             string         `json:"minInvest"`
	MaxInvest             string         `json:"maxInvest"`
	RequestedFunding      string         `json:"requestedFunding"`
	FundingReceived       string         `json:"fundingReceived"`
	RemainingRepayment    string         `json:"remainingRepayment"`
	RepaymentInstallment  string         `json:"repaymentInstallment"`
	InterestRate          uint16         `json:"interestRate"`
	TermLength            uint64         `json:"termLength"`
	RepaymentDate         uint64         `json:"repaymentDate"`
	Frequency             string         `json:"frequency"`
	InstallmentsProcessed uint64         `json:"installmentsProcessed"`
	IsFixed               bool           `json:"isFixed"`
	AccreditedOnly        bool           `json:"accreditedOnly"`
	Claimed               bool           `json:"claimed"`
	CreatedAt             uint64         `json:"createdAt"`
}

func newProjectView(p *model.Project) projectView {
	return projectView{
		ID:                    p.ID,
		Creator:               p.Creator,
		Name:                  p.Name,
		DealType:              p.DealType.String(),
		Status:                p.Status.String(),
		EndDate:               p.EndDate,
		AvailableShare:        p.AvailableShare,
		PricePerShare:         model.FormatWei(&p.PricePerShare),
		MinInvest:             model.FormatWei(&p.MinInvest),
		MaxInvest:             model.FormatWei(&p.MaxInvest),
		RequestedFunding:      model.FormatWei(&p.RequestedFunding),
		FundingReceived:       model.FormatWei(&p.FundingReceived),
		RemainingRepayment:    model.FormatWei(&p.RemainingRepayment),
		RepaymentInstallment:  model.FormatWei(&p.RepaymentInstallment),
		InterestRate:          p.InterestRate,
		TermLength:            p.TermLength,
		RepaymentDate:         p.RepaymentDate,
		Frequency:             p.Frequency.String(),
		InstallmentsProcessed: p.InstallmentsProcessed,
		IsFixed:               p.IsFixed,
		AccreditedOnly:        p.AccreditedOnly,
		Claimed:               p.Claimed,
		CreatedAt:             p.CreatedAt,
	}
}

type investorView struct {
	Address          common.Address `json:"address"`
	AmountInvested   string         `json:"amountInvested"`
	PurchasedShare   uint64         `json:"purchasedShare"`
	IsAccredited     bool           `json:"isAccredited"`
	SettledThrough   uint64         `json:"settledThrough"`
	Pending          uint64         `json:"pendingInstallments"`
	ClaimedThisCycle bool           `json:"claimedThisCycle"`
}

func newInvestorView(inv *model.Investor) investorView {
	return investorView{
		Address:        inv.Address,
		AmountInvested: model.FormatWei(&inv.AmountInvested),
		PurchasedShare: inv.PurchasedShare,
		IsAccredited:   inv.IsAccredited,
		SettledThrough: inv.SettledThrough,
	}
}

func newPositionView(pos *core.Position) investorView {
	v := newInvestorView(&pos.Investor)
	v.Pending = pos.Pending
	v.ClaimedThisCycle = pos.ClaimedThisCycle
	return v
}

type listingView struct {
	Ref           common.Hash    `json:"ref"`
	Seller        common.Address `json:"seller"`
	ProjectID     uint64         `json:"projectId"`
	SharesListed  uint64         `json:"sharesListed"`
	SharesSold    uint64         `json:"sharesSold"`
	PricePerShare string         `json:"pricePerShare"`
	ListedAt      uint64         `json:"listedAt"`
	Status        string         `json:"status"`
	Earnings      string         `json:"earnings"`
}

func newListingView(l *model.Listing, earnings *uint256.Int) listingView {
	return listingView{
		Ref:           l.Ref,
		Seller:        l.Seller,
		ProjectID:     l.ProjectID,
		SharesListed:  l.SharesListed,
		SharesSold:    l.SharesSold,
		PricePerShare: model.FormatWei(&l.PricePerShare),
		ListedAt:      l.ListedAt,
		Status:        l.Status.String(),
		Earnings:      model.FormatWei(earnings),
	}
}
