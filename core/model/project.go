package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type DealType uint8
type ProjectStatus uint8
type Frequency uint8

const (
	DealDebt DealType = iota
	DealEquity
)

const (
	StatusActive ProjectStatus = iota
	StatusInactive
	StatusPending
	StatusSuccessful
	StatusUnsuccessful
)

const (
	FrequencyYearly Frequency = iota
	FrequencyQuarterly
	FrequencyMonthly
	FrequencyDaily
)

const (
	Day = uint64(24 * 60 * 60)

	// MinRepaymentGap is the minimum distance between a debt project's end date
	// and its first repayment date.
	MinRepaymentGap = 30 * Day
)

func (d DealType) String() string {
	switch d {
	case DealDebt:
		return "debt"
	case DealEquity:
		return "equity"
	}
	return fmt.Sprintf("deal(%d)", uint8(d))
}

func ParseDealType(s string) (DealType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debt":
		return DealDebt, nil
	case "equity":
		return DealEquity, nil
	}
	return 0, fmt.Errorf("unknown deal type %q", s)
}

func (s ProjectStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusInactive:
		return "inactive"
	case StatusPending:
		return "pending"
	case StatusSuccessful:
		return "successful"
	case StatusUnsuccessful:
		return "unsuccessful"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Terminal reports whether no transition leaves the status.
func (s ProjectStatus) Terminal() bool {
	return s == StatusSuccessful || s == StatusUnsuccessful
}

func (f Frequency) String() string {
	switch f {
	case FrequencyYearly:
		return "yearly"
	case FrequencyQuarterly:
		return "quarterly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyDaily:
		return "daily"
	}
	return fmt.Sprintf("frequency(%d)", uint8(f))
}

func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yearly":
		return FrequencyYearly, nil
	case "quarterly":
		return FrequencyQuarterly, nil
	case "monthly":
		return FrequencyMonthly, nil
	case "daily":
		return FrequencyDaily, nil
	}
	return 0, fmt.Errorf("unknown repayment frequency %q", s)
}

// Interval is the fixed number of seconds between two repayment dates.
// There is no calendar logic: a month is always 30 days.
func (f Frequency) Interval() uint64 {
	switch f {
	case FrequencyYearly:
		return 365 * Day
	case FrequencyQuarterly:
		return 91 * Day
	case FrequencyMonthly:
		return 30 * Day
	case FrequencyDaily:
		return Day
	}
	return 0
}

// Project is a single funding campaign. Amounts are in wei.
type Project struct {
	ID               uint64
	Creator          common.Address
	Name             string
	EndDate          uint64
	DealType         DealType
	AvailableShare   uint64
	PricePerShare    uint256.Int
	MinInvest        uint256.Int
	MaxInvest        uint256.Int
	RequestedFunding uint256.Int
	FundingReceived  uint256.Int

	RemainingRepayment    uint256.Int
	RepaymentInstallment  uint256.Int
	InterestRate          uint16
	TermLength            uint64
	RepaymentDate         uint64
	Frequency             Frequency
	InstallmentsProcessed uint64

	IsFixed        bool
	AccreditedOnly bool
	Status         ProjectStatus
	Claimed        bool
	CreatedAt      uint64
}

func (p *Project) IsEquity() bool { return p.DealType == DealEquity }

// ProjectParams are the creation arguments of a project.
type ProjectParams struct {
	Creator          common.Address
	Name             string
	DealType         DealType
	AvailableShares  uint64
	EndDate          uint64
	MinInvest        *uint256.Int
	MaxInvest        *uint256.Int
	RequestedFunding *uint256.Int
	InterestRate     uint16
	TermLength       uint64
	RepaymentDate    uint64
	IsFixed          bool
	AccreditedOnly   bool
	Frequency        Frequency
}
