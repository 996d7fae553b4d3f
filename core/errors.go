package core

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// caller
	ErrUnauthorized       = errors.New("caller is not authorized")
	ErrNotCreator         = errors.New("caller is not the project creator")
	ErrNotInvestor        = errors.New("caller has no investment in project")
	ErrNotSeller          = errors.New("caller is not the listing seller")
	ErrReentrantCall      = errors.New("reentrant call")
	ErrSettlement         = errors.New("settlement failed")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// registry
	ErrProjectNotFound         = errors.New("project not found")
	ErrInvalidCreator          = errors.New("invalid creator")
	ErrInvalidName             = errors.New("invalid project name")
	ErrInvalidInvestRange      = errors.New("invalid investment range")
	ErrInvalidEndDate          = errors.New("invalid end date")
	ErrInvalidInterestRate     = errors.New("invalid interest rate")
	ErrInvalidTermLength       = errors.New("invalid term length")
	ErrInvalidRepaymentDate    = errors.New("invalid repayment date")
	ErrInvalidShareCount       = errors.New("invalid share count")
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// investment
	ErrProjectNotActive    = errors.New("project is not active")
	ErrFundingClosed       = errors.New("funding period has ended")
	ErrCreatorCannotInvest = errors.New("creator cannot invest in own project")
	ErrInvalidRefundAmount = errors.New("invalid refund amount")
	ErrRefundUnavailable   = errors.New("refunds are not available for project")
	ErrNothingToWithdraw   = errors.New("nothing to withdraw")

	// settlement
	ErrClaimNotAllowed      = errors.New("claim is not allowed yet")
	ErrAlreadyClaimed       = errors.New("investment already claimed")
	ErrNotClaimed           = errors.New("investment not claimed")
	ErrNotDebtProject       = errors.New("project is not a debt deal")
	ErrRepaymentNotDue      = errors.New("repayment is not due yet")
	ErrNoRemainingRepayment = errors.New("no remaining repayment")

	// market
	ErrNotEquityProject     = errors.New("project is not an equity deal")
	ErrProjectNotSuccessful = errors.New("project has not reached its goal")
	ErrListingExists        = errors.New("listing reference already used")
	ErrListingNotFound      = errors.New("listing not found")
	ErrInvalidListing       = errors.New("invalid listing")
	ErrInsufficientShares   = errors.New("insufficient shares")
	ErrListingNotApproved   = errors.New("listing is not approved")
	ErrListingNotSettled    = errors.New("listing is not sold or closed")
	ErrListingHasSales      = errors.New("listing already has sales")
	ErrCreatorCannotBuy     = errors.New("creator cannot buy own project shares")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrRevertTooEarly       = errors.New("listing revert timeout not reached")
)

// InvalidRequestedGoalAmountError reports a funding goal outside the
// configured bounds.
type InvalidRequestedGoalAmountError struct {
	Amount, Min, Max uint256.Int
}

func (e *InvalidRequestedGoalAmountError) Error() string {
	return fmt.Sprintf("invalid requested goal amount %s, want within [%s, %s]",
		e.Amount.ToBig(), e.Min.ToBig(), e.Max.ToBig())
}

// InvestmentAmountError reports a contribution outside the project's
// per-investor bounds.
type InvestmentAmountError struct {
	Amount, Min, Max uint256.Int
}

func (e *InvestmentAmountError) Error() string {
	return fmt.Sprintf("investment amount %s outside [%s, %s]",
		e.Amount.ToBig(), e.Min.ToBig(), e.Max.ToBig())
}

type NotAccreditedInvestorError struct {
	Investor     common.Address
	IsAccredited bool
}

func (e *NotAccreditedInvestorError) Error() string {
	return fmt.Sprintf("investor %s is not accredited (accredited=%t)", e.Investor.Hex(), e.IsAccredited)
}

type InsufficientPaymentError struct {
	Required, Paid uint256.Int
}

func (e *InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: paid %s, required %s", e.Paid.ToBig(), e.Required.ToBig())
}

type FeeExceedsAmountError struct {
	Fee, Amount uint256.Int
}

func (e *FeeExceedsAmountError) Error() string {
	return fmt.Sprintf("fee %s exceeds amount %s", e.Fee.ToBig(), e.Amount.ToBig())
}
