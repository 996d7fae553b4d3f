package core

import (
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

var bpsDenominator = uint256.NewInt(model.BpsDenominator)

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// mulDiv computes a*b/d with a 512-bit intermediate product, truncating.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return z, nil
}

// percentOf returns base*bps/10000, truncated.
func percentOf(base *uint256.Int, bps uint16) (*uint256.Int, error) {
	return mulDiv(base, uint256.NewInt(uint64(bps)), bpsDenominator)
}

// feeOf returns base*fee.Bps/10000 + fee.Flat*count.
func feeOf(fee model.Fee, base *uint256.Int, count uint64) (*uint256.Int, error) {
	pct, err := percentOf(base, fee.Bps)
	if err != nil {
		return nil, err
	}
	flat, err := mul(&fee.Flat, uint256.NewInt(count))
	if err != nil {
		return nil, err
	}
	return add(pct, flat)
}

// deduct returns amount-fee or a FeeExceedsAmountError.
func deduct(amount, fee *uint256.Int) (*uint256.Int, error) {
	if fee.Gt(amount) {
		return nil, &FeeExceedsAmountError{Fee: *fee, Amount: *amount}
	}
	return new(uint256.Int).Sub(amount, fee), nil
}

// claimFees selects the creator-claim fee schedule for a project.
func claimFees(fees *model.Fees, p *model.Project) model.ProjectFees {
	switch {
	case p.IsFixed:
		return fees.Fixed
	case p.Status == model.StatusSuccessful:
		return fees.FlexibleSuccessful
	default:
		return fees.FlexibleUnsuccessful
	}
}
