package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

func claimAllowed(p *model.Project, now uint64) bool {
	if p.IsFixed {
		return p.Status == model.StatusSuccessful
	}
	return now >= p.EndDate || p.Status == model.StatusSuccessful
}

// ClaimInvestment pays the creator the raised funds minus platform and
// gateway fees. For debt deals it also fixes the repayment schedule.
func (l *Ledger) ClaimInvestment(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "claimInvestment", msg, func(tx *txn) error {
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if msg.Sender != p.Creator {
			return ErrNotCreator
		}
		if !claimAllowed(p, tx.now) {
			return ErrClaimNotAllowed
		}
		if p.Claimed {
			return ErrAlreadyClaimed
		}

		schedule := claimFees(&tx.cfg.Fees, p)
		count := tx.roster(projectID).funders()
		platformFee, err := feeOf(schedule.Platform, &p.FundingReceived, count)
		if err != nil {
			return err
		}
		gatewayFee, err := feeOf(schedule.Gateway, &p.FundingReceived, count)
		if err != nil {
			return err
		}
		fees, err := add(platformFee, gatewayFee)
		if err != nil {
			return err
		}
		payout, err := deduct(&p.FundingReceived, fees)
		if err != nil {
			return err
		}

		p.Claimed = true
		if !p.IsEquity() {
			remaining, err := mulDiv(&p.FundingReceived, uint256.NewInt(model.BpsDenominator+uint64(p.InterestRate)), bpsDenominator)
			if err != nil {
				return err
			}
			p.RemainingRepayment = *remaining
			p.RepaymentInstallment = *new(uint256.Int).Div(remaining, uint256.NewInt(p.TermLength))
		}
		if err := tx.creditPlatform(fees); err != nil {
			return err
		}
		if err := tx.pay(p.Creator, payout); err != nil {
			return err
		}

		tx.emit(model.EventInvestmentClaimed,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(p.Creator)},
			payout.ToBig(), platformFee.ToBig(), gatewayFee.ToBig())
		return nil
	})
}

// ProcessRepaymentInstallment takes one installment from the creator and
// opens a new withdrawal cycle for every investor. The last term collects the
// whole remaining balance so no truncation residue is left owing.
func (l *Ledger) ProcessRepaymentInstallment(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "processRepaymentInstallment", msg, func(tx *txn) error {
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if msg.Sender != p.Creator {
			return ErrNotCreator
		}
		if p.IsEquity() {
			return ErrNotDebtProject
		}
		if !p.Claimed {
			return ErrNotClaimed
		}
		if tx.now < p.RepaymentDate {
			return ErrRepaymentNotDue
		}
		if p.RemainingRepayment.IsZero() {
			return ErrNoRemainingRepayment
		}

		due := p.RepaymentInstallment
		if p.InstallmentsProcessed+1 >= p.TermLength || due.Gt(&p.RemainingRepayment) {
			due = p.RemainingRepayment
		}
		paid := msg.Amount()
		if paid.Lt(&due) {
			return &InsufficientPaymentError{Required: due, Paid: *paid}
		}

		p.RemainingRepayment.Sub(&p.RemainingRepayment, &due)
		p.RepaymentDate += p.Frequency.Interval()
		p.InstallmentsProcessed++
		if err := tx.pay(msg.Sender, new(uint256.Int).Sub(paid, &due)); err != nil {
			return err
		}

		tx.emit(model.EventRepaymentProcessed,
			[]common.Hash{model.IDTopic(p.ID)},
			due.ToBig(), p.RemainingRepayment.ToBig(), p.RepaymentDate, p.InstallmentsProcessed)
		return nil
	})
}

// repaymentShare computes an investor's gross share and investor fee for
// pending installments. The investor's stake is taken in basis points of the
// project's funding.
func repaymentShare(fee model.Fee, invested, funding, installment *uint256.Int, pending uint64) (gross, charged *uint256.Int, err error) {
	shareBps, err := mulDiv(invested, bpsDenominator, funding)
	if err != nil {
		return nil, nil, err
	}
	perInstallment, err := mulDiv(shareBps, installment, bpsDenominator)
	if err != nil {
		return nil, nil, err
	}
	n := uint256.NewInt(pending)
	if gross, err = mul(perInstallment, n); err != nil {
		return nil, nil, err
	}
	feePer, err := feeOf(fee, perInstallment, 1)
	if err != nil {
		return nil, nil, err
	}
	if charged, err = mul(feePer, n); err != nil {
		return nil, nil, err
	}
	return gross, charged, nil
}

// WithdrawRepayment pays the caller every installment processed since the
// caller last withdrew, minus the investor fee.
func (l *Ledger) WithdrawRepayment(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "withdrawRepayment", msg, func(tx *txn) error {
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if p.IsEquity() {
			return ErrNotDebtProject
		}
		inv, ok := tx.investor(projectID, msg.Sender)
		if !ok {
			return ErrNotInvestor
		}
		pending := p.InstallmentsProcessed - inv.SettledThrough
		if pending == 0 || p.FundingReceived.IsZero() {
			return ErrNothingToWithdraw
		}

		gross, fee, err := repaymentShare(tx.cfg.Fees.Investor, &inv.AmountInvested, &p.FundingReceived, &p.RepaymentInstallment, pending)
		if err != nil {
			return err
		}
		payout, err := deduct(gross, fee)
		if err != nil {
			return err
		}

		inv.SettledThrough = p.InstallmentsProcessed
		if err := tx.creditPlatform(fee); err != nil {
			return err
		}
		if err := tx.pay(msg.Sender, payout); err != nil {
			return err
		}

		tx.emit(model.EventRepaymentWithdrawn,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(msg.Sender)},
			payout.ToBig(), fee.ToBig(), pending)
		return nil
	})
}

// WithdrawEarning pays the accumulated platform earnings to the admin.
func (l *Ledger) WithdrawEarning(ctx context.Context, msg model.Msg) error {
	return l.execute(ctx, "withdrawEarning", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		amount := tx.st.platform
		if amount.IsZero() {
			return ErrNothingToWithdraw
		}
		snapshot(&tx.j, &tx.st.platform)
		tx.st.platform.Clear()
		if err := tx.pay(msg.Sender, &amount); err != nil {
			return err
		}
		tx.emit(model.EventEarningWithdrawn, []common.Hash{model.AddressTopic(msg.Sender)}, amount.ToBig())
		return nil
	})
}
