package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

// Invest records the attached value as a contribution of msg.Sender to the
// project. For equity deals shares are bought at the project's fixed price;
// any value above shares*price is kept as part of the contribution.
func (l *Ledger) Invest(ctx context.Context, msg model.Msg, projectID uint64, shares uint64, isAccredited bool, signatureTimestamp uint64) error {
	return l.execute(ctx, "invest", msg, func(tx *txn) error {
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if p.Status != model.StatusActive {
			return ErrProjectNotActive
		}
		if tx.now > p.EndDate || p.Claimed {
			return ErrFundingClosed
		}
		if msg.Sender == p.Creator {
			return ErrCreatorCannotInvest
		}
		amount := msg.Amount()
		if amount.Lt(&p.MinInvest) || amount.Gt(&p.MaxInvest) {
			return &InvestmentAmountError{Amount: *amount, Min: p.MinInvest, Max: p.MaxInvest}
		}
		if p.AccreditedOnly && !isAccredited {
			return &NotAccreditedInvestorError{Investor: msg.Sender, IsAccredited: isAccredited}
		}

		if p.IsEquity() {
			if shares == 0 || shares > p.AvailableShare {
				return ErrInvalidShareCount
			}
			required, err := mul(&p.PricePerShare, uint256.NewInt(shares))
			if err != nil {
				return err
			}
			if amount.Lt(required) {
				return &InsufficientPaymentError{Required: *required, Paid: *amount}
			}
		} else if shares != 0 {
			return ErrInvalidShareCount
		}

		funding, err := add(&p.FundingReceived, amount)
		if err != nil {
			return err
		}
		inv := tx.enroll(projectID, msg.Sender)
		invested, err := add(&inv.AmountInvested, amount)
		if err != nil {
			return err
		}
		inv.AmountInvested = *invested
		inv.PurchasedShare += shares
		inv.IsAccredited = isAccredited
		p.AvailableShare -= shares

		reached := p.FundingReceived.Lt(&p.RequestedFunding) && !funding.Lt(&p.RequestedFunding)
		p.FundingReceived = *funding

		tx.emit(model.EventInvestmentMade,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(msg.Sender)},
			amount.ToBig(), shares, signatureTimestamp)
		if reached {
			tx.setStatus(p, model.StatusSuccessful)
		}
		return nil
	})
}

// RefundInvestment returns part or all of an investor's contribution to a
// pull-refund balance while the project is still raising. Equity shares are
// converted back at the creation price.
func (l *Ledger) RefundInvestment(ctx context.Context, msg model.Msg, projectID uint64, investor common.Address, amount *uint256.Int) error {
	return l.execute(ctx, "refundInvestment", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if p.Status != model.StatusActive {
			return ErrProjectNotActive
		}
		if p.Claimed {
			return ErrAlreadyClaimed
		}
		inv, ok := tx.investor(projectID, investor)
		if !ok {
			return ErrNotInvestor
		}
		amount := orZero(amount)
		if amount.IsZero() || amount.Gt(&inv.AmountInvested) {
			return ErrInvalidRefundAmount
		}

		var shares uint64
		if p.IsEquity() {
			q := new(uint256.Int).Div(amount, &p.PricePerShare)
			if q.IsUint64() && q.Uint64() < inv.PurchasedShare {
				shares = q.Uint64()
			} else {
				shares = inv.PurchasedShare
			}
		}

		inv.AmountInvested.Sub(&inv.AmountInvested, amount)
		inv.PurchasedShare -= shares
		p.AvailableShare += shares
		if p.FundingReceived.Lt(amount) {
			p.FundingReceived.Clear()
		} else {
			p.FundingReceived.Sub(&p.FundingReceived, amount)
		}
		if err := tx.creditRefund(investor, amount); err != nil {
			return err
		}
		if inv.AmountInvested.IsZero() && inv.PurchasedShare == 0 {
			tx.roster(projectID).remove(&tx.j, investor)
		}

		tx.emit(model.EventInvestmentRefunded,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(investor)},
			amount.ToBig(), shares)
		return nil
	})
}

// WithdrawRefund pays out the caller's refund balance once a fixed project
// has failed.
func (l *Ledger) WithdrawRefund(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "withdrawRefund", msg, func(tx *txn) error {
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if !p.IsFixed || p.Status != model.StatusUnsuccessful {
			return ErrRefundUnavailable
		}
		balance := tx.st.refunds[msg.Sender]
		if balance.IsZero() {
			return ErrNothingToWithdraw
		}
		put(&tx.j, tx.st.refunds, msg.Sender, uint256.Int{})
		if err := tx.pay(msg.Sender, &balance); err != nil {
			return err
		}
		tx.emit(model.EventRefundWithdrawn,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(msg.Sender)},
			balance.ToBig())
		return nil
	})
}
