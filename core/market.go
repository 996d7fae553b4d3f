package core

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

// ListShares offers count of the caller's equity shares at price per share.
// The shares leave the seller's position until the listing is rejected,
// reverted or bought. Only projects that reached their goal trade: their
// positions can no longer be refunded or swept.
func (l *Ledger) ListShares(ctx context.Context, msg model.Msg, ref common.Hash, count uint64, price *uint256.Int, projectID uint64) error {
	return l.execute(ctx, "listShares", msg, func(tx *txn) error {
		if prev, ok := tx.st.listings[ref]; ok && prev.Exists() {
			return ErrListingExists
		}
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if !p.IsEquity() {
			return ErrNotEquityProject
		}
		if p.Status != model.StatusSuccessful {
			return ErrProjectNotSuccessful
		}
		price := orZero(price)
		if count == 0 || price.IsZero() {
			return ErrInvalidListing
		}
		inv, ok := tx.investor(projectID, msg.Sender)
		if !ok || inv.PurchasedShare < count {
			return ErrInsufficientShares
		}
		inv.PurchasedShare -= count

		status := model.ListingUnderReview
		if tx.cfg.Market.AutoApprove {
			status = model.ListingApproved
		}
		put(&tx.j, tx.st.listings, ref, &model.Listing{
			Ref:           ref,
			Seller:        msg.Sender,
			ProjectID:     projectID,
			SharesListed:  count,
			PricePerShare: *price,
			ListedAt:      tx.now,
			Status:        status,
		})

		tx.emit(model.EventSharesListed,
			[]common.Hash{ref, model.AddressTopic(msg.Sender), model.IDTopic(projectID)},
			count, price.ToBig(), uint8(status))
		return nil
	})
}

func (tx *txn) setListingStatus(l *model.Listing, status model.ListingStatus, returned uint64) {
	l.Status = status
	tx.emit(model.EventListingStatusChanged, []common.Hash{l.Ref}, uint8(status), returned)
}

// returnShares puts unsold escrowed shares back on the seller's position.
func (tx *txn) returnShares(l *model.Listing) uint64 {
	n := l.Unsold()
	if n > 0 {
		inv := tx.enroll(l.ProjectID, l.Seller)
		inv.PurchasedShare += n
	}
	return n
}

func (l *Ledger) ApproveListing(ctx context.Context, msg model.Msg, ref common.Hash) error {
	return l.execute(ctx, "approveListing", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		listing, err := tx.listing(ref)
		if err != nil {
			return err
		}
		if listing.Status != model.ListingUnderReview {
			return ErrInvalidStatusTransition
		}
		tx.setListingStatus(listing, model.ListingApproved, 0)
		return nil
	})
}

// RejectListing rejects a listing nothing has been bought from yet and
// returns its shares to the seller.
func (l *Ledger) RejectListing(ctx context.Context, msg model.Msg, ref common.Hash) error {
	return l.execute(ctx, "rejectListing", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		listing, err := tx.listing(ref)
		if err != nil {
			return err
		}
		if listing.Status != model.ListingUnderReview && listing.Status != model.ListingApproved {
			return ErrInvalidStatusTransition
		}
		if listing.SharesSold > 0 {
			return ErrListingHasSales
		}
		tx.setListingStatus(listing, model.ListingRejected, tx.returnShares(listing))
		return nil
	})
}

// BuyShares buys qty shares from an approved listing. The caller pays the
// listing price plus the buyer processing fee; any excess is returned.
func (l *Ledger) BuyShares(ctx context.Context, msg model.Msg, ref common.Hash, qty uint64) error {
	return l.execute(ctx, "buyShares", msg, func(tx *txn) error {
		listing, err := tx.listing(ref)
		if err != nil {
			return err
		}
		if listing.Status != model.ListingApproved {
			return ErrListingNotApproved
		}
		p, err := tx.project(listing.ProjectID)
		if err != nil {
			return err
		}
		if msg.Sender == p.Creator {
			return ErrCreatorCannotBuy
		}
		if qty == 0 || qty > listing.Unsold() {
			return ErrInvalidQuantity
		}

		cost, err := mul(&listing.PricePerShare, uint256.NewInt(qty))
		if err != nil {
			return err
		}
		fee, err := feeOf(tx.cfg.Fees.BuyerProcessing, cost, 1)
		if err != nil {
			return err
		}
		total, err := add(cost, fee)
		if err != nil {
			return err
		}
		paid := msg.Amount()
		if paid.Lt(total) {
			return &InsufficientPaymentError{Required: *total, Paid: *paid}
		}

		earned := tx.st.sellerEarnings[ref]
		earnings, err := add(&earned, cost)
		if err != nil {
			return err
		}
		put(&tx.j, tx.st.sellerEarnings, ref, *earnings)
		if err := tx.creditPlatform(fee); err != nil {
			return err
		}
		buyer := tx.enroll(listing.ProjectID, msg.Sender)
		buyer.PurchasedShare += qty
		listing.SharesSold += qty
		if err := tx.pay(msg.Sender, new(uint256.Int).Sub(paid, total)); err != nil {
			return err
		}

		tx.emit(model.EventSharesBought,
			[]common.Hash{ref, model.AddressTopic(msg.Sender)},
			qty, cost.ToBig(), fee.ToBig())
		if listing.Unsold() == 0 {
			tx.setListingStatus(listing, model.ListingSold, 0)
		}
		return nil
	})
}

// WithdrawSaleEarnings pays the seller the proceeds of a settled listing
// minus the seller processing and success fees.
func (l *Ledger) WithdrawSaleEarnings(ctx context.Context, msg model.Msg, ref common.Hash) error {
	return l.execute(ctx, "withdrawSaleEarnings", msg, func(tx *txn) error {
		listing, err := tx.listing(ref)
		if err != nil {
			return err
		}
		if msg.Sender != listing.Seller {
			return ErrNotSeller
		}
		if listing.Status != model.ListingSold && listing.Status != model.ListingClosed {
			return ErrListingNotSettled
		}
		earned := tx.st.sellerEarnings[ref]
		if earned.IsZero() {
			return ErrNothingToWithdraw
		}

		processing, err := feeOf(tx.cfg.Fees.SellerProcessing, &earned, 1)
		if err != nil {
			return err
		}
		success, err := feeOf(tx.cfg.Fees.SellerSuccess, &earned, 1)
		if err != nil {
			return err
		}
		fee, err := add(processing, success)
		if err != nil {
			return err
		}
		payout, err := deduct(&earned, fee)
		if err != nil {
			return err
		}

		put(&tx.j, tx.st.sellerEarnings, ref, uint256.Int{})
		if err := tx.creditPlatform(fee); err != nil {
			return err
		}
		if err := tx.pay(msg.Sender, payout); err != nil {
			return err
		}

		tx.emit(model.EventSaleEarningsWithdrawn,
			[]common.Hash{ref, model.AddressTopic(msg.Sender)},
			payout.ToBig(), fee.ToBig())
		return nil
	})
}

// RevertUnsoldListing closes an approved listing once the revert timeout
// has passed and returns the unsold shares to the seller.
func (l *Ledger) RevertUnsoldListing(ctx context.Context, msg model.Msg, ref common.Hash) error {
	return l.execute(ctx, "revertUnsoldListing", msg, func(tx *txn) error {
		if err := tx.requireAdminOrDefender(); err != nil {
			return err
		}
		listing, err := tx.listing(ref)
		if err != nil {
			return err
		}
		if listing.Status != model.ListingApproved {
			return ErrListingNotApproved
		}
		if tx.now < listing.ListedAt+tx.cfg.Market.RevertTimeout {
			return ErrRevertTooEarly
		}
		tx.setListingStatus(listing, model.ListingClosed, tx.returnShares(listing))
		return nil
	})
}
