package core

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

// marketSetup gives alice all 100 shares of an equity project, which
// completes its 1 ether goal.
func marketSetup(t *testing.T, autoApprove bool) (*harness, uint64) {
	t.Helper()
	cfg := testConfig()
	cfg.Market.AutoApprove = autoApprove
	h := newHarnessWith(t, cfg)
	params := equityParams()
	params.AvailableShares = 100
	params.RequestedFunding = ether("1")
	params.MaxInvest = ether("1")
	id := h.create(params)
	ok(t, h.l.Invest(h.ctx, pay(alice, "1"), id, 100, false, 0))
	if p := h.project(id); p.Status != model.StatusSuccessful {
		t.Fatalf("Status = %s, want successful", p.Status)
	}
	return h, id
}

func (h *harness) listing(ref common.Hash) model.Listing {
	h.t.Helper()
	l, err := h.l.Listing(ref)
	if err != nil {
		h.t.Fatalf("Listing(%s): %v", ref.Hex(), err)
	}
	return l
}

func TestListRevertRoundTrip(t *testing.T) {
	h, id := marketSetup(t, true)
	ref := model.ListingRef("alice-1")

	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 100, ether("0.02"), id))
	if pos := h.position(id, alice); pos.PurchasedShare != 0 {
		t.Fatalf("PurchasedShare = %d after listing, want 0", pos.PurchasedShare)
	}
	if l := h.listing(ref); l.Status != model.ListingApproved || l.ListedAt != start {
		t.Fatalf("listing = %s at %d, want approved at %d", l.Status, l.ListedAt, start)
	}

	h.clock.Advance(7*model.Day - 1)
	wantErr(t, h.l.RevertUnsoldListing(h.ctx, call(defender), ref), ErrRevertTooEarly)
	h.clock.Advance(1)
	wantErr(t, h.l.RevertUnsoldListing(h.ctx, call(alice), ref), ErrUnauthorized)
	ok(t, h.l.RevertUnsoldListing(h.ctx, call(defender), ref))

	if pos := h.position(id, alice); pos.PurchasedShare != 100 {
		t.Errorf("PurchasedShare = %d after revert, want 100", pos.PurchasedShare)
	}
	if l := h.listing(ref); l.Status != model.ListingClosed {
		t.Errorf("Status = %s, want closed", l.Status)
	}
	wantErr(t, h.l.RevertUnsoldListing(h.ctx, call(admin), ref), ErrListingNotApproved)
	wantErr(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 1), ErrListingNotApproved)
}

func TestListSharesValidation(t *testing.T) {
	h, id := marketSetup(t, true)
	debt := h.create(debtParams())
	ref := model.ListingRef("x")

	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 10, ether("0.02"), debt), ErrNotEquityProject)
	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 10, ether("0.02"), 99), ErrProjectNotFound)
	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 0, ether("0.02"), id), ErrInvalidListing)
	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 10, new(uint256.Int), id), ErrInvalidListing)
	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 101, ether("0.02"), id), ErrInsufficientShares)
	wantErr(t, h.l.ListShares(h.ctx, call(bob), ref, 1, ether("0.02"), id), ErrInsufficientShares)
	if _, err := h.l.Listing(ref); err == nil {
		t.Error("Listing exists after failed listings")
	}

	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 10, ether("0.02"), id))
	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 10, ether("0.02"), id), ErrListingExists)
}

func TestListSharesRequiresSuccessfulProject(t *testing.T) {
	h := newHarness(t)
	id := h.create(equityParams())
	ok(t, h.l.Invest(h.ctx, pay(alice, "1"), id, 100, false, 0))
	ref := model.ListingRef("early")

	wantErr(t, h.l.ListShares(h.ctx, call(alice), ref, 100, ether("0.01"), id), ErrProjectNotSuccessful)
	if pos := h.position(id, alice); pos.PurchasedShare != 100 {
		t.Errorf("PurchasedShare = %d, want 100", pos.PurchasedShare)
	}

	// A full refund returns every share bought.
	ok(t, h.l.RefundInvestment(h.ctx, call(admin), id, alice, ether("1")))
	p := h.project(id)
	if p.AvailableShare != 1000 {
		t.Errorf("AvailableShare = %d, want 1000", p.AvailableShare)
	}
	wantAmount(t, "FundingReceived", p.FundingReceived, new(uint256.Int))

	// A failed fixed project refunds every investor and never trades.
	ok(t, h.l.Invest(h.ctx, pay(bob, "1"), id, 100, false, 0))
	h.clock.Set(p.EndDate + 1)
	ok(t, h.l.MarkUnsuccessful(h.ctx, call(defender), id))
	wantAmount(t, "bob refund", h.l.RefundBalance(bob), ether("1"))
	if p := h.project(id); p.AvailableShare != 1000 {
		t.Errorf("AvailableShare = %d after sweep, want 1000", p.AvailableShare)
	}
	wantErr(t, h.l.ListShares(h.ctx, call(bob), ref, 1, ether("0.01"), id), ErrProjectNotSuccessful)
	if _, err := h.l.Listing(ref); !errors.Is(err, ErrListingNotFound) {
		t.Errorf("Listing error = %v, want %v", err, ErrListingNotFound)
	}
	wantAmount(t, "custody", h.l.Custody(), ether("2"))
}

func TestSoldSharesCannotBeRefunded(t *testing.T) {
	h, id := marketSetup(t, true)
	ref := model.ListingRef("resale")
	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 100, ether("0.01"), id))
	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1.02"), ref, 100))

	wantErr(t, h.l.RefundInvestment(h.ctx, call(admin), id, alice, ether("1")), ErrProjectNotActive)
	h.clock.Set(h.project(id).EndDate + 1)
	wantErr(t, h.l.MarkUnsuccessful(h.ctx, call(admin), id), ErrInvalidStatusTransition)

	wantAmount(t, "alice refund", h.l.RefundBalance(alice), new(uint256.Int))
	if pos := h.position(id, bob); pos.PurchasedShare != 100 {
		t.Errorf("bob PurchasedShare = %d, want 100", pos.PurchasedShare)
	}
	if p := h.project(id); p.AvailableShare != 0 {
		t.Errorf("AvailableShare = %d, want 0", p.AvailableShare)
	}
}

func TestListingReview(t *testing.T) {
	h, id := marketSetup(t, false)
	ref := model.ListingRef("review")

	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 50, ether("0.02"), id))
	if l := h.listing(ref); l.Status != model.ListingUnderReview {
		t.Fatalf("Status = %s, want under_review", l.Status)
	}
	wantErr(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 10), ErrListingNotApproved)
	wantErr(t, h.l.ApproveListing(h.ctx, call(defender), ref), ErrUnauthorized)
	ok(t, h.l.ApproveListing(h.ctx, call(admin), ref))
	wantErr(t, h.l.ApproveListing(h.ctx, call(admin), ref), ErrInvalidStatusTransition)

	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 10))
	wantErr(t, h.l.RejectListing(h.ctx, call(admin), ref), ErrListingHasSales)

	other := model.ListingRef("rejected")
	ok(t, h.l.ListShares(h.ctx, call(alice), other, 30, ether("0.05"), id))
	ok(t, h.l.RejectListing(h.ctx, call(admin), other))
	if pos := h.position(id, alice); pos.PurchasedShare != 50 {
		t.Errorf("PurchasedShare = %d after reject, want 50", pos.PurchasedShare)
	}
	wantErr(t, h.l.RejectListing(h.ctx, call(admin), other), ErrInvalidStatusTransition)
	wantErr(t, h.l.ListShares(h.ctx, call(alice), other, 1, ether("0.05"), id), ErrListingExists)
	wantErr(t, h.l.ApproveListing(h.ctx, call(admin), model.ListingRef("missing")), ErrListingNotFound)
}

func TestBuyShares(t *testing.T) {
	h, id := marketSetup(t, true)
	ref := model.ListingRef("sale")
	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 100, ether("0.02"), id))

	wantErr(t, h.l.BuyShares(h.ctx, pay(creator, "1"), ref, 1), ErrCreatorCannotBuy)
	wantErr(t, h.l.BuyShares(h.ctx, pay(bob, "3"), ref, 0), ErrInvalidQuantity)
	wantErr(t, h.l.BuyShares(h.ctx, pay(bob, "3"), ref, 101), ErrInvalidQuantity)
	var payErr *InsufficientPaymentError
	if err := h.l.BuyShares(h.ctx, pay(bob, "0.8"), ref, 40); !errors.As(err, &payErr) {
		t.Fatalf("error = %v, want InsufficientPaymentError", err)
	}
	wantAmount(t, "Required", payErr.Required, ether("0.816"))

	// 40 * 0.02 = 0.8 plus a 2% buyer fee; the rest of the 1 ether comes back.
	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 40))
	wantAmount(t, "bob balance", h.balance(bob), ether("99.184"))
	wantAmount(t, "seller earnings", h.l.SellerEarnings(ref), ether("0.8"))
	wantAmount(t, "platform earnings", h.l.PlatformEarnings(), ether("0.016"))
	if pos := h.position(id, bob); pos.PurchasedShare != 40 || !pos.AmountInvested.IsZero() {
		t.Errorf("bob position = %d shares %s invested, want 40 shares 0 invested", pos.PurchasedShare, pos.AmountInvested.ToBig())
	}
	if l := h.listing(ref); l.Status != model.ListingApproved || l.SharesSold != 40 {
		t.Errorf("listing = %s sold %d, want approved sold 40", l.Status, l.SharesSold)
	}

	ok(t, h.l.BuyShares(h.ctx, pay(carol, "2"), ref, 60))
	l := h.listing(ref)
	if l.Status != model.ListingSold {
		t.Errorf("Status = %s, want sold", l.Status)
	}
	sold := new(uint256.Int).Mul(&l.PricePerShare, uint256.NewInt(l.SharesSold))
	wantAmount(t, "seller earnings", h.l.SellerEarnings(ref), sold)
	if n, _ := h.l.InvestorCount(id); n != 3 {
		t.Errorf("InvestorCount = %d, want 3", n)
	}
	wantErr(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 1), ErrListingNotApproved)
}

func TestWithdrawSaleEarnings(t *testing.T) {
	h, id := marketSetup(t, true)
	fees := h.l.Config().Fees
	fees.SellerSuccess = model.Fee{Flat: *ether("0.01")}
	ok(t, h.l.SetFees(h.ctx, call(admin), fees))

	ref := model.ListingRef("payout")
	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 50, ether("0.02"), id))
	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 20))

	wantErr(t, h.l.WithdrawSaleEarnings(h.ctx, call(alice), ref), ErrListingNotSettled)
	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 30))
	wantErr(t, h.l.WithdrawSaleEarnings(h.ctx, call(bob), ref), ErrNotSeller)

	platform := h.l.PlatformEarnings()
	ok(t, h.l.WithdrawSaleEarnings(h.ctx, call(alice), ref))
	// 1 ether proceeds minus 1% processing and a 0.01 flat success fee.
	wantAmount(t, "alice balance", h.balance(alice), ether("99.98"))
	wantAmount(t, "seller earnings", h.l.SellerEarnings(ref), new(uint256.Int))
	gained := h.l.PlatformEarnings()
	gained.Sub(&gained, &platform)
	wantAmount(t, "platform gain", gained, ether("0.02"))
	wantErr(t, h.l.WithdrawSaleEarnings(h.ctx, call(alice), ref), ErrNothingToWithdraw)
}

func TestWithdrawEarningsOfClosedListing(t *testing.T) {
	h, id := marketSetup(t, true)
	ref := model.ListingRef("partial")
	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 50, ether("0.02"), id))
	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 10))

	h.clock.Advance(7 * model.Day)
	ok(t, h.l.RevertUnsoldListing(h.ctx, call(admin), ref))
	if pos := h.position(id, alice); pos.PurchasedShare != 90 {
		t.Errorf("PurchasedShare = %d, want 90", pos.PurchasedShare)
	}
	ok(t, h.l.WithdrawSaleEarnings(h.ctx, call(alice), ref))
	// 0.2 minus 1% processing.
	wantAmount(t, "alice balance", h.balance(alice), ether("99.198"))
}

func TestMarketEvents(t *testing.T) {
	h, id := marketSetup(t, true)
	ref := model.ListingRef("events")
	ok(t, h.l.ListShares(h.ctx, call(alice), ref, 10, ether("0.02"), id))
	ok(t, h.l.BuyShares(h.ctx, pay(bob, "1"), ref, 10))

	evs := h.events()
	var names []string
	for _, ev := range evs {
		names = append(names, ev.Name)
	}
	tail := names[len(names)-3:]
	want := []string{model.EventSharesListed, model.EventSharesBought, model.EventListingStatusChanged}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("events = %v, want suffix %v", names, want)
		}
	}

	bought := evs[len(evs)-2]
	if got := bought.Fields["ref"].(common.Hash); got != ref {
		t.Errorf("ref = %s, want %s", got.Hex(), ref.Hex())
	}
	if got := bought.Fields["buyer"].(common.Address); got != bob {
		t.Errorf("buyer = %s, want %s", got.Hex(), bob.Hex())
	}
	if got := bought.Fields["quantity"].(uint64); got != 10 {
		t.Errorf("quantity = %d, want 10", got)
	}
	status := evs[len(evs)-1].Fields["status"].(uint8)
	if model.ListingStatus(status) != model.ListingSold {
		t.Errorf("status = %s, want sold", model.ListingStatus(status))
	}
}
