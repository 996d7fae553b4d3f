package core

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"crowdfund-ledger/core/model"
)

func validateFee(name string, f model.Fee) error {
	if f.Bps > model.BpsDenominator {
		return fmt.Errorf("%w: %s fee %d bps exceeds %d", ErrInvalidConfig, name, f.Bps, model.BpsDenominator)
	}
	return nil
}

func validateFees(fees *model.Fees) error {
	checks := []struct {
		name string
		fee  model.Fee
	}{
		{"fixed platform", fees.Fixed.Platform},
		{"fixed gateway", fees.Fixed.Gateway},
		{"flexible successful platform", fees.FlexibleSuccessful.Platform},
		{"flexible successful gateway", fees.FlexibleSuccessful.Gateway},
		{"flexible unsuccessful platform", fees.FlexibleUnsuccessful.Platform},
		{"flexible unsuccessful gateway", fees.FlexibleUnsuccessful.Gateway},
		{"investor", fees.Investor},
		{"buyer processing", fees.BuyerProcessing},
		{"seller processing", fees.SellerProcessing},
		{"seller success", fees.SellerSuccess},
	}
	for _, c := range checks {
		if err := validateFee(c.name, c.fee); err != nil {
			return err
		}
	}
	for _, pf := range []model.ProjectFees{fees.Fixed, fees.FlexibleSuccessful, fees.FlexibleUnsuccessful} {
		if int(pf.Platform.Bps)+int(pf.Gateway.Bps) > model.BpsDenominator {
			return fmt.Errorf("%w: platform and gateway fees exceed 100%%", ErrInvalidConfig)
		}
	}
	if int(fees.SellerProcessing.Bps)+int(fees.SellerSuccess.Bps) > model.BpsDenominator {
		return fmt.Errorf("%w: seller fees exceed 100%%", ErrInvalidConfig)
	}
	return nil
}

func validateRanges(r *model.Ranges) error {
	switch {
	case r.GoalMin.IsZero() || r.GoalMin.Gt(&r.GoalMax):
		return fmt.Errorf("%w: goal range", ErrInvalidConfig)
	case r.MinInvestFloor.IsZero() || r.MinInvestFloor.Gt(&r.MaxInvestCeiling):
		return fmt.Errorf("%w: investment range", ErrInvalidConfig)
	case r.DurationMinDays == 0 || r.DurationMinDays > r.DurationMaxDays:
		return fmt.Errorf("%w: duration range", ErrInvalidConfig)
	case r.InterestMin > r.InterestMax || r.InterestMax > model.BpsDenominator:
		return fmt.Errorf("%w: interest range", ErrInvalidConfig)
	case r.TermMin == 0 || r.TermMin > r.TermMax:
		return fmt.Errorf("%w: term range", ErrInvalidConfig)
	}
	return nil
}

func validateConfig(cfg *model.Config) error {
	if cfg.Address == (common.Address{}) {
		return fmt.Errorf("%w: ledger address is required", ErrInvalidConfig)
	}
	if cfg.Admin == (common.Address{}) {
		return fmt.Errorf("%w: admin is required", ErrInvalidConfig)
	}
	if err := validateRanges(&cfg.Ranges); err != nil {
		return err
	}
	return validateFees(&cfg.Fees)
}

func (tx *txn) updateConfig(field string, apply func(cfg *model.Config)) error {
	if err := tx.requireAdmin(); err != nil {
		return err
	}
	next := tx.st.cfg
	apply(&next)
	if err := validateConfig(&next); err != nil {
		return err
	}
	snapshot(&tx.j, &tx.st.cfg)
	tx.st.cfg = next
	tx.emit(model.EventConfigUpdated, []common.Hash{model.AddressTopic(tx.msg.Sender)}, field)
	return nil
}

// SetFees replaces the whole fee schedule.
func (l *Ledger) SetFees(ctx context.Context, msg model.Msg, fees model.Fees) error {
	return l.execute(ctx, "setFees", msg, func(tx *txn) error {
		return tx.updateConfig("fees", func(cfg *model.Config) { cfg.Fees = fees })
	})
}

// SetRanges replaces the project validation ranges. Existing projects keep
// the parameters they were created with.
func (l *Ledger) SetRanges(ctx context.Context, msg model.Msg, ranges model.Ranges) error {
	return l.execute(ctx, "setRanges", msg, func(tx *txn) error {
		return tx.updateConfig("ranges", func(cfg *model.Config) { cfg.Ranges = ranges })
	})
}

// SetDefender sets the defender; the zero address disables the role.
func (l *Ledger) SetDefender(ctx context.Context, msg model.Msg, defender common.Address) error {
	return l.execute(ctx, "setDefender", msg, func(tx *txn) error {
		return tx.updateConfig("defender", func(cfg *model.Config) { cfg.Defender = defender })
	})
}

func (l *Ledger) SetMarket(ctx context.Context, msg model.Msg, market model.Market) error {
	return l.execute(ctx, "setMarket", msg, func(tx *txn) error {
		return tx.updateConfig("market", func(cfg *model.Config) { cfg.Market = market })
	})
}

// TransferAdmin hands the admin role, and with it the platform earnings
// balance, to a new address.
func (l *Ledger) TransferAdmin(ctx context.Context, msg model.Msg, admin common.Address) error {
	return l.execute(ctx, "transferAdmin", msg, func(tx *txn) error {
		return tx.updateConfig("admin", func(cfg *model.Config) { cfg.Admin = admin })
	})
}
