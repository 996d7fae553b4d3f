package core

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"crowdfund-ledger/core/model"
)

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func validateProject(cfg *model.Config, now uint64, params *model.ProjectParams) (*model.Project, error) {
	r := &cfg.Ranges
	requested := orZero(params.RequestedFunding)
	minInvest := orZero(params.MinInvest)
	maxInvest := orZero(params.MaxInvest)

	if params.Creator == (common.Address{}) {
		return nil, ErrInvalidCreator
	}
	if strings.TrimSpace(params.Name) == "" {
		return nil, ErrInvalidName
	}
	if requested.Lt(&r.GoalMin) || requested.Gt(&r.GoalMax) {
		return nil, &InvalidRequestedGoalAmountError{Amount: *requested, Min: r.GoalMin, Max: r.GoalMax}
	}

	ceiling := &r.MaxInvestCeiling
	if requested.Lt(ceiling) {
		ceiling = requested
	}
	if minInvest.Lt(&r.MinInvestFloor) || maxInvest.Gt(ceiling) || minInvest.Gt(maxInvest) {
		return nil, ErrInvalidInvestRange
	}

	if params.EndDate < now+r.DurationMinDays*model.Day || params.EndDate > now+r.DurationMaxDays*model.Day {
		return nil, ErrInvalidEndDate
	}

	p := &model.Project{
		Creator:          params.Creator,
		Name:             strings.TrimSpace(params.Name),
		EndDate:          params.EndDate,
		DealType:         params.DealType,
		MinInvest:        *minInvest,
		MaxInvest:        *maxInvest,
		RequestedFunding: *requested,
		IsFixed:          params.IsFixed,
		AccreditedOnly:   params.AccreditedOnly,
		Status:           model.StatusActive,
		Frequency:        params.Frequency,
		CreatedAt:        now,
	}

	switch params.DealType {
	case model.DealDebt:
		if params.InterestRate < r.InterestMin || params.InterestRate > r.InterestMax {
			return nil, ErrInvalidInterestRate
		}
		if params.TermLength < r.TermMin || params.TermLength > r.TermMax {
			return nil, ErrInvalidTermLength
		}
		if params.RepaymentDate < params.EndDate+model.MinRepaymentGap {
			return nil, ErrInvalidRepaymentDate
		}
		if params.Frequency.Interval() == 0 {
			return nil, ErrInvalidRepaymentDate
		}
		p.InterestRate = params.InterestRate
		p.TermLength = params.TermLength
		p.RepaymentDate = params.RepaymentDate
	case model.DealEquity:
		if params.AvailableShares == 0 {
			return nil, ErrInvalidShareCount
		}
		// Truncation leaves requested % shares unpriced; that residual is an
		// accepted rounding loss.
		price := new(uint256.Int).Div(requested, uint256.NewInt(params.AvailableShares))
		if price.IsZero() {
			return nil, ErrInvalidShareCount
		}
		p.AvailableShare = params.AvailableShares
		p.PricePerShare = *price
	default:
		return nil, ErrInvalidShareCount
	}
	return p, nil
}

// CreateProject registers a new campaign and returns its id.
func (l *Ledger) CreateProject(ctx context.Context, msg model.Msg, params model.ProjectParams) (uint64, error) {
	var id uint64
	err := l.execute(ctx, "createProject", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		p, err := validateProject(&tx.cfg, tx.now, &params)
		if err != nil {
			return err
		}
		snapshot(&tx.j, &tx.st.lastID)
		tx.st.lastID++
		p.ID = tx.st.lastID
		put(&tx.j, tx.st.projects, p.ID, p)

		tx.emit(model.EventProjectCreated,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(p.Creator)},
			p.Name, uint8(p.DealType), p.AvailableShare, p.PricePerShare.ToBig(),
			p.RequestedFunding.ToBig(), p.MinInvest.ToBig(), p.MaxInvest.ToBig(),
			p.EndDate, p.InterestRate, p.TermLength, p.RepaymentDate,
			p.IsFixed, p.AccreditedOnly, uint8(p.Frequency))
		id = p.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (tx *txn) setStatus(p *model.Project, status model.ProjectStatus) {
	p.Status = status
	tx.emit(model.EventProjectStatusChanged, []common.Hash{model.IDTopic(p.ID)}, uint8(status))
}

// DeactivateProject moves an active project to Inactive.
func (l *Ledger) DeactivateProject(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "deactivateProject", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if p.Status != model.StatusActive {
			return ErrInvalidStatusTransition
		}
		tx.setStatus(p, model.StatusInactive)
		return nil
	})
}

// SuspendProject moves an untouched active project back to Pending.
func (l *Ledger) SuspendProject(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "suspendProject", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if p.Status != model.StatusActive || !p.FundingReceived.IsZero() || tx.now >= p.EndDate {
			return ErrInvalidStatusTransition
		}
		tx.setStatus(p, model.StatusPending)
		return nil
	})
}

// ActivateProject reopens an Inactive or Pending project before its end date.
func (l *Ledger) ActivateProject(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "activateProject", msg, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if (p.Status != model.StatusInactive && p.Status != model.StatusPending) || tx.now >= p.EndDate {
			return ErrInvalidStatusTransition
		}
		tx.setStatus(p, model.StatusActive)
		return nil
	})
}

// MarkUnsuccessful closes an active project whose funding window has passed.
// For a fixed project every contribution moves to its investor's refund
// balance and every share returns to the pool.
func (l *Ledger) MarkUnsuccessful(ctx context.Context, msg model.Msg, projectID uint64) error {
	return l.execute(ctx, "markUnsuccessful", msg, func(tx *txn) error {
		if err := tx.requireAdminOrDefender(); err != nil {
			return err
		}
		p, err := tx.project(projectID)
		if err != nil {
			return err
		}
		if p.Status != model.StatusActive || tx.now <= p.EndDate {
			return ErrInvalidStatusTransition
		}
		if p.IsFixed && !p.FundingReceived.IsZero() {
			if err := tx.sweepRefunds(p); err != nil {
				return err
			}
		}
		tx.setStatus(p, model.StatusUnsuccessful)
		return nil
	})
}

func (tx *txn) sweepRefunds(p *model.Project) error {
	r := tx.roster(p.ID)
	for _, inv := range r.slots {
		snapshot(&tx.j, inv)
		amount := inv.AmountInvested
		if !amount.IsZero() {
			if err := tx.creditRefund(inv.Address, &amount); err != nil {
				return err
			}
		}
		if p.FundingReceived.Lt(&amount) {
			p.FundingReceived.Clear()
		} else {
			p.FundingReceived.Sub(&p.FundingReceived, &amount)
		}
		p.AvailableShare += inv.PurchasedShare
		tx.emit(model.EventInvestmentRefunded,
			[]common.Hash{model.IDTopic(p.ID), model.AddressTopic(inv.Address)},
			amount.ToBig(), inv.PurchasedShare)
		inv.AmountInvested.Clear()
		inv.PurchasedShare = 0
	}
	r.clear(&tx.j)
	return nil
}
