// Package core implements the crowdfunding ledger: the project registry, the
// investment ledger, the settlement engine and the secondary share market.
//
// Every exported operation runs as one indivisible unit. State changes are
// journaled while the operation runs; value movements are collected into a
// single settlement batch that is handed to the Settler only after all state
// has been updated. If the operation or its settlement fails, the journal is
// reverted and no event is published.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"crowdfund-ledger/core/model"
	"crowdfund-ledger/metrics"
)

// Clock returns the current unix time in seconds.
type Clock interface {
	Now(ctx context.Context) (uint64, error)
}

// Settler executes a batch of native-value transfers atomically: either all
// transfers are applied or none is.
type Settler interface {
	Settle(ctx context.Context, transfers []model.Transfer) error
}

// EventSink receives the receipt of every committed operation. Delivery is
// fire and forget; a sink must not call back into the ledger.
type EventSink interface {
	Emit(receipt *model.Receipt)
}

type callKey struct{}

// InCall reports whether ctx belongs to a ledger operation in progress.
func InCall(ctx context.Context) bool {
	return ctx.Value(callKey{}) != nil
}

type state struct {
	cfg            model.Config
	lastID         uint64
	projects       map[uint64]*model.Project
	rosters        map[uint64]*roster
	refunds        map[common.Address]uint256.Int
	platform       uint256.Int
	listings       map[common.Hash]*model.Listing
	sellerEarnings map[common.Hash]uint256.Int
	custody        uint256.Int
}

// Ledger is the crowdfunding state machine. It is safe for concurrent use;
// operations are serialized.
//
// Recipient hooks run during settlement with the operation context. Calling
// back into the ledger with that context fails with ErrReentrantCall. Hooks
// must not call queries either: the ledger lock is held while they run.
type Ledger struct {
	mu      sync.Mutex
	st      state
	lastNow uint64
	height  uint64

	clock   Clock
	settler Settler
	sinks   []EventSink
}

func New(cfg model.Config, clock Clock, settler Settler, sinks ...EventSink) (*Ledger, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if clock == nil || settler == nil {
		return nil, fmt.Errorf("%w: clock and settler are required", ErrInvalidConfig)
	}
	return &Ledger{
		st: state{
			cfg:            cfg,
			projects:       make(map[uint64]*model.Project),
			rosters:        make(map[uint64]*roster),
			refunds:        make(map[common.Address]uint256.Int),
			listings:       make(map[common.Hash]*model.Listing),
			sellerEarnings: make(map[common.Hash]uint256.Int),
		},
		clock:   clock,
		settler: settler,
		sinks:   sinks,
	}, nil
}

// AddSink registers an additional event sink.
func (l *Ledger) AddSink(sink EventSink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, sink)
}

// txn is the context of one operation.
type txn struct {
	st        *state
	j         journal
	cfg       model.Config
	now       uint64
	msg       model.Msg
	transfers []model.Transfer
	logs      []*types.Log
	emitErr   error
}

func (l *Ledger) execute(ctx context.Context, op string, msg model.Msg, fn func(tx *txn) error) (err error) {
	if InCall(ctx) {
		metrics.ObserveOperation(op, ErrReentrantCall)
		return ErrReentrantCall
	}
	start := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	defer func() {
		metrics.ObserveOperation(op, err)
		metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if err != nil {
			logrus.WithFields(logrus.Fields{"op": op, "sender": msg.Sender.Hex()}).Warnf("operation rejected: %v", err)
		}
	}()

	now, err := l.clock.Now(ctx)
	if err != nil {
		return fmt.Errorf("read clock: %w", err)
	}
	if now < l.lastNow {
		now = l.lastNow
	}

	tx := &txn{
		st:  &l.st,
		cfg: l.st.cfg,
		now: now,
		msg: msg,
	}

	if value := msg.Amount(); !value.IsZero() {
		tx.transfers = append(tx.transfers, model.Transfer{From: msg.Sender, To: tx.cfg.Address, Amount: *value})
		if err := tx.addCustody(value); err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		tx.j.revert()
		return err
	}
	if tx.emitErr != nil {
		tx.j.revert()
		return tx.emitErr
	}

	if len(tx.transfers) > 0 {
		if err := l.settler.Settle(context.WithValue(ctx, callKey{}, op), tx.transfers); err != nil {
			tx.j.revert()
			return fmt.Errorf("%w: %w", ErrSettlement, err)
		}
	}

	l.lastNow = now
	l.height++
	receipt := &model.Receipt{
		Height:    l.height,
		Op:        op,
		Sender:    msg.Sender,
		Timestamp: now,
		Logs:      tx.logs,
	}
	for i, log := range tx.logs {
		log.BlockNumber = l.height
		log.Index = uint(i)
	}
	for _, sink := range l.sinks {
		sink.Emit(receipt)
	}
	metrics.SetCustody(&l.st.custody)

	logrus.WithFields(logrus.Fields{
		"op":        op,
		"height":    l.height,
		"sender":    msg.Sender.Hex(),
		"changes":   tx.j.length(),
		"transfers": len(tx.transfers),
		"events":    len(tx.logs),
	}).Info("operation committed")
	return nil
}

// pay queues a payout from the ledger's custody.
func (tx *txn) pay(to common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if tx.st.custody.Lt(amount) {
		return fmt.Errorf("%w: custody below payout", ErrArithmeticOverflow)
	}
	snapshot(&tx.j, &tx.st.custody)
	tx.st.custody.Sub(&tx.st.custody, amount)
	tx.transfers = append(tx.transfers, model.Transfer{From: tx.cfg.Address, To: to, Amount: *amount})
	return nil
}

func (tx *txn) addCustody(amount *uint256.Int) error {
	sum, err := add(&tx.st.custody, amount)
	if err != nil {
		return err
	}
	snapshot(&tx.j, &tx.st.custody)
	tx.st.custody = *sum
	return nil
}

// emit queues an event log; it is published only if the operation commits.
func (tx *txn) emit(name string, topics []common.Hash, args ...interface{}) {
	if tx.emitErr != nil {
		return
	}
	log, err := model.PackLog(tx.cfg.Address, name, topics, args...)
	if err != nil {
		tx.emitErr = err
		return
	}
	tx.logs = append(tx.logs, log)
}

func (tx *txn) project(id uint64) (*model.Project, error) {
	p, ok := tx.st.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	snapshot(&tx.j, p)
	return p, nil
}

func (tx *txn) roster(projectID uint64) *roster {
	r, ok := tx.st.rosters[projectID]
	if !ok {
		r = newRoster()
		put(&tx.j, tx.st.rosters, projectID, r)
	}
	return r
}

// investor returns the journaled position of addr, if it is on the roster.
func (tx *txn) investor(projectID uint64, addr common.Address) (*model.Investor, bool) {
	inv, ok := tx.roster(projectID).get(addr)
	if !ok {
		return nil, false
	}
	snapshot(&tx.j, inv)
	return inv, true
}

// enroll returns the position of addr, adding a fresh one to the roster if
// addr has none.
func (tx *txn) enroll(projectID uint64, addr common.Address) *model.Investor {
	if inv, ok := tx.investor(projectID, addr); ok {
		return inv
	}
	inv := &model.Investor{Address: addr}
	if p, ok := tx.st.projects[projectID]; ok {
		// A new position has nothing left to withdraw from past installments.
		inv.SettledThrough = p.InstallmentsProcessed
	}
	tx.roster(projectID).add(&tx.j, inv)
	return inv
}

func (tx *txn) listing(ref common.Hash) (*model.Listing, error) {
	l, ok := tx.st.listings[ref]
	if !ok || !l.Exists() {
		return nil, ErrListingNotFound
	}
	snapshot(&tx.j, l)
	return l, nil
}

func (tx *txn) creditPlatform(amount *uint256.Int) error {
	sum, err := add(&tx.st.platform, amount)
	if err != nil {
		return err
	}
	snapshot(&tx.j, &tx.st.platform)
	tx.st.platform = *sum
	return nil
}

func (tx *txn) creditRefund(addr common.Address, amount *uint256.Int) error {
	prev := tx.st.refunds[addr]
	sum, err := add(&prev, amount)
	if err != nil {
		return err
	}
	put(&tx.j, tx.st.refunds, addr, *sum)
	return nil
}

func (tx *txn) requireAdmin() error {
	if tx.msg.Sender != tx.cfg.Admin {
		return ErrUnauthorized
	}
	return nil
}

func (tx *txn) requireAdminOrDefender() error {
	if tx.msg.Sender != tx.cfg.Admin && (tx.cfg.Defender == (common.Address{}) || tx.msg.Sender != tx.cfg.Defender) {
		return ErrUnauthorized
	}
	return nil
}
