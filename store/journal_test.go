package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"crowdfund-ledger/chain"
	"crowdfund-ledger/core"
	"crowdfund-ledger/core/model"
)

const start = uint64(1_700_000_000)

var (
	ledgerAddr = common.HexToAddress("0x1000")
	admin      = common.HexToAddress("0xad")
	creator    = common.HexToAddress("0xc1")
	alice      = common.HexToAddress("0xa1")
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func testConfig() model.Config {
	ether := model.MustParseEther
	return model.Config{
		Address: ledgerAddr,
		Admin:   admin,
		Ranges: model.Ranges{
			GoalMin:          *ether("0.1"),
			GoalMax:          *ether("1000"),
			MinInvestFloor:   *ether("0.01"),
			MaxInvestCeiling: *ether("500"),
			DurationMinDays:  1,
			DurationMaxDays:  365,
			InterestMax:      5000,
			TermMin:          1,
			TermMax:          60,
		},
		Market: model.Market{RevertTimeout: 7 * model.Day},
	}
}

// runLedger commits a project creation and one investment into j.
func runLedger(t *testing.T, j *Journal) {
	t.Helper()
	bank := chain.NewBank()
	if err := bank.Deposit(alice, model.MustParseEther("10")); err != nil {
		t.Fatal(err)
	}
	l, err := core.New(testConfig(), chain.NewManualClock(start), bank, j)
	if err != nil {
		t.Fatalf("core.New() error: %v", err)
	}
	ctx := context.Background()
	id, err := l.CreateProject(ctx, model.Msg{Sender: admin}, model.ProjectParams{
		Creator:          creator,
		Name:             "Solar farm",
		DealType:         model.DealEquity,
		AvailableShares:  1000,
		EndDate:          start + 10*model.Day,
		MinInvest:        model.MustParseEther("0.01"),
		MaxInvest:        model.MustParseEther("10"),
		RequestedFunding: model.MustParseEther("10"),
		IsFixed:          true,
	})
	if err != nil {
		t.Fatalf("CreateProject() error: %v", err)
	}
	err = l.Invest(ctx, model.Msg{Sender: alice, Value: model.MustParseEther("1")}, id, 100, false, 7)
	if err != nil {
		t.Fatalf("Invest() error: %v", err)
	}
}

func TestJournalPersistsLedgerEvents(t *testing.T) {
	j := newTestJournal(t)
	runLedger(t, j)

	entries, err := j.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	created, made := entries[0], entries[1]
	if created.Event != model.EventProjectCreated || created.Op != "createProject" {
		t.Errorf("entry 0 = %s/%s, want createProject/%s", created.Op, created.Event, model.EventProjectCreated)
	}
	if created.Height != 1 || made.Height != 2 {
		t.Errorf("heights = %d, %d, want 1, 2", created.Height, made.Height)
	}
	if made.Sender != alice {
		t.Errorf("Sender = %s, want %s", made.Sender.Hex(), alice.Hex())
	}
	if made.Timestamp != start {
		t.Errorf("Timestamp = %d, want %d", made.Timestamp, start)
	}
	if got := made.Fields["amount"]; got != "1000000000000000000" {
		t.Errorf("amount = %q, want 1000000000000000000", got)
	}
	if got := made.Fields["investor"]; got != alice.Hex() {
		t.Errorf("investor = %q, want %s", got, alice.Hex())
	}
	if got := made.Fields["signatureTimestamp"]; got != "7" {
		t.Errorf("signatureTimestamp = %q, want 7", got)
	}
	if got := created.Fields["name"]; got != "Solar farm" {
		t.Errorf("name = %q, want Solar farm", got)
	}
	if made.ID == "" || made.ID == created.ID {
		t.Errorf("ids = %q, %q, want distinct non-empty", created.ID, made.ID)
	}

	// The stored topics and data decode back to the same event.
	ev, err := model.DecodeLog(&types.Log{Topics: made.Topics, Data: made.Data})
	if err != nil {
		t.Fatalf("DecodeLog() error: %v", err)
	}
	if ev.Name != model.EventInvestmentMade {
		t.Errorf("decoded = %s, want %s", ev.Name, model.EventInvestmentMade)
	}
	if shares := ev.Fields["shares"].(uint64); shares != 100 {
		t.Errorf("shares = %d, want 100", shares)
	}
}

func TestJournalListFilters(t *testing.T) {
	j := newTestJournal(t)
	runLedger(t, j)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{model.EventProjectCreated, model.EventInvestmentMade}},
		{"by op", Filter{Op: "invest"}, []string{model.EventInvestmentMade}},
		{"by event", Filter{Event: model.EventProjectCreated}, []string{model.EventProjectCreated}},
		{"from height", Filter{FromHeight: 2}, []string{model.EventInvestmentMade}},
		{"to height", Filter{ToHeight: 1}, []string{model.EventProjectCreated}},
		{"limit", Filter{Limit: 1}, []string{model.EventProjectCreated}},
		{"no match", Filter{Op: "buyShares"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := j.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error: %v", err)
			}
			if len(entries) != len(tt.want) {
				t.Fatalf("len(entries) = %d, want %d", len(entries), len(tt.want))
			}
			for i, e := range entries {
				if e.Event != tt.want[i] {
					t.Errorf("entries[%d] = %s, want %s", i, e.Event, tt.want[i])
				}
			}
		})
	}

	height, err := j.LatestHeight(ctx)
	if err != nil {
		t.Fatalf("LatestHeight() error: %v", err)
	}
	if height != 2 {
		t.Errorf("LatestHeight = %d, want 2", height)
	}
}

func TestJournalKeepsUndecodableLogs(t *testing.T) {
	j := newTestJournal(t)
	j.Emit(&model.Receipt{
		Height: 5,
		Op:     "external",
		Logs: []*types.Log{{
			Topics: []common.Hash{common.HexToHash("0x01")},
			Data:   []byte{0xde, 0xad},
		}},
	})

	entries, err := j.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if entries[0].Event != "unknown" {
		t.Errorf("Event = %s, want unknown", entries[0].Event)
	}
	if got := entries[0].Data.String(); got != "0xdead" {
		t.Errorf("Data = %s, want 0xdead", got)
	}
	if len(entries[0].Fields) != 0 {
		t.Errorf("Fields = %v, want empty", entries[0].Fields)
	}
}

func TestJournalEmptyReceiptsAndHeight(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	if height, err := j.LatestHeight(ctx); err != nil || height != 0 {
		t.Errorf("LatestHeight = %d, %v, want 0, nil", height, err)
	}
	j.Emit(&model.Receipt{Height: 1, Op: "setDefender"})
	entries, err := j.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("len(entries) = %d, want 0", len(entries))
	}
}

func TestJournalDuplicateHeightIsRejected(t *testing.T) {
	j := newTestJournal(t)
	log := &types.Log{Topics: []common.Hash{{}}}
	receipt := &model.Receipt{Height: 3, Op: "x", Logs: []*types.Log{log}}

	if err := j.write(receipt); err != nil {
		t.Fatalf("write() error: %v", err)
	}
	if err := j.write(receipt); err == nil {
		t.Error("second write() error = nil, want unique constraint error")
	}
	entries, _ := j.List(context.Background(), Filter{})
	if len(entries) != 1 {
		t.Errorf("len(entries) = %d, want 1", len(entries))
	}
}
