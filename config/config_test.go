package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"crowdfund-ledger/core/model"
)

const tomlConfig = `
[server]
addr = ":9090"

[log]
level = "debug"
format = "json"

[chain]
url = "http://localhost:8545"

[ledger]
admin = "0x00000000000000000000000000000000000000ad"
defender = "0x00000000000000000000000000000000000000de"

[ledger.ranges]
goal_min = "1"
goal_max = "500"
term_max = 24

[ledger.fees.fixed.platform]
bps = 300
flat = "0.001"

[ledger.fees.seller_success]
bps = 50

[ledger.market]
auto_approve = true
revert_timeout_days = 7
`

const yamlConfig = `
server:
  addr: ":7070"
db:
  path: /var/lib/crowdfund/journal.db
ledger:
  admin: "0x00000000000000000000000000000000000000ad"
  fees:
    buyer_processing:
      bps: 250
      flat: "0.0005"
  market:
    revert_timeout_days: 14
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadTOML(t *testing.T) {
	cfg, err := Load(writeFile(t, "node.toml", tomlConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if cfg.Chain.URL != "http://localhost:8545" {
		t.Errorf("Chain.URL = %q", cfg.Chain.URL)
	}
	// Unset keys keep their defaults.
	if cfg.DB.Path != "crowdfund.db" {
		t.Errorf("DB.Path = %q, want crowdfund.db", cfg.DB.Path)
	}
	if cfg.Ledger.Ranges.TermMax != 24 || cfg.Ledger.Ranges.DurationMaxDays != 365 {
		t.Errorf("Ranges = %+v, want term_max 24 and default durations", cfg.Ledger.Ranges)
	}

	lc, err := cfg.LedgerModel()
	if err != nil {
		t.Fatalf("Ledger() error: %v", err)
	}
	if lc.Admin != common.HexToAddress("0xad") || lc.Defender != common.HexToAddress("0xde") {
		t.Errorf("roles = %s/%s, want 0xad/0xde", lc.Admin.Hex(), lc.Defender.Hex())
	}
	if got := model.FormatEther(&lc.Ranges.GoalMin); got != "1" {
		t.Errorf("GoalMin = %s, want 1", got)
	}
	if lc.Fees.Fixed.Platform.Bps != 300 {
		t.Errorf("Fixed.Platform.Bps = %d, want 300", lc.Fees.Fixed.Platform.Bps)
	}
	if got := model.FormatEther(&lc.Fees.Fixed.Platform.Flat); got != "0.001" {
		t.Errorf("Fixed.Platform.Flat = %s, want 0.001", got)
	}
	if lc.Fees.SellerSuccess.Bps != 50 {
		t.Errorf("SellerSuccess.Bps = %d, want 50", lc.Fees.SellerSuccess.Bps)
	}
	if !lc.Market.AutoApprove || lc.Market.RevertTimeout != 7*model.Day {
		t.Errorf("Market = %+v, want auto approve with 7 day timeout", lc.Market)
	}
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeFile(t, "node.yml", yamlConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %q, want :7070", cfg.Server.Addr)
	}
	if cfg.DB.Path != "/var/lib/crowdfund/journal.db" {
		t.Errorf("DB.Path = %q", cfg.DB.Path)
	}
	lc, err := cfg.LedgerModel()
	if err != nil {
		t.Fatalf("Ledger() error: %v", err)
	}
	if lc.Fees.BuyerProcessing.Bps != 250 {
		t.Errorf("BuyerProcessing.Bps = %d, want 250", lc.Fees.BuyerProcessing.Bps)
	}
	if got := model.FormatEther(&lc.Fees.BuyerProcessing.Flat); got != "0.0005" {
		t.Errorf("BuyerProcessing.Flat = %s, want 0.0005", got)
	}
	if lc.Market.RevertTimeout != 14*model.Day {
		t.Errorf("RevertTimeout = %d, want %d", lc.Market.RevertTimeout, 14*model.Day)
	}
	if lc.Defender != (common.Address{}) {
		t.Errorf("Defender = %s, want zero", lc.Defender.Hex())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CROWDFUND_SERVER_ADDR", ":6060")
	t.Setenv("CROWDFUND_LOG_LEVEL", "warn")
	t.Setenv("CROWDFUND_LEDGER_ADMIN", "0x00000000000000000000000000000000000000a1")
	t.Setenv("CROWDFUND_LEDGER_MARKET_AUTO_APPROVE", "true")

	cfg, err := Load(writeFile(t, "node.toml", tomlConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":6060" {
		t.Errorf("Server.Addr = %q, want :6060", cfg.Server.Addr)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want warn", cfg.Log.Level)
	}
	if cfg.Ledger.Admin != "0x00000000000000000000000000000000000000a1" {
		t.Errorf("Ledger.Admin = %q", cfg.Ledger.Admin)
	}
	if !cfg.Ledger.Market.AutoApprove {
		t.Error("Market.AutoApprove = false, want true")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Errorf("Server.Addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(writeFile(t, "node.json", "{}")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("json error = %v, want %v", err, ErrUnsupportedFormat)
	}
	if _, err := Load(writeFile(t, "bad.toml", "[server\naddr=")); err == nil {
		t.Error("malformed toml error = nil")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("missing file error = nil")
	}
}

func TestLedgerConversionErrors(t *testing.T) {
	tests := []struct {
		name  string
		mod   func(c *Config)
		field string
	}{
		{"bad admin", func(c *Config) { c.Ledger.Admin = "0x123" }, "ledger.admin"},
		{"bad address", func(c *Config) { c.Ledger.Address = "nope" }, "ledger.address"},
		{"bad goal", func(c *Config) { c.Ledger.Ranges.GoalMin = "one" }, "ranges.goal_min"},
		{"negative ceiling", func(c *Config) { c.Ledger.Ranges.MaxInvestCeiling = "-1" }, "ranges.max_invest_ceiling"},
		{"bad flat fee", func(c *Config) { c.Ledger.Fees.Investor.Flat = "0.1.2" }, "fees.investor.flat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mod(&cfg)
			_, err := cfg.LedgerModel()
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Ledger() error = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	want := Default()
	want.Ledger.Admin = "0x00000000000000000000000000000000000000ad"

	for _, format := range []string{"toml", "yaml"} {
		t.Run(format, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, want, format); err != nil {
				t.Fatalf("Write() error: %v", err)
			}
			var got Config
			if err := decode("node."+format, buf.Bytes(), &got); err != nil {
				t.Fatalf("decode() error: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip = %+v, want %+v", got, want)
			}
		})
	}

	if err := Write(&bytes.Buffer{}, want, "ini"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Write(ini) error = %v, want %v", err, ErrUnsupportedFormat)
	}
}

func TestFromLedgerRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Admin = "0x00000000000000000000000000000000000000Ad"
	cfg.Ledger.Defender = "0x00000000000000000000000000000000000000dE"
	cfg.Ledger.Fees.Investor.Flat = "0.25"

	lc, err := cfg.LedgerModel()
	if err != nil {
		t.Fatalf("Ledger() error: %v", err)
	}
	back := Config{Ledger: FromLedger(lc)}
	again, err := back.LedgerModel()
	if err != nil {
		t.Fatalf("Ledger() after FromLedger error: %v", err)
	}
	if again != lc {
		t.Errorf("round trip = %+v, want %+v", again, lc)
	}
	if back.Ledger.Fees.Investor.Flat != "0.25" {
		t.Errorf("Investor.Flat = %q, want 0.25", back.Ledger.Fees.Investor.Flat)
	}
	if back.Ledger.Ranges.GoalMax != "10000" {
		t.Errorf("GoalMax = %q, want 10000", back.Ledger.Ranges.GoalMax)
	}
}

func TestBankBalances(t *testing.T) {
	raw := `
[[bank.accounts]]
address = "0x00000000000000000000000000000000000000a1"
balance = "12.5"

[[bank.accounts]]
address = "0x00000000000000000000000000000000000000b0"
balance = "1"
`
	cfg, err := Load(writeFile(t, "bank.toml", raw))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	balances, err := cfg.Bank.Balances()
	if err != nil {
		t.Fatalf("Balances() error: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("len(balances) = %d, want 2", len(balances))
	}
	if got := model.FormatEther(balances[common.HexToAddress("0xa1")]); got != "12.5" {
		t.Errorf("balance = %s, want 12.5", got)
	}

	cfg.Bank.Accounts = append(cfg.Bank.Accounts, AccountConfig{Balance: "1"})
	if _, err := cfg.Bank.Balances(); err == nil || !strings.Contains(err.Error(), "bank.accounts[2].address") {
		t.Errorf("Balances() error = %v, want missing address", err)
	}
}
