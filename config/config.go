// Package config loads the node configuration from a TOML or YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"crowdfund-ledger/core/model"
)

// EnvPrefix prefixes every environment override, e.g. CROWDFUND_SERVER_ADDR.
const EnvPrefix = "CROWDFUND_"

var ErrUnsupportedFormat = errors.New("unsupported config format")

type Config struct {
	Server ServerConfig `json:"server" toml:"server" yaml:"server" envPrefix:"SERVER_"`
	Log    LogConfig    `json:"log" toml:"log" yaml:"log" envPrefix:"LOG_"`
	DB     DBConfig     `json:"db" toml:"db" yaml:"db" envPrefix:"DB_"`
	Chain  ChainConfig  `json:"chain" toml:"chain" yaml:"chain" envPrefix:"CHAIN_"`
	Ledger LedgerConfig `json:"ledger" toml:"ledger" yaml:"ledger" envPrefix:"LEDGER_"`
	Bank   BankConfig   `json:"bank" toml:"bank" yaml:"bank"`
}

type ServerConfig struct {
	Addr string `json:"addr" toml:"addr" yaml:"addr" env:"ADDR"`
}

type LogConfig struct {
	Level  string `json:"level" toml:"level" yaml:"level" env:"LEVEL"`
	Format string `json:"format" toml:"format" yaml:"format" env:"FORMAT"`
}

type DBConfig struct {
	// Path of the sqlite event journal; empty disables the journal.
	Path string `json:"path" toml:"path" yaml:"path" env:"PATH"`
}

type ChainConfig struct {
	// URL of an EVM node used as clock. Empty means the system clock.
	URL string `json:"url" toml:"url" yaml:"url" env:"URL"`
}

// BankConfig seeds the in-memory bank with opening balances.
type BankConfig struct {
	Accounts []AccountConfig `json:"accounts,omitempty" toml:"accounts,omitempty" yaml:"accounts,omitempty"`
}

type AccountConfig struct {
	Address string `json:"address" toml:"address" yaml:"address"`
	Balance string `json:"balance" toml:"balance" yaml:"balance"`
}

// Balances parses the opening balances, in wei.
func (b BankConfig) Balances() (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int, len(b.Accounts))
	for i, acc := range b.Accounts {
		field := fmt.Sprintf("bank.accounts[%d]", i)
		addr, err := parseAddress(field+".address", acc.Address)
		if err != nil {
			return nil, err
		}
		if addr == (common.Address{}) {
			return nil, fmt.Errorf("%s.address: required", field)
		}
		balance := new(uint256.Int)
		if err := parseEther(field+".balance", acc.Balance, balance); err != nil {
			return nil, err
		}
		out[addr] = balance
	}
	return out, nil
}

// LedgerConfig mirrors model.Config with amounts written in ether.
type LedgerConfig struct {
	Address  string       `json:"address" toml:"address" yaml:"address" env:"ADDRESS"`
	Admin    string       `json:"admin" toml:"admin" yaml:"admin" env:"ADMIN"`
	Defender string       `json:"defender" toml:"defender" yaml:"defender" env:"DEFENDER"`
	Ranges   RangesConfig `json:"ranges" toml:"ranges" yaml:"ranges"`
	Fees     FeesConfig   `json:"fees" toml:"fees" yaml:"fees"`
	Market   MarketConfig `json:"market" toml:"market" yaml:"market" envPrefix:"MARKET_"`
}

type RangesConfig struct {
	GoalMin          string `json:"goal_min" toml:"goal_min" yaml:"goal_min"`
	GoalMax          string `json:"goal_max" toml:"goal_max" yaml:"goal_max"`
	MinInvestFloor   string `json:"min_invest_floor" toml:"min_invest_floor" yaml:"min_invest_floor"`
	MaxInvestCeiling string `json:"max_invest_ceiling" toml:"max_invest_ceiling" yaml:"max_invest_ceiling"`
	DurationMinDays  uint64 `json:"duration_min_days" toml:"duration_min_days" yaml:"duration_min_days"`
	DurationMaxDays  uint64 `json:"duration_max_days" toml:"duration_max_days" yaml:"duration_max_days"`
	InterestMin      uint16 `json:"interest_min_bps" toml:"interest_min_bps" yaml:"interest_min_bps"`
	InterestMax      uint16 `json:"interest_max_bps" toml:"interest_max_bps" yaml:"interest_max_bps"`
	TermMin          uint64 `json:"term_min" toml:"term_min" yaml:"term_min"`
	TermMax          uint64 `json:"term_max" toml:"term_max" yaml:"term_max"`
}

type FeeConfig struct {
	Bps  uint16 `json:"bps" toml:"bps" yaml:"bps"`
	Flat string `json:"flat" toml:"flat" yaml:"flat"`
}

type ProjectFeesConfig struct {
	Platform FeeConfig `json:"platform" toml:"platform" yaml:"platform"`
	Gateway  FeeConfig `json:"gateway" toml:"gateway" yaml:"gateway"`
}

type FeesConfig struct {
	Fixed                ProjectFeesConfig `json:"fixed" toml:"fixed" yaml:"fixed"`
	FlexibleSuccessful   ProjectFeesConfig `json:"flexible_successful" toml:"flexible_successful" yaml:"flexible_successful"`
	FlexibleUnsuccessful ProjectFeesConfig `json:"flexible_unsuccessful" toml:"flexible_unsuccessful" yaml:"flexible_unsuccessful"`
	Investor             FeeConfig         `json:"investor" toml:"investor" yaml:"investor"`
	BuyerProcessing      FeeConfig         `json:"buyer_processing" toml:"buyer_processing" yaml:"buyer_processing"`
	SellerProcessing     FeeConfig         `json:"seller_processing" toml:"seller_processing" yaml:"seller_processing"`
	SellerSuccess        FeeConfig         `json:"seller_success" toml:"seller_success" yaml:"seller_success"`
}

type MarketConfig struct {
	AutoApprove       bool   `json:"auto_approve" toml:"auto_approve" yaml:"auto_approve" env:"AUTO_APPROVE"`
	RevertTimeoutDays uint64 `json:"revert_timeout_days" toml:"revert_timeout_days" yaml:"revert_timeout_days" env:"REVERT_TIMEOUT_DAYS"`
}

// Default returns a configuration that only lacks the ledger roles.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Log:    LogConfig{Level: "info", Format: "text"},
		DB:     DBConfig{Path: "crowdfund.db"},
		Ledger: LedgerConfig{
			Address: "0x000000000000000000000000000000000000c0de",
			Ranges: RangesConfig{
				GoalMin:          "0.1",
				GoalMax:          "10000",
				MinInvestFloor:   "0.01",
				MaxInvestCeiling: "1000",
				DurationMinDays:  1,
				DurationMaxDays:  365,
				InterestMin:      0,
				InterestMax:      5000,
				TermMin:          1,
				TermMax:          120,
			},
			Fees: FeesConfig{
				Fixed:                ProjectFeesConfig{Platform: FeeConfig{Bps: 500}, Gateway: FeeConfig{Bps: 100}},
				FlexibleSuccessful:   ProjectFeesConfig{Platform: FeeConfig{Bps: 500}, Gateway: FeeConfig{Bps: 100}},
				FlexibleUnsuccessful: ProjectFeesConfig{Platform: FeeConfig{Bps: 800}, Gateway: FeeConfig{Bps: 100}},
				Investor:             FeeConfig{Bps: 100},
				BuyerProcessing:      FeeConfig{Bps: 200},
				SellerProcessing:     FeeConfig{Bps: 100},
			},
			Market: MarketConfig{RevertTimeoutDays: 30},
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := decode(path, raw, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func decode(path string, raw []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(raw), cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return nil
}

// Write renders cfg as TOML, or YAML when format is "yaml".
func Write(w io.Writer, cfg Config, format string) error {
	switch strings.ToLower(format) {
	case "", "toml":
		return toml.NewEncoder(w).Encode(cfg)
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// LedgerModel converts the ledger section to a model.Config. Structural checks
// (roles present, min <= max, bps bounds) are left to core.New.
func (c *Config) LedgerModel() (model.Config, error) {
	lc := &c.Ledger
	var cfg model.Config
	var err error

	if cfg.Address, err = parseAddress("ledger.address", lc.Address); err != nil {
		return cfg, err
	}
	if cfg.Admin, err = parseAddress("ledger.admin", lc.Admin); err != nil {
		return cfg, err
	}
	if cfg.Defender, err = parseAddress("ledger.defender", lc.Defender); err != nil {
		return cfg, err
	}
	if cfg.Ranges, err = lc.Ranges.Model(); err != nil {
		return cfg, err
	}
	if cfg.Fees, err = lc.Fees.Model(); err != nil {
		return cfg, err
	}
	cfg.Market = lc.Market.Model()
	return cfg, nil
}

func (r RangesConfig) Model() (model.Ranges, error) {
	out := model.Ranges{
		DurationMinDays: r.DurationMinDays,
		DurationMaxDays: r.DurationMaxDays,
		InterestMin:     r.InterestMin,
		InterestMax:     r.InterestMax,
		TermMin:         r.TermMin,
		TermMax:         r.TermMax,
	}
	amounts := []struct {
		name string
		src  string
		dst  *uint256.Int
	}{
		{"ranges.goal_min", r.GoalMin, &out.GoalMin},
		{"ranges.goal_max", r.GoalMax, &out.GoalMax},
		{"ranges.min_invest_floor", r.MinInvestFloor, &out.MinInvestFloor},
		{"ranges.max_invest_ceiling", r.MaxInvestCeiling, &out.MaxInvestCeiling},
	}
	for _, a := range amounts {
		if err := parseEther(a.name, a.src, a.dst); err != nil {
			return model.Ranges{}, err
		}
	}
	return out, nil
}

func (f FeesConfig) Model() (model.Fees, error) {
	var out model.Fees
	fees := []struct {
		name string
		src  FeeConfig
		dst  *model.Fee
	}{
		{"fees.fixed.platform", f.Fixed.Platform, &out.Fixed.Platform},
		{"fees.fixed.gateway", f.Fixed.Gateway, &out.Fixed.Gateway},
		{"fees.flexible_successful.platform", f.FlexibleSuccessful.Platform, &out.FlexibleSuccessful.Platform},
		{"fees.flexible_successful.gateway", f.FlexibleSuccessful.Gateway, &out.FlexibleSuccessful.Gateway},
		{"fees.flexible_unsuccessful.platform", f.FlexibleUnsuccessful.Platform, &out.FlexibleUnsuccessful.Platform},
		{"fees.flexible_unsuccessful.gateway", f.FlexibleUnsuccessful.Gateway, &out.FlexibleUnsuccessful.Gateway},
		{"fees.investor", f.Investor, &out.Investor},
		{"fees.buyer_processing", f.BuyerProcessing, &out.BuyerProcessing},
		{"fees.seller_processing", f.SellerProcessing, &out.SellerProcessing},
		{"fees.seller_success", f.SellerSuccess, &out.SellerSuccess},
	}
	for _, fee := range fees {
		fee.dst.Bps = fee.src.Bps
		if err := parseEther(fee.name+".flat", fee.src.Flat, &fee.dst.Flat); err != nil {
			return model.Fees{}, err
		}
	}
	return out, nil
}

func (m MarketConfig) Model() model.Market {
	return model.Market{AutoApprove: m.AutoApprove, RevertTimeout: m.RevertTimeoutDays * model.Day}
}

// FromLedger renders a model.Config back into its file form.
func FromLedger(cfg model.Config) LedgerConfig {
	r := &cfg.Ranges
	fee := func(f model.Fee) FeeConfig {
		out := FeeConfig{Bps: f.Bps}
		if !f.Flat.IsZero() {
			out.Flat = model.FormatEther(&f.Flat)
		}
		return out
	}
	project := func(f model.ProjectFees) ProjectFeesConfig {
		return ProjectFeesConfig{Platform: fee(f.Platform), Gateway: fee(f.Gateway)}
	}
	return LedgerConfig{
		Address:  cfg.Address.Hex(),
		Admin:    cfg.Admin.Hex(),
		Defender: cfg.Defender.Hex(),
		Ranges: RangesConfig{
			GoalMin:          model.FormatEther(&r.GoalMin),
			GoalMax:          model.FormatEther(&r.GoalMax),
			MinInvestFloor:   model.FormatEther(&r.MinInvestFloor),
			MaxInvestCeiling: model.FormatEther(&r.MaxInvestCeiling),
			DurationMinDays:  r.DurationMinDays,
			DurationMaxDays:  r.DurationMaxDays,
			InterestMin:      r.InterestMin,
			InterestMax:      r.InterestMax,
			TermMin:          r.TermMin,
			TermMax:          r.TermMax,
		},
		Fees: FeesConfig{
			Fixed:                project(cfg.Fees.Fixed),
			FlexibleSuccessful:   project(cfg.Fees.FlexibleSuccessful),
			FlexibleUnsuccessful: project(cfg.Fees.FlexibleUnsuccessful),
			Investor:             fee(cfg.Fees.Investor),
			BuyerProcessing:      fee(cfg.Fees.BuyerProcessing),
			SellerProcessing:     fee(cfg.Fees.SellerProcessing),
			SellerSuccess:        fee(cfg.Fees.SellerSuccess),
		},
		Market: MarketConfig{
			AutoApprove:       cfg.Market.AutoApprove,
			RevertTimeoutDays: cfg.Market.RevertTimeout / model.Day,
		},
	}
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// parseEther reads an ether amount into dst; an empty value is zero.
func parseEther(field, s string, dst *uint256.Int) error {
	if strings.TrimSpace(s) == "" {
		dst.Clear()
		return nil
	}
	v, err := model.ParseEther(s)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	dst.Set(v)
	return nil
}
