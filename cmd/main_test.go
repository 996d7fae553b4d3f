package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"crowdfund-ledger/config"
	"crowdfund-ledger/core/model"
)

func TestSetupLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)
	tests := []struct {
		name    string
		lc      config.LogConfig
		want    logrus.Level
		wantErr bool
	}{
		{"text", config.LogConfig{Level: "debug", Format: "text"}, logrus.DebugLevel, false},
		{"json", config.LogConfig{Level: "warn", Format: "json"}, logrus.WarnLevel, false},
		{"default format", config.LogConfig{Level: "info"}, logrus.InfoLevel, false},
		{"bad level", config.LogConfig{Level: "loud"}, 0, true},
		{"bad format", config.LogConfig{Level: "info", Format: "xml"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := setupLogging(tt.lc)
			if (err != nil) != tt.wantErr {
				t.Fatalf("setupLogging() err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logrus.GetLevel() != tt.want {
				t.Errorf("level = %v, want %v", logrus.GetLevel(), tt.want)
			}
		})
	}
}

func TestNewBank(t *testing.T) {
	alice := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bank, err := newBank(config.BankConfig{Accounts: []config.AccountConfig{
		{Address: alice.Hex(), Balance: "1.5"},
	}})
	if err != nil {
		t.Fatalf("newBank: %v", err)
	}
	got := bank.BalanceOf(alice)
	if want := model.MustParseEther("1.5"); got.Cmp(want) != 0 {
		t.Errorf("balance = %s, want %s", model.FormatWei(&got), model.FormatWei(want))
	}

	if _, err := newBank(config.BankConfig{Accounts: []config.AccountConfig{{Balance: "1"}}}); err == nil {
		t.Error("newBank without address should fail")
	}
}

func TestRefCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"ref", "listing-1"})
	defer rootCmd.SetArgs(nil)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ref: %v", err)
	}
	if got, want := strings.TrimSpace(out.String()), model.ListingRef("listing-1").Hex(); got != want {
		t.Errorf("ref = %s, want %s", got, want)
	}
}
