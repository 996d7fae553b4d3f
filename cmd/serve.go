package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"crowdfund-ledger/api"
	"crowdfund-ledger/chain"
	"crowdfund-ledger/config"
	"crowdfund-ledger/core"
	"crowdfund-ledger/store"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledgerCfg, err := cfg.LedgerModel()
	if err != nil {
		return err
	}

	var clock core.Clock = chain.SystemClock{}
	var wg sync.WaitGroup
	if cfg.Chain.URL != "" {
		bc, err := chain.NewBlockchainClient(cfg.Chain.URL)
		if err != nil {
			return fmt.Errorf("dial chain: %w", err)
		}
		defer bc.Close()
		clock = bc
		wg.Add(1)
		go watchChain(ctx, bc, &wg)
	}

	bank, err := newBank(cfg.Bank)
	if err != nil {
		return err
	}

	var sinks []core.EventSink
	var journal *store.Journal
	if cfg.DB.Path != "" {
		journal, err = store.Open(cfg.DB.Path)
		if err != nil {
			return err
		}
		defer journal.Close()
		sinks = append(sinks, journal)
	}

	ledger, err := core.New(ledgerCfg, clock, bank, sinks...)
	if err != nil {
		return err
	}

	srv := api.NewServer(ledger)
	srv.EnableMetrics()
	srv.SetBalances(bank)
	if journal != nil {
		srv.SetJournal(journal)
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logrus.Infof("ledger API listening on %s (admin %s)", cfg.Server.Addr, ledgerCfg.Admin.Hex())
	return serveHTTP(ctx, stop, httpSrv, &wg)
}

// serveHTTP runs srv until it fails or ctx is done. Either way stop cancels
// the background workers and serveHTTP waits for them before returning.
func serveHTTP(ctx context.Context, stop context.CancelFunc, srv *http.Server, wg *sync.WaitGroup) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var err error
	select {
	case err = <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		logrus.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Errorf("http shutdown err: %v", err)
		}
	}
	stop()
	wg.Wait()
	return err
}

func newBank(bc config.BankConfig) (*chain.Bank, error) {
	balances, err := bc.Balances()
	if err != nil {
		return nil, err
	}
	bank := chain.NewBank()
	for addr, balance := range balances {
		if err := bank.Deposit(addr, balance); err != nil {
			return nil, err
		}
		logrus.Debugf("bank account %s opened", addr.Hex())
	}
	return bank, nil
}

// watchChain logs the head of the clock chain until ctx is done.
func watchChain(ctx context.Context, bc *chain.BlockchainClient, wg *sync.WaitGroup) {
	defer wg.Done()
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		number, err := bc.GetLatestBlockNumber(ctx)
		if err != nil {
			logrus.Errorf("GetLatestBlockNumber err: %v", err)
			continue
		}
		if number != last {
			logrus.Debugf("latestChainNumber: %d", number)
			last = number
		}
	}
}
