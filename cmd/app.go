package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"vault-zap/config"
	"vault-zap/pkg/chain"
	"vault-zap/pkg/client"
	"vault-zap/pkg/ledger"
	"vault-zap/pkg/metrics"
	"vault-zap/pkg/solver"
)

// consoleAlerter prints user facing errors in red
type consoleAlerter struct{}

func (consoleAlerter) Error(message string) {
	color.Red("\n✗ %s\n", message)
}

// session is everything a deposit or withdraw needs
type session struct {
	cfg      *config.Config
	logger   zerolog.Logger
	wallet   *chain.Wallet
	ledger   *ledger.Ledger
	cache    *solver.AllowanceCache
	selector *solver.Selector
}

func (s *session) Close() {
	s.cache.Close()
	s.wallet.Close()
}

// pushMetrics hands the counters of this run to the Pushgateway, if one is
// configured. The process exits before any scrape could see them.
func (s *session) pushMetrics(command string) {
	if s.cfg.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HTTPTimeout)
	defer cancel()
	if err := metrics.Push(ctx, s.cfg.PushgatewayURL, command); err != nil {
		s.logger.Warn().Err(err).Str("url", s.cfg.PushgatewayURL).Msg("metrics not pushed")
	}
}

func openLedger(cfg *config.Config, logger zerolog.Logger) (*ledger.Ledger, error) {
	storage, err := ledger.NewStorage(cfg.NotificationsPath)
	if err != nil {
		return nil, err
	}
	return ledger.New(storage, logger), nil
}

// newSession connects the wallet and builds the three solvers behind a selector
func newSession(cmd *cobra.Command) (*session, error) {
	logger := newLogger(cmd)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireKey(); err != nil {
		return nil, err
	}

	wallet, err := chain.Dial(cfg.RPCURLs(), cfg.PrivateKey, logger)
	if err != nil {
		return nil, err
	}

	led, err := openLedger(cfg, logger)
	if err != nil {
		wallet.Close()
		return nil, err
	}

	cache, err := solver.NewAllowanceCache()
	if err != nil {
		wallet.Close()
		return nil, err
	}

	deps := solver.Deps{
		Wallet:         wallet,
		Permits:        chain.NewPermitSigner(wallet, wallet, logger),
		Portals:        client.NewPortalsClient(cfg.PortalsBaseURL, cfg.HTTPTimeout, logger),
		LiFi:           client.NewLiFiClient(cfg.LiFiBaseURL, cfg.LiFiIntegrator, cfg.HTTPTimeout, logger),
		Recorder:       led,
		Alerter:        consoleAlerter{},
		Stablecoins:    cfg,
		Routers:        cfg,
		Cache:          cache,
		Settings:       cfg.Settings(),
		Logger:         logger,
		ReceiptTimeout: cfg.ReceiptTimeout,
		PollInterval:   cfg.PollInterval,
	}
	if cfg.IsSafe() {
		wallet.UseSafe(*cfg.SafeAddress)
		deps.Batcher = client.NewSafeClient(*cfg.SafeAddress, cfg.SafeAPIURLs(), wallet, cfg.HTTPTimeout, logger)
	}

	return &session{
		cfg:      cfg,
		logger:   logger,
		wallet:   wallet,
		ledger:   led,
		cache:    cache,
		selector: solver.NewSelector(deps),
	}, nil
}

func newSpinner(suffix string) *spinner.Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	return s
}

// withSpinner runs fn behind a spinner unless output is JSON
func withSpinner(jsonOutput bool, suffix string, fn func()) {
	if jsonOutput {
		fn()
		return
	}
	s := newSpinner(suffix)
	s.Start()
	defer s.Stop()
	fn()
}

func confirm(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
