package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"vault-zap/config"
	"vault-zap/pkg/client"
	"vault-zap/pkg/ledger"
	"vault-zap/pkg/types"
)

var (
	notificationsStatus string
	metricsAddr         string
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications",
	Aliases: []string{"notif", "n"},
	Short:   "Inspect and follow recorded deposits and withdrawals",
	Long: `Every swap, bridge and Safe batch is recorded in a local ledger. Bridge
transfers and Safe batches start pending and are resolved by the watcher.

Examples:
  vault-zap notifications list
  vault-zap notifications list --status pending
  vault-zap notifications view 3
  vault-zap notifications delete 3
  vault-zap notifications watch --metrics-addr :9090`,
}

var notificationsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded notifications",
	Args:    cobra.NoArgs,
	RunE:    runNotificationsList,
}

var notificationsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Show a notification",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotificationsView,
}

var notificationsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a notification and stop following it",
	Args:    cobra.ExactArgs(1),
	RunE:    runNotificationsDelete,
}

var notificationsWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll pending bridge transfers and Safe batches until they settle",
	Long: `Run the ledger watcher in the foreground. Pending LiFi transfers are polled
until the bridge reports DONE or FAILED, pending Safe batches until they are
executed or cancelled. Notifications added from another terminal are picked
up automatically.`,
	Args: cobra.NoArgs,
	RunE: runNotificationsWatch,
}

func init() {
	rootCmd.AddCommand(notificationsCmd)
	notificationsCmd.AddCommand(notificationsListCmd)
	notificationsCmd.AddCommand(notificationsViewCmd)
	notificationsCmd.AddCommand(notificationsDeleteCmd)
	notificationsCmd.AddCommand(notificationsWatchCmd)

	notificationsListCmd.Flags().StringVar(&notificationsStatus, "status", "", "Filter by status (pending, success, error)")
	notificationsWatchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
}

func loadLedger(cmd *cobra.Command) (*config.Config, *ledger.Ledger, error) {
	cmd.SilenceUsage = true
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	led, err := openLedger(cfg, newLogger(cmd))
	if err != nil {
		return nil, nil, err
	}
	return cfg, led, nil
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid notification id %q", arg)
	}
	return id, nil
}

func runNotificationsList(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	_, led, err := loadLedger(cmd)
	if err != nil {
		return err
	}

	var notifications []types.Notification
	for _, n := range led.List() {
		if notificationsStatus == "" || string(n.Status) == notificationsStatus {
			notifications = append(notifications, n)
		}
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(notifications, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if len(notifications) == 0 {
		color.Yellow("No notifications found.\n")
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 110))
	color.Green("                                             NOTIFICATIONS")
	fmt.Println(strings.Repeat("=", 110))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tTYPE\tFROM\tTO\tSTATUS\tFINISHED\tTX")
	fmt.Fprintln(w, strings.Repeat("-", 110))

	for _, n := range notifications {
		from := fmt.Sprintf("%s %s@%d", n.FromAmount, n.FromTokenName, n.FromChainID)
		to := fmt.Sprintf("%s@%d", n.ToTokenName, n.ToChainID)
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, n.Type, from, to, getStatusColor(n.Status), formatTime(n.TimeFinished), shortHash(txHashOf(n)))
	}

	w.Flush()
	fmt.Println("\n" + strings.Repeat("=", 110) + "\n")
	return nil
}

func runNotificationsView(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")
	_, led, err := loadLedger(cmd)
	if err != nil {
		return err
	}

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	n, err := led.Get(id)
	if err != nil {
		return err
	}

	if jsonOutput {
		output, _ := json.MarshalIndent(n, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      NOTIFICATION #%d", n.ID)
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Type:              %s\n", color.CyanString(string(n.Type)))
	fmt.Printf("  Status:            %s\n", getStatusColor(n.Status))
	fmt.Printf("  Wallet:            %s\n", n.From.Hex())
	fmt.Printf("  From:              %s %s (%s) on chain %d\n", n.FromAmount, n.FromTokenName, n.FromAddress.Hex(), n.FromChainID)
	fmt.Printf("  To:                %s (%s) on chain %d\n", n.ToTokenName, n.ToAddress.Hex(), n.ToChainID)
	if n.TxHash != "" {
		fmt.Printf("  Tx Hash:           %s\n", color.CyanString(n.TxHash))
	}
	if n.SafeTxHash != "" {
		fmt.Printf("  Safe Tx Hash:      %s\n", color.CyanString(n.SafeTxHash))
	}
	if n.BlockNumber > 0 {
		fmt.Printf("  Block:             %d\n", n.BlockNumber)
	}
	if n.TimeFinished > 0 {
		label := "Finished:"
		if n.Status == types.NotificationPending {
			label = "Expected by:"
		}
		fmt.Printf("  %-19s%s\n", label, formatTime(n.TimeFinished))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
	return nil
}

func runNotificationsDelete(cmd *cobra.Command, args []string) error {
	_, led, err := loadLedger(cmd)
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	if err := led.Delete(id); err != nil {
		return err
	}
	printSuccess(color.GreenString("✓ Notification %d has been deleted.", id))
	return nil
}

func runNotificationsWatch(cmd *cobra.Command, args []string) error {
	cfg, led, err := loadLedger(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	var batches ledger.BatchTracker
	if cfg.IsSafe() {
		batches = client.NewSafeClient(*cfg.SafeAddress, cfg.SafeAPIURLs(), nil, cfg.HTTPTimeout, logger)
	}
	bridge := client.NewLiFiClient(cfg.LiFiBaseURL, cfg.LiFiIntegrator, cfg.HTTPTimeout, logger)

	watcher := ledger.NewWatcher(led, bridge, batches, ledger.WatcherConfig{
		PollInterval: cfg.PollInterval,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var server *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server = &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	pending := len(led.Pending())
	fmt.Println(strings.Repeat("=", 70))
	color.Green("\nStarting notification watcher...")
	color.Cyan("• %d pending notification(s)", pending)
	color.Cyan("• Polling every %s", cfg.PollInterval)
	color.Magenta("• New deposits from other terminals are picked up automatically")
	if server != nil {
		color.Cyan("• Metrics on http://%s/metrics", metricsAddr)
	}
	color.Yellow("• Press Ctrl+C to stop gracefully\n")
	fmt.Println(strings.Repeat("=", 70) + "\n")

	if err := watcher.Start(ctx); err != nil {
		if server != nil {
			_ = server.Close()
		}
		return err
	}

	<-ctx.Done()

	color.Yellow("\nReceived shutdown signal. Stopping watcher gracefully...")
	watcher.Stop()
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	color.Green("\n✓ Watcher stopped.")
	return nil
}

func getStatusColor(status types.NotificationStatus) string {
	switch status {
	case types.NotificationSuccess:
		return color.GreenString(string(status))
	case types.NotificationPending:
		return color.YellowString(string(status))
	case types.NotificationError:
		return color.RedString(string(status))
	default:
		return string(status)
	}
}

func txHashOf(n types.Notification) string {
	if n.TxHash != "" {
		return n.TxHash
	}
	return n.SafeTxHash
}

func shortHash(hash string) string {
	if len(hash) <= 14 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-6:]
}

func formatTime(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).Format("2006-01-02 15:04:05")
}
