package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/fatih/color"

	"vault-zap/pkg/classifier"
	"vault-zap/pkg/client"
	"vault-zap/pkg/solver"
	"vault-zap/pkg/types"
)

// transfer describes a prepared deposit or withdraw for display
type transfer struct {
	Action   solver.Action
	Solver   classifier.Kind
	From     string
	To       string
	Expected string
	Approved bool
	Safe     bool
}

var solverLabels = map[classifier.Kind]string{
	classifier.Vanilla: "Direct vault call",
	classifier.Portals: "Swap through Portals",
	classifier.Lifi:    "Bridge through LiFi",
}

// expectedOutput formats the quoted amount the transfer ends with
func expectedOutput(snap solver.Snapshot, outDecimals int32, outSymbol string) string {
	switch q := snap.Quote.(type) {
	case *client.PortalsEstimate:
		if q == nil {
			return ""
		}
		decimals := q.OutputTokenDecimals
		if decimals == 0 {
			decimals = outDecimals
		}
		return formatRaw(q.OutputAmount, decimals, outSymbol)
	case *client.LiFiStep:
		if q == nil {
			return ""
		}
		return formatRaw(q.Estimate.ToAmount, outDecimals, outSymbol)
	}
	return ""
}

func formatRaw(raw string, decimals int32, symbol string) string {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s %s", types.ToNormalizedBN(value, decimals).Display, symbol)
}

func displayTransfer(t transfer) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     %s", strings.ToUpper(string(t.Action)))
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Route:             %s\n", color.CyanString(solverLabels[t.Solver]))
	fmt.Printf("  From:              %s\n", color.YellowString(t.From))
	fmt.Printf("  To:                %s\n", color.YellowString(t.To))
	if t.Expected != "" {
		fmt.Printf("  Expected:          ~%s\n", color.GreenString(t.Expected))
	}
	if t.Safe {
		fmt.Printf("  Wallet:            %s\n", color.MagentaString("Safe (approve and %s are batched)", t.Action))
	} else if t.Approved {
		fmt.Printf("  Approval:          %s\n", color.GreenString("not needed"))
	} else {
		fmt.Printf("  Approval:          %s\n", color.YellowString("required"))
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

// quoteReady reports whether the active solver can execute
func quoteReady(kind classifier.Kind, snap solver.Snapshot) bool {
	if kind == classifier.Vanilla {
		return true
	}
	switch q := snap.Quote.(type) {
	case *client.PortalsEstimate:
		return q != nil
	case *client.LiFiStep:
		return q != nil
	}
	return false
}

// execute runs the approve then deposit/withdraw sequence, or the single
// batch for Safe wallets
func execute(ctx context.Context, sess *session, action solver.Action, jsonOutput bool) error {
	sel := sess.selector

	if sess.cfg.IsSafe() {
		var err error
		withSpinner(jsonOutput, "Proposing Safe batch...", func() {
			err = sel.OnExecuteForGnosis(ctx, nil)
		})
		return err
	}

	return solver.Execute(ctx, sel, action, func(phase solver.Phase, fn func() error) error {
		suffix := fmt.Sprintf("Sending %s...", action)
		if phase == solver.PhaseApprove {
			suffix = "Approving..."
		}
		var err error
		withSpinner(jsonOutput, suffix, func() {
			err = fn()
		})
		return err
	})
}

// run prepares a transfer through the selector, asks for confirmation and executes it
func run(ctx context.Context, sess *session, t transfer, outDecimals int32, outSymbol string, jsonOutput, skipConfirm bool) error {
	sel := sess.selector

	withSpinner(jsonOutput, "Fetching quote...", func() {
		sel.Refresh(ctx)
	})

	snap := sel.Snapshot()
	t.Solver = sel.Kind()
	t.Expected = expectedOutput(snap, outDecimals, outSymbol)
	t.Approved = snap.IsApproved
	t.Safe = sess.cfg.IsSafe()

	if !quoteReady(t.Solver, snap) {
		return fmt.Errorf("no route found for this %s", t.Action)
	}

	if jsonOutput {
		data, _ := json.MarshalIndent(t, "", "  ")
		fmt.Println(string(data))
	} else {
		displayTransfer(t)
	}

	if !skipConfirm && !jsonOutput {
		if !confirm(fmt.Sprintf("Proceed with %s?", t.Action)) {
			fmt.Printf("\n%s cancelled.\n", capitalize(string(t.Action)))
			return nil
		}
	}

	if err := execute(ctx, sess, t.Action, jsonOutput); err != nil {
		return err
	}

	status := sel.Snapshot().DepositStatus
	if t.Action == solver.Withdraw {
		status = sel.Snapshot().WithdrawStatus
	}
	if jsonOutput {
		data, _ := json.MarshalIndent(map[string]string{"status": string(status)}, "", "  ")
		fmt.Println(string(data))
		return nil
	}

	switch {
	case t.Safe:
		color.Green("\n✓ Batch proposed to the Safe. Confirm it with the other owners.")
	case t.Solver == classifier.Lifi:
		color.Green("\n✓ Bridge transaction sent. Funds arrive once the bridge settles.")
	default:
		color.Green("\n✓ %s complete!", capitalize(string(t.Action)))
	}
	if t.Safe || t.Solver == classifier.Lifi {
		fmt.Println("\nFollow the settlement with:")
		color.Cyan("  vault-zap notifications watch\n")
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
