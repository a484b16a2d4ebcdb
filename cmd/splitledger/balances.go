package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/warp/splitledger/ledger"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	oweStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	owedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func balancesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balances <party>",
		Short: "Print a party's balances",
		Long: `Show who owes the party and whom the party owes, across every group and
direct relationship, or within one group with --group.`,
		Args: cobra.ExactArgs(1),
		RunE: runBalances,
	}
	cmd.Flags().String("group", "", "restrict to one group")
	return cmd
}

func runBalances(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	party := ledger.PartyID(args[0])
	group, _ := cmd.Flags().GetString("group")

	st, err := openStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc := ledger.NewService(st, st)
	out := cmd.OutOrStdout()

	if group != "" {
		scope := ledger.GroupScope(ledger.GroupID(group))
		sheet, err := svc.GetBalances(ctx, scope, party)
		if err != nil {
			return fmt.Errorf("failed to compute balances: %w", err)
		}
		rows := make([]ledger.CounterpartyBalance, 0, len(sheet.Counterparties))
		for _, p := range sheet.Parties() {
			rows = append(rows, ledger.CounterpartyBalance{Party: p, Amount: sheet.Of(p)})
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s in %s", party, group)))
		return printBalances(out, rows, len(sheet.Warnings))
	}

	overall, err := svc.GetOverallBalances(ctx, party)
	if err != nil {
		return fmt.Errorf("failed to compute balances: %w", err)
	}
	fmt.Fprintln(out, titleStyle.Render(string(party)))
	fmt.Fprintf(out, "You owe %s, you are owed %s, net %s\n\n",
		oweStyle.Render(overall.YouOwe.StringFixed(2)),
		owedStyle.Render(overall.YouAreOwed.StringFixed(2)),
		signed(overall.Net))
	return printBalances(out, overall.Counterparties, len(overall.Warnings))
}

func printBalances(out io.Writer, rows []ledger.CounterpartyBalance, warnings int) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("All settled up."))
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n",
		headerStyle.Render("Counterparty"),
		headerStyle.Render("Direction"),
		headerStyle.Render("Amount")); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n",
		strings.Repeat("─", 12),
		strings.Repeat("─", 12),
		strings.Repeat("─", 10)); err != nil {
		return fmt.Errorf("failed to write separator: %w", err)
	}

	for _, r := range rows {
		direction := "owes you"
		if r.Amount.IsNegative() {
			direction = "you owe"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", r.Party, direction, signed(r.Amount)); err != nil {
			return fmt.Errorf("failed to write balance row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if warnings > 0 {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("\n%d corrupt entries were skipped, see the server log.", warnings)))
	}
	return nil
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return oweStyle.Render(d.StringFixed(2))
	}
	return owedStyle.Render(d.StringFixed(2))
}
