package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"stocksim/internal/client"
	"stocksim/pkg/backend"

	"github.com/shopspring/decimal"
)

const commandUsage = "[--tui] [buy|deposit|exchange|respond|auction|wallet|purchases|exchanges|auctions ...]"

func runCommand(ctx context.Context, c *client.Client, args []string, in io.Reader, out io.Writer) error {
	switch args[0] {
	case "buy":
		if len(args) != 3 {
			return usage("buy SYMBOL QTY")
		}
		qty, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return usage("buy SYMBOL QTY")
		}
		p, err := c.Trading.Buy(ctx, args[1], qty)
		if err != nil && c.Trading.CanRetryPurchase() && confirmRetry(in, out, err) {
			p, err = c.Trading.RetryPurchase(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "purchase %s: %d %s, total %s (%s)\n", p.ID, p.Quantity, p.Symbol, p.Total.StringFixed(2), p.Status)
		if p.PaymentURL != "" {
			fmt.Fprintln(out, "complete payment at", p.PaymentURL)
		}

	case "deposit":
		if len(args) != 2 {
			return usage("deposit AMOUNT")
		}
		amount, err := decimal.NewFromString(args[1])
		if err != nil {
			return usage("deposit AMOUNT")
		}
		w, err := c.Trading.Deposit(ctx, amount)
		if err != nil && c.Trading.CanRetryDeposit() && confirmRetry(in, out, err) {
			w, err = c.Trading.RetryDeposit(ctx)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "balance %s %s\n", w.Balance.StringFixed(2), w.Currency)

	case "exchange":
		if len(args) != 4 {
			return usage("exchange SYMBOL QTY GROUP")
		}
		qty, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return usage("exchange SYMBOL QTY GROUP")
		}
		x, err := c.Trading.ProposeExchange(ctx, backend.ExchangeRequest{Symbol: args[1], Quantity: qty, TargetGroup: args[3]})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "exchange %s proposed to %s (%s)\n", x.ID, x.TargetGroup, x.Status)

	case "respond":
		if len(args) != 3 || (args[2] != "accept" && args[2] != "reject") {
			return usage("respond EXCHANGE_ID accept|reject")
		}
		x, err := c.Backend.RespondExchange(ctx, args[1], args[2] == "accept")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "exchange %s %s\n", x.ID, x.Status)

	case "auction":
		if len(args) != 3 {
			return usage("auction SYMBOL QTY")
		}
		qty, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return usage("auction SYMBOL QTY")
		}
		a, err := c.Trading.Auction(ctx, args[1], qty)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "auction %s: %d %s (%s)\n", a.ID, a.Quantity, a.Symbol, a.Status)

	case "wallet":
		w, err := c.Backend.GetWallet(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "balance %s %s\n", w.Balance.StringFixed(2), w.Currency)

	case "purchases":
		list, err := c.Backend.ListPurchases(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSYMBOL\tQTY\tTOTAL\tSTATUS")
		for _, p := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", p.ID, p.Symbol, p.Quantity, p.Total.StringFixed(2), p.Status)
		}
		return tw.Flush()

	case "exchanges":
		list, err := c.Backend.ListExchanges(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSYMBOL\tQTY\tFROM\tTO\tSTATUS")
		for _, x := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", x.ID, x.Symbol, x.Quantity, x.OriginGroup, x.TargetGroup, x.Status)
		}
		return tw.Flush()

	case "auctions":
		list, err := c.Backend.ListAuctions(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSYMBOL\tQTY\tGROUP\tSTATUS")
		for _, a := range list {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", a.ID, a.Symbol, a.Quantity, a.GroupID, a.Status)
		}
		return tw.Flush()

	default:
		return usage(commandUsage)
	}
	return nil
}

// confirmRetry asks the user whether to send a failed request again.
func confirmRetry(in io.Reader, out io.Writer, err error) bool {
	fmt.Fprintf(out, "%s Retry once? [y/N] ", backend.Describe(err))
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

type usageError string

func (u usageError) Error() string { return "usage: client " + string(u) }

func usage(s string) error { return usageError(s) }
