// Command settlectl talks to a settlewise server: it lists balances and
// suggested settlements, marks debts settled and requests payments.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"connectrpc.com/connect"
	"github.com/spf13/cobra"

	"github.com/mmynk/settlewise/internal/auth"
	"github.com/mmynk/settlewise/internal/models"
	"github.com/mmynk/settlewise/internal/service"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "settlectl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

type cli struct {
	addr    string
	token   string
	locale  string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "settlectl",
		Short:         "Inspect and settle group debts on a settlewise server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.addr, "addr", envOr("SETTLEWISE_ADDR", "http://localhost:8080"), "server base URL")
	flags.StringVar(&c.token, "token", os.Getenv("SETTLEWISE_TOKEN"), "bearer token")
	flags.StringVar(&c.locale, "locale", envOr("LOCALE", "en"), "locale for amounts")
	flags.DurationVar(&c.timeout, "timeout", 10*time.Second, "request timeout")

	root.AddCommand(
		c.groupsCmd(),
		c.balancesCmd(),
		c.settlementsCmd(),
		c.settleCmd(),
		c.requestCmd(),
		c.tokenCmd(),
	)
	return root
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), c.timeout)
}

func (c *cli) clientOptions() []connect.ClientOption {
	if c.token == "" {
		return nil
	}
	return []connect.ClientOption{connect.WithInterceptors(bearer(c.token))}
}

// bearer attaches token to every outgoing request.
func bearer(token string) connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			req.Header().Set("Authorization", "Bearer "+token)
			return next(ctx, req)
		}
	}
}

func (c *cli) groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			client := service.NewGroupServiceClient(http.DefaultClient, c.addr, c.clientOptions()...)
			resp, err := client.ListGroups(ctx, connect.NewRequest(&service.ListGroupsRequest{}))
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tMEMBERS")
			for _, g := range resp.Msg.Groups {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", g.ID, g.Name, len(g.Members))
			}
			return tw.Flush()
		},
	}
}

func (c *cli) balancesCmd() *cobra.Command {
	var (
		groupID string
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "balances",
		Short: "Show who owes whom",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			client := service.NewSettlementServiceClient(http.DefaultClient, c.addr, c.clientOptions()...)
			resp, err := client.GetBalances(ctx, connect.NewRequest(&service.GetBalancesRequest{
				GroupID:     groupID,
				Locale:      c.locale,
				IncludeZero: all,
			}))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Msg.Balances) == 0 {
				fmt.Fprintln(out, "All settled up.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "FROM\tTO\tAMOUNT\t")
			for _, b := range resp.Msg.Balances {
				fmt.Fprintf(tw, "%s\t%s\t%s\t\n", label(b.From), label(b.To), b.Display)
			}
			fmt.Fprintf(tw, "\ttotal\t%s\t\n", resp.Msg.TotalOwed.FormatLocale(c.locale))
			if err := tw.Flush(); err != nil {
				return err
			}
			printDiagnostics(out, len(resp.Msg.Diagnostics))
			return nil
		},
	}
	cmd.Flags().StringVarP(&groupID, "group", "g", "", "group ID")
	cmd.Flags().BoolVar(&all, "all", false, "include pairs that owe nothing")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

func (c *cli) settlementsCmd() *cobra.Command {
	var groupID string
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "Show suggested payments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			client := service.NewSettlementServiceClient(http.DefaultClient, c.addr, c.clientOptions()...)
			resp, err := client.GetSettlements(ctx, connect.NewRequest(&service.GetSettlementsRequest{
				GroupID: groupID,
				Locale:  c.locale,
			}))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Msg.Settlements) == 0 {
				fmt.Fprintln(out, "Nothing to settle.")
				return nil
			}
			for _, s := range resp.Msg.Settlements {
				switch {
				case s.Status == models.StatusSettled:
					fmt.Fprintf(out, "%s paid %s %s (settled)\n", label(s.From), label(s.To), s.Display)
				case s.Persisted:
					fmt.Fprintf(out, "%s pays %s %s (requested)\n", label(s.From), label(s.To), s.Display)
				default:
					fmt.Fprintf(out, "%s pays %s %s\n", label(s.From), label(s.To), s.Display)
				}
			}
			printDiagnostics(out, len(resp.Msg.Diagnostics))
			return nil
		},
	}
	cmd.Flags().StringVarP(&groupID, "group", "g", "", "group ID")
	_ = cmd.MarkFlagRequired("group")
	return cmd
}

type pairFlags struct {
	groupID, from, to string
}

func (p *pairFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.groupID, "group", "g", "", "group ID")
	cmd.Flags().StringVar(&p.from, "from", "", "member who owes")
	cmd.Flags().StringVar(&p.to, "to", "", "member who is owed")
	for _, name := range []string{"group", "from", "to"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

func (c *cli) settleCmd() *cobra.Command {
	var (
		p         pairFlags
		settledBy string
	)
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Mark a debt as settled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			client := service.NewSettlementServiceClient(http.DefaultClient, c.addr, c.clientOptions()...)
			resp, err := client.MarkSettled(ctx, connect.NewRequest(&service.MarkSettledRequest{
				GroupID:   p.groupID,
				From:      p.from,
				To:        p.to,
				SettledBy: settledBy,
			}))
			if err != nil {
				return err
			}

			r := resp.Msg.Record
			fmt.Fprintf(cmd.OutOrStdout(), "Settled: %s paid %s %s (record %s)\n", r.From, r.To, r.Amount.FormatLocale(c.locale), r.ID)
			return nil
		},
	}
	p.register(cmd)
	cmd.Flags().StringVar(&settledBy, "by", "", "member confirming the payment, when not using a token")
	return cmd
}

func (c *cli) requestCmd() *cobra.Command {
	var p pairFlags
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request payment of a debt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()

			client := service.NewSettlementServiceClient(http.DefaultClient, c.addr, c.clientOptions()...)
			resp, err := client.RequestPayment(ctx, connect.NewRequest(&service.RequestPaymentRequest{
				GroupID: p.groupID,
				From:    p.from,
				To:      p.to,
			}))
			if err != nil {
				return err
			}

			r := resp.Msg.Record
			fmt.Fprintf(cmd.OutOrStdout(), "Requested: %s owes %s %s (record %s)\n", r.From, r.To, r.Amount.FormatLocale(c.locale), r.ID)
			return nil
		},
	}
	p.register(cmd)
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var (
		secret, memberID, name string
		ttl                    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			token, err := auth.NewJWTManager(secret, ttl).Generate(memberID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "signing secret")
	cmd.Flags().StringVar(&memberID, "member", "", "member ID")
	cmd.Flags().StringVar(&name, "name", "", "member display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("member")
	return cmd
}

func label(m models.Member) string {
	if m.Name == "" {
		return m.ID
	}
	return m.Name
}

func printDiagnostics(w io.Writer, n int) {
	if n > 0 {
		fmt.Fprintf(w, "warning: %d expense(s) or record(s) were skipped, see server logs\n", n)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
