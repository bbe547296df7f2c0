package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/plans"
	"github.com/therealutkarshpriyadarshi/fetscr/internal/quota"
	"github.com/therealutkarshpriyadarshi/fetscr/pkg/models"
)

type accountLookup interface {
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

type historyReader interface {
	ListUsageRecords(ctx context.Context, accountID string, limit, offset int) ([]models.UsageRecord, error)
	GetUsageSummary(ctx context.Context, accountID string) (*models.UsageSummary, error)
}

// backend is what the commands operate on once connected
type backend struct {
	accounts   accountLookup
	ledger     *quota.Ledger
	history    historyReader
	migrate    func(ctx context.Context) (int64, error)
	flushCache func(ctx context.Context) error
	close      func()
}

type connectFunc func(ctx context.Context, configPath string) (*backend, error)

type cli struct {
	configPath string
	catalog    *plans.Catalog
	connect    connectFunc
}

func newRootCmd(connect connectFunc) *cobra.Command {
	c := &cli{catalog: plans.DefaultCatalog(), connect: connect}

	rootCmd := &cobra.Command{
		Use:           "fetscrctl",
		Short:         "Administer the fetscr search aggregation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "config.yaml", "Path to the service config file")

	rootCmd.AddCommand(c.newMigrateCmd())
	rootCmd.AddCommand(c.newPlansCmd())
	rootCmd.AddCommand(c.newQuotaCmd())
	rootCmd.AddCommand(c.newChargeCmd())
	rootCmd.AddCommand(c.newSetPlanCmd())
	rootCmd.AddCommand(c.newHistoryCmd())
	rootCmd.AddCommand(c.newCacheFlushCmd())

	return rootCmd
}

// withBackend connects, runs fn and releases the connection
func (c *cli) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *backend) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	b, err := c.connect(ctx, c.configPath)
	if err != nil {
		return err
	}
	if b.close != nil {
		defer b.close()
	}
	return fn(ctx, b)
}

// resolveAccount accepts either an account ID or an email address
func resolveAccount(ctx context.Context, accounts accountLookup, ref string) (*models.Account, error) {
	if strings.Contains(ref, "@") {
		return accounts.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(ref)))
	}
	return accounts.GetAccount(ctx, ref)
}

func printQuota(w io.Writer, account *models.Account, q models.Quota) {
	fmt.Fprintf(w, "Account:    %s (%s)\n", account.Email, account.ID)
	fmt.Fprintf(w, "Plan:       %s\n", q.PlanType)
	fmt.Fprintf(w, "Queries:    %d of %d used, %d remaining\n", q.QueriesUsed, q.AllowedQueries, q.Remaining())
	fmt.Fprintf(w, "Results:    %d per keyword\n", q.ResultsPerQuery)
}

func (c *cli) newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				version, err := b.migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Database schema at version %d\n", version)
				return nil
			})
		},
	}
}

func (c *cli) newPlansCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List the plan catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := c.catalog.List()
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "PLAN\tQUERIES\tRESULTS/QUERY\tPRICE (USD)")
			for _, p := range list {
				price := p.PriceUSD
				if p.Custom {
					price += " (default sizing)"
				}
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", p.Type, p.AllowedQueries, p.ResultsPerQuery, price)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	return cmd
}

func (c *cli) newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota <account-id|email>",
		Short: "Show an account's plan and remaining queries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				account, err := resolveAccount(ctx, b.accounts, args[0])
				if err != nil {
					return err
				}
				q, err := b.ledger.LoadQuota(ctx, account.ID)
				if err != nil {
					return err
				}
				printQuota(cmd.OutOrStdout(), account, q)
				return nil
			})
		},
	}
}

func (c *cli) newChargeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "charge <account-id|email>",
		Short: "Consume one query without running a search",
		Long:  "Consume one query from an account's allowance, e.g. to account for a run served out of band. The allowance check is skipped.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				account, err := resolveAccount(ctx, b.accounts, args[0])
				if err != nil {
					return err
				}
				if err := b.ledger.Increment(ctx, account.ID); err != nil {
					return err
				}
				q, err := b.ledger.LoadQuota(ctx, account.ID)
				if err != nil {
					return err
				}
				printQuota(cmd.OutOrStdout(), account, q)
				return nil
			})
		},
	}
}

func (c *cli) newSetPlanCmd() *cobra.Command {
	var queries, results int

	cmd := &cobra.Command{
		Use:   "set-plan <account-id|email> <plan>",
		Short: "Move an account onto a plan without a payment",
		Long:  "Move an account onto a plan and reset its usage. No payment is recorded.",
		Example: `  fetscrctl set-plan jane@example.com sub2
  fetscrctl set-plan 6f1c... enterprise --queries 500 --results 50`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := c.catalog.Resolve(models.PlanType(args[1]), plans.EnterpriseOptions{Queries: queries, Results: results})
			if err != nil {
				return err
			}

			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				account, err := resolveAccount(ctx, b.accounts, args[0])
				if err != nil {
					return err
				}
				q, err := b.ledger.SetPlan(ctx, account.ID, plan)
				if err != nil {
					return err
				}
				printQuota(cmd.OutOrStdout(), account, q)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&queries, "queries", 0, "Enterprise query allowance")
	cmd.Flags().IntVar(&results, "results", 0, "Enterprise results per keyword")
	return cmd
}

func (c *cli) newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <account-id|email>",
		Short: "Show an account's recent aggregation runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				account, err := resolveAccount(ctx, b.accounts, args[0])
				if err != nil {
					return err
				}
				records, err := b.history.ListUsageRecords(ctx, account.ID, limit, 0)
				if err != nil {
					return err
				}
				summary, err := b.history.GetUsageSummary(ctx, account.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%d runs, %d results\n", summary.TotalRuns, summary.TotalResults)
				tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "WHEN\tRESULTS\tQUERY")
				for _, r := range records {
					fmt.Fprintf(tw, "%s\t%d\t%s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.ResultCount, r.QueryText)
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func (c *cli) newCacheFlushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-flush",
		Short: "Drop every cached upstream page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withBackend(cmd, func(ctx context.Context, b *backend) error {
				if b.flushCache == nil {
					return errors.New("page cache is not enabled")
				}
				if err := b.flushCache(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Page cache flushed")
				return nil
			})
		},
	}
}
