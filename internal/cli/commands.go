package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"bilancio/internal/amqp"
	"bilancio/internal/backend"
	"bilancio/internal/config"
	"bilancio/internal/core"
	"bilancio/internal/dashboard"
	"bilancio/internal/log"
	"bilancio/internal/seed"

	"github.com/spf13/cobra"
)

// app carries what the subcommands share once the root pre-run has loaded it.
type app struct {
	cfg    *config.Config
	logger *log.Logger
	now    func() time.Time
}

// NewRootCommand builds the bilancio-cli command tree. Reports go to the
// command's output stream, logs to its error stream.
func NewRootCommand() *cobra.Command {
	a := &app{now: time.Now}

	root := &cobra.Command{
		Use:           "bilancio-cli",
		Short:         "Monthly dashboard and portfolio reports from the ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			LoadEnvFile()
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			level := cfg.LogLevel
			if flag, _ := cmd.Flags().GetString("log-level"); flag != "" {
				level = flag
			}
			logger, err := SetupLogger(level, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger.WithComponent(log.ComponentCLI)
			return nil
		},
	}
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	root.AddCommand(a.dashboardCmd())
	root.AddCommand(a.holdingsCmd())
	root.AddCommand(a.importCmd())
	return root
}

func (a *app) open(ctx context.Context) (*backend.Result, error) {
	return OpenBackends(ctx, a.cfg, a.logger)
}

func (a *app) dashboardCmd() *cobra.Command {
	var (
		account, month, currency string
		history                  int
		asJSON                   bool
	)
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the monthly dashboard of an account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m := core.MonthOf(a.now())
			if month != "" {
				parsed, err := core.ParseMonth(month)
				if err != nil {
					return fmt.Errorf("invalid --month %q: %w", month, err)
				}
				m = parsed
			}

			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Cleanup()

			report, err := NewDashboardService(a.cfg, res, a.logger).Report(cmd.Context(), dashboard.Request{
				AccountID:         account,
				Month:             m,
				PreferredCurrency: currency,
				HistoryMonths:     history,
			})
			if err != nil {
				return fmt.Errorf("dashboard report: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id")
	cmd.Flags().StringVar(&month, "month", "", "report month as YYYY-MM (default: current month)")
	cmd.Flags().StringVar(&currency, "currency", "", "preferred currency (default: DEFAULT_CURRENCY)")
	cmd.Flags().IntVar(&history, "history", 0, "months of trend history (default: HISTORY_MONTHS)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func (a *app) holdingsCmd() *cobra.Command {
	var (
		account, currency string
		asJSON            bool
	)
	cmd := &cobra.Command{
		Use:   "holdings",
		Short: "Value the holdings of one account, or of all accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Cleanup()

			report, err := NewDashboardService(a.cfg, res, a.logger).Holdings(cmd.Context(), dashboard.HoldingsRequest{
				AccountID:         account,
				PreferredCurrency: currency,
			})
			if err != nil {
				return fmt.Errorf("holdings report: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printHoldings(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&account, "account", "", "account id (default: all accounts)")
	cmd.Flags().StringVar(&currency, "currency", "", "preferred currency (default: DEFAULT_CURRENCY)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON seed file into the SQLite store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := seed.ReadFile(file)
			if err != nil {
				return err
			}

			res, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Cleanup()
			if res.Importer == nil {
				return errors.New("import needs DATA_BACKEND=sqlite")
			}

			stats, err := res.Importer.Import(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("import %s: %w", file, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf(
				"Imported %d accounts, %d categories, %d transactions, %d budgets, %d recurring templates, %d income goals, %d holdings, %d rates",
				stats.Accounts, stats.Categories, stats.Transactions, stats.Budgets,
				stats.Recurring, stats.IncomeGoals, stats.Holdings, stats.Rates)))

			a.notifyImported(cmd.Context())
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "seed JSON file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// notifyImported tells running servers to drop every cached report. Failure
// only costs freshness, so it is logged and not returned.
func (a *app) notifyImported(ctx context.Context) {
	client, err := OpenAMQP(a.cfg, a.logger)
	if err != nil {
		a.logger.WarnContext(ctx, "Skipping cache invalidation", log.FieldError, err)
		return
	}
	if client == nil {
		return
	}
	defer client.Close()
	if err := client.PublishInvalidation(ctx, amqp.NewReportInvalidation("", amqp.ReasonRecordsImported)); err != nil {
		a.logger.WarnContext(ctx, "Failed to publish cache invalidation", log.FieldError, err)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, r *dashboard.Report) error {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s · %s · %s", r.AccountID, r.Month.Label(), r.PreferredCurrency)))

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, st := range r.Stats {
		fmt.Fprintf(tw, "%s\t%s\n", st.Label, variantStyle(st.Variant).Render(core.FormatAmount(st.Value, st.Currency)))
	}
	goal := r.MonthlyIncomeGoal
	fmt.Fprintf(tw, "%s\t%s\n", "Income goal source", subtleStyle.Render(string(goal.Source)))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Budgets) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", headerStyle.Render("Category"), headerStyle.Render("Planned"),
			headerStyle.Render("Actual"), headerStyle.Render("Remaining"), headerStyle.Render("Used"))
		for _, b := range r.Budgets {
			used := b.PercentUsed.StringFixed(core.MoneyPlaces) + "%"
			if b.Overspent {
				used = negativeStyle.Render(used)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.CategoryName,
				core.FormatAmount(b.Planned, b.Currency), core.FormatAmount(b.Actual, b.Currency),
				core.FormatAmount(b.Remaining, b.Currency), used)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", headerStyle.Render("Month"), headerStyle.Render("Income"),
		headerStyle.Render("Expense"), headerStyle.Render("Net"))
	for _, p := range r.History {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Label, core.FormatAmount(p.Income, r.PreferredCurrency),
			core.FormatAmount(p.Expense, r.PreferredCurrency), core.FormatAmount(p.Net, r.PreferredCurrency))
	}
	return tw.Flush()
}

func printHoldings(w io.Writer, r *dashboard.HoldingsReport) error {
	scope := r.AccountID
	if scope == "" {
		scope = "all accounts"
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Holdings · %s · %s", scope, r.PreferredCurrency)))
	if len(r.Holdings) == 0 {
		fmt.Fprintln(w, subtleStyle.Render("No holdings."))
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", headerStyle.Render("Symbol"), headerStyle.Render("Quantity"),
		headerStyle.Render("Market value"), headerStyle.Render("Gain/loss"), headerStyle.Render("%"))
	for _, h := range r.Holdings {
		var flags []string
		if h.CurrentPrice == nil {
			flags = append(flags, "unpriced")
		}
		if h.IsStale {
			flags = append(flags, "stale")
		}
		symbol := h.Symbol
		if len(flags) > 0 {
			symbol += " " + subtleStyle.Render("("+strings.Join(flags, ", ")+")")
		}
		style := positiveStyle
		if h.GainLoss.IsNegative() {
			style = negativeStyle
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", symbol, h.Quantity.String(),
			core.FormatAmount(h.MarketValue, h.Currency),
			style.Render(core.FormatAmount(h.GainLoss, h.Currency)),
			h.GainLossPercent.StringFixed(core.MoneyPlaces))
	}
	t := r.Totals
	fmt.Fprintf(tw, "%s\t\t%s\t%s\t%s\n", headerStyle.Render("Total"),
		core.FormatAmount(t.MarketValue, t.Currency), core.FormatAmount(t.GainLoss, t.Currency),
		t.GainLossPercent.StringFixed(core.MoneyPlaces))
	return tw.Flush()
}
