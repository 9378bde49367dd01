package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kline/internal/calendar"
	"kline/internal/chartapi"
	"kline/internal/config"
	"kline/internal/domain"
	"kline/internal/gather"
	"kline/internal/series"
	"kline/internal/store"
	"kline/internal/util"
	"kline/pkg/kline"
)

// app carries what PersistentPreRunE loaded to the subcommands.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var cfgPath string

	rootCmd := &cobra.Command{
		Use:          "kline",
		Short:        "A-share trading calendar and chart tool",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				cfgPath = config.Path()
			}
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := calendar.LoadLocation(cfg.Calendar.Timezone); err != nil {
				return err
			}
			a.cfg = cfg
			a.log = util.NewLogger(cmd.ErrOrStderr(), cfg.Logging.Level, "text")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Configuration file path (default $KLINE_CONFIG or config/kline.yaml)")

	rootCmd.AddCommand(newDayCmd())
	rootCmd.AddCommand(newStepCmd("next", 1))
	rootCmd.AddCommand(newStepCmd("prev", -1))
	rootCmd.AddCommand(newBetweenCmd())
	rootCmd.AddCommand(newChartCmd(a))
	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newSyncCmd(a))
	rootCmd.AddCommand(newStocksCmd(a))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newDayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day [DATE]",
		Short: "Describe a calendar date (the latest session if omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := calendar.Latest().Time()
			if len(args) == 1 {
				v, err := calendar.ParseInstant(args[0])
				if err != nil {
					return err
				}
				t = v
			}
			return printJSON(cmd.OutOrStdout(), chartapi.DayView(t))
		},
	}
}

// newStepCmd builds next (dir 1) and prev (dir -1).
func newStepCmd(use string, dir int) *cobra.Command {
	way := "forward"
	if dir < 0 {
		way = "backward"
	}
	cmd := &cobra.Command{
		Use:   use + " DATE [N]",
		Short: "Move a cursor N steps (default 1) " + way,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := calendar.Parse(args[0])
			if err != nil {
				return err
			}
			n := 1
			if len(args) == 2 {
				if n, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid step count %q", args[1])
				}
			}
			if p, _ := cmd.Flags().GetString("period"); p != "" {
				period, err := calendar.ParsePeriod(p)
				if err != nil {
					return err
				}
				d = d.WithPeriod(period)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Add(dir*n))
			return nil
		},
	}
	cmd.Flags().String("period", "", "Step size: day, week or Nm (default: day, or 1m for a date-time)")
	return cmd
}

func newBetweenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "between FROM TO",
		Short: "Count the sessions separating two dates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := calendar.Parse(args[0])
			if err != nil {
				return err
			}
			to, err := calendar.Parse(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), from.WithPeriod(calendar.Day).Between(to.WithPeriod(calendar.Day)))
			return nil
		},
	}
}

func newChartCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart SYMBOL",
		Short: "Print the bars of a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, _ := cmd.Flags().GetString("period")
			end, _ := cmd.Flags().GetString("end")
			limit, _ := cmd.Flags().GetInt("limit")
			remote, _ := cmd.Flags().GetBool("remote")
			asJSON, _ := cmd.Flags().GetBool("json")

			period, err := calendar.ParsePeriod(ps)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var c *domain.Chart
			if remote {
				if a.cfg.Remote.BaseURL == "" {
					return fmt.Errorf("remote.base_url is not configured")
				}
				c, err = a.remote().Chart(ctx, args[0], period, end, limit)
			} else {
				c, err = a.series().Chart(ctx, series.Request{Symbol: args[0], Period: period, End: end, Limit: limit})
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), c)
			}
			return printBars(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().String("period", "day", "Bar period: day, week or Nm")
	cmd.Flags().String("end", "", "Last date or date-time included (default: latest session)")
	cmd.Flags().Int("limit", 0, "Number of bars (default: chart.default_limit)")
	cmd.Flags().Bool("remote", false, "Fetch from remote.base_url instead of the local data dir")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import SYMBOL FILE",
		Short: "Import date,open,high,low,close,volume bars from a CSV file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ps, _ := cmd.Flags().GetString("period")
			period, err := calendar.ParsePeriod(ps)
			if err != nil {
				return err
			}
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			bars, err := store.ParseBars(f)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[1], err)
			}
			n, err := a.series().Import(cmd.Context(), args[0], period, bars)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d %s bars for %s\n", n, period, args[0])
			return nil
		},
	}
	cmd.Flags().String("period", "day", "Period of the bars in FILE: day or the configured source minutes")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync SYMBOL...",
		Short: "Copy bars of symbols from remote.base_url into the local data dir",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Remote.BaseURL == "" {
				return fmt.Errorf("remote.base_url is not configured")
			}
			names, _ := cmd.Flags().GetStringSlice("period")
			end, _ := cmd.Flags().GetString("end")
			limit, _ := cmd.Flags().GetInt("limit")

			var periods []calendar.Period
			for _, name := range names {
				p, err := calendar.ParsePeriod(name)
				if err != nil {
					return err
				}
				periods = append(periods, p)
			}

			g := gather.NewMirrorGatherer(a.remote(), a.series(), args, gather.MirrorOptions{
				Periods: periods,
				End:     end,
				Limit:   limit,
				Workers: a.cfg.Chart.Workers,
			}, a.log)
			return g.Run(cmd.Context())
		},
	}
	cmd.Flags().StringSlice("period", []string{"day"}, "Periods to copy: day and/or the configured source minutes")
	cmd.Flags().String("end", "", "Last date included (default: latest session)")
	cmd.Flags().Int("limit", 0, "Bars per symbol and period (default: the server's default)")
	return cmd
}

func newStocksCmd(a *app) *cobra.Command {
	stocksCmd := &cobra.Command{
		Use:   "stocks",
		Short: "Manage the stock list",
	}

	stocksCmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Import tab separated symbol and name records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			stocks, err := store.ParseStocks(f)
			if err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			db, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.SaveStocks(cmd.Context(), stocks); err != nil {
				return err
			}
			a.log.Info("stocks imported", "count", len(stocks), "db", a.cfg.Storage.SQLitePath)
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d stocks\n", len(stocks))
			return nil
		},
	})

	stocksCmd.AddCommand(&cobra.Command{
		Use:   "list [QUERY]",
		Short: "List stocks whose symbol or name contains QUERY",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.NewSQLiteStore(a.cfg.Storage.SQLitePath)
			if err != nil {
				return err
			}
			defer db.Close()

			stocks, err := db.ListStocks(cmd.Context())
			if err != nil {
				return err
			}
			q := ""
			if len(args) == 1 {
				q = args[0]
			}
			for _, s := range stocks.Filter(q) {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	})

	return stocksCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kline %s\n", version)
		},
	}
}

func (a *app) series() *series.Service {
	return series.New(store.NewParquetStore(a.cfg.Storage.DataDir), series.Options{
		SourceMinutes: a.cfg.Chart.SourceMinutes,
		DefaultLimit:  a.cfg.Chart.DefaultLimit,
		MaxLimit:      a.cfg.Chart.MaxLimit,
		Workers:       a.cfg.Chart.Workers,
	}, a.log)
}

func (a *app) remote() gather.RemoteSource {
	return gather.RemoteSource{Client: kline.NewClient(a.cfg.Remote.BaseURL,
		kline.WithToken(a.cfg.Remote.Token),
		kline.WithTimeout(a.cfg.Remote.Timeout))}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBars(w io.Writer, c *domain.Chart) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "date\topen\thigh\tlow\tclose\tvolume\tchg%%\tamp%%\t\n")
	for _, b := range c.Bars {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.0f\t%.2f\t%.2f\t\n",
			b.Date, b.Open, b.High, b.Low, b.Close, b.Volume, b.Markup(), b.Amplitude())
	}
	return tw.Flush()
}
