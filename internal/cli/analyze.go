package cli

import (
	"fmt"
	"math"

	"github.com/moznion/go-optional"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/analysis/correlation"
	"portfolio-tracker/internal/analysis/indicators"
	"portfolio-tracker/internal/analysis/patterns"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

// addAnalysisCommands adds indicator and event detector commands.
func addAnalysisCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newAnalyzeCmd(app))
	rootCmd.AddCommand(newDrawdownsCmd(app))
	rootCmd.AddCommand(newLevelsCmd(app))
	rootCmd.AddCommand(newCrossoversCmd(app))
	rootCmd.AddCommand(newCorrelateCmd(app))
}

// resolveOne resolves the single instrument argument over the --period flag.
func (a *App) resolveOne(cmd *cobra.Command, arg string) (*models.PriceSeries, models.Period, error) {
	p, err := period(cmd)
	if err != nil {
		return nil, "", err
	}
	if err := a.services(cmd.Context()); err != nil {
		return nil, "", err
	}
	series, err := a.Resolver.Resolve(cmd.Context(), models.InstrumentID(arg).Normalize(), p)
	if err != nil {
		return nil, "", err
	}
	return series, p, nil
}

type analysisResult struct {
	Snapshot indicators.Snapshot       `json:"snapshot"`
	Trend    string                    `json:"trend"`
	Metrics  *indicators.Metrics       `json:"metrics,omitempty"`
	Changes  []indicators.Change       `json:"changes"`
	Returns  []indicators.BucketReturn `json:"returns,omitempty"`
	Error    string                    `json:"error,omitempty"`
}

func newAnalyzeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <isin|ticker>...",
		Short: "Indicator snapshot and risk metrics",
		Long: `Compute the indicator snapshot (SMA 20/50/200, RSI, Bollinger bands, beta
against the configured benchmark, annualized volatility, streak) together with
risk metrics and period changes. Values that need more history than the
series has are shown as n/a.`,
		Example: `  tracker analyze IE00B4L5Y983 --period 2y
  tracker analyze IE00B4L5Y983 --returns monthly -o yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			p, err := period(cmd)
			if err != nil {
				return err
			}
			buckets := mustString(cmd, "returns")
			if buckets != "" && buckets != "annual" && buckets != "monthly" {
				return fmt.Errorf("--returns must be annual or monthly")
			}
			if err := app.services(cmd.Context()); err != nil {
				return err
			}
			ctx := cmd.Context()

			results := app.Resolver.ResolveAll(ctx, instrumentArgs(args), p)
			var series []*models.PriceSeries
			var out []analysisResult
			for _, res := range results {
				if !res.OK() {
					out = append(out, analysisResult{Snapshot: indicators.Snapshot{Instrument: res.Instrument}, Error: errString(res)})
					continue
				}
				series = append(series, res.Series)
			}

			snaps, err := app.Engine.SnapshotAll(ctx, series, app.benchmark(ctx, p))
			if err != nil {
				return err
			}
			for i, snap := range snaps {
				r := analysisResult{
					Snapshot: snap,
					Trend:    snap.Trend(),
					Changes:  indicators.PeriodChanges(series[i], app.Now()),
				}
				if m, err := app.Engine.Metrics(series[i]); err == nil {
					r.Metrics = &m
				}
				switch buckets {
				case "annual":
					r.Returns = indicators.AnnualReturns(series[i])
				case "monthly":
					r.Returns = indicators.MonthlyReturns(series[i])
				}
				out = append(out, r)
			}

			if output.IsStructured() {
				return output.Render(out)
			}
			for _, r := range out {
				printAnalysis(output, r)
			}
			if len(snaps) == 0 {
				return fmt.Errorf("no instrument could be resolved")
			}
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "1y", "history period: "+periodNames())
	cmd.Flags().String("returns", "", "include annual or monthly return buckets")
	return cmd
}

func printAnalysis(output *Output, r analysisResult) {
	snap := r.Snapshot
	if r.Error != "" {
		output.Error("%s: %s", snap.Instrument, r.Error)
		output.Println()
		return
	}

	output.Bold("%s  close %s on %s  (%d points, trend %s)", snap.Instrument, FormatPrice(snap.Close), FormatDate(snap.AsOf), snap.Points, r.Trend)
	table := NewTable(output, "INDICATOR", "VALUE")
	for _, nv := range snap.Values() {
		if nv.Name == "VolatilityAnnualized" || nv.Name == "PercentB" {
			table.AddRow(nv.Name, FormatOptionalRatio(nv.Value))
			continue
		}
		table.AddRow(nv.Name, FormatValue(nv.Value))
	}
	streak := "n/a"
	if snap.Streak.IsSome() {
		streak = snap.Streak.Unwrap().String()
	}
	table.AddRow("Streak", streak)
	table.Render()

	if m := r.Metrics; m != nil {
		output.Println()
		mt := NewTable(output, "METRIC", "VALUE")
		mt.AddRow("Total return", output.Signed(m.TotalReturn, utils.FormatRatio(m.TotalReturn)))
		mt.AddRow("Annual return", output.Signed(m.AnnualReturn, utils.FormatRatio(m.AnnualReturn)))
		mt.AddRow("Volatility", utils.FormatRatio(m.Volatility))
		mt.AddRow("Max drawdown", utils.FormatRatio(-m.MaxDrawdown))
		mt.AddRow("Sharpe", fmt.Sprintf("%.2f", m.Sharpe))
		mt.AddRow("Best day", fmt.Sprintf("%s %s", FormatDate(m.BestDay.Date), utils.FormatRatio(m.BestDay.Return)))
		mt.AddRow("Worst day", fmt.Sprintf("%s %s", FormatDate(m.WorstDay.Date), utils.FormatRatio(m.WorstDay.Return)))
		mt.AddRow("Up / down days", fmt.Sprintf("%d / %d", m.PositiveDays, m.NegativeDays))
		mt.Render()
	}

	if len(r.Changes) > 0 {
		output.Println()
		ct := NewTable(output, "CHANGE", "RETURN", "DELTA")
		for _, c := range r.Changes {
			ct.AddRow(c.Label, output.Signed(c.Return, utils.FormatRatio(c.Return)), FormatPrice(c.Delta))
		}
		ct.Render()
	}

	if len(r.Returns) > 0 {
		output.Println()
		rt := NewTable(output, "BUCKET", "BASE", "CLOSE", "RETURN")
		for _, b := range r.Returns {
			rt.AddRow(b.Label, FormatPrice(b.Base), FormatPrice(b.Close), output.Signed(b.Return, utils.FormatRatio(b.Return)))
		}
		rt.Render()
	}
	output.Println()
}

func newDrawdownsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drawdowns [isin|ticker]",
		Short: "Drawdown episodes and the recovery they need",
		Long: `List every fall of at least the threshold from a running peak, with the
trough, the gain needed to get back, the recovery date if any and the
rebound some trading days after the trough.

Without an instrument, print the drop / required recovery table.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if len(args) == 0 {
				return printRecoveryTable(output)
			}

			series, _, err := app.resolveOne(cmd, args[0])
			if err != nil {
				return err
			}
			det := patterns.NewDrawdownDetector()
			det.Threshold = app.Config.Analysis.DrawdownThreshold
			det.ReboundDays = app.Config.Analysis.ReboundDays
			if t, _ := cmd.Flags().GetFloat64("threshold"); t > 0 {
				det.Threshold = t
			}
			episodes, err := det.Detect(series)
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Render(struct {
					Instrument  models.InstrumentID `json:"instrument"`
					Threshold   float64             `json:"threshold"`
					MaxDrawdown float64             `json:"max_drawdown"`
					Episodes    []patterns.Episode  `json:"episodes"`
				}{series.Instrument, det.Threshold, indicators.MaxDrawdown(series.Closes()), episodes})
			}

			output.Bold("%s: %d drawdowns of %.0f%% or more, max %s", series.Instrument, len(episodes), det.Threshold*100,
				utils.FormatRatio(-indicators.MaxDrawdown(series.Closes())))
			table := NewTable(output, "PEAK", "TROUGH", "DEPTH", "NEEDED", "RECOVERED", "DAYS", fmt.Sprintf("REBOUND %dD", det.ReboundDays))
			for _, e := range episodes {
				recovered, days := "-", "-"
				if e.Recovered() {
					recovered = FormatDate(e.RecoveryDate.Unwrap())
					days = fmt.Sprint(e.DaysToRecover.Unwrap())
				}
				table.AddRow(
					fmt.Sprintf("%s %s", FormatDate(e.PeakDate), FormatPrice(e.PeakPrice)),
					fmt.Sprintf("%s %s", FormatDate(e.TroughDate), FormatPrice(e.TroughPrice)),
					output.ColoredString(ColorRed, utils.FormatRatio(-e.Depth)),
					utils.FormatRatio(e.RequiredRecovery),
					recovered,
					days,
					FormatOptionalRatio(e.Rebound),
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "max", "history period: "+periodNames())
	cmd.Flags().Float64("threshold", 0, "minimum fall from the peak as a fraction (default from config)")
	return cmd
}

func printRecoveryTable(output *Output) error {
	rows := patterns.RecoveryTable()
	if output.IsStructured() {
		return output.Render(rows)
	}
	table := NewTable(output, "DROP", "GAIN NEEDED")
	for _, r := range rows {
		needed := "never"
		if !math.IsInf(r.Needed, 1) {
			needed = fmt.Sprintf("%.1f%%", r.Needed*100)
		}
		table.AddRow(fmt.Sprintf("%.1f%%", r.Drop*100), needed)
	}
	table.Render()
	return nil
}

func newLevelsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "levels <isin|ticker>",
		Short: "Support and resistance levels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			series, _, err := app.resolveOne(cmd, args[0])
			if err != nil {
				return err
			}
			an := patterns.NewLevelAnalyzer()
			an.Window = app.Config.Analysis.LevelWindow
			an.Tolerance = app.Config.Analysis.LevelTolerance
			report, err := an.Analyze(series)
			if err != nil {
				return err
			}
			last := series.Last().Close
			support, resistance := patterns.NearestLevels(report, last)

			if output.IsStructured() {
				return output.Render(struct {
					Instrument models.InstrumentID             `json:"instrument"`
					Close      float64                         `json:"close"`
					Support    optional.Option[patterns.Level] `json:"nearest_support"`
					Resistance optional.Option[patterns.Level] `json:"nearest_resistance"`
					Levels     patterns.LevelReport            `json:"levels"`
				}{series.Instrument, last, support, resistance, report})
			}

			output.Bold("%s  close %s", series.Instrument, FormatPrice(last))
			if support.IsSome() {
				s := support.Unwrap()
				output.Printf("  Nearest support:    %s (%s below)\n", FormatPrice(s.Price), utils.FormatRatio(s.Price/last-1))
			}
			if resistance.IsSome() {
				r := resistance.Unwrap()
				output.Printf("  Nearest resistance: %s (%s above)\n", FormatPrice(r.Price), utils.FormatRatio(r.Price/last-1))
			}
			output.Println()

			table := NewTable(output, "KIND", "PRICE", "TOUCHES", "FIRST", "LAST", "STATUS")
			add := func(lv patterns.Level) {
				status := "active"
				if lv.Broken {
					status = output.ColoredString(ColorDim, "broken "+FormatDate(lv.BrokenAt))
				}
				table.AddRow(string(lv.Kind), FormatPrice(lv.Price), fmt.Sprint(lv.Touches), FormatDate(lv.FirstTouch), FormatDate(lv.LastTouch), status)
			}
			for _, lv := range report.Active {
				add(lv)
			}
			if all, _ := cmd.Flags().GetBool("all"); all {
				for _, lv := range report.Broken {
					add(lv)
				}
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "1y", "history period: "+periodNames())
	cmd.Flags().Bool("all", false, "include broken levels")
	return cmd
}

func newCrossoversCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crossovers <isin|ticker>",
		Short: "Golden and death crosses of two moving averages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			series, _, err := app.resolveOne(cmd, args[0])
			if err != nil {
				return err
			}
			det := patterns.NewCrossoverDetector()
			det.ConfirmDays = app.Config.Analysis.CrossConfirmDays
			det.Fast, _ = cmd.Flags().GetInt("fast")
			det.Slow, _ = cmd.Flags().GetInt("slow")
			if det.Fast >= det.Slow {
				return fmt.Errorf("--fast must be shorter than --slow")
			}
			report, err := det.Detect(series)
			if err != nil {
				return err
			}

			if output.IsStructured() {
				return output.Render(struct {
					Instrument models.InstrumentID      `json:"instrument"`
					Fast       int                      `json:"fast"`
					Slow       int                      `json:"slow"`
					Report     patterns.CrossoverReport `json:"report"`
				}{series.Instrument, det.Fast, det.Slow, report})
			}

			output.Bold("%s: SMA%d / SMA%d, %d crossovers", series.Instrument, det.Fast, det.Slow, len(report.History))
			table := NewTable(output, "DATE", "KIND", "FAST", "SLOW", "CONFIRMED")
			for _, c := range report.History {
				kind := output.ColoredString(ColorGreen, string(c.Kind))
				if c.Kind == patterns.DeathCross {
					kind = output.ColoredString(ColorRed, string(c.Kind))
				}
				table.AddRow(FormatDate(c.Date), kind, FormatPrice(c.Fast), FormatPrice(c.Slow), fmt.Sprint(c.Confirmed))
			}
			table.Render()
			if report.Unconfirmed.IsSome() {
				u := report.Unconfirmed.Unwrap()
				output.Warning("Latest %s cross on %s is not confirmed yet", u.Kind, FormatDate(u.Date))
			}
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "5y", "history period: "+periodNames())
	cmd.Flags().Int("fast", patterns.DefaultFastPeriod, "fast moving average window")
	cmd.Flags().Int("slow", patterns.DefaultSlowPeriod, "slow moving average window")
	return cmd
}

func newCorrelateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correlate <isin|ticker> <isin|ticker>...",
		Short: "Correlation matrix of daily returns",
		Long: `Correlate the daily returns of every pair of instruments on the dates they
share. Pairs with too little common history, or where one side never moves,
are undefined.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			p, err := period(cmd)
			if err != nil {
				return err
			}
			if err := app.services(cmd.Context()); err != nil {
				return err
			}

			var series []*models.PriceSeries
			for _, res := range app.Resolver.ResolveAll(cmd.Context(), instrumentArgs(args), p) {
				if !res.OK() {
					output.Warning("%s skipped: %s", res.Instrument, errString(res))
					continue
				}
				series = append(series, res.Series)
			}
			if len(series) < 2 {
				return fmt.Errorf("need at least two resolved instruments, got %d", len(series))
			}

			minOverlap, _ := cmd.Flags().GetInt("min-overlap")
			if minOverlap <= 0 {
				minOverlap = app.Config.Analysis.MinOverlap
			}
			m := correlation.Compute(series, minOverlap)

			if output.IsStructured() {
				return output.Render(struct {
					Instruments []models.InstrumentID `json:"instruments"`
					Matrix      interface{}           `json:"matrix"`
					Pairs       []correlation.Pair    `json:"pairs"`
				}{m.Instruments, m.Rows(), m.Pairs()})
			}

			headers := []string{""}
			for _, id := range m.Instruments {
				headers = append(headers, TruncateString(id.String(), 12))
			}
			table := NewTable(output, headers...)
			for i, id := range m.Instruments {
				row := []string{TruncateString(id.String(), 12)}
				for j := range m.Instruments {
					cell := m.At(i, j)
					if cell.IsNone() {
						row = append(row, "n/a")
						continue
					}
					row = append(row, fmt.Sprintf("%.2f", cell.Unwrap()))
				}
				table.AddRow(row...)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "1y", "history period: "+periodNames())
	cmd.Flags().Int("min-overlap", 0, "fewest common daily returns per pair (default from config)")
	return cmd
}
