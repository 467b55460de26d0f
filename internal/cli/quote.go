package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/analysis/indicators"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/pkg/utils"
)

func addQuoteCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newQuoteCmd(app))
	rootCmd.AddCommand(newHistoryCmd(app))
}

type quoteRow struct {
	Instrument models.InstrumentID `json:"instrument"`
	Source     string              `json:"source,omitempty"`
	Date       time.Time           `json:"date,omitempty"`
	Close      float64             `json:"close,omitempty"`
	Points     int                 `json:"points"`
	Change     *float64            `json:"change_1d,omitempty"`
	Stale      bool                `json:"stale,omitempty"`
	Error      string              `json:"error,omitempty"`
}

func toQuoteRow(res models.QuoteResult) quoteRow {
	row := quoteRow{Instrument: res.Instrument, Stale: res.Stale}
	if !res.OK() {
		row.Error = errString(res)
		return row
	}
	s := res.Series
	row.Source = s.Source
	row.Points = s.Len()
	if s.Len() > 0 {
		row.Date = s.Last().Date
		row.Close = s.Last().Close
	}
	if s.Len() > 1 {
		prev := s.Points[s.Len()-2].Close
		if prev > 0 {
			ch := row.Close/prev - 1
			row.Change = &ch
		}
	}
	return row
}

func errString(res models.QuoteResult) string {
	if res.Err == nil {
		return "no series"
	}
	return res.Err.Error()
}

func instrumentArgs(args []string) []models.InstrumentID {
	ids := make([]models.InstrumentID, 0, len(args))
	for _, a := range args {
		ids = append(ids, models.InstrumentID(a).Normalize())
	}
	return ids
}

func newQuoteCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <isin|ticker>...",
		Short: "Resolve the latest close for one or more instruments",
		Long: `Resolve price history for each instrument and print its latest close.

Sources are tried in the configured order; a failed instrument does not
stop the others. When every source fails, a stored series is served and
marked stale.`,
		Example: `  tracker quote IE00B4L5Y983
  tracker quote IE00B4L5Y983 IE00B5BMR087 --period 1mo --refresh`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			p, err := period(cmd)
			if err != nil {
				return err
			}
			if err := app.services(cmd.Context()); err != nil {
				return err
			}

			ids := instrumentArgs(args)
			var results []models.QuoteResult
			if force, _ := cmd.Flags().GetBool("refresh"); force {
				results = app.Resolver.RefreshAll(cmd.Context(), ids, p)
			} else {
				results = app.Resolver.ResolveAll(cmd.Context(), ids, p)
			}

			rows := make([]quoteRow, len(results))
			for i, res := range results {
				rows[i] = toQuoteRow(res)
			}

			if output.IsStructured() {
				if err := output.Render(rows); err != nil {
					return err
				}
			} else {
				table := NewTable(output, "INSTRUMENT", "SOURCE", "DATE", "CLOSE", "1D", "POINTS", "NOTE")
				for _, r := range rows {
					if r.Error != "" {
						table.AddRow(r.Instrument.String(), "-", "-", "-", "-", "0", output.ColoredString(ColorRed, TruncateString(r.Error, 60)))
						continue
					}
					change := "-"
					if r.Change != nil {
						change = output.Signed(*r.Change, utils.FormatRatio(*r.Change))
					}
					note := ""
					if r.Stale {
						note = output.ColoredString(ColorYellow, "stale")
					}
					table.AddRow(r.Instrument.String(), r.Source, FormatDate(r.Date), FormatPrice(r.Close), change, fmt.Sprint(r.Points), note)
				}
				table.Render()
			}

			if failed := quotes.Failed(results); len(failed) == len(results) {
				return fmt.Errorf("no instrument could be resolved")
			}
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "1mo", "history period: "+periodNames())
	cmd.Flags().Bool("refresh", false, "ignore stored series and fetch from the sources")
	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <isin|ticker>",
		Short: "Print daily closes with period changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			p, err := period(cmd)
			if err != nil {
				return err
			}
			if err := app.services(cmd.Context()); err != nil {
				return err
			}
			series, err := app.Resolver.Resolve(cmd.Context(), instrumentArgs(args)[0], p)
			if err != nil {
				return err
			}
			changes := indicators.PeriodChanges(series, app.Now())

			if output.IsStructured() {
				return output.Render(struct {
					Instrument models.InstrumentID `json:"instrument"`
					Source     string              `json:"source"`
					Changes    []indicators.Change `json:"changes"`
					Points     []models.PricePoint `json:"points"`
				}{series.Instrument, series.Source, changes, series.Points})
			}

			output.Bold("%s (%s, %d points from %s)", series.Instrument, p, series.Len(), series.Source)
			ct := NewTable(output, "CHANGE", "RETURN", "DELTA")
			for _, c := range changes {
				ct.AddRow(c.Label, output.Signed(c.Return, utils.FormatRatio(c.Return)), FormatPrice(c.Delta))
			}
			ct.Render()
			output.Println()

			limit, _ := cmd.Flags().GetInt("limit")
			points := series.Points
			if limit > 0 && len(points) > limit {
				points = points[len(points)-limit:]
			}
			pt := NewTable(output, "DATE", "CLOSE", "VOLUME")
			for _, pp := range points {
				volume := "-"
				if pp.Volume > 0 {
					volume = utils.FormatCompact(float64(pp.Volume))
				}
				pt.AddRow(FormatDate(pp.Date), FormatPrice(pp.Close), volume)
			}
			pt.Render()
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "3mo", "history period: "+periodNames())
	cmd.Flags().Int("limit", 20, "closes to print in table output, 0 for all")
	return cmd
}

func periodNames() string {
	names := make([]string, 0, len(models.AllPeriods()))
	for _, p := range models.AllPeriods() {
		names = append(names, string(p))
	}
	return strings.Join(names, ", ")
}
