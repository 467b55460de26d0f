package cli

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"portfolio-tracker/internal/analysis/simulation"
	"portfolio-tracker/internal/models"
)

// addSimulationCommands adds the DCA back-test and projection commands.
func addSimulationCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newDCACmd(app))
	rootCmd.AddCommand(newProjectCmd())
}

func parseAmount(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	s := mustString(cmd, name)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %q is not an amount", name, s)
	}
	return d, nil
}

func parseDateFlag(cmd *cobra.Command, name string) (time.Time, error) {
	s := mustString(cmd, name)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", name, err)
	}
	return t, nil
}

func newDCACmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dca <isin|ticker>",
		Short: "Back-test a periodic contribution plan",
		Long: `Invest a fixed amount on a weekly, monthly or quarterly schedule over the
instrument's history. A scheduled date without a close buys at the next
trading day's close. The position is valued at the last close.`,
		Example: `  tracker dca IE00B4L5Y983 --amount 200 --period 5y
  tracker dca IE00B4L5Y983 --amount 500 --frequency quarterly --start 2020-01-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			amount, err := parseAmount(cmd, "amount")
			if err != nil {
				return err
			}
			freq, err := simulation.ParseFrequency(mustString(cmd, "frequency"))
			if err != nil {
				return err
			}
			start, err := parseDateFlag(cmd, "start")
			if err != nil {
				return err
			}
			end, err := parseDateFlag(cmd, "end")
			if err != nil {
				return err
			}

			series, _, err := app.resolveOne(cmd, args[0])
			if err != nil {
				return err
			}
			res, err := simulation.SimulateDCA(series, simulation.DCAConfig{
				Contribution: amount,
				Frequency:    freq,
				Start:        start,
				End:          end,
			})
			if err != nil {
				return err
			}

			if output.IsStructured() {
				if show, _ := cmd.Flags().GetBool("purchases"); !show {
					res.Purchases = nil
				}
				return output.Render(res)
			}

			first, last := res.Purchases[0], res.Purchases[len(res.Purchases)-1]
			output.Bold("%s: %s %s from %s to %s", res.Instrument, res.Contribution.StringFixed(2), res.Frequency,
				FormatDate(first.Date), FormatDate(last.Date))
			table := NewTable(output, "", "VALUE")
			table.AddRow("Contributions", fmt.Sprint(res.Contributions))
			table.AddRow("Invested", res.TotalInvested.StringFixed(2))
			table.AddRow("Units", res.Units.StringFixed(4))
			table.AddRow("Average price", res.AveragePrice.StringFixed(4))
			table.AddRow("Final value", res.FinalValue.StringFixed(2))
			table.AddRow("Return", output.Signed(res.ReturnPct.InexactFloat64(), res.ReturnPct.StringFixed(2)+"%"))
			table.Render()

			if show, _ := cmd.Flags().GetBool("purchases"); show {
				output.Println()
				pt := NewTable(output, "SCHEDULED", "DATE", "PRICE", "UNITS")
				for _, p := range res.Purchases {
					pt.AddRow(FormatDate(p.Scheduled), FormatDate(p.Date), p.Price.StringFixed(4), p.Units.StringFixed(6))
				}
				pt.Render()
			}
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "5y", "history period: "+periodNames())
	cmd.Flags().String("amount", "100", "contribution per date")
	cmd.Flags().String("frequency", "monthly", "weekly, monthly or quarterly")
	cmd.Flags().String("start", "", "first contribution date, YYYY-MM-DD (default: first close)")
	cmd.Flags().String("end", "", "last possible contribution date, YYYY-MM-DD (default: last close)")
	cmd.Flags().Bool("purchases", false, "list every purchase")
	return cmd
}

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project a savings plan with compound growth",
		Long: `Compound an initial amount plus a monthly contribution at an annual rate.
Pessimistic and optimistic scenarios shift the rate by four points either
way, never below zero.`,
		Example: `  tracker project --initial 10000 --monthly 500 --years 20 --rate 6`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			initial, err := parseAmount(cmd, "initial")
			if err != nil {
				return err
			}
			monthly, err := parseAmount(cmd, "monthly")
			if err != nil {
				return err
			}
			years, _ := cmd.Flags().GetInt("years")
			rate, _ := cmd.Flags().GetFloat64("rate")

			proj, err := simulation.Project(simulation.ProjectionConfig{
				Initial:    initial,
				Monthly:    monthly,
				Years:      years,
				AnnualRate: rate,
			})
			if err != nil {
				return err
			}

			if output.IsStructured() {
				if show, _ := cmd.Flags().GetBool("monthly-path"); !show {
					proj.Points = yearly(proj.Points)
				}
				return output.Render(proj)
			}

			table := NewTable(output, "YEAR", "CONTRIBUTED", "VALUE", "GAIN")
			for _, p := range yearly(proj.Points) {
				table.AddRow(fmt.Sprint(p.Month/12), p.Contributed.StringFixed(2), p.Value.StringFixed(2), p.Gain.StringFixed(2))
			}
			table.Render()
			output.Println()

			output.Bold("Final value %s on %s contributed (%s%%)", proj.FinalValue.StringFixed(2), proj.TotalContributed.StringFixed(2), proj.ReturnPct.StringFixed(2))
			st := NewTable(output, "SCENARIO", "RATE", "FINAL VALUE")
			for _, s := range proj.Scenarios {
				st.AddRow(s.Name, fmt.Sprintf("%.1f%%", s.Rate), s.FinalValue.StringFixed(2))
			}
			st.Render()
			return nil
		},
	}
	cmd.Flags().String("initial", "0", "starting capital")
	cmd.Flags().String("monthly", "100", "monthly contribution")
	cmd.Flags().Int("years", 10, "horizon in years")
	cmd.Flags().Float64("rate", 7, "expected annual return in percent")
	cmd.Flags().Bool("monthly-path", false, "render every month instead of year ends in json/yaml output")
	return cmd
}

// yearly keeps the start and every twelfth month.
func yearly(points []simulation.ProjectionPoint) []simulation.ProjectionPoint {
	var out []simulation.ProjectionPoint
	for _, p := range points {
		if p.Month%12 == 0 {
			out = append(out, p)
		}
	}
	return out
}
