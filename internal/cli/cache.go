package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/quotes"
	"portfolio-tracker/internal/refresh"
	"portfolio-tracker/internal/resilience"
	"portfolio-tracker/internal/store"
)

// addCacheCommands adds series store and source inspection commands.
func addCacheCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCacheCmd(app))
	rootCmd.AddCommand(newSourcesCmd(app))
}

func newCacheCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage stored series",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List stored series with their age and source",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.services(cmd.Context()); err != nil {
				return err
			}
			entries := app.Store.Entries()
			var lastSync time.Time
			if app.Sync != nil {
				lastSync = app.Sync.GetLastSync(refresh.SyncType)
			}

			if output.IsStructured() {
				return output.Render(struct {
					MaxAge   string            `json:"max_age"`
					LastSync time.Time         `json:"last_refresh,omitempty"`
					Entries  []store.EntryInfo `json:"entries"`
				}{app.Config.Store.MaxAge.String(), lastSync, entries})
			}

			if len(entries) == 0 {
				output.Info("No stored series")
				return nil
			}
			now := app.Now()
			table := NewTable(output, "INSTRUMENT", "PERIOD", "SOURCE", "POINTS", "RANGE", "AGE", "STATUS")
			for _, e := range entries {
				status := output.ColoredString(ColorGreen, "fresh")
				if !e.Fresh {
					status = output.ColoredString(ColorYellow, "stale")
				}
				table.AddRow(e.Instrument.String(), string(e.Period), e.Source, fmt.Sprint(e.Points),
					FormatDate(e.From)+" .. "+FormatDate(e.To), FormatDuration(now.Sub(e.FetchedAt)), status)
			}
			table.Render()
			if !lastSync.IsZero() {
				output.Dim("Last scheduled refresh: %s", lastSync.Local().Format(time.RFC3339))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch every stored series, ignoring freshness",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.services(cmd.Context()); err != nil {
				return err
			}

			byPeriod := make(map[models.Period][]models.InstrumentID)
			for _, e := range app.Store.Entries() {
				byPeriod[e.Period] = append(byPeriod[e.Period], e.Instrument)
			}
			periods := make([]models.Period, 0, len(byPeriod))
			for p := range byPeriod {
				periods = append(periods, p)
			}
			sort.Slice(periods, func(i, j int) bool { return periods[i] < periods[j] })

			var rows []quoteRow
			for _, p := range periods {
				for _, res := range app.Resolver.RefreshAll(cmd.Context(), byPeriod[p], p) {
					rows = append(rows, toQuoteRow(res))
				}
			}

			if output.IsStructured() {
				return output.Render(rows)
			}
			var failed int
			for _, r := range rows {
				if r.Error != "" || r.Stale {
					failed++
					output.Warning("%s: %s", r.Instrument, TruncateString(r.Error, 80))
				}
			}
			output.Success("Refreshed %d of %d series", len(rows)-failed, len(rows))
			return nil
		},
	})

	invalidate := &cobra.Command{
		Use:   "invalidate <isin|ticker>...",
		Short: "Drop stored series so the next request fetches again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.services(cmd.Context()); err != nil {
				return err
			}
			only := mustString(cmd, "period")
			var removed []store.EntryInfo
			for _, id := range instrumentArgs(args) {
				for _, e := range app.Store.Entries() {
					if e.Instrument != id || (only != "" && string(e.Period) != only) {
						continue
					}
					key := models.SeriesKey{Instrument: e.Instrument, Period: e.Period}
					if err := app.Store.Invalidate(cmd.Context(), key); err != nil {
						return err
					}
					removed = append(removed, e)
				}
			}
			if output.IsStructured() {
				return output.Render(map[string]int{"removed": len(removed)})
			}
			output.Success("Removed %d stored series", len(removed))
			return nil
		},
	}
	invalidate.Flags().StringP("period", "p", "", "only drop this period")
	cmd.AddCommand(invalidate)

	return cmd
}

type sourceReport struct {
	Name    string                          `json:"name"`
	Status  *resilience.SourceStatus        `json:"status,omitempty"`
	Breaker *resilience.CircuitBreakerStats `json:"breaker,omitempty"`
}

func sourceReports(r *quotes.Resolver) []sourceReport {
	var out []sourceReport
	for _, name := range r.Sources() {
		rep := sourceReport{Name: name}
		if st, ok := r.Monitor().Status(name); ok {
			rep.Status = &st
		}
		if reg := r.Breakers(); reg != nil {
			stats := reg.Get(name).Stats()
			rep.Breaker = &stats
		}
		out = append(out, rep)
	}
	return out
}

func newSourcesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources [isin|ticker]",
		Short: "Show quote sources in priority order with their health",
		Long: `List the configured quote sources in the order the resolver tries them.
With an instrument, first resolve it ignoring the store so every source's
availability and circuit breaker reflect a live attempt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.services(cmd.Context()); err != nil {
				return err
			}
			if len(args) == 1 {
				p, err := period(cmd)
				if err != nil {
					return err
				}
				app.Resolver.Refresh(cmd.Context(), instrumentArgs(args)[0], p)
			}

			reports := sourceReports(app.Resolver)
			if output.IsStructured() {
				return output.Render(reports)
			}
			table := NewTable(output, "#", "SOURCE", "AVAILABLE", "LATENCY", "CALLS", "BREAKER/FAIL", "LAST ERROR")
			for i, rep := range reports {
				avail, latency, calls, lastErr := "unknown", "-", "0", ""
				if rep.Status != nil {
					avail = output.ColoredString(ColorGreen, "yes")
					if !rep.Status.Available {
						avail = output.ColoredString(ColorRed, "no")
					}
					latency = rep.Status.Latency.Round(time.Millisecond).String()
					calls = fmt.Sprint(rep.Status.Calls)
					lastErr = TruncateString(rep.Status.LastError, 50)
				}
				breaker := "-"
				if rep.Breaker != nil {
					breaker = fmt.Sprintf("%s %.0f%%", rep.Breaker.State, rep.Breaker.FailureRate())
				}
				table.AddRow(fmt.Sprint(i+1), rep.Name, avail, latency, calls, breaker, lastErr)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringP("period", "p", "1mo", "period for the probe resolution")
	return cmd
}
