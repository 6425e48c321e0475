package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"github.com/bobmcallan/vire-analyzer/internal/app"
	"github.com/bobmcallan/vire-analyzer/internal/common"
	"github.com/bobmcallan/vire-analyzer/internal/models"
	"github.com/bobmcallan/vire-analyzer/internal/services/report"
)

// register adds every subcommand to the commander.
func register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(c.CommandsCommand(), "")

	c.Register(&analyzeCmd{}, "analysis")
	c.Register(&holdingsCmd{}, "analysis")
	c.Register(&xirrCmd{}, "analysis")
	c.Register(&splitsCmd{}, "analysis")
	c.Register(&chartCmd{}, "analysis")

	c.Register(&versionCmd{}, "")
}

// runFlags are shared by every command that runs the pipeline.
type runFlags struct {
	asOf   string
	files  string
	pretty bool
}

func (r *runFlags) set(f *flag.FlagSet) {
	f.StringVar(&r.asOf, "as-of", "", "Value positions up to this date, YYYY-MM-DD (default today)")
	f.StringVar(&r.files, "files", "", "Comma-separated trade files (default: [ledger] files from config)")
	f.BoolVar(&r.pretty, "pretty", false, "Render the markdown report for the terminal")
}

// print writes a markdown report to stdout, styled when -pretty is set.
func (r *runFlags) print(md string) error {
	if r.pretty {
		out, err := glamour.Render(md, "dark")
		if err != nil {
			return fmt.Errorf("failed to render report: %w", err)
		}
		md = out
	}
	_, err := fmt.Fprint(os.Stdout, md)
	return err
}

// run loads the app, runs the pipeline and hands the result to fn.
func (r *runFlags) run(ctx context.Context, fn func(a *app.App, analysis *models.Analysis) error) subcommands.ExitStatus {
	asOf, err := parseAsOf(r.asOf)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	a, err := app.NewApp(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if !*quiet {
		common.PrintBanner(os.Stderr, a.Config, a.Logger)
	}

	analysis, err := a.Analyze(ctx, splitList(r.files), asOf)
	if err != nil {
		return reportError(os.Stderr, err)
	}

	if err := fn(a, analysis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// reportError prints the diagnostic for a failed run.
func reportError(w io.Writer, err error) subcommands.ExitStatus {
	var corruption *models.NumericCorruptionError
	switch {
	case errors.As(err, &corruption):
		fmt.Fprintf(w, "Numeric corruption in %s (%s), %d row(s):\n", corruption.Stage, corruption.Column, len(corruption.Rows))
		for _, row := range corruption.Rows {
			line := fmt.Sprintf("  %s  %s", row.Date.Format("2006-01-02"), row.Symbol)
			if row.Detail != "" {
				line += "  " + row.Detail
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintf(w, "Affected symbols: %s\n", strings.Join(corruption.Symbols(), ", "))
	case errors.Is(err, models.ErrNoTradeData):
		fmt.Fprintf(w, "No trade data: %v\n", err)
	default:
		fmt.Fprintf(w, "Analysis failed: %v\n", err)
	}
	return subcommands.ExitFailure
}

func parseAsOf(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -as-of date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type analyzeCmd struct {
	runFlags
	asJSON bool
}

func (*analyzeCmd) Name() string     { return "analyze" }
func (*analyzeCmd) Synopsis() string { return "value the portfolio and report returns per holding" }
func (*analyzeCmd) Usage() string {
	return `analyze [-as-of <date>] [-files <a.csv,b.csv>] [-pretty] [-json]

  Runs split adjustment, currency conversion, price history and valuation over
  the trade ledger, then prints the summary, current holdings, XIRR per
  holding, applied splits and any degraded-data warnings.
`
}

func (c *analyzeCmd) SetFlags(f *flag.FlagSet) {
	c.runFlags.set(f)
	f.BoolVar(&c.asJSON, "json", false, "Print the analysis as JSON")
}

func (c *analyzeCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(_ *app.App, analysis *models.Analysis) error {
		if c.asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(analysis)
		}
		return c.print(report.FormatAnalysis(analysis))
	})
}

type holdingsCmd struct{ runFlags }

func (*holdingsCmd) Name() string     { return "holdings" }
func (*holdingsCmd) Synopsis() string { return "list current holdings valued in reporting currency" }
func (*holdingsCmd) Usage() string {
	return `holdings [-as-of <date>] [-files <a.csv,b.csv>] [-pretty]

  Prints every open position on the as-of date with quantity, unit price,
  value and portfolio weight, largest first.
`
}

func (c *holdingsCmd) SetFlags(f *flag.FlagSet) { c.runFlags.set(f) }

func (c *holdingsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(_ *app.App, analysis *models.Analysis) error {
		return c.print(report.FormatHoldings(analysis) + report.FormatWarnings(analysis))
	})
}

type xirrCmd struct {
	runFlags
	verbose bool
}

func (*xirrCmd) Name() string     { return "xirr" }
func (*xirrCmd) Synopsis() string { return "annualised money-weighted return per holding" }
func (*xirrCmd) Usage() string {
	return `xirr [-as-of <date>] [-files <a.csv,b.csv>] [-pretty] [-v]

  Prints the XIRR of every holding and of the whole portfolio. With -v the
  cashflow diagnostics behind each rate are included.
`
}

func (c *xirrCmd) SetFlags(f *flag.FlagSet) {
	c.runFlags.set(f)
	f.BoolVar(&c.verbose, "v", false, "Include cashflow diagnostics")
}

func (c *xirrCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(_ *app.App, analysis *models.Analysis) error {
		return c.print(report.FormatXIRR(analysis, c.verbose) + report.FormatWarnings(analysis))
	})
}

type splitsCmd struct{ runFlags }

func (*splitsCmd) Name() string     { return "splits" }
func (*splitsCmd) Synopsis() string { return "list the split events applied to the ledger" }
func (*splitsCmd) Usage() string {
	return `splits [-as-of <date>] [-files <a.csv,b.csv>] [-pretty]

  Prints each split event found for the held symbols over the ledger window.
`
}

func (c *splitsCmd) SetFlags(f *flag.FlagSet) { c.runFlags.set(f) }

func (c *splitsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(_ *app.App, analysis *models.Analysis) error {
		return c.print(report.FormatSplits(analysis))
	})
}

type chartCmd struct {
	runFlags
	output string
	width  int
	height int
}

func (*chartCmd) Name() string     { return "chart" }
func (*chartCmd) Synopsis() string { return "render the daily portfolio value as a PNG chart" }
func (*chartCmd) Usage() string {
	return `chart [-as-of <date>] [-files <a.csv,b.csv>] [-o <file.png>] [-width <px>] [-height <px>]

  Renders the daily portfolio value against the net amount invested.
`
}

func (c *chartCmd) SetFlags(f *flag.FlagSet) {
	c.runFlags.set(f)
	f.StringVar(&c.output, "o", "portfolio-value.png", "Output PNG file")
	f.IntVar(&c.width, "width", 0, "Chart width in pixels (default from config)")
	f.IntVar(&c.height, "height", 0, "Chart height in pixels (default from config)")
}

func (c *chartCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.run(ctx, func(a *app.App, analysis *models.Analysis) error {
		opts := report.ChartOptions{Width: a.Config.Chart.Width, Height: a.Config.Chart.Height}
		if c.width > 0 {
			opts.Width = c.width
		}
		if c.height > 0 {
			opts.Height = c.height
		}

		png, err := report.RenderValueChart(analysis, opts)
		if err != nil {
			return fmt.Errorf("failed to render chart: %w", err)
		}
		if err := os.WriteFile(c.output, png, 0644); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
		fmt.Printf("Chart written to %s\n", c.output)
		return nil
	})
}

type versionCmd struct{}

func (*versionCmd) Name() string             { return "version" }
func (*versionCmd) Synopsis() string         { return "print version information" }
func (*versionCmd) Usage() string            { return "version\n" }
func (*versionCmd) SetFlags(_ *flag.FlagSet) {}

func (*versionCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	fmt.Println(common.GetFullVersion())
	return subcommands.ExitSuccess
}
