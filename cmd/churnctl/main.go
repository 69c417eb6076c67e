// churnctl runs the churn analysis pipeline over a subscription export and
// writes the report tables as CSV files.
//
// Usage:
//
//	churnctl -input export.csv -out reports/ [-guide guide.csv] [-plans plans.yaml]
//
// Flags override environment variables (CHURNKIT_*), which override .env.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/config"
	"github.com/lessonloop/churnkit/pkg/dataset"
	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/logger"
	"github.com/lessonloop/churnkit/pkg/revenue"
	"github.com/lessonloop/churnkit/pkg/subscription"
	"github.com/lessonloop/churnkit/svc/analysis"
)

type appConfig struct {
	Input         string `env:"CHURNKIT_INPUT"`
	Guide         string `env:"CHURNKIT_GUIDE"`
	Plans         string `env:"CHURNKIT_PLANS"`
	OutDir        string `env:"CHURNKIT_OUT" envDefault:"reports"`
	BillingTiming string `env:"CHURNKIT_BILLING_TIMING" envDefault:"in_advance"`
	Ceiling       string `env:"CHURNKIT_CEILING"`
	EndColumn     string `env:"CHURNKIT_END_COLUMN" envDefault:"canceled_at"`
	LogFormat     string `env:"CHURNKIT_LOG_FORMAT" envDefault:"text"`
	Verbose       bool   `env:"CHURNKIT_VERBOSE" envDefault:"false"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "churnctl:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	flag.StringVar(&cfg.Input, "input", cfg.Input, "subscription export CSV (required)")
	flag.StringVar(&cfg.Guide, "guide", cfg.Guide, "duplicate disposition guide CSV")
	flag.StringVar(&cfg.Plans, "plans", cfg.Plans, "lesson plan catalog YAML (default: built-in catalog)")
	flag.StringVar(&cfg.OutDir, "out", cfg.OutDir, "output directory for report CSVs")
	flag.StringVar(&cfg.BillingTiming, "timing", cfg.BillingTiming, "billing timing: in_advance or in_arrears")
	flag.StringVar(&cfg.Ceiling, "ceiling", cfg.Ceiling, "analysis ceiling date (YYYY-MM-DD, default: today)")
	flag.StringVar(&cfg.EndColumn, "end-column", cfg.EndColumn, "end date column: canceled_at or ended_at")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "debug logging")
	flag.Parse()

	if cfg.Input == "" {
		flag.Usage()
		return fmt.Errorf("missing -input")
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	log := logger.New(
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithLevel(level),
		logger.WithService("churnctl"),
	)
	logger.SetAsDefault(log)

	timing, err := revenue.ParseBillingTiming(cfg.BillingTiming)
	if err != nil {
		return err
	}

	endColumn := subscription.EndColumn(cfg.EndColumn)
	switch endColumn {
	case subscription.EndColumnCanceledAt, subscription.EndColumnEndedAt:
	default:
		return fmt.Errorf("invalid -end-column %q", cfg.EndColumn)
	}

	cat := catalog.Default()
	if cfg.Plans != "" {
		f, err := os.Open(cfg.Plans)
		if err != nil {
			return fmt.Errorf("open plans file: %w", err)
		}
		cat, err = catalog.LoadYAML(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	guide := dedup.Guide{}
	if cfg.Guide != "" {
		f, err := os.Open(cfg.Guide)
		if err != nil {
			return fmt.Errorf("open guide file: %w", err)
		}
		guide, err = dataset.LoadGuide(f, log)
		f.Close()
		if err != nil {
			return err
		}
	}

	opts := []analysis.Option{
		analysis.WithLogger(log),
		analysis.WithGuide(guide),
		analysis.WithEndColumn(endColumn),
	}
	if cfg.Ceiling != "" {
		ceiling, err := time.ParseInLocation("2006-01-02", cfg.Ceiling, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid -ceiling: %w", err)
		}
		opts = append(opts, analysis.WithCeiling(ceiling))
	}

	a := analysis.NewAnalyzer(cat, opts...)

	input, err := os.Open(cfg.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	if err := a.LoadData(input); err != nil {
		return err
	}
	if _, err := a.ComputeChurn(); err != nil {
		return err
	}
	if _, err := a.ComputeChurnedRevenue(timing); err != nil {
		return err
	}
	if err := a.Export(cfg.OutDir); err != nil {
		return err
	}

	overview, err := a.Overview()
	if err != nil {
		return err
	}
	log.Info("analysis complete",
		slog.String("out_dir", cfg.OutDir),
		slog.Int("customers", overview.Customers),
		slog.Int("months", overview.MonthsAnalyzed),
		slog.String("total_revenue", overview.TotalRevenue.String()),
		slog.String("churned_rrl", overview.TotalChurnedRRL.String()),
	)
	return nil
}
