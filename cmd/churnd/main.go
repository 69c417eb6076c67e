// churnd serves the churn analysis report tables over HTTP for the
// dashboard. It runs the pipeline once at startup over the configured
// export and holds the resulting tables in memory; rendering stays with
// the dashboard.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/config"
	"github.com/lessonloop/churnkit/pkg/dataset"
	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/httpserver"
	"github.com/lessonloop/churnkit/pkg/logger"
	"github.com/lessonloop/churnkit/pkg/revenue"
	"github.com/lessonloop/churnkit/svc/analysis"
)

type serverConfig struct {
	Addr            string        `env:"CHURND_ADDR" envDefault:":8080"`
	Input           string        `env:"CHURND_INPUT,required"`
	Guide           string        `env:"CHURND_GUIDE"`
	Plans           string        `env:"CHURND_PLANS"`
	BillingTiming   string        `env:"CHURND_BILLING_TIMING" envDefault:"in_advance"`
	Ceiling         string        `env:"CHURND_CEILING"`
	LogFormat       string        `env:"CHURND_LOG_FORMAT" envDefault:"json"`
	ShutdownTimeout time.Duration `env:"CHURND_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "churnd:", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg serverConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(
		logger.WithFormat(logger.Format(cfg.LogFormat)),
		logger.WithService("churnd"),
		logger.WithContextValue("request_id", middleware.RequestIDKey),
	)
	logger.SetAsDefault(log)

	timing, err := revenue.ParseBillingTiming(cfg.BillingTiming)
	if err != nil {
		return err
	}

	a, err := buildAnalyzer(cfg, log)
	if err != nil {
		return err
	}
	if _, err := a.ComputeChurn(); err != nil {
		return err
	}
	if _, err := a.ComputeChurnedRevenue(timing); err != nil {
		return err
	}

	srv := httpserver.New(
		httpserver.WithAddr(cfg.Addr),
		httpserver.WithShutdownTimeout(cfg.ShutdownTimeout),
		httpserver.WithLogger(log),
	)
	return srv.Run(context.Background(), newRouter(a, log))
}

func buildAnalyzer(cfg serverConfig, log *slog.Logger) (*analysis.Analyzer, error) {
	cat := catalog.Default()
	if cfg.Plans != "" {
		f, err := os.Open(cfg.Plans)
		if err != nil {
			return nil, fmt.Errorf("open plans file: %w", err)
		}
		cat, err = catalog.LoadYAML(f)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	guide := dedup.Guide{}
	if cfg.Guide != "" {
		f, err := os.Open(cfg.Guide)
		if err != nil {
			return nil, fmt.Errorf("open guide file: %w", err)
		}
		guide, err = dataset.LoadGuide(f, log)
		f.Close()
		if err != nil {
			return nil, err
		}
	}

	opts := []analysis.Option{
		analysis.WithLogger(log),
		analysis.WithGuide(guide),
	}
	if cfg.Ceiling != "" {
		ceiling, err := time.ParseInLocation("2006-01-02", cfg.Ceiling, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid ceiling: %w", err)
		}
		opts = append(opts, analysis.WithCeiling(ceiling))
	}

	a := analysis.NewAnalyzer(cat, opts...)

	input, err := os.Open(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer input.Close()

	if err := a.LoadData(input); err != nil {
		return nil, err
	}
	return a, nil
}
