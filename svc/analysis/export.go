package analysis

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lessonloop/churnkit/pkg/dataset"
	"github.com/lessonloop/churnkit/pkg/logger"
	"github.com/lessonloop/churnkit/pkg/revenue"
)

// Export file names within the output directory.
const (
	FileSubscriptions = "subscriptions.csv"
	FileGroups        = "identity_groups.csv"
	FileBillingRows   = "billing_rows.csv"
	FileChurnSummary  = "churn_summary.csv"
	FileRevenue       = "monthly_revenue.csv"
	FileRRL           = "churned_rrl.csv"
	FileRunInfo       = "run_info.csv"
)

// Export writes every table produced so far into dir as CSV files. The
// cleaned tables require LoadData; churn and revenue tables are written
// only when their stage has run. A run_info.csv stamps the run id on the
// output set.
func (a *Analyzer) Export(dir string) error {
	if !a.loaded {
		return ErrDataNotLoaded
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	mapping := dataset.DefaultColumnMapping()

	if err := a.exportFile(dir, FileSubscriptions, func(f *os.File) error {
		return dataset.WriteSubscriptions(f, a.records, mapping)
	}); err != nil {
		return err
	}
	if err := a.exportFile(dir, FileGroups, func(f *os.File) error {
		return dataset.WriteGroups(f, a.groups, mapping)
	}); err != nil {
		return err
	}
	if err := a.exportFile(dir, FileBillingRows, func(f *os.File) error {
		return dataset.WriteBillingRows(f, a.billing)
	}); err != nil {
		return err
	}
	if err := a.exportFile(dir, FileRevenue, func(f *os.File) error {
		return dataset.WriteRevenueSeries(f, revenue.Monthly(a.billing))
	}); err != nil {
		return err
	}

	if a.churnDone {
		if err := a.exportFile(dir, FileChurnSummary, func(f *os.File) error {
			return dataset.WriteChurnSummary(f, a.churnSummary.Rows)
		}); err != nil {
			return err
		}
	}
	if a.rrlDone {
		if err := a.exportFile(dir, FileRRL, func(f *os.File) error {
			return dataset.WriteRRL(f, a.rrl)
		}); err != nil {
			return err
		}
	}

	if err := a.exportFile(dir, FileRunInfo, a.writeRunInfo); err != nil {
		return err
	}

	a.log.Info("analysis exported",
		logger.Component("analyzer"),
		slog.String("dir", dir),
	)
	return nil
}

func (a *Analyzer) exportFile(dir, name string, write func(*os.File) error) error {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return nil
}

func (a *Analyzer) writeRunInfo(f *os.File) error {
	cw := csv.NewWriter(f)
	rows := [][]string{
		{"key", "value"},
		{"run_id", a.runID.String()},
		{"generated_at", time.Now().UTC().Format(time.RFC3339)},
		{"cleaned_records", fmt.Sprint(len(a.records))},
		{"billing_rows", fmt.Sprint(len(a.billing))},
		{"churn_computed", fmt.Sprint(a.churnDone)},
		{"revenue_computed", fmt.Sprint(a.rrlDone)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
