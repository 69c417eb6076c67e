package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/lessonloop/churnkit/pkg/churn"
	"github.com/lessonloop/churnkit/pkg/identity"
	"github.com/lessonloop/churnkit/pkg/revenue"
	"github.com/lessonloop/churnkit/pkg/subscription"
	"github.com/lessonloop/churnkit/pkg/timeline"
)

const exportDateLayout = "2006-01-02"

// WriteSubscriptions writes the cleaned subscription table.
func WriteSubscriptions(w io.Writer, records []subscription.Record, mapping ColumnMapping) error {
	cw := csv.NewWriter(w)
	header := []string{"cust_id", mapping.Name, mapping.Email, mapping.StartDate, mapping.CanceledAt, mapping.EndedAt, mapping.Status, mapping.Amount}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write subscriptions header: %w", err)
	}
	for _, r := range records {
		row := []string{
			string(r.CustomerID),
			r.Name,
			r.Email,
			r.StartDate.Format(exportDateLayout),
			formatDate(r.CanceledAt),
			formatDate(r.EndedAt),
			string(r.Status),
			r.Amount.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write subscription row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGroups writes the identity-group audit snapshot: every record with
// its group id, for curating the disposition guide. The snapshot is written
// for reference only; groups are recomputed fresh on every load.
func WriteGroups(w io.Writer, groups []identity.Group, mapping ColumnMapping) error {
	cw := csv.NewWriter(w)
	header := []string{"group_id", mapping.Name, mapping.Email, mapping.StartDate, mapping.CanceledAt, mapping.Status, mapping.Amount}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write groups header: %w", err)
	}
	for _, g := range groups {
		for _, r := range g.Members {
			row := []string{
				strconv.Itoa(g.ID),
				r.Name,
				r.Email,
				r.StartDate.Format(exportDateLayout),
				formatDate(r.CanceledAt),
				string(r.Status),
				r.Amount.String(),
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write group row: %w", err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBillingRows writes the monthly billing table.
func WriteBillingRows(w io.Writer, rows []timeline.Row) error {
	cw := csv.NewWriter(w)
	header := []string{"cust_id", "month", "contract_start", "lesson_label", "lesson_type", "duration_months", "times_per_week", "monthly_price"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write billing header: %w", err)
	}
	for _, r := range rows {
		row := []string{
			string(r.CustomerID),
			r.Month.String(),
			r.ContractStart.Format(exportDateLayout),
			r.PlanLabel,
			string(r.LessonType),
			strconv.Itoa(r.DurationMonths),
			strconv.Itoa(r.TimesPerWeek),
			r.MonthlyPrice.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write billing row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteChurnSummary writes the monthly churn table. An undefined churn rate
// (zero actives) is written as an empty cell.
func WriteChurnSummary(w io.Writer, rows []churn.MonthlyMetrics) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Month", "Starts", "Cancellations", "Actives", "Churn_Rate"}); err != nil {
		return fmt.Errorf("write churn header: %w", err)
	}
	for _, r := range rows {
		rate := ""
		if !math.IsNaN(r.ChurnRate) {
			rate = strconv.FormatFloat(r.ChurnRate, 'f', -1, 64)
		}
		row := []string{
			r.Month.String(),
			strconv.Itoa(r.Starts),
			strconv.Itoa(r.Cancellations),
			strconv.Itoa(r.Actives),
			rate,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write churn row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRevenueSeries writes the per-month revenue table.
func WriteRevenueSeries(w io.Writer, series revenue.MonthlySeries) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"month", "revenue"}); err != nil {
		return fmt.Errorf("write revenue header: %w", err)
	}
	for _, m := range series.Months {
		if err := cw.Write([]string{m.Month.String(), m.Revenue.String()}); err != nil {
			return fmt.Errorf("write revenue row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRRL writes the recurring-revenue-lost table.
func WriteRRL(w io.Writer, result revenue.RRLResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"loss_month", "churned_rrl"}); err != nil {
		return fmt.Errorf("write rrl header: %w", err)
	}
	for _, m := range result.ByMonth {
		if err := cw.Write([]string{m.LossMonth.String(), m.Lost.String()}); err != nil {
			return fmt.Errorf("write rrl row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(exportDateLayout)
}
