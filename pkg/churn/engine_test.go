package churn_test

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/churnkit/pkg/churn"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateP(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func rec(name string, start time.Time, canceled *time.Time) subscription.Record {
	email := name + "@example.com"
	return subscription.Record{
		Name:       name,
		Email:      email,
		CustomerID: subscription.NewCustomerID(name, email),
		StartDate:  start,
		CanceledAt: canceled,
		Status:     subscription.StatusActive,
		Amount:     decimal.NewFromInt(129),
	}
}

func month(y int, m time.Month) subscription.Month {
	return subscription.Month{Year: y, Month: m}
}

func TestEngine_Analyze(t *testing.T) {
	t.Parallel()

	t.Run("no records", func(t *testing.T) {
		t.Parallel()
		_, err := churn.NewEngine().Analyze(nil)
		assert.ErrorIs(t, err, churn.ErrNoData)
	})

	t.Run("counts starts cancellations and actives per month", func(t *testing.T) {
		t.Parallel()
		records := []subscription.Record{
			rec("jane", date(2023, time.January, 5), dateP(2023, time.June, 15)),
			rec("bob", date(2023, time.January, 20), nil),
			rec("carol", date(2023, time.March, 1), nil),
		}

		summary, err := churn.NewEngine().Analyze(records)
		require.NoError(t, err)
		require.NotEmpty(t, summary.Rows)

		// Window spans jan (first start) through jun (last cancel). January
		// has no one active as of month start (both started after the 1st),
		// so it is trimmed and the table begins in february.
		assert.Equal(t, month(2023, time.February), summary.Rows[0].Month)
		assert.Equal(t, month(2023, time.June), summary.Rows[len(summary.Rows)-1].Month)

		byMonth := make(map[subscription.Month]churn.MonthlyMetrics)
		for _, row := range summary.Rows {
			byMonth[row.Month] = row
		}
		assert.Equal(t, 2, byMonth[month(2023, time.February)].Actives)
		assert.Equal(t, 3, byMonth[month(2023, time.April)].Actives)
		assert.Equal(t, 1, byMonth[month(2023, time.June)].Cancellations)
		assert.InDelta(t, 1.0/3.0, byMonth[month(2023, time.June)].ChurnRate, 1e-9)

		// The untrimmed byproduct still carries january's starts.
		assert.Len(t, summary.Started[month(2023, time.January)], 2)
		assert.Len(t, summary.Canceled[month(2023, time.June)], 1)
	})

	t.Run("counts a june cancellation in june", func(t *testing.T) {
		t.Parallel()
		records := []subscription.Record{
			rec("jane", date(2023, time.January, 1), dateP(2023, time.June, 15)),
		}

		summary, err := churn.NewEngine().Analyze(records)
		require.NoError(t, err)

		var june churn.MonthlyMetrics
		for _, row := range summary.Rows {
			if row.Month == month(2023, time.June) {
				june = row
			}
		}
		assert.Equal(t, 1, june.Cancellations)
		assert.Equal(t, 1, june.Actives, "canceled mid-month, still active as of june 1st")
	})

	t.Run("customer active on the first of the month counts as active", func(t *testing.T) {
		t.Parallel()
		records := []subscription.Record{
			rec("jane", date(2023, time.January, 1), dateP(2023, time.March, 1)),
		}

		summary, err := churn.NewEngine().Analyze(records)
		require.NoError(t, err)

		byMonth := make(map[subscription.Month]churn.MonthlyMetrics)
		for _, row := range summary.Rows {
			byMonth[row.Month] = row
		}
		assert.Equal(t, 1, byMonth[month(2023, time.March)].Actives,
			"end exactly at month start is inclusive")
	})

	t.Run("interior zero-active months are kept with NaN rate", func(t *testing.T) {
		t.Parallel()
		records := []subscription.Record{
			rec("jane", date(2023, time.January, 1), dateP(2023, time.February, 10)),
			rec("bob", date(2023, time.May, 1), dateP(2023, time.June, 10)),
		}

		summary, err := churn.NewEngine().Analyze(records)
		require.NoError(t, err)

		byMonth := make(map[subscription.Month]churn.MonthlyMetrics)
		for _, row := range summary.Rows {
			byMonth[row.Month] = row
		}

		require.Contains(t, byMonth, month(2023, time.April))
		assert.Zero(t, byMonth[month(2023, time.April)].Actives)
		assert.True(t, math.IsNaN(byMonth[month(2023, time.April)].ChurnRate),
			"rate is NaN exactly when actives is zero")
	})

	t.Run("churn rate above one is representable", func(t *testing.T) {
		t.Parallel()
		// Two same-month start-and-cancel rows against one carry-over active:
		// 2 cancellations over 1 active.
		records := []subscription.Record{
			rec("jane", date(2023, time.January, 1), nil),
			rec("bob", date(2023, time.February, 3), dateP(2023, time.February, 20)),
			rec("carol", date(2023, time.February, 5), dateP(2023, time.February, 25)),
		}

		summary, err := churn.NewEngine().Analyze(records)
		require.NoError(t, err)

		byMonth := make(map[subscription.Month]churn.MonthlyMetrics)
		for _, row := range summary.Rows {
			byMonth[row.Month] = row
		}
		assert.InDelta(t, 2.0, byMonth[month(2023, time.February)].ChurnRate, 1e-9)
	})

	t.Run("explicit window bounds the table", func(t *testing.T) {
		t.Parallel()
		records := []subscription.Record{
			rec("jane", date(2022, time.June, 1), nil),
			rec("bob", date(2023, time.February, 1), dateP(2023, time.November, 1)),
		}

		window := churn.Window{From: month(2023, time.January), To: month(2023, time.June)}
		summary, err := churn.NewEngine().AnalyzeWindow(records, window)
		require.NoError(t, err)

		assert.Equal(t, month(2023, time.January), summary.Rows[0].Month)
		assert.Equal(t, month(2023, time.June), summary.Rows[len(summary.Rows)-1].Month)
		assert.Empty(t, summary.Canceled, "november cancellation is outside the window")
	})

	t.Run("ended-at column drives cancellations when selected", func(t *testing.T) {
		t.Parallel()
		r := rec("jane", date(2023, time.January, 1), nil)
		r.EndedAt = dateP(2023, time.April, 2)

		engine := churn.NewEngine(churn.WithEndColumn(subscription.EndColumnEndedAt))
		summary, err := engine.Analyze([]subscription.Record{r})
		require.NoError(t, err)

		byMonth := make(map[subscription.Month]churn.MonthlyMetrics)
		for _, row := range summary.Rows {
			byMonth[row.Month] = row
		}
		assert.Equal(t, 1, byMonth[month(2023, time.April)].Cancellations)
	})
}
