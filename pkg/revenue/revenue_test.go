package revenue_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/churn"
	"github.com/lessonloop/churnkit/pkg/revenue"
	"github.com/lessonloop/churnkit/pkg/subscription"
	"github.com/lessonloop/churnkit/pkg/timeline"
)

func month(y int, m time.Month) subscription.Month {
	return subscription.Month{Year: y, Month: m}
}

func billingRow(id string, m subscription.Month, price int64) timeline.Row {
	return timeline.Row{
		CustomerID:     subscription.CustomerID(id),
		Month:          m,
		ContractStart:  m.Time(),
		PlanLabel:      "Private-Month",
		LessonType:     catalog.LessonTypePrivate,
		DurationMonths: 1,
		TimesPerWeek:   1,
		MonthlyPrice:   decimal.NewFromInt(price),
	}
}

func TestParseBillingTiming(t *testing.T) {
	t.Parallel()

	t.Run("accepts both policies", func(t *testing.T) {
		t.Parallel()
		for _, s := range []string{"in_advance", "in_arrears"} {
			_, err := revenue.ParseBillingTiming(s)
			assert.NoError(t, err)
		}
	})

	t.Run("rejects anything else", func(t *testing.T) {
		t.Parallel()
		_, err := revenue.ParseBillingTiming("quarterly")
		assert.ErrorIs(t, err, revenue.ErrUnknownBillingTiming)
	})
}

func TestMonthly(t *testing.T) {
	t.Parallel()

	t.Run("empty table yields empty series", func(t *testing.T) {
		t.Parallel()
		series := revenue.Monthly(nil)
		assert.Empty(t, series.Months)
		assert.True(t, series.Total.IsZero())
	})

	t.Run("sums per month and averages across months", func(t *testing.T) {
		t.Parallel()
		rows := []timeline.Row{
			billingRow("a", month(2023, time.January), 129),
			billingRow("b", month(2023, time.January), 150),
			billingRow("a", month(2023, time.February), 129),
		}

		series := revenue.Monthly(rows)
		require.Len(t, series.Months, 2)
		assert.Equal(t, month(2023, time.January), series.Months[0].Month)
		assert.True(t, series.Months[0].Revenue.Equal(decimal.NewFromInt(279)))
		assert.True(t, series.Months[1].Revenue.Equal(decimal.NewFromInt(129)))
		assert.True(t, series.Total.Equal(decimal.NewFromInt(408)))
		assert.True(t, series.Average.Equal(decimal.NewFromInt(204)))
	})
}

func TestChurnedRevenue(t *testing.T) {
	t.Parallel()

	canceled := func(m subscription.Month, ids ...string) map[subscription.Month][]churn.CustomerRef {
		out := make(map[subscription.Month][]churn.CustomerRef)
		for _, id := range ids {
			out[m] = append(out[m], churn.CustomerRef{CustomerID: subscription.CustomerID(id)})
		}
		return out
	}

	t.Run("rejects unknown timing", func(t *testing.T) {
		t.Parallel()
		_, err := revenue.ChurnedRevenue(nil, nil, "whenever")
		assert.ErrorIs(t, err, revenue.ErrUnknownBillingTiming)
	})

	t.Run("in advance shifts the loss to the next month", func(t *testing.T) {
		t.Parallel()
		// Last billing row 150 at 2023-07, cancel in 2023-07: the RRL lands
		// in 2023-08.
		rows := []timeline.Row{
			billingRow("a", month(2023, time.June), 150),
			billingRow("a", month(2023, time.July), 150),
		}

		result, err := revenue.ChurnedRevenue(rows, canceled(month(2023, time.July), "a"), revenue.BillingInAdvance)
		require.NoError(t, err)
		require.Len(t, result.ByMonth, 1)
		assert.Equal(t, month(2023, time.August), result.ByMonth[0].LossMonth)
		assert.True(t, result.ByMonth[0].Lost.Equal(decimal.NewFromInt(150)))
		assert.True(t, result.Total.Equal(decimal.NewFromInt(150)))
	})

	t.Run("in arrears keeps the loss in the cancel month", func(t *testing.T) {
		t.Parallel()
		rows := []timeline.Row{billingRow("a", month(2023, time.July), 150)}

		result, err := revenue.ChurnedRevenue(rows, canceled(month(2023, time.July), "a"), revenue.BillingInArrears)
		require.NoError(t, err)
		require.Len(t, result.ByMonth, 1)
		assert.Equal(t, month(2023, time.July), result.ByMonth[0].LossMonth)
	})

	t.Run("uses the last billing row at or before the cancel month", func(t *testing.T) {
		t.Parallel()
		// Billing stopped in may; the customer formally canceled in july.
		// The lost value is the may price, not zero.
		rows := []timeline.Row{
			billingRow("a", month(2023, time.April), 129),
			billingRow("a", month(2023, time.May), 180),
		}

		result, err := revenue.ChurnedRevenue(rows, canceled(month(2023, time.July), "a"), revenue.BillingInArrears)
		require.NoError(t, err)
		require.Len(t, result.ByMonth, 1)
		assert.True(t, result.ByMonth[0].Lost.Equal(decimal.NewFromInt(180)))
	})

	t.Run("customer with no billing history contributes zero", func(t *testing.T) {
		t.Parallel()
		result, err := revenue.ChurnedRevenue(nil, canceled(month(2023, time.July), "ghost"), revenue.BillingInArrears)
		require.NoError(t, err)
		assert.Empty(t, result.ByMonth)
		assert.True(t, result.Total.IsZero())
	})

	t.Run("duplicate refs for one customer count once", func(t *testing.T) {
		t.Parallel()
		rows := []timeline.Row{billingRow("a", month(2023, time.July), 150)}

		result, err := revenue.ChurnedRevenue(rows, canceled(month(2023, time.July), "a", "a"), revenue.BillingInArrears)
		require.NoError(t, err)
		assert.True(t, result.Total.Equal(decimal.NewFromInt(150)))
	})

	t.Run("losses aggregate across customers per month", func(t *testing.T) {
		t.Parallel()
		rows := []timeline.Row{
			billingRow("a", month(2023, time.July), 150),
			billingRow("b", month(2023, time.July), 129),
		}

		result, err := revenue.ChurnedRevenue(rows, canceled(month(2023, time.July), "a", "b"), revenue.BillingInArrears)
		require.NoError(t, err)
		require.Len(t, result.ByMonth, 1)
		assert.True(t, result.ByMonth[0].Lost.Equal(decimal.NewFromInt(279)))
	})
}

func TestBreakdowns(t *testing.T) {
	t.Parallel()

	rows := []timeline.Row{
		billingRow("a", month(2023, time.January), 129),
		billingRow("a", month(2023, time.February), 129),
		billingRow("b", month(2023, time.January), 60),
	}
	rows[2].LessonType = catalog.LessonTypeGroup
	rows[2].DurationMonths = 1

	t.Run("by lesson type", func(t *testing.T) {
		t.Parallel()
		byType := revenue.ByLessonType(rows)
		require.Contains(t, byType, catalog.LessonTypePrivate)
		require.Contains(t, byType, catalog.LessonTypeGroup)

		private := byType[catalog.LessonTypePrivate]
		assert.True(t, private.TotalRevenue.Equal(decimal.NewFromInt(258)))
		assert.Equal(t, 2, private.Payments)
		assert.Equal(t, 1, private.UniqueCustomers)
	})

	t.Run("by duration", func(t *testing.T) {
		t.Parallel()
		byDuration := revenue.ByDuration(rows)
		require.Contains(t, byDuration, 1)
		assert.Equal(t, 3, byDuration[1].Payments)
		assert.Equal(t, 2, byDuration[1].UniqueCustomers)
	})
}

func TestCustomerLifetimeValue(t *testing.T) {
	t.Parallel()

	rows := []timeline.Row{
		billingRow("a", month(2023, time.January), 129),
		billingRow("a", month(2023, time.February), 150),
	}

	t.Run("sums and averages a customer's history", func(t *testing.T) {
		t.Parallel()
		ltv := revenue.CustomerLifetimeValue(rows, "a")
		assert.Equal(t, 2, ltv.Months)
		assert.True(t, ltv.TotalRevenue.Equal(decimal.NewFromInt(279)))
		assert.True(t, ltv.AverageMonthly.Equal(decimal.RequireFromString("139.5")))
	})

	t.Run("unknown customer yields zero value", func(t *testing.T) {
		t.Parallel()
		ltv := revenue.CustomerLifetimeValue(rows, "nobody")
		assert.Zero(t, ltv.Months)
		assert.True(t, ltv.TotalRevenue.IsZero())
	})
}

func TestSeriesRange(t *testing.T) {
	t.Parallel()

	t.Run("empty series", func(t *testing.T) {
		t.Parallel()
		stats := revenue.SeriesRange(revenue.MonthlySeries{})
		assert.True(t, stats.Min.IsZero())
		assert.Zero(t, stats.Std)
	})

	t.Run("min max and spread", func(t *testing.T) {
		t.Parallel()
		series := revenue.Monthly([]timeline.Row{
			billingRow("a", month(2023, time.January), 100),
			billingRow("a", month(2023, time.February), 300),
		})

		stats := revenue.SeriesRange(series)
		assert.True(t, stats.Min.Equal(decimal.NewFromInt(100)))
		assert.True(t, stats.Max.Equal(decimal.NewFromInt(300)))
		assert.InDelta(t, 141.42, stats.Std, 0.01)
	})
}
