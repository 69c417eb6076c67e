package analysis_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/revenue"
	"github.com/lessonloop/churnkit/pkg/subscription"
	"github.com/lessonloop/churnkit/svc/analysis"
)

const exportCSV = `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01,2023-06-15,,canceled,129
Bob Smith,bob@example.com,2023-02-01,,,active,150
Trial Tina,tina@example.com,2023-03-01,,,trialing,129
`

func newAnalyzer(t *testing.T, opts ...analysis.Option) *analysis.Analyzer {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]analysis.Option{
		analysis.WithLogger(quiet),
		analysis.WithCeiling(time.Date(2023, time.December, 31, 0, 0, 0, 0, time.UTC)),
	}, opts...)
	return analysis.NewAnalyzer(catalog.Default(), opts...)
}

func TestAnalyzer_Preconditions(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)

	t.Run("accessors fail before load", func(t *testing.T) {
		_, err := a.Records()
		assert.ErrorIs(t, err, analysis.ErrDataNotLoaded)
		_, err = a.BillingRows()
		assert.ErrorIs(t, err, analysis.ErrDataNotLoaded)
		_, err = a.ComputeChurn()
		assert.ErrorIs(t, err, analysis.ErrDataNotLoaded)
		_, err = a.ComputeChurnedRevenue(revenue.BillingInAdvance)
		assert.ErrorIs(t, err, analysis.ErrDataNotLoaded)
		assert.ErrorIs(t, a.Export(t.TempDir()), analysis.ErrDataNotLoaded)
	})

	t.Run("revenue requires churn first", func(t *testing.T) {
		require.NoError(t, a.LoadData(strings.NewReader(exportCSV)))
		_, err := a.ComputeChurnedRevenue(revenue.BillingInAdvance)
		assert.ErrorIs(t, err, analysis.ErrChurnNotComputed)

		_, err = a.ChurnSummary()
		assert.ErrorIs(t, err, analysis.ErrChurnNotComputed)
		_, err = a.ChurnedRevenue()
		assert.ErrorIs(t, err, analysis.ErrRevenueNotComputed)
	})
}

func TestAnalyzer_Pipeline(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	require.NoError(t, a.LoadData(strings.NewReader(exportCSV)))

	t.Run("default filters drop trialing rows", func(t *testing.T) {
		records, err := a.Records()
		require.NoError(t, err)
		require.Len(t, records, 2)
		for _, r := range records {
			assert.NotEqual(t, subscription.StatusTrialing, r.Status)
		}
	})

	t.Run("billing timeline expands contract months", func(t *testing.T) {
		rows, err := a.BillingRows()
		require.NoError(t, err)

		var janeMonths int
		for _, row := range rows {
			if row.CustomerID == subscription.NewCustomerID("Jane Doe", "jane@example.com") {
				janeMonths++
				assert.True(t, row.MonthlyPrice.Equal(decimal.NewFromInt(129)))
			}
		}
		assert.Equal(t, 6, janeMonths, "January through June")
	})

	t.Run("churn counts the June cancellation", func(t *testing.T) {
		summary, err := a.ComputeChurn()
		require.NoError(t, err)
		require.NotEmpty(t, summary.Rows)

		june := subscription.Month{Year: 2023, Month: time.June}
		var found bool
		for _, row := range summary.Rows {
			if row.Month == june {
				found = true
				assert.Equal(t, 1, row.Cancellations)
			}
		}
		assert.True(t, found)
	})

	t.Run("in-advance RRL lands the loss in July", func(t *testing.T) {
		rrl, err := a.ComputeChurnedRevenue(revenue.BillingInAdvance)
		require.NoError(t, err)
		require.Len(t, rrl.ByMonth, 1)
		assert.Equal(t, subscription.Month{Year: 2023, Month: time.July}, rrl.ByMonth[0].LossMonth)
		assert.True(t, rrl.ByMonth[0].Lost.Equal(decimal.NewFromInt(129)))
		assert.True(t, rrl.Total.Equal(decimal.NewFromInt(129)))
	})

	t.Run("returned tables are copies", func(t *testing.T) {
		first, err := a.Records()
		require.NoError(t, err)
		first[0].Name = "mutated"

		second, err := a.Records()
		require.NoError(t, err)
		assert.NotEqual(t, "mutated", second[0].Name)
	})

	t.Run("unknown billing timing is rejected", func(t *testing.T) {
		_, err := a.ComputeChurnedRevenue("whenever")
		assert.ErrorIs(t, err, revenue.ErrUnknownBillingTiming)
	})
}

func TestAnalyzer_DuplicateResolution(t *testing.T) {
	t.Parallel()

	src := `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01,,,active,129
Jane D.,jane@example.com,2023-03-01,2023-08-01,,canceled,129
`
	guide := dedup.Guide{"jane doe": dedup.DispositionMergedClosed}

	a := newAnalyzer(t, analysis.WithGuide(guide))
	require.NoError(t, a.LoadData(strings.NewReader(src)))

	records, err := a.Records()
	require.NoError(t, err)
	require.Len(t, records, 1, "group collapses to a single lifecycle")
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), records[0].StartDate)
	require.NotNil(t, records[0].CanceledAt)
	assert.Equal(t, time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC), *records[0].CanceledAt)

	dup, err := a.Duplication()
	require.NoError(t, err)
	require.Len(t, dup.Groups, 1)
	assert.Equal(t, dedup.DispositionMergedClosed, dup.Groups[0].Disposition)
	assert.Equal(t, 1, dup.RowsCollapsed)
	assert.Zero(t, dup.UnresolvedGroups)
}

func TestAnalyzer_Summaries(t *testing.T) {
	t.Parallel()

	a := newAnalyzer(t)
	require.NoError(t, a.LoadData(strings.NewReader(exportCSV)))

	t.Run("plan usage aggregates billing rows", func(t *testing.T) {
		usage, err := a.PlanUsageSummary()
		require.NoError(t, err)
		require.NotEmpty(t, usage)
		for _, u := range usage {
			assert.NotEmpty(t, u.Label)
			assert.Positive(t, u.Customers)
			assert.Positive(t, u.Months)
			assert.False(t, u.Revenue.IsZero())
		}
	})

	t.Run("overview carries the run id and counts", func(t *testing.T) {
		o, err := a.Overview()
		require.NoError(t, err)
		assert.Equal(t, a.RunID().String(), o.RunID)
		assert.Equal(t, 2, o.Customers)
		assert.Positive(t, o.BillingRows)
		assert.Zero(t, o.UnmatchedAmounts)
		assert.False(t, o.TotalRevenue.IsZero())
	})
}
