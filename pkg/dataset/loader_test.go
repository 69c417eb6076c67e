package dataset_test

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonloop/churnkit/pkg/dataset"
	"github.com/lessonloop/churnkit/pkg/subscription"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quietLoader(opts ...dataset.LoaderOption) *dataset.Loader {
	opts = append([]dataset.LoaderOption{
		dataset.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return dataset.NewLoader(opts...)
}

const sampleCSV = `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01 10:30:00,2023-06-15 08:00:00,,canceled,129
Bob Smith,bob@example.com,2023-03-01,,,active,540
`

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	t.Run("parses well-formed rows", func(t *testing.T) {
		t.Parallel()
		records, report, err := quietLoader().Load(strings.NewReader(sampleCSV))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, 2, report.Loaded)

		jane := records[0]
		assert.Equal(t, "Jane Doe", jane.Name)
		assert.Equal(t, subscription.NewCustomerID("Jane Doe", "jane@example.com"), jane.CustomerID)
		assert.Equal(t, date(2023, time.January, 1).Add(10*time.Hour+30*time.Minute), jane.StartDate)
		require.NotNil(t, jane.CanceledAt)
		assert.Nil(t, jane.EndedAt)
		assert.Equal(t, subscription.StatusCanceled, jane.Status)
		assert.True(t, jane.Amount.Equal(decimal.NewFromInt(129)))

		bob := records[1]
		assert.Equal(t, date(2023, time.March, 1), bob.StartDate)
		assert.Equal(t, subscription.StatusActive, bob.Status)
	})

	t.Run("missing required column is a schema error", func(t *testing.T) {
		t.Parallel()
		src := "Customer Name,Start Date (UTC),Canceled At (UTC),Status,Amount\n"
		_, _, err := quietLoader().Load(strings.NewReader(src))
		assert.ErrorIs(t, err, dataset.ErrMissingColumn)
	})

	t.Run("missing ended-at column is tolerated", func(t *testing.T) {
		t.Parallel()
		src := `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01,,active,129
`
		records, _, err := quietLoader().Load(strings.NewReader(src))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].EndedAt)
	})

	t.Run("empty input fails", func(t *testing.T) {
		t.Parallel()
		_, _, err := quietLoader().Load(strings.NewReader(""))
		assert.ErrorIs(t, err, dataset.ErrEmptyInput)
	})

	t.Run("row without parseable start date is rejected and counted", func(t *testing.T) {
		t.Parallel()
		src := `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,not-a-date,,,active,129
Bob Smith,bob@example.com,2023-03-01,,,active,540
`
		records, report, err := quietLoader().Load(strings.NewReader(src))
		require.NoError(t, err)
		assert.Len(t, records, 1)
		assert.Equal(t, 1, report.RejectedStartDates)
	})

	t.Run("unparseable end date is nulled not fatal", func(t *testing.T) {
		t.Parallel()
		src := `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01,garbage,,canceled,129
`
		records, report, err := quietLoader().Load(strings.NewReader(src))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].CanceledAt)
		assert.Equal(t, 1, report.InvalidEndDates)
	})

	t.Run("invalid amount is zeroed and counted", func(t *testing.T) {
		t.Parallel()
		src := `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01,,,active,lots
`
		records, report, err := quietLoader().Load(strings.NewReader(src))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.True(t, records[0].Amount.IsZero())
		assert.Equal(t, 1, report.InvalidAmounts)
	})

	t.Run("custom column mapping", func(t *testing.T) {
		t.Parallel()
		src := `name,email,started,canceled,ended,state,price
Jane Doe,jane@example.com,2023-01-01,,,active,129
`
		loader := quietLoader(dataset.WithColumnMapping(dataset.ColumnMapping{
			Name:       "name",
			Email:      "email",
			StartDate:  "started",
			CanceledAt: "canceled",
			EndedAt:    "ended",
			Status:     "state",
			Amount:     "price",
		}))
		records, _, err := loader.Load(strings.NewReader(src))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Jane Doe", records[0].Name)
	})

	t.Run("fixes override parsed values", func(t *testing.T) {
		t.Parallel()
		fixedStart := date(2023, time.October, 1)
		loader := quietLoader(dataset.WithFixes(
			dataset.Fix{Email: "JANE@example.com", StartDate: &fixedStart, ClearEnd: true},
		))

		records, _, err := loader.Load(strings.NewReader(sampleCSV))
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, fixedStart, records[0].StartDate)
		assert.Nil(t, records[0].CanceledAt, "fix clears the bogus cancellation")
	})

	t.Run("manual records are appended with a customer id", func(t *testing.T) {
		t.Parallel()
		loader := quietLoader(dataset.WithManualRecords(subscription.Record{
			Name:      "Dominic Church",
			Email:     "dominic@example.com",
			StartDate: date(2024, time.December, 1),
			Status:    subscription.StatusActive,
			Amount:    decimal.NewFromInt(129),
		}))

		records, _, err := loader.Load(strings.NewReader(sampleCSV))
		require.NoError(t, err)
		require.Len(t, records, 3)
		last := records[2]
		assert.Equal(t, subscription.NewCustomerID("Dominic Church", "dominic@example.com"), last.CustomerID)
	})

	t.Run("ceiling drops late starts and opens late ends", func(t *testing.T) {
		t.Parallel()
		src := `Customer Name,Customer Email,Start Date (UTC),Canceled At (UTC),Ended At (UTC),Status,Amount
Jane Doe,jane@example.com,2023-01-01,2026-01-01,,canceled,129
Late Larry,larry@example.com,2026-03-01,,,active,129
`
		loader := quietLoader(dataset.WithCeiling(date(2025, time.July, 31)))
		records, report, err := loader.Load(strings.NewReader(src))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Nil(t, records[0].CanceledAt, "cancellation beyond the ceiling is treated as open")
		assert.Equal(t, 1, report.DroppedAfterCeiling)
	})
}
