// Package dataset handles ingestion of the provider's subscription CSV
// export and emission of the analysis result tables. Column names are
// configurable through a mapping value; dates are parsed permissively, with
// a missing required column the only fatal schema condition.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lessonloop/churnkit/pkg/subscription"
)

var (
	// ErrMissingColumn is the schema error: a required column is absent
	// from the input header. The whole run aborts.
	ErrMissingColumn = errors.New("required column missing from input")
	ErrEmptyInput    = errors.New("input has no header row")
)

// ColumnMapping names the input columns carrying each record field. The
// defaults match the provider's export; overriding individual names adapts
// the loader to renamed exports without code changes.
type ColumnMapping struct {
	Name       string
	Email      string
	StartDate  string
	CanceledAt string
	EndedAt    string
	Status     string
	Amount     string
}

// DefaultColumnMapping returns the provider export's column names.
func DefaultColumnMapping() ColumnMapping {
	return ColumnMapping{
		Name:       "Customer Name",
		Email:      "Customer Email",
		StartDate:  "Start Date (UTC)",
		CanceledAt: "Canceled At (UTC)",
		EndedAt:    "Ended At (UTC)",
		Status:     "Status",
		Amount:     "Amount",
	}
}

// Fix is a curated per-customer correction applied after parsing, keyed by
// email. Known data errors in the source export (wrong start dates, bogus
// cancellations) are fixed here instead of being edited into the export.
type Fix struct {
	Email     string
	StartDate *time.Time // overrides the start date when set
	EndDate   *time.Time // overrides the canceled date when set
	ClearEnd  bool       // clears the canceled date
}

// LoadReport counts what the loader accepted and excluded. Every exclusion
// is a data-quality warning, surfaced here and in logs rather than failing
// the run.
type LoadReport struct {
	Rows                int
	Loaded              int
	RejectedStartDates  int // missing or unparseable start date: row rejected
	InvalidEndDates     int // unparseable end date: nulled, row kept
	InvalidAmounts      int // unparseable amount: zeroed, row kept
	DroppedAfterCeiling int // start date beyond the analysis ceiling
}

// Loader reads subscription records from CSV.
type Loader struct {
	mapping ColumnMapping
	ceiling time.Time
	fixes   []Fix
	manual  []subscription.Record
	log     *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithColumnMapping overrides the input column names.
func WithColumnMapping(m ColumnMapping) LoaderOption {
	return func(l *Loader) { l.mapping = m }
}

// WithCeiling sets the analysis ceiling: rows starting after it are dropped
// and end dates beyond it are treated as open.
func WithCeiling(t time.Time) LoaderOption {
	return func(l *Loader) {
		if !t.IsZero() {
			l.ceiling = t
		}
	}
}

// WithFixes registers curated per-customer corrections.
func WithFixes(fixes ...Fix) LoaderOption {
	return func(l *Loader) { l.fixes = append(l.fixes, fixes...) }
}

// WithManualRecords appends records missing from the export (e.g. customers
// billed outside the provider).
func WithManualRecords(records ...subscription.Record) LoaderOption {
	return func(l *Loader) { l.manual = append(l.manual, records...) }
}

// WithLogger sets the logger for data-quality warnings.
func WithLogger(log *slog.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader returns a Loader with the default column mapping and no ceiling.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		mapping: DefaultColumnMapping(),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// dateLayouts covers the formats seen across provider exports. Parsing
// tries each in order; all dates are interpreted as UTC.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
	"02/01/2006",
}

// Load reads and validates the subscription export. A missing required
// column returns ErrMissingColumn; malformed individual rows are excluded
// and counted, never fatal.
func (l *Loader) Load(r io.Reader) ([]subscription.Record, LoadReport, error) {
	var report LoadReport

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, report, ErrEmptyInput
	}
	if err != nil {
		return nil, report, fmt.Errorf("read header: %w", err)
	}

	idx, err := l.columnIndex(header)
	if err != nil {
		return nil, report, err
	}

	var records []subscription.Record
	for rowNum := 0; ; rowNum++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, report, fmt.Errorf("read row %d: %w", rowNum+2, err)
		}
		report.Rows++

		rec, ok := l.parseRow(row, idx, rowNum, &report)
		if !ok {
			continue
		}
		records = append(records, rec)
	}

	records = l.applyFixes(records)
	for _, m := range l.manual {
		rec := m.Clone()
		if rec.CustomerID == "" {
			rec.CustomerID = subscription.NewCustomerID(rec.Name, rec.Email)
		}
		rec.RowIndex = report.Rows + len(l.manual)
		records = append(records, rec)
	}
	records = l.applyCeiling(records, &report)

	report.Loaded = len(records)
	l.log.Info("subscription export loaded",
		slog.Int("rows", report.Rows),
		slog.Int("loaded", report.Loaded),
		slog.Int("rejected_start_dates", report.RejectedStartDates),
		slog.Int("invalid_end_dates", report.InvalidEndDates),
		slog.Int("invalid_amounts", report.InvalidAmounts),
		slog.Int("dropped_after_ceiling", report.DroppedAfterCeiling),
	)
	return records, report, nil
}

type columnIndex struct {
	name, email, start, canceled, ended, status, amount int
}

func (l *Loader) columnIndex(header []string) (columnIndex, error) {
	find := func(name string) int {
		for i, h := range header {
			if strings.TrimSpace(h) == name {
				return i
			}
		}
		return -1
	}

	idx := columnIndex{
		name:     find(l.mapping.Name),
		email:    find(l.mapping.Email),
		start:    find(l.mapping.StartDate),
		canceled: find(l.mapping.CanceledAt),
		ended:    find(l.mapping.EndedAt),
		status:   find(l.mapping.Status),
		amount:   find(l.mapping.Amount),
	}

	required := map[string]int{
		l.mapping.Name:       idx.name,
		l.mapping.Email:      idx.email,
		l.mapping.StartDate:  idx.start,
		l.mapping.CanceledAt: idx.canceled,
		l.mapping.Status:     idx.status,
		l.mapping.Amount:     idx.amount,
	}
	for name, i := range required {
		if i < 0 {
			return idx, fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	// EndedAt is optional: some exports only carry the canceled timestamp.
	return idx, nil
}

func (l *Loader) parseRow(row []string, idx columnIndex, rowNum int, report *LoadReport) (subscription.Record, bool) {
	field := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	start, ok := parseDate(field(idx.start))
	if !ok {
		report.RejectedStartDates++
		l.log.Warn("rejected row without parseable start date",
			slog.Int("row", rowNum+2),
			slog.String("email", field(idx.email)),
		)
		return subscription.Record{}, false
	}

	rec := subscription.Record{
		Name:      field(idx.name),
		Email:     field(idx.email),
		StartDate: start,
		Status:    subscription.Status(strings.ToLower(field(idx.status))),
		RowIndex:  rowNum,
	}
	rec.CustomerID = subscription.NewCustomerID(rec.Name, rec.Email)

	rec.CanceledAt = l.parseOptionalDate(field(idx.canceled), report)
	rec.EndedAt = l.parseOptionalDate(field(idx.ended), report)

	if raw := field(idx.amount); raw != "" {
		amount, err := decimal.NewFromString(strings.TrimPrefix(raw, "$"))
		if err != nil {
			report.InvalidAmounts++
			l.log.Warn("invalid amount", slog.Int("row", rowNum+2), slog.String("amount", raw))
		} else {
			rec.Amount = amount
		}
	}

	return rec, true
}

func (l *Loader) parseOptionalDate(raw string, report *LoadReport) *time.Time {
	if raw == "" {
		return nil
	}
	t, ok := parseDate(raw)
	if !ok {
		report.InvalidEndDates++
		return nil
	}
	return &t
}

func parseDate(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (l *Loader) applyFixes(records []subscription.Record) []subscription.Record {
	for _, fix := range l.fixes {
		email := subscription.Normalize(fix.Email)
		for i := range records {
			if subscription.Normalize(records[i].Email) != email {
				continue
			}
			if fix.StartDate != nil {
				records[i].StartDate = *fix.StartDate
			}
			if fix.ClearEnd {
				records[i].CanceledAt = nil
			} else if fix.EndDate != nil {
				d := *fix.EndDate
				records[i].CanceledAt = &d
			}
		}
	}
	return records
}

func (l *Loader) applyCeiling(records []subscription.Record, report *LoadReport) []subscription.Record {
	if l.ceiling.IsZero() {
		return records
	}

	var out []subscription.Record
	for _, r := range records {
		if r.StartDate.After(l.ceiling) {
			report.DroppedAfterCeiling++
			continue
		}
		if r.CanceledAt != nil && r.CanceledAt.After(l.ceiling) {
			r.CanceledAt = nil
		}
		if r.EndedAt != nil && r.EndedAt.After(l.ceiling) {
			r.EndedAt = nil
		}
		out = append(out, r)
	}
	return out
}
