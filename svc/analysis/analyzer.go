package analysis

import (
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/lessonloop/churnkit/pkg/catalog"
	"github.com/lessonloop/churnkit/pkg/churn"
	"github.com/lessonloop/churnkit/pkg/dataset"
	"github.com/lessonloop/churnkit/pkg/dedup"
	"github.com/lessonloop/churnkit/pkg/filter"
	"github.com/lessonloop/churnkit/pkg/identity"
	"github.com/lessonloop/churnkit/pkg/logger"
	"github.com/lessonloop/churnkit/pkg/revenue"
	"github.com/lessonloop/churnkit/pkg/subscription"
	"github.com/lessonloop/churnkit/pkg/timeline"
)

// Analyzer runs the full churn analysis pipeline over one subscription
// export: ingest, filter, duplicate resolution, billing timeline, churn
// metrics, churned recurring revenue.
//
// Stages are chained: LoadData must run before ComputeChurn, which must run
// before ComputeChurnedRevenue. Accessors return precondition sentinels
// until their stage has produced data. Every returned table is a copy, so
// callers can read concurrently and mutate freely; the analyzer itself is
// not safe for concurrent stage calls.
type Analyzer struct {
	runID      uuid.UUID
	log        *slog.Logger
	cat        *catalog.Catalog
	filters    *filter.Chain
	guide      dedup.Guide
	loaderOpts []dataset.LoaderOption
	endColumn  subscription.EndColumn
	minDur     time.Duration
	ceiling    time.Time

	loaded      bool
	records     []subscription.Record
	groups      []identity.Group
	dedupResult dedup.Result
	billing     []timeline.Row
	loadReport  dataset.LoadReport
	buildReport timeline.BuildReport

	churnDone    bool
	churnSummary churn.Summary

	rrlDone bool
	rrl     revenue.RRLResult
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithFilters sets the record filter chain applied after ingestion.
func WithFilters(c *filter.Chain) Option {
	return func(a *Analyzer) {
		if c != nil {
			a.filters = c
		}
	}
}

// WithGuide sets the curated duplicate disposition guide.
func WithGuide(g dedup.Guide) Option {
	return func(a *Analyzer) { a.guide = g }
}

// WithCeiling sets the analysis ceiling date, bounding both ingestion and
// open-ended contract expansion.
func WithCeiling(t time.Time) Option {
	return func(a *Analyzer) {
		if !t.IsZero() {
			a.ceiling = t
		}
	}
}

// WithEndColumn selects which date column ends a subscription, for the
// resolver, the timeline and the churn engine alike.
func WithEndColumn(col subscription.EndColumn) Option {
	return func(a *Analyzer) { a.endColumn = col }
}

// WithMinPlausibleDuration sets the duplicate-collapse artefact guard.
func WithMinPlausibleDuration(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.minDur = d
		}
	}
}

// WithLoaderOptions forwards extra options to the dataset loader, such as
// a custom column mapping, curated fixes or manual records.
func WithLoaderOptions(opts ...dataset.LoaderOption) Option {
	return func(a *Analyzer) { a.loaderOpts = append(a.loaderOpts, opts...) }
}

// WithLogger sets the analyzer's logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *Analyzer) {
		if log != nil {
			a.log = log
		}
	}
}

// DefaultFilters returns the standard pre-analysis chain: drop rows that
// never became paying subscriptions and rows too short to be real.
func DefaultFilters() *filter.Chain {
	return filter.NewChain(
		filter.StatusFilter{},
		filter.ShortPeriodFilter{},
	)
}

// NewAnalyzer creates an analyzer priced against cat. Each analyzer carries
// a unique run id stamped on its logs and export metadata.
func NewAnalyzer(cat *catalog.Catalog, opts ...Option) *Analyzer {
	a := &Analyzer{
		runID:     uuid.New(),
		log:       slog.Default(),
		cat:       cat,
		filters:   DefaultFilters(),
		guide:     dedup.Guide{},
		endColumn: subscription.EndColumnCanceledAt,
		minDur:    dedup.DefaultMinPlausibleDuration,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With(logger.RunID(a.runID.String()))
	return a
}

// RunID returns this analyzer's run identifier.
func (a *Analyzer) RunID() uuid.UUID { return a.runID }

// LoadData ingests the subscription export and builds the cleaned tables:
// filtered records, identity groups, resolved duplicates and the monthly
// billing timeline. Running it again replaces all derived state.
func (a *Analyzer) LoadData(r io.Reader) error {
	started := time.Now()

	loaderOpts := append([]dataset.LoaderOption{
		dataset.WithCeiling(a.ceiling),
		dataset.WithLogger(a.log),
	}, a.loaderOpts...)

	raw, report, err := dataset.NewLoader(loaderOpts...).Load(r)
	if err != nil {
		return err
	}

	filtered := a.filters.Apply(raw)
	groups := identity.BuildGroups(filtered)

	resolver := dedup.NewResolver(
		dedup.WithMinPlausibleDuration(a.minDur),
		dedup.WithEndColumn(a.endColumn),
	)
	result := resolver.Resolve(groups, a.guide)
	for _, g := range result.Unresolved {
		a.log.Warn("duplicate group has no disposition, passing through",
			slog.Int("group_id", g.ID),
			slog.Int("members", g.Size()),
		)
	}

	builderOpts := []timeline.Option{timeline.WithEndColumn(a.endColumn)}
	if !a.ceiling.IsZero() {
		builderOpts = append(builderOpts, timeline.WithCeiling(a.ceiling))
	}
	rows, buildReport := timeline.NewBuilder(a.cat, builderOpts...).Build(result.Records, result.Switches)

	a.records = result.Records
	a.groups = groups
	a.dedupResult = result
	a.billing = rows
	a.loadReport = report
	a.buildReport = buildReport
	a.loaded = true
	a.churnDone = false
	a.rrlDone = false

	a.log.Info("analysis data loaded",
		logger.Component("analyzer"),
		slog.Int("raw_rows", report.Rows),
		slog.Int("filtered_records", len(filtered)),
		slog.Int("cleaned_records", len(result.Records)),
		slog.Int("duplicate_groups", len(result.Summary)),
		slog.Int("unresolved_groups", len(result.Unresolved)),
		slog.Int("billing_rows", len(rows)),
		slog.Int("unmatched_amounts", len(buildReport.UnmatchedAmounts)),
		logger.Duration(time.Since(started)),
	)
	return nil
}

// ComputeChurn builds the monthly churn table from the cleaned records.
func (a *Analyzer) ComputeChurn() (churn.Summary, error) {
	if !a.loaded {
		return churn.Summary{}, ErrDataNotLoaded
	}

	engine := churn.NewEngine(churn.WithEndColumn(a.endColumn))
	summary, err := engine.Analyze(a.records)
	if err != nil {
		return churn.Summary{}, err
	}

	a.churnSummary = summary
	a.churnDone = true

	a.log.Info("churn computed",
		logger.Component("analyzer"),
		slog.Int("months", len(summary.Rows)),
	)
	return copyChurnSummary(summary), nil
}

// ComputeChurnedRevenue builds the recurring-revenue-lost table under the
// given billing timing policy. ComputeChurn must have run first: its
// per-month cancellation listings drive the attribution.
func (a *Analyzer) ComputeChurnedRevenue(timing revenue.BillingTiming) (revenue.RRLResult, error) {
	if !a.loaded {
		return revenue.RRLResult{}, ErrDataNotLoaded
	}
	if !a.churnDone {
		return revenue.RRLResult{}, ErrChurnNotComputed
	}

	result, err := revenue.ChurnedRevenue(a.billing, a.churnSummary.Canceled, timing)
	if err != nil {
		return revenue.RRLResult{}, err
	}

	a.rrl = result
	a.rrlDone = true

	a.log.Info("churned revenue computed",
		logger.Component("analyzer"),
		slog.String("billing_timing", string(timing)),
		slog.String("total_rrl", result.Total.String()),
	)
	return copyRRL(result), nil
}

// Records returns a copy of the cleaned subscription table.
func (a *Analyzer) Records() ([]subscription.Record, error) {
	if !a.loaded {
		return nil, ErrDataNotLoaded
	}
	return subscription.CloneRecords(a.records), nil
}

// Groups returns a copy of the identity groups built from the filtered
// input, including singletons.
func (a *Analyzer) Groups() ([]identity.Group, error) {
	if !a.loaded {
		return nil, ErrDataNotLoaded
	}
	groups := make([]identity.Group, len(a.groups))
	for i, g := range a.groups {
		groups[i] = identity.Group{ID: g.ID, Members: subscription.CloneRecords(g.Members)}
	}
	return groups, nil
}

// BillingRows returns a copy of the monthly billing table.
func (a *Analyzer) BillingRows() ([]timeline.Row, error) {
	if !a.loaded {
		return nil, ErrDataNotLoaded
	}
	return slices.Clone(a.billing), nil
}

// RevenueSeries returns per-month recurring revenue summed over the
// billing table.
func (a *Analyzer) RevenueSeries() (revenue.MonthlySeries, error) {
	if !a.loaded {
		return revenue.MonthlySeries{}, ErrDataNotLoaded
	}
	return revenue.Monthly(a.billing), nil
}

// ChurnSummary returns a copy of the computed churn table.
func (a *Analyzer) ChurnSummary() (churn.Summary, error) {
	if !a.churnDone {
		return churn.Summary{}, ErrChurnNotComputed
	}
	return copyChurnSummary(a.churnSummary), nil
}

// ChurnedRevenue returns a copy of the computed recurring-revenue-lost
// table.
func (a *Analyzer) ChurnedRevenue() (revenue.RRLResult, error) {
	if !a.rrlDone {
		return revenue.RRLResult{}, ErrRevenueNotComputed
	}
	return copyRRL(a.rrl), nil
}

func copyChurnSummary(s churn.Summary) churn.Summary {
	out := churn.Summary{
		Rows:     slices.Clone(s.Rows),
		Started:  make(map[subscription.Month][]churn.CustomerRef, len(s.Started)),
		Canceled: make(map[subscription.Month][]churn.CustomerRef, len(s.Canceled)),
	}
	for m, refs := range s.Started {
		out.Started[m] = slices.Clone(refs)
	}
	for m, refs := range s.Canceled {
		out.Canceled[m] = slices.Clone(refs)
	}
	return out
}

func copyRRL(r revenue.RRLResult) revenue.RRLResult {
	return revenue.RRLResult{ByMonth: slices.Clone(r.ByMonth), Total: r.Total}
}
