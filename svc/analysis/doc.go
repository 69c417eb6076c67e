// Package analysis orchestrates the churn analysis pipeline.
//
// An Analyzer chains the stages over one subscription export:
//
//	a := analysis.NewAnalyzer(catalog.Default(),
//	    analysis.WithGuide(guide),
//	    analysis.WithCeiling(ceiling),
//	)
//	if err := a.LoadData(file); err != nil { ... }
//	churnSummary, err := a.ComputeChurn()
//	rrl, err := a.ComputeChurnedRevenue(revenue.BillingInAdvance)
//	err = a.Export(outDir)
//
// LoadData ingests and cleans the export (filters, identity grouping,
// duplicate resolution, billing timeline). ComputeChurn and
// ComputeChurnedRevenue derive the metric tables; accessors called before
// their stage return precondition sentinels. Every returned table is a
// copy, safe to read from any goroutine.
package analysis
