package analysis

import "errors"

var (
	// ErrDataNotLoaded is returned by stages and accessors that need the
	// cleaned tables before LoadData has produced them.
	ErrDataNotLoaded = errors.New("data not loaded: call LoadData first")

	// ErrChurnNotComputed is returned by accessors that need churn results
	// before ComputeChurn has run.
	ErrChurnNotComputed = errors.New("churn not computed: call ComputeChurn first")

	// ErrRevenueNotComputed is returned by accessors that need the
	// recurring-revenue-lost table before ComputeChurnedRevenue has run.
	ErrRevenueNotComputed = errors.New("churned revenue not computed: call ComputeChurnedRevenue first")
)
