// Package subscription defines the core data model shared by the churn
// analytics pipeline: the raw subscription Record, the normalized CustomerID
// identity key, and the calendar Month grain all reports are aggregated on.
//
// Records are treated as immutable values. Pipeline stages that need to
// modify rows (duplicate resolution, data fixes) copy first via Clone or
// CloneRecords, so two concurrent analyses never observe partial mutation of
// a shared table.
package subscription
