// Package tracker defines the normalized ticket model shared by both
// external issue trackers and the Client port the sync engine drives.
//
// System A is the support-case system (NetSuite support cases in the
// shipped adapters). System B is the work-tracking system (Azure DevOps
// work items). The engine never depends on either concrete API: every
// adapter under this package implements Client and reports failures
// with *Error so callers can classify them with IsFetchError and friends.
package tracker
