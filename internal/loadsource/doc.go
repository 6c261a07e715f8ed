// Package loadsource fetches load samples for managed clusters.
//
// The Prometheus source renders two PromQL templates per cluster, one for
// utilization and one for node count, and evaluates them as instant
// queries. Either query returning no data yields an error wrapping
// errors.ErrSampleUnavailable; transport failures are returned as
// errors.TransientFetchError so the caller can hold and retry next cycle.
//
// The node count may instead come from a NodeCounter such as the EKS admin
// client, in which case only the utilization query is evaluated.
package loadsource
