// Package registry provides the sources of managed cluster configurations.
//
// Two backends are available:
//
//   - [FileRegistry]: a YAML file, re-read whenever it changes on disk
//   - [MongoRegistry]: one document per cluster in a MongoDB collection
//
// Both fill unset per-cluster fields from [scaling.Defaults] and return only
// enabled clusters, ordered by ID. Neither validates cluster values: a
// malformed configuration is passed through so that its evaluation fails
// visibly in the audit trail instead of the cluster silently disappearing.
package registry
