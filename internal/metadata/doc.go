// Package metadata holds repository configuration snapshots and the
// dependency rule tables derived from them.
//
// A Snapshot is fetched out-of-band from a repository and shared read-only
// by every editing session open against that repository. Registry swaps
// snapshots atomically, so readers never lock and never observe a partially
// refreshed configuration. A failed refresh keeps the previous snapshot:
// dependent option sets stay at their last known values instead of being
// cleared.
package metadata
