// Package taskdata provides the attribute tree that holds one task's data.
//
// A Tree is an ordered collection of attributes keyed by backend-native
// identifiers. Every mutation is reported synchronously to the tree's
// listeners before the mutating call returns, so dependent attributes can be
// recomputed before control goes back to the caller.
//
// taskdata imports nothing internal. The resolver, change tracker, mappers and
// submission pipeline are all built on top of it.
package taskdata
