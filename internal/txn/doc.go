// Package txn wraps engine-owned parse state (header blocks, URLs, method
// and version) for hook callbacks. Wrappers are either attached (borrowed
// from the engine, never freed here) or standalone (created and destroyed by
// the wrapper); derived scalars are memoized lazily on first access. One
// callback invocation exclusively owns each instance, so nothing here locks.
package txn
