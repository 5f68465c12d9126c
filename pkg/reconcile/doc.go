// Package reconcile keeps a scored overlay on every resolvable item of a
// host page whose items are re-rendered without notice.
//
// A Loop is triggered on startup and on every mutation notification. Each
// pass re-enumerates the page, resolves item keys, attaches the navigation
// guard, injects an overlay on unmarked items and scores them in the
// background. Results reach the UI through Hooks only while the item is
// still attached.
package reconcile
