// Package store persists target values, fingerprints and trace records
// across runs. It is a content-addressed directory store: one JSON entry
// per target, committed atomically via a staged temp file and rename, so a
// crash mid-write never leaves a readable partial entry.
//
// The store is passed by handle through the compiler and engine; there is
// no hidden global instance. Corrupt entries are treated as cache misses
// and reported as warnings, never as fatal errors.
package store
