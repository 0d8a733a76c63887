// Package storage implements the reminder task store on SQLite.
//
// Task rows are write-once: created on parse success, deleted on
// retirement, never updated in place.
package storage
