// Package stores provides persistence for execution history. The SQLite
// store keeps one row per resolved or abandoned execution so past runs can
// be listed, inspected, and pruned.
package stores
