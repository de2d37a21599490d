// Package stores provides the SQLite run journal: one row per pipeline run and one row per
// step outcome. The journal is an audit trail only. Guards and resume offsets never read it.
package stores
