package sessionstore

import "github.com/jmoiron/sqlx"

// Provide wires a SQLite-backed Store from an open database handle, the
// way the worktree package's Provide builds its own store from *sqlx.DB.
func Provide(db *sqlx.DB) (Store, error) {
	return NewSQLiteStore(db)
}
