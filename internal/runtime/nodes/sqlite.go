package nodes

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteDirectory reads node identifiers from the id column of a table.
type SQLiteDirectory struct {
	db    *sql.DB
	query string
	owned bool
}

// OpenSQLiteDirectory opens the database at path and reads nodes from table.
// Close releases the database.
func OpenSQLiteDirectory(path, table string) (*SQLiteDirectory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite node directory: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would see its own empty database.
		db.SetMaxOpenConns(1)
	}
	dir := NewSQLiteDirectory(db, table)
	dir.owned = true
	return dir, nil
}

// NewSQLiteDirectory reads nodes from table in db. The caller keeps ownership
// of db. table must be a trusted identifier.
func NewSQLiteDirectory(db *sql.DB, table string) *SQLiteDirectory {
	return &SQLiteDirectory{
		db:    db,
		query: fmt.Sprintf("SELECT id FROM %s ORDER BY id", table),
	}
}

func (d *SQLiteDirectory) NodeIDs(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, d.query)
	if err != nil {
		return nil, fmt.Errorf("sqlite list nodes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite scan node: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite list nodes: %w", err)
	}
	return out, nil
}

// DB exposes the underlying handle.
func (d *SQLiteDirectory) DB() *sql.DB {
	return d.db
}

// Close closes the database when it was opened by OpenSQLiteDirectory.
func (d *SQLiteDirectory) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}
