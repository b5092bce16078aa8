package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schema string

// Statements splits the embedded schema into individual statements.  The
// schema holds no procedures, so a semicolon always ends a statement.
func Statements() []string {
	var out []string
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || (strings.HasPrefix(stmt, "--") && !strings.Contains(stmt, "\n")) {
			continue
		}
		out = append(out, stmt)
	}
	return out
}

// Migrate applies every CREATE TABLE IF NOT EXISTS statement of the schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i+1, err)
		}
	}
	return nil
}
