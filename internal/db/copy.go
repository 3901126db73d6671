// Package db provides shared database helpers for the bulk write paths:
// COPY loads for first imports and temp-table upserts for re-imports.
package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom streams rows into a table over the COPY protocol. It is the
// fast path for loading a supplier file into an empty raw-products table;
// it has no conflict handling, so re-imports go through BulkUpsert
// instead. The table name may be schema-qualified ("catalog.raw_products").
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, tableIdent(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// tableIdent splits an optionally schema-qualified name into a pgx
// identifier.
func tableIdent(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
