package store

// Both backends must satisfy the full persistence surface.
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
