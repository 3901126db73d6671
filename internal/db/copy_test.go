package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "raw_products", []string{"manufacturer", "part_number"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_StreamsAllRows(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"manufacturer", "part_number", "payload"}
	mock.ExpectCopyFrom(pgx.Identifier{"raw_products"}, cols).WillReturnResult(3)

	rows := [][]any{
		{"acme", "AB-100", []byte(`{}`)},
		{"acme", "AB-200", []byte(`{}`)},
		{"globex", "GX-1", []byte(`{}`)},
	}
	n, err := CopyFrom(context.Background(), mock, "raw_products", cols, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_SchemaQualifiedTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"manufacturer", "part_number"}
	mock.ExpectCopyFrom(pgx.Identifier{"catalog", "raw_products"}, cols).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "catalog.raw_products", cols, [][]any{{"acme", "AB-100"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_WrapsCopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cols := []string{"manufacturer", "part_number"}
	mock.ExpectCopyFrom(pgx.Identifier{"raw_products"}, cols).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "raw_products", cols, [][]any{{"acme", "AB-100"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO raw_products")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTableIdent(t *testing.T) {
	assert.Equal(t, pgx.Identifier{"raw_products"}, tableIdent("raw_products"))
	assert.Equal(t, pgx.Identifier{"catalog", "raw_products"}, tableIdent("catalog.raw_products"))
}
