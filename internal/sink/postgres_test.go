package sink

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSink_Write(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_load_carabid_counts"}, countColumns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectRollback()

	err = NewPostgres(mock, "carabid_counts").Write(context.Background(), testCounts())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_EmptyCountsStillEnsuresTable(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	err = NewPostgres(mock, "carabid_counts").Write(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_EnsureTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(fmt.Errorf("permission denied"))

	err = NewPostgres(mock, "carabid_counts").Write(context.Background(), testCounts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure table carabid_counts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
