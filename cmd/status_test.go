package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-geocoder/internal/db"
	"github.com/sells-group/listing-geocoder/internal/listing"
)

func TestRunStatus(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT\s+COUNT\(\*\) AS total`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "with_coords"}).AddRow(int64(200), int64(150)))
	mock.ExpectClose()

	var out bytes.Buffer
	err = runStatus(context.Background(), mockConnect(mock), cmdTestDSN, &out)
	require.NoError(t, err)

	output := out.String()
	assert.Contains(t, output, "db.internal:5432/listings")
	assert.NotContains(t, output, "secret")
	assert.Contains(t, output, "200")
	assert.Contains(t, output, "150 (75.0%)")
	assert.Contains(t, output, "Missing coordinates:")
	assert.Contains(t, output, "50")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStatus_ConnectError(t *testing.T) {
	connect := func(context.Context, string) (db.Conn, error) {
		return nil, errors.New("dial tcp: connection refused")
	}

	err := runStatus(context.Background(), connect, cmdTestDSN, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: connect")
}

func TestRunStatus_QueryError(t *testing.T) {
	mock, err := pgxmock.NewConn()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT\s+COUNT`).WillReturnError(errors.New("permission denied"))
	mock.ExpectClose()

	err = runStatus(context.Background(), mockConnect(mock), cmdTestDSN, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: count listings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatStatus_EmptyTable(t *testing.T) {
	var buf bytes.Buffer
	formatStatus(&buf, "localhost:5432/listings", listing.Status{})

	output := buf.String()
	assert.Contains(t, output, "=== Listing Coordinates ===")
	assert.Contains(t, output, listing.Table)
	assert.Contains(t, output, "0 (0.0%)")
}
