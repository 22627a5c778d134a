package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/municipal/backoffice/tests/testutil"
)

func TestDatabase_Ping(t *testing.T) {
	m := testutil.NewMockDB(t)
	db := NewDatabaseFromGorm(m.DB)

	m.Mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))

	m.Mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.Error(t, db.Ping(context.Background()))

	m.ExpectationsWereMet(t)
}

func TestDatabase_Health(t *testing.T) {
	m := testutil.NewMockDB(t)
	db := NewDatabaseFromGorm(m.DB)

	m.Mock.ExpectPing()
	h, err := db.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.NotEmpty(t, h.Latency)
	assert.Empty(t, h.Error)
	assert.GreaterOrEqual(t, h.Open, 1)

	m.Mock.ExpectPing().WillReturnError(errors.New("too many clients"))
	h, err = db.Health(context.Background())
	require.Error(t, err)
	assert.Equal(t, "error", h.Status)
	assert.Equal(t, "too many clients", h.Error)

	m.ExpectationsWereMet(t)
}

func TestDatabase_Close(t *testing.T) {
	m := testutil.NewMockDB(t)
	m.Mock.ExpectClose()

	require.NoError(t, NewDatabaseFromGorm(m.DB).Close())
	m.ExpectationsWereMet(t)
}
