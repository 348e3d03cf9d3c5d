package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func userRow() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{"id", "name", "email", "phone", "role", "is_active", "created_at", "updated_at"}).
		AddRow("8f7a1c2e-0001-4a5b-9c3d-000000000001", "Alice Nguyen", "alice@example.com", "", "analyst", true, now, now)
}

func TestListUsers_CastsIDForSystemUserFilter(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	// The uuid column has to be cast to text before the LIKE filter
	mock.ExpectQuery(`id::text NOT LIKE '00000000-0000-0000-0000-%'`).
		WillReturnRows(userRow())

	svc := NewUserService(pg, nil)
	users, err := svc.ListUsers()
	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, "alice@example.com", users[0].Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchUsers_CastsIDForSystemUserFilter(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery(`LOWER\(name\) LIKE \$1(.|\n)*id::text NOT LIKE '00000000-0000-0000-0000-%'`).
		WithArgs("%alice%").
		WillReturnRows(userRow())

	svc := NewUserService(pg, nil)
	users, err := svc.SearchUsers("Alice")
	assert.NoError(t, err)
	assert.Len(t, users, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
