package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
)

func TestWindow_SettingOverride(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(db.SettingDedupWindowSeconds).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("600"))

	svc := NewDedupService(nil, NewSettingsService(pg), 300)
	assert.Equal(t, 600*time.Second, svc.Window())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWindow_DefaultWhenUnset(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("SELECT value FROM system_settings").
		WithArgs(db.SettingDedupWindowSeconds).
		WillReturnError(sql.ErrNoRows)

	svc := NewDedupService(nil, NewSettingsService(pg), 300)
	assert.Equal(t, 300*time.Second, svc.Window())
}

func TestClaimFingerprint_RequiresRedis(t *testing.T) {
	svc := NewDedupService(nil, nil, 300)
	_, err := svc.ClaimFingerprint(context.Background(), "9a1b2c3d")
	assert.Error(t, err)
}
