package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
)

func TestGetPolicy_FallsBackToDefaults(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("SELECT id, severity, response_minutes").
		WithArgs("critical").
		WillReturnError(sql.ErrNoRows)

	svc := NewSLAService(pg)
	policy, err := svc.GetPolicy("critical")
	assert.NoError(t, err)
	assert.Equal(t, 15, policy.ResponseMinutes)
	assert.Equal(t, 240, policy.ResolutionMinutes)
}

func TestGetPolicy_UnknownSeverityUsesMedium(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("SELECT id, severity, response_minutes").
		WithArgs("bogus").
		WillReturnError(sql.ErrNoRows)

	svc := NewSLAService(pg)
	policy, err := svc.GetPolicy("bogus")
	assert.NoError(t, err)
	assert.Equal(t, db.SeverityMedium, policy.Severity)
}

func TestGetPolicy_PrefersDatabaseRow(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "severity", "response_minutes", "resolution_minutes", "is_active", "created_at", "updated_at"}).
		AddRow("pol-1", "high", 20, 360, true, now, now)
	mock.ExpectQuery("SELECT id, severity, response_minutes").
		WithArgs("high").
		WillReturnRows(rows)

	svc := NewSLAService(pg)
	policy, err := svc.GetPolicy("high")
	assert.NoError(t, err)
	assert.Equal(t, 20, policy.ResponseMinutes)
	assert.Equal(t, 360, policy.ResolutionMinutes)
}

func TestComputeDeadlines(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("SELECT id, severity, response_minutes").
		WithArgs("critical").
		WillReturnError(sql.ErrNoRows)

	svc := NewSLAService(pg)
	createdAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	response, resolution, err := svc.ComputeDeadlines("critical", createdAt)
	assert.NoError(t, err)
	assert.Equal(t, createdAt.Add(15*time.Minute), response)
	assert.Equal(t, createdAt.Add(4*time.Hour), resolution)
}

func TestUpdatePolicy_NotFound(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	minutes := 25
	mock.ExpectExec("UPDATE sla_policies SET").
		WillReturnResult(sqlmock.NewResult(0, 0))

	svc := NewSLAService(pg)
	_, err = svc.UpdatePolicy("critical", db.UpdateSLAPolicyRequest{ResponseMinutes: &minutes})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
