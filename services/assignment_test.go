package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
)

func TestResolve_DirectStrategy(t *testing.T) {
	svc := NewAssignmentService(nil, nil)

	resolved, err := svc.Resolve(&db.RuleAssignment{
		Strategy: db.StrategyDirect,
		UserID:   "user-42",
		TeamID:   "team-7",
	})
	assert.NoError(t, err)
	assert.True(t, resolved.Found)
	assert.Equal(t, "user-42", resolved.UserID)
	assert.Equal(t, "team-7", resolved.TeamID)
	assert.Equal(t, db.StrategyDirect, resolved.Method)
}

func TestResolve_DirectWithoutUser(t *testing.T) {
	svc := NewAssignmentService(nil, nil)

	resolved, err := svc.Resolve(&db.RuleAssignment{Strategy: db.StrategyDirect})
	assert.NoError(t, err)
	assert.False(t, resolved.Found)
}

func TestResolve_UnknownStrategy(t *testing.T) {
	svc := NewAssignmentService(nil, nil)

	_, err := svc.Resolve(&db.RuleAssignment{Strategy: "chaos"})
	assert.Error(t, err)
}

func TestResolve_LeastLoaded(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	rows := sqlmock.NewRows([]string{"user_id"}).AddRow("user-lightest")
	mock.ExpectQuery("SELECT tm.user_id").
		WithArgs("team-7").
		WillReturnRows(rows)

	svc := NewAssignmentService(pg, nil)
	resolved, err := svc.Resolve(&db.RuleAssignment{
		Strategy: db.StrategyLeastLoaded,
		TeamID:   "team-7",
	})
	assert.NoError(t, err)
	assert.True(t, resolved.Found)
	assert.Equal(t, "user-lightest", resolved.UserID)
	assert.Equal(t, db.StrategyLeastLoaded, resolved.Method)
}

func TestResolve_RoundRobinWithoutRedisUsesFirstMember(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	rows := sqlmock.NewRows([]string{"user_id"}).
		AddRow("user-a").
		AddRow("user-b")
	mock.ExpectQuery("SELECT user_id").
		WithArgs("team-7").
		WillReturnRows(rows)

	svc := NewAssignmentService(pg, nil)
	resolved, err := svc.Resolve(&db.RuleAssignment{
		Strategy: db.StrategyRoundRobin,
		TeamID:   "team-7",
	})
	assert.NoError(t, err)
	assert.True(t, resolved.Found)
	assert.Equal(t, "user-a", resolved.UserID)
}

func TestResolve_RoundRobinEmptyTeam(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectQuery("SELECT user_id").
		WithArgs("team-empty").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	svc := NewAssignmentService(pg, nil)
	resolved, err := svc.Resolve(&db.RuleAssignment{
		Strategy: db.StrategyRoundRobin,
		TeamID:   "team-empty",
	})
	assert.NoError(t, err)
	assert.False(t, resolved.Found)
}
