package services

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/elite-business/case-tools-new-sub005/db"
)

type TeamService struct {
	PG *sql.DB
}

func NewTeamService(pg *sql.DB) *TeamService {
	return &TeamService{PG: pg}
}

// CreateTeam creates a new team
func (s *TeamService) CreateTeam(req db.CreateTeamRequest, createdBy string) (db.Team, error) {
	team := db.Team{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		LeadUserID:  req.LeadUserID,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
		CreatedBy:   createdBy,
	}

	_, err := s.PG.Exec(`
		INSERT INTO teams (id, name, description, lead_user_id, is_active, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, team.ID, team.Name, team.Description, nullIfEmptyStr(team.LeadUserID),
		team.IsActive, team.CreatedAt, team.UpdatedAt, nullIfEmptyStr(team.CreatedBy))
	if err != nil {
		return team, fmt.Errorf("failed to create team: %w", err)
	}

	return team, nil
}

// nullIfEmptyStr returns nil if string is empty, otherwise returns the string
func nullIfEmptyStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ListTeams returns all teams with member counts
func (s *TeamService) ListTeams() ([]db.Team, error) {
	rows, err := s.PG.Query(`
		SELECT t.id, t.name, t.description, COALESCE(t.lead_user_id::text, '') as lead_user_id,
		       t.is_active, t.created_at, t.updated_at, COALESCE(t.created_by::text, '') as created_by,
		       COALESCE(u.name, '') as lead_user_name,
		       (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id AND tm.is_active = true) as member_count
		FROM teams t
		LEFT JOIN users u ON t.lead_user_id = u.id
		ORDER BY t.name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []db.Team
	for rows.Next() {
		var t db.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.LeadUserID, &t.IsActive,
			&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.LeadUserName, &t.MemberCount); err != nil {
			continue
		}
		teams = append(teams, t)
	}
	return teams, nil
}

// GetTeam returns a team by ID
func (s *TeamService) GetTeam(id string) (db.Team, error) {
	var t db.Team
	err := s.PG.QueryRow(`
		SELECT t.id, t.name, t.description, COALESCE(t.lead_user_id::text, '') as lead_user_id,
		       t.is_active, t.created_at, t.updated_at, COALESCE(t.created_by::text, '') as created_by,
		       COALESCE(u.name, '') as lead_user_name,
		       (SELECT COUNT(*) FROM team_members tm WHERE tm.team_id = t.id AND tm.is_active = true) as member_count
		FROM teams t
		LEFT JOIN users u ON t.lead_user_id = u.id
		WHERE t.id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Description, &t.LeadUserID, &t.IsActive,
		&t.CreatedAt, &t.UpdatedAt, &t.CreatedBy, &t.LeadUserName, &t.MemberCount)
	if err != nil {
		if err == sql.ErrNoRows {
			return t, fmt.Errorf("team not found")
		}
		return t, fmt.Errorf("failed to get team: %w", err)
	}
	return t, nil
}

// UpdateTeam applies a partial update to a team
func (s *TeamService) UpdateTeam(id string, req db.UpdateTeamRequest) (db.Team, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.Description != nil {
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", argIdx))
		args = append(args, *req.Description)
		argIdx++
	}
	if req.LeadUserID != nil {
		setClauses = append(setClauses, fmt.Sprintf("lead_user_id = $%d", argIdx))
		args = append(args, nullIfEmptyStr(*req.LeadUserID))
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE teams SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argIdx)

	result, err := s.PG.Exec(query, args...)
	if err != nil {
		return db.Team{}, fmt.Errorf("failed to update team: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return db.Team{}, fmt.Errorf("team not found")
	}

	return s.GetTeam(id)
}

// DeleteTeam deactivates a team (cases keep their team reference)
func (s *TeamService) DeleteTeam(id string) error {
	result, err := s.PG.Exec(`UPDATE teams SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("team not found")
	}
	return nil
}

// GetTeamMembers returns the active members of a team in rotation order
func (s *TeamService) GetTeamMembers(teamID string) ([]db.TeamMember, error) {
	rows, err := s.PG.Query(`
		SELECT tm.id, tm.team_id, tm.user_id, tm.role, tm.rotation_order, tm.is_active,
		       tm.added_at, COALESCE(tm.added_by::text, '') as added_by,
		       u.name as user_name, u.email as user_email
		FROM team_members tm
		JOIN users u ON tm.user_id = u.id
		WHERE tm.team_id = $1 AND tm.is_active = true
		ORDER BY tm.rotation_order ASC, tm.added_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team members: %w", err)
	}
	defer rows.Close()

	var members []db.TeamMember
	for rows.Next() {
		var m db.TeamMember
		if err := rows.Scan(&m.ID, &m.TeamID, &m.UserID, &m.Role, &m.RotationOrder,
			&m.IsActive, &m.AddedAt, &m.AddedBy, &m.UserName, &m.UserEmail); err != nil {
			continue
		}
		members = append(members, m)
	}
	return members, nil
}

// AddTeamMember adds a user to a team
func (s *TeamService) AddTeamMember(teamID string, req db.AddTeamMemberRequest, addedBy string) (db.TeamMember, error) {
	member := db.TeamMember{
		ID:            uuid.New().String(),
		TeamID:        teamID,
		UserID:        req.UserID,
		Role:          req.Role,
		RotationOrder: req.RotationOrder,
		IsActive:      true,
		AddedAt:       time.Now().UTC(),
		AddedBy:       addedBy,
	}
	if member.Role == "" {
		member.Role = db.TeamRoleMember
	}

	// Append to the end of the rotation if no order was given
	if member.RotationOrder == 0 {
		var maxOrder sql.NullInt64
		_ = s.PG.QueryRow(`SELECT MAX(rotation_order) FROM team_members WHERE team_id = $1 AND is_active = true`, teamID).Scan(&maxOrder)
		member.RotationOrder = int(maxOrder.Int64) + 1
	}

	_, err := s.PG.Exec(`
		INSERT INTO team_members (id, team_id, user_id, role, rotation_order, is_active, added_at, added_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (team_id, user_id) DO UPDATE
		SET is_active = true, role = EXCLUDED.role, rotation_order = EXCLUDED.rotation_order
	`, member.ID, member.TeamID, member.UserID, member.Role, member.RotationOrder,
		member.IsActive, member.AddedAt, nullIfEmptyStr(member.AddedBy))
	if err != nil {
		return member, fmt.Errorf("failed to add team member: %w", err)
	}

	return member, nil
}

// RemoveTeamMember removes a user from a team
func (s *TeamService) RemoveTeamMember(teamID, userID string) error {
	result, err := s.PG.Exec(`
		UPDATE team_members SET is_active = false
		WHERE team_id = $1 AND user_id = $2
	`, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("team member not found")
	}
	return nil
}

// GetTeamLead returns the lead user for a team: the configured lead_user_id,
// falling back to the first member with the lead role
func (s *TeamService) GetTeamLead(teamID string) (string, error) {
	var leadID sql.NullString
	err := s.PG.QueryRow(`
		SELECT COALESCE(
			t.lead_user_id::text,
			(SELECT tm.user_id::text FROM team_members tm
			 WHERE tm.team_id = t.id AND tm.role = 'lead' AND tm.is_active = true
			 ORDER BY tm.rotation_order ASC LIMIT 1)
		)
		FROM teams t
		WHERE t.id = $1
	`, teamID).Scan(&leadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("team not found")
		}
		return "", fmt.Errorf("failed to get team lead: %w", err)
	}
	if !leadID.Valid {
		return "", nil
	}
	return leadID.String, nil
}
