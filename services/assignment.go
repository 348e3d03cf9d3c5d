package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/elite-business/case-tools-new-sub005/db"
)

// AssignmentService resolves the assignee for a new case based on the
// rule assignment's strategy
type AssignmentService struct {
	PG    *sql.DB
	Redis *redis.Client
}

func NewAssignmentService(pg *sql.DB, redis *redis.Client) *AssignmentService {
	return &AssignmentService{PG: pg, Redis: redis}
}

// ResolvedAssignee holds the outcome of assignee resolution
type ResolvedAssignee struct {
	UserID string
	TeamID string
	Found  bool
	Method string // "direct", "round_robin", "least_loaded"
}

// Resolve picks an assignee for a case created from the given rule assignment
func (s *AssignmentService) Resolve(ra *db.RuleAssignment) (*ResolvedAssignee, error) {
	resolved := &ResolvedAssignee{TeamID: ra.TeamID}

	switch ra.Strategy {
	case db.StrategyDirect:
		if ra.UserID == "" {
			return resolved, nil
		}
		resolved.UserID = ra.UserID
		resolved.Found = true
		resolved.Method = db.StrategyDirect
		return resolved, nil

	case db.StrategyRoundRobin:
		if ra.TeamID == "" {
			return resolved, nil
		}
		userID, err := s.nextRoundRobin(ra.TeamID)
		if err != nil {
			return resolved, err
		}
		if userID != "" {
			resolved.UserID = userID
			resolved.Found = true
			resolved.Method = db.StrategyRoundRobin
		}
		return resolved, nil

	case db.StrategyLeastLoaded:
		if ra.TeamID == "" {
			return resolved, nil
		}
		userID, err := s.leastLoaded(ra.TeamID)
		if err != nil {
			return resolved, err
		}
		if userID != "" {
			resolved.UserID = userID
			resolved.Found = true
			resolved.Method = db.StrategyLeastLoaded
		}
		return resolved, nil

	default:
		return resolved, fmt.Errorf("unknown assignment strategy: %s", ra.Strategy)
	}
}

// nextRoundRobin returns the next team member in rotation order. The rotation
// cursor lives in Redis; when Redis is unavailable the first member by
// rotation order is used.
func (s *AssignmentService) nextRoundRobin(teamID string) (string, error) {
	members, err := s.activeMembers(teamID)
	if err != nil {
		return "", err
	}
	if len(members) == 0 {
		return "", nil
	}

	if s.Redis != nil {
		cursor, err := s.Redis.Incr(context.Background(), "assign:rr:"+teamID).Result()
		if err == nil {
			return members[int(cursor-1)%len(members)], nil
		}
		log.Printf("AssignmentService: redis round-robin cursor failed, falling back to first member: %v", err)
	}

	return members[0], nil
}

// leastLoaded returns the team member with the fewest open cases
func (s *AssignmentService) leastLoaded(teamID string) (string, error) {
	var userID sql.NullString
	err := s.PG.QueryRow(`
		SELECT tm.user_id::text
		FROM team_members tm
		LEFT JOIN cases c ON c.assigned_to = tm.user_id
			AND c.status NOT IN ('resolved', 'closed')
		WHERE tm.team_id = $1 AND tm.is_active = true
		GROUP BY tm.user_id, tm.rotation_order
		ORDER BY COUNT(c.id) ASC, tm.rotation_order ASC
		LIMIT 1
	`, teamID).Scan(&userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", fmt.Errorf("failed to find least loaded member: %w", err)
	}
	return userID.String, nil
}

// activeMembers lists active team member user IDs in rotation order
func (s *AssignmentService) activeMembers(teamID string) ([]string, error) {
	rows, err := s.PG.Query(`
		SELECT user_id::text
		FROM team_members
		WHERE team_id = $1 AND is_active = true
		ORDER BY rotation_order ASC, added_at ASC
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		members = append(members, id)
	}
	return members, nil
}
