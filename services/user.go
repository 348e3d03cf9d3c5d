package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/elite-business/case-tools-new-sub005/db"
)

type UserService struct {
	PG    *sql.DB
	Redis *redis.Client
}

func NewUserService(pg *sql.DB, redis *redis.Client) *UserService {
	return &UserService{PG: pg, Redis: redis}
}

// ListUsers returns all non-system users
func (s *UserService) ListUsers() ([]db.User, error) {
	rows, err := s.PG.Query(`
		SELECT id, name, email, COALESCE(phone, '') as phone, role, is_active, created_at, updated_at
		FROM users
		WHERE id::text NOT LIKE '00000000-0000-0000-0000-%'
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// GetUser returns a user by ID, consulting the Redis cache first
func (s *UserService) GetUser(id string) (*db.User, error) {
	cacheKey := "user:" + id
	if s.Redis != nil {
		if cached, err := s.Redis.Get(context.Background(), cacheKey).Result(); err == nil {
			var u db.User
			if json.Unmarshal([]byte(cached), &u) == nil {
				return &u, nil
			}
		}
	}

	var u db.User
	err := s.PG.QueryRow(`
		SELECT id, name, email, COALESCE(phone, '') as phone, role, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("user not found")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if s.Redis != nil {
		if data, err := json.Marshal(u); err == nil {
			s.Redis.Set(context.Background(), cacheKey, data, 5*time.Minute)
		}
	}

	return &u, nil
}

// SearchUsers searches users by name or email
func (s *UserService) SearchUsers(query string) ([]db.User, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.PG.Query(`
		SELECT id, name, email, COALESCE(phone, '') as phone, role, is_active, created_at, updated_at
		FROM users
		WHERE (LOWER(name) LIKE $1 OR LOWER(email) LIKE $1)
		AND is_active = true
		AND id::text NOT LIKE '00000000-0000-0000-0000-%'
		ORDER BY name ASC
		LIMIT 20
	`, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	defer rows.Close()

	var users []db.User
	for rows.Next() {
		var u db.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// UpdateUser applies a partial update to a user
func (s *UserService) UpdateUser(id string, req db.UpdateUserRequest) (*db.User, error) {
	setClauses := []string{"updated_at = NOW()"}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		setClauses = append(setClauses, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
	}
	if req.Phone != nil {
		setClauses = append(setClauses, fmt.Sprintf("phone = $%d", argIdx))
		args = append(args, *req.Phone)
		argIdx++
	}
	if req.Role != nil {
		setClauses = append(setClauses, fmt.Sprintf("role = $%d", argIdx))
		args = append(args, *req.Role)
		argIdx++
	}
	if req.IsActive != nil {
		setClauses = append(setClauses, fmt.Sprintf("is_active = $%d", argIdx))
		args = append(args, *req.IsActive)
		argIdx++
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(setClauses, ", "), argIdx)

	result, err := s.PG.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user not found")
	}

	s.invalidateCache(id)
	return s.GetUser(id)
}

// DeactivateUser disables a user account (users are never hard-deleted)
func (s *UserService) DeactivateUser(id string) error {
	result, err := s.PG.Exec(`UPDATE users SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user not found")
	}
	s.invalidateCache(id)
	return nil
}

func (s *UserService) invalidateCache(id string) {
	if s.Redis != nil {
		s.Redis.Del(context.Background(), "user:"+id)
	}
}
