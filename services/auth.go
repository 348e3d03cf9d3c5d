package services

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/elite-business/case-tools-new-sub005/db"
)

type AuthService struct {
	PG        *sql.DB
	jwtSecret []byte
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	User    db.User `json:"user"`
	Token   string  `json:"token"`
	Message string  `json:"message"`
}

// Claims are the JWT claims issued at login
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func NewAuthService(pg *sql.DB, jwtSecret string) *AuthService {
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	return &AuthService{
		PG:        pg,
		jwtSecret: []byte(jwtSecret),
	}
}

// HashPassword creates a bcrypt hash of the password
func (s *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a plaintext password with a bcrypt hash
func (s *AuthService) CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Login validates credentials and returns a signed JWT
func (s *AuthService) Login(req LoginRequest) (*LoginResponse, error) {
	var user db.User
	err := s.PG.QueryRow(`
		SELECT id, name, email, COALESCE(phone, '') as phone, role, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE email = $1
	`, strings.ToLower(req.Email)).Scan(
		&user.ID, &user.Name, &user.Email, &user.Phone, &user.Role,
		&user.PasswordHash, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("invalid email or password")
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !user.IsActive {
		return nil, fmt.Errorf("user account is disabled")
	}

	if !s.CheckPassword(user.PasswordHash, req.Password) {
		return nil, fmt.Errorf("invalid email or password")
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &LoginResponse{
		User:    user,
		Token:   token,
		Message: "Login successful",
	}, nil
}

// Register creates a new user account
func (s *AuthService) Register(req db.CreateUserRequest) (*db.User, error) {
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &db.User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     strings.ToLower(req.Email),
		Phone:     req.Phone,
		Role:      req.Role,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	_, err = s.PG.Exec(`
		INSERT INTO users (id, name, email, phone, role, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Name, user.Email, user.Phone, user.Role, hash, user.IsActive, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, fmt.Errorf("user with email %s already exists", user.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GenerateToken issues an HS256 JWT for the user
func (s *AuthService) GenerateToken(user db.User) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", fmt.Errorf("JWT secret is not configured")
	}

	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			Issuer:    "casetools",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken parses and validates a JWT, returning its claims
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ExtractTokenFromHeader extracts the bearer token from an Authorization header
func (s *AuthService) ExtractTokenFromHeader(authHeader string) (string, error) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", fmt.Errorf("authorization header must be in 'Bearer <token>' format")
	}
	return parts[1], nil
}
