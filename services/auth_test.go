package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/elite-business/case-tools-new-sub005/db"
)

func TestRegister_DuplicateEmail(t *testing.T) {
	pg, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer pg.Close()

	mock.ExpectExec("INSERT INTO users").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_email_key"})

	svc := NewAuthService(pg, "test-secret")
	_, err = svc.Register(db.CreateUserRequest{
		Name:     "Alice Nguyen",
		Email:    "alice@example.com",
		Role:     db.RoleAnalyst,
		Password: "s3cret-pass",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestHashAndCheckPassword(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")

	hash, err := svc.HashPassword("s3cret-pass")
	assert.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, svc.CheckPassword(hash, "s3cret-pass"))
	assert.False(t, svc.CheckPassword(hash, "wrong-pass"))
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")
	user := db.User{
		ID:    "user-1",
		Email: "analyst@example.com",
		Role:  db.RoleAnalyst,
	}

	token, err := svc.GenerateToken(user)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := svc.ValidateToken(token)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "analyst@example.com", claims.Email)
	assert.Equal(t, db.RoleAnalyst, claims.Role)
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer := NewAuthService(nil, "secret-a")
	verifier := NewAuthService(nil, "secret-b")

	token, err := issuer.GenerateToken(db.User{ID: "user-1"})
	assert.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")

	token, err := svc.ExtractTokenFromHeader("Bearer abc.def.ghi")
	assert.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = svc.ExtractTokenFromHeader("")
	assert.Error(t, err)

	_, err = svc.ExtractTokenFromHeader("Basic abc")
	assert.Error(t, err)
}
