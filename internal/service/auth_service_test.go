package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type mockAuthRepo struct {
	userByEmail      *models.User
	findByEmailErr   error
	lastLoginUpdated bool
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func newTestAuthService(t *testing.T, user *models.User) (*AuthService, *mockAuthRepo) {
	t.Helper()
	repo := &mockAuthRepo{userByEmail: user}
	svc := NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, Issuer: "olympiad-test"})
	return svc, repo
}

func tutorUser(t *testing.T) *models.User {
	t.Helper()
	hash, err := HashPassword("Password123!")
	require.NoError(t, err)
	return &models.User{ID: "user-1", Email: "tutor@example.com", FullName: "Rosa Tutor", PasswordHash: hash, Role: models.RoleTutor, Active: true}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, repo := newTestAuthService(t, tutorUser(t))

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "tutor@example.com", Password: "Password123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleTutor, resp.User.Role)
	assert.True(t, repo.lastLoginUpdated)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTutor, claims.Role)
	assert.Empty(t, claims.StudentID)
}

func TestAuthServiceLoginCarriesStudentID(t *testing.T) {
	user := tutorUser(t)
	user.Role = models.RoleStudent
	studentID := "stu-1"
	user.StudentID = &studentID
	svc, _ := newTestAuthService(t, user)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "tutor@example.com", Password: "Password123!"})
	require.NoError(t, err)
	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", claims.StudentID)
}

func TestAuthServiceLoginFailures(t *testing.T) {
	inactive := tutorUser(t)
	inactive.Active = false

	tests := []struct {
		name    string
		repo    *mockAuthRepo
		req     models.LoginRequest
		wantErr *appErrors.Error
	}{
		{name: "invalid payload", repo: &mockAuthRepo{}, req: models.LoginRequest{Email: "nope"}, wantErr: appErrors.ErrValidation},
		{name: "unknown user", repo: &mockAuthRepo{}, req: models.LoginRequest{Email: "x@example.com", Password: "secret"}, wantErr: appErrors.ErrInvalidCredentials},
		{name: "wrong password", repo: &mockAuthRepo{userByEmail: tutorUser(t)}, req: models.LoginRequest{Email: "tutor@example.com", Password: "wrong"}, wantErr: appErrors.ErrInvalidCredentials},
		{name: "inactive", repo: &mockAuthRepo{userByEmail: inactive}, req: models.LoginRequest{Email: "tutor@example.com", Password: "Password123!"}, wantErr: appErrors.ErrInactiveAccount},
		{name: "repository failure", repo: &mockAuthRepo{findByEmailErr: errors.New("db down")}, req: models.LoginRequest{Email: "tutor@example.com", Password: "x"}, wantErr: appErrors.ErrInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewAuthService(tc.repo, nil, nil, AuthConfig{AccessTokenSecret: "secret"})
			_, err := svc.Login(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestAuthServiceValidateTokenRejects(t *testing.T) {
	svc, _ := newTestAuthService(t, tutorUser(t))
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "tutor@example.com", Password: "Password123!"})
	require.NoError(t, err)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "olympiad-test"})
	_, err = other.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	wrongIssuer := NewAuthService(&mockAuthRepo{}, nil, nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "someone-else"})
	_, err = wrongIssuer.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "user-1"})
	raw, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(raw)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}
