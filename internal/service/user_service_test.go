package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/olympiad-registration-api/internal/models"
	appErrors "github.com/noah-isme/olympiad-registration-api/pkg/errors"
)

type fakeUserRepo struct {
	byEmail map[string]*models.User
	created []*models.User
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	f.created = append(f.created, user)
	return nil
}

func newUserFixture() (*UserService, *fakeUserRepo) {
	repo := &fakeUserRepo{byEmail: map[string]*models.User{
		"admin@olimpiada.bo": {ID: "u-1", Email: "admin@olimpiada.bo", Role: models.RoleAdmin},
	}}
	students := &fakeStudentRepo{students: map[string]*models.Student{"stu-1": {ID: "stu-1"}}}
	svc := NewUserService(repo, students, nil, nil)
	svc.hashCost = bcrypt.MinCost
	return svc, repo
}

func TestUserServiceCreateTutor(t *testing.T) {
	svc, repo := newUserFixture()

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email: " Tutor@Colegio.BO ", FullName: "Rosa Flores", Role: models.RoleTutor, Password: "secreto123",
	})
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, "tutor@colegio.bo", user.Email)
	assert.True(t, user.Active)
	assert.Nil(t, user.StudentID)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secreto123")))
}

func TestUserServiceCreateStudentAccount(t *testing.T) {
	svc, _ := newUserFixture()

	user, err := svc.Create(context.Background(), CreateUserRequest{
		Email: "ana@correo.bo", FullName: "Ana Quispe", Role: models.RoleStudent, Password: "secreto123", StudentID: strPtr("stu-1"),
	})
	require.NoError(t, err)
	require.NotNil(t, user.StudentID)
	assert.Equal(t, "stu-1", *user.StudentID)
}

func TestUserServiceCreateRejections(t *testing.T) {
	svc, repo := newUserFixture()

	cases := []struct {
		name string
		req  CreateUserRequest
		want *appErrors.Error
	}{
		{"duplicate email", CreateUserRequest{Email: "ADMIN@olimpiada.bo", FullName: "Otro", Role: models.RoleAdmin, Password: "secreto123"}, appErrors.ErrConflict},
		{"unknown role", CreateUserRequest{Email: "x@y.bo", FullName: "X", Role: "COORDINATOR", Password: "secreto123"}, appErrors.ErrValidation},
		{"short password", CreateUserRequest{Email: "x@y.bo", FullName: "X", Role: models.RoleTutor, Password: "abc"}, appErrors.ErrValidation},
		{"student without link", CreateUserRequest{Email: "x@y.bo", FullName: "X", Role: models.RoleStudent, Password: "secreto123"}, appErrors.ErrValidation},
		{"missing student", CreateUserRequest{Email: "x@y.bo", FullName: "X", Role: models.RoleStudent, Password: "secreto123", StudentID: strPtr("nope")}, appErrors.ErrValidation},
		{"tutor with link", CreateUserRequest{Email: "x@y.bo", FullName: "X", Role: models.RoleTutor, Password: "secreto123", StudentID: strPtr("stu-1")}, appErrors.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, repo.created)
}

func TestUserServiceGet(t *testing.T) {
	svc, _ := newUserFixture()

	user, err := svc.Get(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, user.Role)

	_, err = svc.Get(context.Background(), "u-404")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
